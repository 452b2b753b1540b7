package composer

import (
	"context"
	"fmt"
	"log/slog"

	"signCast/internal/fleet"
	"signCast/internal/layout"
)

// Store 是合成引擎依赖的协作方端点集合，由 fleet.Client 实现。
type Store interface {
	GetDeviceLayout(ctx context.Context, mobileID string) (fleet.DeviceLayout, bool, error)
	SaveDeviceLayout(ctx context.Context, mobileID string, l fleet.DeviceLayout) error
	DeviceLinks(ctx context.Context, mobileID string) ([]fleet.LinkRecord, error)
	UpdateLinkSettings(ctx context.Context, linkID uint, gridPosition int, deviceRotation *int) error
}

// LinkFailure 记录一次非致命的链接更新失败，留给调用方展示。
type LinkFailure struct {
	LinkID   uint   `json:"link_id"`
	Position int    `json:"position"`
	Reason   string `json:"reason"`
}

// SaveResult 汇总一次保存：描述符写入成功与否决定整体成败，
// 链接更新失败只收集、不中断。
type SaveResult struct {
	LayoutMode   string        `json:"layout_mode"`
	LayoutConfig string        `json:"layout_config"`
	LinkFailures []LinkFailure `json:"link_failures,omitempty"`
}

// Session 是一台设备的编辑会话，独占持有槽位模型。
// 关闭会话后不应再调用 Save；进行中的保存不会被取消。
type Session struct {
	mobileID string
	gname    string
	store    Store
	logger   *slog.Logger
	model    *layout.Model
	links    []layout.LinkRef
}

// Open 打开设备的编辑会话：读描述符、读链接记录，合并出初始槽位模型。
// 描述符缺失或不可解析时回退为按 grid_position 排序的链接记录。
func Open(ctx context.Context, store Store, mobileID string, logger *slog.Logger) (*Session, error) {
	if logger == nil {
		logger = slog.Default()
	}

	records, err := store.DeviceLinks(ctx, mobileID)
	if err != nil {
		return nil, fmt.Errorf("load device links: %w", err)
	}
	links := linkRefs(records)
	var gname string
	if len(records) > 0 {
		gname = records[0].Gname
	}

	var mode, config string
	stored, found, err := store.GetDeviceLayout(ctx, mobileID)
	if err != nil {
		return nil, fmt.Errorf("load device layout: %w", err)
	}
	if found {
		mode = stored.LayoutMode
		config = stored.LayoutConfig
	}

	model := layout.ModelFromConfig(mode, config, links)
	logger.Info("editor session opened",
		slog.String("mobile_id", mobileID),
		slog.String("layout_mode", model.Preset().ID),
		slog.Bool("descriptor_found", found),
		slog.Int("link_count", len(links)),
	)

	return &Session{
		mobileID: mobileID,
		gname:    gname,
		store:    store,
		logger:   logger,
		model:    model,
		links:    links,
	}, nil
}

// MobileID 返回会话绑定的设备 ID。
func (s *Session) MobileID() string { return s.mobileID }

// Gname 返回设备所属的组名（取首条链接记录，无链接时为空）。
func (s *Session) Gname() string { return s.gname }

// Model 返回会话持有的槽位模型。
func (s *Session) Model() *layout.Model { return s.model }

// Links 返回会话加载到的链接记录投影。
func (s *Session) Links() []layout.LinkRef {
	out := make([]layout.LinkRef, len(s.links))
	copy(out, s.links)
	return out
}

// Assign 把内容指派到槽位。未显式给旋转（RotationUnset）时，
// 视频取其链接记录自身的默认旋转，图片保持未设置。
func (s *Session) Assign(position int, ref layout.ContentRef, rotation layout.Rotation) error {
	var linkID uint
	if ref.Kind == layout.KindVideo {
		for _, link := range s.links {
			if link.VideoName == ref.Name {
				linkID = link.ID
				if rotation == layout.RotationUnset {
					rotation = link.EffectiveRotation()
				}
				break
			}
		}
	}
	return s.model.Assign(position, ref, rotation, linkID)
}

// Clear 清空槽位。
func (s *Session) Clear(position int) {
	s.model.Clear(position)
}

// SetRotation 覆盖槽位旋转。
func (s *Session) SetRotation(position int, rotation layout.Rotation) error {
	return s.model.SetRotation(position, rotation)
}

// ChangePreset 切换布局预设（有损操作，多余槽位被丢弃）。
func (s *Session) ChangePreset(presetID string) error {
	preset, err := layout.PresetByID(presetID)
	if err != nil {
		return err
	}
	s.model.ChangePreset(preset)
	return nil
}

// Save 把当前模型整体写回描述符存储，并让链接存储与视频槽位对齐。
// 引擎自身不重试：传输失败原样上抛，由操作员决定是否整单重做。
func (s *Session) Save(ctx context.Context) (SaveResult, error) {
	return Apply(ctx, s.store, s.mobileID, s.model, s.links, s.logger)
}

// Apply 把一个槽位模型落到指定设备：先整体覆盖描述符（失败即整体失败），
// 再逐条更新视频槽位对应链接的网格位置与旋转，失败只收集。
// 图片槽位不写回链接存储；被移出全部槽位的视频也不在此路径删除链接。
func Apply(ctx context.Context, store Store, mobileID string, model *layout.Model, links []layout.LinkRef, logger *slog.Logger) (SaveResult, error) {
	if logger == nil {
		logger = slog.Default()
	}

	config, err := layout.EncodeConfig(model)
	if err != nil {
		return SaveResult{}, err
	}
	mode := model.Preset().ID

	if err := store.SaveDeviceLayout(ctx, mobileID, fleet.DeviceLayout{LayoutMode: mode, LayoutConfig: config}); err != nil {
		return SaveResult{}, fmt.Errorf("save layout descriptor: %w", err)
	}

	result := SaveResult{LayoutMode: mode, LayoutConfig: config}
	for _, slot := range model.Slots() {
		if slot.Content == nil || slot.Content.Kind != layout.KindVideo {
			continue
		}
		linkID := slot.LinkID
		if linkID == 0 {
			linkID = resolveLinkID(links, slot.Content.Name)
		}
		if linkID == 0 {
			// 描述符里的孤儿视频引用：没有链接记录可更新，按原样保留。
			continue
		}
		if err := store.UpdateLinkSettings(ctx, linkID, slot.Position, slot.Rotation.Ptr()); err != nil {
			logger.Warn("link settings update failed",
				slog.String("mobile_id", mobileID),
				slog.Uint64("link_id", uint64(linkID)),
				slog.Int("position", slot.Position),
				slog.Any("error", err),
			)
			result.LinkFailures = append(result.LinkFailures, LinkFailure{
				LinkID:   linkID,
				Position: slot.Position,
				Reason:   err.Error(),
			})
		}
	}

	logger.Info("layout saved",
		slog.String("mobile_id", mobileID),
		slog.String("layout_mode", mode),
		slog.Int("link_failures", len(result.LinkFailures)),
	)
	return result, nil
}

// ApplyToDevice 把已合成的 (mode, config) 应用到另一台设备。
// 链接 ID 按目标设备自己的记录就地解析，绝不照搬源设备的 ID ——
// 两台设备可能以不同的链接持有同一个视频。
func ApplyToDevice(ctx context.Context, store Store, mobileID, mode, config string, logger *slog.Logger) (SaveResult, error) {
	records, err := store.DeviceLinks(ctx, mobileID)
	if err != nil {
		return SaveResult{}, fmt.Errorf("load device links: %w", err)
	}
	links := linkRefs(records)
	model := layout.ModelFromConfig(mode, config, links)
	return Apply(ctx, store, mobileID, model, links, logger)
}

func resolveLinkID(links []layout.LinkRef, videoName string) uint {
	for _, link := range links {
		if link.VideoName == videoName {
			return link.ID
		}
	}
	return 0
}

func linkRefs(records []fleet.LinkRecord) []layout.LinkRef {
	out := make([]layout.LinkRef, 0, len(records))
	for _, r := range records {
		out = append(out, layout.LinkRef{
			ID:             r.ID,
			VideoName:      r.VideoName,
			Rotation:       layout.RotationFromPtr(r.Rotation),
			DeviceRotation: layout.RotationFromPtr(r.DeviceRotation),
			GridPosition:   r.GridPosition,
		})
	}
	return out
}
