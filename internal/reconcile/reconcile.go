package reconcile

import (
	"context"
	"log/slog"
	"sort"
	"sync"
	"time"

	"signCast/internal/fleet"
	"signCast/internal/layout"
)

// SlotView 是设备行上的槽位摘要徽标。
type SlotView struct {
	Position int    `json:"position"`
	Kind     string `json:"kind"`
	Name     string `json:"name,omitempty"`
	Rotation *int   `json:"rotation"`
}

// DeviceRow 是列表视图的一行：按 (mobile_id, gname, shop_name) 聚合的
// 只读派生结构，每个轮询周期整体重建，从不原地修改。
type DeviceRow struct {
	MobileID     string         `json:"mobile_id"`
	Gname        string         `json:"gname"`
	ShopName     string         `json:"shop_name"`
	DeviceName   string         `json:"device_name"`
	Temperature  float64        `json:"temperature"`
	DailyPlays   int            `json:"daily_plays"`
	MonthlyPlays int            `json:"monthly_plays"`
	Inactive     bool           `json:"inactive"`
	Online       bool           `json:"online"`
	LayoutMode   string         `json:"layout_mode"`
	Videos       []string       `json:"videos"`
	Images       []string       `json:"images"`
	Slots        []SlotView     `json:"slots"`
	Progress     map[string]int `json:"progress,omitempty"`
}

// Snapshot 是一次重建的完整结果。
type Snapshot struct {
	Rows          []DeviceRow `json:"rows"`
	InactiveCount int         `json:"inactive_count"`
	GeneratedAt   time.Time   `json:"generated_at"`
}

// Source 是重建设备行所需的协作方端点，由 fleet.Client 实现。
type Source interface {
	ListLinks(ctx context.Context, gname, shop string) ([]fleet.LinkRecord, error)
	GetDeviceLayout(ctx context.Context, mobileID string) (fleet.DeviceLayout, bool, error)
	DeviceOnline(ctx context.Context, mobileID string) (bool, error)
	DownloadProgress(ctx context.Context, mobileID string) (map[string]int, error)
}

// Reconciler 把链接记录、布局描述符与实时遥测合并成设备行快照。
type Reconciler struct {
	source Source
	logger *slog.Logger
}

// NewReconciler 构造读侧对账器。
func NewReconciler(source Source, logger *slog.Logger) *Reconciler {
	if logger == nil {
		logger = slog.Default()
	}
	return &Reconciler{source: source, logger: logger}
}

type deviceGroup struct {
	first fleet.LinkRecord
	links []fleet.LinkRecord
}

// BuildSnapshot 重建全量设备行。
// 各设备的描述符/在线/进度查询相互独立并发发出；单台设备查询慢或失败
// 只影响它自己的行（回退到链接派生、按离线处理），不污染其他行。
func (r *Reconciler) BuildSnapshot(ctx context.Context) (Snapshot, error) {
	records, err := r.source.ListLinks(ctx, "", "")
	if err != nil {
		return Snapshot{}, err
	}

	type key struct{ mobileID, gname, shop string }
	groups := map[key]*deviceGroup{}
	order := make([]key, 0, len(records))
	for _, record := range records {
		k := key{record.MobileID, record.Gname, record.ShopName}
		g, ok := groups[k]
		if !ok {
			// 设备级字段取首见记录，后续行的偏差静默忽略。
			g = &deviceGroup{first: record}
			groups[k] = g
			order = append(order, k)
		}
		g.links = append(g.links, record)
	}

	rows := make([]DeviceRow, len(order))
	var wg sync.WaitGroup
	for i, k := range order {
		wg.Add(1)
		go func(i int, g *deviceGroup) {
			defer wg.Done()
			rows[i] = r.buildRow(ctx, g)
		}(i, groups[k])
	}
	wg.Wait()

	snap := Snapshot{Rows: make([]DeviceRow, 0, len(rows)), GeneratedAt: time.Now().UTC()}
	for _, row := range rows {
		if row.Inactive {
			snap.InactiveCount++
		}
		snap.Rows = append(snap.Rows, row)
	}
	return snap, nil
}

func (r *Reconciler) buildRow(ctx context.Context, g *deviceGroup) DeviceRow {
	links := make([]fleet.LinkRecord, len(g.links))
	copy(links, g.links)
	sort.SliceStable(links, func(i, j int) bool { return links[i].GridPosition < links[j].GridPosition })

	row := DeviceRow{
		MobileID:     g.first.MobileID,
		Gname:        g.first.Gname,
		ShopName:     g.first.ShopName,
		DeviceName:   g.first.DeviceName,
		Temperature:  g.first.Temperature,
		DailyPlays:   g.first.DailyPlays,
		MonthlyPlays: g.first.MonthlyPlays,
		Inactive:     g.first.Inactive,
		Videos:       make([]string, 0, len(links)),
	}
	for _, link := range links {
		row.Videos = append(row.Videos, link.VideoName)
	}

	var mode, config string
	if stored, found, err := r.source.GetDeviceLayout(ctx, row.MobileID); err != nil {
		r.logger.Warn("layout fetch failed, deriving slots from links",
			slog.String("mobile_id", row.MobileID),
			slog.Any("error", err),
		)
	} else if found {
		mode = stored.LayoutMode
		config = stored.LayoutConfig
	}
	row.LayoutMode, row.Slots, row.Images = deriveSlots(mode, config, links)

	if online, err := r.source.DeviceOnline(ctx, row.MobileID); err != nil {
		r.logger.Warn("online status fetch failed",
			slog.String("mobile_id", row.MobileID),
			slog.Any("error", err),
		)
	} else {
		row.Online = online
	}

	if progress, err := r.source.DownloadProgress(ctx, row.MobileID); err != nil {
		r.logger.Warn("download progress fetch failed",
			slog.String("mobile_id", row.MobileID),
			slog.Any("error", err),
		)
	} else if len(progress) > 0 {
		row.Progress = progress
	}

	return row
}

// deriveSlots 生成槽位摘要。解析与回退逻辑与编辑器共用同一套
// layout.ModelFromConfig，保证两个视图对同一设备的槽位判断一致。
func deriveSlots(mode, config string, links []fleet.LinkRecord) (string, []SlotView, []string) {
	refs := make([]layout.LinkRef, 0, len(links))
	for _, l := range links {
		refs = append(refs, layout.LinkRef{
			ID:             l.ID,
			VideoName:      l.VideoName,
			Rotation:       layout.RotationFromPtr(l.Rotation),
			DeviceRotation: layout.RotationFromPtr(l.DeviceRotation),
			GridPosition:   l.GridPosition,
		})
	}

	model := layout.ModelFromConfig(mode, config, refs)

	views := make([]SlotView, 0, model.SlotCount())
	var images []string
	seenImages := map[string]bool{}
	for _, slot := range model.Slots() {
		view := SlotView{Position: slot.Position, Kind: string(layout.KindEmpty), Rotation: slot.Rotation.Ptr()}
		if slot.Content != nil {
			view.Kind = string(slot.Content.Kind)
			view.Name = slot.Content.Name
			if slot.Content.Kind == layout.KindImage && !seenImages[slot.Content.Name] {
				seenImages[slot.Content.Name] = true
				images = append(images, slot.Content.Name)
			}
		}
		views = append(views, view)
	}
	return model.Preset().ID, views, images
}
