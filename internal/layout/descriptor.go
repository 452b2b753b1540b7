package layout

import (
	"encoding/json"
	"fmt"
	"sort"
	"strings"
)

// LinkRef 是引擎侧看到的链接记录投影：一条 (设备, 视频) 指派加遗留的
// 单槽旋转与网格位置。图片内容没有链接记录。
type LinkRef struct {
	ID             uint
	VideoName      string
	Rotation       Rotation
	DeviceRotation Rotation
	GridPosition   int
}

// EffectiveRotation 返回链接自身的默认旋转：优先 device_rotation，其次 rotation。
func (l LinkRef) EffectiveRotation() Rotation {
	if l.DeviceRotation != RotationUnset {
		return l.DeviceRotation
	}
	return l.Rotation
}

// DescriptorSlot 是序列化描述符中的一个槽位条目。
// Kind 是判别标签：video / image / empty；解析时非法条目整体判为不可用。
type DescriptorSlot struct {
	Position  int    `json:"position"`
	VideoName string `json:"video_name,omitempty"`
	AdName    string `json:"ad_name,omitempty"`
	Kind      string `json:"content_kind"`
	Rotation  *int   `json:"rotation"`
}

// EncodeConfig 将槽位模型序列化为描述符字符串（layout_config）。
func EncodeConfig(m *Model) (string, error) {
	entries := make([]DescriptorSlot, 0, m.SlotCount())
	for _, slot := range m.Slots() {
		entry := DescriptorSlot{
			Position: slot.Position,
			Kind:     string(KindEmpty),
			Rotation: slot.Rotation.Ptr(),
		}
		if slot.Content != nil {
			entry.Kind = string(slot.Content.Kind)
			switch slot.Content.Kind {
			case KindVideo:
				entry.VideoName = slot.Content.Name
			case KindImage:
				entry.AdName = slot.Content.Name
			}
		}
		entries = append(entries, entry)
	}

	data, err := json.Marshal(entries)
	if err != nil {
		return "", fmt.Errorf("encode layout config: %w", err)
	}
	return string(data), nil
}

// DecodeConfig 解析描述符字符串。
// 缺失、为空、或无法解析的历史格式都返回 ok=false，由调用方走链接记录回退，
// 绝不让一条坏数据阻塞界面。
func DecodeConfig(config string) ([]DescriptorSlot, bool) {
	config = strings.TrimSpace(config)
	if config == "" || config == "null" || config == "[]" || config == "{}" {
		return nil, false
	}

	var entries []DescriptorSlot
	if err := json.Unmarshal([]byte(config), &entries); err != nil {
		return nil, false
	}
	if len(entries) == 0 {
		return nil, false
	}

	for _, e := range entries {
		if e.Position < 1 {
			return nil, false
		}
		switch Kind(e.Kind) {
		case KindVideo:
			if e.VideoName == "" {
				return nil, false
			}
		case KindImage:
			if e.AdName == "" {
				return nil, false
			}
		case KindEmpty:
		default:
			return nil, false
		}
	}

	sort.SliceStable(entries, func(i, j int) bool { return entries[i].Position < entries[j].Position })
	return entries, true
}

// ModelFromConfig 从持久化的 (layout_mode, layout_config) 重建槽位模型。
// 描述符可用时以其为准：视频槽位会尝试按名字解析链接记录以恢复稳定的
// 链接 ID，解析不到也照常落位（孤儿引用按原样呈现）。描述符不可用时
// 走 FallbackModel。编辑器与列表视图都经由本函数派生槽位，保证两侧一致。
func ModelFromConfig(mode, config string, links []LinkRef) *Model {
	entries, ok := DecodeConfig(config)
	if !ok {
		return FallbackModel(links)
	}

	preset, err := PresetByID(mode)
	if err != nil {
		return FallbackModel(links)
	}

	m := NewModel(preset)
	// 遗留列表模式（FallbackModel 的保存产物）下槽位数跟随链接数，
	// 描述符条目可以多于 single 的名义槽位数，按最大位置生长以免截断。
	if preset.ID == PresetSingle {
		m.grow(entries[len(entries)-1].Position)
	}
	for _, entry := range entries {
		if entry.Position > m.SlotCount() {
			continue
		}
		switch Kind(entry.Kind) {
		case KindVideo:
			var linkID uint
			for _, link := range links {
				if link.VideoName == entry.VideoName {
					linkID = link.ID
					break
				}
			}
			_ = m.Assign(entry.Position, ContentRef{Kind: KindVideo, Name: entry.VideoName}, RotationFromPtr(entry.Rotation), linkID)
		case KindImage:
			_ = m.Assign(entry.Position, ContentRef{Kind: KindImage, Name: entry.AdName}, RotationFromPtr(entry.Rotation), 0)
		}
	}
	return m
}

// FallbackModel 在没有可用描述符时从链接记录派生模型：
// 按 grid_position 升序放入 1..N 号槽位，预设固定为 single（遗留列表模式，
// 槽位数随链接数走）。
func FallbackModel(links []LinkRef) *Model {
	sorted := make([]LinkRef, len(links))
	copy(sorted, links)
	sort.SliceStable(sorted, func(i, j int) bool { return sorted[i].GridPosition < sorted[j].GridPosition })

	preset, _ := PresetByID(PresetSingle)
	m := NewModel(preset)
	m.grow(len(sorted))

	for i, link := range sorted {
		_ = m.Assign(i+1, ContentRef{Kind: KindVideo, Name: link.VideoName}, link.EffectiveRotation(), link.ID)
	}
	return m
}
