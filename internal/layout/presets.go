package layout

import "fmt"

// Preset 描述一种固定槽位排布。Arrangement 仅用于前端展示，不参与任何约束。
type Preset struct {
	ID          string `json:"id"`
	SlotCount   int    `json:"slot_count"`
	Arrangement string `json:"arrangement"`
}

// 六种静态预设；不可在运行时增删。
const (
	PresetSingle        = "single"
	PresetTwoHorizontal = "two-horizontal"
	PresetTwoVertical   = "two-vertical"
	PresetThreeMixed    = "three-mixed"
	PresetGrid2x2       = "grid-2x2"
	PresetStack1x4      = "stack-1x4"
)

var presets = []Preset{
	{ID: PresetSingle, SlotCount: 1, Arrangement: "full"},
	{ID: PresetTwoHorizontal, SlotCount: 2, Arrangement: "left|right"},
	{ID: PresetTwoVertical, SlotCount: 2, Arrangement: "top/bottom"},
	{ID: PresetThreeMixed, SlotCount: 3, Arrangement: "left|right / bottom-full"},
	{ID: PresetGrid2x2, SlotCount: 4, Arrangement: "2x2"},
	{ID: PresetStack1x4, SlotCount: 4, Arrangement: "1x4"},
}

// Presets 返回预设目录的副本。
func Presets() []Preset {
	out := make([]Preset, len(presets))
	copy(out, presets)
	return out
}

// PresetByID 按 ID 查找预设。
func PresetByID(id string) (Preset, error) {
	for _, p := range presets {
		if p.ID == id {
			return p, nil
		}
	}
	return Preset{}, fmt.Errorf("unknown layout preset %q", id)
}
