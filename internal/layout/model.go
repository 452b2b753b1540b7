package layout

import (
	"errors"
	"fmt"
)

// Kind 区分槽位内容的种类。
type Kind string

const (
	KindVideo Kind = "video"
	KindImage Kind = "image"
	KindEmpty Kind = "empty"
)

// Rotation 表示槽位的旋转角度；RotationUnset 表示"使用内容自身的默认旋转"。
type Rotation int

const RotationUnset Rotation = -1

var validRotations = map[Rotation]bool{0: true, 90: true, 180: true, 270: true}

// Valid 判断旋转角度是否为合法值（含未设置）。
func (r Rotation) Valid() bool {
	return r == RotationUnset || validRotations[r]
}

// Ptr 转换为指针形式（未设置时为 nil），用于描述符与接口载荷。
func (r Rotation) Ptr() *int {
	if r == RotationUnset {
		return nil
	}
	v := int(r)
	return &v
}

// RotationFromPtr 从指针形式还原；nil 或非法值都按未设置处理。
func RotationFromPtr(p *int) Rotation {
	if p == nil {
		return RotationUnset
	}
	r := Rotation(*p)
	if !validRotations[r] {
		return RotationUnset
	}
	return r
}

// ContentRef 标识一个可指派的内容项，身份由 (Kind, Name) 共同决定。
type ContentRef struct {
	Kind Kind   `json:"kind"`
	Name string `json:"name"`
}

// Equal 判断两个内容引用是否指向同一内容。
func (c ContentRef) Equal(other ContentRef) bool {
	return c.Kind == other.Kind && c.Name == other.Name
}

// Slot 是布局中一个可寻址的位置，至多承载一个内容项。
// LinkID 仅对解析到链接记录的视频内容有意义，0 表示无对应记录。
type Slot struct {
	Position int
	Content  *ContentRef
	Rotation Rotation
	LinkID   uint
}

// Empty 判断槽位是否为空。
func (s Slot) Empty() bool {
	return s.Content == nil
}

var (
	ErrSlotOutOfRange = errors.New("slot index out of range for current preset")
	ErrSlotEmpty      = errors.New("cannot set rotation on empty slot")
	ErrInvalidRotation = errors.New("invalid rotation value")
)

// Model 是一次编辑会话内的槽位状态。由单个会话独占，不跨会话共享。
type Model struct {
	preset Preset
	slots  []Slot
}

// NewModel 按预设创建全空的槽位模型。
func NewModel(preset Preset) *Model {
	slots := make([]Slot, preset.SlotCount)
	for i := range slots {
		slots[i] = Slot{Position: i + 1, Rotation: RotationUnset}
	}
	return &Model{preset: preset, slots: slots}
}

// Preset 返回当前预设。
func (m *Model) Preset() Preset {
	return m.preset
}

// SlotCount 返回当前槽位数量。
// 回退模式（链接记录多于预设槽位）下可能大于预设的名义数量。
func (m *Model) SlotCount() int {
	return len(m.slots)
}

// Slots 返回槽位的快照副本，按位置升序。
func (m *Model) Slots() []Slot {
	out := make([]Slot, len(m.slots))
	copy(out, m.slots)
	return out
}

// Slot 返回指定位置（1 起）的槽位。
func (m *Model) Slot(position int) (Slot, error) {
	if position < 1 || position > len(m.slots) {
		return Slot{}, fmt.Errorf("%w: position %d of %d", ErrSlotOutOfRange, position, len(m.slots))
	}
	return m.slots[position-1], nil
}

// Assign 将内容指派到指定槽位。
// 若该内容已占据其他槽位，会先清空旧槽位再落位（移动语义，杜绝重复）；
// 清空与落位是同一次不可拆分的变更，调用方无法构造出重复内容的状态。
func (m *Model) Assign(position int, ref ContentRef, rotation Rotation, linkID uint) error {
	if position < 1 || position > len(m.slots) {
		return fmt.Errorf("%w: position %d of %d", ErrSlotOutOfRange, position, len(m.slots))
	}
	if !rotation.Valid() {
		return fmt.Errorf("%w: %d", ErrInvalidRotation, rotation)
	}

	for i := range m.slots {
		if m.slots[i].Content != nil && m.slots[i].Content.Equal(ref) && m.slots[i].Position != position {
			m.slots[i].Content = nil
			m.slots[i].Rotation = RotationUnset
			m.slots[i].LinkID = 0
		}
	}

	content := ref
	m.slots[position-1].Content = &content
	m.slots[position-1].Rotation = rotation
	m.slots[position-1].LinkID = linkID
	return nil
}

// Clear 清空指定槽位；越界按无操作处理，从不报错。
func (m *Model) Clear(position int) {
	if position < 1 || position > len(m.slots) {
		return
	}
	m.slots[position-1].Content = nil
	m.slots[position-1].Rotation = RotationUnset
	m.slots[position-1].LinkID = 0
}

// SetRotation 覆盖指定槽位的旋转角度；空槽位拒绝设置。
func (m *Model) SetRotation(position int, rotation Rotation) error {
	if position < 1 || position > len(m.slots) {
		return fmt.Errorf("%w: position %d of %d", ErrSlotOutOfRange, position, len(m.slots))
	}
	if !rotation.Valid() {
		return fmt.Errorf("%w: %d", ErrInvalidRotation, rotation)
	}
	if m.slots[position-1].Empty() {
		return ErrSlotEmpty
	}
	m.slots[position-1].Rotation = rotation
	return nil
}

// ChangePreset 切换预设并调整槽位数量。
// 前 min(old,new) 个槽位按位保留；超出新预设的槽位被丢弃（内容重新变为可用，
// 不做自动重排）；新增槽位为空。该操作有损且不可逆，UI 须在提交前提示。
// 切到当前预设是无操作：遗留列表模式生长出的槽位不能被"重选 single"截断。
func (m *Model) ChangePreset(preset Preset) {
	if preset.ID == m.preset.ID {
		return
	}
	old := m.slots
	slots := make([]Slot, preset.SlotCount)
	for i := range slots {
		if i < len(old) {
			slots[i] = old[i]
			slots[i].Position = i + 1
		} else {
			slots[i] = Slot{Position: i + 1, Rotation: RotationUnset}
		}
	}
	m.preset = preset
	m.slots = slots
}

// grow 把槽位数量扩展到 n（只增不减），新增槽位为空。
func (m *Model) grow(n int) {
	for len(m.slots) < n {
		m.slots = append(m.slots, Slot{Position: len(m.slots) + 1, Rotation: RotationUnset})
	}
}
