package layout

import (
	"errors"
	"testing"
)

func mustPreset(t *testing.T, id string) Preset {
	t.Helper()
	p, err := PresetByID(id)
	if err != nil {
		t.Fatalf("preset %q: %v", id, err)
	}
	return p
}

func TestAssign_MovesContentBetweenSlots(t *testing.T) {
	m := NewModel(mustPreset(t, PresetGrid2x2))
	ref := ContentRef{Kind: KindVideo, Name: "promo.mp4"}

	if err := m.Assign(1, ref, 90, 7); err != nil {
		t.Fatalf("assign slot 1: %v", err)
	}
	if err := m.Assign(3, ref, 180, 7); err != nil {
		t.Fatalf("assign slot 3: %v", err)
	}

	occupied := 0
	for _, slot := range m.Slots() {
		if slot.Content == nil {
			continue
		}
		occupied++
		if slot.Position != 3 {
			t.Fatalf("content left behind in slot %d", slot.Position)
		}
		if slot.Rotation != 180 {
			t.Fatalf("expected rotation 180 got %d", slot.Rotation)
		}
	}
	if occupied != 1 {
		t.Fatalf("expected exactly one occupied slot, got %d", occupied)
	}
}

func TestAssign_SameNameDifferentKindCoexist(t *testing.T) {
	m := NewModel(mustPreset(t, PresetTwoHorizontal))

	if err := m.Assign(1, ContentRef{Kind: KindVideo, Name: "spring"}, RotationUnset, 1); err != nil {
		t.Fatalf("assign video: %v", err)
	}
	if err := m.Assign(2, ContentRef{Kind: KindImage, Name: "spring"}, RotationUnset, 0); err != nil {
		t.Fatalf("assign image: %v", err)
	}

	for _, slot := range m.Slots() {
		if slot.Content == nil {
			t.Fatalf("slot %d unexpectedly empty", slot.Position)
		}
	}
}

func TestAssign_RejectsOutOfRangeAndBadRotation(t *testing.T) {
	m := NewModel(mustPreset(t, PresetSingle))
	ref := ContentRef{Kind: KindVideo, Name: "a.mp4"}

	if err := m.Assign(2, ref, 0, 0); !errors.Is(err, ErrSlotOutOfRange) {
		t.Fatalf("expected ErrSlotOutOfRange got %v", err)
	}
	if err := m.Assign(1, ref, 45, 0); !errors.Is(err, ErrInvalidRotation) {
		t.Fatalf("expected ErrInvalidRotation got %v", err)
	}
}

func TestSetRotation_EmptySlotRejected(t *testing.T) {
	m := NewModel(mustPreset(t, PresetTwoVertical))

	if err := m.SetRotation(1, 90); !errors.Is(err, ErrSlotEmpty) {
		t.Fatalf("expected ErrSlotEmpty got %v", err)
	}

	if err := m.Assign(1, ContentRef{Kind: KindVideo, Name: "a.mp4"}, RotationUnset, 0); err != nil {
		t.Fatalf("assign: %v", err)
	}
	if err := m.SetRotation(1, 270); err != nil {
		t.Fatalf("set rotation: %v", err)
	}
	slot, _ := m.Slot(1)
	if slot.Rotation != 270 {
		t.Fatalf("expected rotation 270 got %d", slot.Rotation)
	}
}

func TestClear_OutOfRangeIsNoop(t *testing.T) {
	m := NewModel(mustPreset(t, PresetSingle))
	m.Clear(0)
	m.Clear(5)
	if m.SlotCount() != 1 {
		t.Fatalf("slot count changed: %d", m.SlotCount())
	}
}

func TestChangePreset_PreservesByPositionAndDiscardsExtras(t *testing.T) {
	m := NewModel(mustPreset(t, PresetGrid2x2))
	for i := 1; i <= 4; i++ {
		ref := ContentRef{Kind: KindVideo, Name: "v" + string(rune('0'+i)) + ".mp4"}
		if err := m.Assign(i, ref, 0, uint(i)); err != nil {
			t.Fatalf("assign %d: %v", i, err)
		}
	}

	m.ChangePreset(mustPreset(t, PresetTwoHorizontal))
	if m.SlotCount() != 2 {
		t.Fatalf("expected 2 slots got %d", m.SlotCount())
	}
	for i := 1; i <= 2; i++ {
		slot, _ := m.Slot(i)
		if slot.Content == nil || slot.Content.Name != "v"+string(rune('0'+i))+".mp4" {
			t.Fatalf("slot %d lost its content: %+v", i, slot)
		}
	}

	// 回到大预设，被丢弃的内容不会自动恢复。
	m.ChangePreset(mustPreset(t, PresetStack1x4))
	if m.SlotCount() != 4 {
		t.Fatalf("expected 4 slots got %d", m.SlotCount())
	}
	for i := 3; i <= 4; i++ {
		slot, _ := m.Slot(i)
		if slot.Content != nil {
			t.Fatalf("slot %d should be empty after growing back: %+v", i, slot)
		}
	}
}

func TestChangePreset_SamePresetKeepsGrownSlots(t *testing.T) {
	links := []LinkRef{
		{ID: 1, VideoName: "a.mp4", GridPosition: 1},
		{ID: 2, VideoName: "b.mp4", GridPosition: 2},
	}

	m := FallbackModel(links)
	m.ChangePreset(mustPreset(t, PresetSingle))

	if m.SlotCount() != 2 {
		t.Fatalf("re-selecting the current preset must not truncate, got %d slots", m.SlotCount())
	}
	slot, _ := m.Slot(2)
	if slot.Content == nil || slot.Content.Name != "b.mp4" {
		t.Fatalf("slot 2 lost on same-preset change: %+v", slot)
	}
}

func TestRotationPtrRoundTrip(t *testing.T) {
	if RotationUnset.Ptr() != nil {
		t.Fatal("unset rotation should serialize to nil")
	}
	if got := RotationFromPtr(nil); got != RotationUnset {
		t.Fatalf("nil should decode to unset, got %d", got)
	}

	bad := 33
	if got := RotationFromPtr(&bad); got != RotationUnset {
		t.Fatalf("invalid value should decode to unset, got %d", got)
	}

	v := 90
	if got := RotationFromPtr(&v); got != 90 {
		t.Fatalf("expected 90 got %d", got)
	}
}
