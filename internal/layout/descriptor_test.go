package layout

import (
	"reflect"
	"testing"
)

func TestDecodeConfig_RejectsUnusableForms(t *testing.T) {
	cases := []string{
		"",
		"   ",
		"null",
		"[]",
		"{}",
		"not-json",
		`[{"position":0,"content_kind":"empty"}]`,
		`[{"position":1,"content_kind":"video"}]`,
		`[{"position":1,"content_kind":"image"}]`,
		`[{"position":1,"content_kind":"hologram"}]`,
	}
	for _, config := range cases {
		if _, ok := DecodeConfig(config); ok {
			t.Fatalf("config %q should be unusable", config)
		}
	}
}

func TestDecodeConfig_SortsByPosition(t *testing.T) {
	config := `[
		{"position":2,"content_kind":"video","video_name":"b.mp4"},
		{"position":1,"content_kind":"video","video_name":"a.mp4"}
	]`
	entries, ok := DecodeConfig(config)
	if !ok {
		t.Fatal("expected config to decode")
	}
	if entries[0].Position != 1 || entries[1].Position != 2 {
		t.Fatalf("entries not sorted: %+v", entries)
	}
}

func TestEncodeDecodeConfig_RoundTrip(t *testing.T) {
	m := NewModel(presets[4]) // grid-2x2
	if err := m.Assign(1, ContentRef{Kind: KindVideo, Name: "a.mp4"}, 90, 10); err != nil {
		t.Fatalf("assign: %v", err)
	}
	if err := m.Assign(3, ContentRef{Kind: KindImage, Name: "sale.png"}, RotationUnset, 0); err != nil {
		t.Fatalf("assign: %v", err)
	}

	config, err := EncodeConfig(m)
	if err != nil {
		t.Fatalf("encode: %v", err)
	}

	entries, ok := DecodeConfig(config)
	if !ok {
		t.Fatal("encoded config should decode")
	}
	if len(entries) != 4 {
		t.Fatalf("expected 4 entries got %d", len(entries))
	}
	if entries[0].Kind != string(KindVideo) || entries[0].VideoName != "a.mp4" || entries[0].Rotation == nil || *entries[0].Rotation != 90 {
		t.Fatalf("slot 1 mismatch: %+v", entries[0])
	}
	if entries[1].Kind != string(KindEmpty) {
		t.Fatalf("slot 2 should be empty: %+v", entries[1])
	}
	if entries[2].Kind != string(KindImage) || entries[2].AdName != "sale.png" || entries[2].Rotation != nil {
		t.Fatalf("slot 3 mismatch: %+v", entries[2])
	}
}

func TestModelFromConfig_DescriptorAuthoritative(t *testing.T) {
	links := []LinkRef{
		{ID: 1, VideoName: "a.mp4", GridPosition: 1},
		{ID: 2, VideoName: "b.mp4", GridPosition: 2, DeviceRotation: 180},
	}
	config := `[
		{"position":1,"content_kind":"video","video_name":"b.mp4","rotation":90},
		{"position":2,"content_kind":"image","ad_name":"sale.png"},
		{"position":3,"content_kind":"empty"}
	]`

	m := ModelFromConfig(PresetThreeMixed, config, links)
	if m.Preset().ID != PresetThreeMixed {
		t.Fatalf("expected preset three-mixed got %s", m.Preset().ID)
	}

	slot1, _ := m.Slot(1)
	if slot1.Content == nil || slot1.Content.Name != "b.mp4" || slot1.LinkID != 2 || slot1.Rotation != 90 {
		t.Fatalf("slot 1 mismatch: %+v", slot1)
	}
	slot2, _ := m.Slot(2)
	if slot2.Content == nil || slot2.Content.Kind != KindImage || slot2.Content.Name != "sale.png" {
		t.Fatalf("slot 2 mismatch: %+v", slot2)
	}
	slot3, _ := m.Slot(3)
	if slot3.Content != nil {
		t.Fatalf("slot 3 should be empty: %+v", slot3)
	}
}

func TestModelFromConfig_OrphanVideoHonored(t *testing.T) {
	config := `[{"position":1,"content_kind":"video","video_name":"gone.mp4","rotation":null}]`
	m := ModelFromConfig(PresetSingle, config, nil)

	slot, _ := m.Slot(1)
	if slot.Content == nil || slot.Content.Name != "gone.mp4" {
		t.Fatalf("orphan reference should be rendered: %+v", slot)
	}
	if slot.LinkID != 0 {
		t.Fatalf("orphan should have no link id: %d", slot.LinkID)
	}
}

func TestModelFromConfig_UnknownPresetFallsBack(t *testing.T) {
	config := `[{"position":1,"content_kind":"video","video_name":"a.mp4"}]`
	links := []LinkRef{{ID: 1, VideoName: "z.mp4", GridPosition: 1}}

	m := ModelFromConfig("nine-way", config, links)
	if m.Preset().ID != PresetSingle {
		t.Fatalf("expected fallback preset got %s", m.Preset().ID)
	}
	slot, _ := m.Slot(1)
	if slot.Content == nil || slot.Content.Name != "z.mp4" {
		t.Fatalf("fallback should come from links: %+v", slot)
	}
}

func TestFallbackModel_OrdersByGridPositionAndGrows(t *testing.T) {
	links := []LinkRef{
		{ID: 1, VideoName: "second.mp4", GridPosition: 2},
		{ID: 2, VideoName: "first.mp4", GridPosition: 1, DeviceRotation: 270},
		{ID: 3, VideoName: "third.mp4", GridPosition: 3},
	}

	m := FallbackModel(links)
	if m.Preset().ID != PresetSingle {
		t.Fatalf("fallback preset should be single, got %s", m.Preset().ID)
	}
	if m.SlotCount() != 3 {
		t.Fatalf("slot list should grow to link count, got %d", m.SlotCount())
	}

	wantNames := []string{"first.mp4", "second.mp4", "third.mp4"}
	for i, want := range wantNames {
		slot, _ := m.Slot(i + 1)
		if slot.Content == nil || slot.Content.Name != want {
			t.Fatalf("slot %d expected %s got %+v", i+1, want, slot)
		}
	}

	first, _ := m.Slot(1)
	if first.Rotation != 270 {
		t.Fatalf("fallback should carry the link's effective rotation, got %d", first.Rotation)
	}
}

func TestModelFromConfig_LegacySingleRoundTripsGrownSlots(t *testing.T) {
	links := []LinkRef{
		{ID: 1, VideoName: "first.mp4", GridPosition: 1, DeviceRotation: 270},
		{ID: 2, VideoName: "second.mp4", GridPosition: 2},
		{ID: 3, VideoName: "third.mp4", GridPosition: 3},
	}

	m := FallbackModel(links)
	config, err := EncodeConfig(m)
	if err != nil {
		t.Fatalf("encode: %v", err)
	}

	reloaded := ModelFromConfig(m.Preset().ID, config, links)
	if reloaded.Preset().ID != PresetSingle {
		t.Fatalf("expected preset single got %s", reloaded.Preset().ID)
	}
	if reloaded.SlotCount() != m.SlotCount() {
		t.Fatalf("slot count changed on reload: got %d want %d", reloaded.SlotCount(), m.SlotCount())
	}
	if !reflect.DeepEqual(reloaded.Slots(), m.Slots()) {
		t.Fatalf("slots changed on reload:\n got %+v\nwant %+v", reloaded.Slots(), m.Slots())
	}
}

func TestEffectiveRotation_DeviceRotationWins(t *testing.T) {
	l := LinkRef{Rotation: 90, DeviceRotation: 180}
	if got := l.EffectiveRotation(); got != 180 {
		t.Fatalf("expected 180 got %d", got)
	}
	l = LinkRef{Rotation: 90, DeviceRotation: RotationUnset}
	if got := l.EffectiveRotation(); got != 90 {
		t.Fatalf("expected 90 got %d", got)
	}
}
