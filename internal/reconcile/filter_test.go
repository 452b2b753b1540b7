package reconcile

import "testing"

func sampleRows() []DeviceRow {
	return []DeviceRow{
		{MobileID: "alpha-01", Gname: "mall", ShopName: "North Plaza", Videos: []string{"promo.mp4"}, Online: false},
		{MobileID: "alpha-02", Gname: "mall", ShopName: "South Plaza", Videos: []string{"menu.mp4"}, Online: true},
		{MobileID: "beta-01", Gname: "airport", ShopName: "Gate 4", Videos: []string{"promo.mp4"}, Online: true, Inactive: true},
		{MobileID: "beta-02", Gname: "airport", ShopName: "Gate 7", Videos: nil, Online: false},
	}
}

func TestFilter_ExcludesInactiveByDefault(t *testing.T) {
	rows := Filter{}.Apply(sampleRows())
	for _, row := range rows {
		if row.Inactive {
			t.Fatalf("inactive row leaked: %+v", row)
		}
	}
	if len(rows) != 3 {
		t.Fatalf("expected 3 visible rows got %d", len(rows))
	}

	rows = Filter{IncludeInactive: true}.Apply(sampleRows())
	if len(rows) != 4 {
		t.Fatalf("expected 4 rows with inactive included got %d", len(rows))
	}
}

func TestFilter_CaseInsensitiveSubstringAnd(t *testing.T) {
	rows := Filter{Gname: "MALL", Shop: "south"}.Apply(sampleRows())
	if len(rows) != 1 || rows[0].MobileID != "alpha-02" {
		t.Fatalf("unexpected result: %+v", rows)
	}
}

func TestFilter_VideoMatchesAnyRowVideo(t *testing.T) {
	rows := Filter{Video: "promo", IncludeInactive: true}.Apply(sampleRows())
	if len(rows) != 2 {
		t.Fatalf("expected 2 rows got %d", len(rows))
	}
	for _, row := range rows {
		found := false
		for _, v := range row.Videos {
			if v == "promo.mp4" {
				found = true
			}
		}
		if !found {
			t.Fatalf("row without the video leaked: %+v", row)
		}
	}
}

func TestFilter_OnlineFirstStableOrder(t *testing.T) {
	rows := Filter{}.Apply(sampleRows())
	if !rows[0].Online {
		t.Fatalf("online rows should come first: %+v", rows)
	}
	// 同为离线的行保持快照内原有顺序。
	var offline []string
	for _, row := range rows {
		if !row.Online {
			offline = append(offline, row.MobileID)
		}
	}
	if len(offline) != 2 || offline[0] != "alpha-01" || offline[1] != "beta-02" {
		t.Fatalf("offline order not stable: %v", offline)
	}
}
