package api

import (
	"encoding/json"
	"net/http"
	"testing"

	"github.com/gin-gonic/gin"

	"signCast/internal/database"
)

func TestCreateLink_AppendsGridPositionAndJoinsDeviceFields(t *testing.T) {
	db := newTestDB(t)
	h := NewLinkHandler(db)

	if err := db.Create(&database.Device{MobileID: "dev-1", Gname: "mall", ShopName: "north", DeviceName: "screen-1", Temperature: 37}).Error; err != nil {
		t.Fatalf("seed device: %v", err)
	}
	if err := db.Create(&database.LinkRecord{MobileID: "dev-1", Gname: "mall", ShopName: "north", VideoName: "a.mp4", GridPosition: 4}).Error; err != nil {
		t.Fatalf("seed link: %v", err)
	}

	c, w := testContext(t, http.MethodPost, "/v1/link", createLinkRequest{MobileID: "dev-1", VideoName: "b.mp4"})
	h.CreateLink(c)

	if w.Code != http.StatusCreated {
		t.Fatalf("create failed: %d body=%s", w.Code, w.Body.String())
	}

	var row linkRow
	if err := json.Unmarshal(w.Body.Bytes(), &row); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	if row.GridPosition != 5 {
		t.Fatalf("new link should append after max grid position, got %d", row.GridPosition)
	}
	if row.Gname != "mall" || row.DeviceName != "screen-1" || row.Temperature != 37 {
		t.Fatalf("device fields not joined: %+v", row)
	}
}

func TestCreateLink_DuplicateConflicts(t *testing.T) {
	db := newTestDB(t)
	h := NewLinkHandler(db)

	if err := db.Create(&database.Device{MobileID: "dev-1", Gname: "mall"}).Error; err != nil {
		t.Fatalf("seed device: %v", err)
	}
	if err := db.Create(&database.LinkRecord{MobileID: "dev-1", Gname: "mall", VideoName: "a.mp4", GridPosition: 1}).Error; err != nil {
		t.Fatalf("seed link: %v", err)
	}

	c, w := testContext(t, http.MethodPost, "/v1/link", createLinkRequest{MobileID: "dev-1", VideoName: "a.mp4"})
	h.CreateLink(c)

	if w.Code != http.StatusConflict {
		t.Fatalf("expected 409 got %d", w.Code)
	}
}

func TestCreateLink_UnknownDevice404(t *testing.T) {
	db := newTestDB(t)
	h := NewLinkHandler(db)

	c, w := testContext(t, http.MethodPost, "/v1/link", createLinkRequest{MobileID: "ghost", VideoName: "a.mp4"})
	h.CreateLink(c)

	if w.Code != http.StatusNotFound {
		t.Fatalf("expected 404 got %d", w.Code)
	}
}

func TestUpdateSettings_ValidatesInput(t *testing.T) {
	db := newTestDB(t)
	h := NewLinkHandler(db)

	if err := db.Create(&database.Device{MobileID: "dev-1"}).Error; err != nil {
		t.Fatalf("seed device: %v", err)
	}
	record := database.LinkRecord{MobileID: "dev-1", VideoName: "a.mp4", GridPosition: 1}
	if err := db.Create(&record).Error; err != nil {
		t.Fatalf("seed link: %v", err)
	}

	bad := 45
	cases := []struct {
		name string
		body linkSettingsRequest
		want int
	}{
		{"zero grid position", linkSettingsRequest{GridPosition: 0}, http.StatusBadRequest},
		{"bad rotation", linkSettingsRequest{GridPosition: 1, DeviceRotation: &bad}, http.StatusBadRequest},
	}
	for _, tc := range cases {
		c, w := testContext(t, http.MethodPut, "/v1/link/1/settings", tc.body)
		c.Params = gin.Params{{Key: "id", Value: "1"}}
		h.UpdateSettings(c)
		if w.Code != tc.want {
			t.Fatalf("%s: expected %d got %d", tc.name, tc.want, w.Code)
		}
	}

	rotation := 180
	c, w := testContext(t, http.MethodPut, "/v1/link/1/settings", linkSettingsRequest{GridPosition: 3, DeviceRotation: &rotation})
	c.Params = gin.Params{{Key: "id", Value: "1"}}
	h.UpdateSettings(c)
	if w.Code != http.StatusOK {
		t.Fatalf("update failed: %d body=%s", w.Code, w.Body.String())
	}

	var stored database.LinkRecord
	if err := db.First(&stored, record.ID).Error; err != nil {
		t.Fatalf("reload link: %v", err)
	}
	if stored.GridPosition != 3 || stored.DeviceRotation == nil || *stored.DeviceRotation != 180 {
		t.Fatalf("settings not persisted: %+v", stored)
	}
}

func TestListLinks_FiltersByGroupAndShop(t *testing.T) {
	db := newTestDB(t)
	h := NewLinkHandler(db)

	if err := db.Create(&database.Device{MobileID: "dev-1", Gname: "mall", ShopName: "north"}).Error; err != nil {
		t.Fatalf("seed device: %v", err)
	}
	if err := db.Create(&database.Device{MobileID: "dev-2", Gname: "airport", ShopName: "gate-4"}).Error; err != nil {
		t.Fatalf("seed device: %v", err)
	}
	links := []database.LinkRecord{
		{MobileID: "dev-1", Gname: "mall", ShopName: "north", VideoName: "a.mp4", GridPosition: 2},
		{MobileID: "dev-1", Gname: "mall", ShopName: "north", VideoName: "b.mp4", GridPosition: 1},
		{MobileID: "dev-2", Gname: "airport", ShopName: "gate-4", VideoName: "c.mp4", GridPosition: 1},
	}
	for i := range links {
		if err := db.Create(&links[i]).Error; err != nil {
			t.Fatalf("seed link: %v", err)
		}
	}

	c, w := testContext(t, http.MethodGet, "/v1/links?gname=mall", nil)
	h.ListLinks(c)
	if w.Code != http.StatusOK {
		t.Fatalf("list failed: %d body=%s", w.Code, w.Body.String())
	}

	var resp struct {
		Links []linkRow `json:"links"`
	}
	if err := json.Unmarshal(w.Body.Bytes(), &resp); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	if len(resp.Links) != 2 {
		t.Fatalf("expected 2 links got %d", len(resp.Links))
	}
	// 设备内按 grid_position 排序。
	if resp.Links[0].VideoName != "b.mp4" || resp.Links[1].VideoName != "a.mp4" {
		t.Fatalf("links not ordered by grid position: %+v", resp.Links)
	}
}

func TestDeleteLink_NotFoundAndNoContent(t *testing.T) {
	db := newTestDB(t)
	h := NewLinkHandler(db)

	record := database.LinkRecord{MobileID: "dev-1", VideoName: "a.mp4", GridPosition: 1}
	if err := db.Create(&record).Error; err != nil {
		t.Fatalf("seed link: %v", err)
	}

	c, w := testContext(t, http.MethodDelete, "/v1/link/999", nil)
	c.Params = gin.Params{{Key: "id", Value: "999"}}
	h.DeleteLink(c)
	if w.Code != http.StatusNotFound {
		t.Fatalf("expected 404 got %d", w.Code)
	}

	c, w = testContext(t, http.MethodDelete, "/v1/link/1", nil)
	c.Params = gin.Params{{Key: "id", Value: "1"}}
	h.DeleteLink(c)
	if w.Code != http.StatusNoContent {
		t.Fatalf("expected 204 got %d", w.Code)
	}
}
