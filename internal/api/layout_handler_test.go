package api

import (
	"bytes"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/gin-gonic/gin"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"

	"signCast/internal/database"
)

func newTestDB(t *testing.T) *gorm.DB {
	t.Helper()
	dsn := fmt.Sprintf("file:%s?mode=memory&cache=shared", strings.ReplaceAll(t.Name(), "/", "_"))
	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{})
	if err != nil {
		t.Fatalf("open sqlite: %v", err)
	}
	if err := db.AutoMigrate(&database.Device{}, &database.LinkRecord{}, &database.DeviceLayout{}); err != nil {
		t.Fatalf("migrate: %v", err)
	}
	return db
}

func testContext(t *testing.T, method, target string, body any) (*gin.Context, *httptest.ResponseRecorder) {
	t.Helper()
	gin.SetMode(gin.TestMode)

	var reader *bytes.Buffer
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			t.Fatalf("marshal body: %v", err)
		}
		reader = bytes.NewBuffer(data)
	} else {
		reader = &bytes.Buffer{}
	}

	w := httptest.NewRecorder()
	c, _ := gin.CreateTestContext(w)
	c.Request = httptest.NewRequest(method, target, reader)
	c.Request.Header.Set("Content-Type", "application/json")
	return c, w
}

func TestGetDeviceLayout_NotFoundBeforeFirstSave(t *testing.T) {
	db := newTestDB(t)
	h := NewLayoutHandler(db, true)

	c, w := testContext(t, http.MethodGet, "/v1/device/dev-1/layout", nil)
	c.Params = gin.Params{{Key: "id", Value: "dev-1"}}
	h.GetDeviceLayout(c)

	if w.Code != http.StatusNotFound {
		t.Fatalf("expected 404 got %d body=%s", w.Code, w.Body.String())
	}
}

func TestSaveDeviceLayout_RoundTripAndOverwrite(t *testing.T) {
	db := newTestDB(t)
	h := NewLayoutHandler(db, true)

	save := func(mode, config string) {
		t.Helper()
		c, w := testContext(t, http.MethodPost, "/v1/device/dev-1/layout", layoutPayload{LayoutMode: mode, LayoutConfig: config})
		c.Params = gin.Params{{Key: "id", Value: "dev-1"}}
		h.SaveDeviceLayout(c)
		if w.Code != http.StatusOK {
			t.Fatalf("save failed: %d body=%s", w.Code, w.Body.String())
		}
	}

	save("grid-2x2", `[{"position":1,"content_kind":"empty","rotation":null}]`)
	save("single", `[{"position":1,"content_kind":"video","video_name":"a.mp4","rotation":90}]`)

	c, w := testContext(t, http.MethodGet, "/v1/device/dev-1/layout", nil)
	c.Params = gin.Params{{Key: "id", Value: "dev-1"}}
	h.GetDeviceLayout(c)
	if w.Code != http.StatusOK {
		t.Fatalf("get failed: %d body=%s", w.Code, w.Body.String())
	}

	var got layoutPayload
	if err := json.Unmarshal(w.Body.Bytes(), &got); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	if got.LayoutMode != "single" {
		t.Fatalf("expected overwritten mode, got %q", got.LayoutMode)
	}
	if !strings.Contains(got.LayoutConfig, "a.mp4") {
		t.Fatalf("config not overwritten: %s", got.LayoutConfig)
	}

	var count int64
	if err := db.Model(&database.DeviceLayout{}).Count(&count).Error; err != nil {
		t.Fatalf("count layouts: %v", err)
	}
	if count != 1 {
		t.Fatalf("save should upsert, found %d rows", count)
	}
}

func TestSaveDeviceLayout_RequiresLayoutMode(t *testing.T) {
	db := newTestDB(t)
	h := NewLayoutHandler(db, true)

	c, w := testContext(t, http.MethodPost, "/v1/device/dev-1/layout", layoutPayload{LayoutMode: "  "})
	c.Params = gin.Params{{Key: "id", Value: "dev-1"}}
	h.SaveDeviceLayout(c)

	if w.Code != http.StatusBadRequest {
		t.Fatalf("expected 400 got %d", w.Code)
	}
}

func TestSyncToGroup_DisabledReturns404(t *testing.T) {
	db := newTestDB(t)
	h := NewLayoutHandler(db, false)

	c, w := testContext(t, http.MethodPost, "/v1/group/mall/sync-to-devices", syncToDevicesRequest{
		SourceMobileID: "dev-1",
		LayoutMode:     "single",
	})
	c.Params = gin.Params{{Key: "name", Value: "mall"}}
	h.SyncToGroup(c)

	if w.Code != http.StatusNotFound {
		t.Fatalf("disabled batch sync should report 404, got %d", w.Code)
	}
}

func TestSyncToGroup_WritesEveryGroupDevice(t *testing.T) {
	db := newTestDB(t)
	h := NewLayoutHandler(db, true)

	for _, id := range []string{"dev-1", "dev-2", "dev-3"} {
		if err := db.Create(&database.Device{MobileID: id, Gname: "mall"}).Error; err != nil {
			t.Fatalf("seed device: %v", err)
		}
	}
	if err := db.Create(&database.Device{MobileID: "dev-x", Gname: "airport"}).Error; err != nil {
		t.Fatalf("seed device: %v", err)
	}

	c, w := testContext(t, http.MethodPost, "/v1/group/mall/sync-to-devices", syncToDevicesRequest{
		SourceMobileID: "dev-1",
		LayoutMode:     "single",
		LayoutConfig:   `[{"position":1,"content_kind":"video","video_name":"a.mp4","rotation":null}]`,
	})
	c.Params = gin.Params{{Key: "name", Value: "mall"}}
	h.SyncToGroup(c)

	if w.Code != http.StatusOK {
		t.Fatalf("sync failed: %d body=%s", w.Code, w.Body.String())
	}

	var resp struct {
		DevicesUpdated int `json:"devices_updated"`
	}
	if err := json.Unmarshal(w.Body.Bytes(), &resp); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	if resp.DevicesUpdated != 3 {
		t.Fatalf("expected 3 devices updated got %d", resp.DevicesUpdated)
	}

	var outside int64
	if err := db.Model(&database.DeviceLayout{}).Where("mobile_id = ?", "dev-x").Count(&outside).Error; err != nil {
		t.Fatalf("count: %v", err)
	}
	if outside != 0 {
		t.Fatal("device outside the group must not be touched")
	}
}
