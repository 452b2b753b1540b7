package fleet

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
)

func TestClient_SendsInternalSecretHeader(t *testing.T) {
	var gotSecret string
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotSecret = r.Header.Get("X-Internal-Secret")
		json.NewEncoder(w).Encode(videosResponse{Videos: []string{"a.mp4"}})
	}))
	defer server.Close()

	client := NewClient(server.URL, "hunter2")
	videos, err := client.ListVideos(context.Background())
	if err != nil {
		t.Fatalf("list videos: %v", err)
	}
	if gotSecret != "hunter2" {
		t.Fatalf("internal secret header missing, got %q", gotSecret)
	}
	if len(videos) != 1 || videos[0] != "a.mp4" {
		t.Fatalf("unexpected videos: %v", videos)
	}
}

func TestGetDeviceLayout_404MeansNotFoundNotError(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.NotFound(w, r)
	}))
	defer server.Close()

	client := NewClient(server.URL, "")
	_, found, err := client.GetDeviceLayout(context.Background(), "dev-1")
	if err != nil {
		t.Fatalf("404 should not surface as error: %v", err)
	}
	if found {
		t.Fatal("expected found=false")
	}
}

func TestSyncGroup_404SurfacesAsNotFoundError(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.NotFound(w, r)
	}))
	defer server.Close()

	client := NewClient(server.URL, "")
	_, err := client.SyncGroup(context.Background(), "mall", "dev-1", DeviceLayout{LayoutMode: "single"})

	var nf *NotFoundError
	if !errors.As(err, &nf) {
		t.Fatalf("expected NotFoundError got %v", err)
	}
}

func TestSyncGroup_DecodesDevicesUpdated(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/v1/group/mall/sync-to-devices" {
			t.Errorf("unexpected path %s", r.URL.Path)
		}
		var req syncGroupRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			t.Errorf("decode request: %v", err)
		}
		if req.SourceMobileID != "dev-1" || req.LayoutMode != "single" {
			t.Errorf("unexpected request: %+v", req)
		}
		json.NewEncoder(w).Encode(syncGroupResponse{DevicesUpdated: 7})
	}))
	defer server.Close()

	client := NewClient(server.URL, "")
	updated, err := client.SyncGroup(context.Background(), "mall", "dev-1", DeviceLayout{LayoutMode: "single"})
	if err != nil {
		t.Fatalf("sync group: %v", err)
	}
	if updated != 7 {
		t.Fatalf("expected 7 got %d", updated)
	}
}

func TestClient_NonSuccessStatusIncludesBody(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
		w.Write([]byte(`{"error":"link store down"}`))
	}))
	defer server.Close()

	client := NewClient(server.URL, "")
	err := client.UpdateLinkSettings(context.Background(), 1, 2, nil)
	if err == nil {
		t.Fatal("expected error")
	}
	var nf *NotFoundError
	if errors.As(err, &nf) {
		t.Fatal("500 must not be classified as not-found")
	}
}
