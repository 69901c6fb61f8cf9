package platform

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"
)

func TestUploadPicture(t *testing.T) {
	var meta PictureMetadata
	var got []byte
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/api/v1/pictures/upload" || r.Method != http.MethodPost {
			http.NotFound(w, r)
			return
		}
		if r.Header.Get("Authorization") != "Bearer secret" {
			http.Error(w, "unauthorized", http.StatusUnauthorized)
			return
		}
		if err := json.Unmarshal([]byte(r.FormValue("metadata")), &meta); err != nil {
			http.Error(w, err.Error(), http.StatusBadRequest)
			return
		}
		f, hdr, err := r.FormFile("file")
		if err != nil {
			http.Error(w, err.Error(), http.StatusBadRequest)
			return
		}
		defer f.Close()
		got, _ = io.ReadAll(f)
		w.WriteHeader(http.StatusCreated)
		json.NewEncoder(w).Encode(UploadResult{Status: "ok", ID: meta.PictureID, FileName: hdr.Filename, FileSize: int64(len(got))})
	}))
	defer srv.Close()

	c := New(Config{URL: srv.URL, APIKey: "secret"})
	jpeg := []byte{0xff, 0xd8, 0xff, 0xd9}
	res, err := c.UploadPicture(context.Background(), jpeg, PictureMetadata{PictureID: "p1", Width: 640, Height: 480})
	if err != nil {
		t.Fatal(err)
	}
	if res.FileName != "p1.jpg" || res.FileSize != 4 {
		t.Errorf("result %+v", res)
	}
	if meta.SizeBytes != 4 || meta.Width != 640 {
		t.Errorf("metadata %+v", meta)
	}
	if string(got) != string(jpeg) {
		t.Errorf("uploaded %v", got)
	}
}

func TestUploadRecording(t *testing.T) {
	var meta RecordingMetadata
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/api/v1/recordings/upload" {
			http.NotFound(w, r)
			return
		}
		json.Unmarshal([]byte(r.FormValue("metadata")), &meta)
		json.NewEncoder(w).Encode(UploadResult{Status: "ok"})
	}))
	defer srv.Close()

	path := filepath.Join(t.TempDir(), "rec.mp4")
	if err := os.WriteFile(path, make([]byte, 100), 0o644); err != nil {
		t.Fatal(err)
	}
	c := New(Config{URL: srv.URL})
	if _, err := c.UploadRecording(context.Background(), path, RecordingMetadata{Frames: 30}); err != nil {
		t.Fatal(err)
	}
	if meta.FileSizeBytes != 100 || meta.Frames != 30 {
		t.Errorf("metadata %+v", meta)
	}

	if _, err := c.UploadRecording(context.Background(), filepath.Join(t.TempDir(), "missing.mp4"), RecordingMetadata{}); err == nil {
		t.Error("missing file uploaded")
	}
}

func TestUploadFailureStatus(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "disk full", http.StatusInsufficientStorage)
	}))
	defer srv.Close()

	c := New(Config{URL: srv.URL})
	if _, err := c.UploadPicture(context.Background(), []byte{1}, PictureMetadata{PictureID: "x"}); err == nil {
		t.Error("failure status accepted")
	}
	if err := c.CheckHealth(context.Background()); err == nil {
		t.Error("unhealthy platform reported healthy")
	}
}

func TestCheckHealth(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/health" {
			http.NotFound(w, r)
		}
	}))
	defer srv.Close()

	if err := New(Config{URL: srv.URL}).CheckHealth(context.Background()); err != nil {
		t.Fatal(err)
	}
}

func TestNotConfigured(t *testing.T) {
	c := New(Config{})
	if c.IsConfigured() {
		t.Fatal("empty client configured")
	}
	if _, err := c.UploadPicture(context.Background(), nil, PictureMetadata{}); !errors.Is(err, ErrNotConfigured) {
		t.Errorf("upload: %v", err)
	}
	if err := c.CheckHealth(context.Background()); !errors.Is(err, ErrNotConfigured) {
		t.Errorf("health: %v", err)
	}
}
