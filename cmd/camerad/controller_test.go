package main

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"sync/atomic"
	"testing"
	"time"

	"github.com/video-system/go-camera-hal/internal/ffmpeg"
	"github.com/video-system/go-camera-hal/pkg/board"
	"github.com/video-system/go-camera-hal/pkg/camera"
	"github.com/video-system/go-camera-hal/pkg/display"
	"github.com/video-system/go-camera-hal/pkg/driver"
	"github.com/video-system/go-camera-hal/pkg/driver/sim"
	"github.com/video-system/go-camera-hal/pkg/platform"
)

func newTestController(t *testing.T, ff *ffmpeg.FFmpeg, pc *platform.Client) (*controller, *camera.Config) {
	t.Helper()
	profile, err := board.Lookup("qsd8250")
	if err != nil {
		t.Fatal(err)
	}
	session, err := camera.Open(camera.Options{}, sim.New(driver.Options{FrameInterval: 2 * time.Millisecond}), profile)
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(session.Release)
	if err := session.SetPreviewWindow(display.NewCompositor(display.CompositorConfig{})); err != nil {
		t.Fatal(err)
	}

	dir := t.TempDir()
	cfg := &camera.Config{
		Snapshot:  camera.SnapshotConfig{OutputDir: filepath.Join(dir, "pictures")},
		Recording: camera.RecordingConfig{OutputDir: filepath.Join(dir, "recordings"), Codec: "h264", Preset: "ultrafast", Bitrate: 1000},
	}
	ctrl, err := newController(context.Background(), controllerConfig{
		Config:   cfg,
		Session:  session,
		FFmpeg:   ff,
		Platform: pc,
	})
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(ctrl.Close)
	return ctrl, cfg
}

func waitFor(t *testing.T, timeout time.Duration, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(timeout)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(10 * time.Millisecond)
	}
	t.Fatal("condition not met")
}

func TestPictureSavedAndUploaded(t *testing.T) {
	var uploads atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		uploads.Add(1)
		w.Write([]byte(`{"status":"ok"}`))
	}))
	defer srv.Close()

	ctrl, cfg := newTestController(t, nil, platform.New(platform.Config{URL: srv.URL}))
	if err := ctrl.StartPreview(); err != nil {
		t.Fatal(err)
	}
	if err := ctrl.TakePicture(); err != nil {
		t.Fatal(err)
	}

	waitFor(t, 5*time.Second, func() bool {
		files, _ := filepath.Glob(filepath.Join(cfg.Snapshot.OutputDir, "*.jpg"))
		return len(files) == 1
	})
	waitFor(t, 5*time.Second, func() bool { return uploads.Load() == 1 })

	waitFor(t, 2*time.Second, func() bool { return ctrl.LatestPicture() != nil })
	pic := ctrl.LatestPicture()
	if _, err := os.Stat(filepath.Join(cfg.Snapshot.OutputDir, pic.ID+".jpg")); err != nil {
		t.Errorf("picture %s not saved under its id: %v", pic.ID, err)
	}
}

func TestRecordingWithoutEncoder(t *testing.T) {
	ctrl, _ := newTestController(t, nil, nil)
	if err := ctrl.StartPreview(); err != nil {
		t.Fatal(err)
	}
	if err := ctrl.StartRecording(); !errors.Is(err, camera.ErrNoInit) {
		t.Fatalf("start recording: %v", err)
	}
	if err := ctrl.StopRecording(); err != nil {
		t.Errorf("stop recording: %v", err)
	}
}

func TestRecording(t *testing.T) {
	ff, err := ffmpeg.New()
	if err != nil {
		t.Skipf("FFmpeg not found: %v", err)
	}
	ctrl, cfg := newTestController(t, ff, nil)

	if err := ctrl.StartRecording(); !errors.Is(err, camera.ErrInvalidOperation) {
		t.Fatalf("recording without preview: %v", err)
	}
	if err := ctrl.StartPreview(); err != nil {
		t.Fatal(err)
	}
	if err := ctrl.StartRecording(); err != nil {
		t.Fatalf("start recording: %v", err)
	}
	waitFor(t, 5*time.Second, func() bool {
		st := ctrl.Status().(controllerStatus)
		return st.Recording != nil && st.Recording.Stats.Written >= 10
	})
	if err := ctrl.StopRecording(); err != nil {
		t.Fatalf("stop recording: %v", err)
	}

	files, _ := filepath.Glob(filepath.Join(cfg.Recording.OutputDir, "*.mp4"))
	if len(files) != 1 {
		t.Fatalf("recordings %v", files)
	}
	st := ctrl.Status().(controllerStatus)
	if st.Recording != nil || st.Camera.Recording {
		t.Errorf("still recording: %+v", st)
	}
	if st.Camera.VideoFrames != st.Camera.VideoReleased {
		t.Errorf("delivered %d video frames, released %d", st.Camera.VideoFrames, st.Camera.VideoReleased)
	}
	if st.LastRecording == nil || st.LastRecording.Frames < 10 || st.LastRecording.DurationSeconds <= 0 {
		t.Errorf("last recording %+v", st.LastRecording)
	}
}
