package api

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/video-system/go-camera-hal/pkg/camera"
	"github.com/video-system/go-camera-hal/pkg/params"
)

type fakeCamera struct {
	mu        sync.Mutex
	p         *params.Parameters
	previewOn bool
	recording bool
	focusing  bool
	picture   *camera.Picture
	commands  []camera.Command
	failWith  error
}

func newFakeCamera() *fakeCamera {
	p := params.New()
	p.Set("preview-size", "640x480")
	p.Set("effect", "none")
	return &fakeCamera{p: p}
}

func (c *fakeCamera) Status() any {
	c.mu.Lock()
	defer c.mu.Unlock()
	return map[string]bool{"preview": c.previewOn, "recording": c.recording}
}

func (c *fakeCamera) GetParameters() *params.Parameters {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.p.Clone()
}

func (c *fakeCamera) SetParameters(p *params.Parameters) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if v := p.Get("effect"); v != "none" && v != "mono" {
		return fmt.Errorf("effect %q: %w", v, camera.ErrBadValue)
	}
	c.p = p.Clone()
	return nil
}

func (c *fakeCamera) StartPreview() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.failWith != nil {
		return c.failWith
	}
	c.previewOn = true
	return nil
}

func (c *fakeCamera) StopPreview() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.previewOn = false
}

func (c *fakeCamera) StartRecording() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if !c.previewOn {
		return camera.ErrInvalidOperation
	}
	c.recording = true
	return nil
}

func (c *fakeCamera) StopRecording() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.recording = false
	return nil
}

func (c *fakeCamera) AutoFocus() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.focusing = true
	return nil
}

func (c *fakeCamera) CancelAutoFocus() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.focusing = false
	return nil
}

func (c *fakeCamera) TakePicture() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	data := []byte{0xff, 0xd8, 0x01, 0xff, 0xd9}
	c.picture = &camera.Picture{
		ID:        "pic-1",
		Size:      params.Size{Width: 2, Height: 2},
		Bytes:     len(data),
		Timestamp: time.Unix(1700000000, 0),
		Data:      data,
	}
	return nil
}

func (c *fakeCamera) LatestPicture() *camera.Picture {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.picture
}

func (c *fakeCamera) SendCommand(cmd camera.Command, arg1, arg2 int32) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if cmd != camera.CmdStartSmoothZoom && cmd != camera.CmdStopSmoothZoom {
		return camera.ErrBadValue
	}
	c.commands = append(c.commands, cmd)
	return nil
}

func (c *fakeCamera) Dump(w io.Writer) error {
	_, err := io.WriteString(w, "camera dump\n")
	return err
}

func newTestServer(t *testing.T) (*fakeCamera, *httptest.Server) {
	t.Helper()
	cam := newFakeCamera()
	srv := httptest.NewServer(NewServer(ServerConfig{Camera: cam}).Handler())
	t.Cleanup(srv.Close)
	return cam, srv
}

func post(t *testing.T, url, contentType, body string) *http.Response {
	t.Helper()
	resp, err := http.Post(url, contentType, strings.NewReader(body))
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { resp.Body.Close() })
	return resp
}

func TestHealth(t *testing.T) {
	_, srv := newTestServer(t)
	resp, err := http.Get(srv.URL + "/health")
	if err != nil {
		t.Fatal(err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("status %d", resp.StatusCode)
	}
}

func TestPreviewAndRecording(t *testing.T) {
	cam, srv := newTestServer(t)

	if resp := post(t, srv.URL+"/api/v1/recording/start", "", ""); resp.StatusCode != http.StatusConflict {
		t.Errorf("recording without preview: status %d", resp.StatusCode)
	}
	if resp := post(t, srv.URL+"/api/v1/preview/start", "", ""); resp.StatusCode != http.StatusOK {
		t.Fatalf("preview start: status %d", resp.StatusCode)
	}
	if resp := post(t, srv.URL+"/api/v1/recording/start", "", ""); resp.StatusCode != http.StatusOK {
		t.Fatalf("recording start: status %d", resp.StatusCode)
	}

	resp, err := http.Get(srv.URL + "/api/v1/status")
	if err != nil {
		t.Fatal(err)
	}
	defer resp.Body.Close()
	var st map[string]bool
	if err := json.NewDecoder(resp.Body).Decode(&st); err != nil {
		t.Fatal(err)
	}
	if !st["preview"] || !st["recording"] {
		t.Errorf("status %v", st)
	}

	post(t, srv.URL+"/api/v1/recording/stop", "", "")
	post(t, srv.URL+"/api/v1/preview/stop", "", "")
	if cam.previewOn || cam.recording {
		t.Error("streams still running")
	}

	resp2, err := http.Get(srv.URL + "/api/v1/preview/start")
	if err != nil {
		t.Fatal(err)
	}
	resp2.Body.Close()
	if resp2.StatusCode != http.StatusMethodNotAllowed {
		t.Errorf("GET preview start: status %d", resp2.StatusCode)
	}
}

func TestErrorMapping(t *testing.T) {
	cam, srv := newTestServer(t)
	cam.failWith = camera.ErrNoInit

	resp := post(t, srv.URL+"/api/v1/preview/start", "", "")
	if resp.StatusCode != http.StatusServiceUnavailable {
		t.Fatalf("status %d", resp.StatusCode)
	}
	var body struct {
		Error  string `json:"error"`
		Status int32  `json:"status"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		t.Fatal(err)
	}
	if body.Status != camera.StatusNoInit {
		t.Errorf("camera status %d", body.Status)
	}
}

func TestParametersJSON(t *testing.T) {
	_, srv := newTestServer(t)

	resp := post(t, srv.URL+"/api/v1/parameters", "application/json", `{"effect":"mono"}`)
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("status %d", resp.StatusCode)
	}
	var got map[string]string
	if err := json.NewDecoder(resp.Body).Decode(&got); err != nil {
		t.Fatal(err)
	}
	if got["effect"] != "mono" || got["preview-size"] != "640x480" {
		t.Errorf("parameters %v", got)
	}

	resp = post(t, srv.URL+"/api/v1/parameters", "application/json", `{"effect":"negative"}`)
	if resp.StatusCode != http.StatusBadRequest {
		t.Errorf("bad effect: status %d", resp.StatusCode)
	}
	resp = post(t, srv.URL+"/api/v1/parameters", "application/json", `{`)
	if resp.StatusCode != http.StatusBadRequest {
		t.Errorf("malformed body: status %d", resp.StatusCode)
	}
}

func TestParametersFlattened(t *testing.T) {
	cam, srv := newTestServer(t)

	resp := post(t, srv.URL+"/api/v1/parameters", "text/plain", "effect=mono;preview-size=320x240\n")
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("status %d", resp.StatusCode)
	}
	body, _ := io.ReadAll(resp.Body)
	got := params.Unflatten(string(body))
	if got.Get("effect") != "mono" || got.Get("preview-size") != "320x240" {
		t.Errorf("flattened response %q", body)
	}
	if cam.GetParameters().Get("preview-size") != "320x240" {
		t.Error("parameters not applied")
	}
}

func TestPicture(t *testing.T) {
	_, srv := newTestServer(t)

	resp, err := http.Get(srv.URL + "/api/v1/picture/latest")
	if err != nil {
		t.Fatal(err)
	}
	resp.Body.Close()
	if resp.StatusCode != http.StatusNotFound {
		t.Errorf("no picture: status %d", resp.StatusCode)
	}

	post(t, srv.URL+"/api/v1/picture", "", "")
	resp, err = http.Get(srv.URL + "/api/v1/picture/latest")
	if err != nil {
		t.Fatal(err)
	}
	defer resp.Body.Close()
	if ct := resp.Header.Get("Content-Type"); ct != "image/jpeg" {
		t.Errorf("content type %q", ct)
	}
	if resp.Header.Get("X-Picture-Id") != "pic-1" {
		t.Errorf("picture id %q", resp.Header.Get("X-Picture-Id"))
	}
	data, _ := io.ReadAll(resp.Body)
	if !bytes.Equal(data, []byte{0xff, 0xd8, 0x01, 0xff, 0xd9}) {
		t.Errorf("picture %v", data)
	}
}

func TestFocus(t *testing.T) {
	cam, srv := newTestServer(t)

	if resp := post(t, srv.URL+"/api/v1/focus", "", ""); resp.StatusCode != http.StatusAccepted {
		t.Fatalf("focus: status %d", resp.StatusCode)
	}
	if !cam.focusing {
		t.Fatal("focus not started")
	}
	if resp := post(t, srv.URL+"/api/v1/focus", "application/json", `{"cancel":true}`); resp.StatusCode != http.StatusAccepted {
		t.Fatalf("cancel: status %d", resp.StatusCode)
	}
	if cam.focusing {
		t.Error("focus not cancelled")
	}
}

func TestCommand(t *testing.T) {
	cam, srv := newTestServer(t)

	resp := post(t, srv.URL+"/api/v1/command", "application/json", `{"command":1,"arg1":10}`)
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("status %d", resp.StatusCode)
	}
	var body map[string]string
	json.NewDecoder(resp.Body).Decode(&body)
	if body["command"] != "start-smooth-zoom" {
		t.Errorf("response %v", body)
	}
	if len(cam.commands) != 1 || cam.commands[0] != camera.CmdStartSmoothZoom {
		t.Errorf("commands %v", cam.commands)
	}

	if resp := post(t, srv.URL+"/api/v1/command", "application/json", `{"command":99}`); resp.StatusCode != http.StatusBadRequest {
		t.Errorf("unknown command: status %d", resp.StatusCode)
	}
}

func TestDump(t *testing.T) {
	_, srv := newTestServer(t)
	resp, err := http.Get(srv.URL + "/api/v1/dump")
	if err != nil {
		t.Fatal(err)
	}
	defer resp.Body.Close()
	body, _ := io.ReadAll(resp.Body)
	if string(body) != "camera dump\n" {
		t.Errorf("dump %q", body)
	}
}
