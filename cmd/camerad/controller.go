package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/video-system/go-camera-hal/internal/ffmpeg"
	"github.com/video-system/go-camera-hal/pkg/camera"
	"github.com/video-system/go-camera-hal/pkg/params"
	"github.com/video-system/go-camera-hal/pkg/platform"
)

type controllerConfig struct {
	Config   *camera.Config
	Session  *camera.Session
	FFmpeg   *ffmpeg.FFmpeg
	Platform *platform.Client
}

// controller binds a session to the recording and picture sinks and exposes
// it to the API
type controller struct {
	cfg      *camera.Config
	session  *camera.Session
	ff       *ffmpeg.FFmpeg
	platform *platform.Client
	ctx      context.Context

	mu        sync.Mutex
	rec       *ffmpeg.Recorder
	recStart  time.Time
	recSize   params.Size
	lastError string
	uploads   sync.WaitGroup

	lastRecording *platform.RecordingMetadata
}

// controllerStatus is the payload of the status endpoint
type controllerStatus struct {
	Camera        camera.SessionStatus        `json:"camera"`
	Recording     *recordingStatus            `json:"recording,omitempty"`
	LastRecording *platform.RecordingMetadata `json:"last_recording,omitempty"`
	LastError     string                      `json:"last_error,omitempty"`
}

type recordingStatus struct {
	Path      string               `json:"path"`
	StartedAt time.Time            `json:"started_at"`
	Stats     ffmpeg.RecorderStats `json:"stats"`
}

func newController(ctx context.Context, cfg controllerConfig) (*controller, error) {
	for _, dir := range []string{cfg.Config.Snapshot.OutputDir, cfg.Config.Recording.OutputDir} {
		if dir == "" {
			continue
		}
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("create %s: %w", dir, err)
		}
	}
	c := &controller{
		cfg:      cfg.Config,
		session:  cfg.Session,
		ff:       cfg.FFmpeg,
		platform: cfg.Platform,
		ctx:      ctx,
	}
	c.session.SetCallbacks(camera.Callbacks{
		Notify:        c.onNotify,
		Data:          c.onData,
		DataTimestamp: c.onVideoFrame,
	})
	c.session.EnableMsgType(camera.MsgError | camera.MsgShutter | camera.MsgFocus |
		camera.MsgZoom | camera.MsgCompressedImage)
	return c, nil
}

func (c *controller) onNotify(msg camera.MsgType, ext1, ext2 int32) {
	switch msg {
	case camera.MsgError:
		log.Printf("[camerad] camera error %d", ext1)
		c.mu.Lock()
		c.lastError = fmt.Sprintf("error %d at %s", ext1, time.Now().Format(time.RFC3339))
		c.mu.Unlock()
	case camera.MsgFocus:
		if ext1 != 0 {
			log.Printf("[camerad] focus locked")
		} else {
			log.Printf("[camerad] focus failed")
		}
	case camera.MsgZoom:
		log.Printf("[camerad] zoom %d (done=%v)", ext1, ext2 != 0)
	}
}

func (c *controller) onData(msg camera.MsgType, data []byte, index int, meta *camera.Metadata) {
	if msg != camera.MsgCompressedImage || len(data) == 0 {
		return
	}
	id := fmt.Sprintf("picture-%d", time.Now().UnixNano())
	if meta != nil && meta.PictureID != "" {
		id = meta.PictureID
	}
	jpeg := append([]byte(nil), data...)

	path := filepath.Join(c.cfg.Snapshot.OutputDir, id+".jpg")
	if err := os.WriteFile(path, jpeg, 0o644); err != nil {
		log.Printf("[camerad] Warning: save picture: %v", err)
	} else {
		log.Printf("[camerad] picture saved to %s (%d bytes)", path, len(jpeg))
	}

	if c.platform == nil {
		return
	}
	p := c.session.GetParameters()
	size, _ := p.Size(params.KeyPictureSize)
	md := platform.PictureMetadata{
		SessionID:  c.session.ID(),
		PictureID:  id,
		Target:     c.session.Profile().Target.String(),
		Width:      size.Width,
		Height:     size.Height,
		TakenAt:    time.Now().Unix(),
		Parameters: p.Map(),
	}
	c.uploads.Add(1)
	go func() {
		defer c.uploads.Done()
		if _, err := c.platform.UploadPicture(c.ctx, jpeg, md); err != nil {
			log.Printf("[camerad] Warning: upload picture %s: %v", id, err)
		}
	}()
}

// onVideoFrame hands the slot to the recorder without copying; the recorder
// releases it once written or dropped
func (c *controller) onVideoFrame(ts int64, msg camera.MsgType, data []byte, index int) {
	c.mu.Lock()
	rec := c.rec
	c.mu.Unlock()
	release := func() { c.session.ReleaseRecordingFrame(index) }
	if rec == nil {
		release()
		return
	}
	rec.Submit(ffmpeg.Frame{Data: data, Timestamp: ts, Release: release})
}

func (c *controller) Status() any {
	st := controllerStatus{Camera: c.session.Status()}
	c.mu.Lock()
	defer c.mu.Unlock()
	st.LastError = c.lastError
	st.LastRecording = c.lastRecording
	if c.rec != nil {
		st.Recording = &recordingStatus{
			Path:      c.rec.Path(),
			StartedAt: c.recStart,
			Stats:     c.rec.Stats(),
		}
	}
	return st
}

func (c *controller) GetParameters() *params.Parameters { return c.session.GetParameters() }

func (c *controller) SetParameters(p *params.Parameters) error { return c.session.SetParameters(p) }

func (c *controller) StartPreview() error { return c.session.StartPreview() }

func (c *controller) StopPreview() {
	c.StopRecording()
	c.session.StopPreview()
}

// StartRecording starts an encoder at the video size and then the session's
// video stream
func (c *controller) StartRecording() error {
	if c.ff == nil {
		return fmt.Errorf("%w: ffmpeg not available", camera.ErrNoInit)
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.rec != nil {
		return nil
	}
	if !c.session.PreviewEnabled() {
		return fmt.Errorf("%w: preview not running", camera.ErrInvalidOperation)
	}

	p := c.session.GetParameters()
	size, ok := p.Size(params.KeyVideoSize)
	if !ok {
		size, _ = p.Size(params.KeyPreviewSize)
	}
	fps := p.GetInt(params.KeyPreviewFrameRate)
	start := time.Now()
	out := filepath.Join(c.cfg.Recording.OutputDir, fmt.Sprintf("recording-%s.mp4", start.Format("20060102-150405")))

	rec, err := c.ff.StartRecorder(c.ctx, ffmpeg.EncoderConfig{
		Width:      size.Width,
		Height:     size.Height,
		Framerate:  fps,
		Codec:      c.cfg.Recording.Codec,
		Preset:     c.cfg.Recording.Preset,
		Bitrate:    c.cfg.Recording.Bitrate,
		OutputPath: out,
	}, 0)
	if err != nil {
		return fmt.Errorf("start encoder: %w", err)
	}
	c.rec = rec
	c.recStart = start
	c.recSize = size

	c.session.EnableMsgType(camera.MsgVideoFrame)
	if err := c.session.StartRecording(); err != nil {
		c.session.DisableMsgType(camera.MsgVideoFrame)
		c.rec = nil
		rec.Stop()
		os.Remove(out)
		return err
	}
	return nil
}

// StopRecording closes the recorder before the session's video stream so
// every slot the encoder still holds is written and released while its pool
// is alive
func (c *controller) StopRecording() error {
	c.mu.Lock()
	rec, start, size := c.rec, c.recStart, c.recSize
	c.rec = nil
	c.mu.Unlock()
	if rec == nil {
		return nil
	}

	err := rec.Stop()
	c.session.StopRecording()
	c.session.DisableMsgType(camera.MsgVideoFrame)

	if err != nil {
		return err
	}
	end := time.Now()
	md := platform.RecordingMetadata{
		SessionID:       c.session.ID(),
		Target:          c.session.Profile().Target.String(),
		Width:           size.Width,
		Height:          size.Height,
		StartTime:       start.Unix(),
		EndTime:         end.Unix(),
		DurationSeconds: end.Sub(start).Seconds(),
		Frames:          rec.Stats().Written,
	}
	if info, ierr := c.ff.GetVideoInfo(c.ctx, rec.Path()); ierr != nil {
		log.Printf("[camerad] Warning: read recording info: %v", ierr)
	} else {
		log.Printf("[camerad] recording %s: %s %s %.1fs %d frames @ %.2f fps",
			rec.Path(), info.Codec, info.Resolution(), info.Duration, info.Frames, info.Framerate)
		if info.Duration > 0 {
			md.DurationSeconds = info.Duration
		}
		if info.Frames > 0 {
			md.Frames = info.Frames
		}
	}
	c.mu.Lock()
	c.lastRecording = &md
	c.mu.Unlock()

	if c.platform != nil {
		c.uploads.Add(1)
		go func() {
			defer c.uploads.Done()
			if _, err := c.platform.UploadRecording(c.ctx, rec.Path(), md); err != nil {
				log.Printf("[camerad] Warning: upload recording: %v", err)
			}
		}()
	}
	return nil
}

func (c *controller) AutoFocus() error { return c.session.AutoFocus() }

func (c *controller) CancelAutoFocus() error { return c.session.CancelAutoFocus() }

func (c *controller) TakePicture() error { return c.session.TakePicture() }

func (c *controller) LatestPicture() *camera.Picture { return c.session.LatestPicture() }

func (c *controller) SendCommand(cmd camera.Command, arg1, arg2 int32) error {
	return c.session.SendCommand(cmd, arg1, arg2)
}

func (c *controller) Dump(w io.Writer) error {
	if err := c.session.Dump(w); err != nil {
		return err
	}
	c.mu.Lock()
	rec := c.rec
	c.mu.Unlock()
	if rec != nil {
		st := rec.Stats()
		_, err := fmt.Fprintf(w, "recorder: %s written=%d dropped=%d bytes=%d\n", rec.Path(), st.Written, st.Dropped, st.Bytes)
		return err
	}
	return nil
}

// Close stops recording and waits for pending uploads
func (c *controller) Close() {
	if err := c.StopRecording(); err != nil && !errors.Is(err, context.Canceled) {
		log.Printf("[camerad] Warning: stop recording: %v", err)
	}
	c.uploads.Wait()
}
