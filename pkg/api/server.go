package api

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/video-system/go-camera-hal/pkg/camera"
	"github.com/video-system/go-camera-hal/pkg/params"
)

// Camera is the control surface the API drives
type Camera interface {
	Status() any
	GetParameters() *params.Parameters
	SetParameters(p *params.Parameters) error
	StartPreview() error
	StopPreview()
	StartRecording() error
	StopRecording() error
	AutoFocus() error
	CancelAutoFocus() error
	TakePicture() error
	LatestPicture() *camera.Picture
	SendCommand(cmd camera.Command, arg1, arg2 int32) error
	Dump(w io.Writer) error
}

// ServerConfig holds API server configuration
type ServerConfig struct {
	Host   string
	Port   int
	Camera Camera
}

// Server is the HTTP API server
type Server struct {
	cfg    ServerConfig
	server *http.Server
}

// NewServer creates a new API server
func NewServer(cfg ServerConfig) *Server {
	s := &Server{cfg: cfg}

	s.server = &http.Server{
		Addr:    fmt.Sprintf("%s:%d", cfg.Host, cfg.Port),
		Handler: s.Handler(),
	}

	return s
}

// Handler returns the API routes
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("/health", s.handleHealth)
	mux.HandleFunc("/api/v1/status", s.handleStatus)
	mux.HandleFunc("/api/v1/parameters", s.handleParameters)
	mux.HandleFunc("/api/v1/preview/start", s.post(s.cfg.Camera.StartPreview))
	mux.HandleFunc("/api/v1/preview/stop", s.post(func() error { s.cfg.Camera.StopPreview(); return nil }))
	mux.HandleFunc("/api/v1/recording/start", s.post(s.cfg.Camera.StartRecording))
	mux.HandleFunc("/api/v1/recording/stop", s.post(s.cfg.Camera.StopRecording))
	mux.HandleFunc("/api/v1/focus", s.handleFocus)
	mux.HandleFunc("/api/v1/picture", s.post(s.cfg.Camera.TakePicture))
	mux.HandleFunc("/api/v1/picture/latest", s.handleLatestPicture)
	mux.HandleFunc("/api/v1/command", s.handleCommand)
	mux.HandleFunc("/api/v1/dump", s.handleDump)
	return mux
}

// Start starts the API server
func (s *Server) Start() error {
	log.Printf("API server starting on %s", s.server.Addr)
	return s.server.ListenAndServe()
}

// Stop stops the API server
func (s *Server) Stop() {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	s.server.Shutdown(ctx)
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{
		"status":  "healthy",
		"service": "go-camera-hal",
	})
}

func (s *Server) handleStatus(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}
	writeJSON(w, http.StatusOK, s.cfg.Camera.Status())
}

// handleParameters returns the parameters as a JSON object, or the
// flattened string for text/plain. POST merges the given keys over the
// current set; a text/plain body replaces it.
func (s *Server) handleParameters(w http.ResponseWriter, r *http.Request) {
	plain := strings.HasPrefix(r.Header.Get("Content-Type"), "text/plain") ||
		strings.HasPrefix(r.Header.Get("Accept"), "text/plain")

	switch r.Method {
	case http.MethodGet:
	case http.MethodPost:
		var p *params.Parameters
		if strings.HasPrefix(r.Header.Get("Content-Type"), "text/plain") {
			body, err := io.ReadAll(io.LimitReader(r.Body, 1<<20))
			if err != nil {
				http.Error(w, err.Error(), http.StatusBadRequest)
				return
			}
			p = params.Unflatten(strings.TrimSpace(string(body)))
		} else {
			var req map[string]string
			if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
				http.Error(w, err.Error(), http.StatusBadRequest)
				return
			}
			p = s.cfg.Camera.GetParameters()
			p.Merge(params.FromMap(req))
		}
		if err := s.cfg.Camera.SetParameters(p); err != nil {
			writeError(w, err)
			return
		}
	default:
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	p := s.cfg.Camera.GetParameters()
	if plain {
		w.Header().Set("Content-Type", "text/plain; charset=utf-8")
		io.WriteString(w, p.Flatten())
		return
	}
	writeJSON(w, http.StatusOK, p.Map())
}

func (s *Server) handleFocus(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}
	var req struct {
		Cancel bool `json:"cancel"`
	}
	if r.ContentLength != 0 {
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil && !errors.Is(err, io.EOF) {
			http.Error(w, err.Error(), http.StatusBadRequest)
			return
		}
	}
	op := s.cfg.Camera.AutoFocus
	if req.Cancel {
		op = s.cfg.Camera.CancelAutoFocus
	}
	if err := op(); err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusAccepted, map[string]string{"status": "ok"})
}

func (s *Server) handleLatestPicture(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}
	pic := s.cfg.Camera.LatestPicture()
	if pic == nil || len(pic.Data) == 0 {
		http.Error(w, "no picture taken", http.StatusNotFound)
		return
	}
	w.Header().Set("Content-Type", "image/jpeg")
	w.Header().Set("Content-Length", strconv.Itoa(len(pic.Data)))
	w.Header().Set("X-Picture-Id", pic.ID)
	w.Header().Set("Last-Modified", pic.Timestamp.UTC().Format(http.TimeFormat))
	w.Write(pic.Data)
}

func (s *Server) handleCommand(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}
	var req struct {
		Command int32 `json:"command"`
		Arg1    int32 `json:"arg1"`
		Arg2    int32 `json:"arg2"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	cmd := camera.Command(req.Command)
	if err := s.cfg.Camera.SendCommand(cmd, req.Arg1, req.Arg2); err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok", "command": cmd.String()})
}

func (s *Server) handleDump(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}
	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	if err := s.cfg.Camera.Dump(w); err != nil {
		log.Printf("dump failed: %v", err)
	}
}

// post adapts a no-argument camera operation into a POST handler
func (s *Server) post(op func() error) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost {
			http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
			return
		}
		if err := op(); err != nil {
			writeError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
	}
}

// httpStatus maps a camera status code onto an HTTP status
func httpStatus(code int32) int {
	switch code {
	case camera.StatusBadValue:
		return http.StatusBadRequest
	case camera.StatusInvalidOperation:
		return http.StatusConflict
	case camera.StatusNoInit:
		return http.StatusServiceUnavailable
	case camera.StatusNoMemory:
		return http.StatusInsufficientStorage
	}
	return http.StatusInternalServerError
}

func writeError(w http.ResponseWriter, err error) {
	code := camera.Status(err)
	writeJSON(w, httpStatus(code), map[string]any{
		"error":  err.Error(),
		"status": code,
	})
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}
