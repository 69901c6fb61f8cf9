package platform

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"os"
	"path/filepath"
	"time"
)

// ErrNotConfigured is returned by every call on a client without a URL
var ErrNotConfigured = errors.New("platform client not configured")

// Client is the media-platform API client
type Client struct {
	baseURL    string
	apiKey     string
	httpClient *http.Client
}

// Config holds platform client configuration
type Config struct {
	URL    string
	APIKey string
}

// PictureMetadata describes an uploaded still
type PictureMetadata struct {
	SessionID  string            `json:"session_id"`
	PictureID  string            `json:"picture_id"`
	Target     string            `json:"target"`
	Width      int               `json:"width"`
	Height     int               `json:"height"`
	TakenAt    int64             `json:"taken_at"`
	SizeBytes  int64             `json:"size_bytes,omitempty"`
	Parameters map[string]string `json:"parameters,omitempty"`
}

// RecordingMetadata describes an uploaded recording
type RecordingMetadata struct {
	SessionID       string  `json:"session_id"`
	Target          string  `json:"target"`
	Width           int     `json:"width"`
	Height          int     `json:"height"`
	StartTime       int64   `json:"start_time"`
	EndTime         int64   `json:"end_time"`
	DurationSeconds float64 `json:"duration_seconds"`
	Frames          int64   `json:"frames"`
	FileSizeBytes   int64   `json:"file_size_bytes,omitempty"`
}

// UploadResult represents the result of an upload
type UploadResult struct {
	Status   string `json:"status"`
	ID       string `json:"id"`
	FileName string `json:"file_name"`
	FileSize int64  `json:"file_size"`
	URL      string `json:"url,omitempty"`
}

// New creates a new platform client
func New(cfg Config) *Client {
	return &Client{
		baseURL: cfg.URL,
		apiKey:  cfg.APIKey,
		httpClient: &http.Client{
			Timeout: 5 * time.Minute, // recordings can be large
		},
	}
}

// IsConfigured returns true if the client is properly configured
func (c *Client) IsConfigured() bool {
	return c.baseURL != ""
}

// UploadPicture uploads an encoded still
func (c *Client) UploadPicture(ctx context.Context, jpeg []byte, metadata PictureMetadata) (*UploadResult, error) {
	if !c.IsConfigured() {
		return nil, ErrNotConfigured
	}
	metadata.SizeBytes = int64(len(jpeg))
	name := metadata.PictureID + ".jpg"
	return c.upload(ctx, "/api/v1/pictures/upload", metadata, name, bytes.NewReader(jpeg))
}

// UploadRecording uploads a finished recording file
func (c *Client) UploadRecording(ctx context.Context, filePath string, metadata RecordingMetadata) (*UploadResult, error) {
	if !c.IsConfigured() {
		return nil, ErrNotConfigured
	}

	file, err := os.Open(filePath)
	if err != nil {
		return nil, fmt.Errorf("open file: %w", err)
	}
	defer file.Close()

	fileInfo, err := file.Stat()
	if err != nil {
		return nil, fmt.Errorf("stat file: %w", err)
	}
	metadata.FileSizeBytes = fileInfo.Size()
	return c.upload(ctx, "/api/v1/recordings/upload", metadata, filepath.Base(filePath), file)
}

// upload posts a multipart form with a JSON metadata field and one file
func (c *Client) upload(ctx context.Context, path string, metadata any, fileName string, content io.Reader) (*UploadResult, error) {
	var buf bytes.Buffer
	writer := multipart.NewWriter(&buf)

	metadataJSON, err := json.Marshal(metadata)
	if err != nil {
		return nil, fmt.Errorf("marshal metadata: %w", err)
	}
	if err := writer.WriteField("metadata", string(metadataJSON)); err != nil {
		return nil, fmt.Errorf("write metadata field: %w", err)
	}

	part, err := writer.CreateFormFile("file", fileName)
	if err != nil {
		return nil, fmt.Errorf("create form file: %w", err)
	}
	if _, err := io.Copy(part, content); err != nil {
		return nil, fmt.Errorf("copy file to form: %w", err)
	}
	if err := writer.Close(); err != nil {
		return nil, fmt.Errorf("close multipart writer: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+path, &buf)
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Content-Type", writer.FormDataContentType())
	c.authorize(req)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("execute request: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("read response: %w", err)
	}
	if resp.StatusCode != http.StatusCreated && resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("upload failed (status %d): %s", resp.StatusCode, string(body))
	}

	var result UploadResult
	if err := json.Unmarshal(body, &result); err != nil {
		return nil, fmt.Errorf("parse response: %w", err)
	}
	return &result, nil
}

// CheckHealth checks if the platform is accessible
func (c *Client) CheckHealth(ctx context.Context) error {
	if !c.IsConfigured() {
		return ErrNotConfigured
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+"/health", nil)
	if err != nil {
		return fmt.Errorf("create request: %w", err)
	}
	c.authorize(req)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("execute request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("platform unhealthy (status %d)", resp.StatusCode)
	}
	return nil
}

func (c *Client) authorize(req *http.Request) {
	if c.apiKey != "" {
		req.Header.Set("Authorization", "Bearer "+c.apiKey)
	}
}
