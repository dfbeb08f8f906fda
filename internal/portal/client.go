// Package portal uploads exported files to the CKAN open data portal.
//
// Large files go through the cloudstorage multipart actions: initiate,
// one upload per chunk, finish, then a resource_patch that points the
// resource at the new upload. Every action replies with a JSON envelope and
// any reply without success=true aborts the upload.
package portal

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
	"strconv"
	"strings"
	"time"

	"github.com/JonMunkholm/swamp/internal/logging"
	"github.com/JonMunkholm/swamp/internal/metrics"
)

// DefaultChunkSize is the multipart chunk size (64 MiB).
const DefaultChunkSize = 64 << 20

// CKAN actions used by UploadFile.
const (
	ActionInitiate = "cloudstorage_initiate_multipart"
	ActionUpload   = "cloudstorage_upload_multipart"
	ActionFinish   = "cloudstorage_finish_multipart"
	ActionPatch    = "resource_patch"
)

// APIKeyHeader carries the portal API key.
const APIKeyHeader = "X-CKAN-API-Key"

var (
	// ErrPortalRejected is returned when an action reply lacks success=true.
	ErrPortalRejected = errors.New("portal rejected request")
	// ErrNotConfigured is returned when no portal URL is set.
	ErrNotConfigured = errors.New("portal not configured")
)

// Options configures a Client.
type Options struct {
	BaseURL    string
	APIKey     string
	ChunkSize  int64
	HTTPClient *http.Client
	Metrics    *metrics.Metrics
}

// Client talks to one CKAN instance.
type Client struct {
	base      string
	key       string
	chunkSize int64
	hc        *http.Client
	metrics   *metrics.Metrics
}

// New creates a Client. A zero ChunkSize uses DefaultChunkSize.
func New(opts Options) (*Client, error) {
	base := strings.TrimRight(strings.TrimSpace(opts.BaseURL), "/")
	if base == "" {
		return nil, ErrNotConfigured
	}
	c := &Client{
		base:      base,
		key:       opts.APIKey,
		chunkSize: opts.ChunkSize,
		hc:        opts.HTTPClient,
		metrics:   opts.Metrics,
	}
	if c.chunkSize <= 0 {
		c.chunkSize = DefaultChunkSize
	}
	if c.hc == nil {
		c.hc = &http.Client{Timeout: 10 * time.Minute}
	}
	return c, nil
}

// response is the CKAN action envelope.
type response struct {
	Success bool            `json:"success"`
	Result  json.RawMessage `json:"result"`
	Error   json.RawMessage `json:"error"`
}

// field is one multipart form field; file fields carry a filename.
type field struct {
	name     string
	value    string
	filename string
	data     []byte
}

// UploadResult summarises a completed upload.
type UploadResult struct {
	ResourceID string
	UploadID   string
	Size       int64
	Chunks     int
	Duration   time.Duration
}

// UploadFile replaces the content of resourceID with the file at path.
func (c *Client) UploadFile(ctx context.Context, resourceID, path string) (*UploadResult, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open upload: %w", err)
	}
	defer f.Close()

	info, err := f.Stat()
	if err != nil {
		return nil, fmt.Errorf("stat upload: %w", err)
	}
	name := filepath.Base(path)
	size := strconv.FormatInt(info.Size(), 10)
	chunks := int((info.Size() + c.chunkSize - 1) / c.chunkSize)

	logger := logging.WithFields(ctx, "resource_id", resourceID, "file", name)
	logger.Info("portal upload started", "bytes", info.Size(), "chunks", chunks)
	start := time.Now()

	init, err := c.do(ctx, ActionInitiate, []field{
		{name: "id", value: resourceID},
		{name: "name", value: name},
		{name: "size", value: size},
	})
	if err != nil {
		return nil, err
	}
	var upload struct {
		ID string `json:"id"`
	}
	if err := json.Unmarshal(init, &upload); err != nil || upload.ID == "" {
		return nil, fmt.Errorf("%w: %s returned no upload id", ErrPortalRejected, ActionInitiate)
	}

	buf := make([]byte, c.chunkSize)
	part := 0
	for {
		n, rerr := io.ReadFull(f, buf)
		if n > 0 {
			part++
			_, err := c.do(ctx, ActionUpload, []field{
				{name: "id", value: resourceID},
				{name: "uploadId", value: upload.ID},
				{name: "partNumber", value: strconv.Itoa(part)},
				{name: "upload", filename: name, data: buf[:n]},
			})
			if err != nil {
				return nil, fmt.Errorf("chunk %d/%d: %w", part, chunks, err)
			}
			c.metrics.ChunkUploaded(resourceID, n)
			logger.Info("chunk uploaded", "part", part, "of", chunks, "bytes", n)
		}
		if rerr == io.EOF || rerr == io.ErrUnexpectedEOF {
			break
		}
		if rerr != nil {
			return nil, fmt.Errorf("read upload: %w", rerr)
		}
	}

	if _, err := c.do(ctx, ActionFinish, []field{
		{name: "uploadId", value: upload.ID},
		{name: "id", value: resourceID},
		{name: "save_action", value: "go-metadata"},
	}); err != nil {
		return nil, err
	}

	if _, err := c.do(ctx, ActionPatch, []field{
		{name: "id", value: resourceID},
		{name: "multipart_name", value: name},
		{name: "url", value: name},
		{name: "size", value: size},
		{name: "url_type", value: "upload"},
	}); err != nil {
		return nil, err
	}

	res := &UploadResult{
		ResourceID: resourceID,
		UploadID:   upload.ID,
		Size:       info.Size(),
		Chunks:     part,
		Duration:   time.Since(start),
	}
	logger.Info("portal upload complete", "chunks", part, "duration_ms", res.Duration.Milliseconds())
	return res, nil
}

// do posts a multipart form to /api/action/{action} and returns the
// result member of a successful reply.
func (c *Client) do(ctx context.Context, action string, fields []field) (json.RawMessage, error) {
	var body bytes.Buffer
	mw := multipart.NewWriter(&body)
	for _, fd := range fields {
		if fd.filename == "" {
			if err := mw.WriteField(fd.name, fd.value); err != nil {
				return nil, fmt.Errorf("%s: encode form: %w", action, err)
			}
			continue
		}
		w, err := mw.CreateFormFile(fd.name, fd.filename)
		if err != nil {
			return nil, fmt.Errorf("%s: encode form: %w", action, err)
		}
		if _, err := w.Write(fd.data); err != nil {
			return nil, fmt.Errorf("%s: encode form: %w", action, err)
		}
	}
	if err := mw.Close(); err != nil {
		return nil, fmt.Errorf("%s: encode form: %w", action, err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.base+"/api/action/"+action, &body)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", action, err)
	}
	req.Header.Set("Content-Type", mw.FormDataContentType())
	if c.key != "" {
		req.Header.Set(APIKeyHeader, c.key)
	}

	resp, err := c.hc.Do(req)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", action, err)
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return nil, fmt.Errorf("%s: read reply: %w", action, err)
	}

	var r response
	if err := json.Unmarshal(raw, &r); err != nil {
		return nil, fmt.Errorf("%w: %s: status %d: %s", ErrPortalRejected, action, resp.StatusCode, snippet(raw))
	}
	if !r.Success {
		return nil, fmt.Errorf("%w: %s: status %d: %s", ErrPortalRejected, action, resp.StatusCode, snippet(r.Error))
	}
	return r.Result, nil
}

func snippet(b []byte) string {
	s := strings.TrimSpace(string(b))
	if len(s) > 200 {
		s = s[:200] + "..."
	}
	return s
}
