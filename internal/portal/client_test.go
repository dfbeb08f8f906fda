package portal

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type recordedCall struct {
	action string
	form   map[string]string
	chunk  string
	key    string
}

type fakeCKAN struct {
	mu     sync.Mutex
	calls  []recordedCall
	failOn string
}

func (f *fakeCKAN) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	action := strings.TrimPrefix(r.URL.Path, "/api/action/")
	if err := r.ParseMultipartForm(1 << 20); err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	call := recordedCall{action: action, form: map[string]string{}, key: r.Header.Get(APIKeyHeader)}
	for k, v := range r.MultipartForm.Value {
		call.form[k] = v[0]
	}
	if fh, ok := r.MultipartForm.File["upload"]; ok {
		file, _ := fh[0].Open()
		b, _ := io.ReadAll(file)
		file.Close()
		call.chunk = string(b)
	}

	f.mu.Lock()
	f.calls = append(f.calls, call)
	f.mu.Unlock()

	w.Header().Set("Content-Type", "application/json")
	if action == f.failOn {
		w.WriteHeader(http.StatusForbidden)
		_ = json.NewEncoder(w).Encode(map[string]any{"success": false, "error": map[string]string{"message": "Access denied"}})
		return
	}
	result := map[string]any{}
	if action == ActionInitiate {
		result["id"] = "upload-42"
	}
	_ = json.NewEncoder(w).Encode(map[string]any{"success": true, "result": result})
}

func writeTemp(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "swamp_water_quality_data.csv")
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	return path
}

func TestUploadFile(t *testing.T) {
	ckan := &fakeCKAN{}
	srv := httptest.NewServer(ckan)
	defer srv.Close()

	c, err := New(Options{BaseURL: srv.URL + "/", APIKey: "secret", ChunkSize: 4})
	require.NoError(t, err)

	path := writeTemp(t, "abcdefghij")
	res, err := c.UploadFile(context.Background(), "res-1", path)
	require.NoError(t, err)

	assert.Equal(t, 3, res.Chunks)
	assert.Equal(t, int64(10), res.Size)
	assert.Equal(t, "upload-42", res.UploadID)

	require.Len(t, ckan.calls, 6)
	var actions []string
	for _, c := range ckan.calls {
		actions = append(actions, c.action)
		assert.Equal(t, "secret", c.key)
	}
	assert.Equal(t, []string{ActionInitiate, ActionUpload, ActionUpload, ActionUpload, ActionFinish, ActionPatch}, actions)

	assert.Equal(t, map[string]string{"id": "res-1", "name": "swamp_water_quality_data.csv", "size": "10"}, ckan.calls[0].form)
	assert.Equal(t, "abcd", ckan.calls[1].chunk)
	assert.Equal(t, "1", ckan.calls[1].form["partNumber"])
	assert.Equal(t, "upload-42", ckan.calls[1].form["uploadId"])
	assert.Equal(t, "ij", ckan.calls[3].chunk)
	assert.Equal(t, "3", ckan.calls[3].form["partNumber"])
	assert.Equal(t, "go-metadata", ckan.calls[4].form["save_action"])
	assert.Equal(t, "upload", ckan.calls[5].form["url_type"])
	assert.Equal(t, "swamp_water_quality_data.csv", ckan.calls[5].form["multipart_name"])
}

func TestUploadFile_Rejected(t *testing.T) {
	ckan := &fakeCKAN{failOn: ActionUpload}
	srv := httptest.NewServer(ckan)
	defer srv.Close()

	c, err := New(Options{BaseURL: srv.URL, ChunkSize: 4})
	require.NoError(t, err)

	_, err = c.UploadFile(context.Background(), "res-1", writeTemp(t, "abcdefghij"))
	require.ErrorIs(t, err, ErrPortalRejected)
	assert.Contains(t, err.Error(), "chunk 1/3")
	assert.Contains(t, err.Error(), "Access denied")
	assert.Len(t, ckan.calls, 2, "upload stops at the first rejected chunk")
}

func TestUploadFile_NonJSONReply(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "bad gateway", http.StatusBadGateway)
	}))
	defer srv.Close()

	c, err := New(Options{BaseURL: srv.URL})
	require.NoError(t, err)

	_, err = c.UploadFile(context.Background(), "res-1", writeTemp(t, "x"))
	require.ErrorIs(t, err, ErrPortalRejected)
	assert.Contains(t, err.Error(), "status 502")
}

func TestUploadFile_MissingFile(t *testing.T) {
	c, err := New(Options{BaseURL: "http://portal.invalid"})
	require.NoError(t, err)
	_, err = c.UploadFile(context.Background(), "res-1", filepath.Join(t.TempDir(), "nope.csv"))
	assert.ErrorIs(t, err, os.ErrNotExist)
}

func TestNew_RequiresURL(t *testing.T) {
	_, err := New(Options{BaseURL: "  "})
	assert.ErrorIs(t, err, ErrNotConfigured)
}
