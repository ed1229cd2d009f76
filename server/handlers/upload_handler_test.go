package handlers

import (
	"bytes"
	"encoding/json"
	"io/fs"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"sync"
	"testing"

	"github.com/gin-gonic/gin"

	"github.com/ChIIChI1230/screenshot/server/archive"
)

func newTestRouter(t *testing.T) (*gin.Engine, string) {
	t.Helper()
	gin.SetMode(gin.TestMode)

	storageDir := t.TempDir()
	arch, err := archive.NewArchive(storageDir, nil)
	if err != nil {
		t.Fatalf("Failed to create archive: %v", err)
	}

	db, err := archive.NewInMemoryDB()
	if err != nil {
		t.Fatalf("Failed to create database: %v", err)
	}
	t.Cleanup(func() { db.Close() })

	records, err := archive.NewSQLiteRecordRepository(db)
	if err != nil {
		t.Fatalf("Failed to create repository: %v", err)
	}

	handler := NewUploadHandler(nil, arch, records)

	router := gin.New()
	router.POST("/upload", handler.Upload)
	router.GET("/uploads", handler.ListUploads)
	return router, storageDir
}

// multipartUpload builds a POST /upload request. Empty field values are
// omitted from the form.
func multipartUpload(t *testing.T, fileField string, data []byte, timestamp, source string) *http.Request {
	t.Helper()

	var buf bytes.Buffer
	writer := multipart.NewWriter(&buf)

	if timestamp != "" {
		writer.WriteField("timestamp", timestamp)
	}
	if source != "" {
		writer.WriteField("source", source)
	}
	if fileField != "" {
		part, err := writer.CreateFormFile(fileField, "shot.jpg")
		if err != nil {
			t.Fatalf("CreateFormFile failed: %v", err)
		}
		part.Write(data)
	}
	writer.Close()

	req := httptest.NewRequest(http.MethodPost, "/upload", &buf)
	req.Header.Set("Content-Type", writer.FormDataContentType())
	return req
}

func storedFiles(t *testing.T, root string) []string {
	t.Helper()

	var files []string
	err := filepath.WalkDir(root, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if !d.IsDir() {
			files = append(files, path)
		}
		return nil
	})
	if err != nil {
		t.Fatalf("WalkDir failed: %v", err)
	}
	return files
}

func TestUpload_Success(t *testing.T) {
	router, storageDir := newTestRouter(t)
	payload := []byte{0xff, 0xd8, 0xff, 0xe0, 0x01, 0x02}

	w := httptest.NewRecorder()
	router.ServeHTTP(w, multipartUpload(t, "file", payload, "2024-01-15T09:30:05Z", "myhost"))

	if w.Code != http.StatusOK {
		t.Fatalf("Expected 200, got %d: %s", w.Code, w.Body.String())
	}

	var ack struct {
		Status string `json:"status"`
		Path   string `json:"path"`
	}
	if err := json.Unmarshal(w.Body.Bytes(), &ack); err != nil {
		t.Fatalf("Failed to parse response: %v", err)
	}
	if ack.Status != "ok" {
		t.Errorf("Expected status ok, got %q", ack.Status)
	}
	if ack.Path == "" {
		t.Fatal("Expected a stored path in the ack")
	}

	// byte-for-byte round trip
	stored, err := os.ReadFile(filepath.Join(storageDir, filepath.FromSlash(ack.Path)))
	if err != nil {
		t.Fatalf("Stored file missing: %v", err)
	}
	if !bytes.Equal(stored, payload) {
		t.Error("Stored bytes differ from the uploaded bytes")
	}
}

func TestUpload_MissingFileField(t *testing.T) {
	router, storageDir := newTestRouter(t)

	w := httptest.NewRecorder()
	router.ServeHTTP(w, multipartUpload(t, "", nil, "2024-01-15T09:30:05Z", "myhost"))

	if w.Code != http.StatusBadRequest {
		t.Fatalf("Expected 400, got %d", w.Code)
	}

	var resp struct {
		Status  string `json:"status"`
		Message string `json:"message"`
	}
	if err := json.Unmarshal(w.Body.Bytes(), &resp); err != nil {
		t.Fatalf("Failed to parse response: %v", err)
	}
	if resp.Status != "error" {
		t.Errorf("Expected status error, got %q", resp.Status)
	}
	if resp.Message == "" {
		t.Error("Expected a human-readable message")
	}

	// storage must be untouched
	if files := storedFiles(t, storageDir); len(files) != 0 {
		t.Errorf("Expected an empty storage dir, found %v", files)
	}
}

func TestUpload_NoMetadataFallsBack(t *testing.T) {
	router, storageDir := newTestRouter(t)

	w := httptest.NewRecorder()
	router.ServeHTTP(w, multipartUpload(t, "file", []byte("x"), "", ""))

	if w.Code != http.StatusOK {
		t.Fatalf("Expected 200, got %d: %s", w.Code, w.Body.String())
	}

	files := storedFiles(t, storageDir)
	if len(files) != 1 {
		t.Fatalf("Expected 1 stored file, got %d", len(files))
	}
	name := filepath.Base(files[0])
	if !bytes.Contains([]byte(name), []byte("unknown")) {
		t.Errorf("Expected the source to default to unknown, got %q", name)
	}
}

func TestUpload_ConcurrentIdenticalMetadata(t *testing.T) {
	router, storageDir := newTestRouter(t)

	const uploads = 6
	var wg sync.WaitGroup
	codes := make([]int, uploads)
	for i := 0; i < uploads; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			w := httptest.NewRecorder()
			router.ServeHTTP(w, multipartUpload(t, "file", []byte("same"), "2024-01-15T09:30:05Z", "samehost"))
			codes[i] = w.Code
		}(i)
	}
	wg.Wait()

	for i, code := range codes {
		if code != http.StatusOK {
			t.Errorf("Upload %d: expected 200, got %d", i, code)
		}
	}
	if files := storedFiles(t, storageDir); len(files) != uploads {
		t.Errorf("Expected %d distinct files, got %d", uploads, len(files))
	}
}

func TestListUploads(t *testing.T) {
	router, _ := newTestRouter(t)

	for _, source := range []string{"alpha", "beta"} {
		w := httptest.NewRecorder()
		router.ServeHTTP(w, multipartUpload(t, "file", []byte("x"), "2024-01-15T09:30:05Z", source))
		if w.Code != http.StatusOK {
			t.Fatalf("Upload for %s failed: %d", source, w.Code)
		}
	}

	w := httptest.NewRecorder()
	router.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/uploads", nil))
	if w.Code != http.StatusOK {
		t.Fatalf("Expected 200, got %d", w.Code)
	}

	var resp struct {
		Status  string `json:"status"`
		Uploads []struct {
			Path   string `json:"path"`
			Source string `json:"source"`
		} `json:"uploads"`
	}
	if err := json.Unmarshal(w.Body.Bytes(), &resp); err != nil {
		t.Fatalf("Failed to parse response: %v", err)
	}
	if len(resp.Uploads) != 2 {
		t.Fatalf("Expected 2 uploads, got %d", len(resp.Uploads))
	}

	// filter by source
	w = httptest.NewRecorder()
	router.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/uploads?source=alpha", nil))
	if err := json.Unmarshal(w.Body.Bytes(), &resp); err != nil {
		t.Fatalf("Failed to parse response: %v", err)
	}
	if len(resp.Uploads) != 1 || resp.Uploads[0].Source != "alpha" {
		t.Errorf("Expected exactly the alpha upload, got %+v", resp.Uploads)
	}
}

func TestListUploads_InvalidLimit(t *testing.T) {
	router, _ := newTestRouter(t)

	w := httptest.NewRecorder()
	router.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/uploads?limit=bogus", nil))
	if w.Code != http.StatusBadRequest {
		t.Errorf("Expected 400 for a bogus limit, got %d", w.Code)
	}
}
