package handlers

import (
	"io"
	"net/http"
	"path/filepath"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"github.com/ChIIChI1230/screenshot/ccc/logging"
	"github.com/ChIIChI1230/screenshot/server/archive"
)

// UploadHandler handles screenshot upload and listing operations.
type UploadHandler struct {
	logger  logging.Logger
	archive *archive.Archive
	records archive.RecordRepository
}

// NewUploadHandler creates a new upload handler.
func NewUploadHandler(logger logging.Logger, arch *archive.Archive, records archive.RecordRepository) *UploadHandler {
	if logger == nil {
		logger = logging.NopLogger
	}

	return &UploadHandler{
		logger:  logger,
		archive: arch,
		records: records,
	}
}

// Upload handles POST /upload. The multipart field "file" is required;
// "timestamp" and "source" are optional metadata. The file content is stored
// byte-for-byte, no decoding or transcoding.
func (h *UploadHandler) Upload(c *gin.Context) {
	fileHeader, err := c.FormFile("file")
	if err != nil {
		h.logger.Warn("upload rejected, missing file field", "error", err)
		c.JSON(http.StatusBadRequest, gin.H{"status": "error", "message": "file field is required"})
		return
	}

	file, err := fileHeader.Open()
	if err != nil {
		h.logger.Error("failed to open uploaded file", "error", err)
		c.JSON(http.StatusInternalServerError, gin.H{"status": "error", "message": "failed to process uploaded file"})
		return
	}
	defer file.Close()

	data, err := io.ReadAll(file)
	if err != nil {
		h.logger.Error("failed to read uploaded file", "error", err)
		c.JSON(http.StatusInternalServerError, gin.H{"status": "error", "message": "failed to read uploaded file"})
		return
	}

	received := time.Now().UTC()
	timestamp := parseTimestamp(c.PostForm("timestamp"), received)
	source := archive.SanitizeSource(c.PostForm("source"))
	ext := filepath.Ext(fileHeader.Filename)

	stored, err := h.archive.Store(data, timestamp, source, ext)
	if err != nil {
		h.logger.Error("failed to store upload", "error", err, "source", source)
		c.JSON(http.StatusInternalServerError, gin.H{"status": "error", "message": "failed to store upload"})
		return
	}

	h.logger.Info("stored upload",
		"path", stored.RelPath,
		"source", source,
		"size", len(data))

	// The file on disk is the source of truth; a failed index insert is
	// logged but does not fail the upload.
	if h.records != nil {
		record := &archive.UploadRecord{
			ID:         uuid.NewString(),
			FileName:   stored.FileName,
			RelPath:    stored.RelPath,
			Source:     source,
			Timestamp:  timestamp,
			SizeBytes:  int64(len(data)),
			ReceivedAt: received,
		}
		if err := h.records.Add(c.Request.Context(), record); err != nil {
			h.logger.Warn("failed to index upload", "error", err, "path", stored.RelPath)
		}
	}

	c.JSON(http.StatusOK, gin.H{"status": "ok", "path": stored.RelPath})
}

// ListUploads handles GET /uploads with optional "source" and "limit" query
// parameters, newest first.
func (h *UploadHandler) ListUploads(c *gin.Context) {
	limit := 0
	if raw := c.Query("limit"); raw != "" {
		parsed, err := strconv.Atoi(raw)
		if err != nil || parsed <= 0 {
			c.JSON(http.StatusBadRequest, gin.H{"status": "error", "message": "limit must be a positive integer"})
			return
		}
		limit = parsed
	}

	records, err := h.records.Query(c.Request.Context(), archive.RecordQuery{
		Source: c.Query("source"),
		Limit:  limit,
	})
	if err != nil {
		h.logger.Error("failed to query uploads", "error", err)
		c.JSON(http.StatusInternalServerError, gin.H{"status": "error", "message": "failed to query uploads"})
		return
	}

	uploads := make([]gin.H, 0, len(records))
	for _, record := range records {
		uploads = append(uploads, gin.H{
			"id":          record.ID,
			"path":        record.RelPath,
			"source":      record.Source,
			"timestamp":   record.Timestamp.Format(time.RFC3339Nano),
			"size_bytes":  record.SizeBytes,
			"received_at": record.ReceivedAt.Format(time.RFC3339Nano),
		})
	}

	c.JSON(http.StatusOK, gin.H{"status": "ok", "uploads": uploads})
}

// parseTimestamp parses the client-supplied capture timestamp. The client is
// trusted but not required to send one; anything unparseable falls back to
// the ingest time.
func parseTimestamp(raw string, fallback time.Time) time.Time {
	if raw == "" {
		return fallback
	}
	for _, layout := range []string{time.RFC3339Nano, time.RFC3339} {
		if ts, err := time.Parse(layout, raw); err == nil {
			return ts.UTC()
		}
	}
	return fallback
}
