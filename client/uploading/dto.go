package uploading

import "time"

// UploadRequest carries one image to the ingest server.
type UploadRequest struct {
	Data      []byte
	FileName  string
	MimeType  string
	Timestamp time.Time // capture time, UTC; zero means unknown
	Source    string
}

// UploadAck is the server's acknowledgement for a stored upload.
type UploadAck struct {
	Status string `json:"status"`
	Path   string `json:"path"`
}
