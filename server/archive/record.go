package archive

import "time"

// UploadRecord describes one ingested file. Records are append-only: once
// written they are never mutated.
type UploadRecord struct {
	ID         string    // uuid
	FileName   string    // file name within the date directory
	RelPath    string    // path relative to the storage root, slash-separated
	Source     string    // sanitized source identifier
	Timestamp  time.Time // capture timestamp claimed by the client, UTC
	SizeBytes  int64
	ReceivedAt time.Time // ingest time, UTC
}
