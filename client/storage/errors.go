package storage

import "fmt"

// StoreOp identifies the filesystem operation that failed.
type StoreOp string

const (
	OpWrite  StoreOp = "write"
	OpDelete StoreOp = "delete"
	OpList   StoreOp = "list"
)

// StoreError represents a failed local store operation. Callers log it and
// continue; a full disk or a permission problem must not kill the capture loop.
type StoreError struct {
	Op         StoreOp
	Path       string
	InnerError error
}

func (e *StoreError) Error() string {
	return fmt.Sprintf("local store %s failed for %s: %v", e.Op, e.Path, e.InnerError)
}

func (e *StoreError) Unwrap() error {
	return e.InnerError
}
