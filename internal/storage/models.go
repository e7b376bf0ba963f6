package storage

import (
	"errors"
	"time"
)

// ErrNotFound is returned when a requested record does not exist.
var ErrNotFound = errors.New("not found")

// Document status values. A document starts as processing and ends as
// completed; rows for failed ingestions are removed, so failed only appears
// transiently.
const (
	StatusProcessing = "processing"
	StatusCompleted  = "completed"
	StatusFailed     = "failed"
)

// Document is the persisted metadata for one uploaded file. The chunk vectors
// themselves live in the in-memory index and are rebuilt on ingestion, not
// stored here.
type Document struct {
	ID               string
	Filename         string // stored name on disk, e.g. "<uuid>.pdf"
	OriginalFilename string // name the client uploaded
	FilePath         string
	Status           string
	UploadTime       time.Time
	CompletedAt      *time.Time
	PageCount        int
	ChunkCount       int
}
