package ingest

// EventType classifies a storage notification.
type EventType string

const (
	// EventCreated means a new or replaced object appeared in the bucket.
	EventCreated EventType = "created"

	// EventRemoved means the object was deleted.
	EventRemoved EventType = "removed"
)

// StorageEvent is an object-store notification that drives ingestion.
type StorageEvent struct {
	Bucket string    `json:"bucket"`
	Key    string    `json:"key"`
	Type   EventType `json:"type"`
}

// Stable error codes carried on progress error events so clients can react
// without parsing messages.
const (
	CodeObjectFetch     = "OBJECT_FETCH_FAILED"
	CodeCorruptDocument = "CORRUPT_DOCUMENT"
	CodePageExtraction  = "PAGE_EXTRACTION_FAILED"
	CodeEmbedding       = "EMBEDDING_FAILED"
	CodeStorage         = "STORAGE_FAILED"
	CodeTimeout         = "PROCESSING_TIMEOUT"
	CodeInternal        = "PROCESSING_FAILED"
)
