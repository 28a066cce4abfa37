package notify

// Status identifies the kind of progress event on the wire.
type Status string

const (
	StatusStarted  Status = "processing_started"
	StatusProgress Status = "progress"
	StatusComplete Status = "processing_complete"
	StatusError    Status = "error"
)

// ProgressEvent is one ingestion progress update as pushed to clients.
type ProgressEvent struct {
	Status         Status `json:"status"`
	DocID          string `json:"docId"`
	TotalPages     int    `json:"totalPages,omitempty"`
	PagesProcessed int    `json:"pagesProcessed,omitempty"`
	ErrorCode      string `json:"errorCode,omitempty"`
	Message        string `json:"message,omitempty"`

	// Recoverable is never omitted: clients must be able to tell an
	// unrecoverable error from a missing field.
	Recoverable bool `json:"recoverable"`
}

// Started reports that processing of a document began.
func Started(docID string, totalPages int) ProgressEvent {
	return ProgressEvent{Status: StatusStarted, DocID: docID, TotalPages: totalPages}
}

// Progress reports that a page batch was flushed.
func Progress(docID string, pagesProcessed, totalPages int) ProgressEvent {
	return ProgressEvent{
		Status:         StatusProgress,
		DocID:          docID,
		PagesProcessed: pagesProcessed,
		TotalPages:     totalPages,
	}
}

// Completed reports that the whole document was processed.
func Completed(docID string, totalPages int) ProgressEvent {
	return ProgressEvent{
		Status:         StatusComplete,
		DocID:          docID,
		PagesProcessed: totalPages,
		TotalPages:     totalPages,
	}
}

// Error reports a processing failure. Recoverable errors leave ingestion
// running; unrecoverable ones mean the document failed.
func Error(docID, code, message string, recoverable bool) ProgressEvent {
	return ProgressEvent{
		Status:      StatusError,
		DocID:       docID,
		ErrorCode:   code,
		Message:     message,
		Recoverable: recoverable,
	}
}
