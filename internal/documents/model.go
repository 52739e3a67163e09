package documents

import "time"

// Status tracks a document through the two-system write protocol. A row is
// pending from the moment metadata is written until the object write is
// confirmed, completed once both systems agree, and failed when the upload
// was abandoned.
type Status string

const (
	StatusPending   Status = "pending"
	StatusCompleted Status = "completed"
	StatusFailed    Status = "failed"
)

// Document is the metadata record for one stored object.
type Document struct {
	ID              string    `json:"id"`
	UserID          string    `json:"userId"`
	Category        string    `json:"category"`
	FileName        string    `json:"fileName"`
	StoragePath     string    `json:"-"`
	SizeBytes       int64     `json:"sizeBytes"`
	MimeType        string    `json:"mimeType"`
	Status          Status    `json:"status"`
	ReconcileNeeded bool      `json:"-"`
	CreatedAt       time.Time `json:"createdAt"`
	UpdatedAt       time.Time `json:"updatedAt"`
}

// ListQuery filters a user's completed documents. Date, when set, matches
// documents created within that calendar day (UTC).
type ListQuery struct {
	UserID   string
	Category string
	Date     *time.Time
	Limit    int
	Offset   int
}
