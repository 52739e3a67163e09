package usage

import "time"

// Usage tracks one user's stored file count and total bytes.
type Usage struct {
	UserID     string
	FileCount  int64
	TotalBytes int64
	UpdatedAt  time.Time
}

// Stats is the client-facing usage view including quota headroom.
type Stats struct {
	UserID      string    `json:"userId"`
	FileCount   int64     `json:"fileCount"`
	TotalBytes  int64     `json:"totalBytes"`
	QuotaLimit  int64     `json:"quotaLimit"`
	PercentUsed float64   `json:"percentUsed"`
	LastUpdated time.Time `json:"lastUpdated"`
}
