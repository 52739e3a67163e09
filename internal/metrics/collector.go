package metrics

import (
	"sync"
	"sync/atomic"
	"time"
)

// Collector aggregates operation counters and storage gauges. It is created
// once at service start and injected into every coordinator; counters are
// monotonic, gauges track current per-user and global storage bytes.
type Collector struct {
	uploadTotal          atomic.Uint64
	downloadTotal        atomic.Uint64
	deleteTotal          atomic.Uint64
	errorsTotal          atomic.Uint64
	quotaExceededTotal   atomic.Uint64
	storeUnavailable     atomic.Uint64
	dbUnavailable        atomic.Uint64
	operationFailures    atomic.Uint64
	lastUpdatedUnixNanos atomic.Int64

	mu          sync.Mutex
	userStorage map[string]int64
	totalBytes  int64
}

// Snapshot is a point-in-time copy of all metric values.
type Snapshot struct {
	UploadTotal        uint64           `json:"documents_upload_total"`
	DownloadTotal      uint64           `json:"documents_download_total"`
	DeleteTotal        uint64           `json:"documents_delete_total"`
	ErrorsTotal        uint64           `json:"documents_errors_total"`
	QuotaExceededTotal uint64           `json:"documents_quota_exceeded_total"`
	StoreUnavailable   uint64           `json:"store_unavailable_total"`
	DBUnavailable      uint64           `json:"database_unavailable_total"`
	OperationFailures  uint64           `json:"documents_operation_failures_total"`
	StorageBytesTotal  int64            `json:"documents_storage_bytes_total"`
	UserStorageBytes   map[string]int64 `json:"documents_storage_bytes"`
	UsersTracked       int              `json:"users_tracked"`
	LastUpdated        time.Time        `json:"last_updated"`
}

// NewCollector constructs an empty collector.
func NewCollector() *Collector {
	c := &Collector{userStorage: make(map[string]int64)}
	c.touch()
	return c
}

// RecordUpload counts a successful upload and grows the user's storage gauge.
func (c *Collector) RecordUpload(userID string, sizeBytes int64) {
	c.uploadTotal.Add(1)
	c.adjustStorage(userID, sizeBytes)
	c.touch()
}

// RecordDownload counts a successful download.
func (c *Collector) RecordDownload() {
	c.downloadTotal.Add(1)
	c.touch()
}

// RecordDelete counts a successful delete and shrinks the user's storage gauge.
func (c *Collector) RecordDelete(userID string, sizeBytes int64) {
	c.deleteTotal.Add(1)
	c.adjustStorage(userID, -sizeBytes)
	c.touch()
}

// RecordQuotaExceeded counts a rejected over-quota upload.
func (c *Collector) RecordQuotaExceeded() {
	c.errorsTotal.Add(1)
	c.quotaExceededTotal.Add(1)
	c.touch()
}

// RecordStoreUnavailable counts an object-store outage surfaced to a caller.
func (c *Collector) RecordStoreUnavailable() {
	c.errorsTotal.Add(1)
	c.storeUnavailable.Add(1)
	c.touch()
}

// RecordDBUnavailable counts a metadata-store outage surfaced to a caller.
func (c *Collector) RecordDBUnavailable() {
	c.errorsTotal.Add(1)
	c.dbUnavailable.Add(1)
	c.touch()
}

// RecordOperationFailure counts any other failed operation, including
// detected cross-store inconsistencies.
func (c *Collector) RecordOperationFailure() {
	c.errorsTotal.Add(1)
	c.operationFailures.Add(1)
	c.touch()
}

// SetUserStorage pins a user's storage gauge to an absolute value, used when
// reconciliation re-derives usage from the database.
func (c *Collector) SetUserStorage(userID string, bytes int64) {
	c.mu.Lock()
	prev := c.userStorage[userID]
	c.userStorage[userID] = bytes
	c.totalBytes += bytes - prev
	c.mu.Unlock()
	c.touch()
}

// Get returns a full snapshot. Readers copy under the gauge lock only;
// counter writers are never blocked.
func (c *Collector) Get() Snapshot {
	c.mu.Lock()
	users := make(map[string]int64, len(c.userStorage))
	for k, v := range c.userStorage {
		users[k] = v
	}
	total := c.totalBytes
	c.mu.Unlock()

	return Snapshot{
		UploadTotal:        c.uploadTotal.Load(),
		DownloadTotal:      c.downloadTotal.Load(),
		DeleteTotal:        c.deleteTotal.Load(),
		ErrorsTotal:        c.errorsTotal.Load(),
		QuotaExceededTotal: c.quotaExceededTotal.Load(),
		StoreUnavailable:   c.storeUnavailable.Load(),
		DBUnavailable:      c.dbUnavailable.Load(),
		OperationFailures:  c.operationFailures.Load(),
		StorageBytesTotal:  total,
		UserStorageBytes:   users,
		UsersTracked:       len(users),
		LastUpdated:        time.Unix(0, c.lastUpdatedUnixNanos.Load()).UTC(),
	}
}

func (c *Collector) adjustStorage(userID string, delta int64) {
	c.mu.Lock()
	next := c.userStorage[userID] + delta
	if next < 0 {
		next = 0
	}
	c.totalBytes += next - c.userStorage[userID]
	c.userStorage[userID] = next
	c.mu.Unlock()
}

func (c *Collector) touch() {
	c.lastUpdatedUnixNanos.Store(time.Now().UnixNano())
}
