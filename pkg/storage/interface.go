package storage

import (
	"context"
	"time"

	"news-crawler/pkg/models"
)

// QueueStore handles the crawl queue lifecycle
type QueueStore interface {
	// SeedEntry upserts a queue entry with insert-only semantics: when the
	// URL is new it is created as queued with zero attempts; when it already
	// exists only UpdatedAt is refreshed, so rediscovery never regresses
	// in-progress or historical state.
	// Returns true if the entry was newly inserted.
	SeedEntry(url, source string, now int64) (inserted bool, err error)

	// Claim atomically selects one queued entry (restricted to
	// preferredSource when non-empty), flips it to in_progress, and returns
	// it. Under concurrent callers no two ever receive the same entry.
	// Returns nil when nothing is claimable.
	Claim(preferredSource string, now int64) (*models.QueueEntry, error)

	// MarkDone records a successful fetch outcome: status done, LastCrawledAt
	// set, LastError cleared. Attempts is incremented when countAttempt is
	// true (full 200 responses; 304 outcomes leave the counter alone).
	MarkDone(url string, now int64, countAttempt bool) error

	// MarkFailed records a failed attempt: status failed, LastError set,
	// Attempts incremented. Failed entries have no automatic way back to
	// queued; requeueing them is an operator action.
	MarkFailed(url, errText string, now int64) error

	// ResetInProgress requeues every in_progress entry. Run once at process
	// start, before the recrawl sweep: an in_progress entry at that point is
	// an orphan from a crashed run and is never resumed in place.
	ResetInProgress(now int64) (int, error)

	// RequeueExpired requeues every done entry whose LastCrawledAt is older
	// than cutoff. Returns the number of entries moved.
	RequeueExpired(cutoff, now int64) (int, error)

	// GetQueueEntry returns the entry for a URL, or nil when absent.
	GetQueueEntry(url string) (*models.QueueEntry, error)

	// CountByStatus counts queue entries in the given state.
	CountByStatus(status models.QueueStatus) (int, error)
}

// DocumentStore handles fetched document records
type DocumentStore interface {
	// GetDocumentMeta returns the cache-validation projection for a URL,
	// or nil when no document exists yet.
	GetDocumentMeta(url string) (*models.DocumentMeta, error)

	// GetDocument returns the full record for a URL, or nil when absent.
	GetDocument(url string) (*models.DocumentRecord, error)

	// PutDocument overwrites the record for rec.URL.
	PutDocument(rec models.DocumentRecord) error

	// TouchDocument updates only CrawledAt and Source, creating a payloadless
	// record when none exists (the 304 / unchanged-content path).
	TouchDocument(url, source string, now int64) error

	// CountDocuments counts stored document records.
	CountDocuments() (int, error)
}

// StoreAdmin handles lifecycle operations
type StoreAdmin interface {
	// RunGC runs periodic value-log garbage collection until ctx ends.
	// Should be run in a goroutine.
	RunGC(ctx context.Context, interval time.Duration)

	// Close cleanly closes the database
	Close() error
}

// CrawlStore combines all store interfaces for components needing full access
type CrawlStore interface {
	QueueStore
	DocumentStore
	StoreAdmin
}
