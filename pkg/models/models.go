package models

// QueueEntry is the persistent record of one URL in the crawl queue.
// The normalized URL is the store key, so it is unique by construction.
type QueueEntry struct {
	URL           string      `json:"url"`
	Source        string      `json:"source"`
	Status        QueueStatus `json:"status"`
	Attempts      int         `json:"attempts"`
	AddedAt       int64       `json:"added_at"`                  // Unix seconds, set once on insert
	UpdatedAt     int64       `json:"updated_at"`                // Unix seconds, bumped on every mutation
	LastCrawledAt int64       `json:"last_crawled_at,omitempty"` // Unix seconds of last successful fetch (0 = never)
	LastError     string      `json:"last_error,omitempty"`      // Empty when the last attempt succeeded
}

// DocumentRecord stores the payload and cache-validation state of a fetched URL.
// A record exists only for URLs with at least one successful (200/304) fetch.
type DocumentRecord struct {
	URL          string `json:"url"`
	Source       string `json:"source"`
	RawHTML      string `json:"raw_html"`
	CrawledAt    int64  `json:"crawled_at"` // Unix seconds
	ETag         string `json:"etag,omitempty"`
	LastModified string `json:"last_modified,omitempty"`
	ContentHash  string `json:"content_hash,omitempty"` // SHA-256 hex of the raw body
}

// DocumentMeta is the projection of a DocumentRecord used to build
// conditional request headers and to detect content changes.
type DocumentMeta struct {
	ETag         string
	LastModified string
	ContentHash  string
}

// RunStats accumulates fetch outcome counters for a single crawl run.
type RunStats struct {
	Downloaded  int            // successful fetch outcomes (200 or 304)
	Updated     int            // 200 responses whose content hash changed
	NotModified int            // 304 responses plus 200 responses with an unchanged hash
	Failed      int            // exhausted retries or non-{200,304} status
	PerSource   map[string]int // successful fetches per source this run
}

// NewRunStats returns a RunStats with the per-source map initialized for the
// given source names, so absent sources read as zero rather than missing.
func NewRunStats(sources []string) RunStats {
	perSource := make(map[string]int, len(sources))
	for _, name := range sources {
		perSource[name] = 0
	}
	return RunStats{PerSource: perSource}
}
