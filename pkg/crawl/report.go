package crawl

import (
	"fmt"
	"io"

	"news-crawler/pkg/models"
	"news-crawler/pkg/storage"
)

// Report is the read-only end-of-run summary. Building it never mutates
// the store.
type Report struct {
	RunID           string
	Stats           models.RunStats
	Sources         []string // Declaration order, for stable output
	QueuedRemaining int
	DocumentsInDB   int
}

// BuildReport aggregates the coordinator's counters with the store's queue
// and document counts.
func BuildReport(runID string, sources []string, coord *Coordinator, store storage.CrawlStore) (Report, error) {
	queued, err := store.CountByStatus(models.StatusQueued)
	if err != nil {
		return Report{}, fmt.Errorf("counting remaining queue entries: %w", err)
	}
	docs, err := store.CountDocuments()
	if err != nil {
		return Report{}, fmt.Errorf("counting stored documents: %w", err)
	}

	return Report{
		RunID:           runID,
		Stats:           coord.Snapshot(),
		Sources:         sources,
		QueuedRemaining: queued,
		DocumentsInDB:   docs,
	}, nil
}

// Write prints the summary as machine-parsable "key: value" lines.
func (r Report) Write(w io.Writer) error {
	lines := []struct {
		key   string
		value any
	}{
		{"run_id", r.RunID},
		{"downloaded", r.Stats.Downloaded},
		{"updated", r.Stats.Updated},
		{"not_modified", r.Stats.NotModified},
		{"failed", r.Stats.Failed},
		{"queued_remaining", r.QueuedRemaining},
	}
	for _, line := range lines {
		if _, err := fmt.Fprintf(w, "%s: %v\n", line.key, line.value); err != nil {
			return err
		}
	}
	for _, name := range r.Sources {
		if _, err := fmt.Fprintf(w, "downloaded_source_%s: %d\n", name, r.Stats.PerSource[name]); err != nil {
			return err
		}
	}
	_, err := fmt.Fprintf(w, "documents_in_db: %d\n", r.DocumentsInDB)
	return err
}
