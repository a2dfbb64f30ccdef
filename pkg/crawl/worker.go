package crawl

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/sirupsen/logrus"
	"golang.org/x/sync/semaphore"

	"news-crawler/pkg/fetch"
	"news-crawler/pkg/models"
	"news-crawler/pkg/storage"
	"news-crawler/pkg/utils"
)

// worker is one fetch loop in the pool. All workers share the store, the
// fetcher, the coordinator, and the in-flight request semaphore; each claimed
// entry is owned by exactly one worker until it reaches done or failed.
type worker struct {
	id      int
	store   storage.CrawlStore
	fetcher *fetch.Fetcher
	coord   *Coordinator
	robots  *fetch.RobotsHandler // nil when robots compliance is disabled
	sem     *semaphore.Weighted
	delay   time.Duration
	log     *logrus.Entry
}

// run executes the claim/fetch/classify loop until the budget is reached,
// no claimable entry exists anywhere, or the context ends.
func (w *worker) run(ctx context.Context) {
	for {
		if ctx.Err() != nil {
			return
		}

		// Hold a budget slot before touching the queue so the run can
		// never overshoot the document budget.
		if !w.coord.TryReserve() {
			w.log.Debug("Budget reached, worker exiting")
			return
		}

		entry, err := w.claim()
		if err != nil {
			w.coord.ReleaseReservation()
			w.log.Errorf("Claim failed: %v", err)
			return
		}
		if entry == nil {
			w.coord.ReleaseReservation()
			w.log.Debug("No claimable work anywhere, worker exiting")
			return
		}

		w.processEntry(ctx, entry)

		// Politeness delay between iterations, cancellable.
		if w.delay > 0 {
			select {
			case <-time.After(w.delay):
			case <-ctx.Done():
				return
			}
		}
	}
}

// claim asks the scheduler for a preferred source and claims accordingly.
// When the preferred source has nothing queued, the claim is retried with no
// source filter before concluding there is no work; this is what keeps the
// pool from deadlocking when one source's queue runs dry early.
func (w *worker) claim() (*models.QueueEntry, error) {
	preferred := w.coord.PreferredSource()
	entry, err := w.store.Claim(preferred, time.Now().Unix())
	if err != nil {
		return nil, err
	}
	if entry == nil && preferred != "" {
		entry, err = w.store.Claim("", time.Now().Unix())
		if err != nil {
			return nil, err
		}
	}
	return entry, nil
}

// processEntry fetches one claimed entry and writes its outcome. Every path
// out of this method leaves the entry in done or failed and settles the
// budget reservation taken by the caller.
func (w *worker) processEntry(ctx context.Context, entry *models.QueueEntry) {
	entryLog := w.log.WithFields(logrus.Fields{"url": entry.URL, "source": entry.Source})

	if w.robots != nil && !w.robots.Allowed(ctx, entry.URL) {
		entryLog.Info("Blocked by robots.txt")
		w.recordFailure(entry.URL, utils.ErrRobotsDisallowed.Error(), entryLog)
		return
	}

	// Prior document state supplies the conditional headers.
	meta, err := w.store.GetDocumentMeta(entry.URL)
	if err != nil {
		entryLog.Warnf("Reading prior document state failed, fetching unconditionally: %v", err)
		meta = nil
	}

	req, err := w.fetcher.NewRequest(ctx, entry.URL, meta)
	if err != nil {
		w.recordFailure(entry.URL, err.Error(), entryLog)
		return
	}

	status, body, respHeaders, err := w.doFetch(ctx, req)
	if err != nil {
		entryLog.Warnf("Fetch failed after retries: %v", err)
		w.recordFailure(entry.URL, err.Error(), entryLog)
		return
	}

	now := time.Now().Unix()
	switch status {
	case 304:
		// Success without change: refresh crawl metadata only, the stored
		// payload and content hash stay untouched.
		if err := w.store.TouchDocument(entry.URL, entry.Source, now); err != nil {
			entryLog.Errorf("Touching document failed: %v", err)
		}
		if err := w.store.MarkDone(entry.URL, now, false); err != nil {
			entryLog.Errorf("Marking entry done failed: %v", err)
		}
		total := w.coord.RecordSuccess(entry.Source, false)
		w.logProgress(total)

	case 200:
		bodyHash := utils.CalculateSHA256(body)
		changed := meta == nil || meta.ContentHash != bodyHash
		if changed {
			rec := models.DocumentRecord{
				URL:          entry.URL,
				Source:       entry.Source,
				RawHTML:      string(body),
				CrawledAt:    now,
				ETag:         respHeaders.etag,
				LastModified: respHeaders.lastModified,
				ContentHash:  bodyHash,
			}
			if err := w.store.PutDocument(rec); err != nil {
				entryLog.Errorf("Writing document failed: %v", err)
			}
		} else {
			if err := w.store.TouchDocument(entry.URL, entry.Source, now); err != nil {
				entryLog.Errorf("Touching document failed: %v", err)
			}
		}
		if err := w.store.MarkDone(entry.URL, now, true); err != nil {
			entryLog.Errorf("Marking entry done failed: %v", err)
		}
		total := w.coord.RecordSuccess(entry.Source, changed)
		w.logProgress(total)

	default:
		w.recordFailure(entry.URL, fmt.Sprintf("HTTP %d", status), entryLog)
	}
}

// responseHeaders carries the cache-validation headers of a 200 response.
type responseHeaders struct {
	etag         string
	lastModified string
}

// doFetch performs the HTTP GET under the global in-flight cap and drains
// the body. The semaphore bounds concurrent requests; the coordinator mutex
// is never held here.
func (w *worker) doFetch(ctx context.Context, req *http.Request) (int, []byte, responseHeaders, error) {
	if err := w.sem.Acquire(ctx, 1); err != nil {
		return 0, nil, responseHeaders{}, err
	}
	defer w.sem.Release(1)

	resp, err := w.fetcher.Do(ctx, req)
	if err != nil {
		return 0, nil, responseHeaders{}, err
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return resp.StatusCode, nil, responseHeaders{}, fmt.Errorf("%w: %w", utils.ErrResponseBodyRead, err)
	}

	headers := responseHeaders{
		etag:         resp.Header.Get("ETag"),
		lastModified: resp.Header.Get("Last-Modified"),
	}
	return resp.StatusCode, body, headers, nil
}

// recordFailure writes the failed outcome, counts it, and releases the
// unused budget reservation.
func (w *worker) recordFailure(url, errText string, entryLog *logrus.Entry) {
	if err := w.store.MarkFailed(url, errText, time.Now().Unix()); err != nil {
		entryLog.Errorf("Marking entry failed errored: %v", err)
	}
	w.coord.RecordFailure()
	w.coord.ReleaseReservation()
}

// logProgress emits a periodic crawl-progress line every 100 successes.
func (w *worker) logProgress(totalDownloaded int) {
	if totalDownloaded > 0 && totalDownloaded%100 == 0 {
		w.log.WithField("downloaded", totalDownloaded).Info("Crawl progress")
	}
}
