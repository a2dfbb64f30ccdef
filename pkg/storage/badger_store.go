package storage

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"time"

	badger "github.com/dgraph-io/badger/v4"
	"github.com/sirupsen/logrus"

	"news-crawler/pkg/log"
	"news-crawler/pkg/models"
	"news-crawler/pkg/utils"
)

// BadgerStore implements the CrawlStore interface using BadgerDB.
//
// Queue entries and documents live in two key namespaces derived from the
// configured collection names ("<collection>:<normalized-url>"). Key
// uniqueness in Badger is what enforces the one-entry-per-URL invariant;
// a duplicate seed simply lands on the existing key.
type BadgerStore struct {
	db          *badger.DB
	queuePrefix []byte
	docsPrefix  []byte
	log         *logrus.Entry
}

// NewBadgerStore opens (or creates) the store directory and returns a ready
// BadgerStore. Existing state is always kept; crash recovery and the recrawl
// sweep are explicit operations, not open-time side effects.
func NewBadgerStore(path, queueCollection, docsCollection string, logger *logrus.Entry) (*BadgerStore, error) {
	if err := os.MkdirAll(path, 0755); err != nil {
		return nil, fmt.Errorf("cannot create state directory %s: %w", path, err)
	}

	badgerLogger := log.NewBadgerLogrusAdapter(logger.WithField("component", "badgerdb"))
	opts := badger.DefaultOptions(path).
		WithLogger(badgerLogger).
		WithNumVersionsToKeep(1) // Only the latest entry state matters

	db, err := badger.Open(opts)
	if err != nil {
		return nil, fmt.Errorf("failed to open badger database at %s: %w", path, err)
	}

	logger.WithFields(logrus.Fields{
		"path": path, "queue": queueCollection, "docs": docsCollection,
	}).Info("Crawl state database opened")

	return &BadgerStore{
		db:          db,
		queuePrefix: []byte(queueCollection + ":"),
		docsPrefix:  []byte(docsCollection + ":"),
		log:         logger,
	}, nil
}

func (s *BadgerStore) queueKey(url string) []byte {
	return append(append([]byte{}, s.queuePrefix...), url...)
}

func (s *BadgerStore) docKey(url string) []byte {
	return append(append([]byte{}, s.docsPrefix...), url...)
}

const maxConflictRetries = 10

// dbUpdate wraps db.Update with a retry loop for BadgerDB transaction
// conflicts. Concurrent MVCC transactions on overlapping keys can return
// badger.ErrConflict; these resolve in microseconds, so a tight retry loop
// is sufficient. The claim operation relies on this: the losing claimer
// retries, re-reads, and sees the entry already in_progress.
func (s *BadgerStore) dbUpdate(fn func(txn *badger.Txn) error) error {
	for i := range maxConflictRetries {
		err := s.db.Update(fn)
		if !errors.Is(err, badger.ErrConflict) {
			return err
		}
		s.log.Debugf("BadgerDB transaction conflict (attempt %d/%d), retrying", i+1, maxConflictRetries)
	}
	return fmt.Errorf("%w: transaction conflict not resolved after %d retries", utils.ErrDatabase, maxConflictRetries)
}

func decodeQueueEntry(item *badger.Item) (*models.QueueEntry, error) {
	var entry models.QueueEntry
	err := item.Value(func(val []byte) error {
		return json.Unmarshal(val, &entry)
	})
	if err != nil {
		return nil, err
	}
	return &entry, nil
}

func setQueueEntry(txn *badger.Txn, key []byte, entry *models.QueueEntry) error {
	raw, err := json.Marshal(entry)
	if err != nil {
		return err
	}
	return txn.Set(key, raw)
}

// SeedEntry implements QueueStore
func (s *BadgerStore) SeedEntry(url, source string, now int64) (bool, error) {
	key := s.queueKey(url)
	inserted := false

	err := s.dbUpdate(func(txn *badger.Txn) error {
		inserted = false
		item, errGet := txn.Get(key)
		if errors.Is(errGet, badger.ErrKeyNotFound) {
			inserted = true
			return setQueueEntry(txn, key, &models.QueueEntry{
				URL:       url,
				Source:    source,
				Status:    models.StatusQueued,
				Attempts:  0,
				AddedAt:   now,
				UpdatedAt: now,
			})
		}
		if errGet != nil {
			return errGet
		}
		// Already known: refresh UpdatedAt only. Status, attempts, and
		// history are never regressed by rediscovery.
		entry, errDecode := decodeQueueEntry(item)
		if errDecode != nil {
			return errDecode
		}
		entry.UpdatedAt = now
		return setQueueEntry(txn, key, entry)
	})
	if err != nil {
		return false, fmt.Errorf("%w: seeding queue entry '%s': %w", utils.ErrDatabase, url, err)
	}
	return inserted, nil
}

// Claim implements QueueStore. The select-and-flip happens inside one
// transaction; Badger's conflict detection aborts the loser when two claims
// race for the same entry, and dbUpdate retries it against the new state.
func (s *BadgerStore) Claim(preferredSource string, now int64) (*models.QueueEntry, error) {
	var claimed *models.QueueEntry

	err := s.dbUpdate(func(txn *badger.Txn) error {
		claimed = nil
		opts := badger.DefaultIteratorOptions
		opts.Prefix = s.queuePrefix
		it := txn.NewIterator(opts)
		defer it.Close()

		for it.Rewind(); it.Valid(); it.Next() {
			entry, errDecode := decodeQueueEntry(it.Item())
			if errDecode != nil {
				s.log.WithField("key", string(it.Item().Key())).
					Warnf("Skipping undecodable queue entry: %v", errDecode)
				continue
			}
			if entry.Status != models.StatusQueued {
				continue
			}
			if preferredSource != "" && entry.Source != preferredSource {
				continue
			}
			entry.Status = models.StatusInProgress
			entry.UpdatedAt = now
			if err := setQueueEntry(txn, s.queueKey(entry.URL), entry); err != nil {
				return err
			}
			claimed = entry
			return nil
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("%w: claiming queue entry: %w", utils.ErrDatabase, err)
	}
	return claimed, nil
}

// mutateQueueEntry applies fn to the stored entry for url inside a
// conflict-retried transaction. Missing entries are an error: outcome writes
// only ever target a previously claimed entry.
func (s *BadgerStore) mutateQueueEntry(url string, fn func(*models.QueueEntry)) error {
	key := s.queueKey(url)
	err := s.dbUpdate(func(txn *badger.Txn) error {
		item, errGet := txn.Get(key)
		if errGet != nil {
			return errGet
		}
		entry, errDecode := decodeQueueEntry(item)
		if errDecode != nil {
			return errDecode
		}
		fn(entry)
		return setQueueEntry(txn, key, entry)
	})
	if err != nil {
		return fmt.Errorf("%w: updating queue entry '%s': %w", utils.ErrDatabase, url, err)
	}
	return nil
}

// MarkDone implements QueueStore
func (s *BadgerStore) MarkDone(url string, now int64, countAttempt bool) error {
	return s.mutateQueueEntry(url, func(entry *models.QueueEntry) {
		entry.Status = models.StatusDone
		entry.LastCrawledAt = now
		entry.UpdatedAt = now
		entry.LastError = ""
		if countAttempt {
			entry.Attempts++
		}
	})
}

// MarkFailed implements QueueStore
func (s *BadgerStore) MarkFailed(url, errText string, now int64) error {
	return s.mutateQueueEntry(url, func(entry *models.QueueEntry) {
		entry.Status = models.StatusFailed
		entry.LastError = errText
		entry.UpdatedAt = now
		entry.Attempts++
	})
}

// bulkRequeue flips every queue entry matching shouldRequeue back to queued.
func (s *BadgerStore) bulkRequeue(now int64, shouldRequeue func(*models.QueueEntry) bool) (int, error) {
	modified := 0
	err := s.dbUpdate(func(txn *badger.Txn) error {
		modified = 0
		opts := badger.DefaultIteratorOptions
		opts.Prefix = s.queuePrefix
		it := txn.NewIterator(opts)
		defer it.Close()

		for it.Rewind(); it.Valid(); it.Next() {
			entry, errDecode := decodeQueueEntry(it.Item())
			if errDecode != nil {
				continue
			}
			if !shouldRequeue(entry) {
				continue
			}
			entry.Status = models.StatusQueued
			entry.UpdatedAt = now
			if err := setQueueEntry(txn, s.queueKey(entry.URL), entry); err != nil {
				return err
			}
			modified++
		}
		return nil
	})
	if err != nil {
		return 0, fmt.Errorf("%w: bulk requeue: %w", utils.ErrDatabase, err)
	}
	return modified, nil
}

// ResetInProgress implements QueueStore
func (s *BadgerStore) ResetInProgress(now int64) (int, error) {
	return s.bulkRequeue(now, func(entry *models.QueueEntry) bool {
		return entry.Status == models.StatusInProgress
	})
}

// RequeueExpired implements QueueStore
func (s *BadgerStore) RequeueExpired(cutoff, now int64) (int, error) {
	return s.bulkRequeue(now, func(entry *models.QueueEntry) bool {
		return entry.Status == models.StatusDone && entry.LastCrawledAt < cutoff
	})
}

// GetQueueEntry implements QueueStore
func (s *BadgerStore) GetQueueEntry(url string) (*models.QueueEntry, error) {
	var entry *models.QueueEntry
	err := s.db.View(func(txn *badger.Txn) error {
		item, errGet := txn.Get(s.queueKey(url))
		if errors.Is(errGet, badger.ErrKeyNotFound) {
			return nil
		}
		if errGet != nil {
			return errGet
		}
		decoded, errDecode := decodeQueueEntry(item)
		if errDecode != nil {
			return errDecode
		}
		entry = decoded
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("%w: reading queue entry '%s': %w", utils.ErrDatabase, url, err)
	}
	return entry, nil
}

// CountByStatus implements QueueStore
func (s *BadgerStore) CountByStatus(status models.QueueStatus) (int, error) {
	count := 0
	err := s.db.View(func(txn *badger.Txn) error {
		opts := badger.DefaultIteratorOptions
		opts.Prefix = s.queuePrefix
		it := txn.NewIterator(opts)
		defer it.Close()

		for it.Rewind(); it.Valid(); it.Next() {
			entry, errDecode := decodeQueueEntry(it.Item())
			if errDecode != nil {
				continue
			}
			if entry.Status == status {
				count++
			}
		}
		return nil
	})
	if err != nil {
		return 0, fmt.Errorf("%w: counting queue entries: %w", utils.ErrDatabase, err)
	}
	return count, nil
}

func decodeDocument(item *badger.Item) (*models.DocumentRecord, error) {
	var rec models.DocumentRecord
	err := item.Value(func(val []byte) error {
		return json.Unmarshal(val, &rec)
	})
	if err != nil {
		return nil, err
	}
	return &rec, nil
}

// GetDocument implements DocumentStore
func (s *BadgerStore) GetDocument(url string) (*models.DocumentRecord, error) {
	var rec *models.DocumentRecord
	err := s.db.View(func(txn *badger.Txn) error {
		item, errGet := txn.Get(s.docKey(url))
		if errors.Is(errGet, badger.ErrKeyNotFound) {
			return nil
		}
		if errGet != nil {
			return errGet
		}
		decoded, errDecode := decodeDocument(item)
		if errDecode != nil {
			return errDecode
		}
		rec = decoded
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("%w: reading document '%s': %w", utils.ErrDatabase, url, err)
	}
	return rec, nil
}

// GetDocumentMeta implements DocumentStore
func (s *BadgerStore) GetDocumentMeta(url string) (*models.DocumentMeta, error) {
	rec, err := s.GetDocument(url)
	if err != nil || rec == nil {
		return nil, err
	}
	return &models.DocumentMeta{
		ETag:         rec.ETag,
		LastModified: rec.LastModified,
		ContentHash:  rec.ContentHash,
	}, nil
}

// PutDocument implements DocumentStore
func (s *BadgerStore) PutDocument(rec models.DocumentRecord) error {
	raw, err := json.Marshal(rec)
	if err != nil {
		return fmt.Errorf("%w: encoding document '%s': %w", utils.ErrDatabase, rec.URL, err)
	}
	err = s.dbUpdate(func(txn *badger.Txn) error {
		return txn.Set(s.docKey(rec.URL), raw)
	})
	if err != nil {
		return fmt.Errorf("%w: writing document '%s': %w", utils.ErrDatabase, rec.URL, err)
	}
	return nil
}

// TouchDocument implements DocumentStore
func (s *BadgerStore) TouchDocument(url, source string, now int64) error {
	key := s.docKey(url)
	err := s.dbUpdate(func(txn *badger.Txn) error {
		rec := &models.DocumentRecord{URL: url}
		item, errGet := txn.Get(key)
		if errGet == nil {
			decoded, errDecode := decodeDocument(item)
			if errDecode != nil {
				return errDecode
			}
			rec = decoded
		} else if !errors.Is(errGet, badger.ErrKeyNotFound) {
			return errGet
		}
		rec.Source = source
		rec.CrawledAt = now
		raw, errMarshal := json.Marshal(rec)
		if errMarshal != nil {
			return errMarshal
		}
		return txn.Set(key, raw)
	})
	if err != nil {
		return fmt.Errorf("%w: touching document '%s': %w", utils.ErrDatabase, url, err)
	}
	return nil
}

// CountDocuments implements DocumentStore
func (s *BadgerStore) CountDocuments() (int, error) {
	count := 0
	err := s.db.View(func(txn *badger.Txn) error {
		opts := badger.DefaultIteratorOptions
		opts.Prefix = s.docsPrefix
		opts.PrefetchValues = false // Key-only scan
		it := txn.NewIterator(opts)
		defer it.Close()

		for it.Rewind(); it.Valid(); it.Next() {
			count++
		}
		return nil
	})
	if err != nil {
		return 0, fmt.Errorf("%w: counting documents: %w", utils.ErrDatabase, err)
	}
	return count, nil
}

// RunGC implements StoreAdmin
func (s *BadgerStore) RunGC(ctx context.Context, interval time.Duration) {
	if interval <= 0 {
		interval = 5 * time.Minute
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			s.log.Debug("Store GC goroutine exiting")
			return
		case <-ticker.C:
			// Repeatedly GC until no log file needs rewriting
			for {
				if err := s.db.RunValueLogGC(0.5); err != nil {
					if !errors.Is(err, badger.ErrNoRewrite) {
						s.log.Warnf("Value log GC error: %v", err)
					}
					break
				}
			}
		}
	}
}

// Close implements StoreAdmin
func (s *BadgerStore) Close() error {
	if s.db == nil {
		return nil
	}
	s.log.Debug("Closing crawl state database")
	return s.db.Close()
}
