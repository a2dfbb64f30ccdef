// Package discover walks two-level sitemap hierarchies and seeds the crawl
// queue. The root sitemap index of each source lists child sitemaps; each
// surviving child lists the leaf article URLs that become queue entries.
package discover

import (
	"context"
	"strings"
	"time"

	"github.com/sirupsen/logrus"
	"golang.org/x/sync/semaphore"

	"news-crawler/pkg/config"
	"news-crawler/pkg/fetch"
	"news-crawler/pkg/parse"
	"news-crawler/pkg/storage"
)

// Result summarizes one seeding pass.
type Result struct {
	DiscoveredURLs int // Leaf URLs that survived filtering
	Inserted       int // Queue entries newly created
}

// Seeder discovers article URLs from sitemaps and upserts them into the
// queue with insert-only semantics, so a rediscovered URL never loses its
// crawl state.
type Seeder struct {
	store           storage.QueueStore
	fetcher         *fetch.Fetcher
	globalSemaphore *semaphore.Weighted
	cfg             *config.AppConfig
	log             *logrus.Entry
}

// NewSeeder creates a Seeder sharing the run-wide fetcher and request cap.
func NewSeeder(
	store storage.QueueStore,
	fetcher *fetch.Fetcher,
	globalSemaphore *semaphore.Weighted,
	cfg *config.AppConfig,
	log *logrus.Entry,
) *Seeder {
	return &Seeder{
		store:           store,
		fetcher:         fetcher,
		globalSemaphore: globalSemaphore,
		cfg:             cfg,
		log:             log.WithField("component", "discovery"),
	}
}

// Run seeds the queue from every configured source. Failures on individual
// sitemaps are logged and skipped; a source that cannot be reached at all
// contributes nothing but never aborts the run.
func (s *Seeder) Run(ctx context.Context) Result {
	budget := s.cfg.Logic.MaxDocuments
	sourceCount := max(1, len(s.cfg.Sources))

	// Intentionally generous: oversupply the queue so the fairness
	// scheduler and the pool never starve a source that has content.
	targetPerSource := ceilDiv(budget, sourceCount) + budget/2

	var total Result
	for _, src := range s.cfg.Sources {
		discovered, inserted := s.seedSource(ctx, src, targetPerSource)
		total.DiscoveredURLs += discovered
		total.Inserted += inserted
	}

	s.log.WithFields(logrus.Fields{
		"discovered": total.DiscoveredURLs, "inserted": total.Inserted,
	}).Info("Queue seeding finished")
	return total
}

// seedSource walks one source's sitemap hierarchy up to its discovery target.
func (s *Seeder) seedSource(ctx context.Context, src config.SourceConfig, target int) (discovered, inserted int) {
	srcLog := s.log.WithField("source", src.Name)

	rootXML, err := s.fetchSitemap(ctx, src.SitemapIndex)
	if err != nil {
		srcLog.Warnf("Failed to fetch root sitemap index %s: %v", src.SitemapIndex, err)
		return 0, 0
	}

	childSitemaps := make([]string, 0)
	for _, child := range parse.ExtractSitemapLocs(rootXML) {
		if !keepChildSitemap(child, src.SitemapAllowPatterns) {
			continue
		}
		childSitemaps = append(childSitemaps, child)
	}
	srcLog.Infof("Child sitemap candidates after filtering: %d", len(childSitemaps))

	childLimit := s.cfg.Logic.MaxDocuments/200 + 200
	if len(childSitemaps) > childLimit {
		childSitemaps = childSitemaps[:childLimit]
	}

	for _, childURL := range childSitemaps {
		if discovered >= target {
			break
		}
		childXML, err := s.fetchSitemap(ctx, childURL)
		if err != nil {
			srcLog.Debugf("Skipping child sitemap %s: %v", childURL, err)
			continue
		}

		for _, articleURL := range parse.ExtractSitemapLocs(childXML) {
			norm, err := parse.ParseAndNormalize(articleURL)
			if err != nil {
				continue
			}
			if !keepArticleURL(norm, src.AllowedPrefixes) {
				continue
			}
			discovered++

			wasInserted, err := s.store.SeedEntry(norm, src.Name, time.Now().Unix())
			if err != nil {
				srcLog.Errorf("Seeding %s failed: %v", norm, err)
				continue
			}
			if wasInserted {
				inserted++
			}
			if discovered >= target {
				break
			}
		}
	}

	srcLog.WithFields(logrus.Fields{
		"discovered": discovered, "inserted": inserted, "target": target,
	}).Info("Source seeding finished")
	return discovered, inserted
}

// fetchSitemap retrieves one sitemap document under the global request cap.
func (s *Seeder) fetchSitemap(ctx context.Context, url string) ([]byte, error) {
	if err := s.globalSemaphore.Acquire(ctx, 1); err != nil {
		return nil, err
	}
	defer s.globalSemaphore.Release(1)

	status, body, err := s.fetcher.FetchBody(ctx, url)
	if err != nil {
		return nil, err
	}
	if status != 200 {
		// A non-200 sitemap body parses to nothing; log and let the
		// lenient parser produce an empty list.
		s.log.Debugf("Sitemap %s returned HTTP %d", url, status)
	}
	return body, nil
}

// keepChildSitemap reports whether the child sitemap URL matches any of the
// allow patterns (case-insensitive substring). Empty patterns allow all.
func keepChildSitemap(url string, allowPatterns []string) bool {
	if len(allowPatterns) == 0 {
		return true
	}
	lowered := strings.ToLower(url)
	for _, pat := range allowPatterns {
		if strings.Contains(lowered, strings.ToLower(pat)) {
			return true
		}
	}
	return false
}

// keepArticleURL reports whether a normalized leaf URL starts with one of
// the source's required prefixes.
func keepArticleURL(url string, allowedPrefixes []string) bool {
	for _, prefix := range allowedPrefixes {
		if strings.HasPrefix(url, prefix) {
			return true
		}
	}
	return false
}

func ceilDiv(a, b int) int {
	return (a + b - 1) / b
}
