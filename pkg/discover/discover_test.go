package discover

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/sync/semaphore"

	"news-crawler/pkg/config"
	"news-crawler/pkg/fetch"
	"news-crawler/pkg/models"
	"news-crawler/pkg/storage"
)

func testLogger() (*logrus.Logger, *logrus.Entry) {
	logger := logrus.New()
	logger.SetOutput(io.Discard)
	return logger, logrus.NewEntry(logger)
}

func newTestStore(t *testing.T) *storage.BadgerStore {
	t.Helper()
	_, entry := testLogger()
	store, err := storage.NewBadgerStore(t.TempDir(), "queue", "docs", entry)
	require.NoError(t, err)
	t.Cleanup(func() { store.Close() })
	return store
}

func sitemapIndex(children ...string) string {
	var b strings.Builder
	b.WriteString(`<?xml version="1.0" encoding="UTF-8"?><sitemapindex>`)
	for _, c := range children {
		fmt.Fprintf(&b, "<sitemap><loc>%s</loc></sitemap>", c)
	}
	b.WriteString(`</sitemapindex>`)
	return b.String()
}

func urlset(urls ...string) string {
	var b strings.Builder
	b.WriteString(`<?xml version="1.0" encoding="UTF-8"?><urlset>`)
	for _, u := range urls {
		fmt.Fprintf(&b, "<url><loc>%s</loc></url>", u)
	}
	b.WriteString(`</urlset>`)
	return b.String()
}

func newSeeder(store storage.QueueStore, cfg *config.AppConfig, client *http.Client) *Seeder {
	logger, entry := testLogger()
	fetcher := fetch.NewFetcher(client, 0, "newscrawler-test/1.0", logger)
	return NewSeeder(store, fetcher, semaphore.NewWeighted(4), cfg, entry)
}

func TestSeederRun(t *testing.T) {
	mux := http.NewServeMux()
	server := httptest.NewServer(mux)
	defer server.Close()

	mux.HandleFunc("/sitemap.xml", func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, sitemapIndex(
			server.URL+"/posts-sitemap.xml",
			server.URL+"/tags-sitemap.xml",
		))
	})
	mux.HandleFunc("/posts-sitemap.xml", func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, urlset(
			server.URL+"/posts/1/",
			server.URL+"/posts/2?ref=home",
			server.URL+"/about", // outside the allowed prefix
			"not a url",
		))
	})
	mux.HandleFunc("/tags-sitemap.xml", func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, urlset(server.URL+"/tags/1"))
	})

	store := newTestStore(t)
	cfg := &config.AppConfig{}
	cfg.Logic.MaxDocuments = 50
	cfg.Sources = []config.SourceConfig{{
		Name:                 "alpha",
		SitemapIndex:         server.URL + "/sitemap.xml",
		SitemapAllowPatterns: []string{"posts"},
		AllowedPrefixes:      []string{server.URL + "/posts"},
	}}

	result := newSeeder(store, cfg, server.Client()).Run(context.Background())
	assert.Equal(t, 2, result.DiscoveredURLs)
	assert.Equal(t, 2, result.Inserted)

	// Entries are stored under their normalized form.
	entry, err := store.GetQueueEntry(server.URL + "/posts/1")
	require.NoError(t, err)
	require.NotNil(t, entry)
	assert.Equal(t, "alpha", entry.Source)
	assert.Equal(t, models.StatusQueued, entry.Status)

	entry, err = store.GetQueueEntry(server.URL + "/posts/2")
	require.NoError(t, err)
	assert.NotNil(t, entry)

	// The tags sitemap was filtered out by the allow patterns.
	entry, err = store.GetQueueEntry(server.URL + "/tags/1")
	require.NoError(t, err)
	assert.Nil(t, entry)

	queued, err := store.CountByStatus(models.StatusQueued)
	require.NoError(t, err)
	assert.Equal(t, 2, queued)
}

func TestSeederInsertOnly(t *testing.T) {
	mux := http.NewServeMux()
	server := httptest.NewServer(mux)
	defer server.Close()

	mux.HandleFunc("/sitemap.xml", func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, sitemapIndex(server.URL+"/news.xml"))
	})
	mux.HandleFunc("/news.xml", func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, urlset(server.URL+"/posts/1", server.URL+"/posts/2"))
	})

	store := newTestStore(t)
	cfg := &config.AppConfig{}
	cfg.Logic.MaxDocuments = 50
	cfg.Sources = []config.SourceConfig{{
		Name:            "alpha",
		SitemapIndex:    server.URL + "/sitemap.xml",
		AllowedPrefixes: []string{server.URL + "/posts"},
	}}
	seeder := newSeeder(store, cfg, server.Client())

	first := seeder.Run(context.Background())
	require.Equal(t, 2, first.Inserted)

	// Simulate a crawl outcome, then rediscover the same URLs.
	claimed, err := store.Claim("alpha", time.Now().Unix())
	require.NoError(t, err)
	require.NotNil(t, claimed)
	require.NoError(t, store.MarkDone(claimed.URL, time.Now().Unix(), true))

	second := seeder.Run(context.Background())
	assert.Equal(t, 2, second.DiscoveredURLs)
	assert.Equal(t, 0, second.Inserted)

	// The rediscovered URL keeps its crawl state.
	entry, err := store.GetQueueEntry(claimed.URL)
	require.NoError(t, err)
	require.NotNil(t, entry)
	assert.Equal(t, models.StatusDone, entry.Status)
	assert.Equal(t, 1, entry.Attempts)
}

func TestSeederStopsAtPerSourceTarget(t *testing.T) {
	mux := http.NewServeMux()
	server := httptest.NewServer(mux)
	defer server.Close()

	urls := make([]string, 10)
	for i := range urls {
		urls[i] = fmt.Sprintf("%s/posts/%d", server.URL, i)
	}
	mux.HandleFunc("/sitemap.xml", func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, sitemapIndex(server.URL+"/news.xml"))
	})
	mux.HandleFunc("/news.xml", func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, urlset(urls...))
	})

	store := newTestStore(t)
	cfg := &config.AppConfig{}
	cfg.Logic.MaxDocuments = 2 // target per source: ceil(2/1) + 2/2 = 3
	cfg.Sources = []config.SourceConfig{{
		Name:            "alpha",
		SitemapIndex:    server.URL + "/sitemap.xml",
		AllowedPrefixes: []string{server.URL + "/posts"},
	}}

	result := newSeeder(store, cfg, server.Client()).Run(context.Background())
	assert.Equal(t, 3, result.DiscoveredURLs)
	assert.Equal(t, 3, result.Inserted)
}

func TestSeederSurvivesBrokenSitemaps(t *testing.T) {
	mux := http.NewServeMux()
	server := httptest.NewServer(mux)
	defer server.Close()

	mux.HandleFunc("/sitemap.xml", func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, sitemapIndex(
			server.URL+"/broken.xml",
			server.URL+"/missing.xml",
			server.URL+"/good.xml",
		))
	})
	mux.HandleFunc("/broken.xml", func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, "<html><body>502 Bad Gateway</body>")
	})
	mux.HandleFunc("/missing.xml", func(w http.ResponseWriter, r *http.Request) {
		http.NotFound(w, r)
	})
	mux.HandleFunc("/good.xml", func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, urlset(server.URL+"/posts/1"))
	})

	store := newTestStore(t)
	cfg := &config.AppConfig{}
	cfg.Logic.MaxDocuments = 50
	cfg.Sources = []config.SourceConfig{{
		Name:            "alpha",
		SitemapIndex:    server.URL + "/sitemap.xml",
		AllowedPrefixes: []string{server.URL + "/posts"},
	}}

	result := newSeeder(store, cfg, server.Client()).Run(context.Background())
	assert.Equal(t, 1, result.DiscoveredURLs)
	assert.Equal(t, 1, result.Inserted)
}

func TestSeederUnreachableSource(t *testing.T) {
	store := newTestStore(t)
	cfg := &config.AppConfig{}
	cfg.Logic.MaxDocuments = 50
	cfg.Sources = []config.SourceConfig{{
		Name:            "alpha",
		SitemapIndex:    "http://127.0.0.1:1/sitemap.xml",
		AllowedPrefixes: []string{"http://127.0.0.1:1/"},
	}}

	result := newSeeder(store, cfg, http.DefaultClient).Run(context.Background())
	assert.Equal(t, 0, result.DiscoveredURLs)
	assert.Equal(t, 0, result.Inserted)
}
