package fetch

import (
	"context"
	"net/url"
	"sync"

	"github.com/sirupsen/logrus"
	"github.com/temoto/robotstxt"
)

// RobotsHandler fetches, parses, and caches robots.txt data per host and
// answers allow/deny for crawl URLs. A host whose robots.txt cannot be
// fetched or parsed is treated as allow-all, the same stance the standard
// takes for missing files.
type RobotsHandler struct {
	fetcher       *Fetcher
	userAgent     string
	robotsCache   map[string]*robotstxt.RobotsData // hostname -> parsed data (nil = allow all)
	robotsCacheMu sync.Mutex
	log           *logrus.Entry
}

// NewRobotsHandler creates a RobotsHandler
func NewRobotsHandler(fetcher *Fetcher, userAgent string, log *logrus.Entry) *RobotsHandler {
	return &RobotsHandler{
		fetcher:     fetcher,
		userAgent:   userAgent,
		robotsCache: make(map[string]*robotstxt.RobotsData),
		log:         log,
	}
}

// Allowed reports whether the URL may be fetched under the host's
// robots.txt rules. The first call for a host fetches and caches the file.
func (rh *RobotsHandler) Allowed(ctx context.Context, rawURL string) bool {
	parsed, err := url.Parse(rawURL)
	if err != nil {
		return true // Unparsable URLs fail later in the fetch itself
	}
	host := parsed.Hostname()

	rh.robotsCacheMu.Lock()
	data, found := rh.robotsCache[host]
	rh.robotsCacheMu.Unlock()

	if !found {
		data = rh.fetchRobots(ctx, parsed)
		rh.robotsCacheMu.Lock()
		rh.robotsCache[host] = data
		rh.robotsCacheMu.Unlock()
	}

	if data == nil {
		return true
	}
	return data.TestAgent(parsed.Path, rh.userAgent)
}

// fetchRobots retrieves and parses robots.txt for the target's host.
// Returns nil (allow all) on any fetch or parse problem.
func (rh *RobotsHandler) fetchRobots(ctx context.Context, target *url.URL) *robotstxt.RobotsData {
	scheme := target.Scheme
	if scheme != "http" && scheme != "https" {
		scheme = "https"
	}
	robotsURL := (&url.URL{Scheme: scheme, Host: target.Host, Path: "/robots.txt"}).String()
	robotsLog := rh.log.WithFields(logrus.Fields{"host": target.Hostname(), "robots_url": robotsURL})
	robotsLog.Debug("Fetching robots.txt")

	status, body, err := rh.fetcher.FetchBody(ctx, robotsURL)
	if err != nil {
		robotsLog.Warnf("Fetching robots.txt failed, treating as allow-all: %v", err)
		return nil
	}

	data, err := robotstxt.FromStatusAndBytes(status, body)
	if err != nil {
		robotsLog.Warnf("Parsing robots.txt failed, treating as allow-all: %v", err)
		return nil
	}
	return data
}
