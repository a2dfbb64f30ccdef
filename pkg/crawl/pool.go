package crawl

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/sirupsen/logrus"
	"golang.org/x/sync/semaphore"

	"news-crawler/pkg/config"
	"news-crawler/pkg/fetch"
	"news-crawler/pkg/storage"
)

// Pool runs a fixed number of fetch workers against the shared store,
// fetcher, and coordinator. Workers terminate cooperatively: the pool's Run
// returns when every worker has exited, either because the document budget
// was reached or because no claimable entry remained for any source.
type Pool struct {
	cfg     *config.AppConfig
	store   storage.CrawlStore
	fetcher *fetch.Fetcher
	coord   *Coordinator
	robots  *fetch.RobotsHandler
	sem     *semaphore.Weighted
	log     *logrus.Entry
}

// NewPool wires a worker pool. robots may be nil (compliance disabled).
// globalSemaphore caps in-flight HTTP requests across the whole process and
// is shared with discovery.
func NewPool(
	cfg *config.AppConfig,
	store storage.CrawlStore,
	fetcher *fetch.Fetcher,
	coord *Coordinator,
	robots *fetch.RobotsHandler,
	globalSemaphore *semaphore.Weighted,
	log *logrus.Entry,
) *Pool {
	return &Pool{
		cfg:     cfg,
		store:   store,
		fetcher: fetcher,
		coord:   coord,
		robots:  robots,
		sem:     globalSemaphore,
		log:     log.WithField("component", "pool"),
	}
}

// Run starts the configured number of workers and blocks until all return.
func (p *Pool) Run(ctx context.Context) {
	workers := p.cfg.Logic.Workers
	delay := p.cfg.Delay()
	start := time.Now()

	p.log.WithFields(logrus.Fields{
		"workers": workers, "budget": p.cfg.Logic.MaxDocuments, "delay": delay,
	}).Info("Starting fetch worker pool")

	var wg sync.WaitGroup
	for i := range workers {
		wg.Add(1)
		go func(id int) {
			defer wg.Done()
			w := &worker{
				id:      id,
				store:   p.store,
				fetcher: p.fetcher,
				coord:   p.coord,
				robots:  p.robots,
				sem:     p.sem,
				delay:   delay,
				log:     p.log.WithField("worker_id", fmt.Sprintf("w%d", id)),
			}
			w.run(ctx)
		}(i)
	}
	wg.Wait()

	p.log.WithField("duration", time.Since(start).Round(time.Millisecond)).
		Info("Fetch worker pool finished")
}
