package main

import (
	"context"
	"flag"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
	"golang.org/x/sync/semaphore"

	"news-crawler/pkg/config"
	"news-crawler/pkg/crawl"
	"news-crawler/pkg/discover"
	"news-crawler/pkg/fetch"
	"news-crawler/pkg/storage"
)

func main() {
	// --- Early Initialization & Flags ---
	log := logrus.New()
	log.SetFormatter(&logrus.TextFormatter{FullTimestamp: true, TimestampFormat: "15:04:05.000"})
	log.SetLevel(logrus.InfoLevel)

	configFileFlag := flag.String("config", "config.yaml", "Path to YAML config file")
	logLevelFlag := flag.String("loglevel", "info", "Log level (debug, info, warn, error, fatal)")
	seedOnlyFlag := flag.Bool("seed-only", false, "Seed the queue from sitemaps and exit without crawling")
	crawlOnlyFlag := flag.Bool("crawl-only", false, "Skip discovery and crawl what is already queued")
	flag.Parse()

	level, err := logrus.ParseLevel(*logLevelFlag)
	if err != nil {
		log.Warnf("Invalid log level '%s', using default 'info'. Error: %v", *logLevelFlag, err)
	} else {
		log.SetLevel(level)
	}

	if *seedOnlyFlag && *crawlOnlyFlag {
		log.Fatal("-seed-only and -crawl-only are mutually exclusive")
	}

	// --- Load Application Configuration ---
	log.Infof("Loading configuration from %s", *configFileFlag)
	cfg, warnings, err := config.Load(*configFileFlag)
	for _, w := range warnings {
		log.Warn(w)
	}
	if err != nil {
		log.Fatalf("Configuration error: %v", err)
	}

	runID := uuid.NewString()
	runLog := log.WithField("run_id", runID)
	runLog.WithFields(logrus.Fields{
		"sources": len(cfg.Sources), "budget": cfg.Logic.MaxDocuments,
		"workers": cfg.Logic.Workers, "delay": cfg.Delay(),
	}).Info("Crawler starting")

	// --- Signal Handling ---
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		sig := <-sigChan
		runLog.Warnf("Received signal %v, finishing in-flight work and shutting down...", sig)
		cancel()
	}()

	// --- Open Store ---
	store, err := storage.NewBadgerStore(cfg.DB.Path, cfg.DB.QueueCollection, cfg.DB.DocsCollection, runLog)
	if err != nil {
		log.Fatalf("Opening crawl state store: %v", err)
	}
	defer func() {
		if err := store.Close(); err != nil {
			runLog.Errorf("Closing store: %v", err)
		}
	}()
	go store.RunGC(ctx, 5*time.Minute)

	// --- Startup Recovery & Recrawl Sweep ---
	// Recovery runs before the sweep: entries orphaned in_progress by a
	// crashed run go back to queued first, then due recrawls are requeued.
	now := time.Now().Unix()
	recovered, err := store.ResetInProgress(now)
	if err != nil {
		log.Fatalf("Startup recovery failed: %v", err)
	}
	if recovered > 0 {
		runLog.Infof("Startup recovery requeued %d orphaned in-progress entries", recovered)
	}

	cutoff := time.Now().Add(-cfg.RecrawlTTL()).Unix()
	requeued, err := store.RequeueExpired(cutoff, now)
	if err != nil {
		log.Fatalf("Recrawl sweep failed: %v", err)
	}
	runLog.Infof("Recrawl sweep moved %d due entries back to queue", requeued)

	// --- Shared Fetch Infrastructure ---
	client := fetch.NewClient(cfg, log)
	fetcher := fetch.NewFetcher(client, cfg.Logic.Retries, cfg.Logic.UserAgent, log)
	globalSemaphore := semaphore.NewWeighted(int64(cfg.Logic.MaxInFlight))

	// --- Discovery ---
	if !*crawlOnlyFlag {
		seeder := discover.NewSeeder(store, fetcher, globalSemaphore, cfg, runLog)
		result := seeder.Run(ctx)
		runLog.WithFields(logrus.Fields{
			"discovered": result.DiscoveredURLs, "inserted": result.Inserted,
		}).Info("Discovery complete")
	}
	if *seedOnlyFlag {
		runLog.Info("Seed-only run complete")
		return
	}

	// --- Fetch Worker Pool ---
	var robots *fetch.RobotsHandler
	if cfg.Logic.RespectRobots {
		robots = fetch.NewRobotsHandler(fetcher, cfg.Logic.UserAgent, runLog.WithField("component", "robots"))
	}

	coord := crawl.NewCoordinator(cfg.SourceNames(), cfg.Logic.MaxDocuments)
	pool := crawl.NewPool(cfg, store, fetcher, coord, robots, globalSemaphore, runLog)
	pool.Run(ctx)

	// --- Run Report ---
	report, err := crawl.BuildReport(runID, cfg.SourceNames(), coord, store)
	if err != nil {
		log.Fatalf("Building run report: %v", err)
	}
	if err := report.Write(os.Stdout); err != nil {
		runLog.Errorf("Writing run report: %v", err)
	}
}
