package main

import (
	"context"
	"errors"
	"flag"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/sirupsen/logrus"

	"webcrawl/pkg/config"
	"webcrawl/pkg/crawler"
	"webcrawl/pkg/fetch"
	"webcrawl/pkg/httperror"
	"webcrawl/pkg/middleware"
	"webcrawl/pkg/stats"
	"webcrawl/pkg/storage"
)

func main() {
	// --- Early Initialization & Flags ---
	log := logrus.New()
	log.SetFormatter(&logrus.TextFormatter{FullTimestamp: true, TimestampFormat: "15:04:05.000"})
	log.SetLevel(logrus.InfoLevel) // Default level

	settingsFlag := flag.String("settings", "", "Path to YAML settings file (defaults apply when empty)")
	urlsFlag := flag.String("urls", "", "Comma-separated start URLs (required)")
	nameFlag := flag.String("name", "links", "Spider name")
	maxPagesFlag := flag.Int("max-pages", 0, "Stop discovering links after this many parsed pages (0 = unlimited)")
	logLevelFlag := flag.String("loglevel", "info", "Log level (debug, info, warn, error, fatal)")
	resumeFlag := flag.Bool("resume", false, "Resume crawl using existing state DB")
	flag.Parse()

	// --- Logger Configuration ---
	level, err := logrus.ParseLevel(*logLevelFlag)
	if err != nil {
		log.Warnf("Invalid log level '%s', using default 'info'. Error: %v", *logLevelFlag, err)
	} else {
		log.SetLevel(level)
	}

	// --- Load Settings ---
	var settings *config.Settings
	if *settingsFlag != "" {
		log.Infof("Loading settings from %s", *settingsFlag)
		settings, err = config.Load(*settingsFlag)
		if err != nil {
			log.Fatalf("Load settings '%s' error: %v", *settingsFlag, err)
		}
	} else {
		settings = config.New()
	}

	if *urlsFlag == "" {
		log.Fatal("Error: -urls flag is required.")
	}
	var startURLs []string
	for _, raw := range strings.Split(*urlsFlag, ",") {
		if raw = strings.TrimSpace(raw); raw != "" {
			startURLs = append(startURLs, raw)
		}
	}

	// --- Global Context & Signal Handling ---
	crawlCtx, cancelCrawl := context.WithCancel(context.Background())
	defer cancelCrawl()

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)
	defer signal.Stop(sigChan)

	go func() {
		sig := <-sigChan
		log.Warnf("Received signal: %v. Initiating graceful shutdown...", sig)
		cancelCrawl()

		// Allow force exit on second signal or timeout
		select {
		case sig = <-sigChan:
			log.Warnf("Received second signal: %v. Forcing exit.", sig)
			os.Exit(1)
		case <-time.After(30 * time.Second):
			log.Warn("Graceful shutdown period exceeded after signal. Forcing exit.")
			os.Exit(1)
		}
	}()

	// --- Storage ---
	stateDir, err := settings.GetString("STATE_DIR")
	if err != nil {
		log.Fatalf("Settings error: %v", err)
	}
	store, err := storage.NewBadgerStore(stateDir, *nameFlag, *resumeFlag, log.WithField("component", "store"))
	if err != nil {
		log.Fatalf("Failed to initialize result DB: %v", err)
	}
	defer store.Close()
	go store.RunGC(crawlCtx, 10*time.Minute)

	// --- HTTP Transport Components ---
	httpClient, err := fetch.NewClient(settings, log)
	if err != nil {
		log.Fatalf("Failed to build HTTP client: %v", err)
	}
	downloader, err := fetch.NewDownloader(httpClient, settings, log)
	if err != nil {
		log.Fatalf("Failed to build downloader: %v", err)
	}
	delayMS, err := settings.GetInt("DOWNLOAD_DELAY_MS")
	if err != nil {
		log.Fatalf("Settings error: %v", err)
	}
	perHost, err := settings.GetInt("CONCURRENT_PER_HOST")
	if err != nil {
		log.Fatalf("Settings error: %v", err)
	}
	workers, err := settings.GetInt("CONCURRENT_REQUESTS")
	if err != nil {
		log.Fatalf("Settings error: %v", err)
	}
	semTimeoutSecs, err := settings.GetInt("SEMAPHORE_TIMEOUT_SECS")
	if err != nil {
		log.Fatalf("Settings error: %v", err)
	}

	var robots *fetch.RobotsGate
	obeyRobots, err := settings.GetBool("ROBOTSTXT_OBEY")
	if err != nil {
		log.Fatalf("Settings error: %v", err)
	}
	if obeyRobots {
		userAgent, uaErr := settings.GetString("USER_AGENT")
		if uaErr != nil {
			log.Fatalf("Settings error: %v", uaErr)
		}
		robots = fetch.NewRobotsGate(httpClient, userAgent, log)
	}

	// --- Middleware Pipeline & Spider Boundary ---
	statsCollector := stats.NewMemory()
	pipeline, err := middleware.BuildDefault(settings, statsCollector, log)
	if err != nil {
		log.Fatalf("Failed to build middleware pipeline: %v", err)
	}
	log.Infof("Enabled downloader middlewares: %s", strings.Join(pipeline.Names(), ", "))
	filter, err := httperror.NewFilter(settings, statsCollector, log)
	if err != nil {
		log.Fatalf("Failed to build HTTP error filter: %v", err)
	}

	// --- Spider & Engine ---
	spider, err := crawler.NewLinkSpider(*nameFlag, startURLs, *maxPagesFlag, log)
	if err != nil {
		log.Fatalf("Failed to build spider: %v", err)
	}
	engine := crawler.NewEngine(spider, crawler.Options{
		Pipeline:   pipeline,
		Filter:     filter,
		Downloader: downloader,
		Limiter:    fetch.NewRateLimiter(time.Duration(delayMS)*time.Millisecond, log),
		HostSems:   fetch.NewHostSemaphorePool(perHost, log),
		Robots:     robots,
		Store:      store,
		Stats:      statsCollector,
		Workers:    workers,
		SemTimeout: time.Duration(semTimeoutSecs) * time.Second,
		Log:        log,
	})

	// --- Run ---
	if runErr := engine.Run(crawlCtx); runErr != nil && !errors.Is(runErr, context.Canceled) {
		log.Errorf("Crawl ended with error: %v", runErr)
		os.Exit(1)
	}
}
