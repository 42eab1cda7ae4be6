package main

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/lysyi3m/rss-merge/app/api"
	"github.com/lysyi3m/rss-merge/app/cache"
	"github.com/lysyi3m/rss-merge/app/campaign"
	"github.com/lysyi3m/rss-merge/app/cfg"
	"github.com/lysyi3m/rss-merge/app/database"
	"github.com/lysyi3m/rss-merge/app/feed"
	"github.com/lysyi3m/rss-merge/app/tasks"
)

type app struct {
	cfg         *cfg.Cfg
	db          *database.DB
	feedRepo    *database.FeedRepo
	itemRepo    *database.ItemRepo
	messageRepo *database.MessageRepo
	eventRepo   *database.EventRepo
	prober      *feed.Prober
	pipeline    *tasks.Pipeline
	hooks       *campaign.Hooks
	locker      cache.Locker
}

func main() {
	appCfg, err := cfg.Load()
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
	if appCfg == nil {
		return
	}

	level := slog.LevelInfo
	if appCfg.Debug {
		level = slog.LevelDebug
	}
	slog.SetDefault(slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{Level: level})))

	a, err := newApp(appCfg)
	if err != nil {
		slog.Error("Failed to initialize", "error", err)
		os.Exit(1)
	}
	defer a.close()

	if err := a.run(); err != nil {
		slog.Error("Command failed", "command", appCfg.Command, "error", err)
		a.close()
		os.Exit(1)
	}
}

func newApp(appCfg *cfg.Cfg) (*app, error) {
	db, err := database.NewConnection(appCfg.DBPath)
	if err != nil {
		return nil, err
	}

	version, dirty, err := database.RunMigrations(db)
	if err != nil {
		db.Close()
		return nil, err
	}
	slog.Debug("Database ready", "path", appCfg.DBPath, "schema_version", version, "dirty", dirty)

	settings := feed.NewSettingsCache(appCfg.SettingsFile)
	if err := settings.Run(); err != nil {
		db.Close()
		return nil, err
	}

	locker, err := newLocker(appCfg)
	if err != nil {
		db.Close()
		return nil, err
	}

	feedRepo := database.NewFeedRepo(db)
	itemRepo := database.NewItemRepo(db)
	messageRepo := database.NewMessageRepo(db)
	eventRepo := database.NewEventRepo(db)

	httpClient := &http.Client{Timeout: appCfg.FetchTimeoutDuration()}
	fetcher := feed.NewFetcher(httpClient, appCfg.UserAgent, settings.Get().MaxBodySize)
	parser := feed.NewParser()
	prober := feed.NewProber(fetcher, parser)

	selector := campaign.NewSelector(itemRepo)
	repeat := campaign.NewRepeatScheduler(messageRepo, eventRepo, selector, settings)
	hooks := campaign.NewHooks(messageRepo, feedRepo, selector, campaign.NewRenderer(), repeat, prober, settings)
	pipeline := tasks.NewPipeline(feedRepo, itemRepo, eventRepo, fetcher, parser,
		feed.NewContentExtractor(fetcher), settings)

	return &app{
		cfg:         appCfg,
		db:          db,
		feedRepo:    feedRepo,
		itemRepo:    itemRepo,
		messageRepo: messageRepo,
		eventRepo:   eventRepo,
		prober:      prober,
		pipeline:    pipeline,
		hooks:       hooks,
		locker:      locker,
	}, nil
}

// newLocker serializes runs through Redis when an address is configured and
// within the process otherwise.
func newLocker(appCfg *cfg.Cfg) (cache.Locker, error) {
	if appCfg.RedisAddr == "" {
		return cache.NewLocalLocker(), nil
	}

	locker, err := cache.NewRedisLocker(appCfg.RedisAddr, appCfg.RedisPassword, appCfg.RedisDB)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to Redis: %w", err)
	}
	slog.Info("Using Redis run lock", "addr", appCfg.RedisAddr)
	return locker, nil
}

func (a *app) close() {
	if a.locker != nil {
		if err := a.locker.Close(); err != nil {
			slog.Warn("Failed to close locker", "error", err)
		}
		a.locker = nil
	}
	if a.db != nil {
		a.db.Close()
		a.db = nil
	}
}

func (a *app) run() error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	switch a.cfg.Command {
	case cfg.CommandFetch:
		return a.runFetch(ctx)
	case cfg.CommandQueue:
		return a.runQueue(ctx)
	case cfg.CommandPurge:
		return a.runPurge(ctx)
	case cfg.CommandReset:
		return a.runReset(ctx)
	case cfg.CommandValidate:
		return a.runValidate(ctx)
	default:
		return a.serve(ctx)
	}
}

func (a *app) runFetch(ctx context.Context) error {
	task := tasks.NewFetchFeedsTask("cli", a.feedRepo, a.pipeline, a.locker, tasks.NewWriterReporter(os.Stdout))
	task.Start()
	if err := task.Execute(ctx); err != nil {
		return err
	}

	if task.Report == nil {
		fmt.Println("A fetch is already running")
		return nil
	}
	fmt.Printf("%d feeds, %d items, %d new items, %d failed in %s\n",
		len(task.Report.Feeds), task.Report.Items, task.Report.NewItems, task.Report.FailedFeeds,
		task.Report.Duration.Round(time.Millisecond))
	return nil
}

func (a *app) runQueue(ctx context.Context) error {
	task := tasks.NewProcessQueueTask("cli", a.hooks, a.locker)
	task.Start()
	if err := task.Execute(ctx); err != nil {
		return err
	}

	for _, outcome := range task.Outcomes {
		line := fmt.Sprintf("Message %d: %s (%d items)", outcome.MessageID, outcome.Outcome, outcome.Items)
		if outcome.Error != "" {
			line += " " + outcome.Error
		}
		fmt.Println(line)
	}
	fmt.Printf("%d messages evaluated\n", len(task.Outcomes))
	return nil
}

func (a *app) runPurge(ctx context.Context) error {
	task := tasks.NewPurgeTask("cli", a.feedRepo, a.itemRepo, a.cfg.PurgeDays, a.cfg.PurgeUnusedFeeds)
	task.Start()
	if err := task.Execute(ctx); err != nil {
		return err
	}

	fmt.Printf("Deleted %d items and %d feeds\n", task.Result.DeletedItems, task.Result.DeletedFeeds)
	return nil
}

func (a *app) runReset(ctx context.Context) error {
	if err := a.feedRepo.ResetFeeds(ctx); err != nil {
		return err
	}
	fmt.Println("All items deleted and feed validators cleared")
	return nil
}

func (a *app) runValidate(ctx context.Context) error {
	entries, err := a.prober.Probe(ctx, a.cfg.ValidateURL)
	if err != nil {
		return fmt.Errorf("failed to fetch URL %s: %w", a.cfg.ValidateURL, err)
	}
	fmt.Printf("%s: %d entries\n", a.cfg.ValidateURL, entries)
	return nil
}

func (a *app) serve(ctx context.Context) error {
	slog.Info("Starting RSS Merge server", "version", a.cfg.Version)

	scheduler := tasks.NewScheduler(a.feedRepo, a.pipeline, a.hooks, a.locker, a.cfg.FetchEvery(), a.cfg.QueueEvery())
	scheduler.Start()
	defer scheduler.Stop()
	slog.Info("Background scheduler started", "fetch_interval", a.cfg.FetchEvery(), "queue_interval", a.cfg.QueueEvery())

	handler := api.NewHandler(api.Dependencies{
		FeedRepo:    a.feedRepo,
		ItemRepo:    a.itemRepo,
		MessageRepo: a.messageRepo,
		EventRepo:   a.eventRepo,
		Pipeline:    a.pipeline,
		Hooks:       a.hooks,
		Prober:      a.prober,
		Locker:      a.locker,
		Version:     a.cfg.Version,
	})

	// Fetch and queue requests run synchronously, so writes get more time
	// than reads.
	httpServer := &http.Server{
		Addr:         ":" + a.cfg.Port,
		Handler:      api.NewServer(handler, a.cfg.APIAccessKey),
		ReadTimeout:  30 * time.Second,
		WriteTimeout: 10 * time.Minute,
		IdleTimeout:  120 * time.Second,
	}

	serverErrChan := make(chan error, 1)
	go func() {
		slog.Info("Starting HTTP server", "port", a.cfg.Port, "api_enabled", a.cfg.APIAccessKey != "")
		if err := httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			serverErrChan <- fmt.Errorf("HTTP server error: %w", err)
		}
	}()

	var serveErr error
	select {
	case <-ctx.Done():
		slog.Info("Shutdown signal received")
	case serveErr = <-serverErrChan:
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		slog.Error("HTTP server shutdown error", "error", err)
	} else {
		slog.Info("HTTP server stopped")
	}

	return serveErr
}
