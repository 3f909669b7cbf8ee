package cmd

import (
	"context"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	coreconfig "github.com/AzielCF/az-track/core/config"
	coreDB "github.com/AzielCF/az-track/core/database"
	"github.com/AzielCF/az-track/infrastructure/roblox"
	"github.com/AzielCF/az-track/infrastructure/valkey"
	"github.com/AzielCF/az-track/pkg/webhook"
	"github.com/AzielCF/az-track/pkg/worker"
	"github.com/AzielCF/az-track/tracker/application"
	"github.com/AzielCF/az-track/tracker/domain"
	"github.com/AzielCF/az-track/tracker/repository"
	"github.com/AzielCF/az-track/ui/rest"
	"github.com/AzielCF/az-track/ui/rest/middleware"
	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/basicauth"
	"github.com/gofiber/fiber/v2/middleware/logger"
	"github.com/gofiber/fiber/v2/middleware/requestid"
	_ "github.com/lib/pq"
	_ "github.com/mattn/go-sqlite3"
	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"
)

var trackCmd = &cobra.Command{
	Use:   "track",
	Short: "Run the presence tracker and its HTTP API",
	Run:   runTracker,
}

func init() {
	trackCmd.Flags().String("basic-auth", "", "Basic auth for API (format: user:pass,user2:pass2)")
	rootCmd.AddCommand(trackCmd)
}

func runTracker(cmd *cobra.Command, _ []string) {
	cfg := coreconfig.Global

	// Override basic auth if flag is provided
	if baFlag, _ := cmd.Flags().GetString("basic-auth"); baFlag != "" {
		cfg.App.BasicAuth = strings.Split(baFlag, ",")
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	// Persistence
	db, err := coreDB.NewDatabase(cfg)
	if err != nil {
		logrus.Fatalf("Failed to open database: %v", err)
	}
	stateRepo := repository.NewTrackedStateGormRepository(db)
	if err := stateRepo.InitSchema(ctx); err != nil {
		logrus.Fatalf("Failed to migrate tracked states: %v", err)
	}
	subRepo := repository.NewSubscriptionGormRepository(db)
	if err := subRepo.InitSchema(ctx); err != nil {
		logrus.Fatalf("Failed to migrate subscriptions: %v", err)
	}

	// Presence cache: Valkey when configured, in-memory otherwise.
	var cache domain.PresenceCache
	var valkeyClient *valkey.Client
	if cfg.Database.ValkeyEnabled {
		valkeyClient, err = valkey.NewClient(valkey.Config{
			Address:   cfg.Database.ValkeyAddress,
			Password:  cfg.Database.ValkeyPassword,
			DB:        cfg.Database.ValkeyDB,
			KeyPrefix: cfg.Database.ValkeyKeyPrefix,
		})
		if err != nil {
			logrus.Fatalf("Failed to connect to valkey: %v", err)
		}
		defer valkeyClient.Close()
		cache = repository.NewValkeyPresenceCache(valkeyClient)
		logrus.Info("[APP] Presence cache: valkey")
	} else {
		cache = repository.NewMemoryPresenceCache(cfg.Tracker.CacheMaxEntries)
		logrus.Info("[APP] Presence cache: in-memory")
	}

	// Polling pipeline
	runtime := coreconfig.NewRuntimeStore(coreconfig.Runtime{
		PollInterval: cfg.Tracker.PollInterval,
		BatchLinger:  cfg.Tracker.BatchLinger,
	})
	gate := roblox.NewGate(cfg.Roblox.RateTokens, cfg.Roblox.RateInterval, cfg.Roblox.RateBurst)
	client := roblox.NewClient(roblox.Config{
		BaseURL:        cfg.Roblox.BaseURL,
		UserAgent:      cfg.Roblox.UserAgent,
		RequestTimeout: cfg.Roblox.RequestTimeout,
	})
	transport := roblox.NewRetryingTransport(client, roblox.RetryPolicy{
		MaxAttempts: cfg.Roblox.RetryMaxAttempts,
		Base:        cfg.Roblox.BackoffBase,
		Cap:         cfg.Roblox.BackoffCap,
	})
	batcher := roblox.NewBatcher(gate, transport, cfg.Tracker.BatchMaxSize, func() time.Duration {
		return runtime.Current().BatchLinger
	})

	// Fan-out
	stats := &application.Stats{}
	pool := worker.NewPool(cfg.WorkerPool.Size, cfg.WorkerPool.QueueSize)
	sender := webhook.NewHTTPSender(cfg.Roblox.RequestTimeout)
	notifier := application.NewWebhookNotifier(subRepo, sender, pool, stats)
	detector := application.NewDetector(stateRepo, notifier, stats)
	scheduler := application.NewScheduler(batcher, cache, detector, runtime, cfg.Tracker, cfg.Roblox, stats)
	service := application.NewTrackerService(subRepo, stateRepo, cache, scheduler)

	pool.Start(ctx)
	if err := service.Bootstrap(ctx); err != nil {
		logrus.Fatalf("Failed to bootstrap tracked accounts: %v", err)
	}

	// HTTP surface
	fiberConfig := fiber.Config{
		EnableTrustedProxyCheck: true,
		Network:                 "tcp",
		AppName:                 "Az-Track",
		ServerHeader:            "Hidden",
	}
	if len(cfg.App.TrustedProxies) > 0 {
		fiberConfig.TrustedProxies = cfg.App.TrustedProxies
		fiberConfig.ProxyHeader = fiber.HeaderXForwardedHost
	}
	app := fiber.New(fiberConfig)

	app.Use(requestid.New())
	app.Use(middleware.Recovery())
	if cfg.App.Debug {
		app.Use(logger.New())
	}

	apiGroup := app.Group(cfg.App.BasePath + "/api")
	if len(cfg.App.BasicAuth) > 0 {
		account := make(map[string]string)
		for _, basicAuth := range cfg.App.BasicAuth {
			ba := strings.Split(basicAuth, ":")
			if len(ba) != 2 {
				logrus.Fatalln("Basic auth is not valid, please use the following format <user>:<secret>")
			}
			account[ba[0]] = ba[1]
		}
		apiGroup.Use(basicauth.New(basicauth.Config{Users: account}))
	} else {
		logrus.Warn("[APP] APP_BASIC_AUTH not set; the API is unauthenticated")
	}

	rest.InitRestSubscription(apiGroup, service)
	rest.InitRestMonitoring(apiGroup, stats, batcher, gate, pool, runtime)
	rest.InitRestHealth(apiGroup, db, valkeyClient)

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error { return batcher.Run(gctx) })
	g.Go(func() error { return scheduler.Run(gctx) })
	g.Go(func() error { return app.Listen(":" + cfg.App.Port) })
	g.Go(func() error {
		<-gctx.Done()
		logrus.Info("[APP] Shutting down HTTP server...")
		return app.Shutdown()
	})

	logrus.Infof("[APP] Az-Track %s listening on :%s (server id %s)", cfg.App.Version, cfg.App.Port, cfg.App.ServerID)
	if err := g.Wait(); err != nil && err != context.Canceled {
		logrus.WithError(err).Error("[APP] Run loop terminated with error")
	}

	pool.Stop()
	logrus.Info("[APP] Application stopped cleanly")
}
