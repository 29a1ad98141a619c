package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/snarg/scribe-engine/internal/api"
	"github.com/snarg/scribe-engine/internal/assemblyai"
	"github.com/snarg/scribe-engine/internal/auth"
	"github.com/snarg/scribe-engine/internal/billing"
	"github.com/snarg/scribe-engine/internal/database"
	"github.com/snarg/scribe-engine/internal/events"
	"github.com/snarg/scribe-engine/internal/metrics"
	"github.com/snarg/scribe-engine/internal/storage"
	"github.com/snarg/scribe-engine/internal/wompi"
	"github.com/spf13/cobra"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the HTTP API (default command)",
	RunE:  runServe,
}

// liveStats feeds scrape-time gauges.
type liveStats struct {
	srv     *api.Server
	catalog *billing.Catalog
}

func (s liveStats) ActiveWatchers() int { return s.srv.ActiveWatchers() }
func (s liveStats) CatalogSize() int    { return s.catalog.Len() }

func runServe(cmd *cobra.Command, _ []string) error {
	startTime := time.Now()

	cfg, log, err := loadConfig()
	if err != nil {
		log.Error().Err(err).Msg("failed to load config")
		return err
	}
	log.Info().Str("version", version).Msg("scribe-engine starting")

	// Context for graceful shutdown
	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	// Database
	dbLog := log.With().Str("component", "database").Logger()
	db, err := database.Connect(ctx, cfg.DatabaseURL, dbLog)
	if err != nil {
		log.Error().Err(err).Msg("failed to connect to database")
		return err
	}
	defer db.Close()
	if err := db.InitSchema(ctx); err != nil {
		log.Error().Err(err).Msg("failed to initialize schema")
		return err
	}
	if err := db.Migrate(ctx); err != nil {
		log.Error().Err(err).Msg("failed to apply migrations")
		return err
	}

	// Package catalog
	catalog, err := billing.LoadCatalog(cfg.PackagesFile, log)
	if err != nil {
		log.Error().Err(err).Str("path", cfg.PackagesFile).Msg("failed to load package catalog")
		return err
	}
	if err := catalog.Watch(ctx); err != nil {
		log.Warn().Err(err).Msg("package catalog hot reload disabled")
	}

	opts := api.ServerOptions{
		Config:    cfg,
		Store:     db,
		DB:        db,
		Catalog:   catalog,
		Events:    events.Nop{},
		Version:   version,
		StartTime: startTime,
		Log:       log.With().Str("component", "http").Logger(),
	}

	// Domain events
	if cfg.MQTTBrokerURL != "" {
		pub, err := events.Connect(events.Options{
			BrokerURL:   cfg.MQTTBrokerURL,
			ClientID:    cfg.MQTTClientID,
			Username:    cfg.MQTTUsername,
			Password:    cfg.MQTTPassword,
			TopicPrefix: cfg.MQTTTopicPrefix,
			Log:         log,
		})
		if err != nil {
			log.Warn().Err(err).Str("broker", cfg.MQTTBrokerURL).Msg("mqtt unavailable, events disabled")
		} else {
			defer pub.Close()
			opts.Events = pub
			opts.Broker = pub
		}
	}

	// Transcript status cache
	var cache assemblyai.Cache
	if cfg.RedisURL != "" {
		rc, err := assemblyai.NewRedisCache(ctx, cfg.RedisURL, log)
		if err != nil {
			log.Warn().Err(err).Msg("redis unavailable, transcript status cache disabled")
		} else {
			defer rc.Close()
			cache = rc
			opts.Cache = rc
		}
	}

	// AssemblyAI
	if cfg.AssemblyAIKey != "" {
		client := assemblyai.NewClient(cfg.AssemblyAIBaseURL, cfg.AssemblyAIKey, cfg.AssemblyAISpeechModel, cfg.AssemblyAITimeout)
		backoff := assemblyai.DefaultBackoff
		backoff.MaxAttempts = cfg.PollMaxAttempts
		opts.Provider = client
		opts.Poller = assemblyai.NewPoller(client, cache, backoff, log)
		log.Info().Str("model", client.Model()).Msg("assemblyai relay enabled")
	} else {
		log.Warn().Msg("ASSEMBLYAI_API_KEY not set, transcription endpoints will answer 500")
	}

	// Payments
	var gateway billing.Gateway
	if cfg.WompiPrivateKey != "" {
		gateway = wompi.NewClient(cfg.WompiAPIURL, cfg.WompiPrivateKey, 15*time.Second)
	} else {
		log.Warn().Msg("WOMPI_PRIVATE_KEY not set, payment verification will answer 500")
	}
	opts.Ledger = billing.NewLedger(db, gateway, catalog, opts.Events, log)

	// Clerk webhooks
	if cfg.ClerkWebhookSecret != "" {
		verifier, err := auth.NewWebhookVerifier(cfg.ClerkWebhookSecret)
		if err != nil {
			log.Error().Err(err).Msg("invalid CLERK_WEBHOOK_SECRET")
			return err
		}
		opts.Verifier = verifier
	}

	// Audio archive
	if cfg.AudioArchive {
		store, err := storage.New(cfg.S3, cfg.AudioDir, log)
		if err != nil {
			log.Error().Err(err).Msg("failed to open audio archive")
			return err
		}
		archiver := storage.NewArchiver(store, 64, log)
		archiver.Start(2)
		defer archiver.Stop()
		opts.Archiver = archiver
	}

	// HTTP Server
	srv := api.NewServer(opts)
	prometheus.MustRegister(metrics.NewCollector(db.Pool, liveStats{srv: srv, catalog: catalog}))

	// Start HTTP server in background
	errCh := make(chan error, 1)
	go func() {
		errCh <- srv.Start()
	}()

	// Wait for shutdown signal or server error
	var serveErr error
	select {
	case <-ctx.Done():
		log.Info().Msg("shutdown signal received")
	case serveErr = <-errCh:
		if serveErr != nil {
			log.Error().Err(serveErr).Msg("http server error")
		}
	}

	// Graceful shutdown with 10s timeout
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Error().Err(err).Msg("http server shutdown error")
	}

	log.Info().Msg("scribe-engine stopped")
	return serveErr
}
