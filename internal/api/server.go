package api

import (
	"context"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog"
	"github.com/snarg/scribe-engine/internal/auth"
	"github.com/snarg/scribe-engine/internal/billing"
	"github.com/snarg/scribe-engine/internal/config"
	"github.com/snarg/scribe-engine/internal/events"
	"github.com/snarg/scribe-engine/internal/metrics"
)

type Server struct {
	http *http.Server
	aai  *AAIHandler
	log  zerolog.Logger
}

// ServerOptions carries everything the router needs. Optional collaborators
// are nil when their configuration is absent.
type ServerOptions struct {
	Config    *config.Config
	Store     Store
	DB        Pinger
	Ledger    Ledger
	Catalog   *billing.Catalog
	Provider  TranscriptionProvider
	Poller    TranscriptPoller
	Archiver  AudioArchiver
	Verifier  WebhookVerifier
	Events    events.Publisher
	Broker    BrokerStatus
	Cache     Pinger
	Version   string
	StartTime time.Time
	Log       zerolog.Logger
}

func NewServer(opts ServerOptions) *Server {
	cfg := opts.Config
	log := opts.Log
	origins := cfg.CORSOriginList()

	r := chi.NewRouter()

	// Global middleware
	r.Use(RequestID)
	r.Use(Recoverer)
	r.Use(Logger(log))
	r.Use(CORSWithOrigins(origins))
	r.Use(metrics.InstrumentHandler)

	health := NewHealthHandler(opts.DB, opts.Cache, opts.Broker, opts.Catalog, map[string]bool{
		"assemblyai": opts.Provider != nil,
		"wompi":      cfg.WompiPrivateKey != "",
		"clerk":      cfg.ClerkSecretKey != "",
	}, opts.Version, opts.StartTime)
	r.Get("/api/v1/health", health.ServeHTTP)

	r.Group(func(r chi.Router) {
		r.Use(BearerAuth(cfg.MetricsToken))
		r.Handle("/metrics", promhttp.Handler())
	})

	// svix-signed, never carries a session token
	webhooks := NewWebhooksHandler(opts.Store, opts.Verifier, opts.Events, log)
	r.Post("/api/webhooks/clerk", webhooks.Clerk)

	aai := NewAAIHandler(opts.Provider, opts.Poller, opts.Archiver, origins, LimitsFromConfig(cfg), log)
	transcriptions := NewTranscriptionsHandler(opts.Store, opts.Events, log)
	users := NewUsersHandler(opts.Store, opts.Ledger, log)
	payments := NewPaymentsHandler(opts.Ledger, opts.Catalog, cfg.WompiIntegritySecret, log)
	packages := NewPackagesHandler(opts.Catalog)

	r.Group(func(r chi.Router) {
		r.Use(auth.Middleware(cfg.ClerkSecretKey, log))

		r.Route("/api/aai", func(r chi.Router) {
			aai.Routes(r)
			r.Post("/transcription", transcriptions.CreateTranscription)
		})
		r.Route("/api/transcriptions", transcriptions.Routes)
		r.Route("/api/user", users.Routes)
		r.Route("/api/payments/wompi", payments.Routes)
		r.Get("/api/packages", packages.ListPackages)
	})

	return &Server{
		http: &http.Server{
			Addr:         cfg.HTTPAddr,
			Handler:      r,
			ReadTimeout:  cfg.ReadTimeout,
			WriteTimeout: cfg.WriteTimeout,
			IdleTimeout:  cfg.IdleTimeout,
		},
		aai: aai,
		log: log,
	}
}

// Handler exposes the router, mainly for tests.
func (s *Server) Handler() http.Handler { return s.http.Handler }

// ActiveWatchers reports open /api/aai/watch streams.
func (s *Server) ActiveWatchers() int { return s.aai.ActiveWatchers() }

func (s *Server) Start() error {
	s.log.Info().Str("addr", s.http.Addr).Msg("http server starting")
	err := s.http.ListenAndServe()
	if err == http.ErrServerClosed {
		return nil
	}
	return err
}

func (s *Server) Shutdown(ctx context.Context) error {
	s.log.Info().Msg("http server shutting down")
	return s.http.Shutdown(ctx)
}
