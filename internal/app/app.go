package app

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/sirupsen/logrus"
	"gorm.io/gorm"

	"inbox-triage-go/internal/config"
	"inbox-triage-go/internal/db"
	"inbox-triage-go/internal/handler"
	"inbox-triage-go/internal/llm"
	"inbox-triage-go/internal/metrics"
	"inbox-triage-go/internal/provider"
	"inbox-triage-go/internal/repository"
	"inbox-triage-go/internal/router"
	"inbox-triage-go/internal/scheduler"
	"inbox-triage-go/internal/triage"
)

// App holds the wired service graph
type App struct {
	Config    *config.Config
	DB        *gorm.DB
	Mailbox   *provider.Adapter
	Backend   llm.Backend
	Triage    *triage.Service
	Scheduler *scheduler.Scheduler
	Metrics   *metrics.Metrics
}

// Load reads configuration, sets up logging and builds the application
func Load(ctx context.Context) (*App, error) {
	cfg, err := config.LoadConfig()
	if err != nil {
		return nil, fmt.Errorf("failed to load configuration: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("configuration validation failed: %w", err)
	}

	setupLogging(cfg.Log)
	return New(ctx, cfg, prometheus.DefaultRegisterer)
}

func setupLogging(cfg config.LogConfig) {
	logrus.SetFormatter(&logrus.JSONFormatter{})
	level, err := logrus.ParseLevel(cfg.Level)
	if err != nil {
		level = logrus.InfoLevel
	}
	logrus.SetLevel(level)
}

// New wires every component from cfg. Metrics are registered with reg.
func New(ctx context.Context, cfg *config.Config, reg prometheus.Registerer) (a *App, err error) {
	dbConn, err := db.Init(cfg.Database)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize database: %w", err)
	}
	defer func() {
		if err != nil {
			if sqlDB, dbErr := dbConn.DB(); dbErr == nil {
				sqlDB.Close()
			}
		}
	}()

	m := metrics.NewMetrics(reg)

	live, err := newLiveMailbox(ctx, cfg.Gmail)
	if err != nil {
		return nil, err
	}
	mailbox := provider.NewAdapter(live, provider.NewMockProvider(cfg.Gmail.UserEmail), cfg.Gmail.UseMock || !cfg.Gmail.Enabled,
		provider.WithFallbackObserver(func(op string) {
			m.ProviderFallbacks.WithLabelValues(op).Inc()
		}))
	logrus.WithFields(logrus.Fields{
		"mailbox": mailbox.Name(),
		"mode":    mailbox.Mode(),
	}).Info("Mailbox provider ready")

	backend, err := llm.NewWithFallback(ctx, cfg.LLM)
	if err != nil {
		return nil, fmt.Errorf("failed to create llm backend: %w", err)
	}
	logrus.WithFields(logrus.Fields{
		"backend": backend.Name(),
		"model":   backend.Model(),
	}).Info("Language model backend ready")

	svc := triage.NewService(
		repository.New(dbConn),
		mailbox,
		triage.NewClassifier(backend),
		triage.NewDrafter(backend),
		m,
		triage.Options{
			SyncLimit:   cfg.Triage.SyncLimit,
			BatchSize:   cfg.Triage.BatchSize,
			CallTimeout: cfg.Triage.CallTimeout,
		},
	)

	return &App{
		Config:    cfg,
		DB:        dbConn,
		Mailbox:   mailbox,
		Backend:   backend,
		Triage:    svc,
		Scheduler: scheduler.NewScheduler(&cfg.Scheduler, svc, cfg.Triage.SyncLimit),
		Metrics:   m,
	}, nil
}

// newLiveMailbox returns nil when mock data is requested
func newLiveMailbox(ctx context.Context, cfg config.GmailConfig) (provider.Mailbox, error) {
	if cfg.UseMock || !cfg.Enabled {
		logrus.Info("Using mock email data")
		return nil, nil
	}

	gmailProvider, err := provider.NewGmailProvider(ctx, cfg)
	if err != nil {
		return nil, fmt.Errorf("failed to create Gmail provider: %w", err)
	}
	if cfg.UseIMAP {
		logrus.Info("Using IMAP for email fetching")
		return provider.NewIMAPGmailMailbox(provider.NewIMAPFetcher(cfg), gmailProvider), nil
	}
	logrus.Info("Using Gmail API for email fetching")
	return gmailProvider, nil
}

// Close releases the database connection
func (a *App) Close() error {
	sqlDB, err := a.DB.DB()
	if err != nil {
		return err
	}
	return sqlDB.Close()
}

// Serve runs the HTTP server until SIGINT or SIGTERM
func (a *App) Serve() error {
	h := handler.NewHandlers(a.Triage, a.Mailbox, a.Scheduler, a.Backend, a.Config, nil)
	srv := &http.Server{
		Addr:         ":" + a.Config.Server.Port,
		Handler:      router.SetupRouter(h, a.Config.Server.AllowedOrigins),
		ReadTimeout:  a.Config.Server.ReadTimeout,
		WriteTimeout: a.Config.Server.WriteTimeout,
	}

	if a.Config.Scheduler.Enabled {
		if err := a.Scheduler.Start(); err != nil {
			return fmt.Errorf("failed to start scheduler: %w", err)
		}
	}

	serverErr := make(chan error, 1)
	go func() {
		logrus.Infof("Starting HTTP server on port %s", a.Config.Server.Port)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serverErr <- err
		}
		close(serverErr)
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	defer signal.Stop(quit)

	var runErr error
	select {
	case <-quit:
	case err, ok := <-serverErr:
		if ok {
			runErr = fmt.Errorf("HTTP server error: %w", err)
		}
	}

	logrus.Info("Shutting down server...")
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := a.Scheduler.Stop(); err != nil {
		logrus.Errorf("Failed to stop scheduler: %v", err)
	}
	a.Scheduler.Wait()

	if err := srv.Shutdown(ctx); err != nil {
		logrus.Errorf("HTTP server shutdown error: %v", err)
	}

	logrus.Info("Server stopped gracefully")
	return runErr
}

// Run initializes and starts the application
func Run() error {
	logrus.Info("Starting Inbox Triage Service")

	a, err := Load(context.Background())
	if err != nil {
		return err
	}
	defer a.Close()

	return a.Serve()
}
