package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gorilla/mux"
	"github.com/spf13/cobra"

	"github.com/rydnr/bytehot-go/internal/adapter"
	"github.com/rydnr/bytehot-go/internal/classifier"
	"github.com/rydnr/bytehot-go/internal/config"
	"github.com/rydnr/bytehot-go/internal/domain"
	"github.com/rydnr/bytehot-go/internal/errclass"
	"github.com/rydnr/bytehot-go/internal/identity"
	"github.com/rydnr/bytehot-go/internal/instance"
	"github.com/rydnr/bytehot-go/internal/orchestrator"
	"github.com/rydnr/bytehot-go/internal/realtime"
	"github.com/rydnr/bytehot-go/internal/redefine"
	"github.com/rydnr/bytehot-go/internal/rollback"
	"github.com/rydnr/bytehot-go/internal/storage"
	"github.com/rydnr/bytehot-go/internal/validator"
	"github.com/rydnr/bytehot-go/internal/watcher"
	"github.com/rydnr/bytehot-go/pkg/logger"
	pkgmetrics "github.com/rydnr/bytehot-go/pkg/metrics"
	"github.com/rydnr/bytehot-go/pkg/recentcache"
)

func newRunCmd(configPath *string) *cobra.Command {
	return &cobra.Command{
		Use:   "run",
		Short: "Start the agent: watch configured paths and hot-swap artifact changes in process",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runAgent(cmd.Context(), *configPath)
		},
	}
}

func runAgent(ctx context.Context, configPath string) error {
	cfg, err := loadConfig(configPath)
	if err != nil {
		return fmt.Errorf("loading configuration: %w", err)
	}

	log := logger.NewLogger(logger.Config{
		Level:      cfg.Log.Level,
		Format:     cfg.Log.Format,
		Output:     cfg.Log.Output,
		Filename:   cfg.Log.Filename,
		MaxSize:    cfg.Log.MaxSize,
		MaxBackups: cfg.Log.MaxBackups,
		MaxAge:     cfg.Log.MaxAge,
		Compress:   cfg.Log.Compress,
	})

	sanitizer := config.NewDefaultConfigSanitizer()
	log.Info("starting agent",
		"app", cfg.App.Name,
		"version", cfg.App.Version,
		"environment", cfg.App.Environment,
		"profile", cfg.Profile,
		"config", sanitizer.Sanitize(cfg),
	)

	ctx, cancel := signal.NotifyContext(ctx, syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	store, err := storage.Open(ctx, cfg, log)
	if err != nil {
		return fmt.Errorf("opening event log: %w", err)
	}
	defer func() {
		if closer, ok := store.(interface{ Close() error }); ok {
			if cerr := closer.Close(); cerr != nil {
				log.Warn("event log close failed", "error", cerr)
			}
		}
	}()

	identityResolver := identity.NewResolver(cfg.Identity.Override, cfg.Identity.EnvVar)

	recentWindow := recentcache.NewWindow(256)
	errorClassifier := errclass.New(recentWindow)

	tracker := instance.NewTracker()
	preserver := instance.NewPreserver()
	adapters := adapter.NewRegistry()
	updater := instance.NewUpdater(tracker, preserver, adapters, log)

	redefiner := redefine.NewRegistry()
	rollbackMgr := rollback.NewManager(tracker, preserver, redefiner, cfg.Rollback.SnapshotRetentionPerClass, cfg.Rollback.Timeout)

	orch := orchestrator.New(
		store,
		validator.New(),
		rollbackMgr,
		tracker,
		updater,
		adapters,
		redefiner,
		errorClassifier,
		log,
		orchestrator.Options{StrictMode: cfg.Instance.StrictMode},
	)

	realtimeMetrics := realtime.NewRealtimeMetrics(cfg.App.Name)
	eventBus := realtime.NewEventBus(log, realtimeMetrics)
	publisher := realtime.NewEventPublisher(eventBus, log, realtimeMetrics)
	if err := eventBus.Start(ctx); err != nil {
		return fmt.Errorf("starting event bus: %w", err)
	}
	defer eventBus.Stop(context.Background())

	artifactClassifier := classifier.New(classifier.Config{
		ArtifactSuffix:       ".class",
		ArtifactMagic:        []byte{0xCA, 0xFE, 0xBA, 0xBE},
		RejectSyntheticInner: true,
		SettlingAttempts:     cfg.Watch.SettlingAttempts,
		SettlingDelay:        cfg.Watch.SettlingDelay,
	})

	sessions, err := startWatchers(ctx, cfg, log, artifactClassifier, orch, publisher, identityResolver)
	if err != nil {
		return fmt.Errorf("starting watchers: %w", err)
	}
	defer stopWatchers(sessions, cfg.Watch.PollInterval)

	var adminServer *http.Server
	if cfg.Admin.Enabled {
		adminServer, err = startAdminServer(cfg, log, eventBus)
		if err != nil {
			return fmt.Errorf("starting admin server: %w", err)
		}
	}

	log.Info("agent ready", "watched_paths", cfg.Watch.Paths, "admin_enabled", cfg.Admin.Enabled)
	<-ctx.Done()
	log.Info("shutdown signal received")

	if adminServer != nil {
		shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), cfg.Admin.GracefulShutdownTimeout)
		defer shutdownCancel()
		if err := adminServer.Shutdown(shutdownCtx); err != nil {
			log.Warn("admin server shutdown error", "error", err)
		}
	}

	return nil
}

func loadConfig(configPath string) (*config.Config, error) {
	if configPath != "" {
		return config.LoadConfig(configPath)
	}
	return config.LoadConfigFromEnv()
}

// startWatchers launches one watcher.Session per configured watch root,
// wiring classified events through the orchestrator and onto the realtime
// event bus.
func startWatchers(
	ctx context.Context,
	cfg *config.Config,
	log *slog.Logger,
	artifactClassifier *classifier.Classifier,
	orch *orchestrator.Orchestrator,
	publisher *realtime.EventPublisher,
	identityResolver *identity.Resolver,
) ([]*watcher.Session, error) {
	if len(cfg.Watch.Paths) == 0 {
		return nil, errors.New("no watch paths configured")
	}

	sessions := make([]*watcher.Session, 0, len(cfg.Watch.Paths))
	for _, root := range cfg.Watch.Paths {
		session := watcher.NewSession(root, cfg.Watch.PollInterval, log)

		onEvent := func(raw watcher.RawEvent) {
			correlationID := logger.GenerateCorrelationID()
			userIdentity := identityResolver.AutoIdentify()

			event, ok := artifactClassifier.Classify(raw, correlationID)
			if !ok {
				return
			}
			publisher.PublishArtifactDetected(event, userIdentity)

			if event.Kind == domain.ArtifactDeleted {
				return
			}

			data, err := os.ReadFile(event.Path.AbsolutePath)
			if err != nil {
				log.Warn("failed to read settled artifact", "path", event.Path.AbsolutePath, "error", err)
				return
			}

			result := orch.HandleArtifact(ctx, event, data, correlationID)
			if err := publisher.PublishChangeResult(result); err != nil {
				log.Warn("failed to publish change result", "type_key", result.TypeKey, "error", err)
			}
		}

		if err := session.Start(ctx, onEvent); err != nil {
			for _, started := range sessions {
				started.Stop(cfg.Watch.PollInterval)
			}
			return nil, fmt.Errorf("starting watcher session for %s: %w", root, err)
		}
		sessions = append(sessions, session)
	}

	return sessions, nil
}

func stopWatchers(sessions []*watcher.Session, drainTimeout time.Duration) {
	for _, session := range sessions {
		_ = session.Stop(drainTimeout)
	}
}

// startAdminServer exposes the admin dashboard's HTTP surface: health,
// Prometheus metrics and the realtime websocket feed.
func startAdminServer(cfg *config.Config, log *slog.Logger, eventBus realtime.EventBus) (*http.Server, error) {
	registry := pkgmetrics.NewMetricsRegistry(cfg.App.Name)

	router := mux.NewRouter()
	router.HandleFunc("/healthz", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		w.Write([]byte("ok"))
	})

	if cfg.Metrics.Enabled {
		endpointHandler, err := pkgmetrics.NewMetricsEndpointHandler(pkgmetrics.DefaultEndpointConfig(), registry)
		if err != nil {
			return nil, fmt.Errorf("building metrics endpoint: %w", err)
		}
		router.Handle(cfg.Metrics.Path, endpointHandler)
	}

	router.Handle("/ws", realtime.NewHandler(eventBus, log))

	server := &http.Server{
		Addr:         fmt.Sprintf("%s:%d", cfg.Admin.Host, cfg.Admin.Port),
		Handler:      router,
		ReadTimeout:  cfg.Admin.ReadTimeout,
		WriteTimeout: cfg.Admin.WriteTimeout,
	}

	go func() {
		log.Info("admin server starting", "addr", server.Addr)
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Error("admin server failed", "error", err)
		}
	}()

	return server, nil
}
