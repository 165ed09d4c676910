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

	"github.com/google/uuid"
	"github.com/nats-io/nats.go"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/redis/go-redis/v9"

	"github.com/example/studymates/internal/application"
	"github.com/example/studymates/internal/auth"
	"github.com/example/studymates/internal/config"
	httptransport "github.com/example/studymates/internal/http"
	"github.com/example/studymates/internal/lock"
	"github.com/example/studymates/internal/logging"
	"github.com/example/studymates/internal/metrics"
	"github.com/example/studymates/internal/persistence/gormstore"
	"github.com/example/studymates/internal/realtime"
)

func main() {
	logger := logging.New(os.Stdout, slog.LevelInfo)
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	cfg, err := config.Load()
	if err != nil {
		logger.Error("failed to load configuration", "error", err)
		os.Exit(1)
	}

	level, err := logging.ParseLevel(cfg.LogLevel)
	if err != nil {
		logger.Warn("unknown log level, using info", "error", err)
	}
	logger = logging.New(os.Stdout, level)

	if err := run(ctx, cfg, logger); err != nil {
		logger.Error("studymates stopped with error", "error", err)
		os.Exit(1)
	}
}

func run(ctx context.Context, cfg config.Config, logger *slog.Logger) error {
	deps, err := openDependencies(ctx, cfg, logger)
	if err != nil {
		return err
	}
	defer deps.Close()

	app, err := newApplication(cfg, deps, logger, time.Now, uuid.NewString)
	if err != nil {
		return err
	}

	go app.membership.RunExpirySweeper(ctx, cfg.ExpirySweepInterval)

	server := &http.Server{
		Addr:              cfg.Addr(),
		Handler:           app.handler,
		ReadHeaderTimeout: 10 * time.Second,
		ReadTimeout:       30 * time.Second,
		IdleTimeout:       60 * time.Second,
	}

	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := server.Shutdown(shutdownCtx); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("failed to shutdown server", "error", err)
		}
	}()

	logger.Info("studymates API listening", "addr", server.Addr)
	if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return fmt.Errorf("server encountered error: %w", err)
	}
	return nil
}

// dependencies are the external systems the services run against.
type dependencies struct {
	store    *gormstore.Store
	feed     *realtime.Feed
	locker   *lock.RedisLocker
	registry *prometheus.Registry
	pingers  map[string]httptransport.Pinger
	closers  []func()
}

// Close releases dependencies in reverse order of acquisition.
func (d *dependencies) Close() {
	for i := len(d.closers) - 1; i >= 0; i-- {
		d.closers[i]()
	}
	d.closers = nil
}

func openDependencies(ctx context.Context, cfg config.Config, logger *slog.Logger) (deps *dependencies, err error) {
	deps = &dependencies{
		registry: prometheus.NewRegistry(),
		pingers:  make(map[string]httptransport.Pinger),
	}
	defer func() {
		if err != nil {
			deps.Close()
			deps = nil
		}
	}()

	deps.registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)

	store, err := gormstore.Open(cfg.DatabaseDriver, cfg.DatabaseDSN)
	if err != nil {
		return nil, fmt.Errorf("failed to open storage: %w", err)
	}
	deps.store = store
	deps.pingers["database"] = store
	deps.closers = append(deps.closers, func() {
		if cerr := store.Close(); cerr != nil {
			logger.Error("failed to close storage", "error", cerr)
		}
	})

	if err := store.Migrate(ctx); err != nil {
		return nil, fmt.Errorf("failed to apply migrations: %w", err)
	}

	natsURL := cfg.NATSURL
	if natsURL == "" {
		server, err := realtime.StartEmbeddedServer("127.0.0.1", -1)
		if err != nil {
			return nil, fmt.Errorf("failed to start embedded nats: %w", err)
		}
		deps.closers = append(deps.closers, server.Shutdown)
		natsURL = server.ClientURL()
		logger.Info("embedded nats server started", "url", natsURL)
	}

	conn, err := nats.Connect(natsURL, nats.Name("studymates"), nats.MaxReconnects(-1))
	if err != nil {
		return nil, fmt.Errorf("failed to connect to nats: %w", err)
	}
	deps.closers = append(deps.closers, conn.Close)
	deps.feed = realtime.NewFeed(conn, logger)
	deps.pingers["nats"] = natsPinger{conn: conn}

	if cfg.RedisAddr != "" {
		client := redis.NewClient(&redis.Options{Addr: cfg.RedisAddr})
		deps.closers = append(deps.closers, func() {
			if cerr := client.Close(); cerr != nil {
				logger.Error("failed to close redis client", "error", cerr)
			}
		})
		locker := lock.NewRedisLocker(client, "")
		if err := locker.Ping(ctx); err != nil {
			return nil, fmt.Errorf("failed to reach redis: %w", err)
		}
		deps.locker = locker
		deps.pingers["redis"] = locker
	} else {
		logger.Warn("redis address not set, join request decisions rely on database conditions only")
	}

	return deps, nil
}

// app is the wired HTTP surface together with the services background work needs.
type app struct {
	handler    http.Handler
	membership *application.MembershipService
}

func newApplication(cfg config.Config, deps *dependencies, logger *slog.Logger, now func() time.Time, ids func() string) (*app, error) {
	verifier, err := auth.NewVerifier(cfg.JWTSecret, cfg.JWTIssuer, now)
	if err != nil {
		return nil, fmt.Errorf("failed to configure token verification: %w", err)
	}

	opts := []application.Option{
		application.WithLogger(logger),
		application.WithRecorder(metrics.NewRecorder(deps.registry)),
		application.WithJoinRequestTTL(cfg.JoinRequestTTL),
		application.WithNearbyRadius(cfg.NearbyRadiusMeters),
		application.WithEmailDomain(cfg.EmailDomain),
	}
	if deps.feed != nil {
		opts = append(opts, application.WithChangePublisher(deps.feed))
	}
	if deps.locker != nil {
		opts = append(opts, application.WithLocker(deps.locker))
	}

	store := newStoreAdapter(deps.store)
	membership := application.NewMembershipService(store, ids, now, opts...)
	sessions := application.NewSessionService(store, now, opts...)
	users := application.NewUserService(store, now, opts...)

	routerCfg := httptransport.RouterConfig{
		Users:        httptransport.NewUserHandler(users, logger),
		Sessions:     httptransport.NewSessionHandler(sessions, membership, logger),
		JoinRequests: httptransport.NewJoinRequestHandler(membership, now, logger),
		Health:       httptransport.NewHealthHandler(deps.pingers, logger),
		Metrics:      promhttp.HandlerFor(deps.registry, promhttp.HandlerOpts{Registry: deps.registry}),
		Middleware: []func(http.Handler) http.Handler{
			httptransport.RequestLogger(logger),
			httptransport.Authenticate(verifier, logger),
		},
	}
	if deps.feed != nil {
		routerCfg.Events = httptransport.NewEventsHandler(deps.feed, sessions, users, logger)
	}

	return &app{handler: httptransport.NewRouter(routerCfg), membership: membership}, nil
}

type natsPinger struct {
	conn *nats.Conn
}

func (p natsPinger) Ping(ctx context.Context) error {
	if !p.conn.IsConnected() {
		return fmt.Errorf("nats connection is %s", p.conn.Status())
	}
	return p.conn.FlushWithContext(ctx)
}
