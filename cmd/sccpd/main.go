package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"strconv"
	"syscall"
	"time"

	"github.com/flowpbx/sccpd/internal/api"
	"github.com/flowpbx/sccpd/internal/api/middleware"
	"github.com/flowpbx/sccpd/internal/config"
	"github.com/flowpbx/sccpd/internal/database"
	"github.com/flowpbx/sccpd/internal/metrics"
	"github.com/flowpbx/sccpd/internal/monitor"
	"github.com/flowpbx/sccpd/internal/pgstore"
	"github.com/flowpbx/sccpd/internal/sccp"
	"golang.org/x/sync/errgroup"
)

// version is set at build time with -ldflags "-X main.version=...".
var version = "dev"

func main() {
	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(2)
	}

	logger := slog.New(cfg.SlogHandler(os.Stdout))
	slog.SetDefault(logger)

	if err := run(cfg, logger); err != nil {
		logger.Error("sccpd exited", "error", err)
		os.Exit(1)
	}
}

func run(cfg *config.Config, logger *slog.Logger) error {
	logger.Info("starting sccpd",
		"version", version,
		"sccp_addr", cfg.SCCPListenAddr(),
		"http_port", cfg.HTTPPort,
		"data_dir", cfg.DataDir,
	)

	db, err := database.Open(cfg.DataDir)
	if err != nil {
		return fmt.Errorf("opening database: %w", err)
	}
	defer db.Close()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	sysConfig, err := database.NewSystemConfigRepository(ctx, db)
	if err != nil {
		return fmt.Errorf("loading system config: %w", err)
	}

	admins := database.NewAdminUserRepository(db)
	created, err := database.EnsureAdmin(ctx, admins, cfg.AdminUser, cfg.AdminPassword)
	if err != nil {
		return fmt.Errorf("bootstrapping admin user: %w", err)
	}
	if created {
		logger.Info("bootstrap admin user created", "username", cfg.AdminUser)
	} else if n, err := admins.Count(ctx); err == nil && n == 0 {
		logger.Warn("no admin user configured, the admin api login is unusable")
	}

	// Phone messages live in PostgreSQL when a DSN is given so several
	// servers can share them.
	var messages sccp.MessageStore = database.NewDeviceMessageRepository(db)
	if cfg.DBDSN != "" {
		pg, err := pgstore.New(ctx, cfg.DBDSN, logger)
		if err != nil {
			return fmt.Errorf("opening postgresql message store: %w", err)
		}
		defer pg.Close()
		messages = pg
	}

	provisioning := database.NewProvisioningRepository(db)
	prov, err := provisioning.Load(ctx)
	if err != nil {
		return fmt.Errorf("loading provisioning: %w", err)
	}
	if len(prov.Lines) == 0 {
		logger.Warn("no lines provisioned, push a configuration to /api/v1/config")
	}

	mon := monitor.New(monitor.SystemClock{}, cfg.MonitorMaxWait, logger)
	store := sccp.NewStore()
	calls := sccp.NewLocalCallControl(logger)
	alloc := sccp.NewAllocator(store, calls, mon, logger)
	calls.Bind(alloc)

	opts := sccp.DefaultOptions()
	opts.Keepalive = cfg.Keepalive
	opts.KeepaliveGrace = cfg.KeepaliveGrace
	opts.AllowAnonymous = cfg.AllowAnonymous
	opts.DateFormat = cfg.DateFormat
	opts.ServerName = cfg.ServerName
	dispatcher := sccp.NewDispatcher(store, alloc, mon, messages, opts, logger)

	if _, err := dispatcher.ApplyConfig(prov); err != nil {
		return fmt.Errorf("applying provisioning: %w", err)
	}
	rev, _ := sysConfig.Get(ctx, database.ConfigProvisioningRevision)
	logger.Info("provisioning loaded", "lines", len(prov.Lines), "devices", len(prov.Devices), "revision", revisionOrZero(rev))

	counters := metrics.NewCounters()
	dispatcher.SetObserver(counters)
	reg, err := metrics.NewRegistry(metrics.NewCollector(store, alloc, time.Now()), counters)
	if err != nil {
		return fmt.Errorf("registering metrics: %w", err)
	}

	acceptLimiter := middleware.NewIPRateLimiter(middleware.AcceptRateLimitConfig(), logger.With("subsystem", "accept_limiter"))
	defer acceptLimiter.Stop()

	sccpSrv := sccp.NewServer(dispatcher, sccp.ServerConfig{
		Addr:            cfg.SCCPListenAddr(),
		MaxFrameSize:    uint32(cfg.MaxFrameSize),
		ShutdownTimeout: cfg.ShutdownTimeout,
		Limiter:         acceptLimiter,
	}, logger)
	if err := sccpSrv.Listen(); err != nil {
		return err
	}

	secret, err := cfg.JWTSecretBytes()
	if err != nil {
		return fmt.Errorf("decoding jwt secret: %w", err)
	}

	handler := api.NewServer(api.Options{
		Dispatcher:   dispatcher,
		Provisioning: provisioning,
		AdminUsers:   admins,
		SystemConfig: sysConfig,
		JWTSecret:    secret,
		Metrics:      metrics.Handler(reg),
		Version:      version,
	}, logger)
	defer handler.Close()

	httpSrv := &http.Server{
		Addr:         fmt.Sprintf(":%d", cfg.HTTPPort),
		Handler:      handler,
		ReadTimeout:  10 * time.Second,
		WriteTimeout: 30 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		return sccpSrv.Run(gctx)
	})
	g.Go(func() error {
		logger.Info("http server listening", "addr", httpSrv.Addr)
		if err := httpSrv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("http server: %w", err)
		}
		return nil
	})
	g.Go(func() error {
		<-gctx.Done()
		logger.Info("shutting down servers")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.ShutdownTimeout)
		defer cancel()
		return httpSrv.Shutdown(shutdownCtx)
	})

	if err := g.Wait(); err != nil {
		return err
	}
	logger.Info("sccpd stopped")
	return nil
}

func revisionOrZero(s string) int {
	n, err := strconv.Atoi(s)
	if err != nil {
		return 0
	}
	return n
}
