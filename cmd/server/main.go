// Command gk-server starts the gatekeeper access-control service.
package main

import (
	"context"
	"errors"
	"flag"
	"net"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"go.uber.org/zap"

	"github.com/and161185/gatekeeper/internal/config"
	"github.com/and161185/gatekeeper/internal/limiter"
	"github.com/and161185/gatekeeper/internal/migrate"
	"github.com/and161185/gatekeeper/internal/repository"
	"github.com/and161185/gatekeeper/internal/repository/memory"
	"github.com/and161185/gatekeeper/internal/repository/postgres"
	grpcserver "github.com/and161185/gatekeeper/internal/server/grpc"
	httpserver "github.com/and161185/gatekeeper/internal/server/http"
	"github.com/and161185/gatekeeper/internal/service"
	"github.com/and161185/gatekeeper/internal/usage"
)

var (
	version   = "dev"
	buildDate = "unknown"
)

type stores struct {
	clients    repository.ClientRepository
	tokens     repository.TokenRepository
	usage      repository.UsageRepository
	facilities repository.FacilityRepository
	lockout    limiter.Lockout
	close      func()
}

// openStores connects to PostgreSQL and migrates it, or falls back to the
// in-memory store when no DSN is configured.
func openStores(ctx context.Context, log *zap.Logger, cfg *config.Config) (*stores, error) {
	if cfg.Database.DSN == "" {
		log.Warn("no database.dsn configured, using in-memory store; data is lost on exit")
		st := memory.New()
		return &stores{
			clients:    st,
			tokens:     st.Tokens(),
			usage:      st.Usage(),
			facilities: st,
			lockout:    limiter.Nop{},
			close:      func() {},
		}, nil
	}

	schema, err := migrate.Up(ctx, cfg.Database.DSN, log)
	if err != nil {
		return nil, err
	}
	log.Info("schema ready", zap.Int64("version", schema))

	db, err := postgres.New(ctx, cfg.Database.DSN, postgres.PoolOptions{MaxConns: cfg.Database.MaxConns})
	if err != nil {
		return nil, err
	}
	return &stores{
		clients:    postgres.NewClientRepo(db),
		tokens:     postgres.NewTokenRepo(db),
		usage:      postgres.NewUsageRepo(db),
		facilities: postgres.NewFacilityRepo(db),
		lockout:    limiter.NewPG(db.Pool, cfg.Lockout.Window, cfg.Lockout.MaxFailures, cfg.Lockout.BlockFor),
		close:      db.Close,
	}, nil
}

// purgeTokens deletes long-expired tokens every interval until ctx is done.
func purgeTokens(ctx context.Context, log *zap.Logger, issuer *service.TokenIssuerImpl, every, grace time.Duration) {
	t := time.NewTicker(every)
	defer t.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-t.C:
			n, err := issuer.PurgeExpired(ctx, grace)
			if err != nil {
				log.Warn("token purge failed", zap.Error(err))
				continue
			}
			if n > 0 {
				log.Info("expired tokens purged", zap.Int64("count", n))
			}
		}
	}
}

// main loads configuration, opens storage and serves HTTP and gRPC health
// until SIGINT or SIGTERM.
func main() {
	// Flags override the config file and environment.
	cfgPath := flag.String("config", "", "path to YAML config file")
	httpAddr := flag.String("http-addr", "", "HTTP listen address")
	grpcAddr := flag.String("grpc-addr", "", "gRPC health listen address")
	dsn := flag.String("dsn", "", "PostgreSQL DSN (empty: in-memory store)")
	dev := flag.Bool("dev", false, "development logging and gRPC reflection")
	flag.Parse()

	cfg, err := config.Load(*cfgPath)
	if err != nil {
		_, _ = os.Stderr.WriteString(err.Error() + "\n")
		os.Exit(2)
	}
	flag.Visit(func(f *flag.Flag) {
		switch f.Name {
		case "http-addr":
			cfg.HTTPAddr = *httpAddr
		case "grpc-addr":
			cfg.GRPCAddr = *grpcAddr
		case "dsn":
			cfg.Database.DSN = *dsn
		case "dev":
			cfg.Dev = *dev
		}
	})

	logger, _ := zap.NewProduction()
	if cfg.Dev {
		logger, _ = zap.NewDevelopment()
	}
	defer func() { _ = logger.Sync() }()
	logger.Info("starting",
		zap.String("version", version),
		zap.String("buildDate", buildDate),
		zap.String("http", cfg.HTTPAddr),
		zap.String("grpc", cfg.GRPCAddr),
	)
	if cfg.Admin.JWTKey == "" {
		logger.Warn("admin.jwt_key not set, admin API disabled")
	}

	// Context with OS signals
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	st, err := openStores(ctx, logger, cfg)
	if err != nil {
		logger.Fatal("open storage", zap.Error(err))
	}
	defer st.close()

	// Services
	issuer := service.NewTokenIssuer(st.clients, st.tokens, st.lockout, service.IssuerConfig{
		TTL:          cfg.Token.TTL,
		MaxActive:    cfg.Token.MaxActive,
		StoreTimeout: cfg.Database.StoreTimeout,
	})
	authz := service.NewAuthorizer(st.tokens, cfg.Database.StoreTimeout)
	clients := service.NewClientService(st.clients, st.usage, cfg.Database.StoreTimeout)
	operators := service.NewOperatorAuth([]byte(cfg.Admin.JWTKey))

	rl := limiter.NewMemory(cfg.RateLimit.Window, cfg.RateLimit.IdleTTL)
	go rl.Run(ctx)
	if cfg.Token.PurgeInterval > 0 {
		go purgeTokens(ctx, logger.Named("purge"), issuer, cfg.Token.PurgeInterval, cfg.Token.PurgeGrace)
	}

	recorder := usage.NewRecorder(logger.Named("usage"), st.usage, usage.Config{
		Buffer:       cfg.Usage.Buffer,
		Workers:      cfg.Usage.Workers,
		BatchSize:    cfg.Usage.BatchSize,
		BatchTimeout: cfg.Usage.BatchTimeout,
	})
	recorder.Start()

	api := httpserver.New(httpserver.Deps{
		Log:          logger.Named("http"),
		Issuer:       issuer,
		Authorizer:   authz,
		Clients:      clients,
		Operators:    operators,
		Limiter:      rl,
		Usage:        recorder,
		Facilities:   st.facilities,
		StoreTimeout: cfg.Database.StoreTimeout,
	})
	httpSrv := &http.Server{
		Addr:              cfg.HTTPAddr,
		Handler:           api.Handler(),
		ReadHeaderTimeout: 5 * time.Second,
		ReadTimeout:       15 * time.Second,
		WriteTimeout:      30 * time.Second,
		IdleTimeout:       120 * time.Second,
	}

	health := grpcserver.NewHealth(logger.Named("grpc"), cfg.Dev)
	glis, err := net.Listen("tcp", cfg.GRPCAddr)
	if err != nil {
		logger.Fatal("listen grpc", zap.Error(err))
	}
	hlis, err := net.Listen("tcp", cfg.HTTPAddr)
	if err != nil {
		logger.Fatal("listen http", zap.Error(err))
	}

	errCh := make(chan error, 2)
	go func() { errCh <- health.Serve(glis) }()
	go func() {
		logger.Info("listening", zap.String("addr", cfg.HTTPAddr))
		if err := httpSrv.Serve(hlis); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
	}()
	health.SetServing(true)

	// Wait for stop
	exit := 0
	select {
	case <-ctx.Done():
	case err := <-errCh:
		logger.Error("server error", zap.Error(err))
		exit = 1
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.ShutdownTimeout)
	defer cancel()

	health.SetServing(false)
	if err := httpSrv.Shutdown(shutdownCtx); err != nil {
		logger.Warn("http shutdown", zap.Error(err))
	}
	health.Stop(shutdownCtx)
	if err := recorder.Stop(shutdownCtx); err != nil {
		logger.Warn("usage recorder stop", zap.Error(err))
	}
	logger.Info("shutdown complete",
		zap.Uint64("usage_dropped", recorder.Dropped()),
		zap.Uint64("usage_failed", recorder.Failed()),
	)
	if exit != 0 {
		_ = logger.Sync()
		st.close()
		os.Exit(exit)
	}
}
