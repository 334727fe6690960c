package main

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/sirupsen/logrus"
	"google.golang.org/grpc"

	"customervoice.app/internal/audit"
	"customervoice.app/internal/auth"
	"customervoice.app/internal/config"
	"customervoice.app/internal/feedback"
	"customervoice.app/internal/httpapi"
	"customervoice.app/internal/migrate"
	"customervoice.app/internal/obs"
	"customervoice.app/internal/store/memory"
	"customervoice.app/internal/store/pg"
	"customervoice.app/internal/stream"
)

var (
	version = "0.1.0"
	commit  = "dev"
)

// backend is the union of store interfaces the API needs.
type backend interface {
	auth.IdentityStore
	auth.MembershipAdmin
	auth.WorkspaceStore
	auth.OverrideAdmin
	audit.Store
	feedback.Store
	httpapi.Pinger
}

func main() {
	_ = godotenv.Load()

	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "config: %v\n", err)
		os.Exit(1)
	}

	log := obs.InitLogger(obs.LogOptions{Level: cfg.Log.Level, Format: cfg.Log.Format})
	obs.Init()
	obs.InitBuildInfo(version, commit, cfg.Auth.Mode)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	store, closeStore, err := openBackend(ctx, cfg)
	if err != nil {
		log.WithError(err).Fatal("storage_init_failed")
	}
	defer closeStore()

	resolver, err := newResolver(ctx, cfg, store)
	if err != nil {
		log.WithError(err).Fatal("auth_init_failed")
	}

	proxies, err := httpapi.ParseTrustedProxies(cfg.HTTP.TrustedProxies)
	if err != nil {
		log.WithError(err).Fatal("http_trusted_proxies_invalid")
	}

	ready := httpapi.ReadyProbe{DB: store}
	auditFeed := stream.New[audit.Event]("audit", 32)
	api := httpapi.New(httpapi.Deps{
		Resolver:   resolver,
		Evaluator:  auth.NewEvaluator(store),
		Members:    auth.NewMemberService(store),
		Policies:   auth.NewPolicyService(store),
		Workspaces: store,
		Feedback:   feedback.NewService(store),
		Audit:      audit.NewEmitter(store, audit.WithPublisher(auditFeed)),
		Stream:     auditFeed,
		Ready:      ready,
	}, httpapi.Options{
		Version:        version,
		RateBurst:      cfg.HTTP.RateBurst,
		RatePerSec:     cfg.HTTP.RatePerSec,
		MaxBodyBytes:   cfg.HTTP.MaxBodyBytes,
		TrustedProxies: proxies,
	})

	srv := &http.Server{
		Addr:              cfg.Server.Addr,
		Handler:           api.Handler(),
		ReadTimeout:       15 * time.Second,
		ReadHeaderTimeout: 15 * time.Second,
		WriteTimeout:      15 * time.Second,
		IdleTimeout:       60 * time.Second,
	}

	var grpcSrv *grpc.Server
	if cfg.Server.GRPCAddr != "" {
		grpcSrv, err = startGRPC(ctx, cfg.Server.GRPCAddr, ready, log)
		if err != nil {
			log.WithError(err).Fatal("grpc_listen_failed")
		}
	}

	log.WithFields(logrus.Fields{
		"version":   version,
		"addr":      srv.Addr,
		"grpc_addr": cfg.Server.GRPCAddr,
		"auth_mode": cfg.Auth.Mode,
		"env":       cfg.Env,
	}).Info("server_starting")

	go func() {
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.WithError(err).Fatal("http_listen_failed")
		}
	}()

	<-ctx.Done()
	log.Info("server_stopping")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.WithError(err).Warn("http_shutdown_failed")
	}
	if grpcSrv != nil {
		grpcSrv.GracefulStop()
	}
	log.Info("server_stopped")
}

// openBackend connects to PostgreSQL when a URL is configured and falls back
// to the in-memory store with a bootstrapped workspace otherwise.
func openBackend(ctx context.Context, cfg *config.Config) (backend, func(), error) {
	log := obs.Logger()
	if cfg.Database.URL == "" {
		mem := memory.New()
		ws, user, err := mem.Bootstrap(ctx, cfg.Seed)
		if err != nil {
			return nil, nil, err
		}
		log.WithFields(logrus.Fields{"workspace_id": ws, "user_id": user}).
			Warn("database_url_empty_using_memory_store")
		return mem, func() {}, nil
	}

	store, err := pg.Open(cfg.Database.URL, pg.PoolOptions{
		MaxOpenConns: cfg.Database.MaxOpenConns,
		MaxIdleConns: cfg.Database.MaxIdleConns,
	})
	if err != nil {
		return nil, nil, fmt.Errorf("open database: %w", err)
	}
	closeFn := func() { _ = store.Close() }

	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := store.Ping(pingCtx); err != nil {
		closeFn()
		return nil, nil, fmt.Errorf("ping database: %w", err)
	}

	if cfg.Database.AutoMigrate {
		if err := migrate.NewManager(store.DB(), migrate.Schema(), nil).Up(ctx); err != nil {
			closeFn()
			return nil, nil, fmt.Errorf("apply migrations: %w", err)
		}
		log.Info("migrations_applied")
	}

	if cfg.Seed.Enabled {
		res, err := store.Bootstrap(ctx, cfg.Seed)
		if err != nil {
			closeFn()
			return nil, nil, fmt.Errorf("bootstrap seed: %w", err)
		}
		log.WithFields(logrus.Fields{
			"tenant_id":    res.TenantID,
			"workspace_id": res.WorkspaceID,
			"user_id":      res.UserID,
		}).Info("bootstrap_seed_applied")
	}
	return store, closeFn, nil
}

func newResolver(ctx context.Context, cfg *config.Config, store backend) (auth.Resolver, error) {
	if cfg.Auth.Mode == config.AuthModeTrustedHeader {
		obs.Logger().Warn("trusted_header_auth_enabled")
		return auth.TrustedHeaderResolver{}, nil
	}

	opts := []auth.VerifierOption{
		auth.WithIssuer(cfg.Auth.Issuer),
		auth.WithAudience(cfg.Auth.Audience),
		auth.WithHMACSecret(cfg.Auth.JWTSecret),
		auth.WithLeeway(30 * time.Second),
	}
	jwksURL := cfg.Auth.JWKSURL
	if jwksURL == "" && cfg.Auth.OIDCDiscovery && cfg.Auth.Issuer != "" {
		discoverCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
		defer cancel()
		url, err := auth.DiscoverKeySetURL(discoverCtx, cfg.Auth.Issuer)
		if err != nil {
			return nil, err
		}
		jwksURL = url
	}
	if jwksURL != "" {
		opts = append(opts, auth.WithKeySet(auth.NewKeySet(jwksURL, &http.Client{Timeout: 5 * time.Second})))
	}

	verifier, err := auth.NewTokenVerifier(opts...)
	if err != nil {
		return nil, err
	}
	return auth.NewSignedTokenResolver(verifier, store, store), nil
}

func startGRPC(ctx context.Context, addr string, ready httpapi.ReadyProbe, log *logrus.Logger) (*grpc.Server, error) {
	lis, err := net.Listen("tcp", addr)
	if err != nil {
		return nil, err
	}
	health := httpapi.NewGRPCServer(ready, version)
	srv := grpc.NewServer()
	health.Register(srv)

	go health.Watch(ctx, 10*time.Second)
	go func() {
		log.WithField("addr", addr).Info("grpc_serving")
		if err := srv.Serve(lis); err != nil && !errors.Is(err, grpc.ErrServerStopped) {
			log.WithError(err).Error("grpc_serve_failed")
		}
	}()
	return srv, nil
}
