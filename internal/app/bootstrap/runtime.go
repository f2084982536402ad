package bootstrap

import (
	"context"
	"crypto/rand"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	cacheadapter "github.com/homedash/homedash/internal/adapters/cache"
	"github.com/homedash/homedash/internal/adapters/homeassistant"
	httpadapter "github.com/homedash/homedash/internal/adapters/http"
	"github.com/homedash/homedash/internal/adapters/postgres"
	"github.com/homedash/homedash/internal/adapters/security"
	"github.com/homedash/homedash/internal/application"
	"github.com/homedash/homedash/internal/ports"
)

type Runtime struct {
	cfg        Config
	logger     *slog.Logger
	svc        *application.Service
	httpServer *http.Server
	throttle   *cacheadapter.MemoryThrottle
	cleanupFn  func(context.Context)
}

func NewRuntime(ctx context.Context, configPath string) (*Runtime, error) {
	cfg, err := LoadConfig(configPath)
	if err != nil {
		return nil, err
	}

	logger := slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: slog.LevelInfo}))
	slog.SetDefault(logger)
	logger.Info("bootstrapping homedash auth core", "http_port", cfg.HTTPPort, "public_base_url", cfg.PublicBaseURL)

	pool, err := postgres.Connect(ctx, cfg.DatabaseURL, cfg.MaxDBConns)
	if err != nil {
		return nil, fmt.Errorf("connect postgres: %w", err)
	}
	sqlDB, err := pool.DB()
	if err != nil {
		return nil, fmt.Errorf("gorm sql db: %w", err)
	}

	if err := postgres.RunMigrations(ctx, pool); err != nil {
		_ = sqlDB.Close()
		return nil, fmt.Errorf("run migrations: %w", err)
	}

	repos := postgres.NewRepositories(pool)

	cipher, err := security.NewCredentialCipher(cfg.EncryptionKey)
	if err != nil {
		_ = sqlDB.Close()
		return nil, fmt.Errorf("init credential cipher: %w", err)
	}

	csrfSecret := cfg.CSRFSecret
	if len(csrfSecret) == 0 {
		logger.Warn("using ephemeral CSRF secret for local/dev runtime")
		csrfSecret = make([]byte, 32)
		_, _ = rand.Read(csrfSecret)
	}
	csrfSigner, err := security.NewCSRFSigner(csrfSecret, time.Hour)
	if err != nil {
		_ = sqlDB.Close()
		return nil, fmt.Errorf("init csrf signer: %w", err)
	}

	provider := homeassistant.NewOAuthClient(cfg.OAuthHTTPTimeout)

	var (
		throttle    ports.LoginThrottle
		pending     ports.PendingAuthStore
		permCache   ports.KeyValueCache
		configCache ports.KeyValueCache
		memThrottle *cacheadapter.MemoryThrottle
		cleanup     = func(context.Context) { _ = sqlDB.Close() }
	)
	if cfg.RedisURL != "" {
		redisClient, err := cacheadapter.Connect(ctx, cfg.RedisURL)
		if err != nil {
			_ = sqlDB.Close()
			return nil, fmt.Errorf("connect redis: %w", err)
		}
		if err := redisClient.Ping(ctx).Err(); err != nil {
			_ = sqlDB.Close()
			return nil, fmt.Errorf("ping redis: %w", err)
		}
		throttle = cacheadapter.NewRedisThrottle(redisClient, cfg.ThrottleThreshold, cfg.ThrottleWindow, cfg.ThrottleBlock)
		pending = cacheadapter.NewRedisPendingAuthStore(redisClient)
		permCache = cacheadapter.NewRedisCache(redisClient, "perms", cfg.PermCacheTTL)
		configCache = cacheadapter.NewRedisCache(redisClient, "config", cfg.ConfigCacheTTL)
		cleanup = func(context.Context) {
			_ = redisClient.Close()
			_ = sqlDB.Close()
		}
	} else {
		memThrottle = cacheadapter.NewMemoryThrottle(cfg.ThrottleThreshold, cfg.ThrottleWindow, cfg.ThrottleBlock)
		throttle = memThrottle
		pending = cacheadapter.NewMemoryPendingAuthStore()
		permCache = cacheadapter.NewMemoryCache(cfg.PermCacheTTL)
		configCache = cacheadapter.NewMemoryCache(cfg.ConfigCacheTTL)
	}

	svc := application.NewService(application.Dependencies{
		Config: application.Config{
			PublicBaseURL:    cfg.PublicBaseURL,
			DefaultRemoteURL: cfg.DefaultRemoteURL,
			PKCEEnabled:      cfg.PKCEEnabled,
			SessionTTL:       cfg.SessionTTL,
			PendingAuthTTL:   cfg.PendingAuthTTL,
			RefreshSkew:      cfg.RefreshSkew,
		},
		Users:       repos.Users,
		Sessions:    repos.Sessions,
		Credentials: repos.Credentials,
		Access:      repos.Access,
		Throttle:    throttle,
		Pending:     pending,
		PermCache:   permCache,
		ConfigCache: configCache,
		Cipher:      cipher,
		Provider:    provider,
	})

	httpadapter.RegisterMetrics()
	handler := httpadapter.NewHandler(svc, csrfSigner, cfg.SecureCookie)
	router := httpadapter.NewRouter(handler)
	httpServer := &http.Server{
		Addr:              fmt.Sprintf(":%d", cfg.HTTPPort),
		Handler:           router,
		ReadHeaderTimeout: 5 * time.Second,
	}

	return &Runtime{
		cfg:        cfg,
		logger:     logger,
		svc:        svc,
		httpServer: httpServer,
		throttle:   memThrottle,
		cleanupFn:  cleanup,
	}, nil
}

func (r *Runtime) RunAPI(ctx context.Context) error {
	ctx, stop := signal.NotifyContext(ctx, os.Interrupt, syscall.SIGTERM)
	defer stop()

	if r.throttle != nil {
		go r.throttle.RunGC(ctx, r.cfg.ThrottleGCEvery)
	}
	go r.runSessionSweeper(ctx)

	errCh := make(chan error, 1)
	go func() {
		r.logger.Info("http server started", "addr", r.httpServer.Addr)
		if err := r.httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- fmt.Errorf("http server: %w", err)
		}
	}()

	select {
	case <-ctx.Done():
		r.logger.Info("shutdown signal received")
	case err := <-errCh:
		r.logger.Error("server failure", "error", err)
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	_ = r.httpServer.Shutdown(shutdownCtx)
	r.cleanupFn(shutdownCtx)
	return nil
}

// runSessionSweeper deletes sessions past their absolute expiry on a timer.
// Validation already rejects them lazily; the sweeper just reclaims rows.
func (r *Runtime) runSessionSweeper(ctx context.Context) {
	ticker := time.NewTicker(r.cfg.SessionSweepEvery)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			removed, err := r.svc.PurgeExpiredSessions(ctx)
			if err != nil {
				r.logger.Warn("session sweep failed", "error", err.Error())
				continue
			}
			if removed > 0 {
				r.logger.Info("session sweep completed", "removed", removed)
			}
		}
	}
}
