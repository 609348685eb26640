// internal/app/server.go
package app

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"license-service/internal/config"
	"license-service/internal/db"
	catalogHandler "license-service/internal/handlers/catalog"
	licenseHandler "license-service/internal/handlers/license"
	sessionHandler "license-service/internal/handlers/session"
	validationHandler "license-service/internal/handlers/validation"
	wsHandler "license-service/internal/handlers/websocket"
	"license-service/internal/metrics"
	"license-service/internal/middleware"
	"license-service/internal/pkg/jwt"
	"license-service/internal/pkg/keygen"
	"license-service/internal/pkg/ratelimit"
	"license-service/internal/pkg/session"
	"license-service/internal/repository/memory"
	"license-service/internal/repository/postgres"
	catalogUsecase "license-service/internal/service/catalog"
	"license-service/internal/service/expiry"
	"license-service/internal/service/ledger"
	licenseUsecase "license-service/internal/service/license"
	validationUsecase "license-service/internal/service/validation"
	"license-service/internal/websocket"
	wsHandlers "license-service/internal/websocket/handler"

	"github.com/gin-gonic/gin"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
)

const shutdownTimeout = 10 * time.Second

// stores groups the repositories one storage driver provides.
type stores struct {
	licenses    licenseUsecase.Repository
	catalog     catalogUsecase.Repository
	activations ledger.Store
}

type Server struct {
	cfg     config.AppConfig
	logger  *zap.Logger
	engine  *gin.Engine
	hub     *websocket.Hub
	sweeper *expiry.Sweeper
	metrics *metrics.Collector

	checks  map[string]func(context.Context) error
	closers []func()
}

// NewServer connects storage, builds every service and registers routes.
// Nothing is served until Run.
func NewServer(ctx context.Context, cfg config.AppConfig, logger *zap.Logger) (*Server, error) {
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}
	if cfg.IsProduction() {
		gin.SetMode(gin.ReleaseMode)
	}

	s := &Server{
		cfg:     cfg,
		logger:  logger,
		engine:  gin.New(),
		metrics: metrics.New(),
		checks:  make(map[string]func(context.Context) error),
	}

	st, err := s.openStores(ctx)
	if err != nil {
		s.Close()
		return nil, err
	}

	// ----- JWT -----
	verifier, err := jwt.LoadVerifier(cfg.JWT)
	if err != nil {
		s.Close()
		return nil, fmt.Errorf("failed to load JWT verifier: %w", err)
	}

	// ----- Redis (optional) -----
	redisClient := s.openRedis(ctx)
	limiter := s.openLimiter(redisClient)
	sessions := s.openSessions(redisClient)

	// ----- WebSocket Hub -----
	s.hub = websocket.NewHub(verifier, logger).WithRevocations(sessions)

	// ----- Services -----
	activationLedger := ledger.NewLedger(st.activations, s.hub, s.metrics, logger, ledger.Config{
		MaxRetries: cfg.LedgerMaxRetries,
	})
	catalogService := catalogUsecase.NewCatalogService(st.catalog, logger)
	licenseService := licenseUsecase.NewLicenseService(
		st.licenses,
		catalogService,
		keygen.New(cfg.KeygenPrefix),
		activationLedger,
		s.hub,
		s.metrics,
		logger,
		licenseUsecase.Config{KeygenMaxAttempts: cfg.KeygenMaxAttempts},
	)
	validationService := validationUsecase.NewValidationService(st.licenses, catalogService, activationLedger, s.metrics, logger)
	s.sweeper = expiry.NewSweeper(licenseService, s.hub, s.metrics, logger, cfg.ExpirySweepInterval, cfg.ExpiryWarnDays)

	if err := s.hub.RegisterHandler(wsHandlers.NewActivationHandler(activationLedger)); err != nil {
		s.Close()
		return nil, fmt.Errorf("failed to register websocket handler: %w", err)
	}

	// ----- Middlewares -----
	s.engine.Use(
		middleware.RequestLogger(logger, s.metrics),
		middleware.RecoveryMiddleware(logger),
	)

	// ----- Router -----
	SetupRouter(s.engine, &Handlers{
		ValidationHandler: validationHandler.NewValidationHandler(validationService, logger),
		LicenseHandler:    licenseHandler.NewLicenseHandler(licenseService, activationLedger, logger),
		CatalogHandler:    catalogHandler.NewCatalogHandler(catalogService),
		WSHandler:         wsHandler.NewWebSocketHandler(s.hub, logger, cfg.AllowedOrigins),
		SessionHandler:    sessionHandler.NewSessionHandler(sessions, s.hub, logger),
		AuthMiddleware:    middleware.NewAuthMiddleware(verifier).WithRevocations(sessions),
		RateLimit:         middleware.RateLimit(limiter, s.metrics, logger),
		Metrics:           s.metrics,
		Health:            s.health,
	})

	return s, nil
}

func (s *Server) openStores(ctx context.Context) (*stores, error) {
	if s.cfg.StoreDriver == config.DriverMemory {
		s.logger.Warn("using in-memory store; data is lost on restart")
		store := memory.NewStore(memory.Options{LockTimeout: s.cfg.LedgerLockTimeout})
		return &stores{licenses: store, catalog: store, activations: store}, nil
	}

	// ----- PostgreSQL -----
	pool, err := db.ConnectDB(ctx, db.PostgresConfig{URL: s.cfg.DatabaseURL, MaxConns: s.cfg.DBMaxConns})
	if err != nil {
		return nil, fmt.Errorf("failed to connect to PostgreSQL: %w", err)
	}
	s.closers = append(s.closers, pool.Close)
	s.checks["postgres"] = pool.Ping

	applied, err := postgres.NewDB(pool).Migrate(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to migrate: %w", err)
	}
	s.logger.Info("schema up to date", zap.Strings("migrations", applied))

	return &stores{
		licenses:    postgres.NewLicenseRepository(pool),
		catalog:     postgres.NewCatalogRepository(pool),
		activations: postgres.NewActivationRepository(pool, s.cfg.LedgerLockTimeout),
	}, nil
}

// openRedis returns nil when redis is not configured or unreachable; the
// limiter and the revocation list then fall back to per-instance state.
func (s *Server) openRedis(ctx context.Context) *redis.Client {
	if s.cfg.RedisAddr == "" {
		return nil
	}
	client, err := db.NewRedisClient(ctx, db.RedisConfig{
		Addr:     s.cfg.RedisAddr,
		Password: s.cfg.RedisPass,
		DB:       s.cfg.RedisDB,
	})
	if err != nil {
		s.logger.Warn("redis unavailable, using per-instance state", zap.Error(err))
		return nil
	}
	s.logger.Info("connected to redis", zap.String("addr", s.cfg.RedisAddr))
	s.closers = append(s.closers, func() { client.Close() })
	s.checks["redis"] = func(ctx context.Context) error { return client.Ping(ctx).Err() }
	return client
}

// openLimiter prefers redis so every instance shares one budget per client.
func (s *Server) openLimiter(client *redis.Client) ratelimit.Limiter {
	if client != nil {
		return ratelimit.NewRedisLimiter(client, "validate", s.cfg.ValidateRateLimit, time.Minute)
	}
	local := ratelimit.NewLocalLimiter(s.cfg.ValidateRateLimit)
	s.closers = append(s.closers, local.Stop)
	return local
}

func (s *Server) openSessions(client *redis.Client) *session.Manager {
	if client != nil {
		return session.NewManager(session.NewRedisStore(client))
	}
	return session.NewManager(session.NewMemoryStore())
}

func (s *Server) health(c *gin.Context) {
	ctx, cancel := context.WithTimeout(c.Request.Context(), 2*time.Second)
	defer cancel()

	status := http.StatusOK
	deps := gin.H{}
	for name, check := range s.checks {
		if err := check(ctx); err != nil {
			deps[name] = err.Error()
			status = http.StatusServiceUnavailable
			continue
		}
		deps[name] = "ok"
	}

	state := "ok"
	if status != http.StatusOK {
		state = "degraded"
	}
	c.JSON(status, gin.H{
		"status":       state,
		"store":        s.cfg.StoreDriver,
		"dependencies": deps,
		"ws_clients":   s.hub.TotalClients(),
	})
}

// Handler exposes the router, mainly for tests.
func (s *Server) Handler() http.Handler {
	return s.engine
}

// Run serves HTTP, the live feed hub and the expiry sweep until ctx is done
// or one of them fails, then shuts the HTTP server down gracefully.
func (s *Server) Run(ctx context.Context) error {
	httpServer := &http.Server{
		Addr:              s.cfg.HTTPAddr,
		Handler:           s.engine,
		ReadHeaderTimeout: 10 * time.Second,
	}

	g, gctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		s.logger.Info("server listening", zap.String("addr", s.cfg.HTTPAddr), zap.String("store", s.cfg.StoreDriver))
		if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("http server: %w", err)
		}
		return nil
	})

	g.Go(func() error {
		<-gctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		s.logger.Info("shutting down http server")
		return httpServer.Shutdown(shutdownCtx)
	})

	g.Go(func() error { return s.hub.Run(gctx) })
	g.Go(func() error { return s.sweeper.Run(gctx) })

	err := g.Wait()
	s.Close()
	return err
}

// Close releases storage and limiter resources. Safe to call more than once.
func (s *Server) Close() {
	for i := len(s.closers) - 1; i >= 0; i-- {
		s.closers[i]()
	}
	s.closers = nil
}
