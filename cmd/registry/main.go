package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/agoramesh/agora/internal/config"
	"github.com/agoramesh/agora/internal/identity"
	"github.com/agoramesh/agora/internal/registry/handler"
	"github.com/agoramesh/agora/internal/registry/model"
	"github.com/agoramesh/agora/internal/registry/repository"
	"github.com/agoramesh/agora/internal/registry/service"
	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/joho/godotenv"
	"go.uber.org/zap"
)

const (
	sessionIssuer     = "agora-registry"
	requestTimeout    = 10 * time.Second
	fraudRetention    = 30 * 24 * time.Hour
	retentionInterval = 24 * time.Hour
	gaugeInterval     = time.Minute
)

func main() {
	_ = godotenv.Load() // missing .env is fine

	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintln(os.Stderr, "config:", err)
		os.Exit(1)
	}

	logger := newLogger(cfg)
	defer logger.Sync() //nolint:errcheck

	if err := run(cfg, logger); err != nil {
		logger.Fatal("registry exited with error", zap.Error(err))
	}
}

func newLogger(cfg *config.Config) *zap.Logger {
	if cfg.IsProduction() {
		l, _ := zap.NewProduction()
		return l
	}
	l, _ := zap.NewDevelopment()
	return l
}

func run(cfg *config.Config, logger *zap.Logger) error {
	// ── Database ─────────────────────────────────────────────────────────────
	db, err := pgxpool.New(context.Background(), cfg.Database.DSN())
	if err != nil {
		return fmt.Errorf("connect to postgres: %w", err)
	}
	defer db.Close()

	if err := db.Ping(context.Background()); err != nil {
		return fmt.Errorf("ping postgres: %w", err)
	}
	logger.Info("connected to postgres",
		zap.String("host", cfg.Database.Host),
		zap.String("database", cfg.Database.Name),
	)

	// ── Identity ─────────────────────────────────────────────────────────────
	sessions := identity.NewSessionIssuer(cfg.JWTSecret, sessionIssuer, 0)
	box := identity.NewSecretBox(cfg.JWTSecret)
	keys := identity.NewKeyService(cfg.JWTSecret)

	// ── Wire up layers ───────────────────────────────────────────────────────
	agentRepo := repository.NewAgentRepository(db)
	callerRepo := repository.NewCallerRepository(db)
	feedbackRepo := repository.NewFeedbackRepository(db)
	statsRepo := repository.NewStatsRepository(db)
	fraudRepo := repository.NewFraudRepository(db)

	production := cfg.IsProduction()
	if !production {
		logger.Warn("running outside production: fraud analysis and quarantine transitions are disabled",
			zap.String("node_env", cfg.Env))
	}

	authSvc := service.NewAuthService(callerRepo, sessions, box, cfg.TrustProxy, logger)
	agentSvc := service.NewAgentService(agentRepo, statsRepo, production, logger)
	analyzer := service.NewFraudAnalyzer(feedbackRepo, fraudRepo, production, logger)
	feedbackSvc := service.NewFeedbackService(feedbackRepo, agentRepo, statsRepo, analyzer, logger)
	searchSvc := service.NewSearchService(agentRepo, statsRepo, feedbackRepo, fraudRepo, callerRepo, keys,
		production, cfg.SearchDebug, logger)
	reviewSvc := service.NewReviewService(agentRepo, statsRepo, feedbackRepo, fraudRepo, production, logger)

	authHandler := handler.NewAuthHandler(authSvc, logger)
	agentHandler := handler.NewAgentHandler(agentSvc, reviewSvc, sessions, logger)
	searchHandler := handler.NewSearchHandler(searchSvc, sessions, logger)
	feedbackHandler := handler.NewFeedbackHandler(feedbackSvc, sessions, logger)

	// ── HTTP Router ──────────────────────────────────────────────────────────
	if os.Getenv("GIN_MODE") == "" {
		gin.SetMode(gin.ReleaseMode)
	}
	router := gin.New()
	router.Use(gin.Recovery())

	if !cfg.TrustProxy {
		_ = router.SetTrustedProxies(nil)
	}

	// CORS
	corsConfig := cors.Config{
		AllowOrigins:     cfg.CORSOrigins,
		AllowMethods:     []string{"GET", "POST", "OPTIONS"},
		AllowHeaders:     []string{"Origin", "Content-Type", "Authorization", "Accept", "x-client-id", "x-provider-secret"},
		ExposeHeaders:    []string{"Content-Length", "X-Request-ID"},
		AllowCredentials: !containsWildcard(cfg.CORSOrigins),
		MaxAge:           12 * time.Hour,
	}
	router.Use(cors.New(corsConfig))

	// Security headers
	router.Use(func(c *gin.Context) {
		c.Header("X-Frame-Options", "DENY")
		c.Header("X-Content-Type-Options", "nosniff")
		c.Header("X-XSS-Protection", "1; mode=block")
		c.Header("Referrer-Policy", "strict-origin-when-cross-origin")
		c.Next()
	})

	// Request body size limit (1 MB)
	router.Use(func(c *gin.Context) {
		c.Request.Body = http.MaxBytesReader(c.Writer, c.Request.Body, 1<<20)
		c.Next()
	})

	// Per-IP rate limiting
	if cfg.RateLimitRPS > 0 {
		router.Use(handler.RateLimiter(cfg.RateLimitRPS, cfg.RateLimitRPS*2))
	}

	router.Use(handler.RequestID())
	router.Use(handler.RequestTimeout(requestTimeout))
	router.Use(requestLogger(logger))
	router.Use(handler.PrometheusMiddleware())

	// Health and metrics (public, no auth)
	router.GET("/health", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{
			"status":    "ok",
			"timestamp": time.Now().UTC().Format(time.RFC3339),
		})
	})
	router.GET("/metrics", handler.MetricsHandler())

	root := router.Group("/")
	authHandler.Register(root)
	agentHandler.Register(root)
	searchHandler.Register(root)
	feedbackHandler.Register(root)

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	done := make(chan struct{})

	// ── Background: fraud-log retention, daily ───────────────────────────────
	go func() {
		ticker := time.NewTicker(retentionInterval)
		defer ticker.Stop()
		for {
			select {
			case <-ticker.C:
				ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
				deleted, err := fraudRepo.DeleteOlderThan(ctx, time.Now().UTC().Add(-fraudRetention))
				cancel()
				if err != nil {
					logger.Warn("fraud log retention error", zap.Error(err))
					continue
				}
				if deleted > 0 {
					logger.Info("fraud log retention", zap.Int64("deleted", deleted))
				}
			case <-done:
				return
			}
		}
	}()

	// ── Background: agent-count gauge ────────────────────────────────────────
	go func() {
		refreshAgentsGauge(agentRepo, logger)
		ticker := time.NewTicker(gaugeInterval)
		defer ticker.Stop()
		for {
			select {
			case <-ticker.C:
				refreshAgentsGauge(agentRepo, logger)
			case <-done:
				return
			}
		}
	}()

	srv := &http.Server{
		Addr:              cfg.Addr(),
		Handler:           router,
		ReadHeaderTimeout: 10 * time.Second,
	}

	go func() {
		logger.Info("registry listening", zap.String("addr", cfg.Addr()))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Fatal("HTTP listen error", zap.Error(err))
		}
	}()

	// ── Graceful shutdown ────────────────────────────────────────────────────
	<-quit
	close(done)
	logger.Info("shutting down registry...")

	ctx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()

	if err := srv.Shutdown(ctx); err != nil {
		logger.Error("HTTP shutdown error", zap.Error(err))
	}

	logger.Info("registry stopped")
	return nil
}

func refreshAgentsGauge(repo *repository.AgentRepository, logger *zap.Logger) {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	counts, err := repo.CountByStatus(ctx)
	if err != nil {
		logger.Warn("agent gauge refresh error", zap.Error(err))
		return
	}
	for _, status := range []model.AgentStatus{model.AgentStatusActive, model.AgentStatusQuarantine, model.AgentStatusBanned} {
		handler.SetAgentsGauge(string(status), float64(counts[status]))
	}
}

// containsWildcard returns true if origins includes "*".
func containsWildcard(origins []string) bool {
	for _, o := range origins {
		if strings.TrimSpace(o) == "*" {
			return true
		}
	}
	return false
}

// requestLogger returns a Gin middleware that logs each request with zap.
func requestLogger(logger *zap.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()
		logger.Info("request",
			zap.String("method", c.Request.Method),
			zap.String("path", c.Request.URL.Path),
			zap.Int("status", c.Writer.Status()),
			zap.Duration("latency", time.Since(start)),
			zap.String("client_ip", c.ClientIP()),
			zap.String("request_id", c.GetString(handler.CtxRequestID)),
		)
	}
}
