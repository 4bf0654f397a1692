// Command server starts the AI interview coach HTTP server.
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

	"github.com/redis/go-redis/v9"

	"github.com/fairyhunter13/ai-interview-coach/internal/adapter/ai/openaicompat"
	aistub "github.com/fairyhunter13/ai-interview-coach/internal/adapter/ai/stub"
	httpserver "github.com/fairyhunter13/ai-interview-coach/internal/adapter/httpserver"
	"github.com/fairyhunter13/ai-interview-coach/internal/adapter/repo/postgres"
	tikaext "github.com/fairyhunter13/ai-interview-coach/internal/adapter/textextractor/tika"
	"github.com/fairyhunter13/ai-interview-coach/internal/app"
	"github.com/fairyhunter13/ai-interview-coach/internal/config"
	"github.com/fairyhunter13/ai-interview-coach/internal/domain"
	"github.com/fairyhunter13/ai-interview-coach/internal/observability"
	"github.com/fairyhunter13/ai-interview-coach/internal/service/ratelimiter"
	"github.com/fairyhunter13/ai-interview-coach/internal/usecase"
)

// redisAdapter narrows *redis.Client to the readiness interface.
type redisAdapter struct{ *redis.Client }

func (r redisAdapter) Ping(ctx context.Context) app.RedisPingResult { return r.Client.Ping(ctx) }

func main() {
	cfg, err := config.Load()
	if err != nil {
		panic(err)
	}

	logger := observability.SetupLogger(cfg)
	slog.SetDefault(logger)
	observability.InitMetrics()

	shutdownTracer, err := observability.SetupTracing(cfg)
	if err != nil {
		slog.Error("failed to setup tracing", slog.Any("error", err))
	}
	defer func() {
		if shutdownTracer != nil {
			_ = shutdownTracer(context.Background())
		}
	}()

	ctx := context.Background()
	pool, err := postgres.NewPool(ctx, cfg.DBURL)
	if err != nil {
		slog.Error("db connect failed", slog.Any("error", err))
		os.Exit(1)
	}
	defer pool.Close()

	sessionRepo := postgres.NewSessionRepo(pool)
	areaRepo := postgres.NewSubjectAreaRepo(pool)
	auditRepo := postgres.NewAuditRepo(pool)
	cvRepo := postgres.NewCVRepo(pool)
	overviewRepo := postgres.NewOverviewRepo(pool)

	if len(os.Args) > 1 && os.Args[1] == "seed" {
		if err := seedSubjectAreas(ctx, cfg, areaRepo); err != nil {
			slog.Error("seed failed", slog.Any("error", err))
			os.Exit(1)
		}
		slog.Info("seed completed", slog.String("file", cfg.SeedFile))
		return
	}

	if cfg.DataRetentionDays > 0 {
		cleanupSvc := postgres.NewCleanupService(pool, cfg.DataRetentionDays)
		go cleanupSvc.RunPeriodic(ctx, cfg.CleanupInterval)
		slog.Info("cleanup service started", slog.Int("retention_days", cfg.DataRetentionDays), slog.Duration("interval", cfg.CleanupInterval))
	}

	metrics := observability.PromSink{}

	// AI backend: OpenAI-compatible chat completions, or the deterministic
	// stub when no backend is configured (local development).
	var aiClient domain.AIClient
	if cfg.LLMBaseURL != "" {
		aiClient = openaicompat.New(cfg, metrics)
		slog.Info("ai client initialized", slog.String("base_url", cfg.LLMBaseURL))
	} else {
		aiClient = aistub.New()
		slog.Warn("no LLM backend configured, using stub client")
	}

	// Redis: per-user message rate limiting, optional.
	var rdb *redis.Client
	var msgLimiter ratelimiter.Limiter
	if cfg.RedisURL != "" {
		opts, err := redis.ParseURL(cfg.RedisURL)
		if err != nil {
			slog.Error("invalid redis url", slog.Any("error", err))
			os.Exit(1)
		}
		rdb = redis.NewClient(opts)
		defer func() { _ = rdb.Close() }()
		msgLimiter = ratelimiter.NewRedisLuaLimiter(rdb, ratelimiter.PerMinute(cfg.MessageRatePerMin))
		slog.Info("message rate limiter enabled", slog.Int("per_min", cfg.MessageRatePerMin))
	}

	engine := usecase.NewEvaluationEngine(aiClient, metrics, cfg.LLMModel, cfg.PromptTokenBudget, cfg.EvalMaxTok)
	interviewSvc := usecase.NewInterviewService(sessionRepo, areaRepo, auditRepo, aiClient, engine, metrics, cfg.ChatMaxTok)
	cvSvc := usecase.NewCVAnalysisService(cvRepo, aiClient, metrics, cfg.LLMModel, cfg.PromptTokenBudget, cfg.EvalMaxTok)

	var redisCheckClient app.RedisClient
	if rdb != nil {
		redisCheckClient = redisAdapter{rdb}
	}
	dbCheck, redisCheck, aiCheck, tikaCheck := app.BuildReadinessChecks(cfg, pool, redisCheckClient, aiClient)

	ext := tikaext.New(cfg.TikaURL, metrics)

	srv := &httpserver.Server{
		Cfg:        cfg,
		Interviews: interviewSvc,
		CVs:        cvSvc,
		Areas:      areaRepo,
		Extractor:  ext,
		DBCheck:    dbCheck,
		RedisCheck: redisCheck,
		AICheck:    aiCheck,
		TikaCheck:  tikaCheck,
	}
	handler := app.BuildRouter(cfg, srv, msgLimiter, overviewRepo)

	srvHTTP := &http.Server{
		Addr:              fmt.Sprintf(":%d", cfg.Port),
		Handler:           handler,
		ReadTimeout:       cfg.HTTPReadTimeout,
		WriteTimeout:      cfg.HTTPWriteTimeout,
		IdleTimeout:       cfg.HTTPIdleTimeout,
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		slog.Info("http server starting", slog.Int("port", cfg.Port))
		errCh <- srvHTTP.ListenAndServe()
	}()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	select {
	case sig := <-sigCh:
		slog.Info("shutdown signal received", slog.String("signal", sig.String()))
	case err := <-errCh:
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			slog.Error("server error", slog.Any("error", err))
		}
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.ServerShutdownTimeout)
	defer cancel()
	_ = srvHTTP.Shutdown(shutdownCtx)
}
