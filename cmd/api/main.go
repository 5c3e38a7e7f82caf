package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog"

	"edutrack/internal/analytics"
	"edutrack/internal/attendance"
	"edutrack/internal/code"
	"edutrack/internal/config"
	"edutrack/internal/engagement"
	"edutrack/internal/handler"
	"edutrack/internal/logger"
	"edutrack/internal/roster"
	"edutrack/internal/router"
	"edutrack/internal/session"
	"edutrack/internal/store"
	"edutrack/internal/timetable"
	"edutrack/internal/validator"
)

func main() {
	cfg := config.Load()
	log := logger.Setup(cfg.LogLevel, cfg.LogFormat)

	if cfg.Production() {
		gin.SetMode(gin.ReleaseMode)
	}

	if err := run(cfg, log); err != nil {
		log.Fatal().Err(err).Msg("server failed")
	}
}

// backends holds whatever external connections the configuration asked for.
type backends struct {
	db     *store.DB
	redis  *store.Redis
	kv     store.KV
	codes  code.Store
	checks map[string]handler.Checker
}

func (b *backends) close() {
	_ = b.db.Close()
	_ = b.redis.Close()
}

func openBackends(ctx context.Context, cfg config.App, log zerolog.Logger) (*backends, error) {
	b := &backends{checks: map[string]handler.Checker{}}

	needRedis := cfg.StoreBackend == "redis" || cfg.CodeBackend == "redis"
	if needRedis {
		b.redis = store.NewRedis(cfg.RedisAddr)
		if !b.redis.Healthy(ctx) {
			log.Warn().Str("addr", cfg.RedisAddr).Msg("redis not reachable yet")
		}
		b.checks["redis"] = b.redis.Healthy
	}

	switch cfg.StoreBackend {
	case "memory":
		b.kv = store.NewMemory()
		log.Warn().Msg("using in-memory ledger; entries are lost on restart")
	case "postgres":
		db, err := store.NewDB(ctx, cfg.DatabaseURL)
		if err != nil {
			b.close()
			return nil, err
		}
		b.db = db
		b.kv = store.NewPostgresKV(db.Client)
		b.checks["db"] = db.Healthy
	case "redis":
		b.kv = store.NewRedisKV(b.redis.Client, "edutrack:kv")
	default:
		b.close()
		return nil, fmt.Errorf("unknown STORE_BACKEND %q", cfg.StoreBackend)
	}

	switch cfg.CodeBackend {
	case "memory":
		b.codes = code.NewMemoryStore()
	case "redis":
		b.codes = code.NewRedisStore(b.redis.Client, "edutrack:code")
	default:
		b.close()
		return nil, fmt.Errorf("unknown CODE_BACKEND %q", cfg.CodeBackend)
	}
	return b, nil
}

func run(cfg config.App, log zerolog.Logger) error {
	ctx := context.Background()
	validator.Setup()

	tt, err := timetable.Load(cfg.TimetablePath, cfg.Location())
	if err != nil {
		return fmt.Errorf("load timetable: %w", err)
	}
	log.Info().Str("path", cfg.TimetablePath).Int("slots", len(tt.Slots())).Str("timezone", tt.Location().String()).Msg("timetable loaded")

	b, err := openBackends(ctx, cfg, log)
	if err != nil {
		return err
	}
	defer b.close()

	resolver := session.NewResolver(cfg.ResolveTolerance)
	repo := attendance.NewRepository(b.kv)
	issuer := code.NewIssuer(b.codes, code.Config{
		Length:     cfg.CodeLength,
		Alphabet:   cfg.CodeAlphabet,
		MaxRetries: cfg.CodeMaxRetries,
	}, log)
	svc := attendance.NewService(repo, tt, resolver, issuer, cfg.LateGrace, log)
	agg := roster.NewAggregator(repo, tt, resolver)
	rollup := analytics.NewRollup(repo, tt, resolver)
	engage := engagement.NewService(engagement.NewRepository(b.kv), log)

	r := router.SetupRouter(cfg, &router.Handlers{
		Attendance: handler.NewAttendanceHandler(svc, agg, tt, resolver, time.Now, log),
		Code:       handler.NewCodeHandler(svc, time.Now, log),
		Report:     handler.NewReportHandler(svc, rollup, tt, time.Now, log),
		Display:    handler.NewDisplayHandler(svc, agg, tt, resolver, cfg.PollInterval, time.Now, log),
		Engagement: handler.NewEngagementHandler(engage, time.Now, log),
		Health:     handler.NewHealthHandler(b.checks),
	}, log)

	srv := &http.Server{
		Addr:         ":" + cfg.HTTPPort,
		Handler:      r,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		log.Info().Str("port", cfg.HTTPPort).Str("store", cfg.StoreBackend).Str("codes", cfg.CodeBackend).Msg("starting server")
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	select {
	case err := <-errCh:
		return err
	case <-quit:
	}
	log.Info().Msg("shutting down server")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Error().Err(err).Msg("server forced shutdown")
	}
	log.Info().Msg("server exited")
	return nil
}
