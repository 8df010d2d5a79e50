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
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"
	"gorm.io/gorm"
	"gorm.io/plugin/opentelemetry/tracing"

	"github.com/tbourn/go-interview-backend/internal/ai"
	"github.com/tbourn/go-interview-backend/internal/config"
	httpapi "github.com/tbourn/go-interview-backend/internal/http"
	"github.com/tbourn/go-interview-backend/internal/jobs"
	"github.com/tbourn/go-interview-backend/internal/lease"
	"github.com/tbourn/go-interview-backend/internal/observability"
	"github.com/tbourn/go-interview-backend/internal/repo"
	"github.com/tbourn/go-interview-backend/internal/services"
	"github.com/tbourn/go-interview-backend/internal/sysutil"
)

const shutdownTimeout = 15 * time.Second

// closingGenerator is a text generator holding a client connection.
type closingGenerator interface {
	ai.TextGenerator
	Close() error
}

// Seams replaced in tests.
var (
	setupOTel    = observability.SetupOTel
	newGenerator = func(ctx context.Context, apiKey, model string) (closingGenerator, error) {
		return ai.NewGeminiGenerator(ctx, apiKey, model)
	}
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the REST API server",
	Long:  `Start an HTTP server exposing interview rooms, candidate intake and live interview sessions.`,
	RunE:  runServe,
}

func init() {
	rootCmd.AddCommand(serveCmd)
}

func runServe(cmd *cobra.Command, _ []string) error {
	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("config: %w", err)
	}
	logger := setupLogging(cfg)

	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	otelShutdown, err := setupOTel(ctx, cfg.OTEL, observability.ServiceInfo{
		Version:    version,
		InstanceID: cfg.Session.InstanceID,
	})
	if err != nil {
		return fmt.Errorf("otel: %w", err)
	}
	defer func() {
		sctx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		if err := otelShutdown(sctx); err != nil {
			logger.Warn().Err(err).Msg("otel_shutdown")
		}
	}()

	db, err := openDatabase(cfg)
	if err != nil {
		return err
	}

	locker, closeLocker, err := newLocker(ctx, cfg.Redis, logger)
	if err != nil {
		return err
	}
	defer closeLocker()

	assistant, closeAssistant, err := newAssistant(ctx, cfg.AI, logger)
	if err != nil {
		return err
	}
	defer closeAssistant()

	svc := httpapi.NewServices(db, assistant, locker, cfg, logger)
	defer svc.Sessions.Close()

	sweeper := jobs.NewSweeper(db, svc.Sessions, cfg.Session.SweepSchedule, logger)
	if err := sweeper.Start(); err != nil {
		return err
	}
	defer sweeper.Stop()

	gin.SetMode(cfg.GinMode)
	r := gin.New()
	httpapi.RegisterRoutes(r, db, svc, cfg)

	srv := &http.Server{
		Addr:              ":" + cfg.Port,
		Handler:           r,
		ReadTimeout:       cfg.ReadTimeout,
		ReadHeaderTimeout: cfg.ReadHeaderTimeout,
		WriteTimeout:      cfg.WriteTimeout,
		IdleTimeout:       cfg.IdleTimeout,
		MaxHeaderBytes:    cfg.MaxHeaderBytes,
	}

	errCh := make(chan error, 1)
	go func() {
		logger.Info().
			Str("addr", srv.Addr).
			Str("instance", cfg.Session.InstanceID).
			Str("version", version).
			Msg("server_listening")
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err := <-errCh:
		if err != nil {
			return fmt.Errorf("listen: %w", err)
		}
		return nil
	case <-ctx.Done():
	}

	logger.Info().Msg("server_shutting_down")
	sctx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(sctx); err != nil {
		return fmt.Errorf("shutdown: %w", err)
	}
	logger.Info().Msg("server_stopped")
	return nil
}

// setupLogging configures the global zerolog logger and returns it.
func setupLogging(cfg config.Config) zerolog.Logger {
	sysutil.SetLogLevel(cfg.LogLevel)
	zerolog.TimeFieldFormat = time.RFC3339Nano
	if cfg.LogPretty {
		log.Logger = log.Output(zerolog.ConsoleWriter{Out: os.Stderr, TimeFormat: time.RFC3339})
	}
	log.Logger = log.With().Str("service", cfg.OTEL.ServiceName).Logger()
	return log.Logger
}

// openDatabase opens SQLite, instruments it with tracing and migrates the schema.
func openDatabase(cfg config.Config) (*gorm.DB, error) {
	db, err := repo.OpenSQLite(cfg.DBPath)
	if err != nil {
		return nil, fmt.Errorf("open db %q: %w", cfg.DBPath, err)
	}
	if cfg.OTEL.Enabled {
		if err := db.Use(tracing.NewPlugin()); err != nil {
			return nil, fmt.Errorf("db tracing: %w", err)
		}
	}
	if err := repo.AutoMigrate(db); err != nil {
		return nil, fmt.Errorf("migrate: %w", err)
	}
	return db, nil
}

// newLocker returns the Redis lease locker when REDIS_ADDR is set, otherwise
// an in-process locker. A configured but unreachable Redis fails startup.
func newLocker(ctx context.Context, cfg config.RedisConfig, logger zerolog.Logger) (lease.Locker, func(), error) {
	if cfg.Addr == "" {
		logger.Info().Msg("lease_store_memory")
		return lease.NewMemoryLocker(), func() {}, nil
	}
	rdb := redis.NewClient(&redis.Options{
		Addr:     cfg.Addr,
		Password: cfg.Password,
		DB:       cfg.DB,
	})
	pctx, cancel := context.WithTimeout(ctx, 3*time.Second)
	defer cancel()
	if err := rdb.Ping(pctx).Err(); err != nil {
		logger.Error().Err(err).Str("addr", cfg.Addr).Msg("redis_unreachable")
		_ = rdb.Close()
		return nil, nil, fmt.Errorf("redis %s: %w", cfg.Addr, err)
	}
	logger.Info().Str("addr", cfg.Addr).Msg("lease_store_redis")
	return lease.NewRedisLocker(rdb), func() { _ = rdb.Close() }, nil
}

// newAssistant builds the question provider. Without an API key every call
// takes the fallback path.
func newAssistant(ctx context.Context, cfg config.AIConfig, logger zerolog.Logger) (services.Assistant, func(), error) {
	if cfg.APIKey == "" {
		logger.Warn().Msg("ai_disabled_using_fallbacks")
		return ai.NewResilient(ai.Disabled{}, logger, cfg.Timeout), func() {}, nil
	}
	gen, err := newGenerator(ctx, cfg.APIKey, cfg.Model)
	if err != nil {
		return nil, nil, fmt.Errorf("gemini: %w", err)
	}
	logger.Info().Str("model", cfg.Model).Msg("ai_enabled")
	closeFn := func() {
		if err := gen.Close(); err != nil {
			logger.Warn().Err(err).Msg("gemini_close")
		}
	}
	return ai.NewResilient(ai.NewModelProvider(gen), logger, cfg.Timeout), closeFn, nil
}
