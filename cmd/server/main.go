// Command server runs the coaching booking API.
//
// @title           Coaching Booking API
// @version         1.0
// @description     Slot availability, holds, and booking finalization for coaching sessions.
// @BasePath        /api/v1
//
// @securityDefinitions.apikey BearerAuth
// @in header
// @name Authorization
// @description Admin token as "Bearer <token>" for /admin and /internal routes.
package main

import (
	"context"
	"errors"
	"flag"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-contrib/gzip"
	"github.com/gin-gonic/gin"
	"github.com/joho/godotenv"
	"github.com/rs/zerolog/log"

	"github.com/tbourn/go-coaching-backend/internal/config"
	httpapi "github.com/tbourn/go-coaching-backend/internal/http"
	"github.com/tbourn/go-coaching-backend/internal/http/middleware"
	"github.com/tbourn/go-coaching-backend/internal/notify"
	"github.com/tbourn/go-coaching-backend/internal/observability"
	"github.com/tbourn/go-coaching-backend/internal/repo"
	"github.com/tbourn/go-coaching-backend/internal/services"
	"github.com/tbourn/go-coaching-backend/internal/sysutil"
)

// version is set at build time with -ldflags "-X main.version=...".
var version string

const shutdownTimeout = 15 * time.Second

func main() {
	recomputeOnly := flag.Bool("recompute", false, "recompute the slot horizon once and exit")
	flag.Parse()

	// A missing .env is normal outside local development.
	_ = godotenv.Load()

	cfg, err := config.Load()
	if err != nil {
		sysutil.InitLogger("info", false, nil)
		log.Fatal().Err(err).Msg("invalid configuration")
	}
	sysutil.InitLogger(cfg.LogLevel, cfg.LogPretty, nil)
	ver := sysutil.Version(version)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, cfg, ver, *recomputeOnly); err != nil {
		log.Fatal().Err(err).Msg("server exited")
	}
}

func run(ctx context.Context, cfg config.Config, ver string, recomputeOnly bool) error {
	shutdownTracing, err := observability.Setup(ctx, cfg.OTEL, ver)
	if err != nil {
		return err
	}
	defer func() {
		sctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := shutdownTracing(sctx); err != nil {
			log.Warn().Err(err).Msg("tracing shutdown")
		}
	}()

	db, err := repo.Open(cfg.DB)
	if err != nil {
		return err
	}
	if err := repo.AutoMigrate(db); err != nil {
		return err
	}
	if sqlDB, err := db.DB(); err == nil {
		defer sqlDB.Close()
	}

	notifier, closeNotifier := buildNotifier(cfg)
	defer closeNotifier()

	eng := services.NewEngine(db, cfg.Scheduling, notifier)

	if recomputeOnly {
		res, err := eng.Generator.RecomputeSlots(ctx, cfg.Scheduling.HorizonDays)
		if err != nil {
			return err
		}
		log.Info().Int64("created", res.Created).Int64("deleted", res.Deleted).Msg("one-shot recompute done")
		return nil
	}

	deps := httpapi.Deps{Engine: eng}
	if cfg.RedisURL != "" {
		rdb, err := middleware.NewRedisClient(cfg.RedisURL)
		if err != nil {
			return err
		}
		defer rdb.Close()
		if err := rdb.Ping(ctx).Err(); err != nil {
			// The limiter fails open, so a cold Redis only weakens limits.
			log.Warn().Err(err).Msg("redis unreachable at startup")
		}
		deps.Redis = rdb
	}

	gin.SetMode(cfg.GinMode)
	r := gin.New()
	r.Use(gzip.Gzip(gzip.DefaultCompression, gzip.WithExcludedPaths([]string{"/metrics"})))
	httpapi.RegisterRoutes(r, deps, cfg)

	srv := &http.Server{
		Addr:              sysutil.ListenAddr(cfg.Port),
		Handler:           r,
		ReadTimeout:       cfg.ReadTimeout,
		ReadHeaderTimeout: cfg.ReadHeaderTimeout,
		WriteTimeout:      cfg.WriteTimeout,
		IdleTimeout:       cfg.IdleTimeout,
		MaxHeaderBytes:    cfg.MaxHeaderBytes,
	}

	bg, cancelBG := context.WithCancel(ctx)
	defer cancelBG()
	if cfg.Scheduling.RecomputeInterval > 0 {
		go eng.Generator.Run(bg, cfg.Scheduling.RecomputeInterval)
	}

	errCh := make(chan error, 1)
	go func() {
		log.Info().
			Str("addr", srv.Addr).
			Str("version", ver).
			Str("db", cfg.DB.Driver).
			Bool("redis", deps.Redis != nil).
			Msg("listening")
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}

	log.Info().Msg("shutting down")
	cancelBG()
	sctx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	return srv.Shutdown(sctx)
}

// buildNotifier assembles the confirmation sinks. The log sink is always on;
// SMTP and Kafka join when configured. The returned func closes what needs it.
func buildNotifier(cfg config.Config) (notify.Fanout, func()) {
	sinks := notify.Fanout{notify.LogSink{Logger: log.With().Str("component", "notify").Logger()}}
	closers := []func() error{}

	if cfg.SMTP.Host != "" {
		sinks = append(sinks, notify.NewSMTPSender(cfg.SMTP.Host, cfg.SMTP.Port, cfg.SMTP.From))
	}
	if len(cfg.Kafka.Brokers) > 0 {
		kp := notify.NewKafkaPublisher(cfg.Kafka.Brokers, cfg.Kafka.Topic)
		sinks = append(sinks, kp)
		closers = append(closers, kp.Close)
	}

	return sinks, func() {
		for _, c := range closers {
			if err := c(); err != nil {
				log.Warn().Err(err).Msg("notifier close")
			}
		}
	}
}
