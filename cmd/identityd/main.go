// Command identityd serves the identity engine over HTTP.
//
// Engine settings come from the environment (see goIdentity.LoadConfigFromEnv);
// storage, transport and delivery settings are read by loadServerConfig.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	goIdentity "github.com/MrEthical07/goIdentity"
	"github.com/MrEthical07/goIdentity/internal/httpapi"
	"github.com/MrEthical07/goIdentity/internal/logging"
	"github.com/MrEthical07/goIdentity/metrics/export/prometheus"
	"github.com/MrEthical07/goIdentity/notify"
	"github.com/MrEthical07/goIdentity/notify/amqp"
	"github.com/MrEthical07/goIdentity/store/redisstore"
	"github.com/MrEthical07/goIdentity/store/sqlstore"
	"github.com/labstack/echo/v4"
	echomw "github.com/labstack/echo/v4/middleware"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

func main() {
	envFile := flag.String("env", ".env", "dotenv file loaded before reading the environment")
	flag.Parse()

	if err := run(*envFile); err != nil {
		fmt.Fprintf(os.Stderr, "identityd: %v\n", err)
		os.Exit(1)
	}
}

func run(envFile string) error {
	cfg, err := goIdentity.LoadConfigFromEnv(envFile)
	if err != nil {
		return err
	}
	srv, err := loadServerConfig()
	if err != nil {
		return err
	}

	lg, err := logging.Init(srv.Log)
	if err != nil {
		return fmt.Errorf("init logger: %w", err)
	}
	defer lg.Sync()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	st, err := sqlstore.Open(ctx, srv.DBDriver, srv.DBDSN)
	if err != nil {
		return err
	}
	defer st.Close()
	if srv.DBMigrate {
		if err := st.EnsureSchema(ctx); err != nil {
			return fmt.Errorf("ensure schema: %w", err)
		}
	}

	b := goIdentity.New().
		WithConfig(cfg).
		WithStore(st).
		WithLogger(lg).
		WithAuditSink(goIdentity.NewZapSink(lg)).
		WithSuperRoles(srv.AdminRoles...)

	if srv.RedisURL != "" {
		client, err := dialRedis(ctx, srv.RedisURL)
		if err != nil {
			return err
		}
		defer client.Close()
		b.WithRedis(client)
		rs := redisstore.New(client, srv.RedisPrefix)
		if srv.PinStore == backendRedis {
			b.WithVerificationStore(rs)
		}
		if srv.SessionStore == backendRedis {
			b.WithSessionStore(rs)
		}
	}

	switch srv.Sender {
	case senderAMQP:
		pub, err := amqp.Dial(amqp.Config{URL: srv.AMQPURL, Queue: srv.AMQPQueue}, lg)
		if err != nil {
			return fmt.Errorf("dial amqp: %w", err)
		}
		defer pub.Close()
		b.WithSender(pub)
	default:
		b.WithSender(notify.NewLogSender(lg))
	}

	engine, err := b.Build()
	if err != nil {
		return fmt.Errorf("build engine: %w", err)
	}
	defer engine.Close()

	report := engine.SecurityReport()
	lg.Info("security posture",
		zap.String("signing", report.SigningAlgorithm),
		zap.Bool("strict", report.StrictMode),
		zap.Bool("lockout", report.LockoutActive),
		zap.Bool("rate_limiting", report.RateLimitingActive),
		zap.Bool("mfa_required", report.MFARequiredOnLogin),
		zap.Bool("reuse_detection", report.RefreshReuseDetection),
	)

	e := newEcho(lg)
	httpapi.New(engine, lg, httpapi.Options{
		RequestTimeout: srv.RequestTimeout,
		AdminRoles:     srv.AdminRoles,
	}).Register(e)
	if srv.MetricsPath != "" {
		e.GET(srv.MetricsPath, echo.WrapHandler(prometheus.NewExporter(engine).Handler()))
	}

	errCh := make(chan error, 1)
	go func() {
		lg.Info("listening", zap.String("addr", srv.HTTPAddr), zap.String("db", srv.DBDriver), zap.String("pin_store", srv.PinStore), zap.String("session_store", srv.SessionStore))
		if err := e.Start(srv.HTTPAddr); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
	}()

	select {
	case <-ctx.Done():
	case err := <-errCh:
		return fmt.Errorf("http server: %w", err)
	}

	lg.Info("shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), srv.ShutdownTimeout)
	defer cancel()
	if err := e.Shutdown(shutdownCtx); err != nil {
		lg.Warn("http server shutdown failed", zap.Error(err))
	}
	return nil
}

func dialRedis(ctx context.Context, url string) (*redis.Client, error) {
	opts, err := redis.ParseURL(url)
	if err != nil {
		return nil, fmt.Errorf("parse REDIS_URL: %w", err)
	}
	client := redis.NewClient(opts)
	pingCtx, cancel := context.WithTimeout(ctx, 2*time.Second)
	defer cancel()
	if err := client.Ping(pingCtx).Err(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("ping redis: %w", err)
	}
	return client, nil
}

func newEcho(lg *zap.Logger) *echo.Echo {
	e := echo.New()
	e.HideBanner = true
	e.HidePort = true
	e.Use(echomw.Recover())
	e.Use(echomw.RequestLoggerWithConfig(echomw.RequestLoggerConfig{
		LogMethod:  true,
		LogURIPath: true,
		LogStatus:  true,
		LogLatency: true,
		LogValuesFunc: func(_ echo.Context, v echomw.RequestLoggerValues) error {
			lg.Info("request",
				zap.String("method", v.Method),
				zap.String("path", v.URIPath),
				zap.Int("status", v.Status),
				zap.Duration("latency", v.Latency),
			)
			return nil
		},
	}))
	return e
}
