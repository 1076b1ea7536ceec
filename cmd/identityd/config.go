package main

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/MrEthical07/goIdentity/internal/logging"
	"github.com/MrEthical07/goIdentity/notify/amqp"
	"github.com/MrEthical07/goIdentity/store/sqlstore"
	"github.com/caarlos0/env/v11"
)

const (
	backendSQL   = "sql"
	backendRedis = "redis"

	senderLog  = "log"
	senderAMQP = "amqp"
)

// serverConfig is the process surface around the engine Config.
type serverConfig struct {
	Log logging.Config

	HTTPAddr        string        `env:"HTTP_ADDR" envDefault:":8080"`
	RequestTimeout  time.Duration `env:"HTTP_REQUEST_TIMEOUT" envDefault:"5s"`
	ShutdownTimeout time.Duration `env:"HTTP_SHUTDOWN_TIMEOUT" envDefault:"10s"`
	MetricsPath     string        `env:"METRICS_PATH" envDefault:"/metrics"`
	AdminRoles      []string      `env:"ADMIN_ROLES" envSeparator:"," envDefault:"admin"`

	DBDriver  string `env:"DB_DRIVER" envDefault:"sqlite"`
	DBDSN     string `env:"DB_DSN,required,notEmpty"`
	DBMigrate bool   `env:"DB_MIGRATE" envDefault:"true"`

	RedisURL     string `env:"REDIS_URL"`
	RedisPrefix  string `env:"REDIS_PREFIX" envDefault:"idp:"`
	PinStore     string `env:"PIN_STORE" envDefault:"sql"`
	SessionStore string `env:"SESSION_STORE" envDefault:"sql"`

	Sender    string `env:"NOTIFY_SENDER" envDefault:"log"`
	AMQPURL   string `env:"AMQP_URL"`
	AMQPQueue string `env:"AMQP_QUEUE" envDefault:"email.send"`
}

func loadServerConfig() (serverConfig, error) {
	var cfg serverConfig
	if err := env.Parse(&cfg); err != nil {
		return serverConfig{}, fmt.Errorf("parse env: %w", err)
	}
	cfg.DBDriver = strings.ToLower(strings.TrimSpace(cfg.DBDriver))
	cfg.PinStore = strings.ToLower(strings.TrimSpace(cfg.PinStore))
	cfg.SessionStore = strings.ToLower(strings.TrimSpace(cfg.SessionStore))
	cfg.Sender = strings.ToLower(strings.TrimSpace(cfg.Sender))
	if cfg.AMQPQueue == "" {
		cfg.AMQPQueue = amqp.DefaultQueue
	}
	if err := cfg.validate(); err != nil {
		return serverConfig{}, err
	}
	return cfg, nil
}

func (c serverConfig) validate() error {
	switch c.DBDriver {
	case sqlstore.DriverPostgres, sqlstore.DriverSQLite:
	default:
		return fmt.Errorf("DB_DRIVER %q must be 'postgres' or 'sqlite'", c.DBDriver)
	}

	if err := c.checkBackend("PIN_STORE", c.PinStore); err != nil {
		return err
	}
	if err := c.checkBackend("SESSION_STORE", c.SessionStore); err != nil {
		return err
	}

	switch c.Sender {
	case senderLog:
	case senderAMQP:
		if c.AMQPURL == "" {
			return errors.New("NOTIFY_SENDER=amqp requires AMQP_URL")
		}
	default:
		return fmt.Errorf("NOTIFY_SENDER %q must be 'log' or 'amqp'", c.Sender)
	}

	if c.RequestTimeout <= 0 || c.ShutdownTimeout <= 0 {
		return errors.New("HTTP timeouts must be > 0")
	}
	return nil
}

func (c serverConfig) checkBackend(name, value string) error {
	switch value {
	case backendSQL:
	case backendRedis:
		if c.RedisURL == "" {
			return fmt.Errorf("%s=redis requires REDIS_URL", name)
		}
	default:
		return fmt.Errorf("%s %q must be 'sql' or 'redis'", name, value)
	}
	return nil
}
