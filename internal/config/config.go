// Package config loads process configuration from the environment.
package config

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/example/ticketing/internal/eventbus"
	"github.com/spf13/viper"
)

const (
	ServiceTickets  = "tickets"
	ServiceOrders   = "orders"
	ServicePayments = "payments"
)

const (
	DriverKafka  = "kafka"
	DriverRedis  = "redis"
	DriverMemory = "memory"
)

// MemoryDatabaseURL selects the in-memory stores.
const MemoryDatabaseURL = "memory://"

var ErrMissing = errors.New("missing required configuration")

type Config struct {
	Service string

	JWTKey      string
	DatabaseURL string
	HTTPAddr    string
	LogLevel    string

	Bus eventbus.Options

	// payments
	StripeKey     string
	StripeURL     string
	StripeTimeout time.Duration
	RedisURL      string

	// orders
	ExpirationWindow time.Duration
	SweepInterval    time.Duration
}

// Load reads the configuration of service from the environment and
// validates it.
func Load(service string) (*Config, error) {
	v := viper.New()
	v.AutomaticEnv()

	v.SetDefault("HTTP_ADDR", ":3000")
	v.SetDefault("LOG_LEVEL", "info")
	v.SetDefault("BUS_DRIVER", DriverKafka)
	v.SetDefault("BUS_ACK_WAIT", 30*time.Second)
	v.SetDefault("BUS_PUBLISH_RETRIES", 5)
	v.SetDefault("BUS_REDELIVERY_DELAY", 500*time.Millisecond)
	v.SetDefault("BUS_HEALTH_INTERVAL", 5*time.Second)
	v.SetDefault("BUS_MAX_FAILURES", 3)
	v.SetDefault("STRIPE_URL", "https://api.stripe.com")
	v.SetDefault("STRIPE_TIMEOUT", 10*time.Second)
	v.SetDefault("EXPIRATION_WINDOW", 15*time.Minute)
	v.SetDefault("SWEEP_INTERVAL", 5*time.Second)

	cfg := &Config{
		Service:     service,
		JWTKey:      v.GetString("JWT_KEY"),
		DatabaseURL: v.GetString("DATABASE_URL"),
		HTTPAddr:    v.GetString("HTTP_ADDR"),
		LogLevel:    v.GetString("LOG_LEVEL"),
		Bus: eventbus.Options{
			Driver:          strings.ToLower(v.GetString("BUS_DRIVER")),
			ClusterID:       v.GetString("BUS_CLUSTER_ID"),
			ClientID:        v.GetString("BUS_CLIENT_ID"),
			URL:             v.GetString("BUS_URL"),
			AckWait:         v.GetDuration("BUS_ACK_WAIT"),
			PublishRetries:  v.GetInt("BUS_PUBLISH_RETRIES"),
			RedeliveryDelay: v.GetDuration("BUS_REDELIVERY_DELAY"),
			HealthInterval:  v.GetDuration("BUS_HEALTH_INTERVAL"),
			MaxFailures:     v.GetInt("BUS_MAX_FAILURES"),
		},
		StripeKey:        v.GetString("STRIPE_KEY"),
		StripeURL:        v.GetString("STRIPE_URL"),
		StripeTimeout:    v.GetDuration("STRIPE_TIMEOUT"),
		RedisURL:         v.GetString("REDIS_URL"),
		ExpirationWindow: v.GetDuration("EXPIRATION_WINDOW"),
		SweepInterval:    v.GetDuration("SWEEP_INTERVAL"),
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate reports every missing or invalid key at once.
func (c *Config) Validate() error {
	var missing []string
	require := func(key, value string) {
		if strings.TrimSpace(value) == "" {
			missing = append(missing, key)
		}
	}

	require("JWT_KEY", c.JWTKey)
	require("DATABASE_URL", c.DatabaseURL)
	require("BUS_CLUSTER_ID", c.Bus.ClusterID)
	require("BUS_CLIENT_ID", c.Bus.ClientID)
	if c.Bus.Driver != DriverMemory {
		require("BUS_URL", c.Bus.URL)
	}
	if c.Service == ServicePayments {
		require("STRIPE_KEY", c.StripeKey)
		require("REDIS_URL", c.RedisURL)
	}

	var errs []error
	if len(missing) > 0 {
		errs = append(errs, fmt.Errorf("%w: %s", ErrMissing, strings.Join(missing, ", ")))
	}

	switch c.Service {
	case ServiceTickets, ServiceOrders, ServicePayments:
	default:
		errs = append(errs, fmt.Errorf("unknown service %q", c.Service))
	}

	switch c.Bus.Driver {
	case DriverKafka, DriverRedis, DriverMemory:
	default:
		errs = append(errs, fmt.Errorf("unknown BUS_DRIVER %q", c.Bus.Driver))
	}

	if c.DatabaseURL != "" && c.DatabaseURL != MemoryDatabaseURL &&
		!strings.HasPrefix(c.DatabaseURL, "postgres://") && !strings.HasPrefix(c.DatabaseURL, "postgresql://") {
		errs = append(errs, fmt.Errorf("unsupported DATABASE_URL scheme in %q", c.DatabaseURL))
	}

	return errors.Join(errs...)
}

// InMemoryStore reports whether the service keeps its data in process.
func (c *Config) InMemoryStore() bool {
	return c.DatabaseURL == MemoryDatabaseURL
}
