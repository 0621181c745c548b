package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

const (
	defaultEnvFile             = ".env"
	defaultPort                = "8080"
	defaultReadTimeout         = 15 * time.Second
	defaultWriteTimeout        = 30 * time.Second
	defaultIdleTimeout         = 120 * time.Second
	defaultCurrencyCode        = "USD"
	defaultDeliveryDelay       = 3 * time.Minute
	defaultReturnApprovalDelay = 3 * time.Minute
	defaultReturnRefundDelay   = 5 * time.Second
	defaultStockWorkers        = 4
	defaultStepTimeout         = 10 * time.Second
)

// Config captures all runtime configuration organised by concern.
type Config struct {
	Server      ServerConfig
	Firestore   FirestoreConfig
	PubSub      PubSubConfig
	Fulfillment FulfillmentConfig
}

// ServerConfig configures HTTP server parameters.
type ServerConfig struct {
	Port         string
	ReadTimeout  time.Duration
	WriteTimeout time.Duration
	IdleTimeout  time.Duration
}

// FirestoreConfig stores database parameters.
type FirestoreConfig struct {
	ProjectID    string
	EmulatorHost string
}

// PubSubConfig stores event publishing parameters. An empty topic disables
// event publishing entirely.
type PubSubConfig struct {
	ProjectID string
	Topic     string
}

// FulfillmentConfig tunes the order fulfillment pipeline and its simulated
// carrier/refund delays. The delays exist so tests and local environments can
// shrink them; the scheduler backing them is in-process and does not survive
// restarts.
type FulfillmentConfig struct {
	CurrencyCode        string
	DeliveryDelay       time.Duration
	ReturnApprovalDelay time.Duration
	ReturnRefundDelay   time.Duration
	StockWorkers        int
	StepTimeout         time.Duration
}

// Load reads configuration from the environment, optionally hydrating it from
// a .env file first. Missing values fall back to defaults; malformed values
// are reported rather than silently ignored.
func Load() (Config, error) {
	if _, err := os.Stat(defaultEnvFile); err == nil {
		if err := godotenv.Load(defaultEnvFile); err != nil {
			return Config{}, fmt.Errorf("config: load %s: %w", defaultEnvFile, err)
		}
	}

	cfg := Config{
		Server: ServerConfig{
			Port:         envOrDefault("PORT", defaultPort),
			ReadTimeout:  defaultReadTimeout,
			WriteTimeout: defaultWriteTimeout,
			IdleTimeout:  defaultIdleTimeout,
		},
		Firestore: FirestoreConfig{
			ProjectID:    strings.TrimSpace(os.Getenv("FIRESTORE_PROJECT_ID")),
			EmulatorHost: strings.TrimSpace(os.Getenv("FIRESTORE_EMULATOR_HOST")),
		},
		PubSub: PubSubConfig{
			ProjectID: strings.TrimSpace(os.Getenv("PUBSUB_PROJECT_ID")),
			Topic:     strings.TrimSpace(os.Getenv("FULFILLMENT_EVENTS_TOPIC")),
		},
		Fulfillment: FulfillmentConfig{
			CurrencyCode:        envOrDefault("FULFILLMENT_CURRENCY", defaultCurrencyCode),
			DeliveryDelay:       defaultDeliveryDelay,
			ReturnApprovalDelay: defaultReturnApprovalDelay,
			ReturnRefundDelay:   defaultReturnRefundDelay,
			StockWorkers:        defaultStockWorkers,
			StepTimeout:         defaultStepTimeout,
		},
	}

	var err error
	if cfg.Server.ReadTimeout, err = envDuration("SERVER_READ_TIMEOUT", cfg.Server.ReadTimeout); err != nil {
		return Config{}, err
	}
	if cfg.Server.WriteTimeout, err = envDuration("SERVER_WRITE_TIMEOUT", cfg.Server.WriteTimeout); err != nil {
		return Config{}, err
	}
	if cfg.Server.IdleTimeout, err = envDuration("SERVER_IDLE_TIMEOUT", cfg.Server.IdleTimeout); err != nil {
		return Config{}, err
	}
	if cfg.Fulfillment.DeliveryDelay, err = envDuration("SHIPMENT_DELIVERY_DELAY", cfg.Fulfillment.DeliveryDelay); err != nil {
		return Config{}, err
	}
	if cfg.Fulfillment.ReturnApprovalDelay, err = envDuration("RETURN_APPROVAL_DELAY", cfg.Fulfillment.ReturnApprovalDelay); err != nil {
		return Config{}, err
	}
	if cfg.Fulfillment.ReturnRefundDelay, err = envDuration("RETURN_REFUND_DELAY", cfg.Fulfillment.ReturnRefundDelay); err != nil {
		return Config{}, err
	}
	if cfg.Fulfillment.StepTimeout, err = envDuration("FULFILLMENT_STEP_TIMEOUT", cfg.Fulfillment.StepTimeout); err != nil {
		return Config{}, err
	}
	if cfg.Fulfillment.StockWorkers, err = envInt("FULFILLMENT_STOCK_WORKERS", cfg.Fulfillment.StockWorkers); err != nil {
		return Config{}, err
	}

	if err := cfg.validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

func (c Config) validate() error {
	if c.Fulfillment.StockWorkers <= 0 {
		return fmt.Errorf("config: FULFILLMENT_STOCK_WORKERS must be positive, got %d", c.Fulfillment.StockWorkers)
	}
	if c.Fulfillment.DeliveryDelay <= 0 {
		return fmt.Errorf("config: SHIPMENT_DELIVERY_DELAY must be positive")
	}
	if c.Fulfillment.ReturnApprovalDelay <= 0 || c.Fulfillment.ReturnRefundDelay <= 0 {
		return fmt.Errorf("config: return workflow delays must be positive")
	}
	if c.Fulfillment.StepTimeout <= 0 {
		return fmt.Errorf("config: FULFILLMENT_STEP_TIMEOUT must be positive")
	}
	if strings.TrimSpace(c.Fulfillment.CurrencyCode) == "" {
		return fmt.Errorf("config: FULFILLMENT_CURRENCY must not be blank")
	}
	return nil
}

func envOrDefault(key, fallback string) string {
	if value := strings.TrimSpace(os.Getenv(key)); value != "" {
		return value
	}
	return fallback
}

func envDuration(key string, fallback time.Duration) (time.Duration, error) {
	raw := strings.TrimSpace(os.Getenv(key))
	if raw == "" {
		return fallback, nil
	}
	parsed, err := time.ParseDuration(raw)
	if err != nil {
		return 0, fmt.Errorf("config: parse %s=%q: %w", key, raw, err)
	}
	return parsed, nil
}

func envInt(key string, fallback int) (int, error) {
	raw := strings.TrimSpace(os.Getenv(key))
	if raw == "" {
		return fallback, nil
	}
	parsed, err := strconv.Atoi(raw)
	if err != nil {
		return 0, fmt.Errorf("config: parse %s=%q: %w", key, raw, err)
	}
	return parsed, nil
}
