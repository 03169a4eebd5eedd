package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

const (
	LedgerMemory   = "memory"
	LedgerPostgres = "postgres"

	GuardNone     = "none"
	GuardLocal    = "local"
	GuardAdvisory = "advisory"
	GuardRedis    = "redis"
)

type Config struct {
	Port         string          `yaml:"port"`
	PostgresURL  string          `yaml:"postgres_url"`
	KafkaBrokers []string        `yaml:"kafka_brokers"`
	RedisAddr    string          `yaml:"redis_addr"`
	OTLPEndpoint string          `yaml:"otlp_endpoint"`
	Inventory    InventoryConfig `yaml:"inventory"`
	Checkout     CheckoutConfig  `yaml:"checkout"`
	Payment      PaymentConfig   `yaml:"payment"`
	Mail         MailConfig      `yaml:"mail"`
}

type InventoryConfig struct {
	Ledger         string        `yaml:"ledger"`
	Guard          string        `yaml:"guard"`
	ReservationTTL time.Duration `yaml:"reservation_ttl"`
	SweepInterval  time.Duration `yaml:"sweep_interval"`
	LockLease      time.Duration `yaml:"lock_lease"`
}

// CheckoutConfig amounts are in minor currency units.
type CheckoutConfig struct {
	PriceTolerance        int64 `yaml:"price_tolerance"`
	ShippingFee           int64 `yaml:"shipping_fee"`
	FreeShippingThreshold int64 `yaml:"free_shipping_threshold"`
}

type PaymentConfig struct {
	BaseURL   string `yaml:"base_url"`
	SecretKey string `yaml:"secret_key"`
}

type MailConfig struct {
	APIURL string `yaml:"api_url"`
}

func Default() *Config {
	return &Config{
		Port:         "8080",
		OTLPEndpoint: "localhost:4317",
		Inventory: InventoryConfig{
			Ledger:         LedgerPostgres,
			Guard:          GuardNone,
			ReservationTTL: 30 * time.Minute,
			SweepInterval:  time.Minute,
			LockLease:      5 * time.Second,
		},
		Checkout: CheckoutConfig{
			PriceTolerance: 100,
			ShippingFee:    2500,
		},
		Payment: PaymentConfig{
			BaseURL: "https://api.paystack.co",
		},
	}
}

// Load builds the configuration from defaults, then the YAML file named by
// CONFIG_FILE if set, then environment variables.
func Load() (*Config, error) {
	cfg := Default()

	if path := os.Getenv("CONFIG_FILE"); path != "" {
		if err := cfg.loadFile(path); err != nil {
			return nil, err
		}
	}

	if err := cfg.loadEnv(); err != nil {
		return nil, err
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return cfg, nil
}

func (c *Config) loadFile(path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("read config file: %w", err)
	}

	if err := yaml.Unmarshal(data, c); err != nil {
		return fmt.Errorf("parse config file %s: %w", path, err)
	}

	return nil
}

func (c *Config) loadEnv() error {
	c.Port = getEnv("PORT", c.Port)
	c.PostgresURL = getEnv("POSTGRES_URL", c.PostgresURL)
	c.RedisAddr = getEnv("REDIS_ADDR", c.RedisAddr)
	c.OTLPEndpoint = getEnv("OTEL_EXPORTER_OTLP_ENDPOINT", c.OTLPEndpoint)
	c.Inventory.Ledger = getEnv("INVENTORY_LEDGER", c.Inventory.Ledger)
	c.Inventory.Guard = getEnv("RESERVATION_GUARD", c.Inventory.Guard)
	c.Payment.BaseURL = getEnv("PAYMENT_BASE_URL", c.Payment.BaseURL)
	c.Payment.SecretKey = getEnv("PAYMENT_SECRET_KEY", c.Payment.SecretKey)
	c.Mail.APIURL = getEnv("MAIL_API_URL", c.Mail.APIURL)

	if brokers := os.Getenv("KAFKA_BROKERS"); brokers != "" {
		c.KafkaBrokers = strings.Split(brokers, ",")
	}

	var errs []error
	for key, dst := range map[string]*time.Duration{
		"RESERVATION_TTL": &c.Inventory.ReservationTTL,
		"SWEEP_INTERVAL":  &c.Inventory.SweepInterval,
		"LOCK_LEASE":      &c.Inventory.LockLease,
	} {
		if raw, ok := os.LookupEnv(key); ok {
			d, err := time.ParseDuration(raw)
			if err != nil {
				errs = append(errs, fmt.Errorf("%s: %w", key, err))
				continue
			}
			*dst = d
		}
	}

	for key, dst := range map[string]*int64{
		"PRICE_TOLERANCE":         &c.Checkout.PriceTolerance,
		"SHIPPING_FEE":            &c.Checkout.ShippingFee,
		"FREE_SHIPPING_THRESHOLD": &c.Checkout.FreeShippingThreshold,
	} {
		if raw, ok := os.LookupEnv(key); ok {
			v, err := strconv.ParseInt(raw, 10, 64)
			if err != nil {
				errs = append(errs, fmt.Errorf("%s: %w", key, err))
				continue
			}
			*dst = v
		}
	}

	return errors.Join(errs...)
}

func (c *Config) Validate() error {
	var errs []error

	switch c.Inventory.Ledger {
	case LedgerMemory, LedgerPostgres:
	default:
		errs = append(errs, fmt.Errorf("unknown inventory ledger %q", c.Inventory.Ledger))
	}

	switch c.Inventory.Guard {
	case GuardNone, GuardLocal:
	case GuardAdvisory:
		if c.Inventory.Ledger == LedgerMemory {
			errs = append(errs, errors.New("advisory guard requires the postgres ledger"))
		}
	case GuardRedis:
		if c.RedisAddr == "" {
			errs = append(errs, errors.New("redis guard requires REDIS_ADDR"))
		}
	default:
		errs = append(errs, fmt.Errorf("unknown reservation guard %q", c.Inventory.Guard))
	}

	if c.Inventory.ReservationTTL <= 0 {
		errs = append(errs, errors.New("reservation ttl must be positive"))
	}
	if c.Inventory.SweepInterval <= 0 {
		errs = append(errs, errors.New("sweep interval must be positive"))
	}
	if c.Checkout.PriceTolerance < 0 || c.Checkout.ShippingFee < 0 || c.Checkout.FreeShippingThreshold < 0 {
		errs = append(errs, errors.New("checkout amounts must not be negative"))
	}

	return errors.Join(errs...)
}

func getEnv(key, fallback string) string {
	if value, ok := os.LookupEnv(key); ok {
		return value
	}
	return fallback
}
