package config

import (
	"errors"
	"fmt"
	"io/fs"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

type Config struct {
	HTTPPort        string        `mapstructure:"HTTP_PORT"`
	GRPCPort        string        `mapstructure:"GRPC_PORT"`
	MongoURI        string        `mapstructure:"MONGO_URI"`
	MongoDBName     string        `mapstructure:"MONGO_DB_NAME"`
	MongoMaxPool    uint64        `mapstructure:"MONGO_MAX_POOL_SIZE"`
	MongoMinPool    uint64        `mapstructure:"MONGO_MIN_POOL_SIZE"`
	MongoTimeout    time.Duration `mapstructure:"MONGO_CONNECT_TIMEOUT"`
	RedisAddr       string        `mapstructure:"REDIS_ADDR"`
	RedisPassword   string        `mapstructure:"REDIS_PASSWORD"`
	CatalogDBPath   string        `mapstructure:"CATALOG_DB_PATH"`
	KafkaBrokers    string        `mapstructure:"KAFKA_BROKERS"`
	CheckoutTopic   string        `mapstructure:"CHECKOUT_TOPIC"`
	KafkaGroupID    string        `mapstructure:"KAFKA_GROUP_ID"`
	RequestTimeout  time.Duration `mapstructure:"REQUEST_TIMEOUT"`
	ShutdownTimeout time.Duration `mapstructure:"SHUTDOWN_TIMEOUT"`
	LogLevel        string        `mapstructure:"LOG_LEVEL"`
	Env             string        `mapstructure:"ENV"`

	ShippingFreeThreshold float64 `mapstructure:"SHIPPING_FREE_THRESHOLD"`
	ShippingStandard      float64 `mapstructure:"SHIPPING_STANDARD"`
	ShippingExpress       float64 `mapstructure:"SHIPPING_EXPRESS"`
}

var defaults = map[string]any{
	"HTTP_PORT":               "8080",
	"GRPC_PORT":               "50052",
	"MONGO_URI":               "mongodb://localhost:27017",
	"MONGO_DB_NAME":           "basketdb",
	"MONGO_MAX_POOL_SIZE":     50,
	"MONGO_MIN_POOL_SIZE":     0,
	"MONGO_CONNECT_TIMEOUT":   "10s",
	"REDIS_ADDR":              "localhost:6379",
	"REDIS_PASSWORD":          "",
	"CATALOG_DB_PATH":         "./catalog.db",
	"KAFKA_BROKERS":           "localhost:9092",
	"CHECKOUT_TOPIC":          "checkout-outbox",
	"KAFKA_GROUP_ID":          "basket-service",
	"REQUEST_TIMEOUT":         "30s",
	"SHUTDOWN_TIMEOUT":        "10s",
	"LOG_LEVEL":               "info",
	"ENV":                     "production",
	"SHIPPING_FREE_THRESHOLD": 500.0,
	"SHIPPING_STANDARD":       29.90,
	"SHIPPING_EXPRESS":        59.90,
}

// Load reads configuration from the environment. Values from the given
// dotenv files (".env" when none are given) fill in variables that are not
// already set; missing files are ignored.
func Load(envFiles ...string) (*Config, error) {
	if err := godotenv.Load(envFiles...); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return nil, fmt.Errorf("failed to load dotenv: %w", err)
	}

	v := viper.New()
	for key, value := range defaults {
		v.SetDefault(key, value)
	}
	v.AutomaticEnv()

	cfg := &Config{}
	if err := v.Unmarshal(cfg); err != nil {
		return nil, fmt.Errorf("failed to decode config: %w", err)
	}
	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Brokers splits KAFKA_BROKERS on commas.
func (c *Config) Brokers() []string {
	var brokers []string
	for _, b := range strings.Split(c.KafkaBrokers, ",") {
		if b = strings.TrimSpace(b); b != "" {
			brokers = append(brokers, b)
		}
	}
	return brokers
}

func (c *Config) validate() error {
	switch {
	case c.HTTPPort == "":
		return errors.New("HTTP_PORT is required")
	case c.MongoURI == "":
		return errors.New("MONGO_URI is required")
	case c.MongoMinPool > c.MongoMaxPool:
		return errors.New("MONGO_MIN_POOL_SIZE cannot exceed MONGO_MAX_POOL_SIZE")
	case c.RequestTimeout <= 0:
		return errors.New("REQUEST_TIMEOUT must be positive")
	case c.ShutdownTimeout <= 0:
		return errors.New("SHUTDOWN_TIMEOUT must be positive")
	case c.ShippingFreeThreshold < 0 || c.ShippingStandard < 0 || c.ShippingExpress < 0:
		return errors.New("shipping prices cannot be negative")
	}
	return nil
}
