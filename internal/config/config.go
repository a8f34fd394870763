package config

import (
	"fmt"
	"time"

	"github.com/caarlos0/env/v10"
	"github.com/joho/godotenv"
)

type Config struct {
	Address  string `env:"ADDRESS" envDefault:"0.0.0.0"`
	Port     int    `env:"PORT" envDefault:"7000"`
	BaseURL  string `env:"BASE_URL"`
	LogLevel string `env:"LOG_LEVEL" envDefault:"info"`
	LogJSON  bool   `env:"LOG_JSON" envDefault:"true"`

	JWTSecret string `env:"JWT_SECRET" envDefault:"default_jwt_secret"`

	MongoURI      string `env:"MONGO_URI"`
	MongoDatabase string `env:"MONGO_DATABASE" envDefault:"copysignal"`

	RedisAddr     string `env:"REDIS_ADDR"`
	RedisPassword string `env:"REDIS_PASSWORD"`
	RedisDB       int    `env:"REDIS_DB" envDefault:"0"`

	KafkaBrokers        []string `env:"KAFKA_BROKERS" envSeparator:","`
	KafkaExecutionTopic string   `env:"KAFKA_TOPIC_EXECUTION_REQUESTS" envDefault:"copy_execution_requests"`

	Feed      FeedConfig
	Providers ProvidersConfig
	Hub       HubConfig
}

type FeedConfig struct {
	URL               string        `env:"FEED_URL" envDefault:"wss://stream.example-venue.com/ws"`
	APIKey            string        `env:"FEED_API_KEY"`
	ReconnectBase     time.Duration `env:"FEED_RECONNECT_BASE" envDefault:"1s"`
	ReconnectMax      time.Duration `env:"FEED_RECONNECT_MAX" envDefault:"30s"`
	MaxAttempts       int           `env:"FEED_MAX_RECONNECT_ATTEMPTS" envDefault:"10"`
	HeartbeatInterval time.Duration `env:"FEED_HEARTBEAT_INTERVAL" envDefault:"30s"`
	HeartbeatTimeout  time.Duration `env:"FEED_HEARTBEAT_TIMEOUT" envDefault:"0s"`
	DialTimeout       time.Duration `env:"FEED_DIAL_TIMEOUT" envDefault:"10s"`
}

type ProvidersConfig struct {
	Timeout       time.Duration `env:"PROVIDER_TIMEOUT" envDefault:"10s"`
	CacheTTL      time.Duration `env:"PROVIDER_CACHE_TTL" envDefault:"10s"`
	UnifiedTTL    time.Duration `env:"PRICE_CACHE_TTL" envDefault:"30s"`
	FallbackTable string        `env:"FALLBACK_PRICES_FILE"`

	CoinMarketCapURL string `env:"COINMARKETCAP_URL" envDefault:"https://pro-api.coinmarketcap.com"`
	CoinMarketCapKey string `env:"COINMARKETCAP_API_KEY"`
	CoinGeckoURL     string `env:"COINGECKO_URL" envDefault:"https://api.coingecko.com/api/v3"`
	CoinGeckoKey     string `env:"COINGECKO_API_KEY"`
	CryptoCompareURL string `env:"CRYPTOCOMPARE_URL" envDefault:"https://min-api.cryptocompare.com"`
	CryptoCompareKey string `env:"CRYPTOCOMPARE_API_KEY"`
}

type HubConfig struct {
	SendBuffer     int           `env:"HUB_SEND_BUFFER" envDefault:"256"`
	MaxMessageSize int64         `env:"HUB_MAX_MESSAGE_SIZE" envDefault:"4096"`
	PongWait       time.Duration `env:"HUB_PONG_WAIT" envDefault:"60s"`
}

// Load reads an optional .env file and then the process environment.
func Load() (*Config, error) {
	_ = godotenv.Load()

	var cfg Config
	if err := env.Parse(&cfg); err != nil {
		return nil, fmt.Errorf("parse env: %w", err)
	}
	if cfg.Port <= 0 || cfg.Port > 65535 {
		return nil, fmt.Errorf("invalid PORT value %d", cfg.Port)
	}
	if cfg.Feed.MaxAttempts < 0 {
		return nil, fmt.Errorf("invalid FEED_MAX_RECONNECT_ATTEMPTS value %d", cfg.Feed.MaxAttempts)
	}
	if cfg.BaseURL == "" {
		cfg.BaseURL = fmt.Sprintf("http://localhost:%d", cfg.Port)
	}
	return &cfg, nil
}
