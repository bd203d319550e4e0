package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// Config carries every pipeline knob as a named value. The dedup and
// hand-off windows are deliberately separate settings: webhook transaction
// dedup, client event dedup and browser hand-off all run on different time
// scales and must never share one inferred "correct" TTL.
type Config struct {
	Port    string `mapstructure:"PORT"`
	GinMode string `mapstructure:"GIN_MODE"`

	// Dedup / hand-off / geo windows
	DedupBackend         string `mapstructure:"DEDUP_BACKEND"` // "memory" or "redis"
	RedisAddr            string `mapstructure:"REDIS_ADDR"`
	DedupWebhookTTLHours int    `mapstructure:"DEDUP_WEBHOOK_TTL_HOURS"`
	DedupEventTTLMinutes int    `mapstructure:"DEDUP_EVENT_TTL_MINUTES"`
	HandoffTTLMinutes    int    `mapstructure:"HANDOFF_TTL_MINUTES"`
	GeoCacheTTLMinutes   int    `mapstructure:"GEO_CACHE_TTL_MINUTES"`

	// Rate limiting
	RateLimitEvents        int `mapstructure:"RATE_LIMIT_EVENTS"`
	RateLimitWindowSeconds int `mapstructure:"RATE_LIMIT_WINDOW_SECONDS"`

	// Delivery channels
	ChannelTimeoutSeconds int    `mapstructure:"CHANNEL_TIMEOUT_SECONDS"`
	CAPIEndpoint          string `mapstructure:"CAPI_ENDPOINT"`
	CAPIAccessToken       string `mapstructure:"CAPI_ACCESS_TOKEN"`
	KafkaBrokers          string `mapstructure:"KAFKA_BROKERS"`
	KafkaTopic            string `mapstructure:"KAFKA_TOPIC"`

	// Geo providers
	GeoPrimaryURL  string `mapstructure:"GEO_PRIMARY_URL"`
	GeoFallbackURL string `mapstructure:"GEO_FALLBACK_URL"`
}

func LoadConfig() (*Config, error) {
	viper.SetConfigFile(".env")
	_ = viper.ReadInConfig()
	viper.AutomaticEnv()

	bindKeys()

	var c Config
	if err := viper.Unmarshal(&c); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config from env: %w", err)
	}

	if err := c.validate(); err != nil {
		return nil, err
	}

	return &c, nil
}

// bindKeys registers every key so AutomaticEnv picks it up even when no
// .env file is present.
func bindKeys() {
	for _, key := range []string{
		"PORT", "GIN_MODE",
		"DEDUP_BACKEND", "REDIS_ADDR",
		"DEDUP_WEBHOOK_TTL_HOURS", "DEDUP_EVENT_TTL_MINUTES",
		"HANDOFF_TTL_MINUTES", "GEO_CACHE_TTL_MINUTES",
		"RATE_LIMIT_EVENTS", "RATE_LIMIT_WINDOW_SECONDS",
		"CHANNEL_TIMEOUT_SECONDS",
		"CAPI_ENDPOINT", "CAPI_ACCESS_TOKEN",
		"KAFKA_BROKERS", "KAFKA_TOPIC",
		"GEO_PRIMARY_URL", "GEO_FALLBACK_URL",
	} {
		_ = viper.BindEnv(key)
	}
}

func (c *Config) validate() error {
	if c.Port == "" {
		c.Port = "8080"
	}
	if c.DedupBackend == "" {
		c.DedupBackend = "memory"
	}
	if c.DedupBackend == "redis" && c.RedisAddr == "" {
		return fmt.Errorf("REDIS_ADDR is required when DEDUP_BACKEND=redis")
	}
	if c.DedupWebhookTTLHours <= 0 {
		c.DedupWebhookTTLHours = 24
	}
	if c.DedupEventTTLMinutes <= 0 {
		c.DedupEventTTLMinutes = 30
	}
	if c.HandoffTTLMinutes <= 0 {
		c.HandoffTTLMinutes = 5
	}
	if c.GeoCacheTTLMinutes <= 0 {
		c.GeoCacheTTLMinutes = 5
	}
	if c.RateLimitEvents <= 0 {
		c.RateLimitEvents = 120
	}
	if c.RateLimitWindowSeconds <= 0 {
		c.RateLimitWindowSeconds = 60
	}
	if c.ChannelTimeoutSeconds <= 0 {
		c.ChannelTimeoutSeconds = 10
	}
	if c.GeoPrimaryURL == "" {
		c.GeoPrimaryURL = "http://ip-api.com/json"
	}
	if c.GeoFallbackURL == "" {
		c.GeoFallbackURL = "https://ipwho.is"
	}
	return nil
}

func (c *Config) GetKafkaBrokers() []string {
	if c.KafkaBrokers == "" {
		return nil
	}
	return strings.Split(c.KafkaBrokers, ",")
}

func (c *Config) WebhookDedupTTL() time.Duration {
	return time.Duration(c.DedupWebhookTTLHours) * time.Hour
}

func (c *Config) EventDedupTTL() time.Duration {
	return time.Duration(c.DedupEventTTLMinutes) * time.Minute
}

func (c *Config) HandoffTTL() time.Duration {
	return time.Duration(c.HandoffTTLMinutes) * time.Minute
}

func (c *Config) GeoCacheTTL() time.Duration {
	return time.Duration(c.GeoCacheTTLMinutes) * time.Minute
}

func (c *Config) RateLimitWindow() time.Duration {
	return time.Duration(c.RateLimitWindowSeconds) * time.Second
}

func (c *Config) ChannelTimeout() time.Duration {
	return time.Duration(c.ChannelTimeoutSeconds) * time.Second
}
