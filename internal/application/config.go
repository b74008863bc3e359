package application

import (
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"
)

// Config is the application-level wiring configuration, loaded from YAML.
// Scan filter configurations are a separate concern and never live here.
type Config struct {
	Exchange struct {
		BaseURL               string  `yaml:"base_url"`
		RequestTimeoutSeconds int     `yaml:"request_timeout_seconds"`
		RateLimitRPS          float64 `yaml:"rate_limit_rps"`
		RateLimitBurst        int     `yaml:"rate_limit_burst"`
	} `yaml:"exchange"`

	MarketCap struct {
		BaseURL         string  `yaml:"base_url"`
		RateLimitRPS    float64 `yaml:"rate_limit_rps"`
		RateLimitBurst  int     `yaml:"rate_limit_burst"`
		CacheTTLSeconds int     `yaml:"cache_ttl_seconds"`
		LookupWorkers   int     `yaml:"lookup_workers"`
		LookupTimeoutMS int     `yaml:"lookup_timeout_ms"`
	} `yaml:"market_cap"`

	Cache struct {
		RedisAddr string `yaml:"redis_addr"`
		RedisDB   int    `yaml:"redis_db"`
	} `yaml:"cache"`

	Postgres struct {
		DSN                 string `yaml:"dsn"`
		QueryTimeoutSeconds int    `yaml:"query_timeout_seconds"`
	} `yaml:"postgres"`
}

// Default returns the configuration used when no file is supplied.
func Default() *Config {
	c := &Config{}
	c.Exchange.RequestTimeoutSeconds = 10
	c.Exchange.RateLimitRPS = 5
	c.Exchange.RateLimitBurst = 5
	c.MarketCap.RateLimitRPS = 2
	c.MarketCap.RateLimitBurst = 4
	c.MarketCap.CacheTTLSeconds = 600
	c.MarketCap.LookupWorkers = 8
	c.MarketCap.LookupTimeoutMS = 5000
	c.Postgres.QueryTimeoutSeconds = 5
	return c
}

// Load reads a YAML config file over the defaults. An empty path yields
// the defaults unchanged.
func Load(path string) (*Config, error) {
	c := Default()
	if path == "" {
		return c, nil
	}

	b, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config: %w", err)
	}
	if err := yaml.Unmarshal(b, c); err != nil {
		return nil, fmt.Errorf("failed to parse config YAML: %w", err)
	}
	return c, nil
}

func (c *Config) ExchangeTimeout() time.Duration {
	return time.Duration(c.Exchange.RequestTimeoutSeconds) * time.Second
}

func (c *Config) MarketCapCacheTTL() time.Duration {
	return time.Duration(c.MarketCap.CacheTTLSeconds) * time.Second
}

func (c *Config) LookupTimeout() time.Duration {
	return time.Duration(c.MarketCap.LookupTimeoutMS) * time.Millisecond
}

func (c *Config) QueryTimeout() time.Duration {
	return time.Duration(c.Postgres.QueryTimeoutSeconds) * time.Second
}
