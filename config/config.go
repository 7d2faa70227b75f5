package config

import (
	"errors"
	"fmt"
	"net/url"
	"strings"
	"time"

	"github.com/spf13/viper"
)

type Config struct {
	Port              int
	Domain            string
	AuthSecret        string
	MaxUploadSizeMB   int
	DataDir           string
	BehindProxy       bool
	Backend           BackendConfig
	PreferenceBackend string
	Redis             RedisConfig
	Log               LogConfig
}

type BackendConfig struct {
	BaseURL      string
	Timeout      time.Duration
	RequestsPerS float64
	Burst        int
	PollInterval time.Duration
}

type RedisConfig struct {
	Addr     string
	Password string
	DB       int
}

type LogConfig struct {
	Level  string
	Format string
}

// Load reads configuration from defaults, an optional config.yaml (current
// directory or ./config) and MEDIADESK_* environment variables, in increasing
// precedence.
func Load() (*Config, error) {
	v := viper.New()
	v.SetConfigName("config")
	v.SetConfigType("yaml")
	v.AddConfigPath(".")
	v.AddConfigPath("./config")
	return load(v)
}

func load(v *viper.Viper) (*Config, error) {
	v.SetEnvPrefix("mediadesk")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	v.SetDefault("port", 7890)
	v.SetDefault("domain", "localhost:7890")
	v.SetDefault("auth_secret", "")
	v.SetDefault("max_upload_size_mb", 2048)
	v.SetDefault("data_dir", "/data")
	v.SetDefault("behind_proxy", false)
	v.SetDefault("backend.base_url", "http://localhost:8000")
	v.SetDefault("backend.timeout", "60s")
	v.SetDefault("backend.requests_per_second", 10.0)
	v.SetDefault("backend.burst", 20)
	v.SetDefault("backend.poll_interval", "2s")
	v.SetDefault("preferences.backend", "sqlite")
	v.SetDefault("redis.addr", "localhost:6379")
	v.SetDefault("redis.password", "")
	v.SetDefault("redis.db", 0)
	v.SetDefault("log.level", "info")
	v.SetDefault("log.format", "json")

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) {
			return nil, fmt.Errorf("read config file: %w", err)
		}
	}

	cfg := &Config{
		Port:            v.GetInt("port"),
		Domain:          v.GetString("domain"),
		AuthSecret:      v.GetString("auth_secret"),
		MaxUploadSizeMB: v.GetInt("max_upload_size_mb"),
		DataDir:         v.GetString("data_dir"),
		BehindProxy:     v.GetBool("behind_proxy"),
		Backend: BackendConfig{
			BaseURL:      strings.TrimRight(v.GetString("backend.base_url"), "/"),
			Timeout:      v.GetDuration("backend.timeout"),
			RequestsPerS: v.GetFloat64("backend.requests_per_second"),
			Burst:        v.GetInt("backend.burst"),
			PollInterval: v.GetDuration("backend.poll_interval"),
		},
		PreferenceBackend: strings.ToLower(v.GetString("preferences.backend")),
		Redis: RedisConfig{
			Addr:     v.GetString("redis.addr"),
			Password: v.GetString("redis.password"),
			DB:       v.GetInt("redis.db"),
		},
		Log: LogConfig{
			Level:  v.GetString("log.level"),
			Format: v.GetString("log.format"),
		},
	}

	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (c *Config) validate() error {
	if c.AuthSecret == "" {
		return fmt.Errorf("MEDIADESK_AUTH_SECRET is required")
	}
	if c.Port <= 0 || c.Port > 65535 {
		return fmt.Errorf("invalid port: %d", c.Port)
	}
	if c.MaxUploadSizeMB <= 0 {
		return fmt.Errorf("invalid max_upload_size_mb: %d", c.MaxUploadSizeMB)
	}
	u, err := url.Parse(c.Backend.BaseURL)
	if err != nil || (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
		return fmt.Errorf("invalid backend.base_url: %q", c.Backend.BaseURL)
	}
	if c.Backend.Timeout <= 0 {
		return fmt.Errorf("invalid backend.timeout: %s", c.Backend.Timeout)
	}
	if c.Backend.PollInterval < 100*time.Millisecond {
		return fmt.Errorf("backend.poll_interval must be at least 100ms, got %s", c.Backend.PollInterval)
	}
	switch c.PreferenceBackend {
	case "sqlite", "redis", "jsonfile", "memory":
	default:
		return fmt.Errorf("unknown preferences.backend: %q", c.PreferenceBackend)
	}
	return nil
}
