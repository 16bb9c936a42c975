package config

import (
	"fmt"
	"net/url"
	"os"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// TelemetryConfig holds InfluxDB v2 connection parameters for the
// scheduler/job metrics sink (internal/telemetry).
type TelemetryConfig struct {
	URL           string        `yaml:"url"`
	Token         string        `yaml:"token"`
	Org           string        `yaml:"org"`
	Bucket        string        `yaml:"bucket"`
	BatchSize     int           `yaml:"batch_size"`
	FlushInterval time.Duration `yaml:"flush_interval"`
}

// Config holds the agent's runtime parameters read from config.yml.
type Config struct {
	DeviceID         string          `yaml:"deviceid"`
	ServerURL        string          `yaml:"server_url"`
	TargetExpiration time.Duration   `yaml:"target_expiration"`
	MaxCount         uint32          `yaml:"max_count"`
	SNMPRateLimit    int             `yaml:"snmp_rate_limit"`
	HealthCheckPort  int             `yaml:"health_check_port"`
	Debug            bool            `yaml:"debug"`
	Telemetry        TelemetryConfig `yaml:"telemetry"`
}

// LoadConfig parses the YAML configuration file and returns a Config,
// applying defaults and floors for unset fields.
func LoadConfig(path string) (*Config, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	// Raw config struct for YAML parsing with string-duration fields,
	// decoded first and converted below.
	var raw struct {
		DeviceID         string `yaml:"deviceid"`
		ServerURL        string `yaml:"server_url"`
		TargetExpiration int    `yaml:"target_expiration"`
		MaxCount         uint32 `yaml:"max_count"`
		SNMPRateLimit    int    `yaml:"snmp_rate_limit"`
		HealthCheckPort  int    `yaml:"health_check_port"`
		Debug            bool   `yaml:"debug"`
		Telemetry        struct {
			URL           string `yaml:"url"`
			Token         string `yaml:"token"`
			Org           string `yaml:"org"`
			Bucket        string `yaml:"bucket"`
			BatchSize     int    `yaml:"batch_size"`
			FlushInterval string `yaml:"flush_interval"`
		} `yaml:"telemetry"`
	}

	decoder := yaml.NewDecoder(f)
	if err := decoder.Decode(&raw); err != nil {
		return nil, err
	}

	// target_expiration: default 60, floored at 60.
	targetExpiration := time.Duration(raw.TargetExpiration) * time.Second
	if targetExpiration < 60*time.Second {
		targetExpiration = 60 * time.Second
	}

	if raw.MaxCount == 0 {
		raw.MaxCount = 64
	}
	if raw.SNMPRateLimit == 0 {
		raw.SNMPRateLimit = 50
	}
	if raw.HealthCheckPort == 0 {
		raw.HealthCheckPort = 8080
	}
	if raw.Telemetry.BatchSize == 0 {
		raw.Telemetry.BatchSize = 500
	}

	var flushInterval time.Duration
	if raw.Telemetry.FlushInterval != "" {
		flushInterval, err = time.ParseDuration(raw.Telemetry.FlushInterval)
		if err != nil {
			return nil, fmt.Errorf("invalid telemetry.flush_interval: %v", err)
		}
	} else {
		flushInterval = 10 * time.Second
	}

	raw.Telemetry.URL = expandEnv(raw.Telemetry.URL)
	raw.Telemetry.Token = expandEnv(raw.Telemetry.Token)
	raw.Telemetry.Org = expandEnv(raw.Telemetry.Org)
	raw.Telemetry.Bucket = expandEnv(raw.Telemetry.Bucket)
	raw.ServerURL = expandEnv(raw.ServerURL)

	return &Config{
		DeviceID:         raw.DeviceID,
		ServerURL:        raw.ServerURL,
		TargetExpiration: targetExpiration,
		MaxCount:         raw.MaxCount,
		SNMPRateLimit:    raw.SNMPRateLimit,
		HealthCheckPort:  raw.HealthCheckPort,
		Debug:            raw.Debug,
		Telemetry: TelemetryConfig{
			URL:           raw.Telemetry.URL,
			Token:         raw.Telemetry.Token,
			Org:           raw.Telemetry.Org,
			Bucket:        raw.Telemetry.Bucket,
			BatchSize:     raw.Telemetry.BatchSize,
			FlushInterval: flushInterval,
		},
	}, nil
}

// expandEnv expands environment variables in a string, supporting ${VAR}
// and $VAR syntax.
func expandEnv(s string) string {
	return os.ExpandEnv(s)
}

// ValidateConfig performs sanity checks on the configuration. It returns a
// warning string for non-fatal concerns and an error for validation
// failures.
func ValidateConfig(cfg *Config) (string, error) {
	if cfg.DeviceID == "" {
		return "", fmt.Errorf("deviceid is required")
	}
	if cfg.ServerURL == "" {
		return "", fmt.Errorf("server_url is required")
	}
	if err := validateURL(cfg.ServerURL); err != nil {
		return "", fmt.Errorf("server_url validation failed: %v", err)
	}
	if cfg.TargetExpiration < 60*time.Second {
		return "", fmt.Errorf("target_expiration must be at least 60s, got %v", cfg.TargetExpiration)
	}
	if cfg.MaxCount < 1 || cfg.MaxCount > 10000 {
		return "", fmt.Errorf("max_count must be between 1 and 10000, got %d", cfg.MaxCount)
	}
	if cfg.SNMPRateLimit < 1 || cfg.SNMPRateLimit > 10000 {
		return "", fmt.Errorf("snmp_rate_limit must be between 1 and 10000, got %d", cfg.SNMPRateLimit)
	}
	if cfg.HealthCheckPort < 1 || cfg.HealthCheckPort > 65535 {
		return "", fmt.Errorf("health_check_port must be between 1 and 65535, got %d", cfg.HealthCheckPort)
	}

	if cfg.Telemetry.URL != "" {
		if err := validateURL(cfg.Telemetry.URL); err != nil {
			return "", fmt.Errorf("telemetry.url validation failed: %v", err)
		}
		if cfg.Telemetry.Token == "" {
			return "", fmt.Errorf("telemetry.token is required when telemetry.url is set")
		}
		if cfg.Telemetry.Org == "" {
			return "", fmt.Errorf("telemetry.org is required when telemetry.url is set")
		}
		if cfg.Telemetry.Bucket == "" {
			return "", fmt.Errorf("telemetry.bucket is required when telemetry.url is set")
		}
	}

	return "", nil
}

// validateURL validates URL format and scheme, shared by server_url and
// telemetry.url checks.
func validateURL(urlStr string) error {
	if len(urlStr) == 0 {
		return fmt.Errorf("URL cannot be empty")
	}
	if len(urlStr) > 2048 {
		return fmt.Errorf("URL too long (max 2048 characters)")
	}
	if !strings.HasPrefix(urlStr, "http://") && !strings.HasPrefix(urlStr, "https://") {
		return fmt.Errorf("URL must use http or https scheme")
	}
	parsedURL, err := url.Parse(urlStr)
	if err != nil {
		return fmt.Errorf("invalid URL format: %v", err)
	}
	if parsedURL.Host == "" {
		return fmt.Errorf("URL must include a valid host")
	}
	return nil
}
