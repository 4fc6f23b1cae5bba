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

type Twilio struct {
	AccountSID string `yaml:"account_sid"`
	AuthToken  string `yaml:"auth_token"`
	FromPhone  string `yaml:"from_phone"`
	BaseURL    string `yaml:"base_url"` // gateway root, overridable for tests
}

type Config struct {
	EnvName     string `yaml:"env_name"`
	HTTPAddr    string `yaml:"http_addr"`  // plain listener, e.g. ":3000"
	HTTPSAddr   string `yaml:"https_addr"` // TLS listener; only started when cert+key are set
	TLSCertFile string `yaml:"tls_cert_file"`
	TLSKeyFile  string `yaml:"tls_key_file"`

	DataDir     string `yaml:"data_dir"`      // file store root
	LogDir      string `yaml:"log_dir"`       // operator log (zap)
	CheckLogDir string `yaml:"check_log_dir"` // per-check append-only logs
	LogLevel    string `yaml:"log_level"`

	StoreDriver string `yaml:"store_driver"` // file | memory | sqlite | postgres
	DatabaseURL string `yaml:"database_url"` // sqlite path or postgres DSN

	CheckInterval  time.Duration `yaml:"check_interval"`
	RotateInterval time.Duration `yaml:"rotate_interval"`
	MaxConcurrent  int           `yaml:"max_concurrent"` // 0 = unlimited

	Twilio         Twilio `yaml:"twilio"`
	SMSCountryCode string `yaml:"sms_country_code"`
	SlackWebhook   string `yaml:"slack_webhook"`

	PublicAPIKeys []string `yaml:"public_api_keys"`
	AdminAPIKeys  []string `yaml:"admin_api_keys"`
	PublicRPM     int      `yaml:"public_rpm"`
	PublicBurst   int      `yaml:"public_burst"`
	AdminRPM      int      `yaml:"admin_rpm"`
	AdminBurst    int      `yaml:"admin_burst"`
}

// environment port pairs, keyed by ENV_NAME
var environments = map[string][2]int{
	"staging":    {3000, 3001},
	"production": {5000, 5001},
	"testing":    {4000, 4001},
}

// Defaults returns the baseline config for a named environment. Unknown
// names fall back to staging.
func Defaults(envName string) Config {
	envName = strings.ToLower(strings.TrimSpace(envName))
	ports, ok := environments[envName]
	if !ok {
		envName = "staging"
		ports = environments[envName]
	}
	return Config{
		EnvName:        envName,
		HTTPAddr:       fmt.Sprintf(":%d", ports[0]),
		HTTPSAddr:      fmt.Sprintf(":%d", ports[1]),
		DataDir:        ".data",
		LogDir:         "logs",
		CheckLogDir:    ".logs",
		LogLevel:       "info",
		StoreDriver:    "file",
		CheckInterval:  time.Minute,
		RotateInterval: 24 * time.Hour,
		Twilio:         Twilio{BaseURL: "https://api.twilio.com"},
		SMSCountryCode: "55",
		PublicRPM:      120,
		PublicBurst:    60,
		AdminRPM:       30,
		AdminBurst:     10,
	}
}

// Load reads an optional YAML file over the defaults, then applies the
// environment on top. An empty or missing path means defaults + env.
func Load(path string) (Config, error) {
	cfg := Defaults(os.Getenv("ENV_NAME"))
	if path != "" {
		content, err := os.ReadFile(path)
		switch {
		case errors.Is(err, os.ErrNotExist):
		case err != nil:
			return Config{}, fmt.Errorf("read config: %w", err)
		default:
			if err := yaml.Unmarshal(content, &cfg); err != nil {
				return Config{}, fmt.Errorf("parse config: %w", err)
			}
		}
	}
	applyEnv(&cfg)
	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// Validate rejects settings the worker cannot run with.
func (c Config) Validate() error {
	switch c.StoreDriver {
	case "file", "memory":
	case "sqlite", "postgres":
		if c.DatabaseURL == "" {
			return fmt.Errorf("store driver %s requires DATABASE_URL", c.StoreDriver)
		}
	default:
		return fmt.Errorf("unknown store driver %q", c.StoreDriver)
	}
	if c.CheckInterval <= 0 {
		return errors.New("check interval must be positive")
	}
	if c.RotateInterval <= 0 {
		return errors.New("rotate interval must be positive")
	}
	if (c.TLSCertFile == "") != (c.TLSKeyFile == "") {
		return errors.New("tls cert and key must be set together")
	}
	return nil
}

// TLSEnabled reports whether the HTTPS listener should start.
func (c Config) TLSEnabled() bool {
	return c.TLSCertFile != "" && c.TLSKeyFile != "" && c.HTTPSAddr != ""
}

// SMSEnabled reports whether gateway credentials are present.
func (c Config) SMSEnabled() bool {
	return c.Twilio.AccountSID != "" && c.Twilio.AuthToken != "" && c.Twilio.FromPhone != ""
}

func applyEnv(c *Config) {
	setString(&c.HTTPAddr, "HTTP_ADDR")
	setString(&c.HTTPSAddr, "HTTPS_ADDR")
	setString(&c.TLSCertFile, "TLS_CERT_FILE")
	setString(&c.TLSKeyFile, "TLS_KEY_FILE")
	setString(&c.DataDir, "DATA_DIR")
	setString(&c.LogDir, "LOG_DIR")
	setString(&c.CheckLogDir, "CHECK_LOG_DIR")
	setString(&c.LogLevel, "LOG_LEVEL")
	setString(&c.StoreDriver, "STORE_DRIVER")
	setString(&c.DatabaseURL, "DATABASE_URL")
	setDuration(&c.CheckInterval, "CHECK_INTERVAL")
	setDuration(&c.RotateInterval, "ROTATE_INTERVAL")
	setInt(&c.MaxConcurrent, "MAX_CONCURRENT_CHECKS")
	setString(&c.Twilio.AccountSID, "TWILIO_ACCOUNT_SID")
	setString(&c.Twilio.AuthToken, "TWILIO_AUTH_TOKEN")
	setString(&c.Twilio.FromPhone, "TWILIO_FROM_PHONE")
	setString(&c.Twilio.BaseURL, "TWILIO_BASE_URL")
	setString(&c.SMSCountryCode, "SMS_COUNTRY_CODE")
	setString(&c.SlackWebhook, "SLACK_WEBHOOK_URL")
	setList(&c.PublicAPIKeys, "PUBLIC_API_KEYS")
	setList(&c.AdminAPIKeys, "ADMIN_API_KEYS")
	setInt(&c.PublicRPM, "PUBLIC_RPM")
	setInt(&c.PublicBurst, "PUBLIC_BURST")
	setInt(&c.AdminRPM, "ADMIN_RPM")
	setInt(&c.AdminBurst, "ADMIN_BURST")
}

func setString(dst *string, key string) {
	if v := strings.TrimSpace(os.Getenv(key)); v != "" {
		*dst = v
	}
}

func setInt(dst *int, key string) {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n >= 0 {
			*dst = n
		}
	}
}

// Durations accept Go syntax ("90s") or bare milliseconds ("1500").
func setDuration(dst *time.Duration, key string) {
	v := strings.TrimSpace(os.Getenv(key))
	if v == "" {
		return
	}
	if d, err := time.ParseDuration(v); err == nil && d > 0 {
		*dst = d
		return
	}
	if ms, err := strconv.Atoi(v); err == nil && ms > 0 {
		*dst = time.Duration(ms) * time.Millisecond
	}
}

func setList(dst *[]string, key string) {
	v := strings.TrimSpace(os.Getenv(key))
	if v == "" {
		return
	}
	var out []string
	for _, p := range strings.Split(v, ",") {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, p)
		}
	}
	*dst = out
}
