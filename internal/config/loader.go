package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"time"

	"gopkg.in/yaml.v3"
)

// DefaultConfigFile is the path checked for YAML configuration.
const DefaultConfigFile = "fleetgate.yaml"

// Load returns a Config using the hierarchy: defaults < YAML < ENV.
// YAML file is optional; missing file is not an error.
func Load() (*Config, error) {
	return LoadFrom(DefaultConfigFile)
}

// LoadFrom returns a Config loaded from the given YAML path using the
// hierarchy: defaults < YAML < ENV. The YAML file is optional.
func LoadFrom(yamlPath string) (*Config, error) {
	cfg := Defaults()

	if err := loadYAML(&cfg, yamlPath); err != nil {
		return nil, fmt.Errorf("config yaml: %w", err)
	}

	loadEnv(&cfg)

	if err := validate(&cfg); err != nil {
		return nil, fmt.Errorf("config validate: %w", err)
	}

	return &cfg, nil
}

// loadYAML reads the YAML file and unmarshals it over cfg.
// Returns nil if the file does not exist.
func loadYAML(cfg *Config, path string) error {
	data, err := os.ReadFile(path) //nolint:gosec // G304: path is validated by caller
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil
		}
		return fmt.Errorf("read %s: %w", path, err)
	}

	if err := yaml.Unmarshal(data, cfg); err != nil {
		return fmt.Errorf("parse %s: %w", path, err)
	}

	return nil
}

// loadEnv overlays environment variables onto cfg.
// Only non-empty env values override the current config.
func loadEnv(cfg *Config) {
	setString(&cfg.Server.Port, "FLEETGATE_PORT")
	setString(&cfg.Server.CORSOrigin, "FLEETGATE_CORS_ORIGIN")
	setFloat(&cfg.Server.RateLimitRPS, "FLEETGATE_RATE_LIMIT_RPS")
	setInt(&cfg.Server.RateLimitBurst, "FLEETGATE_RATE_LIMIT_BURST")
	setString(&cfg.Postgres.DSN, "DATABASE_URL")
	setInt32(&cfg.Postgres.MaxConns, "FLEETGATE_PG_MAX_CONNS")
	setInt32(&cfg.Postgres.MinConns, "FLEETGATE_PG_MIN_CONNS")
	setDuration(&cfg.Postgres.MaxConnLifetime, "FLEETGATE_PG_MAX_CONN_LIFETIME")
	setDuration(&cfg.Postgres.MaxConnIdleTime, "FLEETGATE_PG_MAX_CONN_IDLE_TIME")
	setDuration(&cfg.Postgres.HealthCheck, "FLEETGATE_PG_HEALTH_CHECK")
	setString(&cfg.NATS.URL, "NATS_URL")
	setString(&cfg.Logging.Level, "FLEETGATE_LOG_LEVEL")
	setString(&cfg.Logging.Service, "FLEETGATE_LOG_SERVICE")
	setBool(&cfg.Logging.Async, "FLEETGATE_LOG_ASYNC")
	setBool(&cfg.Telemetry.Enabled, "FLEETGATE_TELEMETRY_ENABLED")
	setString(&cfg.Telemetry.OTLPEndpoint, "FLEETGATE_OTLP_ENDPOINT")
	setDuration(&cfg.Telemetry.Interval, "FLEETGATE_TELEMETRY_INTERVAL")
	setString(&cfg.Policy.RiskTablePath, "FLEETGATE_RISK_TABLE")
	setInt(&cfg.Eval.MaxParallel, "FLEETGATE_EVAL_MAX_PARALLEL")
	setDuration(&cfg.Eval.CaseTimeout, "FLEETGATE_EVAL_CASE_TIMEOUT")
	setDuration(&cfg.Approvals.SweepInterval, "FLEETGATE_APPROVAL_SWEEP_INTERVAL")
	setInt64(&cfg.Cache.MaxSizeMB, "FLEETGATE_CACHE_SIZE_MB")
	setDuration(&cfg.Cache.EnvelopeTTL, "FLEETGATE_CACHE_ENVELOPE_TTL")
	setString(&cfg.Runner.Endpoint, "FLEETGATE_RUNNER_ENDPOINT")
	setDuration(&cfg.Runner.Timeout, "FLEETGATE_RUNNER_TIMEOUT")
	setBool(&cfg.MCP.Enabled, "FLEETGATE_MCP_ENABLED")
	setString(&cfg.MCP.Addr, "FLEETGATE_MCP_ADDR")
	setString(&cfg.MCP.APIKey, "FLEETGATE_MCP_API_KEY")
}

// validate checks that required fields are set.
func validate(cfg *Config) error {
	if cfg.Server.Port == "" {
		return errors.New("server.port is required")
	}
	if cfg.Postgres.DSN == "" {
		return errors.New("postgres.dsn is required")
	}
	if cfg.NATS.URL == "" {
		return errors.New("nats.url is required")
	}
	if cfg.Postgres.MaxConns < 1 {
		return errors.New("postgres.max_conns must be >= 1")
	}
	if cfg.Eval.MaxParallel < 1 {
		return errors.New("eval.max_parallel must be >= 1")
	}
	return nil
}

func setString(dst *string, key string) {
	if v := os.Getenv(key); v != "" {
		*dst = v
	}
}

func setInt(dst *int, key string) {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			*dst = n
		}
	}
}

func setInt32(dst *int32, key string) {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.ParseInt(v, 10, 32); err == nil {
			*dst = int32(n)
		}
	}
}

func setFloat(dst *float64, key string) {
	if v := os.Getenv(key); v != "" {
		if f, err := strconv.ParseFloat(v, 64); err == nil {
			*dst = f
		}
	}
}

func setInt64(dst *int64, key string) {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.ParseInt(v, 10, 64); err == nil {
			*dst = n
		}
	}
}

func setBool(dst *bool, key string) {
	if v := os.Getenv(key); v != "" {
		if b, err := strconv.ParseBool(v); err == nil {
			*dst = b
		}
	}
}

func setDuration(dst *time.Duration, key string) {
	if v := os.Getenv(key); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			*dst = d
		}
	}
}
