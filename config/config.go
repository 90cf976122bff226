package config

import (
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/joeshaw/envdecode"
)

type Config struct {
	Port        int    `env:"PORT,default=8081"`
	Environment string `env:"APP_ENV,default=development"`
	DataDir     string `env:"WHEEL_DATA_DIR,default=data"`

	// DatabaseURL selects the postgres store; empty keeps pools in DataDir.
	DatabaseURL string `env:"DATABASE_URL"`

	RedisURL     string `env:"REDIS_URL"`
	RedisChannel string `env:"REDIS_CHANNEL,default=prize-wheel.events"`

	// OperatorEndpoint selects the operator wallet; empty uses the
	// in-process ledger under DataDir.
	OperatorEndpoint string   `env:"OPERATOR_ENDPOINT"`
	OperatorSecret   string   `env:"OPERATOR_SECRET"`
	LedgerSeed       []string `env:"LEDGER_SEED"`

	JWTSecret        string `env:"JWT_SECRET"`
	RandomnessSecret string `env:"RANDOMNESS_SECRET"`

	VaultMinReserve uint64  `env:"VAULT_MIN_RESERVE,default=0"`
	RateLimit       float64 `env:"RATE_LIMIT_RPS,default=5"`
	RateBurst       int     `env:"RATE_LIMIT_BURST,default=10"`

	ReconcileSchedule string `env:"RECONCILE_SCHEDULE,default=@every 5m"`
	AuditEvents       bool   `env:"AUDIT_EVENTS,default=true"`

	ShutdownTimeout time.Duration `env:"SHUTDOWN_TIMEOUT,default=10s"`
}

// Load reads the configuration from the environment.
func Load() (*Config, error) {
	var cfg Config
	if err := envdecode.Decode(&cfg); err != nil && !errors.Is(err, envdecode.ErrNoTargetFieldsAreSet) {
		return nil, fmt.Errorf("decode env -> %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func (c *Config) Validate() error {
	if c.Port <= 0 || c.Port > 65535 {
		return fmt.Errorf("config: invalid port %d", c.Port)
	}
	if c.JWTSecret == "" {
		return errors.New("config: JWT_SECRET is required")
	}
	if c.RandomnessSecret == "" {
		return errors.New("config: RANDOMNESS_SECRET is required")
	}
	if c.OperatorEndpoint != "" && c.OperatorSecret == "" {
		return errors.New("config: OPERATOR_SECRET is required with OPERATOR_ENDPOINT")
	}
	if c.RateLimit <= 0 || c.RateBurst <= 0 {
		return errors.New("config: rate limit and burst must be positive")
	}
	if _, err := c.Seed(); err != nil {
		return err
	}
	return nil
}

func (c *Config) Production() bool {
	return c.Environment == "production" || c.Environment == "prod"
}

// Seed parses LedgerSeed entries of the form account=amount.
func (c *Config) Seed() (map[string]uint64, error) {
	out := make(map[string]uint64, len(c.LedgerSeed))
	for _, kv := range c.LedgerSeed {
		kv = strings.TrimSpace(kv)
		if kv == "" {
			continue
		}
		acct, amt, ok := strings.Cut(kv, "=")
		if !ok || acct == "" {
			return nil, fmt.Errorf("config: ledger seed %q is not account=amount", kv)
		}
		v, err := strconv.ParseUint(amt, 10, 64)
		if err != nil {
			return nil, fmt.Errorf("config: ledger seed %q: %w", kv, err)
		}
		out[acct] = v
	}
	return out, nil
}
