package core

import (
	"fmt"
	"strings"
	"time"
)

type RetryConfig struct {
	MaxAttempts    int           `koanf:"max_attempts" mapstructure:"max_attempts"`
	InitialBackoff time.Duration `koanf:"initial_backoff" mapstructure:"initial_backoff"`
	MaxBackoff     time.Duration `koanf:"max_backoff" mapstructure:"max_backoff"`
	Jitter         float64       `koanf:"jitter" mapstructure:"jitter"`
}

type LedgerConfig struct {
	ClaimLease  time.Duration `koanf:"claim_lease" mapstructure:"claim_lease"`
	DedupWindow time.Duration `koanf:"dedup_window" mapstructure:"dedup_window"`
}

type GateConfig struct {
	LockTTL     time.Duration `koanf:"lock_ttl" mapstructure:"lock_ttl"`
	AcquireWait time.Duration `koanf:"acquire_wait" mapstructure:"acquire_wait"`
}

type ErpConfig struct {
	Endpoint string        `koanf:"endpoint" mapstructure:"endpoint"`
	Database string        `koanf:"database" mapstructure:"database"`
	Username string        `koanf:"username" mapstructure:"username"`
	APIKey   string        `koanf:"api_key" mapstructure:"api_key"`
	Timeout  time.Duration `koanf:"timeout" mapstructure:"timeout"`
}

type Config struct {
	ServiceName string       `koanf:"service_name" mapstructure:"service_name"`
	Retry       RetryConfig  `koanf:"retry" mapstructure:"retry"`
	Ledger      LedgerConfig `koanf:"ledger" mapstructure:"ledger"`
	Gate        GateConfig   `koanf:"gate" mapstructure:"gate"`
	Erp         ErpConfig    `koanf:"erp" mapstructure:"erp"`
}

func DefaultConfig() Config {
	return Config{
		ServiceName: "ordersync",
		Retry: RetryConfig{
			MaxAttempts:    5,
			InitialBackoff: 500 * time.Millisecond,
			MaxBackoff:     2 * time.Minute,
			Jitter:         0.2,
		},
		Ledger: LedgerConfig{
			ClaimLease:  30 * time.Second,
			DedupWindow: 24 * time.Hour,
		},
		Gate: GateConfig{
			LockTTL:     15 * time.Second,
			AcquireWait: 5 * time.Second,
		},
		Erp: ErpConfig{
			Timeout: 10 * time.Second,
		},
	}
}

func (c Config) Validate() error {
	if strings.TrimSpace(c.ServiceName) == "" {
		return fmt.Errorf("core: service_name is required")
	}
	if c.Retry.MaxAttempts < 1 {
		return fmt.Errorf("core: retry.max_attempts must be at least 1")
	}
	if c.Retry.InitialBackoff <= 0 {
		return fmt.Errorf("core: retry.initial_backoff must be positive")
	}
	if c.Retry.MaxBackoff < c.Retry.InitialBackoff {
		return fmt.Errorf("core: retry.max_backoff must be >= retry.initial_backoff")
	}
	if c.Retry.Jitter < 0 || c.Retry.Jitter > 1 {
		return fmt.Errorf("core: retry.jitter must be within [0, 1]")
	}
	if c.Ledger.ClaimLease <= 0 {
		return fmt.Errorf("core: ledger.claim_lease must be positive")
	}
	if c.Ledger.DedupWindow <= 0 {
		return fmt.Errorf("core: ledger.dedup_window must be positive")
	}
	if c.Gate.LockTTL <= 0 {
		return fmt.Errorf("core: gate.lock_ttl must be positive")
	}
	if c.Gate.AcquireWait < 0 {
		return fmt.Errorf("core: gate.acquire_wait must not be negative")
	}
	return nil
}
