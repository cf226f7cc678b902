package core

import (
	"testing"
	"time"
)

func TestDefaultConfigIsValid(t *testing.T) {
	if err := DefaultConfig().Validate(); err != nil {
		t.Fatalf("default config must validate: %v", err)
	}
}

func TestConfigValidate(t *testing.T) {
	base := DefaultConfig()

	noName := base
	noName.ServiceName = " "
	if err := noName.Validate(); err == nil {
		t.Fatal("expected service_name error")
	}

	zeroAttempts := base
	zeroAttempts.Retry.MaxAttempts = 0
	if err := zeroAttempts.Validate(); err == nil {
		t.Fatal("expected max_attempts error")
	}

	inverted := base
	inverted.Retry.MaxBackoff = time.Millisecond
	if err := inverted.Validate(); err == nil {
		t.Fatal("expected max_backoff error")
	}

	badJitter := base
	badJitter.Retry.Jitter = 1.5
	if err := badJitter.Validate(); err == nil {
		t.Fatal("expected jitter error")
	}

	zeroLease := base
	zeroLease.Ledger.ClaimLease = 0
	if err := zeroLease.Validate(); err == nil {
		t.Fatal("expected claim_lease error")
	}

	zeroTTL := base
	zeroTTL.Gate.LockTTL = 0
	if err := zeroTTL.Validate(); err == nil {
		t.Fatal("expected lock_ttl error")
	}
}
