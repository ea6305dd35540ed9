package config

import (
	"testing"
	"time"
)

func TestLoad_Defaults(t *testing.T) {
	cfg := Load()

	if cfg.Port != "8080" {
		t.Errorf("Port: got %q, want 8080", cfg.Port)
	}
	if cfg.PendingAuthTTL != 30*time.Minute {
		t.Errorf("PendingAuthTTL: got %v, want 30m", cfg.PendingAuthTTL)
	}
	if cfg.EscalationThreshold != 120*time.Second {
		t.Errorf("EscalationThreshold: got %v, want 120s", cfg.EscalationThreshold)
	}
	if cfg.FuzzyThreshold != 0.6 {
		t.Errorf("FuzzyThreshold: got %v, want 0.6", cfg.FuzzyThreshold)
	}
	if cfg.OpenGateRetries != 2 {
		t.Errorf("OpenGateRetries: got %d, want 2", cfg.OpenGateRetries)
	}
}

func TestLoad_TimersAreIndependent(t *testing.T) {
	t.Setenv("PENDING_AUTH_TTL", "45m")
	t.Setenv("ESCALATION_THRESHOLD", "90s")

	cfg := Load()
	if cfg.PendingAuthTTL != 45*time.Minute {
		t.Errorf("PendingAuthTTL: got %v, want 45m", cfg.PendingAuthTTL)
	}
	if cfg.EscalationThreshold != 90*time.Second {
		t.Errorf("EscalationThreshold: got %v, want 90s", cfg.EscalationThreshold)
	}
}

func TestLoad_Overrides(t *testing.T) {
	t.Setenv("PORT", "9090")
	t.Setenv("FUZZY_THRESHOLD", "0.75")
	t.Setenv("REDIS_TLS", "true")
	t.Setenv("TOOL_CALL_TIMEOUT", "3s")

	cfg := Load()
	if cfg.Port != "9090" {
		t.Errorf("Port: got %q, want 9090", cfg.Port)
	}
	if cfg.FuzzyThreshold != 0.75 {
		t.Errorf("FuzzyThreshold: got %v, want 0.75", cfg.FuzzyThreshold)
	}
	if !cfg.RedisTLS {
		t.Error("RedisTLS: expected true")
	}
	if cfg.ToolCallTimeout != 3*time.Second {
		t.Errorf("ToolCallTimeout: got %v, want 3s", cfg.ToolCallTimeout)
	}
}

func TestLoad_BadValuesFallBack(t *testing.T) {
	t.Setenv("PENDING_AUTH_TTL", "not-a-duration")
	t.Setenv("FUZZY_THRESHOLD", "nope")

	cfg := Load()
	if cfg.PendingAuthTTL != 30*time.Minute {
		t.Errorf("PendingAuthTTL: got %v, want default 30m", cfg.PendingAuthTTL)
	}
	if cfg.FuzzyThreshold != 0.6 {
		t.Errorf("FuzzyThreshold: got %v, want default 0.6", cfg.FuzzyThreshold)
	}
}
