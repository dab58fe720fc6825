package config

import (
	"testing"
	"time"
)

func TestLoadDefaults(t *testing.T) {
	tests := []struct {
		name   string
		check  func(*Config) bool
		expect string
	}{
		{
			name:   "default mode is api",
			check:  func(c *Config) bool { return c.Mode == "api" },
			expect: "api",
		},
		{
			name:   "default port is 8080",
			check:  func(c *Config) bool { return c.Port == 8080 },
			expect: "8080",
		},
		{
			name:   "default log format is json",
			check:  func(c *Config) bool { return c.LogFormat == "json" },
			expect: "json",
		},
		{
			name:   "listen addr format",
			check:  func(c *Config) bool { return c.ListenAddr() == "0.0.0.0:8080" },
			expect: "0.0.0.0:8080",
		},
		{
			name:   "default ai model",
			check:  func(c *Config) bool { return c.OpenAIModel == "gpt-4o-mini" },
			expect: "gpt-4o-mini",
		},
		{
			name:   "default ai max turns",
			check:  func(c *Config) bool { return c.AIMaxTurns == 8 },
			expect: "8",
		},
		{
			name:   "default dispatch attempts",
			check:  func(c *Config) bool { return c.DispatchMaxAttempts == 3 },
			expect: "3",
		},
		{
			name: "default dispatch backoff",
			check: func(c *Config) bool {
				want := []time.Duration{time.Minute, 5 * time.Minute, 15 * time.Minute}
				if len(c.DispatchBackoff) != len(want) {
					return false
				}
				for i := range want {
					if c.DispatchBackoff[i] != want[i] {
						return false
					}
				}
				return true
			},
			expect: "[1m0s 5m0s 15m0s]",
		},
		{
			name:   "default urgency thresholds",
			check:  func(c *Config) bool { return c.UrgencyUrgentAt == 5 && c.UrgencyCriticalAt == 8 },
			expect: "urgent at 5, critical at 8",
		},
		{
			name:   "default rules ttl is one hour",
			check:  func(c *Config) bool { return c.UrgencyRulesTTL == time.Hour },
			expect: "1h",
		},
		{
			name:   "tasks run inline by default",
			check:  func(c *Config) bool { return c.TasksInline },
			expect: "true",
		},
	}

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load() error: %v", err)
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if !tt.check(cfg) {
				t.Errorf("expected %s", tt.expect)
			}
		})
	}
}

func TestLoadRejectsInvertedThresholds(t *testing.T) {
	t.Setenv("URGENCY_URGENT_AT", "9")
	t.Setenv("URGENCY_CRITICAL_AT", "8")

	if _, err := Load(); err == nil {
		t.Fatal("expected error when urgent threshold exceeds critical threshold")
	}
}

func TestLoadOverrides(t *testing.T) {
	t.Setenv("DISPATCH_BACKOFF", "5s,10s")
	t.Setenv("AI_MAX_TURNS", "3")

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load() error: %v", err)
	}
	if len(cfg.DispatchBackoff) != 2 || cfg.DispatchBackoff[1] != 10*time.Second {
		t.Errorf("DispatchBackoff = %v, want [5s 10s]", cfg.DispatchBackoff)
	}
	if cfg.AIMaxTurns != 3 {
		t.Errorf("AIMaxTurns = %d, want 3", cfg.AIMaxTurns)
	}
}
