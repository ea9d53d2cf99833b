package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

func TestLoadDefaults(t *testing.T) {
	s, err := Load("")
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if s.Risk.BetSizeLimit != 100 {
		t.Fatalf("bet_size_limit = %v, want 100", s.Risk.BetSizeLimit)
	}
	if s.Risk.KellyFraction != 0.25 {
		t.Fatalf("kelly_fraction = %v, want 0.25", s.Risk.KellyFraction)
	}
	if s.Runtime.StageTimeout != 45*time.Second {
		t.Fatalf("stage_timeout = %v, want 45s", s.Runtime.StageTimeout)
	}
	if s.Runtime.MaxConcurrentMarkets != 4 {
		t.Fatalf("max_concurrent_markets = %v, want 4", s.Runtime.MaxConcurrentMarkets)
	}
	if s.Poly.ChainID != 137 {
		t.Fatalf("chain_id = %v, want 137", s.Poly.ChainID)
	}
	if !s.Monitor.Enabled || s.Monitor.Addr != ":8090" {
		t.Fatalf("monitor = %+v", s.Monitor)
	}
}

func TestLoadYAMLOverridesDefaults(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	body := `
risk:
  bet_size_limit: 50
  max_market_exposure: 120
runtime:
  stage_timeout: 10s
  max_concurrent_markets: 8
monitor:
  enabled: false
`
	if err := os.WriteFile(path, []byte(body), 0o600); err != nil {
		t.Fatalf("write config: %v", err)
	}

	s, err := Load(path)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if s.Risk.BetSizeLimit != 50 {
		t.Fatalf("bet_size_limit = %v, want 50", s.Risk.BetSizeLimit)
	}
	if s.Runtime.StageTimeout != 10*time.Second {
		t.Fatalf("stage_timeout = %v, want 10s", s.Runtime.StageTimeout)
	}
	if s.Monitor.Enabled {
		t.Fatal("monitor.enabled must be false")
	}
	// untouched keys keep their defaults
	if s.Risk.MinConfidence != 0.6 {
		t.Fatalf("min_confidence = %v, want default 0.6", s.Risk.MinConfidence)
	}
}

func TestEnvOverridesYAML(t *testing.T) {
	t.Setenv("BET_SIZE_LIMIT", "75")
	t.Setenv("LOG_LEVEL", "debug")
	t.Setenv("OPENAI_MODEL", "gpt-4o")

	s, err := Load("")
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if s.Risk.BetSizeLimit != 75 {
		t.Fatalf("bet_size_limit = %v, want env 75", s.Risk.BetSizeLimit)
	}
	if s.Log.Level != "debug" {
		t.Fatalf("log level = %s, want debug", s.Log.Level)
	}
	if s.Model.Model != "gpt-4o" {
		t.Fatalf("model = %s, want gpt-4o", s.Model.Model)
	}
}

func TestLoadMissingFile(t *testing.T) {
	if _, err := Load(filepath.Join(t.TempDir(), "missing.yaml")); err == nil {
		t.Fatal("missing config file must fail")
	}
}

func TestValidate(t *testing.T) {
	cases := []struct {
		name   string
		mutate func(*Settings)
	}{
		{"zero bet size", func(s *Settings) { s.Risk.BetSizeLimit = 0 }},
		{"market exposure below bet size", func(s *Settings) { s.Risk.MaxMarketExposure = 10 }},
		{"confidence above one", func(s *Settings) { s.Risk.MinConfidence = 1.5 }},
		{"kelly fraction zero", func(s *Settings) { s.Risk.KellyFraction = 0 }},
		{"kelly fraction above one", func(s *Settings) { s.Risk.KellyFraction = 2 }},
		{"no retry attempts", func(s *Settings) { s.Runtime.RetryAttempts = 0 }},
		{"zero stage timeout", func(s *Settings) { s.Runtime.StageTimeout = 0 }},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			s := defaults()
			tc.mutate(s)
			if err := s.Validate(); err == nil {
				t.Fatal("expected validation error")
			}
		})
	}

	if err := defaults().Validate(); err != nil {
		t.Fatalf("defaults must validate: %v", err)
	}
}
