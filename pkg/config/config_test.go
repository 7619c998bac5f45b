package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

const minimalYAML = `
environment: test
exchange:
  rest_url: https://api.example.com
  websocket_url: wss://stream.example.com/ws
  symbols: [BTC-USDT]
`

func writeConfig(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.yaml")
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatalf("write config: %v", err)
	}
	return path
}

func TestLoadAppliesDefaults(t *testing.T) {
	cfg, err := Load(writeConfig(t, minimalYAML))
	if err != nil {
		t.Fatalf("load: %v", err)
	}

	if cfg.Server.Port != 8080 {
		t.Fatalf("expected default port, got %d", cfg.Server.Port)
	}
	if cfg.Pipeline.Timeframe != "1m" {
		t.Fatalf("expected default timeframe, got %s", cfg.Pipeline.Timeframe)
	}
	if cfg.Risk.FlipCooldown != 10*time.Minute {
		t.Fatalf("expected default flip cooldown, got %v", cfg.Risk.FlipCooldown)
	}
	if cfg.Ensemble.MinQuorum != 2 {
		t.Fatalf("expected default quorum, got %d", cfg.Ensemble.MinQuorum)
	}
}

func TestLoadRejectsMissingExchange(t *testing.T) {
	if _, err := Load(writeConfig(t, "environment: test\n")); err == nil {
		t.Fatalf("expected validation error")
	}
}

func TestLoadRejectsBadModelKind(t *testing.T) {
	yaml := minimalYAML + `
ensemble:
  models:
    - name: m1
      kind: predict
`
	if _, err := Load(writeConfig(t, yaml)); err == nil {
		t.Fatalf("expected validation error for model kind")
	}
}

func TestLoadWithEnvOverridesSecrets(t *testing.T) {
	t.Setenv("EXCHANGE_API_KEY", "from-env")
	t.Setenv("KAFKA_BROKERS", "k1:9092,k2:9092")

	cfg, err := LoadWithEnv(writeConfig(t, minimalYAML))
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if cfg.Exchange.APIKey != "from-env" {
		t.Fatalf("api key not overridden: %q", cfg.Exchange.APIKey)
	}
	if len(cfg.Kafka.Brokers) != 2 || cfg.Kafka.Brokers[0] != "k1:9092" {
		t.Fatalf("brokers not overridden: %v", cfg.Kafka.Brokers)
	}
}

func TestFusionWeights(t *testing.T) {
	cfg, err := Load(writeConfig(t, minimalYAML))
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	w := cfg.FusionWeights()
	if w["indicator"]+w["model"]+w["advisor"] != 1.0 {
		t.Fatalf("default weights must sum to 1, got %v", w)
	}
}
