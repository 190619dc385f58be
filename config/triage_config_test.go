package config

import (
	"testing"
	"time"
)

func TestLoadDefaults(t *testing.T) {
	for _, k := range []string{"PORT", "ESCALATION_ANGER_THRESHOLD", "STATE_TTL_HOUR", "KAFKA_BROKERS", "PERSIST_ASYNC", "REDIS_URL", "NODE_ID"} {
		t.Setenv(k, "")
	}

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.Port != "8080" {
		t.Errorf("Port = %q", cfg.Port)
	}
	if cfg.EscalationAngerThreshold != 3 || cfg.SummaryExcerptRunes != 100 {
		t.Errorf("threshold/excerpt = %d/%d", cfg.EscalationAngerThreshold, cfg.SummaryExcerptRunes)
	}
	if cfg.StateTTL() != 72*time.Hour {
		t.Errorf("StateTTL = %v", cfg.StateTTL())
	}
	if len(cfg.KafkaBrokers) != 0 {
		t.Errorf("KafkaBrokers = %v", cfg.KafkaBrokers)
	}
}

func TestLoadOverrides(t *testing.T) {
	t.Setenv("KAFKA_BROKERS", "k1:9092, k2:9092,")
	t.Setenv("LLM_TEMPERATURE", "0.9")
	t.Setenv("STATE_MAX_RETRIES", "not-a-number")

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if len(cfg.KafkaBrokers) != 2 || cfg.KafkaBrokers[1] != "k2:9092" {
		t.Errorf("KafkaBrokers = %v", cfg.KafkaBrokers)
	}
	if cfg.LLMTemperature != 0.9 {
		t.Errorf("LLMTemperature = %v", cfg.LLMTemperature)
	}
	if cfg.StateMaxRetries != 5 {
		t.Errorf("StateMaxRetries = %d, want default", cfg.StateMaxRetries)
	}
}

func TestLoadValidation(t *testing.T) {
	tests := []struct {
		name string
		env  map[string]string
	}{
		{"node id out of range", map[string]string{"NODE_ID": "2048"}},
		{"zero threshold", map[string]string{"ESCALATION_ANGER_THRESHOLD": "0"}},
		{"async without redis", map[string]string{"PERSIST_ASYNC": "true", "REDIS_URL": ""}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			for k, v := range tt.env {
				t.Setenv(k, v)
			}
			if _, err := Load(); err == nil {
				t.Fatal("expected error")
			}
		})
	}
}
