package infra

import (
	"testing"
	"time"
)

func TestLoadConfigDefaults(t *testing.T) {
	t.Setenv("DATABASE_URL", "postgres://example")
	t.Setenv("WEBUI_URL", "http://localhost:7860")
	t.Setenv("PORT", "")
	t.Setenv("AMQP_QUEUE", "")
	t.Setenv("WEBUI_TIMEOUT_SECONDS", "")

	cfg, err := LoadConfig()
	if err != nil {
		t.Fatalf("LoadConfig returned error: %v", err)
	}
	if cfg.Port != "9001" {
		t.Fatalf("Port mismatch: got %q want %q", cfg.Port, "9001")
	}
	if cfg.QueueName != "ai-profile" {
		t.Fatalf("QueueName mismatch: got %q", cfg.QueueName)
	}
	if cfg.WebUITimeout != 240*time.Second {
		t.Fatalf("WebUITimeout mismatch: got %v", cfg.WebUITimeout)
	}
}

func TestLoadConfigRequiresDatabaseURL(t *testing.T) {
	t.Setenv("DATABASE_URL", "")
	t.Setenv("WEBUI_URL", "http://localhost:7860")

	if _, err := LoadConfig(); err == nil {
		t.Fatalf("expected error when DATABASE_URL missing")
	}
}

func TestLoadConfigRequiresWebUIURL(t *testing.T) {
	t.Setenv("DATABASE_URL", "postgres://example")
	t.Setenv("WEBUI_URL", "")

	if _, err := LoadConfig(); err == nil {
		t.Fatalf("expected error when WEBUI_URL missing")
	}
}

func TestLoadConfigHonorsTimeoutOverride(t *testing.T) {
	t.Setenv("DATABASE_URL", "postgres://example")
	t.Setenv("WEBUI_URL", "http://localhost:7860")
	t.Setenv("WEBUI_TIMEOUT_SECONDS", "30")

	cfg, err := LoadConfig()
	if err != nil {
		t.Fatalf("LoadConfig returned error: %v", err)
	}
	if cfg.WebUITimeout != 30*time.Second {
		t.Fatalf("WebUITimeout mismatch: got %v", cfg.WebUITimeout)
	}
}
