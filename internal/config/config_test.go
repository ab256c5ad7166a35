package config

import (
	"strings"
	"testing"
	"time"
)

func TestDefaultTemplateIsValid(t *testing.T) {
	cfg, err := FromYAML([]byte(GenerateDefault()))
	if err != nil {
		t.Fatalf("default template invalid: %v", err)
	}
	if cfg.Server.Addr != ":8085" || cfg.Server.BasePath != "/v0" {
		t.Fatalf("server defaults = %+v", cfg.Server)
	}
	if cfg.OuterDeadline() <= cfg.AdapterTimeout() {
		t.Fatalf("outer deadline must exceed adapter timeout")
	}
}

func TestValidateRejectsMissingSecrets(t *testing.T) {
	cases := []struct {
		yaml string
		want string
	}{
		{"auth:\n  jwt_secret: s\n", "encryption_key"},
		{"secrets:\n  encryption_key: k\n", "jwt_secret"},
		{
			"auth:\n  jwt_secret: s\nsecrets:\n  encryption_key: k\naggregation:\n  adapter_timeout_seconds: 20\n  outer_deadline_seconds: 10\n",
			"outer_deadline_seconds",
		},
	}
	for i, tc := range cases {
		_, err := FromYAML([]byte(tc.yaml))
		if err == nil || !strings.Contains(err.Error(), tc.want) {
			t.Errorf("case %d: err = %v, want mention of %s", i, err, tc.want)
		}
	}
}

func TestZeroValuesFallBackToDefaults(t *testing.T) {
	cfg, err := FromYAML([]byte("auth:\n  jwt_secret: s\nsecrets:\n  encryption_key: k\n"))
	if err != nil {
		t.Fatalf("minimal config rejected: %v", err)
	}
	if cfg.AdapterTimeout() != 10*time.Second {
		t.Fatalf("adapter timeout = %v", cfg.AdapterTimeout())
	}
	if cfg.OuterDeadline() != 15*time.Second {
		t.Fatalf("outer deadline = %v", cfg.OuterDeadline())
	}
	if cfg.MaxItems() != 50 {
		t.Fatalf("max items = %d", cfg.MaxItems())
	}
	if cfg.TokenTTL() != 12*time.Hour {
		t.Fatalf("token ttl = %v", cfg.TokenTTL())
	}
}
