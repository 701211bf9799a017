package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func clearEnv(t *testing.T) {
	t.Helper()
	for _, name := range []string{
		"DISCORD_TOKEN", "WEBHOOK_URL",
		"FLIPT_URL", "FLIPT_NAMESPACE", "FLIPT_FLAG_KEY",
		"MIABRIDGE_GATEWAY_HOST", "MIABRIDGE_GATEWAY_PORT", "MIABRIDGE_LOG_FILE",
	} {
		t.Setenv(name, "")
		os.Unsetenv(name)
	}
}

func TestLoadConfig_Defaults(t *testing.T) {
	clearEnv(t)

	cfg, err := LoadConfig(filepath.Join(t.TempDir(), "nope.json"))
	if err != nil {
		t.Fatalf("LoadConfig: %v", err)
	}

	if cfg.Flipt.URL != "http://localhost:8080" {
		t.Errorf("Flipt.URL = %q", cfg.Flipt.URL)
	}
	if cfg.Flipt.Namespace != "default" || cfg.Flipt.FlagKey != "mia" {
		t.Errorf("Flipt = %+v", cfg.Flipt)
	}
	if cfg.Gateway.Host != "127.0.0.1" || cfg.Gateway.Port != 18791 {
		t.Errorf("Gateway = %+v", cfg.Gateway)
	}
}

func TestLoadConfig_FileAndEnvOverride(t *testing.T) {
	clearEnv(t)

	path := filepath.Join(t.TempDir(), "config.json")
	content := `{
		"discord": {"token": "file-token"},
		"webhook": {"url": "https://file.example/hook"},
		"flipt": {"namespace": "file-ns"}
	}`
	if err := os.WriteFile(path, []byte(content), 0o600); err != nil {
		t.Fatal(err)
	}

	// Environment wins over the file.
	t.Setenv("DISCORD_TOKEN", "env-token")
	t.Setenv("FLIPT_FLAG_KEY", "otherflag")

	cfg, err := LoadConfig(path)
	if err != nil {
		t.Fatalf("LoadConfig: %v", err)
	}

	if cfg.Discord.Token != "env-token" {
		t.Errorf("Discord.Token = %q, want env override", cfg.Discord.Token)
	}
	if cfg.Webhook.URL != "https://file.example/hook" {
		t.Errorf("Webhook.URL = %q, want file value", cfg.Webhook.URL)
	}
	if cfg.Flipt.Namespace != "file-ns" || cfg.Flipt.FlagKey != "otherflag" {
		t.Errorf("Flipt = %+v", cfg.Flipt)
	}
}

func TestLoadConfig_TrimsFliptURL(t *testing.T) {
	clearEnv(t)
	t.Setenv("FLIPT_URL", "http://flipt.internal:8080/")

	cfg, err := LoadConfig(filepath.Join(t.TempDir(), "nope.json"))
	if err != nil {
		t.Fatalf("LoadConfig: %v", err)
	}
	if cfg.Flipt.URL != "http://flipt.internal:8080" {
		t.Errorf("Flipt.URL = %q, want trailing slash trimmed", cfg.Flipt.URL)
	}
}

func TestLoadConfig_BadJSON(t *testing.T) {
	clearEnv(t)

	path := filepath.Join(t.TempDir(), "config.json")
	if err := os.WriteFile(path, []byte("{not json"), 0o600); err != nil {
		t.Fatal(err)
	}
	if _, err := LoadConfig(path); err == nil {
		t.Error("LoadConfig accepted malformed JSON")
	}
}

func TestValidate(t *testing.T) {
	cfg := DefaultConfig()
	cfg.Discord.Token = "tok"
	cfg.Webhook.URL = "https://example.com/hook"
	if err := cfg.Validate(); err != nil {
		t.Errorf("Validate on complete config: %v", err)
	}

	cfg = DefaultConfig()
	err := cfg.Validate()
	if err == nil {
		t.Fatal("Validate accepted empty required fields")
	}
	for _, name := range []string{"DISCORD_TOKEN", "WEBHOOK_URL"} {
		if !strings.Contains(err.Error(), name) {
			t.Errorf("error %q does not name %s", err, name)
		}
	}
}
