package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

func TestDefaultIsValid(t *testing.T) {
	cfg := Default()
	if err := cfg.Validate(); err != nil {
		t.Fatalf("default config invalid: %v", err)
	}
	if cfg.Service.BasePath != "/v0" || cfg.Solver.CacheSize != 512 {
		t.Fatalf("unexpected defaults %+v", cfg)
	}
	if cfg.RefreshInterval() != 2*time.Second {
		t.Fatalf("expected 2s refresh, got %v", cfg.RefreshInterval())
	}
}

func TestFromYAMLKeepsDefaultsForMissingSections(t *testing.T) {
	cfg, err := FromYAML([]byte("service:\n  id: bde-fdc\nrefresh:\n  interval_seconds: 5\n"))
	if err != nil {
		t.Fatal(err)
	}
	if cfg.Service.ID != "bde-fdc" || cfg.RefreshInterval() != 5*time.Second {
		t.Fatalf("overrides not applied: %+v", cfg)
	}
	if cfg.Auth.JWTSecretEnv != "FDC_JWT_SECRET" || cfg.Log.Level != "info" {
		t.Fatalf("defaults lost: %+v", cfg)
	}
}

func TestValidateRejects(t *testing.T) {
	cases := map[string]string{
		"level":   "service: {id: x}\nlog: {level: loud}\n",
		"remote":  "service: {id: x}\nremote: {base_url: not-a-url}\n",
		"webhook": "service: {id: x}\nrelay:\n  webhooks:\n    - {id: a, url: ftp://x, events: [mission.status]}\n",
		"events":  "service: {id: x}\nrelay:\n  webhooks:\n    - {id: a, url: http://x}\n",
		"base":    "service: {id: x, base_path: v0}\n",
	}
	for name, doc := range cases {
		if _, err := FromYAML([]byte(doc)); err == nil {
			t.Fatalf("%s: expected validation error", name)
		}
	}
}

func TestLoadOptional(t *testing.T) {
	dir := t.TempDir()
	cfg, err := LoadOptional(dir)
	if err != nil || cfg.Service.ID != "fdc" {
		t.Fatalf("expected defaults without a file: %v", err)
	}
	if _, err := Load(dir); err == nil || !strings.Contains(err.Error(), "fdc config init") {
		t.Fatalf("expected hint in missing config error, got %v", err)
	}
	if err := os.WriteFile(filepath.Join(dir, "fdc.yml"), []byte(GenerateDefault("north")), 0o644); err != nil {
		t.Fatal(err)
	}
	cfg, err = Load(dir)
	if err != nil || cfg.Service.ID != "north" {
		t.Fatalf("load: %v", err)
	}
}
