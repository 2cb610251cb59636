package config

import (
	"os"
	"testing"
)

func TestHolder_Reload(t *testing.T) {
	path := writeConfig(t, `
client:
  report_per_min: 5
`)

	cfg, err := LoadConfigWithEnvOverrides(path)
	if err != nil {
		t.Fatalf("LoadConfigWithEnvOverrides() failed: %v", err)
	}
	holder := NewHolder(path, cfg)

	if err := os.WriteFile(path, []byte("client:\n  report_per_min: 9\n"), 0644); err != nil {
		t.Fatalf("failed to rewrite config: %v", err)
	}

	previous, next, err := holder.Reload()
	if err != nil {
		t.Fatalf("Reload() failed: %v", err)
	}
	if previous.Client.ReportPerMin != 5 {
		t.Errorf("expected previous limit 5, got %d", previous.Client.ReportPerMin)
	}
	if next.Client.ReportPerMin != 9 || holder.Get().Client.ReportPerMin != 9 {
		t.Errorf("expected new limit 9, got %d", holder.Get().Client.ReportPerMin)
	}
}

func TestHolder_ReloadFailureKeepsCurrent(t *testing.T) {
	path := writeConfig(t, "client:\n  report_per_min: 5\n")
	cfg, err := LoadConfig(path)
	if err != nil {
		t.Fatalf("LoadConfig() failed: %v", err)
	}
	holder := NewHolder(path, cfg)

	if err := os.WriteFile(path, []byte("client:\n  report_per_min: -1\n"), 0644); err != nil {
		t.Fatalf("failed to rewrite config: %v", err)
	}

	if _, _, err := holder.Reload(); err == nil {
		t.Fatal("expected reload error")
	}
	if holder.Get() != cfg {
		t.Error("expected current config to stay in place")
	}
}
