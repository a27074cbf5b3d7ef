package config

import "testing"

func TestLoadDefaults(t *testing.T) {
	t.Setenv("PORT", "")
	t.Setenv("SHUTDOWN_GRACE_SECONDS", "")
	t.Setenv("DRY_RUN", "")

	cfg, err := Load()
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if cfg.Port != "8080" {
		t.Fatalf("port=%q, expected 8080", cfg.Port)
	}
	if cfg.ShutdownGraceS != 5 {
		t.Fatalf("shutdown grace=%d, expected 5", cfg.ShutdownGraceS)
	}
	if !cfg.DryRun {
		t.Fatal("dry run not the default")
	}
}

func TestLoadEnvOverrides(t *testing.T) {
	t.Setenv("PORT", "9090")
	t.Setenv("SHUTDOWN_GRACE_SECONDS", "12")
	t.Setenv("DRY_RUN_INITIAL_BALANCE", "2500")

	cfg, err := Load()
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if cfg.Port != "9090" {
		t.Fatalf("port=%q, expected 9090", cfg.Port)
	}
	if cfg.ShutdownGraceS != 12 {
		t.Fatalf("shutdown grace=%d, expected 12", cfg.ShutdownGraceS)
	}
	if cfg.DryRunInitialBalance != 2500 {
		t.Fatalf("balance=%v, expected 2500", cfg.DryRunInitialBalance)
	}
}

func TestLoadIgnoresGarbageInt(t *testing.T) {
	t.Setenv("SHUTDOWN_GRACE_SECONDS", "soon")

	cfg, err := Load()
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if cfg.ShutdownGraceS != 5 {
		t.Fatalf("shutdown grace=%d, expected the default 5", cfg.ShutdownGraceS)
	}
}
