package config

import (
	"testing"
	"time"
)

func TestLoad_RequiresRedisURL(t *testing.T) {
	t.Setenv("REDIS_URL", "")
	if _, err := Load(); err == nil {
		t.Fatalf("missing REDIS_URL should fail")
	}
}

func TestLoad_Defaults(t *testing.T) {
	t.Setenv("REDIS_URL", "redis://localhost:6379/0")
	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.ListenAddr != ":8080" || cfg.APIListenAddr != ":8081" {
		t.Fatalf("unexpected listen defaults: %s %s", cfg.ListenAddr, cfg.APIListenAddr)
	}
	if cfg.HomeRoomID != "home" || cfg.StartCountdown != 3*time.Second || cfg.MaxPlayersPerRoom != 8 {
		t.Fatalf("unexpected defaults: %+v", cfg)
	}
}

func TestLoad_Overrides(t *testing.T) {
	t.Setenv("REDIS_URL", "redis://localhost:6379/0")
	t.Setenv("START_COUNTDOWN", "5s")
	t.Setenv("RECONCILE_INTERVAL", "120") // bare seconds
	t.Setenv("MAX_PLAYERS_PER_ROOM", "12")
	t.Setenv("HOME_ROOM_ID", "lobby")

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.StartCountdown != 5*time.Second {
		t.Fatalf("START_COUNTDOWN: %v", cfg.StartCountdown)
	}
	if cfg.ReconcileInterval != 2*time.Minute {
		t.Fatalf("bare-seconds RECONCILE_INTERVAL: %v", cfg.ReconcileInterval)
	}
	if cfg.MaxPlayersPerRoom != 12 || cfg.HomeRoomID != "lobby" {
		t.Fatalf("overrides not applied: %+v", cfg)
	}
}

func TestLoad_RejectsBadValues(t *testing.T) {
	t.Setenv("REDIS_URL", "redis://localhost:6379/0")
	t.Setenv("MAX_PLAYERS_PER_ROOM", "1") // below the minimum
	t.Setenv("GAME_TTL", "soon")

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.MaxPlayersPerRoom != 8 {
		t.Fatalf("sub-minimum player cap should keep the default, got %d", cfg.MaxPlayersPerRoom)
	}
	if cfg.GameTTL != 24*time.Hour {
		t.Fatalf("unparseable duration should keep the default, got %v", cfg.GameTTL)
	}
}
