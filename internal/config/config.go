package config

import (
	"errors"
	"os"
	"strconv"
	"strings"
	"time"
)

type AppConfig struct {
	ListenAddr    string // websocket server
	APIListenAddr string // fasthttp request/response surface

	RedisURL    string
	DatabaseURL string // optional; puzzle result persistence disabled when empty

	HomeRoomID string

	RoomTTL           time.Duration
	GameTTL           time.Duration
	StartCountdown    time.Duration
	ReconcileInterval time.Duration
	ProbeTimeout      time.Duration

	MaxPlayersPerRoom int
}

func Load() (*AppConfig, error) {
	cfg := &AppConfig{
		ListenAddr:        ":8080",
		APIListenAddr:     ":8081",
		HomeRoomID:        "home",
		RoomTTL:           24 * time.Hour,
		GameTTL:           24 * time.Hour,
		StartCountdown:    3 * time.Second,
		ReconcileInterval: 5 * time.Minute,
		ProbeTimeout:      3 * time.Second,
		MaxPlayersPerRoom: 8,
	}

	if v := strings.TrimSpace(os.Getenv("LISTEN_ADDR")); v != "" {
		cfg.ListenAddr = v
	}
	if v := strings.TrimSpace(os.Getenv("API_LISTEN_ADDR")); v != "" {
		cfg.APIListenAddr = v
	}
	cfg.RedisURL = strings.TrimSpace(os.Getenv("REDIS_URL"))
	cfg.DatabaseURL = strings.TrimSpace(os.Getenv("DATABASE_URL"))
	if v := strings.TrimSpace(os.Getenv("HOME_ROOM_ID")); v != "" {
		cfg.HomeRoomID = v
	}

	if d, ok := envDuration("ROOM_TTL"); ok {
		cfg.RoomTTL = d
	}
	if d, ok := envDuration("GAME_TTL"); ok {
		cfg.GameTTL = d
	}
	if d, ok := envDuration("START_COUNTDOWN"); ok {
		cfg.StartCountdown = d
	}
	if d, ok := envDuration("RECONCILE_INTERVAL"); ok {
		cfg.ReconcileInterval = d
	}
	if d, ok := envDuration("PROBE_TIMEOUT"); ok {
		cfg.ProbeTimeout = d
	}
	if v := strings.TrimSpace(os.Getenv("MAX_PLAYERS_PER_ROOM")); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n >= 2 {
			cfg.MaxPlayersPerRoom = n
		}
	}

	if cfg.RedisURL == "" {
		return nil, errors.New("REDIS_URL is required")
	}
	return cfg, nil
}

// envDuration accepts Go duration strings ("90s", "5m") or bare seconds.
func envDuration(key string) (time.Duration, bool) {
	v := strings.TrimSpace(os.Getenv(key))
	if v == "" {
		return 0, false
	}
	if d, err := time.ParseDuration(v); err == nil && d > 0 {
		return d, true
	}
	if n, err := strconv.Atoi(v); err == nil && n > 0 {
		return time.Duration(n) * time.Second, true
	}
	return 0, false
}
