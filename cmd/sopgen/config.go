package main

import (
	"encoding/json"
	"os"
	"path/filepath"
	"strconv"
)

// Config holds all sopgen server configuration.
// Priority: env vars > settings.json > defaults.
type Config struct {
	ListenAddr        string `json:"listen_addr"`
	DBPath            string `json:"db_path"`
	LogLevel          string `json:"log_level"`
	SessionTTLMinutes int    `json:"session_ttl_minutes"`
	SweepCron         string `json:"sweep_cron"`
	VacuumCron        string `json:"vacuum_cron"`
}

func defaultConfig() Config {
	return Config{
		ListenAddr:        ":4200",
		DBPath:            filepath.Join(sopgenDir(), "sopgen.db"),
		LogLevel:          "info",
		SessionTTLMinutes: 30,
		SweepCron:         "*/10 * * * *",
		VacuumCron:        "0 3 * * *",
	}
}

func sopgenDir() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return ".sopgen"
	}
	return filepath.Join(home, ".sopgen")
}

func settingsPath() string {
	return filepath.Join(sopgenDir(), "settings.json")
}

func loadConfig() Config {
	cfg := defaultConfig()

	// Layer 2: settings.json (ignore if missing).
	if data, err := os.ReadFile(settingsPath()); err == nil {
		_ = json.Unmarshal(data, &cfg)
	}

	// Layer 3: env vars override.
	if v := os.Getenv("SOPGEN_LISTEN_ADDR"); v != "" {
		cfg.ListenAddr = v
	}
	if v := os.Getenv("SOPGEN_DB_PATH"); v != "" {
		cfg.DBPath = v
	}
	if v := os.Getenv("SOPGEN_LOG_LEVEL"); v != "" {
		cfg.LogLevel = v
	}
	if v := os.Getenv("SOPGEN_SESSION_TTL_MINUTES"); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n > 0 {
			cfg.SessionTTLMinutes = n
		}
	}
	if v := os.Getenv("SOPGEN_SWEEP_CRON"); v != "" {
		cfg.SweepCron = v
	}
	if v := os.Getenv("SOPGEN_VACUUM_CRON"); v != "" {
		cfg.VacuumCron = v
	}

	return cfg
}
