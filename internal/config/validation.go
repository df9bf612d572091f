package config

import (
	"fmt"
	"strings"

	"stacker/internal/scheduler"
)

func validate(cfg *Config) error {
	switch strings.ToLower(strings.TrimSpace(cfg.Broker.Kind)) {
	case "paper":
	case "binance":
		if strings.TrimSpace(cfg.Broker.Binance.APIKey) == "" ||
			strings.TrimSpace(cfg.Broker.Binance.APISecret) == "" {
			return fmt.Errorf("broker.binance requires api_key and api_secret")
		}
	default:
		return fmt.Errorf("unknown broker kind %q", cfg.Broker.Kind)
	}

	intervals := map[string]string{
		"handlers.spawn_interval":     cfg.Handlers.SpawnInterval,
		"handlers.submit_interval":    cfg.Handlers.SubmitInterval,
		"handlers.roll_interval":      cfg.Handlers.RollInterval,
		"handlers.reconcile_interval": cfg.Handlers.ReconcileInterval,
		"handlers.archive_interval":   cfg.Handlers.ArchiveInterval,
	}
	for name, raw := range intervals {
		if _, ok := scheduler.ParseIntervalDuration(raw); !ok {
			return fmt.Errorf("%s: invalid interval %q", name, raw)
		}
	}

	if strings.TrimSpace(cfg.Roll.CalendarPath) == "" {
		return fmt.Errorf("roll.calendar_path is required")
	}
	if strings.TrimSpace(cfg.Store.ArchivePath) == "" {
		return fmt.Errorf("store.archive_path is required")
	}
	if strings.TrimSpace(cfg.Store.EventLogPath) == "" {
		return fmt.Errorf("store.eventlog_path is required")
	}
	return nil
}
