package config

import "strings"

func (c *Config) applyDefaults() {
	if strings.TrimSpace(c.App.Env) == "" {
		c.App.Env = "dev"
	}
	if strings.TrimSpace(c.App.LogLevel) == "" {
		c.App.LogLevel = "info"
	}
	if strings.TrimSpace(c.App.HTTPAddr) == "" {
		c.App.HTTPAddr = ":9981"
	}
	if strings.TrimSpace(c.Broker.Kind) == "" {
		c.Broker.Kind = "paper"
	}
	if c.Broker.TimeoutSeconds <= 0 {
		c.Broker.TimeoutSeconds = 5
	}
	if c.Broker.Binance.FillPollSeconds <= 0 {
		c.Broker.Binance.FillPollSeconds = 2
	}
	if strings.TrimSpace(c.Handlers.SpawnInterval) == "" {
		c.Handlers.SpawnInterval = "5s"
	}
	if strings.TrimSpace(c.Handlers.SubmitInterval) == "" {
		c.Handlers.SubmitInterval = "5s"
	}
	if strings.TrimSpace(c.Handlers.RollInterval) == "" {
		c.Handlers.RollInterval = "1m"
	}
	if strings.TrimSpace(c.Handlers.ReconcileInterval) == "" {
		c.Handlers.ReconcileInterval = "30s"
	}
	if strings.TrimSpace(c.Handlers.ArchiveInterval) == "" {
		c.Handlers.ArchiveInterval = "1m"
	}
}
