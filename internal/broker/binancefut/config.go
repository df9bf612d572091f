package binancefut

import "time"

type Config struct {
	APIKey    string
	APISecret string
	// RESTBaseURL overrides the venue endpoint (testnet, mirrors).
	RESTBaseURL string

	ProxyEnabled bool
	RESTProxyURL string

	HTTPTimeout time.Duration

	// FillPoll is the cadence of the order-status poll that synthesizes
	// fill notifications.
	FillPoll time.Duration
}

func (c Config) withDefaults() Config {
	if c.HTTPTimeout <= 0 {
		c.HTTPTimeout = 10 * time.Second
	}
	if c.FillPoll <= 0 {
		c.FillPoll = 2 * time.Second
	}
	return c
}
