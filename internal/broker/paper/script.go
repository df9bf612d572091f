package paper

import (
	"fmt"
	"os"
	"time"

	"github.com/tidwall/gjson"
)

// LoadScript reads a fill script into a Config. The file is JSON:
//
//	{
//	  "fill_delay_ms": 50,
//	  "fill_fractions": [0.5, 1.0],
//	  "reject_every": 0,
//	  "echo_duplicates": true,
//	  "unknown_instruments": ["GOLD"]
//	}
//
// Unset keys keep their zero defaults. Values arriving as strings
// (hand-edited files) are coerced the way gjson reads them.
func LoadScript(path string) (Config, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return Config{}, fmt.Errorf("read paper script failed: %w", err)
	}
	if !gjson.ValidBytes(raw) {
		return Config{}, fmt.Errorf("paper script %s is not valid JSON", path)
	}
	doc := gjson.ParseBytes(raw)

	var cfg Config
	if v := doc.Get("fill_delay_ms"); v.Exists() {
		cfg.FillDelay = time.Duration(v.Int()) * time.Millisecond
	}
	if v := doc.Get("reject_every"); v.Exists() {
		cfg.RejectEvery = int(v.Int())
	}
	if v := doc.Get("echo_duplicates"); v.Exists() {
		cfg.EchoDuplicates = v.Bool()
	}
	for _, fr := range doc.Get("fill_fractions").Array() {
		cfg.FillFractions = append(cfg.FillFractions, fr.Float())
	}
	for _, code := range doc.Get("unknown_instruments").Array() {
		cfg.UnknownInstruments = append(cfg.UnknownInstruments, code.String())
	}
	return cfg, nil
}
