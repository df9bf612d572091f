// Package rollcal answers roll-parameter lookups from a watched calendar
// file. Handlers read immutable snapshots, so a hot reload never races a
// handler pass.
package rollcal

import (
	"bytes"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"stacker/internal/logger"
	"stacker/internal/orders"

	"github.com/fsnotify/fsnotify"
	"github.com/santhosh-tekuri/jsonschema/v5"
	"github.com/spf13/viper"
	"gopkg.in/yaml.v3"
)

// Entry is one instrument's calendar row as written in the file.
type Entry struct {
	Class         string  `yaml:"class"`
	PriceContract string  `yaml:"price_contract"`
	CarryContract string  `yaml:"carry_contract"`
	RollWindow    bool    `yaml:"roll_window"`
	SizeFactor    float64 `yaml:"size_factor"`
	Account       string  `yaml:"account"`
}

// FileConfig maps the calendar file root.
type FileConfig struct {
	Instruments map[string]Entry `yaml:"instruments"`
}

// Snapshot is the published calendar state.
type Snapshot struct {
	Version     int64
	LoadedAt    time.Time
	Instruments map[string]orders.RollParameters
}

// ChangeListener fires after a successful reload.
type ChangeListener func(Snapshot)

// Provider is what the handlers consume. Parameters reports
// orders.ErrMissingData for unconfigured instruments.
type Provider interface {
	Parameters(instrument string) (orders.RollParameters, error)
	Instruments() []string
}

// Registry loads the calendar file, validates every entry against the
// compiled entry schema, and watches the file for updates.
type Registry struct {
	path string
	v    *viper.Viper

	mu        sync.RWMutex
	snapshot  Snapshot
	listeners []ChangeListener
}

const entrySchemaJSON = `{
	"type": "object",
	"required": ["price_contract"],
	"properties": {
		"class": {"enum": ["future", "fsb", ""]},
		"price_contract": {"type": "string", "pattern": "^[0-9]{6}$"},
		"carry_contract": {"type": "string", "pattern": "^([0-9]{6})?$"},
		"roll_window": {"type": "boolean"},
		"size_factor": {"type": "number", "exclusiveMinimum": 0, "maximum": 1},
		"account": {"type": "string"}
	}
}`

var entrySchema = jsonschema.MustCompileString("rollcal-entry.json", entrySchemaJSON)

func NewRegistry(path string) (*Registry, error) {
	if strings.TrimSpace(path) == "" {
		return nil, fmt.Errorf("roll calendar registry requires path")
	}
	v := viper.New()
	v.SetConfigFile(path)
	if err := v.ReadInConfig(); err != nil {
		return nil, fmt.Errorf("read roll calendar failed: %w", err)
	}
	r := &Registry{path: path, v: v}
	if err := r.reload(); err != nil {
		return nil, err
	}
	v.OnConfigChange(func(evt fsnotify.Event) {
		if err := r.reload(); err != nil {
			logger.Errorf("roll calendar reload failed: %v", err)
			return
		}
		r.notifyListeners()
	})
	v.WatchConfig()
	return r, nil
}

// OnChange registers a reload listener.
func (r *Registry) OnChange(fn ChangeListener) {
	if fn == nil {
		return
	}
	r.mu.Lock()
	r.listeners = append(r.listeners, fn)
	r.mu.Unlock()
}

// Snapshot returns the current calendar state.
func (r *Registry) Snapshot() Snapshot {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return cloneSnapshot(r.snapshot)
}

// Parameters implements Provider.
func (r *Registry) Parameters(instrument string) (orders.RollParameters, error) {
	code := strings.ToUpper(strings.TrimSpace(instrument))
	r.mu.RLock()
	defer r.mu.RUnlock()
	params, ok := r.snapshot.Instruments[code]
	if !ok {
		return orders.RollParameters{}, fmt.Errorf("roll parameters for %s: %w", code, orders.ErrMissingData)
	}
	return params, nil
}

// Instruments lists configured instrument codes.
func (r *Registry) Instruments() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]string, 0, len(r.snapshot.Instruments))
	for code := range r.snapshot.Instruments {
		out = append(out, code)
	}
	return out
}

func (r *Registry) reload() error {
	cfg, err := readCalendarFile(r.path)
	if err != nil {
		return err
	}
	instruments := make(map[string]orders.RollParameters, len(cfg.Instruments))
	for name, entry := range cfg.Instruments {
		code := strings.ToUpper(strings.TrimSpace(name))
		if code == "" {
			continue
		}
		if err := validateEntry(entry); err != nil {
			return fmt.Errorf("roll calendar entry %s invalid: %w", code, err)
		}
		instruments[code] = entryToParameters(entry)
	}
	r.mu.Lock()
	r.snapshot = Snapshot{
		Version:     r.snapshot.Version + 1,
		LoadedAt:    time.Now(),
		Instruments: instruments,
	}
	r.mu.Unlock()
	logger.Infof("roll calendar loaded %d instruments from %s", len(instruments), filepath.Base(r.path))
	return nil
}

func (r *Registry) notifyListeners() {
	r.mu.RLock()
	snap := cloneSnapshot(r.snapshot)
	listeners := append([]ChangeListener(nil), r.listeners...)
	r.mu.RUnlock()
	for _, fn := range listeners {
		go func(cb ChangeListener) {
			defer func() {
				if rec := recover(); rec != nil {
					logger.Errorf("roll calendar listener panic: %v", rec)
				}
			}()
			cb(snap)
		}(fn)
	}
}

func validateEntry(e Entry) error {
	doc := map[string]any{
		"class":          e.Class,
		"price_contract": e.PriceContract,
		"carry_contract": e.CarryContract,
		"roll_window":    e.RollWindow,
		"account":        e.Account,
	}
	if e.SizeFactor != 0 {
		doc["size_factor"] = e.SizeFactor
	}
	return entrySchema.Validate(doc)
}

func entryToParameters(e Entry) orders.RollParameters {
	class := orders.ClassFuture
	if strings.EqualFold(strings.TrimSpace(e.Class), string(orders.ClassSpreadBet)) {
		class = orders.ClassSpreadBet
	}
	factor := e.SizeFactor
	if factor <= 0 || factor > 1 {
		factor = 1
	}
	return orders.RollParameters{
		PriceContract: strings.TrimSpace(e.PriceContract),
		CarryContract: strings.TrimSpace(e.CarryContract),
		RollWindow:    e.RollWindow,
		Class:         class,
		Account:       strings.TrimSpace(e.Account),
		SizeFactor:    factor,
	}
}

func cloneSnapshot(src Snapshot) Snapshot {
	dst := Snapshot{
		Version:     src.Version,
		LoadedAt:    src.LoadedAt,
		Instruments: make(map[string]orders.RollParameters, len(src.Instruments)),
	}
	for code, params := range src.Instruments {
		dst.Instruments[code] = params
	}
	return dst
}

func readCalendarFile(path string) (FileConfig, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return FileConfig{}, fmt.Errorf("read roll calendar failed: %w", err)
	}
	var cfg FileConfig
	dec := yaml.NewDecoder(bytes.NewReader(raw))
	dec.KnownFields(true)
	if err := dec.Decode(&cfg); err != nil {
		return FileConfig{}, fmt.Errorf("parse roll calendar failed: %w", err)
	}
	return cfg, nil
}

// StaticProvider serves a fixed parameter table. Used by tests and by
// deployments without a calendar file.
type StaticProvider struct {
	mu      sync.RWMutex
	entries map[string]orders.RollParameters
}

func NewStaticProvider(entries map[string]orders.RollParameters) *StaticProvider {
	table := make(map[string]orders.RollParameters, len(entries))
	for code, params := range entries {
		table[strings.ToUpper(strings.TrimSpace(code))] = params
	}
	return &StaticProvider{entries: table}
}

func (p *StaticProvider) Parameters(instrument string) (orders.RollParameters, error) {
	code := strings.ToUpper(strings.TrimSpace(instrument))
	p.mu.RLock()
	defer p.mu.RUnlock()
	params, ok := p.entries[code]
	if !ok {
		return orders.RollParameters{}, fmt.Errorf("roll parameters for %s: %w", code, orders.ErrMissingData)
	}
	return params, nil
}

func (p *StaticProvider) Instruments() []string {
	p.mu.RLock()
	defer p.mu.RUnlock()
	out := make([]string, 0, len(p.entries))
	for code := range p.entries {
		out = append(out, code)
	}
	return out
}

// Set replaces or adds one instrument's parameters.
func (p *StaticProvider) Set(instrument string, params orders.RollParameters) {
	p.mu.Lock()
	p.entries[strings.ToUpper(strings.TrimSpace(instrument))] = params
	p.mu.Unlock()
}
