package app

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	stkcfg "stacker/internal/config"
	"stacker/internal/orders"
	"stacker/internal/rollcal"
)

func testConfig(t *testing.T) *stkcfg.Config {
	t.Helper()
	dir := t.TempDir()
	return &stkcfg.Config{
		App: stkcfg.AppConfig{
			Env:      "test",
			LogLevel: "warn",
			HTTPAddr: ":0",
		},
		Broker: stkcfg.BrokerConfig{Kind: "paper", TimeoutSeconds: 1},
		Store: stkcfg.StoreConfig{
			ArchivePath:  filepath.Join(dir, "archive.db"),
			EventLogPath: filepath.Join(dir, "events.db"),
		},
		Handlers: stkcfg.HandlersConfig{
			SpawnInterval:     "5s",
			SubmitInterval:    "5s",
			RollInterval:      "1m",
			ReconcileInterval: "30s",
			ArchiveInterval:   "1m",
		},
	}
}

func TestBuilderWiresApp(t *testing.T) {
	cfg := testConfig(t)
	calendar := rollcal.NewStaticProvider(map[string]orders.RollParameters{
		"SP500": {PriceContract: "202412", SizeFactor: 1},
	})

	b := NewAppBuilder(cfg, WithCalendar(calendar))
	a, err := b.Build(context.Background())
	require.NoError(t, err)
	defer a.closeStores()

	assert.NotNil(t, a.Stacks())
	assert.Equal(t, "paper", a.broker.Name())
	assert.Len(t, a.loops, 5)
	assert.NotNil(t, a.http)
}

func TestBuilderRejectsBadHandlerInterval(t *testing.T) {
	cfg := testConfig(t)
	cfg.Handlers.SpawnInterval = "whenever"

	b := NewAppBuilder(cfg, WithCalendar(rollcal.NewStaticProvider(nil)))
	_, err := b.Build(context.Background())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "invalid interval")
}

func TestBuilderRejectsUnknownBroker(t *testing.T) {
	cfg := testConfig(t)
	cfg.Broker.Kind = "telex"

	b := NewAppBuilder(cfg, WithCalendar(rollcal.NewStaticProvider(nil)))
	_, err := b.Build(context.Background())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "broker")
}

func TestBuilderRequiresConfig(t *testing.T) {
	_, err := NewAppBuilder(nil).Build(context.Background())
	assert.Error(t, err)
	_, err = NewApp(nil)
	assert.Error(t, err)
}

func TestObservedTransitionsReachEventLog(t *testing.T) {
	cfg := testConfig(t)
	calendar := rollcal.NewStaticProvider(map[string]orders.RollParameters{
		"SP500": {PriceContract: "202412", SizeFactor: 1},
	})
	a, err := NewAppBuilder(cfg, WithCalendar(calendar)).Build(context.Background())
	require.NoError(t, err)
	defer a.closeStores()

	_, err = a.Stacks().Instrument.PutOrder(&orders.Order{
		Level: orders.LevelInstrument,
		Key:   orders.InstrumentKey("SP500"),
		Trade: decimal.NewFromInt(37),
	})
	require.NoError(t, err)

	records, err := a.events.Recent(context.Background(), 10)
	require.NoError(t, err)
	require.Len(t, records, 1)
	assert.Equal(t, "pending", records[0].ToState)
	assert.Equal(t, "SP500", records[0].Instrument)
}
