package app

import (
	"context"
	"fmt"
	"time"

	"stacker/internal/broker"
	"stacker/internal/broker/binancefut"
	"stacker/internal/broker/paper"
	stkcfg "stacker/internal/config"
	"stacker/internal/handlers"
	"stacker/internal/logger"
	"stacker/internal/metrics"
	"stacker/internal/orders"
	"stacker/internal/rollcal"
	"stacker/internal/scheduler"
	"stacker/internal/stack"
	"stacker/internal/store/eventlog"
	"stacker/internal/store/gormstore"
	httpapi "stacker/internal/transport/http"
)

type AppBuilder struct {
	cfg *stkcfg.Config

	brokerFn   func(stkcfg.BrokerConfig) (broker.Connection, error)
	calendarFn func(stkcfg.RollConfig) (rollcal.Provider, error)
	archiveFn  func(stkcfg.StoreConfig) (*gormstore.Store, error)
	eventlogFn func(stkcfg.StoreConfig) (*eventlog.Store, error)

	brokerOverride   broker.Connection
	calendarOverride rollcal.Provider
}

type AppBuilderOption func(*AppBuilder)

// WithBroker substitutes the venue connection (replay and test harnesses).
func WithBroker(conn broker.Connection) AppBuilderOption {
	return func(b *AppBuilder) { b.brokerOverride = conn }
}

// WithCalendar substitutes the roll calendar provider.
func WithCalendar(p rollcal.Provider) AppBuilderOption {
	return func(b *AppBuilder) { b.calendarOverride = p }
}

func NewAppBuilder(cfg *stkcfg.Config, opts ...AppBuilderOption) *AppBuilder {
	b := &AppBuilder{
		cfg:        cfg,
		brokerFn:   buildBroker,
		calendarFn: buildCalendar,
		archiveFn:  buildArchiveStore,
		eventlogFn: buildEventLog,
	}
	for _, opt := range opts {
		if opt != nil {
			opt(b)
		}
	}
	return b
}

func (b *AppBuilder) Build(ctx context.Context) (*App, error) {
	if ctx == nil {
		ctx = context.Background()
	}
	if b.cfg == nil {
		return nil, fmt.Errorf("nil config")
	}
	cfg := b.cfg
	logger.SetLevel(cfg.App.LogLevel)

	conn := b.brokerOverride
	if conn == nil {
		var err error
		conn, err = b.brokerFn(cfg.Broker)
		if err != nil {
			return nil, fmt.Errorf("build broker connection: %w", err)
		}
	}
	logger.Infof("✓ broker connection ready: %s", conn.Name())

	calendar := b.calendarOverride
	if calendar == nil {
		var err error
		calendar, err = b.calendarFn(cfg.Roll)
		if err != nil {
			return nil, fmt.Errorf("load roll calendar: %w", err)
		}
	}
	logger.Infof("✓ roll calendar loaded: %d instruments", len(calendar.Instruments()))

	archive, err := b.archiveFn(cfg.Store)
	if err != nil {
		return nil, fmt.Errorf("open archive store: %w", err)
	}
	events, err := b.eventlogFn(cfg.Store)
	if err != nil {
		archive.Close()
		return nil, fmt.Errorf("open event log: %w", err)
	}

	stacks := stack.NewSet()
	observeTransitions(stacks, events)

	rolls := handlers.NewRollTracker()
	controls := handlers.NewControlsRegistry()
	brokerTimeout := time.Duration(cfg.Broker.TimeoutSeconds) * time.Second

	spawner := handlers.NewSpawner(stacks, calendar, rolls)
	submitter := handlers.NewSubmitter(stacks, calendar, conn, controls)
	if brokerTimeout > 0 {
		submitter.BrokerTimeout = brokerTimeout
	}
	rollHandler := handlers.NewRollHandler(stacks, calendar, rolls)
	reconciler := handlers.NewReconciler(stacks, conn, archive)
	if brokerTimeout > 0 {
		reconciler.BrokerTimeout = brokerTimeout
	}
	fills := handlers.NewFillConsumer(stacks, conn, controls)
	archiver := handlers.NewArchiver(stacks, archive)
	canceller := handlers.NewCanceller(stacks, conn, controls)

	httpServer, err := httpapi.NewServer(httpapi.ServerConfig{
		Addr: cfg.App.HTTPAddr,
		Router: &httpapi.Router{
			Stacks:     stacks,
			Rolls:      rolls,
			Reconciler: reconciler,
			Canceller:  canceller,
			Events:     events,
		},
	})
	if err != nil {
		events.Close()
		archive.Close()
		return nil, fmt.Errorf("build http server: %w", err)
	}

	loops, err := buildLoops(cfg.Handlers, handlerSet{
		spawner:    spawner,
		submitter:  submitter,
		roll:       rollHandler,
		reconciler: reconciler,
		archiver:   archiver,
	})
	if err != nil {
		events.Close()
		archive.Close()
		return nil, err
	}

	return &App{
		cfg:     cfg,
		broker:  conn,
		stacks:  stacks,
		fills:   fills,
		loops:   loops,
		http:    httpServer,
		archive: archive,
		events:  events,
	}, nil
}

// observeTransitions fans every committed state change out to the
// transition journal, the durable event log, and the level gauges.
func observeTransitions(stacks *stack.Set, events *eventlog.Store) {
	obs := func(level orders.Level, o *orders.Order, from, to orders.State) {
		logger.JournalTransition(string(level), o.Key.String(), o.ID, string(from), string(to), "")
		if err := events.Append(level, o, from, to); err != nil {
			logger.Warnf("event log append failed for order %d: %v", o.ID, err)
		}
		if from.Terminal() != to.Terminal() {
			gauge := metrics.ActiveOrders.WithLabelValues(string(level))
			if to.Terminal() {
				gauge.Dec()
			} else {
				gauge.Inc()
			}
		} else if from == "" && !to.Terminal() {
			metrics.ActiveOrders.WithLabelValues(string(level)).Inc()
		}
	}
	stacks.Instrument.Observe(obs)
	stacks.Contract.Observe(obs)
	stacks.Broker.Observe(obs)
}

type handlerSet struct {
	spawner    *handlers.Spawner
	submitter  *handlers.Submitter
	roll       *handlers.RollHandler
	reconciler *handlers.Reconciler
	archiver   *handlers.Archiver
}

type loopSpec struct {
	name     string
	interval string
	task     func(context.Context)
}

func buildLoops(cfg stkcfg.HandlersConfig, hs handlerSet) ([]loopSpec, error) {
	specs := []loopSpec{
		{name: "spawn", interval: cfg.SpawnInterval, task: hs.spawner.Run},
		{name: "submit", interval: cfg.SubmitInterval, task: hs.submitter.Run},
		{name: "roll", interval: cfg.RollInterval, task: hs.roll.Run},
		{name: "reconcile", interval: cfg.ReconcileInterval, task: hs.reconciler.Run},
		{name: "archive", interval: cfg.ArchiveInterval, task: hs.archiver.Run},
	}
	for _, s := range specs {
		if _, ok := scheduler.ParseIntervalDuration(s.interval); !ok {
			return nil, fmt.Errorf("handler %s: invalid interval %q", s.name, s.interval)
		}
	}
	return specs, nil
}

func buildBroker(cfg stkcfg.BrokerConfig) (broker.Connection, error) {
	switch cfg.Kind {
	case "paper", "":
		pc := paper.Config{}
		if cfg.Paper.ScriptPath != "" {
			loaded, err := paper.LoadScript(cfg.Paper.ScriptPath)
			if err != nil {
				return nil, fmt.Errorf("load paper script %s: %w", cfg.Paper.ScriptPath, err)
			}
			pc = loaded
		}
		return paper.New(pc), nil
	case "binance":
		return binancefut.New(binancefut.Config{
			APIKey:       cfg.Binance.APIKey,
			APISecret:    cfg.Binance.APISecret,
			RESTBaseURL:  cfg.Binance.RESTBaseURL,
			ProxyEnabled: cfg.Binance.ProxyEnabled,
			RESTProxyURL: cfg.Binance.RESTProxyURL,
			HTTPTimeout:  time.Duration(cfg.TimeoutSeconds) * time.Second,
			FillPoll:     time.Duration(cfg.Binance.FillPollSeconds) * time.Second,
		})
	default:
		return nil, fmt.Errorf("unknown broker kind %q", cfg.Kind)
	}
}

func buildCalendar(cfg stkcfg.RollConfig) (rollcal.Provider, error) {
	return rollcal.NewRegistry(cfg.CalendarPath)
}

func buildArchiveStore(cfg stkcfg.StoreConfig) (*gormstore.Store, error) {
	return gormstore.New(cfg.ArchivePath)
}

func buildEventLog(cfg stkcfg.StoreConfig) (*eventlog.Store, error) {
	return eventlog.New(cfg.EventLogPath)
}
