// Package app wires configuration, the venue connection, the order
// stacks, their handlers, and the query surface into one runnable unit.
package app

import (
	"context"
	"fmt"

	"golang.org/x/sync/errgroup"

	"stacker/internal/broker"
	"stacker/internal/broker/binancefut"
	stkcfg "stacker/internal/config"
	"stacker/internal/handlers"
	"stacker/internal/logger"
	"stacker/internal/scheduler"
	"stacker/internal/stack"
	"stacker/internal/store/eventlog"
	"stacker/internal/store/gormstore"
	httpapi "stacker/internal/transport/http"
)

type App struct {
	cfg    *stkcfg.Config
	broker broker.Connection
	stacks *stack.Set
	fills  *handlers.FillConsumer
	loops  []loopSpec
	http   *httpapi.Server

	archive *gormstore.Store
	events  *eventlog.Store
}

// NewApp builds the application from configuration without starting it.
func NewApp(cfg *stkcfg.Config) (*App, error) {
	if cfg == nil {
		return nil, fmt.Errorf("nil config")
	}
	logger.SetLevel(cfg.App.LogLevel)
	return buildAppWithWire(context.Background(), cfg)
}

// Stacks exposes the order stacks (replay and test harnesses).
func (a *App) Stacks() *stack.Set {
	if a == nil {
		return nil
	}
	return a.stacks
}

// Run starts the handler loops, the fill consumer, and the query
// surface, and blocks until the context ends or a component fails.
func (a *App) Run(ctx context.Context) error {
	if a == nil || a.cfg == nil {
		return fmt.Errorf("app not initialized")
	}
	defer a.closeStores()

	group, ctx := errgroup.WithContext(ctx)

	if bc, ok := a.broker.(*binancefut.Client); ok {
		bc.Start(ctx)
	}

	group.Go(func() error {
		if err := a.http.Start(ctx); err != nil {
			return fmt.Errorf("http server error: %w", err)
		}
		return nil
	})

	group.Go(func() error {
		a.fills.Run(ctx)
		return nil
	})

	for _, spec := range a.loops {
		spec := spec
		group.Go(func() error {
			interval, _ := scheduler.ParseIntervalDuration(spec.interval)
			scheduler.NewLoop(ctx, spec.name, interval).Start(spec.task)
			return nil
		})
	}

	logger.Infof("stacker running: %d handler loops, http on %s", len(a.loops), a.cfg.App.HTTPAddr)
	return group.Wait()
}

func (a *App) closeStores() {
	if a.events != nil {
		if err := a.events.Close(); err != nil {
			logger.Warnf("closing event log: %v", err)
		}
	}
	if a.archive != nil {
		if err := a.archive.Close(); err != nil {
			logger.Warnf("closing archive store: %v", err)
		}
	}
}
