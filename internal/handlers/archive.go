package handlers

import (
	"context"

	"stacker/internal/logger"
	"stacker/internal/orders"
	"stacker/internal/stack"
)

// OrderArchiver persists a terminal order before it leaves the working set.
type OrderArchiver interface {
	ArchiveOrder(ctx context.Context, o *orders.Order) error
}

// Archiver sweeps terminal orders out of the working sets into the
// archives, persisting each for audit. A persistence failure leaves the
// order in place for the next sweep.
type Archiver struct {
	Stacks *stack.Set
	Store  OrderArchiver
}

func NewArchiver(stacks *stack.Set, store OrderArchiver) *Archiver {
	return &Archiver{Stacks: stacks, Store: store}
}

func (a *Archiver) Run(ctx context.Context) {
	if a == nil || a.Stacks == nil {
		return
	}
	var persist func(*orders.Order) error
	if a.Store != nil {
		persist = func(o *orders.Order) error {
			return a.Store.ArchiveOrder(ctx, o)
		}
	}
	for _, err := range a.Stacks.ArchiveTerminal(persist) {
		logger.Warnf("archive: %v", err)
	}
}
