// Package handlers contains the periodic processes that move orders
// between stack levels and reconcile them against the venue. Each handler
// is invoked independently by the scheduler; none assumes exclusive
// access to a stack. Contention (ErrAlreadyLocked) and collaborator
// outages (ErrMissingData) are handled by skipping the affected order
// until the next cycle.
package handlers

import (
	"context"
	"errors"
	"time"

	"stacker/internal/logger"
	"stacker/internal/orders"
)

const (
	defaultBrokerTimeout = 5 * time.Second
)

// recoverable reports whether err is a defer-to-next-cycle condition.
func recoverable(err error) bool {
	return errors.Is(err, orders.ErrAlreadyLocked) ||
		errors.Is(err, orders.ErrMissingData) ||
		errors.Is(err, orders.ErrDuplicateKey)
}

// logModifyErr distinguishes invariant violations (logic errors, error
// severity) from recoverable conditions (debug noise).
func logModifyErr(op string, id int64, err error) {
	if err == nil {
		return
	}
	if orders.IsInvariantViolation(err) {
		logger.Errorf("%s: order=%d %v", op, id, err)
		return
	}
	if recoverable(err) {
		logger.Debugf("%s: order=%d deferred: %v", op, id, err)
		return
	}
	logger.Warnf("%s: order=%d %v", op, id, err)
}

func brokerCtx(ctx context.Context, timeout time.Duration) (context.Context, context.CancelFunc) {
	if ctx == nil {
		ctx = context.Background()
	}
	if timeout <= 0 {
		timeout = defaultBrokerTimeout
	}
	return context.WithTimeout(ctx, timeout)
}
