// Package scheduler runs each stack handler as an independent periodic
// task. Handlers are cooperative pollers: a loop never overlaps itself,
// and loops never block on each other.
package scheduler

import (
	"context"
	"time"

	"stacker/internal/logger"
)

type Loop struct {
	Name           string
	Interval       time.Duration
	RunImmediately bool

	ctx   context.Context
	nowFn func() time.Time
}

func NewLoop(ctx context.Context, name string, interval time.Duration) *Loop {
	if ctx == nil {
		ctx = context.Background()
	}
	return &Loop{
		Name:           name,
		Interval:       interval,
		RunImmediately: true,
		ctx:            ctx,
		nowFn:          time.Now,
	}
}

// Start runs the task every Interval until the context ends. It blocks;
// callers run it in a goroutine (typically under an errgroup).
func (l *Loop) Start(task func(context.Context)) {
	if l == nil {
		return
	}
	if task == nil {
		logger.Warnf("scheduler[%s]: task is nil, exit", l.Name)
		return
	}
	if l.Interval <= 0 {
		logger.Warnf("scheduler[%s]: invalid interval=%s, exit", l.Name, l.Interval)
		return
	}
	if l.ctx == nil {
		l.ctx = context.Background()
	}

	logger.Infof("scheduler[%s]: started interval=%s run_immediately=%v",
		l.Name, l.Interval, l.RunImmediately)

	if l.RunImmediately {
		l.runOnce(task)
	}

	ticker := time.NewTicker(l.Interval)
	defer ticker.Stop()
	for {
		select {
		case <-l.ctx.Done():
			logger.Infof("scheduler[%s]: ctx done, exit", l.Name)
			return
		case <-ticker.C:
			l.runOnce(task)
		}
	}
}

func (l *Loop) runOnce(task func(context.Context)) {
	defer func() {
		if r := recover(); r != nil {
			logger.Errorf("scheduler[%s]: task panic: %v", l.Name, r)
		}
	}()
	started := l.nowFn()
	task(l.ctx)
	elapsed := l.nowFn().Sub(started)
	if elapsed > l.Interval {
		logger.Warnf("scheduler[%s]: pass took %s, longer than interval %s",
			l.Name, elapsed.Truncate(time.Millisecond), l.Interval)
	}
}
