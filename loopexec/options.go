// Copyright 2025 Joseph Cumines
//
// Permission to use, copy, modify, and distribute this software for any
// purpose with or without fee is hereby granted, provided that this copyright
// notice appears in all copies.

package loopexec

import "time"

// loopOptions holds configuration applied at EventLoop construction.
type loopOptions struct {
	strictOrdering   bool
	metricsEnabled   bool
	breakoutInterval time.Duration
}

// Option configures an EventLoop. Adapted from the teacher's
// LoopOption/loopOptionImpl functional-options pair (eventloop/options.go).
type Option interface {
	apply(*loopOptions)
}

type optionFunc func(*loopOptions)

func (f optionFunc) apply(o *loopOptions) { f(o) }

// WithStrictOrdering records a strict-ordering flag on the loop. The
// flag does not change execution order: internal continuations are
// drained once per tick, after expired timers and before the external
// queue, whether it is set or not.
func WithStrictOrdering(enabled bool) Option {
	return optionFunc(func(o *loopOptions) { o.strictOrdering = enabled })
}

// WithMetrics enables task and tick counting and task-latency
// percentiles, retrievable via EventLoop.Metrics.
func WithMetrics(enabled bool) Option {
	return optionFunc(func(o *loopOptions) { o.metricsEnabled = enabled })
}

// WithBreakoutInterval bounds how long a single tick spends draining
// the external task queue before yielding to I/O polling: run_all_tasks
// stops once this much time has elapsed, rechecked every 64 popped
// tasks, bounding worst-case poll latency under submission bursts.
// Zero/negative selects the default of 16ms.
func WithBreakoutInterval(d time.Duration) Option {
	return optionFunc(func(o *loopOptions) { o.breakoutInterval = d })
}

func resolveOptions(opts []Option) *loopOptions {
	cfg := &loopOptions{breakoutInterval: 16 * time.Millisecond}
	for _, opt := range opts {
		if opt != nil {
			opt.apply(cfg)
		}
	}
	if cfg.breakoutInterval <= 0 {
		cfg.breakoutInterval = 16 * time.Millisecond
	}
	return cfg
}
