// Copyright 2026 Joseph Cumines
//
// Permission to use, copy, modify, and distribute this software for any
// purpose with or without fee is hereby granted, provided that this copyright
// notice appears in all copies.

package reactor

import (
	"fmt"
	"time"

	"github.com/joeycumines/go-catrate"
	"github.com/joeycumines/logiface"
)

// reactorOptions holds configuration options for Reactor creation.
type reactorOptions struct {
	logger          *logiface.Logger[logiface.Event]
	logRateLimits   map[time.Duration]int
	eventBufferSize int
	metricsEnabled  bool
}

// defaultLogRateLimits bounds how often a single category of error (e.g.
// panics from one handle's callback) is logged.
var defaultLogRateLimits = map[time.Duration]int{
	time.Second: 5,
	time.Minute: 30,
}

// Option configures a Reactor instance.
type Option interface {
	applyReactor(*reactorOptions) error
}

// reactorOptionImpl implements Option.
type reactorOptionImpl struct {
	applyReactorFunc func(*reactorOptions) error
}

func (x *reactorOptionImpl) applyReactor(opts *reactorOptions) error {
	return x.applyReactorFunc(opts)
}

// WithLogger sets the logger used for lifecycle events, recovered callback
// panics, and backend errors. A nil logger (the default) disables logging.
func WithLogger(logger *logiface.Logger[logiface.Event]) Option {
	return &reactorOptionImpl{func(opts *reactorOptions) error {
		opts.logger = logger
		return nil
	}}
}

// WithMetrics enables latency and throughput metrics, reported by
// Reactor.Stats. Counters are always maintained.
func WithMetrics(enabled bool) Option {
	return &reactorOptionImpl{func(opts *reactorOptions) error {
		opts.metricsEnabled = enabled
		return nil
	}}
}

// WithEventBufferSize sets the maximum number of readiness records fetched
// from the backend per iteration. Readiness beyond that is delivered by a
// later iteration. Defaults to 256.
func WithEventBufferSize(size int) Option {
	return &reactorOptionImpl{func(opts *reactorOptions) error {
		if size <= 0 {
			return fmt.Errorf("reactor: invalid event buffer size: %d", size)
		}
		opts.eventBufferSize = size
		return nil
	}}
}

// WithLogRateLimits sets the per-category rate limits applied to error
// logging, in the form accepted by catrate.NewLimiter. An empty map disables
// rate limiting. Defaults to 5 per second and 30 per minute.
func WithLogRateLimits(rates map[time.Duration]int) Option {
	return &reactorOptionImpl{func(opts *reactorOptions) error {
		if len(rates) != 0 {
			if _, err := newLogLimiter(rates); err != nil {
				return err
			}
		}
		opts.logRateLimits = rates
		return nil
	}}
}

// resolveReactorOptions applies Option instances to reactorOptions.
func resolveReactorOptions(opts []Option) (*reactorOptions, error) {
	cfg := &reactorOptions{
		eventBufferSize: defaultEventBufferSize,
		logRateLimits:   defaultLogRateLimits,
	}
	for _, opt := range opts {
		if opt == nil {
			continue
		}
		if err := opt.applyReactor(cfg); err != nil {
			return nil, err
		}
	}
	return cfg, nil
}

// newLogLimiter converts the panic catrate uses for invalid rates to an
// error. Empty rates yield a nil limiter, which allows everything.
func newLogLimiter(rates map[time.Duration]int) (limiter *catrate.Limiter, err error) {
	if len(rates) == 0 {
		return nil, nil
	}
	defer func() {
		if r := recover(); r != nil {
			limiter = nil
			err = fmt.Errorf("reactor: invalid log rate limits: %v", r)
		}
	}()
	return catrate.NewLimiter(rates), nil
}
