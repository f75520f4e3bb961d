package config

import (
	"fmt"
	"time"
)

// Settings holds the coordinator knobs extracted from a Config.
type Settings struct {
	// Capacity is the resource pool size C.
	Capacity int
	// Workers is the worker count N.
	Workers int
	// QueueSize is the task queue bound; 0 means equal to Workers.
	QueueSize int
	// CheckoutTimeout bounds a single resource checkout; 0 means no bound.
	CheckoutTimeout time.Duration
	// InitTimeout bounds waiting on another caller's initialization;
	// 0 means no bound.
	InitTimeout time.Duration
	// NonBlockingSubmit makes Submit fail fast when the queue is full
	// instead of blocking.
	NonBlockingSubmit bool
	// InitFirst enforces initialize-before-checkout ordering.
	InitFirst bool
}

// DefaultSettings are the values used for keys absent from a Config.
var DefaultSettings = Settings{
	Capacity:  4,
	Workers:   4,
	InitFirst: true,
}

// Extract reads coordinator settings from cfg, applying defaults for
// missing keys and validating the result.
//
// Recognized keys:
//
//	capacity, workers, queue_size, checkout_timeout, init_timeout,
//	non_blocking_submit, init_first
func Extract(cfg Config) (Settings, error) {
	s := Settings{
		Capacity:          cfg.Int("capacity", DefaultSettings.Capacity),
		Workers:           cfg.Int("workers", DefaultSettings.Workers),
		QueueSize:         cfg.Int("queue_size", DefaultSettings.QueueSize),
		CheckoutTimeout:   cfg.Duration("checkout_timeout", DefaultSettings.CheckoutTimeout),
		InitTimeout:       cfg.Duration("init_timeout", DefaultSettings.InitTimeout),
		NonBlockingSubmit: cfg.Bool("non_blocking_submit", DefaultSettings.NonBlockingSubmit),
		InitFirst:         cfg.Bool("init_first", DefaultSettings.InitFirst),
	}

	if s.Capacity < 1 {
		return Settings{}, fmt.Errorf("capacity must be positive, got %d", s.Capacity)
	}
	if s.Workers < 1 {
		return Settings{}, fmt.Errorf("workers must be positive, got %d", s.Workers)
	}
	if s.QueueSize < 0 {
		return Settings{}, fmt.Errorf("queue_size must be non-negative, got %d", s.QueueSize)
	}
	return s, nil
}
