package workgate

import (
	"log/slog"
	"runtime"
	"time"

	"golang.org/x/time/rate"

	"github.com/randalmurphal/workgate/pkg/workgate/config"
	"github.com/randalmurphal/workgate/pkg/workgate/journal"
	"github.com/randalmurphal/workgate/pkg/workgate/observability"
)

// Policy is the acquisition-order rule the Coordinator enforces.
type Policy int

const (
	// PolicyInitFirst initializes a task's declared keys before checking
	// out a resource handle. Deadlock-free for any capacity. Default.
	PolicyInitFirst Policy = iota

	// PolicyUnordered performs no ordering. Safe only when pool capacity
	// is at least the worker count; NewCoordinator rejects smaller pools
	// unless WithUnsafeOverride is set.
	PolicyUnordered
)

// poolConfig holds configuration shared by Pool and Coordinator.
type poolConfig struct {
	workers           int
	queueSize         int
	nonBlockingSubmit bool
	checkoutTimeout   time.Duration
	initTimeout       time.Duration
	policy            Policy
	allowUnsafe       bool

	limiter *rate.Limiter

	logger  *slog.Logger
	metrics observability.MetricsRecorder
	spans   observability.SpanManager
	journal journal.Store

	onTaskEnd func(taskID string, err error)
}

// defaultPoolConfig returns the default configuration.
func defaultPoolConfig() *poolConfig {
	return &poolConfig{
		workers: runtime.GOMAXPROCS(0),
		metrics: observability.NoopMetrics{},
		spans:   observability.NoopSpanManager{},
	}
}

// Option configures a Pool or Coordinator.
type Option func(*poolConfig)

// WithWorkers sets the fixed worker count N.
// Default: runtime.GOMAXPROCS(0).
func WithWorkers(n int) Option {
	return func(c *poolConfig) {
		if n > 0 {
			c.workers = n
		}
	}
}

// WithQueueSize bounds the task queue.
// Default: equal to the worker count.
func WithQueueSize(n int) Option {
	return func(c *poolConfig) {
		if n > 0 {
			c.queueSize = n
		}
	}
}

// WithNonBlockingSubmit makes Submit fail fast with ErrQueueFull when
// the queue is full instead of blocking.
func WithNonBlockingSubmit() Option {
	return func(c *poolConfig) {
		c.nonBlockingSubmit = true
	}
}

// WithCheckoutTimeout bounds every resource checkout performed on behalf
// of a task. On expiry the task fails with ErrResourceExhausted instead
// of hanging. Default: no bound.
func WithCheckoutTimeout(d time.Duration) Option {
	return func(c *poolConfig) {
		if d > 0 {
			c.checkoutTimeout = d
		}
	}
}

// WithInitTimeout bounds waiting on another caller's lazy
// initialization. On expiry the task fails with
// ErrInitializationTimeout. Default: no bound.
func WithInitTimeout(d time.Duration) Option {
	return func(c *poolConfig) {
		if d > 0 {
			c.initTimeout = d
		}
	}
}

// WithPolicy sets the acquisition-order policy.
// Default: PolicyInitFirst.
func WithPolicy(p Policy) Option {
	return func(c *poolConfig) {
		c.policy = p
	}
}

// WithUnsafeOverride permits building a PolicyUnordered coordinator
// whose pool capacity is below the worker count. Such a configuration
// can deadlock; use only with timeouts configured and a reason.
func WithUnsafeOverride() Option {
	return func(c *poolConfig) {
		c.allowUnsafe = true
	}
}

// WithRateLimit caps task throughput at tasksPerSecond with the given
// burst. Useful when pooled resources front an external service.
// Default: unlimited.
func WithRateLimit(tasksPerSecond float64, burst int) Option {
	return func(c *poolConfig) {
		if tasksPerSecond > 0 && burst > 0 {
			c.limiter = rate.NewLimiter(rate.Limit(tasksPerSecond), burst)
		}
	}
}

// WithLogger enables structured logging to the given slog logger.
// Default: no logging.
func WithLogger(logger *slog.Logger) Option {
	return func(c *poolConfig) {
		c.logger = logger
	}
}

// WithMetrics enables OpenTelemetry metrics.
// Configure the global meter provider before Start.
func WithMetrics(enabled bool) Option {
	return func(c *poolConfig) {
		if enabled {
			c.metrics = observability.NewMetricsRecorder()
		} else {
			c.metrics = observability.NoopMetrics{}
		}
	}
}

// WithTracing enables OpenTelemetry tracing.
// Configure the global tracer provider before Start.
func WithTracing(enabled bool) Option {
	return func(c *poolConfig) {
		if enabled {
			c.spans = observability.NewSpanManager()
		} else {
			c.spans = observability.NoopSpanManager{}
		}
	}
}

// WithJournal records task lifecycle events to the given store.
// Default: no journal.
func WithJournal(store journal.Store) Option {
	return func(c *poolConfig) {
		c.journal = store
	}
}

// WithOnTaskEnd registers a hook invoked after every task completes,
// with the task's ID and final error (nil on success). The hook runs on
// the worker goroutine; keep it fast.
func WithOnTaskEnd(fn func(taskID string, err error)) Option {
	return func(c *poolConfig) {
		c.onTaskEnd = fn
	}
}

// FromSettings applies settings loaded via the config package.
func FromSettings(s config.Settings) Option {
	return func(c *poolConfig) {
		if s.Workers > 0 {
			c.workers = s.Workers
		}
		if s.QueueSize > 0 {
			c.queueSize = s.QueueSize
		}
		c.nonBlockingSubmit = s.NonBlockingSubmit
		if s.CheckoutTimeout > 0 {
			c.checkoutTimeout = s.CheckoutTimeout
		}
		if s.InitTimeout > 0 {
			c.initTimeout = s.InitTimeout
		}
		if s.InitFirst {
			c.policy = PolicyInitFirst
		} else {
			c.policy = PolicyUnordered
		}
	}
}
