// Package lifecycle runs cleanup hooks when a command is interrupted or
// finishes.
package lifecycle

import (
	"context"
	"log/slog"
	"os"
	"os/signal"
	"sort"
	"sync"
	"syscall"
	"time"
)

// Hook priorities. Lower runs first.
const (
	PriorityWorker  = 20
	PriorityIndex   = 60
	PriorityMetrics = 70
	PriorityTracing = 80
)

// Hook is a cleanup step run during shutdown.
type Hook struct {
	Name     string
	Priority int
	Fn       func(ctx context.Context) error
}

// Config configures a Handler.
type Config struct {
	// Timeout bounds the whole hook run (default: 30s).
	Timeout time.Duration
	// Signals that trigger shutdown (default: SIGTERM, SIGINT).
	Signals []os.Signal
	Logger  *slog.Logger
}

// DefaultConfig returns the default configuration.
func DefaultConfig() *Config {
	return &Config{
		Timeout: 30 * time.Second,
		Signals: []os.Signal{syscall.SIGTERM, syscall.SIGINT},
	}
}

// Handler cancels a context on a signal and then runs registered hooks once.
type Handler struct {
	mu      sync.Mutex
	hooks   []Hook
	timeout time.Duration
	signals []os.Signal
	logger  *slog.Logger

	ctx    context.Context
	cancel context.CancelFunc

	started  bool
	stopOnce sync.Once
	doneCh   chan struct{}
}

// NewHandler creates a Handler whose Context derives from parent.
func NewHandler(parent context.Context, config *Config) *Handler {
	if config == nil {
		config = DefaultConfig()
	}
	if config.Timeout <= 0 {
		config.Timeout = 30 * time.Second
	}
	if len(config.Signals) == 0 {
		config.Signals = DefaultConfig().Signals
	}
	logger := config.Logger
	if logger == nil {
		logger = slog.Default()
	}
	ctx, cancel := context.WithCancel(parent)
	return &Handler{
		timeout: config.Timeout,
		signals: config.Signals,
		logger:  logger,
		ctx:     ctx,
		cancel:  cancel,
		doneCh:  make(chan struct{}),
	}
}

// Context is cancelled as soon as shutdown starts.
func (h *Handler) Context() context.Context { return h.ctx }

// Register adds a hook.
func (h *Handler) Register(hook Hook) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.hooks = append(h.hooks, hook)
	sort.SliceStable(h.hooks, func(i, j int) bool { return h.hooks[i].Priority < h.hooks[j].Priority })
}

// Start listens for the configured signals.
func (h *Handler) Start() {
	h.mu.Lock()
	if h.started {
		h.mu.Unlock()
		return
	}
	h.started = true
	h.mu.Unlock()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, h.signals...)
	go func() {
		select {
		case sig := <-sigCh:
			h.logger.Info("received signal, shutting down", "signal", sig.String())
			h.Shutdown()
		case <-h.ctx.Done():
		}
		signal.Stop(sigCh)
	}()
}

// Shutdown cancels Context and runs the hooks in priority order. Hook
// errors are logged and do not stop later hooks. It is safe to call more
// than once; later calls wait for the first to finish.
func (h *Handler) Shutdown() {
	h.stopOnce.Do(func() {
		h.cancel()

		ctx, cancel := context.WithTimeout(context.Background(), h.timeout)
		defer cancel()

		h.mu.Lock()
		hooks := make([]Hook, len(h.hooks))
		copy(hooks, h.hooks)
		h.mu.Unlock()

		for _, hook := range hooks {
			if err := hook.Fn(ctx); err != nil {
				h.logger.Error("shutdown hook failed", "hook", hook.Name, "error", err)
			}
		}
		close(h.doneCh)
	})
	<-h.doneCh
}

// Done is closed once all hooks have run.
func (h *Handler) Done() <-chan struct{} { return h.doneCh }

// WaitWithTimeout waits for shutdown to complete and reports whether it did.
func (h *Handler) WaitWithTimeout(timeout time.Duration) bool {
	select {
	case <-h.doneCh:
		return true
	case <-time.After(timeout):
		return false
	}
}

// WorkerHook stops a Temporal worker.
func WorkerHook(stop func()) Hook {
	return Hook{
		Name:     "temporal-worker",
		Priority: PriorityWorker,
		Fn: func(context.Context) error {
			stop()
			return nil
		},
	}
}

// IndexHook closes a loaded vector index.
func IndexHook(closeFn func() error) Hook {
	return Hook{
		Name:     "vector-index",
		Priority: PriorityIndex,
		Fn: func(context.Context) error {
			return closeFn()
		},
	}
}

// MetricsHook pushes pending metrics and stops the meter provider.
func MetricsHook(shutdown func(ctx context.Context) error) Hook {
	return Hook{
		Name:     "metrics",
		Priority: PriorityMetrics,
		Fn:       shutdown,
	}
}

// TracingHook flushes and stops the tracer provider.
func TracingHook(shutdown func(ctx context.Context) error) Hook {
	return Hook{
		Name:     "tracing",
		Priority: PriorityTracing,
		Fn:       shutdown,
	}
}
