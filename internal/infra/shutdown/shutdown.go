package shutdown

import (
	"context"
	"errors"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"
)

// Handler handles graceful shutdown.
type Handler struct {
	timeout time.Duration
	signals []os.Signal

	mu    sync.Mutex
	hooks []func(context.Context) error
	done  chan struct{}
}

// NewHandler creates a handler whose hooks share a timeout.
func NewHandler(timeout time.Duration) *Handler {
	return &Handler{
		timeout: timeout,
		signals: []os.Signal{syscall.SIGINT, syscall.SIGTERM},
		done:    make(chan struct{}),
	}
}

// Context returns a child of parent that is cancelled on SIGINT or SIGTERM.
// Signal delivery is restored to the default once the context ends.
func (h *Handler) Context(parent context.Context) context.Context {
	ctx, stop := signal.NotifyContext(parent, h.signals...)
	go func() {
		<-ctx.Done()
		stop()
	}()
	return ctx
}

// OnShutdown registers a shutdown hook.
// Hooks are called in reverse order of registration.
func (h *Handler) OnShutdown(hook func(context.Context) error) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.hooks = append(h.hooks, hook)
}

// Wait blocks until ctx is done, then runs every hook under the timeout.
// It returns the hook errors joined.
func (h *Handler) Wait(ctx context.Context) error {
	<-ctx.Done()
	return h.Run()
}

// Run executes the hooks now. Later calls return nil without running them
// again.
func (h *Handler) Run() error {
	h.mu.Lock()
	select {
	case <-h.done:
		h.mu.Unlock()
		return nil
	default:
	}
	hooks := append([]func(context.Context) error(nil), h.hooks...)
	close(h.done)
	h.mu.Unlock()

	ctx, cancel := context.WithTimeout(context.Background(), h.timeout)
	defer cancel()

	var errs []error
	for i := len(hooks) - 1; i >= 0; i-- {
		if err := hooks[i](ctx); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// Done returns a channel that is closed once the hooks have started.
func (h *Handler) Done() <-chan struct{} {
	return h.done
}
