// Package shutdown stops long-running commands cleanly.
//
// A Handler turns SIGINT/SIGTERM into context cancellation and then runs the
// registered hooks, newest first, under a timeout. The auto-save loop uses
// it to flush pending changes and close the slot backend before exit.
//
//	h := shutdown.NewHandler(10 * time.Second)
//	ctx := h.Context(context.Background())
//	h.OnShutdown(func(ctx context.Context) error { return store.Close() })
//	err := h.Wait(ctx)
package shutdown
