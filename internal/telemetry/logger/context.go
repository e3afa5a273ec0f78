package logger

import "context"

// contextKey is a type for context keys to avoid collisions.
type contextKey string

const (
	loggerKey    contextKey = "savevault.logger"
	operationKey contextKey = "savevault.operation_id"
	namespaceKey contextKey = "savevault.namespace"
)

// WithLogger adds a logger to the context.
func WithLogger(ctx context.Context, l Logger) context.Context {
	return context.WithValue(ctx, loggerKey, l)
}

// FromContext extracts the logger from context.
// Returns the default logger if none is set.
func FromContext(ctx context.Context) Logger {
	if l, ok := ctx.Value(loggerKey).(Logger); ok {
		return l
	}
	return Default()
}

// WithOperationID tags the context with the id of one save or load.
func WithOperationID(ctx context.Context, id string) context.Context {
	return context.WithValue(ctx, operationKey, id)
}

// OperationIDFromContext extracts the operation id from context.
func OperationIDFromContext(ctx context.Context) string {
	if id, ok := ctx.Value(operationKey).(string); ok {
		return id
	}
	return ""
}

// WithNamespace tags the context with the slot namespace being worked on.
func WithNamespace(ctx context.Context, namespace string) context.Context {
	return context.WithValue(ctx, namespaceKey, namespace)
}

// NamespaceFromContext extracts the slot namespace from context.
func NamespaceFromContext(ctx context.Context) string {
	if ns, ok := ctx.Value(namespaceKey).(string); ok {
		return ns
	}
	return ""
}

// L is a shorthand for FromContext that also enriches the logger with the
// operation id and namespace carried by ctx.
func L(ctx context.Context) Logger {
	l := FromContext(ctx)

	if id := OperationIDFromContext(ctx); id != "" {
		l = l.With("op_id", id)
	}
	if ns := NamespaceFromContext(ctx); ns != "" {
		l = l.With("namespace", ns)
	}

	return l
}
