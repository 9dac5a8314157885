package context

import "context"

type ctxKey int

const (
	requestIDKey ctxKey = iota
	actorKey
)

// WithRequestID stores the request correlation id.
func WithRequestID(ctx context.Context, requestID string) context.Context {
	return context.WithValue(ctx, requestIDKey, requestID)
}

func RequestIDFromContext(ctx context.Context) string {
	if ctx == nil {
		return ""
	}
	v, _ := ctx.Value(requestIDKey).(string)
	return v
}

type actor struct {
	kind string
	id   string
}

// WithActor records who is acting: an operator, the scheduler or the CLI.
func WithActor(ctx context.Context, kind, id string) context.Context {
	return context.WithValue(ctx, actorKey, actor{kind: kind, id: id})
}

func ActorFromContext(ctx context.Context) (string, string) {
	if ctx == nil {
		return "", ""
	}
	a, _ := ctx.Value(actorKey).(actor)
	return a.kind, a.id
}

const (
	ActorOperator  = "operator"
	ActorScheduler = "scheduler"
	ActorCLI       = "cli"
)
