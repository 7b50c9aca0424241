package types

import "context"

// ActorType identifies the kind of authenticated entity making a request.
type ActorType string

const (
	ActorTypeUser   ActorType = "user"
	ActorTypeSystem ActorType = "system"
)

// Actor represents the authenticated entity performing an operation.
// For ActorTypeUser, ID is the local user identifier that owns exactly one
// SubscriptionRecord.
type Actor struct {
	ID   string
	Type ActorType
}

// Context Keys
type contextKey string

const (
	actorKey     contextKey = "actor"
	requestIDKey contextKey = "request_id"
)

// WithActor stores the Actor in the context.
func WithActor(ctx context.Context, actor Actor) context.Context {
	return context.WithValue(ctx, actorKey, actor)
}

// GetActor retrieves the Actor from the context.
func GetActor(ctx context.Context) (Actor, bool) {
	actor, ok := ctx.Value(actorKey).(Actor)
	return actor, ok
}

// GetUserID returns the authenticated user's ID. System actors and anonymous
// requests yield ("", false).
func GetUserID(ctx context.Context) (string, bool) {
	actor, ok := GetActor(ctx)
	if !ok || actor.Type != ActorTypeUser || actor.ID == "" {
		return "", false
	}
	return actor.ID, true
}

// WithRequestID stores the request ID in the context.
func WithRequestID(ctx context.Context, id string) context.Context {
	return context.WithValue(ctx, requestIDKey, id)
}

// GetRequestID retrieves the request ID from the context.
func GetRequestID(ctx context.Context) string {
	id, _ := ctx.Value(requestIDKey).(string)
	return id
}
