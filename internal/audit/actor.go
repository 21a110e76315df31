package audit

import (
	"context"

	"github.com/google/uuid"
)

const (
	ActorKindAdmin  = "admin"
	ActorKindSystem = "system"
)

// Actor identifies who performed an audited action.
type Actor struct {
	Kind string
	ID   *uuid.UUID
	Name string
}

// Admin returns the actor for an authenticated administrator.
func Admin(id uuid.UUID) Actor {
	return Actor{Kind: ActorKindAdmin, ID: &id}
}

// System returns the actor for background work such as cron jobs.
func System(name string) Actor {
	return Actor{Kind: ActorKindSystem, Name: name}
}

// Marker renders the actor as stored in audit details, e.g. "admin:<id>" or
// "system:auction-expiry".
func (a Actor) Marker() string {
	switch {
	case a.Kind == ActorKindAdmin && a.ID != nil:
		return ActorKindAdmin + ":" + a.ID.String()
	case a.Name != "":
		return ActorKindSystem + ":" + a.Name
	}
	return ActorKindSystem
}

type actorKey struct{}

// WithActor stores the actor on ctx.
func WithActor(ctx context.Context, actor Actor) context.Context {
	return context.WithValue(ctx, actorKey{}, actor)
}

// ActorFrom returns the actor on ctx, defaulting to an anonymous system actor.
func ActorFrom(ctx context.Context) Actor {
	if ctx != nil {
		if actor, ok := ctx.Value(actorKey{}).(Actor); ok {
			return actor
		}
	}
	return Actor{Kind: ActorKindSystem}
}
