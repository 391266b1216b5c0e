package user

import (
	"context"
	"errors"

	log "github.com/sirupsen/logrus"
)

type contextKey string

const ActorKey contextKey = "actor"

var ErrNoActor = errors.New("no acting user in context")

// CurrentActor retrieves the acting user's id from the context. The id is
// stored verbatim as the actor of record on every created, approved, rejected
// or revised row. Returns ErrNoActor when the request carried no identity.
func CurrentActor(ctx context.Context) (string, error) {
	actor, ok := ctx.Value(ActorKey).(string)
	if !ok || actor == "" {
		log.Trace("actor not found in context")
		return "", ErrNoActor
	}
	return actor, nil
}

func WithActor(ctx context.Context, actor string) context.Context {
	return context.WithValue(ctx, ActorKey, actor)
}
