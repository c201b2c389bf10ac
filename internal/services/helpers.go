package services

import (
	"context"

	"github.com/charlesng35/handoff/internal/relay"
)

func ensureContext(ctx context.Context) context.Context {
	if ctx == nil {
		return context.Background()
	}
	return ctx
}

func validRole(role relay.Role) bool {
	_, ok := relay.ParseRole(string(role))
	return ok
}
