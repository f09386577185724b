package auth

import (
	"context"

	"github.com/google/uuid"

	"github.com/capitalpath/ledger-service/internal/domain"
)

type identityKey struct{}

type Identity struct {
	AccountID uuid.UUID
	Role      domain.Role
}

func ContextWithIdentity(ctx context.Context, id Identity) context.Context {
	return context.WithValue(ctx, identityKey{}, id)
}

func IdentityFromContext(ctx context.Context) (Identity, bool) {
	id, ok := ctx.Value(identityKey{}).(Identity)
	return id, ok
}

// AccountIDFromContext is a convenience for handlers that only need the
// caller's account id.
func AccountIDFromContext(ctx context.Context) (uuid.UUID, bool) {
	id, ok := IdentityFromContext(ctx)
	return id.AccountID, ok
}

// AdminFromContext returns the caller's account id when the request carries
// an admin identity.
func AdminFromContext(ctx context.Context) (uuid.UUID, bool) {
	id, ok := IdentityFromContext(ctx)
	if !ok || id.Role != domain.RoleAdmin {
		return uuid.Nil, false
	}
	return id.AccountID, true
}
