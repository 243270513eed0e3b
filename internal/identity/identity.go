// Package identity carries the acting principal through request contexts.
// Authentication happens in the surrounding service layer; the core only
// consumes the resolved principal for audit metadata.
package identity

import (
	"context"

	"github.com/finbooks/ledger/internal/interfaces"
)

type contextKey struct{}

// Anonymous is recorded when no principal was attached to the context.
const Anonymous = "anonymous"

// WithPrincipal returns a context carrying the acting principal.
func WithPrincipal(ctx context.Context, principal string) context.Context {
	return context.WithValue(ctx, contextKey{}, principal)
}

// FromContext is the context-backed Identity collaborator.
type FromContext struct{}

var _ interfaces.Identity = FromContext{}

func (FromContext) Principal(ctx context.Context) string {
	if principal, ok := ctx.Value(contextKey{}).(string); ok && principal != "" {
		return principal
	}

	return Anonymous
}
