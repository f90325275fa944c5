// Package auth verifies bearer credentials and decides whether an
// authenticated principal may act on a requested owner scope.
package auth

import (
	"context"
	"strings"

	"finease/internal/core"
)

type principalKey struct{}

// WithPrincipal returns a copy of ctx carrying the authenticated email.
func WithPrincipal(ctx context.Context, email string) context.Context {
	return context.WithValue(ctx, principalKey{}, email)
}

// PrincipalFrom returns the authenticated email, or "" when the request
// carried no verified credential.
func PrincipalFrom(ctx context.Context) string {
	email, _ := ctx.Value(principalKey{}).(string)
	return email
}

// Authorize is the single scope check shared by every scoped operation.
//
// A missing principal is Unauthenticated. An empty requested owner yields
// the unscoped scope. A requested owner that differs from the principal is
// Forbidden. Nothing here touches the store.
func Authorize(principal, requested string) (core.Scope, error) {
	principal = strings.TrimSpace(principal)
	requested = strings.TrimSpace(requested)
	if principal == "" {
		return core.Scope{}, core.ErrUnauthenticated
	}
	if requested == "" {
		return core.Scope{}, nil
	}
	if requested != principal {
		return core.Scope{}, core.ErrForbidden
	}
	return core.OwnedBy(requested), nil
}

// AuthorizeOwner is Authorize for operations that only make sense for a
// single owner, such as totals and reports.
func AuthorizeOwner(principal, requested string) (core.Scope, error) {
	scope, err := Authorize(principal, requested)
	if err != nil {
		return core.Scope{}, err
	}
	if !scope.Scoped() {
		return core.Scope{}, core.ErrScopeRequired
	}
	return scope, nil
}
