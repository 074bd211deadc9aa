// ABOUTME: Request context plumbing for the fake authentication service
// ABOUTME: Carries the authenticated account from requireToken to handlers

package authtest

import (
	"context"
	"net/http"
)

type accountContextKey struct{}

func contextWithAccount(ctx context.Context, a *account) context.Context {
	return context.WithValue(ctx, accountContextKey{}, a)
}

// accountFrom returns the account attached by requireToken, panicking if absent.
func accountFrom(r *http.Request) *account {
	a, ok := r.Context().Value(accountContextKey{}).(*account)
	if !ok {
		panic("authtest: account not found in context")
	}
	return a
}
