package http

import (
	"context"
	"net/http"

	"github.com/dmehra2102/Marketplace-Checkout/internal/checkout/domain"
)

type IdentityResolver interface {
	Resolve(ctx context.Context, idToken string) (domain.Principal, error)
}

type ctxKey struct{}

// authenticate resolves the bearer token once per request. A missing or bad
// token leaves the anonymous principal in place; the service decides whether
// that is allowed.
func (h *Handler) authenticate(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		token := bearerToken(r)
		if token == "" {
			next.ServeHTTP(w, r)
			return
		}
		principal, err := h.identity.Resolve(r.Context(), token)
		if err != nil {
			writeError(h.log, w, r, err)
			return
		}
		next.ServeHTTP(w, r.WithContext(context.WithValue(r.Context(), ctxKey{}, principal)))
	})
}

func principalFrom(ctx context.Context) domain.Principal {
	p, _ := ctx.Value(ctxKey{}).(domain.Principal)
	return p
}
