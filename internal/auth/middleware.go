package auth

import (
	"errors"
	"fmt"
	"net/http"
	"strings"

	"finease/internal/core"
	"finease/internal/log"
)

var errMissingCredential = fmt.Errorf("%w: missing bearer token", core.ErrUnauthenticated)

// BearerToken extracts the token from an "Authorization: Bearer <token>"
// header.
func BearerToken(r *http.Request) (string, bool) {
	header := strings.TrimSpace(r.Header.Get("Authorization"))
	scheme, token, ok := strings.Cut(header, " ")
	if !ok || !strings.EqualFold(scheme, "Bearer") {
		return "", false
	}
	token = strings.TrimSpace(token)
	return token, token != ""
}

// Require rejects requests without a valid bearer credential before the
// wrapped handler runs. On success the principal is stored in the request
// context.
func Require(v Verifier, onFail func(http.ResponseWriter, *http.Request, error)) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			token, ok := BearerToken(r)
			if !ok {
				onFail(w, r, errMissingCredential)
				return
			}

			email, err := v.Verify(r.Context(), token)
			if err != nil {
				if !errors.Is(err, core.ErrUnauthenticated) {
					err = fmt.Errorf("%w: %v", core.ErrUnauthenticated, err)
				}
				log.FromContext(r.Context()).WithComponent(log.ComponentAuth).
					WarnContext(r.Context(), "Token verification failed", log.FieldError, err)
				onFail(w, r, err)
				return
			}

			next.ServeHTTP(w, r.WithContext(WithPrincipal(r.Context(), email)))
		})
	}
}
