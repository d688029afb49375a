package middleware

import (
	"net/http"
	"strings"

	"github.com/commitly/ledger/internal/handlers/callerctx"
	"github.com/commitly/ledger/internal/handlers/render"
)

type tokenParser interface {
	Parse(token string) (service string, err error)
}

// AuthMiddleware guards the internal ledger API: only callers presenting a
// valid service token pass. Webhook endpoints are not behind it, they carry
// provider signatures instead.
func AuthMiddleware(tokens tokenParser) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			header := r.Header.Get("Authorization")
			token, ok := strings.CutPrefix(header, "Bearer ")
			if !ok {
				render.ServiceError(w, "Unauthorized", http.StatusUnauthorized)
				return
			}

			service, err := tokens.Parse(token)
			if err != nil {
				render.ServiceError(w, "Unauthorized", http.StatusUnauthorized)
				return
			}

			ctx := callerctx.NewContext(r.Context(), service)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}
