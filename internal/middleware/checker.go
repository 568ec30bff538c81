package middleware

import (
	"context"
	"net/http"

	"github.com/modelhub-io/modelhub/internal/auth"
)

type checkerClaimsKey struct{}

// CheckerAuth verifies the callback token minted when a query run was
// dispatched to the verification engine. The token is bound to one
// query and one project version; handlers read the verified claims
// with CheckerClaimsFrom.
func CheckerAuth(sharedSecret []byte) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			token, ok := bearerToken(r)
			if !ok {
				unauthorized(w, "missing callback token")
				return
			}

			claims, err := auth.VerifyCheckerToken(sharedSecret, token)
			if err != nil {
				unauthorized(w, "invalid callback token")
				return
			}

			ctx := context.WithValue(r.Context(), checkerClaimsKey{}, claims)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

// CheckerClaimsFrom retrieves the verified callback claims.
func CheckerClaimsFrom(ctx context.Context) (*auth.CheckerClaims, bool) {
	claims, ok := ctx.Value(checkerClaimsKey{}).(*auth.CheckerClaims)
	return claims, ok
}
