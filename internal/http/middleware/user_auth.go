package middleware

import (
	"net/http"
	"strings"

	"github.com/golang-jwt/jwt/v5"
	"github.com/wolfman30/healsmart/internal/identity"
)

// UserJWT attaches the caller's identity from an HS256 bearer token. Requests
// without a token pass through anonymously; handlers decide whether identity
// is required. A token that is present but invalid is rejected.
//
// Browsers cannot set headers on WebSocket upgrades, so the token is also
// accepted from the access_token query parameter.
func UserJWT(secret string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			tokenString := bearerToken(r)
			if tokenString == "" {
				next.ServeHTTP(w, r)
				return
			}
			if secret == "" {
				http.Error(w, "user auth disabled", http.StatusUnauthorized)
				return
			}
			claims := jwt.RegisteredClaims{}
			token, err := jwt.ParseWithClaims(tokenString, &claims, func(token *jwt.Token) (any, error) {
				if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
					return nil, jwt.ErrSignatureInvalid
				}
				return []byte(secret), nil
			})
			if err != nil || !token.Valid || strings.TrimSpace(claims.Subject) == "" {
				http.Error(w, "invalid token", http.StatusUnauthorized)
				return
			}
			ctx := identity.WithUserID(r.Context(), strings.TrimSpace(claims.Subject))
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

func bearerToken(r *http.Request) string {
	auth := r.Header.Get("Authorization")
	if strings.HasPrefix(auth, "Bearer ") {
		return strings.TrimSpace(strings.TrimPrefix(auth, "Bearer "))
	}
	return strings.TrimSpace(r.URL.Query().Get("access_token"))
}
