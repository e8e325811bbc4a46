package middleware

import (
	"context"
	"net"
	"net/http"
	"strings"

	goGuard "github.com/MrEthical07/goGuard"
	"github.com/MrEthical07/goGuard/jwt"
	"github.com/MrEthical07/goGuard/session"
)

// AssuranceHeader carries the step-up token issued by a verification.
const AssuranceHeader = "X-MFA-Assurance"

type sessionContextKey struct{}
type assuranceContextKey struct{}

// SessionFromContext returns the session attached by RequireSession.
func SessionFromContext(ctx context.Context) (*session.Session, bool) {
	s, ok := ctx.Value(sessionContextKey{}).(*session.Session)
	return s, ok
}

// AssuranceFromContext returns the claims attached by RequireAssurance.
func AssuranceFromContext(ctx context.Context) (*jwt.AssuranceClaims, bool) {
	c, ok := ctx.Value(assuranceContextKey{}).(*jwt.AssuranceClaims)
	return c, ok
}

// RequireSession authenticates requests by "Authorization: Bearer <session token>".
func RequireSession(engine *goGuard.Engine) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if engine == nil {
				http.Error(w, "unauthorized", http.StatusUnauthorized)
				return
			}
			token, ok := bearerToken(r.Header.Get("Authorization"))
			if !ok {
				http.Error(w, "unauthorized", http.StatusUnauthorized)
				return
			}

			sess, status, err := engine.GetSessionByToken(r.Context(), token)
			if err != nil || status == session.StatusTerminated || status == session.StatusExpired {
				http.Error(w, "unauthorized", http.StatusUnauthorized)
				return
			}
			touched, err := engine.TouchSession(r.Context(), sess.ID, goGuard.Origin{
				IPAddress: clientIP(r),
				UserAgent: r.UserAgent(),
			})
			if err != nil {
				http.Error(w, "unauthorized", http.StatusUnauthorized)
				return
			}

			ctx := context.WithValue(r.Context(), sessionContextKey{}, touched)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

// RequireAssurance rejects requests without a valid assurance token. Behind
// RequireSession the token must name the same user, tenant and session.
func RequireAssurance(engine *goGuard.Engine) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if engine == nil {
				http.Error(w, "forbidden", http.StatusForbidden)
				return
			}
			raw := strings.TrimSpace(r.Header.Get(AssuranceHeader))
			if raw == "" {
				http.Error(w, "mfa required", http.StatusForbidden)
				return
			}
			claims, err := engine.ValidateAssurance(raw)
			if err != nil {
				http.Error(w, "mfa required", http.StatusForbidden)
				return
			}
			if sess, ok := SessionFromContext(r.Context()); ok {
				if claims.UID != sess.UserID || claims.TID != sess.TenantID || (claims.SID != "" && claims.SID != sess.ID) {
					http.Error(w, "mfa required", http.StatusForbidden)
					return
				}
			}

			ctx := context.WithValue(r.Context(), assuranceContextKey{}, claims)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

func bearerToken(value string) (string, bool) {
	const bearer = "Bearer "
	if !strings.HasPrefix(value, bearer) {
		return "", false
	}

	token := value[len(bearer):]
	if token == "" {
		return "", false
	}

	return token, true
}

func clientIP(r *http.Request) string {
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return host
}
