package middleware

import (
	"context"
	"log/slog"
	"net/http"
	"strings"

	"leaveflow/internal/domain/auth"
	"leaveflow/internal/requestctx"
	"leaveflow/internal/transport/http/api"
)

type ctxKey string

const ctxKeyUser ctxKey = "user"

// ActiveChecker reports whether the employee behind a token may still act.
type ActiveChecker interface {
	EmployeeActive(ctx context.Context, employeeID string) (bool, error)
}

// Auth attaches the token's user to the request context. Requests without a
// valid token pass through anonymous; RequireAuth rejects them. When checker
// is set, tokens of deactivated employees are ignored.
func Auth(secret string, checker ActiveChecker) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			authHeader := r.Header.Get("Authorization")
			if authHeader == "" {
				next.ServeHTTP(w, r)
				return
			}
			parts := strings.Split(authHeader, " ")
			if len(parts) != 2 || strings.ToLower(parts[0]) != "bearer" {
				next.ServeHTTP(w, r)
				return
			}

			claims, err := auth.ParseToken(secret, parts[1])
			if err != nil {
				slog.Debug("bearer token rejected", "err", err, "requestId", GetRequestID(r.Context()))
				next.ServeHTTP(w, r)
				return
			}
			if checker != nil {
				active, err := checker.EmployeeActive(r.Context(), claims.UserID)
				if err != nil || !active {
					next.ServeHTTP(w, r)
					return
				}
			}

			ctx := requestctx.WithActorID(r.Context(), claims.UserID)
			ctx = context.WithValue(ctx, ctxKeyUser, auth.UserContext{
				UserID:   claims.UserID,
				RoleName: claims.RoleName,
			})
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

func GetUser(ctx context.Context) (auth.UserContext, bool) {
	user, ok := ctx.Value(ctxKeyUser).(auth.UserContext)
	return user, ok
}

func RequireAuth(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if _, ok := GetUser(r.Context()); !ok {
			api.Fail(w, http.StatusUnauthorized, "unauthorized", "authentication required", GetRequestID(r.Context()))
			return
		}
		next.ServeHTTP(w, r)
	})
}
