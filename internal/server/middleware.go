package server

import (
	"context"
	"errors"
	"net/http"

	"attendance/internal/auth"
)

type ctxKey string

const accountContextKey ctxKey = "account"

// requireSession admits requests carrying a valid session whose account
// still exists. The failure reason is never disclosed.
func (s *Server) requireSession(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		acct, err := s.Auth.CheckAuth(r.Context(), auth.SessionTokenFromRequest(r))
		if errors.Is(err, auth.ErrUnauthenticated) {
			writeError(w, http.StatusUnauthorized, "Unauthenticated")
			return
		}
		if err != nil {
			s.Logger.Error("resolve session failed", "error", err)
			writeError(w, http.StatusInternalServerError, "Internal server error")
			return
		}

		ctx := context.WithValue(r.Context(), accountContextKey, acct)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

func accountFromContext(ctx context.Context) *auth.Account {
	if val, ok := ctx.Value(accountContextKey).(*auth.Account); ok {
		return val
	}
	return nil
}
