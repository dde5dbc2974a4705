package server

import (
	"errors"
	"net/http"

	"attendance/internal/auth"
)

type failure struct {
	target  error
	status  int
	message string
	outcome string
}

// Ordered: ErrPendingVerification wraps alongside ErrDuplicateAccount.
var failures = []failure{
	{auth.ErrPendingVerification, http.StatusConflict, "User already exists. Please verify your email or request a new code.", "duplicate"},
	{auth.ErrDuplicateAccount, http.StatusConflict, "User already exists", "duplicate"},
	{auth.ErrInvalidCredentials, http.StatusBadRequest, "Invalid credentials", "invalid_credentials"},
	{auth.ErrInvalidOrExpiredCode, http.StatusBadRequest, "Invalid or expired verification code", "invalid_code"},
	{auth.ErrInvalidOrExpiredToken, http.StatusBadRequest, "Invalid or expired reset token", "invalid_token"},
	{auth.ErrUnauthenticated, http.StatusUnauthorized, "Unauthenticated", "unauthenticated"},
	{auth.ErrDeliveryFailure, http.StatusBadGateway, "Could not send email. Please try again later.", "delivery_failure"},
	{auth.ErrValidation, http.StatusBadRequest, "Invalid request", "validation"},
}

func outcomeOf(err error) string {
	if err == nil {
		return "success"
	}
	for _, f := range failures {
		if errors.Is(err, f.target) {
			return f.outcome
		}
	}
	return "error"
}

// writeAuthError renders a service failure. Unknown errors are logged and
// reported generically.
func (s *Server) writeAuthError(w http.ResponseWriter, op string, err error) {
	s.Metrics.recordOutcome(op, outcomeOf(err))

	var verr *auth.ValidationError
	if errors.As(err, &verr) {
		writeJSON(w, http.StatusBadRequest, map[string]interface{}{
			"success": false,
			"message": verr.Error(),
			"errors":  verr.Fields,
		})
		return
	}
	for _, f := range failures {
		if errors.Is(err, f.target) {
			writeError(w, f.status, f.message)
			return
		}
	}
	s.Logger.Error(op+" failed", "error", err)
	writeError(w, http.StatusInternalServerError, "Internal server error")
}
