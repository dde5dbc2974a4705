package auth

import (
	"context"
	"encoding/json"
	"time"

	"github.com/redis/go-redis/v9"
)

const (
	AuditSignup        = "signup"
	AuditVerifyEmail   = "verify_email"
	AuditLoginSuccess  = "login_success"
	AuditLoginFailure  = "login_failure"
	AuditLogout        = "logout"
	AuditForgot        = "forgot_password"
	AuditResetPassword = "reset_password"
	AuditResend        = "resend_verification"
)

type AuditEvent struct {
	EventType string                 `json:"eventType"`
	AccountID string                 `json:"accountId,omitempty"`
	IP        string                 `json:"ip"`
	UserAgent string                 `json:"userAgent"`
	Timestamp time.Time              `json:"timestamp"`
	Meta      map[string]interface{} `json:"meta,omitempty"`
}

type AuditLogger struct {
	Redis  *redis.Client
	MaxLen int64
	Now    func() time.Time
}

func AuditKey(accountID string) string {
	if accountID == "" {
		return keyPrefix + "audit"
	}
	return keyPrefix + "audit:" + accountID
}

func (a *AuditLogger) Log(ctx context.Context, e AuditEvent) error {
	now := time.Now
	if a.Now != nil {
		now = a.Now
	}
	e.Timestamp = now().UTC()
	data, err := json.Marshal(e)
	if err != nil {
		return err
	}

	key := AuditKey(e.AccountID)

	pipe := a.Redis.Pipeline()
	pipe.RPush(ctx, key, data)
	if a.MaxLen > 0 {
		pipe.LTrim(ctx, key, -a.MaxLen, -1)
	}

	_, err = pipe.Exec(ctx)
	return err
}

// Recent returns up to n of the newest events for accountID, oldest first.
func (a *AuditLogger) Recent(ctx context.Context, accountID string, n int64) ([]AuditEvent, error) {
	raw, err := a.Redis.LRange(ctx, AuditKey(accountID), -n, -1).Result()
	if err != nil {
		return nil, err
	}
	events := make([]AuditEvent, 0, len(raw))
	for _, item := range raw {
		var e AuditEvent
		if err := json.Unmarshal([]byte(item), &e); err != nil {
			continue
		}
		events = append(events, e)
	}
	return events, nil
}
