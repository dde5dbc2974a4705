package auth

import (
	"context"
	"time"

	"github.com/redis/go-redis/v9"
)

// Limit is a fixed-window counter policy.
type Limit struct {
	Name   string
	Max    int64
	Window time.Duration
}

var (
	LoginLimit  = Limit{Name: "login_failures", Max: 5, Window: 10 * time.Minute}
	VerifyLimit = Limit{Name: "verify_attempts", Max: 5, Window: 10 * time.Minute}
	ForgotLimit = Limit{Name: "forgot_attempts", Max: 5, Window: 15 * time.Minute}
	SignupLimit = Limit{Name: "signup_attempts", Max: 10, Window: 30 * time.Minute}
)

const EmailCooldown = 60 * time.Second

const keyPrefix = "attendance:"

type RateLimiter struct {
	Redis *redis.Client
}

func NewRateLimiter(rdb *redis.Client) *RateLimiter {
	return &RateLimiter{Redis: rdb}
}

func (r *RateLimiter) key(l Limit, subject string) string {
	return keyPrefix + l.Name + ":" + subject
}

func (r *RateLimiter) CooldownKey(email string) string {
	return keyPrefix + "resend_cooldown:" + NormalizeEmail(email)
}

// Blocked reports whether subject has used up l without counting a new hit.
func (r *RateLimiter) Blocked(ctx context.Context, l Limit, subject string) (bool, time.Duration, error) {
	if subject == "" {
		return false, 0, nil
	}
	key := r.key(l, subject)
	n, err := r.Redis.Get(ctx, key).Int64()
	if err == redis.Nil {
		return false, 0, nil
	}
	if err != nil {
		return false, 0, err
	}
	if n < l.Max {
		return false, 0, nil
	}
	ttl, _ := r.Redis.TTL(ctx, key).Result()
	return true, ttl, nil
}

// Hit counts one attempt and reports whether the attempt went over l.
func (r *RateLimiter) Hit(ctx context.Context, l Limit, subject string) (bool, time.Duration, error) {
	if subject == "" {
		return false, 0, nil
	}
	key := r.key(l, subject)

	attempts, err := r.Redis.Incr(ctx, key).Result()
	if err != nil {
		return false, 0, err
	}
	if attempts == 1 {
		r.Redis.Expire(ctx, key, l.Window)
	}
	ttl, _ := r.Redis.TTL(ctx, key).Result()
	return attempts > l.Max, ttl, nil
}

// HitAll counts one attempt against every subject and reports the longest
// remaining window of any subject that went over.
func (r *RateLimiter) HitAll(ctx context.Context, l Limit, subjects ...string) (bool, time.Duration, error) {
	locked := false
	var ttlMax time.Duration
	for _, subject := range subjects {
		over, ttl, err := r.Hit(ctx, l, subject)
		if err != nil {
			return false, 0, err
		}
		if over {
			locked = true
			if ttl > ttlMax {
				ttlMax = ttl
			}
		}
	}
	return locked, ttlMax, nil
}

func (r *RateLimiter) Reset(ctx context.Context, l Limit, subject string) {
	r.Redis.Del(ctx, r.key(l, subject))
}

func (r *RateLimiter) CooldownTTL(ctx context.Context, key string) time.Duration {
	ttl, err := r.Redis.TTL(ctx, key).Result()
	if err != nil {
		return 0
	}
	return ttl
}

func (r *RateLimiter) SetCooldown(ctx context.Context, key string, ttl time.Duration) {
	r.Redis.Set(ctx, key, "1", ttl)
}
