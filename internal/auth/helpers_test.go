package auth

import (
	"context"
	"errors"
	"regexp"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/bcrypt"

	"attendance/internal/email"
)

var (
	codePattern  = regexp.MustCompile(`>(\d{6})<`)
	resetPattern = regexp.MustCompile(`/reset-password/([0-9a-f]+)`)
)

type fakeMailer struct {
	mu   sync.Mutex
	sent []email.Message
	fail error
}

func (f *fakeMailer) Send(_ context.Context, msg email.Message) (email.Receipt, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.fail != nil {
		return email.Receipt{}, f.fail
	}
	f.sent = append(f.sent, msg)
	return email.Receipt{MessageID: "<test@local>", Accepted: []string{msg.To[0].Email}}, nil
}

func (f *fakeMailer) messages() []email.Message {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]email.Message(nil), f.sent...)
}

func (f *fakeMailer) last(t *testing.T) email.Message {
	t.Helper()
	msgs := f.messages()
	require.NotEmpty(t, msgs, "no mail sent")
	return msgs[len(msgs)-1]
}

func (f *fakeMailer) lastCode(t *testing.T) string {
	t.Helper()
	m := codePattern.FindStringSubmatch(f.last(t).HTML)
	require.Len(t, m, 2, "no verification code in mail")
	return m[1]
}

func (f *fakeMailer) lastResetToken(t *testing.T) string {
	t.Helper()
	m := resetPattern.FindStringSubmatch(f.last(t).HTML)
	require.Len(t, m, 2, "no reset link in mail")
	return m[1]
}

type testClock struct {
	mu sync.Mutex
	t  time.Time
}

func newTestClock() *testClock {
	return &testClock{t: time.Date(2025, 3, 1, 8, 0, 0, 0, time.UTC)}
}

func (c *testClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.t
}

func (c *testClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.t = c.t.Add(d)
}

type testEnv struct {
	svc    *Service
	store  *MemoryStore
	mailer *fakeMailer
	clock  *testClock
}

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()
	clock := newTestClock()
	store := NewMemoryStore()
	mailer := &fakeMailer{}
	svc := NewService(Options{
		Store:    store,
		Hasher:   &BcryptHasher{Cost: bcrypt.MinCost},
		Sessions: NewSessionIssuer("test-secret-0123456789", DefaultSessionTTL).WithClock(clock.Now),
		Mailer:   mailer,
		From:     email.Address{Name: "Attendance System", Email: "noreply@example.com"},
		BaseURL:  "http://localhost:5173/",
		Now:      clock.Now,
	})
	t.Cleanup(svc.Wait)
	return &testEnv{svc: svc, store: store, mailer: mailer, clock: clock}
}

var errSMTPDown = errors.New("smtp: connection refused")
