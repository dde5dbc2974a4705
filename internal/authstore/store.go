package authstore

import (
	"context"
	"errors"
	"sort"
	"sync"

	"attendance/internal/apiclient"
)

// ErrBusy rejects a mutating action while another one is in flight.
var ErrBusy = errors.New("another auth request is in progress")

// ErrSuperseded is returned when a logout landed while the request was in
// flight; its result was dropped.
var ErrSuperseded = errors.New("auth request superseded by logout")

// API is the subset of apiclient.Client the store drives.
type API interface {
	CheckAuth(ctx context.Context) (*apiclient.User, error)
	Signup(ctx context.Context, name, email, password string) (*apiclient.UserResponse, error)
	VerifyEmail(ctx context.Context, code string) (*apiclient.UserResponse, error)
	ResendVerification(ctx context.Context, email string) (*apiclient.MessageResponse, error)
	Login(ctx context.Context, email, password string) (*apiclient.UserResponse, error)
	Logout(ctx context.Context) error
	ForgotPassword(ctx context.Context, email string) (*apiclient.MessageResponse, error)
	ResetPassword(ctx context.Context, token, password string) (*apiclient.MessageResponse, error)
}

type sessionForgetter interface {
	ForgetSession()
}

type Store struct {
	api API

	mu     sync.Mutex
	state  State
	subs   map[int]func(State)
	nextID int
	closed bool
	// gen counts logouts; results of requests started in an older
	// generation are dropped
	gen uint64
}

func New(api API) *Store {
	return &Store{
		api:   api,
		state: initialState(),
		subs:  make(map[int]func(State)),
	}
}

func (s *Store) State() State {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

// Subscribe registers fn for every later state change and returns a func
// that removes it.
func (s *Store) Subscribe(fn func(State)) func() {
	s.mu.Lock()
	defer s.mu.Unlock()
	id := s.nextID
	s.nextID++
	s.subs[id] = fn
	return func() {
		s.mu.Lock()
		defer s.mu.Unlock()
		delete(s.subs, id)
	}
}

// Dispatch applies a and notifies subscribers in registration order. After
// Close it does nothing.
func (s *Store) Dispatch(a Action) {
	s.mu.Lock()
	next, fns := s.applyLocked(a)
	s.mu.Unlock()
	notify(next, fns)
}

func (s *Store) applyLocked(a Action) (State, []func(State)) {
	if s.closed {
		return s.state, nil
	}
	s.state = a.apply(s.state)
	ids := make([]int, 0, len(s.subs))
	for id := range s.subs {
		ids = append(ids, id)
	}
	sort.Ints(ids)
	fns := make([]func(State), 0, len(ids))
	for _, id := range ids {
		fns = append(fns, s.subs[id])
	}
	return s.state, fns
}

func notify(st State, fns []func(State)) {
	for _, fn := range fns {
		fn(st)
	}
}

// Close detaches the store from its view. Requests already in flight finish
// but their results are dropped.
func (s *Store) Close() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.closed = true
	s.subs = map[int]func(State){}
}

// CheckAuth resolves the boot state. A missing session is not an error.
func (s *Store) CheckAuth(ctx context.Context) error {
	gen := s.generation()
	user, err := s.api.CheckAuth(ctx)
	if errors.Is(err, apiclient.ErrUnauthenticated) {
		return s.settle(gen, CheckAuthFailed{})
	}
	if err != nil {
		if serr := s.settle(gen, CheckAuthFailed{}); serr != nil {
			return serr
		}
		return err
	}
	return s.settle(gen, CheckAuthSucceeded{User: *user})
}

func (s *Store) Signup(ctx context.Context, name, email, password string) error {
	gen, err := s.begin()
	if err != nil {
		return err
	}
	resp, err := s.api.Signup(ctx, name, email, password)
	if err != nil {
		return s.fail(gen, err, "Error signing up")
	}
	return s.settle(gen, Authenticated{User: resp.User, Message: resp.Message})
}

func (s *Store) VerifyEmail(ctx context.Context, code string) error {
	gen, err := s.begin()
	if err != nil {
		return err
	}
	resp, err := s.api.VerifyEmail(ctx, code)
	if err != nil {
		return s.fail(gen, err, "Error verifying email")
	}
	return s.settle(gen, Authenticated{User: resp.User, Message: resp.Message})
}

func (s *Store) Login(ctx context.Context, email, password string) error {
	gen, err := s.begin()
	if err != nil {
		return err
	}
	resp, err := s.api.Login(ctx, email, password)
	if err != nil {
		return s.fail(gen, err, "Error logging in")
	}
	return s.settle(gen, Authenticated{User: resp.User, Message: resp.Message})
}

// Logout clears local state before the server answers and keeps it cleared
// when the call fails.
func (s *Store) Logout(ctx context.Context) error {
	s.mu.Lock()
	s.gen++
	next, fns := s.applyLocked(LoggedOut{})
	s.mu.Unlock()
	notify(next, fns)

	err := s.api.Logout(ctx)
	if err != nil {
		if f, ok := s.api.(sessionForgetter); ok {
			f.ForgetSession()
		}
	}
	s.Dispatch(LogoutFinished{})
	return err
}

func (s *Store) ResendVerification(ctx context.Context, email string) error {
	gen, err := s.begin()
	if err != nil {
		return err
	}
	resp, err := s.api.ResendVerification(ctx, email)
	if err != nil {
		return s.fail(gen, err, "Error resending verification email")
	}
	return s.settle(gen, Informed{Message: resp.Message})
}

func (s *Store) ForgotPassword(ctx context.Context, email string) error {
	gen, err := s.begin()
	if err != nil {
		return err
	}
	resp, err := s.api.ForgotPassword(ctx, email)
	if err != nil {
		return s.fail(gen, err, "Error sending reset password email")
	}
	return s.settle(gen, Informed{Message: resp.Message})
}

func (s *Store) ResetPassword(ctx context.Context, token, password string) error {
	gen, err := s.begin()
	if err != nil {
		return err
	}
	resp, err := s.api.ResetPassword(ctx, token, password)
	if err != nil {
		return s.fail(gen, err, "Error resetting password")
	}
	return s.settle(gen, Informed{Message: resp.Message})
}

func (s *Store) begin() (uint64, error) {
	s.mu.Lock()
	if s.state.IsLoading && !s.closed {
		s.mu.Unlock()
		return 0, ErrBusy
	}
	gen := s.gen
	next, fns := s.applyLocked(Started{})
	s.mu.Unlock()
	notify(next, fns)
	return gen, nil
}

func (s *Store) generation() uint64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.gen
}

// settle applies a unless a logout happened since gen.
func (s *Store) settle(gen uint64, a Action) error {
	s.mu.Lock()
	if s.gen != gen {
		s.mu.Unlock()
		return ErrSuperseded
	}
	next, fns := s.applyLocked(a)
	s.mu.Unlock()
	notify(next, fns)
	return nil
}

func (s *Store) fail(gen uint64, err error, fallback string) error {
	msg := fallback
	var apiErr *apiclient.APIError
	if errors.As(err, &apiErr) && apiErr.Message != "" {
		msg = apiErr.Message
	}
	if serr := s.settle(gen, Failed{Err: msg}); serr != nil {
		return serr
	}
	return err
}
