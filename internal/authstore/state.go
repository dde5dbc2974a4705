// Package authstore mirrors server auth state on the client. The Store is an
// explicit container owned by the application root; views subscribe to it
// and actions go through Dispatch.
package authstore

import "attendance/internal/apiclient"

type State struct {
	User            *apiclient.User
	IsAuthenticated bool
	IsLoading       bool
	IsCheckingAuth  bool
	Error           string
	Message         string
}

func (s State) IsVerified() bool {
	return s.User != nil && s.User.IsVerified
}

func initialState() State {
	return State{IsCheckingAuth: true}
}

// Action is one state transition.
type Action interface {
	apply(State) State
}

// Started begins a mutating request and clears the previous outcome.
type Started struct{}

func (Started) apply(s State) State {
	s.IsLoading = true
	s.Error = ""
	s.Message = ""
	return s
}

// Authenticated records a user the server vouched for.
type Authenticated struct {
	User    apiclient.User
	Message string
}

func (a Authenticated) apply(s State) State {
	u := a.User
	s.User = &u
	s.IsAuthenticated = true
	s.IsLoading = false
	s.Message = a.Message
	return s
}

type Failed struct {
	Err string
}

func (a Failed) apply(s State) State {
	s.IsLoading = false
	s.Error = a.Err
	return s
}

// Informed finishes a request whose result is only a message.
type Informed struct {
	Message string
}

func (a Informed) apply(s State) State {
	s.IsLoading = false
	s.Message = a.Message
	return s
}

type CheckAuthSucceeded struct {
	User apiclient.User
}

func (a CheckAuthSucceeded) apply(s State) State {
	u := a.User
	s.User = &u
	s.IsAuthenticated = true
	s.IsCheckingAuth = false
	return s
}

// CheckAuthFailed is the normal outcome without a session; it sets no error.
type CheckAuthFailed struct{}

func (CheckAuthFailed) apply(s State) State {
	s.User = nil
	s.IsAuthenticated = false
	s.IsCheckingAuth = false
	return s
}

// LoggedOut drops the user immediately; the server call may still be running.
type LoggedOut struct{}

func (LoggedOut) apply(s State) State {
	s.User = nil
	s.IsAuthenticated = false
	s.IsLoading = true
	s.Error = ""
	s.Message = ""
	return s
}

type LogoutFinished struct{}

func (LogoutFinished) apply(s State) State {
	s.IsLoading = false
	return s
}
