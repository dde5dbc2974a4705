// Package routeguard decides, from client auth state alone, whether a page
// renders or redirects.
package routeguard

import (
	"strings"

	"attendance/internal/authstore"
)

type Outcome int

const (
	// Pending means auth state is still being resolved; show a placeholder.
	Pending Outcome = iota
	Render
	Redirect
)

func (o Outcome) String() string {
	switch o {
	case Pending:
		return "pending"
	case Render:
		return "render"
	case Redirect:
		return "redirect"
	default:
		return "unknown"
	}
}

type Decision struct {
	Outcome Outcome
	To      string
}

const (
	PathDashboard   = "/"
	PathLogin       = "/login"
	PathSignup      = "/signup"
	PathVerifyEmail = "/verify-email"
	PathForgot      = "/forgot-password"
	PathReset       = "/reset-password/:token"
)

type Policy func(authstore.State) Decision

// RequireAuth admits verified, authenticated users only.
func RequireAuth(s authstore.State) Decision {
	if s.IsCheckingAuth {
		return Decision{Outcome: Pending}
	}
	if !s.IsAuthenticated {
		return Decision{Outcome: Redirect, To: PathLogin}
	}
	if !s.IsVerified() {
		return Decision{Outcome: Redirect, To: PathVerifyEmail}
	}
	return Decision{Outcome: Render}
}

// RedirectIfAuthenticated keeps verified users off the signed-out pages.
func RedirectIfAuthenticated(s authstore.State) Decision {
	if s.IsCheckingAuth {
		return Decision{Outcome: Pending}
	}
	if s.IsAuthenticated && s.IsVerified() {
		return Decision{Outcome: Redirect, To: PathDashboard}
	}
	return Decision{Outcome: Render}
}

func Public(s authstore.State) Decision {
	if s.IsCheckingAuth {
		return Decision{Outcome: Pending}
	}
	return Decision{Outcome: Render}
}

type Route struct {
	Name    string
	Pattern string
	Policy  Policy
}

func DefaultRoutes() []Route {
	return []Route{
		{Name: "dashboard", Pattern: PathDashboard, Policy: RequireAuth},
		{Name: "signup", Pattern: PathSignup, Policy: RedirectIfAuthenticated},
		{Name: "login", Pattern: PathLogin, Policy: RedirectIfAuthenticated},
		{Name: "verify-email", Pattern: PathVerifyEmail, Policy: Public},
		{Name: "forgot-password", Pattern: PathForgot, Policy: RedirectIfAuthenticated},
		{Name: "reset-password", Pattern: PathReset, Policy: RedirectIfAuthenticated},
	}
}

type Table struct {
	routes   []Route
	fallback string
}

// NewTable returns a table that sends unmatched paths to fallback.
func NewTable(routes []Route, fallback string) *Table {
	return &Table{routes: routes, fallback: fallback}
}

type Resolution struct {
	Route    *Route
	Params   map[string]string
	Decision Decision
}

func (t *Table) Resolve(path string, s authstore.State) Resolution {
	path = cleanPath(path)
	for i := range t.routes {
		r := &t.routes[i]
		if params, ok := match(r.Pattern, path); ok {
			return Resolution{Route: r, Params: params, Decision: r.Policy(s)}
		}
	}
	if s.IsCheckingAuth {
		return Resolution{Decision: Decision{Outcome: Pending}}
	}
	return Resolution{Decision: Decision{Outcome: Redirect, To: t.fallback}}
}

func cleanPath(p string) string {
	if i := strings.IndexAny(p, "?#"); i >= 0 {
		p = p[:i]
	}
	if p == "" {
		return "/"
	}
	if len(p) > 1 {
		p = strings.TrimRight(p, "/")
	}
	return p
}

// match compares slash-separated segments; ":name" captures one segment.
func match(pattern, path string) (map[string]string, bool) {
	ps := strings.Split(strings.Trim(pattern, "/"), "/")
	xs := strings.Split(strings.Trim(path, "/"), "/")
	if len(ps) != len(xs) {
		return nil, false
	}
	var params map[string]string
	for i, seg := range ps {
		if strings.HasPrefix(seg, ":") {
			if xs[i] == "" {
				return nil, false
			}
			if params == nil {
				params = make(map[string]string)
			}
			params[seg[1:]] = xs[i]
			continue
		}
		if seg != xs[i] {
			return nil, false
		}
	}
	return params, true
}
