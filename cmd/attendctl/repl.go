package main

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"strings"

	"attendance/internal/authstore"
	"attendance/internal/routeguard"
)

// maxRedirects bounds guard redirect chains.
const maxRedirects = 5

type app struct {
	store        *authstore.Store
	table        *routeguard.Table
	in           *bufio.Reader
	out          io.Writer
	readPassword func() ([]byte, error)

	path   string
	params map[string]string
}

// boot resolves the session state and renders the first page. A transport
// failure is reported and the session treated as signed out.
func (a *app) boot(ctx context.Context) {
	if err := a.store.CheckAuth(ctx); err != nil {
		fmt.Fprintln(a.out, "error: session check failed:", err)
	}
	a.navigate(a.path)
}

// run reads commands until EOF, exit or ctx is done.
func (a *app) run(ctx context.Context) {
	for ctx.Err() == nil {
		fmt.Fprintf(a.out, "attend %s> ", a.path)
		line, err := a.in.ReadString('\n')
		if err != nil && (!errors.Is(err, io.EOF) || strings.TrimSpace(line) == "") {
			return
		}
		parts := strings.Fields(line)
		if len(parts) == 0 {
			continue
		}

		switch parts[0] {
		case "help":
			a.help()
		case "open", "go":
			if len(parts) < 2 {
				fmt.Fprintln(a.out, "usage: open <path>")
				continue
			}
			a.navigate(parts[1])
		case "status", "whoami":
			a.status()
		case "signup":
			a.signup(ctx)
		case "verify":
			a.verify(ctx, parts[1:])
		case "resend":
			a.resend(ctx)
		case "login":
			a.login(ctx)
		case "logout":
			_ = a.store.Logout(ctx)
			a.report()
			a.navigate(routeguard.PathLogin)
		case "forgot":
			a.forgot(ctx)
		case "reset":
			a.reset(ctx, parts[1:])
		case "exit", "quit":
			fmt.Fprintln(a.out, "Bye!")
			return
		default:
			fmt.Fprintln(a.out, "Unknown command:", parts[0])
		}
	}
}

func (a *app) help() {
	fmt.Fprintln(a.out, "Available commands: open <path>, status, signup, verify [code], resend, login, logout, forgot, reset [token], exit")
	fmt.Fprintln(a.out, "Pages: / /signup /login /verify-email /forgot-password /reset-password/<token>")
}

// navigate follows route guard redirects from path and renders the page it
// settles on.
func (a *app) navigate(path string) {
	for i := 0; i < maxRedirects; i++ {
		res := a.table.Resolve(path, a.store.State())
		switch res.Decision.Outcome {
		case routeguard.Pending:
			a.path = path
			fmt.Fprintln(a.out, "checking session...")
			return
		case routeguard.Redirect:
			fmt.Fprintf(a.out, "%s -> %s\n", path, res.Decision.To)
			path = res.Decision.To
		case routeguard.Render:
			a.path = path
			a.params = res.Params
			a.render(res.Route)
			return
		}
	}
	fmt.Fprintln(a.out, "too many redirects")
}

func (a *app) render(r *routeguard.Route) {
	st := a.store.State()
	switch r.Name {
	case "dashboard":
		fmt.Fprintf(a.out, "Dashboard: welcome, %s <%s>\n", st.User.Name, st.User.Email)
	case "verify-email":
		fmt.Fprintln(a.out, "Verify your email: run `verify <code>` with the 6-digit code we sent")
	case "reset-password":
		fmt.Fprintln(a.out, "Choose a new password: run `reset`")
	default:
		fmt.Fprintf(a.out, "Page %s: run `%s`\n", r.Name, strings.SplitN(r.Name, "-", 2)[0])
	}
}

func (a *app) status() {
	st := a.store.State()
	if !st.IsAuthenticated || st.User == nil {
		fmt.Fprintln(a.out, "not signed in")
		return
	}
	fmt.Fprintf(a.out, "%s <%s> verified=%t\n", st.User.Name, st.User.Email, st.User.IsVerified)
}

// report prints the outcome of the last store action.
func (a *app) report() {
	st := a.store.State()
	if st.Error != "" {
		fmt.Fprintln(a.out, "error:", st.Error)
		return
	}
	if st.Message != "" {
		fmt.Fprintln(a.out, st.Message)
	}
}

func (a *app) signup(ctx context.Context) {
	name, err := a.prompt("Name")
	if err != nil {
		return
	}
	email, err := a.prompt("Email")
	if err != nil {
		return
	}
	password, err := a.password()
	if err != nil {
		return
	}
	err = a.store.Signup(ctx, name, email, password)
	a.report()
	if err == nil {
		a.navigate(routeguard.PathVerifyEmail)
	}
}

func (a *app) verify(ctx context.Context, args []string) {
	var code string
	if len(args) > 0 {
		code = args[0]
	} else {
		var err error
		if code, err = a.prompt("Verification code"); err != nil {
			return
		}
	}
	err := a.store.VerifyEmail(ctx, code)
	a.report()
	if err == nil {
		a.navigate(routeguard.PathDashboard)
	}
}

func (a *app) resend(ctx context.Context) {
	email := ""
	if st := a.store.State(); st.User != nil {
		email = st.User.Email
	}
	if email == "" {
		var err error
		if email, err = a.prompt("Email"); err != nil {
			return
		}
	}
	_ = a.store.ResendVerification(ctx, email)
	a.report()
}

func (a *app) login(ctx context.Context) {
	email, err := a.prompt("Email")
	if err != nil {
		return
	}
	password, err := a.password()
	if err != nil {
		return
	}
	err = a.store.Login(ctx, email, password)
	a.report()
	if err == nil {
		a.navigate(routeguard.PathDashboard)
	}
}

func (a *app) forgot(ctx context.Context) {
	email, err := a.prompt("Email")
	if err != nil {
		return
	}
	_ = a.store.ForgotPassword(ctx, email)
	a.report()
}

func (a *app) reset(ctx context.Context, args []string) {
	token := a.params["token"]
	if len(args) > 0 {
		token = args[0]
	}
	if token == "" {
		var err error
		if token, err = a.prompt("Reset token"); err != nil {
			return
		}
	}
	password, err := a.password()
	if err != nil {
		return
	}
	err = a.store.ResetPassword(ctx, token, password)
	a.report()
	if err == nil {
		a.navigate(routeguard.PathLogin)
	}
}

func (a *app) prompt(label string) (string, error) {
	fmt.Fprintf(a.out, "%s: ", label)
	line, err := a.in.ReadString('\n')
	if err != nil && !(errors.Is(err, io.EOF) && line != "") {
		return "", err
	}
	return strings.TrimSpace(line), nil
}

func (a *app) password() (string, error) {
	fmt.Fprint(a.out, "Password: ")
	pw, err := a.readPassword()
	fmt.Fprintln(a.out)
	if err != nil {
		fmt.Fprintln(a.out, "error:", err)
		return "", err
	}
	return string(pw), nil
}
