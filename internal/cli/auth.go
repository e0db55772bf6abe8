package cli

import (
	"context"
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"golang.org/x/term"

	"github.com/Makepad-fr/tada/internal/api"
	"github.com/Makepad-fr/tada/internal/claims"
	"github.com/Makepad-fr/tada/internal/model"
	"github.com/Makepad-fr/tada/internal/session"
	"github.com/Makepad-fr/tada/internal/store/tokenstore"
	"github.com/Makepad-fr/tada/internal/ui"
)

// readPassword reads without echo from a terminal, or a plain line otherwise.
func (r *runner) readPassword(prompt string) (string, error) {
	if f, ok := r.in.(*os.File); ok && term.IsTerminal(int(f.Fd())) {
		fmt.Fprint(r.out, prompt)
		b, err := term.ReadPassword(int(f.Fd()))
		fmt.Fprintln(r.out)
		return string(b), err
	}
	return r.readLine(prompt)
}

func (r *runner) credentials(args []string) (model.Credentials, error) {
	var c model.Credentials
	if len(args) > 0 {
		c.Username = args[0]
	} else {
		u, err := r.readLine("Username: ")
		if err != nil {
			return c, fmt.Errorf("read username: %w", err)
		}
		c.Username = u
	}
	c.Username = strings.TrimSpace(c.Username)
	p, err := r.readPassword("Password: ")
	if err != nil {
		return c, fmt.Errorf("read password: %w", err)
	}
	c.Password = p
	return c, c.Validate()
}

func (r *runner) doAuthLogin(ctx context.Context, args []string) int {
	if r.store.Source() == tokenstore.SourceEnv {
		ui.Fail(r.err, "token is provided by TADA_TOKEN env var; unset it to log in")
		return 2
	}
	creds, err := r.credentials(args)
	if err != nil {
		ui.Fail(r.err, err.Error())
		return 2
	}
	if err := r.sess.Login(ctx, creds); err != nil {
		if errors.Is(err, api.ErrBadCredentials) {
			ui.Fail(r.err, "invalid username or password")
			return 1
		}
		ui.Fail(r.err, describe(err))
		return 1
	}
	ui.OK(r.out, "logged in as "+displayName(r.sess.User(), creds.Username))
	return 0
}

func (r *runner) doAuthRegister(ctx context.Context, args []string) int {
	creds, err := r.credentials(args)
	if err != nil {
		ui.Fail(r.err, err.Error())
		return 2
	}
	if err := r.sess.Register(ctx, creds); err != nil {
		msg := "Try again"
		var se *api.StatusError
		if errors.As(err, &se) && strings.TrimSpace(se.Body) != "" {
			msg += ": " + ui.Truncate(strings.TrimSpace(se.Body), 200)
		} else if !errors.As(err, &se) {
			msg += ": " + describe(err)
		}
		ui.Fail(r.err, msg)
		return 1
	}
	ui.OK(r.out, "registered "+creds.Username)
	ui.Hint(r.out, "Run: tada auth login "+creds.Username)
	return 0
}

func (r *runner) doAuthLogout() int {
	if r.store.Source() == tokenstore.SourceEnv {
		ui.OK(r.out, "token is provided by TADA_TOKEN env var (nothing to delete)")
		return 0
	}
	if err := r.sess.Logout(); err != nil {
		ui.Fail(r.err, "logout: "+err.Error())
		return 1
	}
	ui.OK(r.out, "logged out")
	return 0
}

func (r *runner) doAuthStatus() int {
	pair, err := r.store.Load()
	if err != nil {
		ui.Fail(r.err, "load tokens: "+err.Error())
		return 1
	}
	if pair == nil {
		fmt.Fprintln(r.out, ui.Current().Muted.Render("not logged in"))
		fmt.Fprintln(r.out, "Run: tada auth login")
		return 0
	}
	fmt.Fprintf(r.out, "source:  %s\n", r.store.Source())
	if r.store.Source() == tokenstore.SourceFile {
		fmt.Fprintf(r.out, "file:    %s\n", r.store.Path)
	}
	fmt.Fprintf(r.out, "state:   %s\n", r.router.Guard().State())
	fmt.Fprintf(r.out, "access:  %s\n", expiry(pair.Access))
	if pair.Refresh != "" {
		fmt.Fprintf(r.out, "refresh: %s\n", expiry(pair.Refresh))
	} else {
		fmt.Fprintln(r.out, "refresh: (none)")
	}
	fmt.Fprintln(r.out, "env override: "+tokenstore.EnvToken)
	return 0
}

// whoami decodes the access token locally (unsigned); opaque tokens print basic info.
func (r *runner) doAuthWhoAmI() int {
	pair := r.sess.Tokens()
	if pair == nil {
		ui.Fail(r.err, "not logged in. Run: tada auth login")
		return 2
	}
	u, err := claims.Decode(pair.Access)
	if err != nil {
		fmt.Fprintln(r.out, "Opaque token (cannot introspect locally).")
		fmt.Fprintln(r.out, "source:", r.store.Source())
		return 0
	}
	t := ui.Current()
	lines := []string{t.Title.Render(displayName(u, "(unknown)"))}
	add := func(k, v string) {
		if v != "" {
			lines = append(lines, t.Muted.Render(fmt.Sprintf("%-8s", k))+" "+v)
		}
	}
	add("user id", u.UserID)
	add("type", u.TokenType)
	add("jti", u.TokenID)
	if u.IssuedAt != nil {
		add("issued", u.IssuedAt.UTC().Format(time.RFC3339))
	}
	add("access", expiry(pair.Access))
	ui.Panel(r.out, lines)
	return 0
}

func (r *runner) doAuthRefresh(ctx context.Context) int {
	err := r.sess.Refresh(ctx)
	switch {
	case err == nil:
		ui.OK(r.out, "refreshed; access "+expiry(r.sess.AccessToken()))
		return 0
	case errors.Is(err, session.ErrNotLoggedIn):
		ui.Fail(r.err, "not logged in. Run: tada auth login")
		return 2
	case errors.Is(err, session.ErrNoRefreshToken):
		ui.Fail(r.err, "no refresh token (token from "+string(r.store.Source())+")")
		return 1
	case errors.Is(err, session.ErrSessionExpired):
		ui.Fail(r.err, "session expired, logged out. Run: tada auth login")
		return 1
	}
	ui.Fail(r.err, describe(err))
	return 1
}

func expiry(token string) string {
	exp := claims.ExpiresAt(token)
	if exp == nil {
		return "expires (unknown)"
	}
	s := "expires " + exp.UTC().Format(time.RFC3339)
	if d := time.Until(*exp); d <= 0 {
		s += " (expired)"
	} else {
		s += fmt.Sprintf(" (in %s)", d.Round(time.Second))
	}
	return s
}

func displayName(u *model.User, fallback string) string {
	if u != nil && u.Username != "" {
		return u.Username
	}
	return fallback
}

// describe renders an API or session error for the terminal.
func describe(err error) string {
	switch {
	case errors.Is(err, session.ErrSessionExpired):
		return "session expired. Run: tada auth login"
	case errors.Is(err, api.ErrUnauthorized):
		return "not authorized; your session may have expired. Run: tada auth login"
	case errors.Is(err, api.ErrNetwork):
		return "cannot reach the server: " + err.Error()
	}
	return err.Error()
}
