package tui

import (
	"context"
	"errors"
	"strings"

	"github.com/charmbracelet/bubbles/textinput"
	tea "github.com/charmbracelet/bubbletea"

	"github.com/Makepad-fr/tada/internal/api"
	"github.com/Makepad-fr/tada/internal/model"
	"github.com/Makepad-fr/tada/internal/session"
	"github.com/Makepad-fr/tada/internal/ui"
)

type authMode int

const (
	loginMode authMode = iota
	registerMode
)

func (m authMode) title() string {
	if m == registerMode {
		return "Register"
	}
	return "Login"
}

// authDoneMsg carries the result of a login or register submit.
type authDoneMsg struct{ err error }

// authForm is the Login and Register screen: username, password, submit.
type authForm struct {
	ctx    context.Context
	cancel context.CancelFunc
	sess   *session.Session
	mode   authMode

	inputs [2]textinput.Model
	focus  int
	busy   bool
	errMsg string
}

func newAuthForm(ctx context.Context, cancel context.CancelFunc, sess *session.Session, mode authMode) *authForm {
	f := &authForm{ctx: ctx, cancel: cancel, sess: sess, mode: mode}

	user := textinput.New()
	user.Prompt = "Username: "
	user.Placeholder = "Username"
	user.CharLimit = 150

	pass := textinput.New()
	pass.Prompt = "Password: "
	pass.Placeholder = "Password"
	pass.EchoMode = textinput.EchoPassword
	pass.EchoCharacter = '•'
	pass.CharLimit = 128

	f.inputs = [2]textinput.Model{user, pass}
	f.inputs[0].Focus()
	return f
}

func (f *authForm) Init() tea.Cmd { return textinput.Blink }

func (f *authForm) Close() { f.cancel() }

func (f *authForm) credentials() model.Credentials {
	return model.Credentials{
		Username: strings.TrimSpace(f.inputs[0].Value()),
		Password: f.inputs[1].Value(),
	}
}

func (f *authForm) Update(msg tea.Msg) (screen, tea.Cmd) {
	switch msg := msg.(type) {
	case authDoneMsg:
		f.busy = false
		f.errMsg = ""
		if msg.err != nil {
			f.errMsg = describeAuthError(f.mode, msg.err)
			f.inputs[1].SetValue("")
		}
		return f, nil

	case tea.KeyMsg:
		if f.busy {
			return f, nil
		}
		switch msg.String() {
		case "tab", "down":
			return f, f.setFocus(f.focus + 1)
		case "shift+tab", "up":
			return f, f.setFocus(f.focus - 1)
		case "enter":
			if f.focus == 0 {
				return f, f.setFocus(1)
			}
			return f, f.submit()
		case "esc":
			return f, tea.Quit
		}
	}

	var cmd tea.Cmd
	f.inputs[f.focus], cmd = f.inputs[f.focus].Update(msg)
	return f, cmd
}

func (f *authForm) setFocus(i int) tea.Cmd {
	n := len(f.inputs)
	f.focus = ((i % n) + n) % n
	for j := range f.inputs {
		f.inputs[j].Blur()
	}
	return f.inputs[f.focus].Focus()
}

// submit validates locally, then runs the session action off the event loop.
func (f *authForm) submit() tea.Cmd {
	creds := f.credentials()
	if err := creds.Validate(); err != nil {
		f.errMsg = err.Error()
		return nil
	}
	f.busy = true
	f.errMsg = ""
	ctx, sess, mode := f.ctx, f.sess, f.mode
	return func() tea.Msg {
		var err error
		if mode == registerMode {
			err = sess.Register(ctx, creds)
		} else {
			err = sess.Login(ctx, creds)
		}
		return authDoneMsg{err: err}
	}
}

func (f *authForm) View() string {
	t := ui.Current()
	var b strings.Builder
	b.WriteString(t.Title.Render(f.mode.title()))
	b.WriteString("\n\n")
	for i := range f.inputs {
		b.WriteString(f.inputs[i].View())
		b.WriteString("\n")
	}
	b.WriteString("\n")
	switch {
	case f.busy:
		b.WriteString(t.Muted.Render("working..."))
	case f.errMsg != "":
		b.WriteString(t.Error.Render(f.errMsg))
	default:
		b.WriteString(t.Help.Render("enter submit · tab switch field · esc quit"))
	}
	return b.String()
}

func describeAuthError(mode authMode, err error) string {
	switch {
	case errors.Is(err, context.Canceled):
		return "cancelled"
	case errors.Is(err, api.ErrNetwork):
		return "cannot reach the server"
	case mode == loginMode && errors.Is(err, api.ErrBadCredentials):
		return "invalid username or password"
	case mode == registerMode:
		// any register failure reads "Try again"
		var se *api.StatusError
		if errors.As(err, &se) && strings.TrimSpace(se.Body) != "" {
			return "Try again: " + ui.Truncate(strings.TrimSpace(se.Body), 120)
		}
		return "Try again"
	}
	return err.Error()
}
