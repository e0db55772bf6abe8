// Package tui is the interactive client: a header over one of the login,
// register or to-do screens, switched by the router.
//
// Session and API calls never run inside Update. They run in tea.Cmds, and
// navigation comes back to the event loop through a channel.
package tui

import (
	"context"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/sirupsen/logrus"

	"github.com/Makepad-fr/tada/internal/router"
	"github.com/Makepad-fr/tada/internal/session"
	"github.com/Makepad-fr/tada/internal/todos"
	"github.com/Makepad-fr/tada/internal/ui"
)

// Deps is everything the views call into.
type Deps struct {
	Session *session.Session
	Router  *router.Router
	Todos   todos.API
}

type navigateMsg struct{ path string }

// screen is one routed view. Close cancels whatever it still has in flight.
type screen interface {
	Init() tea.Cmd
	Update(tea.Msg) (screen, tea.Cmd)
	View() string
	Close()
}

type app struct {
	deps Deps
	ctx  context.Context
	nav  chan string
	log  *logrus.Entry

	quit     chan struct{}
	unlisten func()

	path   string
	scr    screen
	width  int
	height int
}

// Run starts the program at path and blocks until the user quits or ctx ends.
func Run(ctx context.Context, deps Deps, path string) error {
	m := newApp(ctx, deps, path)
	defer m.close()
	p := tea.NewProgram(m, tea.WithAltScreen(), tea.WithContext(ctx))
	_, err := p.Run()
	return err
}

func newApp(ctx context.Context, deps Deps, path string) *app {
	m := &app{
		deps: deps,
		ctx:  ctx,
		nav:  make(chan string, 16),
		log:  logrus.WithField("component", "tui"),
		quit: make(chan struct{}),
	}
	m.path = deps.Router.Navigate(path)
	m.unlisten = deps.Router.OnNavigate(func(p string) {
		select {
		case m.nav <- p:
		case <-m.quit:
		case <-ctx.Done():
		}
	})
	m.scr = m.screenFor(m.path)
	return m
}

// close detaches the app from the router and tears down the current screen.
// Navigations after close, from the refresh timer for instance, never block.
func (m *app) close() {
	m.unlisten()
	close(m.quit)
	m.scr.Close()
}

func (m *app) screenFor(path string) screen {
	ctx, cancel := context.WithCancel(m.ctx)
	switch path {
	case router.Login:
		return newAuthForm(ctx, cancel, m.deps.Session, loginMode)
	case router.Register:
		return newAuthForm(ctx, cancel, m.deps.Session, registerMode)
	default:
		return newTodoScreen(ctx, cancel, todos.New(m.deps.Todos))
	}
}

func (m *app) waitForNav() tea.Cmd {
	return func() tea.Msg {
		select {
		case p := <-m.nav:
			return navigateMsg{path: p}
		case <-m.ctx.Done():
			return nil
		}
	}
}

func (m *app) Init() tea.Cmd {
	return tea.Batch(m.waitForNav(), m.scr.Init())
}

func (m *app) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		m.width, m.height = msg.Width, msg.Height
		var cmd tea.Cmd
		m.scr, cmd = m.scr.Update(m.inner())
		return m, cmd

	case navigateMsg:
		cmds := []tea.Cmd{m.waitForNav()}
		if msg.path != m.path {
			m.log.WithFields(logrus.Fields{"from": m.path, "to": msg.path}).Debug("switch screen")
			m.scr.Close()
			m.path = msg.path
			m.scr = m.screenFor(msg.path)
			cmds = append(cmds, m.scr.Init())
			if m.width > 0 {
				var cmd tea.Cmd
				m.scr, cmd = m.scr.Update(m.inner())
				cmds = append(cmds, cmd)
			}
		}
		return m, tea.Batch(cmds...)

	case tea.KeyMsg:
		switch msg.String() {
		case "ctrl+c":
			m.scr.Close()
			return m, tea.Quit
		case "ctrl+g":
			return m, m.navigate(router.Home)
		case "ctrl+l":
			if m.deps.Session.Tokens() != nil {
				return m, m.logout("")
			}
			return m, m.navigate(router.Login)
		case "ctrl+r":
			return m, m.logout(router.Register)
		}
	}

	var cmd tea.Cmd
	m.scr, cmd = m.scr.Update(msg)
	return m, cmd
}

func (m *app) View() string {
	return ui.Box(header(m.path, m.deps.Session.User(), m.deps.Session.Tokens() != nil) + "\n\n" + m.scr.View())
}

// inner is the size left for a screen inside the frame and under the header.
func (m *app) inner() tea.WindowSizeMsg {
	return tea.WindowSizeMsg{Width: max(m.width-4, 20), Height: max(m.height-5, 5)}
}

func (m *app) navigate(path string) tea.Cmd {
	r := m.deps.Router
	return func() tea.Msg {
		r.Navigate(path)
		return nil
	}
}

// logout then, when then is set, navigate there; like the Register link.
func (m *app) logout(then string) tea.Cmd {
	s, r := m.deps.Session, m.deps.Router
	return func() tea.Msg {
		_ = s.Logout()
		if then != "" {
			r.Navigate(then)
		}
		return nil
	}
}
