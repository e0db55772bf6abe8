package tui

import (
	"context"
	"strings"
	"testing"
	"time"

	tea "github.com/charmbracelet/bubbletea"

	"github.com/Makepad-fr/tada/internal/api"
	"github.com/Makepad-fr/tada/internal/apitest"
	"github.com/Makepad-fr/tada/internal/model"
	"github.com/Makepad-fr/tada/internal/router"
	"github.com/Makepad-fr/tada/internal/session"
	"github.com/Makepad-fr/tada/internal/store/tokenstore"
)

type fixture struct {
	srv   *apitest.Server
	store *tokenstore.Memory
	deps  Deps
}

func newFixture(t *testing.T, loggedIn bool) *fixture {
	t.Helper()
	srv := apitest.New(t)
	srv.AddUser("a", "b")
	var stored *model.TokenPair
	if loggedIn {
		p := srv.Pair("a")
		stored = &p
	}
	store := tokenstore.NewMemory(stored)
	r := router.New(router.Guard{Tokens: store})
	client, err := api.New(srv.APIURL())
	if err != nil {
		t.Fatal(err)
	}
	sess, err := session.New(store, client, r)
	if err != nil {
		t.Fatal(err)
	}
	client.SetTokenSource(sess)
	t.Cleanup(sess.Close)
	return &fixture{srv: srv, store: store, deps: Deps{Session: sess, Router: r, Todos: client}}
}

func runes(s string) tea.KeyMsg { return tea.KeyMsg{Type: tea.KeyRunes, Runes: []rune(s)} }

// exec runs a command that is known not to be a batch.
func exec(t *testing.T, cmd tea.Cmd) tea.Msg {
	t.Helper()
	if cmd == nil {
		t.Fatal("expected a command")
	}
	return cmd()
}

func nextNav(t *testing.T, m *app) string {
	t.Helper()
	select {
	case p := <-m.nav:
		return p
	case <-time.After(2 * time.Second):
		t.Fatal("no navigation")
		return ""
	}
}

func TestStartRedirectsToLogin(t *testing.T) {
	f := newFixture(t, false)
	m := newApp(context.Background(), f.deps, router.Home)
	if m.path != router.Login {
		t.Fatalf("path = %q, want /login", m.path)
	}
	if _, ok := m.scr.(*authForm); !ok {
		t.Fatalf("screen = %T, want *authForm", m.scr)
	}
	if v := m.View(); !strings.Contains(v, "Login") || !strings.Contains(v, "Register") {
		t.Fatalf("View() = %q", v)
	}
}

func TestStartWithTokenRendersList(t *testing.T) {
	f := newFixture(t, true)
	m := newApp(context.Background(), f.deps, router.Home)
	if m.path != router.Home {
		t.Fatalf("path = %q, want /", m.path)
	}
	if _, ok := m.scr.(*todoScreen); !ok {
		t.Fatalf("screen = %T, want *todoScreen", m.scr)
	}
	m.Update(tea.WindowSizeMsg{Width: 100, Height: 30})
	if v := m.View(); !strings.Contains(v, "signed in as") || !strings.Contains(v, "Logout") {
		t.Fatalf("header missing user: %q", v)
	}
}

func TestLoginFormFlow(t *testing.T) {
	f := newFixture(t, false)
	m := newApp(context.Background(), f.deps, router.Home)
	form := m.scr.(*authForm)

	m.Update(runes("a"))
	m.Update(tea.KeyMsg{Type: tea.KeyTab})
	m.Update(runes("wrong"))
	_, cmd := m.Update(tea.KeyMsg{Type: tea.KeyEnter})
	if !form.busy {
		t.Fatal("form not busy after submit")
	}
	m.Update(exec(t, cmd))
	if form.errMsg != "invalid username or password" {
		t.Fatalf("errMsg = %q", form.errMsg)
	}
	if form.inputs[1].Value() != "" {
		t.Error("password not cleared after failure")
	}

	m.Update(runes("b"))
	_, cmd = m.Update(tea.KeyMsg{Type: tea.KeyEnter})
	m.Update(exec(t, cmd))
	if form.errMsg != "" {
		t.Fatalf("errMsg = %q after good login", form.errMsg)
	}
	if p, _ := f.store.Load(); p == nil {
		t.Fatal("tokens not stored")
	}

	path := nextNav(t, m)
	if path != router.Home {
		t.Fatalf("navigated to %q, want /", path)
	}
	m.Update(navigateMsg{path: path})
	if _, ok := m.scr.(*todoScreen); !ok {
		t.Fatalf("screen = %T after login", m.scr)
	}
	if form.ctx.Err() == nil {
		t.Error("login screen context not cancelled on teardown")
	}
}

func TestLoginFormValidatesLocally(t *testing.T) {
	f := newFixture(t, false)
	m := newApp(context.Background(), f.deps, router.Login)
	form := m.scr.(*authForm)
	before := f.srv.Requests()

	m.Update(tea.KeyMsg{Type: tea.KeyTab})
	if _, cmd := m.Update(tea.KeyMsg{Type: tea.KeyEnter}); cmd != nil {
		t.Fatal("submit with empty fields produced a command")
	}
	if form.errMsg != model.ErrEmptyUsername.Error() {
		t.Fatalf("errMsg = %q", form.errMsg)
	}
	if f.srv.Requests() != before {
		t.Fatal("request sent")
	}
}

func TestRegisterFailureAlerts(t *testing.T) {
	f := newFixture(t, false)
	m := newApp(context.Background(), f.deps, router.Register)
	form := m.scr.(*authForm)
	if form.mode != registerMode {
		t.Fatal("register screen not in register mode")
	}

	m.Update(runes("a")) // already exists
	m.Update(tea.KeyMsg{Type: tea.KeyTab})
	m.Update(runes("pw"))
	_, cmd := m.Update(tea.KeyMsg{Type: tea.KeyEnter})
	m.Update(exec(t, cmd))
	if !strings.HasPrefix(form.errMsg, "Try again") {
		t.Fatalf("errMsg = %q", form.errMsg)
	}
}

func TestTodoScreenCRUD(t *testing.T) {
	f := newFixture(t, true)
	m := newApp(context.Background(), f.deps, router.Home)
	m.Update(tea.WindowSizeMsg{Width: 100, Height: 30})
	s := m.scr.(*todoScreen)

	m.Update(exec(t, s.fetch()))
	if s.loading || len(s.list.Items()) != 0 {
		t.Fatalf("after fetch: loading=%v items=%d", s.loading, len(s.list.Items()))
	}

	m.Update(runes("a"))
	if !s.adding {
		t.Fatal("not in add mode")
	}
	m.Update(runes("buy milk"))
	_, cmd := m.Update(tea.KeyMsg{Type: tea.KeyEnter})
	m.Update(exec(t, cmd))
	items := s.todos.Items()
	if len(items) != 1 || items[0].Title != "buy milk" || items[0].Completed {
		t.Fatalf("after add: %+v", items)
	}
	if !strings.Contains(m.View(), "buy milk") {
		t.Fatalf("View() missing item: %q", m.View())
	}

	_, cmd = m.Update(runes(" "))
	m.Update(exec(t, cmd))
	if items := s.todos.Items(); !items[0].Completed {
		t.Fatalf("after toggle: %+v", items)
	}
	if !strings.Contains(s.list.Title, "1") {
		t.Errorf("title counts not refreshed: %q", s.list.Title)
	}

	_, cmd = m.Update(runes("d"))
	m.Update(exec(t, cmd))
	if items := s.todos.Items(); len(items) != 0 {
		t.Fatalf("after delete: %+v", items)
	}
	if len(s.list.Items()) != 0 {
		t.Fatal("list widget not synced")
	}
}

func TestTodoScreenShowsErrors(t *testing.T) {
	f := newFixture(t, false)
	_ = f.store.Save(model.TokenPair{Access: "garbage"})
	m := newApp(context.Background(), f.deps, router.Home)
	s, ok := m.scr.(*todoScreen)
	if !ok {
		t.Fatalf("screen = %T", m.scr)
	}
	m.Update(exec(t, s.fetch()))
	if !strings.Contains(s.errMsg, "not authorized") {
		t.Fatalf("errMsg = %q", s.errMsg)
	}

	m.Update(runes("a"))
	_, cmd := m.Update(tea.KeyMsg{Type: tea.KeyEnter})
	if cmd != nil {
		t.Fatal("empty title produced a command")
	}
	if s.errMsg != "Title cannot be empty" {
		t.Fatalf("errMsg = %q", s.errMsg)
	}
}

func TestLogoutKey(t *testing.T) {
	f := newFixture(t, true)
	m := newApp(context.Background(), f.deps, router.Home)
	old := m.scr.(*todoScreen)

	_, cmd := m.Update(tea.KeyMsg{Type: tea.KeyCtrlL})
	exec(t, cmd)
	if p, _ := f.store.Load(); p != nil {
		t.Fatal("tokens still stored after logout")
	}
	path := nextNav(t, m)
	if path != router.Login {
		t.Fatalf("navigated to %q", path)
	}
	m.Update(navigateMsg{path: path})
	if _, ok := m.scr.(*authForm); !ok {
		t.Fatalf("screen = %T", m.scr)
	}
	if old.ctx.Err() == nil {
		t.Error("todo screen context not cancelled")
	}
	if !strings.Contains(m.View(), "Login") {
		t.Fatal("header does not offer Login")
	}
}

func TestRegisterLinkLogsOutFirst(t *testing.T) {
	f := newFixture(t, true)
	m := newApp(context.Background(), f.deps, router.Home)

	_, cmd := m.Update(tea.KeyMsg{Type: tea.KeyCtrlR})
	exec(t, cmd)
	if f.deps.Session.Tokens() != nil {
		t.Fatal("register link did not log out")
	}
	if first, second := nextNav(t, m), nextNav(t, m); first != router.Login || second != router.Register {
		t.Fatalf("navigations = %q, %q", first, second)
	}
}

func TestHomeKeyWhileLoggedOutStaysOnLogin(t *testing.T) {
	f := newFixture(t, false)
	m := newApp(context.Background(), f.deps, router.Login)
	_, cmd := m.Update(tea.KeyMsg{Type: tea.KeyCtrlG})
	exec(t, cmd)
	if p := nextNav(t, m); p != router.Login {
		t.Fatalf("navigated to %q, want /login", p)
	}
}

func TestClosedAppNeverBlocksNavigation(t *testing.T) {
	f := newFixture(t, true)
	m := newApp(context.Background(), f.deps, router.Home)
	scr := m.scr.(*todoScreen)
	m.close()
	if scr.ctx.Err() == nil {
		t.Error("screen context not cancelled on close")
	}

	done := make(chan struct{})
	go func() {
		defer close(done)
		for i := 0; i < 2*cap(m.nav); i++ {
			f.deps.Router.Navigate(router.Login)
		}
		_ = f.deps.Session.Logout()
	}()
	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("navigation blocked after the app closed")
	}
	if n := len(m.nav); n != 0 {
		t.Fatalf("%d navigations delivered to a closed app", n)
	}
}
