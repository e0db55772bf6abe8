package router

import (
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"

	"github.com/Makepad-fr/tada/internal/model"
	"github.com/Makepad-fr/tada/internal/store/tokenstore"
)

func TestGuardNoToken(t *testing.T) {
	g := Guard{Tokens: tokenstore.NewMemory(nil)}
	if s := g.State(); s != Unauthenticated {
		t.Fatalf("State() = %v", s)
	}
	target, redirected := g.Resolve(Home)
	if target != Login || !redirected {
		t.Fatalf("Resolve(/) = %q, %v; want /login, true", target, redirected)
	}
	for _, p := range []string{Login, Register} {
		if target, redirected := g.Resolve(p); target != p || redirected {
			t.Errorf("Resolve(%q) = %q, %v", p, target, redirected)
		}
	}
}

func TestGuardWithToken(t *testing.T) {
	g := Guard{Tokens: tokenstore.NewMemory(&model.TokenPair{Access: "opaque", Refresh: "r"})}
	if s := g.State(); s != Authenticated {
		t.Fatalf("State() = %v", s)
	}
	if target, redirected := g.Resolve(Home); target != Home || redirected {
		t.Fatalf("Resolve(/) = %q, %v", target, redirected)
	}
}

func TestGuardExpiredPair(t *testing.T) {
	now := time.Now()
	stale, err := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.RegisteredClaims{
		ExpiresAt: jwt.NewNumericDate(now.Add(-time.Minute)),
	}).SignedString([]byte("k"))
	if err != nil {
		t.Fatal(err)
	}
	g := Guard{
		Tokens: tokenstore.NewMemory(&model.TokenPair{Access: stale, Refresh: stale}),
		Now:    func() time.Time { return now },
	}
	if target, _ := g.Resolve(Home); target != Login {
		t.Fatalf("Resolve(/) with expired pair = %q, want /login", target)
	}
}

func TestClean(t *testing.T) {
	cases := map[string]string{
		"":           Home,
		"/":          Home,
		"login":      Login,
		"/login/":    Login,
		" /register": Register,
		"/nowhere":   Home,
	}
	for in, want := range cases {
		if got := Clean(in); got != want {
			t.Errorf("Clean(%q) = %q, want %q", in, got, want)
		}
	}
	if !Protected("/") || Protected("/login") {
		t.Error("Protected() mismatch")
	}
}

func TestRouterNavigate(t *testing.T) {
	store := tokenstore.NewMemory(nil)
	r := New(Guard{Tokens: store})
	var seen []string
	r.OnNavigate(func(p string) { seen = append(seen, p) })

	if got := r.Navigate(Home); got != Login {
		t.Fatalf("Navigate(/) logged out = %q", got)
	}
	_ = store.Save(model.TokenPair{Access: "opaque"})
	if got := r.Navigate(Home); got != Home {
		t.Fatalf("Navigate(/) logged in = %q", got)
	}
	if r.Current() != Home {
		t.Fatalf("Current() = %q", r.Current())
	}
	if len(seen) != 2 || seen[0] != Login || seen[1] != Home {
		t.Fatalf("listeners saw %v", seen)
	}
}

func TestRouterRemoveListener(t *testing.T) {
	r := New(Guard{Tokens: tokenstore.NewMemory(nil)})
	var a, b int
	removeA := r.OnNavigate(func(string) { a++ })
	r.OnNavigate(func(string) { b++ })

	r.Navigate(Login)
	removeA()
	removeA()
	r.Navigate(Register)

	if a != 1 || b != 2 {
		t.Fatalf("calls a=%d b=%d, want 1 and 2", a, b)
	}
}
