package todos_test

import (
	"context"
	"errors"
	"testing"

	"github.com/Makepad-fr/tada/internal/api"
	"github.com/Makepad-fr/tada/internal/apitest"
	"github.com/Makepad-fr/tada/internal/model"
	"github.com/Makepad-fr/tada/internal/router"
	"github.com/Makepad-fr/tada/internal/session"
	"github.com/Makepad-fr/tada/internal/store/tokenstore"
	"github.com/Makepad-fr/tada/internal/todos"
)

func loggedIn(t *testing.T) (*apitest.Server, *todos.List) {
	t.Helper()
	srv := apitest.New(t)
	srv.AddUser("a", "b")
	pair := srv.Pair("a")
	c, err := api.New(srv.APIURL(), api.WithTokenSource(api.TokenSourceFunc(func() string { return pair.Access })))
	if err != nil {
		t.Fatal(err)
	}
	return srv, todos.New(c)
}

func TestScenario(t *testing.T) {
	srv := apitest.New(t)
	srv.AddUser("a", "b")
	store := tokenstore.NewMemory(nil)
	nav := router.New(router.Guard{Tokens: store})
	client, err := api.New(srv.APIURL())
	if err != nil {
		t.Fatal(err)
	}
	sess, err := session.New(store, client, nav)
	if err != nil {
		t.Fatal(err)
	}
	defer sess.Close()
	client.SetTokenSource(sess)
	ctx := context.Background()

	if err := sess.Login(ctx, model.Credentials{Username: "a", Password: "b"}); err != nil {
		t.Fatalf("Login() error = %v", err)
	}
	if p, _ := store.Load(); p == nil {
		t.Fatal("tokens not stored")
	}
	if nav.Current() != router.Home {
		t.Fatalf("Current() = %q, want /", nav.Current())
	}

	list := todos.New(client)
	if err := list.Fetch(ctx); err != nil {
		t.Fatal(err)
	}
	if _, err := list.Add(ctx, "buy milk"); err != nil {
		t.Fatalf("Add() error = %v", err)
	}
	items := list.Items()
	if len(items) != 1 || items[0].Title != "buy milk" || items[0].Completed {
		t.Fatalf("after add: %+v", items)
	}

	if err := list.Toggle(ctx, items[0].ID, items[0].Completed); err != nil {
		t.Fatalf("Toggle() error = %v", err)
	}
	if got := list.Items(); !got[0].Completed {
		t.Fatalf("after toggle: %+v", got)
	}

	if err := list.Delete(ctx, items[0].ID); err != nil {
		t.Fatalf("Delete() error = %v", err)
	}
	if got := list.Items(); len(got) != 0 {
		t.Fatalf("after delete: %+v", got)
	}
	if got := srv.Todos("a"); len(got) != 0 {
		t.Fatalf("server still has %+v", got)
	}
}

func TestToggleIdempotentForSameValue(t *testing.T) {
	_, once := loggedIn(t)
	srv, twice := loggedIn(t)
	ctx := context.Background()

	for _, l := range []*todos.List{once, twice} {
		if _, err := l.Add(ctx, "x"); err != nil {
			t.Fatal(err)
		}
	}
	a, b := once.Items()[0], twice.Items()[0]

	if err := once.Toggle(ctx, a.ID, false); err != nil {
		t.Fatal(err)
	}
	for i := 0; i < 2; i++ {
		if err := twice.Toggle(ctx, b.ID, false); err != nil {
			t.Fatal(err)
		}
	}
	if once.Items()[0].Completed != twice.Items()[0].Completed || !twice.Items()[0].Completed {
		t.Fatalf("once=%+v twice=%+v", once.Items(), twice.Items())
	}
	if got := srv.Todos("a"); len(got) != 1 || !got[0].Completed {
		t.Fatalf("server = %+v", got)
	}
}

func TestEmptyTitleRejectedLocally(t *testing.T) {
	srv, l := loggedIn(t)
	before := srv.Requests()
	_, err := l.Add(context.Background(), "   ")
	if !errors.Is(err, model.ErrEmptyTitle) {
		t.Fatalf("Add() error = %v", err)
	}
	if srv.Requests() != before {
		t.Fatal("request sent for an empty title")
	}
	if !errors.Is(l.Err(), model.ErrEmptyTitle) {
		t.Fatalf("Err() = %v", l.Err())
	}
}

func TestErrorStateSurfacesAndClears(t *testing.T) {
	srv := apitest.New(t)
	c, err := api.New(srv.APIURL(), api.WithTokenSource(api.TokenSourceFunc(func() string { return "expired" })))
	if err != nil {
		t.Fatal(err)
	}
	l := todos.New(c)
	ctx := context.Background()

	if err := l.Fetch(ctx); !errors.Is(err, api.ErrUnauthorized) {
		t.Fatalf("Fetch() error = %v", err)
	}
	if !errors.Is(l.Err(), api.ErrUnauthorized) {
		t.Fatalf("Err() = %v", l.Err())
	}
	if len(l.Items()) != 0 {
		t.Fatal("failed fetch patched the list")
	}
	l.ClearErr()
	if l.Err() != nil {
		t.Fatal("ClearErr() did not clear")
	}
}

func TestFailedDeleteKeepsItem(t *testing.T) {
	_, l := loggedIn(t)
	ctx := context.Background()
	if _, err := l.Add(ctx, "keep"); err != nil {
		t.Fatal(err)
	}
	if err := l.Delete(ctx, 9999); !errors.Is(err, api.ErrNotFound) {
		t.Fatalf("Delete() error = %v", err)
	}
	if len(l.Items()) != 1 {
		t.Fatal("failed delete dropped an item")
	}
}

func TestAt(t *testing.T) {
	_, l := loggedIn(t)
	ctx := context.Background()
	for _, title := range []string{"one", "two"} {
		if _, err := l.Add(ctx, title); err != nil {
			t.Fatal(err)
		}
	}
	got, err := l.At(2)
	if err != nil || got.Title != "two" {
		t.Fatalf("At(2) = %+v, %v", got, err)
	}
	var ie *todos.IndexError
	if _, err := l.At(3); !errors.As(err, &ie) || ie.Have != 2 || ie.Got != 3 {
		t.Fatalf("At(3) error = %v", err)
	}
	if d, p := l.Stats(); d != 0 || p != 2 {
		t.Fatalf("Stats() = %d, %d", d, p)
	}
}
