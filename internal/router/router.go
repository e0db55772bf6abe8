// Package router tracks the current view and gates protected ones.
package router

import (
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/Makepad-fr/tada/internal/claims"
	"github.com/Makepad-fr/tada/internal/model"
)

const (
	Home     = "/"
	Login    = "/login"
	Register = "/register"
)

var protected = map[string]bool{
	Home:     true,
	Login:    false,
	Register: false,
}

// State of the guard.
type State int

const (
	Unauthenticated State = iota
	Authenticated
)

func (s State) String() string {
	if s == Authenticated {
		return "authenticated"
	}
	return "unauthenticated"
}

// TokenLoader is the part of a token store the guard reads.
type TokenLoader interface {
	Load() (*model.TokenPair, error)
}

// Guard decides from local state only, without a server round trip.
type Guard struct {
	Tokens TokenLoader
	Now    func() time.Time
}

// State is Authenticated when a usable pair is stored.
func (g Guard) State() State {
	if g.Tokens == nil {
		return Unauthenticated
	}
	pair, err := g.Tokens.Load()
	if err != nil || pair == nil {
		return Unauthenticated
	}
	now := time.Now
	if g.Now != nil {
		now = g.Now
	}
	if !claims.Usable(pair, now()) {
		return Unauthenticated
	}
	return Authenticated
}

// Resolve maps a requested path to the one to render.
func (g Guard) Resolve(path string) (target string, redirected bool) {
	path = Clean(path)
	if protected[path] && g.State() != Authenticated {
		return Login, true
	}
	return path, false
}

// Clean normalises path; unknown paths become Home.
func Clean(path string) string {
	path = strings.TrimSpace(path)
	if path == "" {
		return Home
	}
	if !strings.HasPrefix(path, "/") {
		path = "/" + path
	}
	if len(path) > 1 {
		path = strings.TrimRight(path, "/")
	}
	if _, known := protected[path]; !known {
		return Home
	}
	return path
}

// Protected reports whether path needs an authenticated session.
func Protected(path string) bool { return protected[Clean(path)] }

// Router holds the current path. Safe for concurrent use.
type Router struct {
	guard Guard
	log   *logrus.Entry

	mu        sync.Mutex
	current   string
	nextID    int
	listeners map[int]func(path string)
}

func New(g Guard) *Router {
	return &Router{
		guard: g,
		log:   logrus.WithField("component", "router"),
	}
}

// Guard returns the guard in use.
func (r *Router) Guard() Guard { return r.guard }

// OnNavigate registers fn to run after every navigation, outside the lock.
// The returned func unregisters it; calling it more than once is fine.
func (r *Router) OnNavigate(fn func(path string)) (remove func()) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.listeners == nil {
		r.listeners = map[int]func(string){}
	}
	id := r.nextID
	r.nextID++
	r.listeners[id] = fn
	return func() {
		r.mu.Lock()
		delete(r.listeners, id)
		r.mu.Unlock()
	}
}

// Navigate resolves path through the guard, makes it current and returns it.
func (r *Router) Navigate(path string) string {
	target, redirected := r.guard.Resolve(path)
	if redirected {
		r.log.WithFields(logrus.Fields{"requested": path, "target": target}).Info("redirect")
	}

	r.mu.Lock()
	r.current = target
	ids := make([]int, 0, len(r.listeners))
	for id := range r.listeners {
		ids = append(ids, id)
	}
	sort.Ints(ids)
	ls := make([]func(string), 0, len(ids))
	for _, id := range ids {
		ls = append(ls, r.listeners[id])
	}
	r.mu.Unlock()

	for _, fn := range ls {
		fn(target)
	}
	return target
}

// Current is the last resolved path, "" before the first navigation.
func (r *Router) Current() string {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.current
}
