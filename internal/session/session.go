// Package session owns the authentication lifecycle of one client.
//
// A Session is created explicitly and passed to whatever needs it. It
// caches the stored token pair and the user decoded from it, performs
// login, register, logout and refresh, and runs a background ticker that
// refreshes the pair while a refresh token is present. Close stops it.
package session

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/Makepad-fr/tada/internal/claims"
	"github.com/Makepad-fr/tada/internal/model"
	"github.com/Makepad-fr/tada/internal/router"
	"github.com/Makepad-fr/tada/internal/store/tokenstore"
)

const (
	DefaultRefreshInterval = 4 * time.Minute
	DefaultRefreshTimeout  = 30 * time.Second
)

var (
	// ErrSessionExpired wraps every refresh failure; the session is logged out.
	ErrSessionExpired = errors.New("session expired")
	ErrNotLoggedIn    = errors.New("not logged in")
	ErrNoRefreshToken = errors.New("no refresh token")
)

// AuthAPI is the part of the backend client the session calls.
type AuthAPI interface {
	ObtainToken(ctx context.Context, creds model.Credentials) (model.TokenPair, error)
	RefreshToken(ctx context.Context, refresh string) (model.TokenPair, error)
	Register(ctx context.Context, creds model.Credentials) error
}

// Navigator moves the client to another view.
type Navigator interface {
	Navigate(path string) string
}

type Option func(*Session)

func WithRefreshInterval(d time.Duration) Option {
	return func(s *Session) {
		if d > 0 {
			s.interval = d
		}
	}
}

// WithRefreshTimeout bounds each timer-driven refresh call.
func WithRefreshTimeout(d time.Duration) Option {
	return func(s *Session) {
		if d > 0 {
			s.refreshTimeout = d
		}
	}
}

// WithTicker replaces time.NewTicker for the refresh timer.
func WithTicker(f func(time.Duration) Ticker) Option {
	return func(s *Session) { s.newTicker = f }
}

func WithLogger(l *logrus.Entry) Option { return func(s *Session) { s.log = l } }

func WithClock(now func() time.Time) Option { return func(s *Session) { s.now = now } }

// Session is safe for concurrent use. The timer and manual actions write the
// same cached pair; the last completed write wins. Store writes happen under
// mu together with the cached pair, so the two never disagree.
type Session struct {
	store tokenstore.Store
	api   AuthAPI
	nav   Navigator
	log   *logrus.Entry

	interval       time.Duration
	refreshTimeout time.Duration
	newTicker      func(time.Duration) Ticker
	now            func() time.Time

	mu        sync.Mutex
	tokens    *model.TokenPair
	user      *model.User
	gen       uint64
	stopTimer context.CancelFunc
	closed    bool
	wg        sync.WaitGroup
}

// New restores any stored pair and starts the refresh timer when the pair
// has a refresh token.
func New(store tokenstore.Store, api AuthAPI, nav Navigator, opts ...Option) (*Session, error) {
	s := &Session{
		store:          store,
		api:            api,
		nav:            nav,
		log:            logrus.WithField("component", "session"),
		interval:       DefaultRefreshInterval,
		refreshTimeout: DefaultRefreshTimeout,
		newTicker:      stdTicker,
		now:            time.Now,
	}
	for _, o := range opts {
		o(s)
	}

	pair, err := store.Load()
	if err != nil {
		return nil, fmt.Errorf("restore session: %w", err)
	}
	s.mu.Lock()
	s.setLocked(pair, true)
	s.mu.Unlock()
	if pair != nil {
		s.log.WithField("user", s.username()).Info("session restored")
	}
	return s, nil
}

// ---------------------------------------------------
// accessors
// ---------------------------------------------------

// Tokens returns a copy of the cached pair, nil when logged out.
func (s *Session) Tokens() *model.TokenPair {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.tokens == nil {
		return nil
	}
	p := *s.tokens
	return &p
}

// User returns the claims of the current access token, nil when logged out
// or when the token is opaque.
func (s *Session) User() *model.User {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.user == nil {
		return nil
	}
	u := *s.user
	return &u
}

// AccessToken is read by the API client on every call.
func (s *Session) AccessToken() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.tokens == nil {
		return ""
	}
	return s.tokens.Access
}

// Authenticated reports whether the cached pair is still usable.
func (s *Session) Authenticated() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return claims.Usable(s.tokens, s.now())
}

// Refreshing reports whether the refresh timer is running.
func (s *Session) Refreshing() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.stopTimer != nil
}

func (s *Session) username() string {
	if u := s.User(); u != nil {
		return u.Username
	}
	return ""
}

// ---------------------------------------------------
// actions
// ---------------------------------------------------

// Login exchanges creds for a pair, stores it and navigates home.
// On failure nothing changes and the error is returned; there is no retry.
func (s *Session) Login(ctx context.Context, creds model.Credentials) error {
	log := s.log.WithField("user", creds.Username)
	if err := creds.Validate(); err != nil {
		return err
	}
	pair, err := s.api.ObtainToken(ctx, creds)
	if err != nil {
		log.WithError(err).Warn("login failed")
		return fmt.Errorf("login: %w", err)
	}
	s.mu.Lock()
	if err := s.store.Save(pair); err != nil {
		s.mu.Unlock()
		log.WithError(err).Error("could not persist tokens")
		return fmt.Errorf("login: %w", err)
	}
	s.setLocked(&pair, true)
	s.mu.Unlock()

	log.Info("logged in")
	s.navigate(router.Home)
	return nil
}

// Register creates an account and navigates to the login view.
func (s *Session) Register(ctx context.Context, creds model.Credentials) error {
	log := s.log.WithField("user", creds.Username)
	if err := creds.Validate(); err != nil {
		return err
	}
	if err := s.api.Register(ctx, creds); err != nil {
		log.WithError(err).Warn("register failed")
		return fmt.Errorf("register: %w", err)
	}
	log.Info("registered")
	s.navigate(router.Login)
	return nil
}

// Logout clears the pair, stops the timer and navigates to the login view.
// It is idempotent. The returned error only reports a storage failure; the
// in-memory session is cleared regardless.
func (s *Session) Logout() error {
	_, err := s.logout(nil)
	return err
}

// logout clears the store and the cached pair in one critical section. With
// a non-nil gen it does nothing unless the session is still at that
// generation.
func (s *Session) logout(gen *uint64) (bool, error) {
	s.mu.Lock()
	if gen != nil && s.gen != *gen {
		s.mu.Unlock()
		return false, nil
	}
	err := s.store.Delete()
	was := s.tokens != nil
	s.setLocked(nil, false)
	s.mu.Unlock()

	if err != nil {
		s.log.WithError(err).Error("could not delete stored tokens")
	}
	if was {
		s.log.Info("logged out")
	}
	s.navigate(router.Login)
	return true, err
}

// Refresh replaces the pair using the current refresh token.
// Any failure of the call forces Logout and returns an error wrapping
// ErrSessionExpired. With no pair it returns ErrNotLoggedIn without a call.
func (s *Session) Refresh(ctx context.Context) error {
	s.mu.Lock()
	pair, gen := s.tokens, s.gen
	s.mu.Unlock()

	if pair == nil {
		return ErrNotLoggedIn
	}
	if pair.Refresh == "" {
		return ErrNoRefreshToken
	}

	next, err := s.api.RefreshToken(ctx, pair.Refresh)
	if err != nil {
		if errors.Is(ctx.Err(), context.Canceled) {
			// caller went away; not a verdict on the session
			return fmt.Errorf("refresh: %w", err)
		}
		return s.expire(gen, err)
	}

	s.mu.Lock()
	if s.gen != gen {
		// logged out or in again while the call was in flight
		s.mu.Unlock()
		return nil
	}
	if err := s.store.Save(next); err != nil {
		s.mu.Unlock()
		return s.expire(gen, err)
	}
	s.setLocked(&next, false)
	name := userName(s.user)
	s.mu.Unlock()

	s.log.WithField("user", name).Debug("token refreshed")
	return nil
}

// expire logs the session out unless it changed since gen.
func (s *Session) expire(gen uint64, cause error) error {
	done, _ := s.logout(&gen)
	if !done {
		return fmt.Errorf("refresh: %w", cause)
	}
	s.log.WithError(cause).Warn("refresh failed, logged out")
	return fmt.Errorf("refresh: %w: %w", ErrSessionExpired, cause)
}

// Close stops the refresh timer and waits for it to exit. The session keeps
// its pair; it just stops refreshing. Do not call Close from a navigation
// listener triggered by the timer.
func (s *Session) Close() {
	s.mu.Lock()
	s.closed = true
	s.stopLocked()
	s.mu.Unlock()
	s.wg.Wait()
}

// ---------------------------------------------------
// internals
// ---------------------------------------------------

func (s *Session) navigate(path string) {
	if s.nav != nil {
		s.nav.Navigate(path)
	}
}

// setLocked swaps the cached pair and keeps the timer in step with it:
// running while a refresh token is present, stopped otherwise.
func (s *Session) setLocked(pair *model.TokenPair, restart bool) {
	s.gen++
	if pair == nil {
		s.tokens, s.user = nil, nil
		s.stopLocked()
		return
	}
	p := *pair
	s.tokens = &p
	s.user = nil
	if u, err := claims.Decode(p.Access); err == nil {
		s.user = u
	} else {
		s.log.WithError(err).Debug("access token is not a decodable JWT")
	}

	if p.Refresh == "" {
		s.stopLocked()
		return
	}
	if restart {
		s.stopLocked()
	}
	if s.stopTimer == nil && !s.closed {
		s.startLocked()
	}
}

func (s *Session) startLocked() {
	ctx, cancel := context.WithCancel(context.Background())
	s.stopTimer = cancel
	t := s.newTicker(s.interval)
	s.wg.Add(1)
	go s.runTimer(ctx, t)
	s.log.WithField("interval", s.interval).Debug("refresh timer started")
}

func (s *Session) stopLocked() {
	if s.stopTimer != nil {
		s.stopTimer()
		s.stopTimer = nil
		s.log.Debug("refresh timer stopped")
	}
}

func (s *Session) runTimer(ctx context.Context, t Ticker) {
	defer s.wg.Done()
	defer t.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-t.C():
			rctx, cancel := context.WithTimeout(ctx, s.refreshTimeout)
			err := s.Refresh(rctx)
			cancel()
			if err != nil && !errors.Is(err, context.Canceled) {
				s.log.WithError(err).Debug("timer refresh")
			}
		}
	}
}

func userName(u *model.User) string {
	if u == nil {
		return ""
	}
	return u.Username
}
