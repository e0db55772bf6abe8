// Package apitest runs an in-process fake of the to-do backend for tests.
// It mirrors the endpoints and status codes the client relies on and signs
// real HS256 tokens so claims decoding and expiry checks work end to end.
package apitest

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sort"
	"strconv"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
	"github.com/gorilla/mux"

	"github.com/Makepad-fr/tada/internal/model"
)

// Server is a fake backend. Zero-config use: apitest.New(t).
type Server struct {
	*httptest.Server

	AccessTTL  time.Duration
	RefreshTTL time.Duration

	// FailRefresh makes /token/refresh/ answer 401.
	FailRefresh atomic.Bool

	refreshCalls atomic.Int64
	requests     atomic.Int64

	key    []byte
	mu     sync.Mutex
	users  map[string]string
	uids   map[string]int64
	todos  map[string][]model.Todo
	nextID int64
}

type tokenClaims struct {
	Username  string `json:"username"`
	UserID    int64  `json:"user_id"`
	TokenType string `json:"token_type"`
	jwt.RegisteredClaims
}

// New starts a server and closes it when the test ends.
func New(t testing.TB) *Server {
	t.Helper()
	s := &Server{
		AccessTTL:  5 * time.Minute,
		RefreshTTL: 24 * time.Hour,
		key:        []byte(uuid.NewString()),
		users:      map[string]string{},
		uids:       map[string]int64{},
		todos:      map[string][]model.Todo{},
	}

	r := mux.NewRouter()
	r.Use(s.count)
	api := r.PathPrefix("/api").Subrouter()
	api.HandleFunc("/register/", s.register).Methods(http.MethodPost)
	api.HandleFunc("/token/", s.obtain).Methods(http.MethodPost)
	api.HandleFunc("/token/refresh/", s.refresh).Methods(http.MethodPost)

	todos := api.PathPrefix("/todos").Subrouter()
	todos.Use(s.authenticate)
	todos.HandleFunc("/", s.listTodos).Methods(http.MethodGet)
	todos.HandleFunc("/", s.createTodo).Methods(http.MethodPost)
	todos.HandleFunc("/{id:[0-9]+}/", s.updateTodo).Methods(http.MethodPatch)
	todos.HandleFunc("/{id:[0-9]+}/", s.deleteTodo).Methods(http.MethodDelete)

	s.Server = httptest.NewServer(r)
	t.Cleanup(s.Close)
	return s
}

// APIURL is the base URL a client should be configured with.
func (s *Server) APIURL() string { return s.URL + "/api/" }

// AddUser creates an account directly.
func (s *Server) AddUser(username, password string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.addUserLocked(username, password)
}

func (s *Server) addUserLocked(username, password string) {
	s.users[username] = password
	s.uids[username] = int64(len(s.uids) + 1)
}

// RefreshCalls is the number of hits on /token/refresh/.
func (s *Server) RefreshCalls() int64 { return s.refreshCalls.Load() }

// Requests is the number of requests served.
func (s *Server) Requests() int64 { return s.requests.Load() }

// Todos returns the server-side list of username.
func (s *Server) Todos(username string) []model.Todo {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]model.Todo(nil), s.todos[username]...)
}

// Pair mints a token pair for username without going through /token/.
func (s *Server) Pair(username string) model.TokenPair {
	s.mu.Lock()
	uid := s.uids[username]
	s.mu.Unlock()
	return model.TokenPair{
		Access:  s.mint(username, uid, "access", s.AccessTTL),
		Refresh: s.mint(username, uid, "refresh", s.RefreshTTL),
	}
}

// Mint signs a token of the given type; a negative ttl yields an expired one.
func (s *Server) Mint(username, typ string, ttl time.Duration) string {
	return s.mint(username, 0, typ, ttl)
}

func (s *Server) mint(username string, uid int64, typ string, ttl time.Duration) string {
	now := time.Now()
	c := tokenClaims{
		Username:  username,
		UserID:    uid,
		TokenType: typ,
		RegisteredClaims: jwt.RegisteredClaims{
			ID:        uuid.NewString(),
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(ttl)),
		},
	}
	tok, err := jwt.NewWithClaims(jwt.SigningMethodHS256, c).SignedString(s.key)
	if err != nil {
		panic(err)
	}
	return tok
}

func (s *Server) verify(tok, typ string) (*tokenClaims, bool) {
	var c tokenClaims
	t, err := jwt.ParseWithClaims(tok, &c, func(*jwt.Token) (any, error) { return s.key, nil },
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}))
	if err != nil || !t.Valid || c.TokenType != typ {
		return nil, false
	}
	return &c, true
}

// ---------------------------------------------------
// handlers
// ---------------------------------------------------

type ctxUser struct{}

func userOf(r *http.Request) string {
	u, _ := r.Context().Value(ctxUser{}).(string)
	return u
}

func (s *Server) count(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		s.requests.Add(1)
		next.ServeHTTP(w, r)
	})
}

func (s *Server) authenticate(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		h := r.Header.Get("Authorization")
		tok, found := strings.CutPrefix(h, "Bearer ")
		if !found {
			writeJSON(w, http.StatusUnauthorized, detail("Authentication credentials were not provided."))
			return
		}
		c, ok := s.verify(tok, "access")
		if !ok {
			writeJSON(w, http.StatusUnauthorized, detail("Given token not valid for any token type"))
			return
		}
		next.ServeHTTP(w, r.WithContext(context.WithValue(r.Context(), ctxUser{}, c.Username)))
	})
}

func (s *Server) register(w http.ResponseWriter, r *http.Request) {
	var creds model.Credentials
	if err := json.NewDecoder(r.Body).Decode(&creds); err != nil || creds.Username == "" || creds.Password == "" {
		writeJSON(w, http.StatusBadRequest, map[string][]string{"username": {"This field is required."}})
		return
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, exists := s.users[creds.Username]; exists {
		writeJSON(w, http.StatusBadRequest, map[string][]string{"username": {"A user with that username already exists."}})
		return
	}
	s.addUserLocked(creds.Username, creds.Password)
	writeJSON(w, http.StatusCreated, map[string]string{"username": creds.Username})
}

func (s *Server) obtain(w http.ResponseWriter, r *http.Request) {
	var creds model.Credentials
	if err := json.NewDecoder(r.Body).Decode(&creds); err != nil {
		writeJSON(w, http.StatusBadRequest, detail("malformed body"))
		return
	}
	s.mu.Lock()
	pw, ok := s.users[creds.Username]
	s.mu.Unlock()
	if !ok || pw != creds.Password {
		writeJSON(w, http.StatusUnauthorized, detail("No active account found with the given credentials"))
		return
	}
	writeJSON(w, http.StatusOK, s.Pair(creds.Username))
}

func (s *Server) refresh(w http.ResponseWriter, r *http.Request) {
	s.refreshCalls.Add(1)
	if s.FailRefresh.Load() {
		writeJSON(w, http.StatusUnauthorized, detail("Token is invalid or expired"))
		return
	}
	var body struct {
		Refresh string `json:"refresh"`
	}
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		writeJSON(w, http.StatusBadRequest, detail("malformed body"))
		return
	}
	c, ok := s.verify(body.Refresh, "refresh")
	if !ok {
		writeJSON(w, http.StatusUnauthorized, detail("Token is invalid or expired"))
		return
	}
	writeJSON(w, http.StatusOK, s.Pair(c.Username))
}

func (s *Server) listTodos(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, s.Todos(userOf(r)))
}

func (s *Server) createTodo(w http.ResponseWriter, r *http.Request) {
	var t model.Todo
	if err := json.NewDecoder(r.Body).Decode(&t); err != nil || strings.TrimSpace(t.Title) == "" {
		writeJSON(w, http.StatusBadRequest, map[string][]string{"title": {"This field may not be blank."}})
		return
	}
	user := userOf(r)
	s.mu.Lock()
	s.nextID++
	t.ID = s.nextID
	s.todos[user] = append(s.todos[user], t)
	s.mu.Unlock()
	writeJSON(w, http.StatusCreated, t)
}

func (s *Server) updateTodo(w http.ResponseWriter, r *http.Request) {
	id, _ := strconv.ParseInt(mux.Vars(r)["id"], 10, 64)
	var patch struct {
		Completed *bool   `json:"completed"`
		Title     *string `json:"title"`
	}
	if err := json.NewDecoder(r.Body).Decode(&patch); err != nil {
		writeJSON(w, http.StatusBadRequest, detail("malformed body"))
		return
	}
	user := userOf(r)
	s.mu.Lock()
	defer s.mu.Unlock()
	list := s.todos[user]
	for i := range list {
		if list[i].ID != id {
			continue
		}
		if patch.Completed != nil {
			list[i].Completed = *patch.Completed
		}
		if patch.Title != nil {
			list[i].Title = *patch.Title
		}
		writeJSON(w, http.StatusOK, list[i])
		return
	}
	writeJSON(w, http.StatusNotFound, detail("Not found."))
}

func (s *Server) deleteTodo(w http.ResponseWriter, r *http.Request) {
	id, _ := strconv.ParseInt(mux.Vars(r)["id"], 10, 64)
	user := userOf(r)
	s.mu.Lock()
	defer s.mu.Unlock()
	list := s.todos[user]
	idx := sort.Search(len(list), func(i int) bool { return list[i].ID >= id })
	if idx == len(list) || list[idx].ID != id {
		writeJSON(w, http.StatusNotFound, detail("Not found."))
		return
	}
	s.todos[user] = append(list[:idx], list[idx+1:]...)
	w.WriteHeader(http.StatusNoContent)
}

func detail(msg string) map[string]string { return map[string]string{"detail": msg} }

func writeJSON(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	_ = json.NewEncoder(w).Encode(v)
}
