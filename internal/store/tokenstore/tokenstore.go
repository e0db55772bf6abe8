package tokenstore

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"github.com/Makepad-fr/tada/internal/model"
	"github.com/Makepad-fr/tada/internal/store/jsonstore"
)

const (
	// EnvToken overrides the stored pair with an access-only token.
	EnvToken = "TADA_TOKEN"

	fileName = "tokens.json"
)

// Source says where the current pair came from.
type Source string

const (
	SourceNone Source = ""
	SourceEnv  Source = "env"
	SourceFile Source = "file"
)

// ErrReadOnly is returned when a pair provided by the environment would be overwritten.
var ErrReadOnly = errors.New("token is provided by " + EnvToken)

// Store holds the current token pair, or none.
// Load returns (nil, nil) when logged out.
type Store interface {
	Load() (*model.TokenPair, error)
	Save(pair model.TokenPair) error
	Delete() error
}

// DefaultPath is ~/.tada/tokens.json.
func DefaultPath() (string, error) {
	home, err := os.UserHomeDir()
	if err != nil {
		return "", fmt.Errorf("home: %w", err)
	}
	return filepath.Join(home, ".tada", fileName), nil
}

// File persists the pair as a single owner-only JSON document.
type File struct {
	Path string

	// Getenv is os.Getenv when nil.
	Getenv func(string) string
}

// NewFile returns a File store at path, or at DefaultPath when path is empty.
func NewFile(path string) (*File, error) {
	if path == "" {
		p, err := DefaultPath()
		if err != nil {
			return nil, err
		}
		path = p
	}
	return &File{Path: path}, nil
}

func (f *File) env() string {
	get := f.Getenv
	if get == nil {
		get = os.Getenv
	}
	return strings.TrimSpace(get(EnvToken))
}

// Source reports where Load would read the pair from.
func (f *File) Source() Source {
	if f.env() != "" {
		return SourceEnv
	}
	if _, err := os.Stat(f.Path); err == nil {
		return SourceFile
	}
	return SourceNone
}

func (f *File) Load() (*model.TokenPair, error) {
	// 1) env override
	if env := f.env(); env != "" {
		return &model.TokenPair{Access: StripBearer(env)}, nil
	}

	// 2) file
	var pair model.TokenPair
	found, err := jsonstore.Load(f.Path, &pair)
	if err != nil {
		return nil, fmt.Errorf("read tokens: %w", err)
	}
	if !found || pair.Access == "" {
		return nil, nil // not logged in
	}
	pair.Access = StripBearer(pair.Access)
	return &pair, nil
}

func (f *File) Save(pair model.TokenPair) error {
	if f.env() != "" {
		return ErrReadOnly
	}
	pair.Access = StripBearer(strings.TrimSpace(pair.Access))
	if pair.Access == "" {
		return fmt.Errorf("empty token")
	}
	// owner-only
	if err := jsonstore.Save(f.Path, pair, 0o600); err != nil {
		return fmt.Errorf("write tokens: %w", err)
	}
	return nil
}

func (f *File) Delete() error {
	if err := jsonstore.Remove(f.Path); err != nil {
		return fmt.Errorf("delete tokens: %w", err)
	}
	return nil
}

// Memory is an in-process Store.
type Memory struct {
	mu   sync.Mutex
	pair *model.TokenPair
}

func NewMemory(pair *model.TokenPair) *Memory {
	m := &Memory{}
	if pair != nil {
		p := *pair
		m.pair = &p
	}
	return m
}

func (m *Memory) Load() (*model.TokenPair, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.pair == nil {
		return nil, nil
	}
	p := *m.pair
	return &p, nil
}

func (m *Memory) Save(pair model.TokenPair) error {
	m.mu.Lock()
	m.pair = &pair
	m.mu.Unlock()
	return nil
}

func (m *Memory) Delete() error {
	m.mu.Lock()
	m.pair = nil
	m.mu.Unlock()
	return nil
}

// StripBearer removes a leading "Bearer " so pasted headers work.
func StripBearer(s string) string {
	if strings.HasPrefix(strings.ToLower(s), "bearer ") {
		return strings.TrimSpace(s[7:])
	}
	return s
}
