package tokenstore

import (
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/Makepad-fr/tada/internal/model"
)

func newFile(t *testing.T, env map[string]string) *File {
	t.Helper()
	return &File{
		Path:   filepath.Join(t.TempDir(), "tokens.json"),
		Getenv: func(k string) string { return env[k] },
	}
}

func TestFileRoundTrip(t *testing.T) {
	f := newFile(t, nil)

	got, err := f.Load()
	if err != nil || got != nil {
		t.Fatalf("Load() on empty store = %v, %v; want nil, nil", got, err)
	}
	if src := f.Source(); src != SourceNone {
		t.Errorf("Source() = %q, want none", src)
	}

	if err := f.Save(model.TokenPair{Access: "Bearer acc", Refresh: "ref"}); err != nil {
		t.Fatalf("Save() error = %v", err)
	}
	b, err := os.ReadFile(f.Path)
	if err != nil {
		t.Fatal(err)
	}
	want := "{\n  \"access\": \"acc\",\n  \"refresh\": \"ref\"\n}"
	if string(b) != want {
		t.Errorf("file = %s, want %s", b, want)
	}

	got, err = f.Load()
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if got == nil || got.Access != "acc" || got.Refresh != "ref" {
		t.Fatalf("Load() = %+v", got)
	}
	if src := f.Source(); src != SourceFile {
		t.Errorf("Source() = %q, want file", src)
	}

	if err := f.Delete(); err != nil {
		t.Fatalf("Delete() error = %v", err)
	}
	if err := f.Delete(); err != nil {
		t.Fatalf("Delete() twice error = %v", err)
	}
	if got, _ := f.Load(); got != nil {
		t.Fatalf("Load() after Delete() = %+v", got)
	}
}

func TestFileEnvOverride(t *testing.T) {
	f := newFile(t, map[string]string{EnvToken: "bearer from-env"})

	got, err := f.Load()
	if err != nil {
		t.Fatal(err)
	}
	if got == nil || got.Access != "from-env" || got.Refresh != "" {
		t.Fatalf("Load() = %+v, want access-only pair from env", got)
	}
	if src := f.Source(); src != SourceEnv {
		t.Errorf("Source() = %q, want env", src)
	}
	if err := f.Save(model.TokenPair{Access: "x"}); !errors.Is(err, ErrReadOnly) {
		t.Errorf("Save() error = %v, want ErrReadOnly", err)
	}
}

func TestFileRejectsEmptyAccess(t *testing.T) {
	f := newFile(t, nil)
	if err := f.Save(model.TokenPair{Access: "  "}); err == nil {
		t.Fatal("Save() expected error for empty access token")
	}
}

func TestMemoryCopies(t *testing.T) {
	m := NewMemory(&model.TokenPair{Access: "a", Refresh: "r"})
	p, _ := m.Load()
	p.Access = "mutated"
	again, _ := m.Load()
	if again.Access != "a" {
		t.Fatalf("Load() returned shared pointer")
	}
	_ = m.Delete()
	if p, _ := m.Load(); p != nil {
		t.Fatalf("Load() after Delete() = %+v", p)
	}
}
