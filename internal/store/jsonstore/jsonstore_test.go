package jsonstore

import (
	"os"
	"path/filepath"
	"testing"
)

type doc struct {
	Name string `json:"name"`
}

func TestLoadMissingFile(t *testing.T) {
	var d doc
	found, err := Load(filepath.Join(t.TempDir(), "nope.json"), &d)
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if found {
		t.Fatalf("Load() found = true for a missing file")
	}
}

func TestSaveLoadRemove(t *testing.T) {
	p := filepath.Join(t.TempDir(), "nested", "doc.json")
	if err := Save(p, doc{Name: "x"}, 0o600); err != nil {
		t.Fatalf("Save() error = %v", err)
	}
	fi, err := os.Stat(p)
	if err != nil {
		t.Fatalf("stat: %v", err)
	}
	if perm := fi.Mode().Perm(); perm != 0o600 {
		t.Errorf("perm = %o, want 600", perm)
	}
	if _, err := os.Stat(p + ".tmp"); !os.IsNotExist(err) {
		t.Errorf("temp file left behind: %v", err)
	}

	var got doc
	found, err := Load(p, &got)
	if err != nil || !found {
		t.Fatalf("Load() = %v, %v", found, err)
	}
	if got.Name != "x" {
		t.Errorf("Name = %q, want x", got.Name)
	}

	if err := Remove(p); err != nil {
		t.Fatalf("Remove() error = %v", err)
	}
	if err := Remove(p); err != nil {
		t.Fatalf("second Remove() error = %v", err)
	}
}

func TestLoadCorrupt(t *testing.T) {
	p := filepath.Join(t.TempDir(), "bad.json")
	if err := os.WriteFile(p, []byte("{"), 0o600); err != nil {
		t.Fatal(err)
	}
	var d doc
	if _, err := Load(p, &d); err == nil {
		t.Fatal("Load() expected error for corrupt JSON")
	}
}
