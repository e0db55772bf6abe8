// Package todos keeps the locally cached, ordered to-do list of one view.
//
// Every mutation is one API call followed by a local patch taken from the
// response or from the known change. The list is never reconciled with
// concurrent edits made elsewhere: it reflects the last known server state.
package todos

import (
	"context"
	"fmt"
	"strings"
	"sync"

	"github.com/Makepad-fr/tada/internal/model"
)

// API is the part of the backend client the list calls.
type API interface {
	ListTodos(ctx context.Context) ([]model.Todo, error)
	CreateTodo(ctx context.Context, title string) (model.Todo, error)
	UpdateTodo(ctx context.Context, id int64, completed bool) (model.Todo, error)
	DeleteTodo(ctx context.Context, id int64) error
}

// List is safe for concurrent use; concurrent actions are not ordered.
type List struct {
	api API

	mu    sync.Mutex
	items []model.Todo
	err   error
}

func New(api API) *List { return &List{api: api} }

// Items returns a copy of the cached list.
func (l *List) Items() []model.Todo {
	l.mu.Lock()
	defer l.mu.Unlock()
	return append([]model.Todo(nil), l.items...)
}

// Err is the error of the last action, nil when it succeeded.
func (l *List) Err() error {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.err
}

// ClearErr dismisses the error state.
func (l *List) ClearErr() {
	l.mu.Lock()
	l.err = nil
	l.mu.Unlock()
}

// Stats counts completed and pending items.
func (l *List) Stats() (done, pending int) {
	l.mu.Lock()
	defer l.mu.Unlock()
	return Stats(l.items)
}

// Fetch replaces the cache with the server list.
func (l *List) Fetch(ctx context.Context) error {
	items, err := l.api.ListTodos(ctx)
	return l.apply(err, func() { l.items = items })
}

// Add creates a pending item and appends the server's copy.
func (l *List) Add(ctx context.Context, title string) (model.Todo, error) {
	title = strings.TrimSpace(title)
	if title == "" {
		return model.Todo{}, l.apply(fmt.Errorf("add: %w", model.ErrEmptyTitle), nil)
	}
	t, err := l.api.CreateTodo(ctx, title)
	err = l.apply(err, func() { l.items = append(l.items, t) })
	return t, err
}

// Toggle flips an item whose current state is completed: it sends
// !completed and patches the cache to that value. Calling it twice with the
// same completed value ends in the same state as calling it once.
func (l *List) Toggle(ctx context.Context, id int64, completed bool) error {
	want := !completed
	_, err := l.api.UpdateTodo(ctx, id, want)
	return l.apply(err, func() {
		for i := range l.items {
			if l.items[i].ID == id {
				l.items[i].Completed = want
			}
		}
	})
}

// Delete removes an item on the server and then from the cache.
func (l *List) Delete(ctx context.Context, id int64) error {
	err := l.api.DeleteTodo(ctx, id)
	return l.apply(err, func() {
		out := l.items[:0]
		for _, t := range l.items {
			if t.ID != id {
				out = append(out, t)
			}
		}
		l.items = out
	})
}

// At returns the item at a 1-based position, as the CLI indexes them.
func (l *List) At(userIndex int) (model.Todo, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if userIndex < 1 || userIndex > len(l.items) {
		return model.Todo{}, &IndexError{Have: len(l.items), Got: userIndex}
	}
	return l.items[userIndex-1], nil
}

func (l *List) apply(err error, patch func()) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.err = err
	if err == nil && patch != nil {
		patch()
	}
	return err
}

// IndexError is a 1-based index outside the list.
type IndexError struct {
	Have, Got int
}

func (e *IndexError) Error() string {
	return fmt.Sprintf("index out of range: have %d, got %d", e.Have, e.Got)
}

// Stats counts completed and pending items.
func Stats(items []model.Todo) (done, pending int) {
	for _, it := range items {
		if it.Completed {
			done++
		} else {
			pending++
		}
	}
	return
}
