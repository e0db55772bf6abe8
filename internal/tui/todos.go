package tui

import (
	"context"
	"errors"
	"fmt"
	"io"
	"strings"

	"github.com/charmbracelet/bubbles/key"
	"github.com/charmbracelet/bubbles/list"
	"github.com/charmbracelet/bubbles/textinput"
	tea "github.com/charmbracelet/bubbletea"

	"github.com/Makepad-fr/tada/internal/api"
	"github.com/Makepad-fr/tada/internal/model"
	"github.com/Makepad-fr/tada/internal/todos"
	"github.com/Makepad-fr/tada/internal/ui"
)

// listItem adapts model.Todo to bubbles/list.Item
type listItem struct{ todo model.Todo }

func (i listItem) Title() string       { return i.todo.Title }
func (i listItem) Description() string { return "" }
func (i listItem) FilterValue() string { return i.todo.Title }

// Custom delegate to control how items render (single line)
type itemDelegate struct{}

func (d itemDelegate) Height() int                               { return 1 }
func (d itemDelegate) Spacing() int                              { return 0 }
func (d itemDelegate) Update(msg tea.Msg, m *list.Model) tea.Cmd { return nil }
func (d itemDelegate) Render(w io.Writer, m list.Model, index int, item list.Item) {
	it, _ := item.(listItem)
	t := ui.Current()

	box, text := t.Muted.Render(t.BoxUnchecked), it.todo.Title
	if it.todo.Completed {
		box, text = t.Success.Render(t.BoxChecked), t.Done.Render(text)
	}
	prefix := "  "
	if index == m.Index() {
		prefix = t.Selected.Render("> ")
	}
	fmt.Fprintln(w, prefix+box+" "+text)
}

// todosChangedMsg follows every list action; the cache already holds the outcome.
type todosChangedMsg struct{ err error }

var (
	addBind    = key.NewBinding(key.WithKeys("a"), key.WithHelp("a", "add"))
	toggleBind = key.NewBinding(key.WithKeys(" "), key.WithHelp("space", "toggle"))
	deleteBind = key.NewBinding(key.WithKeys("d"), key.WithHelp("d", "delete"))
	reloadBind = key.NewBinding(key.WithKeys("R"), key.WithHelp("R", "reload"))
)

// todoScreen is the protected TodoList view.
type todoScreen struct {
	ctx    context.Context
	cancel context.CancelFunc
	todos  *todos.List

	list    list.Model
	loading bool
	errMsg  string

	// Inline add
	adding bool
	ti     textinput.Model
}

func newTodoScreen(ctx context.Context, cancel context.CancelFunc, l *todos.List) *todoScreen {
	lm := list.New(nil, itemDelegate{}, 0, 0)
	lm.SetShowHelp(true)
	lm.SetShowPagination(true)
	lm.SetShowStatusBar(true)
	lm.SetFilteringEnabled(true)
	lm.Styles.Title = ui.Current().Title
	lm.Styles.HelpStyle = ui.Current().Help
	lm.Styles.PaginationStyle = ui.Current().Help
	lm.FilterInput.Prompt = "/ "
	lm.SetStatusBarItemName("item", "items")
	extra := func() []key.Binding { return []key.Binding{addBind, toggleBind, deleteBind, reloadBind} }
	lm.AdditionalShortHelpKeys = extra
	lm.AdditionalFullHelpKeys = extra

	ti := textinput.New()
	ti.Prompt = "> "
	ti.Placeholder = "Add new todo"
	ti.CharLimit = 200

	s := &todoScreen{ctx: ctx, cancel: cancel, todos: l, list: lm, ti: ti, loading: true}
	s.refreshTitle()
	return s
}

func (s *todoScreen) Init() tea.Cmd { return s.fetch() }

func (s *todoScreen) Close() { s.cancel() }

// ---------------------------------------------------
// commands: one API call each, run off the event loop
// ---------------------------------------------------

func (s *todoScreen) fetch() tea.Cmd {
	ctx, l := s.ctx, s.todos
	return func() tea.Msg { return todosChangedMsg{err: l.Fetch(ctx)} }
}

func (s *todoScreen) add(title string) tea.Cmd {
	ctx, l := s.ctx, s.todos
	return func() tea.Msg {
		_, err := l.Add(ctx, title)
		return todosChangedMsg{err: err}
	}
}

func (s *todoScreen) toggle(t model.Todo) tea.Cmd {
	ctx, l := s.ctx, s.todos
	return func() tea.Msg { return todosChangedMsg{err: l.Toggle(ctx, t.ID, t.Completed)} }
}

func (s *todoScreen) remove(t model.Todo) tea.Cmd {
	ctx, l := s.ctx, s.todos
	return func() tea.Msg { return todosChangedMsg{err: l.Delete(ctx, t.ID)} }
}

func (s *todoScreen) selected() (model.Todo, bool) {
	it, ok := s.list.SelectedItem().(listItem)
	return it.todo, ok
}

// ---------------------------------------------------
// Update / View
// ---------------------------------------------------

func (s *todoScreen) Update(msg tea.Msg) (screen, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		h := msg.Height
		if s.adding {
			h -= 4
		}
		s.list.SetSize(msg.Width, max(h-1, 3))
		return s, nil

	case todosChangedMsg:
		s.loading = false
		s.errMsg = ""
		if msg.err != nil {
			s.errMsg = describeTodoError(msg.err)
		}
		return s, s.sync()
	}

	// add mode
	if s.adding {
		if k, ok := msg.(tea.KeyMsg); ok {
			switch k.String() {
			case "enter":
				title := strings.TrimSpace(s.ti.Value())
				s.ti.SetValue("")
				s.ti.Blur()
				s.adding = false
				if title == "" {
					s.errMsg = "Title cannot be empty"
					return s, nil
				}
				return s, s.add(title)
			case "esc":
				s.adding = false
				s.ti.SetValue("")
				s.ti.Blur()
				return s, nil
			}
		}
		var cmd tea.Cmd
		s.ti, cmd = s.ti.Update(msg)
		return s, cmd
	}

	if k, ok := msg.(tea.KeyMsg); ok && s.list.FilterState() != list.Filtering {
		switch k.String() {
		case "q", "esc":
			if s.list.FilterState() == list.FilterApplied {
				break
			}
			return s, tea.Quit
		case " ":
			if t, ok := s.selected(); ok {
				return s, s.toggle(t)
			}
			return s, nil
		case "d":
			if t, ok := s.selected(); ok {
				return s, s.remove(t)
			}
			return s, nil
		case "a":
			s.adding = true
			s.errMsg = ""
			s.ti.SetValue("")
			return s, s.ti.Focus()
		case "R":
			s.loading = true
			return s, s.fetch()
		}
	}

	var cmd tea.Cmd
	s.list, cmd = s.list.Update(msg)
	return s, cmd
}

// sync copies the cache into the list widget, keeping the cursor in range.
func (s *todoScreen) sync() tea.Cmd {
	cached := s.todos.Items()
	items := make([]list.Item, 0, len(cached))
	for _, t := range cached {
		items = append(items, listItem{t})
	}
	cmd := s.list.SetItems(items)
	if idx := s.list.Index(); idx >= len(items) && len(items) > 0 {
		s.list.Select(len(items) - 1)
	}
	s.refreshTitle()
	return cmd
}

// Header title with live counts
func (s *todoScreen) refreshTitle() {
	t := ui.Current()
	dn, pn := s.todos.Stats()
	s.list.Title = fmt.Sprintf("%s   %s %d  %s %d  %s %d",
		t.Title.Render("Todo List"),
		t.Success.Render(t.SymDone), dn,
		t.Pending.Render(t.SymPending), pn,
		t.Accent.Render("Total"), dn+pn,
	)
}

func (s *todoScreen) View() string {
	t := ui.Current()
	var b strings.Builder
	if s.loading {
		b.WriteString(t.Muted.Render("loading..."))
		b.WriteString("\n")
	}
	b.WriteString(s.list.View())
	if s.adding {
		b.WriteString("\n")
		b.WriteString(ui.Box(t.Title.Render("Add new item") + "\n" + s.ti.View()))
	}
	if s.errMsg != "" {
		b.WriteString("\n")
		b.WriteString(t.Error.Render(s.errMsg))
	}
	return b.String()
}

func describeTodoError(err error) string {
	switch {
	case errors.Is(err, context.Canceled):
		return ""
	case errors.Is(err, api.ErrUnauthorized):
		return "not authorized: your session may have expired, press ^L to log in again"
	case errors.Is(err, api.ErrNetwork):
		return "cannot reach the server"
	case errors.Is(err, model.ErrEmptyTitle):
		return "Title cannot be empty"
	case errors.Is(err, api.ErrNotFound):
		return "that item no longer exists on the server, press R to reload"
	}
	return err.Error()
}
