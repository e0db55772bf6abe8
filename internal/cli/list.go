package cli

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/Makepad-fr/tada/internal/model"
	"github.com/Makepad-fr/tada/internal/router"
	"github.com/Makepad-fr/tada/internal/todos"
	"github.com/Makepad-fr/tada/internal/tui"
	"github.com/Makepad-fr/tada/internal/ui"
)

// -------------- subcommand impls ----------------

func (r *runner) doApp(ctx context.Context) int {
	deps := tui.Deps{Session: r.sess, Router: r.router, Todos: r.client}
	if err := tui.Run(ctx, deps, router.Home); err != nil {
		ui.Fail(r.err, "tui: "+err.Error())
		return 1
	}
	return 0
}

// fetch loads the remote list after checking we have a usable session.
func (r *runner) fetch(ctx context.Context) (*todos.List, int) {
	if code := r.requireAuth(); code != 0 {
		return nil, code
	}
	l := todos.New(r.client)
	if err := l.Fetch(ctx); err != nil {
		ui.Fail(r.err, "load: "+describe(err))
		return nil, 1
	}
	return l, 0
}

func (r *runner) doList(ctx context.Context) int {
	l, code := r.fetch(ctx)
	if code != 0 {
		return code
	}
	items := l.Items()
	t := ui.Current()

	// Header + progress
	d, p := l.Stats()
	header := fmt.Sprintf("%s  %s %d  %s %d  %s %d",
		t.Title.Render("Todos"),
		t.Success.Render(t.SymDone), d,
		t.Pending.Render(t.SymPending), p,
		t.Accent.Render("Total"), len(items),
	)

	var lines []string
	lines = append(lines, header)
	lines = append(lines, t.Muted.Render(ui.ProgressBar(d, d+p, 28)))
	lines = append(lines, "")

	if r.opt.Group {
		lines = append(lines, groupLines(items)...)
	} else {
		lines = append(lines, flatLines(items)...)
	}
	lines = append(lines, "")
	lines = append(lines, t.Muted.Render("Tip: add with `tada add \"Buy milk\"`"))
	ui.Panel(r.out, lines)
	return 0
}

func (r *runner) doAdd(ctx context.Context, title string) int {
	if code := r.requireAuth(); code != 0 {
		return code
	}
	title = strings.TrimSpace(title)
	if title == "" {
		ui.Fail(r.err, "add: empty title")
		return 2
	}
	created, err := todos.New(r.client).Add(ctx, title)
	if err != nil {
		ui.Fail(r.err, "add: "+describe(err))
		return 1
	}
	ui.OK(r.out, fmt.Sprintf("added #%d", created.ID))
	return 0
}

func (r *runner) doToggle(ctx context.Context, userIndex int) int {
	l, code := r.fetch(ctx)
	if code != 0 {
		return code
	}
	it, ok := r.at(l, userIndex)
	if !ok {
		return 2
	}
	if err := l.Toggle(ctx, it.ID, it.Completed); err != nil {
		ui.Fail(r.err, "done: "+describe(err))
		return 1
	}
	if it.Completed {
		ui.OK(r.out, "reopened")
	} else {
		ui.OK(r.out, "toggled")
	}
	return 0
}

func (r *runner) doRemove(ctx context.Context, userIndex int) int {
	l, code := r.fetch(ctx)
	if code != 0 {
		return code
	}
	it, ok := r.at(l, userIndex)
	if !ok {
		return 2
	}
	if err := l.Delete(ctx, it.ID); err != nil {
		ui.Fail(r.err, "rm: "+describe(err))
		return 1
	}
	ui.OK(r.out, "removed")
	return 0
}

func (r *runner) at(l *todos.List, userIndex int) (model.Todo, bool) {
	it, err := l.At(userIndex)
	var ie *todos.IndexError
	if errors.As(err, &ie) {
		ui.Fail(r.err, fmt.Sprintf("index out of range: have %d, got %d", ie.Have, ie.Got))
		ui.Hint(r.err, "Hint: run `tada ls` to see valid indexes")
		return it, false
	}
	return it, err == nil
}

// -------------- rendering helpers --------------

// itemLine numbers items by their position in the full list, so the index
// printed is the one done and rm accept.
func itemLine(pos int, it model.Todo) string {
	t := ui.Current()
	box, style := t.BoxUnchecked, t.Muted
	if it.Completed {
		box, style = t.BoxChecked, t.Success
	}
	return fmt.Sprintf("%s %s %s",
		t.Muted.Render(fmt.Sprintf("%2d.", pos)), style.Render(box), ui.Truncate(it.Title, 80))
}

func flatLines(items []model.Todo) []string {
	if len(items) == 0 {
		return []string{ui.Current().Muted.Render("no items")}
	}
	out := make([]string, 0, len(items))
	for i, it := range items {
		out = append(out, itemLine(i+1, it))
	}
	return out
}

func groupLines(items []model.Todo) []string {
	var pend, done []string
	for i, it := range items {
		if it.Completed {
			done = append(done, itemLine(i+1, it))
		} else {
			pend = append(pend, itemLine(i+1, it))
		}
	}
	t := ui.Current()
	section := func(name string, body []string) []string {
		lines := []string{t.Accent.Render(name)}
		if len(body) == 0 {
			return append(lines, t.Muted.Render("(none)"))
		}
		return append(lines, body...)
	}
	lines := section("Pending", pend)
	lines = append(lines, "")
	return append(lines, section("Done", done)...)
}
