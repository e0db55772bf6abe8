package tui

import (
	"strings"

	"github.com/Makepad-fr/tada/internal/model"
	"github.com/Makepad-fr/tada/internal/router"
	"github.com/Makepad-fr/tada/internal/ui"
)

// header renders "Home | Login | Register" with the active link highlighted.
func header(path string, user *model.User, loggedIn bool) string {
	t := ui.Current()
	link := func(label, key, target string) string {
		s := label + " " + t.Muted.Render(key)
		if target == path {
			return t.Accent.Render(label) + " " + t.Muted.Render(key)
		}
		return s
	}

	auth := link("Login", "^L", router.Login)
	if loggedIn {
		auth = link("Logout", "^L", "")
	}
	parts := []string{
		link("Home", "^G", router.Home),
		auth,
		link("Register", "^R", router.Register),
	}
	line := strings.Join(parts, t.Muted.Render(" | "))

	if user != nil && user.Username != "" {
		line += "   " + t.Muted.Render("signed in as ") + t.Title.Render(user.Username)
	}
	return line
}
