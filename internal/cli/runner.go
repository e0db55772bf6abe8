// Package cli is the tada command line: remote to-do CRUD, the auth
// subcommands and the interactive app, all sharing one session.
package cli

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"os"
	"strconv"
	"strings"

	"github.com/sirupsen/logrus"

	"github.com/Makepad-fr/tada/internal/api"
	"github.com/Makepad-fr/tada/internal/config"
	"github.com/Makepad-fr/tada/internal/logging"
	"github.com/Makepad-fr/tada/internal/router"
	"github.com/Makepad-fr/tada/internal/session"
	"github.com/Makepad-fr/tada/internal/store/tokenstore"
	"github.com/Makepad-fr/tada/internal/ui"
)

// Options tune output behavior from root flags.
type Options struct {
	Group   bool   // list grouped by pending/done
	Theme   string // overrides ui.theme from config
	Config  string // YAML config path
	NoColor bool

	Stdin          io.Reader
	Stdout, Stderr io.Writer
}

type runner struct {
	opt      Options
	out, err io.Writer
	in       io.Reader
	lines    *bufio.Reader

	cfg    config.Config
	store  *tokenstore.File
	client *api.Client
	router *router.Router
	sess   *session.Session
}

// Run dispatches subcommands and returns an exit code (0 ok, 1 error, 2 usage).
func Run(ctx context.Context, args []string, opt Options) int {
	r := &runner{opt: opt, out: opt.Stdout, err: opt.Stderr, in: opt.Stdin}
	if r.out == nil {
		r.out = os.Stdout
	}
	if r.err == nil {
		r.err = os.Stderr
	}
	if r.in == nil {
		r.in = os.Stdin
	}
	r.lines = bufio.NewReader(r.in)

	if len(args) == 0 {
		PrintHelp(r.out)
		return 2
	}
	cmd, a := args[0], args[1:]

	switch cmd {
	case "help", "-h", "--help":
		PrintHelp(r.out)
		return 0
	case "env":
		fmt.Fprint(r.out, config.Usage())
		return 0
	}

	closeFn, code := r.setup()
	if code != 0 {
		return code
	}
	defer closeFn()

	switch cmd {
	case "app":
		return r.doApp(ctx)

	case "ls":
		for _, f := range a {
			switch f {
			case "--group", "-group", "-g":
				r.opt.Group = true
			default:
				ui.Fail(r.err, "usage: tada ls [--group]")
				return 2
			}
		}
		return r.doList(ctx)

	case "add":
		if len(a) == 0 {
			ui.Fail(r.err, "usage: tada add <title...>")
			return 2
		}
		return r.doAdd(ctx, strings.Join(a, " "))

	case "done", "rm":
		if len(a) != 1 {
			ui.Fail(r.err, "usage: tada "+cmd+" <index>")
			return 2
		}
		n, err := strconv.Atoi(a[0])
		if err != nil {
			ui.Fail(r.err, cmd+": not a number: "+a[0])
			return 2
		}
		if cmd == "done" {
			return r.doToggle(ctx, n)
		}
		return r.doRemove(ctx, n)

	case "auth":
		const usage = "usage: tada auth <login|register|logout|status|whoami|refresh>"
		if len(a) == 0 {
			ui.Fail(r.err, usage)
			return 2
		}
		switch a[0] {
		case "login":
			return r.doAuthLogin(ctx, a[1:])
		case "register":
			return r.doAuthRegister(ctx, a[1:])
		case "logout":
			return r.doAuthLogout()
		case "status":
			return r.doAuthStatus()
		case "whoami":
			return r.doAuthWhoAmI()
		case "refresh":
			return r.doAuthRefresh(ctx)
		default:
			ui.Fail(r.err, usage)
			return 2
		}
	}

	ui.Fail(r.err, "unknown subcommand: "+cmd)
	fmt.Fprintln(r.err)
	PrintHelp(r.err)
	return 2
}

func PrintHelp(w io.Writer) {
	fmt.Fprintf(w, `tada - a to-do client for the tada API

Usage:
  tada [flags] <subcommand> [args]

Subcommands:
  app                Interactive app (login, register, list)
  ls [--group]       List items
  add <title...>     Add a new item (title can be multiple words)
  done <index>       Toggle done for item at 1-based index
  rm <index>         Remove item at 1-based index
  auth login [user]      Log in with username and password
  auth register [user]   Create an account
  auth logout            Forget the stored tokens
  auth status            Show where tokens come from and when they expire
  auth whoami            Decode the access token locally
  auth refresh           Exchange the refresh token for a new pair
  env                Describe configuration environment variables

Flags:
  --config <path>    YAML config (default ~/.tada/config.yaml, or $TADA_CONFIG)
  --theme <name>     %s
  --group            Group ls output by pending/done
  --no-color         Plain output

Examples:
  tada auth login alice
  tada add "Buy milk"
  tada ls --group
  tada done 2
  tada rm 3
`, strings.Join(ui.Themes, ", "))
}

// setup reads config and builds the store, client, router and session.
// The returned func releases them.
func (r *runner) setup() (func(), int) {
	cfg, err := config.Read(r.opt.Config)
	if err != nil {
		ui.Fail(r.err, "config: "+err.Error())
		return nil, 1
	}
	r.cfg = cfg

	theme := cfg.UI.Theme
	if r.opt.Theme != "" {
		theme = r.opt.Theme
	}
	ui.SetTheme(theme)
	ui.SetColor(!(cfg.UI.NoColor || r.opt.NoColor))

	logFile, err := logging.Setup(cfg.Log)
	if err != nil {
		ui.Fail(r.err, "log: "+err.Error())
		return nil, 1
	}

	store, err := tokenstore.NewFile(cfg.Session.TokenFile)
	if err != nil {
		logFile.Close()
		ui.Fail(r.err, "token store: "+err.Error())
		return nil, 1
	}
	client, err := api.New(cfg.API.BaseURL, api.WithTimeout(cfg.API.Timeout))
	if err != nil {
		logFile.Close()
		ui.Fail(r.err, "api: "+err.Error())
		return nil, 1
	}
	rt := router.New(router.Guard{Tokens: store})
	sess, err := session.New(store, client, rt,
		session.WithRefreshInterval(cfg.Session.RefreshInterval),
		session.WithRefreshTimeout(cfg.Session.RefreshTimeout),
	)
	if err != nil {
		logFile.Close()
		ui.Fail(r.err, "session: "+err.Error())
		return nil, 1
	}
	client.SetTokenSource(sess)

	r.store, r.client, r.router, r.sess = store, client, rt, sess
	logrus.WithFields(logrus.Fields{
		"api":    client.BaseURL(),
		"tokens": store.Path,
		"source": store.Source(),
	}).Debug("cli ready")

	return func() {
		sess.Close()
		logFile.Close()
	}, 0
}

// requireAuth fails unless the guard would let us into the list.
func (r *runner) requireAuth() int {
	if r.router.Guard().State() != router.Authenticated {
		ui.Fail(r.err, "not logged in. Run: tada auth login")
		return 2
	}
	return 0
}

// readLine prompts on stdout and reads one line from stdin.
func (r *runner) readLine(prompt string) (string, error) {
	fmt.Fprint(r.out, prompt)
	line, err := r.lines.ReadString('\n')
	if err != nil && (err != io.EOF || line == "") {
		return "", err
	}
	return strings.TrimRight(line, "\r\n"), nil
}
