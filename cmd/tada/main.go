package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/Makepad-fr/tada/internal/cli"
)

func main() {
	// Root flags (apply to every subcommand)
	groupPending := flag.Bool("group", false, "group ls output by pending/done")
	theme := flag.String("theme", "", "color theme: classic, neon or mono")
	configPath := flag.String("config", "", "path to a YAML config file")
	noColor := flag.Bool("no-color", false, "disable colors")
	flag.Usage = func() { cli.PrintHelp(os.Stderr) }
	flag.Parse()

	// Hand the remaining args to the CLI runner.
	args := flag.Args()
	if len(args) == 0 {
		cli.PrintHelp(os.Stderr)
		os.Exit(2)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	code := cli.Run(ctx, args, cli.Options{
		Group:   *groupPending,
		Theme:   *theme,
		Config:  *configPath,
		NoColor: *noColor,
	})
	stop()
	if code != 0 {
		fmt.Fprintln(os.Stderr)
	}
	os.Exit(code)
}
