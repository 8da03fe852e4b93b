package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/five82/pikiosk/internal/app"
	"github.com/five82/pikiosk/internal/ui"
)

func main() {
	os.Exit(run(os.Args[1:]))
}

func run(args []string) int {
	fs := flag.NewFlagSet("pikiosk", flag.ContinueOnError)
	fs.Usage = func() {
		fmt.Fprintf(fs.Output(), "usage: pikiosk [flags] [serve|authorize]\n\n")
		fs.PrintDefaults()
	}
	configPath := fs.String("config", "", "config file path (optional, defaults to ~/.config/pikiosk/config.toml)")
	addr := fs.String("addr", "", "listen address override (optional)")
	if err := fs.Parse(args); err != nil {
		if errors.Is(err, flag.ErrHelp) {
			return 0
		}
		return 2
	}

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	opts := app.Options{ConfigPath: *configPath, ListenAddr: *addr}

	var err error
	switch cmd := fs.Arg(0); cmd {
	case "", "serve":
		err = app.Run(ctx, opts)
	case "authorize":
		err = app.Authorize(ctx, opts)
		if errors.Is(err, ui.ErrAborted) {
			fmt.Fprintln(os.Stderr, "pikiosk: authorization aborted")
			return 130
		}
	default:
		fmt.Fprintf(os.Stderr, "pikiosk: unknown command %q\n", cmd)
		fs.Usage()
		return 2
	}
	if err != nil {
		fmt.Fprintf(os.Stderr, "pikiosk: %v\n", err)
		return 1
	}
	return 0
}
