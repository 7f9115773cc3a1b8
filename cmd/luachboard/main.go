package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/alecthomas/kong"

	"luachboard/internal/config"
	appLog "luachboard/internal/log"
)

const version = "0.1.0"

// Globals are the flags shared by every command.
type Globals struct {
	Config string `help:"Path to config file." type:"path" default:"/etc/luachboard/config.yaml" env:"LUACH_CONFIG"`
	Debug  bool   `help:"Enable debug logging."`
}

var CLI struct {
	Globals
	Version kong.VersionFlag `help:"Print version and exit."`

	Serve   ServeCmd   `cmd:"" help:"Run the board: HTTP API, page and auto refresh." default:"1"`
	Today   TodayCmd   `cmd:"" help:"Print the zmanim for a day."`
	Feed    FeedCmd    `cmd:"" help:"Write the iCalendar feed."`
	Geocode GeocodeCmd `cmd:"" help:"Look up a zip code."`
	Zone    ZoneCmd    `cmd:"" help:"Show the timezone chosen for coordinates."`
}

// runContext is bound into every command's Run.
type runContext struct {
	ctx     context.Context
	globals *Globals
}

// loadConfig reads the config file and applies the log level.
func (rc *runContext) loadConfig() (*config.Config, error) {
	cfg, err := config.Load(rc.globals.Config)
	if err != nil {
		return nil, err
	}
	appLog.SetLevel(rc.logLevel(cfg))
	return cfg, nil
}

func (rc *runContext) logLevel(cfg *config.Config) appLog.Level {
	if rc.globals.Debug {
		return appLog.LevelDebug
	}
	return appLog.ParseLevel(cfg.LogLevel)
}

func main() {
	kctx := kong.Parse(&CLI,
		kong.Name("luachboard"),
		kong.Description("Daily zmanim for a wall display."),
		kong.UsageOnError(),
		kong.Vars{"version": version},
	)

	// Root context with cancellation on SIGINT/SIGTERM.
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		sig := <-sigCh
		appLog.Info("signal received, shutting down", "signal", sig.String())
		cancel()
	}()

	if err := kctx.Run(&runContext{ctx: ctx, globals: &CLI.Globals}); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}
