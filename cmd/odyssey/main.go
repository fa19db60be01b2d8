// Command odyssey runs the general ledger API and its operator commands.
package main

import (
	"context"
	"flag"
	"log/slog"
	"os"
	"os/signal"
	"path"
	"syscall"

	"github.com/google/subcommands"

	"github.com/odyssey-erp/odyssey-gl/internal/app"
)

func main() {
	if app.InTestMode() {
		slog.Default().Info("test mode detected, skipping runtime startup")
		return
	}

	commander := subcommands.NewCommander(flag.CommandLine, path.Base(os.Args[0]))
	commander.Register(commander.HelpCommand(), "")
	commander.Register(commander.FlagsCommand(), "")
	commander.Register(&serveCmd{}, "")
	commander.Register(&migrateCmd{}, "")
	commander.Register(fxGroup(), "operations")
	commander.Register(periodGroup(), "operations")
	commander.Register(consolGroup(), "operations")
	commander.Register(jobsGroup(), "operations")

	flag.Parse()
	if flag.NArg() == 0 {
		_ = flag.CommandLine.Parse([]string{"serve"})
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	status := commander.Execute(ctx)
	stop()
	os.Exit(int(status))
}
