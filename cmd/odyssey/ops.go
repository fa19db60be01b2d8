package main

import (
	"context"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"strings"
	"time"

	"github.com/google/subcommands"

	"github.com/odyssey-erp/odyssey-gl/cmd/odyssey/cli"
	"github.com/odyssey-erp/odyssey-gl/internal/accounting/periods"
	"github.com/odyssey-erp/odyssey-gl/internal/app"
	"github.com/odyssey-erp/odyssey-gl/internal/audit"
	"github.com/odyssey-erp/odyssey-gl/jobs"
)

// groupCmd dispatches to a nested set of commands, e.g. "odyssey fx import".
type groupCmd struct {
	name     string
	synopsis string
	commands []subcommands.Command
}

func (g *groupCmd) Name() string     { return g.name }
func (g *groupCmd) Synopsis() string { return g.synopsis }
func (g *groupCmd) Usage() string {
	var b strings.Builder
	fmt.Fprintf(&b, "%s <command> [flags]\n\n", g.name)
	for _, c := range g.commands {
		fmt.Fprintf(&b, "  %-10s %s\n", c.Name(), c.Synopsis())
	}
	return b.String()
}

func (*groupCmd) SetFlags(*flag.FlagSet) {}

func (g *groupCmd) Execute(ctx context.Context, f *flag.FlagSet, args ...interface{}) subcommands.ExitStatus {
	nested := subcommands.NewCommander(f, g.name)
	nested.Register(nested.HelpCommand(), "")
	for _, c := range g.commands {
		nested.Register(c, "")
	}
	return nested.Execute(ctx, args...)
}

func fxGroup() subcommands.Command {
	return &groupCmd{name: "fx", synopsis: "manage exchange rates", commands: []subcommands.Command{&fxImportCmd{}, &fxValidateCmd{}}}
}

func periodGroup() subcommands.Command {
	return &groupCmd{name: "period", synopsis: "privileged fiscal period operations", commands: []subcommands.Command{&periodReopenCmd{}}}
}

func consolGroup() subcommands.Command {
	return &groupCmd{name: "consol", synopsis: "consolidation operations", commands: []subcommands.Command{&consolRefreshCmd{}}}
}

func jobsGroup() subcommands.Command {
	return &groupCmd{name: "jobs", synopsis: "background job operations", commands: []subcommands.Command{&jobsTriggerCmd{}, &jobsStatusCmd{}}}
}

func fail(format string, args ...any) subcommands.ExitStatus {
	fmt.Fprintf(os.Stderr, format+"\n", args...)
	return subcommands.ExitFailure
}

type fxImportCmd struct {
	file    string
	mode    string
	actor   int64
	json    bool
	yes     bool
	refresh bool
}

func (*fxImportCmd) Name() string     { return "import" }
func (*fxImportCmd) Synopsis() string { return "append rates from a CSV file" }
func (*fxImportCmd) Usage() string {
	return `fx import -file rates.csv [-mode dry|apply] [-actor id] [-yes] [-json]

Append exchange rates from a CSV with the header base,quote,type,effective_date,rate.
Dry mode (the default) only prints the parsed rows.
`
}

func (c *fxImportCmd) SetFlags(f *flag.FlagSet) {
	f.StringVar(&c.file, "file", "", "CSV file to import, - for stdin")
	f.StringVar(&c.mode, "mode", string(cli.FXImportModeDry), "dry or apply")
	f.Int64Var(&c.actor, "actor", 0, "operator id recorded in the audit log")
	f.BoolVar(&c.json, "json", false, "print a JSON summary")
	f.BoolVar(&c.yes, "yes", false, "skip the confirmation prompt")
	f.BoolVar(&c.refresh, "refresh-workers", true, "ask workers to reload rates after apply")
}

func (c *fxImportCmd) Execute(ctx context.Context, _ *flag.FlagSet, _ ...interface{}) subcommands.ExitStatus {
	d, err := openDeps(ctx)
	if err != nil {
		return fail("fx import: %v", err)
	}
	defer d.Close()
	rates, err := d.rates(ctx)
	if err != nil {
		return fail("fx import: %v", err)
	}
	ops, err := cli.NewFXOpsCLI(rates)
	if err != nil {
		return fail("fx import: %v", err)
	}
	ops.WithRecorder(audit.NewRecorder(d.pool))
	code := ops.ImportCommand(ctx, cli.FXImportOptions{
		Source:     c.file,
		Mode:       cli.FXImportMode(c.mode),
		ActorID:    c.actor,
		JSONOutput: c.json,
		AssumeYes:  c.yes,
	})
	if code == 0 && c.refresh && cli.FXImportMode(c.mode) == cli.FXImportModeApply {
		notifyWorkers(ctx, d.cfg, d.logger)
	}
	return subcommands.ExitStatus(code)
}

func notifyWorkers(ctx context.Context, cfg *app.Config, logger *slog.Logger) {
	jobsCLI, err := cli.NewJobsCLI(cfg.AsynqRedis())
	if err != nil {
		logger.Warn("fx refresh not enqueued", slog.Any("error", err))
		return
	}
	defer jobsCLI.Close()
	if _, err := jobsCLI.Trigger(ctx, jobs.TaskFXRefresh); err != nil {
		logger.Warn("fx refresh not enqueued", slog.Any("error", err))
	}
}

type fxValidateCmd struct {
	asOf  string
	pairs string
	types string
	json  bool
}

func (*fxValidateCmd) Name() string     { return "validate" }
func (*fxValidateCmd) Synopsis() string { return "check that required rates resolve" }
func (*fxValidateCmd) Usage() string {
	return `fx validate -pairs EUR/USD,JPY/USD [-as-of YYYY-MM-DD] [-types CONSOLIDATION,SPOT] [-json]

Exit status is 10 when any pair lacks a rate.
`
}

func (c *fxValidateCmd) SetFlags(f *flag.FlagSet) {
	f.StringVar(&c.asOf, "as-of", time.Now().UTC().Format(time.DateOnly), "date the rates must resolve for")
	f.StringVar(&c.pairs, "pairs", "", "comma separated currency pairs")
	f.StringVar(&c.types, "types", "", "comma separated rate types (default CONSOLIDATION)")
	f.BoolVar(&c.json, "json", false, "print a JSON summary")
}

func (c *fxValidateCmd) Execute(ctx context.Context, _ *flag.FlagSet, _ ...interface{}) subcommands.ExitStatus {
	d, err := openDeps(ctx)
	if err != nil {
		return fail("fx validate: %v", err)
	}
	defer d.Close()
	rates, err := d.rates(ctx)
	if err != nil {
		return fail("fx validate: %v", err)
	}
	ops, err := cli.NewFXOpsCLI(rates)
	if err != nil {
		return fail("fx validate: %v", err)
	}
	return subcommands.ExitStatus(ops.ValidateCommand(ctx, cli.FXValidateOptions{
		AsOf:       c.asOf,
		Pairs:      splitList(c.pairs),
		Types:      splitList(c.types),
		JSONOutput: c.json,
	}))
}

type periodReopenCmd struct {
	id     int64
	actor  int64
	reason string
	yes    bool
}

func (*periodReopenCmd) Name() string     { return "reopen" }
func (*periodReopenCmd) Synopsis() string { return "reopen a closed fiscal period" }
func (*periodReopenCmd) Usage() string {
	return `period reopen -id <period> -actor <operator> -reason "..." [-yes]

Reopen a closed period. The operator and reason are written to the audit log.
`
}

func (c *periodReopenCmd) SetFlags(f *flag.FlagSet) {
	f.Int64Var(&c.id, "id", 0, "period id")
	f.Int64Var(&c.actor, "actor", 0, "operator id")
	f.StringVar(&c.reason, "reason", "", "why the period is reopened")
	f.BoolVar(&c.yes, "yes", false, "skip the confirmation prompt")
}

func (c *periodReopenCmd) Execute(ctx context.Context, _ *flag.FlagSet, _ ...interface{}) subcommands.ExitStatus {
	d, err := openDeps(ctx)
	if err != nil {
		return fail("period reopen: %v", err)
	}
	defer d.Close()
	ops, err := cli.NewPeriodOpsCLI(periods.NewService(periods.NewRepository(d.pool), d.logger))
	if err != nil {
		return fail("period reopen: %v", err)
	}
	return subcommands.ExitStatus(ops.ReopenCommand(ctx, cli.PeriodReopenOptions{
		PeriodID:  c.id,
		ActorID:   c.actor,
		Reason:    c.reason,
		AssumeYes: c.yes,
	}))
}

type consolRefreshCmd struct {
	asOf string
}

func (*consolRefreshCmd) Name() string     { return "refresh" }
func (*consolRefreshCmd) Synopsis() string { return "enqueue a consolidation refresh" }
func (*consolRefreshCmd) Usage() string {
	return `consol refresh [-as-of YYYY-MM-DD]

Enqueue a refresh of every group's consolidation. Without -as-of the worker uses today.
`
}

func (c *consolRefreshCmd) SetFlags(f *flag.FlagSet) {
	f.StringVar(&c.asOf, "as-of", "", "consolidation date")
}

func (c *consolRefreshCmd) Execute(ctx context.Context, _ *flag.FlagSet, _ ...interface{}) subcommands.ExitStatus {
	var asOf time.Time
	if strings.TrimSpace(c.asOf) != "" {
		parsed, err := time.Parse(time.DateOnly, c.asOf)
		if err != nil {
			return fail("consol refresh: invalid -as-of %q", c.asOf)
		}
		asOf = parsed
	}
	cfg, err := app.LoadConfig()
	if err != nil {
		return fail("consol refresh: %v", err)
	}
	base, err := cli.NewJobsCLI(cfg.AsynqRedis())
	if err != nil {
		return fail("consol refresh: %v", err)
	}
	defer base.Close()
	ops, err := cli.NewConsolOpsCLI(base)
	if err != nil {
		return fail("consol refresh: %v", err)
	}
	info, err := ops.TriggerRefresh(ctx, asOf)
	if err != nil {
		return fail("consol refresh: %v", err)
	}
	fmt.Printf("enqueued %s (%s)\n", info.Type, info.ID)
	return subcommands.ExitSuccess
}

type jobsTriggerCmd struct{}

func (*jobsTriggerCmd) Name() string     { return "trigger" }
func (*jobsTriggerCmd) Synopsis() string { return "enqueue a job by task name" }
func (*jobsTriggerCmd) Usage() string {
	return `jobs trigger <consol:refresh|fx:refresh|gl:integrity>
`
}

func (*jobsTriggerCmd) SetFlags(*flag.FlagSet) {}

func (*jobsTriggerCmd) Execute(ctx context.Context, f *flag.FlagSet, _ ...interface{}) subcommands.ExitStatus {
	if f.NArg() != 1 {
		fmt.Fprint(os.Stderr, (&jobsTriggerCmd{}).Usage())
		return subcommands.ExitUsageError
	}
	cfg, err := app.LoadConfig()
	if err != nil {
		return fail("jobs trigger: %v", err)
	}
	jobsCLI, err := cli.NewJobsCLI(cfg.AsynqRedis())
	if err != nil {
		return fail("jobs trigger: %v", err)
	}
	defer jobsCLI.Close()
	info, err := jobsCLI.Trigger(ctx, f.Arg(0))
	if err != nil {
		return fail("jobs trigger: %v", err)
	}
	fmt.Printf("enqueued %s (%s)\n", info.Type, info.ID)
	return subcommands.ExitSuccess
}

type jobsStatusCmd struct {
	scheduled int
}

func (*jobsStatusCmd) Name() string     { return "status" }
func (*jobsStatusCmd) Synopsis() string { return "show queue depth and scheduled jobs" }
func (*jobsStatusCmd) Usage() string {
	return `jobs status [-scheduled n]
`
}

func (c *jobsStatusCmd) SetFlags(f *flag.FlagSet) {
	f.IntVar(&c.scheduled, "scheduled", 10, "number of scheduled jobs to list")
}

func (c *jobsStatusCmd) Execute(ctx context.Context, _ *flag.FlagSet, _ ...interface{}) subcommands.ExitStatus {
	cfg, err := app.LoadConfig()
	if err != nil {
		return fail("jobs status: %v", err)
	}
	jobsCLI, err := cli.NewJobsCLI(cfg.AsynqRedis())
	if err != nil {
		return fail("jobs status: %v", err)
	}
	defer jobsCLI.Close()
	stats, err := jobsCLI.InspectQueue(ctx)
	if err != nil {
		return fail("jobs status: %v", err)
	}
	fmt.Printf("queue %s: pending=%d active=%d scheduled=%d retry=%d\n", stats.Queue, stats.Pending, stats.Active, stats.Scheduled, stats.Retry)
	tasks, err := jobsCLI.ListScheduled(ctx, c.scheduled)
	if err != nil {
		return fail("jobs status: %v", err)
	}
	for _, t := range tasks {
		fmt.Printf(" - %s %s at %s\n", t.Type, t.ID, t.NextProcessAt.Format(time.RFC3339))
	}
	return subcommands.ExitSuccess
}

func splitList(v string) []string {
	var out []string
	for _, part := range strings.Split(v, ",") {
		if p := strings.TrimSpace(part); p != "" {
			out = append(out, p)
		}
	}
	return out
}
