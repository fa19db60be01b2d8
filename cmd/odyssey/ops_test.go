package main

import (
	"context"
	"flag"
	"testing"

	"github.com/google/subcommands"
	"github.com/stretchr/testify/require"
)

type recordCmd struct {
	name  string
	value string
	args  []string
}

func (c *recordCmd) Name() string     { return c.name }
func (c *recordCmd) Synopsis() string { return "records its flags" }
func (c *recordCmd) Usage() string    { return c.name }
func (c *recordCmd) SetFlags(f *flag.FlagSet) {
	f.StringVar(&c.value, "value", "", "")
}

func (c *recordCmd) Execute(_ context.Context, f *flag.FlagSet, _ ...interface{}) subcommands.ExitStatus {
	c.args = f.Args()
	return subcommands.ExitStatus(7)
}

func TestGroupDispatchesToNestedCommand(t *testing.T) {
	leaf := &recordCmd{name: "check"}
	group := &groupCmd{name: "demo", synopsis: "demo group", commands: []subcommands.Command{leaf}}

	top := flag.NewFlagSet("odyssey", flag.ContinueOnError)
	commander := subcommands.NewCommander(top, "odyssey")
	commander.Register(group, "")
	require.NoError(t, top.Parse([]string{"demo", "check", "-value", "x", "rest"}))

	status := commander.Execute(context.Background())
	require.Equal(t, subcommands.ExitStatus(7), status)
	require.Equal(t, "x", leaf.value)
	require.Equal(t, []string{"rest"}, leaf.args)
	require.Contains(t, group.Usage(), "check")
}

func TestGroupRejectsUnknownCommand(t *testing.T) {
	group := &groupCmd{name: "demo", commands: []subcommands.Command{&recordCmd{name: "check"}}}
	top := flag.NewFlagSet("odyssey", flag.ContinueOnError)
	commander := subcommands.NewCommander(top, "odyssey")
	commander.Register(group, "")
	require.NoError(t, top.Parse([]string{"demo", "nope"}))

	require.Equal(t, subcommands.ExitUsageError, commander.Execute(context.Background()))
}

func TestSplitList(t *testing.T) {
	require.Equal(t, []string{"EUR/USD", "JPY/USD"}, splitList(" EUR/USD, ,JPY/USD "))
	require.Nil(t, splitList(""))
}
