package commands

import (
	"context"
	"fmt"

	"github.com/alecthomas/kingpin/v2"

	"github.com/EtchedChampion/drd-VmbPy/internal/printer"
	"github.com/EtchedChampion/drd-VmbPy/pkg/vmb"
)

type VersionCommand struct {
	Cmd     *kingpin.CmdClause
	rootCmd *RootCommand
}

// NewVersionCommand returns the version command.
func NewVersionCommand(rootCmd *RootCommand, app *kingpin.Application) *VersionCommand {
	c := &VersionCommand{rootCmd: rootCmd}

	c.Cmd = app.Command("version", "Show the transport layer version.")

	return c
}

func (c VersionCommand) Name() string { return c.Cmd.FullCommand() }

func (c VersionCommand) Run(ctx context.Context) error {
	sys, err := vmb.New(vmb.Config{Logger: c.rootCmd.Logger})
	if err != nil {
		return fmt.Errorf("could not create camera system: %w", err)
	}

	p := printer.NewTablePrinter(c.rootCmd.Stdout)
	if err := p.PrintMessage(sys.Version()); err != nil {
		return fmt.Errorf("could not print version: %w", err)
	}

	return nil
}
