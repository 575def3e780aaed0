package commands

import (
	"context"
	"fmt"
	"strings"

	"github.com/alecthomas/kingpin/v2"

	"github.com/EtchedChampion/drd-VmbPy/internal/printer"
	"github.com/EtchedChampion/drd-VmbPy/pkg/vmb"
)

type ListCommand struct {
	Cmd     *kingpin.CmdClause
	rootCmd *RootCommand

	format string
}

// NewListCommand returns the list command.
func NewListCommand(rootCmd *RootCommand, app *kingpin.Application) *ListCommand {
	c := &ListCommand{rootCmd: rootCmd}

	c.Cmd = app.Command("list", "List all detected cameras.")
	c.Cmd.Flag("format", "Output format (table, json).").Default("table").EnumVar(&c.format, "table", "json")

	return c
}

func (c ListCommand) Name() string { return c.Cmd.FullCommand() }

func (c ListCommand) Run(ctx context.Context) error {
	return withSystem(ctx, c.rootCmd, func(sys *vmb.VmbSystem) error {
		cams, err := sys.Cameras()
		if err != nil {
			return fmt.Errorf("could not list cameras: %w", err)
		}

		rows := make([]printer.CameraRow, 0, len(cams))
		for _, cam := range cams {
			modes := make([]string, 0, len(cam.PermittedAccessModes()))
			for _, m := range cam.PermittedAccessModes() {
				modes = append(modes, m.String())
			}

			rows = append(rows, printer.CameraRow{
				ID:          cam.ID(),
				Name:        cam.Name(),
				Model:       cam.Model(),
				Serial:      cam.Serial(),
				InterfaceID: cam.InterfaceID(),
				Access:      strings.Join(modes, ","),
			})
		}

		if err := newPrinter(c.rootCmd, c.format).PrintCameraList(rows); err != nil {
			return fmt.Errorf("could not print list: %w", err)
		}

		return nil
	})
}
