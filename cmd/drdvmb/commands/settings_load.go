package commands

import (
	"context"
	"fmt"

	"github.com/alecthomas/kingpin/v2"

	"github.com/EtchedChampion/drd-VmbPy/pkg/vmb"
)

type SettingsLoadCommand struct {
	Cmd     *kingpin.CmdClause
	rootCmd *RootCommand

	cameraID      string
	file          string
	maxIterations int
}

// NewSettingsLoadCommand returns the settings load command.
func NewSettingsLoadCommand(rootCmd *RootCommand, parent *kingpin.CmdClause) *SettingsLoadCommand {
	c := &SettingsLoadCommand{rootCmd: rootCmd}

	c.Cmd = parent.Command("load", "Load camera settings from an XML file.")
	c.Cmd.Arg("file", "Settings file path (must end in .xml).").Required().StringVar(&c.file)
	c.Cmd.Flag("camera", "Camera ID (defaults to the only detected camera).").StringVar(&c.cameraID)
	c.Cmd.Flag("max-iterations", "Maximum apply passes for interdependent features.").Default("5").IntVar(&c.maxIterations)

	return c
}

func (c SettingsLoadCommand) Name() string { return c.Cmd.FullCommand() }

func (c SettingsLoadCommand) Run(ctx context.Context) error {
	logger := c.rootCmd.Logger

	return withCamera(ctx, c.rootCmd, c.cameraID, func(sys *vmb.VmbSystem, cam *vmb.Camera) error {
		opts := vmb.SettingsOptions{MaxIterations: c.maxIterations}
		if err := cam.LoadSettings(ctx, c.file, opts); err != nil {
			return fmt.Errorf("could not load settings: %w", err)
		}

		logger.Infof("Settings of camera %s loaded from %s", cam.ID(), c.file)
		return nil
	})
}
