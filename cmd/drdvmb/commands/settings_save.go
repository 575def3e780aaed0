package commands

import (
	"context"
	"fmt"

	"github.com/alecthomas/kingpin/v2"

	"github.com/EtchedChampion/drd-VmbPy/pkg/vmb"
)

const (
	persistAll        = "all"
	persistStreamable = "streamable"
	persistNoLUT      = "nolut"
)

type SettingsSaveCommand struct {
	Cmd     *kingpin.CmdClause
	rootCmd *RootCommand

	cameraID string
	file     string
	persist  string
}

// NewSettingsSaveCommand returns the settings save command.
func NewSettingsSaveCommand(rootCmd *RootCommand, parent *kingpin.CmdClause) *SettingsSaveCommand {
	c := &SettingsSaveCommand{rootCmd: rootCmd}

	c.Cmd = parent.Command("save", "Save the camera settings to an XML file.")
	c.Cmd.Arg("file", "Settings file path (must end in .xml).").Required().StringVar(&c.file)
	c.Cmd.Flag("camera", "Camera ID (defaults to the only detected camera).").StringVar(&c.cameraID)
	c.Cmd.Flag("persist", "Feature selection to persist.").Default(persistAll).EnumVar(&c.persist, persistAll, persistStreamable, persistNoLUT)

	return c
}

func (c SettingsSaveCommand) Name() string { return c.Cmd.FullCommand() }

func (c SettingsSaveCommand) Run(ctx context.Context) error {
	logger := c.rootCmd.Logger

	return withCamera(ctx, c.rootCmd, c.cameraID, func(sys *vmb.VmbSystem, cam *vmb.Camera) error {
		opts := vmb.SettingsOptions{PersistType: parsePersistType(c.persist)}
		if err := cam.SaveSettings(ctx, c.file, opts); err != nil {
			return fmt.Errorf("could not save settings: %w", err)
		}

		logger.Infof("Settings of camera %s saved to %s", cam.ID(), c.file)
		return nil
	})
}

func parsePersistType(name string) vmb.PersistType {
	switch name {
	case persistStreamable:
		return vmb.PersistStreamable
	case persistNoLUT:
		return vmb.PersistNoLUT
	}
	return vmb.PersistAll
}
