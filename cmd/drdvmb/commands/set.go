package commands

import (
	"context"
	"fmt"
	"strconv"

	"github.com/alecthomas/kingpin/v2"

	"github.com/EtchedChampion/drd-VmbPy/pkg/vmb"
)

type SetCommand struct {
	Cmd     *kingpin.CmdClause
	rootCmd *RootCommand

	cameraID string
	feature  string
	value    string
}

// NewSetCommand returns the set command.
func NewSetCommand(rootCmd *RootCommand, app *kingpin.Application) *SetCommand {
	c := &SetCommand{rootCmd: rootCmd}

	c.Cmd = app.Command("set", "Write the value of a camera feature.")
	c.Cmd.Arg("feature", "Feature name.").Required().StringVar(&c.feature)
	c.Cmd.Arg("value", "New value (enum entries by name).").Required().StringVar(&c.value)
	c.Cmd.Flag("camera", "Camera ID (defaults to the only detected camera).").StringVar(&c.cameraID)

	return c
}

func (c SetCommand) Name() string { return c.Cmd.FullCommand() }

func (c SetCommand) Run(ctx context.Context) error {
	logger := c.rootCmd.Logger

	return withCamera(ctx, c.rootCmd, c.cameraID, func(sys *vmb.VmbSystem, cam *vmb.Camera) error {
		f, err := cam.FeatureByName(c.feature)
		if err != nil {
			return fmt.Errorf("could not get feature: %w", err)
		}

		if err := writeFeatureValue(f, c.value); err != nil {
			return fmt.Errorf("could not set feature: %w", err)
		}

		logger.Infof("Feature %s set to %s", c.feature, c.value)
		return nil
	})
}

// writeFeatureValue parses value according to the feature type and writes
// it.
func writeFeatureValue(f *vmb.Feature, value string) error {
	switch f.Type() {
	case vmb.FeatureTypeInt:
		view, err := f.Int()
		if err != nil {
			return err
		}
		v, err := strconv.ParseInt(value, 10, 64)
		if err != nil {
			return fmt.Errorf("invalid integer value %q: %w", value, err)
		}
		return view.Set(v)
	case vmb.FeatureTypeFloat:
		view, err := f.Float()
		if err != nil {
			return err
		}
		v, err := strconv.ParseFloat(value, 64)
		if err != nil {
			return fmt.Errorf("invalid float value %q: %w", value, err)
		}
		return view.Set(v)
	case vmb.FeatureTypeBool:
		view, err := f.Bool()
		if err != nil {
			return err
		}
		v, err := strconv.ParseBool(value)
		if err != nil {
			return fmt.Errorf("invalid boolean value %q: %w", value, err)
		}
		return view.Set(v)
	case vmb.FeatureTypeString:
		view, err := f.StringFeature()
		if err != nil {
			return err
		}
		return view.Set(value)
	case vmb.FeatureTypeEnum:
		view, err := f.Enum()
		if err != nil {
			return err
		}
		return view.SetByName(value)
	case vmb.FeatureTypeCommand:
		return fmt.Errorf("feature %s is a command, execute it with the run command", f.Name())
	}
	return fmt.Errorf("feature %s type %s is not settable from the command line", f.Name(), f.Type())
}
