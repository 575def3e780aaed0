package commands

import (
	"context"
	"fmt"
	"time"

	"github.com/alecthomas/kingpin/v2"

	"github.com/EtchedChampion/drd-VmbPy/pkg/vmb"
)

type RunCommand struct {
	Cmd     *kingpin.CmdClause
	rootCmd *RootCommand

	cameraID string
	feature  string
	wait     bool
	timeout  time.Duration
}

// NewRunCommand returns the run command.
func NewRunCommand(rootCmd *RootCommand, app *kingpin.Application) *RunCommand {
	c := &RunCommand{rootCmd: rootCmd}

	c.Cmd = app.Command("run", "Execute a camera command feature.")
	c.Cmd.Arg("feature", "Command feature name.").Required().StringVar(&c.feature)
	c.Cmd.Flag("camera", "Camera ID (defaults to the only detected camera).").StringVar(&c.cameraID)
	c.Cmd.Flag("wait", "Wait until the command completed.").Default("true").BoolVar(&c.wait)
	c.Cmd.Flag("timeout", "Completion wait timeout.").Default("10s").DurationVar(&c.timeout)

	return c
}

func (c RunCommand) Name() string { return c.Cmd.FullCommand() }

func (c RunCommand) Run(ctx context.Context) error {
	logger := c.rootCmd.Logger

	return withCamera(ctx, c.rootCmd, c.cameraID, func(sys *vmb.VmbSystem, cam *vmb.Camera) error {
		cmd, err := vmb.AsCommand(cam.FeatureByName(c.feature))
		if err != nil {
			return fmt.Errorf("could not get command feature: %w", err)
		}

		if err := cmd.Run(); err != nil {
			return fmt.Errorf("could not run command: %w", err)
		}

		if !c.wait {
			logger.Infof("Command %s started", c.feature)
			return nil
		}

		deadline := time.Now().Add(c.timeout)
		for {
			done, err := cmd.IsDone()
			if err != nil {
				return fmt.Errorf("could not poll command state: %w", err)
			}
			if done {
				break
			}
			if time.Now().After(deadline) {
				return fmt.Errorf("command %s did not complete within %s", c.feature, c.timeout)
			}

			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-time.After(10 * time.Millisecond):
			}
		}

		logger.Infof("Command %s completed", c.feature)
		return nil
	})
}
