package commands

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/alecthomas/kingpin/v2"

	"github.com/EtchedChampion/drd-VmbPy/internal/printer"
	"github.com/EtchedChampion/drd-VmbPy/pkg/vmb"
)

type GrabCommand struct {
	Cmd     *kingpin.CmdClause
	rootCmd *RootCommand

	cameraID string
	count    int
	timeout  time.Duration
	format   string
}

// NewGrabCommand returns the grab command.
func NewGrabCommand(rootCmd *RootCommand, app *kingpin.Application) *GrabCommand {
	c := &GrabCommand{rootCmd: rootCmd}

	c.Cmd = app.Command("grab", "Capture a fixed number of frames synchronously.")
	c.Cmd.Flag("camera", "Camera ID (defaults to the only detected camera).").StringVar(&c.cameraID)
	c.Cmd.Flag("count", "Number of frames to capture.").Default("5").IntVar(&c.count)
	c.Cmd.Flag("timeout", "Per frame capture timeout.").Default("2s").DurationVar(&c.timeout)
	c.Cmd.Flag("format", "Output format (table, json).").Default("table").EnumVar(&c.format, "table", "json")

	return c
}

func (c GrabCommand) Name() string { return c.Cmd.FullCommand() }

func (c GrabCommand) Run(ctx context.Context) error {
	return withCamera(ctx, c.rootCmd, c.cameraID, func(sys *vmb.VmbSystem, cam *vmb.Camera) error {
		it, err := cam.FrameIter(c.count, c.timeout)
		if err != nil {
			return fmt.Errorf("could not create frame iterator: %w", err)
		}

		rows := make([]printer.FrameRow, 0, c.count)
		for {
			frame, err := it.Next(ctx)
			if errors.Is(err, vmb.ErrExhausted) {
				break
			}
			if err != nil {
				return fmt.Errorf("could not capture frame: %w", err)
			}

			row := printer.FrameRow{
				Status:    frame.Status().String(),
				SizeBytes: int64(frame.BufferSize()),
			}
			row.ID, _ = frame.ID()
			row.Width, _ = frame.Width()
			row.Height, _ = frame.Height()
			row.TimestampNS, _ = frame.Timestamp()
			rows = append(rows, row)
		}

		if err := newPrinter(c.rootCmd, c.format).PrintFrameList(rows); err != nil {
			return fmt.Errorf("could not print frames: %w", err)
		}

		return nil
	})
}
