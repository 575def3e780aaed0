package commands

import (
	"context"
	"fmt"
	"sync/atomic"
	"time"

	"github.com/alecthomas/kingpin/v2"

	"github.com/EtchedChampion/drd-VmbPy/pkg/vmb"
)

type StreamCommand struct {
	Cmd     *kingpin.CmdClause
	rootCmd *RootCommand

	cameraID string
	buffers  int
	duration time.Duration
}

// NewStreamCommand returns the stream command.
func NewStreamCommand(rootCmd *RootCommand, app *kingpin.Application) *StreamCommand {
	c := &StreamCommand{rootCmd: rootCmd}

	c.Cmd = app.Command("stream", "Stream frames asynchronously until interrupted.")
	c.Cmd.Flag("camera", "Camera ID (defaults to the only detected camera).").StringVar(&c.cameraID)
	c.Cmd.Flag("buffers", "Number of frame buffers to announce.").Default("5").IntVar(&c.buffers)
	c.Cmd.Flag("duration", "Stop streaming after this duration (0 streams until interrupted).").Default("0").DurationVar(&c.duration)

	return c
}

func (c StreamCommand) Name() string { return c.Cmd.FullCommand() }

func (c StreamCommand) Run(ctx context.Context) error {
	logger := c.rootCmd.Logger

	if c.duration > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, c.duration)
		defer cancel()
	}

	return withCamera(ctx, c.rootCmd, c.cameraID, func(sys *vmb.VmbSystem, cam *vmb.Camera) error {
		var frames, incomplete atomic.Uint64
		handler := func(cam *vmb.Camera, stream *vmb.Stream, frame *vmb.Frame) {
			if frame.Status() == vmb.FrameStatusComplete {
				frames.Add(1)
			} else {
				incomplete.Add(1)
			}

			if err := stream.QueueFrame(frame); err != nil {
				logger.Warningf("Could not requeue frame: %s", err)
			}
		}

		if err := cam.StartStreaming(handler, vmb.StreamOptions{BufferCount: c.buffers}); err != nil {
			return fmt.Errorf("could not start streaming: %w", err)
		}
		logger.Infof("Streaming started on camera %s", cam.ID())

		// Report frame rates until the stream ends.
		start := time.Now()
		ticker := time.NewTicker(time.Second)
		defer ticker.Stop()

		var last uint64
		for {
			select {
			case <-ctx.Done():
				if err := cam.StopStreaming(); err != nil {
					return fmt.Errorf("could not stop streaming: %w", err)
				}

				total := frames.Load()
				elapsed := time.Since(start)
				logger.Infof("Streaming stopped: %d frames in %s (%.1f fps, %d incomplete)",
					total, elapsed.Round(time.Millisecond), float64(total)/elapsed.Seconds(), incomplete.Load())
				return nil
			case <-ticker.C:
				total := frames.Load()
				logger.Infof("Streaming at %d fps (%d frames total)", total-last, total)
				last = total
			}
		}
	})
}
