package commands

import (
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strconv"

	"github.com/alecthomas/kingpin/v2"

	"github.com/EtchedChampion/drd-VmbPy/internal/log"
	"github.com/EtchedChampion/drd-VmbPy/internal/printer"
	"github.com/EtchedChampion/drd-VmbPy/pkg/vmb"
)

const (
	// LoggerTypeDefault is the logger default type.
	LoggerTypeDefault = "default"
	// LoggerTypeJSON is the logger json type.
	LoggerTypeJSON = "json"
)

// Command represents an application command, all commands that want to be executed
// should implement and setup on main.
type Command interface {
	Name() string
	Run(ctx context.Context) error
}

// RootCommand represents the root command configuration and global configuration
// for all the commands.
type RootCommand struct {
	// Global flags.
	Debug       bool
	NoLog       bool
	NoColor     bool
	LoggerType  string
	ProfilePath string

	// Global instances.
	Stdin  io.Reader
	Stdout io.Writer
	Stderr io.Writer
	Logger log.Logger
}

// NewRootCommand initializes the main root configuration.
func NewRootCommand(app *kingpin.Application) *RootCommand {
	c := &RootCommand{}

	app.Flag("debug", "Enable debug mode.").BoolVar(&c.Debug)
	app.Flag("no-log", "Disable logger.").BoolVar(&c.NoLog)
	app.Flag("no-color", "Disable logger color.").BoolVar(&c.NoColor)
	app.Flag("logger", "Selects the logger type.").Default(LoggerTypeDefault).EnumVar(&c.LoggerType, LoggerTypeDefault, LoggerTypeJSON)
	app.Flag("profile", "Path to a YAML camera profile for the simulated transport.").Envar("DRDVMB_PROFILE").StringVar(&c.ProfilePath)

	return c
}

// newPrinter returns the output printer matching a command --format flag.
func newPrinter(rootCmd *RootCommand, format string) printer.Printer {
	if format == "json" {
		return printer.NewJSONPrinter(rootCmd.Stdout)
	}
	return printer.NewTablePrinter(rootCmd.Stdout)
}

// withSystem starts the camera system, runs fn and shuts the system down
// afterwards.
func withSystem(ctx context.Context, rootCmd *RootCommand, fn func(sys *vmb.VmbSystem) error) error {
	cfg := vmb.Config{Logger: rootCmd.Logger}
	if rootCmd.ProfilePath != "" {
		abs, err := filepath.Abs(rootCmd.ProfilePath)
		if err != nil {
			return fmt.Errorf("could not resolve profile path: %w", err)
		}
		cfg.ProfileFS = os.DirFS(filepath.Dir(abs))
		cfg.ProfilePath = filepath.Base(abs)
	}

	sys, err := vmb.New(cfg)
	if err != nil {
		return fmt.Errorf("could not create camera system: %w", err)
	}

	if err := sys.Startup(ctx); err != nil {
		return fmt.Errorf("could not start camera system: %w", err)
	}
	defer func() {
		if err := sys.Shutdown(context.Background()); err != nil {
			rootCmd.Logger.Warningf("Camera system shutdown failed: %s", err)
		}
	}()

	return fn(sys)
}

// withCamera starts the camera system, opens the camera and runs fn. An
// empty id selects the only camera when exactly one is present.
func withCamera(ctx context.Context, rootCmd *RootCommand, id string, fn func(sys *vmb.VmbSystem, cam *vmb.Camera) error) error {
	return withSystem(ctx, rootCmd, func(sys *vmb.VmbSystem) error {
		cam, err := resolveCamera(sys, id)
		if err != nil {
			return err
		}

		if err := cam.Open(ctx); err != nil {
			return fmt.Errorf("could not open camera: %w", err)
		}
		defer func() {
			if err := cam.Close(context.Background()); err != nil {
				rootCmd.Logger.Warningf("Camera close failed: %s", err)
			}
		}()

		return fn(sys, cam)
	})
}

func resolveCamera(sys *vmb.VmbSystem, id string) (*vmb.Camera, error) {
	if id != "" {
		cam, err := sys.CameraByID(id)
		if err != nil {
			return nil, fmt.Errorf("could not get camera: %w", err)
		}
		return cam, nil
	}

	cams, err := sys.Cameras()
	if err != nil {
		return nil, fmt.Errorf("could not list cameras: %w", err)
	}
	switch len(cams) {
	case 0:
		return nil, fmt.Errorf("no cameras detected")
	case 1:
		return cams[0], nil
	}
	return nil, fmt.Errorf("%d cameras detected, select one with --camera", len(cams))
}

// featureValueString renders the current value of a feature for display.
// Unreadable features render empty.
func featureValueString(f *vmb.Feature) string {
	if !f.IsReadable() {
		return ""
	}

	switch f.Type() {
	case vmb.FeatureTypeInt:
		if view, err := f.Int(); err == nil {
			if v, err := view.Get(); err == nil {
				return strconv.FormatInt(v, 10)
			}
		}
	case vmb.FeatureTypeFloat:
		if view, err := f.Float(); err == nil {
			if v, err := view.Get(); err == nil {
				return strconv.FormatFloat(v, 'g', -1, 64)
			}
		}
	case vmb.FeatureTypeBool:
		if view, err := f.Bool(); err == nil {
			if v, err := view.Get(); err == nil {
				return strconv.FormatBool(v)
			}
		}
	case vmb.FeatureTypeString:
		if view, err := f.StringFeature(); err == nil {
			if v, err := view.Get(); err == nil {
				return v
			}
		}
	case vmb.FeatureTypeEnum:
		if view, err := f.Enum(); err == nil {
			if e, err := view.Get(); err == nil {
				return e.Name()
			}
		}
	case vmb.FeatureTypeRaw:
		if view, err := f.Raw(); err == nil {
			if v, err := view.Get(); err == nil {
				return fmt.Sprintf("<%d bytes>", len(v))
			}
		}
	}
	return ""
}

// featureAccessString renders the live access mode of a feature in the
// usual rw/ro/wo notation.
func featureAccessString(f *vmb.Feature) string {
	readable, writeable, err := f.AccessMode()
	if err != nil {
		return "--"
	}

	switch {
	case readable && writeable:
		return "rw"
	case readable:
		return "ro"
	case writeable:
		return "wo"
	}
	return "--"
}
