package commands

import (
	"context"
	"fmt"
	"strings"

	"github.com/alecthomas/kingpin/v2"

	"github.com/EtchedChampion/drd-VmbPy/internal/printer"
	"github.com/EtchedChampion/drd-VmbPy/pkg/vmb"
)

type GetCommand struct {
	Cmd     *kingpin.CmdClause
	rootCmd *RootCommand

	cameraID string
	feature  string
	format   string
}

// NewGetCommand returns the get command.
func NewGetCommand(rootCmd *RootCommand, app *kingpin.Application) *GetCommand {
	c := &GetCommand{rootCmd: rootCmd}

	c.Cmd = app.Command("get", "Show the metadata and value of a camera feature.")
	c.Cmd.Arg("feature", "Feature name.").Required().StringVar(&c.feature)
	c.Cmd.Flag("camera", "Camera ID (defaults to the only detected camera).").StringVar(&c.cameraID)
	c.Cmd.Flag("format", "Output format (table, json).").Default("table").EnumVar(&c.format, "table", "json")

	return c
}

func (c GetCommand) Name() string { return c.Cmd.FullCommand() }

func (c GetCommand) Run(ctx context.Context) error {
	return withCamera(ctx, c.rootCmd, c.cameraID, func(sys *vmb.VmbSystem, cam *vmb.Camera) error {
		f, err := cam.FeatureByName(c.feature)
		if err != nil {
			return fmt.Errorf("could not get feature: %w", err)
		}

		detail := printer.FeatureDetail{
			Name:        f.Name(),
			DisplayName: f.DisplayName(),
			Category:    f.Category(),
			Description: f.Description(),
			Tooltip:     f.Tooltip(),
			Type:        f.Type().String(),
			Access:      featureAccessString(f),
			Visibility:  f.Visibility().String(),
			Unit:        f.Unit(),
			Streamable:  f.IsStreamable(),
			Value:       featureValueString(f),
			Range:       featureRangeString(f),
			Entries:     featureEntriesString(f),
		}

		if err := newPrinter(c.rootCmd, c.format).PrintFeatureDetail(detail); err != nil {
			return fmt.Errorf("could not print feature: %w", err)
		}

		return nil
	})
}

// featureRangeString renders the valid range of a numeric or string
// feature. Non numeric features render empty.
func featureRangeString(f *vmb.Feature) string {
	switch f.Type() {
	case vmb.FeatureTypeInt:
		view, err := f.Int()
		if err != nil {
			return ""
		}
		min, max, err := view.Range()
		if err != nil {
			return ""
		}
		inc, err := view.Increment()
		if err != nil || inc <= 1 {
			return fmt.Sprintf("[%d, %d]", min, max)
		}
		return fmt.Sprintf("[%d, %d] step %d", min, max, inc)
	case vmb.FeatureTypeFloat:
		view, err := f.Float()
		if err != nil {
			return ""
		}
		min, max, err := view.Range()
		if err != nil {
			return ""
		}
		return fmt.Sprintf("[%g, %g]", min, max)
	case vmb.FeatureTypeString:
		view, err := f.StringFeature()
		if err != nil {
			return ""
		}
		n, err := view.MaxLength()
		if err != nil {
			return ""
		}
		return fmt.Sprintf("max length %d", n)
	}
	return ""
}

// featureEntriesString renders the entries of an enumeration feature,
// marking the currently unavailable ones.
func featureEntriesString(f *vmb.Feature) string {
	view, err := f.Enum()
	if err != nil {
		return ""
	}

	entries, err := view.AllEntries()
	if err != nil {
		return ""
	}

	names := make([]string, 0, len(entries))
	for _, e := range entries {
		available, err := e.IsAvailable()
		if err == nil && !available {
			names = append(names, e.Name()+" (unavailable)")
			continue
		}
		names = append(names, e.Name())
	}
	return strings.Join(names, ", ")
}
