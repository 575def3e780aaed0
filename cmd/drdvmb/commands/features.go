package commands

import (
	"context"
	"fmt"
	"strings"

	"github.com/alecthomas/kingpin/v2"

	"github.com/EtchedChampion/drd-VmbPy/internal/printer"
	"github.com/EtchedChampion/drd-VmbPy/pkg/vmb"
)

type FeaturesCommand struct {
	Cmd     *kingpin.CmdClause
	rootCmd *RootCommand

	cameraID string
	category string
	typeName string
	format   string
}

// NewFeaturesCommand returns the features command.
func NewFeaturesCommand(rootCmd *RootCommand, app *kingpin.Application) *FeaturesCommand {
	c := &FeaturesCommand{rootCmd: rootCmd}

	c.Cmd = app.Command("features", "List the features of a camera.")
	c.Cmd.Flag("camera", "Camera ID (defaults to the only detected camera).").StringVar(&c.cameraID)
	c.Cmd.Flag("category", "Filter by feature category.").StringVar(&c.category)
	c.Cmd.Flag("type", "Filter by feature type (int, float, enum, string, bool, command, raw).").StringVar(&c.typeName)
	c.Cmd.Flag("format", "Output format (table, json).").Default("table").EnumVar(&c.format, "table", "json")

	return c
}

func (c FeaturesCommand) Name() string { return c.Cmd.FullCommand() }

func (c FeaturesCommand) Run(ctx context.Context) error {
	// Parse type filter if provided.
	var typeFilter *vmb.FeatureType
	if c.typeName != "" {
		ft, err := parseFeatureType(c.typeName)
		if err != nil {
			return err
		}
		typeFilter = &ft
	}

	return withCamera(ctx, c.rootCmd, c.cameraID, func(sys *vmb.VmbSystem, cam *vmb.Camera) error {
		var feats []*vmb.Feature
		var err error
		switch {
		case c.category != "":
			feats, err = cam.FeaturesByCategory(c.category)
		case typeFilter != nil:
			feats, err = cam.FeaturesByType(*typeFilter)
		default:
			feats, err = cam.Features()
		}
		if err != nil {
			return fmt.Errorf("could not list features: %w", err)
		}

		rows := make([]printer.FeatureRow, 0, len(feats))
		for _, f := range feats {
			if typeFilter != nil && f.Type() != *typeFilter {
				continue
			}

			rows = append(rows, printer.FeatureRow{
				Name:     f.Name(),
				Category: f.Category(),
				Type:     f.Type().String(),
				Access:   featureAccessString(f),
				Value:    featureValueString(f),
				Unit:     f.Unit(),
			})
		}

		if err := newPrinter(c.rootCmd, c.format).PrintFeatureList(rows); err != nil {
			return fmt.Errorf("could not print features: %w", err)
		}

		return nil
	})
}

func parseFeatureType(name string) (vmb.FeatureType, error) {
	switch strings.ToLower(name) {
	case "int":
		return vmb.FeatureTypeInt, nil
	case "float":
		return vmb.FeatureTypeFloat, nil
	case "enum":
		return vmb.FeatureTypeEnum, nil
	case "string":
		return vmb.FeatureTypeString, nil
	case "bool":
		return vmb.FeatureTypeBool, nil
	case "command":
		return vmb.FeatureTypeCommand, nil
	case "raw":
		return vmb.FeatureTypeRaw, nil
	}
	return vmb.FeatureTypeUnknown, fmt.Errorf("invalid feature type filter: %s (must be: int, float, enum, string, bool, command, raw)", name)
}
