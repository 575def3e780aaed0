package sim

import (
	"context"
	"encoding/xml"
	"fmt"
	"os"
	"strconv"

	"github.com/EtchedChampion/drd-VmbPy/internal/vmbc"
)

// settingsFile is the XML document produced by SettingsSave. The format
// follows the feature dump shape of the vendor tooling: one element per
// feature carrying its name, primitive type and current value.
type settingsFile struct {
	XMLName  xml.Name          `xml:"CameraSettings"`
	ID       string            `xml:"ID,attr"`
	Version  string            `xml:"Version,attr"`
	Features []settingsFeature `xml:"Feature"`
}

type settingsFeature struct {
	Name  string `xml:"Name,attr"`
	Type  string `xml:"Type,attr"`
	Value string `xml:",chardata"`
}

// SettingsSave dumps the persistable features of a handle scope to an XML
// file.
func (d *Driver) SettingsSave(ctx context.Context, h vmbc.Handle, path string, s vmbc.PersistSettings) error {
	e, err := d.resolve("SettingsSave", h)
	if err != nil {
		return err
	}

	specs := e.feats.snapshot(func(f *feature) bool {
		if !f.readable || !f.writeable {
			return false
		}
		switch s.Type {
		case vmbc.PersistStreamable:
			return f.info.IsStreamable
		case vmbc.PersistNoLUT:
			return !isLUTFeature(f.info.Name)
		}
		return true
	})

	id := "System"
	if e.dev != nil {
		id = e.dev.info.ID
	}
	file := settingsFile{ID: id, Version: d.Version()}
	for _, spec := range specs {
		sf := settingsFeature{Name: spec.Name, Type: spec.Type.String()}
		switch spec.Type {
		case vmbc.FeatureTypeInt:
			sf.Value = strconv.FormatInt(spec.Int.Value, 10)
		case vmbc.FeatureTypeFloat:
			sf.Value = strconv.FormatFloat(spec.Float.Value, 'g', -1, 64)
		case vmbc.FeatureTypeBool:
			sf.Value = strconv.FormatBool(spec.Bool.Value)
		case vmbc.FeatureTypeString:
			sf.Value = spec.String.Value
		case vmbc.FeatureTypeEnum:
			sf.Value = spec.Enum.Value
		default:
			continue
		}
		file.Features = append(file.Features, sf)
	}

	data, err := xml.MarshalIndent(file, "", "  ")
	if err != nil {
		return vmbc.NewStatusMsg("SettingsSave", vmbc.ErrInternalFault, "encoding settings: %v", err)
	}
	data = append([]byte(xml.Header), data...)

	if err := os.WriteFile(path, data, 0o644); err != nil {
		return vmbc.NewStatusMsg("SettingsSave", vmbc.ErrIO, "writing settings file: %v", err)
	}

	d.logger.Debugf("Saved %d features to %s", len(file.Features), path)
	return nil
}

// SettingsLoad applies a previously saved XML settings file to a handle
// scope. Features are applied in document order, failed writes are retried
// for up to MaxIterations passes to resolve order dependencies. Features
// that still cannot be applied are logged and skipped.
func (d *Driver) SettingsLoad(ctx context.Context, h vmbc.Handle, path string, s vmbc.PersistSettings) error {
	if _, err := d.resolve("SettingsLoad", h); err != nil {
		return err
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return vmbc.NewStatusMsg("SettingsLoad", vmbc.ErrIO, "reading settings file: %v", err)
	}

	var file settingsFile
	if err := xml.Unmarshal(data, &file); err != nil {
		return vmbc.NewStatusMsg("SettingsLoad", vmbc.ErrBadParameter, "parsing settings file: %v", err)
	}

	passes := s.MaxIterations
	if passes <= 0 {
		passes = 5
	}

	remaining := file.Features
	for i := 0; i < passes && len(remaining) > 0; i++ {
		var failed []settingsFeature
		for _, sf := range remaining {
			if err := d.applySetting(h, sf); err != nil {
				failed = append(failed, sf)
			}
		}
		if len(failed) == len(remaining) {
			remaining = failed
			break
		}
		remaining = failed
	}

	for _, sf := range remaining {
		d.logger.Warningf("Settings load could not apply feature %s", sf.Name)
	}

	d.logger.Debugf("Loaded %d features from %s", len(file.Features)-len(remaining), path)
	return nil
}

func (d *Driver) applySetting(h vmbc.Handle, sf settingsFeature) error {
	switch sf.Type {
	case "Int":
		v, err := strconv.ParseInt(sf.Value, 10, 64)
		if err != nil {
			return fmt.Errorf("parsing int value: %w", err)
		}
		return d.FeatureIntSet(h, sf.Name, v)
	case "Float":
		v, err := strconv.ParseFloat(sf.Value, 64)
		if err != nil {
			return fmt.Errorf("parsing float value: %w", err)
		}
		return d.FeatureFloatSet(h, sf.Name, v)
	case "Bool":
		v, err := strconv.ParseBool(sf.Value)
		if err != nil {
			return fmt.Errorf("parsing bool value: %w", err)
		}
		return d.FeatureBoolSet(h, sf.Name, v)
	case "String":
		return d.FeatureStringSet(h, sf.Name, sf.Value)
	case "Enum":
		return d.FeatureEnumSet(h, sf.Name, sf.Value)
	}
	return fmt.Errorf("unknown feature type %q", sf.Type)
}
