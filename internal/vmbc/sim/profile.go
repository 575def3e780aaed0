package sim

import (
	"fmt"
	"io/fs"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/EtchedChampion/drd-VmbPy/internal/vmbc"
)

// CameraSpec describes one simulated camera. Core acquisition features
// (Width, Height, PayloadSize, AcquisitionStart...) are added automatically
// when the spec does not define them.
type CameraSpec struct {
	ID              string
	Name            string
	Model           string
	Serial          string
	InterfaceID     string
	PermittedAccess vmbc.AccessMode
	StreamCount     int
	// FrameInterval is the pace of frame generation while acquiring.
	FrameInterval time.Duration
	Features      []FeatureSpec
}

// FeatureSpec describes one feature of a simulated camera. Exactly one of
// the typed payloads must match Type (commands carry none).
type FeatureSpec struct {
	Name           string
	Category       string
	DisplayName    string
	Tooltip        string
	Description    string
	Unit           string
	Representation string
	Type           vmbc.FeatureType
	Readable       bool
	Writeable      bool
	Streamable     bool
	Volatile       bool
	Visibility     vmbc.Visibility
	PollingTime    uint32
	// Affected lists features invalidated when this one is written.
	Affected []string
	// Selected lists features whose meaning depends on this one.
	Selected []string

	Int    *IntSpec
	Float  *FloatSpec
	Bool   *BoolSpec
	String *StringSpec
	Enum   *EnumSpec
	Raw    *RawSpec
}

// IntSpec is the payload of an integer feature.
type IntSpec struct {
	Value int64
	Min   int64
	Max   int64
	Inc   int64
}

// FloatSpec is the payload of a float feature.
type FloatSpec struct {
	Value  float64
	Min    float64
	Max    float64
	Inc    float64
	HasInc bool
}

// BoolSpec is the payload of a boolean feature.
type BoolSpec struct {
	Value bool
}

// StringSpec is the payload of a string feature.
type StringSpec struct {
	Value     string
	MaxLength int
}

// EnumSpec is the payload of an enumeration feature.
type EnumSpec struct {
	Value   string
	Entries []EnumEntrySpec
}

// EnumEntrySpec is one entry of an enumeration feature.
type EnumEntrySpec struct {
	Name        string
	Value       int64
	Unavailable bool
}

// RawSpec is the payload of a raw register feature.
type RawSpec struct {
	Value []byte
}

// LoadProfile loads camera specs from a YAML profile file.
func LoadProfile(filesystem fs.FS, path string) ([]CameraSpec, error) {
	data, err := fs.ReadFile(filesystem, path)
	if err != nil {
		return nil, fmt.Errorf("reading profile file: %w", err)
	}

	var p profile
	if err := yaml.Unmarshal(data, &p); err != nil {
		return nil, fmt.Errorf("parsing YAML: %w", err)
	}

	if err := p.validate(); err != nil {
		return nil, fmt.Errorf("invalid profile: %w", err)
	}

	return p.toSpecs()
}

// profile represents the YAML structure of a simulator profile.
type profile struct {
	Cameras []cameraYAML `yaml:"cameras"`
}

type cameraYAML struct {
	ID              string        `yaml:"id"`
	Name            string        `yaml:"name"`
	Model           string        `yaml:"model"`
	Serial          string        `yaml:"serial"`
	InterfaceID     string        `yaml:"interface_id"`
	PermittedAccess []string      `yaml:"permitted_access"`
	StreamCount     int           `yaml:"stream_count"`
	FrameIntervalMS int           `yaml:"frame_interval_ms"`
	Features        []featureYAML `yaml:"features"`
}

type featureYAML struct {
	Name           string   `yaml:"name"`
	Type           string   `yaml:"type"`
	Category       string   `yaml:"category"`
	DisplayName    string   `yaml:"display_name"`
	Tooltip        string   `yaml:"tooltip"`
	Description    string   `yaml:"description"`
	Unit           string   `yaml:"unit"`
	Representation string   `yaml:"representation"`
	Access         string   `yaml:"access"` // "rw", "ro", "wo"
	Streamable     bool     `yaml:"streamable"`
	Volatile       bool     `yaml:"volatile"`
	Visibility     string   `yaml:"visibility"`
	PollingTime    uint32   `yaml:"polling_time"`
	Affected       []string `yaml:"affected"`
	Selected       []string `yaml:"selected"`

	Value     yaml.Node       `yaml:"value"`
	Min       yaml.Node       `yaml:"min"`
	Max       yaml.Node       `yaml:"max"`
	Increment yaml.Node       `yaml:"increment"`
	MaxLength int             `yaml:"max_length"`
	Entries   []enumEntryYAML `yaml:"entries"`
}

type enumEntryYAML struct {
	Name        string `yaml:"name"`
	Value       int64  `yaml:"value"`
	Unavailable bool   `yaml:"unavailable"`
}

func (p profile) validate() error {
	if len(p.Cameras) == 0 {
		return fmt.Errorf("at least one camera is required")
	}

	seen := map[string]bool{}
	for _, c := range p.Cameras {
		if c.ID == "" {
			return fmt.Errorf("camera id is required")
		}
		if seen[c.ID] {
			return fmt.Errorf("duplicate camera id %q", c.ID)
		}
		seen[c.ID] = true

		for _, f := range c.Features {
			if f.Name == "" {
				return fmt.Errorf("camera %q: feature name is required", c.ID)
			}
			if _, err := parseFeatureType(f.Type); err != nil {
				return fmt.Errorf("camera %q: feature %q: %w", c.ID, f.Name, err)
			}
		}
	}

	return nil
}

func (p profile) toSpecs() ([]CameraSpec, error) {
	specs := make([]CameraSpec, 0, len(p.Cameras))
	for _, c := range p.Cameras {
		spec := CameraSpec{
			ID:              c.ID,
			Name:            c.Name,
			Model:           c.Model,
			Serial:          c.Serial,
			InterfaceID:     c.InterfaceID,
			PermittedAccess: parseAccessModes(c.PermittedAccess),
			StreamCount:     c.StreamCount,
			FrameInterval:   time.Duration(c.FrameIntervalMS) * time.Millisecond,
		}

		for _, f := range c.Features {
			fs, err := f.toSpec()
			if err != nil {
				return nil, fmt.Errorf("camera %q: feature %q: %w", c.ID, f.Name, err)
			}
			spec.Features = append(spec.Features, fs)
		}

		specs = append(specs, spec)
	}

	return specs, nil
}

func (f featureYAML) toSpec() (FeatureSpec, error) {
	typ, err := parseFeatureType(f.Type)
	if err != nil {
		return FeatureSpec{}, err
	}

	spec := FeatureSpec{
		Name:           f.Name,
		Category:       f.Category,
		DisplayName:    f.DisplayName,
		Tooltip:        f.Tooltip,
		Description:    f.Description,
		Unit:           f.Unit,
		Representation: f.Representation,
		Type:           typ,
		Streamable:     f.Streamable,
		Volatile:       f.Volatile,
		Visibility:     parseVisibility(f.Visibility),
		PollingTime:    f.PollingTime,
		Affected:       f.Affected,
		Selected:       f.Selected,
	}

	switch f.Access {
	case "", "rw":
		spec.Readable, spec.Writeable = true, true
	case "ro":
		spec.Readable = true
	case "wo":
		spec.Writeable = true
	default:
		return FeatureSpec{}, fmt.Errorf("unknown access %q", f.Access)
	}

	switch typ {
	case vmbc.FeatureTypeInt:
		p := &IntSpec{}
		if err := decodeScalars(map[*yaml.Node]interface{}{
			&f.Value: &p.Value, &f.Min: &p.Min, &f.Max: &p.Max, &f.Increment: &p.Inc,
		}); err != nil {
			return FeatureSpec{}, err
		}
		if p.Inc == 0 {
			p.Inc = 1
		}
		spec.Int = p
	case vmbc.FeatureTypeFloat:
		p := &FloatSpec{}
		if err := decodeScalars(map[*yaml.Node]interface{}{
			&f.Value: &p.Value, &f.Min: &p.Min, &f.Max: &p.Max,
		}); err != nil {
			return FeatureSpec{}, err
		}
		if !f.Increment.IsZero() {
			if err := f.Increment.Decode(&p.Inc); err != nil {
				return FeatureSpec{}, fmt.Errorf("decoding increment: %w", err)
			}
			p.HasInc = true
		}
		spec.Float = p
	case vmbc.FeatureTypeBool:
		p := &BoolSpec{}
		if err := decodeScalars(map[*yaml.Node]interface{}{&f.Value: &p.Value}); err != nil {
			return FeatureSpec{}, err
		}
		spec.Bool = p
	case vmbc.FeatureTypeString:
		p := &StringSpec{MaxLength: f.MaxLength}
		if err := decodeScalars(map[*yaml.Node]interface{}{&f.Value: &p.Value}); err != nil {
			return FeatureSpec{}, err
		}
		spec.String = p
	case vmbc.FeatureTypeEnum:
		p := &EnumSpec{}
		if err := decodeScalars(map[*yaml.Node]interface{}{&f.Value: &p.Value}); err != nil {
			return FeatureSpec{}, err
		}
		if len(f.Entries) == 0 {
			return FeatureSpec{}, fmt.Errorf("enum feature requires entries")
		}
		for _, e := range f.Entries {
			p.Entries = append(p.Entries, EnumEntrySpec{Name: e.Name, Value: e.Value, Unavailable: e.Unavailable})
		}
		spec.Enum = p
	case vmbc.FeatureTypeRaw:
		p := &RawSpec{}
		var s string
		if err := decodeScalars(map[*yaml.Node]interface{}{&f.Value: &s}); err != nil {
			return FeatureSpec{}, err
		}
		p.Value = []byte(s)
		spec.Raw = p
	case vmbc.FeatureTypeCommand:
		// No payload.
	}

	return spec, nil
}

func decodeScalars(fields map[*yaml.Node]interface{}) error {
	for node, dst := range fields {
		if node.IsZero() {
			continue
		}
		if err := node.Decode(dst); err != nil {
			return fmt.Errorf("decoding value: %w", err)
		}
	}
	return nil
}

func parseFeatureType(s string) (vmbc.FeatureType, error) {
	switch s {
	case "int":
		return vmbc.FeatureTypeInt, nil
	case "float":
		return vmbc.FeatureTypeFloat, nil
	case "bool":
		return vmbc.FeatureTypeBool, nil
	case "string":
		return vmbc.FeatureTypeString, nil
	case "enum":
		return vmbc.FeatureTypeEnum, nil
	case "command":
		return vmbc.FeatureTypeCommand, nil
	case "raw":
		return vmbc.FeatureTypeRaw, nil
	}
	return vmbc.FeatureTypeUnknown, fmt.Errorf("unknown feature type %q", s)
}

func parseVisibility(s string) vmbc.Visibility {
	switch s {
	case "beginner":
		return vmbc.VisibilityBeginner
	case "expert":
		return vmbc.VisibilityExpert
	case "guru":
		return vmbc.VisibilityGuru
	case "invisible":
		return vmbc.VisibilityInvisible
	}
	return vmbc.VisibilityBeginner
}

func parseAccessModes(modes []string) vmbc.AccessMode {
	if len(modes) == 0 {
		return vmbc.AccessModeFull | vmbc.AccessModeRead
	}

	var m vmbc.AccessMode
	for _, s := range modes {
		switch s {
		case "full":
			m |= vmbc.AccessModeFull
		case "read":
			m |= vmbc.AccessModeRead
		case "config":
			m |= vmbc.AccessModeConfig
		}
	}
	return m
}
