package sim

import (
	"time"

	"github.com/EtchedChampion/drd-VmbPy/internal/vmbc"
)

// DefaultSpecs returns the built-in camera set used when no profile is
// configured: a single monochrome area scan camera.
func DefaultSpecs() []CameraSpec {
	return []CameraSpec{
		{
			ID:              "DEV_SIM_0001",
			Name:            "Simulated 1800 U-500m",
			Model:           "1800 U-500m",
			Serial:          "SIM-0001",
			InterfaceID:     "IF_SIM_USB_0",
			PermittedAccess: vmbc.AccessModeFull | vmbc.AccessModeRead,
			StreamCount:     1,
			FrameInterval:   2 * time.Millisecond,
			Features: []FeatureSpec{
				{
					Name:     "ExposureTime",
					Type:     vmbc.FeatureTypeFloat,
					Category: "/AcquisitionControl",
					Unit:     "us",
					Readable: true, Writeable: true, Streamable: true,
					Float:    &FloatSpec{Value: 5000, Min: 10, Max: 1000000},
					Affected: []string{"ExposureAuto"},
				},
				{
					Name:     "ExposureAuto",
					Type:     vmbc.FeatureTypeEnum,
					Category: "/AcquisitionControl",
					Readable: true, Writeable: true, Streamable: true,
					Enum: &EnumSpec{Value: "Off", Entries: []EnumEntrySpec{
						{Name: "Off", Value: 0},
						{Name: "Once", Value: 1},
						{Name: "Continuous", Value: 2},
					}},
				},
				{
					Name:     "Gain",
					Type:     vmbc.FeatureTypeFloat,
					Category: "/AnalogControl",
					Unit:     "dB",
					Readable: true, Writeable: true, Streamable: true,
					Float: &FloatSpec{Value: 0, Min: 0, Max: 24},
				},
			},
		},
	}
}

// ensureCoreFeatures fills the feature set every camera needs for
// acquisition when the spec leaves them out.
func ensureCoreFeatures(spec CameraSpec) CameraSpec {
	have := map[string]bool{}
	for _, f := range spec.Features {
		have[f.Name] = true
	}

	core := []FeatureSpec{
		{
			Name: "DeviceID", Type: vmbc.FeatureTypeString, Category: "/DeviceControl",
			Readable: true,
			String:   &StringSpec{Value: spec.ID, MaxLength: 64},
		},
		{
			Name: "DeviceModelName", Type: vmbc.FeatureTypeString, Category: "/DeviceControl",
			Readable: true,
			String:   &StringSpec{Value: spec.Model, MaxLength: 64},
		},
		{
			Name: "Width", Type: vmbc.FeatureTypeInt, Category: "/ImageFormatControl",
			Readable: true, Writeable: true, Streamable: true,
			Int:      &IntSpec{Value: 640, Min: 8, Max: 4096, Inc: 8},
			Affected: []string{"PayloadSize"},
		},
		{
			Name: "Height", Type: vmbc.FeatureTypeInt, Category: "/ImageFormatControl",
			Readable: true, Writeable: true, Streamable: true,
			Int:      &IntSpec{Value: 480, Min: 8, Max: 4096, Inc: 8},
			Affected: []string{"PayloadSize"},
		},
		{
			Name: "OffsetX", Type: vmbc.FeatureTypeInt, Category: "/ImageFormatControl",
			Readable: true, Writeable: true, Streamable: true,
			Int: &IntSpec{Value: 0, Min: 0, Max: 4096, Inc: 8},
		},
		{
			Name: "OffsetY", Type: vmbc.FeatureTypeInt, Category: "/ImageFormatControl",
			Readable: true, Writeable: true, Streamable: true,
			Int: &IntSpec{Value: 0, Min: 0, Max: 4096, Inc: 8},
		},
		{
			Name: "PixelFormat", Type: vmbc.FeatureTypeEnum, Category: "/ImageFormatControl",
			Readable: true, Writeable: true, Streamable: true,
			Enum: &EnumSpec{Value: "Mono8", Entries: []EnumEntrySpec{
				{Name: "Mono8", Value: 0x01080001},
				{Name: "Mono12", Value: 0x01100005, Unavailable: true},
			}},
		},
		{
			Name: "PayloadSize", Type: vmbc.FeatureTypeInt, Category: "/TransportLayerControl",
			Readable: true, Volatile: true,
			Int: &IntSpec{Value: 0, Min: 0, Max: 1 << 32, Inc: 1},
		},
		{
			Name: "AcquisitionMode", Type: vmbc.FeatureTypeEnum, Category: "/AcquisitionControl",
			Readable: true, Writeable: true, Streamable: true,
			Enum: &EnumSpec{Value: "Continuous", Entries: []EnumEntrySpec{
				{Name: "Continuous", Value: 0},
				{Name: "SingleFrame", Value: 1},
			}},
		},
		{
			Name: "AcquisitionStart", Type: vmbc.FeatureTypeCommand, Category: "/AcquisitionControl",
			Writeable: true,
		},
		{
			Name: "AcquisitionStop", Type: vmbc.FeatureTypeCommand, Category: "/AcquisitionControl",
			Writeable: true,
		},
		{
			Name: "ChunkModeActive", Type: vmbc.FeatureTypeBool, Category: "/ChunkDataControl",
			Readable: true, Writeable: true, Streamable: true,
			Bool: &BoolSpec{Value: false},
		},
	}

	for _, f := range core {
		if !have[f.Name] {
			spec.Features = append(spec.Features, f)
		}
	}

	if spec.StreamCount <= 0 {
		spec.StreamCount = 1
	}
	if spec.FrameInterval <= 0 {
		spec.FrameInterval = 2 * time.Millisecond
	}
	if spec.PermittedAccess == vmbc.AccessModeNone {
		spec.PermittedAccess = vmbc.AccessModeFull | vmbc.AccessModeRead
	}

	return spec
}
