package vmb

import "github.com/EtchedChampion/drd-VmbPy/internal/vmbc"

// FeatureType enumerates the primitive interfaces a feature can expose.
type FeatureType int

const (
	FeatureTypeUnknown FeatureType = FeatureType(vmbc.FeatureTypeUnknown)
	FeatureTypeInt     FeatureType = FeatureType(vmbc.FeatureTypeInt)
	FeatureTypeFloat   FeatureType = FeatureType(vmbc.FeatureTypeFloat)
	FeatureTypeEnum    FeatureType = FeatureType(vmbc.FeatureTypeEnum)
	FeatureTypeString  FeatureType = FeatureType(vmbc.FeatureTypeString)
	FeatureTypeBool    FeatureType = FeatureType(vmbc.FeatureTypeBool)
	FeatureTypeCommand FeatureType = FeatureType(vmbc.FeatureTypeCommand)
	FeatureTypeRaw     FeatureType = FeatureType(vmbc.FeatureTypeRaw)
)

func (t FeatureType) String() string { return vmbc.FeatureType(t).String() }

// FeatureFlags describe static capabilities of a feature.
type FeatureFlags uint32

const (
	FeatureFlagNone        FeatureFlags = FeatureFlags(vmbc.FeatureFlagNone)
	FeatureFlagRead        FeatureFlags = FeatureFlags(vmbc.FeatureFlagRead)
	FeatureFlagWrite       FeatureFlags = FeatureFlags(vmbc.FeatureFlagWrite)
	FeatureFlagVolatile    FeatureFlags = FeatureFlags(vmbc.FeatureFlagVolatile)
	FeatureFlagModifyWrite FeatureFlags = FeatureFlags(vmbc.FeatureFlagModifyWrite)
)

// Visibility is the recommended audience of a feature.
type Visibility int

const (
	VisibilityUnknown   Visibility = Visibility(vmbc.VisibilityUnknown)
	VisibilityBeginner  Visibility = Visibility(vmbc.VisibilityBeginner)
	VisibilityExpert    Visibility = Visibility(vmbc.VisibilityExpert)
	VisibilityGuru      Visibility = Visibility(vmbc.VisibilityGuru)
	VisibilityInvisible Visibility = Visibility(vmbc.VisibilityInvisible)
)

func (v Visibility) String() string {
	switch v {
	case VisibilityBeginner:
		return "Beginner"
	case VisibilityExpert:
		return "Expert"
	case VisibilityGuru:
		return "Guru"
	case VisibilityInvisible:
		return "Invisible"
	}
	return "Unknown"
}

// AccessMode is a way of opening a camera.
type AccessMode uint32

const (
	AccessModeNone   AccessMode = AccessMode(vmbc.AccessModeNone)
	AccessModeFull   AccessMode = AccessMode(vmbc.AccessModeFull)
	AccessModeRead   AccessMode = AccessMode(vmbc.AccessModeRead)
	AccessModeConfig AccessMode = AccessMode(vmbc.AccessModeConfig)
)

func (m AccessMode) String() string {
	switch m {
	case AccessModeFull:
		return "Full"
	case AccessModeRead:
		return "Read"
	case AccessModeConfig:
		return "Config"
	}
	return "None"
}

// FrameStatus is the transfer verdict of a completed frame.
type FrameStatus int32

const (
	FrameStatusComplete   FrameStatus = FrameStatus(vmbc.FrameStatusComplete)
	FrameStatusIncomplete FrameStatus = FrameStatus(vmbc.FrameStatusIncomplete)
	FrameStatusTooSmall   FrameStatus = FrameStatus(vmbc.FrameStatusTooSmall)
	FrameStatusInvalid    FrameStatus = FrameStatus(vmbc.FrameStatusInvalid)
)

func (s FrameStatus) String() string { return vmbc.FrameStatus(s).String() }

// AllocationMode selects who allocates frame buffers.
type AllocationMode int

const (
	// AllocationModeAnnounceFrame allocates buffers in this library and
	// announces them to the transport layer.
	AllocationModeAnnounceFrame AllocationMode = iota
	// AllocationModeAllocAndAnnounceFrame lets the transport layer
	// allocate the buffers.
	AllocationModeAllocAndAnnounceFrame
)

// PersistType selects which features a settings file covers.
type PersistType int

const (
	// PersistAll covers every remote device feature.
	PersistAll PersistType = PersistType(vmbc.PersistAll)
	// PersistStreamable covers streamable features only.
	PersistStreamable PersistType = PersistType(vmbc.PersistStreamable)
	// PersistNoLUT covers every feature except lookup tables.
	PersistNoLUT PersistType = PersistType(vmbc.PersistNoLUT)
)

// PersistFlags select which module scopes a settings file covers.
type PersistFlags uint32

const (
	PersistFlagNone   PersistFlags = PersistFlags(vmbc.PersistFlagNone)
	PersistFlagRemote PersistFlags = PersistFlags(vmbc.PersistFlagRemote)
	PersistFlagStream PersistFlags = PersistFlags(vmbc.PersistFlagStream)
)
