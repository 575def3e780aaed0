// Package vmbc defines the boundary to the native transport layer that owns
// cameras, features and frame capture. Implementations translate these calls
// into the vendor API; the in-process simulator under vmbc/sim implements the
// same contract for development and tests.
package vmbc

import (
	"context"
	"time"
)

// Handle is an opaque token identifying an entity owned by the driver
// (system, interface, camera, stream or transient chunk scope).
type Handle string

// SystemHandle addresses the driver itself, it owns the system level
// feature set and is valid between Startup and Shutdown.
const SystemHandle Handle = "system"

// FeatureType enumerates the primitive interfaces a feature can expose.
type FeatureType int

const (
	FeatureTypeUnknown FeatureType = iota
	FeatureTypeInt
	FeatureTypeFloat
	FeatureTypeEnum
	FeatureTypeString
	FeatureTypeBool
	FeatureTypeCommand
	FeatureTypeRaw
)

func (t FeatureType) String() string {
	switch t {
	case FeatureTypeInt:
		return "Int"
	case FeatureTypeFloat:
		return "Float"
	case FeatureTypeEnum:
		return "Enum"
	case FeatureTypeString:
		return "String"
	case FeatureTypeBool:
		return "Bool"
	case FeatureTypeCommand:
		return "Command"
	case FeatureTypeRaw:
		return "Raw"
	}
	return "Unknown"
}

// FeatureFlags describe static capabilities of a feature.
type FeatureFlags uint32

const (
	FeatureFlagNone        FeatureFlags = 0
	FeatureFlagRead        FeatureFlags = 1
	FeatureFlagWrite       FeatureFlags = 2
	FeatureFlagVolatile    FeatureFlags = 8
	FeatureFlagModifyWrite FeatureFlags = 16
)

// Visibility is the recommended audience of a feature.
type Visibility int

const (
	VisibilityUnknown Visibility = iota
	VisibilityBeginner
	VisibilityExpert
	VisibilityGuru
	VisibilityInvisible
)

// AccessMode is a bit set of ways a camera can be opened.
type AccessMode uint32

const (
	AccessModeNone   AccessMode = 0
	AccessModeFull   AccessMode = 1
	AccessModeRead   AccessMode = 2
	AccessModeConfig AccessMode = 4
)

// FeatureInfo is the static description of a feature as reported by the
// driver at discovery time.
type FeatureInfo struct {
	Name          string
	Category      string
	DisplayName   string
	Tooltip       string
	Description   string
	SFNCNamespace string
	Unit          string
	Representation string
	Type          FeatureType
	Flags         FeatureFlags
	Visibility    Visibility
	PollingTime   uint32
	IsStreamable  bool
	HasAffected   bool
	HasSelected   bool
}

// EnumEntryInfo describes one entry of an enumeration feature.
type EnumEntryInfo struct {
	Name  string
	Value int64
}

// CameraInfo identifies a camera known to the driver.
type CameraInfo struct {
	ID              string
	Name            string
	Model           string
	Serial          string
	InterfaceID     string
	PermittedAccess AccessMode
}

// InterfaceInfo identifies an interface (frame grabber, bus adapter) known
// to the driver.
type InterfaceInfo struct {
	ID   string
	Name string
	Type string
}

// FrameStatus is the driver verdict on a completed frame transfer.
type FrameStatus int32

const (
	FrameStatusComplete   FrameStatus = 0
	FrameStatusIncomplete FrameStatus = -1
	FrameStatusTooSmall   FrameStatus = -2
	FrameStatusInvalid    FrameStatus = -3
)

func (s FrameStatus) String() string {
	switch s {
	case FrameStatusComplete:
		return "Complete"
	case FrameStatusIncomplete:
		return "Incomplete"
	case FrameStatusTooSmall:
		return "TooSmall"
	case FrameStatusInvalid:
		return "Invalid"
	}
	return "Unknown"
}

// FrameFlags mark which metadata fields of a completed frame carry valid
// values.
type FrameFlags uint32

const (
	FrameFlagDimension FrameFlags = 1
	FrameFlagOffset    FrameFlags = 2
	FrameFlagFrameID   FrameFlags = 4
	FrameFlagTimestamp FrameFlags = 8
)

// Frame is the buffer record shared between the caller and the driver. The
// caller owns Buffer (and announces it), the driver fills the remaining
// fields on completion. A Frame must not be touched by the caller while it
// is announced and queued.
type Frame struct {
	Buffer        []byte
	Status        FrameStatus
	Flags         FrameFlags
	Width         uint32
	Height        uint32
	OffsetX       uint32
	OffsetY       uint32
	FrameID       uint64
	Timestamp     uint64
	PixelFormat   uint32
	AncillarySize uint32
}

// InvalidationCallback is invoked by the driver, on a driver owned
// goroutine, when a feature value may have changed.
type InvalidationCallback func(handle Handle, name string)

// FrameCallback is invoked by the driver, on a driver owned goroutine, when
// a queued frame completes. The frame is not requeued automatically.
type FrameCallback func(stream Handle, frame *Frame)

// PersistType selects which features a settings file covers.
type PersistType int

const (
	PersistAll PersistType = iota
	PersistStreamable
	PersistNoLUT
)

// PersistFlags select which module scopes participate in settings
// persistence.
type PersistFlags uint32

const (
	PersistFlagNone   PersistFlags = 0
	PersistFlagRemote PersistFlags = 2
	PersistFlagStream PersistFlags = 8
)

// PersistSettings tunes settings save and load.
type PersistSettings struct {
	Type PersistType
	Flags PersistFlags
	// MaxIterations bounds the load retry passes used to resolve
	// order dependent features.
	MaxIterations int
}

// API is the contract of the native transport layer. All methods are safe
// for concurrent use. Calls taking a context block; cancelling the context
// abandons the wait, not the underlying operation.
type API interface {
	// Lifecycle.
	Startup(ctx context.Context) error
	Shutdown(ctx context.Context) error
	Version() string

	// Entity discovery and access.
	CamerasList(ctx context.Context) ([]CameraInfo, error)
	CameraInfo(ctx context.Context, id string) (CameraInfo, error)
	CameraOpen(ctx context.Context, id string, mode AccessMode) (Handle, error)
	CameraClose(ctx context.Context, h Handle) error
	InterfacesList(ctx context.Context) ([]InterfaceInfo, error)
	InterfaceOpen(ctx context.Context, id string) (Handle, error)
	InterfaceClose(ctx context.Context, h Handle) error
	StreamsList(camera Handle) ([]Handle, error)

	// Feature discovery and access. Typed getters and setters fail with
	// WrongType when the feature exposes a different interface.
	FeaturesList(h Handle) ([]FeatureInfo, error)
	FeatureAccessQuery(h Handle, name string) (readable, writeable bool, err error)
	FeatureListSelected(h Handle, name string) ([]string, error)
	FeatureListAffected(h Handle, name string) ([]string, error)

	FeatureBoolGet(h Handle, name string) (bool, error)
	FeatureBoolSet(h Handle, name string, v bool) error
	FeatureIntGet(h Handle, name string) (int64, error)
	FeatureIntSet(h Handle, name string, v int64) error
	FeatureIntRangeQuery(h Handle, name string) (min, max int64, err error)
	FeatureIntIncrementQuery(h Handle, name string) (int64, error)
	FeatureFloatGet(h Handle, name string) (float64, error)
	FeatureFloatSet(h Handle, name string, v float64) error
	FeatureFloatRangeQuery(h Handle, name string) (min, max float64, err error)
	FeatureFloatIncrementQuery(h Handle, name string) (inc float64, has bool, err error)
	FeatureStringGet(h Handle, name string) (string, error)
	FeatureStringSet(h Handle, name string, v string) error
	FeatureStringMaxlengthQuery(h Handle, name string) (int, error)
	FeatureEnumGet(h Handle, name string) (string, error)
	FeatureEnumSet(h Handle, name string, entry string) error
	FeatureEnumRangeQuery(h Handle, name string) ([]EnumEntryInfo, error)
	FeatureEnumIsAvailable(h Handle, name, entry string) (bool, error)
	FeatureCommandRun(h Handle, name string) error
	FeatureCommandIsDone(h Handle, name string) (bool, error)
	FeatureRawGet(h Handle, name string) ([]byte, error)
	FeatureRawSet(h Handle, name string, v []byte) error
	FeatureRawLengthQuery(h Handle, name string) (int, error)

	// Change notification. At most one callback per (handle, feature).
	FeatureInvalidationRegister(h Handle, name string, cb InvalidationCallback) error
	FeatureInvalidationUnregister(h Handle, name string) error

	// Frame capture.
	PayloadSizeGet(stream Handle) (int, error)
	FrameAnnounce(stream Handle, f *Frame) error
	FrameRevoke(stream Handle, f *Frame) error
	CaptureStart(stream Handle) error
	CaptureEnd(stream Handle) error
	CaptureFrameQueue(stream Handle, f *Frame, cb FrameCallback) error
	CaptureFrameWait(ctx context.Context, stream Handle, f *Frame, timeout time.Duration) error
	CaptureQueueFlush(stream Handle) error

	// Chunk access. The callback receives a transient handle exposing the
	// chunk features of the frame; the handle dies when the callback
	// returns. An error returned by the callback is passed through
	// verbatim.
	ChunkDataAccess(f *Frame, cb func(chunk Handle) error) error

	// Direct register access.
	MemoryRead(h Handle, addr uint64, n int) ([]byte, error)
	MemoryWrite(h Handle, addr uint64, data []byte) error

	// Settings persistence.
	SettingsSave(ctx context.Context, h Handle, path string, s PersistSettings) error
	SettingsLoad(ctx context.Context, h Handle, path string, s PersistSettings) error
}
