package vmb

import (
	"errors"
	"fmt"

	"github.com/EtchedChampion/drd-VmbPy/internal/vmbc"
)

var (
	// ErrScope is returned when an entity is used outside the lifetime of
	// its owner, for example a feature of a closed camera.
	ErrScope = errors.New("entity used outside its scope")

	// ErrFeatureNotFound is returned when a feature lookup misses.
	ErrFeatureNotFound = errors.New("feature not found")

	// ErrAccess is returned when an operation violates the access rules of
	// a feature or camera.
	ErrAccess = errors.New("access denied")

	// ErrRange is returned when a written value is outside the valid
	// bounds of a feature or off its increment grid.
	ErrRange = errors.New("value out of range")

	// ErrWrongType is returned when a feature is used through a typed view
	// that does not match its interface.
	ErrWrongType = errors.New("feature type mismatch")

	// ErrReentrancy is returned when a feature is written from within one
	// of its own change handlers.
	ErrReentrancy = errors.New("feature written from its own change handler")

	// ErrTimeout is returned when a blocking operation exceeds its
	// timeout.
	ErrTimeout = errors.New("operation timed out")

	// ErrChunkAccess is returned when chunk data is not present or the
	// frame is not part of an active acquisition.
	ErrChunkAccess = errors.New("chunk data not accessible")

	// ErrCamera is returned for camera level failures such as lookups of
	// unknown cameras or failed opens.
	ErrCamera = errors.New("camera error")

	// ErrInterface is returned for interface level failures.
	ErrInterface = errors.New("interface error")

	// ErrCanceled is returned when a blocking wait is aborted by stopping
	// the owning acquisition.
	ErrCanceled = errors.New("operation canceled")

	// ErrNotValid is returned when an argument or call sequence is
	// invalid.
	ErrNotValid = errors.New("not valid")

	// ErrExhausted is returned by a frame iterator once its limit is
	// reached.
	ErrExhausted = errors.New("no more frames")
)

// wrapStatus maps a transport layer error onto the public error taxonomy.
// Errors that do not originate in the transport layer pass through
// untouched.
func wrapStatus(err error) error {
	if err == nil {
		return nil
	}

	var st *vmbc.Status
	if !errors.As(err, &st) {
		return err
	}

	var sentinel error
	switch st.Code {
	case vmbc.ErrNotFound:
		sentinel = ErrFeatureNotFound
	case vmbc.ErrInvalidAccess:
		sentinel = ErrAccess
	case vmbc.ErrInvalidValue:
		sentinel = ErrRange
	case vmbc.ErrWrongType:
		sentinel = ErrWrongType
	case vmbc.ErrTimeout:
		sentinel = ErrTimeout
	case vmbc.ErrAborted:
		sentinel = ErrCanceled
	case vmbc.ErrNoChunkData:
		sentinel = ErrChunkAccess
	case vmbc.ErrBadParameter, vmbc.ErrInvalidCall:
		sentinel = ErrNotValid
	case vmbc.ErrAPINotStarted, vmbc.ErrBadHandle, vmbc.ErrDeviceNotOpen:
		sentinel = ErrScope
	default:
		sentinel = ErrCamera
	}

	return fmt.Errorf("%w: %v", sentinel, st)
}

// wrapCameraStatus is wrapStatus for camera level operations, where a
// missing entity is a camera error rather than a feature lookup miss.
func wrapCameraStatus(err error) error {
	var st *vmbc.Status
	if errors.As(err, &st) && st.Code == vmbc.ErrNotFound {
		return fmt.Errorf("%w: %v", ErrCamera, st)
	}
	return wrapStatus(err)
}
