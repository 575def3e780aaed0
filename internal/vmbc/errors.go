package vmbc

import "fmt"

// ErrorCode is a status code returned by the native transport layer. The
// negative values mirror the C API error enumeration, Custom and above are
// reserved for driver specific conditions.
type ErrorCode int32

const (
	ErrSuccess        ErrorCode = 0
	ErrInternalFault  ErrorCode = -1
	ErrAPINotStarted  ErrorCode = -2
	ErrNotFound       ErrorCode = -3
	ErrBadHandle      ErrorCode = -4
	ErrDeviceNotOpen  ErrorCode = -5
	ErrInvalidAccess  ErrorCode = -6
	ErrBadParameter   ErrorCode = -7
	ErrStructSize     ErrorCode = -8
	ErrMoreData       ErrorCode = -9
	ErrWrongType      ErrorCode = -10
	ErrInvalidValue   ErrorCode = -11
	ErrTimeout        ErrorCode = -12
	ErrOther          ErrorCode = -13
	ErrResources      ErrorCode = -14
	ErrInvalidCall    ErrorCode = -15
	ErrNoTL           ErrorCode = -16
	ErrNotImplemented ErrorCode = -17
	ErrNotSupported   ErrorCode = -18
	ErrIncomplete     ErrorCode = -19
	ErrIO             ErrorCode = -20
	// ErrAborted is reported by a blocked capture wait when the queue is
	// flushed or capture ends before a frame completes.
	ErrAborted     ErrorCode = -21
	ErrNoChunkData ErrorCode = -33

	// ErrCustom is the first code available for driver specific errors.
	ErrCustom ErrorCode = 1
)

func (c ErrorCode) String() string {
	switch c {
	case ErrSuccess:
		return "Success"
	case ErrInternalFault:
		return "InternalFault"
	case ErrAPINotStarted:
		return "ApiNotStarted"
	case ErrNotFound:
		return "NotFound"
	case ErrBadHandle:
		return "BadHandle"
	case ErrDeviceNotOpen:
		return "DeviceNotOpen"
	case ErrInvalidAccess:
		return "InvalidAccess"
	case ErrBadParameter:
		return "BadParameter"
	case ErrStructSize:
		return "StructSize"
	case ErrMoreData:
		return "MoreData"
	case ErrWrongType:
		return "WrongType"
	case ErrInvalidValue:
		return "InvalidValue"
	case ErrTimeout:
		return "Timeout"
	case ErrOther:
		return "Other"
	case ErrResources:
		return "Resources"
	case ErrInvalidCall:
		return "InvalidCall"
	case ErrNoTL:
		return "NoTL"
	case ErrNotImplemented:
		return "NotImplemented"
	case ErrNotSupported:
		return "NotSupported"
	case ErrIncomplete:
		return "Incomplete"
	case ErrIO:
		return "IO"
	case ErrAborted:
		return "Aborted"
	case ErrNoChunkData:
		return "NoChunkData"
	}
	return fmt.Sprintf("ErrorCode(%d)", int32(c))
}

// Status is the error type returned by every transport layer call that fails.
// Op names the native operation, Msg carries optional driver detail.
type Status struct {
	Code ErrorCode
	Op   string
	Msg  string
}

func (s *Status) Error() string {
	if s.Msg == "" {
		return fmt.Sprintf("%s failed: %s", s.Op, s.Code)
	}
	return fmt.Sprintf("%s failed: %s: %s", s.Op, s.Code, s.Msg)
}

// NewStatus creates a Status error for the given operation and code.
func NewStatus(op string, code ErrorCode) *Status {
	return &Status{Code: code, Op: op}
}

// NewStatusMsg creates a Status error carrying driver detail.
func NewStatusMsg(op string, code ErrorCode, format string, args ...interface{}) *Status {
	return &Status{Code: code, Op: op, Msg: fmt.Sprintf(format, args...)}
}

// CodeOf returns the ErrorCode carried by err, or ErrSuccess when err is nil
// and ErrOther when err is not a transport layer status.
func CodeOf(err error) ErrorCode {
	if err == nil {
		return ErrSuccess
	}
	if s, ok := err.(*Status); ok {
		return s.Code
	}
	return ErrOther
}
