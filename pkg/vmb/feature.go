package vmb

import (
	"fmt"
	"sync"
	"sync/atomic"

	"github.com/EtchedChampion/drd-VmbPy/internal/log"
	"github.com/EtchedChampion/drd-VmbPy/internal/vmbc"
)

// Feature is one feature of a camera, interface, stream or system scope.
// Static metadata is available at any time, value access requires the
// owning entity to be open. Typed access goes through the Int, Float, Bool,
// String, Enum, Command and Raw views.
type Feature struct {
	api    vmbc.API
	owner  *FeatureContainer
	handle vmbc.Handle
	info   vmbc.FeatureInfo
	logger log.Logger

	mu       sync.Mutex
	handlers []*ChangeHandler

	// dispatchMu serializes change handler dispatch per feature,
	// dispatching marks a dispatch in progress so writes from handlers
	// can be rejected.
	dispatchMu  sync.Mutex
	dispatching atomic.Bool
}

func newFeature(api vmbc.API, owner *FeatureContainer, handle vmbc.Handle, info vmbc.FeatureInfo, logger log.Logger) *Feature {
	return &Feature{
		api:    api,
		owner:  owner,
		handle: handle,
		info:   info,
		logger: logger.WithValues(log.Kv{"feature": info.Name}),
	}
}

// Name returns the feature name.
func (f *Feature) Name() string { return f.info.Name }

// Type returns the primitive interface of the feature.
func (f *Feature) Type() FeatureType { return FeatureType(f.info.Type) }

// Category returns the feature category path.
func (f *Feature) Category() string { return f.info.Category }

// DisplayName returns the human readable feature name.
func (f *Feature) DisplayName() string { return f.info.DisplayName }

// Tooltip returns the short feature description.
func (f *Feature) Tooltip() string { return f.info.Tooltip }

// Description returns the long feature description.
func (f *Feature) Description() string { return f.info.Description }

// SFNCNamespace returns the standard feature naming convention namespace.
func (f *Feature) SFNCNamespace() string { return f.info.SFNCNamespace }

// Unit returns the measurement unit of the feature value.
func (f *Feature) Unit() string { return f.info.Unit }

// Representation returns the recommended value representation.
func (f *Feature) Representation() string { return f.info.Representation }

// Visibility returns the recommended audience of the feature.
func (f *Feature) Visibility() Visibility { return Visibility(f.info.Visibility) }

// Flags returns the static capability flags of the feature.
func (f *Feature) Flags() FeatureFlags { return FeatureFlags(f.info.Flags) }

// PollingTime returns the suggested polling interval in milliseconds for
// features without change notification.
func (f *Feature) PollingTime() uint32 { return f.info.PollingTime }

// IsStreamable reports whether the feature participates in streamable
// settings persistence.
func (f *Feature) IsStreamable() bool { return f.info.IsStreamable }

// HasAffectedFeatures reports whether writing this feature invalidates
// others.
func (f *Feature) HasAffectedFeatures() bool { return f.info.HasAffected }

// HasSelectedFeatures reports whether this feature selects others.
func (f *Feature) HasSelectedFeatures() bool { return f.info.HasSelected }

// AccessMode returns the current readability and writability of the
// feature. Unlike Flags this reflects the live state, e.g. a read-only
// camera open.
func (f *Feature) AccessMode() (readable, writeable bool, err error) {
	if err := f.owner.alive(); err != nil {
		return false, false, err
	}

	readable, writeable, err = f.api.FeatureAccessQuery(f.handle, f.info.Name)
	if err != nil {
		return false, false, wrapStatus(err)
	}
	return readable, writeable, nil
}

// IsReadable reports whether the feature value can currently be read.
func (f *Feature) IsReadable() bool {
	r, _, err := f.AccessMode()
	return err == nil && r
}

// IsWriteable reports whether the feature value can currently be written.
func (f *Feature) IsWriteable() bool {
	_, w, err := f.AccessMode()
	return err == nil && w
}

// ChangeHandler wraps a change callback. The same handler value registered
// twice on a feature is invoked once per change; handlers are removed with
// the value they were registered with.
type ChangeHandler struct {
	fn func(f *Feature)
}

// NewChangeHandler creates a change handler around fn.
func NewChangeHandler(fn func(f *Feature)) *ChangeHandler {
	return &ChangeHandler{fn: fn}
}

// RegisterChangeHandler registers h for change notification of this
// feature. The first handler installs the native invalidation callback.
// Registering the same handler again is a no-op.
func (f *Feature) RegisterChangeHandler(h *ChangeHandler) error {
	if err := f.owner.alive(); err != nil {
		return err
	}
	if h == nil || h.fn == nil {
		return fmt.Errorf("change handler is required: %w", ErrNotValid)
	}

	f.mu.Lock()
	defer f.mu.Unlock()

	for _, existing := range f.handlers {
		if existing == h {
			return nil
		}
	}

	if len(f.handlers) == 0 {
		if err := f.api.FeatureInvalidationRegister(f.handle, f.info.Name, f.invalidate); err != nil {
			return wrapStatus(err)
		}
	}
	f.handlers = append(f.handlers, h)
	f.logger.Debugf("Registered change handler (%d active)", len(f.handlers))
	return nil
}

// UnregisterChangeHandler removes h from the change notification of this
// feature. The last removal uninstalls the native invalidation callback.
// Removing an unknown handler is a no-op.
func (f *Feature) UnregisterChangeHandler(h *ChangeHandler) error {
	if err := f.owner.alive(); err != nil {
		return err
	}

	f.mu.Lock()
	defer f.mu.Unlock()

	idx := -1
	for i, existing := range f.handlers {
		if existing == h {
			idx = i
			break
		}
	}
	if idx < 0 {
		return nil
	}

	f.handlers = append(f.handlers[:idx], f.handlers[idx+1:]...)
	if len(f.handlers) == 0 {
		if err := f.api.FeatureInvalidationUnregister(f.handle, f.info.Name); err != nil {
			return wrapStatus(err)
		}
	}
	f.logger.Debugf("Unregistered change handler (%d active)", len(f.handlers))
	return nil
}

// unregisterAllChangeHandlers drops every handler, used on container
// teardown. Native unregistration failures are logged, the teardown keeps
// going.
func (f *Feature) unregisterAllChangeHandlers() {
	f.mu.Lock()
	defer f.mu.Unlock()

	if len(f.handlers) == 0 {
		return
	}
	f.handlers = nil
	if err := f.api.FeatureInvalidationUnregister(f.handle, f.info.Name); err != nil {
		f.logger.Warningf("Unregistering invalidation callback: %v", err)
	}
}

// invalidate is the native invalidation callback. Dispatch is serialized
// per feature and handler panics are contained and logged.
func (f *Feature) invalidate(_ vmbc.Handle, _ string) {
	f.dispatchMu.Lock()
	defer f.dispatchMu.Unlock()

	f.mu.Lock()
	handlers := make([]*ChangeHandler, len(f.handlers))
	copy(handlers, f.handlers)
	f.mu.Unlock()

	f.dispatching.Store(true)
	defer f.dispatching.Store(false)

	for _, h := range handlers {
		f.call(h)
	}
}

func (f *Feature) call(h *ChangeHandler) {
	defer func() {
		if r := recover(); r != nil {
			f.logger.Errorf("Change handler panicked: %v", r)
		}
	}()
	h.fn(f)
}

// checkWrite gates every feature write: the owner must be open and the
// write must not come from the feature's own change handler dispatch.
func (f *Feature) checkWrite() error {
	if err := f.owner.alive(); err != nil {
		return err
	}
	if f.dispatching.Load() {
		return fmt.Errorf("feature %q: %w", f.info.Name, ErrReentrancy)
	}
	return nil
}

func (f *Feature) checkRead() error {
	return f.owner.alive()
}

func (f *Feature) String() string {
	return fmt.Sprintf("Feature(name=%s, type=%s)", f.info.Name, f.Type())
}
