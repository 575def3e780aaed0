// Package sim is an in-process implementation of the native transport layer
// boundary. It simulates cameras, features, change notification and frame
// capture without hardware, which makes it the default driver for
// development and the only driver used in tests.
package sim

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/EtchedChampion/drd-VmbPy/internal/log"
	"github.com/EtchedChampion/drd-VmbPy/internal/vmbc"
)

// DriverConfig is the configuration for the simulated driver.
type DriverConfig struct {
	// Cameras defaults to DefaultSpecs when empty.
	Cameras []CameraSpec
	Logger  log.Logger
}

func (c *DriverConfig) defaults() error {
	if len(c.Cameras) == 0 {
		c.Cameras = DefaultSpecs()
	}
	if c.Logger == nil {
		c.Logger = log.Noop
	}
	c.Logger = c.Logger.WithValues(log.Kv{"svc": "vmbc.Sim"})
	return nil
}

// Driver is a simulated implementation of the vmbc.API contract.
type Driver struct {
	cfg    DriverConfig
	logger log.Logger

	mu         sync.Mutex
	started    bool
	devices    []*device
	interfaces []*iface
	handles    map[vmbc.Handle]*entity
	chunks     map[*vmbc.Frame]*featureSet
}

type iface struct {
	info  vmbc.InterfaceInfo
	feats *featureSet
}

// entity is what a live handle resolves to. dev is nil for system,
// interface and chunk scopes.
type entity struct {
	dev    *device
	stream *stream
	feats  *featureSet
}

// NewDriver creates a new simulated driver.
func NewDriver(cfg DriverConfig) (*Driver, error) {
	if err := cfg.defaults(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}

	return &Driver{
		cfg:     cfg,
		logger:  cfg.Logger,
		handles: map[vmbc.Handle]*entity{},
		chunks:  map[*vmbc.Frame]*featureSet{},
	}, nil
}

var _ vmbc.API = (*Driver)(nil)

// Startup builds the simulated devices and exposes the system scope.
func (d *Driver) Startup(ctx context.Context) error {
	d.mu.Lock()
	defer d.mu.Unlock()

	if d.started {
		return vmbc.NewStatusMsg("Startup", vmbc.ErrInvalidCall, "already started")
	}

	d.devices = nil
	d.interfaces = nil
	d.handles = map[vmbc.Handle]*entity{}
	d.chunks = map[*vmbc.Frame]*featureSet{}

	seen := map[string]bool{}
	for _, spec := range d.cfg.Cameras {
		d.devices = append(d.devices, newDevice(d, spec, d.logger))
		if spec.InterfaceID != "" && !seen[spec.InterfaceID] {
			seen[spec.InterfaceID] = true
			d.interfaces = append(d.interfaces, &iface{
				info: vmbc.InterfaceInfo{ID: spec.InterfaceID, Name: spec.InterfaceID, Type: "Simulated"},
				feats: newFeatureSet([]FeatureSpec{{
					Name: "InterfaceID", Type: vmbc.FeatureTypeString, Category: "/InterfaceInformation",
					Readable: true,
					String:   &StringSpec{Value: spec.InterfaceID, MaxLength: 128},
				}}),
			})
		}
	}

	sys := newFeatureSet([]FeatureSpec{{
		Name: "DeviceCount", Type: vmbc.FeatureTypeInt, Category: "/SystemInformation",
		Readable: true, Volatile: true,
		Int: &IntSpec{Value: int64(len(d.devices)), Min: 0, Max: 1 << 31, Inc: 1},
	}})
	sys.handle = vmbc.SystemHandle
	d.handles[vmbc.SystemHandle] = &entity{feats: sys}

	d.started = true
	d.logger.Infof("Simulated driver started with %d cameras", len(d.devices))
	return nil
}

// Shutdown closes every open device and invalidates all handles.
func (d *Driver) Shutdown(ctx context.Context) error {
	d.mu.Lock()
	if !d.started {
		d.mu.Unlock()
		return vmbc.NewStatus("Shutdown", vmbc.ErrAPINotStarted)
	}
	devices := d.devices
	d.mu.Unlock()

	for _, dev := range devices {
		dev.mu.Lock()
		open, h := dev.open, dev.handle
		dev.mu.Unlock()
		if open {
			if err := d.CameraClose(ctx, h); err != nil {
				d.logger.Warningf("Closing camera %s on shutdown: %v", dev.info.ID, err)
			}
		}
	}

	d.mu.Lock()
	defer d.mu.Unlock()
	d.started = false
	d.handles = map[vmbc.Handle]*entity{}
	d.chunks = map[*vmbc.Frame]*featureSet{}
	d.logger.Infof("Simulated driver stopped")
	return nil
}

// Version returns the simulated transport layer version.
func (d *Driver) Version() string { return "Sim-1.0.0" }

func (d *Driver) resolve(op string, h vmbc.Handle) (*entity, error) {
	d.mu.Lock()
	defer d.mu.Unlock()

	if !d.started {
		return nil, vmbc.NewStatus(op, vmbc.ErrAPINotStarted)
	}
	e, ok := d.handles[h]
	if !ok {
		return nil, vmbc.NewStatus(op, vmbc.ErrBadHandle)
	}
	return e, nil
}

func (d *Driver) findDevice(op, id string) (*device, error) {
	d.mu.Lock()
	defer d.mu.Unlock()

	if !d.started {
		return nil, vmbc.NewStatus(op, vmbc.ErrAPINotStarted)
	}
	for _, dev := range d.devices {
		if dev.info.ID == id {
			return dev, nil
		}
	}
	return nil, vmbc.NewStatusMsg(op, vmbc.ErrNotFound, "camera %q not found", id)
}

// CamerasList returns every camera known to the driver.
func (d *Driver) CamerasList(ctx context.Context) ([]vmbc.CameraInfo, error) {
	d.mu.Lock()
	defer d.mu.Unlock()

	if !d.started {
		return nil, vmbc.NewStatus("CamerasList", vmbc.ErrAPINotStarted)
	}
	infos := make([]vmbc.CameraInfo, 0, len(d.devices))
	for _, dev := range d.devices {
		infos = append(infos, dev.info)
	}
	return infos, nil
}

// CameraInfo returns the descriptor of one camera.
func (d *Driver) CameraInfo(ctx context.Context, id string) (vmbc.CameraInfo, error) {
	dev, err := d.findDevice("CameraInfo", id)
	if err != nil {
		return vmbc.CameraInfo{}, err
	}
	return dev.info, nil
}

// CameraOpen opens a camera and registers its device and stream handles.
func (d *Driver) CameraOpen(ctx context.Context, id string, mode vmbc.AccessMode) (vmbc.Handle, error) {
	dev, err := d.findDevice("CameraOpen", id)
	if err != nil {
		return "", err
	}
	if mode == vmbc.AccessModeNone {
		return "", vmbc.NewStatusMsg("CameraOpen", vmbc.ErrBadParameter, "access mode is required")
	}
	if mode&^dev.info.PermittedAccess != 0 {
		return "", vmbc.NewStatusMsg("CameraOpen", vmbc.ErrInvalidAccess, "access mode %d not permitted", mode)
	}

	dev.mu.Lock()
	if dev.open {
		dev.mu.Unlock()
		return "", vmbc.NewStatusMsg("CameraOpen", vmbc.ErrInvalidAccess, "camera already open")
	}
	dev.open = true
	dev.openMode = mode
	dev.handle = vmbc.Handle(uuid.NewString())
	dev.feats.handle = dev.handle
	for _, st := range dev.streams {
		st.handle = vmbc.Handle(uuid.NewString())
		st.feats.handle = st.handle
	}
	dev.mu.Unlock()

	d.mu.Lock()
	d.handles[dev.handle] = &entity{dev: dev, feats: dev.feats}
	for _, st := range dev.streams {
		d.handles[st.handle] = &entity{dev: dev, stream: st, feats: st.feats}
	}
	d.mu.Unlock()

	d.logger.Debugf("Camera %s opened", id)
	return dev.handle, nil
}

// CameraClose stops acquisition, flushes streams and drops all handles of
// the camera.
func (d *Driver) CameraClose(ctx context.Context, h vmbc.Handle) error {
	e, err := d.resolve("CameraClose", h)
	if err != nil {
		return err
	}
	if e.dev == nil || e.stream != nil {
		return vmbc.NewStatus("CameraClose", vmbc.ErrBadHandle)
	}
	dev := e.dev

	dev.stopAcquisition()

	d.mu.Lock()
	delete(d.handles, dev.handle)
	for _, st := range dev.streams {
		delete(d.handles, st.handle)
	}
	d.mu.Unlock()

	for _, st := range dev.streams {
		st.flush()
		st.mu.Lock()
		st.capturing = false
		st.announced = map[*vmbc.Frame]bool{}
		st.waiting = map[*vmbc.Frame]*queuedFrame{}
		st.syncAnnouncedCount()
		st.mu.Unlock()

		st.feats.mu.Lock()
		st.feats.invalidations = map[string]vmbc.InvalidationCallback{}
		st.feats.mu.Unlock()
	}

	dev.feats.mu.Lock()
	dev.feats.invalidations = map[string]vmbc.InvalidationCallback{}
	dev.feats.mu.Unlock()

	dev.mu.Lock()
	dev.open = false
	dev.openMode = vmbc.AccessModeNone
	dev.handle = ""
	dev.mu.Unlock()

	d.logger.Debugf("Camera %s closed", dev.info.ID)
	return nil
}

// InterfacesList returns every interface known to the driver.
func (d *Driver) InterfacesList(ctx context.Context) ([]vmbc.InterfaceInfo, error) {
	d.mu.Lock()
	defer d.mu.Unlock()

	if !d.started {
		return nil, vmbc.NewStatus("InterfacesList", vmbc.ErrAPINotStarted)
	}
	infos := make([]vmbc.InterfaceInfo, 0, len(d.interfaces))
	for _, i := range d.interfaces {
		infos = append(infos, i.info)
	}
	return infos, nil
}

// InterfaceOpen exposes the feature scope of an interface.
func (d *Driver) InterfaceOpen(ctx context.Context, id string) (vmbc.Handle, error) {
	d.mu.Lock()
	defer d.mu.Unlock()

	if !d.started {
		return "", vmbc.NewStatus("InterfaceOpen", vmbc.ErrAPINotStarted)
	}
	for _, i := range d.interfaces {
		if i.info.ID == id {
			h := vmbc.Handle(uuid.NewString())
			i.feats.handle = h
			d.handles[h] = &entity{feats: i.feats}
			return h, nil
		}
	}
	return "", vmbc.NewStatusMsg("InterfaceOpen", vmbc.ErrNotFound, "interface %q not found", id)
}

// InterfaceClose drops an interface handle.
func (d *Driver) InterfaceClose(ctx context.Context, h vmbc.Handle) error {
	e, err := d.resolve("InterfaceClose", h)
	if err != nil {
		return err
	}
	if e.dev != nil {
		return vmbc.NewStatus("InterfaceClose", vmbc.ErrBadHandle)
	}

	d.mu.Lock()
	delete(d.handles, h)
	d.mu.Unlock()

	e.feats.mu.Lock()
	e.feats.invalidations = map[string]vmbc.InvalidationCallback{}
	e.feats.mu.Unlock()
	return nil
}

// StreamsList returns the stream handles of an open camera.
func (d *Driver) StreamsList(camera vmbc.Handle) ([]vmbc.Handle, error) {
	e, err := d.resolve("StreamsList", camera)
	if err != nil {
		return nil, err
	}
	if e.dev == nil || e.stream != nil {
		return nil, vmbc.NewStatus("StreamsList", vmbc.ErrBadHandle)
	}

	handles := make([]vmbc.Handle, 0, len(e.dev.streams))
	for _, st := range e.dev.streams {
		handles = append(handles, st.handle)
	}
	return handles, nil
}

// FeaturesList returns the features of any live handle scope.
func (d *Driver) FeaturesList(h vmbc.Handle) ([]vmbc.FeatureInfo, error) {
	e, err := d.resolve("FeaturesList", h)
	if err != nil {
		return nil, err
	}
	return e.feats.list(), nil
}

// FeatureAccessQuery reports the current readability and writability of a
// feature.
func (d *Driver) FeatureAccessQuery(h vmbc.Handle, name string) (bool, bool, error) {
	e, err := d.resolve("FeatureAccessQuery", h)
	if err != nil {
		return false, false, err
	}

	e.feats.mu.Lock()
	defer e.feats.mu.Unlock()
	f, err := e.feats.get("FeatureAccessQuery", name)
	if err != nil {
		return false, false, err
	}

	writeable := f.writeable
	if e.dev != nil && e.dev.readOnlyMode() {
		writeable = false
	}
	return f.readable, writeable, nil
}

// FeatureListSelected returns the names of the features selected by one.
func (d *Driver) FeatureListSelected(h vmbc.Handle, name string) ([]string, error) {
	return d.relatedFeatures("FeatureListSelected", h, name, func(f *feature) []string { return f.selected })
}

// FeatureListAffected returns the names of the features invalidated by one.
func (d *Driver) FeatureListAffected(h vmbc.Handle, name string) ([]string, error) {
	return d.relatedFeatures("FeatureListAffected", h, name, func(f *feature) []string { return f.affected })
}

func (d *Driver) relatedFeatures(op string, h vmbc.Handle, name string, pick func(*feature) []string) ([]string, error) {
	e, err := d.resolve(op, h)
	if err != nil {
		return nil, err
	}

	e.feats.mu.Lock()
	defer e.feats.mu.Unlock()
	f, err := e.feats.get(op, name)
	if err != nil {
		return nil, err
	}
	return append([]string(nil), pick(f)...), nil
}

// readFeature runs fn on a feature under the set lock after type and
// readability checks.
func (d *Driver) readFeature(op string, h vmbc.Handle, name string, typ vmbc.FeatureType, fn func(*feature) error) error {
	e, err := d.resolve(op, h)
	if err != nil {
		return err
	}

	e.feats.mu.Lock()
	defer e.feats.mu.Unlock()
	f, err := e.feats.get(op, name)
	if err != nil {
		return err
	}
	if f.info.Type != typ {
		return vmbc.NewStatusMsg(op, vmbc.ErrWrongType, "feature %q is of type %s", name, f.info.Type)
	}
	if !f.readable {
		return vmbc.NewStatusMsg(op, vmbc.ErrInvalidAccess, "feature %q is not readable", name)
	}
	return fn(f)
}

// writeFeature runs fn on a feature under the set lock after type and
// writability checks, then applies device side effects and fires
// invalidations.
func (d *Driver) writeFeature(op string, h vmbc.Handle, name string, typ vmbc.FeatureType, fn func(*feature) error) error {
	e, err := d.resolve(op, h)
	if err != nil {
		return err
	}

	e.feats.mu.Lock()
	f, err := e.feats.get(op, name)
	if err != nil {
		e.feats.mu.Unlock()
		return err
	}
	if f.info.Type != typ {
		e.feats.mu.Unlock()
		return vmbc.NewStatusMsg(op, vmbc.ErrWrongType, "feature %q is of type %s", name, f.info.Type)
	}
	if !f.writeable || (e.dev != nil && e.dev.readOnlyMode()) {
		e.feats.mu.Unlock()
		return vmbc.NewStatusMsg(op, vmbc.ErrInvalidAccess, "feature %q is not writeable", name)
	}
	if err := fn(f); err != nil {
		e.feats.mu.Unlock()
		return err
	}
	invalidated := append([]string{name}, f.affected...)
	e.feats.mu.Unlock()

	if e.dev != nil {
		e.dev.afterWrite(name)
	}
	e.feats.fire(invalidated...)
	return nil
}

func (d *Driver) FeatureBoolGet(h vmbc.Handle, name string) (bool, error) {
	var v bool
	err := d.readFeature("FeatureBoolGet", h, name, vmbc.FeatureTypeBool, func(f *feature) error {
		v = f.boolVal
		return nil
	})
	return v, err
}

func (d *Driver) FeatureBoolSet(h vmbc.Handle, name string, v bool) error {
	return d.writeFeature("FeatureBoolSet", h, name, vmbc.FeatureTypeBool, func(f *feature) error {
		f.boolVal = v
		return nil
	})
}

func (d *Driver) FeatureIntGet(h vmbc.Handle, name string) (int64, error) {
	var v int64
	err := d.readFeature("FeatureIntGet", h, name, vmbc.FeatureTypeInt, func(f *feature) error {
		v = f.intVal
		return nil
	})
	return v, err
}

func (d *Driver) FeatureIntSet(h vmbc.Handle, name string, v int64) error {
	return d.writeFeature("FeatureIntSet", h, name, vmbc.FeatureTypeInt, func(f *feature) error {
		if v < f.intMin || v > f.intMax {
			return vmbc.NewStatusMsg("FeatureIntSet", vmbc.ErrInvalidValue, "%d outside [%d, %d]", v, f.intMin, f.intMax)
		}
		if f.intInc > 1 && (v-f.intMin)%f.intInc != 0 {
			return vmbc.NewStatusMsg("FeatureIntSet", vmbc.ErrInvalidValue, "%d does not match increment %d", v, f.intInc)
		}
		f.intVal = v
		return nil
	})
}

func (d *Driver) FeatureIntRangeQuery(h vmbc.Handle, name string) (int64, int64, error) {
	var min, max int64
	err := d.readFeature("FeatureIntRangeQuery", h, name, vmbc.FeatureTypeInt, func(f *feature) error {
		min, max = f.intMin, f.intMax
		return nil
	})
	return min, max, err
}

func (d *Driver) FeatureIntIncrementQuery(h vmbc.Handle, name string) (int64, error) {
	var inc int64
	err := d.readFeature("FeatureIntIncrementQuery", h, name, vmbc.FeatureTypeInt, func(f *feature) error {
		inc = f.intInc
		return nil
	})
	return inc, err
}

func (d *Driver) FeatureFloatGet(h vmbc.Handle, name string) (float64, error) {
	var v float64
	err := d.readFeature("FeatureFloatGet", h, name, vmbc.FeatureTypeFloat, func(f *feature) error {
		v = f.floatVal
		return nil
	})
	return v, err
}

func (d *Driver) FeatureFloatSet(h vmbc.Handle, name string, v float64) error {
	return d.writeFeature("FeatureFloatSet", h, name, vmbc.FeatureTypeFloat, func(f *feature) error {
		if v < f.floatMin || v > f.floatMax {
			return vmbc.NewStatusMsg("FeatureFloatSet", vmbc.ErrInvalidValue, "%g outside [%g, %g]", v, f.floatMin, f.floatMax)
		}
		f.floatVal = v
		return nil
	})
}

func (d *Driver) FeatureFloatRangeQuery(h vmbc.Handle, name string) (float64, float64, error) {
	var min, max float64
	err := d.readFeature("FeatureFloatRangeQuery", h, name, vmbc.FeatureTypeFloat, func(f *feature) error {
		min, max = f.floatMin, f.floatMax
		return nil
	})
	return min, max, err
}

func (d *Driver) FeatureFloatIncrementQuery(h vmbc.Handle, name string) (float64, bool, error) {
	var inc float64
	var has bool
	err := d.readFeature("FeatureFloatIncrementQuery", h, name, vmbc.FeatureTypeFloat, func(f *feature) error {
		inc, has = f.floatInc, f.hasFloatInc
		return nil
	})
	return inc, has, err
}

func (d *Driver) FeatureStringGet(h vmbc.Handle, name string) (string, error) {
	var v string
	err := d.readFeature("FeatureStringGet", h, name, vmbc.FeatureTypeString, func(f *feature) error {
		v = f.strVal
		return nil
	})
	return v, err
}

func (d *Driver) FeatureStringSet(h vmbc.Handle, name string, v string) error {
	return d.writeFeature("FeatureStringSet", h, name, vmbc.FeatureTypeString, func(f *feature) error {
		if len(v) > f.strMax {
			return vmbc.NewStatusMsg("FeatureStringSet", vmbc.ErrInvalidValue, "length %d exceeds maximum %d", len(v), f.strMax)
		}
		f.strVal = v
		return nil
	})
}

func (d *Driver) FeatureStringMaxlengthQuery(h vmbc.Handle, name string) (int, error) {
	var n int
	err := d.readFeature("FeatureStringMaxlengthQuery", h, name, vmbc.FeatureTypeString, func(f *feature) error {
		n = f.strMax
		return nil
	})
	return n, err
}

func (d *Driver) FeatureEnumGet(h vmbc.Handle, name string) (string, error) {
	var v string
	err := d.readFeature("FeatureEnumGet", h, name, vmbc.FeatureTypeEnum, func(f *feature) error {
		v = f.enumVal
		return nil
	})
	return v, err
}

func (d *Driver) FeatureEnumSet(h vmbc.Handle, name string, entry string) error {
	return d.writeFeature("FeatureEnumSet", h, name, vmbc.FeatureTypeEnum, func(f *feature) error {
		avail, ok := f.enumAvailable[entry]
		if !ok {
			return vmbc.NewStatusMsg("FeatureEnumSet", vmbc.ErrInvalidValue, "unknown entry %q", entry)
		}
		if !avail {
			return vmbc.NewStatusMsg("FeatureEnumSet", vmbc.ErrInvalidValue, "entry %q is not available", entry)
		}
		f.enumVal = entry
		return nil
	})
}

func (d *Driver) FeatureEnumRangeQuery(h vmbc.Handle, name string) ([]vmbc.EnumEntryInfo, error) {
	var entries []vmbc.EnumEntryInfo
	err := d.readFeature("FeatureEnumRangeQuery", h, name, vmbc.FeatureTypeEnum, func(f *feature) error {
		entries = append([]vmbc.EnumEntryInfo(nil), f.enumEntries...)
		return nil
	})
	return entries, err
}

func (d *Driver) FeatureEnumIsAvailable(h vmbc.Handle, name, entry string) (bool, error) {
	var avail bool
	err := d.readFeature("FeatureEnumIsAvailable", h, name, vmbc.FeatureTypeEnum, func(f *feature) error {
		a, ok := f.enumAvailable[entry]
		if !ok {
			return vmbc.NewStatusMsg("FeatureEnumIsAvailable", vmbc.ErrInvalidValue, "unknown entry %q", entry)
		}
		avail = a
		return nil
	})
	return avail, err
}

// FeatureCommandRun executes a command feature. Commands complete before
// the call returns.
func (d *Driver) FeatureCommandRun(h vmbc.Handle, name string) error {
	e, err := d.resolve("FeatureCommandRun", h)
	if err != nil {
		return err
	}

	e.feats.mu.Lock()
	f, err := e.feats.get("FeatureCommandRun", name)
	if err != nil {
		e.feats.mu.Unlock()
		return err
	}
	if f.info.Type != vmbc.FeatureTypeCommand {
		e.feats.mu.Unlock()
		return vmbc.NewStatusMsg("FeatureCommandRun", vmbc.ErrWrongType, "feature %q is of type %s", name, f.info.Type)
	}
	if !f.writeable || (e.dev != nil && e.dev.readOnlyMode()) {
		e.feats.mu.Unlock()
		return vmbc.NewStatusMsg("FeatureCommandRun", vmbc.ErrInvalidAccess, "feature %q is not writeable", name)
	}
	e.feats.mu.Unlock()

	if e.dev != nil {
		e.dev.runCommand(name)
	}
	e.feats.fire(name)
	return nil
}

func (d *Driver) FeatureCommandIsDone(h vmbc.Handle, name string) (bool, error) {
	e, err := d.resolve("FeatureCommandIsDone", h)
	if err != nil {
		return false, err
	}

	e.feats.mu.Lock()
	defer e.feats.mu.Unlock()
	f, err := e.feats.get("FeatureCommandIsDone", name)
	if err != nil {
		return false, err
	}
	if f.info.Type != vmbc.FeatureTypeCommand {
		return false, vmbc.NewStatusMsg("FeatureCommandIsDone", vmbc.ErrWrongType, "feature %q is of type %s", name, f.info.Type)
	}
	return true, nil
}

func (d *Driver) FeatureRawGet(h vmbc.Handle, name string) ([]byte, error) {
	var v []byte
	err := d.readFeature("FeatureRawGet", h, name, vmbc.FeatureTypeRaw, func(f *feature) error {
		v = append([]byte(nil), f.rawVal...)
		return nil
	})
	return v, err
}

func (d *Driver) FeatureRawSet(h vmbc.Handle, name string, v []byte) error {
	return d.writeFeature("FeatureRawSet", h, name, vmbc.FeatureTypeRaw, func(f *feature) error {
		f.rawVal = append([]byte(nil), v...)
		return nil
	})
}

func (d *Driver) FeatureRawLengthQuery(h vmbc.Handle, name string) (int, error) {
	var n int
	err := d.readFeature("FeatureRawLengthQuery", h, name, vmbc.FeatureTypeRaw, func(f *feature) error {
		n = len(f.rawVal)
		return nil
	})
	return n, err
}

// FeatureInvalidationRegister installs the invalidation callback of a
// feature, replacing any previous one.
func (d *Driver) FeatureInvalidationRegister(h vmbc.Handle, name string, cb vmbc.InvalidationCallback) error {
	e, err := d.resolve("FeatureInvalidationRegister", h)
	if err != nil {
		return err
	}

	e.feats.mu.Lock()
	defer e.feats.mu.Unlock()
	if _, err := e.feats.get("FeatureInvalidationRegister", name); err != nil {
		return err
	}
	e.feats.invalidations[name] = cb
	return nil
}

// FeatureInvalidationUnregister removes the invalidation callback of a
// feature. Removing an absent callback is a no-op.
func (d *Driver) FeatureInvalidationUnregister(h vmbc.Handle, name string) error {
	e, err := d.resolve("FeatureInvalidationUnregister", h)
	if err != nil {
		return err
	}

	e.feats.mu.Lock()
	defer e.feats.mu.Unlock()
	delete(e.feats.invalidations, name)
	return nil
}

func (d *Driver) resolveStream(op string, h vmbc.Handle) (*stream, error) {
	e, err := d.resolve(op, h)
	if err != nil {
		return nil, err
	}
	if e.stream == nil {
		return nil, vmbc.NewStatus(op, vmbc.ErrBadHandle)
	}
	return e.stream, nil
}

// PayloadSizeGet returns the buffer size required for one frame.
func (d *Driver) PayloadSizeGet(h vmbc.Handle) (int, error) {
	st, err := d.resolveStream("PayloadSizeGet", h)
	if err != nil {
		return 0, err
	}
	st.dev.refreshPayloadSize()
	return int(st.dev.intFeatureValue("PayloadSize", 0)), nil
}

func (d *Driver) FrameAnnounce(h vmbc.Handle, f *vmbc.Frame) error {
	st, err := d.resolveStream("FrameAnnounce", h)
	if err != nil {
		return err
	}
	return st.announce(f)
}

func (d *Driver) FrameRevoke(h vmbc.Handle, f *vmbc.Frame) error {
	st, err := d.resolveStream("FrameRevoke", h)
	if err != nil {
		return err
	}
	if err := st.revoke(f); err != nil {
		return err
	}
	d.detachChunk(f)
	return nil
}

func (d *Driver) CaptureStart(h vmbc.Handle) error {
	st, err := d.resolveStream("CaptureStart", h)
	if err != nil {
		return err
	}
	return st.captureStart()
}

func (d *Driver) CaptureEnd(h vmbc.Handle) error {
	st, err := d.resolveStream("CaptureEnd", h)
	if err != nil {
		return err
	}
	return st.captureEnd()
}

func (d *Driver) CaptureFrameQueue(h vmbc.Handle, f *vmbc.Frame, cb vmbc.FrameCallback) error {
	st, err := d.resolveStream("CaptureFrameQueue", h)
	if err != nil {
		return err
	}
	d.detachChunk(f)
	return st.enqueue(f, cb)
}

// CaptureFrameWait blocks until the queued frame completes, the timeout
// expires or the wait is aborted by a queue flush.
func (d *Driver) CaptureFrameWait(ctx context.Context, h vmbc.Handle, f *vmbc.Frame, timeout time.Duration) error {
	st, err := d.resolveStream("CaptureFrameWait", h)
	if err != nil {
		return err
	}
	qf := st.pending(f)
	if qf == nil {
		return vmbc.NewStatusMsg("CaptureFrameWait", vmbc.ErrBadParameter, "frame not queued")
	}

	var expired <-chan time.Time
	if timeout > 0 {
		timer := time.NewTimer(timeout)
		defer timer.Stop()
		expired = timer.C
	}

	select {
	case code := <-qf.result:
		st.clearWait(f, qf)
		if code != vmbc.ErrSuccess {
			return vmbc.NewStatus("CaptureFrameWait", code)
		}
		return nil
	case <-ctx.Done():
		return vmbc.NewStatusMsg("CaptureFrameWait", vmbc.ErrAborted, "%v", ctx.Err())
	case <-expired:
		return vmbc.NewStatus("CaptureFrameWait", vmbc.ErrTimeout)
	}
}

func (d *Driver) CaptureQueueFlush(h vmbc.Handle) error {
	st, err := d.resolveStream("CaptureQueueFlush", h)
	if err != nil {
		return err
	}
	st.flush()
	return nil
}

func (d *Driver) attachChunk(f *vmbc.Frame, set *featureSet) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.chunks[f] = set
}

func (d *Driver) detachChunk(f *vmbc.Frame) {
	d.mu.Lock()
	defer d.mu.Unlock()
	delete(d.chunks, f)
}

// ChunkDataAccess exposes the chunk features of a completed frame to cb
// through a transient handle. The error returned by cb is passed through
// verbatim.
func (d *Driver) ChunkDataAccess(f *vmbc.Frame, cb func(chunk vmbc.Handle) error) error {
	d.mu.Lock()
	if !d.started {
		d.mu.Unlock()
		return vmbc.NewStatus("ChunkDataAccess", vmbc.ErrAPINotStarted)
	}
	set, ok := d.chunks[f]
	if !ok || f.AncillarySize == 0 {
		d.mu.Unlock()
		return vmbc.NewStatus("ChunkDataAccess", vmbc.ErrNoChunkData)
	}
	h := vmbc.Handle(uuid.NewString())
	set.handle = h
	d.handles[h] = &entity{feats: set}
	d.mu.Unlock()

	err := cb(h)

	d.mu.Lock()
	delete(d.handles, h)
	d.mu.Unlock()
	return err
}

// MemoryRead reads from the register space of a device.
func (d *Driver) MemoryRead(h vmbc.Handle, addr uint64, n int) ([]byte, error) {
	e, err := d.resolve("MemoryRead", h)
	if err != nil {
		return nil, err
	}
	if e.dev == nil {
		return nil, vmbc.NewStatus("MemoryRead", vmbc.ErrBadHandle)
	}

	dev := e.dev
	dev.mu.Lock()
	defer dev.mu.Unlock()
	size := uint64(len(dev.memory))
	if n < 0 || addr > size || uint64(n) > size-addr {
		return nil, vmbc.NewStatusMsg("MemoryRead", vmbc.ErrBadParameter, "range of %d bytes at %d outside register space", n, addr)
	}
	return append([]byte(nil), dev.memory[addr:addr+uint64(n)]...), nil
}

// MemoryWrite writes into the register space of a device.
func (d *Driver) MemoryWrite(h vmbc.Handle, addr uint64, data []byte) error {
	e, err := d.resolve("MemoryWrite", h)
	if err != nil {
		return err
	}
	if e.dev == nil {
		return vmbc.NewStatus("MemoryWrite", vmbc.ErrBadHandle)
	}
	if e.dev.readOnlyMode() {
		return vmbc.NewStatus("MemoryWrite", vmbc.ErrInvalidAccess)
	}

	dev := e.dev
	dev.mu.Lock()
	defer dev.mu.Unlock()
	size := uint64(len(dev.memory))
	if addr > size || uint64(len(data)) > size-addr {
		return vmbc.NewStatusMsg("MemoryWrite", vmbc.ErrBadParameter, "range of %d bytes at %d outside register space", len(data), addr)
	}
	copy(dev.memory[addr:], data)
	return nil
}
