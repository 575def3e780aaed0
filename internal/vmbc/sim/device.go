package sim

import (
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/EtchedChampion/drd-VmbPy/internal/log"
	"github.com/EtchedChampion/drd-VmbPy/internal/vmbc"
)

// feature is the live state of one simulated feature.
type feature struct {
	info      vmbc.FeatureInfo
	readable  bool
	writeable bool

	intVal, intMin, intMax, intInc int64
	floatVal, floatMin, floatMax   float64
	floatInc                       float64
	hasFloatInc                    bool
	boolVal                        bool
	strVal                         string
	strMax                         int
	enumVal                        string
	enumEntries                    []vmbc.EnumEntryInfo
	enumAvailable                  map[string]bool
	rawVal                         []byte

	affected []string
	selected []string
}

func newFeature(spec FeatureSpec) *feature {
	info := vmbc.FeatureInfo{
		Name:           spec.Name,
		Category:       spec.Category,
		DisplayName:    spec.DisplayName,
		Tooltip:        spec.Tooltip,
		Description:    spec.Description,
		SFNCNamespace:  "Standard",
		Unit:           spec.Unit,
		Representation: spec.Representation,
		Type:           spec.Type,
		Visibility:     spec.Visibility,
		PollingTime:    spec.PollingTime,
		IsStreamable:   spec.Streamable,
		HasAffected:    len(spec.Affected) > 0,
		HasSelected:    len(spec.Selected) > 0,
	}
	if info.DisplayName == "" {
		info.DisplayName = spec.Name
	}
	if spec.Readable {
		info.Flags |= vmbc.FeatureFlagRead
	}
	if spec.Writeable {
		info.Flags |= vmbc.FeatureFlagWrite
	}
	if spec.Volatile {
		info.Flags |= vmbc.FeatureFlagVolatile
	}

	f := &feature{
		info:      info,
		readable:  spec.Readable,
		writeable: spec.Writeable,
		affected:  spec.Affected,
		selected:  spec.Selected,
	}

	switch spec.Type {
	case vmbc.FeatureTypeInt:
		f.intVal, f.intMin, f.intMax, f.intInc = spec.Int.Value, spec.Int.Min, spec.Int.Max, spec.Int.Inc
		if f.intInc <= 0 {
			f.intInc = 1
		}
	case vmbc.FeatureTypeFloat:
		f.floatVal, f.floatMin, f.floatMax = spec.Float.Value, spec.Float.Min, spec.Float.Max
		f.floatInc, f.hasFloatInc = spec.Float.Inc, spec.Float.HasInc
	case vmbc.FeatureTypeBool:
		f.boolVal = spec.Bool.Value
	case vmbc.FeatureTypeString:
		f.strVal = spec.String.Value
		f.strMax = spec.String.MaxLength
		if f.strMax <= 0 {
			f.strMax = 128
		}
	case vmbc.FeatureTypeEnum:
		f.enumAvailable = map[string]bool{}
		for _, e := range spec.Enum.Entries {
			f.enumEntries = append(f.enumEntries, vmbc.EnumEntryInfo{Name: e.Name, Value: e.Value})
			f.enumAvailable[e.Name] = !e.Unavailable
		}
		f.enumVal = spec.Enum.Value
		if f.enumVal == "" && len(f.enumEntries) > 0 {
			f.enumVal = f.enumEntries[0].Name
		}
	case vmbc.FeatureTypeRaw:
		f.rawVal = append([]byte(nil), spec.Raw.Value...)
	}

	return f
}

// featureSet is an ordered feature map with per set invalidation callbacks.
// It backs every handle scope the driver exposes (system, interface, device,
// stream and transient chunk scopes).
type featureSet struct {
	handle vmbc.Handle

	mu            sync.Mutex
	order         []string
	feats         map[string]*feature
	invalidations map[string]vmbc.InvalidationCallback
}

func newFeatureSet(specs []FeatureSpec) *featureSet {
	s := &featureSet{
		feats:         map[string]*feature{},
		invalidations: map[string]vmbc.InvalidationCallback{},
	}
	for _, spec := range specs {
		if _, ok := s.feats[spec.Name]; ok {
			continue
		}
		s.order = append(s.order, spec.Name)
		s.feats[spec.Name] = newFeature(spec)
	}
	return s
}

func (s *featureSet) get(op, name string) (*feature, error) {
	f, ok := s.feats[name]
	if !ok {
		return nil, vmbc.NewStatusMsg(op, vmbc.ErrNotFound, "feature %q not found", name)
	}
	return f, nil
}

func (s *featureSet) list() []vmbc.FeatureInfo {
	s.mu.Lock()
	defer s.mu.Unlock()

	infos := make([]vmbc.FeatureInfo, 0, len(s.order))
	for _, name := range s.order {
		infos = append(infos, s.feats[name].info)
	}
	return infos
}

// fire delivers invalidation callbacks for the named features on a fresh
// goroutine, matching the foreign thread delivery of the native layer.
func (s *featureSet) fire(names ...string) {
	s.mu.Lock()
	type pending struct {
		cb   vmbc.InvalidationCallback
		name string
	}
	var cbs []pending
	for _, name := range names {
		if cb, ok := s.invalidations[name]; ok {
			cbs = append(cbs, pending{cb: cb, name: name})
		}
	}
	handle := s.handle
	s.mu.Unlock()

	if len(cbs) == 0 {
		return
	}
	go func() {
		for _, p := range cbs {
			p.cb(handle, p.name)
		}
	}()
}

// snapshot returns read-only copies of the streamable or persistable
// features, used for chunk scopes and settings saving.
func (s *featureSet) snapshot(keep func(*feature) bool) []FeatureSpec {
	s.mu.Lock()
	defer s.mu.Unlock()

	var specs []FeatureSpec
	for _, name := range s.order {
		f := s.feats[name]
		if !keep(f) {
			continue
		}
		specs = append(specs, f.toSpec())
	}
	return specs
}

// toSpec converts the live feature back to a spec carrying its current
// value. Used to build chunk scopes and settings files.
func (f *feature) toSpec() FeatureSpec {
	spec := FeatureSpec{
		Name:       f.info.Name,
		Category:   f.info.Category,
		Type:       f.info.Type,
		Unit:       f.info.Unit,
		Readable:   true,
		Streamable: f.info.IsStreamable,
	}
	switch f.info.Type {
	case vmbc.FeatureTypeInt:
		spec.Int = &IntSpec{Value: f.intVal, Min: f.intMin, Max: f.intMax, Inc: f.intInc}
	case vmbc.FeatureTypeFloat:
		spec.Float = &FloatSpec{Value: f.floatVal, Min: f.floatMin, Max: f.floatMax, Inc: f.floatInc, HasInc: f.hasFloatInc}
	case vmbc.FeatureTypeBool:
		spec.Bool = &BoolSpec{Value: f.boolVal}
	case vmbc.FeatureTypeString:
		spec.String = &StringSpec{Value: f.strVal, MaxLength: f.strMax}
	case vmbc.FeatureTypeEnum:
		e := &EnumSpec{Value: f.enumVal}
		for _, entry := range f.enumEntries {
			e.Entries = append(e.Entries, EnumEntrySpec{Name: entry.Name, Value: entry.Value, Unavailable: !f.enumAvailable[entry.Name]})
		}
		spec.Enum = e
	case vmbc.FeatureTypeRaw:
		spec.Raw = &RawSpec{Value: append([]byte(nil), f.rawVal...)}
	}
	return spec
}

// queuedFrame tracks one frame handed to the capture queue.
type queuedFrame struct {
	frame  *vmbc.Frame
	cb     vmbc.FrameCallback
	result chan vmbc.ErrorCode
}

// stream is one capture channel of a device.
type stream struct {
	dev    *device
	handle vmbc.Handle
	feats  *featureSet

	mu        sync.Mutex
	capturing bool
	announced map[*vmbc.Frame]bool
	queue     []*queuedFrame
	// waiting keeps the latest queue record per frame so a wait can still
	// find it after delivery or flush popped it from the queue.
	waiting map[*vmbc.Frame]*queuedFrame
}

func newStream(dev *device, index int) *stream {
	return &stream{
		dev: dev,
		feats: newFeatureSet([]FeatureSpec{
			{
				Name: "StreamID", Type: vmbc.FeatureTypeString, Category: "/StreamInformation",
				Readable: true,
				String:   &StringSpec{Value: fmt.Sprintf("%s/Stream%d", dev.spec.ID, index), MaxLength: 128},
			},
			{
				Name: "StreamAnnouncedBufferCount", Type: vmbc.FeatureTypeInt, Category: "/BufferInformation",
				Readable: true, Volatile: true,
				Int: &IntSpec{Value: 0, Min: 0, Max: 1 << 31, Inc: 1},
			},
		}),
		announced: map[*vmbc.Frame]bool{},
		waiting:   map[*vmbc.Frame]*queuedFrame{},
	}
}

func (s *stream) announce(f *vmbc.Frame) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if f == nil || len(f.Buffer) == 0 {
		return vmbc.NewStatus("FrameAnnounce", vmbc.ErrBadParameter)
	}
	if s.announced[f] {
		return vmbc.NewStatusMsg("FrameAnnounce", vmbc.ErrBadParameter, "frame already announced")
	}
	s.announced[f] = true
	s.syncAnnouncedCount()
	return nil
}

func (s *stream) revoke(f *vmbc.Frame) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if !s.announced[f] {
		return vmbc.NewStatusMsg("FrameRevoke", vmbc.ErrBadParameter, "frame not announced")
	}
	for _, qf := range s.queue {
		if qf.frame == f {
			return vmbc.NewStatusMsg("FrameRevoke", vmbc.ErrInvalidCall, "frame still queued")
		}
	}
	delete(s.announced, f)
	delete(s.waiting, f)
	s.syncAnnouncedCount()
	return nil
}

func (s *stream) enqueue(f *vmbc.Frame, cb vmbc.FrameCallback) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if !s.announced[f] {
		return vmbc.NewStatusMsg("CaptureFrameQueue", vmbc.ErrBadParameter, "frame not announced")
	}
	for _, qf := range s.queue {
		if qf.frame == f {
			return vmbc.NewStatusMsg("CaptureFrameQueue", vmbc.ErrBadParameter, "frame already queued")
		}
	}
	qf := &queuedFrame{frame: f, cb: cb, result: make(chan vmbc.ErrorCode, 1)}
	s.queue = append(s.queue, qf)
	s.waiting[f] = qf
	return nil
}

func (s *stream) captureStart() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.capturing = true
	return nil
}

func (s *stream) captureEnd() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.capturing = false
	return nil
}

// flush aborts every queued frame. Blocked waits wake with an aborted
// status; callback frames are silently returned to the announced pool.
func (s *stream) flush() {
	s.mu.Lock()
	queue := s.queue
	s.queue = nil
	s.mu.Unlock()

	for _, qf := range queue {
		qf.result <- vmbc.ErrAborted
	}
}

func (s *stream) pending(f *vmbc.Frame) *queuedFrame {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.waiting[f]
}

func (s *stream) clearWait(f *vmbc.Frame, qf *queuedFrame) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.waiting[f] == qf {
		delete(s.waiting, f)
	}
}

// deliverOne pops the oldest queued frame, fills it and completes it. It
// returns false when nothing was deliverable.
func (s *stream) deliverOne() bool {
	s.mu.Lock()
	if !s.capturing || len(s.queue) == 0 {
		s.mu.Unlock()
		return false
	}
	qf := s.queue[0]
	s.queue = s.queue[1:]
	s.mu.Unlock()

	s.dev.fillFrame(qf.frame)
	qf.result <- vmbc.ErrSuccess
	if qf.cb != nil {
		qf.cb(s.handle, qf.frame)
	}
	return true
}

// syncAnnouncedCount mirrors the announced pool size into the stream
// feature set. Callers hold stream.mu; the feature value itself is read
// under the feature set lock.
func (s *stream) syncAnnouncedCount() {
	s.feats.mu.Lock()
	defer s.feats.mu.Unlock()
	if f, ok := s.feats.feats["StreamAnnouncedBufferCount"]; ok {
		f.intVal = int64(len(s.announced))
	}
}

// device is one simulated camera.
type device struct {
	spec   CameraSpec
	info   vmbc.CameraInfo
	drv    *Driver
	logger log.Logger

	mu          sync.Mutex
	open        bool
	openMode    vmbc.AccessMode
	handle      vmbc.Handle
	feats       *featureSet
	streams     []*stream
	memory      []byte
	acquiring   bool
	stopGen     chan struct{}
	genDone     chan struct{}
	nextFrameID uint64
}

func newDevice(drv *Driver, spec CameraSpec, logger log.Logger) *device {
	spec = ensureCoreFeatures(spec)

	d := &device{
		spec: spec,
		info: vmbc.CameraInfo{
			ID:              spec.ID,
			Name:            spec.Name,
			Model:           spec.Model,
			Serial:          spec.Serial,
			InterfaceID:     spec.InterfaceID,
			PermittedAccess: spec.PermittedAccess,
		},
		drv:    drv,
		logger: logger.WithValues(log.Kv{"camera": spec.ID}),
		memory: make([]byte, 4096),
	}

	d.feats = newFeatureSet(spec.Features)
	for i := 0; i < spec.StreamCount; i++ {
		d.streams = append(d.streams, newStream(d, i))
	}
	d.refreshPayloadSize()

	return d
}

func (d *device) readOnlyMode() bool {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.open && d.openMode == vmbc.AccessModeRead
}

func (d *device) intFeatureValue(name string, fallback int64) int64 {
	d.feats.mu.Lock()
	defer d.feats.mu.Unlock()
	if f, ok := d.feats.feats[name]; ok && f.info.Type == vmbc.FeatureTypeInt {
		return f.intVal
	}
	return fallback
}

// refreshPayloadSize recomputes PayloadSize from the current geometry.
// Mono8 only, one byte per pixel.
func (d *device) refreshPayloadSize() {
	w := d.intFeatureValue("Width", 640)
	h := d.intFeatureValue("Height", 480)

	d.feats.mu.Lock()
	if f, ok := d.feats.feats["PayloadSize"]; ok {
		f.intVal = w * h
	}
	d.feats.mu.Unlock()
}

// fillFrame completes a frame with generated image data and metadata. When
// chunk mode is active a snapshot of the chunk features is attached.
func (d *device) fillFrame(f *vmbc.Frame) {
	w := uint32(d.intFeatureValue("Width", 640))
	h := uint32(d.intFeatureValue("Height", 480))

	d.mu.Lock()
	id := d.nextFrameID
	d.nextFrameID++
	d.mu.Unlock()

	need := int(w) * int(h)
	status := vmbc.FrameStatusComplete
	if len(f.Buffer) < need {
		status = vmbc.FrameStatusTooSmall
		need = len(f.Buffer)
	}

	// Horizontal gradient shifted per frame, good enough to tell frames
	// apart in tests and demos.
	for i := 0; i < need; i++ {
		f.Buffer[i] = byte((uint64(i) + id) % 256)
	}

	f.Status = status
	f.Width, f.Height = w, h
	f.OffsetX = uint32(d.intFeatureValue("OffsetX", 0))
	f.OffsetY = uint32(d.intFeatureValue("OffsetY", 0))
	f.FrameID = id
	f.Timestamp = uint64(time.Now().UnixNano())
	f.Flags = vmbc.FrameFlagDimension | vmbc.FrameFlagOffset | vmbc.FrameFlagFrameID | vmbc.FrameFlagTimestamp
	f.PixelFormat = 0x01080001 // Mono8
	f.AncillarySize = 0

	if d.chunkModeActive() {
		f.AncillarySize = 64
		d.drv.attachChunk(f, d.chunkSnapshot(f))
	} else {
		d.drv.detachChunk(f)
	}
}

func (d *device) chunkModeActive() bool {
	d.feats.mu.Lock()
	defer d.feats.mu.Unlock()
	if f, ok := d.feats.feats["ChunkModeActive"]; ok {
		return f.boolVal
	}
	return false
}

// chunkSnapshot builds the transient feature set exposed by chunk access
// for one completed frame.
func (d *device) chunkSnapshot(f *vmbc.Frame) *featureSet {
	exposure := 0.0
	d.feats.mu.Lock()
	if ft, ok := d.feats.feats["ExposureTime"]; ok {
		exposure = ft.floatVal
	}
	d.feats.mu.Unlock()

	return newFeatureSet([]FeatureSpec{
		{
			Name: "ChunkFrameID", Type: vmbc.FeatureTypeInt, Category: "/ChunkDataControl",
			Readable: true,
			Int:      &IntSpec{Value: int64(f.FrameID), Min: 0, Max: 1 << 62, Inc: 1},
		},
		{
			Name: "ChunkTimestamp", Type: vmbc.FeatureTypeInt, Category: "/ChunkDataControl",
			Readable: true,
			Int:      &IntSpec{Value: int64(f.Timestamp), Min: 0, Max: 1 << 62, Inc: 1},
		},
		{
			Name: "ChunkWidth", Type: vmbc.FeatureTypeInt, Category: "/ChunkDataControl",
			Readable: true,
			Int:      &IntSpec{Value: int64(f.Width), Min: 0, Max: 1 << 31, Inc: 1},
		},
		{
			Name: "ChunkHeight", Type: vmbc.FeatureTypeInt, Category: "/ChunkDataControl",
			Readable: true,
			Int:      &IntSpec{Value: int64(f.Height), Min: 0, Max: 1 << 31, Inc: 1},
		},
		{
			Name: "ChunkExposureTime", Type: vmbc.FeatureTypeFloat, Category: "/ChunkDataControl",
			Readable: true, Unit: "us",
			Float: &FloatSpec{Value: exposure, Min: 0, Max: 1e9},
		},
	})
}

// startAcquisition launches the frame generator. Idempotent.
func (d *device) startAcquisition() {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.acquiring {
		return
	}
	d.acquiring = true
	d.stopGen = make(chan struct{})
	d.genDone = make(chan struct{})
	go d.generate(d.stopGen, d.genDone)
	d.logger.Debugf("Acquisition started")
}

// stopAcquisition stops the frame generator and waits for it to exit.
// Idempotent.
func (d *device) stopAcquisition() {
	d.mu.Lock()
	if !d.acquiring {
		d.mu.Unlock()
		return
	}
	d.acquiring = false
	stop, done := d.stopGen, d.genDone
	d.mu.Unlock()

	close(stop)
	<-done
	d.logger.Debugf("Acquisition stopped")
}

func (d *device) generate(stop <-chan struct{}, done chan<- struct{}) {
	defer close(done)

	ticker := time.NewTicker(d.spec.FrameInterval)
	defer ticker.Stop()

	for {
		select {
		case <-stop:
			return
		case <-ticker.C:
			for _, s := range d.streams {
				s.deliverOne()
			}
		}
	}
}

// runCommand executes the side effects of command features.
func (d *device) runCommand(name string) {
	switch name {
	case "AcquisitionStart":
		d.startAcquisition()
	case "AcquisitionStop":
		d.stopAcquisition()
	}
}

// afterWrite applies device level side effects of a feature write.
func (d *device) afterWrite(name string) {
	switch name {
	case "Width", "Height":
		d.readjust()
	}
}

func (d *device) readjust() {
	d.refreshPayloadSize()
}

func isLUTFeature(name string) bool {
	return strings.HasPrefix(name, "LUT")
}
