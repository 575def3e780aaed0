package vmb

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/EtchedChampion/drd-VmbPy/internal/log"
	"github.com/EtchedChampion/drd-VmbPy/internal/vmbc"
)

// Camera is one camera known to the system. Identity is available at any
// time, feature and frame access requires the camera to be open. A camera
// is itself a persistable feature container holding the remote device
// features.
type Camera struct {
	*PersistableFeatureContainer
	api    vmbc.API
	logger log.Logger
	info   vmbc.CameraInfo

	mu         sync.Mutex
	isOpen     bool
	handle     vmbc.Handle
	accessMode AccessMode
	streams    []*Stream
}

func newCamera(api vmbc.API, info vmbc.CameraInfo, logger log.Logger) *Camera {
	logger = logger.WithValues(log.Kv{"camera": info.ID})
	return &Camera{
		PersistableFeatureContainer: newPersistableFeatureContainer(api, logger),
		api:                         api,
		logger:                      logger,
		info:                        info,
		accessMode:                  AccessModeFull,
	}
}

// ID returns the unique camera id.
func (c *Camera) ID() string { return c.info.ID }

// Name returns the human readable camera name.
func (c *Camera) Name() string { return c.info.Name }

// Model returns the camera model.
func (c *Camera) Model() string { return c.info.Model }

// Serial returns the camera serial number.
func (c *Camera) Serial() string { return c.info.Serial }

// InterfaceID returns the id of the interface the camera is attached to.
func (c *Camera) InterfaceID() string { return c.info.InterfaceID }

// PermittedAccessModes returns the access modes the camera reported at
// discovery time. The transport layer has the final word at open time.
func (c *Camera) PermittedAccessModes() []AccessMode {
	var modes []AccessMode
	for _, m := range []vmbc.AccessMode{vmbc.AccessModeFull, vmbc.AccessModeRead, vmbc.AccessModeConfig} {
		if c.info.PermittedAccess&m != 0 {
			modes = append(modes, AccessMode(m))
		}
	}
	return modes
}

// AccessMode returns the access mode used for (the next) Open.
func (c *Camera) AccessMode() AccessMode {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.accessMode
}

// SetAccessMode selects the access mode for the next Open. It fails while
// the camera is open.
func (c *Camera) SetAccessMode(mode AccessMode) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.isOpen {
		return fmt.Errorf("access mode cannot change while the camera is open: %w", ErrNotValid)
	}
	if mode == AccessModeNone {
		return fmt.Errorf("access mode is required: %w", ErrNotValid)
	}
	c.accessMode = mode
	return nil
}

// Open opens the camera, discovers its features and streams. Opening an
// open camera fails.
func (c *Camera) Open(ctx context.Context) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.isOpen {
		return fmt.Errorf("camera %s is already open: %w", c.info.ID, ErrNotValid)
	}

	handle, err := c.api.CameraOpen(ctx, c.info.ID, vmbc.AccessMode(c.accessMode))
	if err != nil {
		return fmt.Errorf("opening camera %s (permitted modes %v): %w", c.info.ID, c.PermittedAccessModes(), wrapCameraStatus(err))
	}

	if err := c.attach(handle); err != nil {
		_ = c.api.CameraClose(ctx, handle)
		return fmt.Errorf("discovering features of camera %s: %w", c.info.ID, err)
	}

	streamHandles, err := c.api.StreamsList(handle)
	if err != nil {
		c.detach()
		_ = c.api.CameraClose(ctx, handle)
		return fmt.Errorf("discovering streams of camera %s: %w", c.info.ID, wrapCameraStatus(err))
	}
	streams := make([]*Stream, 0, len(streamHandles))
	for i, sh := range streamHandles {
		st := newStream(c, i)
		if err := st.attachHandle(sh); err != nil {
			for _, prev := range streams {
				prev.detach()
			}
			c.detach()
			_ = c.api.CameraClose(ctx, handle)
			return fmt.Errorf("discovering stream %d of camera %s: %w", i, c.info.ID, err)
		}
		streams = append(streams, st)
	}

	c.handle = handle
	c.streams = streams
	c.isOpen = true
	c.logger.Infof("Camera opened with %d streams", len(streams))
	return nil
}

// Close stops any running acquisition and closes the camera. Closing a
// closed camera is a no-op.
func (c *Camera) Close(ctx context.Context) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if !c.isOpen {
		return nil
	}

	for _, st := range c.streams {
		if err := st.StopStreaming(); err != nil {
			c.logger.Warningf("Stopping stream %d: %v", st.index, err)
		}
		st.detach()
	}
	c.detach()

	if err := c.api.CameraClose(ctx, c.handle); err != nil {
		c.logger.Warningf("Closing camera: %v", err)
	}

	c.isOpen = false
	c.handle = ""
	c.streams = nil
	c.logger.Infof("Camera closed")
	return nil
}

// IsOpen reports whether the camera is currently open.
func (c *Camera) IsOpen() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.isOpen
}

// Streams returns the capture channels of the open camera.
func (c *Camera) Streams() ([]*Stream, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if !c.isOpen {
		return nil, fmt.Errorf("camera %s is not open: %w", c.info.ID, ErrScope)
	}
	return append([]*Stream(nil), c.streams...), nil
}

func (c *Camera) defaultStream() (*Stream, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if !c.isOpen {
		return nil, fmt.Errorf("camera %s is not open: %w", c.info.ID, ErrScope)
	}
	if len(c.streams) == 0 {
		return nil, fmt.Errorf("camera %s has no streams: %w", c.info.ID, ErrCamera)
	}
	return c.streams[0], nil
}

// StartStreaming starts asynchronous frame delivery on the first stream.
func (c *Camera) StartStreaming(handler FrameHandler, opts StreamOptions) error {
	st, err := c.defaultStream()
	if err != nil {
		return err
	}
	return st.StartStreaming(handler, opts)
}

// StopStreaming stops asynchronous frame delivery on the first stream.
func (c *Camera) StopStreaming() error {
	st, err := c.defaultStream()
	if err != nil {
		return err
	}
	return st.StopStreaming()
}

// IsStreaming reports whether the first stream is streaming.
func (c *Camera) IsStreaming() bool {
	st, err := c.defaultStream()
	return err == nil && st.IsStreaming()
}

// QueueFrame requeues a delivered frame on the first stream.
func (c *Camera) QueueFrame(frame *Frame) error {
	st, err := c.defaultStream()
	if err != nil {
		return err
	}
	return st.QueueFrame(frame)
}

// GetFrame captures a single frame on the first stream.
func (c *Camera) GetFrame(ctx context.Context, timeout time.Duration) (*Frame, error) {
	st, err := c.defaultStream()
	if err != nil {
		return nil, err
	}
	return st.GetFrame(ctx, timeout)
}

// GetFrameWith captures a single frame on the first stream and hands it to
// fn while chunk data is still accessible.
func (c *Camera) GetFrameWith(ctx context.Context, timeout time.Duration, fn func(frame *Frame) error) error {
	st, err := c.defaultStream()
	if err != nil {
		return err
	}
	return st.GetFrameWith(ctx, timeout, fn)
}

// FrameIter returns a frame iterator on the first stream.
func (c *Camera) FrameIter(limit int, timeout time.Duration) (*FrameIter, error) {
	st, err := c.defaultStream()
	if err != nil {
		return nil, err
	}
	return st.FrameIter(limit, timeout)
}

// ReadMemory reads n bytes from the register space of the open camera.
func (c *Camera) ReadMemory(addr uint64, n int) ([]byte, error) {
	c.mu.Lock()
	handle, open := c.handle, c.isOpen
	c.mu.Unlock()

	if !open {
		return nil, fmt.Errorf("camera %s is not open: %w", c.info.ID, ErrScope)
	}
	data, err := c.api.MemoryRead(handle, addr, n)
	return data, wrapCameraStatus(err)
}

// WriteMemory writes into the register space of the open camera.
func (c *Camera) WriteMemory(addr uint64, data []byte) error {
	c.mu.Lock()
	handle, open := c.handle, c.isOpen
	c.mu.Unlock()

	if !open {
		return fmt.Errorf("camera %s is not open: %w", c.info.ID, ErrScope)
	}
	return wrapCameraStatus(c.api.MemoryWrite(handle, addr, data))
}

func (c *Camera) String() string {
	return fmt.Sprintf("Camera(id=%s, name=%s)", c.info.ID, c.info.Name)
}
