package vmb

import (
	"errors"
	"fmt"
	"sync/atomic"

	"github.com/EtchedChampion/drd-VmbPy/internal/log"
	"github.com/EtchedChampion/drd-VmbPy/internal/vmbc"
)

// Frame is one image buffer. Metadata getters return an ok flag since the
// transport layer only validates the fields named by the frame flags.
// While a frame is queued for capture its buffer belongs to the transport
// layer and must not be touched.
type Frame struct {
	api    vmbc.API
	logger log.Logger
	data   vmbc.Frame
	mode   AllocationMode

	// inScope marks the frame as owned by an active acquisition, which is
	// the only state in which chunk data can be accessed.
	inScope atomic.Bool
}

func newFrame(api vmbc.API, logger log.Logger, size int, mode AllocationMode) *Frame {
	return &Frame{
		api:    api,
		logger: logger,
		data:   vmbc.Frame{Buffer: make([]byte, size)},
		mode:   mode,
	}
}

// Buffer returns the raw image buffer.
func (f *Frame) Buffer() []byte { return f.data.Buffer }

// BufferSize returns the size of the image buffer in bytes.
func (f *Frame) BufferSize() int { return len(f.data.Buffer) }

// Status returns the transfer verdict of the last completion.
func (f *Frame) Status() FrameStatus { return FrameStatus(f.data.Status) }

// AllocationMode returns how the buffer of this frame was allocated.
func (f *Frame) AllocationMode() AllocationMode { return f.mode }

// PixelFormat returns the pixel format of the image data.
func (f *Frame) PixelFormat() uint32 { return f.data.PixelFormat }

// ID returns the frame id and whether the transport layer validated it.
func (f *Frame) ID() (uint64, bool) {
	return f.data.FrameID, f.data.Flags&vmbc.FrameFlagFrameID != 0
}

// Timestamp returns the capture timestamp and whether the transport layer
// validated it.
func (f *Frame) Timestamp() (uint64, bool) {
	return f.data.Timestamp, f.data.Flags&vmbc.FrameFlagTimestamp != 0
}

// Width returns the image width and whether the transport layer validated
// the dimension fields.
func (f *Frame) Width() (uint32, bool) {
	return f.data.Width, f.data.Flags&vmbc.FrameFlagDimension != 0
}

// Height returns the image height and whether the transport layer
// validated the dimension fields.
func (f *Frame) Height() (uint32, bool) {
	return f.data.Height, f.data.Flags&vmbc.FrameFlagDimension != 0
}

// OffsetX returns the horizontal image offset and whether the transport
// layer validated the offset fields.
func (f *Frame) OffsetX() (uint32, bool) {
	return f.data.OffsetX, f.data.Flags&vmbc.FrameFlagOffset != 0
}

// OffsetY returns the vertical image offset and whether the transport
// layer validated the offset fields.
func (f *Frame) OffsetY() (uint32, bool) {
	return f.data.OffsetY, f.data.Flags&vmbc.FrameFlagOffset != 0
}

// HasChunkData reports whether the frame carries ancillary chunk data.
func (f *Frame) HasChunkData() bool { return f.data.AncillarySize > 0 }

// AccessChunkData exposes the chunk features of the frame to fn through a
// transient feature container that dies when fn returns. It fails with
// ErrChunkAccess when the frame carries no chunk data or is not presently
// owned by an active acquisition (inside a frame handler or a scoped
// single frame capture). An error returned by fn reaches the caller
// unchanged.
func (f *Frame) AccessChunkData(fn func(c *FeatureContainer) error) error {
	if fn == nil {
		return fmt.Errorf("chunk access callback is required: %w", ErrNotValid)
	}
	if !f.inScope.Load() {
		return fmt.Errorf("frame is not part of an active acquisition: %w", ErrChunkAccess)
	}

	err := f.api.ChunkDataAccess(&f.data, func(chunk vmbc.Handle) error {
		c := newFeatureContainer(f.api, f.logger)
		if err := c.attach(chunk); err != nil {
			return err
		}
		defer c.detach()
		return fn(c)
	})

	var st *vmbc.Status
	if errors.As(err, &st) {
		return wrapStatus(err)
	}
	return err
}

func (f *Frame) String() string {
	id, _ := f.ID()
	return fmt.Sprintf("Frame(id=%d, status=%s, buffer=%d)", id, f.Status(), f.BufferSize())
}

// detachedCopy returns a standalone copy of the frame for hand out after a
// single frame capture. The copy is not tied to an acquisition, so chunk
// access on it fails.
func (f *Frame) detachedCopy() *Frame {
	cp := &Frame{api: f.api, logger: f.logger, mode: f.mode}
	cp.data = f.data
	cp.data.Buffer = append([]byte(nil), f.data.Buffer...)
	return cp
}
