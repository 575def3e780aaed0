package vmb_test

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/EtchedChampion/drd-VmbPy/pkg/vmb"
)

func TestStartStreamingValidation(t *testing.T) {
	tests := map[string]struct {
		handler vmb.FrameHandler
		opts    vmb.StreamOptions
		expErr  error
	}{
		"A nil handler should be rejected.": {
			handler: nil,
			expErr:  vmb.ErrNotValid,
		},

		"A zero buffer count should be rejected.": {
			handler: func(*vmb.Camera, *vmb.Stream, *vmb.Frame) {},
			opts:    vmb.StreamOptions{BufferCount: 0},
			expErr:  vmb.ErrNotValid,
		},

		"A negative buffer count should be rejected.": {
			handler: func(*vmb.Camera, *vmb.Stream, *vmb.Frame) {},
			opts:    vmb.StreamOptions{BufferCount: -3},
			expErr:  vmb.ErrNotValid,
		},
	}

	for name, test := range tests {
		t.Run(name, func(t *testing.T) {
			sys := newTestSystem(t, testProfile)
			cam := openTestCamera(t, sys)

			err := cam.StartStreaming(test.handler, test.opts)

			assert.ErrorIs(t, err, test.expErr)

			// A rejected start must leave no buffers behind.
			streams, err := cam.Streams()
			require.NoError(t, err)
			announced, err := vmb.AsInt(streams[0].FeatureByName("StreamAnnouncedBufferCount"))
			require.NoError(t, err)
			n, err := announced.Get()
			require.NoError(t, err)
			assert.Zero(t, n)
		})
	}
}

func TestStreamingDelivery(t *testing.T) {
	assert := assert.New(t)
	require := require.New(t)

	sys := newTestSystem(t, testProfile)
	cam := openTestCamera(t, sys)

	var mu sync.Mutex
	var ids []uint64
	enough := make(chan struct{})
	handler := func(c *vmb.Camera, s *vmb.Stream, f *vmb.Frame) {
		id, ok := f.ID()
		mu.Lock()
		if ok {
			ids = append(ids, id)
			if len(ids) == 10 {
				close(enough)
			}
		}
		mu.Unlock()

		_ = s.QueueFrame(f)
	}

	require.NoError(cam.StartStreaming(handler, vmb.StreamOptions{BufferCount: 3}))
	assert.True(cam.IsStreaming())

	// While streaming, the buffer pool is announced on the stream.
	streams, err := cam.Streams()
	require.NoError(err)
	announced, err := vmb.AsInt(streams[0].FeatureByName("StreamAnnouncedBufferCount"))
	require.NoError(err)
	n, err := announced.Get()
	require.NoError(err)
	assert.Equal(int64(3), n)

	select {
	case <-enough:
	case <-time.After(5 * time.Second):
		t.Fatal("timed out waiting for frames")
	}

	require.NoError(cam.StopStreaming())
	assert.False(cam.IsStreaming())

	// Stopping again is a no-op.
	require.NoError(cam.StopStreaming())

	// Buffers are revoked on stop.
	n, err = announced.Get()
	require.NoError(err)
	assert.Zero(n)

	mu.Lock()
	defer mu.Unlock()
	require.GreaterOrEqual(len(ids), 10)
	for i := 1; i < len(ids); i++ {
		assert.Greater(ids[i], ids[i-1])
	}
}

func TestStartStreamingWhileStreaming(t *testing.T) {
	require := require.New(t)

	sys := newTestSystem(t, testProfile)
	cam := openTestCamera(t, sys)

	handler := func(c *vmb.Camera, s *vmb.Stream, f *vmb.Frame) { _ = s.QueueFrame(f) }
	require.NoError(cam.StartStreaming(handler, vmb.DefaultStreamOptions()))

	err := cam.StartStreaming(handler, vmb.DefaultStreamOptions())

	assert.ErrorIs(t, err, vmb.ErrCamera)
}

func TestGetFrame(t *testing.T) {
	assert := assert.New(t)
	require := require.New(t)

	sys := newTestSystem(t, testProfile)
	cam := openTestCamera(t, sys)

	frame, err := cam.GetFrame(context.Background(), time.Second)
	require.NoError(err)

	assert.Equal(vmb.FrameStatusComplete, frame.Status())
	w, ok := frame.Width()
	assert.True(ok)
	assert.Equal(uint32(640), w)
	h, ok := frame.Height()
	assert.True(ok)
	assert.Equal(uint32(480), h)
	_, ok = frame.ID()
	assert.True(ok)
	_, ok = frame.Timestamp()
	assert.True(ok)
	assert.Equal(640*480, frame.BufferSize())

	// The returned copy is detached, requeueing it is invalid.
	assert.ErrorIs(cam.QueueFrame(frame), vmb.ErrNotValid)
}

func TestGetFrameWhileStreaming(t *testing.T) {
	require := require.New(t)

	sys := newTestSystem(t, testProfile)
	cam := openTestCamera(t, sys)

	handler := func(c *vmb.Camera, s *vmb.Stream, f *vmb.Frame) { _ = s.QueueFrame(f) }
	require.NoError(cam.StartStreaming(handler, vmb.DefaultStreamOptions()))

	_, err := cam.GetFrame(context.Background(), time.Second)

	assert.ErrorIs(t, err, vmb.ErrCamera)
}

func TestGetFrameTimeout(t *testing.T) {
	sys := newTestSystem(t, slowProfile)
	cam := openTestCamera(t, sys)

	_, err := cam.GetFrame(context.Background(), 50*time.Millisecond)

	assert.ErrorIs(t, err, vmb.ErrTimeout)
}

func TestGetFrameTimeoutValidation(t *testing.T) {
	tests := map[string]struct {
		timeout time.Duration
	}{
		"A zero timeout should be rejected.":     {timeout: 0},
		"A negative timeout should be rejected.": {timeout: -time.Second},
	}

	for name, test := range tests {
		t.Run(name, func(t *testing.T) {
			sys := newTestSystem(t, testProfile)
			cam := openTestCamera(t, sys)

			_, err := cam.GetFrame(context.Background(), test.timeout)

			assert.ErrorIs(t, err, vmb.ErrNotValid)
		})
	}
}

func TestStopStreamingCancelsBlockedWait(t *testing.T) {
	assert := assert.New(t)
	require := require.New(t)

	sys := newTestSystem(t, slowProfile)
	cam := openTestCamera(t, sys)

	errs := make(chan error, 1)
	go func() {
		_, err := cam.GetFrame(context.Background(), time.Minute)
		errs <- err
	}()

	// Give the capture time to block, then tear it down.
	time.Sleep(50 * time.Millisecond)
	require.NoError(cam.StopStreaming())

	select {
	case err := <-errs:
		assert.ErrorIs(err, vmb.ErrCanceled)
	case <-time.After(5 * time.Second):
		t.Fatal("blocked wait was not canceled")
	}
}

func TestFrameIter(t *testing.T) {
	assert := assert.New(t)
	require := require.New(t)

	sys := newTestSystem(t, testProfile)
	cam := openTestCamera(t, sys)

	_, err := cam.FrameIter(-1, time.Second)
	assert.ErrorIs(err, vmb.ErrNotValid)

	_, err = cam.FrameIter(1, 0)
	assert.ErrorIs(err, vmb.ErrNotValid)

	empty, err := cam.FrameIter(0, time.Second)
	require.NoError(err)
	_, err = empty.Next(context.Background())
	assert.ErrorIs(err, vmb.ErrExhausted)

	it, err := cam.FrameIter(5, time.Second)
	require.NoError(err)

	// Frame ids are reassigned monotonically from zero.
	for want := uint64(0); want < 5; want++ {
		frame, err := it.Next(context.Background())
		require.NoError(err)
		id, ok := frame.ID()
		require.True(ok)
		assert.Equal(want, id)
	}

	_, err = it.Next(context.Background())
	assert.ErrorIs(err, vmb.ErrExhausted)
}

func TestFrameIterAfterClose(t *testing.T) {
	require := require.New(t)

	sys := newTestSystem(t, testProfile)
	cam := openTestCamera(t, sys)

	it, err := cam.FrameIter(3, time.Second)
	require.NoError(err)

	require.NoError(cam.Close(context.Background()))

	_, err = it.Next(context.Background())
	assert.ErrorIs(t, err, vmb.ErrScope)
}

func TestFrameHandlerPanicContained(t *testing.T) {
	require := require.New(t)

	sys := newTestSystem(t, testProfile)
	cam := openTestCamera(t, sys)

	delivered := make(chan struct{}, 16)
	first := true
	handler := func(c *vmb.Camera, s *vmb.Stream, f *vmb.Frame) {
		defer func() { _ = s.QueueFrame(f) }()
		if first {
			first = false
			panic("boom")
		}
		delivered <- struct{}{}
	}

	require.NoError(cam.StartStreaming(handler, vmb.StreamOptions{BufferCount: 2}))

	// Delivery keeps going after the panicking invocation.
	select {
	case <-delivered:
	case <-time.After(5 * time.Second):
		t.Fatal("delivery did not survive a handler panic")
	}

	require.NoError(cam.StopStreaming())
}

func TestChunkAccessDuringStreaming(t *testing.T) {
	assert := assert.New(t)
	require := require.New(t)

	sys := newTestSystem(t, testProfile)
	cam := openTestCamera(t, sys)

	chunkMode, err := vmb.AsBool(cam.FeatureByName("ChunkModeActive"))
	require.NoError(err)
	require.NoError(chunkMode.Set(true))

	type result struct {
		frameID  uint64
		chunkID  int64
		paired   bool
		chunkErr error
	}
	results := make(chan result, 1)
	var once sync.Once
	handler := func(c *vmb.Camera, s *vmb.Stream, f *vmb.Frame) {
		defer func() { _ = s.QueueFrame(f) }()

		once.Do(func() {
			r := result{}
			r.frameID, _ = f.ID()
			r.paired = f.HasChunkData()
			r.chunkErr = f.AccessChunkData(func(chunk *vmb.FeatureContainer) error {
				id, err := vmb.AsInt(chunk.FeatureByName("ChunkFrameID"))
				if err != nil {
					return err
				}
				r.chunkID, err = id.Get()
				return err
			})
			results <- r
		})
	}

	require.NoError(cam.StartStreaming(handler, vmb.DefaultStreamOptions()))
	defer func() { _ = cam.StopStreaming() }()

	select {
	case r := <-results:
		require.NoError(r.chunkErr)
		assert.True(r.paired)
		assert.Equal(int64(r.frameID), r.chunkID)
	case <-time.After(5 * time.Second):
		t.Fatal("timed out waiting for chunk frame")
	}
}

func TestChunkAccessScoped(t *testing.T) {
	assert := assert.New(t)
	require := require.New(t)

	sys := newTestSystem(t, testProfile)
	cam := openTestCamera(t, sys)

	chunkMode, err := vmb.AsBool(cam.FeatureByName("ChunkModeActive"))
	require.NoError(err)
	require.NoError(chunkMode.Set(true))
	exposure, err := vmb.AsFloat(cam.FeatureByName("ExposureTime"))
	require.NoError(err)
	require.NoError(exposure.Set(4321))

	// Inside a scoped single frame capture chunk data is readable and a
	// callback error reaches the caller unchanged.
	userErr := errors.New("stop here")
	err = cam.GetFrameWith(context.Background(), time.Second, func(f *vmb.Frame) error {
		require.True(f.HasChunkData())

		aErr := f.AccessChunkData(func(chunk *vmb.FeatureContainer) error {
			exp, err := vmb.AsFloat(chunk.FeatureByName("ChunkExposureTime"))
			if err != nil {
				return err
			}
			v, err := exp.Get()
			if err != nil {
				return err
			}
			assert.Equal(4321.0, v)
			return userErr
		})
		assert.Equal(userErr, aErr)
		return nil
	})
	require.NoError(err)

	// A detached frame from a plain GetFrame cannot reach chunk data.
	frame, err := cam.GetFrame(context.Background(), time.Second)
	require.NoError(err)
	assert.ErrorIs(frame.AccessChunkData(func(*vmb.FeatureContainer) error { return nil }), vmb.ErrChunkAccess)
}

func TestChunkAccessWithoutChunkData(t *testing.T) {
	require := require.New(t)

	sys := newTestSystem(t, testProfile)
	cam := openTestCamera(t, sys)

	err := cam.GetFrameWith(context.Background(), time.Second, func(f *vmb.Frame) error {
		require.False(f.HasChunkData())
		return f.AccessChunkData(func(*vmb.FeatureContainer) error { return nil })
	})

	assert.ErrorIs(t, err, vmb.ErrChunkAccess)
}
