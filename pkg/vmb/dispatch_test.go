package vmb_test

import (
	"context"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/EtchedChampion/drd-VmbPy/pkg/vmb"
)

func waitSignal(t *testing.T, ch <-chan struct{}, msg string) {
	t.Helper()
	select {
	case <-ch:
	case <-time.After(time.Second):
		t.Fatal(msg)
	}
}

func TestChangeHandlerDispatch(t *testing.T) {
	assert := assert.New(t)
	require := require.New(t)

	sys := newTestSystem(t, testProfile)
	cam := openTestCamera(t, sys)

	exposure, err := vmb.AsFloat(cam.FeatureByName("ExposureTime"))
	require.NoError(err)

	values := make(chan float64, 1)
	h := vmb.NewChangeHandler(func(f *vmb.Feature) {
		// Reads are allowed during dispatch.
		view, err := f.Float()
		if err != nil {
			return
		}
		v, err := view.Get()
		if err != nil {
			return
		}
		values <- v
	})
	require.NoError(exposure.RegisterChangeHandler(h))

	require.NoError(exposure.Set(1234))

	select {
	case v := <-values:
		assert.Equal(1234.0, v)
	case <-time.After(time.Second):
		t.Fatal("timed out waiting for change handler")
	}
}

func TestChangeHandlerDeduplication(t *testing.T) {
	assert := assert.New(t)
	require := require.New(t)

	sys := newTestSystem(t, testProfile)
	cam := openTestCamera(t, sys)

	exposure, err := vmb.AsFloat(cam.FeatureByName("ExposureTime"))
	require.NoError(err)

	var calls atomic.Int64
	done := make(chan struct{}, 4)
	h := vmb.NewChangeHandler(func(*vmb.Feature) {
		calls.Add(1)
		done <- struct{}{}
	})

	// Registering the same handler twice keeps a single registration.
	require.NoError(exposure.RegisterChangeHandler(h))
	require.NoError(exposure.RegisterChangeHandler(h))

	require.NoError(exposure.Set(50))
	waitSignal(t, done, "timed out waiting for change handler")
	time.Sleep(50 * time.Millisecond)
	assert.Equal(int64(1), calls.Load())

	// Removal works with the registered value, removing twice is a no-op.
	require.NoError(exposure.UnregisterChangeHandler(h))
	require.NoError(exposure.UnregisterChangeHandler(h))

	require.NoError(exposure.Set(60))
	time.Sleep(50 * time.Millisecond)
	assert.Equal(int64(1), calls.Load())
}

func TestChangeHandlerValidation(t *testing.T) {
	assert := assert.New(t)
	require := require.New(t)

	sys := newTestSystem(t, testProfile)
	cam := openTestCamera(t, sys)

	exposure, err := cam.FeatureByName("ExposureTime")
	require.NoError(err)

	assert.ErrorIs(exposure.RegisterChangeHandler(nil), vmb.ErrNotValid)
	assert.ErrorIs(exposure.RegisterChangeHandler(vmb.NewChangeHandler(nil)), vmb.ErrNotValid)

	// Unregistering a handler that was never registered is a no-op.
	assert.NoError(exposure.UnregisterChangeHandler(vmb.NewChangeHandler(func(*vmb.Feature) {})))
}

func TestChangeHandlerReentrancy(t *testing.T) {
	assert := assert.New(t)
	require := require.New(t)

	sys := newTestSystem(t, testProfile)
	cam := openTestCamera(t, sys)

	exposure, err := vmb.AsFloat(cam.FeatureByName("ExposureTime"))
	require.NoError(err)
	gain, err := vmb.AsFloat(cam.FeatureByName("Gain"))
	require.NoError(err)

	sameErr := make(chan error, 1)
	otherErr := make(chan error, 1)
	h := vmb.NewChangeHandler(func(*vmb.Feature) {
		sameErr <- exposure.Set(99)
		otherErr <- gain.Set(3)
	})
	require.NoError(exposure.RegisterChangeHandler(h))

	require.NoError(exposure.Set(500))

	select {
	case err := <-sameErr:
		// Writing the dispatching feature from its own handler fails.
		assert.ErrorIs(err, vmb.ErrReentrancy)
	case <-time.After(time.Second):
		t.Fatal("timed out waiting for change handler")
	}
	select {
	case err := <-otherErr:
		// Writing a different feature from the handler works.
		assert.NoError(err)
	case <-time.After(time.Second):
		t.Fatal("timed out waiting for change handler")
	}
}

func TestChangeHandlerPanicContained(t *testing.T) {
	assert := assert.New(t)
	require := require.New(t)

	sys := newTestSystem(t, testProfile)
	cam := openTestCamera(t, sys)

	exposure, err := vmb.AsFloat(cam.FeatureByName("ExposureTime"))
	require.NoError(err)

	var calls atomic.Int64
	done := make(chan struct{}, 4)

	panicking := vmb.NewChangeHandler(func(*vmb.Feature) {
		panic("boom")
	})
	counting := vmb.NewChangeHandler(func(*vmb.Feature) {
		calls.Add(1)
		done <- struct{}{}
	})
	require.NoError(exposure.RegisterChangeHandler(panicking))
	require.NoError(exposure.RegisterChangeHandler(counting))

	// The panicking handler does not break dispatch to the next handler,
	// nor dispatch of later changes.
	require.NoError(exposure.Set(100))
	waitSignal(t, done, "timed out waiting for first dispatch")

	require.NoError(exposure.Set(200))
	waitSignal(t, done, "timed out waiting for second dispatch")

	assert.Equal(int64(2), calls.Load())
}

func TestChangeHandlersDroppedOnClose(t *testing.T) {
	require := require.New(t)

	sys := newTestSystem(t, testProfile)
	cam := openTestCamera(t, sys)

	exposure, err := cam.FeatureByName("ExposureTime")
	require.NoError(err)
	h := vmb.NewChangeHandler(func(*vmb.Feature) {})
	require.NoError(exposure.RegisterChangeHandler(h))

	require.NoError(cam.Close(context.Background()))

	// Registration against the closed scope fails.
	assert.ErrorIs(t, exposure.RegisterChangeHandler(h), vmb.ErrScope)
}
