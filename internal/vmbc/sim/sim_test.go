package sim_test

import (
	"context"
	"math"
	"path/filepath"
	"sync"
	"testing"
	"testing/fstest"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/EtchedChampion/drd-VmbPy/internal/vmbc"
	"github.com/EtchedChampion/drd-VmbPy/internal/vmbc/sim"
)

func newStartedDriver(t *testing.T, specs ...sim.CameraSpec) *sim.Driver {
	t.Helper()

	d, err := sim.NewDriver(sim.DriverConfig{Cameras: specs})
	require.NoError(t, err)
	require.NoError(t, d.Startup(context.Background()))
	t.Cleanup(func() { _ = d.Shutdown(context.Background()) })

	return d
}

func openDefaultCamera(t *testing.T, d *sim.Driver) vmbc.Handle {
	t.Helper()

	cams, err := d.CamerasList(context.Background())
	require.NoError(t, err)
	require.NotEmpty(t, cams)

	h, err := d.CameraOpen(context.Background(), cams[0].ID, vmbc.AccessModeFull)
	require.NoError(t, err)

	return h
}

func TestDriverLifecycle(t *testing.T) {
	assert := assert.New(t)
	require := require.New(t)

	d, err := sim.NewDriver(sim.DriverConfig{})
	require.NoError(err)

	// Calls before startup should fail.
	_, err = d.CamerasList(context.Background())
	assert.Equal(vmbc.ErrAPINotStarted, vmbc.CodeOf(err))

	require.NoError(d.Startup(context.Background()))
	assert.Equal(vmbc.ErrInvalidCall, vmbc.CodeOf(d.Startup(context.Background())))

	cams, err := d.CamerasList(context.Background())
	require.NoError(err)
	assert.Len(cams, 1)
	assert.Equal("DEV_SIM_0001", cams[0].ID)

	require.NoError(d.Shutdown(context.Background()))
	assert.Equal(vmbc.ErrAPINotStarted, vmbc.CodeOf(d.Shutdown(context.Background())))
}

func TestCameraOpen(t *testing.T) {
	tests := map[string]struct {
		camera  string
		mode    vmbc.AccessMode
		expCode vmbc.ErrorCode
	}{
		"Opening a known camera with full access should work.": {
			camera: "DEV_SIM_0001",
			mode:   vmbc.AccessModeFull,
		},

		"Opening an unknown camera should fail.": {
			camera:  "DEV_MISSING",
			mode:    vmbc.AccessModeFull,
			expCode: vmbc.ErrNotFound,
		},

		"Opening without an access mode should fail.": {
			camera:  "DEV_SIM_0001",
			mode:    vmbc.AccessModeNone,
			expCode: vmbc.ErrBadParameter,
		},

		"Opening with a mode the camera does not permit should fail.": {
			camera:  "DEV_SIM_0001",
			mode:    vmbc.AccessModeConfig,
			expCode: vmbc.ErrInvalidAccess,
		},
	}

	for name, test := range tests {
		t.Run(name, func(t *testing.T) {
			assert := assert.New(t)

			d := newStartedDriver(t)
			h, err := d.CameraOpen(context.Background(), test.camera, test.mode)

			if test.expCode != vmbc.ErrSuccess {
				assert.Equal(test.expCode, vmbc.CodeOf(err))
				return
			}

			assert.NoError(err)
			assert.NotEmpty(h)

			// A second open of the same camera should be rejected.
			_, err = d.CameraOpen(context.Background(), test.camera, test.mode)
			assert.Equal(vmbc.ErrInvalidAccess, vmbc.CodeOf(err))

			assert.NoError(d.CameraClose(context.Background(), h))

			// After closing it can be opened again.
			_, err = d.CameraOpen(context.Background(), test.camera, test.mode)
			assert.NoError(err)
		})
	}
}

func TestFeatureAccess(t *testing.T) {
	tests := map[string]struct {
		op      func(d *sim.Driver, h vmbc.Handle) error
		expCode vmbc.ErrorCode
	}{
		"Setting a float within range should work.": {
			op: func(d *sim.Driver, h vmbc.Handle) error {
				return d.FeatureFloatSet(h, "ExposureTime", 10000)
			},
		},

		"Setting a float outside its range should fail.": {
			op: func(d *sim.Driver, h vmbc.Handle) error {
				return d.FeatureFloatSet(h, "ExposureTime", 5)
			},
			expCode: vmbc.ErrInvalidValue,
		},

		"Setting an int off the increment grid should fail.": {
			op: func(d *sim.Driver, h vmbc.Handle) error {
				return d.FeatureIntSet(h, "Width", 13)
			},
			expCode: vmbc.ErrInvalidValue,
		},

		"Reading a feature with the wrong typed getter should fail.": {
			op: func(d *sim.Driver, h vmbc.Handle) error {
				_, err := d.FeatureIntGet(h, "ExposureTime")
				return err
			},
			expCode: vmbc.ErrWrongType,
		},

		"Writing a read-only feature should fail.": {
			op: func(d *sim.Driver, h vmbc.Handle) error {
				return d.FeatureIntSet(h, "PayloadSize", 42)
			},
			expCode: vmbc.ErrInvalidAccess,
		},

		"Accessing an unknown feature should fail.": {
			op: func(d *sim.Driver, h vmbc.Handle) error {
				_, err := d.FeatureFloatGet(h, "NoSuchFeature")
				return err
			},
			expCode: vmbc.ErrNotFound,
		},

		"Setting an unknown enum entry should fail.": {
			op: func(d *sim.Driver, h vmbc.Handle) error {
				return d.FeatureEnumSet(h, "PixelFormat", "BayerRG8")
			},
			expCode: vmbc.ErrInvalidValue,
		},

		"Setting an unavailable enum entry should fail.": {
			op: func(d *sim.Driver, h vmbc.Handle) error {
				return d.FeatureEnumSet(h, "PixelFormat", "Mono12")
			},
			expCode: vmbc.ErrInvalidValue,
		},
	}

	for name, test := range tests {
		t.Run(name, func(t *testing.T) {
			d := newStartedDriver(t)
			h := openDefaultCamera(t, d)

			err := test.op(d, h)

			assert.Equal(t, test.expCode, vmbc.CodeOf(err))
		})
	}
}

func TestReadOnlyOpenBlocksWrites(t *testing.T) {
	assert := assert.New(t)
	require := require.New(t)

	d := newStartedDriver(t)
	h, err := d.CameraOpen(context.Background(), "DEV_SIM_0001", vmbc.AccessModeRead)
	require.NoError(err)

	assert.Equal(vmbc.ErrInvalidAccess, vmbc.CodeOf(d.FeatureFloatSet(h, "ExposureTime", 100)))

	_, writeable, err := d.FeatureAccessQuery(h, "ExposureTime")
	require.NoError(err)
	assert.False(writeable)

	v, err := d.FeatureFloatGet(h, "ExposureTime")
	require.NoError(err)
	assert.Equal(5000.0, v)
}

func TestInvalidationFiresOnWrite(t *testing.T) {
	assert := assert.New(t)
	require := require.New(t)

	d := newStartedDriver(t)
	h := openDefaultCamera(t, d)

	fired := make(chan string, 4)
	require.NoError(d.FeatureInvalidationRegister(h, "ExposureTime", func(_ vmbc.Handle, name string) {
		fired <- name
	}))
	require.NoError(d.FeatureInvalidationRegister(h, "ExposureAuto", func(_ vmbc.Handle, name string) {
		fired <- name
	}))

	require.NoError(d.FeatureFloatSet(h, "ExposureTime", 2000))

	got := map[string]bool{}
	for i := 0; i < 2; i++ {
		select {
		case name := <-fired:
			got[name] = true
		case <-time.After(time.Second):
			t.Fatal("timed out waiting for invalidation callbacks")
		}
	}

	// The written feature and its affected feature are both invalidated.
	assert.True(got["ExposureTime"])
	assert.True(got["ExposureAuto"])

	// After unregistering nothing fires anymore.
	require.NoError(d.FeatureInvalidationUnregister(h, "ExposureTime"))
	require.NoError(d.FeatureInvalidationUnregister(h, "ExposureAuto"))
	require.NoError(d.FeatureFloatSet(h, "ExposureTime", 3000))

	select {
	case name := <-fired:
		t.Fatalf("unexpected invalidation for %s", name)
	case <-time.After(50 * time.Millisecond):
	}
}

func streamHandleOf(t *testing.T, d *sim.Driver, cam vmbc.Handle) vmbc.Handle {
	t.Helper()

	streams, err := d.StreamsList(cam)
	require.NoError(t, err)
	require.NotEmpty(t, streams)
	return streams[0]
}

func TestStreamingDeliversFrames(t *testing.T) {
	assert := assert.New(t)
	require := require.New(t)

	d := newStartedDriver(t)
	cam := openDefaultCamera(t, d)
	st := streamHandleOf(t, d, cam)

	payload, err := d.PayloadSizeGet(st)
	require.NoError(err)
	require.Equal(640*480, payload)

	delivered := make(chan *vmbc.Frame, 16)
	frames := make([]*vmbc.Frame, 3)
	for i := range frames {
		frames[i] = &vmbc.Frame{Buffer: make([]byte, payload)}
		require.NoError(d.FrameAnnounce(st, frames[i]))
		require.NoError(d.CaptureFrameQueue(st, frames[i], func(_ vmbc.Handle, f *vmbc.Frame) {
			delivered <- f
		}))
	}

	require.NoError(d.CaptureStart(st))
	require.NoError(d.FeatureCommandRun(cam, "AcquisitionStart"))

	var ids []uint64
	for i := 0; i < 3; i++ {
		select {
		case f := <-delivered:
			assert.Equal(vmbc.FrameStatusComplete, f.Status)
			assert.Equal(uint32(640), f.Width)
			assert.Equal(uint32(480), f.Height)
			assert.NotZero(f.Flags&vmbc.FrameFlagFrameID)
			ids = append(ids, f.FrameID)
		case <-time.After(time.Second):
			t.Fatal("timed out waiting for frames")
		}
	}

	// Frame IDs are monotonic from zero.
	assert.Equal([]uint64{0, 1, 2}, ids)

	require.NoError(d.FeatureCommandRun(cam, "AcquisitionStop"))
	require.NoError(d.CaptureEnd(st))
	require.NoError(d.CaptureQueueFlush(st))
	for _, f := range frames {
		require.NoError(d.FrameRevoke(st, f))
	}
}

func TestAnnouncedCountConcurrentReads(t *testing.T) {
	require := require.New(t)

	d := newStartedDriver(t)
	cam := openDefaultCamera(t, d)
	st := streamHandleOf(t, d, cam)

	// Announce and revoke in a loop while a reader polls the mirrored
	// feature value. Run with -race.
	done := make(chan struct{})
	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		f := &vmbc.Frame{Buffer: make([]byte, 64)}
		for {
			select {
			case <-done:
				return
			default:
			}
			if err := d.FrameAnnounce(st, f); err != nil {
				return
			}
			if err := d.FrameRevoke(st, f); err != nil {
				return
			}
		}
	}()

	for i := 0; i < 500; i++ {
		n, err := d.FeatureIntGet(st, "StreamAnnouncedBufferCount")
		require.NoError(err)
		require.Contains([]int64{0, 1}, n)
	}

	close(done)
	wg.Wait()
}

func TestCaptureFrameWait(t *testing.T) {
	tests := map[string]struct {
		interval time.Duration
		timeout  time.Duration
		abort    bool
		expCode  vmbc.ErrorCode
	}{
		"A queued frame should complete within the timeout.": {
			interval: time.Millisecond,
			timeout:  time.Second,
		},

		"The wait should time out when no frame arrives.": {
			interval: time.Hour,
			timeout:  30 * time.Millisecond,
			expCode:  vmbc.ErrTimeout,
		},

		"Flushing the queue should abort a blocked wait.": {
			interval: time.Hour,
			timeout:  5 * time.Second,
			abort:    true,
			expCode:  vmbc.ErrAborted,
		},
	}

	for name, test := range tests {
		t.Run(name, func(t *testing.T) {
			require := require.New(t)

			spec := sim.DefaultSpecs()[0]
			spec.FrameInterval = test.interval
			d := newStartedDriver(t, spec)
			cam := openDefaultCamera(t, d)
			st := streamHandleOf(t, d, cam)

			payload, err := d.PayloadSizeGet(st)
			require.NoError(err)
			frame := &vmbc.Frame{Buffer: make([]byte, payload)}
			require.NoError(d.FrameAnnounce(st, frame))
			require.NoError(d.CaptureFrameQueue(st, frame, nil))
			require.NoError(d.CaptureStart(st))
			require.NoError(d.FeatureCommandRun(cam, "AcquisitionStart"))

			if test.abort {
				go func() {
					time.Sleep(20 * time.Millisecond)
					_ = d.CaptureQueueFlush(st)
				}()
			}

			err = d.CaptureFrameWait(context.Background(), st, frame, test.timeout)

			assert.Equal(t, test.expCode, vmbc.CodeOf(err))
		})
	}
}

func TestChunkDataAccess(t *testing.T) {
	assert := assert.New(t)
	require := require.New(t)

	d := newStartedDriver(t)
	cam := openDefaultCamera(t, d)
	st := streamHandleOf(t, d, cam)

	require.NoError(d.FeatureBoolSet(cam, "ChunkModeActive", true))
	require.NoError(d.FeatureFloatSet(cam, "ExposureTime", 1234))

	payload, err := d.PayloadSizeGet(st)
	require.NoError(err)
	frame := &vmbc.Frame{Buffer: make([]byte, payload)}
	require.NoError(d.FrameAnnounce(st, frame))
	require.NoError(d.CaptureFrameQueue(st, frame, nil))
	require.NoError(d.CaptureStart(st))
	require.NoError(d.FeatureCommandRun(cam, "AcquisitionStart"))
	require.NoError(d.CaptureFrameWait(context.Background(), st, frame, time.Second))

	assert.NotZero(frame.AncillarySize)

	err = d.ChunkDataAccess(frame, func(chunk vmbc.Handle) error {
		id, err := d.FeatureIntGet(chunk, "ChunkFrameID")
		require.NoError(err)
		assert.Equal(int64(frame.FrameID), id)

		exp, err := d.FeatureFloatGet(chunk, "ChunkExposureTime")
		require.NoError(err)
		assert.Equal(1234.0, exp)

		return nil
	})
	require.NoError(err)
}

func TestChunkDataAccessWithoutChunks(t *testing.T) {
	require := require.New(t)

	d := newStartedDriver(t)
	cam := openDefaultCamera(t, d)
	st := streamHandleOf(t, d, cam)

	payload, err := d.PayloadSizeGet(st)
	require.NoError(err)
	frame := &vmbc.Frame{Buffer: make([]byte, payload)}
	require.NoError(d.FrameAnnounce(st, frame))
	require.NoError(d.CaptureFrameQueue(st, frame, nil))
	require.NoError(d.CaptureStart(st))
	require.NoError(d.FeatureCommandRun(cam, "AcquisitionStart"))
	require.NoError(d.CaptureFrameWait(context.Background(), st, frame, time.Second))

	err = d.ChunkDataAccess(frame, func(vmbc.Handle) error { return nil })

	assert.Equal(t, vmbc.ErrNoChunkData, vmbc.CodeOf(err))
}

func TestSettingsSaveLoad(t *testing.T) {
	assert := assert.New(t)
	require := require.New(t)

	d := newStartedDriver(t)
	cam := openDefaultCamera(t, d)
	path := filepath.Join(t.TempDir(), "settings.xml")

	require.NoError(d.FeatureFloatSet(cam, "ExposureTime", 7500))
	require.NoError(d.FeatureEnumSet(cam, "AcquisitionMode", "SingleFrame"))
	require.NoError(d.SettingsSave(context.Background(), cam, path, vmbc.PersistSettings{}))

	// Mutate, then restore from the file.
	require.NoError(d.FeatureFloatSet(cam, "ExposureTime", 100))
	require.NoError(d.FeatureEnumSet(cam, "AcquisitionMode", "Continuous"))
	require.NoError(d.SettingsLoad(context.Background(), cam, path, vmbc.PersistSettings{}))

	exp, err := d.FeatureFloatGet(cam, "ExposureTime")
	require.NoError(err)
	assert.Equal(7500.0, exp)

	mode, err := d.FeatureEnumGet(cam, "AcquisitionMode")
	require.NoError(err)
	assert.Equal("SingleFrame", mode)
}

func TestSettingsLoadMissingFile(t *testing.T) {
	d := newStartedDriver(t)
	cam := openDefaultCamera(t, d)

	err := d.SettingsLoad(context.Background(), cam, filepath.Join(t.TempDir(), "missing.xml"), vmbc.PersistSettings{})

	assert.Equal(t, vmbc.ErrIO, vmbc.CodeOf(err))
}

func TestMemoryReadWrite(t *testing.T) {
	assert := assert.New(t)
	require := require.New(t)

	d := newStartedDriver(t)
	cam := openDefaultCamera(t, d)

	require.NoError(d.MemoryWrite(cam, 16, []byte{0xde, 0xad, 0xbe, 0xef}))

	got, err := d.MemoryRead(cam, 16, 4)
	require.NoError(err)
	assert.Equal([]byte{0xde, 0xad, 0xbe, 0xef}, got)

	_, err = d.MemoryRead(cam, 1<<20, 4)
	assert.Equal(vmbc.ErrBadParameter, vmbc.CodeOf(err))
}

func TestMemoryRangeValidation(t *testing.T) {
	d := newStartedDriver(t)
	cam := openDefaultCamera(t, d)

	// Register space is 4096 bytes.
	tests := map[string]struct {
		op     func() error
		expErr bool
	}{
		"A read up to the end of the register space should succeed.": {
			op: func() error { _, err := d.MemoryRead(cam, 4092, 4); return err },
		},

		"A read crossing the end of the register space should fail.": {
			op:     func() error { _, err := d.MemoryRead(cam, 4093, 4); return err },
			expErr: true,
		},

		"A read at the largest possible address should fail, not wrap.": {
			op:     func() error { _, err := d.MemoryRead(cam, math.MaxUint64, 2); return err },
			expErr: true,
		},

		"A read of a negative length should fail.": {
			op:     func() error { _, err := d.MemoryRead(cam, 0, -1); return err },
			expErr: true,
		},

		"A write up to the end of the register space should succeed.": {
			op: func() error { return d.MemoryWrite(cam, 4092, []byte{1, 2, 3, 4}) },
		},

		"A write crossing the end of the register space should fail.": {
			op:     func() error { return d.MemoryWrite(cam, 4093, []byte{1, 2, 3, 4}) },
			expErr: true,
		},

		"A write at the largest possible address should fail, not wrap.": {
			op:     func() error { return d.MemoryWrite(cam, math.MaxUint64, []byte{1}) },
			expErr: true,
		},
	}

	for name, test := range tests {
		t.Run(name, func(t *testing.T) {
			err := test.op()

			if test.expErr {
				assert.Equal(t, vmbc.ErrBadParameter, vmbc.CodeOf(err))
			} else {
				assert.NoError(t, err)
			}
		})
	}
}

func TestLoadProfile(t *testing.T) {
	tests := map[string]struct {
		profile string
		expErr  bool
		check   func(t *testing.T, specs []sim.CameraSpec)
	}{
		"A valid profile should load all cameras and features.": {
			profile: `
cameras:
  - id: DEV_A
    name: Cam A
    model: Model A
    serial: "0001"
    interface_id: IF_0
    permitted_access: [full, read]
    frame_interval_ms: 1
    features:
      - name: Gain
        type: float
        category: /AnalogControl
        unit: dB
        value: 1.5
        min: 0
        max: 24
      - name: TriggerMode
        type: enum
        value: "Off"
        entries:
          - {name: "Off", value: 0}
          - {name: "On", value: 1}
`,
			check: func(t *testing.T, specs []sim.CameraSpec) {
				require.Len(t, specs, 1)
				assert.Equal(t, "DEV_A", specs[0].ID)
				assert.Equal(t, time.Millisecond, specs[0].FrameInterval)
				require.Len(t, specs[0].Features, 2)
				assert.Equal(t, 1.5, specs[0].Features[0].Float.Value)
				assert.Equal(t, "Off", specs[0].Features[1].Enum.Value)
			},
		},

		"A profile without cameras should fail.": {
			profile: `cameras: []`,
			expErr:  true,
		},

		"A feature with an unknown type should fail.": {
			profile: `
cameras:
  - id: DEV_A
    features:
      - name: Broken
        type: quaternion
`,
			expErr: true,
		},

		"An enum feature without entries should fail.": {
			profile: `
cameras:
  - id: DEV_A
    features:
      - name: Broken
        type: enum
        value: "Off"
`,
			expErr: true,
		},
	}

	for name, test := range tests {
		t.Run(name, func(t *testing.T) {
			fsys := fstest.MapFS{
				"profile.yaml": &fstest.MapFile{Data: []byte(test.profile)},
			}

			specs, err := sim.LoadProfile(fsys, "profile.yaml")

			if test.expErr {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			test.check(t, specs)
		})
	}
}
