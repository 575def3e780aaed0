package vmb_test

import (
	"context"
	"testing"
	"testing/fstest"

	"github.com/stretchr/testify/require"

	"github.com/EtchedChampion/drd-VmbPy/pkg/vmb"
)

// testProfile describes the camera used by most tests. Core acquisition
// features (Width, Height, PayloadSize, AcquisitionStart...) are provided
// by the simulated driver on top of these.
const testProfile = `
cameras:
  - id: DEV_T_0001
    name: Test Camera
    model: T-500m
    serial: "0042"
    interface_id: IF_T_0
    permitted_access: [full, read]
    frame_interval_ms: 1
    features:
      - name: ExposureTime
        type: float
        category: /AcquisitionControl
        unit: us
        streamable: true
        value: 5000
        min: 10
        max: 100000
      - name: Gain
        type: float
        category: /AnalogControl
        unit: dB
        streamable: true
        value: 0
        min: 0
        max: 24
        affected: [GainAuto]
      - name: GainAuto
        type: enum
        category: /AnalogControl
        streamable: true
        value: "Off"
        entries:
          - {name: "Off", value: 0}
          - {name: Once, value: 1}
          - {name: Continuous, value: 2}
      - name: BinningHorizontal
        type: int
        category: /ImageFormatControl
        streamable: true
        value: 1
        min: 1
        max: 4
        increment: 1
      - name: TriggerSelector
        type: enum
        category: /AcquisitionControl
        value: FrameStart
        selected: [TriggerSource]
        entries:
          - {name: FrameStart, value: 0}
          - {name: AcquisitionStart, value: 1}
      - name: TriggerSource
        type: enum
        category: /AcquisitionControl
        value: Software
        entries:
          - {name: Software, value: 0}
          - {name: Line0, value: 1}
      - name: UserSetDescription
        type: string
        category: /UserSetControl
        value: default
        max_length: 16
      - name: FirmwareBlob
        type: raw
        category: /DeviceControl
        value: fw-v1
      - name: DeviceReset
        type: command
        category: /DeviceControl
        access: wo
`

// slowProfile never delivers frames, used to exercise timeouts and
// cancellation.
const slowProfile = `
cameras:
  - id: DEV_T_0001
    name: Test Camera
    model: T-500m
    serial: "0042"
    interface_id: IF_T_0
    frame_interval_ms: 3600000
`

func newTestSystem(t *testing.T, profile string) *vmb.VmbSystem {
	t.Helper()

	sys, err := vmb.New(vmb.Config{
		ProfileFS:   fstest.MapFS{"cameras.yaml": &fstest.MapFile{Data: []byte(profile)}},
		ProfilePath: "cameras.yaml",
	})
	require.NoError(t, err)
	require.NoError(t, sys.Startup(context.Background()))
	t.Cleanup(func() { _ = sys.Shutdown(context.Background()) })

	return sys
}

func openTestCamera(t *testing.T, sys *vmb.VmbSystem) *vmb.Camera {
	t.Helper()

	cam, err := sys.CameraByID("DEV_T_0001")
	require.NoError(t, err)
	require.NoError(t, cam.Open(context.Background()))
	t.Cleanup(func() { _ = cam.Close(context.Background()) })

	return cam
}
