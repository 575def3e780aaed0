package vmb_test

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/EtchedChampion/drd-VmbPy/pkg/vmb"
)

func TestFeatureMetadata(t *testing.T) {
	assert := assert.New(t)
	require := require.New(t)

	sys := newTestSystem(t, testProfile)
	cam := openTestCamera(t, sys)

	f, err := cam.FeatureByName("ExposureTime")
	require.NoError(err)

	assert.Equal("ExposureTime", f.Name())
	assert.Equal(vmb.FeatureTypeFloat, f.Type())
	assert.Equal("/AcquisitionControl", f.Category())
	assert.Equal("us", f.Unit())
	assert.True(f.IsStreamable())
	assert.NotZero(f.Flags() & vmb.FeatureFlagRead)
	assert.NotZero(f.Flags() & vmb.FeatureFlagWrite)
	assert.True(f.IsReadable())
	assert.True(f.IsWriteable())

	_, err = cam.FeatureByName("NoSuchFeature")
	assert.ErrorIs(err, vmb.ErrFeatureNotFound)
}

func TestFeatureTypedViews(t *testing.T) {
	tests := map[string]struct {
		feature string
		view    func(f *vmb.Feature) error
		expErr  error
	}{
		"The float view of a float feature should work.": {
			feature: "ExposureTime",
			view:    func(f *vmb.Feature) error { _, err := f.Float(); return err },
		},

		"The int view of a float feature should fail.": {
			feature: "ExposureTime",
			view:    func(f *vmb.Feature) error { _, err := f.Int(); return err },
			expErr:  vmb.ErrWrongType,
		},

		"The enum view of an enum feature should work.": {
			feature: "GainAuto",
			view:    func(f *vmb.Feature) error { _, err := f.Enum(); return err },
		},

		"The command view of a string feature should fail.": {
			feature: "UserSetDescription",
			view:    func(f *vmb.Feature) error { _, err := f.Command(); return err },
			expErr:  vmb.ErrWrongType,
		},

		"The raw view of a raw feature should work.": {
			feature: "FirmwareBlob",
			view:    func(f *vmb.Feature) error { _, err := f.Raw(); return err },
		},

		"The bool view of a command feature should fail.": {
			feature: "DeviceReset",
			view:    func(f *vmb.Feature) error { _, err := f.Bool(); return err },
			expErr:  vmb.ErrWrongType,
		},
	}

	for name, test := range tests {
		t.Run(name, func(t *testing.T) {
			sys := newTestSystem(t, testProfile)
			cam := openTestCamera(t, sys)

			f, err := cam.FeatureByName(test.feature)
			require.NoError(t, err)

			err = test.view(f)

			if test.expErr != nil {
				assert.ErrorIs(t, err, test.expErr)
			} else {
				assert.NoError(t, err)
			}
		})
	}
}

func TestIntFeature(t *testing.T) {
	assert := assert.New(t)
	require := require.New(t)

	sys := newTestSystem(t, testProfile)
	cam := openTestCamera(t, sys)

	binning, err := vmb.AsInt(cam.FeatureByName("BinningHorizontal"))
	require.NoError(err)

	min, max, err := binning.Range()
	require.NoError(err)
	assert.Equal(int64(1), min)
	assert.Equal(int64(4), max)

	inc, err := binning.Increment()
	require.NoError(err)
	assert.Equal(int64(1), inc)

	require.NoError(binning.Set(2))
	v, err := binning.Get()
	require.NoError(err)
	assert.Equal(int64(2), v)

	// Both bounds are writable, one increment past either bound is not.
	require.NoError(binning.Set(min))
	require.NoError(binning.Set(max))
	assert.ErrorIs(binning.Set(min-inc), vmb.ErrRange)
	assert.ErrorIs(binning.Set(max+inc), vmb.ErrRange)

	assert.ErrorIs(binning.Set(9), vmb.ErrRange)

	// The driver provided Width feature has an increment of 8.
	width, err := vmb.AsInt(cam.FeatureByName("Width"))
	require.NoError(err)
	err = width.Set(13)
	assert.ErrorIs(err, vmb.ErrRange)
	assert.Contains(err.Error(), "steps of 8")
}

func TestFloatFeature(t *testing.T) {
	assert := assert.New(t)
	require := require.New(t)

	sys := newTestSystem(t, testProfile)
	cam := openTestCamera(t, sys)

	exposure, err := vmb.AsFloat(cam.FeatureByName("ExposureTime"))
	require.NoError(err)

	min, max, err := exposure.Range()
	require.NoError(err)
	assert.Equal(10.0, min)
	assert.Equal(100000.0, max)

	_, has, err := exposure.Increment()
	require.NoError(err)
	assert.False(has)

	require.NoError(exposure.Set(2500))
	v, err := exposure.Get()
	require.NoError(err)
	assert.Equal(2500.0, v)

	err = exposure.Set(5)
	assert.ErrorIs(err, vmb.ErrRange)
	assert.Contains(err.Error(), "[10, 100000]")
}

func TestStringFeature(t *testing.T) {
	assert := assert.New(t)
	require := require.New(t)

	sys := newTestSystem(t, testProfile)
	cam := openTestCamera(t, sys)

	f, err := cam.FeatureByName("UserSetDescription")
	require.NoError(err)
	desc, err := f.StringFeature()
	require.NoError(err)

	n, err := desc.MaxLength()
	require.NoError(err)
	assert.Equal(16, n)

	require.NoError(desc.Set("lab-setup"))
	v, err := desc.Get()
	require.NoError(err)
	assert.Equal("lab-setup", v)

	err = desc.Set("this value is far too long")
	assert.ErrorIs(err, vmb.ErrRange)
}

func TestEnumFeature(t *testing.T) {
	assert := assert.New(t)
	require := require.New(t)

	sys := newTestSystem(t, testProfile)
	cam := openTestCamera(t, sys)

	gainAuto, err := vmb.AsEnum(cam.FeatureByName("GainAuto"))
	require.NoError(err)

	all, err := gainAuto.AllEntries()
	require.NoError(err)
	require.Len(all, 3)
	assert.Equal("Off", all[0].Name())
	assert.Equal(int64(0), all[0].Value())

	entry, err := gainAuto.EntryByName("Continuous")
	require.NoError(err)
	assert.Equal(int64(2), entry.Value())

	_, err = gainAuto.EntryByName("Sometimes")
	assert.ErrorIs(err, vmb.ErrNotValid)

	byValue, err := gainAuto.EntryByValue(1)
	require.NoError(err)
	assert.Equal("Once", byValue.Name())

	require.NoError(gainAuto.Set(entry))
	got, err := gainAuto.Get()
	require.NoError(err)
	assert.Equal("Continuous", got.Name())

	require.NoError(gainAuto.SetByValue(0))
	got, err = gainAuto.Get()
	require.NoError(err)
	assert.Equal("Off", got.Name())

	// The driver provided PixelFormat has an unavailable Mono12 entry.
	pixfmt, err := vmb.AsEnum(cam.FeatureByName("PixelFormat"))
	require.NoError(err)

	available, err := pixfmt.AvailableEntries()
	require.NoError(err)
	for _, e := range available {
		assert.NotEqual("Mono12", e.Name())
	}

	assert.ErrorIs(pixfmt.SetByName("Mono12"), vmb.ErrRange)
}

func TestCommandFeature(t *testing.T) {
	assert := assert.New(t)
	require := require.New(t)

	sys := newTestSystem(t, testProfile)
	cam := openTestCamera(t, sys)

	reset, err := vmb.AsCommand(cam.FeatureByName("DeviceReset"))
	require.NoError(err)

	require.NoError(reset.Run())
	done, err := reset.IsDone()
	require.NoError(err)
	assert.True(done)
}

func TestRawFeature(t *testing.T) {
	assert := assert.New(t)
	require := require.New(t)

	sys := newTestSystem(t, testProfile)
	cam := openTestCamera(t, sys)

	f, err := cam.FeatureByName("FirmwareBlob")
	require.NoError(err)
	blob, err := f.Raw()
	require.NoError(err)

	v, err := blob.Get()
	require.NoError(err)
	assert.Equal([]byte("fw-v1"), v)

	require.NoError(blob.Set([]byte("fw-v2")))
	n, err := blob.Length()
	require.NoError(err)
	assert.Equal(5, n)

	assert.ErrorIs(blob.Set(nil), vmb.ErrNotValid)
}

func TestReadOnlyFeature(t *testing.T) {
	assert := assert.New(t)
	require := require.New(t)

	sys := newTestSystem(t, testProfile)
	cam := openTestCamera(t, sys)

	payload, err := vmb.AsInt(cam.FeatureByName("PayloadSize"))
	require.NoError(err)

	assert.True(payload.IsReadable())
	assert.False(payload.IsWriteable())
	assert.ErrorIs(payload.Set(1), vmb.ErrAccess)
}

func TestContainerFilters(t *testing.T) {
	assert := assert.New(t)
	require := require.New(t)

	sys := newTestSystem(t, testProfile)
	cam := openTestCamera(t, sys)

	byCategory, err := cam.FeaturesByCategory("/AnalogControl")
	require.NoError(err)
	require.Len(byCategory, 2)
	assert.Equal("Gain", byCategory[0].Name())
	assert.Equal("GainAuto", byCategory[1].Name())

	commands, err := cam.FeaturesByType(vmb.FeatureTypeCommand)
	require.NoError(err)
	names := make([]string, 0, len(commands))
	for _, f := range commands {
		names = append(names, f.Name())
	}
	assert.Contains(names, "DeviceReset")
	assert.Contains(names, "AcquisitionStart")

	selector, err := cam.FeatureByName("TriggerSelector")
	require.NoError(err)
	assert.True(selector.HasSelectedFeatures())

	selected, err := cam.FeaturesSelectedBy(selector)
	require.NoError(err)
	require.Len(selected, 1)
	assert.Equal("TriggerSource", selected[0].Name())

	gain, err := cam.FeatureByName("Gain")
	require.NoError(err)
	affected, err := cam.FeaturesAffectedBy(gain)
	require.NoError(err)
	require.Len(affected, 1)
	assert.Equal("GainAuto", affected[0].Name())

	// A feature of another container is rejected.
	streams, err := cam.Streams()
	require.NoError(err)
	_, err = streams[0].FeaturesSelectedBy(selector)
	assert.ErrorIs(err, vmb.ErrNotValid)
}

func TestFeatureScopeAfterClose(t *testing.T) {
	assert := assert.New(t)
	require := require.New(t)

	sys := newTestSystem(t, testProfile)
	cam := openTestCamera(t, sys)

	exposure, err := vmb.AsFloat(cam.FeatureByName("ExposureTime"))
	require.NoError(err)

	require.NoError(cam.Close(context.Background()))

	_, err = exposure.Get()
	assert.ErrorIs(err, vmb.ErrScope)
	assert.ErrorIs(exposure.Set(100), vmb.ErrScope)

	_, err = cam.Features()
	assert.ErrorIs(err, vmb.ErrScope)
	_, err = cam.FeatureByName("ExposureTime")
	assert.ErrorIs(err, vmb.ErrScope)
}
