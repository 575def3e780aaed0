package printer_test

import (
	"bytes"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/EtchedChampion/drd-VmbPy/internal/printer"
)

func featureFixture() printer.FeatureDetail {
	return printer.FeatureDetail{
		Name:        "ExposureTime",
		DisplayName: "Exposure Time",
		Category:    "/AcquisitionControl",
		Description: "Exposure duration in microseconds.",
		Type:        "Float",
		Access:      "rw",
		Visibility:  "Beginner",
		Unit:        "us",
		Streamable:  true,
		Value:       "5000",
		Range:       "[10, 100000]",
	}
}

func TestTablePrinterPrintFeatureDetail(t *testing.T) {
	var buf bytes.Buffer
	p := printer.NewTablePrinter(&buf)

	err := p.PrintFeatureDetail(featureFixture())
	require.NoError(t, err)

	out := buf.String()
	assert.Contains(t, out, "Name:         ExposureTime")
	assert.Contains(t, out, "Unit:         us")
	assert.Contains(t, out, "Range:        [10, 100000]")
	assert.NotContains(t, out, "Entries:")
}

func TestJSONPrinterPrintFeatureDetail(t *testing.T) {
	var buf bytes.Buffer
	p := printer.NewJSONPrinter(&buf)

	err := p.PrintFeatureDetail(featureFixture())
	require.NoError(t, err)

	out := buf.String()
	assert.Contains(t, out, `"name": "ExposureTime"`)
	assert.Contains(t, out, `"unit": "us"`)
	assert.Contains(t, out, `"streamable": true`)
}

func TestTablePrinterPrintCameraList(t *testing.T) {
	var buf bytes.Buffer
	p := printer.NewTablePrinter(&buf)

	err := p.PrintCameraList([]printer.CameraRow{
		{ID: "DEV_SIM_0001", Name: "Simulated 1800 U-500m", Model: "1800 U-500m", Serial: "50-0001", InterfaceID: "VimbaUSBInterface_0x0", Access: "Full"},
	})
	require.NoError(t, err)

	out := buf.String()
	assert.Contains(t, out, "ID")
	assert.Contains(t, out, "DEV_SIM_0001")
	assert.Contains(t, out, "VimbaUSBInterface_0x0")
}

func TestTablePrinterPrintFrameList(t *testing.T) {
	var buf bytes.Buffer
	p := printer.NewTablePrinter(&buf)

	err := p.PrintFrameList([]printer.FrameRow{
		{ID: 0, Status: "Complete", Width: 640, Height: 480, SizeBytes: 307200, TimestampNS: 1000},
	})
	require.NoError(t, err)

	out := buf.String()
	assert.Contains(t, out, "640x480")
	assert.Contains(t, out, "300.0 KB")
}

func TestTablePrinterPrintMessage(t *testing.T) {
	var buf bytes.Buffer
	p := printer.NewTablePrinter(&buf)

	err := p.PrintMessage("ok")
	require.NoError(t, err)
	assert.Equal(t, "ok", strings.TrimSpace(buf.String()))
}
