package printer

import (
	"encoding/json"
	"io"
)

// JSONPrinter prints camera information in JSON format.
type JSONPrinter struct {
	writer io.Writer
}

// NewJSONPrinter creates a new JSON printer.
func NewJSONPrinter(w io.Writer) *JSONPrinter {
	return &JSONPrinter{writer: w}
}

// messageOutput represents a simple message output.
type messageOutput struct {
	Message string `json:"message"`
}

// PrintCameraList prints cameras in JSON format.
func (j *JSONPrinter) PrintCameraList(cameras []CameraRow) error {
	return j.encode(cameras)
}

// PrintFeatureList prints features in JSON format.
func (j *JSONPrinter) PrintFeatureList(features []FeatureRow) error {
	return j.encode(features)
}

// PrintFeatureDetail prints the full metadata of a single feature in JSON format.
func (j *JSONPrinter) PrintFeatureDetail(feature FeatureDetail) error {
	return j.encode(feature)
}

// PrintFrameList prints captured frames in JSON format.
func (j *JSONPrinter) PrintFrameList(frames []FrameRow) error {
	return j.encode(frames)
}

// PrintMessage prints a simple message in JSON format.
func (j *JSONPrinter) PrintMessage(msg string) error {
	return j.encode(messageOutput{Message: msg})
}

func (j *JSONPrinter) encode(v any) error {
	enc := json.NewEncoder(j.writer)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
