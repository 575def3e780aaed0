package printer

// CameraRow holds the camera fields shown by listing commands.
type CameraRow struct {
	ID          string `json:"id"`
	Name        string `json:"name"`
	Model       string `json:"model"`
	Serial      string `json:"serial"`
	InterfaceID string `json:"interface_id"`
	Access      string `json:"permitted_access"`
}

// FeatureRow holds the feature fields shown by listing commands.
type FeatureRow struct {
	Name     string `json:"name"`
	Category string `json:"category"`
	Type     string `json:"type"`
	Access   string `json:"access"`
	Value    string `json:"value,omitempty"`
	Unit     string `json:"unit,omitempty"`
}

// FeatureDetail holds the full metadata of a single feature.
type FeatureDetail struct {
	Name        string `json:"name"`
	DisplayName string `json:"display_name"`
	Category    string `json:"category"`
	Description string `json:"description,omitempty"`
	Tooltip     string `json:"tooltip,omitempty"`
	Type        string `json:"type"`
	Access      string `json:"access"`
	Visibility  string `json:"visibility"`
	Unit        string `json:"unit,omitempty"`
	Streamable  bool   `json:"streamable"`
	Value       string `json:"value,omitempty"`
	Range       string `json:"range,omitempty"`
	Entries     string `json:"entries,omitempty"`
}

// FrameRow holds the per frame fields shown by the capture commands.
type FrameRow struct {
	ID          uint64 `json:"id"`
	Status      string `json:"status"`
	Width       uint32 `json:"width"`
	Height      uint32 `json:"height"`
	SizeBytes   int64  `json:"size_bytes"`
	TimestampNS uint64 `json:"timestamp_ns"`
}

// Printer knows how to print camera information in different formats.
type Printer interface {
	PrintCameraList(cameras []CameraRow) error
	PrintFeatureList(features []FeatureRow) error
	PrintFeatureDetail(feature FeatureDetail) error
	PrintFrameList(frames []FrameRow) error
	PrintMessage(msg string) error
}
