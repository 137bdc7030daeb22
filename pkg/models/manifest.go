package models

// VideoInformation describes one source rendition inside a job manifest.
// An empty MP4URL signals that the MMRK artifact for this rendition already
// exists and the worker may skip preprocessing.
type VideoInformation struct {
	FileName    string `json:"FileName"`
	MP4URL      string `json:"MP4URL"`
	MMRKURL     string `json:"MMRKURL"`
	VBitrate    string `json:"vbitrate"`
	GOPSize     string `json:"gopsize"`
	VideoFilter string `json:"videoFilter"`
}

// MP4WatermarkedURL is the upload destination for one watermarked rendition.
type MP4WatermarkedURL struct {
	FileName       string `json:"FileName"`
	WaterMarkedMp4 string `json:"WaterMarkedMp4"`
}

// EmbeddedCode pairs a recipient code with its per-rendition destinations.
type EmbeddedCode struct {
	Code              string              `json:"Code"`
	MP4WatermarkedURL []MP4WatermarkedURL `json:"MP4WatermarkedURL"`
}

// Manifest is the cluster job payload. The JSON shape is wire-compatible
// with the workers; field names must not change.
type Manifest struct {
	JobID                         string             `json:"JobId"`
	AssetID                       string             `json:"AssetId"`
	PreprocessorNotificationQueue string             `json:"PreprocessorNotificationQueue"`
	EmbedderNotificationQueue     string             `json:"EmbedderNotificationQueue"`
	VideoInformation              []VideoInformation `json:"VideoInformation"`
	EmbeddedCodes                 []EmbeddedCode     `json:"EmbeddedCodes"`
}

// Notification is the message workers enqueue when a preprocessing or
// embedding step ends. EmbeddedCode is empty for preprocessor notifications.
type Notification struct {
	JobID        string `json:"JobId"`
	AssetID      string `json:"AssetId"`
	FileName     string `json:"FileName"`
	EmbeddedCode string `json:"EmbeddedCode,omitempty"`
	Status       string `json:"Status"`
	JobOutput    string `json:"JobOutput"`
}
