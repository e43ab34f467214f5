package domain

import "time"

// ObjectDetection is one label emitted by the detector for an image.
type ObjectDetection struct {
	Label      string  `json:"label"`
	Confidence float64 `json:"confidence"`
}

// DetectionOutcome is the detector's answer for one image. Unavailable is set
// when the detector cannot serve requests at all; Detections is then empty.
type DetectionOutcome struct {
	Unavailable bool
	Reason      string
	Detections  []ObjectDetection
}

// Detection is a persisted enrichment row.
type Detection struct {
	MessageID       int64
	ChannelUsername string
	ImagePath       string
	DetectedObject  string
	Confidence      float64
	DetectedAt      time.Time
}
