// Package facedetect defines the contract between the signaling layer and
// the face-detection pipeline. The pipeline itself is an external
// collaborator; this package only fixes the result shape and ships a stub
// used in development and tests.
package facedetect

import "context"

const defaultFeedback = "Position your face in front of the camera"

// Result is a single detection outcome. The zero value is the degraded
// default: nothing detected, nothing ready. A detector that returns partial
// data must never crash a connection, so absent fields simply stay at zero.
type Result struct {
	Detected        bool
	Confidence      float64
	FaceCount       int
	ReadyForCapture bool
	Feedback        string
}

// FeedbackOrDefault returns the detector's feedback string, falling back to
// the standard prompt when the detector supplied none.
func (r Result) FeedbackOrDefault() string {
	if r.Feedback == "" {
		return defaultFeedback
	}
	return r.Feedback
}

// Detector analyzes one base64-encoded camera frame. An error return means
// the pipeline itself failed, not that no face was found.
type Detector interface {
	Detect(ctx context.Context, imageBase64 string) (Result, error)
}
