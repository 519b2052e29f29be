// Package protocol defines the JSON wire protocol spoken over the camera
// WebSocket: flat envelopes carrying a mandatory "type" discriminator and
// type-specific payload fields.
package protocol

import (
	"encoding/json"
	"errors"
	"time"
)

// Inbound message types.
const (
	MsgFaceDetection  = "face_detection"
	MsgStartCountdown = "start_countdown"
	MsgStopCountdown  = "stop_countdown"
	MsgCaptureReady   = "capture_ready"
	MsgPing           = "ping"
)

// Outbound message types.
const (
	MsgConnected           = "connected"
	MsgFaceDetectionResult = "face_detection_result"
	MsgCountdownStarted    = "countdown_started"
	MsgCountdownTick       = "countdown_tick"
	MsgCountdownStopped    = "countdown_stopped"
	MsgCaptureCommand      = "capture_command"
	MsgPong                = "pong"
	MsgError               = "error"
)

var ErrMalformedJSON = errors.New("invalid JSON format")
var ErrMissingType = errors.New("missing message type")

// Inbound is a decoded client frame. Unknown Type values are passed through;
// rejecting them is the dispatcher's job, not the codec's.
type Inbound struct {
	Type     string `json:"type"`
	Image    string `json:"image,omitempty"`
	Duration *int   `json:"duration,omitempty"`
}

// Decode parses a raw text frame into an Inbound message.
func Decode(raw []byte) (Inbound, error) {
	var msg Inbound
	if err := json.Unmarshal(raw, &msg); err != nil {
		return Inbound{}, ErrMalformedJSON
	}
	if msg.Type == "" {
		return Inbound{}, ErrMissingType
	}
	return msg, nil
}

// Envelope is an outbound frame. Fields that must serialize at their zero
// value (detected:false, remaining:0, ...) are pointers so omitempty never
// drops them; everything else is omitted when unset.
type Envelope struct {
	Type            string   `json:"type"`
	ConnectionID    string   `json:"connection_id,omitempty"`
	SessionID       string   `json:"session_id,omitempty"`
	Detected        *bool    `json:"detected,omitempty"`
	Confidence      *float64 `json:"confidence,omitempty"`
	FaceCount       *int     `json:"face_count,omitempty"`
	ReadyForCapture *bool    `json:"ready_for_capture,omitempty"`
	Feedback        string   `json:"feedback,omitempty"`
	Duration        *int     `json:"duration,omitempty"`
	Auto            *bool    `json:"auto,omitempty"`
	Remaining       *int     `json:"remaining,omitempty"`
	Message         string   `json:"message,omitempty"`
	Timestamp       string   `json:"timestamp"`
}

// Encode serializes an outbound envelope, stamping the timestamp field at
// encode time.
func Encode(env Envelope, now time.Time) ([]byte, error) {
	env.Timestamp = now.UTC().Format(time.RFC3339)
	return json.Marshal(env)
}

func Connected(connectionID string, sessionID string) Envelope {
	return Envelope{
		Type:         MsgConnected,
		ConnectionID: connectionID,
		SessionID:    sessionID,
	}
}

func FaceDetectionResult(sessionID string, detected bool, confidence float64, faceCount int, ready bool, feedback string) Envelope {
	return Envelope{
		Type:            MsgFaceDetectionResult,
		SessionID:       sessionID,
		Detected:        boolPtr(detected),
		Confidence:      floatPtr(confidence),
		FaceCount:       intPtr(faceCount),
		ReadyForCapture: boolPtr(ready),
		Feedback:        feedback,
	}
}

func CountdownStarted(sessionID string, duration int, auto bool) Envelope {
	return Envelope{
		Type:      MsgCountdownStarted,
		SessionID: sessionID,
		Duration:  intPtr(duration),
		Auto:      boolPtr(auto),
	}
}

func CountdownTick(sessionID string, remaining int) Envelope {
	return Envelope{
		Type:      MsgCountdownTick,
		SessionID: sessionID,
		Remaining: intPtr(remaining),
	}
}

func CountdownStopped(sessionID string) Envelope {
	return Envelope{Type: MsgCountdownStopped, SessionID: sessionID}
}

func CaptureCommand(sessionID string, auto bool) Envelope {
	return Envelope{
		Type:      MsgCaptureCommand,
		SessionID: sessionID,
		Auto:      boolPtr(auto),
	}
}

func Pong() Envelope {
	return Envelope{Type: MsgPong}
}

// Ping is the server-side liveness probe sent when a read deadline passes
// without client traffic.
func Ping() Envelope {
	return Envelope{Type: MsgPing}
}

func Error(message string) Envelope {
	return Envelope{Type: MsgError, Message: message}
}

func boolPtr(v bool) *bool        { return &v }
func intPtr(v int) *int           { return &v }
func floatPtr(v float64) *float64 { return &v }
