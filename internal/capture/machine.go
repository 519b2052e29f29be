// Package capture drives the per-connection capture state machine:
// face-detection feedback, countdown scheduling, and the capture trigger.
// One Machine exists per live connection; all of its outbound traffic flows
// through the connection registry.
package capture

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/SkinMatchProject5/camera-backend/internal/facedetect"
	"github.com/SkinMatchProject5/camera-backend/internal/protocol"
)

type State string

const (
	StateIdle             State = "idle"
	StateAwaitingFace     State = "awaiting_face"
	StateCountdownRunning State = "countdown_running"
	StateCaptured         State = "captured"
	StateError            State = "error"
)

// Emitter is the outbound half of a connection as the machine sees it; the
// registry satisfies it.
type Emitter interface {
	Send(connID string, env protocol.Envelope) error
	Connected(connID string) bool
}

// Machine owns one connection's capture state. Inbound frames are dispatched
// through HandleMessage; the countdown timer runs on its own goroutine and
// is cancelled through an explicit handle, never by polling.
type Machine struct {
	connID    string
	sessionID string
	emitter   Emitter
	detector  facedetect.Detector

	defaultDuration int
	tickInterval    time.Duration
	logger          zerolog.Logger

	mu        sync.Mutex
	state     State
	countdown *countdownHandle
}

func NewMachine(connID string, sessionID string, emitter Emitter, detector facedetect.Detector, defaultDuration int, logger zerolog.Logger) *Machine {
	return &Machine{
		connID:          connID,
		sessionID:       sessionID,
		emitter:         emitter,
		detector:        detector,
		defaultDuration: defaultDuration,
		tickInterval:    time.Second,
		logger: logger.With().
			Str("component", "capture").
			Str("connection_id", connID).
			Logger(),
		state: StateIdle,
	}
}

// State returns the current capture state.
func (m *Machine) State() State {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.state
}

// HandleMessage dispatches one decoded inbound frame. Unknown types are
// answered with an error envelope and leave the connection and its state
// untouched.
func (m *Machine) HandleMessage(ctx context.Context, msg protocol.Inbound) {
	switch msg.Type {
	case protocol.MsgFaceDetection:
		m.handleFaceDetection(ctx, msg.Image)
	case protocol.MsgStartCountdown:
		duration := m.defaultDuration
		if msg.Duration != nil && *msg.Duration > 0 {
			duration = *msg.Duration
		}
		m.startCountdown(duration, false)
	case protocol.MsgStopCountdown:
		m.handleStopCountdown()
	case protocol.MsgCaptureReady:
		m.handleCaptureReady()
	case protocol.MsgPing:
		m.emit(protocol.Pong())
	default:
		m.emit(protocol.Error(fmt.Sprintf("Unknown message type: %s", msg.Type)))
	}
}

func (m *Machine) handleFaceDetection(ctx context.Context, image string) {
	if image == "" {
		m.emit(protocol.Error("No image data provided"))
		return
	}

	result, err := m.detector.Detect(ctx, image)
	if err != nil {
		// Detector-internal failures are always surfaced explicitly; the
		// machine self-heals back to idle. An in-flight countdown keeps
		// running: first timer wins until it completes or is stopped.
		m.logger.Warn().Err(err).Msg("face detection failed")
		m.mu.Lock()
		if m.state != StateCountdownRunning {
			m.state = StateError
		}
		m.mu.Unlock()
		m.emit(protocol.Error(fmt.Sprintf("Face detection failed: %v", err)))
		m.mu.Lock()
		if m.state == StateError {
			m.state = StateIdle
		}
		m.mu.Unlock()
		return
	}

	m.emit(protocol.FaceDetectionResult(
		m.sessionID,
		result.Detected,
		result.Confidence,
		result.FaceCount,
		result.ReadyForCapture,
		result.FeedbackOrDefault(),
	))

	if result.ReadyForCapture {
		m.startAutoCountdown()
		return
	}

	m.mu.Lock()
	if m.state == StateIdle {
		m.state = StateAwaitingFace
	}
	m.mu.Unlock()
}

// startAutoCountdown arms the countdown off a readiness event. A countdown
// already running wins: the new event is ignored, no double-countdown.
func (m *Machine) startAutoCountdown() {
	m.mu.Lock()
	if m.countdown != nil {
		m.mu.Unlock()
		return
	}
	m.mu.Unlock()
	m.armCountdown(m.defaultDuration, true)
}

// startCountdown arms a manual countdown. An explicit start invalidates any
// prior run for this connection.
func (m *Machine) startCountdown(duration int, auto bool) {
	m.cancelCountdown()
	m.armCountdown(duration, auto)
}

func (m *Machine) armCountdown(duration int, auto bool) {
	m.mu.Lock()
	if m.countdown != nil {
		m.mu.Unlock()
		return
	}
	ctx, cancel := context.WithCancel(context.Background())
	handle := &countdownHandle{cancel: cancel, done: make(chan struct{})}
	m.countdown = handle
	m.state = StateCountdownRunning
	m.mu.Unlock()

	m.emit(protocol.CountdownStarted(m.sessionID, duration, auto))
	go m.runCountdown(ctx, handle, duration, auto)
}

func (m *Machine) runCountdown(ctx context.Context, handle *countdownHandle, duration int, auto bool) {
	defer close(handle.done)

	for remaining := duration; remaining >= 1; remaining-- {
		// The connection may be gone already; the scheduler aborts
		// silently rather than ticking into the void.
		if !m.emitter.Connected(m.connID) {
			m.clearCountdown(handle)
			return
		}
		if ctx.Err() != nil {
			return
		}
		if err := m.emitter.Send(m.connID, protocol.CountdownTick(m.sessionID, remaining)); err != nil {
			m.clearCountdown(handle)
			return
		}

		select {
		case <-ctx.Done():
			return
		case <-time.After(m.tickInterval):
		}
	}

	m.mu.Lock()
	if m.countdown != handle {
		// Cancelled and possibly replaced while we slept.
		m.mu.Unlock()
		return
	}
	m.countdown = nil
	m.state = StateCaptured
	m.mu.Unlock()

	if m.emitter.Connected(m.connID) {
		m.emit(protocol.CaptureCommand(m.sessionID, auto))
	}
}

func (m *Machine) handleStopCountdown() {
	m.cancelCountdown()
	m.emit(protocol.CountdownStopped(m.sessionID))
}

func (m *Machine) handleCaptureReady() {
	m.cancelCountdown()
	m.mu.Lock()
	m.state = StateCaptured
	m.mu.Unlock()
	m.emit(protocol.CaptureCommand(m.sessionID, false))
}

// Stop cancels any in-flight countdown. Called on disconnect; no further
// ticks or capture commands are emitted once cancellation is observed.
func (m *Machine) Stop() {
	m.cancelCountdown()
}

func (m *Machine) cancelCountdown() {
	m.mu.Lock()
	handle := m.countdown
	m.countdown = nil
	if m.state == StateCountdownRunning {
		m.state = StateIdle
	}
	m.mu.Unlock()

	if handle != nil {
		handle.cancelOnce.Do(handle.cancel)
	}
}

// clearCountdown detaches a handle that aborted on its own (peer gone or
// send failure) without emitting anything further.
func (m *Machine) clearCountdown(handle *countdownHandle) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.countdown == handle {
		m.countdown = nil
		if m.state == StateCountdownRunning {
			m.state = StateIdle
		}
	}
}

func (m *Machine) emit(env protocol.Envelope) {
	if err := m.emitter.Send(m.connID, env); err != nil {
		m.logger.Debug().Err(err).Str("message_type", env.Type).Msg("emit failed")
	}
}

// countdownHandle is a cancellable timer token: cancel is idempotent and
// done closes when the countdown goroutine exits, successfully or not.
type countdownHandle struct {
	cancel     context.CancelFunc
	cancelOnce sync.Once
	done       chan struct{}
}
