// Package httpapi exposes the camera signaling surface: the capture
// WebSocket endpoints and a small set of operational HTTP endpoints over
// the connection registry.
package httpapi

import (
	"errors"
	"net"
	"net/http"
	"sync/atomic"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/rs/zerolog"

	"github.com/SkinMatchProject5/camera-backend/internal/auth"
	"github.com/SkinMatchProject5/camera-backend/internal/capture"
	"github.com/SkinMatchProject5/camera-backend/internal/facedetect"
	"github.com/SkinMatchProject5/camera-backend/internal/protocol"
	"github.com/SkinMatchProject5/camera-backend/internal/registry"
)

// WSOptions configures the per-connection capture loop.
type WSOptions struct {
	CountdownSeconds int
	ReadTimeout      time.Duration
	AllowedOrigins   []string
}

// CameraWSHandler accepts camera WebSocket connections, runs each
// connection's receive loop on its own goroutine, and feeds decoded frames
// to that connection's capture state machine.
type CameraWSHandler struct {
	registry *registry.Registry
	detector facedetect.Detector
	verifier auth.Verifier

	upgrader         websocket.Upgrader
	countdownSeconds int
	readTimeout      time.Duration
	logger           zerolog.Logger
	newConnID        func() string
}

func NewCameraWSHandler(reg *registry.Registry, detector facedetect.Detector, verifier auth.Verifier, opts WSOptions, logger zerolog.Logger) *CameraWSHandler {
	return &CameraWSHandler{
		registry:         reg,
		detector:         detector,
		verifier:         verifier,
		upgrader:         makeUpgrader(opts.AllowedOrigins),
		countdownSeconds: opts.CountdownSeconds,
		readTimeout:      opts.ReadTimeout,
		logger:           logger.With().Str("component", "camera_ws").Logger(),
		newConnID:        uuid.NewString,
	}
}

func makeUpgrader(allowedOrigins []string) websocket.Upgrader {
	return websocket.Upgrader{
		ReadBufferSize:  4096,
		WriteBufferSize: 4096,
		CheckOrigin: func(r *http.Request) bool {
			origin := r.Header.Get("Origin")
			if origin == "" {
				return true
			}
			for _, allowed := range allowedOrigins {
				if origin == allowed {
					return true
				}
			}
			return false
		},
	}
}

// HandleSession serves /ws/camera/:session_id.
func (h *CameraWSHandler) HandleSession(c *gin.Context) {
	h.serve(c.Writer, c.Request, c.Param("session_id"))
}

// HandleGeneratedSession serves /ws/camera with a generated session id,
// used by clients probing the capture flow without a stored session.
func (h *CameraWSHandler) HandleGeneratedSession(c *gin.Context) {
	h.serve(c.Writer, c.Request, uuid.NewString())
}

func (h *CameraWSHandler) serve(w http.ResponseWriter, r *http.Request, sessionID string) {
	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.logger.Warn().Err(err).Msg("websocket upgrade failed")
		return
	}

	userID := ""
	if token := r.URL.Query().Get("token"); token != "" {
		identity, verifyErr := h.verifier.Verify(token)
		if verifyErr != nil {
			h.refuse(conn, verifyErr)
			return
		}
		userID = identity.UserID
	}

	connID := h.newConnID()
	if err := h.registry.Register(connID, sessionID, userID, newWSSender(conn)); err != nil {
		h.logger.Error().Err(err).Str("connection_id", connID).Msg("registration failed")
		_ = conn.Close()
		return
	}

	machine := capture.NewMachine(connID, sessionID, h.registry, h.detector, h.countdownSeconds, h.logger)
	defer func() {
		machine.Stop()
		h.registry.Deregister(connID)
	}()

	if err := h.registry.Send(connID, protocol.Connected(connID, sessionID)); err != nil {
		return
	}

	// Quiet peers are probed from a side ticker rather than the read path:
	// the websocket reader does not survive a deadline expiry, so the loop
	// blocks until a frame arrives or the transport dies. A failed probe
	// write evicts the connection, which unblocks the read below.
	lastRead := &atomic.Int64{}
	lastRead.Store(time.Now().UnixNano())
	stopProbe := make(chan struct{})
	defer close(stopProbe)
	go h.probeQuietPeer(connID, lastRead, stopProbe)

	for {
		_, data, readErr := conn.ReadMessage()
		if readErr != nil {
			if !isExpectedClose(readErr) {
				h.logger.Warn().Err(readErr).Str("connection_id", connID).Msg("receive failed")
			}
			return
		}

		lastRead.Store(time.Now().UnixNano())
		h.registry.Touch(connID)

		msg, decodeErr := protocol.Decode(data)
		if decodeErr != nil {
			_ = h.registry.Send(connID, protocol.Error(decodeErrorMessage(decodeErr)))
			continue
		}
		machine.HandleMessage(r.Context(), msg)
	}
}

// probeQuietPeer sends a ping to the connection whenever no frame has
// arrived for a full probe interval. Probing stops when the receive loop
// returns or the ping write fails, which deregisters the connection.
func (h *CameraWSHandler) probeQuietPeer(connID string, lastRead *atomic.Int64, stop <-chan struct{}) {
	ticker := time.NewTicker(h.readTimeout)
	defer ticker.Stop()
	for {
		select {
		case <-stop:
			return
		case now := <-ticker.C:
			if now.Sub(time.Unix(0, lastRead.Load())) < h.readTimeout {
				continue
			}
			if err := h.registry.Send(connID, protocol.Ping()); err != nil {
				return
			}
		}
	}
}

// refuse closes a handshake whose token failed verification with a
// policy-violation code. The connection never enters the registry.
func (h *CameraWSHandler) refuse(conn *websocket.Conn, cause error) {
	h.logger.Info().Err(cause).Msg("refusing connection with invalid token")
	message := websocket.FormatCloseMessage(websocket.ClosePolicyViolation, "Invalid token")
	_ = conn.WriteControl(websocket.CloseMessage, message, time.Now().Add(closeWriteWait))
	_ = conn.Close()
}

func decodeErrorMessage(err error) string {
	if errors.Is(err, protocol.ErrMissingType) {
		return "Missing message type"
	}
	return "Invalid JSON format"
}

func isExpectedClose(err error) bool {
	// The registry closes the socket when a write or the liveness sweep
	// evicts the connection; the blocked read then fails with ErrClosed.
	if errors.Is(err, net.ErrClosed) {
		return true
	}
	return websocket.IsCloseError(err,
		websocket.CloseNormalClosure,
		websocket.CloseGoingAway,
		websocket.CloseNoStatusReceived,
	)
}
