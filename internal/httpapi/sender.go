package httpapi

import (
	"time"

	"github.com/gorilla/websocket"
)

const closeWriteWait = time.Second

// wsSender adapts a gorilla connection to the registry's Sender. The
// registry serializes WriteMessage calls per connection; nothing else may
// write to the socket after registration.
type wsSender struct {
	conn *websocket.Conn
}

func newWSSender(conn *websocket.Conn) *wsSender {
	return &wsSender{conn: conn}
}

func (s *wsSender) WriteMessage(data []byte) error {
	return s.conn.WriteMessage(websocket.TextMessage, data)
}

func (s *wsSender) Close() error {
	deadline := time.Now().Add(closeWriteWait)
	message := websocket.FormatCloseMessage(websocket.CloseGoingAway, "connection closed")
	_ = s.conn.WriteControl(websocket.CloseMessage, message, deadline)
	return s.conn.Close()
}
