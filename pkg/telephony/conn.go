package telephony

import (
	"github.com/gorilla/websocket"
)

// Conn is the message-oriented connection the transport reads envelopes
// from and writes them to. ReadMessage blocks until a message arrives or
// the connection closes; WriteMessage must not be called concurrently.
type Conn interface {
	ReadMessage() ([]byte, error)
	WriteMessage(data []byte) error
	Close() error
}

// wsConn adapts a websocket connection to Conn. Media streams are text
// frames of JSON.
type wsConn struct {
	ws *websocket.Conn
}

// NewConn wraps an upgraded websocket connection.
func NewConn(ws *websocket.Conn) Conn { return &wsConn{ws: ws} }

func (c *wsConn) ReadMessage() ([]byte, error) {
	_, data, err := c.ws.ReadMessage()
	return data, err
}

func (c *wsConn) WriteMessage(data []byte) error {
	return c.ws.WriteMessage(websocket.TextMessage, data)
}

func (c *wsConn) Close() error { return c.ws.Close() }
