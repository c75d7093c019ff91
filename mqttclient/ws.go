package mqttclient

import (
	"context"
	"io"
	"net"
	"net/http"
	"time"

	"github.com/gorilla/websocket"
)

// websocketConnection is an optional connectionProvider for MQTT over
// WebSockets, used when a deployment fronts the broker with a load balancer
// or proxy that only forwards HTTP(S) traffic.
func websocketConnection(url string, header http.Header) connectionProvider {
	return func(ctx context.Context) (net.Conn, error) {
		dialer := websocket.Dialer{Subprotocols: []string{"mqtt"}}
		conn, _, err := dialer.DialContext(ctx, url, header)
		if err != nil {
			return nil, &ConnectionError{message: "error opening WebSocket connection", wrapped: err}
		}
		return &wsConn{Conn: conn}, nil
	}
}

// wsConn adapts a *websocket.Conn, which exchanges discrete binary messages,
// to the net.Conn byte-stream interface paho.golang expects: MQTT control
// packets are split across message boundaries as needed, and Read
// reassembles from whatever of the current message is left over.
type wsConn struct {
	*websocket.Conn
	leftover io.Reader
}

func (c *wsConn) Read(p []byte) (int, error) {
	for c.leftover == nil {
		_, r, err := c.Conn.NextReader()
		if err != nil {
			return 0, err
		}
		c.leftover = r
	}

	n, err := c.leftover.Read(p)
	if err == io.EOF {
		c.leftover = nil
		err = nil
	}
	return n, err
}

func (c *wsConn) Write(p []byte) (int, error) {
	if err := c.Conn.WriteMessage(websocket.BinaryMessage, p); err != nil {
		return 0, err
	}
	return len(p), nil
}

func (c *wsConn) SetDeadline(t time.Time) error {
	if err := c.Conn.SetReadDeadline(t); err != nil {
		return err
	}
	return c.Conn.SetWriteDeadline(t)
}
