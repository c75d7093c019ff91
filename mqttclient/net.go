package mqttclient

import (
	"context"
	"crypto/tls"
	"fmt"
	"net"
)

// connectionProvider returns a net.Conn connected to the MQTT server, ready
// to read from and write to. The returned conn must be safe for concurrent
// writes, since paho.golang writes from multiple goroutines.
type connectionProvider func(context.Context) (net.Conn, error)

func tcpConnection(hostname string, port int) connectionProvider {
	return func(ctx context.Context) (net.Conn, error) {
		var d net.Dialer
		conn, err := d.DialContext(ctx, "tcp", fmt.Sprintf("%s:%d", hostname, port))
		if err != nil {
			return nil, &ConnectionError{message: "error opening TCP connection", wrapped: err}
		}
		return conn, nil
	}
}

func tlsConnection(hostname string, port int, cfg *tls.Config) connectionProvider {
	return func(ctx context.Context) (net.Conn, error) {
		d := tls.Dialer{Config: cfg}
		conn, err := d.DialContext(ctx, "tcp", fmt.Sprintf("%s:%d", hostname, port))
		if err != nil {
			return nil, &ConnectionError{message: "error opening TLS connection", wrapped: err}
		}
		return conn, nil
	}
}
