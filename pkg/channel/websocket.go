package channel

import (
	"context"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/gorilla/websocket"

	"github.com/vulntor/fileops/pkg/job"
)

// WebSocketDialer connects to the engine's per-job event stream at
// <BaseURL>/<jobID>/events?kind=<kind>.
type WebSocketDialer struct {
	BaseURL      string
	Header       http.Header
	WriteTimeout time.Duration
	ReadLimit    int64

	dialer *websocket.Dialer
}

// NewWebSocketDialer creates a dialer for the engine events endpoint.
func NewWebSocketDialer(baseURL string, handshakeTimeout time.Duration) *WebSocketDialer {
	return &WebSocketDialer{
		BaseURL:      strings.TrimRight(baseURL, "/"),
		WriteTimeout: 5 * time.Second,
		ReadLimit:    1 << 20,
		dialer: &websocket.Dialer{
			Proxy:            http.ProxyFromEnvironment,
			HandshakeTimeout: handshakeTimeout,
		},
	}
}

// URL returns the event stream address for a job.
func (d *WebSocketDialer) URL(jobID string, kind job.Kind) string {
	return fmt.Sprintf("%s/%s/events?kind=%s", d.BaseURL, url.PathEscape(jobID), url.QueryEscape(string(kind)))
}

// Dial opens the websocket for jobID.
func (d *WebSocketDialer) Dial(ctx context.Context, jobID string, kind job.Kind) (Conn, error) {
	dialer := d.dialer
	if dialer == nil {
		dialer = websocket.DefaultDialer
	}

	conn, resp, err := dialer.DialContext(ctx, d.URL(jobID, kind), d.Header)
	if err != nil {
		if resp != nil {
			return nil, fmt.Errorf("websocket handshake failed with status %d: %w", resp.StatusCode, err)
		}
		return nil, err
	}
	if d.ReadLimit > 0 {
		conn.SetReadLimit(d.ReadLimit)
	}
	return &wsConn{conn: conn, writeTimeout: d.WriteTimeout}, nil
}

type wsConn struct {
	conn         *websocket.Conn
	writeTimeout time.Duration
}

func (c *wsConn) ReadMessage(ctx context.Context) ([]byte, error) {
	for {
		typ, data, err := c.conn.ReadMessage()
		if err != nil {
			return nil, err
		}
		if typ == websocket.TextMessage || typ == websocket.BinaryMessage {
			return data, nil
		}
	}
}

func (c *wsConn) WriteMessage(ctx context.Context, data []byte) error {
	deadline := time.Now().Add(c.writeTimeout)
	if d, ok := ctx.Deadline(); ok && d.Before(deadline) {
		deadline = d
	}
	if err := c.conn.SetWriteDeadline(deadline); err != nil {
		return err
	}
	return c.conn.WriteMessage(websocket.TextMessage, data)
}

func (c *wsConn) Close(code int, reason string) error {
	msg := websocket.FormatCloseMessage(code, reason)
	werr := c.conn.WriteControl(websocket.CloseMessage, msg, time.Now().Add(c.writeTimeout))
	cerr := c.conn.Close()
	if werr != nil && !websocket.IsCloseError(werr, websocket.CloseNormalClosure) {
		return werr
	}
	return cerr
}
