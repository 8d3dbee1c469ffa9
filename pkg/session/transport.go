package session

import (
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"
)

const (
	handshakeTimeout = 10 * time.Second
	writeTimeout     = 10 * time.Second
	readTimeout      = 120 * time.Second
	pingInterval     = 30 * time.Second
)

// conn is the transport the Manager talks through, narrowed so tests
// can substitute an in-memory implementation.
type conn interface {
	ReadMessage() ([]byte, error)
	WriteJSON(v any) error
	Close() error
}

// wsConn wraps a gorilla connection with a write mutex, keepalive
// pings, and a rolling read deadline. gorilla allows one concurrent
// writer, and session writes come from several goroutines.
type wsConn struct {
	ws     *websocket.Conn
	wsMu   sync.Mutex
	closed chan struct{}
	once   sync.Once
}

var _ conn = (*wsConn)(nil)

func dialWS(wsURL string, header http.Header) (*wsConn, error) {
	dialer := websocket.Dialer{HandshakeTimeout: handshakeTimeout}
	ws, _, err := dialer.Dial(wsURL, header)
	if err != nil {
		return nil, err
	}

	c := &wsConn{ws: ws, closed: make(chan struct{})}

	ws.SetReadDeadline(time.Now().Add(readTimeout))
	ws.SetPongHandler(func(string) error {
		ws.SetReadDeadline(time.Now().Add(readTimeout))
		return nil
	})
	ws.SetPingHandler(func(appData string) error {
		c.wsMu.Lock()
		defer c.wsMu.Unlock()
		return ws.WriteControl(websocket.PongMessage, []byte(appData), time.Now().Add(writeTimeout))
	})

	go c.keepAlive()
	return c, nil
}

func (c *wsConn) keepAlive() {
	ticker := time.NewTicker(pingInterval)
	defer ticker.Stop()
	for {
		select {
		case <-c.closed:
			return
		case <-ticker.C:
			c.wsMu.Lock()
			err := c.ws.WriteControl(websocket.PingMessage, nil, time.Now().Add(writeTimeout))
			c.wsMu.Unlock()
			if err != nil {
				return
			}
		}
	}
}

func (c *wsConn) ReadMessage() ([]byte, error) {
	_, data, err := c.ws.ReadMessage()
	if err == nil {
		c.ws.SetReadDeadline(time.Now().Add(readTimeout))
	}
	return data, err
}

func (c *wsConn) WriteJSON(v any) error {
	c.wsMu.Lock()
	defer c.wsMu.Unlock()
	c.ws.SetWriteDeadline(time.Now().Add(writeTimeout))
	return c.ws.WriteJSON(v)
}

// Close sends a close frame before dropping the TCP connection so the
// server can end the session cleanly.
func (c *wsConn) Close() error {
	var err error
	c.once.Do(func() {
		close(c.closed)
		c.wsMu.Lock()
		c.ws.WriteControl(websocket.CloseMessage,
			websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""),
			time.Now().Add(time.Second))
		c.wsMu.Unlock()
		err = c.ws.Close()
	})
	return err
}
