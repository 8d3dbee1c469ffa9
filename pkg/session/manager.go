package session

import (
	"context"
	"encoding/base64"
	"errors"
	"fmt"
	"sync"

	"github.com/pepperkit/go-pepper/internal/log"
	"github.com/pepperkit/go-pepper/pkg/protocol"
)

// ErrNotConnected is returned by send operations before Connect
// succeeds or after the session closes.
var ErrNotConnected = errors.New("session: not connected")

// Manager owns one realtime session. Events decoded from the socket are
// dispatched to the listener on the read loop goroutine. Send methods
// are safe for concurrent use.
type Manager struct {
	cfg      Config
	dialect  protocol.Dialect
	listener protocol.Listener

	// dial is swappable for tests.
	dial func() (conn, error)

	mu         sync.Mutex
	conn       conn
	restarting bool
	closed     bool

	// OnDisconnect fires when the read loop ends for a reason other
	// than Close or Restart.
	OnDisconnect func(err error)
}

// NewManager returns an unconnected manager.
func NewManager(cfg Config, listener protocol.Listener) (*Manager, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	m := &Manager{
		cfg:      cfg,
		dialect:  cfg.Provider.Dialect(),
		listener: listener,
	}
	m.dial = func() (conn, error) {
		u, header, err := endpoint(cfg)
		if err != nil {
			return nil, err
		}
		return dialWS(u, header)
	}
	return m, nil
}

// Dialect reports the wire schema of the configured provider.
func (m *Manager) Dialect() protocol.Dialect { return m.dialect }

// Connect dials the provider, sends session configuration, and blocks
// until the server confirms the session or ctx expires.
func (m *Manager) Connect(ctx context.Context) error {
	m.mu.Lock()
	if m.closed {
		m.mu.Unlock()
		return ErrNotConnected
	}
	if m.conn != nil {
		m.mu.Unlock()
		return fmt.Errorf("session: already connected")
	}
	ready := newReadyPromise()
	m.mu.Unlock()

	c, err := m.dial()
	if err != nil {
		ready.resolve(err)
		return fmt.Errorf("dial %s: %w", m.cfg.Provider, err)
	}

	m.mu.Lock()
	m.conn = c
	m.mu.Unlock()

	// Gemini configures up front; the OpenAI dialect waits for
	// session.created before sending session.update.
	if m.dialect == protocol.DialectGemini {
		if err := c.WriteJSON(geminiSetup(m.cfg)); err != nil {
			m.teardown(c)
			ready.resolve(err)
			return fmt.Errorf("send setup: %w", err)
		}
	}

	go m.readLoop(c, ready)

	if err := ready.wait(ctx); err != nil {
		m.teardown(c)
		return err
	}
	return nil
}

// Restart closes the current connection without surfacing the
// disconnect, then connects again. In-flight server state is lost; the
// caller is responsible for conversation-level cleanup.
func (m *Manager) Restart(ctx context.Context) error {
	m.mu.Lock()
	if m.closed {
		m.mu.Unlock()
		return ErrNotConnected
	}
	m.restarting = true
	c := m.conn
	m.conn = nil
	m.mu.Unlock()

	if c != nil {
		_ = c.Close()
	}

	err := m.Connect(ctx)

	m.mu.Lock()
	m.restarting = false
	m.mu.Unlock()
	return err
}

// Close ends the session with a clean close frame.
func (m *Manager) Close() error {
	m.mu.Lock()
	if m.closed {
		m.mu.Unlock()
		return nil
	}
	m.closed = true
	c := m.conn
	m.conn = nil
	m.mu.Unlock()

	if c == nil {
		return nil
	}
	return c.Close()
}

// Connected reports whether a connection is currently up.
func (m *Manager) Connected() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.conn != nil
}

func (m *Manager) teardown(c conn) {
	m.mu.Lock()
	if m.conn == c {
		m.conn = nil
	}
	m.mu.Unlock()
	_ = c.Close()
}

// readLoop decodes frames and dispatches events until the socket ends.
func (m *Manager) readLoop(c conn, ready *readyPromise) {
	decoder := protocol.NewDecoder(m.dialect)
	for {
		data, err := c.ReadMessage()
		if err != nil {
			ready.resolve(err)
			m.readLoopEnded(c, err)
			return
		}
		for _, ev := range decoder.Decode(data) {
			m.observe(ev, c, ready)
			protocol.Dispatch(ev, m.listener)
		}
	}
}

// observe handles session lifecycle events before they reach the
// listener.
func (m *Manager) observe(ev protocol.Event, c conn, ready *readyPromise) {
	switch e := ev.(type) {
	case protocol.SessionCreated:
		log.Info("session created", "session_id", e.SessionID, "model", e.Model)
		if err := c.WriteJSON(sessionUpdate(m.cfg)); err != nil {
			log.Error("send session.update", "error", err)
			ready.resolve(err)
			return
		}
		ready.resolve(nil)
	case protocol.SetupComplete:
		log.Info("session setup complete", "model", m.cfg.Model)
		ready.resolve(nil)
	case protocol.ServerError:
		ready.resolve(fmt.Errorf("server error: %s (%s)", e.Err.Message, e.Err.Code))
	}
}

func (m *Manager) readLoopEnded(c conn, err error) {
	m.mu.Lock()
	stale := m.conn != c
	suppressed := m.restarting || m.closed || stale
	if m.conn == c {
		m.conn = nil
	}
	cb := m.OnDisconnect
	m.mu.Unlock()

	if suppressed {
		log.Debug("read loop ended during shutdown", "error", err)
		return
	}
	log.Warn("session disconnected", "error", err)
	if cb != nil {
		cb(err)
	}
}

func (m *Manager) send(v any) error {
	m.mu.Lock()
	c := m.conn
	m.mu.Unlock()
	if c == nil {
		return ErrNotConnected
	}
	return c.WriteJSON(v)
}

// AppendAudio streams one chunk of microphone PCM to the server.
func (m *Manager) AppendAudio(pcm []byte) error {
	if m.dialect == protocol.DialectGemini {
		return m.send(geminiAudioChunk(pcm, m.cfg.InputSampleRate))
	}
	return m.send(map[string]any{
		"type":  "input_audio_buffer.append",
		"audio": base64.StdEncoding.EncodeToString(pcm),
	})
}

// CommitAudio finalizes the input buffer (manual turn mode).
func (m *Manager) CommitAudio() error {
	return m.send(map[string]any{"type": "input_audio_buffer.commit"})
}

// ClearAudio discards buffered input audio.
func (m *Manager) ClearAudio() error {
	return m.send(map[string]any{"type": "input_audio_buffer.clear"})
}

// CreateResponse asks the model to respond now.
func (m *Manager) CreateResponse() error {
	return m.send(map[string]any{"type": "response.create"})
}

// CancelResponse aborts the in-flight response.
func (m *Manager) CancelResponse() error {
	return m.send(map[string]any{"type": "response.cancel"})
}

// TruncateItem tells the server how much of an assistant item was
// actually heard, so the truncated remainder drops out of context.
func (m *Manager) TruncateItem(itemID string, audioEndMs int64) error {
	return m.send(map[string]any{
		"type":          "conversation.item.truncate",
		"item_id":       itemID,
		"content_index": 0,
		"audio_end_ms":  audioEndMs,
	})
}

// SendUserText injects a typed user message and requests a response.
func (m *Manager) SendUserText(text string) error {
	if m.dialect == protocol.DialectGemini {
		return m.send(map[string]any{
			"client_content": map[string]any{
				"turns": []map[string]any{{
					"role":  "user",
					"parts": []map[string]any{{"text": text}},
				}},
				"turn_complete": true,
			},
		})
	}
	err := m.send(map[string]any{
		"type": "conversation.item.create",
		"item": map[string]any{
			"type":    "message",
			"role":    "user",
			"content": []map[string]any{{"type": "input_text", "text": text}},
		},
	})
	if err != nil {
		return err
	}
	return m.CreateResponse()
}

// SendUserImage injects a captured JPEG frame as user input alongside
// an optional text prompt, then requests a response.
func (m *Manager) SendUserImage(jpeg []byte, prompt string) error {
	b64 := base64.StdEncoding.EncodeToString(jpeg)
	if m.dialect == protocol.DialectGemini {
		parts := []map[string]any{
			{"inlineData": map[string]any{"mimeType": "image/jpeg", "data": b64}},
		}
		if prompt != "" {
			parts = append(parts, map[string]any{"text": prompt})
		}
		return m.send(map[string]any{
			"client_content": map[string]any{
				"turns":         []map[string]any{{"role": "user", "parts": parts}},
				"turn_complete": true,
			},
		})
	}

	content := []map[string]any{
		{"type": "input_image", "image_url": "data:image/jpeg;base64," + b64},
	}
	if prompt != "" {
		content = append(content, map[string]any{"type": "input_text", "text": prompt})
	}
	err := m.send(map[string]any{
		"type": "conversation.item.create",
		"item": map[string]any{
			"type":    "message",
			"role":    "user",
			"content": content,
		},
	})
	if err != nil {
		return err
	}
	return m.CreateResponse()
}

// SendToolResults reports completed function calls. For the OpenAI
// dialect each result becomes a function_call_output item followed by
// one response request; the Gemini dialect continues on its own.
func (m *Manager) SendToolResults(results []ToolResult) error {
	if len(results) == 0 {
		return nil
	}
	if m.dialect == protocol.DialectGemini {
		return m.send(geminiToolResponse(results))
	}
	for _, r := range results {
		err := m.send(map[string]any{
			"type": "conversation.item.create",
			"item": map[string]any{
				"type":    "function_call_output",
				"call_id": r.CallID,
				"output":  r.Output,
			},
		})
		if err != nil {
			return err
		}
	}
	return m.CreateResponse()
}
