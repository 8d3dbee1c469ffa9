package session

import (
	"context"
	"encoding/json"
	"io"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/pepperkit/go-pepper/pkg/protocol"
)

type fakeConn struct {
	mu       sync.Mutex
	sent     []map[string]any
	incoming chan []byte
	done     chan struct{}
	once     sync.Once
}

var _ conn = (*fakeConn)(nil)

func newFakeConn() *fakeConn {
	return &fakeConn{incoming: make(chan []byte, 16), done: make(chan struct{})}
}

func (c *fakeConn) ReadMessage() ([]byte, error) {
	select {
	case data := <-c.incoming:
		return data, nil
	case <-c.done:
		return nil, io.EOF
	}
}

func (c *fakeConn) WriteJSON(v any) error {
	data, err := json.Marshal(v)
	if err != nil {
		return err
	}
	var m map[string]any
	if err := json.Unmarshal(data, &m); err != nil {
		return err
	}
	c.mu.Lock()
	c.sent = append(c.sent, m)
	c.mu.Unlock()
	return nil
}

func (c *fakeConn) Close() error {
	c.once.Do(func() { close(c.done) })
	return nil
}

func (c *fakeConn) sentTypes() []string {
	c.mu.Lock()
	defer c.mu.Unlock()
	var types []string
	for _, m := range c.sent {
		if t, ok := m["type"].(string); ok {
			types = append(types, t)
		}
	}
	return types
}

func testConfig(p Provider) Config {
	return Config{
		Provider:         p,
		Model:            "gpt-realtime",
		APIKey:           "test-key",
		AzureEndpoint:    "https://example.openai.azure.com",
		Voice:            "marin",
		Instructions:     "be brief",
		InputSampleRate:  24000,
		OutputSampleRate: 24000,
		TurnDetection:    "server_vad",
		VADThreshold:     0.5,
		PrefixPadding:    300 * time.Millisecond,
		SilenceDuration:  500 * time.Millisecond,
	}
}

func newTestManager(t *testing.T, cfg Config) (*Manager, *fakeConn) {
	t.Helper()
	fc := newFakeConn()
	m, err := NewManager(cfg, &protocol.BaseListener{})
	if err != nil {
		t.Fatalf("NewManager: %v", err)
	}
	m.dial = func() (conn, error) { return fc, nil }
	return m, fc
}

func TestEndpointMatrix(t *testing.T) {
	tests := []struct {
		name       string
		cfg        Config
		wantURL    string
		wantHeader string
		wantValue  string
	}{
		{
			name:       "openai GA",
			cfg:        Config{Provider: ProviderOpenAI, Model: "gpt-realtime", APIKey: "k"},
			wantURL:    "wss://api.openai.com/v1/realtime?model=gpt-realtime",
			wantHeader: "Authorization",
			wantValue:  "Bearer k",
		},
		{
			name:       "azure",
			cfg:        Config{Provider: ProviderAzure, Model: "gpt-4o-realtime-preview", APIKey: "k", AzureEndpoint: "https://res.openai.azure.com"},
			wantURL:    "wss://res.openai.azure.com/openai/realtime?api-version=2024-10-01-preview&deployment=gpt-4o-realtime-preview",
			wantHeader: "api-key",
			wantValue:  "k",
		},
		{
			name:       "xai",
			cfg:        Config{Provider: ProviderXAI, Model: "grok-4-realtime", APIKey: "k"},
			wantURL:    "wss://api.x.ai/v1/realtime?model=grok-4-realtime",
			wantHeader: "Authorization",
			wantValue:  "Bearer k",
		},
		{
			name:    "gemini",
			cfg:     Config{Provider: ProviderGemini, Model: "gemini-2.0-flash-live-001", APIKey: "k"},
			wantURL: geminiLiveURL + "?key=k",
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			u, h, err := endpoint(tt.cfg)
			if err != nil {
				t.Fatalf("endpoint: %v", err)
			}
			if u != tt.wantURL {
				t.Errorf("url = %q, want %q", u, tt.wantURL)
			}
			if tt.wantHeader != "" && h.Get(tt.wantHeader) != tt.wantValue {
				t.Errorf("header %s = %q, want %q", tt.wantHeader, h.Get(tt.wantHeader), tt.wantValue)
			}
		})
	}
}

func TestBetaHeaderOnlyForPreviewModels(t *testing.T) {
	_, h, _ := endpoint(Config{Provider: ProviderOpenAI, Model: "gpt-4o-realtime-preview", APIKey: "k"})
	if h.Get("OpenAI-Beta") != "realtime=v1" {
		t.Error("preview model missing beta header")
	}
	_, h, _ = endpoint(Config{Provider: ProviderOpenAI, Model: "gpt-realtime", APIKey: "k"})
	if h.Get("OpenAI-Beta") != "" {
		t.Error("GA model should not carry the beta header")
	}
}

func TestSessionUpdateSchemaGenerations(t *testing.T) {
	ga := sessionUpdate(testConfig(ProviderOpenAI))
	sess := ga["session"].(map[string]any)
	if sess["type"] != "realtime" {
		t.Error("GA payload missing session type tag")
	}
	if _, ok := sess["audio"]; !ok {
		t.Error("GA payload missing nested audio config")
	}
	if _, ok := sess["input_audio_format"]; ok {
		t.Error("GA payload must not use the flat audio format field")
	}

	cfg := testConfig(ProviderAzure)
	cfg.Model = "gpt-4o-realtime-preview"
	legacy := sessionUpdate(cfg)
	sess = legacy["session"].(map[string]any)
	if sess["input_audio_format"] != "pcm16" {
		t.Error("legacy payload missing flat audio format")
	}
	if _, ok := sess["audio"]; ok {
		t.Error("legacy payload must not nest audio config")
	}
	td := sess["turn_detection"].(map[string]any)
	if td["type"] != "server_vad" || td["prefix_padding_ms"] != 300 {
		t.Errorf("unexpected turn detection: %v", td)
	}
}

func TestTranscriptionPromptInBothSchemas(t *testing.T) {
	cfg := testConfig(ProviderOpenAI)
	cfg.TranscriptionModel = "whisper-1"
	cfg.Language = "en"
	cfg.TranscriptionPrompt = "robot vocabulary"

	ga := sessionUpdate(cfg)
	input := ga["session"].(map[string]any)["audio"].(map[string]any)["input"].(map[string]any)
	tr := input["transcription"].(map[string]any)
	if tr["model"] != "whisper-1" || tr["language"] != "en" || tr["prompt"] != "robot vocabulary" {
		t.Errorf("GA transcription = %v", tr)
	}

	cfg.Model = "gpt-4o-realtime-preview"
	legacy := sessionUpdate(cfg)
	tr = legacy["session"].(map[string]any)["input_audio_transcription"].(map[string]any)
	if tr["model"] != "whisper-1" || tr["language"] != "en" || tr["prompt"] != "robot vocabulary" {
		t.Errorf("legacy transcription = %v", tr)
	}
}

func TestSemanticVADTurnDetection(t *testing.T) {
	cfg := testConfig(ProviderOpenAI)
	cfg.TurnDetection = "semantic_vad"
	cfg.Eagerness = "high"
	td := turnDetection(cfg)
	if td["type"] != "semantic_vad" || td["eagerness"] != "high" {
		t.Errorf("unexpected turn detection: %v", td)
	}
	if _, ok := td["threshold"]; ok {
		t.Error("semantic vad must not carry a threshold")
	}
}

func TestConnectOpenAISendsSessionUpdate(t *testing.T) {
	m, fc := newTestManager(t, testConfig(ProviderOpenAI))

	fc.incoming <- []byte(`{"type":"session.created","session":{"id":"sess_1","model":"gpt-realtime"}}`)

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	if err := m.Connect(ctx); err != nil {
		t.Fatalf("Connect: %v", err)
	}
	defer m.Close()

	types := fc.sentTypes()
	if len(types) != 1 || types[0] != "session.update" {
		t.Errorf("sent = %v, want [session.update]", types)
	}
}

func TestConnectGeminiSendsSetup(t *testing.T) {
	cfg := testConfig(ProviderGemini)
	cfg.Model = "gemini-2.0-flash-live-001"
	m, fc := newTestManager(t, cfg)

	fc.incoming <- []byte(`{"setupComplete":{}}`)

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	if err := m.Connect(ctx); err != nil {
		t.Fatalf("Connect: %v", err)
	}
	defer m.Close()

	fc.mu.Lock()
	defer fc.mu.Unlock()
	if len(fc.sent) != 1 {
		t.Fatalf("sent %d messages, want 1", len(fc.sent))
	}
	setup, ok := fc.sent[0]["setup"].(map[string]any)
	if !ok {
		t.Fatalf("first message is not a setup: %v", fc.sent[0])
	}
	if setup["model"] != "models/gemini-2.0-flash-live-001" {
		t.Errorf("model = %v", setup["model"])
	}
}

func TestCloseSuppressesDisconnect(t *testing.T) {
	m, fc := newTestManager(t, testConfig(ProviderOpenAI))

	disconnects := make(chan error, 1)
	m.OnDisconnect = func(err error) { disconnects <- err }

	fc.incoming <- []byte(`{"type":"session.created","session":{"id":"s"}}`)
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	if err := m.Connect(ctx); err != nil {
		t.Fatalf("Connect: %v", err)
	}

	m.Close()
	select {
	case err := <-disconnects:
		t.Errorf("OnDisconnect fired after Close: %v", err)
	case <-time.After(100 * time.Millisecond):
	}
}

func TestSendBeforeConnect(t *testing.T) {
	m, _ := newTestManager(t, testConfig(ProviderOpenAI))
	if err := m.CreateResponse(); err != ErrNotConnected {
		t.Errorf("err = %v, want ErrNotConnected", err)
	}
}

func TestTruncateItemPayload(t *testing.T) {
	m, fc := newTestManager(t, testConfig(ProviderOpenAI))
	fc.incoming <- []byte(`{"type":"session.created","session":{"id":"s"}}`)
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	if err := m.Connect(ctx); err != nil {
		t.Fatalf("Connect: %v", err)
	}
	defer m.Close()

	if err := m.TruncateItem("item_5", 1200); err != nil {
		t.Fatalf("TruncateItem: %v", err)
	}
	fc.mu.Lock()
	defer fc.mu.Unlock()
	last := fc.sent[len(fc.sent)-1]
	if last["type"] != "conversation.item.truncate" {
		t.Fatalf("type = %v", last["type"])
	}
	if last["item_id"] != "item_5" || last["audio_end_ms"] != float64(1200) || last["content_index"] != float64(0) {
		t.Errorf("unexpected truncate payload: %v", last)
	}
}

func TestSendToolResultsOpenAI(t *testing.T) {
	m, fc := newTestManager(t, testConfig(ProviderOpenAI))
	fc.incoming <- []byte(`{"type":"session.created","session":{"id":"s"}}`)
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	if err := m.Connect(ctx); err != nil {
		t.Fatalf("Connect: %v", err)
	}
	defer m.Close()

	err := m.SendToolResults([]ToolResult{
		{CallID: "call_1", Name: "get_weather", Output: `{"temp":21}`},
	})
	if err != nil {
		t.Fatalf("SendToolResults: %v", err)
	}

	types := fc.sentTypes()
	want := "session.update,conversation.item.create,response.create"
	if got := strings.Join(types, ","); got != want {
		t.Errorf("sent = %v, want %v", got, want)
	}
}

func TestSendUserImageDataURL(t *testing.T) {
	m, fc := newTestManager(t, testConfig(ProviderOpenAI))
	fc.incoming <- []byte(`{"type":"session.created","session":{"id":"s"}}`)
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	if err := m.Connect(ctx); err != nil {
		t.Fatalf("Connect: %v", err)
	}
	defer m.Close()

	if err := m.SendUserImage([]byte{0xFF, 0xD8}, "what do you see"); err != nil {
		t.Fatalf("SendUserImage: %v", err)
	}

	fc.mu.Lock()
	defer fc.mu.Unlock()
	item := fc.sent[1]["item"].(map[string]any)
	content := item["content"].([]any)
	img := content[0].(map[string]any)
	url, _ := img["image_url"].(string)
	if !strings.HasPrefix(url, "data:image/jpeg;base64,") {
		t.Errorf("image_url = %q, want data URL", url)
	}
}
