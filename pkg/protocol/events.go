// Package protocol decodes realtime API wire frames into typed events.
// Two vendor dialects are supported: the OpenAI-style event-type-tagged
// schema (OpenAI, Azure OpenAI, x.ai) and the Google Live bidirectional
// streaming schema, which has no discriminator field and is recognized
// by key presence instead.
package protocol

import "encoding/json"

// Dialect identifies which vendor wire schema the session speaks.
type Dialect int

const (
	// DialectOpenAI covers OpenAI, Azure OpenAI and x.ai realtime schemas.
	DialectOpenAI Dialect = iota

	// DialectGemini covers the Google Live bidirectional streaming schema.
	DialectGemini
)

// Event is one decoded wire event. The set of implementations in this
// package is closed; frames that do not map to a known event decode to
// Unknown, which carries the raw payload for forward compatibility.
type Event interface {
	event()
}

// SessionCreated signals the server accepted the connection.
type SessionCreated struct {
	SessionID string
	Model     string
	Voice     string
}

// SessionUpdated confirms a session configuration took effect.
type SessionUpdated struct {
	Session json.RawMessage
}

// ResponseCreated signals the model started generating a response.
type ResponseCreated struct {
	ResponseID string
}

// ResponseBoundary is synthesized by the decoder whenever a new response
// identifier is first observed, before the event that introduced it is
// delivered, so per-turn state can be reset early.
type ResponseBoundary struct {
	ResponseID string
}

// AudioTranscriptDelta carries a streamed fragment of the assistant's
// spoken transcript.
type AudioTranscriptDelta struct {
	Delta      string
	ResponseID string
}

// AudioTranscriptDone carries the complete assistant transcript.
type AudioTranscriptDone struct {
	Transcript string
	ResponseID string
}

// AudioDelta carries decoded PCM16 audio for playback.
type AudioDelta struct {
	PCM        []byte
	ResponseID string
}

// AudioDone signals the response's audio stream is complete.
type AudioDone struct{}

// ResponseDone carries the final response with its output items.
type ResponseDone struct {
	Response Response
}

// AssistantItemAdded signals a new assistant message item, whose id is
// needed later for truncation on barge-in.
type AssistantItemAdded struct {
	ItemID string
}

// UserSpeechStarted signals server-side VAD detected user speech.
type UserSpeechStarted struct {
	ItemID string
}

// UserSpeechStopped signals server-side VAD detected end of user speech.
type UserSpeechStopped struct {
	ItemID string
}

// AudioBufferCommitted signals the server accepted a complete user
// utterance and will generate a response.
type AudioBufferCommitted struct {
	ItemID string
}

// UserItemCreated signals a user conversation item was registered.
type UserItemCreated struct {
	ItemID string
	Item   json.RawMessage
}

// UserTranscriptCompleted carries the transcription of user speech.
type UserTranscriptCompleted struct {
	ItemID     string
	Transcript string
}

// UserTranscriptDelta carries one fragment of an in-progress user
// speech transcription (Google dialect, which streams the transcript
// incrementally and assigns no item id).
type UserTranscriptDelta struct {
	Delta string
}

// UserTranscriptFailed signals user speech transcription failed.
type UserTranscriptFailed struct {
	ItemID string
	Err    *ErrorDetail
}

// ServerError carries an error reported by the server.
type ServerError struct {
	Err ErrorDetail
}

// ToolCall carries one or more function calls (Google dialect; the
// OpenAI dialect delivers function calls inside ResponseDone output).
type ToolCall struct {
	Calls []FunctionCall
}

// ToolCallCancellation asks the client to abandon in-flight tool calls
// (Google dialect, issued after an implicit barge-in).
type ToolCallCancellation struct {
	IDs []string
}

// Interrupted signals the server stopped generation because the user
// spoke (Google dialect implicit barge-in).
type Interrupted struct{}

// TurnComplete signals the model finished its turn (Google dialect).
type TurnComplete struct {
	ResponseID string
}

// SetupComplete confirms session setup (Google dialect).
type SetupComplete struct{}

// Unknown carries a frame the decoder could not map, including
// unparseable input (Type "parse_error").
type Unknown struct {
	Type string
	Raw  json.RawMessage
}

func (SessionCreated) event()          {}
func (SessionUpdated) event()          {}
func (ResponseCreated) event()         {}
func (ResponseBoundary) event()        {}
func (AudioTranscriptDelta) event()    {}
func (AudioTranscriptDone) event()     {}
func (AudioDelta) event()              {}
func (AudioDone) event()               {}
func (ResponseDone) event()            {}
func (AssistantItemAdded) event()      {}
func (UserSpeechStarted) event()       {}
func (UserSpeechStopped) event()       {}
func (AudioBufferCommitted) event()    {}
func (UserItemCreated) event()         {}
func (UserTranscriptCompleted) event() {}
func (UserTranscriptDelta) event()     {}
func (UserTranscriptFailed) event()    {}
func (ServerError) event()             {}
func (ToolCall) event()                {}
func (ToolCallCancellation) event()    {}
func (Interrupted) event()             {}
func (TurnComplete) event()            {}
func (SetupComplete) event()           {}
func (Unknown) event()                 {}

// Response is the final response object of the OpenAI dialect.
type Response struct {
	ID     string `json:"id"`
	Status string `json:"status"`
	Output []Item `json:"output"`
}

// Item is one output or conversation item.
type Item struct {
	ID      string    `json:"id"`
	Type    string    `json:"type"`
	Role    string    `json:"role"`
	Content []Content `json:"content"`

	// Function call fields
	Name      string `json:"name"`
	CallID    string `json:"call_id"`
	Arguments string `json:"arguments"`
}

// Content is one content part of an item.
type Content struct {
	Type string `json:"type"`
	Text string `json:"text"`
}

// ErrorDetail describes a server-reported error.
type ErrorDetail struct {
	Type    string `json:"type"`
	Code    string `json:"code"`
	Message string `json:"message"`
}

// FunctionCall is a single tool invocation request.
type FunctionCall struct {
	ID   string
	Name string
	Args map[string]any
}
