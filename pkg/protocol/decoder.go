package protocol

import (
	"encoding/base64"
	"encoding/json"

	"github.com/pepperkit/go-pepper/internal/log"
)

// Decoder turns raw wire frames into typed events. It tracks the current
// response id so it can synthesize a ResponseBoundary the first time a
// new id appears on any response-scoped event. A Decoder is not safe for
// concurrent use; the session read loop owns it.
type Decoder struct {
	dialect Dialect

	lastResponseID string

	// turnSeq numbers synthetic response ids for the Google dialect,
	// which has no server-assigned response identifiers.
	turnSeq int
}

// NewDecoder returns a decoder for the given dialect.
func NewDecoder(d Dialect) *Decoder {
	return &Decoder{dialect: d}
}

// Decode parses one wire frame. A frame may yield zero events (types
// that only matter for debugging), one event, or several (a synthetic
// boundary preceding the event that introduced a new response id, or a
// Google frame carrying both audio and transcript parts).
func (d *Decoder) Decode(data []byte) []Event {
	if d.dialect == DialectGemini {
		return d.decodeGemini(data)
	}
	return d.decodeOpenAI(data)
}

// openAIFrame is the superset of fields used across the event types we
// care about, for both the beta and GA schema generations.
type openAIFrame struct {
	Type string `json:"type"`

	Session struct {
		ID    string `json:"id"`
		Model string `json:"model"`
		Voice string `json:"voice"`
	} `json:"session"`

	ResponseID string `json:"response_id"`
	ItemID     string `json:"item_id"`
	Delta      string `json:"delta"`
	Transcript string `json:"transcript"`
	Audio      string `json:"audio"`

	Response Response        `json:"response"`
	Item     json.RawMessage `json:"item"`

	Error *ErrorDetail `json:"error"`
}

func (d *Decoder) decodeOpenAI(data []byte) []Event {
	var f openAIFrame
	if err := json.Unmarshal(data, &f); err != nil {
		log.Debug("undecodable frame", "error", err)
		return []Event{Unknown{Type: "parse_error", Raw: append(json.RawMessage(nil), data...)}}
	}

	switch f.Type {
	case "session.created":
		return []Event{SessionCreated{SessionID: f.Session.ID, Model: f.Session.Model, Voice: f.Session.Voice}}

	case "session.updated":
		raw := rawField(data, "session")
		return []Event{SessionUpdated{Session: raw}}

	case "response.created":
		id := f.Response.ID
		return d.withBoundary(id, ResponseCreated{ResponseID: id})

	// Assistant transcript. The GA schema renamed audio_transcript to
	// output_audio_transcript; both generations stream deltas.
	case "response.audio_transcript.delta", "response.output_audio_transcript.delta":
		return d.withBoundary(f.ResponseID, AudioTranscriptDelta{Delta: f.Delta, ResponseID: f.ResponseID})

	case "response.audio_transcript.done", "response.output_audio_transcript.done":
		return d.withBoundary(f.ResponseID, AudioTranscriptDone{Transcript: f.Transcript, ResponseID: f.ResponseID})

	// Assistant audio, beta and GA names. The base64 payload is decoded
	// eagerly; a chunk that fails to decode is dropped with a log line
	// rather than surfaced, since one bad chunk should not end the turn.
	case "response.audio.delta", "response.output_audio.delta":
		pcm, err := base64.StdEncoding.DecodeString(f.Delta)
		if err != nil {
			log.Warn("dropping audio chunk with invalid base64", "error", err)
			return d.withBoundary(f.ResponseID, nil)
		}
		return d.withBoundary(f.ResponseID, AudioDelta{PCM: pcm, ResponseID: f.ResponseID})

	case "response.audio.done", "response.output_audio.done":
		return []Event{AudioDone{}}

	case "response.done":
		return d.withBoundary(f.Response.ID, ResponseDone{Response: f.Response})

	case "response.output_item.added":
		var item Item
		if len(f.Item) > 0 {
			_ = json.Unmarshal(f.Item, &item)
		}
		return []Event{AssistantItemAdded{ItemID: item.ID}}

	case "input_audio_buffer.speech_started":
		return []Event{UserSpeechStarted{ItemID: f.ItemID}}

	case "input_audio_buffer.speech_stopped":
		return []Event{UserSpeechStopped{ItemID: f.ItemID}}

	case "input_audio_buffer.committed":
		return []Event{AudioBufferCommitted{ItemID: f.ItemID}}

	case "conversation.item.created", "conversation.item.added":
		var item Item
		if len(f.Item) > 0 {
			_ = json.Unmarshal(f.Item, &item)
		}
		if item.Role != "user" {
			return nil
		}
		return []Event{UserItemCreated{ItemID: item.ID, Item: f.Item}}

	case "conversation.item.input_audio_transcription.completed":
		return []Event{UserTranscriptCompleted{ItemID: f.ItemID, Transcript: f.Transcript}}

	case "conversation.item.input_audio_transcription.failed":
		return []Event{UserTranscriptFailed{ItemID: f.ItemID, Err: f.Error}}

	case "error":
		var detail ErrorDetail
		if f.Error != nil {
			detail = *f.Error
		}
		return []Event{ServerError{Err: detail}}

	// Progress and bookkeeping events nothing downstream consumes.
	case "conversation.item.truncated",
		"response.output_item.done",
		"response.content_part.added",
		"response.content_part.done",
		"response.function_call_arguments.delta",
		"response.function_call_arguments.done",
		"input_audio_buffer.cleared",
		"rate_limits.updated":
		return nil

	default:
		log.Debug("unhandled event type", "type", f.Type)
		return []Event{Unknown{Type: f.Type, Raw: append(json.RawMessage(nil), data...)}}
	}
}

// withBoundary prepends a synthetic ResponseBoundary when id differs
// from the last response id seen. ev may be nil when the carrying event
// was dropped but the boundary must still fire.
func (d *Decoder) withBoundary(id string, ev Event) []Event {
	var out []Event
	if id != "" && id != d.lastResponseID {
		d.lastResponseID = id
		out = append(out, ResponseBoundary{ResponseID: id})
	}
	if ev != nil {
		out = append(out, ev)
	}
	return out
}

// rawField extracts one top-level field of a JSON object without
// re-marshalling, preserving the server's exact bytes.
func rawField(data []byte, key string) json.RawMessage {
	var m map[string]json.RawMessage
	if err := json.Unmarshal(data, &m); err != nil {
		return nil
	}
	return m[key]
}
