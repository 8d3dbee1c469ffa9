package protocol

import (
	"encoding/base64"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/pepperkit/go-pepper/internal/log"
)

// geminiFrame mirrors the Google Live server message shape. There is no
// type discriminator; exactly one of the top-level keys is set per
// frame, so decoding keys off presence.
type geminiFrame struct {
	SetupComplete *struct{} `json:"setupComplete"`

	ServerContent *struct {
		ModelTurn *struct {
			Parts []geminiPart `json:"parts"`
		} `json:"modelTurn"`
		InputTranscription *struct {
			Text string `json:"text"`
		} `json:"inputTranscription"`
		OutputTranscription *struct {
			Text string `json:"text"`
		} `json:"outputTranscription"`
		Interrupted  bool `json:"interrupted"`
		TurnComplete bool `json:"turnComplete"`
	} `json:"serverContent"`

	ToolCall *struct {
		FunctionCalls []struct {
			ID   string         `json:"id"`
			Name string         `json:"name"`
			Args map[string]any `json:"args"`
		} `json:"functionCalls"`
	} `json:"toolCall"`

	ToolCallCancellation *struct {
		IDs []string `json:"ids"`
	} `json:"toolCallCancellation"`

	UsageMetadata json.RawMessage `json:"usageMetadata"`
}

type geminiPart struct {
	Text       string `json:"text"`
	InlineData *struct {
		MimeType string `json:"mimeType"`
		Data     string `json:"data"`
	} `json:"inlineData"`
}

func (d *Decoder) decodeGemini(data []byte) []Event {
	var f geminiFrame
	if err := json.Unmarshal(data, &f); err != nil {
		log.Debug("undecodable frame", "error", err)
		return []Event{Unknown{Type: "parse_error", Raw: append(json.RawMessage(nil), data...)}}
	}

	switch {
	case f.SetupComplete != nil:
		return []Event{SetupComplete{}}

	case f.ToolCall != nil:
		calls := make([]FunctionCall, 0, len(f.ToolCall.FunctionCalls))
		for _, fc := range f.ToolCall.FunctionCalls {
			calls = append(calls, FunctionCall{ID: fc.ID, Name: fc.Name, Args: fc.Args})
		}
		return []Event{ToolCall{Calls: calls}}

	case f.ToolCallCancellation != nil:
		return []Event{ToolCallCancellation{IDs: f.ToolCallCancellation.IDs}}

	case f.ServerContent != nil:
		return d.decodeGeminiContent(&f)

	case f.UsageMetadata != nil:
		return nil

	default:
		return []Event{Unknown{Type: "gemini_unknown", Raw: append(json.RawMessage(nil), data...)}}
	}
}

func (d *Decoder) decodeGeminiContent(f *geminiFrame) []Event {
	sc := f.ServerContent
	var out []Event

	// The server assigns no response ids, so each model turn gets a
	// synthetic one, opened on the first output after the previous turn
	// closed via turnComplete or interrupted.
	if sc.ModelTurn != nil || sc.OutputTranscription != nil {
		if d.lastResponseID == "" {
			d.turnSeq++
			d.lastResponseID = fmt.Sprintf("turn_%d", d.turnSeq)
			out = append(out, ResponseBoundary{ResponseID: d.lastResponseID})
			out = append(out, ResponseCreated{ResponseID: d.lastResponseID})
		}
	}
	id := d.lastResponseID

	if sc.InputTranscription != nil {
		out = append(out, UserTranscriptDelta{Delta: sc.InputTranscription.Text})
	}
	if sc.OutputTranscription != nil {
		out = append(out, AudioTranscriptDelta{Delta: sc.OutputTranscription.Text, ResponseID: id})
	}

	if sc.ModelTurn != nil {
		for _, p := range sc.ModelTurn.Parts {
			if p.InlineData != nil && strings.HasPrefix(p.InlineData.MimeType, "audio/pcm") {
				pcm, err := base64.StdEncoding.DecodeString(p.InlineData.Data)
				if err != nil {
					log.Warn("dropping audio chunk with invalid base64", "error", err)
					continue
				}
				out = append(out, AudioDelta{PCM: pcm, ResponseID: id})
			}
			if p.Text != "" {
				out = append(out, AudioTranscriptDelta{Delta: p.Text, ResponseID: id})
			}
		}
	}

	if sc.Interrupted {
		out = append(out, Interrupted{})
		d.lastResponseID = ""
	}
	if sc.TurnComplete {
		out = append(out, AudioDone{}, TurnComplete{ResponseID: id})
		d.lastResponseID = ""
	}
	return out
}
