package session

import (
	"encoding/base64"
	"fmt"
	"time"
)

// Config carries everything needed to dial and configure a session.
type Config struct {
	Provider      Provider
	Model         string
	APIKey        string
	AzureEndpoint string

	Voice        string
	Speed        float64
	Temperature  float64
	Instructions string

	// Tools holds dialect-shaped tool definitions, built by the tools
	// package for the session's dialect.
	Tools []map[string]any

	InputSampleRate  int
	OutputSampleRate int

	TurnDetection   string // "server_vad" or "semantic_vad"
	VADThreshold    float64
	PrefixPadding   time.Duration
	SilenceDuration time.Duration
	Eagerness       string // semantic VAD only
	IdleTimeout     time.Duration
	NoiseReduction  string // "", "near_field" or "far_field"

	TranscriptionModel  string
	Language            string
	TranscriptionPrompt string
}

// Validate checks the fields the dial path depends on.
func (c Config) Validate() error {
	switch c.Provider {
	case ProviderOpenAI, ProviderXAI, ProviderGemini:
	case ProviderAzure:
		if c.AzureEndpoint == "" {
			return fmt.Errorf("azure endpoint required")
		}
	default:
		return fmt.Errorf("unknown provider %q", c.Provider)
	}
	if c.APIKey == "" {
		return fmt.Errorf("api key required")
	}
	if c.Model == "" {
		return fmt.Errorf("model required")
	}
	return nil
}

// sessionUpdate builds the session.update payload in the schema
// generation the model expects.
func sessionUpdate(cfg Config) map[string]any {
	if isGAModel(cfg.Provider, cfg.Model) {
		return gaSessionUpdate(cfg)
	}
	return legacySessionUpdate(cfg)
}

// gaSessionUpdate uses the GA schema: session type tag, output
// modalities, and audio configuration nested under audio.input and
// audio.output.
func gaSessionUpdate(cfg Config) map[string]any {
	input := map[string]any{
		"format": map[string]any{"type": "audio/pcm", "rate": cfg.InputSampleRate},
		"turn_detection": turnDetection(cfg),
	}
	if tr := transcription(cfg); tr != nil {
		input["transcription"] = tr
	}
	if cfg.NoiseReduction != "" {
		input["noise_reduction"] = map[string]any{"type": cfg.NoiseReduction}
	}

	output := map[string]any{
		"format": map[string]any{"type": "audio/pcm", "rate": cfg.OutputSampleRate},
		"voice":  cfg.Voice,
	}
	if cfg.Speed > 0 {
		output["speed"] = cfg.Speed
	}

	sess := map[string]any{
		"type":              "realtime",
		"model":             cfg.Model,
		"output_modalities": []string{"audio"},
		"audio":             map[string]any{"input": input, "output": output},
		"instructions":      cfg.Instructions,
	}
	if len(cfg.Tools) > 0 {
		sess["tools"] = cfg.Tools
		sess["tool_choice"] = "auto"
	}
	return map[string]any{"type": "session.update", "session": sess}
}

// legacySessionUpdate uses the flat beta schema still required by the
// preview models and Azure deployments.
func legacySessionUpdate(cfg Config) map[string]any {
	sess := map[string]any{
		"modalities":          []string{"text", "audio"},
		"instructions":        cfg.Instructions,
		"voice":               cfg.Voice,
		"input_audio_format":  "pcm16",
		"output_audio_format": "pcm16",
		"turn_detection":      turnDetection(cfg),
	}
	if tr := transcription(cfg); tr != nil {
		sess["input_audio_transcription"] = tr
	}
	if cfg.Temperature > 0 {
		sess["temperature"] = cfg.Temperature
	}
	if len(cfg.Tools) > 0 {
		sess["tools"] = cfg.Tools
		sess["tool_choice"] = "auto"
	}
	return map[string]any{"type": "session.update", "session": sess}
}

// transcription builds the user-speech transcription block shared by
// both schema generations. Nil when transcription is disabled.
func transcription(cfg Config) map[string]any {
	if cfg.TranscriptionModel == "" {
		return nil
	}
	tr := map[string]any{"model": cfg.TranscriptionModel}
	if cfg.Language != "" {
		tr["language"] = cfg.Language
	}
	if cfg.TranscriptionPrompt != "" {
		tr["prompt"] = cfg.TranscriptionPrompt
	}
	return tr
}

func turnDetection(cfg Config) map[string]any {
	if cfg.TurnDetection == "semantic_vad" {
		td := map[string]any{"type": "semantic_vad"}
		if cfg.Eagerness != "" {
			td["eagerness"] = cfg.Eagerness
		}
		return td
	}
	td := map[string]any{
		"type":                "server_vad",
		"threshold":           cfg.VADThreshold,
		"prefix_padding_ms":   int(cfg.PrefixPadding / time.Millisecond),
		"silence_duration_ms": int(cfg.SilenceDuration / time.Millisecond),
	}
	if cfg.IdleTimeout > 0 {
		td["idle_timeout_ms"] = int(cfg.IdleTimeout / time.Millisecond)
	}
	return td
}

// geminiSetup builds the BidiGenerateContent setup message.
func geminiSetup(cfg Config) map[string]any {
	gen := map[string]any{
		"responseModalities": []string{"AUDIO"},
	}
	if cfg.Voice != "" {
		gen["speechConfig"] = map[string]any{
			"voiceConfig": map[string]any{
				"prebuiltVoiceConfig": map[string]any{"voiceName": cfg.Voice},
			},
		}
	}
	if cfg.Temperature > 0 {
		gen["temperature"] = cfg.Temperature
	}

	setup := map[string]any{
		"model":                    "models/" + cfg.Model,
		"generationConfig":         gen,
		"inputAudioTranscription":  map[string]any{},
		"outputAudioTranscription": map[string]any{},
	}
	if cfg.Instructions != "" {
		setup["systemInstruction"] = map[string]any{
			"parts": []map[string]any{{"text": cfg.Instructions}},
		}
	}
	if len(cfg.Tools) > 0 {
		setup["tools"] = []map[string]any{{"functionDeclarations": cfg.Tools}}
	}
	return map[string]any{"setup": setup}
}

// geminiAudioChunk wraps PCM for the realtime input stream.
func geminiAudioChunk(pcm []byte, sampleRate int) map[string]any {
	return map[string]any{
		"realtime_input": map[string]any{
			"media_chunks": []map[string]any{{
				"mime_type": fmt.Sprintf("audio/pcm;rate=%d", sampleRate),
				"data":      base64.StdEncoding.EncodeToString(pcm),
			}},
		},
	}
}

// ToolResult is one completed function call to report back.
type ToolResult struct {
	CallID string
	Name   string
	Output string
}

// geminiToolResponse reports completed function calls. The model
// continues its turn on its own; no explicit response request follows.
func geminiToolResponse(results []ToolResult) map[string]any {
	responses := make([]map[string]any, 0, len(results))
	for _, r := range results {
		responses = append(responses, map[string]any{
			"id":       r.CallID,
			"name":     r.Name,
			"response": map[string]any{"output": r.Output},
		})
	}
	return map[string]any{
		"tool_response": map[string]any{"function_responses": responses},
	}
}
