// Package config provides runtime settings for go-pepper commands.
// Settings are read once at startup and consumed synchronously when a
// session configuration payload is built.
package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"
)

// Turn detection modes supported by the realtime protocols.
const (
	TurnDetectionServerVAD   = "server_vad"
	TurnDetectionSemanticVAD = "semantic_vad"
)

// Noise reduction modes ("off" disables the block entirely).
const (
	NoiseReductionOff      = "off"
	NoiseReductionNearText = "near_field"
	NoiseReductionFarText  = "far_field"
)

// Settings holds all tunable parameters for a conversation session.
// Parameters are organized by stage for clarity.
type Settings struct {
	// Provider selection
	Provider string // "openai", "azure", "xai", "gemini"
	Model    string

	// API keys and endpoints (provider-specific)
	OpenAIKey     string
	AzureKey      string
	AzureEndpoint string
	XAIKey        string
	GoogleKey     string
	YouTubeKey    string

	// Voice / generation settings
	Voice        string
	Speed        float64
	Temperature  float64
	SystemPrompt string

	// Tools enabled for the session (names from the tool registry).
	EnabledTools []string

	// Audio settings
	UseRealtimeAudioInput bool // mic audio streamed to the API (vs. external STT)
	MuteMicWhileSpeaking  bool // gate the mic during playback (no echo cancellation)
	InputSampleRate       int
	OutputSampleRate      int

	// Turn detection (only used when UseRealtimeAudioInput)
	TurnDetectionType string
	VADThreshold      float64
	PrefixPadding     time.Duration
	SilenceDuration   time.Duration
	IdleTimeout       time.Duration // 0 disables; server_vad only
	Eagerness         string        // semantic_vad only
	NoiseReduction    string

	// Transcription of user speech
	TranscriptionModel    string
	TranscriptionLanguage string
	TranscriptionPrompt   string

	// Operational
	Debug         bool
	DashboardAddr string // empty disables the web dashboard
}

// DefaultSettings returns Settings with sensible defaults for OpenAI.
func DefaultSettings() Settings {
	return Settings{
		Provider: "openai",
		Model:    "gpt-realtime",

		Voice:       "marin",
		Speed:       1.0,
		Temperature: 0.8,

		UseRealtimeAudioInput: true,
		InputSampleRate:       24000,
		OutputSampleRate:      24000,

		TurnDetectionType: TurnDetectionServerVAD,
		VADThreshold:      0.5,
		PrefixPadding:     300 * time.Millisecond,
		SilenceDuration:   500 * time.Millisecond,
		NoiseReduction:    NoiseReductionOff,

		TranscriptionModel: "whisper-1",

		DashboardAddr: ":8090",
	}
}

// FromEnv loads settings from environment variables on top of defaults.
func FromEnv() Settings {
	s := DefaultSettings()

	if v := os.Getenv("PEPPER_PROVIDER"); v != "" {
		s.Provider = strings.ToLower(v)
	}
	if v := os.Getenv("PEPPER_MODEL"); v != "" {
		s.Model = v
	}
	s.OpenAIKey = os.Getenv("OPENAI_API_KEY")
	s.AzureKey = os.Getenv("AZURE_OPENAI_KEY")
	s.AzureEndpoint = os.Getenv("AZURE_OPENAI_ENDPOINT")
	s.XAIKey = os.Getenv("XAI_API_KEY")
	s.GoogleKey = os.Getenv("GOOGLE_API_KEY")
	s.YouTubeKey = os.Getenv("YOUTUBE_API_KEY")

	if v := os.Getenv("PEPPER_VOICE"); v != "" {
		s.Voice = v
	}
	if v := envFloat("PEPPER_SPEED"); v != 0 {
		s.Speed = v
	}
	if v := envFloat("PEPPER_TEMPERATURE"); v != 0 {
		s.Temperature = v
	}
	if v := os.Getenv("PEPPER_SYSTEM_PROMPT"); v != "" {
		s.SystemPrompt = v
	}
	if v := os.Getenv("PEPPER_TOOLS"); v != "" {
		s.EnabledTools = splitList(v)
	}
	if v := os.Getenv("PEPPER_DASHBOARD_ADDR"); v != "" {
		s.DashboardAddr = v
	}
	if v := os.Getenv("PEPPER_MUTE_MIC_WHILE_SPEAKING"); v != "" {
		s.MuteMicWhileSpeaking = envTrue(v)
	}

	if v := os.Getenv("PEPPER_USE_MIC"); v != "" {
		s.UseRealtimeAudioInput = envTrue(v)
	}
	if v := envInt("PEPPER_INPUT_SAMPLE_RATE"); v > 0 {
		s.InputSampleRate = v
	}
	if v := envInt("PEPPER_OUTPUT_SAMPLE_RATE"); v > 0 {
		s.OutputSampleRate = v
	}

	if v := os.Getenv("PEPPER_TURN_DETECTION"); v != "" {
		s.TurnDetectionType = strings.ToLower(v)
	}
	if v := envFloat("PEPPER_VAD_THRESHOLD"); v != 0 {
		s.VADThreshold = v
	}
	if v := envInt("PEPPER_PREFIX_PADDING_MS"); v > 0 {
		s.PrefixPadding = time.Duration(v) * time.Millisecond
	}
	if v := envInt("PEPPER_SILENCE_DURATION_MS"); v > 0 {
		s.SilenceDuration = time.Duration(v) * time.Millisecond
	}
	if v := envInt("PEPPER_IDLE_TIMEOUT_MS"); v > 0 {
		s.IdleTimeout = time.Duration(v) * time.Millisecond
	}
	if v := os.Getenv("PEPPER_EAGERNESS"); v != "" {
		s.Eagerness = strings.ToLower(v)
	}
	if v := os.Getenv("PEPPER_NOISE_REDUCTION"); v != "" {
		s.NoiseReduction = strings.ToLower(v)
	}

	if v := os.Getenv("PEPPER_TRANSCRIPTION_MODEL"); v != "" {
		s.TranscriptionModel = v
	}
	if v := os.Getenv("PEPPER_TRANSCRIPTION_LANGUAGE"); v != "" {
		s.TranscriptionLanguage = v
	}
	if v := os.Getenv("PEPPER_TRANSCRIPTION_PROMPT"); v != "" {
		s.TranscriptionPrompt = v
	}
	return s
}

// Validate checks the settings for errors.
func (s Settings) Validate() error {
	switch s.Provider {
	case "openai", "azure", "xai", "gemini":
	default:
		return fmt.Errorf("config: unknown provider %q", s.Provider)
	}
	if s.Provider == "azure" && s.AzureEndpoint == "" {
		return errors.New("config: azure provider requires AZURE_OPENAI_ENDPOINT")
	}
	if s.VADThreshold < 0 || s.VADThreshold > 1 {
		return fmt.Errorf("config: vad threshold %v out of range [0,1]", s.VADThreshold)
	}
	if s.Temperature < 0 || s.Temperature > 2 {
		return fmt.Errorf("config: temperature %v out of range [0,2]", s.Temperature)
	}
	if s.Speed <= 0 {
		return fmt.Errorf("config: speed %v must be positive", s.Speed)
	}
	if s.TurnDetectionType != TurnDetectionServerVAD && s.TurnDetectionType != TurnDetectionSemanticVAD {
		return fmt.Errorf("config: unknown turn detection type %q", s.TurnDetectionType)
	}
	return nil
}

// ToolEnabled reports whether the named tool is enabled.
func (s Settings) ToolEnabled(name string) bool {
	for _, t := range s.EnabledTools {
		if t == name {
			return true
		}
	}
	return false
}

// WithProvider returns a copy with the provider set.
func (s Settings) WithProvider(provider string) Settings {
	s.Provider = strings.ToLower(provider)
	return s
}

// WithModel returns a copy with the model set.
func (s Settings) WithModel(model string) Settings {
	s.Model = model
	return s
}

func envFloat(key string) float64 {
	v := os.Getenv(key)
	if v == "" {
		return 0
	}
	f, err := strconv.ParseFloat(v, 64)
	if err != nil {
		return 0
	}
	return f
}

func envInt(key string) int {
	v := os.Getenv(key)
	if v == "" {
		return 0
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return 0
	}
	return n
}

func envTrue(v string) bool {
	return v == "1" || strings.EqualFold(v, "true")
}

func splitList(v string) []string {
	parts := strings.Split(v, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, p)
		}
	}
	return out
}
