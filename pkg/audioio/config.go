package audioio

import (
	"fmt"
	"time"
)

// Backend selects the capture implementation.
type Backend string

const (
	// BackendAuto picks exec on real systems.
	BackendAuto Backend = "auto"
	// BackendExec captures through an external recorder process.
	BackendExec Backend = "exec"
	// BackendMock generates synthetic audio for tests.
	BackendMock Backend = "mock"
)

// Config holds capture configuration.
type Config struct {
	Backend Backend `json:"backend"`

	// SampleRate in Hz; the realtime input stream expects 24000 for
	// the OpenAI dialect and 16000 for the Google dialect.
	SampleRate int `json:"sample_rate"`

	// Channels of interleaved audio; capture is mono in practice.
	Channels int `json:"channels"`

	// BufferDuration is the chunk size handed to readers.
	BufferDuration time.Duration `json:"buffer_duration"`

	// Device is the recorder's device argument (e.g. "default",
	// "plughw:1,0"). Empty uses the system default.
	Device string `json:"device"`
}

// DefaultConfig returns mono 24 kHz capture in 20 ms chunks.
func DefaultConfig() Config {
	return Config{
		Backend:        BackendAuto,
		SampleRate:     24000,
		Channels:       1,
		BufferDuration: 20 * time.Millisecond,
	}
}

// Validate checks the configuration.
func (c *Config) Validate() error {
	if c.SampleRate <= 0 {
		return fmt.Errorf("sample_rate must be positive, got %d", c.SampleRate)
	}
	if c.Channels <= 0 {
		return fmt.Errorf("channels must be positive, got %d", c.Channels)
	}
	if c.BufferDuration <= 0 {
		return fmt.Errorf("buffer_duration must be positive, got %v", c.BufferDuration)
	}
	return nil
}

// BufferSize returns samples per chunk per channel.
func (c *Config) BufferSize() int {
	return int(float64(c.SampleRate) * c.BufferDuration.Seconds())
}

// BufferBytes returns the chunk size in bytes.
func (c *Config) BufferBytes() int {
	return c.BufferSize() * c.Channels * 2
}

// NewSource creates a capture source for the configured backend.
func NewSource(cfg Config) (Source, error) {
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}
	backend := cfg.Backend
	if backend == BackendAuto {
		backend = BackendExec
	}
	switch backend {
	case BackendExec:
		return newExecSource(cfg), nil
	case BackendMock:
		return NewMockSource(cfg), nil
	default:
		return nil, fmt.Errorf("unsupported backend: %s", backend)
	}
}
