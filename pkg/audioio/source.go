// Package audioio captures microphone audio for the realtime input
// stream. Two backends exist: an external-recorder pipeline for real
// hardware and a synthetic mock for tests and headless development.
package audioio

import (
	"context"
	"io"
)

// AudioChunk is one buffer of captured PCM16 audio.
type AudioChunk struct {
	// Samples contains little-endian PCM16 samples.
	Samples []int16

	// SampleRate is the sample rate of this chunk.
	SampleRate int

	// Channels is the number of interleaved channels.
	Channels int
}

// Bytes returns the chunk as raw little-endian PCM16 bytes.
func (c *AudioChunk) Bytes() []byte {
	buf := make([]byte, len(c.Samples)*2)
	for i, s := range c.Samples {
		buf[i*2] = byte(s)
		buf[i*2+1] = byte(s >> 8)
	}
	return buf
}

// FromBytes populates the chunk from raw PCM16 bytes.
func (c *AudioChunk) FromBytes(data []byte, sampleRate, channels int) {
	c.SampleRate = sampleRate
	c.Channels = channels
	c.Samples = make([]int16, len(data)/2)
	for i := range c.Samples {
		c.Samples[i] = int16(data[i*2]) | int16(data[i*2+1])<<8
	}
}

// Duration returns the chunk length in seconds.
func (c *AudioChunk) Duration() float64 {
	if c.SampleRate == 0 || c.Channels == 0 {
		return 0
	}
	return float64(len(c.Samples)) / float64(c.SampleRate*c.Channels)
}

// Source captures audio from a microphone or other input device.
type Source interface {
	// Start begins capture; chunks become available via Read.
	Start(ctx context.Context) error

	// Stop halts capture. Safe to call more than once.
	Stop() error

	// Read blocks for the next chunk and returns io.EOF once the
	// source is stopped and drained.
	Read(ctx context.Context) (AudioChunk, error)

	// Name identifies the backend ("exec", "mock").
	Name() string

	// Close releases all resources; the source cannot be restarted.
	io.Closer
}
