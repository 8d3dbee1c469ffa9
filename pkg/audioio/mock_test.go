package audioio

import (
	"context"
	"io"
	"testing"
	"time"
)

func TestMockSourceProducesChunks(t *testing.T) {
	cfg := DefaultConfig()
	cfg.Backend = BackendMock
	cfg.BufferDuration = 5 * time.Millisecond

	src := NewMockSource(cfg, WithSineWave(440, 0.5))
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()

	if err := src.Start(ctx); err != nil {
		t.Fatalf("Start: %v", err)
	}
	defer src.Close()

	chunk, err := src.Read(ctx)
	if err != nil {
		t.Fatalf("Read: %v", err)
	}
	if chunk.SampleRate != cfg.SampleRate || chunk.Channels != 1 {
		t.Errorf("chunk = rate %d channels %d", chunk.SampleRate, chunk.Channels)
	}
	if len(chunk.Samples) != cfg.BufferSize() {
		t.Errorf("samples = %d, want %d", len(chunk.Samples), cfg.BufferSize())
	}

	nonZero := false
	for _, s := range chunk.Samples {
		if s != 0 {
			nonZero = true
			break
		}
	}
	if !nonZero {
		t.Error("sine wave chunk is all zeros")
	}
}

func TestMockSourceReadAfterStop(t *testing.T) {
	cfg := DefaultConfig()
	cfg.Backend = BackendMock
	cfg.BufferDuration = 5 * time.Millisecond

	src := NewMockSource(cfg)
	ctx := context.Background()
	if err := src.Start(ctx); err != nil {
		t.Fatalf("Start: %v", err)
	}
	src.Stop()

	// Drain whatever was produced, then expect EOF.
	deadline := time.Now().Add(time.Second)
	for time.Now().Before(deadline) {
		_, err := src.Read(ctx)
		if err == io.EOF {
			return
		}
		if err != nil {
			t.Fatalf("Read: %v", err)
		}
	}
	t.Fatal("never saw EOF after Stop")
}

func TestStopIsIdempotent(t *testing.T) {
	cfg := DefaultConfig()
	cfg.Backend = BackendMock
	src := NewMockSource(cfg)
	if err := src.Start(context.Background()); err != nil {
		t.Fatalf("Start: %v", err)
	}
	if err := src.Stop(); err != nil {
		t.Errorf("first Stop: %v", err)
	}
	if err := src.Stop(); err != nil {
		t.Errorf("second Stop: %v", err)
	}
}

func TestNewSourceBackendSelection(t *testing.T) {
	cfg := DefaultConfig()
	cfg.Backend = BackendMock
	src, err := NewSource(cfg)
	if err != nil {
		t.Fatalf("NewSource: %v", err)
	}
	if src.Name() != "mock" {
		t.Errorf("backend = %q, want mock", src.Name())
	}

	cfg.Backend = Backend("bogus")
	if _, err := NewSource(cfg); err == nil {
		t.Error("unknown backend accepted")
	}

	cfg.Backend = BackendMock
	cfg.SampleRate = 0
	if _, err := NewSource(cfg); err == nil {
		t.Error("invalid config accepted")
	}
}
