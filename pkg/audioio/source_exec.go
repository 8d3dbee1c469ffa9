package audioio

import (
	"context"
	"fmt"
	"io"
	"os/exec"
	"sync"

	"github.com/pepperkit/go-pepper/internal/log"
)

// ExecSource captures audio by running an external recorder (arecord)
// and slicing its raw PCM output into chunks.
type ExecSource struct {
	cfg Config

	mu      sync.Mutex
	cmd     *exec.Cmd
	stdout  io.ReadCloser
	running bool
	closed  bool

	streamCh chan AudioChunk
	stopCh   chan struct{}
}

var _ Source = (*ExecSource)(nil)

func newExecSource(cfg Config) *ExecSource {
	return &ExecSource{cfg: cfg}
}

func (s *ExecSource) recorderArgs() []string {
	device := s.cfg.Device
	if device == "" {
		device = "default"
	}
	return []string{
		"-q",
		"-D", device,
		"-f", "S16_LE",
		"-c", fmt.Sprint(s.cfg.Channels),
		"-r", fmt.Sprint(s.cfg.SampleRate),
		"-t", "raw",
	}
}

// Start spawns the recorder and begins slicing its output.
func (s *ExecSource) Start(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return io.ErrClosedPipe
	}
	if s.running {
		return nil
	}

	cmd := exec.CommandContext(ctx, "arecord", s.recorderArgs()...)
	stdout, err := cmd.StdoutPipe()
	if err != nil {
		return fmt.Errorf("recorder stdout: %w", err)
	}
	if err := cmd.Start(); err != nil {
		return fmt.Errorf("start recorder: %w", err)
	}

	s.cmd = cmd
	s.stdout = stdout
	s.running = true
	s.streamCh = make(chan AudioChunk, 10)
	s.stopCh = make(chan struct{})

	go s.captureLoop(stdout, s.streamCh, s.stopCh)

	log.Info("capture started", "backend", "exec",
		"sample_rate", s.cfg.SampleRate, "chunk_ms", s.cfg.BufferDuration.Milliseconds())
	return nil
}

func (s *ExecSource) captureLoop(r io.Reader, out chan<- AudioChunk, stop <-chan struct{}) {
	defer close(out)
	buf := make([]byte, s.cfg.BufferBytes())
	for {
		select {
		case <-stop:
			return
		default:
		}
		if _, err := io.ReadFull(r, buf); err != nil {
			if err != io.EOF && err != io.ErrUnexpectedEOF {
				log.Warn("capture read", "error", err)
			}
			return
		}
		var chunk AudioChunk
		chunk.FromBytes(buf, s.cfg.SampleRate, s.cfg.Channels)
		select {
		case out <- chunk:
		default:
			log.Debug("capture buffer full, dropping chunk")
		}
	}
}

// Stop kills the recorder. Safe to call more than once.
func (s *ExecSource) Stop() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.running {
		return nil
	}
	s.running = false
	close(s.stopCh)
	if s.stdout != nil {
		_ = s.stdout.Close()
	}
	if s.cmd != nil && s.cmd.Process != nil {
		_ = s.cmd.Process.Kill()
		go s.cmd.Wait()
	}
	s.cmd = nil
	s.stdout = nil
	return nil
}

// Read blocks for the next chunk.
func (s *ExecSource) Read(ctx context.Context) (AudioChunk, error) {
	s.mu.Lock()
	ch := s.streamCh
	s.mu.Unlock()
	if ch == nil {
		return AudioChunk{}, io.EOF
	}
	select {
	case chunk, ok := <-ch:
		if !ok {
			return AudioChunk{}, io.EOF
		}
		return chunk, nil
	case <-ctx.Done():
		return AudioChunk{}, ctx.Err()
	}
}

func (s *ExecSource) Name() string { return "exec" }

// Close stops capture permanently.
func (s *ExecSource) Close() error {
	err := s.Stop()
	s.mu.Lock()
	s.closed = true
	s.mu.Unlock()
	return err
}
