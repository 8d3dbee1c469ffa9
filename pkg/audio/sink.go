package audio

import (
	"errors"
	"fmt"
	"io"
	"os/exec"
	"sync"
	"time"

	"github.com/pepperkit/go-pepper/internal/log"
)

// ErrSinkUnavailable is returned by Write when the sink has no live
// playback device, typically between Stop and the next Start.
var ErrSinkUnavailable = errors.New("audio: sink unavailable")

// Sink is the hardware playback endpoint the Player writes PCM16 frames
// to. HeadPosition reports frames the hardware has actually rendered,
// which lags the frames written and is the ground truth for truncation
// offsets.
type Sink interface {
	// Start prepares the device for a new utterance.
	Start() error

	// Write pushes PCM16 bytes, whole frames except for a possible
	// sub-frame tail at end of stream. It may block on the device's
	// internal buffer.
	Write(pcm []byte) (int, error)

	// Pause halts rendering without dropping buffered frames.
	Pause() error

	// Flush discards buffered, unrendered frames.
	Flush() error

	// Stop halts rendering and releases per-utterance state.
	Stop() error

	// HeadPosition returns the cumulative number of frames rendered.
	HeadPosition() int64

	// Close releases the device.
	Close() error
}

// ExecSink plays PCM by piping it to an external player process, one
// process per utterance. Head position is estimated from the wall
// clock, which is close enough for truncation offsets given the 500 ms
// safety margin applied on top.
type ExecSink struct {
	command    string
	args       []string
	sampleRate int

	mu      sync.Mutex
	cmd     *exec.Cmd
	stdin   io.WriteCloser
	started time.Time
	paused  bool
	rendered int64 // frames rendered before the current run
}

var _ Sink = (*ExecSink)(nil)

// NewExecSink returns a sink that spawns command args... for each
// utterance and streams raw PCM16 to its stdin.
func NewExecSink(command string, args []string, sampleRate int) *ExecSink {
	return &ExecSink{command: command, args: args, sampleRate: sampleRate}
}

// DefaultALSAArgs are player arguments for raw mono PCM16 via aplay.
func DefaultALSAArgs(sampleRate int) (string, []string) {
	return "aplay", []string{"-q", "-f", "S16_LE", "-c", "1", "-r", fmt.Sprint(sampleRate), "-t", "raw", "-"}
}

func (s *ExecSink) Start() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.cmd != nil {
		return nil
	}
	cmd := exec.Command(s.command, s.args...)
	stdin, err := cmd.StdinPipe()
	if err != nil {
		return fmt.Errorf("player stdin: %w", err)
	}
	if err := cmd.Start(); err != nil {
		return fmt.Errorf("start player: %w", err)
	}
	s.cmd = cmd
	s.stdin = stdin
	s.started = time.Now()
	s.paused = false
	return nil
}

func (s *ExecSink) Write(pcm []byte) (int, error) {
	s.mu.Lock()
	stdin := s.stdin
	s.mu.Unlock()
	if stdin == nil {
		return 0, ErrSinkUnavailable
	}
	return stdin.Write(pcm)
}

func (s *ExecSink) Pause() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.cmd == nil || s.paused {
		return nil
	}
	s.rendered = s.headLocked()
	s.paused = true
	return nil
}

// Flush discards queued frames by killing the player process; the
// clock-based head position keeps whatever was rendered so far.
func (s *ExecSink) Flush() error {
	return s.stopProcess()
}

func (s *ExecSink) Stop() error {
	return s.stopProcess()
}

func (s *ExecSink) stopProcess() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.cmd == nil {
		return nil
	}
	if !s.paused {
		s.rendered = s.headLocked()
		s.paused = true
	}
	if s.stdin != nil {
		_ = s.stdin.Close()
	}
	if err := s.cmd.Process.Kill(); err != nil {
		log.Debug("kill player process", "error", err)
	}
	go s.cmd.Wait()
	s.cmd = nil
	s.stdin = nil
	return nil
}

func (s *ExecSink) HeadPosition() int64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.headLocked()
}

func (s *ExecSink) headLocked() int64 {
	if s.cmd == nil || s.paused {
		return s.rendered
	}
	elapsed := time.Since(s.started)
	return s.rendered + int64(elapsed.Seconds()*float64(s.sampleRate))
}

func (s *ExecSink) Close() error {
	return s.stopProcess()
}
