package conversation

import (
	"context"
	"errors"
	"fmt"
	"io"
	"sync/atomic"

	"github.com/pepperkit/go-pepper/internal/log"
	"github.com/pepperkit/go-pepper/pkg/audio"
	"github.com/pepperkit/go-pepper/pkg/audioio"
	"github.com/pepperkit/go-pepper/pkg/session"
	"github.com/pepperkit/go-pepper/pkg/tools"
	"github.com/pepperkit/go-pepper/pkg/turn"
)

// Agent bundles one conversation: the session, playback, turn state,
// transcript, and tool registry, with the orchestrator routing between
// them. It is the type embedders drive.
type Agent struct {
	Session *session.Manager
	Player  *audio.Player
	Turns   *turn.Manager
	Chat    *ChatState
	Tools   *tools.Registry

	orch     *Orchestrator
	micMuted atomic.Bool
}

// NewAgent assembles the conversation stack. The tool definitions in
// registry are rendered into the session configuration in the dialect
// the provider expects.
func NewAgent(cfg session.Config, sink audio.Sink, registry *tools.Registry, onUpdate func(Snapshot)) (*Agent, error) {
	turns := turn.NewManager()
	chat := NewChatState(onUpdate)
	player := audio.NewPlayer(sink, cfg.OutputSampleRate)
	orch := NewOrchestrator(player, turns, chat, registry)

	cfg.Tools = registry.Definitions(cfg.Provider.Dialect())
	sess, err := session.NewManager(cfg, orch)
	if err != nil {
		chat.Close()
		return nil, err
	}
	orch.BindSession(sess)
	sess.OnDisconnect = func(err error) {
		player.InterruptNow()
		chat.SetStatus("disconnected")
		turns.SetState(turn.Idle)
	}

	return &Agent{
		Session: sess,
		Player:  player,
		Turns:   turns,
		Chat:    chat,
		Tools:   registry,
		orch:    orch,
	}, nil
}

// Start connects the session and starts the playback worker.
func (a *Agent) Start(ctx context.Context) error {
	a.Player.Start()
	a.Chat.SetStatus("connecting")
	if err := a.Session.Connect(ctx); err != nil {
		a.Chat.SetStatus("connection failed")
		return err
	}
	return nil
}

// Interrupt stops the robot mid-utterance on behalf of the user.
func (a *Agent) Interrupt() {
	a.orch.Interrupt()
	a.Turns.SetState(turn.Listening)
}

// SetMicMuted gates the microphone pump. Muted chunks are still read
// from the source so capture buffers keep draining, but nothing is sent
// upstream. Used to stop the robot hearing itself on hardware without
// echo cancellation.
func (a *Agent) SetMicMuted(muted bool) {
	a.micMuted.Store(muted)
}

// MicMuted reports the current gate state.
func (a *Agent) MicMuted() bool {
	return a.micMuted.Load()
}

// InterruptAndMute stops playback and closes the mic gate in one step,
// for operator-driven silencing.
func (a *Agent) InterruptAndMute() {
	a.Interrupt()
	a.SetMicMuted(true)
}

// SendText injects a typed user message.
func (a *Agent) SendText(text string) error {
	if text == "" {
		return fmt.Errorf("empty message")
	}
	a.Chat.AddUserText(text)
	a.Turns.SetState(turn.Thinking)
	return a.Session.SendUserText(text)
}

// SendImage injects a captured JPEG frame as user input.
func (a *Agent) SendImage(jpeg []byte, prompt string) error {
	if len(jpeg) == 0 {
		return fmt.Errorf("empty image")
	}
	if prompt != "" {
		a.Chat.AddUserText(prompt)
	}
	a.Turns.SetState(turn.Thinking)
	return a.Session.SendUserImage(jpeg, prompt)
}

// StartNewSession drops the server-side conversation and reconnects,
// clearing the transcript. Playback is interrupted first so the old
// session's audio stops immediately.
func (a *Agent) StartNewSession(ctx context.Context) error {
	a.orch.Interrupt()
	a.Chat.Clear()
	a.Chat.SetStatus("restarting")
	a.orch.reset()
	if err := a.Session.Restart(ctx); err != nil {
		a.Chat.SetStatus("reconnect failed")
		return err
	}
	return nil
}

// PumpMic streams microphone chunks into the session until ctx is done
// or the source ends. Chunks are resampled to the session input rate
// when the source disagrees.
func (a *Agent) PumpMic(ctx context.Context, src audioio.Source, inputRate int) error {
	if err := src.Start(ctx); err != nil {
		return fmt.Errorf("start capture: %w", err)
	}
	defer src.Stop()

	for {
		chunk, err := src.Read(ctx)
		if err != nil {
			if errors.Is(err, io.EOF) || errors.Is(err, context.Canceled) {
				return nil
			}
			return fmt.Errorf("read capture: %w", err)
		}
		if a.micMuted.Load() {
			continue
		}
		if chunk.SampleRate != inputRate && chunk.SampleRate > 0 {
			chunk.Samples = audioio.Resample(chunk.Samples, chunk.SampleRate, inputRate)
			chunk.SampleRate = inputRate
		}
		if err := a.Session.AppendAudio(chunk.Bytes()); err != nil {
			if errors.Is(err, session.ErrNotConnected) {
				log.Debug("dropping mic chunk, session down")
				continue
			}
			return err
		}
	}
}

// Close shuts the conversation down.
func (a *Agent) Close() error {
	a.Player.Close()
	a.Chat.Close()
	return a.Session.Close()
}

// reset clears per-conversation orchestrator state for a new session.
func (o *Orchestrator) reset() {
	o.mu.Lock()
	o.currentResponseID = ""
	o.currentItemID = ""
	o.generating = false
	o.discardAudio = false
	o.cancelled = make(map[string]bool)
	o.pendingCalls = make(map[string]bool)
	o.mu.Unlock()
}
