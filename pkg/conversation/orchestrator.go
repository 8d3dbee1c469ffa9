package conversation

import (
	"context"
	"sync"
	"time"

	"github.com/pepperkit/go-pepper/internal/log"
	"github.com/pepperkit/go-pepper/pkg/audio"
	"github.com/pepperkit/go-pepper/pkg/protocol"
	"github.com/pepperkit/go-pepper/pkg/session"
	"github.com/pepperkit/go-pepper/pkg/tools"
	"github.com/pepperkit/go-pepper/pkg/turn"
)

// sender is the slice of session.Manager the orchestrator uses,
// narrowed for tests.
type sender interface {
	Dialect() protocol.Dialect
	CancelResponse() error
	TruncateItem(itemID string, audioEndMs int64) error
	SendToolResults(results []session.ToolResult) error
}

// player is the slice of audio.Player the orchestrator uses.
type player interface {
	Append(pcm []byte)
	EndOfAudio()
	ResponseBoundary()
	InterruptNow()
	EstimatedPositionMs() int64
}

// Orchestrator routes decoded events into playback, turn state, the
// transcript, and tool execution. Event methods run on the session read
// loop; Interrupt and SendToolResults completions run on other
// goroutines, so shared state sits behind a mutex.
type Orchestrator struct {
	protocol.BaseListener

	sess     sender
	player   player
	turns    *turn.Manager
	chat     *ChatState
	registry *tools.Registry

	mu sync.Mutex

	// currentResponseID is the id of the response being streamed;
	// generating is true between its creation and its done event.
	currentResponseID string
	generating        bool

	// currentItemID is the last assistant message item, the truncation
	// target on barge-in.
	currentItemID string

	// cancelled holds response ids aborted by barge-in whose residual
	// events must be dropped.
	cancelled map[string]bool

	// pendingCalls tracks in-flight tool executions by call id.
	// Membership is rechecked before results are sent, since the server
	// may cancel calls while they run.
	pendingCalls map[string]bool

	// discardAudio drops audio after a Google-dialect barge-in until
	// the next response opens.
	discardAudio bool

	// speechStoppedAt anchors the response latency measurement.
	speechStoppedAt time.Time
	latencyMeasured bool
}

var _ protocol.Listener = (*Orchestrator)(nil)

// NewOrchestrator wires the collaborators together and installs the
// playback callbacks that drive the turn state. The session is attached
// afterwards with BindSession, since the session needs the orchestrator
// as its listener.
func NewOrchestrator(p *audio.Player, turns *turn.Manager, chat *ChatState, registry *tools.Registry) *Orchestrator {
	o := newOrchestrator(nil, p, turns, chat, registry)
	p.OnPlaybackStarted = o.playbackStarted
	p.OnPlaybackEnded = o.playbackEnded
	return o
}

// BindSession attaches the session the orchestrator sends through. Must
// be called before the session connects.
func (o *Orchestrator) BindSession(s *session.Manager) {
	o.sess = s
}

func newOrchestrator(sess sender, p player, turns *turn.Manager, chat *ChatState, registry *tools.Registry) *Orchestrator {
	return &Orchestrator{
		sess:         sess,
		player:       p,
		turns:        turns,
		chat:         chat,
		registry:     registry,
		cancelled:    make(map[string]bool),
		pendingCalls: make(map[string]bool),
	}
}

func (o *Orchestrator) playbackStarted() {
	o.turns.SetState(turn.Speaking)
	o.chat.SetStatus("speaking, tap to interrupt")

	o.mu.Lock()
	measured := o.latencyMeasured
	stopped := o.speechStoppedAt
	o.latencyMeasured = true
	o.mu.Unlock()
	if !measured && !stopped.IsZero() {
		log.Info("response latency", "ms", time.Since(stopped).Milliseconds())
	}
}

func (o *Orchestrator) playbackEnded() {
	o.mu.Lock()
	busy := len(o.pendingCalls) > 0 || o.generating
	o.mu.Unlock()
	if busy {
		o.turns.SetState(turn.Thinking)
		o.chat.SetStatus("thinking")
	} else {
		o.turns.SetState(turn.Listening)
		o.chat.SetStatus("listening")
	}
}

func (o *Orchestrator) OnSessionCreated(e protocol.SessionCreated) {
	o.chat.SetStatus("connected")
	o.turns.SetState(turn.Listening)
}

func (o *Orchestrator) OnSetupComplete(protocol.SetupComplete) {
	o.chat.SetStatus("connected")
	o.turns.SetState(turn.Listening)
}

func (o *Orchestrator) OnResponseBoundary(e protocol.ResponseBoundary) {
	o.player.ResponseBoundary()
	o.mu.Lock()
	o.currentResponseID = e.ResponseID
	o.currentItemID = ""
	o.discardAudio = false
	o.mu.Unlock()
}

func (o *Orchestrator) OnResponseCreated(e protocol.ResponseCreated) {
	o.mu.Lock()
	o.generating = true
	o.mu.Unlock()
	o.turns.SetState(turn.Thinking)
}

func (o *Orchestrator) OnAssistantItemAdded(e protocol.AssistantItemAdded) {
	o.mu.Lock()
	o.currentItemID = e.ItemID
	o.mu.Unlock()
}

func (o *Orchestrator) OnAudioDelta(e protocol.AudioDelta) {
	o.mu.Lock()
	drop := o.cancelled[e.ResponseID] || o.discardAudio
	o.mu.Unlock()
	if drop {
		return
	}
	o.player.Append(e.PCM)
}

func (o *Orchestrator) OnAudioTranscriptDelta(e protocol.AudioTranscriptDelta) {
	o.mu.Lock()
	drop := o.cancelled[e.ResponseID]
	o.mu.Unlock()
	if drop {
		return
	}
	o.chat.AppendAssistantDelta(e.ResponseID, e.Delta)
}

func (o *Orchestrator) OnAudioTranscriptDone(e protocol.AudioTranscriptDone) {
	o.mu.Lock()
	drop := o.cancelled[e.ResponseID]
	o.mu.Unlock()
	if drop {
		return
	}
	o.chat.SetAssistantFinal(e.ResponseID, e.Transcript)
}

func (o *Orchestrator) OnAudioDone(protocol.AudioDone) {
	o.player.EndOfAudio()
}

// OnResponseDone partitions the output into function calls, dispatched
// asynchronously, and message items. A response cancelled by barge-in
// is dropped wholesale.
func (o *Orchestrator) OnResponseDone(e protocol.ResponseDone) {
	o.mu.Lock()
	o.generating = false
	wasCancelled := o.cancelled[e.Response.ID]
	delete(o.cancelled, e.Response.ID)
	o.mu.Unlock()
	if wasCancelled {
		log.Debug("dropping cancelled response", "response_id", e.Response.ID)
		return
	}

	var calls []protocol.FunctionCall
	for _, item := range e.Response.Output {
		if item.Type == "function_call" {
			calls = append(calls, protocol.FunctionCall{
				ID:   item.CallID,
				Name: item.Name,
				Args: tools.Unstructured(item.Arguments),
			})
		}
	}
	if len(calls) > 0 {
		o.dispatchCalls(calls)
	}
}

func (o *Orchestrator) OnToolCall(e protocol.ToolCall) {
	o.dispatchCalls(e.Calls)
}

// serverExecuted names tools the provider runs on its side; they reach
// the client only as notifications and must not be dispatched locally.
var serverExecuted = map[string]bool{
	"google_search":  true,
	"code_execution": true,
	"web_search":     true,
}

// dispatchCalls executes tool calls off the read loop. The pending set
// is rechecked before sending so a cancellation that raced the
// execution wins. After the results go out, the next assistant bubble
// is forced open: the follow-up answer is a new thought.
func (o *Orchestrator) dispatchCalls(calls []protocol.FunctionCall) {
	local := calls[:0:0]
	for _, call := range calls {
		if serverExecuted[call.Name] {
			o.chat.SetStatus("using " + call.Name)
			continue
		}
		local = append(local, call)
	}
	calls = local
	if len(calls) == 0 {
		return
	}

	o.mu.Lock()
	for _, call := range calls {
		o.pendingCalls[call.ID] = true
	}
	o.mu.Unlock()
	o.turns.SetState(turn.Thinking)

	go func() {
		ctx := context.Background()
		results := make([]session.ToolResult, 0, len(calls))
		for _, call := range calls {
			output := o.registry.Execute(ctx, call.Name, call.Args)

			o.mu.Lock()
			still := o.pendingCalls[call.ID]
			delete(o.pendingCalls, call.ID)
			o.mu.Unlock()
			if !still {
				log.Debug("discarding result of cancelled tool call", "call_id", call.ID, "tool", call.Name)
				continue
			}
			results = append(results, session.ToolResult{CallID: call.ID, Name: call.Name, Output: output})
		}
		if len(results) == 0 {
			return
		}
		o.chat.ForceNewAssistantBubble()
		if err := o.sess.SendToolResults(results); err != nil {
			log.Error("send tool results", "error", err)
		}
	}()
}

func (o *Orchestrator) OnToolCallCancellation(e protocol.ToolCallCancellation) {
	o.mu.Lock()
	for _, id := range e.IDs {
		delete(o.pendingCalls, id)
	}
	o.mu.Unlock()
}

func (o *Orchestrator) OnUserSpeechStarted(protocol.UserSpeechStarted) {
	o.Interrupt()
	o.turns.SetState(turn.Listening)
	o.chat.SetStatus("listening")
}

func (o *Orchestrator) OnUserSpeechStopped(protocol.UserSpeechStopped) {
	o.mu.Lock()
	o.speechStoppedAt = time.Now()
	o.latencyMeasured = false
	o.mu.Unlock()
	o.turns.SetState(turn.Thinking)
	o.chat.SetStatus("thinking")
}

func (o *Orchestrator) OnAudioBufferCommitted(e protocol.AudioBufferCommitted) {
	o.chat.AddUserPlaceholder(e.ItemID)
}

func (o *Orchestrator) OnUserTranscriptCompleted(e protocol.UserTranscriptCompleted) {
	o.chat.SetUserTranscript(e.ItemID, e.Transcript)
}

func (o *Orchestrator) OnUserTranscriptDelta(e protocol.UserTranscriptDelta) {
	o.chat.AppendUserTranscript(e.Delta)
}

func (o *Orchestrator) OnUserTranscriptFailed(e protocol.UserTranscriptFailed) {
	log.Warn("user transcription failed", "item_id", e.ItemID)
	o.chat.SetUserTranscript(e.ItemID, "(transcription failed)")
}

// OnInterrupted handles the Google dialect's implicit barge-in: the
// server already stopped generating, so only local playback is torn
// down, and residual audio is discarded until the next response opens.
func (o *Orchestrator) OnInterrupted(protocol.Interrupted) {
	o.mu.Lock()
	o.discardAudio = true
	o.generating = false
	o.mu.Unlock()
	o.player.InterruptNow()
	o.turns.SetState(turn.Listening)
}

func (o *Orchestrator) OnTurnComplete(e protocol.TurnComplete) {
	o.mu.Lock()
	o.generating = false
	pending := len(o.pendingCalls) > 0
	o.mu.Unlock()
	if pending {
		o.turns.SetState(turn.Thinking)
	}
}

func (o *Orchestrator) OnServerError(e protocol.ServerError) {
	if isHarmless(e.Err) {
		log.Debug("harmless server error", "code", e.Err.Code, "message", e.Err.Message)
		return
	}
	log.Error("server error", "code", e.Err.Code, "type", e.Err.Type, "message", e.Err.Message)
	o.chat.SetStatus("error: " + e.Err.Message)
}

func (o *Orchestrator) OnUnknown(e protocol.Unknown) {
	log.Debug("unknown event", "type", e.Type)
}
