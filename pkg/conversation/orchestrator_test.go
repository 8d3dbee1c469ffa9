package conversation

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/pepperkit/go-pepper/pkg/protocol"
	"github.com/pepperkit/go-pepper/pkg/session"
	"github.com/pepperkit/go-pepper/pkg/tools"
	"github.com/pepperkit/go-pepper/pkg/turn"
)

// callLog records the order of side effects across the fakes.
type callLog struct {
	mu      sync.Mutex
	entries []string
}

func (l *callLog) add(s string) {
	l.mu.Lock()
	l.entries = append(l.entries, s)
	l.mu.Unlock()
}

func (l *callLog) list() []string {
	l.mu.Lock()
	defer l.mu.Unlock()
	return append([]string(nil), l.entries...)
}

type fakeSender struct {
	log     *callLog
	dialect protocol.Dialect
	results chan []session.ToolResult
}

var _ sender = (*fakeSender)(nil)

func (s *fakeSender) Dialect() protocol.Dialect { return s.dialect }

func (s *fakeSender) CancelResponse() error {
	s.log.add("cancel")
	return nil
}

func (s *fakeSender) TruncateItem(itemID string, audioEndMs int64) error {
	s.log.add(fmt.Sprintf("truncate %s %d", itemID, audioEndMs))
	return nil
}

func (s *fakeSender) SendToolResults(results []session.ToolResult) error {
	s.log.add("tool_results")
	if s.results != nil {
		s.results <- results
	}
	return nil
}

type fakePlayer struct {
	log   *callLog
	mu    sync.Mutex
	posMs int64
	pcm   [][]byte
}

var _ player = (*fakePlayer)(nil)

func (p *fakePlayer) Append(pcm []byte) {
	p.mu.Lock()
	p.pcm = append(p.pcm, append([]byte(nil), pcm...))
	p.mu.Unlock()
}

func (p *fakePlayer) EndOfAudio()        { p.log.add("end_of_audio") }
func (p *fakePlayer) ResponseBoundary()  { p.log.add("boundary") }
func (p *fakePlayer) InterruptNow()      { p.log.add("interrupt") }
func (p *fakePlayer) EstimatedPositionMs() int64 {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.posMs
}

func (p *fakePlayer) appendCount() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.pcm)
}

func newTestOrchestrator(t *testing.T, dialect protocol.Dialect) (*Orchestrator, *fakeSender, *fakePlayer, *tools.Registry) {
	t.Helper()
	logs := &callLog{}
	s := &fakeSender{log: logs, dialect: dialect, results: make(chan []session.ToolResult, 4)}
	p := &fakePlayer{log: logs}
	chat := NewChatState(nil)
	t.Cleanup(chat.Close)
	registry := tools.NewRegistry()
	o := newOrchestrator(s, p, turn.NewManager(), chat, registry)
	return o, s, p, registry
}

func TestInterruptCancelsThenTruncatesThenClears(t *testing.T) {
	o, s, p, _ := newTestOrchestrator(t, protocol.DialectOpenAI)

	o.OnResponseBoundary(protocol.ResponseBoundary{ResponseID: "resp_1"})
	o.OnResponseCreated(protocol.ResponseCreated{ResponseID: "resp_1"})
	o.OnAssistantItemAdded(protocol.AssistantItemAdded{ItemID: "item_1"})
	p.posMs = 1200

	o.Interrupt()

	got := s.log.list()
	want := []string{"boundary", "cancel", "truncate item_1 700", "interrupt"}
	if strings.Join(got, ";") != strings.Join(want, ";") {
		t.Errorf("call order = %v, want %v", got, want)
	}
}

func TestTruncateOffsetClampedAtZero(t *testing.T) {
	o, s, p, _ := newTestOrchestrator(t, protocol.DialectOpenAI)

	o.OnResponseBoundary(protocol.ResponseBoundary{ResponseID: "resp_1"})
	o.OnResponseCreated(protocol.ResponseCreated{ResponseID: "resp_1"})
	o.OnAssistantItemAdded(protocol.AssistantItemAdded{ItemID: "item_1"})
	p.posMs = 300

	o.Interrupt()

	for _, entry := range s.log.list() {
		if strings.HasPrefix(entry, "truncate") && entry != "truncate item_1 0" {
			t.Errorf("got %q, want offset clamped to 0", entry)
		}
	}
}

func TestNoTruncateWhenNothingPlayed(t *testing.T) {
	o, s, _, _ := newTestOrchestrator(t, protocol.DialectOpenAI)

	o.OnResponseBoundary(protocol.ResponseBoundary{ResponseID: "resp_1"})
	o.OnResponseCreated(protocol.ResponseCreated{ResponseID: "resp_1"})
	o.OnAssistantItemAdded(protocol.AssistantItemAdded{ItemID: "item_1"})

	o.Interrupt()

	for _, entry := range s.log.list() {
		if strings.HasPrefix(entry, "truncate") {
			t.Errorf("unexpected truncate: %q", entry)
		}
	}
}

func TestCancelledResponseEventsDropped(t *testing.T) {
	o, _, p, _ := newTestOrchestrator(t, protocol.DialectOpenAI)

	o.OnResponseBoundary(protocol.ResponseBoundary{ResponseID: "resp_1"})
	o.OnResponseCreated(protocol.ResponseCreated{ResponseID: "resp_1"})
	o.Interrupt()

	o.OnAudioDelta(protocol.AudioDelta{PCM: []byte{1, 2}, ResponseID: "resp_1"})
	if p.appendCount() != 0 {
		t.Error("audio from a cancelled response reached the player")
	}

	o.OnAudioTranscriptDelta(protocol.AudioTranscriptDelta{Delta: "stale", ResponseID: "resp_1"})
	if msgs := o.chat.Snapshot().Messages; len(msgs) != 0 {
		t.Errorf("transcript from a cancelled response reached the chat: %v", msgs)
	}

	// The done event of the cancelled response retires its id; the
	// next response must flow normally.
	o.OnResponseDone(protocol.ResponseDone{Response: protocol.Response{ID: "resp_1"}})
	o.OnResponseBoundary(protocol.ResponseBoundary{ResponseID: "resp_2"})
	o.OnAudioDelta(protocol.AudioDelta{PCM: []byte{3, 4}, ResponseID: "resp_2"})
	if p.appendCount() != 1 {
		t.Error("audio of the next response was dropped")
	}
}

func TestFunctionCallDispatchAndResults(t *testing.T) {
	o, s, _, registry := newTestOrchestrator(t, protocol.DialectOpenAI)
	registry.Register(tools.Tool{
		Name: "get_datetime",
		Handler: func(ctx context.Context, args map[string]any) (string, error) {
			return "noon", nil
		},
	})

	o.OnResponseDone(protocol.ResponseDone{Response: protocol.Response{
		ID: "resp_1",
		Output: []protocol.Item{
			{Type: "function_call", CallID: "call_1", Name: "get_datetime", Arguments: `{}`},
		},
	}})

	select {
	case results := <-s.results:
		if len(results) != 1 || results[0].CallID != "call_1" || results[0].Output != "noon" {
			t.Errorf("unexpected results: %+v", results)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("tool results never sent")
	}
}

func TestServerExecutedToolsNotDispatched(t *testing.T) {
	o, s, _, registry := newTestOrchestrator(t, protocol.DialectGemini)
	registry.Register(tools.Tool{
		Name: "google_search",
		Handler: func(ctx context.Context, args map[string]any) (string, error) {
			t.Error("server-executed tool ran locally")
			return "", nil
		},
	})

	o.OnToolCall(protocol.ToolCall{Calls: []protocol.FunctionCall{{ID: "fc_1", Name: "google_search"}}})

	select {
	case results := <-s.results:
		t.Errorf("results sent for a server-executed tool: %+v", results)
	case <-time.After(200 * time.Millisecond):
	}
}

func TestToolCallCancellationSuppressesResult(t *testing.T) {
	o, s, _, registry := newTestOrchestrator(t, protocol.DialectGemini)

	release := make(chan struct{})
	registry.Register(tools.Tool{
		Name: "slow",
		Handler: func(ctx context.Context, args map[string]any) (string, error) {
			<-release
			return "late", nil
		},
	})

	o.OnToolCall(protocol.ToolCall{Calls: []protocol.FunctionCall{{ID: "fc_1", Name: "slow"}}})
	o.OnToolCallCancellation(protocol.ToolCallCancellation{IDs: []string{"fc_1"}})
	close(release)

	select {
	case results := <-s.results:
		t.Errorf("cancelled call still sent results: %+v", results)
	case <-time.After(200 * time.Millisecond):
	}
}

func TestGeminiInterruptDiscardsAudioUntilNextResponse(t *testing.T) {
	o, s, p, _ := newTestOrchestrator(t, protocol.DialectGemini)

	o.OnResponseBoundary(protocol.ResponseBoundary{ResponseID: "turn_1"})
	o.OnInterrupted(protocol.Interrupted{})

	for _, entry := range s.log.list() {
		if entry == "cancel" || strings.HasPrefix(entry, "truncate") {
			t.Errorf("local barge-in sent %q on the Google dialect", entry)
		}
	}

	o.OnAudioDelta(protocol.AudioDelta{PCM: []byte{1}, ResponseID: "turn_1"})
	if p.appendCount() != 0 {
		t.Error("residual audio after interrupt reached the player")
	}

	o.OnResponseBoundary(protocol.ResponseBoundary{ResponseID: "turn_2"})
	o.OnAudioDelta(protocol.AudioDelta{PCM: []byte{2}, ResponseID: "turn_2"})
	if p.appendCount() != 1 {
		t.Error("audio of the next turn was dropped")
	}
}

func TestPlaybackEndedStateDependsOnPendingCalls(t *testing.T) {
	o, _, _, registry := newTestOrchestrator(t, protocol.DialectOpenAI)

	release := make(chan struct{})
	registry.Register(tools.Tool{
		Name: "slow",
		Handler: func(ctx context.Context, args map[string]any) (string, error) {
			<-release
			return "ok", nil
		},
	})
	defer close(release)

	o.OnResponseDone(protocol.ResponseDone{Response: protocol.Response{
		ID:     "resp_1",
		Output: []protocol.Item{{Type: "function_call", CallID: "call_1", Name: "slow"}},
	}})

	o.playbackEnded()
	if got := o.turns.State(); got != turn.Thinking {
		t.Errorf("state with pending call = %v, want Thinking", got)
	}
}

func TestPlaybackEndedStaysThinkingWhileGenerating(t *testing.T) {
	o, _, _, _ := newTestOrchestrator(t, protocol.DialectOpenAI)

	// A follow-up response is already in flight when the drain of the
	// previous one completes; the turn must not dip back to Listening.
	o.OnResponseBoundary(protocol.ResponseBoundary{ResponseID: "resp_2"})
	o.OnResponseCreated(protocol.ResponseCreated{ResponseID: "resp_2"})

	o.playbackEnded()
	if got := o.turns.State(); got != turn.Thinking {
		t.Errorf("state mid-generation = %v, want Thinking", got)
	}
}

func TestPlaybackEndedReturnsToListening(t *testing.T) {
	o, _, _, _ := newTestOrchestrator(t, protocol.DialectOpenAI)
	o.playbackEnded()
	if got := o.turns.State(); got != turn.Listening {
		t.Errorf("state = %v, want Listening", got)
	}
}

func TestHarmlessErrorClassification(t *testing.T) {
	tests := []struct {
		name string
		err  protocol.ErrorDetail
		want bool
	}{
		{
			"cancel after completion",
			protocol.ErrorDetail{Code: "response_cancel_not_active", Message: "no active response"},
			true,
		},
		{
			"truncate past end",
			protocol.ErrorDetail{Code: "invalid_value", Message: "audio is already shorter than 700ms"},
			true,
		},
		{
			"other invalid_value",
			protocol.ErrorDetail{Code: "invalid_value", Message: "bad voice"},
			false,
		},
		{
			"auth failure",
			protocol.ErrorDetail{Code: "invalid_api_key", Message: "bad key"},
			false,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := isHarmless(tt.err); got != tt.want {
				t.Errorf("isHarmless = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestSpeechStoppedMovesToThinking(t *testing.T) {
	o, _, _, _ := newTestOrchestrator(t, protocol.DialectOpenAI)
	o.OnUserSpeechStopped(protocol.UserSpeechStopped{})
	if got := o.turns.State(); got != turn.Thinking {
		t.Errorf("state = %v, want Thinking", got)
	}
}
