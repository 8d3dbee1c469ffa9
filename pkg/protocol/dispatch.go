package protocol

// Listener receives decoded events, one method per logical event.
// Implementations run on the session read loop goroutine; methods that
// block stall the stream.
type Listener interface {
	OnSessionCreated(SessionCreated)
	OnSessionUpdated(SessionUpdated)
	OnResponseCreated(ResponseCreated)
	OnResponseBoundary(ResponseBoundary)
	OnAudioTranscriptDelta(AudioTranscriptDelta)
	OnAudioTranscriptDone(AudioTranscriptDone)
	OnAudioDelta(AudioDelta)
	OnAudioDone(AudioDone)
	OnResponseDone(ResponseDone)
	OnAssistantItemAdded(AssistantItemAdded)
	OnUserSpeechStarted(UserSpeechStarted)
	OnUserSpeechStopped(UserSpeechStopped)
	OnAudioBufferCommitted(AudioBufferCommitted)
	OnUserItemCreated(UserItemCreated)
	OnUserTranscriptCompleted(UserTranscriptCompleted)
	OnUserTranscriptDelta(UserTranscriptDelta)
	OnUserTranscriptFailed(UserTranscriptFailed)
	OnServerError(ServerError)
	OnToolCall(ToolCall)
	OnToolCallCancellation(ToolCallCancellation)
	OnInterrupted(Interrupted)
	OnTurnComplete(TurnComplete)
	OnSetupComplete(SetupComplete)
	OnUnknown(Unknown)
}

// Dispatch routes one event to exactly one Listener method.
func Dispatch(ev Event, l Listener) {
	switch e := ev.(type) {
	case SessionCreated:
		l.OnSessionCreated(e)
	case SessionUpdated:
		l.OnSessionUpdated(e)
	case ResponseCreated:
		l.OnResponseCreated(e)
	case ResponseBoundary:
		l.OnResponseBoundary(e)
	case AudioTranscriptDelta:
		l.OnAudioTranscriptDelta(e)
	case AudioTranscriptDone:
		l.OnAudioTranscriptDone(e)
	case AudioDelta:
		l.OnAudioDelta(e)
	case AudioDone:
		l.OnAudioDone(e)
	case ResponseDone:
		l.OnResponseDone(e)
	case AssistantItemAdded:
		l.OnAssistantItemAdded(e)
	case UserSpeechStarted:
		l.OnUserSpeechStarted(e)
	case UserSpeechStopped:
		l.OnUserSpeechStopped(e)
	case AudioBufferCommitted:
		l.OnAudioBufferCommitted(e)
	case UserItemCreated:
		l.OnUserItemCreated(e)
	case UserTranscriptCompleted:
		l.OnUserTranscriptCompleted(e)
	case UserTranscriptDelta:
		l.OnUserTranscriptDelta(e)
	case UserTranscriptFailed:
		l.OnUserTranscriptFailed(e)
	case ServerError:
		l.OnServerError(e)
	case ToolCall:
		l.OnToolCall(e)
	case ToolCallCancellation:
		l.OnToolCallCancellation(e)
	case Interrupted:
		l.OnInterrupted(e)
	case TurnComplete:
		l.OnTurnComplete(e)
	case SetupComplete:
		l.OnSetupComplete(e)
	case Unknown:
		l.OnUnknown(e)
	}
}

// BaseListener implements Listener with no-op methods so consumers can
// embed it and override only what they handle.
type BaseListener struct{}

var _ Listener = (*BaseListener)(nil)

func (BaseListener) OnSessionCreated(SessionCreated)                   {}
func (BaseListener) OnSessionUpdated(SessionUpdated)                   {}
func (BaseListener) OnResponseCreated(ResponseCreated)                 {}
func (BaseListener) OnResponseBoundary(ResponseBoundary)               {}
func (BaseListener) OnAudioTranscriptDelta(AudioTranscriptDelta)       {}
func (BaseListener) OnAudioTranscriptDone(AudioTranscriptDone)         {}
func (BaseListener) OnAudioDelta(AudioDelta)                           {}
func (BaseListener) OnAudioDone(AudioDone)                             {}
func (BaseListener) OnResponseDone(ResponseDone)                       {}
func (BaseListener) OnAssistantItemAdded(AssistantItemAdded)           {}
func (BaseListener) OnUserSpeechStarted(UserSpeechStarted)             {}
func (BaseListener) OnUserSpeechStopped(UserSpeechStopped)             {}
func (BaseListener) OnAudioBufferCommitted(AudioBufferCommitted)       {}
func (BaseListener) OnUserItemCreated(UserItemCreated)                 {}
func (BaseListener) OnUserTranscriptCompleted(UserTranscriptCompleted) {}
func (BaseListener) OnUserTranscriptDelta(UserTranscriptDelta)         {}
func (BaseListener) OnUserTranscriptFailed(UserTranscriptFailed)       {}
func (BaseListener) OnServerError(ServerError)                         {}
func (BaseListener) OnToolCall(ToolCall)                               {}
func (BaseListener) OnToolCallCancellation(ToolCallCancellation)       {}
func (BaseListener) OnInterrupted(Interrupted)                         {}
func (BaseListener) OnTurnComplete(TurnComplete)                       {}
func (BaseListener) OnSetupComplete(SetupComplete)                     {}
func (BaseListener) OnUnknown(Unknown)                                 {}
