package conversation

import (
	"strings"

	"github.com/pepperkit/go-pepper/internal/log"
	"github.com/pepperkit/go-pepper/pkg/protocol"
)

// truncateSafetyMs is subtracted from the estimated playback position
// before truncating, so the server never keeps audio the user did not
// actually hear.
const truncateSafetyMs = 500

// Interrupt stops the robot mid-utterance. For the OpenAI dialect the
// server must be told twice: cancel the in-flight generation, then
// truncate the partially spoken item to what was heard. Both go out
// before any local state is cleared, so the server sees the
// conversation as the user experienced it. The Google dialect handles
// barge-in server side; only local playback is flushed.
func (o *Orchestrator) Interrupt() {
	if o.sess.Dialect() == protocol.DialectGemini {
		o.mu.Lock()
		o.discardAudio = true
		o.pendingCalls = make(map[string]bool)
		o.mu.Unlock()
		o.player.InterruptNow()
		return
	}

	o.mu.Lock()
	respID := o.currentResponseID
	generating := o.generating
	itemID := o.currentItemID
	if generating && respID != "" {
		o.cancelled[respID] = true
	}
	o.mu.Unlock()

	if generating && respID != "" {
		if err := o.sess.CancelResponse(); err != nil {
			log.Warn("cancel response", "error", err)
		}
	}

	if itemID != "" {
		if playedMs := o.player.EstimatedPositionMs(); playedMs > 0 {
			endMs := playedMs - truncateSafetyMs
			if endMs < 0 {
				endMs = 0
			}
			if err := o.sess.TruncateItem(itemID, endMs); err != nil {
				log.Warn("truncate item", "item_id", itemID, "error", err)
			}
		}
	}

	o.mu.Lock()
	o.currentItemID = ""
	o.generating = false
	o.pendingCalls = make(map[string]bool)
	o.mu.Unlock()

	o.player.InterruptNow()
}

// isHarmless classifies server errors that are expected fallout of the
// interrupt protocol racing the server: cancelling a response that
// already finished, or truncating an item shorter than the offset.
func isHarmless(err protocol.ErrorDetail) bool {
	if err.Code == "response_cancel_not_active" {
		return true
	}
	if err.Code == "invalid_value" && strings.Contains(err.Message, "already shorter than") {
		return true
	}
	return false
}
