// Package conversation orchestrates the realtime session: it routes
// decoded wire events into playback, turn state, the transcript, and
// tool execution, and implements user barge-in.
package conversation

import (
	"time"

	"github.com/google/uuid"
)

// Role identifies who a transcript message belongs to.
type Role string

const (
	RoleUser  Role = "user"
	RoleRobot Role = "robot"
)

// Message is one transcript bubble.
type Message struct {
	ID         string    `json:"id"`
	Role       Role      `json:"role"`
	Text       string    `json:"text"`
	ItemID     string    `json:"item_id,omitempty"`
	ResponseID string    `json:"response_id,omitempty"`
	Pending    bool      `json:"pending,omitempty"`
	At         time.Time `json:"at"`

	// live marks a user bubble still accumulating streamed
	// transcription fragments. Any other append retires it.
	live bool
}

// Snapshot is an immutable view of the transcript for observers.
type Snapshot struct {
	Messages []Message `json:"messages"`
	Status   string    `json:"status"`
}

// placeholderText stands in for a user utterance until its
// transcription arrives.
const placeholderText = "..."

// ChatState holds the transcript. All mutations run on a single owner
// goroutine, so ordering is the call order and no lock is ever held
// across the update callback.
type ChatState struct {
	ops  chan func(*chatData)
	quit chan struct{}
}

type chatData struct {
	messages []Message
	status   string

	// forceNewAssistant makes the next assistant delta open a new
	// bubble even if the response id matches. One-shot; set after tool
	// results are sent so the follow-up answer is visually separate.
	forceNewAssistant bool

	onUpdate func(Snapshot)
}

// NewChatState starts the owner goroutine. onUpdate, if non-nil, fires
// after every mutation with a fresh snapshot; it runs on the owner
// goroutine and must not call back into the ChatState.
func NewChatState(onUpdate func(Snapshot)) *ChatState {
	c := &ChatState{
		ops:  make(chan func(*chatData), 64),
		quit: make(chan struct{}),
	}
	go c.run(onUpdate)
	return c
}

func (c *ChatState) run(onUpdate func(Snapshot)) {
	data := &chatData{onUpdate: onUpdate}
	for {
		select {
		case op := <-c.ops:
			op(data)
		case <-c.quit:
			return
		}
	}
}

// Close stops the owner goroutine.
func (c *ChatState) Close() {
	close(c.quit)
}

func (c *ChatState) do(op func(*chatData)) {
	select {
	case c.ops <- op:
	case <-c.quit:
	}
}

func (d *chatData) notify() {
	if d.onUpdate != nil {
		d.onUpdate(d.snapshot())
	}
}

func (d *chatData) snapshot() Snapshot {
	return Snapshot{
		Messages: append([]Message(nil), d.messages...),
		Status:   d.status,
	}
}

// Snapshot returns a copy of the current transcript.
func (c *ChatState) Snapshot() Snapshot {
	reply := make(chan Snapshot, 1)
	c.do(func(d *chatData) { reply <- d.snapshot() })
	select {
	case s := <-reply:
		return s
	case <-c.quit:
		return Snapshot{}
	}
}

// AppendAssistantDelta streams transcript text into the robot's current
// bubble. A new bubble opens when the response id changes, when the
// transcript is empty or ends with a user message, or when the one-shot
// new-bubble flag was set by ForceNewAssistantBubble.
func (c *ChatState) AppendAssistantDelta(responseID, delta string) {
	c.do(func(d *chatData) {
		last := len(d.messages) - 1
		needNew := d.forceNewAssistant ||
			last < 0 ||
			d.messages[last].Role != RoleRobot ||
			d.messages[last].ResponseID != responseID
		if needNew {
			d.forceNewAssistant = false
			d.messages = append(d.messages, Message{
				ID:         uuid.NewString(),
				Role:       RoleRobot,
				Text:       delta,
				ResponseID: responseID,
				At:         time.Now(),
			})
		} else {
			d.messages[last].Text += delta
		}
		d.notify()
	})
}

// SetAssistantFinal replaces the text of the bubble for responseID with
// the complete transcript, fixing up any dropped deltas.
func (c *ChatState) SetAssistantFinal(responseID, transcript string) {
	c.do(func(d *chatData) {
		for i := len(d.messages) - 1; i >= 0; i-- {
			m := &d.messages[i]
			if m.Role == RoleRobot && m.ResponseID == responseID {
				m.Text = transcript
				d.notify()
				return
			}
		}
	})
}

// ForceNewAssistantBubble makes the next assistant delta open a fresh
// bubble regardless of its response id.
func (c *ChatState) ForceNewAssistantBubble() {
	c.do(func(d *chatData) { d.forceNewAssistant = true })
}

// AddUserPlaceholder appends a pending "..." bubble for a committed
// utterance whose transcription has not arrived yet. Duplicate item ids
// are ignored.
func (c *ChatState) AddUserPlaceholder(itemID string) {
	c.do(func(d *chatData) {
		if itemID != "" {
			for _, m := range d.messages {
				if m.ItemID == itemID {
					return
				}
			}
		}
		d.messages = append(d.messages, Message{
			ID:      uuid.NewString(),
			Role:    RoleUser,
			Text:    placeholderText,
			ItemID:  itemID,
			Pending: true,
			At:      time.Now(),
		})
		d.notify()
	})
}

// SetUserTranscript resolves a placeholder with the transcribed text,
// matched by item id. With no matching placeholder, a new user bubble
// is appended (the Google dialect commits no items).
func (c *ChatState) SetUserTranscript(itemID, text string) {
	c.do(func(d *chatData) {
		if itemID != "" {
			for i := len(d.messages) - 1; i >= 0; i-- {
				m := &d.messages[i]
				if m.ItemID == itemID {
					m.Text = text
					m.Pending = false
					d.notify()
					return
				}
			}
		}
		d.messages = append(d.messages, Message{
			ID:     uuid.NewString(),
			Role:   RoleUser,
			Text:   text,
			ItemID: itemID,
			At:     time.Now(),
		})
		d.notify()
	})
}

// AppendUserTranscript accumulates one streamed fragment of the user's
// utterance. Fragments append to the open live user bubble; the first
// fragment after any other message starts a new one.
func (c *ChatState) AppendUserTranscript(delta string) {
	if delta == "" {
		return
	}
	c.do(func(d *chatData) {
		if n := len(d.messages); n > 0 {
			last := &d.messages[n-1]
			if last.Role == RoleUser && last.live {
				last.Text += delta
				d.notify()
				return
			}
		}
		d.messages = append(d.messages, Message{
			ID:   uuid.NewString(),
			Role: RoleUser,
			Text: delta,
			At:   time.Now(),
			live: true,
		})
		d.notify()
	})
}

// AddUserText appends a typed user message.
func (c *ChatState) AddUserText(text string) {
	c.do(func(d *chatData) {
		d.messages = append(d.messages, Message{
			ID:   uuid.NewString(),
			Role: RoleUser,
			Text: text,
			At:   time.Now(),
		})
		d.notify()
	})
}

// SetStatus updates the status line shown alongside the transcript.
func (c *ChatState) SetStatus(text string) {
	c.do(func(d *chatData) {
		if d.status == text {
			return
		}
		d.status = text
		d.notify()
	})
}

// Clear wipes the transcript for a fresh session.
func (c *ChatState) Clear() {
	c.do(func(d *chatData) {
		d.messages = nil
		d.status = ""
		d.forceNewAssistant = false
		d.notify()
	})
}
