package history

import "sync"

type Sender string

const (
	SenderUser Sender = "user"
	SenderBot  Sender = "bot"
)

// Message is a single transcript entry as the UI sees it.
type Message struct {
	Sender Sender `json:"sender"`
	Text   string `json:"text"`
}

func UserMessage(text string) Message { return Message{Sender: SenderUser, Text: text} }
func BotMessage(text string) Message  { return Message{Sender: SenderBot, Text: text} }

// Transcript is an append-only, ordered list of messages.
// Insertion order is display order.
type Transcript struct {
	mu   sync.RWMutex
	msgs []Message
}

func NewTranscript() *Transcript {
	return &Transcript{}
}

// Append adds msg and returns the transcript as it was before the append.
func (t *Transcript) Append(msg Message) []Message {
	t.mu.Lock()
	defer t.mu.Unlock()
	prior := make([]Message, len(t.msgs))
	copy(prior, t.msgs)
	t.msgs = append(t.msgs, msg)
	return prior
}

func (t *Transcript) Len() int {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return len(t.msgs)
}

// Messages returns a copy; callers may modify it freely.
func (t *Transcript) Messages() []Message {
	t.mu.RLock()
	defer t.mu.RUnlock()
	out := make([]Message, len(t.msgs))
	copy(out, t.msgs)
	return out
}

func (t *Transcript) Last() (Message, bool) {
	t.mu.RLock()
	defer t.mu.RUnlock()
	if len(t.msgs) == 0 {
		return Message{}, false
	}
	return t.msgs[len(t.msgs)-1], true
}
