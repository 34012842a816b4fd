package chat

import "sync"

// DefaultWindow is the default History window size W.
const DefaultWindow = 10

// History is an ordered, append-only sequence of Messages bounded to
// a fixed window size W: after every append, if length exceeds W the
// oldest entries are dropped until length equals W. History is owned
// by exactly one ChatSession and mutated only by it.
type History struct {
	mu       sync.Mutex
	window   int
	messages []Message
}

// NewHistory creates a History with the given window size, or
// DefaultWindow if window <= 0.
func NewHistory(window int) *History {
	if window <= 0 {
		window = DefaultWindow
	}
	return &History{window: window}
}

// Append adds msg to the end of the history, unless it carries no
// content, then truncates the head until len <= W.
func (h *History) Append(msg Message) {
	if !msg.HasContent() {
		return
	}
	h.mu.Lock()
	defer h.mu.Unlock()

	h.messages = append(h.messages, msg)
	if over := len(h.messages) - h.window; over > 0 {
		h.messages = h.messages[over:]
	}
}

// Messages returns a snapshot of the current history in order.
func (h *History) Messages() []Message {
	h.mu.Lock()
	defer h.mu.Unlock()
	out := make([]Message, len(h.messages))
	copy(out, h.messages)
	return out
}

// Len reports the current number of stored messages.
func (h *History) Len() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.messages)
}
