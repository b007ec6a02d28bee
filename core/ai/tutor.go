package ai

import (
	"context"
	"strings"
	"sync"

	"github.com/go-playground/validator/v10"
)

// MaxTurns bounds a tutor conversation; the oldest messages are dropped first.
const MaxTurns = 40

type TutorQuestion struct {
	Text string `json:"text" validate:"required,notblank,max=2000"`
}

func (q *TutorQuestion) Validate(validate *validator.Validate) error {
	q.Text = strings.TrimSpace(q.Text)
	return validate.Struct(q)
}

type conversationKey struct {
	session string
	book    string
}

type conversation struct {
	mu       sync.Mutex
	messages []Message
}

// Tutor keeps one conversation per session and book. A failed exchange leaves the conversation
// exactly as it was before the question was asked.
type Tutor struct {
	assistant *Assistant

	mu            sync.Mutex
	conversations map[conversationKey]*conversation
}

func NewTutor(assistant *Assistant) *Tutor {
	return &Tutor{
		assistant:     assistant,
		conversations: make(map[conversationKey]*conversation),
	}
}

func (t *Tutor) conversation(sessionID, bookID string) *conversation {
	t.mu.Lock()
	defer t.mu.Unlock()
	key := conversationKey{sessionID, bookID}
	conv, ok := t.conversations[key]
	if !ok {
		conv = &conversation{}
		t.conversations[key] = conv
	}
	return conv
}

// Ask sends the question along with the conversation so far and records both sides of the
// exchange on success. Questions on the same conversation are answered one at a time.
func (t *Tutor) Ask(ctx context.Context, sessionID, bookID string, q TutorQuestion, bookContext string) (Message, error) {
	conv := t.conversation(sessionID, bookID)
	conv.mu.Lock()
	defer conv.mu.Unlock()

	asked := Message{Sender: SenderUser, Text: q.Text}
	messages := make([]Message, len(conv.messages), len(conv.messages)+2)
	copy(messages, conv.messages)
	messages = append(messages, asked)

	out, err := t.assistant.Explain(ctx, ExplainInput{Messages: messages, Context: bookContext})
	if err != nil {
		return Message{}, err
	}

	reply := Message{Sender: SenderAI, Text: strings.TrimSpace(out.Response)}
	messages = append(messages, reply)
	if len(messages) > MaxTurns {
		messages = messages[len(messages)-MaxTurns:]
	}
	conv.messages = messages
	return reply, nil
}

// History returns a copy of the conversation.
func (t *Tutor) History(sessionID, bookID string) []Message {
	t.mu.Lock()
	conv, ok := t.conversations[conversationKey{sessionID, bookID}]
	t.mu.Unlock()
	if !ok {
		return []Message{}
	}
	conv.mu.Lock()
	defer conv.mu.Unlock()
	out := make([]Message, len(conv.messages))
	copy(out, conv.messages)
	return out
}

// Reset forgets the conversation about a book.
func (t *Tutor) Reset(sessionID, bookID string) {
	t.mu.Lock()
	defer t.mu.Unlock()
	delete(t.conversations, conversationKey{sessionID, bookID})
}

// EndSession forgets every conversation of a session and returns how many there were.
func (t *Tutor) EndSession(sessionID string) int {
	t.mu.Lock()
	defer t.mu.Unlock()
	var n int
	for key := range t.conversations {
		if key.session == sessionID {
			delete(t.conversations, key)
			n++
		}
	}
	return n
}
