package ai_test

import (
	"context"
	"encoding/json"
	"sync"
	"testing"
	"time"

	"github.com/pkg/errors"
	"github.com/sebdah/goldie/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/trezcool/maktaba/core"
	"github.com/trezcool/maktaba/core/ai"
	"github.com/trezcool/maktaba/core/session"
	appfs "github.com/trezcool/maktaba/fs"
)

// scriptedModel answers with canned JSON responses, in order, and records the prompts it got.
type scriptedModel struct {
	mu        sync.Mutex
	responses []string
	err       error
	prompts   []string
}

func (m *scriptedModel) Generate(_ context.Context, _ ai.Flow, prompt string, out interface{}) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.prompts = append(m.prompts, prompt)
	if m.err != nil {
		return m.err
	}
	if len(m.responses) == 0 {
		return errors.New("no scripted response left")
	}
	resp := m.responses[0]
	m.responses = m.responses[1:]
	return json.Unmarshal([]byte(resp), out)
}

func (m *scriptedModel) lastPrompt() string {
	m.mu.Lock()
	defer m.mu.Unlock()
	if len(m.prompts) == 0 {
		return ""
	}
	return m.prompts[len(m.prompts)-1]
}

type errorLog struct {
	core.NopLogger
	mu     sync.Mutex
	errors []string
}

func (l *errorLog) Error(msg string, _ ...interface{}) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.errors = append(l.errors, msg)
}

func (l *errorLog) count() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.errors)
}

func newAssistant(t *testing.T, model ai.Model, timeout time.Duration) (*ai.Assistant, *errorLog) {
	t.Helper()
	prompts, err := ai.NewPrompts(appfs.FS, appfs.PromptTemplatesDir)
	require.NoError(t, err)

	conf := &core.Config{}
	conf.AI.Timeout = timeout
	logger := &errorLog{}
	return ai.NewAssistant(model, prompts, conf, logger), logger
}

func golden(t *testing.T) *goldie.Goldie {
	return goldie.New(t,
		goldie.WithFixtureDir("testdata/golden"),
		goldie.WithNameSuffix(".golden"),
	)
}

func TestAssistant_Summarize(t *testing.T) {
	model := &scriptedModel{responses: []string{`{"summary": "Gates combine boolean inputs."}`}}
	assistant, logger := newAssistant(t, model, time.Second)

	out, err := assistant.Summarize(context.Background(), ai.SummarizeInput{
		BookTitle:    "Digital Electronics",
		ChapterTitle: "Logic Gates",
		Content:      "AND, OR and NOT gates take one or two inputs.",
	})
	require.NoError(t, err)
	assert.Equal(t, "Gates combine boolean inputs.", out.Summary)
	assert.Zero(t, logger.count())

	golden(t).Assert(t, "summarize_prompt", []byte(model.lastPrompt()))
}

func TestAssistant_Failures(t *testing.T) {
	tests := []struct {
		name    string
		model   *scriptedModel
		wantMsg string
		run     func(a *ai.Assistant) error
	}{
		{
			name:    "summarizer down",
			model:   &scriptedModel{err: errors.New("503 from upstream")},
			wantMsg: "The AI summarizer is currently unavailable. Please try again later.",
			run: func(a *ai.Assistant) error {
				_, err := a.Summarize(context.Background(), ai.SummarizeInput{BookTitle: "B", Content: "C"})
				return err
			},
		},
		{
			name:    "empty summary",
			model:   &scriptedModel{responses: []string{`{"summary": "  "}`}},
			wantMsg: "The AI summarizer is currently unavailable. Please try again later.",
			run: func(a *ai.Assistant) error {
				_, err := a.Summarize(context.Background(), ai.SummarizeInput{BookTitle: "B", Content: "C"})
				return err
			},
		},
		{
			name:    "malformed json",
			model:   &scriptedModel{responses: []string{`{"response": `}},
			wantMsg: "The AI tutor is currently unavailable. Please try again later.",
			run: func(a *ai.Assistant) error {
				_, err := a.Explain(context.Background(), ai.ExplainInput{
					Messages: []ai.Message{{Sender: ai.SenderUser, Text: "hi"}},
				})
				return err
			},
		},
		{
			name: "answer is not an option",
			model: &scriptedModel{responses: []string{
				`{"questions": [{"question": "2+2?", "options": ["1", "2", "3", "5"], "answer": "4"}]}`,
			}},
			wantMsg: "The AI quiz generator is currently unavailable. Please try again later.",
			run: func(a *ai.Assistant) error {
				_, err := a.GenerateQuiz(context.Background(), ai.QuizInput{BookTitle: "B", Content: "C", Count: 1})
				return err
			},
		},
		{
			name: "three options",
			model: &scriptedModel{responses: []string{
				`{"questions": [{"question": "2+2?", "options": ["1", "4", "5"], "answer": "4"}]}`,
			}},
			wantMsg: "The AI quiz generator is currently unavailable. Please try again later.",
			run: func(a *ai.Assistant) error {
				_, err := a.GenerateQuiz(context.Background(), ai.QuizInput{BookTitle: "B", Content: "C", Count: 1})
				return err
			},
		},
		{
			name:    "no questions",
			model:   &scriptedModel{responses: []string{`{"questions": []}`}},
			wantMsg: "The AI quiz generator is currently unavailable. Please try again later.",
			run: func(a *ai.Assistant) error {
				_, err := a.GenerateQuiz(context.Background(), ai.QuizInput{BookTitle: "B", Content: "C"})
				return err
			},
		},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			assistant, logger := newAssistant(t, tc.model, time.Second)

			err := tc.run(assistant)
			require.Error(t, err)
			assert.True(t, errors.Is(err, ai.ErrUnavailable))
			assert.Equal(t, tc.wantMsg, err.Error())
			assert.Equal(t, 1, logger.count(), "a failure is logged exactly once")
			assert.Len(t, tc.model.prompts, 1, "failures are not retried")
		})
	}
}

func TestAssistant_Timeout(t *testing.T) {
	model := ai.ModelFunc(func(ctx context.Context, _ ai.Flow, _ string, _ interface{}) error {
		<-ctx.Done()
		return ctx.Err()
	})
	assistant, logger := newAssistant(t, model, 20*time.Millisecond)

	start := time.Now()
	_, err := assistant.Summarize(context.Background(), ai.SummarizeInput{BookTitle: "B", Content: "C"})
	assert.True(t, errors.Is(err, ai.ErrUnavailable))
	assert.Less(t, int64(time.Since(start)), int64(time.Second))
	assert.Equal(t, 1, logger.count())
}

func TestAssistant_GenerateQuiz(t *testing.T) {
	question := `{"question": "Which order does a stack follow?", "options": ["FIFO", "LIFO", "Random", "Sorted"], "answer": "LIFO"}`
	questions := question
	for i := 1; i < 7; i++ {
		questions += "," + question
	}
	model := &scriptedModel{responses: []string{`{"questions": [` + questions + `]}`}}
	assistant, _ := newAssistant(t, model, time.Second)

	quiz, err := assistant.GenerateQuiz(context.Background(), ai.QuizInput{
		BookTitle: "Data Structures",
		Content:   "A stack is a last-in first-out collection.",
	})
	require.NoError(t, err)
	assert.Len(t, quiz.Questions, ai.DefaultQuizSize, "extra questions are dropped")
	for _, q := range quiz.Questions {
		assert.Len(t, q.Options, ai.QuestionOptions)
		assert.Contains(t, q.Options, q.Answer)
	}

	golden(t).Assert(t, "quiz_prompt", []byte(model.lastPrompt()))
}

func TestTutor(t *testing.T) {
	model := &scriptedModel{responses: []string{
		`{"response": "A last-in first-out collection."}`,
		`{"response": "A first-in first-out collection."}`,
	}}
	assistant, _ := newAssistant(t, model, time.Second)
	tutor := ai.NewTutor(assistant)
	ctx := context.Background()
	bookCtx := "Stacks and queues are linear collections."

	reply, err := tutor.Ask(ctx, "sess-1", "book-1", ai.TutorQuestion{Text: "What is a stack?"}, bookCtx)
	require.NoError(t, err)
	assert.Equal(t, ai.Message{Sender: ai.SenderAI, Text: "A last-in first-out collection."}, reply)

	_, err = tutor.Ask(ctx, "sess-1", "book-1", ai.TutorQuestion{Text: "And a queue?"}, bookCtx)
	require.NoError(t, err)
	golden(t).Assert(t, "explain_prompt", []byte(model.lastPrompt()))

	history := tutor.History("sess-1", "book-1")
	require.Len(t, history, 4)
	assert.Equal(t, ai.SenderUser, history[2].Sender)
	assert.Equal(t, "And a queue?", history[2].Text)
	assert.Equal(t, "A first-in first-out collection.", history[3].Text)

	t.Run("conversations are per session and book", func(t *testing.T) {
		assert.Empty(t, tutor.History("sess-2", "book-1"))
		assert.Empty(t, tutor.History("sess-1", "book-2"))
	})

	t.Run("failed exchange is rolled back", func(t *testing.T) {
		model.mu.Lock()
		model.err = errors.New("quota exhausted")
		model.mu.Unlock()

		_, err := tutor.Ask(ctx, "sess-1", "book-1", ai.TutorQuestion{Text: "What about a deque?"}, bookCtx)
		assert.True(t, errors.Is(err, ai.ErrUnavailable))
		assert.Equal(t, history, tutor.History("sess-1", "book-1"))
	})

	t.Run("end session", func(t *testing.T) {
		tutor.Reset("sess-1", "book-2")
		assert.Equal(t, 1, tutor.EndSession("sess-1"))
		assert.Empty(t, tutor.History("sess-1", "book-1"))
		assert.Zero(t, tutor.EndSession("sess-1"))
	})
}

func TestTutor_ExpiredSession(t *testing.T) {
	model := &scriptedModel{responses: []string{`{"response": "Think of a pile of plates."}`}}
	assistant, _ := newAssistant(t, model, time.Second)
	tutor := ai.NewTutor(assistant)

	sessions := session.NewManager(time.Millisecond)
	sessions.OnEnd(func(ident session.Identity) { tutor.EndSession(ident.ID) })
	ident := sessions.Begin(session.Principal{UserID: "u1"})

	_, err := tutor.Ask(context.Background(), ident.ID, "book-1", ai.TutorQuestion{Text: "What is a stack?"}, "Stacks")
	require.NoError(t, err)
	require.Len(t, tutor.History(ident.ID, "book-1"), 2)

	// nobody logs out: the sweeper ends the session
	assert.Eventually(t, func() bool {
		sessions.Sweep()
		return sessions.Len() == 0
	}, time.Second, 5*time.Millisecond)
	assert.Empty(t, tutor.History(ident.ID, "book-1"))
	assert.Zero(t, tutor.EndSession(ident.ID))
}

func TestNewPrompts_MissingFlow(t *testing.T) {
	_, err := ai.NewPrompts(appfs.FS, appfs.EmailTemplatesDir)
	assert.Error(t, err)
}
