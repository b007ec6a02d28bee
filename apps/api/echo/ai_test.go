package echoapi_test

import (
	"context"
	"encoding/json"
	"net/http"
	"strings"
	"sync"
	"testing"

	"github.com/pkg/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	. "github.com/trezcool/maktaba/apps/api/echo"
	"github.com/trezcool/maktaba/core/ai"
	"github.com/trezcool/maktaba/core/library"
)

// cannedModel answers every flow with a fixed JSON document and records the prompts.
type cannedModel struct {
	mu      sync.Mutex
	replies map[ai.Flow]string
	prompts []string
}

func (m *cannedModel) Generate(ctx context.Context, flow ai.Flow, prompt string, out interface{}) error {
	m.mu.Lock()
	m.prompts = append(m.prompts, prompt)
	reply, ok := m.replies[flow]
	m.mu.Unlock()
	if !ok {
		return errors.New("model down")
	}
	return json.Unmarshal([]byte(reply), out)
}

func (m *cannedModel) lastPrompt() string {
	m.mu.Lock()
	defer m.mu.Unlock()
	if len(m.prompts) == 0 {
		return ""
	}
	return m.prompts[len(m.prompts)-1]
}

const quizReply = `{"questions": [
	{"question": "What is a stack?", "options": ["LIFO", "FIFO", "Tree", "Graph"], "answer": "LIFO"},
	{"question": "What is a queue?", "options": ["LIFO", "FIFO", "Tree", "Graph"], "answer": "FIFO"}
]}`

func Test_aiApi_flows(t *testing.T) {
	model := &cannedModel{replies: map[ai.Flow]string{
		ai.FlowSummarize: `{"summary": "Stacks are LIFO."}`,
		ai.FlowExplain:   `{"response": "A stack is last in, first out."}`,
		ai.FlowQuiz:      quizReply,
	}}
	app := setup(t, model)
	token := studentToken(t, app)

	runHttpTests(t, app, []httpTest{
		{name: "auth required", method: http.MethodPost, path: "/v1/ai/summarize", body: []byte(`{}`), wantCode: http.StatusUnauthorized},
		{
			name: "summarize", method: http.MethodPost, path: "/v1/ai/summarize", token: token,
			body:     marchallObj(t, ai.SummarizeInput{BookTitle: "Data Structures", ChapterTitle: "Stacks", Content: "A stack is..."}),
			wantData: marchallObj(t, ai.SummarizeOutput{Summary: "Stacks are LIFO."}),
		},
		{
			name: "summarize needs content", method: http.MethodPost, path: "/v1/ai/summarize", token: token,
			body: []byte(`{"book_title": "Data Structures", "content": "  "}`), wantCode: http.StatusBadRequest,
		},
		{
			name: "explain", method: http.MethodPost, path: "/v1/ai/explain", token: token,
			body: marchallObj(t, ai.ExplainInput{
				Messages: []ai.Message{{Sender: ai.SenderUser, Text: "What is a stack?"}},
				Context:  "Data Structures",
			}),
			wantData: marchallObj(t, ai.ExplainOutput{Response: "A stack is last in, first out."}),
		},
		{
			name: "explain needs a question last", method: http.MethodPost, path: "/v1/ai/explain", token: token,
			body: marchallObj(t, ai.ExplainInput{
				Messages: []ai.Message{{Sender: ai.SenderAI, Text: "Hi!"}},
			}),
			wantCode: http.StatusBadRequest,
		},
		{
			name: "quiz", method: http.MethodPost, path: "/v1/ai/quiz", token: token,
			body: marchallObj(t, ai.QuizInput{BookTitle: "Data Structures", Content: "Stacks and queues", Count: 2}),
		},
		{
			name: "quiz count bounded", method: http.MethodPost, path: "/v1/ai/quiz", token: token,
			body: marchallObj(t, ai.QuizInput{BookTitle: "Data Structures", Content: "Stacks", Count: 50}), wantCode: http.StatusBadRequest,
		},
	})
	assert.Contains(t, model.lastPrompt(), "Write exactly 2 questions")
}

func Test_aiApi_unavailable(t *testing.T) {
	app := setup(t, &cannedModel{})
	token := studentToken(t, app)

	runHttpTests(t, app, []httpTest{
		{
			name: "summarizer", method: http.MethodPost, path: "/v1/ai/summarize", token: token,
			body:     marchallObj(t, ai.SummarizeInput{BookTitle: "Data Structures", Content: "A stack is..."}),
			wantCode: http.StatusServiceUnavailable,
			wantData: marchallObj(t, httpErr{Error: "The AI summarizer is currently unavailable. Please try again later."}),
		},
		{
			name: "quiz generator", method: http.MethodPost, path: "/v1/ai/quiz", token: token,
			body:     marchallObj(t, ai.QuizInput{BookTitle: "Data Structures", Content: "Stacks"}),
			wantCode: http.StatusServiceUnavailable,
			wantData: marchallObj(t, httpErr{Error: "The AI quiz generator is currently unavailable. Please try again later."}),
		},
	})
}

func Test_aiApi_tutor(t *testing.T) {
	model := &cannedModel{replies: map[ai.Flow]string{ai.FlowExplain: `{"response": "Think of a pile of plates."}`}}
	app := setup(t, model)
	token := studentToken(t, app)
	otherToken := adminToken(t, app)
	book := app.Library.Books(library.BookFilter{})[0]
	path := "/v1/books/" + book.ID + "/tutor"

	req, rec := newAuthRequest(http.MethodGet, path, token)
	app.serve(req, rec)
	checkCodeAndData(t, httpTest{wantCode: http.StatusOK, wantData: marchallList(t)}, rec)

	req, rec = newAuthRequest(http.MethodPost, path, token, []byte(`{"text": "What is recursion?"}`))
	app.serve(req, rec)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	var reply TutorReply
	unmarshal(t, rec, &reply)
	assert.Equal(t, ai.Message{Sender: ai.SenderAI, Text: "Think of a pile of plates."}, reply.Reply)
	require.Len(t, reply.History, 2)
	assert.Equal(t, "What is recursion?", reply.History[0].Text)
	assert.True(t, strings.Contains(model.lastPrompt(), book.Title), "the book is the tutor's context")

	// conversations are per session
	req, rec = newAuthRequest(http.MethodGet, path, otherToken)
	app.serve(req, rec)
	checkCodeAndData(t, httpTest{wantCode: http.StatusOK, wantData: marchallList(t)}, rec)

	runHttpTests(t, app, []httpTest{
		{name: "blank question", method: http.MethodPost, path: path, token: token, body: []byte(`{"text": "   "}`), wantCode: http.StatusBadRequest},
		{name: "unknown book", path: "/v1/books/nope/tutor", token: token, wantCode: http.StatusNotFound},
		{name: "reset", method: http.MethodDelete, path: path, token: token, wantCode: http.StatusNoContent},
		{name: "history after reset", path: path, token: token, wantData: marchallList(t)},
	})

	// logging out forgets the conversations
	req, rec = newAuthRequest(http.MethodPost, path, token, []byte(`{"text": "And iteration?"}`))
	app.serve(req, rec)
	require.Equal(t, http.StatusOK, rec.Code)
	req, rec = newAuthRequest(http.MethodGet, "/v1/users/me", token)
	app.serve(req, rec)
	var me MeResponse
	unmarshal(t, rec, &me)
	require.Len(t, app.Tutor.History(me.Session.ID, book.ID), 2)

	req, rec = newAuthRequest(http.MethodPost, "/v1/users/logout", token)
	app.serve(req, rec)
	require.Equal(t, http.StatusNoContent, rec.Code)
	assert.Empty(t, app.Tutor.History(me.Session.ID, book.ID))
}
