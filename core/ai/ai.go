// Package ai is the boundary to the generative model behind the summarizer, the tutor and the
// quiz generator. The model itself is opaque: a flow name, a rendered prompt and a typed output.
package ai

import (
	"context"
	"fmt"

	"github.com/go-playground/validator/v10"
	"github.com/pkg/errors"

	"github.com/trezcool/maktaba/core"
)

type Flow string

const (
	FlowSummarize Flow = "summarize"
	FlowExplain   Flow = "explain"
	FlowQuiz      Flow = "quiz"
)

var Flows = []Flow{FlowSummarize, FlowExplain, FlowQuiz}

func (f Flow) feature() string {
	switch f {
	case FlowSummarize:
		return "summarizer"
	case FlowExplain:
		return "tutor"
	case FlowQuiz:
		return "quiz generator"
	}
	return "assistant"
}

// Model generates a structured response for a flow. out is a pointer to the flow's output type,
// decoded from the model's JSON response.
type Model interface {
	Generate(ctx context.Context, flow Flow, prompt string, out interface{}) error
}

// ModelFunc adapts a function to the Model interface.
type ModelFunc func(ctx context.Context, flow Flow, prompt string, out interface{}) error

func (fn ModelFunc) Generate(ctx context.Context, flow Flow, prompt string, out interface{}) error {
	return fn(ctx, flow, prompt, out)
}

var (
	ErrUnavailable = errors.New("AI model unavailable")
	ErrBadOutput   = errors.New("malformed model output")
)

// UnavailableError is what callers get whenever a flow fails, whatever the cause.
type UnavailableError struct {
	Flow Flow
}

func (e *UnavailableError) Error() string {
	return fmt.Sprintf("The AI %s is currently unavailable. Please try again later.", e.Flow.feature())
}

func (e *UnavailableError) Is(target error) bool { return target == ErrUnavailable }

// DefaultQuizSize is used when no question count is requested.
const DefaultQuizSize = 5

type SummarizeInput struct {
	BookTitle    string `json:"book_title" validate:"required,notblank,max=200"`
	ChapterTitle string `json:"chapter_title" validate:"max=200"`
	Content      string `json:"content" validate:"required,notblank"`
}

func (in *SummarizeInput) Validate(validate *validator.Validate) error {
	in.BookTitle = core.CleanString(in.BookTitle)
	in.ChapterTitle = core.CleanString(in.ChapterTitle)
	return validate.Struct(in)
}

type SummarizeOutput struct {
	Summary string `json:"summary"`
}

func (out SummarizeOutput) check() error {
	if core.CleanString(out.Summary) == "" {
		return errors.Wrap(ErrBadOutput, "empty summary")
	}
	return nil
}

type Sender string

const (
	SenderUser Sender = "user"
	SenderAI   Sender = "ai"
)

type Message struct {
	Sender Sender `json:"sender" validate:"required,oneof=user ai"`
	Text   string `json:"text" validate:"required,notblank"`
}

type ExplainInput struct {
	Messages []Message `json:"messages" validate:"required,min=1,dive"`
	Context  string    `json:"context"`
}

func (in *ExplainInput) Validate(validate *validator.Validate) error {
	if err := validate.Struct(in); err != nil {
		return err
	}
	if in.Messages[len(in.Messages)-1].Sender != SenderUser {
		return core.NewFieldValidationError("messages", errors.New("the last message must come from the student"))
	}
	return nil
}

type ExplainOutput struct {
	Response string `json:"response"`
}

func (out ExplainOutput) check() error {
	if core.CleanString(out.Response) == "" {
		return errors.Wrap(ErrBadOutput, "empty response")
	}
	return nil
}

type QuizInput struct {
	BookTitle    string `json:"book_title" validate:"required,notblank,max=200"`
	ChapterTitle string `json:"chapter_title" validate:"max=200"`
	Content      string `json:"content" validate:"required,notblank"`
	Count        int    `json:"count" validate:"omitempty,min=1,max=20"`
}

func (in *QuizInput) Validate(validate *validator.Validate) error {
	in.BookTitle = core.CleanString(in.BookTitle)
	in.ChapterTitle = core.CleanString(in.ChapterTitle)
	return validate.Struct(in)
}

func (in QuizInput) size() int {
	if in.Count <= 0 {
		return DefaultQuizSize
	}
	return in.Count
}

// QuestionOptions is the number of options of every quiz question.
const QuestionOptions = 4

type Question struct {
	Question string   `json:"question"`
	Options  []string `json:"options"`
	Answer   string   `json:"answer"`
}

type QuizOutput struct {
	Questions []Question `json:"questions"`
}

// check rejects quizzes a student could not answer: no questions, a wrong number of options,
// or an answer that is not one of the options.
func (out QuizOutput) check() error {
	if len(out.Questions) == 0 {
		return errors.Wrap(ErrBadOutput, "no questions")
	}
	for i, q := range out.Questions {
		if core.CleanString(q.Question) == "" {
			return errors.Wrapf(ErrBadOutput, "question %d is empty", i+1)
		}
		if len(q.Options) != QuestionOptions {
			return errors.Wrapf(ErrBadOutput, "question %d has %d options", i+1, len(q.Options))
		}
		if !core.StringInSlice(q.Answer, q.Options) {
			return errors.Wrapf(ErrBadOutput, "question %d answer is not an option", i+1)
		}
	}
	return nil
}
