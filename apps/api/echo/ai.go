package echoapi

import (
	"net/http"
	"strings"

	"github.com/go-playground/validator/v10"
	"github.com/labstack/echo/v4"
	"github.com/pkg/errors"

	"github.com/trezcool/maktaba/core/ai"
	"github.com/trezcool/maktaba/core/library"
)

type aiApi struct {
	assistant *ai.Assistant
	tutor     *ai.Tutor
	validate  *validator.Validate
}

func (s *Server) registerAIAPI(g *echo.Group, authed []echo.MiddlewareFunc) {
	api := aiApi{assistant: s.deps.Assistant, tutor: s.deps.Tutor, validate: s.deps.Validate}

	ag := g.Group("/ai")
	ag.POST("/summarize", api.summarize, authed...)
	ag.POST("/explain", api.explain, authed...)
	ag.POST("/quiz", api.quiz, authed...)

	withBook := append(append([]echo.MiddlewareFunc{}, authed...), bookMiddleware(s.deps.Library))
	g.GET("/books/:id/tutor", api.tutorHistory, withBook...)
	g.POST("/books/:id/tutor", api.tutorAsk, withBook...)
	g.DELETE("/books/:id/tutor", api.tutorReset, withBook...)
}

func (api *aiApi) summarize(ctx echo.Context) error {
	var data ai.SummarizeInput
	if err := ctx.Bind(&data); err != nil {
		return errors.Wrap(err, "binding to SummarizeInput")
	}
	if err := data.Validate(api.validate); err != nil {
		return err
	}
	out, err := api.assistant.Summarize(ctx.Request().Context(), data)
	if err != nil {
		return err
	}
	return ctx.JSON(http.StatusOK, out)
}

func (api *aiApi) explain(ctx echo.Context) error {
	var data ai.ExplainInput
	if err := ctx.Bind(&data); err != nil {
		return errors.Wrap(err, "binding to ExplainInput")
	}
	if err := data.Validate(api.validate); err != nil {
		return err
	}
	out, err := api.assistant.Explain(ctx.Request().Context(), data)
	if err != nil {
		return err
	}
	return ctx.JSON(http.StatusOK, out)
}

func (api *aiApi) quiz(ctx echo.Context) error {
	var data ai.QuizInput
	if err := ctx.Bind(&data); err != nil {
		return errors.Wrap(err, "binding to QuizInput")
	}
	if err := data.Validate(api.validate); err != nil {
		return err
	}
	out, err := api.assistant.GenerateQuiz(ctx.Request().Context(), data)
	if err != nil {
		return err
	}
	return ctx.JSON(http.StatusOK, out)
}

// bookContext is what the tutor knows about a book.
func bookContext(b library.Book) string {
	var sb strings.Builder
	sb.WriteString(b.Title + " by " + b.Author)
	if b.Category != "" {
		sb.WriteString(" (" + b.Category + ")")
	}
	sb.WriteString(".")
	if b.Description != "" {
		sb.WriteString("\n" + b.Description)
	}
	return sb.String()
}

type TutorReply struct {
	Reply   ai.Message   `json:"reply"`
	History []ai.Message `json:"history"`
}

func (api *aiApi) tutorHistory(ctx echo.Context) error {
	book := ctx.Get(contextObjectKey).(library.Book)
	ident, _ := getContextSession(ctx)
	return ctx.JSON(http.StatusOK, api.tutor.History(ident.ID, book.ID))
}

func (api *aiApi) tutorAsk(ctx echo.Context) error {
	book := ctx.Get(contextObjectKey).(library.Book)
	ident, _ := getContextSession(ctx)

	var data ai.TutorQuestion
	if err := ctx.Bind(&data); err != nil {
		return errors.Wrap(err, "binding to TutorQuestion")
	}
	if err := data.Validate(api.validate); err != nil {
		return err
	}

	reply, err := api.tutor.Ask(ctx.Request().Context(), ident.ID, book.ID, data, bookContext(book))
	if err != nil {
		return err
	}
	return ctx.JSON(http.StatusOK, TutorReply{Reply: reply, History: api.tutor.History(ident.ID, book.ID)})
}

func (api *aiApi) tutorReset(ctx echo.Context) error {
	book := ctx.Get(contextObjectKey).(library.Book)
	ident, _ := getContextSession(ctx)
	api.tutor.Reset(ident.ID, book.ID)
	return ctx.NoContent(http.StatusNoContent)
}
