package echoapi

import (
	"net/http"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/labstack/echo/v4"
	"github.com/pkg/errors"

	"github.com/trezcool/maktaba/core/chat"
	"github.com/trezcool/maktaba/core/library"
	"github.com/trezcool/maktaba/core/remark"
	"github.com/trezcool/maktaba/core/user"
)

type chatApi struct {
	room     *chat.Room
	users    user.Service
	validate *validator.Validate
}

func (s *Server) registerChatAPI(g *echo.Group, authed []echo.MiddlewareFunc) {
	api := chatApi{room: s.deps.Chat, users: s.deps.Users, validate: s.deps.Validate}

	g.GET("/chat", api.query, authed...)
	g.POST("/chat", api.send, authed...)
}

// query returns the room history, or only the messages after `since` (RFC 3339).
func (api *chatApi) query(ctx echo.Context) error {
	if since := ctx.QueryParam("since"); since != "" {
		t, err := time.Parse(time.RFC3339Nano, since)
		if err != nil {
			return echo.NewHTTPError(http.StatusBadRequest, "since must be an RFC 3339 timestamp")
		}
		return ctx.JSON(http.StatusOK, api.room.Since(t))
	}
	return ctx.JSON(http.StatusOK, api.room.Messages())
}

func (api *chatApi) send(ctx echo.Context) error {
	var data chat.NewMessage
	if err := ctx.Bind(&data); err != nil {
		return errors.Wrap(err, "binding to NewMessage")
	}
	if err := data.Validate(api.validate); err != nil {
		return err
	}
	author, err := contextAuthor(ctx, api.users)
	if err != nil {
		return err
	}

	msg, res := api.room.Send(ctx.Request().Context(), data, author)
	if err := res.Err(); err != nil {
		return err
	}
	return ctx.JSON(http.StatusCreated, msg)
}

type remarkApi struct {
	svc      *remark.Service
	users    user.Service
	validate *validator.Validate
}

func (s *Server) registerRemarkAPI(g *echo.Group, authed []echo.MiddlewareFunc) {
	api := remarkApi{svc: s.deps.Remarks, users: s.deps.Users, validate: s.deps.Validate}
	withBook := append(append([]echo.MiddlewareFunc{}, authed...), bookMiddleware(s.deps.Library))

	g.GET("/books/:id/remarks", api.query, withBook...)
	g.POST("/books/:id/remarks", api.create, withBook...)
	g.DELETE("/books/:id/remarks/:remarkID", api.destroy, withBook...)
}

func (api *remarkApi) query(ctx echo.Context) error {
	book := ctx.Get(contextObjectKey).(library.Book)
	return ctx.JSON(http.StatusOK, api.svc.ForBook(book.ID))
}

func (api *remarkApi) create(ctx echo.Context) error {
	book := ctx.Get(contextObjectKey).(library.Book)

	var data remark.NewRemark
	if err := ctx.Bind(&data); err != nil {
		return errors.Wrap(err, "binding to NewRemark")
	}
	if err := data.Validate(api.validate); err != nil {
		return err
	}
	author, err := contextAuthor(ctx, api.users)
	if err != nil {
		return err
	}

	r, res := api.svc.Add(ctx.Request().Context(), book.ID, data, &author)
	if err := res.Err(); err != nil {
		return err
	}
	return ctx.JSON(http.StatusCreated, r)
}

func (api *remarkApi) destroy(ctx echo.Context) error {
	author, err := contextAuthor(ctx, api.users)
	if err != nil {
		return err
	}
	claims, err := getContextClaims(ctx)
	if err != nil {
		return err
	}

	res, allowed := api.svc.Delete(ctx.Request().Context(), ctx.Param("remarkID"), author, claims.IsAdmin)
	if !allowed {
		return errHttpForbidden
	}
	if err := res.Err(); err != nil {
		return err
	}
	return ctx.NoContent(http.StatusNoContent)
}
