package echoapi

import (
	"net/http"

	"github.com/go-playground/validator/v10"
	"github.com/labstack/echo/v4"
	"github.com/pkg/errors"

	"github.com/trezcool/maktaba/core/notification"
)

type notificationApi struct {
	feed     *notification.Feed
	validate *validator.Validate
}

type FeedResponse struct {
	Unread        int                         `json:"unread"`
	Notifications []notification.Notification `json:"notifications"`
}

func (s *Server) registerNotificationAPI(g *echo.Group, authed, admin []echo.MiddlewareFunc) {
	api := notificationApi{feed: s.deps.Feed, validate: s.deps.Validate}

	g.GET("/notifications", api.query, authed...)
	g.POST("/notifications/read", api.markAllRead, authed...)
	g.DELETE("/notifications", api.clear, authed...)
	g.POST("/notifications", api.create, admin...)
}

func (api *notificationApi) query(ctx echo.Context) error {
	return ctx.JSON(http.StatusOK, FeedResponse{
		Unread:        api.feed.UnreadCount(),
		Notifications: api.feed.All(),
	})
}

func (api *notificationApi) markAllRead(ctx echo.Context) error {
	if err := api.feed.MarkAllRead(ctx.Request().Context()).Err(); err != nil {
		return err
	}
	return api.query(ctx)
}

func (api *notificationApi) clear(ctx echo.Context) error {
	if err := api.feed.Clear(ctx.Request().Context()).Err(); err != nil {
		return err
	}
	return ctx.NoContent(http.StatusNoContent)
}

// create lets admins post announcements.
func (api *notificationApi) create(ctx echo.Context) error {
	var data notification.New
	if err := ctx.Bind(&data); err != nil {
		return errors.Wrap(err, "binding to notification.New")
	}
	if data.Type == "" {
		data.Type = notification.TypeGeneral
	}
	if err := api.validate.Struct(data); err != nil {
		return err
	}

	n, res := api.feed.Produce(ctx.Request().Context(), data)
	if err := res.Err(); err != nil {
		return err
	}
	return ctx.JSON(http.StatusCreated, n)
}
