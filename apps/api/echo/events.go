package echoapi

import (
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/labstack/echo/v4"

	"github.com/trezcool/maktaba/core/store"
)

const (
	eventsBuffer    = 64
	eventsHeartbeat = 30 * time.Second
)

func (s *Server) registerEventsAPI(g *echo.Group) {
	g.GET("/events", s.events)
}

// events streams slot change signals as server-sent events so clients can refetch the
// collections that changed. Signals only name the changed slot.
func (s *Server) events(ctx echo.Context) error {
	signals := make(chan store.Signal, eventsBuffer)
	cancel := s.deps.Bus.Subscribe(store.AnyKey, func(sig store.Signal) {
		select {
		case signals <- sig:
		default: // slow client: drop, the next signal triggers a refetch anyway
		}
	})
	defer cancel()

	res := ctx.Response()
	res.Header().Set(echo.HeaderContentType, "text/event-stream")
	res.Header().Set("Cache-Control", "no-cache")
	res.Header().Set("Connection", "keep-alive")
	res.WriteHeader(http.StatusOK)
	if _, err := fmt.Fprint(res, ": connected\n\n"); err != nil {
		return nil
	}
	res.Flush()

	heartbeat := time.NewTicker(eventsHeartbeat)
	defer heartbeat.Stop()
	done := ctx.Request().Context().Done()
	for {
		select {
		case <-done:
			return nil
		case <-heartbeat.C:
			if _, err := fmt.Fprint(res, ": ping\n\n"); err != nil {
				return nil
			}
		case sig := <-signals:
			data, err := json.Marshal(sig)
			if err != nil {
				return err
			}
			if _, err = fmt.Fprintf(res, "event: change\ndata: %s\n\n", data); err != nil {
				return nil
			}
		}
		res.Flush()
	}
}
