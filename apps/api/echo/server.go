package echoapi

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	ut "github.com/go-playground/universal-translator"
	"github.com/go-playground/validator/v10"
	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"
	"github.com/labstack/gommon/log"

	"github.com/trezcool/maktaba/core"
	"github.com/trezcool/maktaba/core/ai"
	"github.com/trezcool/maktaba/core/chat"
	"github.com/trezcool/maktaba/core/library"
	"github.com/trezcool/maktaba/core/notification"
	"github.com/trezcool/maktaba/core/remark"
	"github.com/trezcool/maktaba/core/session"
	"github.com/trezcool/maktaba/core/store"
	"github.com/trezcool/maktaba/core/user"
	"github.com/trezcool/maktaba/storage/blob"
)

// Deps are the services the API exposes.
type Deps struct {
	Conf       *core.Config
	Logger     core.Logger
	Validate   *validator.Validate
	Translator ut.Translator

	Bus       store.Bus
	Sessions  *session.Manager
	Users     user.Service
	Library   *library.Service
	Feed      *notification.Feed
	Chat      *chat.Room
	Remarks   *remark.Service
	Assistant *ai.Assistant
	Tutor     *ai.Tutor
	Uploads   *blob.Dir

	DisableReqLogs bool
}

type Server struct {
	deps     Deps
	app      *echo.Echo
	errors   chan error
	shutdown chan os.Signal
}

func NewServer(deps Deps) *Server {
	if deps.Logger == nil {
		deps.Logger = core.NopLogger{}
	}
	s := &Server{
		deps:     deps,
		app:      echo.New(),
		errors:   make(chan error, 1),
		shutdown: make(chan os.Signal, 1),
	}
	signal.Notify(s.shutdown, os.Interrupt, syscall.SIGTERM)
	s.setup()
	return s
}

func (s *Server) setup() {
	conf := s.deps.Conf

	s.app.HideBanner = true
	s.app.Pre(middleware.RemoveTrailingSlash())
	if !s.deps.DisableReqLogs {
		s.app.Use(middleware.Logger())
	}
	// do not recover in DEV|TEST mode
	if !(conf.Debug || conf.TestMode) {
		s.app.Use(middleware.RecoverWithConfig(middleware.RecoverConfig{LogLevel: log.ERROR}))
	}
	s.app.Use(middleware.CORS())

	s.app.HTTPErrorHandler = newAppHTTPErrorHandler(s.deps.Logger, s.deps.Translator, s.SignalShutdown)
	s.app.Debug = conf.Debug

	s.app.GET("/", s.home)
	if s.deps.Uploads != nil {
		s.app.Static(conf.Uploads.BaseURL, s.deps.Uploads.Root())
	}

	v1 := s.app.Group("/v1")
	jwt := middleware.JWTWithConfig(jwtConfig(conf))
	authed := []echo.MiddlewareFunc{jwt, s.sessionMiddleware(session.RequireUser)}
	admin := []echo.MiddlewareFunc{jwt, s.sessionMiddleware(session.RequireAdmin), adminMiddleware()}

	s.registerUserAPI(v1, authed, admin)
	s.registerLibraryAPI(v1, authed, admin)
	s.registerNotificationAPI(v1, authed, admin)
	s.registerChatAPI(v1, authed)
	s.registerAIAPI(v1, authed)
	s.registerEventsAPI(v1)
}

// Start serves the API until it is shut down. Failures are reported on Errors.
func (s *Server) Start() {
	if err := s.app.Start(s.deps.Conf.Address()); err != nil && err != http.ErrServerClosed {
		s.errors <- err
	}
}

func (s *Server) Errors() <-chan error { return s.errors }

func (s *Server) ShutdownSignal() <-chan os.Signal { return s.shutdown }

// SignalShutdown asks the process to shut down gracefully.
func (s *Server) SignalShutdown() {
	select {
	case s.shutdown <- syscall.SIGTERM:
	default:
	}
}

func (s *Server) Shutdown(ctx context.Context) error {
	signal.Stop(s.shutdown)
	return s.app.Shutdown(ctx)
}

func (s *Server) Close() error {
	signal.Stop(s.shutdown)
	return s.app.Close()
}

func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) { // for tests
	s.app.ServeHTTP(w, r)
}

func (s *Server) home(ctx echo.Context) error {
	return ctx.String(http.StatusOK, "Welcome to "+s.deps.Conf.AppName+" API!")
}
