package dig_container

import (
	"context"
	"log"

	ut "github.com/go-playground/universal-translator"
	"github.com/go-playground/validator/v10"
	"github.com/pkg/errors"
	"go.uber.org/dig"
	"go.uber.org/zap"

	echoapi "github.com/trezcool/maktaba/apps/api/echo"
	"github.com/trezcool/maktaba/core"
	"github.com/trezcool/maktaba/core/ai"
	"github.com/trezcool/maktaba/core/chat"
	"github.com/trezcool/maktaba/core/library"
	"github.com/trezcool/maktaba/core/notification"
	"github.com/trezcool/maktaba/core/remark"
	"github.com/trezcool/maktaba/core/session"
	"github.com/trezcool/maktaba/core/store"
	"github.com/trezcool/maktaba/core/user"
	appfs "github.com/trezcool/maktaba/fs"
	aisvc "github.com/trezcool/maktaba/services/ai"
	emailsvc "github.com/trezcool/maktaba/services/email"
	logsvc "github.com/trezcool/maktaba/services/logger"
	"github.com/trezcool/maktaba/storage/blob"
	"github.com/trezcool/maktaba/storage/slot"
)

type StorageLoggerParam struct {
	dig.In
	Logger core.Logger `name:"storageLogger"`
}

func newLogger(zl *zap.Logger, conf *core.Config) core.Logger {
	logger := logsvc.NewRollbarLogger(zl.Named("api"), conf)
	logger.Enable(!conf.Debug && conf.RollbarToken != "")
	return logger
}

func newStorageLogger(zl *zap.Logger, conf *core.Config) core.Logger {
	return logsvc.NewRollbarLogger(zl.Named("storage"), conf)
}

func newSlot(conf *core.Config, loggerParam StorageLoggerParam) (store.Slot, error) {
	s, err := slot.Open(conf, loggerParam.Logger)
	if err != nil {
		return nil, errors.Wrap(err, "opening slot storage")
	}
	return s, nil
}

func newBus() store.Bus {
	return store.NewLocalBus()
}

// newSessions ends tutor conversations along with their session, however it ends.
func newSessions(conf *core.Config, tutor *ai.Tutor) *session.Manager {
	m := session.NewManager(conf.Server.SessionTTL)
	m.OnEnd(func(ident session.Identity) { tutor.EndSession(ident.ID) })
	return m
}

func newEmailService(conf *core.Config, logger core.Logger) core.EmailService {
	if conf.Debug || conf.SendgridApiKey == "" {
		return emailsvc.NewConsoleService(conf, logger)
	}
	return emailsvc.NewSendgridService(conf, logger)
}

func newUploads(conf *core.Config) (*blob.Dir, error) {
	return blob.New(conf.Uploads.Dir, conf.Uploads.BaseURL, conf.Uploads.MaxSize)
}

func newLibrary(stores library.Stores, uploads *blob.Dir, feed *notification.Feed, conf *core.Config, logger core.Logger) *library.Service {
	return library.NewService(stores, uploads, feed, conf, logger)
}

func newRemarks(s *store.Store[remark.Remark], lib *library.Service) *remark.Service {
	return remark.NewService(s, lib.HasBook, user.DefaultAvatarURL)
}

func newModel(conf *core.Config, logger core.Logger) (ai.Model, error) {
	return aisvc.New(context.Background(), conf, logger)
}

func newPrompts() (*ai.Prompts, error) {
	return ai.NewPrompts(appfs.FS, appfs.PromptTemplatesDir)
}

type serverParams struct {
	dig.In

	Conf       *core.Config
	Logger     core.Logger
	Validate   *validator.Validate
	Translator ut.Translator
	Bus        store.Bus
	Sessions   *session.Manager
	Users      user.Service
	Library    *library.Service
	Feed       *notification.Feed
	Chat       *chat.Room
	Remarks    *remark.Service
	Assistant  *ai.Assistant
	Tutor      *ai.Tutor
	Uploads    *blob.Dir
}

func newServer(p serverParams) *echoapi.Server {
	return echoapi.NewServer(echoapi.Deps{
		Conf:       p.Conf,
		Logger:     p.Logger,
		Validate:   p.Validate,
		Translator: p.Translator,
		Bus:        p.Bus,
		Sessions:   p.Sessions,
		Users:      p.Users,
		Library:    p.Library,
		Feed:       p.Feed,
		Chat:       p.Chat,
		Remarks:    p.Remarks,
		Assistant:  p.Assistant,
		Tutor:      p.Tutor,
		Uploads:    p.Uploads,
	})
}

// New returns a new dependency injection dig.Container
func New() *dig.Container {
	c := dig.New()

	// ambient
	must(c.Provide(core.NewConfig))
	must(c.Provide(logsvc.NewZap))
	must(c.Provide(newLogger))
	must(c.Provide(newStorageLogger, dig.Name("storageLogger")))
	must(c.Provide(validator.New))
	must(c.Provide(core.NewTranslator))
	must(c.Provide(newEmailService))

	// storage
	must(c.Provide(newSlot))
	must(c.Provide(newBus))
	must(c.Provide(newUploads))
	must(c.Provide(newSessions))

	// collections & services
	must(c.Provide(notification.NewStore))
	must(c.Provide(notification.NewFeed))
	must(c.Provide(user.NewStore))
	must(c.Provide(user.NewService))
	must(c.Provide(library.NewStores))
	must(c.Provide(newLibrary))
	must(c.Provide(chat.NewStore))
	must(c.Provide(chat.NewRoom))
	must(c.Provide(remark.NewStore))
	must(c.Provide(newRemarks))

	// AI
	must(c.Provide(newModel))
	must(c.Provide(newPrompts))
	must(c.Provide(ai.NewAssistant))
	must(c.Provide(ai.NewTutor))

	must(c.Provide(newServer))

	return c
}

// must exits program if err happened
func must(err error) {
	if err != nil {
		log.Fatal(errors.Wrap(err, "failed to provide dependency").Error())
	}
}
