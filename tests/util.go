// Package testutil wires the application services on in-memory storage for tests.
package testutil

import (
	"context"
	"testing"
	"time"

	ut "github.com/go-playground/universal-translator"
	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"
	"github.com/pkg/errors"
	"github.com/stretchr/testify/require"

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
	"github.com/trezcool/maktaba/services/email"
	"github.com/trezcool/maktaba/storage/blob"
	"github.com/trezcool/maktaba/storage/slot/memory"
)

type Env struct {
	Conf       *core.Config
	Validate   *validator.Validate
	Translator ut.Translator

	Slot      *memory.Slot
	Bus       *store.LocalBus
	Sessions  *session.Manager
	UserStore *store.Store[user.User]
	Users     user.Service
	Library   *library.Service
	Feed      *notification.Feed
	Chat      *chat.Room
	Remarks   *remark.Service
	Assistant *ai.Assistant
	Tutor     *ai.Tutor
	Uploads   *blob.Dir
}

// NewEnv builds every service over a fresh memory slot. model backs the AI flows;
// a nil model makes them fail.
func NewEnv(t *testing.T, model ai.Model) *Env {
	t.Helper()
	conf := core.NewTestConfig()
	require.NoError(t, core.ParseEmailTemplates(appfs.FS, appfs.EmailTemplatesDir, conf))
	require.NoError(t, user.LoadCommonPasswords(appfs.FS, "assets/common-passwords.txt.gz"))

	env := &Env{
		Conf:       conf,
		Validate:   validator.New(),
		Translator: core.NewTranslator(),
		Slot:       memory.New(0),
		Bus:        store.NewLocalBus(),
		Sessions:   session.NewManager(conf.Server.SessionTTL),
	}

	var err error
	env.UserStore, err = user.NewStore(env.Slot, env.Bus, conf, nil)
	require.NoError(t, err)
	env.Feed = notification.NewFeed(notification.NewStore(env.Slot, env.Bus, conf, nil))
	emailsvc.ResetSentMessages()
	env.Users = user.NewService(env.UserStore, env.Feed, emailsvc.NewConsoleServiceMock(conf), env.Validate, conf)

	stores, err := library.NewStores(env.Slot, env.Bus, conf, nil)
	require.NoError(t, err)
	env.Uploads, err = blob.New(t.TempDir(), conf.Uploads.BaseURL, conf.Uploads.MaxSize)
	require.NoError(t, err)
	env.Library = library.NewService(stores, env.Uploads, env.Feed, conf, nil)

	env.Chat = chat.NewRoom(chat.NewStore(env.Slot, env.Bus, conf, nil))
	env.Remarks = remark.NewService(remark.NewStore(env.Slot, env.Bus, conf, nil), env.Library.HasBook, user.DefaultAvatarURL)

	if model == nil {
		model = ai.ModelFunc(func(ctx context.Context, flow ai.Flow, prompt string, out interface{}) error {
			return errors.New("no model")
		})
	}
	prompts, err := ai.NewPrompts(appfs.FS, appfs.PromptTemplatesDir)
	require.NoError(t, err)
	env.Assistant = ai.NewAssistant(model, prompts, conf, nil)
	env.Tutor = ai.NewTutor(env.Assistant)
	env.Sessions.OnEnd(func(ident session.Identity) { env.Tutor.EndSession(ident.ID) })

	core.InitValidators(env.Validate, env.Translator)
	user.InitValidators(env.Validate, env.Translator)
	library.InitValidators(env.Validate, env.Translator, env.Library)
	return env
}

// CreateUser stores an account directly, bypassing signup.
func CreateUser(t *testing.T, env *Env, name, email, pwd string, roles []string, isActive bool) user.User {
	t.Helper()
	now := time.Now().UTC()
	usr := user.User{
		ID:         uuid.NewString(),
		Name:       name,
		Email:      email,
		AvatarURL:  user.DefaultAvatarURL,
		Roles:      roles,
		SignedUpAt: now,
		UpdatedAt:  now,
	}
	usr.SetActive(isActive)
	if pwd != "" {
		if err := usr.SetPassword(pwd); err != nil {
			t.Fatalf("CreateUser() failed: %v", err)
		}
	}
	if err := env.UserStore.Insert(context.Background(), usr).Err(); err != nil {
		t.Fatalf("CreateUser() failed: %v", err)
	}
	return usr
}
