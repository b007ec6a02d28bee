package main

import (
	"bytes"
	"database/sql"
	"fmt"
	"io/fs"
	"strconv"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/trezcool/maktaba/core/library"
	"github.com/trezcool/maktaba/core/store"
	"github.com/trezcool/maktaba/core/user"
	"github.com/trezcool/maktaba/storage/slot/memory"
	"github.com/trezcool/maktaba/tests"
)

func setup(t *testing.T) (*commandLine, *testutil.Env) {
	env := testutil.NewEnv(t, nil)
	return &commandLine{
		conf:   env.Conf,
		slot:   env.Slot,
		users:  env.UserStore,
		usrSvc: env.Users,
	}, env
}

type cliTest struct {
	name       string
	args       []string // without program name
	pwd        string
	wantErr    error
	wantErrStr string
}

func run(cli *commandLine, args ...string) (string, error) {
	var out bytes.Buffer
	cmd := newRootCommand(cli)
	cmd.SetArgs(args)
	cmd.SetOut(&out)
	cmd.SetErr(&out)
	err := cmd.Execute()
	return out.String(), err
}

func runCliTests(t *testing.T, cli *commandLine, tests []cliTest) {
	t.Helper()
	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			readPasswordFunc = func(fd int) ([]byte, error) { return []byte(tt.pwd), nil }

			_, err := run(cli, tt.args...)
			switch {
			case tt.wantErr != nil:
				assert.Equal(t, tt.wantErr, err)
			case tt.wantErrStr != "":
				require.Error(t, err)
				assert.Equal(t, tt.wantErrStr, err.Error())
			default:
				assert.NoError(t, err)
			}
		})
	}
}

type sqlSlot struct {
	*memory.Slot
}

func (sqlSlot) DB() *sql.DB { return nil }

func Test_commandLine_migrate(t *testing.T) {
	cli, env := setup(t)

	gooseRunFunc = func(command string, db *sql.DB, fsys fs.FS, dir string, args ...string) error {
		switch command {
		case "up", "up-by-one", "down", "fix", "redo", "reset", "status", "version": // pass
		case "up-to":
			if len(args) == 0 {
				return fmt.Errorf("up-to must be of form: goose [OPTIONS] DRIVER DBSTRING up-to VERSION")
			}
			if _, err := strconv.ParseInt(args[0], 10, 64); err != nil {
				return fmt.Errorf("version must be a number (got '%s')", args[0])
			}
		case "create":
			if len(args) == 0 {
				return fmt.Errorf("create must be of form: goose [OPTIONS] DRIVER DBSTRING create NAME [go|sql]")
			}
		case "down-to":
			if len(args) == 0 {
				return fmt.Errorf("down-to must be of form: goose [OPTIONS] DRIVER DBSTRING down-to VERSION")
			}
			if _, err := strconv.ParseInt(args[0], 10, 64); err != nil {
				return fmt.Errorf("version must be a number (got '%s')", args[0])
			}
		default:
			return fmt.Errorf("%q: no such command", command)
		}
		return nil
	}

	runCliTests(t, cli, []cliTest{
		{name: "memory backend", args: []string{"migrate", "up"}, wantErr: errNoDatabase},
	})

	cli.slot = sqlSlot{env.Slot}
	runCliTests(t, cli, []cliTest{
		{name: "no subcommand", args: []string{"migrate"}, wantErr: errHelp},
		{name: "unknown subcommand", args: []string{"migrate", "lol"}, wantErrStr: "\"lol\": no such command"},
		{name: "up-to: no args", args: []string{"migrate", "up-to"}, wantErrStr: "up-to must be of form: goose [OPTIONS] DRIVER DBSTRING up-to VERSION"},
		{name: "up-to: non-int arg", args: []string{"migrate", "up-to", "lol"}, wantErrStr: "version must be a number (got 'lol')"},
		{name: "create: no args", args: []string{"migrate", "create"}, wantErrStr: "create must be of form: goose [OPTIONS] DRIVER DBSTRING create NAME [go|sql]"},
		{name: "down-to: non-int arg", args: []string{"migrate", "down-to", "lol"}, wantErrStr: "version must be a number (got 'lol')"},
		{name: "up", args: []string{"migrate", "up"}},
		{name: "up-to", args: []string{"migrate", "up-to", "2"}},
		{name: "down-to", args: []string{"migrate", "down-to", "1"}},
		{name: "status", args: []string{"migrate", "status"}},
		{name: "create", args: []string{"migrate", "create", "slots_index", "sql"}},
	})
}

func Test_commandLine_addUser(t *testing.T) {
	cli, env := setup(t)

	runCliTests(t, cli, []cliTest{
		{name: "no email", args: []string{"adduser"}, pwd: "secret", wantErr: errHelp},
		{name: "no password", args: []string{"adduser", "--email", "root@test.ke"}, wantErr: errHelp},
		{name: "create admin", args: []string{"adduser", "--email", " Root@Test.ke ", "--admin"}, pwd: "s3cret"},
		{name: "create student", args: []string{"adduser", "--email", "zuri@test.ke", "--name", "Zuri"}, pwd: "s3cret"},
	})

	adm, err := env.Users.GetByEmail("root@test.ke")
	require.NoError(t, err)
	assert.True(t, adm.IsAdmin())
	assert.Equal(t, "root", adm.Name)
	assert.NoError(t, adm.CheckPassword("s3cret"))

	student, err := env.Users.GetByEmail("zuri@test.ke")
	require.NoError(t, err)
	assert.True(t, student.IsStudent())
	assert.Equal(t, "Zuri", student.Name)

	// seed students have no password until an admin gives them one
	runCliTests(t, cli, []cliTest{
		{name: "upgrade seed student", args: []string{"adduser", "--email", "sunny@example.com", "--admin"}, pwd: "n3w-pass"},
	})
	sunny, err := env.Users.GetByEmail("sunny@example.com")
	require.NoError(t, err)
	assert.True(t, sunny.IsAdmin())
	assert.True(t, sunny.Active())
	assert.NoError(t, sunny.CheckPassword("n3w-pass"))

	_, err = env.Users.Authenticate(t.Context(), "sunny@example.com", "n3w-pass")
	assert.NoError(t, err)
}

func Test_commandLine_resetPassword(t *testing.T) {
	cli, env := setup(t)
	usr := testutil.CreateUser(t, env, "Awe", "awe@test.ke", "mdr", []string{user.RoleStudent}, true)

	runCliTests(t, cli, []cliTest{
		{name: "no command", wantErr: nil},
		{name: "unknown command", args: []string{"lol"}, wantErrStr: `unknown command "lol" for "admin"`},
		{name: "no email", args: []string{"resetpassword"}, pwd: "lol", wantErr: errHelp},
		{name: "email but no password", args: []string{"resetpassword", "--email", "lol@test.ke"}, wantErr: errHelp},
		{name: "user not found", args: []string{"resetpassword", "--email", "lol@test.ke"}, pwd: "lol", wantErr: user.ErrNotFound},
		{name: "reset", args: []string{"resetpassword", "--email", usr.Email}, pwd: "lmao"},
	})

	refreshed, err := env.Users.GetByID(usr.ID)
	require.NoError(t, err)
	assert.NotEqual(t, usr.PasswordHash, refreshed.PasswordHash)
	assert.NoError(t, refreshed.CheckPassword("lmao"))
}

func Test_commandLine_slots(t *testing.T) {
	cli, env := setup(t)
	booksKey := store.Key(env.Conf.Storage.Namespace, library.BooksSlot)

	// touch the books slot so it is persisted
	book := env.Library.Books(library.BookFilter{})[0]
	require.NoError(t, env.Library.DeleteBook(t.Context(), book.ID).Err())

	out, err := run(cli, "slots")
	require.NoError(t, err)
	assert.Contains(t, out, booksKey)
	assert.Contains(t, out, "total")

	runCliTests(t, cli, []cliTest{
		{name: "reseed nothing", args: []string{"reseed"}, wantErr: errHelp},
		{name: "unknown slot", args: []string{"reseed", "lol"}, wantErrStr: `"lol": no such slot`},
		{name: "reseed books", args: []string{"reseed", library.BooksSlot}},
	})
	_, ok, err := env.Slot.Get(t.Context(), booksKey)
	require.NoError(t, err)
	assert.False(t, ok)

	out, err = run(cli, "reseed", "--all")
	require.NoError(t, err)
	assert.Contains(t, out, "removed "+store.Key(env.Conf.Storage.Namespace, user.SlotName))
	keys, err := env.Slot.Keys(t.Context())
	require.NoError(t, err)
	assert.Empty(t, keys)
}
