package main

import (
	"log"
	"os"

	"github.com/go-playground/validator/v10"

	"github.com/trezcool/maktaba/core"
	"github.com/trezcool/maktaba/core/notification"
	"github.com/trezcool/maktaba/core/store"
	"github.com/trezcool/maktaba/core/user"
	emailsvc "github.com/trezcool/maktaba/services/email"
	logsvc "github.com/trezcool/maktaba/services/logger"
	"github.com/trezcool/maktaba/storage/slot"
)

var logger core.Logger

func main() {
	conf := core.NewConfig()

	zl, err := logsvc.NewZap(conf)
	if err != nil {
		log.Fatal(err)
	}
	rl := logsvc.NewRollbarLogger(zl.Named("admin"), conf)
	rl.Enable(!conf.Debug && conf.RollbarToken != "")
	defer rl.Sync()
	logger = rl

	s, err := slot.Open(conf, logger)
	errAndDie(err)
	defer func() { _ = s.Close() }()

	bus := store.NewLocalBus()
	users, err := user.NewStore(s, bus, conf, logger)
	errAndDie(err)
	feed := notification.NewFeed(notification.NewStore(s, bus, conf, logger))

	cli := &commandLine{
		conf:   conf,
		slot:   s,
		users:  users,
		usrSvc: user.NewService(users, feed, emailsvc.NewConsoleService(conf, logger), validator.New(), conf),
	}
	if err := newRootCommand(cli).Execute(); err != nil {
		if err != errHelp {
			logger.Error("admin command failed", err)
		}
		_ = s.Close()
		os.Exit(1)
	}
}

func errAndDie(err error) {
	if err != nil {
		logger.Fatal(err.Error(), err)
	}
}
