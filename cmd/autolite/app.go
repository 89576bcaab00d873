package main

import (
	"database/sql"
	"fmt"
	"os"
	"os/user"
	"path/filepath"

	"github.com/imagvfx/autolite"
	"github.com/imagvfx/autolite/config"
	"github.com/imagvfx/autolite/lib/logger"
	"github.com/imagvfx/autolite/mail"
	"github.com/imagvfx/autolite/sqlite"
	"github.com/sirupsen/logrus"
)

// app holds what commands share. It is filled before a command runs.
type app struct {
	// flags
	verbose   int
	configDir string
	dbPath    string

	store *config.Store
	cfg   *config.Config
	log   *logrus.Logger
	shell *autolite.Shell

	db      *sql.DB
	tasks   *autolite.TaskManager
	systems *autolite.SystemManager
}

// load reads settings and creates the logger.
func (a *app) load() error {
	dir := a.configDir
	if dir == "" {
		dir = config.Dir()
	}
	a.store = config.NewStore(dir)
	cfg, err := a.store.Load()
	if err != nil {
		return err
	}
	if a.dbPath != "" {
		cfg.DBPath = a.dbPath
	}
	a.cfg = cfg
	a.log, err = logger.New(cfg.Log, a.verbose)
	if err != nil {
		return err
	}
	a.shell = &autolite.Shell{Path: cfg.Shell.Path, Profile: cfg.Shell.Profile}
	return nil
}

// open opens the database and creates the managers on it.
func (a *app) open() error {
	if a.db != nil {
		return nil
	}
	err := os.MkdirAll(filepath.Dir(a.cfg.DBPath), 0755)
	if err != nil {
		return err
	}
	db, err := sqlite.Create(a.cfg.DBPath)
	if err != nil {
		return fmt.Errorf("open db %s: %w", a.cfg.DBPath, err)
	}
	a.db = db
	services := sqlite.NewServices(db)
	a.tasks = autolite.NewTaskManager(services, autolite.TaskOptions{
		Notifier: a.notifier(),
		Shell:    a.shell,
		LogRoot:  a.cfg.TaskLogRoot(),
		Logger:   a.log,
	})
	// maintenance scripts talk to the operator directly.
	scriptShell := *a.shell
	scriptShell.Stdout = os.Stdout
	scriptShell.Stderr = os.Stderr
	a.systems = autolite.NewSystemManager(services.SystemService(), &scriptShell, a.log)
	a.log.WithField("db", a.cfg.DBPath).Debug("opened db")
	return nil
}

func (a *app) notifier() autolite.Notifier {
	if a.cfg.SMTP.Enabled {
		return mail.NewSMTP(a.cfg.SMTP)
	}
	return &mail.Log{Logger: a.log}
}

func (a *app) close() {
	if a.db != nil {
		a.db.Close()
		a.db = nil
	}
}

// caller is the operator's name, used as the holder of systems.
func (a *app) caller() (string, error) {
	if a.cfg.Caller != "" {
		return a.cfg.Caller, nil
	}
	u, err := user.Current()
	if err != nil {
		return "", fmt.Errorf("cannot get current user: %w", err)
	}
	return u.Username, nil
}
