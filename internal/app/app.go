package app

import (
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/google/uuid"
	"github.com/khrees2412/waterworks/internal/config"
	"github.com/khrees2412/waterworks/internal/database"
	"github.com/sirupsen/logrus"
)

// App is the dependency container for the CLI application
type App struct {
	Settings *config.Manager
	Config   *config.Config
	Log      *logrus.Logger
	RunID    string

	db *database.DB
}

// NewApp loads configuration from configPath (empty for the default location)
// and builds the logger. The database is opened on first use so commands that
// never touch it do not take the lock.
func NewApp(configPath string, logOut io.Writer) (*App, error) {
	settings, err := config.Load(configPath)
	if err != nil {
		return nil, err
	}
	cfg, err := settings.Config()
	if err != nil {
		return nil, err
	}

	log, err := NewLogger(cfg.LogLevel, logOut)
	if err != nil {
		return nil, err
	}

	return &App{
		Settings: settings,
		Config:   cfg,
		Log:      log,
		RunID:    uuid.NewString(),
	}, nil
}

// NewLogger builds a text logger writing to out (stderr when nil)
func NewLogger(level string, out io.Writer) (*logrus.Logger, error) {
	if out == nil {
		out = os.Stderr
	}
	if level == "" {
		level = "info"
	}
	lvl, err := logrus.ParseLevel(strings.ToLower(level))
	if err != nil {
		return nil, fmt.Errorf("%w: log_level: %w", config.ErrInvalid, err)
	}

	log := logrus.New()
	log.SetOutput(out)
	log.SetLevel(lvl)
	log.SetFormatter(&logrus.TextFormatter{
		FullTimestamp:   true,
		TimestampFormat: "15:04:05",
	})
	return log, nil
}

// Logger is the run-scoped entry every component logs through
func (a *App) Logger() logrus.FieldLogger {
	return a.Log.WithField("run_id", a.RunID)
}

// DB opens the store under paths.data_dir, taking the single-writer lock
func (a *App) DB() (*database.DB, error) {
	if a.db != nil {
		return a.db, nil
	}
	db, err := database.Open(a.Config.Paths.DataDir)
	if err != nil {
		return nil, err
	}
	a.db = db
	return db, nil
}

// Close closes all resources
func (a *App) Close() error {
	if a.db != nil {
		err := a.db.Close()
		a.db = nil
		return err
	}
	return nil
}
