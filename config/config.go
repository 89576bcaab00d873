// Package config loads autolite settings.
//
// Settings are layered. Built-in defaults are overridden by
// settings-default.toml, which is overridden by settings-user.toml.
// Both files live in the config directory and are optional.
// Only the user file is written by Set.
package config

import (
	"bytes"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/pelletier/go-toml"
)

const (
	DefaultFile = "settings-default.toml"
	UserFile    = "settings-user.toml"
)

// Config is autolite settings.
type Config struct {
	// DBPath is the sqlite database file.
	DBPath string `toml:"db_path"`

	// LogRoot is where task logs are written to.
	// A subdirectory named after the database is used, so databases don't share logs.
	LogRoot string `toml:"log_root"`

	// Caller overrides the operator's name, which is the OS user by default.
	Caller string `toml:"caller"`

	// Interval is seconds between scheduler cycles.
	Interval int64 `toml:"interval"`

	// Timeout is seconds a task may run. 0 means no timeout.
	Timeout int64 `toml:"timeout"`

	Shell ShellConfig `toml:"shell"`
	Log   LogConfig   `toml:"log"`
	SMTP  SMTPConfig  `toml:"smtp"`
	API   APIConfig   `toml:"api"`
}

type ShellConfig struct {
	Path    string `toml:"path"`
	Profile bool   `toml:"profile"`
}

// LogConfig is for the program's own log, not for task logs.
type LogConfig struct {
	Level        string `toml:"level"`
	Format       string `toml:"format"`
	Output       string `toml:"output"`
	File         string `toml:"file"`
	MaxSize      int64  `toml:"max_size"`
	MaxBackups   int64  `toml:"max_backups"`
	MaxAge       int64  `toml:"max_age"`
	Compress     bool   `toml:"compress"`
	ReportCaller bool   `toml:"report_caller"`
}

type SMTPConfig struct {
	Enabled  bool   `toml:"enabled"`
	Server   string `toml:"server"`
	Port     int64  `toml:"port"`
	Username string `toml:"username"`
	Password string `toml:"password"`
	From     string `toml:"from"`

	// Timeout is seconds a delivery may take, from dialing to quit.
	Timeout int64 `toml:"timeout"`
}

type APIConfig struct {
	Addr string `toml:"addr"`
}

// IntervalDuration returns Interval as a duration.
func (c *Config) IntervalDuration() time.Duration {
	return time.Duration(c.Interval) * time.Second
}

// TimeoutDuration returns Timeout as a duration.
func (c *Config) TimeoutDuration() time.Duration {
	return time.Duration(c.Timeout) * time.Second
}

// TaskLogRoot is the directory of task logs for the database.
func (c *Config) TaskLogRoot() string {
	db := strings.TrimSuffix(filepath.Base(c.DBPath), filepath.Ext(c.DBPath))
	return filepath.Join(c.LogRoot, db)
}

// Default returns built-in settings. Files are placed under dir.
func Default(dir string) *Config {
	return &Config{
		DBPath:   filepath.Join(dir, "autolite.db"),
		LogRoot:  filepath.Join(dir, "logs"),
		Interval: 1,
		Timeout:  0,
		Shell: ShellConfig{
			Path:    "/bin/sh",
			Profile: false,
		},
		Log: LogConfig{
			Level:      "warn",
			Format:     "text",
			Output:     "stderr",
			File:       filepath.Join(dir, "autolite.log"),
			MaxSize:    100,
			MaxBackups: 3,
			MaxAge:     28,
		},
		SMTP: SMTPConfig{
			Server:  "smtp.gmail.com",
			Port:    587,
			Timeout: 10,
		},
		API: APIConfig{
			Addr: "localhost:8280",
		},
	}
}

// Dir returns the config directory.
// It is $AUTOLITE_CONFIG_DIR, or ~/.autolite when it is not set.
func Dir() string {
	if d := os.Getenv("AUTOLITE_CONFIG_DIR"); d != "" {
		return d
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return ".autolite"
	}
	return filepath.Join(home, ".autolite")
}

// Store reads and writes settings in a directory.
type Store struct {
	Dir string
}

// NewStore creates a Store for dir.
func NewStore(dir string) *Store {
	return &Store{Dir: dir}
}

func (s *Store) defaults() (*toml.Tree, error) {
	b, err := toml.Marshal(Default(s.Dir))
	if err != nil {
		return nil, err
	}
	return toml.LoadBytes(b)
}

// loadFile loads a settings file. A missing file is an empty tree.
func loadFile(path string) (*toml.Tree, error) {
	t, err := toml.LoadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return toml.TreeFromMap(map[string]interface{}{})
		}
		return nil, fmt.Errorf("load %s: %w", path, err)
	}
	return t, nil
}

// tree merges the layers of settings.
func (s *Store) tree() (*toml.Tree, error) {
	t, err := s.defaults()
	if err != nil {
		return nil, err
	}
	for _, f := range []string{DefaultFile, UserFile} {
		over, err := loadFile(filepath.Join(s.Dir, f))
		if err != nil {
			return nil, err
		}
		for _, k := range leaves(over) {
			if !t.Has(k) {
				return nil, fmt.Errorf("%s: unknown config key: %s", f, k)
			}
			t.Set(k, over.Get(k))
		}
	}
	return t, nil
}

// leaves returns dotted keys of the tree's values, sorted.
func leaves(t *toml.Tree) []string {
	keys := make([]string, 0)
	for _, k := range t.Keys() {
		if sub, ok := t.Get(k).(*toml.Tree); ok {
			for _, sk := range leaves(sub) {
				keys = append(keys, k+"."+sk)
			}
			continue
		}
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

// Load loads the merged settings.
func (s *Store) Load() (*Config, error) {
	t, err := s.tree()
	if err != nil {
		return nil, err
	}
	c := &Config{}
	err = t.Unmarshal(c)
	if err != nil {
		return nil, err
	}
	c.DBPath = expandHome(c.DBPath)
	c.LogRoot = expandHome(c.LogRoot)
	c.Log.File = expandHome(c.Log.File)
	return c, nil
}

// Keys returns all known config keys.
func (s *Store) Keys() ([]string, error) {
	t, err := s.defaults()
	if err != nil {
		return nil, err
	}
	return leaves(t), nil
}

// Get returns the merged value of a dotted key, like "smtp.server".
func (s *Store) Get(key string) (interface{}, error) {
	t, err := s.tree()
	if err != nil {
		return nil, err
	}
	v := t.Get(key)
	if v == nil {
		return nil, fmt.Errorf("unknown config key: %s", key)
	}
	if _, ok := v.(*toml.Tree); ok {
		return nil, fmt.Errorf("not a value: %s", key)
	}
	return v, nil
}

// Set parses value as the type of the key, and writes it to the user file.
func (s *Store) Set(key, value string) error {
	def, err := s.defaults()
	if err != nil {
		return err
	}
	dv := def.Get(key)
	if dv == nil {
		return fmt.Errorf("unknown config key: %s", key)
	}
	var v interface{}
	switch dv.(type) {
	case bool:
		v, err = strconv.ParseBool(value)
	case int64:
		v, err = strconv.ParseInt(value, 10, 64)
	case string:
		v = value
	default:
		return fmt.Errorf("not a value: %s", key)
	}
	if err != nil {
		return fmt.Errorf("invalid value for %s: %w", key, err)
	}
	path := filepath.Join(s.Dir, UserFile)
	user, err := loadFile(path)
	if err != nil {
		return err
	}
	user.Set(key, v)
	buf := &bytes.Buffer{}
	_, err = user.WriteTo(buf)
	if err != nil {
		return err
	}
	err = os.MkdirAll(s.Dir, 0755)
	if err != nil {
		return err
	}
	return os.WriteFile(path, buf.Bytes(), 0600)
}

func expandHome(p string) string {
	if p != "~" && !strings.HasPrefix(p, "~/") {
		return p
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return p
	}
	return filepath.Join(home, strings.TrimPrefix(p, "~"))
}
