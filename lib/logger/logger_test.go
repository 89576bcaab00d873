package logger

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/imagvfx/autolite/config"
	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLevel(t *testing.T) {
	cases := []struct {
		level     string
		verbosity int
		want      logrus.Level
	}{
		{level: "warn", verbosity: 0, want: logrus.WarnLevel},
		{level: "warn", verbosity: 1, want: logrus.InfoLevel},
		{level: "warn", verbosity: 2, want: logrus.DebugLevel},
		{level: "warn", verbosity: 5, want: logrus.TraceLevel},
		{level: "debug", verbosity: 1, want: logrus.DebugLevel},
	}
	for i, c := range cases {
		l, err := New(config.LogConfig{Level: c.level}, c.verbosity)
		require.NoError(t, err, "%d", i)
		assert.Equal(t, c.want, l.GetLevel(), "%d", i)
	}
	_, err := New(config.LogConfig{Level: "loud"}, 0)
	assert.Error(t, err)
	_, err = New(config.LogConfig{Level: "info", Format: "xml"}, 0)
	assert.Error(t, err)
}

func TestFileOutput(t *testing.T) {
	path := filepath.Join(t.TempDir(), "sub", "autolite.log")
	l, err := New(config.LogConfig{Level: "info", Format: "json", Output: "file", File: path, MaxSize: 1}, 0)
	require.NoError(t, err)
	l.WithField("task", "t1").Info("started")
	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.True(t, strings.Contains(string(data), `"task":"t1"`), string(data))
	assert.True(t, strings.Contains(string(data), `"message":"started"`), string(data))
}
