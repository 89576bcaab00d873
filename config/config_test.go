package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadDefault(t *testing.T) {
	dir := t.TempDir()
	c, err := NewStore(dir).Load()
	require.NoError(t, err)
	assert.Equal(t, filepath.Join(dir, "autolite.db"), c.DBPath)
	assert.Equal(t, time.Second, c.IntervalDuration())
	assert.Equal(t, time.Duration(0), c.TimeoutDuration())
	assert.Equal(t, filepath.Join(dir, "logs", "autolite"), c.TaskLogRoot())
	assert.Equal(t, "/bin/sh", c.Shell.Path)
}

func TestLayers(t *testing.T) {
	dir := t.TempDir()
	site := "timeout = 60\n[smtp]\nserver = \"mail.example.com\"\n"
	user := "[smtp]\nserver = \"smtp.example.com\"\n"
	require.NoError(t, os.WriteFile(filepath.Join(dir, DefaultFile), []byte(site), 0644))
	require.NoError(t, os.WriteFile(filepath.Join(dir, UserFile), []byte(user), 0644))
	c, err := NewStore(dir).Load()
	require.NoError(t, err)
	assert.Equal(t, int64(60), c.Timeout)
	assert.Equal(t, "smtp.example.com", c.SMTP.Server)
	assert.Equal(t, int64(587), c.SMTP.Port)
}

func TestUnknownKey(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, UserFile), []byte("colour = \"red\"\n"), 0644))
	_, err := NewStore(dir).Load()
	assert.Error(t, err)
}

func TestSetGet(t *testing.T) {
	dir := t.TempDir()
	s := NewStore(dir)
	cases := []struct {
		key     string
		value   string
		want    interface{}
		wantErr bool
	}{
		{key: "smtp.enabled", value: "true", want: true},
		{key: "smtp.port", value: "25", want: int64(25)},
		{key: "smtp.timeout", value: "30", want: int64(30)},
		{key: "api.addr", value: ":9000", want: ":9000"},
		{key: "smtp.port", value: "many", wantErr: true},
		{key: "nothing", value: "1", wantErr: true},
		{key: "smtp", value: "1", wantErr: true},
	}
	for i, c := range cases {
		err := s.Set(c.key, c.value)
		if c.wantErr {
			if err == nil {
				t.Fatalf("%d: want error, got none", i)
			}
			continue
		}
		require.NoError(t, err, "%d", i)
		got, err := s.Get(c.key)
		require.NoError(t, err, "%d", i)
		assert.Equal(t, c.want, got, "%d", i)
	}
	c, err := s.Load()
	require.NoError(t, err)
	assert.True(t, c.SMTP.Enabled)
	assert.Equal(t, int64(25), c.SMTP.Port)
	keys, err := s.Keys()
	require.NoError(t, err)
	assert.Contains(t, keys, "smtp.port")
	assert.Contains(t, keys, "db_path")
}
