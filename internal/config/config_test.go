package config

import (
	"context"
	"io"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testLogger() *zerolog.Logger {
	l := zerolog.New(io.Discard)
	return &l
}

func writeConfig(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	return path
}

func TestLoadDefaults(t *testing.T) {
	path := writeConfig(t, "api:\n  base_url: http://citas.example\n")

	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, 8080, cfg.HTTP.Port)
	assert.Equal(t, "Europe/Madrid", cfg.Schedule.Timezone)
	assert.Equal(t, "08:30-12:15,15:45-18:00", cfg.Schedule.WorkingHours)
	assert.Equal(t, 45, cfg.Schedule.SlotMinutes)
	assert.Equal(t, "1,2,3,4,5", cfg.Schedule.BusinessDays)
	assert.Equal(t, 7, cfg.Schedule.VisibleDays)
	assert.Equal(t, 10*time.Second, cfg.PollInterval())
	assert.Equal(t, "data/prefs.db", cfg.Prefs.Path)
}

func TestLoadExpandsEnvPlaceholders(t *testing.T) {
	t.Setenv("TEST_CITAS_KEY", "secret-key")
	path := writeConfig(t, "api:\n  base_url: http://citas.example\n  api_key: ${TEST_CITAS_KEY}\n")

	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, "secret-key", cfg.API.APIKey)
}

func TestLoadCreatesPrefsDir(t *testing.T) {
	dir := t.TempDir()
	prefsPath := filepath.Join(dir, "nested", "prefs.db")
	path := writeConfig(t, "prefs:\n  path: "+prefsPath+"\n")

	_, err := Load(path)
	require.NoError(t, err)

	info, err := os.Stat(filepath.Dir(prefsPath))
	require.NoError(t, err)
	assert.True(t, info.IsDir())
}

func TestLoadMissingFile(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "nope.yaml"))
	assert.Error(t, err)
}

func TestResolveScheduleLocalOnly(t *testing.T) {
	cfg := &Config{}
	cfg.applyDefaults()

	sched, err := ResolveSchedule(context.Background(), cfg, testLogger())
	require.NoError(t, err)
	assert.Equal(t, 45, sched.SlotMinutes())
	assert.Equal(t, "Europe/Madrid", sched.Location().String())
	assert.Len(t, sched.WorkingIntervals(), 2)
}

func TestResolveScheduleRemoteOverrides(t *testing.T) {
	var gotToken string
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotToken = r.Header.Get("X-Config-Token")
		_, _ = w.Write([]byte(`{
			"TIMEZONE": "Europe/Lisbon",
			"HORARIOS": [["09:00","13:00"],["16:00","19:00"]],
			"DURACION_CITA": 30,
			"DIAS_LABORABLES": [1,2,3],
			"POLL_INTERVAL": 5000
		}`))
	}))
	defer server.Close()

	cfg := &Config{}
	cfg.applyDefaults()
	cfg.Env.URL = server.URL
	cfg.Env.ConfigToken = "tok123"

	sched, err := ResolveSchedule(context.Background(), cfg, testLogger())
	require.NoError(t, err)

	assert.Equal(t, "tok123", gotToken)
	assert.Equal(t, "Europe/Lisbon", sched.Location().String())
	assert.Equal(t, 30, sched.SlotMinutes())

	intervals := sched.WorkingIntervals()
	require.Len(t, intervals, 2)
	assert.Equal(t, "09:00", intervals[0].Start.String())
	assert.Equal(t, "19:00", intervals[1].End.String())

	wednesday := time.Date(2026, 3, 4, 0, 0, 0, 0, sched.Location())
	thursday := time.Date(2026, 3, 5, 0, 0, 0, 0, sched.Location())
	assert.True(t, sched.IsBusinessDay(wednesday))
	assert.False(t, sched.IsBusinessDay(thursday))

	// The collaborator's poll interval replaces the local one.
	assert.Equal(t, 5*time.Second, cfg.PollInterval())
}

func TestResolveScheduleRemoteFailureFallsBack(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer server.Close()

	cfg := &Config{}
	cfg.applyDefaults()
	cfg.Env.URL = server.URL

	sched, err := ResolveSchedule(context.Background(), cfg, testLogger())
	require.NoError(t, err, "a dead collaborator must not block the calendar")
	assert.Equal(t, 45, sched.SlotMinutes())
	assert.Equal(t, "Europe/Madrid", sched.Location().String())
	assert.Equal(t, 10*time.Second, cfg.PollInterval())
}
