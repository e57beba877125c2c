package config

import (
	"testing"
	"time"

	"github.com/spf13/viper"
	"github.com/stretchr/testify/assert"
)

func TestDefaults(t *testing.T) {
	v := viper.New()
	setDefaults(v)

	cfg := fromViper(v)

	assert.Equal(t, 8080, cfg.Port)
	assert.Equal(t, "/api/v1", cfg.APIPrefix)
	assert.Equal(t, 20*time.Second, cfg.Upstream.Timeout)
	assert.Equal(t, "faculties", cfg.Upstream.FacultiesPath)
	assert.Equal(t, 7, cfg.Timetable.ScheduleDays)
	assert.Equal(t, "Europe/Moscow", cfg.Timetable.Timezone)
	assert.Equal(t, StoreMemory, cfg.Selection.Store)
	assert.Equal(t, 4, cfg.Selection.FetchWorkers)
	assert.Zero(t, cfg.Selection.RefreshInterval)
	assert.False(t, cfg.ListCache.Enabled)
	assert.Equal(t, 6*time.Hour, cfg.ListCache.TTL)
}

func TestEnvironmentOverrides(t *testing.T) {
	t.Setenv("UPSTREAM_PRIMARY_URL", "https://primary.example.edu/")
	t.Setenv("UPSTREAM_TIMEOUT", "5s")
	t.Setenv("SELECTION_STORE", " Redis ")
	t.Setenv("SCHEDULE_DAYS", "-3")
	t.Setenv("REFRESH_INTERVAL", "not-a-duration")
	t.Setenv("ALLOWED_ORIGINS", "http://a.test, ,http://b.test")

	v := viper.New()
	v.AutomaticEnv()
	setDefaults(v)

	cfg := fromViper(v)

	assert.Equal(t, "https://primary.example.edu", cfg.Upstream.PrimaryURL)
	assert.Equal(t, 5*time.Second, cfg.Upstream.Timeout)
	assert.Equal(t, StoreRedis, cfg.Selection.Store)
	assert.Equal(t, 7, cfg.Timetable.ScheduleDays)
	assert.Zero(t, cfg.Selection.RefreshInterval)
	assert.Equal(t, []string{"http://a.test", "http://b.test"}, cfg.CORS.AllowedOrigins)
}
