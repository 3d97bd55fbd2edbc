package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestLoad_Defaults(t *testing.T) {
	t.Setenv("DOCSTORE_BACKEND", "")
	t.Setenv("CHECKIN_COOLDOWN", "")

	cfg := Load()
	assert.Equal(t, "8081", cfg.HTTPPort)
	assert.Equal(t, "memory", cfg.DocstoreBackend)
	assert.Equal(t, 3*time.Second, cfg.CheckinCooldown)
	assert.Equal(t, []string{"*"}, cfg.CORSOrigins)
	assert.False(t, cfg.Production())
}

func TestLoad_EnvOverrides(t *testing.T) {
	t.Setenv("APP_ENV", "production")
	t.Setenv("DOCSTORE_BACKEND", "Postgres")
	t.Setenv("ACCESS_TTL", "30m")
	t.Setenv("RATE_LIMIT_PER_MIN", "10")
	t.Setenv("VERIFY_ALLOWED_HOSTS", "verify.college.edu, results.college.edu")

	cfg := Load()
	assert.True(t, cfg.Production())
	assert.Equal(t, "postgres", cfg.DocstoreBackend)
	assert.Equal(t, 30*time.Minute, cfg.AccessTTL)
	assert.Equal(t, 10, cfg.RateLimitPerMin)
	assert.Equal(t, []string{"verify.college.edu", "results.college.edu"}, cfg.VerifyAllowedHost)
}
