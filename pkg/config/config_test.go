package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const testSecret = "0123456789abcdef0123456789abcdef"

func validConfig() *Config {
	return &Config{
		Auth: AuthConfig{Secret: testSecret},
	}
}

func TestProcessConfigPipeline_Defaults(t *testing.T) {
	cfg, err := ProcessConfigPipeline(validConfig())
	require.NoError(t, err)

	assert.Equal(t, "localhost", cfg.Server.Host)
	assert.Equal(t, 8080, cfg.Server.Port)
	assert.Equal(t, "info", cfg.Logger.Level)
	assert.Equal(t, "main", cfg.Database)

	db := cfg.MainDatabase()
	require.NotNil(t, db, "expected a main database config")
	assert.Equal(t, "sqlite", db.Driver)
	assert.Equal(t, "perch.db", db.Database)

	assert.Equal(t, "local", cfg.Auth.Mode)
	assert.Equal(t, 24*time.Hour, cfg.Auth.TokenTTL.Duration())

	assert.True(t, cfg.RateLimit.IsEnabled(), "expected rate limiting enabled by default")
	assert.Equal(t, 0.01, cfg.RateLimit.SweepChance)
}

func TestProcessConfigPipeline_Nil(t *testing.T) {
	_, err := ProcessConfigPipeline(nil)
	assert.Error(t, err)
}

func TestProcessConfigPipeline_MissingSecret(t *testing.T) {
	_, err := ProcessConfigPipeline(&Config{})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "auth")
}

func TestProcessConfigPipeline_ShortSecret(t *testing.T) {
	cfg := &Config{Auth: AuthConfig{Secret: "too-short"}}
	_, err := ProcessConfigPipeline(cfg)
	assert.Error(t, err)
}

func TestConfig_Validate_UnknownDatabaseSelector(t *testing.T) {
	cfg := validConfig()
	cfg.Databases = map[string]*DatabaseConfig{
		"primary": {Driver: "sqlite", Database: "perch.db"},
	}
	cfg.Database = "replica"
	cfg.SetDefaults()

	err := cfg.Validate()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "replica", "error should name the selector")
}

func TestConfig_SetDefaults_SoleDatabaseSelected(t *testing.T) {
	cfg := validConfig()
	cfg.Databases = map[string]*DatabaseConfig{
		"primary": {Driver: "sqlite", Database: "perch.db"},
	}
	cfg.SetDefaults()

	assert.Equal(t, "primary", cfg.Database)
}

func TestConfig_Validate_BadDatabase(t *testing.T) {
	cfg := validConfig()
	cfg.Databases = map[string]*DatabaseConfig{
		"main": {Driver: "oracle", Database: "perch"},
	}
	cfg.SetDefaults()

	err := cfg.Validate()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "main", "error should name the database entry")
}

func TestRateLimitConfig_Validate(t *testing.T) {
	cfg := RateLimitConfig{SweepChance: 1.5}
	assert.Error(t, cfg.Validate(), "sweep_chance > 1 should fail validation")

	cfg = RateLimitConfig{
		Policies: map[string]*RateLimitPolicyConfig{
			"auth": {Window: Duration(-time.Minute)},
		},
	}
	assert.Error(t, cfg.Validate(), "negative window should fail validation")

	cfg = RateLimitConfig{
		SweepChance: 0.25,
		Policies: map[string]*RateLimitPolicyConfig{
			"auth": {Window: Duration(time.Minute), Max: 10},
		},
	}
	assert.NoError(t, cfg.Validate())
}
