package config

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func validConfig() *Config {
	return &Config{
		SMTP:     SMTPConfig{Host: "0.0.0.0:2525", MaxConnections: 4},
		Web:      WebConfig{Host: "0.0.0.0:3000"},
		Database: DatabaseConfig{URL: "sqlite:///tmp/mailfang.db"},
		Logging:  LoggingConfig{Level: "info", Format: "json"},
	}
}

func TestValidate_OK(t *testing.T) {
	require.NoError(t, validConfig().Validate())
}

func TestValidate_CollectsAllErrors(t *testing.T) {
	cfg := &Config{
		SMTP:     SMTPConfig{MaxConnections: 0},
		Web:      WebConfig{},
		Database: DatabaseConfig{},
		Logging:  LoggingConfig{Level: "verbose", Format: "xml"},
	}

	err := cfg.Validate()
	require.Error(t, err)

	msg := err.Error()
	assert.Contains(t, msg, "smtp.host is required")
	assert.Contains(t, msg, "smtp.max_connections must be at least 1")
	assert.Contains(t, msg, "web.host is required")
	assert.Contains(t, msg, "database.url is required")
	assert.Contains(t, msg, "logging.level must be one of")
	assert.Contains(t, msg, "logging.format must be one of")
}

func TestValidate_UsernamePasswordBothOrNeither(t *testing.T) {
	cfg := validConfig()
	cfg.SMTP.Username = "alice"
	cfg.SMTP.Password = ""

	err := cfg.Validate()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "smtp.username and smtp.password must both be set or both be empty")
}

func TestValidate_CredentialsBothSet(t *testing.T) {
	cfg := validConfig()
	cfg.SMTP.Username = "alice"
	cfg.SMTP.Password = "secret"

	assert.NoError(t, cfg.Validate())
}
