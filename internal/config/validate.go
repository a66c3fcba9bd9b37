package config

import (
	"fmt"
	"strings"
)

// Validate checks the configuration for required fields and invalid values.
// It collects all failures into a single error so the operator sees every
// problem at once.
func (c *Config) Validate() error {
	var errs []string

	if c.SMTP.Host == "" {
		errs = append(errs, "smtp.host is required")
	}
	if c.SMTP.MaxConnections < 1 {
		errs = append(errs, "smtp.max_connections must be at least 1")
	}
	if (c.SMTP.Username == "") != (c.SMTP.Password == "") {
		errs = append(errs, "smtp.username and smtp.password must both be set or both be empty")
	}

	if c.Web.Host == "" {
		errs = append(errs, "web.host is required")
	}

	if c.Database.URL == "" {
		errs = append(errs, "database.url is required")
	}

	switch strings.ToLower(c.Logging.Level) {
	case "debug", "info", "warn", "error":
	default:
		errs = append(errs, "logging.level must be one of debug, info, warn, error")
	}
	switch strings.ToLower(c.Logging.Format) {
	case "json", "text":
	default:
		errs = append(errs, "logging.format must be one of json, text")
	}

	if len(errs) > 0 {
		return fmt.Errorf("config validation failed:\n  - %s", strings.Join(errs, "\n  - "))
	}
	return nil
}
