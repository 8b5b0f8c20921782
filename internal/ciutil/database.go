package ciutil

import (
	"fmt"
	"log/slog"
	"net/url"
	"strings"
)

// Standard postgres service settings used by CI pipelines.
const (
	StandardCIUser     = "postgres"
	StandardCIPassword = "postgres"
	StandardCIPort     = "5432"
	StandardCIDatabase = "gateway_test"
	StandardCIOptions  = "sslmode=disable"
)

// TestDatabaseURL returns the postgres URL for cache contract tests, or ""
// when none is configured. In CI the URL is rewritten to the standard
// credentials.
func TestDatabaseURL(logger *slog.Logger) string {
	dbURL := GetEnvWithFallbacks([]string{EnvTestDatabaseURL, EnvDatabaseURL}, "", logger)
	if dbURL == "" || !IsCI() {
		return dbURL
	}

	standardized, err := standardizeDatabaseURL(dbURL)
	if err != nil {
		if logger != nil {
			logger.Error("Failed to standardize database URL",
				"error", err,
				"original_url", MaskSensitiveValue(dbURL))
		}
		return dbURL
	}
	if standardized != dbURL && logger != nil {
		logger.Info("Standardized database URL for CI environment",
			"original", MaskSensitiveValue(dbURL),
			"standardized", MaskSensitiveValue(standardized))
	}
	return standardized
}

// standardizeDatabaseURL swaps in the CI credentials and fills in the
// port, database and options a local URL may omit.
func standardizeDatabaseURL(dbURL string) (string, error) {
	u, err := url.Parse(dbURL)
	if err != nil {
		return "", fmt.Errorf("failed to parse database URL: %w", err)
	}
	if u.Scheme != "postgres" && u.Scheme != "postgresql" {
		return dbURL, nil
	}

	out := *u
	out.User = url.UserPassword(StandardCIUser, StandardCIPassword)

	host := u.Hostname()
	if (host == "" || host == "localhost" || host == "127.0.0.1") && u.Port() == "" {
		if host == "" {
			host = "localhost"
		}
		out.Host = host + ":" + StandardCIPort
	}
	if strings.TrimPrefix(u.Path, "/") == "" {
		out.Path = "/" + StandardCIDatabase
	}
	if u.RawQuery == "" {
		out.RawQuery = StandardCIOptions
	}
	return out.String(), nil
}
