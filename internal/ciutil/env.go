package ciutil

import (
	"log/slog"
	"os"
	"strings"
)

// Environment variable names read by tests and CI helpers.
const (
	EnvCI            = "CI"
	EnvGitHubActions = "GITHUB_ACTIONS"
	EnvGitLabCI      = "GITLAB_CI"
	EnvJenkinsURL    = "JENKINS_URL"
	EnvCircleCI      = "CIRCLECI"

	// Cache backend endpoints for contract tests.
	EnvTestRedisAddr        = "GATEWAY_TEST_REDIS_ADDR"
	EnvTestDatabaseURL      = "GATEWAY_TEST_DATABASE_URL"
	EnvTestDynamoDBEndpoint = "GATEWAY_TEST_DYNAMODB_ENDPOINT"

	// EnvDatabaseURL is the conventional fallback for the postgres URL.
	EnvDatabaseURL = "DATABASE_URL"
)

// IsCI reports whether the process runs under a known CI provider.
func IsCI() bool {
	for _, name := range []string{EnvCI, EnvGitHubActions, EnvGitLabCI, EnvJenkinsURL, EnvCircleCI} {
		if os.Getenv(name) != "" {
			return true
		}
	}
	return false
}

// GetEnvWithFallbacks returns the first non-empty variable of envVars, or
// defaultValue. Using anything but the first name is logged as legacy.
func GetEnvWithFallbacks(envVars []string, defaultValue string, logger *slog.Logger) string {
	for i, name := range envVars {
		val := os.Getenv(name)
		if val == "" {
			continue
		}
		if i > 0 && logger != nil {
			logger.Warn("Using fallback environment variable",
				"used_var", name,
				"preferred_var", envVars[0],
				"value", MaskSensitiveValue(val))
		}
		return val
	}
	return defaultValue
}

// MaskSensitiveValue hides the password of a connection URL and the middle
// of anything that looks like a key or token.
func MaskSensitiveValue(value string) string {
	if strings.HasPrefix(value, "postgres://") || strings.HasPrefix(value, "redis://") {
		scheme, rest, _ := strings.Cut(value, "://")
		creds, host, ok := strings.Cut(rest, "@")
		if ok {
			if user, _, hasPassword := strings.Cut(creds, ":"); hasPassword {
				return scheme + "://" + user + ":****@" + host
			}
		}
		return value
	}

	lower := strings.ToLower(value)
	if len(value) > 8 && (strings.Contains(lower, "key") ||
		strings.Contains(lower, "token") ||
		strings.Contains(lower, "secret")) {
		return value[:4] + "****" + value[len(value)-4:]
	}
	return value
}
