// Package config handles configuration loading, parsing, and validation
// from environment variables and an optional config file. Environment
// variables use the GATEWAY_ prefix, so server.port becomes GATEWAY_SERVER_PORT.
package config
