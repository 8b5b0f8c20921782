// Package api exposes the gateway over HTTP. Handlers decode and validate
// requests, call the account, star tracker and payment services, and
// write the {code, msg, data} envelope.
package api
