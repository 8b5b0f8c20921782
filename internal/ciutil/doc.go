// Package ciutil centralises environment detection for tests that talk to
// real cache backends.
//
// Contract tests for the redis, postgres and DynamoDB stores only run when
// an endpoint is configured through the environment. In CI the postgres URL
// is normalised to the standard service credentials so pipelines do not
// have to repeat them.
package ciutil
