// Package pool keeps external clients warm across requests. A Resource is
// one lazily-initialised client with a liveness probe; the Manager owns
// the registry of resources, creates one HTTP handle per backend domain on
// first use, and probes everything on a fixed interval so dead connections
// are replaced before a request trips over them.
package pool
