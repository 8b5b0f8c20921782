// Package cache implements the key/value and set store that backs sessions,
// signup markers, public keys, relationship sets and payment snapshots.
//
// Store has four backends selected by configuration: an in-process map for
// tests and development, Redis, DynamoDB and Postgres. Every backend keeps
// the same semantics: expired entries read as absent, SetIfAbsent and
// CompareAndSwap are atomic, and set keys carry their own TTL.
package cache
