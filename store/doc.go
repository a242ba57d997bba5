// Package store provides in-memory implementations of the persistence
// interfaces declared in core. They are the default backend for tests,
// examples and single-process deployments; store/sqlite provides the durable
// alternative.
package store
