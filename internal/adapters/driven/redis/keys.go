// Package redis holds the Redis-backed coordination adapters: the
// distributed lock and the webhook delivery store.
package redis

// DefaultPrefix namespaces every key written by this package.
const DefaultPrefix = "nexus"
