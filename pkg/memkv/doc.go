// Package memkv is a sharded in-memory key store with per-key TTL.
//
// The routing hub keeps its duplicate-suppression state here: every key is
// a packet ID (optionally scoped to a connection) and expires once the
// packet can no longer be circulating. A background goroutine removes
// expired keys; lookups also drop them lazily.
//
// Options.MaxKeys bounds the number of live keys. Inserts beyond the
// bound are rejected rather than evicting older entries.
package memkv
