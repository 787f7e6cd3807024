// Package relay is the ephemeral registry and broadcast engine.
//
// State is process-lifetime only:
//   - Registry: principals that opted in privately (append-only)
//   - Cache: chats announced within the last TTL, pruned lazily
//   - Engine: one fan-out pass per chat per TTL window
//
// Relay bundles the three and is the handle transport handlers receive.
// Nothing here is persisted; a restart forgets everything.
package relay
