// Package storage persists aggregate relay counters across restarts.
//
// Only per-day totals are stored (announcements, deliveries, registrations).
// Chat and user identifiers are never written; the relay's forgetting
// guarantee does not depend on this package.
package storage
