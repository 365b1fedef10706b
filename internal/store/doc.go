// Package store persists the local notification inbox in PostgreSQL.
//
// Inserts are append-only and deduplicated on notification ID, so the
// same notification arriving over both the push channel and a fallback
// poll lands exactly once. The cursor query feeds the poller's since
// watermark on startup.
package store
