// Package realtime manages the push subscription that delivers
// Classline notifications. A Manager owns at most one channel at a
// time, reconnects with exponential backoff when it drops, and falls
// back to periodic polling once reconnection attempts are exhausted.
// Push mode resumes transparently when a later reconnect succeeds.
package realtime
