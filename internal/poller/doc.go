// Package poller implements the REST fallback refresher.
//
// The Refresher:
//   - Pages through the notifications endpoint from a high-water mark
//   - Feeds each notification into the manager's delivery path
//   - Coalesces overlapping refresh calls
//   - Optionally acknowledges delivery after a cycle
package poller
