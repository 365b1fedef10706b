// Package dispatch routes raw notification envelopes to typed buffers.
//
// The Dispatcher:
//   - Parses the notification envelope delivered by the connection manager
//   - Feeds every valid notification into the inbox buffer for persistence
//   - Decodes kind-specific payloads into per-kind buffers
//   - Counts and skips unknown kinds and parse failures
package dispatch
