// Package model defines the notification types shared across the
// Classline notify client.
//
// Conventions:
//   - Timestamps: time.Time, RFC 3339 on the wire
//   - IDs: uuid.UUID for notifications, opaque strings for everything else
//   - Payloads: raw JSON in the envelope, parsed by kind in dispatch
package model
