// Package api provides the Classline REST API client used for fallback
// polling and delivery acknowledgements.
//
// REST endpoints:
//   - Production: https://api.classline.app/v1
//   - Staging: https://api.staging.classline.app/v1
//
// Requests are signed with service-account credentials (see the auth
// package); retryable failures (5xx, 429) are retried with exponential
// backoff and jitter.
package api
