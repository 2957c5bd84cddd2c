// Package llm is a small OpenAI-compatible chat client used for highlight
// selection. Requests ask for a JSON object and the decoded content is handed
// back raw; callers own the schema.
//
// Requests are retried on HTTP 408, 429 and 5xx, on network timeouts and on
// empty completions, with exponential backoff (1s base, 10s cap, 5 attempts).
// Context cancellation stops retries immediately. An unconfigured client
// (no API key) reports ErrNotConfigured so callers can take their fallback
// path without a network round trip.
package llm
