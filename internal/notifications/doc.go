// Package notifications pushes task outcomes to ntfy.
//
// A blank topic yields a no-op service so the worker pool can call it
// unconditionally. Completion and failure pushes are gated separately by
// on_completed and on_failed.
package notifications
