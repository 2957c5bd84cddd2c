// Package api exposes the worker over HTTP with gin: task submission and
// status, queue and worker stats, stage health, prometheus metrics and a
// websocket feed of task events.
//
// When a token is configured every route except /health and /metrics
// requires "Authorization: Bearer <token>".
package api
