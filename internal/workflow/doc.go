// Package workflow runs the worker pool.
//
// A Manager polls the queue, claims tasks up to its concurrency and hands
// each one to an Executor. While a task runs the manager heartbeats its
// lease; every poll also reclaims leases other workers abandoned. Failures of
// any kind, panics included, are recorded against the task and never stop
// the loop.
//
// Daemon wraps a Manager with a per-worker-id file lock so two processes
// cannot run under the same identity on one host.
package workflow
