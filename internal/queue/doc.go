// Package queue holds the task queue: the Task model and its state machine,
// payload validation, the Backend contract with memory, redis and sqlite
// implementations, the result stores, and the Queue façade workers and the
// API talk to.
//
// Claim is the one operation whose correctness matters across processes.
// Every backend makes it atomic with its native primitive: a mutex for
// memory, a Lua script for redis and a single UPDATE ... RETURNING for
// sqlite. Claimed tasks carry a lease renewed by Heartbeat; Reclaim returns
// tasks whose lease lapsed to the queue, and fails them once they have used
// their attempts.
//
// Backend selection happens once in Open. An unreachable redis server never
// stops the process; the queue degrades to local storage and says so in the
// logs and in Stats.
//
// The sqlite schema is versioned in schema.sql. Bump schemaVersion when it
// changes; the database holds restartable state only and is deleted rather
// than migrated.
package queue
