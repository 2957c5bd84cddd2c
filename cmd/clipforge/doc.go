// Command clipforge runs the clip generation worker and talks to it.
//
// "clipforge worker run" starts the worker with its HTTP API. The enqueue,
// status and stats commands call that API, so they work against any worker
// sharing the same queue. The remaining commands (styles, subtitles preview,
// config, doctor) run locally.
package main
