// Package stage defines the contract shared by every pipeline step and the
// runner that drives a task through its steps.
//
// A Handler transforms the Job scratch state in place. A Sequence runs its
// handlers strictly in order under a per-stage timeout; the first failure
// aborts everything after it and is returned as an ErrStage-marked error
// naming the stage. Each stage gets a tracing span, stage_start /
// stage_complete / stage_failed log events, and an Observer callback used
// for metrics.
package stage
