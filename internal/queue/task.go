package queue

import (
	"encoding/json"
	"fmt"
	"strings"
	"time"
)

// Kind selects the stage sequence a task runs through.
type Kind string

const (
	KindAnalyze       Kind = "analyze"
	KindGenerateClips Kind = "generate_clips"
	KindBurnSubtitles Kind = "burn_subtitles"
)

var allKinds = []Kind{KindAnalyze, KindGenerateClips, KindBurnSubtitles}

// ParseKind converts a string into a known Kind. Hyphens are accepted in
// place of underscores.
func ParseKind(value string) (Kind, bool) {
	normalized := Kind(strings.ReplaceAll(strings.ToLower(strings.TrimSpace(value)), "-", "_"))
	for _, kind := range allKinds {
		if kind == normalized {
			return kind, true
		}
	}
	return "", false
}

// Kinds returns the known task kinds.
func Kinds() []Kind {
	cp := make([]Kind, len(allKinds))
	copy(cp, allKinds)
	return cp
}

// Status represents the lifecycle of a task.
type Status string

const (
	StatusQueued     Status = "queued"
	StatusProcessing Status = "processing"
	StatusCompleted  Status = "completed"
	StatusFailed     Status = "failed"
)

var allStatuses = []Status{StatusQueued, StatusProcessing, StatusCompleted, StatusFailed}

// transitions lists every permitted status change. Lease expiry is the only
// way back from processing to queued; terminal states have no exits.
var transitions = map[Status][]Status{
	StatusQueued:     {StatusProcessing},
	StatusProcessing: {StatusCompleted, StatusFailed, StatusQueued},
}

// ParseStatus converts a string into a known Status.
func ParseStatus(value string) (Status, bool) {
	normalized := Status(strings.ToLower(strings.TrimSpace(value)))
	for _, status := range allStatuses {
		if status == normalized {
			return status, true
		}
	}
	return "", false
}

// Terminal reports whether no transition leaves s.
func (s Status) Terminal() bool {
	return s == StatusCompleted || s == StatusFailed
}

// CanTransition reports whether from -> to is a legal status change.
func CanTransition(from, to Status) bool {
	for _, next := range transitions[from] {
		if next == to {
			return true
		}
	}
	return false
}

// Payload is the kind-specific task input.
type Payload map[string]any

// String returns the trimmed string value stored under key.
func (p Payload) String(key string) string {
	if p == nil {
		return ""
	}
	switch v := p[key].(type) {
	case string:
		return strings.TrimSpace(v)
	case fmt.Stringer:
		return strings.TrimSpace(v.String())
	default:
		return ""
	}
}

// Decode re-marshals the value under key into target.
func (p Payload) Decode(key string, target any) (bool, error) {
	raw, ok := p[key]
	if !ok || raw == nil {
		return false, nil
	}
	data, err := json.Marshal(raw)
	if err != nil {
		return true, fmt.Errorf("encode payload %s: %w", key, err)
	}
	if err := json.Unmarshal(data, target); err != nil {
		return true, fmt.Errorf("decode payload %s: %w", key, err)
	}
	return true, nil
}

// Clone returns a shallow copy so callers cannot mutate a stored payload map.
func (p Payload) Clone() Payload {
	if p == nil {
		return Payload{}
	}
	out := make(Payload, len(p))
	for k, v := range p {
		out[k] = v
	}
	return out
}

// Task is one unit of queued work. Its JSON form is the stored and wire
// representation.
type Task struct {
	ID          string          `json:"id"`
	Kind        Kind            `json:"kind"`
	Payload     Payload         `json:"payload"`
	Status      Status          `json:"status"`
	WorkerID    string          `json:"worker_id,omitempty"`
	ClaimToken  string          `json:"claim_token,omitempty"`
	Attempt     int             `json:"attempt"`
	Progress    int             `json:"progress"`
	EnqueuedAt  time.Time       `json:"enqueued_at"`
	ClaimedAt   *time.Time      `json:"claimed_at,omitempty"`
	HeartbeatAt *time.Time      `json:"heartbeat_at,omitempty"`
	CompletedAt *time.Time      `json:"completed_at,omitempty"`
	Result      json.RawMessage `json:"result,omitempty"`
	Error       string          `json:"error,omitempty"`
}

// Clone returns a deep enough copy for handing a task across goroutines.
func (t *Task) Clone() *Task {
	if t == nil {
		return nil
	}
	cp := *t
	cp.Payload = t.Payload.Clone()
	cp.ClaimedAt = copyTime(t.ClaimedAt)
	cp.HeartbeatAt = copyTime(t.HeartbeatAt)
	cp.CompletedAt = copyTime(t.CompletedAt)
	if t.Result != nil {
		cp.Result = append(json.RawMessage(nil), t.Result...)
	}
	return &cp
}

func (t *Task) transition(to Status) error {
	if !CanTransition(t.Status, to) {
		return fmt.Errorf("invalid transition: %s -> %s", t.Status, to)
	}
	t.Status = to
	return nil
}

func (t *Task) markClaimed(workerID, token string, now time.Time) error {
	if err := t.transition(StatusProcessing); err != nil {
		return err
	}
	t.WorkerID = workerID
	t.ClaimToken = token
	t.ClaimedAt = &now
	t.HeartbeatAt = &now
	t.Progress = 0
	return nil
}

func (t *Task) markFinished(status Status, result json.RawMessage, message string, now time.Time) error {
	if err := t.transition(status); err != nil {
		return err
	}
	t.CompletedAt = &now
	t.HeartbeatAt = nil
	t.ClaimToken = ""
	t.Result = result
	t.Error = message
	if status == StatusCompleted {
		t.Progress = 100
	}
	return nil
}

// markRequeued returns an abandoned claim to the queue and counts the attempt.
func (t *Task) markRequeued() error {
	if err := t.transition(StatusQueued); err != nil {
		return err
	}
	t.Attempt++
	t.WorkerID = ""
	t.ClaimToken = ""
	t.ClaimedAt = nil
	t.HeartbeatAt = nil
	t.Progress = 0
	return nil
}

func copyTime(t *time.Time) *time.Time {
	if t == nil {
		return nil
	}
	v := *t
	return &v
}
