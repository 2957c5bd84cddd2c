package stage

import "context"

// Handler is one pipeline step.
type Handler interface {
	Name() string
	Execute(ctx context.Context, job *Job) error
}

// HealthChecker is implemented by handlers that depend on an external tool
// or service.
type HealthChecker interface {
	HealthCheck(ctx context.Context) Health
}

// Health summarizes the readiness of a stage dependency.
type Health struct {
	Name   string `json:"name"`
	Ready  bool   `json:"ready"`
	Detail string `json:"detail,omitempty"`
}

// Healthy constructs a ready Health record.
func Healthy(name string) Health {
	return Health{Name: name, Ready: true}
}

// Unhealthy constructs a failing Health record with context detail.
func Unhealthy(name, detail string) Health {
	return Health{Name: name, Detail: detail}
}

// Func adapts a function into a Handler.
type Func struct {
	StageName string
	Fn        func(ctx context.Context, job *Job) error
}

// Name implements Handler.
func (f Func) Name() string { return f.StageName }

// Execute implements Handler.
func (f Func) Execute(ctx context.Context, job *Job) error { return f.Fn(ctx, job) }
