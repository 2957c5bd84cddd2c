package services

import (
	"context"
	"errors"
	"fmt"
	"strings"
)

// Error markers classify failures so callers can react with errors.Is without
// parsing messages. Wrap attaches one of them to a lower level cause.
var (
	ErrValidation        = errors.New("validation error")
	ErrTransientBackend  = errors.New("transient backend error")
	ErrEngineUnavailable = errors.New("engine unavailable")
	ErrStage             = errors.New("stage error")
	ErrFatalWorker       = errors.New("fatal worker error")
	ErrConfiguration     = errors.New("configuration error")
	ErrNotFound          = errors.New("not found")
	ErrTimeout           = errors.New("timeout")
)

// Wrap builds an error message that includes stage context while tagging it with
// the provided marker. A nil marker defaults to ErrStage.
func Wrap(marker error, stage, operation, message string, err error) error {
	detail := buildDetail(stage, operation, message)
	if marker == nil {
		marker = ErrStage
	}
	if err != nil {
		return fmt.Errorf("%w: %s: %w", marker, detail, err)
	}
	return fmt.Errorf("%w: %s", marker, detail)
}

// StageFailure converts any error raised inside a pipeline stage into an
// ErrStage-marked error. Deadline overruns additionally carry ErrTimeout.
func StageFailure(stage string, err error) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, context.DeadlineExceeded) && !errors.Is(err, ErrTimeout) {
		err = fmt.Errorf("%w: %w", ErrTimeout, err)
	}
	if errors.Is(err, ErrStage) {
		return err
	}
	return Wrap(ErrStage, stage, "", "", err)
}

// FailureMessage returns the human-readable text recorded for a failed task.
func FailureMessage(err error) string {
	if err == nil {
		return "unknown failure"
	}
	msg := strings.TrimSpace(err.Error())
	if msg == "" {
		return "unknown failure"
	}
	return msg
}

// FailureKind names the marker carried by err, used as a metric and log label.
func FailureKind(err error) string {
	switch {
	case err == nil:
		return "none"
	case errors.Is(err, ErrValidation):
		return "validation"
	case errors.Is(err, ErrFatalWorker):
		return "fatal_worker"
	case errors.Is(err, ErrTimeout):
		return "timeout"
	case errors.Is(err, ErrEngineUnavailable):
		return "engine_unavailable"
	case errors.Is(err, ErrTransientBackend):
		return "transient_backend"
	case errors.Is(err, ErrConfiguration):
		return "configuration"
	case errors.Is(err, ErrStage):
		return "stage"
	default:
		return "unknown"
	}
}

func buildDetail(stage, operation, message string) string {
	parts := make([]string, 0, 3)
	if stage = strings.TrimSpace(stage); stage != "" {
		parts = append(parts, stage)
	}
	if operation = strings.TrimSpace(operation); operation != "" {
		parts = append(parts, operation)
	}
	if message = strings.TrimSpace(message); message != "" {
		parts = append(parts, message)
	}
	if len(parts) == 0 {
		return "service failure"
	}
	return strings.Join(parts, ": ")
}
