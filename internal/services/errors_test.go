package services_test

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"testing"

	"clipforge/internal/services"
)

func TestWrapIncludesContext(t *testing.T) {
	base := errors.New("boom")
	err := services.Wrap(services.ErrEngineUnavailable, "transcribe", "whisperx", "failed", base)
	if err == nil {
		t.Fatal("expected error")
	}
	if !errors.Is(err, services.ErrEngineUnavailable) {
		t.Fatalf("expected marker to be retained, got %v", err)
	}
	if !errors.Is(err, base) {
		t.Fatalf("expected wrapped error to contain base error, got %v", err)
	}
	msg := err.Error()
	for _, fragment := range []string{"transcribe", "whisperx", "failed"} {
		if !strings.Contains(msg, fragment) {
			t.Fatalf("expected %q in error string %q", fragment, msg)
		}
	}
}

func TestWrapDefaultsToStageMarker(t *testing.T) {
	err := services.Wrap(nil, "", "", "", nil)
	if !errors.Is(err, services.ErrStage) {
		t.Fatalf("expected stage marker, got %v", err)
	}
	if !strings.Contains(err.Error(), "service failure") {
		t.Fatalf("expected fallback detail, got %q", err.Error())
	}
}

func TestStageFailureMarksTimeouts(t *testing.T) {
	err := services.StageFailure("clips", fmt.Errorf("render: %w", context.DeadlineExceeded))
	if !errors.Is(err, services.ErrStage) || !errors.Is(err, services.ErrTimeout) {
		t.Fatalf("expected stage and timeout markers, got %v", err)
	}
	if kind := services.FailureKind(err); kind != "timeout" {
		t.Fatalf("expected timeout kind, got %q", kind)
	}
	if services.StageFailure("clips", nil) != nil {
		t.Fatal("expected nil for nil error")
	}
}

func TestStageFailureKeepsExistingMarker(t *testing.T) {
	original := services.Wrap(services.ErrStage, "highlights", "validate", "no valid highlights", nil)
	if got := services.StageFailure("highlights", original); got != original {
		t.Fatalf("expected error to pass through, got %v", got)
	}
}

func TestFailureKind(t *testing.T) {
	cases := map[string]error{
		"validation":   services.Wrap(services.ErrValidation, "queue", "add", "missing field", nil),
		"fatal_worker": services.Wrap(services.ErrFatalWorker, "worker", "claim", "duplicate", nil),
		"stage":        services.Wrap(services.ErrStage, "audio", "", "", errors.New("exit 1")),
		"unknown":      errors.New("plain"),
		"none":         nil,
	}
	for want, err := range cases {
		if got := services.FailureKind(err); got != want {
			t.Errorf("FailureKind(%v) = %q, want %q", err, got, want)
		}
	}
}

func TestFailureMessage(t *testing.T) {
	if got := services.FailureMessage(nil); got != "unknown failure" {
		t.Fatalf("unexpected message %q", got)
	}
	if got := services.FailureMessage(errors.New("  disk full ")); got != "disk full" {
		t.Fatalf("unexpected message %q", got)
	}
}
