package media

import (
	"context"
	"os/exec"
)

// Runner executes an external media tool and returns its combined output.
// Tests substitute a fake to avoid invoking ffmpeg or ffprobe.
type Runner func(ctx context.Context, name string, args ...string) ([]byte, error)

// ExecRunner runs the command through os/exec.
func ExecRunner(ctx context.Context, name string, args ...string) ([]byte, error) {
	return exec.CommandContext(ctx, name, args...).CombinedOutput() //nolint:gosec
}
