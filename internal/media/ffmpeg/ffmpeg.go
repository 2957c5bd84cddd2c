// Package ffmpeg builds and runs the ffmpeg invocations of the clip
// pipeline: mono audio extraction for transcription, time-bounded clip
// extraction into a target frame, and ASS subtitle burn-in.
package ffmpeg

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"clipforge/internal/media"
)

// Encoder settings shared by clip extraction and burn-in.
const (
	VideoCodec   = "libx264"
	Preset       = "fast"
	CRF          = "23"
	AudioCodec   = "aac"
	AudioBitrate = "128k"
	SampleRate   = "16000"
)

// Renderer wraps an ffmpeg binary.
type Renderer struct {
	binary string
	run    media.Runner
}

// New returns a Renderer for binary ("ffmpeg" when empty).
func New(binary string, run media.Runner) *Renderer {
	if strings.TrimSpace(binary) == "" {
		binary = "ffmpeg"
	}
	if run == nil {
		run = media.ExecRunner
	}
	return &Renderer{binary: binary, run: run}
}

// Binary returns the ffmpeg executable name.
func (r *Renderer) Binary() string { return r.binary }

// ExtractAudioArgs returns the arguments that decode source to 16 kHz mono
// PCM at dest.
func ExtractAudioArgs(source, dest string) []string {
	return []string{
		"-hide_banner", "-loglevel", "error", "-y",
		"-i", source,
		"-vn",
		"-ac", "1",
		"-ar", SampleRate,
		"-c:a", "pcm_s16le",
		dest,
	}
}

// ClipArgs returns the arguments extracting [start, end) of source into
// dest, scaled to fill format and cropped.
func ClipArgs(source, dest string, start, end float64, format media.Format) []string {
	return []string{
		"-hide_banner", "-loglevel", "error", "-y",
		"-ss", seconds(start),
		"-i", source,
		"-t", seconds(end - start),
		"-vf", format.Filter(),
		"-c:v", VideoCodec, "-preset", Preset, "-crf", CRF,
		"-c:a", AudioCodec, "-b:a", AudioBitrate,
		"-movflags", "+faststart",
		dest,
	}
}

// BurnArgs returns the arguments compositing an ASS track onto clip.
func BurnArgs(clip, assPath, dest string) []string {
	return []string{
		"-hide_banner", "-loglevel", "error", "-y",
		"-i", clip,
		"-vf", "ass=" + EscapeFilterPath(assPath),
		"-c:v", VideoCodec, "-preset", Preset, "-crf", CRF,
		"-c:a", "copy",
		"-movflags", "+faststart",
		dest,
	}
}

// ExtractAudio writes the mono transcription track for source to dest.
func (r *Renderer) ExtractAudio(ctx context.Context, source, dest string) error {
	if err := requireInput(source); err != nil {
		return err
	}
	return r.exec(ctx, "extract audio", dest, ExtractAudioArgs(source, dest))
}

// ExtractClip writes the [start, end) range of source to dest in format.
func (r *Renderer) ExtractClip(ctx context.Context, source, dest string, start, end float64, format media.Format) error {
	if end <= start {
		return fmt.Errorf("ffmpeg clip: empty range %.2f-%.2f", start, end)
	}
	if err := requireInput(source); err != nil {
		return err
	}
	return r.exec(ctx, "extract clip", dest, ClipArgs(source, dest, start, end, format))
}

// Burn composites the ASS subtitle file onto clip and writes dest.
func (r *Renderer) Burn(ctx context.Context, clip, assPath, dest string) error {
	if err := requireInput(clip); err != nil {
		return err
	}
	if err := requireInput(assPath); err != nil {
		return err
	}
	return r.exec(ctx, "burn subtitles", dest, BurnArgs(clip, assPath, dest))
}

func (r *Renderer) exec(ctx context.Context, op, dest string, args []string) error {
	if err := os.MkdirAll(filepath.Dir(dest), 0o755); err != nil {
		return fmt.Errorf("ffmpeg %s: ensure output dir: %w", op, err)
	}
	output, err := r.run(ctx, r.binary, args...)
	if err != nil {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		return fmt.Errorf("ffmpeg %s: %w: %s", op, err, strings.TrimSpace(string(output)))
	}
	info, err := os.Stat(dest)
	if err != nil {
		return fmt.Errorf("ffmpeg %s: output missing: %w", op, err)
	}
	if info.Size() == 0 {
		return fmt.Errorf("ffmpeg %s: output %s is empty", op, dest)
	}
	return nil
}

// EscapeFilterPath quotes a path for use inside an ffmpeg filter argument.
func EscapeFilterPath(path string) string {
	escaped := strings.ReplaceAll(path, `\`, `\\`)
	escaped = strings.ReplaceAll(escaped, ":", `\:`)
	escaped = strings.ReplaceAll(escaped, "'", `\'`)
	return "'" + escaped + "'"
}

func requireInput(path string) error {
	if strings.TrimSpace(path) == "" {
		return errors.New("ffmpeg: input path required")
	}
	if _, err := os.Stat(path); err != nil {
		return fmt.Errorf("ffmpeg: input %s: %w", path, err)
	}
	return nil
}

func seconds(v float64) string {
	if v < 0 {
		v = 0
	}
	return strconv.FormatFloat(v, 'f', 3, 64)
}
