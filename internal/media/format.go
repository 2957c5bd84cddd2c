// Package media holds output format definitions shared by the clip renderer
// and task validation. Subpackages wrap ffprobe and ffmpeg.
package media

import (
	"errors"
	"fmt"
	"strings"
)

// ErrUnknownFormat is returned for aspect ratios with no output geometry.
var ErrUnknownFormat = errors.New("unknown output format")

// Format is a target aspect ratio with its output frame size.
type Format struct {
	ID     string
	Width  int
	Height int
}

var formats = []Format{
	{ID: "9:16", Width: 720, Height: 1280},
	{ID: "16:9", Width: 1280, Height: 720},
	{ID: "1:1", Width: 720, Height: 720},
	{ID: "4:5", Width: 720, Height: 900},
}

// DefaultFormat is the vertical short-video frame.
var DefaultFormat = formats[0]

// ParseFormat resolves ids such as "9:16". Underscores are accepted in place
// of the colon ("16_9").
func ParseFormat(id string) (Format, error) {
	key := strings.ReplaceAll(strings.TrimSpace(id), "_", ":")
	for _, f := range formats {
		if f.ID == key {
			return f, nil
		}
	}
	return Format{}, fmt.Errorf("%w: %q", ErrUnknownFormat, id)
}

// Formats lists the supported output formats.
func Formats() []Format {
	out := make([]Format, len(formats))
	copy(out, formats)
	return out
}

// Filter returns the ffmpeg video filter that fills the frame and crops the
// overflow.
func (f Format) Filter() string {
	return fmt.Sprintf("scale=%d:%d:force_original_aspect_ratio=increase,crop=%d:%d", f.Width, f.Height, f.Width, f.Height)
}
