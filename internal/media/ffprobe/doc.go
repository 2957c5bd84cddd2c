// Package ffprobe provides a typed wrapper around ffprobe JSON output.
//
// Key types:
//   - Result: parsed ffprobe output containing streams and format metadata
//   - Stream: individual audio/video stream properties
//   - Format: container-level metadata (duration, size, bitrate)
//
// Inspect runs ffprobe directly; InspectWith accepts a media.Runner so the
// probe stage can be exercised without the binary installed.
package ffprobe
