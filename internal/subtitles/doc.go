// Package subtitles turns word-level transcripts into karaoke subtitle tracks.
//
// The Synchronizer is pure: it groups words into short display phrases bounded
// by a word count and a duration, then derives per-word karaoke timing in
// centiseconds. Styles come from a fixed registry indexed by StyleID; unknown
// style names are rejected instead of falling back to a default. ASS and SRT
// renderers serialize the result for ffmpeg burn-in or export.
package subtitles
