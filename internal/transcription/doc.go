// Package transcription turns an audio track into the word sequence the
// subtitle synchronizer consumes.
//
// Engines implement Provider. A Chain tries its providers in order and
// returns the first success, so WhisperX runs first and the OpenAI-compatible
// HTTP endpoint takes over when WhisperX is missing or fails. Callers only
// learn which engine ran through Result.Engine and Result.Fallback.
//
// Transcripts are cached by media fingerprint (file size plus the md5 of the
// first KiB) in memory or redis so re-running a video skips transcription.
package transcription
