// Package whisperx runs WhisperX through uvx to produce word-aligned
// transcripts. The JSON output is parsed into segments carrying per-word
// start and end times; the transcription package turns those into the
// pipeline's word sequence.
//
// Model, CUDA and VAD selection come from Config. A missing uvx binary is
// reported as services.ErrEngineUnavailable so the caller can switch to its
// fallback engine.
package whisperx
