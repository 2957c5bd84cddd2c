// Package pipeline holds the concrete stages and the per-kind stage
// sequences that turn a claimed task into clips.
//
// analyze runs probe, audio, transcribe and highlights. generate_clips adds
// clips, subtitles, burn and publish. burn_subtitles starts from an existing
// clip and skips audio and transcription when the payload carries words.
//
// Every task works inside its own scratch directory named after the task id,
// so concurrent tasks never share intermediate files.
package pipeline
