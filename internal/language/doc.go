// Package language normalizes spoken-language hints to the ISO 639-1 codes
// the transcription engines accept. Hints arrive from task payloads as
// two- or three-letter codes or English names, and from container stream
// tags written by muxers.
package language
