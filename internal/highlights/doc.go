// Package highlights selects the moments of a video worth cutting into clips.
//
// The Analyzer asks the language model for 15 to 20 second non-overlapping
// windows, then validates every proposal against the source duration. An
// invalid proposal is rejected on its own and logged with event type
// highlight_rejected; the rest are kept. If the model is unconfigured, fails,
// or yields nothing usable, evenly spaced fallback highlights are generated
// from the duration alone.
package highlights
