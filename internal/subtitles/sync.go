package subtitles

import (
	"errors"
	"fmt"
	"math"
	"sort"
	"time"
)

const (
	// DefaultMaxWords bounds the number of words shown together.
	DefaultMaxWords = 3
	// DefaultMaxDuration bounds how long one phrase stays on screen.
	DefaultMaxDuration = 2500 * time.Millisecond
)

// Options controls phrase grouping.
type Options struct {
	MaxWords    int
	MaxDuration time.Duration
	Style       StyleID
}

// PhraseGroup is a run of consecutive words displayed as one subtitle line.
type PhraseGroup struct {
	Words []Word  `json:"words"`
	Start float64 `json:"start"`
	End   float64 `json:"end"`
}

// Duration returns End-Start in seconds.
func (g PhraseGroup) Duration() float64 {
	return g.End - g.Start
}

// Text joins the words of the group with single spaces.
func (g PhraseGroup) Text() string {
	var out []byte
	for i, w := range g.Words {
		if i > 0 {
			out = append(out, ' ')
		}
		out = append(out, w.Text...)
	}
	return string(out)
}

// KaraokeWord is one entry of a karaoke timing directive. All offsets are
// centiseconds relative to the group start. Cumulative is the highlight
// boundary after this word: non-decreasing across the group and equal to the
// group duration on the last word.
type KaraokeWord struct {
	Word        string `json:"word"`
	StartCentis int    `json:"relative_start_centis"`
	EndCentis   int    `json:"relative_end_centis"`
	Cumulative  int    `json:"cumulative_centis"`
}

// Directive is the rendered form of one PhraseGroup.
type Directive struct {
	Start float64       `json:"start"`
	End   float64       `json:"end"`
	Style StyleID       `json:"style_id"`
	Words []KaraokeWord `json:"words"`
}

// DurationCentis is the group length in centiseconds.
func (d Directive) DurationCentis() int {
	return centis(d.End - d.Start)
}

// Synchronizer groups words and derives karaoke timing. It holds no state
// besides its options and is safe for concurrent use.
type Synchronizer struct {
	maxWords    int
	maxDuration float64
	style       StyleID
}

// NewSynchronizer validates opts. Zero limits take the package defaults; an
// unregistered style is an error.
func NewSynchronizer(opts Options) (*Synchronizer, error) {
	if opts.MaxWords < 0 || opts.MaxDuration < 0 {
		return nil, errors.New("subtitle limits must not be negative")
	}
	if opts.MaxWords == 0 {
		opts.MaxWords = DefaultMaxWords
	}
	if opts.MaxDuration == 0 {
		opts.MaxDuration = DefaultMaxDuration
	}
	if _, err := Lookup(opts.Style); err != nil {
		return nil, err
	}
	return &Synchronizer{
		maxWords:    opts.MaxWords,
		maxDuration: opts.MaxDuration.Seconds(),
		style:       opts.Style,
	}, nil
}

// Style returns the style applied to every directive.
func (s *Synchronizer) Style() StyleID {
	return s.style
}

// Group greedily accumulates words into phrases in start-time order. A group
// closes when adding the next word would exceed either limit. A word longer
// than the duration limit still forms a group of its own; words are never
// split. The input slice is not modified.
func (s *Synchronizer) Group(words []Word) []PhraseGroup {
	ordered := append([]Word(nil), words...)
	sort.SliceStable(ordered, func(i, j int) bool { return ordered[i].Start < ordered[j].Start })

	var groups []PhraseGroup
	var current PhraseGroup

	for _, w := range ordered {
		if w.End < w.Start {
			w.End = w.Start
		}
		if len(current.Words) > 0 {
			end := math.Max(current.End, w.End)
			if len(current.Words)+1 > s.maxWords || end-current.Start > s.maxDuration+epsilon {
				groups = append(groups, current)
				current = PhraseGroup{}
			}
		}
		if len(current.Words) == 0 {
			current = PhraseGroup{Start: w.Start, End: w.End}
		}
		current.Words = append(current.Words, w)
		current.Start = math.Min(current.Start, w.Start)
		current.End = math.Max(current.End, w.End)
	}
	if len(current.Words) > 0 {
		groups = append(groups, current)
	}
	return groups
}

// Directives groups words and attaches karaoke timing to each group.
func (s *Synchronizer) Directives(words []Word) []Directive {
	groups := s.Group(words)
	out := make([]Directive, 0, len(groups))
	for _, g := range groups {
		out = append(out, Directive{
			Start: g.Start,
			End:   g.End,
			Style: s.style,
			Words: Karaoke(g),
		})
	}
	return out
}

// Karaoke computes per-word relative timing for one group. Offsets are
// rounded from absolute times so rounding error never accumulates.
func Karaoke(g PhraseGroup) []KaraokeWord {
	total := centis(g.Duration())
	out := make([]KaraokeWord, 0, len(g.Words))
	prev := 0
	for i, w := range g.Words {
		start := clampCentis(centis(w.Start-g.Start), total)
		end := clampCentis(centis(w.End-g.Start), total)
		if end < start {
			end = start
		}
		cumulative := end
		if cumulative < prev {
			cumulative = prev
		}
		if i == len(g.Words)-1 {
			cumulative = total
		}
		out = append(out, KaraokeWord{
			Word:        w.Text,
			StartCentis: start,
			EndCentis:   end,
			Cumulative:  cumulative,
		})
		prev = cumulative
	}
	return out
}

// Deltas returns the per-word highlight lengths (the \k values) for a
// directive. They sum to the group duration.
func Deltas(words []KaraokeWord) []int {
	out := make([]int, len(words))
	prev := 0
	for i, w := range words {
		out[i] = w.Cumulative - prev
		prev = w.Cumulative
	}
	return out
}

// Validate checks the structural invariants of a directive list.
func Validate(directives []Directive) error {
	for i, d := range directives {
		if len(d.Words) == 0 {
			return fmt.Errorf("directive %d: no words", i)
		}
		prev := 0
		for j, w := range d.Words {
			if w.Cumulative < prev {
				return fmt.Errorf("directive %d word %d: cumulative timing decreases", i, j)
			}
			prev = w.Cumulative
		}
		if prev != d.DurationCentis() {
			return fmt.Errorf("directive %d: final cumulative %d != duration %d", i, prev, d.DurationCentis())
		}
	}
	return nil
}

// epsilon absorbs float noise when comparing spans against the limit.
const epsilon = 1e-9

func centis(seconds float64) int {
	return int(math.Round(seconds * 100))
}

func clampCentis(v, limit int) int {
	if v < 0 {
		return 0
	}
	if v > limit {
		return limit
	}
	return v
}
