package subtitles_test

import (
	"encoding/json"
	"errors"
	"math"
	"testing"
	"time"

	"clipforge/internal/subtitles"
)

// evenWords returns n words of equal length spanning [0, total).
func evenWords(n int, total float64) []subtitles.Word {
	step := total / float64(n)
	words := make([]subtitles.Word, n)
	for i := range words {
		words[i] = subtitles.Word{
			Text:  string(rune('a' + i)),
			Start: float64(i) * step,
			End:   float64(i+1) * step,
		}
	}
	return words
}

func newSync(t *testing.T, maxWords int, maxDuration time.Duration) *subtitles.Synchronizer {
	t.Helper()
	s, err := subtitles.NewSynchronizer(subtitles.Options{MaxWords: maxWords, MaxDuration: maxDuration, Style: subtitles.StyleModern})
	if err != nil {
		t.Fatalf("NewSynchronizer: %v", err)
	}
	return s
}

func TestGroupTenWordsIntoFourPhrases(t *testing.T) {
	words := evenWords(10, 4.8)
	groups := newSync(t, 3, 2500*time.Millisecond).Group(words)

	if len(groups) != 4 {
		t.Fatalf("expected 4 groups, got %d", len(groups))
	}
	first := groups[0]
	if len(first.Words) != 3 {
		t.Fatalf("expected first group to hold 3 words, got %d", len(first.Words))
	}
	for i := 0; i < 3; i++ {
		if first.Words[i] != words[i] {
			t.Fatalf("first group word %d = %+v, want %+v", i, first.Words[i], words[i])
		}
	}
	for i, g := range groups {
		if g.Duration() > 2.5 {
			t.Fatalf("group %d lasts %.2fs", i, g.Duration())
		}
	}
}

func TestGroupClosesOnDurationLimit(t *testing.T) {
	words := []subtitles.Word{
		{Text: "slow", Start: 0, End: 1.2},
		{Text: "and", Start: 1.2, End: 2.4},
		{Text: "steady", Start: 2.4, End: 3.0},
	}
	groups := newSync(t, 4, 2500*time.Millisecond).Group(words)
	if len(groups) != 2 {
		t.Fatalf("expected 2 groups, got %d", len(groups))
	}
	if len(groups[0].Words) != 2 || groups[1].Words[0].Text != "steady" {
		t.Fatalf("unexpected grouping: %+v", groups)
	}
}

func TestGroupKeepsOverlongWordAlone(t *testing.T) {
	words := []subtitles.Word{
		{Text: "hi", Start: 0, End: 0.3},
		{Text: "loooong", Start: 0.3, End: 4.0},
		{Text: "end", Start: 4.0, End: 4.2},
	}
	groups := newSync(t, 3, 2500*time.Millisecond).Group(words)
	if len(groups) != 3 {
		t.Fatalf("expected 3 groups, got %d", len(groups))
	}
	if len(groups[1].Words) != 1 || groups[1].Words[0].Text != "loooong" {
		t.Fatalf("expected overlong word alone, got %+v", groups[1])
	}
	if groups[1].End != 4.0 {
		t.Fatalf("word must not be truncated, end=%v", groups[1].End)
	}
}

func TestGroupInvariantsHold(t *testing.T) {
	words := []subtitles.Word{
		{Text: "a", Start: 0.00, End: 0.31},
		{Text: "b", Start: 0.40, End: 0.77},
		{Text: "c", Start: 0.80, End: 2.10},
		{Text: "d", Start: 2.15, End: 2.40},
		{Text: "e", Start: 2.41, End: 5.90},
		{Text: "f", Start: 6.00, End: 6.05},
		{Text: "g", Start: 6.10, End: 6.20},
		{Text: "h", Start: 6.20, End: 6.33},
		{Text: "i", Start: 6.33, End: 6.90},
	}
	const maxWords = 4
	const maxDuration = 2.0
	groups := newSync(t, maxWords, 2*time.Second).Group(words)

	total := 0
	for i, g := range groups {
		total += len(g.Words)
		if len(g.Words) > maxWords {
			t.Fatalf("group %d has %d words", i, len(g.Words))
		}
		if g.Duration() > maxDuration && len(g.Words) != 1 {
			t.Fatalf("group %d lasts %.2fs with %d words", i, g.Duration(), len(g.Words))
		}
	}
	if total != len(words) {
		t.Fatalf("groups hold %d words, want %d", total, len(words))
	}
}

func TestKaraokeCumulativeTiming(t *testing.T) {
	s := newSync(t, 3, 2500*time.Millisecond)
	words := []subtitles.Word{
		{Text: "one", Start: 10.004, End: 10.333},
		{Text: "two", Start: 10.5, End: 10.9},
		{Text: "three", Start: 10.95, End: 11.777},
	}
	directives := s.Directives(words)
	if len(directives) != 1 {
		t.Fatalf("expected one directive, got %d", len(directives))
	}
	d := directives[0]
	if d.Style != subtitles.StyleModern {
		t.Fatalf("unexpected style %v", d.Style)
	}
	prev := 0
	for i, w := range d.Words {
		if w.Cumulative < prev {
			t.Fatalf("cumulative decreased at %d", i)
		}
		if w.EndCentis < w.StartCentis {
			t.Fatalf("word %d ends before it starts", i)
		}
		prev = w.Cumulative
	}
	if prev != d.DurationCentis() {
		t.Fatalf("final cumulative %d != duration %d", prev, d.DurationCentis())
	}
	sum := 0
	for _, delta := range subtitles.Deltas(d.Words) {
		sum += delta
	}
	if want := (d.End - d.Start) * 100; math.Abs(float64(sum)-want) > 1 {
		t.Fatalf("deltas sum to %d, want about %.2f", sum, want)
	}
	if err := subtitles.Validate(directives); err != nil {
		t.Fatalf("Validate: %v", err)
	}
}

func TestDirectiveJSONShape(t *testing.T) {
	d := newSync(t, 3, 2500*time.Millisecond).Directives([]subtitles.Word{{Text: "hey", Start: 1, End: 1.5}})
	data, err := json.Marshal(d[0])
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}
	var decoded map[string]any
	if err := json.Unmarshal(data, &decoded); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if decoded["style_id"] != "modern" {
		t.Fatalf("expected style name in JSON, got %v", decoded["style_id"])
	}
	words := decoded["words"].([]any)
	entry := words[0].(map[string]any)
	if entry["relative_end_centis"].(float64) != 50 {
		t.Fatalf("unexpected entry %v", entry)
	}
}

func TestNewSynchronizerRejectsUnknownStyle(t *testing.T) {
	_, err := subtitles.NewSynchronizer(subtitles.Options{MaxWords: 3, MaxDuration: time.Second, Style: subtitles.StyleID(42)})
	if !errors.Is(err, subtitles.ErrUnknownStyle) {
		t.Fatalf("expected ErrUnknownStyle, got %v", err)
	}
}

func TestNewSynchronizerDefaults(t *testing.T) {
	s, err := subtitles.NewSynchronizer(subtitles.Options{Style: subtitles.StyleFire})
	if err != nil {
		t.Fatalf("NewSynchronizer: %v", err)
	}
	groups := s.Group(evenWords(7, 2.1))
	if len(groups) != 3 {
		t.Fatalf("expected default max of 3 words per group, got %d groups", len(groups))
	}
}

func TestGroupEmptyInput(t *testing.T) {
	if groups := newSync(t, 3, time.Second).Group(nil); len(groups) != 0 {
		t.Fatalf("expected no groups, got %d", len(groups))
	}
}

func TestGroupOrdersWordsByStart(t *testing.T) {
	words := []subtitles.Word{
		{Text: "b", Start: 2.0, End: 2.4},
		{Text: "a", Start: 0.0, End: 0.4},
	}
	groups := newSync(t, 3, 5*time.Second).Group(words)
	if len(groups) != 1 || len(groups[0].Words) != 2 {
		t.Fatalf("expected one group of two words, got %+v", groups)
	}
	if got := groups[0].Words[0].Text + groups[0].Words[1].Text; got != "ab" {
		t.Fatalf("expected words in start order, got %q", got)
	}
	if groups[0].Start != 0 || groups[0].End != 2.4 {
		t.Fatalf("unexpected group span [%v, %v]", groups[0].Start, groups[0].End)
	}
	if words[0].Text != "b" {
		t.Fatalf("input slice was reordered")
	}
	for _, d := range newSync(t, 3, 5*time.Second).Directives(words) {
		prev := -1
		for _, w := range d.Words {
			if w.StartCentis < prev {
				t.Fatalf("relative starts decrease: %+v", d.Words)
			}
			prev = w.StartCentis
		}
	}
}
