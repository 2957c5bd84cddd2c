package subtitles_test

import (
	"bytes"
	"strings"
	"testing"
	"time"

	"clipforge/internal/subtitles"
)

func TestWriteASSKaraokeLine(t *testing.T) {
	s := newSync(t, 3, 2500*time.Millisecond)
	directives := s.Directives([]subtitles.Word{
		{Text: "hello", Start: 0, End: 0.5},
		{Text: "{big}", Start: 0.5, End: 1.0},
	})
	style, _ := subtitles.Lookup(subtitles.StyleModern)

	var buf bytes.Buffer
	if err := subtitles.WriteASS(&buf, directives, style, subtitles.Resolution{Width: 720, Height: 1280}); err != nil {
		t.Fatalf("WriteASS: %v", err)
	}
	out := buf.String()
	for _, fragment := range []string{
		"[Script Info]",
		"PlayResX: 720",
		"[V4+ Styles]",
		"Style: modern,Montserrat,16,&H00FFFFFF,&H0000FF00,",
		"[Events]",
		`Dialogue: 0,0:00:00.00,0:00:01.00,modern,,0,0,0,,{\k50}hello {\k50}(big)`,
	} {
		if !strings.Contains(out, fragment) {
			t.Fatalf("expected %q in output:\n%s", fragment, out)
		}
	}
}

func TestWriteASSEndMatchesKaraokeSum(t *testing.T) {
	directives := newSync(t, 3, 2500*time.Millisecond).Directives([]subtitles.Word{
		{Text: "edge", Start: 0.004, End: 1.006},
	})
	style, _ := subtitles.Lookup(subtitles.StyleModern)

	var buf bytes.Buffer
	if err := subtitles.WriteASS(&buf, directives, style, subtitles.Resolution{}); err != nil {
		t.Fatalf("WriteASS: %v", err)
	}
	// Rounding start and end separately would give 0:00:01.01 here.
	want := `Dialogue: 0,0:00:00.00,0:00:01.00,modern,,0,0,0,,{\k100}edge`
	if !strings.Contains(buf.String(), want) {
		t.Fatalf("expected %q in output:\n%s", want, buf.String())
	}
}

func TestWriteASSWithoutWords(t *testing.T) {
	style, _ := subtitles.Lookup(subtitles.StyleNeon)
	var buf bytes.Buffer
	if err := subtitles.WriteASS(&buf, nil, style, subtitles.Resolution{}); err != nil {
		t.Fatalf("WriteASS: %v", err)
	}
	out := buf.String()
	if strings.Contains(out, "Dialogue:") {
		t.Fatalf("expected no events, got:\n%s", out)
	}
	if strings.Contains(out, "PlayResX") {
		t.Fatalf("expected no play resolution, got:\n%s", out)
	}
	if !strings.Contains(out, "[Events]") {
		t.Fatalf("expected events section, got:\n%s", out)
	}
}

func TestTimestamps(t *testing.T) {
	if got := subtitles.ASSTimestamp(3723.456); got != "1:02:03.46" {
		t.Fatalf("ASSTimestamp = %q", got)
	}
	if got := subtitles.SRTTimestamp(3723.456); got != "01:02:03,456" {
		t.Fatalf("SRTTimestamp = %q", got)
	}
	if got := subtitles.ASSTimestamp(-1); got != "0:00:00.00" {
		t.Fatalf("negative ASSTimestamp = %q", got)
	}
}

func TestWriteSRT(t *testing.T) {
	groups := newSync(t, 2, 2500*time.Millisecond).Group([]subtitles.Word{
		{Text: "one", Start: 0, End: 0.4},
		{Text: "two", Start: 0.4, End: 0.8},
		{Text: "three", Start: 1.0, End: 1.5},
	})
	var buf bytes.Buffer
	if err := subtitles.WriteSRT(&buf, groups); err != nil {
		t.Fatalf("WriteSRT: %v", err)
	}
	want := "1\n00:00:00,000 --> 00:00:00,800\none two\n\n2\n00:00:01,000 --> 00:00:01,500\nthree\n\n"
	if buf.String() != want {
		t.Fatalf("unexpected srt:\n%q\nwant\n%q", buf.String(), want)
	}
}

func TestClipWordsRebases(t *testing.T) {
	words := []subtitles.Word{
		{Text: "before", Start: 1, End: 2},
		{Text: "edge", Start: 9.5, End: 10.5},
		{Text: "inside", Start: 12, End: 13},
		{Text: "tail", Start: 19.8, End: 20.4},
		{Text: "after", Start: 21, End: 22},
	}
	got := subtitles.ClipWords(words, 10, 20)
	if len(got) != 3 {
		t.Fatalf("expected 3 words, got %+v", got)
	}
	if got[0].Start != 0 || got[0].End != 0.5 {
		t.Fatalf("edge word not clamped: %+v", got[0])
	}
	if got[1].Start != 2 || got[1].End != 3 {
		t.Fatalf("inside word not rebased: %+v", got[1])
	}
	if got[2].End != 10 {
		t.Fatalf("tail word not clamped: %+v", got[2])
	}
}

func TestNormalizeWords(t *testing.T) {
	got := subtitles.NormalizeWords([]subtitles.Word{
		{Text: " second ", Start: 2, End: 2.5},
		{Text: "", Start: 0.5, End: 1},
		{Text: "café", Start: 1, End: 0.5},
	})
	if len(got) != 2 {
		t.Fatalf("expected 2 words, got %+v", got)
	}
	if got[0].Text != "café" || got[0].End != 1 {
		t.Fatalf("unexpected first word %+v", got[0])
	}
	if got[1].Text != "second" {
		t.Fatalf("unexpected second word %+v", got[1])
	}
}
