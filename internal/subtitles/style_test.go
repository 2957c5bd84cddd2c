package subtitles_test

import (
	"errors"
	"testing"

	"clipforge/internal/subtitles"
)

func TestParseStyle(t *testing.T) {
	cases := map[string]subtitles.StyleID{
		"modern":  subtitles.StyleModern,
		" NEON ":  subtitles.StyleNeon,
		"fire":    subtitles.StyleFire,
		"Elegant": subtitles.StyleElegant,
	}
	for input, want := range cases {
		got, err := subtitles.ParseStyle(input)
		if err != nil {
			t.Fatalf("ParseStyle(%q): %v", input, err)
		}
		if got != want {
			t.Fatalf("ParseStyle(%q) = %v, want %v", input, got, want)
		}
	}
}

func TestParseStyleUnknownIsError(t *testing.T) {
	if _, err := subtitles.ParseStyle("comic"); !errors.Is(err, subtitles.ErrUnknownStyle) {
		t.Fatalf("expected ErrUnknownStyle, got %v", err)
	}
	if _, err := subtitles.ParseStyle(""); !errors.Is(err, subtitles.ErrUnknownStyle) {
		t.Fatalf("expected ErrUnknownStyle for empty id, got %v", err)
	}
}

func TestRegistryTable(t *testing.T) {
	styles := subtitles.Styles()
	if len(styles) != 4 {
		t.Fatalf("expected 4 styles, got %d", len(styles))
	}
	for i, s := range styles {
		if s.ID != subtitles.StyleID(i) {
			t.Fatalf("style %q has id %d at index %d", s.Name, s.ID, i)
		}
		if s.Font == "" || s.PrimaryColor == "" || s.HighlightColor == "" {
			t.Fatalf("style %q incomplete: %+v", s.Name, s)
		}
	}
	elegant, err := subtitles.Lookup(subtitles.StyleElegant)
	if err != nil {
		t.Fatalf("Lookup: %v", err)
	}
	if elegant.Font != "Georgia" || elegant.Bold {
		t.Fatalf("unexpected elegant style %+v", elegant)
	}
}

func TestStyleIDTextRoundTrip(t *testing.T) {
	var id subtitles.StyleID
	if err := id.UnmarshalText([]byte("fire")); err != nil {
		t.Fatalf("UnmarshalText: %v", err)
	}
	if id != subtitles.StyleFire {
		t.Fatalf("unexpected id %v", id)
	}
	if err := id.UnmarshalText([]byte("plain")); err == nil {
		t.Fatal("expected error for unknown style")
	}
	if _, err := subtitles.StyleID(-1).MarshalText(); err == nil {
		t.Fatal("expected marshal error for invalid id")
	}
}
