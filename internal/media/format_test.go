package media_test

import (
	"errors"
	"testing"

	"clipforge/internal/media"
)

func TestParseFormat(t *testing.T) {
	cases := map[string][2]int{
		"9:16": {720, 1280},
		"16_9": {1280, 720},
		"1:1":  {720, 720},
		" 4:5": {720, 900},
	}
	for id, size := range cases {
		f, err := media.ParseFormat(id)
		if err != nil {
			t.Fatalf("ParseFormat(%q): %v", id, err)
		}
		if f.Width != size[0] || f.Height != size[1] {
			t.Fatalf("ParseFormat(%q) = %dx%d", id, f.Width, f.Height)
		}
	}
	if _, err := media.ParseFormat("21:9"); !errors.Is(err, media.ErrUnknownFormat) {
		t.Fatalf("expected ErrUnknownFormat, got %v", err)
	}
}

func TestFormatFilter(t *testing.T) {
	want := "scale=720:1280:force_original_aspect_ratio=increase,crop=720:1280"
	if got := media.DefaultFormat.Filter(); got != want {
		t.Fatalf("Filter() = %q, want %q", got, want)
	}
}
