package subtitles

import (
	"errors"
	"fmt"
	"strings"
)

// ErrUnknownStyle is returned when a style name is not in the registry.
var ErrUnknownStyle = errors.New("unknown subtitle style")

// StyleID indexes the fixed style registry.
type StyleID int

const (
	StyleModern StyleID = iota
	StyleNeon
	StyleFire
	StyleElegant
	styleCount
)

// DefaultStyle is used when a task omits its style id.
const DefaultStyle = StyleModern

// Style describes how a karaoke line is rendered. Colors use the ASS
// &HAABBGGRR notation.
type Style struct {
	ID             StyleID
	Name           string
	Font           string
	Size           int
	PrimaryColor   string
	HighlightColor string
	OutlineColor   string
	BackColor      string
	Bold           bool
	Outline        int
	Shadow         int
	Alignment      int
	MarginL        int
	MarginR        int
	MarginV        int
}

var styleTable = [styleCount]Style{
	StyleModern: {
		ID: StyleModern, Name: "modern", Font: "Montserrat", Size: 16,
		PrimaryColor: "&H00FFFFFF", HighlightColor: "&H0000FF00",
		OutlineColor: "&H00000000", BackColor: "&H80000000",
		Bold: true, Outline: 1, Shadow: 0,
		Alignment: 2, MarginL: 10, MarginR: 10, MarginV: 60,
	},
	StyleNeon: {
		ID: StyleNeon, Name: "neon", Font: "Arial", Size: 16,
		PrimaryColor: "&H00FFFFFF", HighlightColor: "&H00FF00FF",
		OutlineColor: "&H00000000", BackColor: "&H80000000",
		Bold: true, Outline: 2, Shadow: 0,
		Alignment: 2, MarginL: 10, MarginR: 10, MarginV: 60,
	},
	StyleFire: {
		ID: StyleFire, Name: "fire", Font: "Impact", Size: 16,
		PrimaryColor: "&H00FFFFFF", HighlightColor: "&H000080FF",
		OutlineColor: "&H00000000", BackColor: "&H80000000",
		Bold: true, Outline: 2, Shadow: 1,
		Alignment: 2, MarginL: 10, MarginR: 10, MarginV: 60,
	},
	StyleElegant: {
		ID: StyleElegant, Name: "elegant", Font: "Georgia", Size: 16,
		PrimaryColor: "&H00FFFFFF", HighlightColor: "&H0000FFFF",
		OutlineColor: "&H00000000", BackColor: "&H80000000",
		Bold: false, Outline: 1, Shadow: 0,
		Alignment: 2, MarginL: 10, MarginR: 10, MarginV: 60,
	},
}

// ParseStyle resolves a style name. Matching ignores case and surrounding
// whitespace; anything else not in the registry is an error.
func ParseStyle(name string) (StyleID, error) {
	key := strings.ToLower(strings.TrimSpace(name))
	for _, style := range styleTable {
		if style.Name == key {
			return style.ID, nil
		}
	}
	return 0, fmt.Errorf("%w: %q", ErrUnknownStyle, name)
}

// Lookup returns the registry entry for id.
func Lookup(id StyleID) (Style, error) {
	if !id.Valid() {
		return Style{}, fmt.Errorf("%w: id %d", ErrUnknownStyle, int(id))
	}
	return styleTable[id], nil
}

// Styles lists the registry in id order.
func Styles() []Style {
	out := make([]Style, len(styleTable))
	copy(out, styleTable[:])
	return out
}

// Valid reports whether id names a registered style.
func (id StyleID) Valid() bool {
	return id >= 0 && id < styleCount
}

func (id StyleID) String() string {
	if !id.Valid() {
		return fmt.Sprintf("style(%d)", int(id))
	}
	return styleTable[id].Name
}

func (id StyleID) MarshalText() ([]byte, error) {
	if !id.Valid() {
		return nil, fmt.Errorf("%w: id %d", ErrUnknownStyle, int(id))
	}
	return []byte(id.String()), nil
}

func (id *StyleID) UnmarshalText(text []byte) error {
	parsed, err := ParseStyle(string(text))
	if err != nil {
		return err
	}
	*id = parsed
	return nil
}
