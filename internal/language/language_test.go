package language

import "testing"

func TestToISO2(t *testing.T) {
	tests := []struct {
		input string
		want  string
	}{
		{"en", "en"},
		{"EN", "en"},
		{"eng", "en"},
		{"English", "en"},
		{"fre", "fr"},
		{"fra", "fr"},
		{"ger", "de"},
		{"chi", "zh"},
		{"en-US", "en"},
		{"pt_BR", "pt"},
		{"  spa  ", "es"},
		{"xx", "xx"},
		{"xyz", ""},
		{"und", ""},
		{"", ""},
	}
	for _, tt := range tests {
		t.Run(tt.input, func(t *testing.T) {
			if got := ToISO2(tt.input); got != tt.want {
				t.Errorf("ToISO2(%q) = %q, want %q", tt.input, got, tt.want)
			}
		})
	}
}

func TestDisplayName(t *testing.T) {
	tests := []struct {
		input string
		want  string
	}{
		{"en", "English"},
		{"deu", "German"},
		{"ja", "Japanese"},
		{"", "Auto-detect"},
		{"xx", "XX"},
	}
	for _, tt := range tests {
		if got := DisplayName(tt.input); got != tt.want {
			t.Errorf("DisplayName(%q) = %q, want %q", tt.input, got, tt.want)
		}
	}
}

func TestFromStreamTags(t *testing.T) {
	tests := []struct {
		name string
		tags map[string]string
		want string
	}{
		{"nil", nil, ""},
		{"lowercase key", map[string]string{"language": "eng"}, "en"},
		{"uppercase key", map[string]string{"LANGUAGE": "fre"}, "fr"},
		{"ietf", map[string]string{"language_ietf": "es-419"}, "es"},
		{"undetermined", map[string]string{"language": "und"}, ""},
		{"null padded", map[string]string{"language": "jpn\u0000"}, "ja"},
		{"fall through", map[string]string{"language": "und", "lang": "ita"}, "it"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := FromStreamTags(tt.tags); got != tt.want {
				t.Errorf("FromStreamTags(%v) = %q, want %q", tt.tags, got, tt.want)
			}
		})
	}
}
