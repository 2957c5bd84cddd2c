package language

import "strings"

type entry struct {
	code2   string   // ISO 639-1
	code3   string   // ISO 639-2/T
	alt3    string   // ISO 639-2/B where it differs ("fre" vs "fra")
	display string
	words   []string
}

var languages = []entry{
	{"en", "eng", "", "English", []string{"english"}},
	{"es", "spa", "", "Spanish", []string{"spanish", "espanol", "español"}},
	{"fr", "fra", "fre", "French", []string{"french", "francais", "français"}},
	{"de", "deu", "ger", "German", []string{"german", "deutsch"}},
	{"it", "ita", "", "Italian", []string{"italian", "italiano"}},
	{"pt", "por", "", "Portuguese", []string{"portuguese", "portugues", "português"}},
	{"ja", "jpn", "", "Japanese", []string{"japanese"}},
	{"ko", "kor", "", "Korean", []string{"korean"}},
	{"zh", "zho", "chi", "Chinese", []string{"chinese", "mandarin"}},
	{"ru", "rus", "", "Russian", []string{"russian"}},
	{"ar", "ara", "", "Arabic", []string{"arabic"}},
	{"hi", "hin", "", "Hindi", []string{"hindi"}},
	{"nl", "nld", "dut", "Dutch", []string{"dutch"}},
	{"pl", "pol", "", "Polish", []string{"polish"}},
	{"sv", "swe", "", "Swedish", []string{"swedish"}},
	{"da", "dan", "", "Danish", []string{"danish"}},
	{"no", "nor", "", "Norwegian", []string{"norwegian"}},
	{"fi", "fin", "", "Finnish", []string{"finnish"}},
	{"tr", "tur", "", "Turkish", []string{"turkish"}},
	{"uk", "ukr", "", "Ukrainian", []string{"ukrainian"}},
}

var (
	byCode2 map[string]*entry
	byCode3 map[string]*entry
	byWord  map[string]*entry
)

func init() {
	byCode2 = make(map[string]*entry, len(languages))
	byCode3 = make(map[string]*entry, len(languages)*2)
	byWord = make(map[string]*entry, len(languages)*2)
	for i := range languages {
		e := &languages[i]
		byCode2[e.code2] = e
		byCode3[e.code3] = e
		if e.alt3 != "" {
			byCode3[e.alt3] = e
		}
		for _, w := range e.words {
			byWord[w] = e
		}
	}
}

// clean lowercases code and drops a BCP 47 region ("en-US" -> "en").
func clean(code string) string {
	code = strings.ToLower(strings.TrimSpace(strings.ReplaceAll(code, "\u0000", "")))
	if i := strings.IndexAny(code, "-_"); i > 0 {
		code = code[:i]
	}
	return code
}

func lookup(code string) *entry {
	if code == "" {
		return nil
	}
	if e, ok := byCode2[code]; ok {
		return e
	}
	if e, ok := byCode3[code]; ok {
		return e
	}
	return byWord[code]
}

// ToISO2 converts a recognized code or name to ISO 639-1. Unknown
// two-letter codes pass through; anything else yields "".
func ToISO2(code string) string {
	code = clean(code)
	if e := lookup(code); e != nil {
		return e.code2
	}
	if len(code) == 2 {
		return code
	}
	return ""
}

// DisplayName returns a human-readable name. Empty input is "Auto-detect";
// unrecognized codes are uppercased.
func DisplayName(code string) string {
	code = clean(code)
	if code == "" {
		return "Auto-detect"
	}
	if e := lookup(code); e != nil {
		return e.display
	}
	return strings.ToUpper(code)
}

// FromStreamTags returns the ISO 639-1 language recorded in stream tags, or
// "" when absent or undetermined ("und").
func FromStreamTags(tags map[string]string) string {
	for _, key := range []string{"language", "LANGUAGE", "Language", "language_ietf", "lang", "LANG"} {
		value, ok := tags[key]
		if !ok {
			continue
		}
		if code := ToISO2(value); code != "" {
			return code
		}
	}
	return ""
}
