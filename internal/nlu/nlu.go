// Package nlu decides which backend operation a piece of free text belongs to.
package nlu

import (
	"strings"
	"unicode"
)

type Intent int

const (
	GeneralQuery Intent = iota
	SymptomQuery
)

func (i Intent) String() string {
	switch i {
	case SymptomQuery:
		return "symptom_query"
	default:
		return "general_query"
	}
}

// Keywords are matched as substrings of the normalized input: lowercased, every
// run of punctuation or whitespace folded into one space, and padded with a
// space at each end. A leading space anchors a keyword to the start of a word
// ("itch" must not fire on "kitchen"); a trailing one anchors its end. Bare
// keywords match anywhere, including mid-word ("fever" in "feverish", "pain"
// even in "spain").
var symptomKeywords = []string{
	// english
	"symptom",
	"fever",
	"pain",
	" ache",
	"headache",
	"backache",
	"toothache",
	"stomachache",
	"earache",
	"bodyache",
	"hurt",
	" sore",
	"cough",
	" cold ",
	" colds ",
	" flu ",
	"influenza",
	"nausea",
	"vomit",
	"diarrh",
	"constipat",
	"dizz",
	"fatigue",
	" tired",
	"weakness",
	" rash",
	" itch",
	"allerg",
	"sneez",
	"congest",
	"runny nose",
	"infection",
	"inflam",
	"swell",
	"swollen",
	"cramp",
	"migraine",
	"insomnia",
	"can't sleep",
	"acidity",
	"heartburn",
	"indigestion",
	"bloat",
	"sick",
	"illness",
	"unwell",
	"not feeling well",
	"injur",
	" burn",
	"bleed",
	"remedy",
	"remedies",
	"medicine",
	"medication",
	"treatment",
	" cure",
	// transliterated hindi
	"bukhar",
	"bukhaar",
	" dard",
	"khansi",
	"khaansi",
	"zukam",
	"jukam",
	"sardi",
	" ulti",
	" dast ",
	"chakkar",
	"thakan",
	"kamzori",
	"khujli",
	"bimar",
	"beemar",
	"davai",
	"dawai",
	" dawa ",
	"ilaj",
	"ilaaj",
	"gala kharab",
}

// Classify is pure: the same text always yields the same intent. Callers must
// reject empty input before classifying it.
func Classify(text string) Intent {
	s := normalize(text)
	for _, kw := range symptomKeywords {
		if strings.Contains(s, kw) {
			return SymptomQuery
		}
	}

	return GeneralQuery
}

// normalize keeps letters and apostrophes ("can't") and folds everything
// else into single spaces.
func normalize(text string) string {
	words := strings.FieldsFunc(strings.ToLower(text), func(r rune) bool {
		return !unicode.IsLetter(r) && r != '\''
	})
	return " " + strings.Join(words, " ") + " "
}

func Keywords() []string {
	return append([]string(nil), symptomKeywords...)
}
