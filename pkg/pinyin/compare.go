package pinyin

import (
	"strings"
	"unicode"

	"github.com/antzucaro/matchr"
)

// Difference describes one character of the user's typed answer and whether
// it matches the reference at the same (space-skipping) position.
type Difference struct {
	// Char is the character exactly as the user typed it, case preserved.
	Char string `json:"char"`

	// Correct reports whether the normalised character at this position
	// equals the reference's character at the same position.
	Correct bool `json:"isCorrect"`

	// Position is the cursor index in the normalised comparison, counting
	// only non-space characters.
	Position int `json:"position"`
}

// Comparison is the verdict returned by [Compare].
type Comparison struct {
	// Correct reports whether the normalised user input is character-for-character
	// identical to the normalised reference.
	Correct bool `json:"isCorrect"`

	// Closeness is the Jaro-Winkler similarity of the two normalised strings
	// in [0, 1]. It does not affect Correct; callers use it to tell "almost
	// right" from "wrong" when giving hints.
	Closeness float64 `json:"closeness"`

	// Differences holds one entry per non-space character the user typed,
	// in order. Trailing reference characters the user never typed produce
	// no entries.
	Differences []Difference `json:"differences"`
}

// Compare checks a user's typed pinyin answer against a reference.
//
// Both strings are normalised by lowercasing and stripping all whitespace
// before the equality check, so "Ni3 Hao3" matches "ni3hao3". The comparison
// is tone-mark sensitive: numeric and diacritic notations are not unified
// here — callers wanting that pass both sides through [Convert] first.
//
// The diff walks the user's input as typed: whitespace contributes no entry
// and does not advance the comparison cursor, and every other character is
// compared against the reference at the cursor position. The diff is bounded
// by the user's input length; characters the reference has beyond that are
// not reported.
func Compare(userInput, reference string) Comparison {
	normUser := normalize(userInput)
	normRef := normalize(reference)
	refRunes := []rune(normRef)

	diffs := make([]Difference, 0, len(refRunes))
	cursor := 0
	for _, r := range userInput {
		if unicode.IsSpace(r) {
			continue
		}
		lower := unicode.ToLower(r)
		correct := cursor < len(refRunes) && refRunes[cursor] == lower
		diffs = append(diffs, Difference{
			Char:     string(r),
			Correct:  correct,
			Position: cursor,
		})
		cursor++
	}

	return Comparison{
		Correct:     normUser == normRef,
		Closeness:   matchr.JaroWinkler(normUser, normRef, false),
		Differences: diffs,
	}
}

// normalize lowercases s and strips all whitespace.
func normalize(s string) string {
	return strings.Map(func(r rune) rune {
		if unicode.IsSpace(r) {
			return -1
		}
		return unicode.ToLower(r)
	}, s)
}
