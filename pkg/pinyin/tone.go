// Package pinyin implements the Mandarin pinyin engine for Huayu: numeric
// tone-mark transliteration ([Convert]), typed-answer comparison ([Compare]),
// and hanzi-to-pinyin annotation ([Annotator]).
//
// [Convert] and [Compare] are pure functions with no failure states and are
// safe for concurrent use.
package pinyin

import (
	"regexp"
	"strings"
)

// syllablePattern matches a run of 1–3 pinyin vowel letters immediately
// followed by a single tone digit. Runs with no trailing digit are left
// untouched, which also makes [Convert] a no-op on already-converted text.
var syllablePattern = regexp.MustCompile(`[aeiouüAEIOUÜ]{1,3}[1-5]`)

// toneMarks maps each base vowel to its accented forms for tones 1–4.
// Tone 5 (neutral) is unmarked and handled by falling back to the base vowel.
var toneMarks = map[rune][4]rune{
	'a': {'ā', 'á', 'ǎ', 'à'},
	'e': {'ē', 'é', 'ě', 'è'},
	'i': {'ī', 'í', 'ǐ', 'ì'},
	'o': {'ō', 'ó', 'ǒ', 'ò'},
	'u': {'ū', 'ú', 'ǔ', 'ù'},
	'ü': {'ǖ', 'ǘ', 'ǚ', 'ǜ'},
	'A': {'Ā', 'Á', 'Ǎ', 'À'},
	'E': {'Ē', 'É', 'Ě', 'È'},
	'I': {'Ī', 'Í', 'Ǐ', 'Ì'},
	'O': {'Ō', 'Ó', 'Ǒ', 'Ò'},
	'U': {'Ū', 'Ú', 'Ǔ', 'Ù'},
	'Ü': {'Ǖ', 'Ǘ', 'Ǚ', 'Ǜ'},
}

// Convert transliterates numeric-toned pinyin into diacritic pinyin.
//
// Input uses the ASCII convention where "v" stands for "ü" and each syllable
// carries a trailing tone digit 1–5, e.g. "ni3 hao3" → "nǐ hǎo",
// "lv4" → "lǜ". Tone 5 denotes the neutral tone and produces an unmarked
// vowel. Text that does not match the syllable-tone pattern passes through
// unchanged, so running Convert over already-converted text is a no-op.
func Convert(text string) string {
	// Numeric pinyin writes ü as "v" or "u:"; normalise before matching.
	text = strings.NewReplacer("u:", "ü", "U:", "Ü", "v", "ü", "V", "Ü").Replace(text)

	return syllablePattern.ReplaceAllStringFunc(text, func(match string) string {
		runes := []rune(match)
		tone := int(runes[len(runes)-1] - '0')
		run := runes[:len(runes)-1]

		marked := markedVowelIndex(run)
		if tone >= 1 && tone <= 4 {
			if accented, ok := toneMarks[run[marked]]; ok {
				run[marked] = accented[tone-1]
			}
		}
		// Tone 5: neutral, drop the digit and leave the run unmarked.
		return string(run)
	})
}

// markedVowelIndex selects which vowel in a 1–3 letter run receives the tone
// mark. The precedence is not simply "last vowel":
//
//   - "a" always takes the mark when present;
//   - otherwise "e" takes it;
//   - otherwise a literal "ou" run marks the "o";
//   - otherwise the last vowel is marked (covers "iu", "ui", and single vowels).
func markedVowelIndex(run []rune) int {
	for i, r := range run {
		if r == 'a' || r == 'A' {
			return i
		}
	}
	for i, r := range run {
		if r == 'e' || r == 'E' {
			return i
		}
	}
	if len(run) == 2 && (run[0] == 'o' || run[0] == 'O') && (run[1] == 'u' || run[1] == 'U') {
		return 0
	}
	return len(run) - 1
}
