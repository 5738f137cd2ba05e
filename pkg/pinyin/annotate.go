package pinyin

import (
	"strings"

	mzpinyin "github.com/mozillazg/go-pinyin"
)

// Annotator produces a full-sentence pinyin reading for Mandarin text.
// This is the linguistic segmentation capability used to annotate assistant
// replies and coach corrections; it is distinct from [Convert], which only
// transliterates numeric pinyin the user already typed.
//
// Implementations must be safe for concurrent use.
type Annotator interface {
	// Annotate returns the space-separated diacritic pinyin reading of text.
	// Non-hanzi characters are passed through unchanged. Empty input yields
	// an empty string.
	Annotate(text string) string
}

// HanziAnnotator implements [Annotator] on top of github.com/mozillazg/go-pinyin.
// The zero value is not usable; construct via [NewHanziAnnotator].
type HanziAnnotator struct {
	args mzpinyin.Args
}

// Compile-time interface check.
var _ Annotator = (*HanziAnnotator)(nil)

// NewHanziAnnotator returns an annotator that emits diacritic tone marks
// (style "zhōng wén") and passes non-hanzi runes through verbatim.
func NewHanziAnnotator() *HanziAnnotator {
	args := mzpinyin.NewArgs()
	args.Style = mzpinyin.Tone
	// go-pinyin drops runes it has no reading for; keep them instead so
	// punctuation and latin text survive annotation.
	args.Fallback = func(r rune, _ mzpinyin.Args) []string {
		return []string{string(r)}
	}
	return &HanziAnnotator{args: args}
}

// Annotate implements [Annotator].
func (a *HanziAnnotator) Annotate(text string) string {
	if strings.TrimSpace(text) == "" {
		return ""
	}
	readings := mzpinyin.Pinyin(text, a.args)
	parts := make([]string, 0, len(readings))
	for _, r := range readings {
		if len(r) == 0 {
			continue
		}
		parts = append(parts, r[0])
	}
	return strings.Join(parts, " ")
}
