// Package normalizer converts raw scraped text into canonical records.
// It is pure: no I/O, no clock, no globals beyond fixed tables.
package normalizer

import (
	"strconv"
	"strings"
	"unicode"
)

// Explicit pair delimiters seen in upstream doubles listings, checked in order.
var pairDelimiters = []string{"/", " et ", " - "}

// surnameFragments lists known multi-capital surname prefixes. An internal
// lowercase→uppercase transition immediately after one of these is part of a
// single surname, not a junction between two players. The list is inherently
// incomplete; an unlisted surname with an internal capital will mis-split.
var surnameFragments = []string{"Mc", "Mac", "De", "Van", "O'", "La", "Le", "St"}

// SplitDoubles recovers the two player names from a raw doubles listing cell.
// If an explicit delimiter is present the split is exact. Otherwise a space is
// inserted at every lowercase→uppercase junction not explained by a known
// surname fragment and the resulting words are regrouped at the midpoint, so
// "DanielLeungTimothy Lock" still resolves to both players. Returns ok=false
// when no junction is found; the caller keeps the unsplit name as a degraded
// single-player result.
func SplitDoubles(raw string) (primary, partner string, ok bool) {
	name := CollapseSpaces(raw)
	if name == "" {
		return "", "", false
	}

	for _, d := range pairDelimiters {
		if i := strings.Index(name, d); i > 0 {
			left := TitleCase(strings.TrimSpace(name[:i]))
			right := TitleCase(strings.TrimSpace(name[i+len(d):]))
			if left != "" && right != "" {
				return left, right, true
			}
			return TitleCase(name), "", false
		}
	}

	runes := []rune(name)
	var b strings.Builder
	junction := false
	for i, r := range runes {
		b.WriteRune(r)
		if i+1 < len(runes) && unicode.IsLower(r) && unicode.IsUpper(runes[i+1]) &&
			!isSurnameInternal(runes[:i+1]) {
			b.WriteRune(' ')
			junction = true
		}
	}
	if !junction {
		return TitleCase(name), "", false
	}

	words := strings.Fields(b.String())
	if len(words) < 2 {
		return TitleCase(name), "", false
	}
	mid := len(words) / 2
	if mid < 1 {
		mid = 1
	}
	left := TitleCase(strings.Join(words[:mid], " "))
	right := TitleCase(strings.Join(words[mid:], " "))
	if left == "" || right == "" {
		return TitleCase(name), "", false
	}
	return left, right, true
}

// isSurnameInternal reports whether the text ending at the candidate junction
// finishes with a known surname fragment starting at a word boundary, e.g.
// "Connor Mc" before the D of "McDonald".
func isSurnameInternal(before []rune) bool {
	s := string(before)
	for _, frag := range surnameFragments {
		if !strings.HasSuffix(s, frag) {
			continue
		}
		start := len(s) - len(frag)
		if start == 0 {
			return true
		}
		prev := []rune(s[:start])
		if !unicode.IsLetter(prev[len(prev)-1]) {
			return true
		}
	}
	return false
}

// TitleCase upper-cases the first letter of each word, leaving interior
// capitals alone so "McDonald" survives.
func TitleCase(s string) string {
	words := strings.Fields(s)
	for i, w := range words {
		r := []rune(w)
		if unicode.IsLower(r[0]) {
			r[0] = unicode.ToUpper(r[0])
			words[i] = string(r)
		}
	}
	return strings.Join(words, " ")
}

// CollapseSpaces trims the string and folds runs of whitespace (including
// tabs and newlines left over from HTML extraction) into single spaces.
func CollapseSpaces(s string) string {
	return strings.Join(strings.Fields(s), " ")
}

// ParsePoints parses an upstream points cell like "12,500" into a float.
// Returns 0 for anything unparseable or negative.
func ParsePoints(raw string) float64 {
	clean := strings.ReplaceAll(strings.TrimSpace(raw), ",", "")
	if clean == "" {
		return 0
	}
	v, err := strconv.ParseFloat(clean, 64)
	if err != nil || v < 0 {
		return 0
	}
	return v
}
