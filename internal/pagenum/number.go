// Package pagenum detects printed page numbers and resolves the offset
// between physical page indices and the printed numbering, tolerating OCR
// noise, roman-numeral front matter and missing numbers.
package pagenum

import (
	"strconv"
	"strings"
)

// Scheme is the numbering scheme a printed page number uses.
type Scheme int

const (
	SchemeNone Scheme = iota
	SchemeArabic
	SchemeRoman
)

func (s Scheme) String() string {
	switch s {
	case SchemeArabic:
		return "arabic"
	case SchemeRoman:
		return "roman"
	default:
		return "none"
	}
}

// confusions maps characters tesseract commonly misreads for digits.
var confusions = map[rune]rune{
	'l': '1',
	'I': '1',
	'O': '0',
	'o': '0',
	'S': '5',
	'B': '8',
	'Z': '2',
	'g': '9',
	'q': '9',
}

var romanValues = map[rune]int{
	'i': 1, 'v': 5, 'x': 10, 'l': 50, 'c': 100, 'd': 500, 'm': 1000,
}

// maxPageNumber bounds plausible printed numbers; anything larger is
// treated as OCR garbage.
const maxPageNumber = 9999

// normalize strips the decoration printers put around folios ("- 12 -",
// "[iv]", trailing dots) and collapses interior whitespace.
func normalize(raw string) string {
	s := strings.TrimSpace(raw)
	s = strings.Trim(s, "-–—.·*[](){}| ")
	return strings.Join(strings.Fields(s), "")
}

// parseArabic parses a plain decimal page number.
func parseArabic(s string) (int, bool) {
	if s == "" || len(s) > 4 {
		return 0, false
	}
	for _, r := range s {
		if r < '0' || r > '9' {
			return 0, false
		}
	}
	n, err := strconv.Atoi(s)
	if err != nil || n < 1 || n > maxPageNumber {
		return 0, false
	}
	return n, true
}

// parseRoman parses a roman numeral in either case. Front matter is
// conventionally lowercase but OCR output is not reliable about it.
// Malformed sequences (more than three repeats, invalid subtractive
// pairs) are rejected rather than guessed at.
func parseRoman(s string) (int, bool) {
	if s == "" || len(s) > 12 {
		return 0, false
	}
	lower := strings.ToLower(s)

	total := 0
	repeat := 0
	var prev rune
	for i, r := range lower {
		v, ok := romanValues[r]
		if !ok {
			return 0, false
		}
		if r == prev {
			repeat++
			if repeat >= 3 && (r == 'v' || r == 'l' || r == 'd') {
				return 0, false
			}
			if repeat >= 4 {
				return 0, false
			}
		} else {
			repeat = 1
		}
		if i+1 < len(lower) {
			next := romanValues[rune(lower[i+1])]
			if v < next {
				// Subtractive pair: only I, X, C subtract, and only
				// from the next two magnitudes up.
				if next > v*10 || (r != 'i' && r != 'x' && r != 'c') {
					return 0, false
				}
				total -= v
				prev = r
				continue
			}
		}
		total += v
		prev = r
	}
	if total < 1 || total > maxPageNumber {
		return 0, false
	}
	return total, true
}

// parseNumber attempts both schemes on a normalized string. Arabic wins
// ties: a bare "1" is a digit, never roman.
func parseNumber(s string) (int, Scheme, bool) {
	if n, ok := parseArabic(s); ok {
		return n, SchemeArabic, true
	}
	if n, ok := parseRoman(s); ok {
		return n, SchemeRoman, true
	}
	return 0, SchemeNone, false
}

// fuzzyCandidates generates every string reachable from s by one
// confusion-table substitution. The edit bound is deliberately a single
// character: wider correction starts inventing numbers.
func fuzzyCandidates(s string) []string {
	var out []string
	runes := []rune(s)
	for i, r := range runes {
		sub, ok := confusions[r]
		if !ok {
			continue
		}
		cand := make([]rune, len(runes))
		copy(cand, runes)
		cand[i] = sub
		out = append(out, string(cand))
	}
	return out
}

// parseFuzzy retries parsing after single-character confusion correction.
func parseFuzzy(s string) (int, Scheme, bool) {
	for _, cand := range fuzzyCandidates(s) {
		if n, scheme, ok := parseNumber(cand); ok {
			return n, scheme, true
		}
	}
	return 0, SchemeNone, false
}
