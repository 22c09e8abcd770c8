// Package fingerprint derives a stable identity for semantically
// equivalent SQL that differs only in literals, comments, or whitespace.
package fingerprint

import (
	"regexp"
	"strings"

	"github.com/cespare/xxhash/v2"
)

// MaxSampleBytes bounds the stored sample text.
const MaxSampleBytes = 4096

const truncationMarker = " ..."

// Result is the output of Compute: the 64-bit identity hash plus the
// descriptive normalized and sample texts.
type Result struct {
	Hash           uint64
	NormalizedText string
	SampleText     string
}

var (
	reBlockComment = regexp.MustCompile(`(?s)/\*.*?\*/`)
	reLineComment  = regexp.MustCompile(`--[^\n\r]*`)
	reWhitespace   = regexp.MustCompile(`\s+`)

	// Quoted literals are folded in one pass, before bare numbers, so
	// digits inside quotes never leak into the numeric fold.
	reStrLiteral = regexp.MustCompile(`'(?:[^']|'')*'`)
	reGUIDShape  = regexp.MustCompile(`^[0-9a-fA-F]{8}-[0-9a-fA-F]{4}-[0-9a-fA-F]{4}-[0-9a-fA-F]{4}-[0-9a-fA-F]{12}$`)
	reDateShape  = regexp.MustCompile(`^\d{4}-\d{2}-\d{2}(?:[T ][0-9:.]+Z?)?$`)

	reHexLiteral = regexp.MustCompile(`\b0[xX][0-9a-fA-F]+\b`)
	reNumLiteral = regexp.MustCompile(`\b\d+(?:\.\d+)?\b|\.\d+\b`)

	reWord = regexp.MustCompile(`[A-Za-z_][A-Za-z0-9_]*`)
)

// Compute normalizes sql and returns its identity. Pure and idempotent:
// inputs differing only in whitespace, comment content, or literal
// values produce equal hashes.
func Compute(sql string) Result {
	normalized := Normalize(sql)
	return Result{
		Hash:           xxhash.Sum64String(normalized),
		NormalizedText: normalized,
		SampleText:     truncateSample(sql),
	}
}

// Normalize applies the normalization pipeline: strip comments, collapse
// whitespace, fold literals to sentinels, uppercase reserved keywords.
// Comments are stripped before the whitespace collapse because line
// comments are newline-delimited.
func Normalize(sql string) string {
	s := reBlockComment.ReplaceAllString(sql, " ")
	s = reLineComment.ReplaceAllString(s, " ")
	s = strings.TrimSpace(reWhitespace.ReplaceAllString(s, " "))

	s = reStrLiteral.ReplaceAllStringFunc(s, foldQuoted)

	s = reHexLiteral.ReplaceAllString(s, "#")
	s = reNumLiteral.ReplaceAllString(s, "#")

	return reWord.ReplaceAllStringFunc(s, func(w string) string {
		upper := strings.ToUpper(w)
		if reservedKeywords[upper] {
			return upper
		}
		return w
	})
}

// foldQuoted maps one quoted literal to its sentinel. Escape pairs ''
// collapse before the shape checks so 'it''s' reads as one literal.
func foldQuoted(lit string) string {
	body := strings.ReplaceAll(lit[1:len(lit)-1], "''", "'")
	switch {
	case reGUIDShape.MatchString(body):
		return "'#GUID#'"
	case reDateShape.MatchString(body):
		return "'#DATE#'"
	default:
		return "'#'"
	}
}

// truncateSample bounds the original text to MaxSampleBytes, cutting on
// a rune boundary and appending a marker on truncation.
func truncateSample(sql string) string {
	if len(sql) <= MaxSampleBytes {
		return sql
	}
	cut := MaxSampleBytes - len(truncationMarker)
	for cut > 0 && sql[cut]&0xC0 == 0x80 {
		cut--
	}
	return sql[:cut] + truncationMarker
}
