// Package alphabet normalises and indexes the leak alphabet: the ordered
// set of ASCII characters a secret is assumed to be drawn from.
package alphabet

import (
	"strings"
	"unicode"

	"github.com/meme-lord/fontleak/pkg/apperror"
)

// MaxLen is the largest alphabet FontBuilder can encode: each member needs
// a distinct leak-glyph advance width, and that width is transported as a
// small integer over the wire.
const MaxLen = 128

// Sentinel is the index reported for a character outside the alphabet.
// Given an Alphabet a, Sentinel(a) == len(a).
func Sentinel(a string) int { return len(a) }

// DefaultAlphabet mirrors the original tool's default: every printable
// ASCII character that is either non-whitespace or the space itself.
func DefaultAlphabet() string {
	var b strings.Builder
	for c := byte(0x21); c < 0x7f; c++ {
		b.WriteByte(c)
	}
	b.WriteByte(' ')
	return b.String()
}

// Normalise removes duplicate characters (first occurrence wins) and
// rejects anything outside the canonical printable set: ASCII printable
// characters, excluding whitespace other than the plain space.
func Normalise(raw string) (string, error) {
	seen := make(map[rune]bool, len(raw))
	var b strings.Builder
	for _, r := range raw {
		if r >= 256 {
			return "", apperror.NewInvalidAlphabet("character out of ASCII range: " + string(r))
		}
		if !isCanonicalPrintable(r) {
			return "", apperror.NewInvalidAlphabet("non-printable or disallowed whitespace character in alphabet")
		}
		if seen[r] {
			continue
		}
		seen[r] = true
		b.WriteRune(r)
	}
	normalised := b.String()
	if len(normalised) > MaxLen {
		return "", apperror.NewAlphabetTooLarge(len(normalised))
	}
	return normalised, nil
}

func isCanonicalPrintable(r rune) bool {
	if r == ' ' {
		return true
	}
	if unicode.IsSpace(r) {
		return false
	}
	return unicode.IsPrint(r) && r < 128
}

// StripSafari removes the space character from an already-normalised
// alphabet, per the Safari-specific workaround callers apply once the
// browser has been identified.
func StripSafari(normalised string) string {
	return strings.ReplaceAll(normalised, " ", "")
}

// IndexOf returns the position of ch in alphabet, or Sentinel(alphabet) if
// ch is not a member.
func IndexOf(alphabet string, ch byte) int {
	idx := strings.IndexByte(alphabet, ch)
	if idx < 0 {
		return len(alphabet)
	}
	return idx
}
