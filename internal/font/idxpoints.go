package font

import "unicode"

// IdxPoints is the deterministic, ascending table of Unicode code points a
// session's step map is drawn from (spec §6.1). The original tool derived
// this table by scanning the Unicode Character Database for names
// containing "LATIN " or "MATHEMATICAL " while excluding several scripts;
// no package in this module's dependency surface exposes Unicode character
// names, so this rendition reaches the same practical set — Latin-script
// code points above the ASCII range, plus the Mathematical Alphanumeric
// Symbols block — using the standard library's unicode.Scripts tables.
var IdxPoints []rune

// mathAlphanumericStart and mathAlphanumericEnd bound the Mathematical
// Alphanumeric Symbols block (U+1D400-U+1D7FF), the SMP range the original
// table's "MATHEMATICAL " names come from.
const (
	mathAlphanumericStart = 0x1D400
	mathAlphanumericEnd   = 0x1D7FF
)

var excludedScripts = []*unicode.RangeTable{
	unicode.Arabic,
	unicode.Greek,
	unicode.Cyrillic,
	unicode.Hebrew,
	unicode.Hiragana,
	unicode.Katakana,
	unicode.Hangul,
	unicode.Thai,
}

func init() {
	IdxPoints = buildIdxPoints()
}

func buildIdxPoints() []rune {
	var points []rune
	for cp := rune(256); cp <= 0x1FFFF; cp++ {
		if isExcluded(cp) {
			continue
		}
		switch {
		case unicode.Is(unicode.Latin, cp):
			points = append(points, cp)
		case cp >= mathAlphanumericStart && cp <= mathAlphanumericEnd:
			points = append(points, cp)
		}
	}
	return points
}

func isExcluded(cp rune) bool {
	for _, script := range excludedScripts {
		if unicode.Is(script, cp) {
			return true
		}
	}
	return false
}
