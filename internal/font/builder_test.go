package font

import (
	"testing"

	"github.com/meme-lord/fontleak/internal/alphabet"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestGenerate_Deterministic(t *testing.T) {
	b := NewBuilder(8)
	a1, err := b.Generate("ab", 4, true, "", false, 0)
	require.NoError(t, err)

	b2 := NewBuilder(8) // independent builder, independent cache
	a2, err := b2.Generate("ab", 4, true, "", false, 0)
	require.NoError(t, err)

	assert.Equal(t, a1.DataURL, a2.DataURL)
	assert.Equal(t, a1.StepMap, a2.StepMap)
}

func TestGenerate_MemoisesIdenticalInputs(t *testing.T) {
	b := NewBuilder(8)
	a1, err := b.Generate("xyz", 3, false, "", false, 0)
	require.NoError(t, err)
	a2, err := b.Generate("xyz", 3, false, "", false, 0)
	require.NoError(t, err)
	assert.Equal(t, a1.DataURL, a2.DataURL)
	assert.Equal(t, a1.StepMap, a2.StepMap)
}

func TestGenerate_RejectsOversizedAlphabet(t *testing.T) {
	b := NewBuilder(8)
	big := make([]byte, alphabet.MaxLen+1)
	for i := range big {
		big[i] = byte('a' + (i % 26))
	}
	_, err := b.Generate(string(big), 4, true, "", false, 0)
	require.Error(t, err)
}

func TestGenerate_RejectsExhaustedCodepoints(t *testing.T) {
	b := NewBuilder(8)
	_, err := b.Generate("ab", len(IdxPoints)+1, true, "", false, 0)
	require.Error(t, err)
}

func TestGenerate_PrefixIdxShiftsStepMapBase(t *testing.T) {
	b := NewBuilder(8)
	plain, err := b.Generate("ab", 1, true, "", false, 0)
	require.NoError(t, err)

	shifted, err := b.Generate("ab", 1, true, "abc", true, 0)
	require.NoError(t, err)

	assert.Equal(t, IdxPoints[0], plain.StepMap[0])
	assert.Equal(t, IdxPoints[3], shifted.StepMap[0])
}

func TestBuildLigaLookups_FinalLookupMapsCharsToLeakGlyphs(t *testing.T) {
	alphabet := "ab"
	stepMap := []rune{IdxPoints[0], IdxPoints[1]}
	gs := buildGlyphSet(alphabet, stepMap, 0)

	lookups := buildLigaLookups(gs, true)
	require.NotEmpty(t, lookups)

	// last lookup is the final i0+char -> leak substitution
	final := lookups[len(lookups)-1]
	require.NotEmpty(t, final)
}

func TestGlyphSet_LeakAdvancesEncodeAlphabetIndexPlusOne(t *testing.T) {
	alphabet := "abc"
	gs := buildGlyphSet(alphabet, []rune{IdxPoints[0]}, 0)
	for i, gid := range gs.leakGIDs {
		assert.Equal(t, uint16(i+1), gs.glyphs[gid].advance)
	}
	assert.Equal(t, uint16(len(alphabet)+1), gs.glyphs[gs.unknownLeakGID].advance)
}

func TestGlyphSet_OffsetShiftsLeakAdvances(t *testing.T) {
	alphabet := "abc"
	gs := buildGlyphSet(alphabet, []rune{IdxPoints[0]}, 100)
	for i, gid := range gs.leakGIDs {
		assert.Equal(t, uint16(100+i+1), gs.glyphs[gid].advance)
	}
}

func TestIdxPoints_ExcludesConfiguredScripts(t *testing.T) {
	require.NotEmpty(t, IdxPoints)
	for _, cp := range IdxPoints[:min(len(IdxPoints), 500)] {
		assert.False(t, isExcluded(cp), "codepoint %U should not belong to an excluded script", cp)
	}
}

func min(a, b int) int {
	if a < b {
		return a
	}
	return b
}
