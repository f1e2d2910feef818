package font

import (
	"bytes"
	"encoding/binary"
	"sort"
)

// ligRule is one entry of a Ligature Substitution subtable: a sequence of
// component glyph IDs (the first component is implied by which coverage
// glyph the rule is attached to) collapsing to a single output glyph.
type ligRule struct {
	components []int
	output     int
}

// u16 appends a big-endian uint16, the byte order every sfnt table uses.
func u16(b *bytes.Buffer, v uint16) { binary.Write(b, binary.BigEndian, v) }
func i16(b *bytes.Buffer, v int16)  { binary.Write(b, binary.BigEndian, v) }

// offsetTable writes `prefix` followed by one big-endian uint16 offset per
// blob (each offset measured from the start of the table this produces),
// followed by the concatenated blobs themselves. This is the recurring
// "array of offsets, then the tables they point to" shape used throughout
// sfnt (LigatureSet, Lookup, Sequence, ...).
func offsetTable(prefix []byte, blobs [][]byte) []byte {
	base := len(prefix) + 2*len(blobs)
	var out bytes.Buffer
	out.Write(prefix)
	running := base
	for _, blob := range blobs {
		u16(&out, uint16(running))
		running += len(blob)
	}
	for _, blob := range blobs {
		out.Write(blob)
	}
	return out.Bytes()
}

// buildCoverageFormat1 encodes a Coverage table listing glyphs in
// ascending GID order, as LookupType 2 and 4 subtables require.
func buildCoverageFormat1(gids []int) []byte {
	sorted := append([]int(nil), gids...)
	sort.Ints(sorted)
	var b bytes.Buffer
	u16(&b, 1) // CoverageFormat
	u16(&b, uint16(len(sorted)))
	for _, g := range sorted {
		u16(&b, uint16(g))
	}
	return b.Bytes()
}

// buildSingleSubstIdentity builds a LookupType 1 Format 1 subtable that
// leaves every covered glyph unchanged (delta 0). The original feature
// program's "sub @any by @any;" exists purely so the shaping engine keeps
// processing those glyphs through the later GSUB passes in strip mode;
// it has no observable effect on its own.
func buildSingleSubstIdentity(gids []int) []byte {
	cov := buildCoverageFormat1(gids)
	var b bytes.Buffer
	u16(&b, 1) // SubstFormat
	u16(&b, 6) // placeholder, fixed below
	i16(&b, 0) // DeltaGlyphID
	out := b.Bytes()
	binary.BigEndian.PutUint16(out[2:4], 6) // CoverageOffset, fixed header size
	return append(out, cov...)
}

// buildMultipleSubstDelete builds a LookupType 2 Format 1 subtable that
// deletes the single covered glyph (an empty output sequence), the
// mechanism the OpenType spec provides for "sub X by NULL;".
func buildMultipleSubstDelete(gid int) []byte {
	cov := buildCoverageFormat1([]int{gid})
	emptySequence := func() []byte {
		var s bytes.Buffer
		u16(&s, 0) // GlyphCount = 0: deletes the input glyph
		return s.Bytes()
	}()
	prefix := make([]byte, 4)
	binary.BigEndian.PutUint16(prefix[0:2], 1) // SubstFormat
	body := offsetTable(append(prefix, []byte{0, 0}...), [][]byte{emptySequence})
	// body currently has a 6-byte prefix (format + placeholder coverage
	// offset + sequenceCount) followed by the offset array; patch in the
	// real coverage offset and sequenceCount, then append coverage.
	binary.BigEndian.PutUint16(body[4:6], 1) // SequenceCount
	covOffset := uint16(len(body))
	binary.BigEndian.PutUint16(body[2:4], covOffset)
	return append(body, cov...)
}

// buildLigatureSubst builds a LookupType 4 Format 1 subtable implementing
// every rule in rulesByFirst (keyed by the rule's first glyph), grouped by that
// first glyph the way Coverage + LigatureSet require.
func buildLigatureSubst(rulesByFirst map[int][]ligRule) []byte {
	firsts := make([]int, 0, len(rulesByFirst))
	for g := range rulesByFirst {
		firsts = append(firsts, g)
	}
	sort.Ints(firsts)

	ligSets := make([][]byte, 0, len(firsts))
	for _, first := range firsts {
		rules := rulesByFirst[first]
		ligatures := make([][]byte, 0, len(rules))
		for _, r := range rules {
			var lig bytes.Buffer
			u16(&lig, uint16(r.output))
			u16(&lig, uint16(len(r.components)+1)) // component count incl. first
			for _, c := range r.components {
				u16(&lig, uint16(c))
			}
			ligatures = append(ligatures, lig.Bytes())
		}
		prefix := make([]byte, 2)
		binary.BigEndian.PutUint16(prefix, uint16(len(ligatures)))
		ligSets = append(ligSets, offsetTable(prefix, ligatures))
	}

	cov := buildCoverageFormat1(firsts)
	prefix := make([]byte, 6)
	binary.BigEndian.PutUint16(prefix[0:2], 1)                    // SubstFormat
	binary.BigEndian.PutUint16(prefix[4:6], uint16(len(ligSets))) // LigSetCount
	body := offsetTable(prefix, ligSets)
	covOffset := uint16(len(body))
	binary.BigEndian.PutUint16(body[2:4], covOffset) // CoverageOffset
	return append(body, cov...)
}

// buildLookup wraps one or more subtables of the same lookupType into a
// Lookup table.
func buildLookup(lookupType uint16, subtables [][]byte) []byte {
	prefix := make([]byte, 6)
	binary.BigEndian.PutUint16(prefix[0:2], lookupType)
	binary.BigEndian.PutUint16(prefix[2:4], 0) // LookupFlag
	binary.BigEndian.PutUint16(prefix[4:6], uint16(len(subtables)))
	return offsetTable(prefix, subtables)
}

// buildGSUB assembles a minimal GSUB table exposing a single "liga"
// feature under the default script/language system, applying lookups in
// the order given. Order matters: see buildLigaLookups.
func buildGSUB(lookups [][]byte) []byte {
	lookupList := offsetTable([]byte{0, 0}, lookups)
	binary.BigEndian.PutUint16(lookupList[0:2], uint16(len(lookups)))

	var fi bytes.Buffer
	u16(&fi, uint16(len(lookups)))
	for i := range lookups {
		u16(&fi, uint16(i))
	}
	featureIndices := fi.Bytes()

	var featureBuf bytes.Buffer
	u16(&featureBuf, 0) // FeatureParams
	featureBuf.Write(featureIndices)
	feature := featureBuf.Bytes()

	// FeatureList: featureCount(2) + [tag(4)+offset(2)] + feature table
	var fl bytes.Buffer
	u16(&fl, 1)
	fl.WriteString("liga")
	featureTableOffset := uint16(2 + 6) // header + one record
	u16(&fl, featureTableOffset)
	fl.Write(feature)
	featureListBytes := fl.Bytes()

	// LangSys: lookupOrder(2)=0, requiredFeatureIndex(2)=0xFFFF, featureIndexCount(2), featureIndices[](index 0 only)
	var langSys bytes.Buffer
	u16(&langSys, 0)
	u16(&langSys, 0xFFFF)
	u16(&langSys, 1)
	u16(&langSys, 0)

	// Script table: defaultLangSysOffset(2), langSysCount(2)=0
	var script bytes.Buffer
	u16(&script, 4) // offset to LangSys, right after this 4-byte header
	u16(&script, 0)
	script.Write(langSys.Bytes())

	var sl bytes.Buffer
	u16(&sl, 1)
	sl.WriteString("DFLT")
	scriptTableOffset := uint16(2 + 6)
	u16(&sl, scriptTableOffset)
	sl.Write(script.Bytes())
	scriptListBytes := sl.Bytes()

	var header bytes.Buffer
	u16(&header, 1) // majorVersion
	u16(&header, 0) // minorVersion
	scriptListOffset := uint16(10)
	featureListOffset := scriptListOffset + uint16(len(scriptListBytes))
	lookupListOffset := featureListOffset + uint16(len(featureListBytes))
	u16(&header, scriptListOffset)
	u16(&header, featureListOffset)
	u16(&header, lookupListOffset)

	var out bytes.Buffer
	out.Write(header.Bytes())
	out.Write(scriptListBytes)
	out.Write(featureListBytes)
	out.Write(lookupList)
	return out.Bytes()
}

// buildLigaLookups compiles the glyph set's decrement chain and final
// substitution into the ordered list of GSUB lookups buildGSUB needs.
//
// Order is load-bearing: the shaping engine applies each lookup once,
// left to right, over the output of the previous one. The decrement
// lookups therefore run highest-index first so each freshly produced
// index glyph is immediately available to the next lookup in the list,
// collapsing the whole chain in a single rendering pass. The strip
// lookups (when enabled) run first, ahead of anything the cascade
// produces, so they only ever touch glyphs coming directly from cmap.
func buildLigaLookups(gs *glyphSet, strip bool) [][]byte {
	var lookups [][]byte

	if strip {
		lookups = append(lookups, buildLookup(2, [][]byte{buildMultipleSubstDelete(gs.unknownGID)}))
		lookups = append(lookups, buildLookup(1, [][]byte{buildSingleSubstIdentity(gs.anyGIDs())}))
	}

	any := gs.anyGIDs()
	for k := len(gs.indexGIDs) - 1; k >= 1; k-- {
		rules := make([]ligRule, 0, len(any))
		for _, g := range any {
			rules = append(rules, ligRule{components: []int{g}, output: gs.indexGIDs[k-1]})
		}
		rulesByFirst := map[int][]ligRule{gs.indexGIDs[k]: rules}
		lookups = append(lookups, buildLookup(4, [][]byte{buildLigatureSubst(rulesByFirst)}))
	}

	if len(gs.indexGIDs) > 0 {
		finalRules := make([]ligRule, 0, len(gs.charGIDs)+1)
		for i, charGID := range gs.charGIDs {
			finalRules = append(finalRules, ligRule{components: []int{charGID}, output: gs.leakGIDs[i]})
		}
		if !strip {
			finalRules = append(finalRules, ligRule{components: []int{gs.unknownGID}, output: gs.unknownLeakGID})
		}
		rulesByFirst := map[int][]ligRule{gs.indexGIDs[0]: finalRules}
		lookups = append(lookups, buildLookup(4, [][]byte{buildLigatureSubst(rulesByFirst)}))
	}

	return lookups
}
