package font

import "fmt"

// glyphID 0 is reserved by the sfnt spec for .notdef.
const notdefGID = 0

// leakGlyphBase is the first Private Use Area code point leak glyphs
// occupy, per spec §4.2 step 2.
const leakGlyphBase = 0xF0000

// unicodeCmapLimit is the code point two past leakGlyphBase. buildCmap is
// not bounded by it: every leak glyph, leakGlyphBase through
// leakGlyphBase+len(alphabet), gets its own cmap entry.
const unicodeCmapLimit = leakGlyphBase + 2

// glyph describes one entry of the font's glyph table: its name (used only
// for readability while assembling GSUB, never emitted on the wire), its
// advance width in font units, and the code point that maps to it via
// cmap, if any.
type glyph struct {
	name      string
	advance   uint16
	codepoint rune // -1 when the glyph is reachable only through GSUB
}

// glyphSet is the full, ordered glyph table plus the lookup indices a
// builder needs while constructing GSUB rules.
type glyphSet struct {
	glyphs []glyph
	byName map[string]int // name -> glyph ID

	unknownGID int   // u0
	charGIDs   []int // c0..c{n-1}, parallel to the alphabet
	leakGIDs   []int // l0..l{n-1}
	unknownLeakGID int // lu
	indexGIDs  []int // i0..i{idxMax-1}

	// extraUnknownCodepoints are basic-plane code points (1..255, minus
	// alphabet members) that also cmap onto u0.
	extraUnknownCodepoints []rune
}

const noCodepoint = rune(-1)

// buildGlyphSet assembles the glyph inventory described by spec §4.2
// steps 1-4: the 256 basic slots, leak glyphs, the terminal "unknown leak"
// glyph, and one index glyph per step-map position.
func buildGlyphSet(alphabet string, stepMap []rune, offset int) *glyphSet {
	gs := &glyphSet{byName: make(map[string]int)}

	// GID 0: .notdef, zero advance, unreachable via cmap.
	gs.add(glyph{name: ".notdef", advance: 0, codepoint: noCodepoint})

	// Step 1: 256 basic glyphs. Alphabet members get their own glyph
	// c{i}; everything else collapses onto the shared placeholder u0.
	gs.unknownGID = gs.add(glyph{name: "u0", advance: 0, codepoint: 0})
	gs.charGIDs = make([]int, len(alphabet))
	for i := 0; i < len(alphabet); i++ {
		name := fmt.Sprintf("c%d", i)
		gid := gs.add(glyph{name: name, advance: 0, codepoint: rune(alphabet[i])})
		gs.charGIDs[i] = gid
	}
	for cp := rune(1); cp < 256; cp++ {
		if indexOfCodepoint(alphabet, cp) >= 0 {
			continue
		}
		// Route every other basic-plane code point at the shared
		// placeholder glyph via an additional cmap entry, not an
		// additional glyph.
		gs.extraUnknownCodepoints = append(gs.extraUnknownCodepoints, cp)
	}

	// Step 2: leak glyphs, advance = offset + i + 1.
	gs.leakGIDs = make([]int, len(alphabet))
	for i := range alphabet {
		name := fmt.Sprintf("l%d", i)
		cp := rune(leakGlyphBase + i)
		gid := gs.add(glyph{name: name, advance: uint16(offset + i + 1), codepoint: cp})
		gs.leakGIDs[i] = gid
	}

	// Step 3: terminal "unknown leak" glyph.
	unkCp := rune(leakGlyphBase + len(alphabet))
	gs.unknownLeakGID = gs.add(glyph{
		name:      "lu",
		advance:   uint16(offset + len(alphabet) + 1),
		codepoint: unkCp,
	})

	// Step 4: one index glyph per step-map position, zero advance,
	// reachable only by the caller injecting its code point in the
	// rendered string.
	gs.indexGIDs = make([]int, len(stepMap))
	for k, cp := range stepMap {
		name := fmt.Sprintf("i%d", k)
		gid := gs.add(glyph{name: name, advance: 0, codepoint: cp})
		gs.indexGIDs[k] = gid
	}

	return gs
}

func (gs *glyphSet) add(g glyph) int {
	gid := len(gs.glyphs)
	gs.glyphs = append(gs.glyphs, g)
	gs.byName[g.name] = gid
	return gid
}

func indexOfCodepoint(alphabet string, cp rune) int {
	for i := 0; i < len(alphabet); i++ {
		if rune(alphabet[i]) == cp {
			return i
		}
	}
	return -1
}

// anyGIDs returns the @any glyph class: the shared placeholder plus every
// alphabet member glyph.
func (gs *glyphSet) anyGIDs() []int {
	out := make([]int, 0, len(gs.charGIDs)+1)
	out = append(out, gs.unknownGID)
	out = append(out, gs.charGIDs...)
	return out
}
