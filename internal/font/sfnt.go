package font

import (
	"bytes"
	"encoding/binary"
	"sort"
)

// unitsPerEm, ascent and descent are fixed by the on-wire font contract
// (spec §6.4): a single face named "fontleak" with these exact metrics.
const (
	unitsPerEm = 1000
	ascent     = 5
	descent    = 5
	fontName   = "fontleak"
)

// assembleSFNT builds a complete binary OpenType font from a glyph set and
// its compiled GSUB lookups. Every outline is empty (a TrueType glyph with
// zero contours): the only property the leak technique depends on is each
// glyph's horizontal advance, exactly as the original tool's degenerate
// "M {x} 0z" SVG paths carried no visible ink either.
func assembleSFNT(gs *glyphSet, gsubLookups [][]byte) []byte {
	numGlyphs := len(gs.glyphs)

	glyf, loca, locaLong := buildGlyfLoca(numGlyphs)
	head := buildHead(locaLong)
	hhea := buildHhea(numGlyphs, maxAdvance(gs))
	hmtx := buildHmtx(gs)
	maxp := buildMaxp(numGlyphs)
	cmapTable := buildCmap(gs)
	post := buildPost(numGlyphs)
	nameTable := buildName()
	gsub := buildGSUB(gsubLookups)

	tables := map[string][]byte{
		"head": head,
		"hhea": hhea,
		"hmtx": hmtx,
		"maxp": maxp,
		"cmap": cmapTable,
		"post": post,
		"name": nameTable,
		"glyf": glyf,
		"loca": loca,
		"GSUB": gsub,
	}

	return writeSFNT(tables)
}

// writeSFNT lays out the table directory and concatenates padded,
// checksummed table data, following the sfnt container format every
// OpenType/TrueType font uses.
func writeSFNT(tables map[string][]byte) []byte {
	tags := make([]string, 0, len(tables))
	for tag := range tables {
		tags = append(tags, tag)
	}
	sort.Strings(tags)

	numTables := uint16(len(tags))
	entrySelector := uint16(0)
	for (1 << (entrySelector + 1)) <= numTables {
		entrySelector++
	}
	searchRange := uint16(1<<entrySelector) * 16
	rangeShift := numTables*16 - searchRange

	var header bytes.Buffer
	binary.Write(&header, binary.BigEndian, uint32(0x00010000)) // sfnt version 1.0 (TrueType outlines)
	binary.Write(&header, binary.BigEndian, numTables)
	binary.Write(&header, binary.BigEndian, searchRange)
	binary.Write(&header, binary.BigEndian, entrySelector)
	binary.Write(&header, binary.BigEndian, rangeShift)

	dirSize := 16 * int(numTables)
	offset := uint32(12 + dirSize)

	var directory bytes.Buffer
	var body bytes.Buffer
	for _, tag := range tags {
		data := pad4(tables[tag])
		checksum := tableChecksum(data)

		directory.WriteString(tag)
		binary.Write(&directory, binary.BigEndian, checksum)
		binary.Write(&directory, binary.BigEndian, offset)
		binary.Write(&directory, binary.BigEndian, uint32(len(tables[tag])))

		body.Write(data)
		offset += uint32(len(data))
	}

	var out bytes.Buffer
	out.Write(header.Bytes())
	out.Write(directory.Bytes())
	out.Write(body.Bytes())
	return out.Bytes()
}

func pad4(data []byte) []byte {
	for len(data)%4 != 0 {
		data = append(data, 0)
	}
	return data
}

func tableChecksum(data []byte) uint32 {
	var sum uint32
	for i := 0; i+4 <= len(data); i += 4 {
		sum += binary.BigEndian.Uint32(data[i : i+4])
	}
	if rem := len(data) % 4; rem != 0 {
		var last [4]byte
		copy(last[:], data[len(data)-rem:])
		sum += binary.BigEndian.Uint32(last[:])
	}
	return sum
}

func buildGlyfLoca(numGlyphs int) (glyf, loca []byte, longFormat bool) {
	// Every glyph is empty, so every loca entry is 0: glyf has zero bytes.
	var l bytes.Buffer
	for i := 0; i <= numGlyphs; i++ {
		binary.Write(&l, binary.BigEndian, uint16(0))
	}
	return nil, l.Bytes(), false
}

func buildHead(locaLong bool) []byte {
	var b bytes.Buffer
	binary.Write(&b, binary.BigEndian, uint32(0x00010000)) // version
	binary.Write(&b, binary.BigEndian, uint32(0x00010000)) // fontRevision
	binary.Write(&b, binary.BigEndian, uint32(0))          // checksumAdjustment, fixed up by nobody: acceptable for a research tool
	binary.Write(&b, binary.BigEndian, uint32(0x5F0F3CF5)) // magicNumber
	binary.Write(&b, binary.BigEndian, uint16(0))          // flags
	binary.Write(&b, binary.BigEndian, uint16(unitsPerEm))
	binary.Write(&b, binary.BigEndian, int64(0)) // created
	binary.Write(&b, binary.BigEndian, int64(0)) // modified
	binary.Write(&b, binary.BigEndian, int16(0)) // xMin
	binary.Write(&b, binary.BigEndian, int16(0)) // yMin
	binary.Write(&b, binary.BigEndian, int16(0)) // xMax
	binary.Write(&b, binary.BigEndian, int16(0)) // yMax
	binary.Write(&b, binary.BigEndian, uint16(0)) // macStyle
	binary.Write(&b, binary.BigEndian, uint16(8)) // lowestRecPPEM
	binary.Write(&b, binary.BigEndian, int16(2))  // fontDirectionHint
	idxToLocFormat := int16(0)
	if locaLong {
		idxToLocFormat = 1
	}
	binary.Write(&b, binary.BigEndian, idxToLocFormat)
	binary.Write(&b, binary.BigEndian, int16(0)) // glyphDataFormat
	return b.Bytes()
}

func buildHhea(numGlyphs int, advanceWidthMax uint16) []byte {
	var b bytes.Buffer
	binary.Write(&b, binary.BigEndian, uint32(0x00010000)) // version
	binary.Write(&b, binary.BigEndian, int16(ascent))
	binary.Write(&b, binary.BigEndian, int16(-descent))
	binary.Write(&b, binary.BigEndian, int16(0)) // lineGap
	binary.Write(&b, binary.BigEndian, advanceWidthMax)
	binary.Write(&b, binary.BigEndian, int16(0)) // minLeftSideBearing
	binary.Write(&b, binary.BigEndian, int16(0)) // minRightSideBearing
	binary.Write(&b, binary.BigEndian, int16(0)) // xMaxExtent
	binary.Write(&b, binary.BigEndian, int16(1)) // caretSlopeRise
	binary.Write(&b, binary.BigEndian, int16(0)) // caretSlopeRun
	binary.Write(&b, binary.BigEndian, int16(0)) // caretOffset
	for i := 0; i < 4; i++ {
		binary.Write(&b, binary.BigEndian, int16(0)) // reserved
	}
	binary.Write(&b, binary.BigEndian, int16(0)) // metricDataFormat
	binary.Write(&b, binary.BigEndian, uint16(numGlyphs))
	return b.Bytes()
}

func buildHmtx(gs *glyphSet) []byte {
	var b bytes.Buffer
	for _, g := range gs.glyphs {
		binary.Write(&b, binary.BigEndian, g.advance)
		binary.Write(&b, binary.BigEndian, int16(0)) // lsb
	}
	return b.Bytes()
}

// maxAdvance returns the largest horizontal advance of any glyph in gs,
// including leak glyphs whose advances are shifted by a build offset.
func maxAdvance(gs *glyphSet) uint16 {
	var m uint16
	for _, g := range gs.glyphs {
		if g.advance > m {
			m = g.advance
		}
	}
	return m
}

func buildMaxp(numGlyphs int) []byte {
	var b bytes.Buffer
	binary.Write(&b, binary.BigEndian, uint32(0x00010000)) // version 1.0, TrueType
	binary.Write(&b, binary.BigEndian, uint16(numGlyphs))
	for i := 0; i < 13; i++ {
		binary.Write(&b, binary.BigEndian, uint16(0))
	}
	return b.Bytes()
}

// cmapEntry is one code-point to glyph-ID mapping destined for the
// format-12 segmented coverage subtable, the only cmap format that can
// address the Supplementary Private Use Area the leak glyphs live in and
// the supplementary-plane (Mathematical Alphanumeric) index code points.
type cmapEntry struct {
	codepoint uint32
	gid       uint16
}

func buildCmap(gs *glyphSet) []byte {
	var entries []cmapEntry
	for gid, g := range gs.glyphs {
		if g.codepoint == noCodepoint {
			continue
		}
		entries = append(entries, cmapEntry{codepoint: uint32(g.codepoint), gid: uint16(gid)})
	}
	for _, cp := range gs.extraUnknownCodepoints {
		entries = append(entries, cmapEntry{codepoint: uint32(cp), gid: uint16(gs.unknownGID)})
	}
	sort.Slice(entries, func(i, j int) bool { return entries[i].codepoint < entries[j].codepoint })

	groups := groupConsecutive(entries)

	var subtable bytes.Buffer
	binary.Write(&subtable, binary.BigEndian, uint16(12)) // format
	binary.Write(&subtable, binary.BigEndian, uint16(0))  // reserved
	length := uint32(16 + 12*len(groups))
	binary.Write(&subtable, binary.BigEndian, length)
	binary.Write(&subtable, binary.BigEndian, uint32(0)) // language
	binary.Write(&subtable, binary.BigEndian, uint32(len(groups)))
	for _, grp := range groups {
		binary.Write(&subtable, binary.BigEndian, grp.startCharCode)
		binary.Write(&subtable, binary.BigEndian, grp.endCharCode)
		binary.Write(&subtable, binary.BigEndian, grp.startGlyphID)
	}

	var cmap bytes.Buffer
	binary.Write(&cmap, binary.BigEndian, uint16(0)) // version
	binary.Write(&cmap, binary.BigEndian, uint16(1)) // numTables
	binary.Write(&cmap, binary.BigEndian, uint16(3)) // platformID: Windows
	binary.Write(&cmap, binary.BigEndian, uint16(10)) // encodingID: UCS-4
	binary.Write(&cmap, binary.BigEndian, uint32(12)) // offset to subtable
	cmap.Write(subtable.Bytes())
	return cmap.Bytes()
}

type cmapGroup struct {
	startCharCode uint32
	endCharCode   uint32
	startGlyphID  uint32
}

func groupConsecutive(entries []cmapEntry) []cmapGroup {
	var groups []cmapGroup
	for _, e := range entries {
		if len(groups) > 0 {
			last := &groups[len(groups)-1]
			if e.codepoint == last.endCharCode+1 && uint32(e.gid) == last.startGlyphID+(last.endCharCode-last.startCharCode)+1 {
				last.endCharCode = e.codepoint
				continue
			}
		}
		groups = append(groups, cmapGroup{startCharCode: e.codepoint, endCharCode: e.codepoint, startGlyphID: uint32(e.gid)})
	}
	return groups
}

func buildPost(numGlyphs int) []byte {
	var b bytes.Buffer
	binary.Write(&b, binary.BigEndian, uint32(0x00030000)) // version 3.0: no glyph names stored
	binary.Write(&b, binary.BigEndian, uint32(0))          // italicAngle
	binary.Write(&b, binary.BigEndian, int16(-unitsPerEm / 100))
	binary.Write(&b, binary.BigEndian, int16(0))  // underlineThickness
	binary.Write(&b, binary.BigEndian, uint32(0)) // isFixedPitch
	for i := 0; i < 4; i++ {
		binary.Write(&b, binary.BigEndian, uint32(0)) // min/max memory hints
	}
	_ = numGlyphs
	return b.Bytes()
}

func buildName() []byte {
	records := []struct {
		nameID uint16
		value  string
	}{
		{1, fontName},  // Font Family
		{2, "Regular"}, // Font Subfamily
		{4, fontName},  // Full name
		{6, fontName},  // PostScript name
	}

	var strings bytes.Buffer
	var nameRecords bytes.Buffer
	for _, rec := range records {
		utf16be := toUTF16BE(rec.value)
		binary.Write(&nameRecords, binary.BigEndian, uint16(3)) // platformID: Windows
		binary.Write(&nameRecords, binary.BigEndian, uint16(1)) // encodingID: UTF-16BE
		binary.Write(&nameRecords, binary.BigEndian, uint16(0x409)) // languageID: en-US
		binary.Write(&nameRecords, binary.BigEndian, rec.nameID)
		binary.Write(&nameRecords, binary.BigEndian, uint16(len(utf16be)))
		binary.Write(&nameRecords, binary.BigEndian, uint16(strings.Len()))
		strings.Write(utf16be)
	}

	var b bytes.Buffer
	binary.Write(&b, binary.BigEndian, uint16(0)) // format
	binary.Write(&b, binary.BigEndian, uint16(len(records)))
	storageOffset := uint16(6 + 12*len(records))
	binary.Write(&b, binary.BigEndian, storageOffset)
	b.Write(nameRecords.Bytes())
	b.Write(strings.Bytes())
	return b.Bytes()
}

func toUTF16BE(s string) []byte {
	var b bytes.Buffer
	for _, r := range s {
		if r <= 0xFFFF {
			binary.Write(&b, binary.BigEndian, uint16(r))
			continue
		}
		r -= 0x10000
		hi := uint16(0xD800 + (r >> 10))
		lo := uint16(0xDC00 + (r & 0x3FF))
		binary.Write(&b, binary.BigEndian, hi)
		binary.Write(&b, binary.BigEndian, lo)
	}
	return b.Bytes()
}
