package gdsii

import (
	"fmt"
	"io"
)

// reader consumes a GDSII record stream and assembles a cell graph
// (§4.5).
type reader struct {
	r      io.Reader
	cfg    Config
	offset int64

	lib   *Library
	cells map[string]*Cell // every structure seen, not just top-level
}

func (rd *reader) readRecord() (rawRecord, error) {
	rr, err := readRecord(rd.r, rd.offset)
	if err != nil {
		return rr, err
	}
	rd.offset += recordHeaderLen + int64(len(rr.payload))
	return rr, nil
}

func (rd *reader) read() (*Library, error) {
	if err := rd.readMagic(); err != nil {
		return nil, err
	}

	rd.lib = newLibrary()
	rd.cells = make(map[string]*Cell)

	var scale Scale
	haveScale := false
	var lastTok token
	sawAny := false
	firstRecord := true

	for {
		rr, err := rd.readRecord()
		if err != nil {
			if err == io.EOF {
				break
			}
			return nil, err
		}
		sawAny = true
		lastTok = rr.tok

		if firstRecord && rr.tok != tokBGNLIB {
			rd.cfg.warn(WarnUnexpectedLeadingRecord, tokenName(rr.tok),
				"expected BGNLIB as the first record after HEADER")
		}
		firstRecord = false

		switch rr.tok {
		case tokBGNLIB, tokLIBNAME:
			// skip payload

		case tokUNITS:
			vals, err := rr.gds64s()
			if err != nil {
				return nil, err
			}
			if len(vals) != 2 {
				return nil, formatErrf(rr.offset, rr.tok, "", "UNITS must carry 2 reals, got %d", len(vals))
			}
			dbUnitInUserUnits, dbUnitInMeters := vals[0], vals[1]
			scale = NewScale(dbUnitInMeters)
			haveScale = true
			userUnitMeters := dbUnitInMeters / dbUnitInUserUnits
			rd.lib.UserUnit = Length{Value: userUnitMeters / Micrometer.Meters, Unit: Micrometer}
			rd.lib.DBUnit = scale

		case tokBGNSTR:
			cell, err := rd.readStructure()
			if err != nil {
				return nil, err
			}
			rd.cells[cell.Name] = cell
			rd.lib.put(cell)

		case tokENDLIB:
			// Discard remainder of the stream — nothing meaningful
			// follows ENDLIB (§4.5).
			goto done

		default:
			rd.cfg.warn(WarnUnknownToken, tokenName(rr.tok), "unexpected token at library scope")
		}
	}

done:
	if !sawAny || lastTok != tokENDLIB {
		rd.cfg.warn(WarnMissingEndlib, "", "stream did not end with ENDLIB")
	}
	if !haveScale {
		scale = Scale{DBUnit: defaultDBUnit}
	}
	if rd.lib.DBUnit == (Scale{}) {
		rd.lib.DBUnit = scale
	}
	rd.lib.Version = Version

	if err := rd.resolveReferences(); err != nil {
		return nil, err
	}

	return rd.topLevelLibrary(), nil
}

func (rd *reader) readMagic() error {
	var hdr [recordHeaderLen]byte
	if _, err := io.ReadFull(rd.r, hdr[:]); err != nil {
		return fmt.Errorf("gdsii: reading magic: %w", err)
	}
	rd.offset += recordHeaderLen
	// hdr is the HEADER record's own 4-byte prologue: 00 06 (length) 00 02
	// (token). §6 "Magic prefix: 00 06 00 02 00 VV".
	if hdr[0] != 0x00 || hdr[1] != 0x06 || hdr[2] != 0x00 || hdr[3] != 0x02 {
		return fmt.Errorf("gdsii: bad magic %x, not a GDSII stream", hdr)
	}
	var ver [2]byte
	if _, err := io.ReadFull(rd.r, ver[:]); err != nil {
		return fmt.Errorf("gdsii: reading version: %w", err)
	}
	rd.offset += 2
	// ver[1] is the 8-bit version (VV); any value accepted (§4.5).
	_ = ver[1]
	return nil
}

// readStructure parses one structure (§4.5 "Structure parser") from
// just after BGNSTR up to and including ENDSTR.
func (rd *reader) readStructure() (*Cell, error) {
	cell := &Cell{}
	for {
		rr, err := rd.readRecord()
		if err != nil {
			return nil, err
		}
		switch rr.tok {
		case tokSTRNAME:
			cell.Name = rr.ascii()
			validateName(cell.Name, rd.cfg)

		case tokBOUNDARY:
			b, err := rd.readBoundary()
			if err != nil {
				return nil, err
			}
			cell.Boundaries = append(cell.Boundaries, b)

		case tokTEXT:
			t, err := rd.readText()
			if err != nil {
				return nil, err
			}
			cell.Texts = append(cell.Texts, t)

		case tokSREF:
			ref, err := rd.readReference(false)
			if err != nil {
				return nil, err
			}
			cell.Refs = append(cell.Refs, ref)

		case tokAREF:
			ref, err := rd.readReference(true)
			if err != nil {
				return nil, err
			}
			cell.Refs = append(cell.Refs, ref)

		case tokENDSTR:
			return cell, nil

		default:
			return nil, formatErrf(rr.offset, rr.tok, "structure", "unexpected token in structure body")
		}
	}
}

// elementSubrecords tracks which once-only sub-records have already
// been seen within the element currently being parsed (§4.5 "each
// enforces at-most-once occurrence per sub-record kind").
type elementSubrecords map[token]bool

func (e elementSubrecords) markOnce(tok token, offset int64, element string) error {
	if e[tok] {
		return formatErrf(offset, tok, element, "duplicate %s sub-record", tokenName(tok))
	}
	e[tok] = true
	return nil
}

func (rd *reader) readBoundary() (Boundary, error) {
	var b Boundary
	seen := elementSubrecords{}
	haveXY := false

	for {
		rr, err := rd.readRecord()
		if err != nil {
			return b, err
		}
		switch rr.tok {
		case tokLAYER:
			if err := seen.markOnce(rr.tok, rr.offset, "BOUNDARY"); err != nil {
				return b, err
			}
			vals, err := rr.int16s()
			if err != nil {
				return b, err
			}
			b.Layer = vals[0]

		case tokDATATYPE:
			if err := seen.markOnce(rr.tok, rr.offset, "BOUNDARY"); err != nil {
				return b, err
			}
			vals, err := rr.int16s()
			if err != nil {
				return b, err
			}
			b.Datatype = vals[0]

		case tokXY:
			if err := seen.markOnce(rr.tok, rr.offset, "BOUNDARY"); err != nil {
				return b, err
			}
			pts, err := rd.readPolygonXY(rr)
			if err != nil {
				return b, err
			}
			b.Points = pts
			haveXY = true

		case tokEFLAGS, tokPLEX, tokPATHTYPE:
			if err := rd.skipUnimplemented(rr, seen, "BOUNDARY"); err != nil {
				return b, err
			}

		case tokPROPATTR:
			if err := rd.skipPropertyPair(rr); err != nil {
				return b, err
			}

		case tokENDEL:
			if !haveXY {
				return b, formatErrf(rr.offset, tokXY, "BOUNDARY", "missing required XY sub-record")
			}
			validateLayerDatatype(b.Layer, b.Datatype, rd.cfg)
			return b, nil

		default:
			return b, formatErrf(rr.offset, rr.tok, "BOUNDARY", "unexpected sub-record")
		}
	}
}

// readPolygonXY decodes a BOUNDARY's XY payload: N-1 stored points
// (last is the closing duplicate, discarded) scaled to micrometers
// (§4.5 "Polygon XY").
func (rd *reader) readPolygonXY(rr rawRecord) (Polygon, error) {
	if len(rr.payload)%8 != 0 {
		return nil, formatErrf(rr.offset, rr.tok, "BOUNDARY", "XY payload length %d not a multiple of 8", len(rr.payload))
	}
	n := len(rr.payload)/8 - 1
	if n < 3 {
		return nil, formatErrf(rr.offset, rr.tok, "BOUNDARY", "polygon has fewer than 4 vertices")
	}
	vals, err := rr.int32s()
	if err != nil {
		return nil, err
	}
	pts := make(Polygon, n)
	for i := 0; i < n; i++ {
		pts[i] = Point{
			X: rd.lib.DBUnit.FromGridUm(vals[i*2]),
			Y: rd.lib.DBUnit.FromGridUm(vals[i*2+1]),
		}
	}
	return pts, nil
}

func (rd *reader) readText() (Text, error) {
	var t Text
	seen := elementSubrecords{}
	haveXY, haveWidth := false, false

	for {
		rr, err := rd.readRecord()
		if err != nil {
			return t, err
		}
		switch rr.tok {
		case tokLAYER:
			if err := seen.markOnce(rr.tok, rr.offset, "TEXT"); err != nil {
				return t, err
			}
			vals, err := rr.int16s()
			if err != nil {
				return t, err
			}
			t.Layer = vals[0]

		case tokTEXTTYPE:
			if err := seen.markOnce(rr.tok, rr.offset, "TEXT"); err != nil {
				return t, err
			}
			vals, err := rr.int16s()
			if err != nil {
				return t, err
			}
			t.TextType = vals[0]

		case tokPRESENTATION:
			if err := seen.markOnce(rr.tok, rr.offset, "TEXT"); err != nil {
				return t, err
			}
			raw, err := rr.bitArray()
			if err != nil {
				return t, err
			}
			t.HAlign, t.VAlign = decodePresentation(byte(raw))

		case tokWIDTH:
			if err := seen.markOnce(rr.tok, rr.offset, "TEXT"); err != nil {
				return t, err
			}
			vals, err := rr.int32s()
			if err != nil {
				return t, err
			}
			w := vals[0]
			t.CanScale = w >= 0
			if w < 0 {
				w = -w
			}
			t.Width = rd.lib.DBUnit.FromGridUm(w)
			haveWidth = true

		case tokSTRANS:
			if err := seen.markOnce(rr.tok, rr.offset, "TEXT"); err != nil {
				return t, err
			}
			raw, err := rr.bitArray()
			if err != nil {
				return t, err
			}
			t.Transform.ReflectX = decodeSTRANS(raw).reflectX

		case tokMAG:
			if err := seen.markOnce(rr.tok, rr.offset, "TEXT"); err != nil {
				return t, err
			}
			vals, err := rr.gds64s()
			if err != nil {
				return t, err
			}
			t.Transform.Mag = vals[0]

		case tokANGLE:
			if err := seen.markOnce(rr.tok, rr.offset, "TEXT"); err != nil {
				return t, err
			}
			vals, err := rr.gds64s()
			if err != nil {
				return t, err
			}
			t.Transform.Rotation = vals[0]

		case tokXY:
			if err := seen.markOnce(rr.tok, rr.offset, "TEXT"); err != nil {
				return t, err
			}
			pts, err := rr.int32s()
			if err != nil {
				return t, err
			}
			if len(pts) != 2 {
				return t, formatErrf(rr.offset, rr.tok, "TEXT", "XY must carry a single point")
			}
			t.Anchor = Point{X: rd.lib.DBUnit.FromGridUm(pts[0]), Y: rd.lib.DBUnit.FromGridUm(pts[1])}
			haveXY = true

		case tokSTRING:
			if err := seen.markOnce(rr.tok, rr.offset, "TEXT"); err != nil {
				return t, err
			}
			t.String = rr.ascii()

		case tokEFLAGS, tokPLEX, tokPATHTYPE:
			if err := rd.skipUnimplemented(rr, seen, "TEXT"); err != nil {
				return t, err
			}

		case tokPROPATTR:
			if err := rd.skipPropertyPair(rr); err != nil {
				return t, err
			}

		case tokENDEL:
			if !haveXY {
				return t, formatErrf(rr.offset, tokXY, "TEXT", "missing required XY sub-record")
			}
			if !haveWidth {
				return t, formatErrf(rr.offset, tokWIDTH, "TEXT", "missing required WIDTH sub-record")
			}
			t.Transform = normalizeTransform(t.Transform)
			return t, nil

		default:
			return t, formatErrf(rr.offset, rr.tok, "TEXT", "unexpected sub-record")
		}
	}
}

func (rd *reader) readReference(isArray bool) (Reference, error) {
	ref := Reference{IsArray: isArray}
	elementName := "SREF"
	if isArray {
		elementName = "AREF"
	}
	seen := elementSubrecords{}
	haveSName, haveXY, haveColRow := false, false, false
	var cols, rows int16

	for {
		rr, err := rd.readRecord()
		if err != nil {
			return ref, err
		}
		switch rr.tok {
		case tokSNAME:
			if err := seen.markOnce(rr.tok, rr.offset, elementName); err != nil {
				return ref, err
			}
			ref.TargetName = rr.ascii()
			haveSName = true

		case tokSTRANS:
			if err := seen.markOnce(rr.tok, rr.offset, elementName); err != nil {
				return ref, err
			}
			raw, err := rr.bitArray()
			if err != nil {
				return ref, err
			}
			ref.Transform.ReflectX = decodeSTRANS(raw).reflectX

		case tokMAG:
			if err := seen.markOnce(rr.tok, rr.offset, elementName); err != nil {
				return ref, err
			}
			vals, err := rr.gds64s()
			if err != nil {
				return ref, err
			}
			ref.Transform.Mag = vals[0]

		case tokANGLE:
			if err := seen.markOnce(rr.tok, rr.offset, elementName); err != nil {
				return ref, err
			}
			vals, err := rr.gds64s()
			if err != nil {
				return ref, err
			}
			ref.Transform.Rotation = vals[0]

		case tokCOLROW:
			if !isArray {
				return ref, formatErrf(rr.offset, rr.tok, elementName, "COLROW only valid within AREF")
			}
			if err := seen.markOnce(rr.tok, rr.offset, elementName); err != nil {
				return ref, err
			}
			vals, err := rr.int16s()
			if err != nil {
				return ref, err
			}
			if len(vals) != 2 {
				return ref, formatErrf(rr.offset, rr.tok, elementName, "COLROW must carry 2 values")
			}
			cols, rows = vals[0], vals[1]
			if cols < 0 || cols > 32767 || rows < 0 || rows > 32767 {
				rd.cfg.warn(WarnOutOfRange, "COLROW", "array col/row (%d, %d) outside [0, 32767]", cols, rows)
			}
			haveColRow = true

		case tokXY:
			if err := seen.markOnce(rr.tok, rr.offset, elementName); err != nil {
				return ref, err
			}
			vals, err := rr.int32s()
			if err != nil {
				return ref, err
			}
			wantPoints := 1
			if isArray {
				wantPoints = 3
			}
			if len(vals) != wantPoints*2 {
				return ref, formatErrf(rr.offset, rr.tok, elementName, "XY must carry %d point(s)", wantPoints)
			}
			pt := func(i int) Point {
				return Point{X: rd.lib.DBUnit.FromGridUm(vals[i*2]), Y: rd.lib.DBUnit.FromGridUm(vals[i*2+1])}
			}
			ref.Origin = pt(0)
			if isArray {
				colEnd := pt(1)
				rowEnd := pt(2)
				if cols != 0 {
					ref.DeltaCol = Point{X: (colEnd.X - ref.Origin.X) / float64(cols), Y: (colEnd.Y - ref.Origin.Y) / float64(cols)}
				}
				if rows != 0 {
					ref.DeltaRow = Point{X: (rowEnd.X - ref.Origin.X) / float64(rows), Y: (rowEnd.Y - ref.Origin.Y) / float64(rows)}
				}
			}
			haveXY = true

		case tokEFLAGS, tokPLEX, tokPATHTYPE:
			if err := rd.skipUnimplemented(rr, seen, elementName); err != nil {
				return ref, err
			}

		case tokPROPATTR:
			if err := rd.skipPropertyPair(rr); err != nil {
				return ref, err
			}

		case tokENDEL:
			if !haveSName {
				return ref, formatErrf(rr.offset, tokSNAME, elementName, "missing required SNAME sub-record")
			}
			if !haveXY {
				return ref, formatErrf(rr.offset, tokXY, elementName, "missing required XY sub-record")
			}
			if isArray && !haveColRow {
				return ref, formatErrf(rr.offset, tokCOLROW, elementName, "missing required COLROW sub-record")
			}
			ref.Cols, ref.Rows = int(cols), int(rows)
			ref.Transform = normalizeTransform(ref.Transform)
			return ref, nil

		default:
			return ref, formatErrf(rr.offset, rr.tok, elementName, "unexpected sub-record")
		}
	}
}

// skipUnimplemented consumes EFLAGS/PLEX/PATHTYPE: accepted once,
// warned as unimplemented, payload discarded (§4.5).
func (rd *reader) skipUnimplemented(rr rawRecord, seen elementSubrecords, element string) error {
	if err := seen.markOnce(rr.tok, rr.offset, element); err != nil {
		return err
	}
	rd.cfg.warn(WarnUnimplementedSubrecord, tokenName(rr.tok), "unimplemented sub-record in %s, skipped", element)
	return nil
}

// skipPropertyPair consumes a PROPATTR/PROPVALUE pair; both are
// ignored once their required pairing is confirmed (§4.5).
func (rd *reader) skipPropertyPair(attr rawRecord) error {
	val, err := rd.readRecord()
	if err != nil {
		return err
	}
	if val.tok != tokPROPVALUE {
		return formatErrf(val.offset, val.tok, "", "PROPATTR must be followed by PROPVALUE")
	}
	return nil
}

// resolveReferences is the two-pass reference resolution (§4.5, §9):
// every SREF/AREF stub's TargetName is looked up by exact name in the
// cell table and swapped for a concrete *Cell handle.
func (rd *reader) resolveReferences() error {
	for _, cell := range rd.cells {
		for i := range cell.Refs {
			name := cell.Refs[i].TargetName
			target, ok := rd.cells[name]
			if !ok {
				return formatErrf(-1, tokSNAME, "", "reference to undefined structure %q", name)
			}
			cell.Refs[i].Target = target
		}
	}
	return nil
}

// topLevelLibrary filters rd.lib down to cells not reachable as a
// reference target from any other cell (§6 "Exit behavior of the
// reader").
func (rd *reader) topLevelLibrary() *Library {
	referenced := make(map[string]bool)
	for _, cell := range rd.cells {
		for _, r := range cell.Refs {
			referenced[r.Target.Name] = true
		}
	}

	top := newLibrary()
	top.Name = rd.lib.Name
	top.DBUnit = rd.lib.DBUnit
	top.UserUnit = rd.lib.UserUnit
	top.Modify = rd.lib.Modify
	top.Acc = rd.lib.Acc
	top.Version = rd.lib.Version

	for _, name := range rd.lib.names {
		if !referenced[name] {
			top.put(rd.lib.cells[name])
		}
	}
	return top
}
