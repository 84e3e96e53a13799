package gdsii

import (
	"fmt"
	"io"
	"time"

	"golang.org/x/exp/slices"
)

// reachableCells collects every cell transitively reachable from
// topCells (including topCells themselves), in first-discovery order —
// the traversal order the dependency sort below breaks ties with
// (§4.4 "ties broken stably by the traversal order").
func reachableCells(topCells []*Cell) []*Cell {
	seen := make(map[*Cell]bool)
	var order []*Cell
	var visit func(c *Cell)
	visit = func(c *Cell) {
		if seen[c] {
			return
		}
		seen[c] = true
		order = append(order, c)
		for _, r := range c.Refs {
			if r.Target != nil {
				visit(r.Target)
			}
		}
	}
	for _, c := range topCells {
		visit(c)
	}
	return order
}

// topoOrder returns cells leaves-first: every cell appears before any
// cell that references it (§4.4 "Dependency ordering"). Ties are
// broken by discoveryOrder (the index each cell first appeared at in
// reachableCells). Returns an error if the reference graph has a
// cycle.
func topoOrder(cells []*Cell) ([]*Cell, error) {
	discoveryOrder := make(map[*Cell]int, len(cells))
	for i, c := range cells {
		discoveryOrder[c] = i
	}

	deps := make(map[*Cell]map[*Cell]bool, len(cells))
	inSet := make(map[*Cell]bool, len(cells))
	for _, c := range cells {
		inSet[c] = true
	}
	for _, c := range cells {
		d := make(map[*Cell]bool)
		for _, r := range c.Refs {
			if r.Target != nil && inSet[r.Target] {
				d[r.Target] = true
			}
		}
		deps[c] = d
	}

	emitted := make(map[*Cell]bool, len(cells))
	var order []*Cell
	for len(order) < len(cells) {
		var ready []*Cell
		for _, c := range cells {
			if emitted[c] {
				continue
			}
			allDepsEmitted := true
			for d := range deps[c] {
				if !emitted[d] {
					allDepsEmitted = false
					break
				}
			}
			if allDepsEmitted {
				ready = append(ready, c)
			}
		}
		if len(ready) == 0 {
			return nil, fmt.Errorf("gdsii: cycle detected in cell reference graph")
		}
		slices.SortStableFunc(ready, func(a, b *Cell) int {
			return discoveryOrder[a] - discoveryOrder[b]
		})
		for _, c := range ready {
			emitted[c] = true
			order = append(order, c)
		}
	}
	return order, nil
}

// writer emits a conforming GDSII record stream (§4.4).
type writer struct {
	w     io.Writer
	cfg   Config
	scale Scale
}

func (wr *writer) write(topCells []*Cell) error {
	all := reachableCells(topCells)
	order, err := topoOrder(all)
	if err != nil {
		return err
	}

	if err := wr.writeHeader(); err != nil {
		return err
	}

	nameTable := make(map[string]*Cell)
	emittedOnce := make(map[*Cell]bool)
	for _, c := range order {
		if emittedOnce[c] {
			continue // identical re-emission silently dropped
		}
		emittedOnce[c] = true

		validateName(c.Name, wr.cfg)
		key := foldName(c.Name)
		if prior, exists := nameTable[key]; exists && prior != c {
			wr.cfg.warn(WarnDuplicateName, "", "duplicate structure name %q (case-insensitive)", c.Name)
		}
		nameTable[key] = c

		if err := wr.writeStructure(c); err != nil {
			return fmt.Errorf("gdsii: writing structure %q: %w", c.Name, err)
		}
	}

	_, err = writeEmptyRecord(wr.w, tokENDLIB)
	return err
}

func dateArray(t time.Time) []int16 {
	t = t.UTC()
	return []int16{
		int16(t.Year()), int16(t.Month()), int16(t.Day()),
		int16(t.Hour()), int16(t.Minute()), int16(t.Second()),
	}
}

func (wr *writer) writeHeader() error {
	if _, err := writeInt16Record(wr.w, tokHEADER, []int16{Version}); err != nil {
		return err
	}

	dates := append(dateArray(wr.cfg.Modify), dateArray(wr.cfg.Acc)...)
	if _, err := writeInt16Record(wr.w, tokBGNLIB, dates); err != nil {
		return err
	}

	validateName(wr.cfg.Name, wr.cfg)
	if _, err := writeASCIIRecord(wr.w, tokLIBNAME, wr.cfg.Name); err != nil {
		return err
	}

	// §4.4: UNITS carries (dbs/userunit, dbs/1m) — the database unit
	// expressed in user units, then the database unit expressed in
	// meters.
	dbUnitInUserUnits := wr.scale.DBUnit.Meters / wr.cfg.UserUnit.Meters()
	dbUnitInMeters := wr.scale.DBUnit.Meters
	_, err := writeGDS64Record(wr.w, tokUNITS, []float64{dbUnitInUserUnits, dbUnitInMeters})
	return err
}

func (wr *writer) writeStructure(c *Cell) error {
	if _, err := writeInt16Record(wr.w, tokBGNSTR, append(dateArray(c.Created), dateArray(time.Now())...)); err != nil {
		return err
	}
	if _, err := writeASCIIRecord(wr.w, tokSTRNAME, c.Name); err != nil {
		return err
	}

	for _, b := range c.Boundaries {
		if err := wr.writeBoundary(b); err != nil {
			return err
		}
	}
	for _, r := range c.Refs {
		if err := wr.writeReference(r); err != nil {
			return err
		}
	}
	for _, t := range c.Texts {
		if err := wr.writeText(t); err != nil {
			return err
		}
	}

	_, err := writeEmptyRecord(wr.w, tokENDSTR)
	return err
}

func (wr *writer) gridXY(pts []Point) ([]int32, error) {
	out := make([]int32, 0, len(pts)*2)
	for _, p := range pts {
		x, err := wr.scale.ToGridUm(p.X)
		if err != nil {
			return nil, err
		}
		y, err := wr.scale.ToGridUm(p.Y)
		if err != nil {
			return nil, err
		}
		out = append(out, x, y)
	}
	return out, nil
}

func (wr *writer) writeBoundary(b Boundary) error {
	if len(b.Points) < 3 {
		return fmt.Errorf("gdsii: boundary on layer %d has %d vertices, need >= 3 (4 with the closing vertex)", b.Layer, len(b.Points))
	}
	validateLayerDatatype(b.Layer, b.Datatype, wr.cfg)

	if _, err := writeEmptyRecord(wr.w, tokBOUNDARY); err != nil {
		return err
	}
	if _, err := writeInt16Record(wr.w, tokLAYER, []int16{b.Layer}); err != nil {
		return err
	}
	if _, err := writeInt16Record(wr.w, tokDATATYPE, []int16{b.Datatype}); err != nil {
		return err
	}

	closed := append(append([]Point{}, b.Points...), b.Points[0])
	xy, err := wr.gridXY(closed)
	if err != nil {
		return err
	}
	if _, err := writeInt32Record(wr.w, tokXY, xy); err != nil {
		return err
	}
	_, err = writeEmptyRecord(wr.w, tokENDEL)
	return err
}

func (wr *writer) writeReference(r Reference) error {
	tok := tokSREF
	if r.IsArray {
		tok = tokAREF
	}
	if _, err := writeEmptyRecord(wr.w, tok); err != nil {
		return err
	}
	if _, err := writeASCIIRecord(wr.w, tokSNAME, r.TargetName); err != nil {
		return err
	}
	if err := wr.writeTransform(r.Transform); err != nil {
		return err
	}

	if r.IsArray {
		if r.Cols < 0 || r.Cols > 32767 || r.Rows < 0 || r.Rows > 32767 {
			wr.cfg.warn(WarnOutOfRange, "COLROW", "array col/row (%d, %d) outside [0, 32767]", r.Cols, r.Rows)
		}
		if _, err := writeInt16Record(wr.w, tokCOLROW, []int16{int16(r.Cols), int16(r.Rows)}); err != nil {
			return err
		}
		colEnd := Point{
			X: r.Origin.X + float64(r.Cols)*r.DeltaCol.X,
			Y: r.Origin.Y + float64(r.Cols)*r.DeltaCol.Y,
		}
		rowEnd := Point{
			X: r.Origin.X + float64(r.Rows)*r.DeltaRow.X,
			Y: r.Origin.Y + float64(r.Rows)*r.DeltaRow.Y,
		}
		xy, err := wr.gridXY([]Point{r.Origin, colEnd, rowEnd})
		if err != nil {
			return err
		}
		if _, err := writeInt32Record(wr.w, tokXY, xy); err != nil {
			return err
		}
	} else {
		xy, err := wr.gridXY([]Point{r.Origin})
		if err != nil {
			return err
		}
		if _, err := writeInt32Record(wr.w, tokXY, xy); err != nil {
			return err
		}
	}

	_, err := writeEmptyRecord(wr.w, tokENDEL)
	return err
}

func (wr *writer) writeText(t Text) error {
	validateLayerDatatype(t.Layer, t.TextType, wr.cfg)

	if _, err := writeEmptyRecord(wr.w, tokTEXT); err != nil {
		return err
	}
	if _, err := writeInt16Record(wr.w, tokLAYER, []int16{t.Layer}); err != nil {
		return err
	}
	if _, err := writeInt16Record(wr.w, tokTEXTTYPE, []int16{t.TextType}); err != nil {
		return err
	}
	pres := encodePresentation(t.HAlign, t.VAlign)
	if _, err := writeBitArrayRecord(wr.w, tokPRESENTATION, pres); err != nil {
		return err
	}

	widthGrid, err := wr.scale.ToGridUm(t.Width)
	if err != nil {
		return err
	}
	if !t.CanScale {
		widthGrid = -widthGrid
	}
	if _, err := writeInt32Record(wr.w, tokWIDTH, []int32{widthGrid}); err != nil {
		return err
	}

	if err := wr.writeTransform(t.Transform); err != nil {
		return err
	}

	xy, err := wr.gridXY([]Point{t.Anchor})
	if err != nil {
		return err
	}
	if _, err := writeInt32Record(wr.w, tokXY, xy); err != nil {
		return err
	}
	if _, err := writeASCIIRecord(wr.w, tokSTRING, t.String); err != nil {
		return err
	}
	_, err = writeEmptyRecord(wr.w, tokENDEL)
	return err
}

// writeTransform emits STRANS/MAG/ANGLE only when the transform isn't
// neutral (§4.4 "Transform emission").
func (wr *writer) writeTransform(t Transform) error {
	if t.isNeutral() {
		return nil
	}
	if _, err := writeBitArrayRecord(wr.w, tokSTRANS, encodeSTRANS(t.ReflectX)); err != nil {
		return err
	}
	if t.Mag != 1 {
		if _, err := writeGDS64Record(wr.w, tokMAG, []float64{t.Mag}); err != nil {
			return err
		}
	}
	if t.Rotation != 0 {
		if _, err := writeGDS64Record(wr.w, tokANGLE, []float64{t.Rotation}); err != nil {
			return err
		}
	}
	return nil
}

func validateLayerDatatype(layer, datatype int16, cfg Config) {
	if layer < 0 || layer > 63 {
		cfg.warn(WarnOutOfRange, "LAYER", "layer %d outside [0, 63]", layer)
	}
	if datatype < 0 || datatype > 63 {
		cfg.warn(WarnOutOfRange, "DATATYPE", "datatype %d outside [0, 63]", datatype)
	}
}
