package gdsii

import (
	"bytes"
	"math"
	"testing"
)

func boundaryOf(layer int16, pts ...Point) Boundary {
	return Boundary{Layer: layer, Datatype: 0, Points: pts}
}

func square() Polygon {
	return Polygon{{X: 0, Y: 0}, {X: 1, Y: 0}, {X: 1, Y: 1}, {X: 0, Y: 1}}
}

func TestReachableCellsDiscoveryOrder(t *testing.T) {
	leaf := NewCell("LEAF")
	mid := NewCell("MID")
	mid.Refs = []Reference{{TargetName: "LEAF", Target: leaf}}
	top := NewCell("TOP")
	top.Refs = []Reference{{TargetName: "MID", Target: mid}}

	got := reachableCells([]*Cell{top})
	if len(got) != 3 {
		t.Fatalf("got %d cells, want 3", len(got))
	}
	if got[0] != top || got[1] != mid || got[2] != leaf {
		t.Errorf("discovery order: got [%s %s %s], want [TOP MID LEAF]", got[0].Name, got[1].Name, got[2].Name)
	}
}

func TestTopoOrderLeavesFirst(t *testing.T) {
	leaf := NewCell("LEAF")
	mid := NewCell("MID")
	mid.Refs = []Reference{{TargetName: "LEAF", Target: leaf}}
	top := NewCell("TOP")
	top.Refs = []Reference{{TargetName: "MID", Target: mid}}

	order, err := topoOrder(reachableCells([]*Cell{top}))
	if err != nil {
		t.Fatalf("topoOrder: %v", err)
	}
	pos := map[string]int{}
	for i, c := range order {
		pos[c.Name] = i
	}
	if pos["LEAF"] >= pos["MID"] || pos["MID"] >= pos["TOP"] {
		t.Errorf("expected LEAF before MID before TOP, got order %v", names(order))
	}
}

func names(cells []*Cell) []string {
	out := make([]string, len(cells))
	for i, c := range cells {
		out[i] = c.Name
	}
	return out
}

func TestTopoOrderDetectsCycle(t *testing.T) {
	a := NewCell("A")
	b := NewCell("B")
	a.Refs = []Reference{{TargetName: "B", Target: b}}
	b.Refs = []Reference{{TargetName: "A", Target: a}}

	_, err := topoOrder([]*Cell{a, b})
	if err == nil {
		t.Fatalf("expected cycle error, got nil")
	}
}

func TestWriteDuplicateNameWarnsAndWritesBoth(t *testing.T) {
	a := NewCell("CELLA")
	a.Boundaries = []Boundary{boundaryOf(1, square()...)}
	b := NewCell("cella") // same name, different case
	b.Boundaries = []Boundary{boundaryOf(2, square()...)}

	var buf bytes.Buffer
	var warnings []Warning
	cfg := Config{Warnings: func(w Warning) { warnings = append(warnings, w) }}
	if err := Save(&buf, cfg, []*Cell{a, b}); err != nil {
		t.Fatalf("Save: %v", err)
	}

	foundDup := false
	for _, w := range warnings {
		if w.Kind == WarnDuplicateName {
			foundDup = true
		}
	}
	if !foundDup {
		t.Errorf("expected a WarnDuplicateName warning, got %v", warnings)
	}

	lib, err := Load(bytes.NewReader(buf.Bytes()), Config{})
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	count := 0
	for _, c := range lib.Cells() {
		if foldName(c.Name) == "CELLA" {
			count++
		}
	}
	if count != 2 {
		t.Errorf("expected both differently-cased structures to survive the round trip, got %d", count)
	}
}

func TestWriteBoundaryClosesPolygon(t *testing.T) {
	cell := NewCell("SQ")
	cell.Boundaries = []Boundary{boundaryOf(1, square()...)}

	var buf bytes.Buffer
	if err := Save(&buf, Config{}, []*Cell{cell}); err != nil {
		t.Fatalf("Save: %v", err)
	}
	lib, err := Load(bytes.NewReader(buf.Bytes()), Config{})
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	got, _ := lib.Cell("SQ")
	if len(got.Boundaries) != 1 {
		t.Fatalf("got %d boundaries, want 1", len(got.Boundaries))
	}
	pts := got.Boundaries[0].Points
	if len(pts) != 4 {
		t.Errorf("got %d points back, want 4 (closing vertex stripped)", len(pts))
	}
}

func TestWriteBoundaryRejectsTooFewVertices(t *testing.T) {
	cell := NewCell("BAD")
	cell.Boundaries = []Boundary{boundaryOf(1, Point{X: 0, Y: 0}, Point{X: 1, Y: 1})}
	var buf bytes.Buffer
	if err := Save(&buf, Config{}, []*Cell{cell}); err == nil {
		t.Errorf("expected error for a boundary with fewer than 4 vertices, got nil")
	}
}

// TestWriteTransformReflectRotateTranslate exercises the x-reflect + 90
// degree rotation + offset-origin reference scenario: STRANS must carry
// the reflect bit, MAG must be omitted (neutral), and ANGLE must carry
// 90.0.
func TestWriteTransformReflectRotateTranslate(t *testing.T) {
	target := NewCell("LEAF")
	target.Boundaries = []Boundary{boundaryOf(1, square()...)}
	top := NewCell("TOP")
	top.Refs = []Reference{{
		TargetName: "LEAF",
		Target:     target,
		Origin:     Point{X: 5, Y: 0},
		Transform:  Transform{ReflectX: true, Mag: 1, Rotation: 90},
	}}

	var buf bytes.Buffer
	if err := Save(&buf, Config{}, []*Cell{top}); err != nil {
		t.Fatalf("Save: %v", err)
	}
	lib, err := Load(bytes.NewReader(buf.Bytes()), Config{})
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	gotTop, _ := lib.Cell("TOP")
	if len(gotTop.Refs) != 1 {
		t.Fatalf("got %d refs, want 1", len(gotTop.Refs))
	}
	ref := gotTop.Refs[0]
	if !ref.Transform.ReflectX {
		t.Errorf("expected ReflectX = true")
	}
	if ref.Transform.Mag != 1 {
		t.Errorf("expected neutral magnification, got %v", ref.Transform.Mag)
	}
	if math.Abs(ref.Transform.Rotation-90) > 1e-9 {
		t.Errorf("expected 90 degree rotation, got %v", ref.Transform.Rotation)
	}
	if math.Abs(ref.Origin.X-5) > 1e-9 || ref.Origin.Y != 0 {
		t.Errorf("expected origin (5, 0), got %v", ref.Origin)
	}
}

// TestWriteArrayReference exercises a 3x2 AREF.
func TestWriteArrayReference(t *testing.T) {
	target := NewCell("LEAF")
	target.Boundaries = []Boundary{boundaryOf(1, square()...)}
	top := NewCell("TOP")
	top.Refs = []Reference{{
		TargetName: "LEAF",
		Target:     target,
		IsArray:    true,
		Cols:       3,
		Rows:       2,
		Origin:     Point{X: 0, Y: 0},
		DeltaCol:   Point{X: 10, Y: 0},
		DeltaRow:   Point{X: 0, Y: 10},
		Transform:  IdentityTransform,
	}}

	var buf bytes.Buffer
	if err := Save(&buf, Config{}, []*Cell{top}); err != nil {
		t.Fatalf("Save: %v", err)
	}
	lib, err := Load(bytes.NewReader(buf.Bytes()), Config{})
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	gotTop, _ := lib.Cell("TOP")
	ref := gotTop.Refs[0]
	if !ref.IsArray || ref.Cols != 3 || ref.Rows != 2 {
		t.Fatalf("got %+v, want a 3x2 array reference", ref)
	}
	if math.Abs(ref.DeltaCol.X-10) > 1e-6 || math.Abs(ref.DeltaRow.Y-10) > 1e-6 {
		t.Errorf("got deltas col=%v row=%v, want (10,0)/(0,10)", ref.DeltaCol, ref.DeltaRow)
	}
}

// TestWriteTextNonScalingWidth covers WIDTH = -1000 for CanScale=false.
func TestWriteTextNonScalingWidth(t *testing.T) {
	cell := NewCell("LBL")
	cell.Texts = []Text{{
		Layer:     1,
		TextType:  0,
		Anchor:    Point{X: 0, Y: 0},
		Width:     1.0, // micrometers; 1nm db unit -> 1000 grid units
		CanScale:  false,
		HAlign:    XCenter,
		VAlign:    YCenter,
		Transform: IdentityTransform,
		String:    "LABEL",
	}}

	var buf bytes.Buffer
	if err := Save(&buf, Config{}, []*Cell{cell}); err != nil {
		t.Fatalf("Save: %v", err)
	}
	lib, err := Load(bytes.NewReader(buf.Bytes()), Config{})
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	got, _ := lib.Cell("LBL")
	if len(got.Texts) != 1 {
		t.Fatalf("got %d texts, want 1", len(got.Texts))
	}
	txt := got.Texts[0]
	if txt.CanScale {
		t.Errorf("expected CanScale = false")
	}
	if math.Abs(txt.Width-1.0) > 1e-9 {
		t.Errorf("expected width 1.0 um, got %v", txt.Width)
	}
	if txt.String != "LABEL" {
		t.Errorf("got string %q, want LABEL", txt.String)
	}
	if txt.HAlign != XCenter || txt.VAlign != YCenter {
		t.Errorf("got alignment %v/%v, want XCenter/YCenter", txt.HAlign, txt.VAlign)
	}
}

func TestWriteOutOfRangeLayerWarns(t *testing.T) {
	cell := NewCell("BADLAYER")
	cell.Boundaries = []Boundary{boundaryOf(99, square()...)}

	var warnings []Warning
	var buf bytes.Buffer
	cfg := Config{Warnings: func(w Warning) { warnings = append(warnings, w) }}
	if err := Save(&buf, cfg, []*Cell{cell}); err != nil {
		t.Fatalf("Save: %v", err)
	}
	found := false
	for _, w := range warnings {
		if w.Kind == WarnOutOfRange {
			found = true
		}
	}
	if !found {
		t.Errorf("expected a WarnOutOfRange warning for layer 99, got %v", warnings)
	}
}
