package gdsii

import (
	"bytes"
	"math"
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/require"
)

// floatsClose is the tolerance comparer used for every GDS64 round
// trip: the write path quantizes to an int32 database-unit grid, so
// exact equality only holds when the grid division was itself exact.
var floatsClose = cmp.Comparer(func(a, b float64) bool {
	return math.Abs(a-b) <= 1e-6*math.Max(1, math.Max(math.Abs(a), math.Abs(b)))
})

// refSummary flattens a Reference for comparison, replacing the
// resolved *Cell pointer with its name so cmp never has to walk back
// into the cell graph (which would otherwise cycle through Refs).
type refSummary struct {
	TargetName string
	Origin     Point
	Transform  Transform
	IsArray    bool
	Cols, Rows int
	DeltaCol   Point
	DeltaRow   Point
}

func summarizeRefs(refs []Reference) []refSummary {
	out := make([]refSummary, len(refs))
	for i, r := range refs {
		out[i] = refSummary{
			TargetName: r.TargetName,
			Origin:     r.Origin,
			Transform:  r.Transform,
			IsArray:    r.IsArray,
			Cols:       r.Cols,
			Rows:       r.Rows,
			DeltaCol:   r.DeltaCol,
			DeltaRow:   r.DeltaRow,
		}
	}
	return out
}

func TestSaveLoadEmptyLibraryOneEmptyCell(t *testing.T) {
	cell := NewCell("EMPTY")
	var buf bytes.Buffer
	require.NoError(t, Save(&buf, Config{Name: "MYLIB"}, []*Cell{cell}))

	lib, err := Load(bytes.NewReader(buf.Bytes()), Config{})
	require.NoError(t, err)
	// LIBNAME's payload is skipped on read (§4.5), so the library name
	// never survives a round trip.
	require.Equal(t, "", lib.Name)
	require.Len(t, lib.Cells(), 1)
	got := lib.Cells()[0]
	require.Equal(t, "EMPTY", got.Name)
	require.Empty(t, got.Boundaries)
	require.Empty(t, got.Texts)
	require.Empty(t, got.Refs)
}

func TestSaveLoadFullGraphRoundTrip(t *testing.T) {
	leaf := NewCell("LEAF")
	leaf.Boundaries = []Boundary{
		{Layer: 1, Datatype: 0, Points: Polygon{{X: 0, Y: 0}, {X: 2, Y: 0}, {X: 2, Y: 2}, {X: 0, Y: 2}}},
	}
	leaf.Texts = []Text{{
		Layer: 2, TextType: 0, Anchor: Point{X: 1, Y: 1}, Width: 0.5, CanScale: true,
		HAlign: XCenter, VAlign: YCenter, Transform: IdentityTransform, String: "LEAF-LABEL",
	}}

	top := NewCell("TOP")
	top.Refs = []Reference{
		{
			TargetName: "LEAF", Target: leaf,
			Origin:    Point{X: 10, Y: 20},
			Transform: Transform{ReflectX: true, Mag: 2, Rotation: 45},
		},
		{
			TargetName: "LEAF", Target: leaf,
			IsArray: true, Cols: 2, Rows: 3,
			Origin: Point{X: 0, Y: 0}, DeltaCol: Point{X: 5, Y: 0}, DeltaRow: Point{X: 0, Y: 5},
			Transform: IdentityTransform,
		},
	}

	var buf bytes.Buffer
	require.NoError(t, Save(&buf, Config{Name: "GRAPHLIB"}, []*Cell{top}))

	lib, err := Load(bytes.NewReader(buf.Bytes()), Config{})
	require.NoError(t, err)

	// Only TOP is top-level; LEAF is reachable exclusively as a
	// reference target (§6 "Exit behavior of the reader").
	require.Len(t, lib.Cells(), 1)
	gotTop, ok := lib.Cell("TOP")
	require.True(t, ok)

	if diff := cmp.Diff(summarizeRefs(top.Refs), summarizeRefs(gotTop.Refs), floatsClose); diff != "" {
		t.Errorf("reference round trip mismatch (-want +got):\n%s", diff)
	}

	require.NotNil(t, gotTop.Refs[0].Target)
	require.Equal(t, "LEAF", gotTop.Refs[0].Target.Name)
	require.Len(t, gotTop.Refs[0].Target.Boundaries, 1)
	if diff := cmp.Diff(leaf.Boundaries[0].Points, gotTop.Refs[0].Target.Boundaries[0].Points, floatsClose); diff != "" {
		t.Errorf("boundary round trip mismatch (-want +got):\n%s", diff)
	}
	require.Equal(t, "LEAF-LABEL", gotTop.Refs[0].Target.Texts[0].String)
}

func TestSaveRejectsDisagreeingPreferredScales(t *testing.T) {
	a := NewCell("A")
	sa := NewScale(1e-9)
	a.PreferredScale = &sa
	b := NewCell("B")
	sb := NewScale(1e-6)
	b.PreferredScale = &sb
	a.Refs = []Reference{{TargetName: "B", Target: b, Transform: IdentityTransform}}

	var buf bytes.Buffer
	err := Save(&buf, Config{}, []*Cell{a})
	require.Error(t, err)
}

func TestLoadRejectsTruncatedStream(t *testing.T) {
	raw := []byte{0x00, 0x06, 0x00, 0x02, 0x00}
	_, err := Load(bytes.NewReader(raw), Config{})
	require.Error(t, err)
}
