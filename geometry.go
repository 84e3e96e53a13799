package gdsii

// Point is a single (x, y) coordinate expressed in database-unit grid
// coordinates already scaled to micrometers — the minimal collaborator
// type §6 asks for ("a point type with accessible x, y length
// fields"). Geometry beyond this (path boolean ops, polygon clipping,
// ...) is explicitly out of scope per §1 and lives outside this
// module.
type Point struct {
	X, Y float64
}

// Polygon is an ordered, open vertex sequence (the closing duplicate
// vertex required on the wire is added/stripped at the record boundary,
// §3, §4.4, §4.5).
type Polygon []Point
