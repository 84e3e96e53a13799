package gdsii

import (
	"fmt"
	"math"
)

// Unit is a physical length quantum: the database unit, the user
// unit, or an ad hoc unit snapped from a file's UNITS record (§3, §4.3,
// §9 "Unit system").
type Unit struct {
	// Meters is the length of one unit, in meters. A zero-value Unit is
	// invalid; use Micrometer or NewUnit.
	Meters float64
	name   string
}

// Well-known units. The reader snaps UNITS records to Micrometer,
// Nanometer, or Picometer (§4.5 "Snap to 1 μm, 1 nm, or 1 pm if within
// floating tolerance"); Meter is never snapped to.
var (
	Meter      = Unit{Meters: 1, name: "m"}
	Micrometer = Unit{Meters: 1e-6, name: "µm"}
	Nanometer  = Unit{Meters: 1e-9, name: "nm"}
	Picometer  = Unit{Meters: 1e-12, name: "pm"}
)

// NewUnit constructs an anonymous length unit with the given quantum,
// used when a file's database scale doesn't land on a well-known unit.
func NewUnit(meters float64) Unit {
	return Unit{Meters: meters, name: fmt.Sprintf("%g m", meters)}
}

func (u Unit) String() string {
	if u.name != "" {
		return u.name
	}
	return fmt.Sprintf("%g m", u.Meters)
}

// snapUnit rounds a measured per-unit meter quantum to the nearest
// well-known unit within floating tolerance, or returns an anonymous
// unit of that exact quantum (§4.5 UNITS decoding).
func snapUnit(meters float64) Unit {
	const tol = 1e-12
	for _, u := range []Unit{Micrometer, Nanometer, Picometer} {
		if math.Abs(meters-u.Meters) <= tol*u.Meters {
			return u
		}
	}
	return NewUnit(meters)
}

// Length is a physical length expressed as a magnitude in some Unit
// (§9 "represent lengths as a pair (magnitude, unit-id)").
type Length struct {
	Value float64
	Unit  Unit
}

// Meters returns the length in meters.
func (l Length) Meters() float64 { return l.Value * l.Unit.Meters }

// Micrometers returns the length expressed in micrometers; unitless
// quantities already mean micrometers per §4.3.
func (l Length) Micrometers() float64 { return l.Meters() / Micrometer.Meters }

// LengthUm constructs a Length in micrometers — the "unitless input is
// treated as micrometers" convention from §4.3.
func LengthUm(v float64) Length { return Length{Value: v, Unit: Micrometer} }

// Scale converts between physical lengths and the 32-bit integer grid
// defined by a library's database unit (§4.3).
type Scale struct {
	DBUnit Unit // the physical length of one on-disk grid unit
}

// NewScale builds a Scale from a database-unit length in meters.
func NewScale(dbUnitMeters float64) Scale {
	return Scale{DBUnit: snapUnit(dbUnitMeters)}
}

// ToGrid converts a physical length to an on-disk int32 grid
// coordinate: round(x / dbs), failing if it doesn't fit in int32
// (§4.3, §8 "Scale round-trip").
func (s Scale) ToGrid(l Length) (int32, error) {
	x := l.Meters() / s.DBUnit.Meters
	n := math.Round(x)
	if n >= 1<<31 || n < -(1<<31) {
		return 0, fmt.Errorf("gdsii: length %g %s does not fit a 32-bit database-unit grid", l.Value, l.Unit)
	}
	return int32(n), nil
}

// FromGrid converts an on-disk int32 grid coordinate back to a
// physical length expressed in the database unit.
func (s Scale) FromGrid(n int32) Length {
	return Length{Value: float64(n), Unit: s.DBUnit}
}

// FromGridUm converts an on-disk int32 grid coordinate directly to a
// micrometer-valued float64, for callers in "nounits" read mode (§4.3,
// §9 "A 'nounits' read mode returns doubles whose value equals
// micrometers").
func (s Scale) FromGridUm(n int32) float64 {
	return s.FromGrid(n).Micrometers()
}

// ToGridUm is the unitless convenience form of ToGrid, treating x as
// micrometers.
func (s Scale) ToGridUm(x float64) (int32, error) {
	return s.ToGrid(LengthUm(x))
}
