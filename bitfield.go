package gdsii

// bitField wraps a 16-bit record payload (STRANS, PRESENTATION) for
// LSB-indexed bit access. Every field the format defines is byte- or
// word-aligned (§3 STRANS, §4.4/§4.5 PRESENTATION), so there's no need
// for an arbitrary-width streaming bit reader — just a single accessor
// over one uint16.
type bitField uint16

// bit reports whether bit n (0 = LSB) is set.
func (f bitField) bit(n uint) bool { return (f>>n)&1 == 1 }

// bits extracts an inclusive [lo, hi] bit range (0 = LSB) as an integer.
func (f bitField) bits(lo, hi uint) uint16 {
	mask := bitField((1 << (hi - lo + 1)) - 1)
	return uint16((f >> lo) & mask)
}

func setBit(f bitField, n uint, v bool) bitField {
	if v {
		return f | (1 << n)
	}
	return f &^ (1 << n)
}

func setBits(f bitField, lo, hi uint, v uint16) bitField {
	width := hi - lo + 1
	mask := bitField((1<<width)-1) << lo
	return (f &^ mask) | ((bitField(v) << lo) & mask)
}

// Horizontal and vertical text alignment, matching the PRESENTATION
// bit encoding (§4.4, §4.5, §6 "alignment sentinels").
type HAlign int

const (
	LeftEdge HAlign = iota
	XCenter
	RightEdge
)

type VAlign int

const (
	TopEdge VAlign = iota
	YCenter
	BottomEdge
)

// presentation packs/unpacks the PRESENTATION record's low byte: bits
// 0-1 horizontal alignment, bits 2-3 vertical alignment (§4.4).
func encodePresentation(h HAlign, v VAlign) uint16 {
	f := bitField(0)
	f = setBits(f, 0, 1, uint16(h))
	f = setBits(f, 2, 3, uint16(v))
	return uint16(f)
}

func decodePresentation(low byte) (HAlign, VAlign) {
	f := bitField(low)
	return HAlign(f.bits(0, 1)), VAlign(f.bits(2, 3))
}

// strans packs/unpacks the STRANS record (§3, §4.4, §4.5).
// Bits 2 and 1 ("absolute magnification"/"absolute angle") are decoded
// but never acted on, per the open question in §9: this module
// inherits "decode and ignore" behavior.
type stransBits struct {
	reflectX     bool
	absMagnitude bool
	absAngle     bool
}

func encodeSTRANS(reflectX bool) uint16 {
	f := bitField(0)
	f = setBit(f, 15, reflectX)
	return uint16(f)
}

func decodeSTRANS(raw uint16) stransBits {
	f := bitField(raw)
	return stransBits{
		reflectX:     f.bit(15),
		absMagnitude: f.bit(2),
		absAngle:     f.bit(1),
	}
}
