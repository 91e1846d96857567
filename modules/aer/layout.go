package aer

import (
	"fmt"
	"strings"
)

// Layout selects the bit-field map used to decode data words.
type Layout int

const (
	// LayoutUnknown is the zero value and is rejected by every codec call.
	LayoutUnknown Layout = iota
	// LayoutDVS128 is the 128x128 retina with mirrored x.
	LayoutDVS128
	// LayoutDVS128Raw is the 128x128 retina without x mirroring.
	LayoutDVS128Raw
	// LayoutDVS128Skin is LayoutDVS128 with the skin flag in bit 16.
	LayoutDVS128Skin
	// LayoutATIS20 is the 304x240 ATIS 20-bit address word.
	LayoutATIS20
	// LayoutATIS24 is the 304x240 ATIS 24-bit address word.
	LayoutATIS24
)

// WordSize is the size in bytes of every word in a stream, data or marker.
const WordSize = 4

// field is one mask/shift pair: value = (raw & mask) >> shift.
type field struct {
	mask  uint32
	shift uint8
}

func (f field) get(raw uint32) uint32 {
	return (raw & f.mask) >> f.shift
}

func (f field) put(v uint32) uint32 {
	return (v << f.shift) & f.mask
}

// max is the largest value the field can hold.
func (f field) max() uint32 {
	return f.mask >> f.shift
}

type layoutSpec struct {
	name     string
	width    int
	height   int
	polarity field
	x        field
	y        field
	typ      field
	channel  field
	mirrorX  bool
}

// used returns the union of all field masks.
func (s *layoutSpec) used() uint32 {
	return s.polarity.mask | s.x.mask | s.y.mask | s.typ.mask | s.channel.mask
}

var layouts = map[Layout]*layoutSpec{
	LayoutDVS128: {
		name:     "dvs128",
		width:    128,
		height:   128,
		polarity: field{mask: 0x0001, shift: 0},
		x:        field{mask: 0x00FE, shift: 1},
		y:        field{mask: 0x7F00, shift: 8},
		channel:  field{mask: 0x8000, shift: 15},
		mirrorX:  true,
	},
	LayoutDVS128Raw: {
		name:     "dvs128-raw",
		width:    128,
		height:   128,
		polarity: field{mask: 0x0001, shift: 0},
		x:        field{mask: 0x00FE, shift: 1},
		y:        field{mask: 0x7F00, shift: 8},
		channel:  field{mask: 0x8000, shift: 15},
	},
	LayoutDVS128Skin: {
		name:     "dvs128-skin",
		width:    128,
		height:   128,
		polarity: field{mask: 0x0001, shift: 0},
		x:        field{mask: 0x00FE, shift: 1},
		y:        field{mask: 0x7F00, shift: 8},
		channel:  field{mask: 0x8000, shift: 15},
		typ:      field{mask: 0x10000, shift: 16},
		mirrorX:  true,
	},
	LayoutATIS20: {
		name:     "atis20",
		width:    304,
		height:   240,
		polarity: field{mask: 0x00001, shift: 0},
		x:        field{mask: 0x003FE, shift: 1},
		y:        field{mask: 0x3FC00, shift: 10},
		typ:      field{mask: 0x40000, shift: 18},
		channel:  field{mask: 0x80000, shift: 19},
	},
	LayoutATIS24: {
		name:     "atis24",
		width:    304,
		height:   240,
		polarity: field{mask: 0x000001, shift: 0},
		x:        field{mask: 0x000FFE, shift: 1},
		y:        field{mask: 0x3FF000, shift: 12},
		typ:      field{mask: 0x400000, shift: 22},
		channel:  field{mask: 0x800000, shift: 23},
	},
}

func lookup(l Layout) (*layoutSpec, error) {
	spec, ok := layouts[l]
	if !ok {
		return nil, fmt.Errorf("%w: %d", ErrUnsupportedLayout, int(l))
	}
	return spec, nil
}

// Dimensions returns the sensor resolution of the layout, or 0,0 when unknown.
func (l Layout) Dimensions() (width, height int) {
	spec, ok := layouts[l]
	if !ok {
		return 0, 0
	}
	return spec.width, spec.height
}

// Valid reports whether the layout is one of the known formats.
func (l Layout) Valid() bool {
	_, ok := layouts[l]
	return ok
}

// String returns the configuration name of the layout.
func (l Layout) String() string {
	if spec, ok := layouts[l]; ok {
		return spec.name
	}
	return "unknown"
}

// Layouts returns every supported layout in declaration order.
func Layouts() []Layout {
	return []Layout{LayoutDVS128, LayoutDVS128Raw, LayoutDVS128Skin, LayoutATIS20, LayoutATIS24}
}

// ParseLayout maps a configuration name ("atis20", "dvs128-raw", ...) to a Layout.
func ParseLayout(name string) (Layout, error) {
	name = strings.ToLower(strings.TrimSpace(name))
	for _, l := range Layouts() {
		if layouts[l].name == name {
			return l, nil
		}
	}
	return LayoutUnknown, fmt.Errorf("%w: %q", ErrUnsupportedLayout, name)
}
