// Package device describes the scanner side of the option and acquisition
// protocol: option descriptors, acquisition parameters, status codes and the
// Handle a session talks to.
package device

import (
	"strings"

	"github.com/nasa-jpl/goscan/word"
)

// ValueType is the type of value an option holds
type ValueType int

const (
	// TypeBool is a one word boolean
	TypeBool ValueType = iota
	// TypeInt is one or more integer words
	TypeInt
	// TypeFixed is one or more 16.16 fixed-point words
	TypeFixed
	// TypeString is a NUL terminated string
	TypeString
	// TypeButton is an action with no value
	TypeButton
	// TypeGroup starts a group of options and has no value
	TypeGroup
)

var valueTypeNames = []string{"bool", "int", "fixed", "string", "button", "group"}

func (t ValueType) String() string {
	if t < 0 || int(t) >= len(valueTypeNames) {
		return "unknown"
	}
	return valueTypeNames[t]
}

// Unit is the physical unit of an option's value
type Unit int

const (
	UnitNone Unit = iota
	UnitPixel
	UnitBit
	UnitMM
	UnitDPI
	UnitPercent
	UnitMicrosecond
)

// UnitNames holds the short display name of each unit
var UnitNames = map[Unit]string{
	UnitNone:        "",
	UnitPixel:       "px",
	UnitBit:         "bit",
	UnitMM:          "mm",
	UnitDPI:         "dpi",
	UnitPercent:     "%",
	UnitMicrosecond: "us",
}

func (u Unit) String() string {
	return UnitNames[u]
}

// Cap is the capability bit set of an option
type Cap int

const (
	// CapSoftSelect means software can set the value
	CapSoftSelect Cap = 1 << iota
	// CapHardSelect means the value is set by a user action on the device
	CapHardSelect
	// CapSoftDetect means software can read the value
	CapSoftDetect
	// CapEmulated means the option is emulated by the backend
	CapEmulated
	// CapAutomatic means the device can pick the value itself
	CapAutomatic
	// CapInactive means the option is currently not in effect
	CapInactive
	// CapAdvanced means the option is for advanced users
	CapAdvanced
)

// Has reports whether every bit of o is set in c
func (c Cap) Has(o Cap) bool {
	return c&o == o
}

func (c Cap) String() string {
	names := []string{"soft-select", "hard-select", "soft-detect", "emulated", "automatic", "inactive", "advanced"}
	var parts []string
	for i, n := range names {
		if c&(1<<uint(i)) != 0 {
			parts = append(parts, n)
		}
	}
	return strings.Join(parts, "|")
}

// ConstraintType says which field of Constraint is meaningful
type ConstraintType int

const (
	ConstraintNone ConstraintType = iota
	ConstraintRange
	ConstraintWordList
	ConstraintStringList
)

// Range bounds a numeric option.  Quant of zero means any value in [Min, Max].
type Range struct {
	Min, Max, Quant int32
}

// Constraint restricts the values an option may take
type Constraint struct {
	Type    ConstraintType
	Range   Range
	Words   []int32
	Strings []string
}

// Descriptor is the device's description of one option
type Descriptor struct {
	Name  string
	Title string
	Desc  string
	Type  ValueType
	Unit  Unit
	// Size is the storage size of the value in bytes.  Numeric options
	// hold Size/word.Size words, strings hold at most Size-1 bytes.
	Size       int
	Cap        Cap
	Constraint Constraint
}

// Words is the number of wire words the value occupies
func (d Descriptor) Words() int {
	return d.Size / word.Size
}

// Active reports whether the option is currently in effect
func (d Descriptor) Active() bool {
	return !d.Cap.Has(CapInactive)
}

// Settable reports whether software may write the option
func (d Descriptor) Settable() bool {
	return d.Cap.Has(CapSoftSelect)
}

// Info is the set of flags a successful write may report
type Info int

const (
	// InfoInexact means the device stored a value other than the one written
	InfoInexact Info = 1 << iota
	// InfoReloadOptions means any descriptor or value may have changed
	InfoReloadOptions
	// InfoReloadParams means acquisition parameters and values may have changed
	InfoReloadParams
)

// Has reports whether every bit of o is set in i
func (i Info) Has(o Info) bool {
	return i&o == o
}

// Frame is the pixel layout of one frame
type Frame int

const (
	FrameGray Frame = iota
	FrameRGB
	FrameRed
	FrameGreen
	FrameBlue
)

var frameNames = []string{"gray", "rgb", "red", "green", "blue"}

func (f Frame) String() string {
	if f < 0 || int(f) >= len(frameNames) {
		return "unknown"
	}
	return frameNames[f]
}

// Plane reports whether the frame carries a single color channel of a three frame image
func (f Frame) Plane() bool {
	return f == FrameRed || f == FrameGreen || f == FrameBlue
}

// Parameters describe the frame about to be read
type Parameters struct {
	Format        Frame
	LastFrame     bool
	BytesPerLine  int
	PixelsPerLine int
	Lines         int
	Depth         int
}

// FrameSize is the number of bytes in one frame
func (p Parameters) FrameSize() int {
	return p.Lines * p.BytesPerLine
}

// DataSize is the number of bytes of the assembled image
func (p Parameters) DataSize() int {
	if p.Format.Plane() {
		return 3 * p.FrameSize()
	}
	return p.FrameSize()
}
