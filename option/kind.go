package option

import (
	"fmt"

	"github.com/nasa-jpl/goscan/device"
	"github.com/nasa-jpl/goscan/word"
)

// Kind is the variant an option is presented as
type Kind int

const (
	KindUnknown Kind = iota
	KindBool
	KindInteger
	KindDouble
	KindString
	KindValueList
	KindGamma
	KindAction
)

var kindNames = []string{"unknown", "bool", "integer", "double", "string", "list", "gamma", "action"}

func (k Kind) String() string {
	if k < 0 || int(k) >= len(kindNames) {
		return "unknown"
	}
	return kindNames[k]
}

// GammaNames are the option names that hold a gamma table
var GammaNames = []string{"gamma-table", "red-gamma-table", "green-gamma-table", "blue-gamma-table"}

func isGammaName(name string) bool {
	for _, g := range GammaNames {
		if g == name {
			return true
		}
	}
	return false
}

// Classify maps a descriptor to the variant that presents it.  Descriptors
// that fit no variant return KindUnknown and an error matching
// device.ErrDetectionFailure.
func Classify(d device.Descriptor) (Kind, error) {
	oneWord := d.Size == word.Size
	switch d.Constraint.Type {
	case device.ConstraintNone:
		switch {
		case d.Type == device.TypeBool:
			return KindBool, nil
		case d.Type == device.TypeInt && oneWord:
			return KindInteger, nil
		case d.Type == device.TypeFixed && oneWord:
			return KindDouble, nil
		case d.Type == device.TypeButton:
			return KindAction, nil
		case d.Type == device.TypeString:
			return KindString, nil
		}
	case device.ConstraintRange:
		switch {
		case d.Type == device.TypeBool:
			return KindBool, nil
		case d.Type == device.TypeInt && isGammaName(d.Name):
			return KindGamma, nil
		case d.Type == device.TypeInt && oneWord:
			return KindInteger, nil
		case d.Type == device.TypeFixed && oneWord:
			return KindDouble, nil
		case d.Type == device.TypeButton:
			return KindAction, nil
		}
	case device.ConstraintWordList, device.ConstraintStringList:
		return KindValueList, nil
	}
	return KindUnknown, fmt.Errorf("option %q (%v, %d bytes): %w", d.Name, d.Type, d.Size, device.ErrDetectionFailure)
}

// State is how an option should be presented
type State int

const (
	// StateHidden options are not shown at all
	StateHidden State = iota
	// StateDisabled options are shown but cannot be edited
	StateDisabled
	// StateShown options are shown and editable
	StateShown
)

func (s State) String() string {
	switch s {
	case StateHidden:
		return "hidden"
	case StateDisabled:
		return "disabled"
	default:
		return "shown"
	}
}

// StateOf derives the state of an option of kind k from its descriptor
func StateOf(d device.Descriptor, k Kind) State {
	if !d.Cap.Has(device.CapSoftDetect) || !d.Active() || (d.Size == 0 && d.Type != device.TypeButton) {
		return StateHidden
	}
	if k == KindValueList && listLen(d) <= 1 {
		return StateHidden
	}
	if !d.Settable() {
		return StateDisabled
	}
	return StateShown
}

func listLen(d device.Descriptor) int {
	if d.Constraint.Type == device.ConstraintStringList {
		return len(d.Constraint.Strings)
	}
	return len(d.Constraint.Words)
}

// NeedsPolling reports whether the value can change outside the program's
// control and has to be re-read periodically
func NeedsPolling(d device.Descriptor) bool {
	return d.Cap.Has(device.CapSoftDetect) && !d.Settable()
}

// Role is a well known option a frontend looks for by purpose
type Role int

const (
	RoleSource Role = iota
	RoleScanMode
	RoleBitDepth
	RoleResolution
	RoleXResolution
	RoleYResolution
	RolePreview
	RoleWaitForButton
	RoleTopLeftX
	RoleTopLeftY
	RoleBottomRightX
	RoleBottomRightY
	RoleGammaRed
	RoleGammaGreen
	RoleGammaBlue
	RoleInvertColor
	RoleFilmType
	RoleNegative
	RolePageSize
	RoleBrightness
	RoleContrast
	RoleBlackLevel
	RoleWhiteLevel
	RoleThreshold
)

// RoleNames lists the device option names that fill each role, in order of preference
var RoleNames = map[Role][]string{
	RoleSource:        {"source"},
	RoleScanMode:      {"mode"},
	RoleBitDepth:      {"depth"},
	RoleResolution:    {"resolution", "x-resolution"},
	RoleXResolution:   {"x-resolution"},
	RoleYResolution:   {"y-resolution"},
	RolePreview:       {"preview"},
	RoleWaitForButton: {"wait-for-button"},
	RoleTopLeftX:      {"tl-x"},
	RoleTopLeftY:      {"tl-y"},
	RoleBottomRightX:  {"br-x"},
	RoleBottomRightY:  {"br-y"},
	RoleGammaRed:      {"red-gamma-table"},
	RoleGammaGreen:    {"green-gamma-table"},
	RoleGammaBlue:     {"blue-gamma-table"},
	RoleInvertColor:   {"invert-colors", "invert"},
	RoleFilmType:      {"film-type"},
	RoleNegative:      {"negative"},
	RolePageSize:      {"page-size"},
	RoleBrightness:    {"brightness"},
	RoleContrast:      {"contrast"},
	RoleBlackLevel:    {"black-level"},
	RoleWhiteLevel:    {"white-level"},
	RoleThreshold:     {"threshold"},
}
