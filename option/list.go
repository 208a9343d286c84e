package option

import (
	"fmt"
	"math"
	"strconv"

	"github.com/nasa-jpl/goscan/device"
	"github.com/nasa-jpl/goscan/word"
)

// ValueList is an option restricted to a list of words or strings
type ValueList struct{ common }

func (o *ValueList) isString() bool {
	return o.desc.Constraint.Type == device.ConstraintStringList
}

// entry converts a list word to its native value
func (o *ValueList) entry(w int32) interface{} {
	if o.desc.Type == device.TypeFixed {
		return word.FixedToReal(w)
	}
	return int(w)
}

func (o *ValueList) real(w int32) float64 {
	if o.desc.Type == device.TypeFixed {
		return word.FixedToReal(w)
	}
	return float64(w)
}

// Entries returns the possible values: strings, ints or float64s
func (o *ValueList) Entries() []interface{} {
	o.reg.mu.Lock()
	defer o.reg.mu.Unlock()
	c := o.desc.Constraint
	if o.isString() {
		out := make([]interface{}, len(c.Strings))
		for i, s := range c.Strings {
			out[i] = s
		}
		return out
	}
	out := make([]interface{}, len(c.Words))
	for i, w := range c.Words {
		out[i] = o.entry(w)
	}
	return out
}

// Value returns the last known value as a string, int or float64
func (o *ValueList) Value() interface{} {
	o.reg.mu.Lock()
	defer o.reg.mu.Unlock()
	return o.value()
}

func (o *ValueList) value() interface{} {
	if o.isString() {
		return cstring(o.raw)
	}
	return o.entry(o.word())
}

func (o *ValueList) String() string {
	switch v := o.Value().(type) {
	case string:
		return v
	case float64:
		return strconv.FormatFloat(v, 'f', -1, 64)
	default:
		return fmt.Sprint(v)
	}
}

// SetValue selects an entry.  String lists need an exact match against the
// device string or its localized form.  Numeric lists take the entry closest
// to the requested number, writing it even when it is a unit or more away;
// that case returns ErrNoExactEntry.
func (o *ValueList) SetValue(v interface{}) error {
	o.reg.mu.Lock()
	defer o.reg.unlock()
	if err := o.writable(); err != nil {
		return err
	}
	if o.isString() {
		return o.setString(v)
	}
	f, ok := toFloat(v)
	if !ok {
		return rejected(o.desc.Name, v, "number")
	}
	words := o.desc.Constraint.Words
	best, minDiff := closest(words, f, o.real)
	if best < 0 {
		return fmt.Errorf("%s: empty list: %w", o.desc.Name, device.ErrConstraintRejected)
	}
	if err := o.write(word.Encode(words[best])); err != nil {
		return err
	}
	if minDiff >= 1.0 {
		return fmt.Errorf("%s: requested %v, selected %v: %w", o.desc.Name, f, o.value(), ErrNoExactEntry)
	}
	return nil
}

// closest returns the index of the first entry nearest to f and its distance
func closest(words []int32, f float64, conv func(int32) float64) (int, float64) {
	best := -1
	minDiff := math.Inf(1)
	for i, w := range words {
		d := math.Abs(conv(w) - f)
		if d < minDiff {
			best, minDiff = i, d
		}
	}
	return best, minDiff
}

func (o *ValueList) setString(v interface{}) error {
	s, ok := v.(string)
	if !ok {
		return rejected(o.desc.Name, v, "string")
	}
	list := o.desc.Constraint.Strings
	match := -1
	for i, e := range list {
		if e == s {
			match = i
			break
		}
	}
	if match < 0 && o.reg.Localize != nil {
		for i, e := range list {
			if o.reg.Localize(e) == s {
				match = i
				break
			}
		}
	}
	if match < 0 {
		return fmt.Errorf("%s: %q is not one of %q: %w", o.desc.Name, s, list, device.ErrConstraintRejected)
	}
	size := o.desc.Size
	if size <= len(list[match]) {
		size = len(list[match]) + 1
	}
	buf := make([]byte, size)
	copy(buf, list[match])
	return o.write(buf)
}

func (o *ValueList) bounds() (float64, float64) {
	o.reg.mu.Lock()
	defer o.reg.mu.Unlock()
	if o.isString() || len(o.desc.Constraint.Words) == 0 {
		return 0, 0
	}
	min, max := math.Inf(1), math.Inf(-1)
	for _, w := range o.desc.Constraint.Words {
		f := o.real(w)
		min = math.Min(min, f)
		max = math.Max(max, f)
	}
	return min, max
}

// Minimum is the smallest list entry, 0 for string lists
func (o *ValueList) Minimum() float64 {
	min, _ := o.bounds()
	return min
}

// Maximum is the largest list entry, 0 for string lists
func (o *ValueList) Maximum() float64 {
	_, max := o.bounds()
	return max
}

// Step is 0; list entries need not be evenly spaced
func (o *ValueList) Step() float64 { return 0 }
