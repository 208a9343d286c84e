package option

import (
	"fmt"
	"math"
	"strconv"

	"github.com/nasa-jpl/goscan/device"
	"github.com/nasa-jpl/goscan/word"
)

const (
	// DoubleMin is the minimum reported for an unconstrained double
	DoubleMin = word.FixedMin
	// DoubleMax is the maximum reported for an unconstrained double
	DoubleMax = 32767.0
	// DoubleStep is the step reported for a double without a quantum
	DoubleStep = 0.0001
)

// Bool is an on/off option
type Bool struct{ common }

// Value returns the last known value as a bool
func (o *Bool) Value() interface{} { return o.Get() }

// Get returns the last known value
func (o *Bool) Get() bool {
	o.reg.mu.Lock()
	defer o.reg.mu.Unlock()
	return o.word() != 0
}

func (o *Bool) String() string { return strconv.FormatBool(o.Get()) }

// SetValue accepts a bool, a number or "true"/"false"
func (o *Bool) SetValue(v interface{}) error {
	o.reg.mu.Lock()
	defer o.reg.unlock()
	if err := o.writable(); err != nil {
		return err
	}
	b, ok := toBool(v)
	if !ok {
		return rejected(o.desc.Name, v, "bool")
	}
	var w int32
	if b {
		w = 1
	}
	return o.write(word.Encode(w))
}

func (o *Bool) Minimum() float64 { return 0 }

func (o *Bool) Maximum() float64 { return 1 }

func (o *Bool) Step() float64 { return 1 }

// Integer is a one word integer option
type Integer struct{ common }

// Value returns the last known value as an int
func (o *Integer) Value() interface{} { return o.Get() }

// Get returns the last known value
func (o *Integer) Get() int {
	o.reg.mu.Lock()
	defer o.reg.mu.Unlock()
	return int(o.word())
}

func (o *Integer) String() string { return strconv.Itoa(o.Get()) }

// SetValue accepts any number or a numeric string; fractions are rounded
func (o *Integer) SetValue(v interface{}) error {
	o.reg.mu.Lock()
	defer o.reg.unlock()
	if err := o.writable(); err != nil {
		return err
	}
	f, ok := toFloat(v)
	if !ok || f > math.MaxInt32 || f < math.MinInt32 {
		return rejected(o.desc.Name, v, "integer")
	}
	return o.write(word.Encode(int32(math.Round(f))))
}

func (o *Integer) bounds() (float64, float64, float64) {
	o.reg.mu.Lock()
	defer o.reg.mu.Unlock()
	return o.rangeOr(math.MinInt32, math.MaxInt32, 1, intReal)
}

func (o *Integer) Minimum() float64 {
	min, _, _ := o.bounds()
	return min
}

func (o *Integer) Maximum() float64 {
	_, max, _ := o.bounds()
	return max
}

func (o *Integer) Step() float64 {
	_, _, step := o.bounds()
	return step
}

// Double is a one word fixed-point option
type Double struct{ common }

// Value returns the last known value as a float64
func (o *Double) Value() interface{} { return o.Get() }

// Get returns the last known value
func (o *Double) Get() float64 {
	o.reg.mu.Lock()
	defer o.reg.mu.Unlock()
	return word.FixedToReal(o.word())
}

func (o *Double) String() string { return strconv.FormatFloat(o.Get(), 'f', -1, 64) }

// minChange is the smallest difference worth writing
func (o *Double) minChange() float64 {
	c := o.desc.Constraint
	if c.Type == device.ConstraintRange && c.Range.Quant > 0 {
		return word.FixedToReal(c.Range.Quant)
	}
	return word.FixedStep
}

// SetValue accepts any number or numeric string.  Changes smaller than the
// device can resolve are not written and succeed.
func (o *Double) SetValue(v interface{}) error {
	o.reg.mu.Lock()
	defer o.reg.unlock()
	if err := o.writable(); err != nil {
		return err
	}
	f, ok := toFloat(v)
	if !ok {
		return rejected(o.desc.Name, v, "real number")
	}
	if math.Abs(f-word.FixedToReal(o.word())) < o.minChange() {
		return nil
	}
	return o.write(word.Encode(word.RealToFixed(f)))
}

func (o *Double) bounds() (float64, float64, float64) {
	o.reg.mu.Lock()
	defer o.reg.mu.Unlock()
	return o.rangeOr(DoubleMin, DoubleMax, DoubleStep, fixedReal)
}

func (o *Double) Minimum() float64 {
	min, _, _ := o.bounds()
	return min
}

func (o *Double) Maximum() float64 {
	_, max, _ := o.bounds()
	return max
}

func (o *Double) Step() float64 {
	_, _, step := o.bounds()
	return step
}

// String is a free text option
type String struct{ common }

// Value returns the last known value as a string
func (o *String) Value() interface{} { return o.Get() }

// Get returns the last known value
func (o *String) Get() string {
	o.reg.mu.Lock()
	defer o.reg.mu.Unlock()
	return cstring(o.raw)
}

func (o *String) String() string { return o.Get() }

// SetValue writes v, truncated to what the option can store
func (o *String) SetValue(v interface{}) error {
	o.reg.mu.Lock()
	defer o.reg.unlock()
	if err := o.writable(); err != nil {
		return err
	}
	s, ok := v.(string)
	if !ok {
		if st, isStringer := v.(fmt.Stringer); isStringer {
			s = st.String()
		} else {
			return rejected(o.desc.Name, v, "string")
		}
	}
	max := o.desc.Size - 1
	if max < 0 {
		max = 0
	}
	if len(s) > max {
		o.reg.log.Debug("truncating string value", "option", o.desc.Name, "len", len(s), "max", max)
		s = s[:max]
	}
	buf := make([]byte, o.desc.Size)
	copy(buf, s)
	return o.write(buf)
}

func (o *String) Minimum() float64 { return 0 }

func (o *String) Maximum() float64 { return 0 }

func (o *String) Step() float64 { return 0 }

// Action is a button; writing it triggers the device action
type Action struct{ common }

// Value is always nil
func (o *Action) Value() interface{} { return nil }

func (o *Action) String() string { return "" }

// SetValue presses the button; v is ignored
func (o *Action) SetValue(v interface{}) error {
	o.reg.mu.Lock()
	defer o.reg.unlock()
	if err := o.writable(); err != nil {
		return err
	}
	return o.write(nil)
}

// Press is SetValue(nil)
func (o *Action) Press() error { return o.SetValue(nil) }

func (o *Action) Minimum() float64 { return 0 }

func (o *Action) Maximum() float64 { return 0 }

func (o *Action) Step() float64 { return 0 }
