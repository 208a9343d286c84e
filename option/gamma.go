package option

import (
	"fmt"
	"math"
	"strconv"
	"strings"

	"github.com/nasa-jpl/goscan/device"
	"github.com/nasa-jpl/goscan/word"
)

// GammaParams describe a gamma curve.  Brightness and Contrast run from -100
// to 100, Gamma is the exponent with 1 meaning linear.
type GammaParams struct {
	Brightness int
	Contrast   int
	Gamma      float64
}

// ParseGammaParams reads "brightness:contrast:gamma" where gamma is given in
// hundredths, the way gamma curves are usually typed in ("0:0:100" is linear)
func ParseGammaParams(s string) (GammaParams, error) {
	parts := strings.Split(s, ":")
	if len(parts) != 3 {
		return GammaParams{}, fmt.Errorf("gamma %q: want brightness:contrast:gamma", s)
	}
	var nums [3]int
	for i, p := range parts {
		n, err := strconv.Atoi(strings.TrimSpace(p))
		if err != nil {
			return GammaParams{}, fmt.Errorf("gamma %q: %w", s, err)
		}
		nums[i] = n
	}
	return GammaParams{Brightness: nums[0], Contrast: nums[1], Gamma: float64(nums[2]) / 100}, nil
}

// GammaCurve computes a table of size entries with values in [0, max]
func GammaCurve(p GammaParams, size, max int) []int32 {
	if size <= 0 {
		return nil
	}
	g := p.Gamma
	if g <= 0 {
		g = 1
	}
	c := float64(p.Contrast)
	if c > 99 {
		c = 99
	} else if c < -99 {
		c = -99
	}
	slope := (100 + c) / (100 - c)
	half := float64(max) / 2
	offset := float64(p.Brightness) / 100 * half
	out := make([]int32, size)
	for i := range out {
		x := 0.0
		if size > 1 {
			x = float64(i) / float64(size-1)
		}
		y := math.Pow(x, 1/g) * float64(max)
		y = (y-half)*slope + half + offset
		out[i] = int32(math.Round(math.Max(0, math.Min(float64(max), y))))
	}
	return out
}

// Gamma is a gamma table option
type Gamma struct{ common }

// Value returns the table as []int
func (o *Gamma) Value() interface{} { return o.Get() }

// Get returns the last known table
func (o *Gamma) Get() []int {
	o.reg.mu.Lock()
	defer o.reg.mu.Unlock()
	ws := word.DecodeAll(o.raw)
	out := make([]int, len(ws))
	for i, w := range ws {
		out[i] = int(w)
	}
	return out
}

func (o *Gamma) String() string {
	t := o.Get()
	return fmt.Sprintf("gamma table [%d entries]", len(t))
}

// SetValue accepts a table ([]int or []int32) of exactly the option's length,
// GammaParams, or a "brightness:contrast:gamma" string
func (o *Gamma) SetValue(v interface{}) error {
	o.reg.mu.Lock()
	defer o.reg.unlock()
	if err := o.writable(); err != nil {
		return err
	}
	n := o.desc.Words()
	max := 255
	if o.desc.Constraint.Type == device.ConstraintRange {
		max = int(o.desc.Constraint.Range.Max)
	}
	var table []int32
	switch t := v.(type) {
	case GammaParams:
		table = GammaCurve(t, n, max)
	case string:
		p, err := ParseGammaParams(t)
		if err != nil {
			return fmt.Errorf("%s: %v: %w", o.desc.Name, err, device.ErrConstraintRejected)
		}
		table = GammaCurve(p, n, max)
	case []int32:
		table = t
	case []int:
		table = make([]int32, len(t))
		for i, x := range t {
			table[i] = int32(x)
		}
	default:
		return rejected(o.desc.Name, v, "gamma table")
	}
	if len(table) != n {
		return fmt.Errorf("%s: table has %d entries, want %d: %w", o.desc.Name, len(table), n, device.ErrConstraintRejected)
	}
	return o.write(word.EncodeAll(table))
}

func (o *Gamma) bounds() (float64, float64) {
	o.reg.mu.Lock()
	defer o.reg.mu.Unlock()
	min, max, _ := o.rangeOr(0, 255, 1, intReal)
	return min, max
}

func (o *Gamma) Minimum() float64 {
	min, _ := o.bounds()
	return min
}

func (o *Gamma) Maximum() float64 {
	_, max := o.bounds()
	return max
}

func (o *Gamma) Step() float64 { return 1 }
