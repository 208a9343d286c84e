package scan

import (
	"errors"

	"github.com/nasa-jpl/goscan/device"
	"github.com/nasa-jpl/goscan/option"
)

// Override remembers the values of a set of options so a temporary change
// can be undone.  Options that are hidden when the override is taken are
// left alone.
type Override struct {
	stored []option.Option
}

// NewOverride stores the current value of every shown option in opts
func NewOverride(opts ...option.Option) *Override {
	log := device.Logger("scan")
	g := &Override{}
	seen := map[option.Option]bool{}
	for _, o := range opts {
		if o == nil || seen[o] {
			continue
		}
		seen[o] = true
		if err := o.StoreCurrent(); err != nil {
			log.Debug("not overriding option", "option", o.Name(), "err", err)
			continue
		}
		g.stored = append(g.stored, o)
	}
	return g
}

// Options returns the options whose values were stored
func (g *Override) Options() []option.Option {
	return g.stored
}

// Restore writes the stored values back in the order they were taken.  It
// is safe to call more than once.  Options that became unwritable are
// skipped.
func (g *Override) Restore() error {
	var first error
	for _, o := range g.stored {
		err := o.RestoreSaved()
		if err == nil || errors.Is(err, option.ErrNothingStored) || errors.Is(err, device.ErrConstraintRejected) {
			continue
		}
		if first == nil {
			first = err
		}
	}
	g.stored = nil
	return first
}
