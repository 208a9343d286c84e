package option

import (
	"bytes"
	"errors"
	"fmt"
	"math"
	"strconv"
	"strings"

	"github.com/nasa-jpl/goscan/device"
	"github.com/nasa-jpl/goscan/word"
)

var (
	// ErrClosed is returned by options of a registry that was cleared
	ErrClosed = errors.New("option registry is closed")

	// ErrNothingStored is returned by RestoreSaved without a prior StoreCurrent
	ErrNothingStored = errors.New("no stored value to restore")

	// ErrNoExactEntry is returned when a numeric list write landed on an entry
	// one or more units away from the requested value.  The entry was written.
	ErrNoExactEntry = errors.New("no list entry within one unit of the requested value")
)

// Option is one device control.  The concrete types are *Bool, *Integer,
// *Double, *String, *ValueList, *Gamma and *Action.
//
// Methods are safe for concurrent use.  They must not be called while an
// acquisition run is active on the same handle.
type Option interface {
	Index() int
	Name() string
	Title() string
	Description() string
	Kind() Kind
	Unit() device.Unit
	Descriptor() device.Descriptor
	State() State
	NeedsPolling() bool

	// Value is the last known value: bool, int, float64, string or []int
	// depending on the kind.  Actions have no value.
	Value() interface{}
	String() string
	SetValue(v interface{}) error

	Minimum() float64
	Maximum() float64
	Step() float64

	ReadOption() error
	ReadValue() error
	StoreCurrent() error
	RestoreSaved() error

	base() *common
}

// common holds what every variant shares.  Fields are guarded by reg.mu.
type common struct {
	reg   *Registry
	index int
	kind  Kind
	desc  device.Descriptor
	raw   []byte
	saved []byte
}

func (c *common) base() *common { return c }

// Index is the device's index for the option
func (c *common) Index() int { return c.index }

// Kind is the variant of the option
func (c *common) Kind() Kind { return c.kind }

// Name returns the device name of the option
func (c *common) Name() string {
	c.reg.mu.Lock()
	defer c.reg.mu.Unlock()
	return c.desc.Name
}

// Title returns the display title of the option
func (c *common) Title() string {
	c.reg.mu.Lock()
	defer c.reg.mu.Unlock()
	return c.desc.Title
}

// Description returns the long description of the option
func (c *common) Description() string {
	c.reg.mu.Lock()
	defer c.reg.mu.Unlock()
	return c.desc.Desc
}

// Unit returns the unit of the value
func (c *common) Unit() device.Unit {
	c.reg.mu.Lock()
	defer c.reg.mu.Unlock()
	return c.desc.Unit
}

// Descriptor returns a copy of the latest descriptor
func (c *common) Descriptor() device.Descriptor {
	c.reg.mu.Lock()
	defer c.reg.mu.Unlock()
	return c.desc
}

// State derives the presentation state from the latest descriptor
func (c *common) State() State {
	c.reg.mu.Lock()
	defer c.reg.mu.Unlock()
	return c.state()
}

func (c *common) state() State {
	return StateOf(c.desc, c.kind)
}

// NeedsPolling reports whether the option is read-only and sensed by the device
func (c *common) NeedsPolling() bool {
	c.reg.mu.Lock()
	defer c.reg.mu.Unlock()
	return NeedsPolling(c.desc)
}

// ReadOption refetches the descriptor from the device
func (c *common) ReadOption() error {
	c.reg.mu.Lock()
	defer c.reg.unlock()
	if c.reg.closed {
		return ErrClosed
	}
	return c.readOption()
}

func (c *common) readOption() error {
	d, err := c.reg.h.Descriptor(c.index)
	if err != nil {
		return device.Wrap("get descriptor of "+c.desc.Name, err)
	}
	c.desc = d
	return nil
}

// ReadValue refetches the value from the device
func (c *common) ReadValue() error {
	c.reg.mu.Lock()
	defer c.reg.unlock()
	if c.reg.closed {
		return ErrClosed
	}
	changed, err := c.readValue()
	if changed {
		c.reg.queueValue(c)
	}
	return err
}

func (c *common) bufSize() int {
	switch c.desc.Type {
	case device.TypeButton, device.TypeGroup:
		return 0
	case device.TypeString:
		return c.desc.Size
	}
	if c.desc.Size < word.Size {
		return word.Size
	}
	return c.desc.Size
}

// readValue fetches the value unless the option is hidden and reports
// whether it differs from the cached one
func (c *common) readValue() (bool, error) {
	if c.state() == StateHidden || c.bufSize() == 0 {
		return false, nil
	}
	buf := make([]byte, c.bufSize())
	if err := c.reg.h.GetValue(c.index, buf); err != nil {
		return false, device.Wrap("get "+c.desc.Name, err)
	}
	changed := !bytes.Equal(buf, c.raw)
	c.raw = buf
	return changed, nil
}

// writable rejects writes to hidden and disabled options
func (c *common) writable() error {
	if c.reg.closed {
		return ErrClosed
	}
	switch c.state() {
	case StateHidden:
		return fmt.Errorf("%s is hidden: %w", c.desc.Name, device.ErrConstraintRejected)
	case StateDisabled:
		return fmt.Errorf("%s is read only: %w", c.desc.Name, device.ErrConstraintRejected)
	}
	return nil
}

// write sends buf to the device and runs the reload cascade the device asks for
func (c *common) write(buf []byte) error {
	info, err := c.reg.h.SetValue(c.index, buf)
	if err != nil {
		if _, rerr := c.readValue(); rerr != nil {
			c.reg.log.Debug("resync after failed write", "option", c.desc.Name, "err", rerr)
		}
		return device.Wrap("set "+c.desc.Name, err)
	}
	if len(buf) > 0 {
		c.raw = append(c.raw[:0], buf...)
	}
	switch {
	case info.Has(device.InfoReloadOptions):
		c.reg.reloadAll()
	case info.Has(device.InfoReloadParams):
		c.reg.schedulePending()
		if info.Has(device.InfoInexact) {
			c.readValue()
		}
	case info.Has(device.InfoInexact):
		if _, err := c.readValue(); err != nil {
			return err
		}
	}
	if c.bufSize() > 0 {
		c.reg.queueValue(c)
	}
	return nil
}

// StoreCurrent reads the current device value and keeps it for RestoreSaved
func (c *common) StoreCurrent() error {
	c.reg.mu.Lock()
	defer c.reg.unlock()
	if c.reg.closed {
		return ErrClosed
	}
	if c.state() == StateHidden {
		return fmt.Errorf("store %s: option is hidden: %w", c.desc.Name, device.ErrConstraintRejected)
	}
	buf := make([]byte, c.bufSize())
	if len(buf) > 0 {
		if err := c.reg.h.GetValue(c.index, buf); err != nil {
			return device.Wrap("get "+c.desc.Name, err)
		}
	}
	c.saved = buf
	return nil
}

// RestoreSaved writes back the value kept by StoreCurrent and rereads it
func (c *common) RestoreSaved() error {
	c.reg.mu.Lock()
	defer c.reg.unlock()
	if c.saved == nil {
		return fmt.Errorf("restore %s: %w", c.desc.Name, ErrNothingStored)
	}
	if err := c.writable(); err != nil {
		return err
	}
	saved := c.saved
	c.saved = nil
	if err := c.write(saved); err != nil {
		return err
	}
	if changed, err := c.readValue(); err != nil {
		return err
	} else if changed {
		c.reg.queueValue(c)
	}
	return nil
}

func (c *common) word() int32 {
	if len(c.raw) < word.Size {
		return 0
	}
	return word.Decode(c.raw)
}

func (c *common) rangeOr(min, max, step float64, conv func(int32) float64) (float64, float64, float64) {
	if c.desc.Constraint.Type != device.ConstraintRange {
		return min, max, step
	}
	r := c.desc.Constraint.Range
	if r.Quant > 0 {
		step = conv(r.Quant)
	}
	return conv(r.Min), conv(r.Max), step
}

func rejected(name string, v interface{}, want string) error {
	return fmt.Errorf("%s: cannot use %v (%T) as %s: %w", name, v, v, want, device.ErrConstraintRejected)
}

// toFloat coerces numbers, bools and numeric strings
func toFloat(v interface{}) (float64, bool) {
	switch t := v.(type) {
	case int:
		return float64(t), true
	case int32:
		return float64(t), true
	case int64:
		return float64(t), true
	case uint:
		return float64(t), true
	case uint32:
		return float64(t), true
	case float32:
		return float64(t), true
	case float64:
		return t, !math.IsNaN(t)
	case bool:
		if t {
			return 1, true
		}
		return 0, true
	case string:
		f, err := strconv.ParseFloat(strings.TrimSpace(t), 64)
		return f, err == nil && !math.IsNaN(f)
	}
	return 0, false
}

func toBool(v interface{}) (bool, bool) {
	switch t := v.(type) {
	case bool:
		return t, true
	case string:
		b, err := strconv.ParseBool(strings.TrimSpace(t))
		return b, err == nil
	}
	if f, ok := toFloat(v); ok {
		return f != 0, true
	}
	return false, false
}

func fixedReal(w int32) float64 { return word.FixedToReal(w) }

func intReal(w int32) float64 { return float64(w) }

func cstring(b []byte) string {
	if i := bytes.IndexByte(b, 0); i >= 0 {
		b = b[:i]
	}
	return string(b)
}
