/*Package option presents the controls a scanner reports as typed options.

A Registry enumerates the device, classifies every descriptor into one of the
option kinds and keeps descriptors and values in step with the device when a
write asks for a reload.  A write that reports changed options refreshes every
descriptor and value at once.  A write that reports changed parameters marks
the values stale; they are reread after PendingDelay or when
FlushPendingReload is called, whichever comes first.
*/
package option

import (
	"log/slog"
	"sync"
	"time"

	"github.com/nasa-jpl/goscan/device"
	"github.com/nasa-jpl/goscan/word"
)

// DefaultPendingDelay is how long a stale value reload waits for more writes
const DefaultPendingDelay = 5 * time.Millisecond

// EventKind says what an Event reports
type EventKind int

const (
	// ValueChanged carries the new value of one option
	ValueChanged EventKind = iota
	// OptionsReloaded reports that every descriptor was refetched
	OptionsReloaded
)

// Event is delivered to listeners after the registry lock is released
type Event struct {
	Kind   EventKind
	Option Option
	Value  interface{}
}

// Registry holds the options of one device handle
type Registry struct {
	mu sync.Mutex
	h  device.Handle

	opts    []Option
	byName  map[string]Option
	skipped []string
	closed  bool

	listeners []func(Event)
	queued    []Event

	pending bool
	timer   *time.Timer

	// PendingDelay is the delay before stale values are reread on their own.
	// Zero leaves them stale until FlushPendingReload.
	PendingDelay time.Duration

	// Localize, when set, gives the display form of a device string.  String
	// lists accept either form.
	Localize func(string) string

	log *slog.Logger
}

// Build enumerates every option of h in device order.  Descriptors that fit
// no kind are logged and left out.
func Build(h device.Handle) (*Registry, error) {
	r := &Registry{
		h:            h,
		byName:       map[string]Option{},
		PendingDelay: DefaultPendingDelay,
		log:          device.Logger("option"),
	}
	n, err := h.NumOptions()
	if err != nil {
		return nil, device.Wrap("count options", err)
	}
	r.mu.Lock()
	defer r.unlock()
	for i := 0; i < n; i++ {
		d, err := h.Descriptor(i)
		if err != nil {
			return nil, device.Wrap("get descriptor", err)
		}
		kind, err := Classify(d)
		if err != nil {
			if d.Type != device.TypeGroup {
				r.log.Warn("skipping option", "index", i, "err", err)
				r.skipped = append(r.skipped, d.Name)
			}
			continue
		}
		o := newOption(r, i, d, kind)
		if _, err := o.base().readValue(); err != nil {
			r.log.Debug("initial read failed", "option", d.Name, "err", err)
		}
		r.opts = append(r.opts, o)
		if d.Name != "" {
			r.byName[d.Name] = o
		}
	}
	return r, nil
}

func newOption(r *Registry, index int, d device.Descriptor, k Kind) Option {
	c := common{reg: r, index: index, kind: k, desc: d}
	switch k {
	case KindBool:
		return &Bool{c}
	case KindInteger:
		return &Integer{c}
	case KindDouble:
		return &Double{c}
	case KindString:
		return &String{c}
	case KindValueList:
		return &ValueList{c}
	case KindGamma:
		return &Gamma{c}
	default:
		return &Action{c}
	}
}

// unlock releases the lock and then delivers the queued events
func (r *Registry) unlock() {
	evs := r.queued
	r.queued = nil
	ls := r.listeners
	r.mu.Unlock()
	for _, ev := range evs {
		for _, l := range ls {
			l(ev)
		}
	}
}

func (r *Registry) queueValue(o Option) {
	var v interface{}
	switch t := o.(type) {
	case *ValueList:
		v = t.value()
	case *Bool:
		v = t.word() != 0
	case *Integer:
		v = int(t.word())
	case *Double:
		v = fixedReal(t.word())
	case *String:
		v = cstring(t.raw)
	case *Gamma:
		ws := word.DecodeAll(t.raw)
		table := make([]int, len(ws))
		for i, w := range ws {
			table[i] = int(w)
		}
		v = table
	}
	r.queued = append(r.queued, Event{Kind: ValueChanged, Option: o, Value: v})
}

// Subscribe registers fn to receive every Event
func (r *Registry) Subscribe(fn func(Event)) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.listeners = append(r.listeners[:len(r.listeners):len(r.listeners)], fn)
}

// Options returns the options in device order
func (r *Registry) Options() []Option {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]Option(nil), r.opts...)
}

// Skipped lists the names of options that could not be classified
func (r *Registry) Skipped() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]string(nil), r.skipped...)
}

// Lookup returns the option with the given device name, or nil
func (r *Registry) Lookup(name string) Option {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.byName[name]
}

// Role returns the option filling role, or nil when the device has none
func (r *Registry) Role(role Role) Option {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, name := range RoleNames[role] {
		if o, ok := r.byName[name]; ok {
			return o
		}
	}
	return nil
}

// PollOptions returns the options that must be reread periodically
func (r *Registry) PollOptions() []Option {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []Option
	for _, o := range r.opts {
		if NeedsPolling(o.base().desc) {
			out = append(out, o)
		}
	}
	return out
}

// Poll rereads every option that needs polling, emitting changes
func (r *Registry) Poll() error {
	r.mu.Lock()
	defer r.unlock()
	if r.closed {
		return ErrClosed
	}
	var first error
	for _, o := range r.opts {
		c := o.base()
		if !NeedsPolling(c.desc) {
			continue
		}
		changed, err := c.readValue()
		if err != nil && first == nil {
			first = err
		}
		if changed {
			r.queueValue(o)
		}
	}
	return first
}

// ReloadOptions refetches every descriptor and value
func (r *Registry) ReloadOptions() error {
	r.mu.Lock()
	defer r.unlock()
	if r.closed {
		return ErrClosed
	}
	return r.reloadAll()
}

func (r *Registry) reloadAll() error {
	r.stopPending()
	r.log.Debug("reloading options")
	var first error
	for _, o := range r.opts {
		c := o.base()
		if err := c.readOption(); err != nil && first == nil {
			first = err
		}
		changed, err := c.readValue()
		if err != nil && first == nil {
			first = err
		}
		if changed {
			r.queueValue(o)
		}
	}
	r.queued = append(r.queued, Event{Kind: OptionsReloaded})
	return first
}

// ReloadValues rereads every value without touching descriptors
func (r *Registry) ReloadValues() error {
	r.mu.Lock()
	defer r.unlock()
	if r.closed {
		return ErrClosed
	}
	return r.reloadValues()
}

func (r *Registry) reloadValues() error {
	r.stopPending()
	r.log.Debug("reloading values")
	var first error
	for _, o := range r.opts {
		changed, err := o.base().readValue()
		if err != nil && first == nil {
			first = err
		}
		if changed {
			r.queueValue(o)
		}
	}
	return first
}

func (r *Registry) schedulePending() {
	r.pending = true
	if r.timer == nil && r.PendingDelay > 0 {
		r.timer = time.AfterFunc(r.PendingDelay, r.firePending)
	}
}

func (r *Registry) stopPending() {
	r.pending = false
	if r.timer != nil {
		r.timer.Stop()
		r.timer = nil
	}
}

func (r *Registry) firePending() {
	r.mu.Lock()
	defer r.unlock()
	r.timer = nil
	if !r.pending || r.closed {
		return
	}
	if err := r.reloadValues(); err != nil {
		r.log.Warn("pending value reload", "err", err)
	}
}

// PendingReload reports whether values are stale and waiting to be reread
func (r *Registry) PendingReload() bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.pending
}

// FlushPendingReload rereads stale values now, if any.  Call it before a run
// so its parameters are taken from current values.
func (r *Registry) FlushPendingReload() error {
	r.mu.Lock()
	defer r.unlock()
	if !r.pending || r.closed {
		r.stopPending()
		return nil
	}
	return r.reloadValues()
}

// Clear drops every option.  Options already handed out return ErrClosed.
func (r *Registry) Clear() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.stopPending()
	r.closed = true
	r.opts = nil
	r.byName = map[string]Option{}
}
