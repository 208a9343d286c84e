/*Package scan coordinates an option registry and an acquisition engine over
one device handle.

A Session is either idle or running.  Option writes made through the session
are refused while it runs, and preview scans put the options they override
back on every exit path.
*/
package scan

import (
	"context"
	"errors"
	"fmt"
	"image"
	"log/slog"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"

	"github.com/nasa-jpl/goscan/acquire"
	"github.com/nasa-jpl/goscan/device"
	"github.com/nasa-jpl/goscan/option"
)

var (
	// ErrBusy is returned for option writes and scans while a scan runs
	ErrBusy = errors.New("scan in progress")

	// ErrUnknownOption is returned for option names the device does not have
	ErrUnknownOption = errors.New("unknown option")

	// ErrNoDocuments is informational: the feeder is empty
	ErrNoDocuments = errors.New("no documents to scan")

	// ErrStopBatch may be returned by a page callback to end a batch cleanly
	ErrStopBatch = errors.New("stop batch")
)

// Result is one finished page
type Result struct {
	ID           uuid.UUID
	Page         int
	Preview      bool
	Params       device.Parameters
	Data         []byte
	Status       device.Status
	NonCompliant bool
	Time         time.Time
}

// Image converts the page to an image
func (r *Result) Image() (image.Image, error) {
	return acquire.Image(r.Params, r.Data)
}

// Cancelled reports whether the page was cut short by a cancel
func (r *Result) Cancelled() bool {
	return r.Status == device.StatusCancelled
}

// StatusError maps a terminal device status to the error a user sees.
// Success, cancellation and end of data are not errors; an empty feeder is
// ErrNoDocuments; everything else is err.
func StatusError(st device.Status, err error) error {
	switch st {
	case device.StatusGood, device.StatusCancelled, device.StatusEOF:
		return nil
	case device.StatusNoDocs:
		return fmt.Errorf("%w: %s", ErrNoDocuments, st)
	}
	if err == nil {
		err = device.NewError("scan", st)
	}
	return err
}

// Session owns one device handle
type Session struct {
	h   device.Handle
	reg *option.Registry
	eng *acquire.Engine
	buf *acquire.Buffer

	// opMu serializes option writes against the start of a scan
	opMu    sync.Mutex
	running atomic.Bool
	invert  atomic.Bool

	pubMu sync.Mutex
	pub   Publisher

	log *slog.Logger
}

// Open builds the options of h and returns an idle session
func Open(h device.Handle) (*Session, error) {
	reg, err := option.Build(h)
	if err != nil {
		return nil, err
	}
	buf := &acquire.Buffer{}
	s := &Session{
		h:   h,
		reg: reg,
		eng: acquire.New(h, buf),
		buf: buf,
		log: device.Logger("scan"),
	}
	reg.Subscribe(s.optionEvent)
	return s, nil
}

// Registry returns the session's options
func (s *Session) Registry() *option.Registry { return s.reg }

// Engine returns the session's acquisition engine
func (s *Session) Engine() *acquire.Engine { return s.eng }

// Running reports whether a scan is being prepared or run
func (s *Session) Running() bool { return s.running.Load() }

// SetInvert makes later scans complement every sample
func (s *Session) SetInvert(b bool) { s.invert.Store(b) }

// Invert reports whether scans are inverted
func (s *Session) Invert() bool { return s.invert.Load() }

// SetPublisher sets where session events go; nil disables publishing
func (s *Session) SetPublisher(p Publisher) {
	s.pubMu.Lock()
	defer s.pubMu.Unlock()
	s.pub = p
}

func (s *Session) publish(ev Event) {
	s.pubMu.Lock()
	p := s.pub
	s.pubMu.Unlock()
	if p == nil {
		return
	}
	if ev.Time.IsZero() {
		ev.Time = time.Now()
	}
	if err := p.Publish(ev); err != nil {
		s.log.Debug("publish event", "type", ev.Type, "err", err)
	}
}

func (s *Session) optionEvent(ev option.Event) {
	switch ev.Kind {
	case option.ValueChanged:
		v := ev.Value
		if _, isTable := v.([]int); isTable {
			v = nil
		}
		s.publish(Event{Type: EventOption, Option: ev.Option.Name(), Value: v})
	case option.OptionsReloaded:
		s.publish(Event{Type: EventReload})
	}
}

// Option looks up an option by device name
func (s *Session) Option(name string) (option.Option, error) {
	o := s.reg.Lookup(name)
	if o == nil {
		return nil, fmt.Errorf("%q: %w", name, ErrUnknownOption)
	}
	return o, nil
}

// SetOption writes an option unless a scan is running.  It must not be
// called from an option event listener.
func (s *Session) SetOption(name string, v interface{}) error {
	o, err := s.Option(name)
	if err != nil {
		return err
	}
	s.opMu.Lock()
	defer s.opMu.Unlock()
	if s.running.Load() {
		return ErrBusy
	}
	return o.SetValue(v)
}

// begin marks the session running
func (s *Session) begin() error {
	s.opMu.Lock()
	defer s.opMu.Unlock()
	if s.running.Load() {
		return ErrBusy
	}
	s.running.Store(true)
	return nil
}

func (s *Session) end() {
	s.running.Store(false)
}

// Cancel cancels the active scan.  Before the device start returns the
// engine flag is enough; afterwards the device itself is cancelled.
func (s *Session) Cancel() {
	if !s.running.Load() {
		return
	}
	s.eng.Cancel()
	if s.eng.StartDone() {
		s.h.Cancel()
	}
}

// Close cancels any scan and drops the options
func (s *Session) Close() error {
	s.Cancel()
	s.reg.Clear()
	if c, ok := s.h.(device.Closer); ok {
		return c.Close()
	}
	return nil
}

func (s *Session) drainEvents() {
	for {
		select {
		case <-s.eng.Events():
		default:
			return
		}
	}
}

// runOnce runs the engine to a terminal state, forwarding its progress.  The
// device is not cancelled here.
func (s *Session) runOnce(ctx context.Context, id uuid.UUID, page int, preview bool) (*Result, error) {
	s.drainEvents()
	if err := s.eng.Start(s.invert.Load()); err != nil {
		return nil, err
	}
	done := s.eng.Done()
	s.publish(Event{Type: EventStarted, Job: id, Page: page, Preview: preview})
wait:
	for {
		select {
		case ev := <-s.eng.Events():
			if ev.Kind == acquire.EventProgress {
				s.publish(Event{Type: EventProgress, Job: id, Page: page, Progress: ev.Progress})
			}
		case <-done:
			break wait
		case <-ctx.Done():
			s.eng.Cancel()
			s.h.Cancel()
			<-done
			s.publish(Event{Type: EventFinished, Job: id, Page: page, State: acquire.StateCancelled.String(), Err: ctx.Err().Error()})
			return nil, ctx.Err()
		}
	}
	s.drainEvents()
	res := &Result{
		ID:           id,
		Page:         page,
		Preview:      preview,
		Params:       s.eng.Parameters(),
		Data:         s.buf.Snapshot(),
		Status:       s.eng.Status(),
		NonCompliant: s.eng.NonCompliant(),
		Time:         time.Now(),
	}
	state := s.eng.State()
	if state == acquire.StateCancelled {
		res.Status = device.StatusCancelled
	}
	err := StatusError(res.Status, s.eng.Err())
	fin := Event{Type: EventFinished, Job: id, Page: page, Preview: preview, Progress: s.eng.Progress(), State: state.String()}
	if err != nil {
		fin.Err = err.Error()
	}
	s.publish(fin)
	return res, err
}

// PreviewConfig tunes Preview.  A DPI of 25 or more is used as is; below
// that the lowest resolution giving at least MinPixels in both directions is
// picked, searching upward in steps of 25 dpi up to 600.
type PreviewConfig struct {
	DPI       float64
	MinPixels int
}

// previewRoles are overridden by a preview and restored afterwards
var previewRoles = []option.Role{
	option.RoleBitDepth, option.RoleResolution, option.RoleXResolution, option.RoleYResolution,
	option.RolePreview, option.RoleTopLeftX, option.RoleTopLeftY, option.RoleBottomRightX, option.RoleBottomRightY,
}

// Preview scans the whole area at a low resolution with the preview option
// set, then restores every option it touched
func (s *Session) Preview(ctx context.Context, cfg PreviewConfig) (res *Result, err error) {
	if err := s.begin(); err != nil {
		return nil, err
	}
	defer s.end()

	var opts []option.Option
	for _, r := range previewRoles {
		if o := s.reg.Role(r); o != nil {
			opts = append(opts, o)
		}
	}
	guard := NewOverride(opts...)
	defer func() {
		if rerr := guard.Restore(); rerr != nil {
			s.log.Warn("restoring options after preview", "err", rerr)
			if err == nil {
				err = rerr
			}
		}
	}()

	s.fullArea()
	if err := s.previewResolution(cfg); err != nil {
		return nil, err
	}
	if o := s.reg.Role(option.RolePreview); o != nil {
		if err := o.SetValue(true); err != nil {
			s.log.Debug("setting preview", "err", err)
		}
	}
	if err := s.reg.FlushPendingReload(); err != nil {
		return nil, err
	}
	res, err = s.runOnce(ctx, uuid.New(), 1, true)
	s.h.Cancel()
	return res, err
}

func (s *Session) fullArea() {
	set := func(r option.Role, max bool) {
		o := s.reg.Role(r)
		if o == nil || o.State() != option.StateShown {
			return
		}
		v := o.Minimum()
		if max {
			v = o.Maximum()
		}
		if err := o.SetValue(v); err != nil && !errors.Is(err, option.ErrNoExactEntry) {
			s.log.Debug("selecting full area", "option", o.Name(), "err", err)
		}
	}
	set(option.RoleTopLeftX, false)
	set(option.RoleTopLeftY, false)
	set(option.RoleBottomRightX, true)
	set(option.RoleBottomRightY, true)
}

// setResolution writes dpi to the resolution options
func (s *Session) setResolution(dpi float64) error {
	seen := map[option.Option]bool{}
	for _, r := range []option.Role{option.RoleResolution, option.RoleXResolution, option.RoleYResolution} {
		o := s.reg.Role(r)
		if o == nil || seen[o] || o.State() != option.StateShown {
			continue
		}
		seen[o] = true
		if err := o.SetValue(dpi); err != nil && !errors.Is(err, option.ErrNoExactEntry) {
			return err
		}
	}
	return nil
}

func (s *Session) previewResolution(cfg PreviewConfig) error {
	res := s.reg.Role(option.RoleResolution)
	if res == nil {
		return nil
	}
	if cfg.DPI >= 25 {
		return s.setResolution(cfg.DPI)
	}
	minPx := cfg.MinPixels
	if minPx <= 0 {
		minPx = 300
	}
	dpi := res.Minimum()
	for {
		if err := s.setResolution(dpi); err != nil {
			return err
		}
		if err := s.reg.FlushPendingReload(); err != nil {
			return err
		}
		p, err := s.h.Parameters()
		if err != nil {
			return device.Wrap("get parameters", err)
		}
		if dpi > 600 {
			break
		}
		dpi += 25
		if p.PixelsPerLine >= minPx && (p.Lines <= 0 || p.Lines >= minPx) {
			break
		}
	}
	return nil
}

// Batch reports whether a final scan continues with another page: the
// source is a document feeder or the device waits for its button
func (s *Session) Batch() bool {
	if o := s.reg.Role(option.RoleSource); o != nil {
		src := o.String()
		for _, k := range []string{"Automatic Document Feeder", "ADF", "Duplex"} {
			if strings.Contains(src, k) {
				return true
			}
		}
	}
	if o := s.reg.Role(option.RoleWaitForButton); o != nil && o.State() != option.StateHidden {
		return o.String() == "true"
	}
	return false
}

// Scan runs a final scan, handing every finished page to fn.  A feeder
// keeps going until it runs out of paper; the empty feeder after the first
// page ends the batch without error.  fn may return ErrStopBatch.
func (s *Session) Scan(ctx context.Context, fn func(*Result) error) error {
	return s.ScanAs(ctx, uuid.New(), fn)
}

// ScanAs is Scan with the job id chosen by the caller
func (s *Session) ScanAs(ctx context.Context, id uuid.UUID, fn func(*Result) error) error {
	if err := s.begin(); err != nil {
		return err
	}
	defer s.end()
	defer s.h.Cancel()

	for page := 1; ; page++ {
		if err := s.reg.FlushPendingReload(); err != nil {
			return err
		}
		res, err := s.runOnce(ctx, id, page, false)
		if err != nil {
			if errors.Is(err, ErrNoDocuments) && page > 1 {
				return nil
			}
			return err
		}
		if res.Cancelled() {
			return nil
		}
		if err := fn(res); err != nil {
			if errors.Is(err, ErrStopBatch) {
				return nil
			}
			return err
		}
		if !s.Batch() {
			return nil
		}
		if ctx.Err() != nil {
			return ctx.Err()
		}
	}
}
