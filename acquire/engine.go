/*Package acquire runs the start/read/frame loop against a scanner on a
background goroutine and assembles the image.

Gray and interleaved RGB frames are appended as they arrive.  Three-pass
scanners deliver red, green and blue frames one after the other; their bytes
are scattered into an interleaved RGB buffer.  Progress and the terminal
state are published on Events without ever blocking the worker.
*/
package acquire

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"golang.org/x/time/rate"

	"github.com/nasa-jpl/goscan/device"
)

// ReadChunkSize is the largest read issued to the device
const ReadChunkSize = 64 * 1024

// ProgressInterval is the minimum spacing of progress events
var ProgressInterval = 50 * time.Millisecond

// ErrRunning is returned by Start while a run is active
var ErrRunning = errors.New("acquisition already running")

// State is the state of a run
type State int

const (
	StateReady State = iota
	StateRunning
	StateComplete
	StateCancelled
	StateError
)

var stateNames = []string{"ready", "running", "complete", "cancelled", "error"}

func (s State) String() string {
	if s < 0 || int(s) >= len(stateNames) {
		return "unknown"
	}
	return stateNames[s]
}

// Terminal reports whether s ends a run
func (s State) Terminal() bool {
	return s >= StateComplete
}

// EventKind distinguishes progress from completion
type EventKind int

const (
	EventProgress EventKind = iota
	EventDone
)

// Event is published on Engine.Events
type Event struct {
	Kind     EventKind
	Progress int
	State    State
	Err      error
}

// Engine drives one device handle.  At most one run is active at a time.
type Engine struct {
	h   device.Handle
	buf *Buffer

	events  chan Event
	limiter *rate.Limiter
	log     *slog.Logger

	mu           sync.Mutex
	state        State
	status       device.Status
	err          error
	params       device.Parameters
	startDone    bool
	cancelReq    bool
	nonCompliant bool
	frameRead    int
	frameSize    int
	dataSize     int
	frameCount   int
	done         chan struct{}
}

// New returns an idle engine writing into buf
func New(h device.Handle, buf *Buffer) *Engine {
	done := make(chan struct{})
	close(done)
	return &Engine{
		h:       h,
		buf:     buf,
		events:  make(chan Event, 32),
		limiter: rate.NewLimiter(rate.Every(ProgressInterval), 1),
		log:     device.Logger("acquire"),
		done:    done,
	}
}

// Buffer returns the image buffer
func (e *Engine) Buffer() *Buffer { return e.buf }

// Events delivers progress and completion.  Progress events are dropped when
// nobody keeps up; the completion event always gets through.
func (e *Engine) Events() <-chan Event { return e.events }

// Start begins a run.  invert complements every sample as it arrives.
func (e *Engine) Start(invert bool) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.state == StateRunning {
		return ErrRunning
	}
	e.state = StateRunning
	e.status = device.StatusGood
	e.err = nil
	e.params = device.Parameters{}
	e.startDone = false
	e.cancelReq = false
	e.nonCompliant = false
	e.frameRead, e.frameSize, e.dataSize, e.frameCount = 0, 0, 0, 0
	e.done = make(chan struct{})
	go e.run(invert, e.done)
	return nil
}

// Cancel asks the run to stop.  The request is honored only if it arrives
// before the device start completes; afterwards the caller must cancel the
// device handle to end the read loop.
func (e *Engine) Cancel() {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.state == StateRunning {
		e.cancelReq = true
	}
}

// CancelRequested reports whether Cancel was called during the current run
func (e *Engine) CancelRequested() bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.cancelReq
}

// State returns the state of the current or last run
func (e *Engine) State() State {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.state
}

// Status returns the last device status seen by the run
func (e *Engine) Status() device.Status {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.status
}

// Err returns the error that ended the last run, if any
func (e *Engine) Err() error {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.err
}

// Parameters returns the parameters of the current frame, corrected for
// devices that misreport 1 bit line lengths
func (e *Engine) Parameters() device.Parameters {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.params
}

// StartDone reports whether the device start of the current run returned
func (e *Engine) StartDone() bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.startDone
}

// NonCompliant reports whether the device ended a frame early during the last run
func (e *Engine) NonCompliant() bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.nonCompliant
}

// Progress is the percentage of the image received, 0 to 100
func (e *Engine) Progress() int {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.progress()
}

func (e *Engine) progress() int {
	if e.dataSize <= 0 {
		return 0
	}
	read := e.frameRead
	if e.frameSize < e.dataSize {
		read += e.frameSize * e.frameCount
	}
	p := int(int64(read) * 100 / int64(e.dataSize))
	if p < 0 {
		return 0
	}
	if p > 100 {
		return 100
	}
	return p
}

// Done is closed when the current run ends
func (e *Engine) Done() <-chan struct{} {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.done
}

// Wait blocks until the current run ends or ctx is done
func (e *Engine) Wait(ctx context.Context) (State, error) {
	select {
	case <-e.Done():
		e.mu.Lock()
		defer e.mu.Unlock()
		return e.state, e.err
	case <-ctx.Done():
		return StateRunning, ctx.Err()
	}
}

// CheckFormat reports whether frames in the format of p can be assembled
func CheckFormat(p device.Parameters) error {
	ok := false
	switch p.Format {
	case device.FrameGray:
		ok = p.Depth == 1 || p.Depth == 8 || p.Depth == 16
	case device.FrameRGB, device.FrameRed, device.FrameGreen, device.FrameBlue:
		ok = p.Depth == 8 || p.Depth == 16
	}
	if !ok {
		return fmt.Errorf("%v frame at depth %d: %w", p.Format, p.Depth, device.ErrUnsupportedFormat)
	}
	return nil
}

func (e *Engine) run(invert bool, done chan struct{}) {
	defer close(done)
	err := e.h.Start()
	e.mu.Lock()
	e.startDone = true
	cancelled := e.cancelReq
	e.mu.Unlock()
	if cancelled {
		e.finish(StateCancelled, device.StatusCancelled, nil)
		return
	}
	if err != nil {
		e.finish(StateError, device.StatusOf(err), device.Wrap("start", err))
		return
	}
	p, err := e.frameParams()
	if err != nil {
		e.finish(StateError, statusFor(err), err)
		return
	}
	e.mu.Lock()
	e.frameSize = p.FrameSize()
	e.dataSize = p.DataSize()
	e.mu.Unlock()
	e.buf.reset(p.DataSize(), p.Format.Plane())
	e.log.Debug("run started", "format", p.Format, "depth", p.Depth, "lines", p.Lines, "bytesPerLine", p.BytesPerLine)

	chunk := make([]byte, ReadChunkSize)
	for {
		n, rerr := e.h.Read(chunk)
		st := device.StatusOf(rerr)
		switch st {
		case device.StatusGood:
			e.place(chunk[:n], p, invert)
			e.publishProgress()
		case device.StatusEOF:
			e.mu.Lock()
			frameRead, frameSize := e.frameRead, e.frameSize
			e.mu.Unlock()
			if n > 0 && frameRead+n <= frameSize {
				e.place(chunk[:n], p, invert)
				frameRead += n
			}
			if frameRead < frameSize {
				e.recoverShortFrame(p, frameRead)
				e.finish(StateComplete, st, nil)
				return
			}
			if p.LastFrame {
				e.finish(StateComplete, st, nil)
				return
			}
			if err := e.h.Start(); err != nil {
				e.finish(StateError, device.StatusOf(err), device.Wrap("start next frame", err))
				return
			}
			if p, err = e.frameParams(); err != nil {
				e.finish(StateError, statusFor(err), err)
				return
			}
			e.mu.Lock()
			e.frameRead = 0
			e.frameCount++
			e.mu.Unlock()
		case device.StatusCancelled:
			if e.CancelRequested() {
				e.finish(StateCancelled, st, nil)
			} else {
				e.finish(StateError, st, device.Wrap("read", rerr))
			}
			return
		default:
			e.finish(StateError, st, device.Wrap("read", rerr))
			return
		}
	}
}

// frameParams fetches and checks the parameters of the frame just started
func (e *Engine) frameParams() (device.Parameters, error) {
	p, err := e.h.Parameters()
	if err != nil {
		return p, device.Wrap("get parameters", err)
	}
	e.mu.Lock()
	e.params = p
	e.mu.Unlock()
	return p, CheckFormat(p)
}

func statusFor(err error) device.Status {
	if errors.Is(err, device.ErrUnsupportedFormat) {
		return device.StatusUnsupported
	}
	return device.StatusOf(err)
}

// place transforms a chunk and puts it into the buffer
func (e *Engine) place(chunk []byte, p device.Parameters, invert bool) {
	if len(chunk) == 0 {
		return
	}
	if invert {
		Invert(chunk, p.Depth)
	}
	e.mu.Lock()
	start := e.frameRead
	e.mu.Unlock()
	if p.Format.Plane() {
		e.buf.scatter(chunk, start, p.Format, p.Depth)
	} else {
		e.buf.append(chunk)
	}
	e.mu.Lock()
	e.frameRead += len(chunk)
	e.mu.Unlock()
}

// recoverShortFrame handles a device that ended a frame early.  Lineart
// devices are known to misreport bytes per line; when the data covers every
// pixel the line length is recomputed from what arrived.
func (e *Engine) recoverShortFrame(p device.Parameters, frameRead int) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.nonCompliant = true
	e.log.Warn("frame ended early", "err", device.ErrProtocolNonCompliance, "read", frameRead, "expected", e.frameSize)
	if p.Depth == 1 && p.Lines > 0 && p.Lines*p.PixelsPerLine <= frameRead*8 {
		e.params.BytesPerLine = frameRead / p.Lines
		e.log.Debug("corrected bytes per line", "bytesPerLine", e.params.BytesPerLine)
	}
}

func (e *Engine) publishProgress() {
	if !e.limiter.Allow() {
		return
	}
	e.send(Event{Kind: EventProgress, Progress: e.Progress(), State: StateRunning}, false)
}

func (e *Engine) finish(s State, st device.Status, err error) {
	e.mu.Lock()
	e.state = s
	e.status = st
	e.err = err
	prog := e.progress()
	e.mu.Unlock()
	if err != nil {
		e.log.Info("run failed", "state", s, "err", err)
	} else {
		e.log.Debug("run finished", "state", s, "progress", prog)
	}
	e.send(Event{Kind: EventDone, Progress: prog, State: s, Err: err}, true)
}

// send never blocks.  A must event displaces the oldest queued one when the
// channel is full.
func (e *Engine) send(ev Event, must bool) {
	select {
	case e.events <- ev:
		return
	default:
	}
	if !must {
		return
	}
	select {
	case <-e.events:
	default:
	}
	select {
	case e.events <- ev:
	default:
		e.log.Warn("dropped completion event", "state", ev.State)
	}
}
