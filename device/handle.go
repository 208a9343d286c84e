package device

import (
	"errors"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/cenkalti/backoff"
)

// Handle is an open session with one scanner.  Option indices run from 0 to
// NumOptions()-1 in the order the device reports them.
//
// Read fills p with image data of the current frame.  The returned error is
// nil while more data follows, StatusEOF at the end of the frame and any
// other Status on failure.  A device may return n > 0 together with
// StatusEOF.
type Handle interface {
	NumOptions() (int, error)
	Descriptor(index int) (Descriptor, error)
	GetValue(index int, buf []byte) error
	SetValue(index int, buf []byte) (Info, error)

	Start() error
	Parameters() (Parameters, error)
	Read(p []byte) (int, error)
	Cancel()
}

// Closer is implemented by handles that hold resources
type Closer interface {
	Close() error
}

// Opener opens a handle
type Opener func() (Handle, error)

var (
	backendsMu sync.Mutex
	backends   = map[string]Opener{}
)

// Register makes a backend available by name to OpenBackend
func Register(name string, op Opener) {
	backendsMu.Lock()
	defer backendsMu.Unlock()
	backends[name] = op
}

// Backends lists the registered backend names
func Backends() []string {
	backendsMu.Lock()
	defer backendsMu.Unlock()
	names := make([]string, 0, len(backends))
	for k := range backends {
		names = append(names, k)
	}
	sort.Strings(names)
	return names
}

// OpenBackend opens the named backend with Open
func OpenBackend(name string) (Handle, error) {
	backendsMu.Lock()
	op, ok := backends[name]
	backendsMu.Unlock()
	if !ok {
		return nil, fmt.Errorf("no backend named %q, have %v", name, Backends())
	}
	return Open(op)
}

// RetryPolicy is the backoff used by Open while the device reports busy
var RetryPolicy = func() backoff.BackOff {
	return &backoff.ExponentialBackOff{
		InitialInterval:     25 * time.Millisecond,
		RandomizationFactor: 0.,
		Multiplier:          2.,
		MaxInterval:         1 * time.Second,
		MaxElapsedTime:      3 * time.Second,
		Clock:               backoff.SystemClock}
}

// Open calls op, retrying with exponential backoff while it fails with
// StatusDeviceBusy.  Any other failure is returned immediately.
func Open(op Opener) (Handle, error) {
	var h Handle
	log := Logger("device")
	attempt := func() error {
		var err error
		h, err = op()
		if err == nil {
			return nil
		}
		if errors.Is(err, StatusDeviceBusy) {
			log.Debug("device busy, retrying open")
			return err
		}
		return backoff.Permanent(err)
	}
	b := RetryPolicy()
	b.Reset()
	if err := backoff.Retry(attempt, b); err != nil {
		var perm *backoff.PermanentError
		if errors.As(err, &perm) {
			err = perm.Err
		}
		return nil, Wrap("open", err)
	}
	return h, nil
}
