package device

import (
	"errors"
	"fmt"
)

// Status is a device-native status code
type Status int

const (
	// StatusGood means the operation completed normally
	StatusGood Status = iota
	// StatusUnsupported means the operation is not supported
	StatusUnsupported
	// StatusCancelled means the operation was cancelled
	StatusCancelled
	// StatusDeviceBusy means the device is busy, retry later
	StatusDeviceBusy
	// StatusInval means the data or argument is invalid
	StatusInval
	// StatusEOF means there is no more data available (end of frame)
	StatusEOF
	// StatusJammed means the document feeder is jammed
	StatusJammed
	// StatusNoDocs means the document feeder is out of documents
	StatusNoDocs
	// StatusCoverOpen means the scanner cover is open
	StatusCoverOpen
	// StatusIOError means an error occurred during device I/O
	StatusIOError
	// StatusNoMem means the device ran out of memory
	StatusNoMem
	// StatusAccessDenied means access to the resource was denied
	StatusAccessDenied
)

// StatusStrings maps status codes to their human readable text
var StatusStrings = map[Status]string{
	StatusGood:         "Success",
	StatusUnsupported:  "Operation not supported",
	StatusCancelled:    "Operation was cancelled",
	StatusDeviceBusy:   "Device busy",
	StatusInval:        "Invalid argument",
	StatusEOF:          "End of file reached",
	StatusJammed:       "Document feeder jammed",
	StatusNoDocs:       "Document feeder out of documents",
	StatusCoverOpen:    "Scanner cover is open",
	StatusIOError:      "Error during device I/O",
	StatusNoMem:        "Out of memory",
	StatusAccessDenied: "Access to resource has been denied",
}

func (s Status) String() string {
	if str, ok := StatusStrings[s]; ok {
		return str
	}
	return fmt.Sprintf("unknown status %d", int(s))
}

// Error satisfies the error interface.  A Status is only ever used as an
// error when it is not StatusGood; see Err.
func (s Status) Error() string {
	return s.String()
}

// Err returns nil for StatusGood and s otherwise
func Err(s Status) error {
	if s == StatusGood {
		return nil
	}
	return s
}

// StatusOf extracts the device status carried by err.  nil is StatusGood and
// an error that carries no status is StatusIOError.
func StatusOf(err error) Status {
	if err == nil {
		return StatusGood
	}
	var s Status
	if errors.As(err, &s) {
		return s
	}
	return StatusIOError
}

var (
	// ErrDevice is matched by every error the device or transport reported
	ErrDevice = errors.New("device error")

	// ErrUnsupportedFormat is returned when a frame format and depth cannot be assembled
	ErrUnsupportedFormat = errors.New("unsupported frame format")

	// ErrProtocolNonCompliance marks a device that broke the end-of-frame byte count contract.
	// It is recovered from locally and never returned by an operation.
	ErrProtocolNonCompliance = errors.New("device is not protocol compliant")

	// ErrConstraintRejected is returned when a write is refused before reaching the device
	ErrConstraintRejected = errors.New("value rejected")

	// ErrDetectionFailure is returned when a descriptor fits no option kind
	ErrDetectionFailure = errors.New("option type detection failed")
)

// Error is a failure reported by the device, with the operation that failed
type Error struct {
	Op     string
	Status Status
}

// NewError returns nil for StatusGood and an *Error otherwise
func NewError(op string, s Status) error {
	if s == StatusGood {
		return nil
	}
	return &Error{Op: op, Status: s}
}

// Wrap converts an error returned by a Handle into an *Error tagged with op
func Wrap(op string, err error) error {
	if err == nil {
		return nil
	}
	var de *Error
	if errors.As(err, &de) {
		return &Error{Op: op, Status: de.Status}
	}
	return &Error{Op: op, Status: StatusOf(err)}
}

func (e *Error) Error() string {
	return fmt.Sprintf("%s: %s", e.Op, e.Status)
}

// Is makes errors.Is(err, ErrDevice) true for every *Error
func (e *Error) Is(target error) bool {
	return target == ErrDevice
}

// Unwrap exposes the status so errors.Is(err, StatusNoDocs) works
func (e *Error) Unwrap() error {
	return e.Status
}
