package scan

import (
	"time"

	"github.com/google/uuid"
)

// Event types
const (
	EventStarted  = "started"
	EventProgress = "progress"
	EventFinished = "finished"
	EventOption   = "option"
	EventReload   = "reload"
)

// Event is a notification about a session, shaped for serialization
type Event struct {
	Type     string      `json:"type" yaml:"type"`
	Time     time.Time   `json:"time" yaml:"time"`
	Job      uuid.UUID   `json:"job,omitempty" yaml:"job,omitempty"`
	Page     int         `json:"page,omitempty" yaml:"page,omitempty"`
	Preview  bool        `json:"preview,omitempty" yaml:"preview,omitempty"`
	Progress int         `json:"progress,omitempty" yaml:"progress,omitempty"`
	State    string      `json:"state,omitempty" yaml:"state,omitempty"`
	Err      string      `json:"err,omitempty" yaml:"err,omitempty"`
	Option   string      `json:"option,omitempty" yaml:"option,omitempty"`
	Value    interface{} `json:"value,omitempty" yaml:"value,omitempty"`
}

// Publisher receives session events.  Publish is called from the goroutine
// that produced the event and should not block for long.
type Publisher interface {
	Publish(Event) error
}

// PublisherFunc adapts a function to Publisher
type PublisherFunc func(Event) error

// Publish calls f
func (f PublisherFunc) Publish(ev Event) error { return f(ev) }

// Publishers fans events out to several publishers, returning the first error
type Publishers []Publisher

// Publish sends ev to every publisher
func (ps Publishers) Publish(ev Event) error {
	var first error
	for _, p := range ps {
		if err := p.Publish(ev); err != nil && first == nil {
			first = err
		}
	}
	return first
}
