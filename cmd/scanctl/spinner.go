package main

import (
	"fmt"
	"io"
	"time"

	"github.com/theckman/yacspin"

	"github.com/nasa-jpl/goscan/scan"
)

// spinner shows scan progress on a terminal
type spinner struct {
	sp *yacspin.Spinner
}

func newSpinner(w io.Writer) (*spinner, error) {
	cfg := yacspin.Config{
		Writer:            w,
		Frequency:         100 * time.Millisecond,
		CharSet:           yacspin.CharSets[14],
		Suffix:            " scanning",
		SuffixAutoColon:   true,
		StopCharacter:     "✓",
		StopColors:        []string{"fgGreen"},
		StopFailCharacter: "✗",
		StopFailColors:    []string{"fgRed"},
	}
	sp, err := yacspin.New(cfg)
	if err != nil {
		return nil, err
	}
	return &spinner{sp: sp}, nil
}

// Publish implements scan.Publisher
func (s *spinner) Publish(ev scan.Event) error {
	switch ev.Type {
	case scan.EventStarted:
		if ev.Preview {
			s.sp.Message("preview")
		} else {
			s.sp.Message(fmt.Sprintf("page %d", ev.Page))
		}
	case scan.EventProgress:
		s.sp.Message(fmt.Sprintf("page %d %3d%%", ev.Page, ev.Progress))
	case scan.EventFinished:
		s.sp.Message(fmt.Sprintf("page %d %s", ev.Page, ev.State))
	}
	return nil
}

// run spins around fn
func (s *spinner) run(fn func() error) error {
	if err := s.sp.Start(); err != nil {
		return fn()
	}
	err := fn()
	if err != nil {
		s.sp.StopFailMessage(err.Error())
		s.sp.StopFail()
		return err
	}
	s.sp.StopMessage("done")
	s.sp.Stop()
	return nil
}
