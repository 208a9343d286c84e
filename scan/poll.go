package scan

import (
	"context"
	"time"
)

// Poller rereads the device-sensed options of a session on an interval
type Poller struct {
	cancel context.CancelFunc
	done   chan struct{}
}

// StartPolling rereads the options that need polling every interval until
// ctx is done or Stop is called.  Ticks that land while a scan runs are
// skipped.  A session without such options gets a poller that only waits.
func (s *Session) StartPolling(ctx context.Context, interval time.Duration) *Poller {
	ctx, cancel := context.WithCancel(ctx)
	p := &Poller{cancel: cancel, done: make(chan struct{})}
	go func() {
		defer close(p.done)
		if len(s.reg.PollOptions()) == 0 {
			<-ctx.Done()
			return
		}
		ticker := time.NewTicker(interval)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				s.pollOnce()
			}
		}
	}()
	return p
}

func (s *Session) pollOnce() {
	s.opMu.Lock()
	defer s.opMu.Unlock()
	if s.running.Load() {
		return
	}
	if err := s.reg.Poll(); err != nil {
		s.log.Debug("poll", "err", err)
	}
}

// Stop ends polling and waits for the poll goroutine to exit
func (p *Poller) Stop() {
	p.cancel()
	<-p.done
}

// Done is closed when the poller exits
func (p *Poller) Done() <-chan struct{} { return p.done }
