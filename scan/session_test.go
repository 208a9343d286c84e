package scan_test

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/nasa-jpl/goscan/acquire"
	"github.com/nasa-jpl/goscan/device"
	"github.com/nasa-jpl/goscan/scan"
	"github.com/nasa-jpl/goscan/word"
)

func open(t *testing.T, h device.Handle) *scan.Session {
	t.Helper()
	s, err := scan.Open(h)
	require.NoError(t, err)
	s.Registry().PendingDelay = 0
	return s
}

func value(t *testing.T, s *scan.Session, name string) interface{} {
	t.Helper()
	o, err := s.Option(name)
	require.NoError(t, err)
	return o.Value()
}

func TestPreviewRestoresOptions(t *testing.T) {
	m := device.NewMock()
	s := open(t, m)
	require.NoError(t, s.SetOption("mode", "Gray"))
	require.NoError(t, s.SetOption("resolution", 300))
	require.NoError(t, s.SetOption("br-x", 100.0))

	res, err := s.Preview(context.Background(), scan.PreviewConfig{})
	require.NoError(t, err)
	assert.True(t, res.Preview)
	// full width at the lowest resolution
	assert.Equal(t, 637, res.Params.PixelsPerLine)
	assert.Equal(t, res.Params.DataSize(), len(res.Data))

	assert.Equal(t, 300, value(t, s, "resolution"))
	assert.InDelta(t, 100.0, value(t, s, "br-x"), word.FixedStep)
	assert.Equal(t, false, value(t, s, "preview"))
	assert.Equal(t, word.RealToFixed(100), word.Decode(m.Option("br-x").Value))
	assert.False(t, s.Running())
	assert.GreaterOrEqual(t, m.Stats().Cancels, 1)
}

func TestPreviewSearchesResolution(t *testing.T) {
	s := open(t, device.NewMock())
	require.NoError(t, s.SetOption("mode", "Gray"))
	res, err := s.Preview(context.Background(), scan.PreviewConfig{MinPixels: 1000})
	require.NoError(t, err)
	assert.Equal(t, 1274, res.Params.PixelsPerLine)
	assert.Equal(t, 75, value(t, s, "resolution"))
}

func TestPreviewFixedResolution(t *testing.T) {
	s := open(t, device.NewMock())
	require.NoError(t, s.SetOption("mode", "Lineart"))
	res, err := s.Preview(context.Background(), scan.PreviewConfig{DPI: 100})
	require.NoError(t, err)
	assert.Equal(t, 849, res.Params.PixelsPerLine)
	assert.Equal(t, 1, res.Params.Depth)
	img, err := res.Image()
	require.NoError(t, err)
	assert.Equal(t, 849, img.Bounds().Dx())
}

func TestScanSinglePage(t *testing.T) {
	m := device.NewMock()
	s := open(t, m)
	require.NoError(t, s.SetOption("br-x", 30.0))
	require.NoError(t, s.SetOption("br-y", 30.0))

	var pages []*scan.Result
	err := s.Scan(context.Background(), func(r *scan.Result) error {
		pages = append(pages, r)
		return nil
	})
	require.NoError(t, err)
	require.Len(t, pages, 1)
	p := pages[0]
	assert.Equal(t, 1, p.Page)
	assert.False(t, p.Preview)
	assert.Equal(t, device.FrameRGB, p.Params.Format)
	assert.Equal(t, 88, p.Params.PixelsPerLine)
	assert.Len(t, p.Data, 88*88*3)
	assert.False(t, s.Running())
	assert.Equal(t, 1, m.Stats().Starts)
}

func TestScanFeeder(t *testing.T) {
	m := device.NewMock()
	m.ADFPages = 3
	s := open(t, m)
	require.NoError(t, s.SetOption("source", "Automatic Document Feeder"))
	require.NoError(t, s.SetOption("br-y", 10.0))
	assert.True(t, s.Batch())

	var pages []*scan.Result
	err := s.Scan(context.Background(), func(r *scan.Result) error {
		pages = append(pages, r)
		return nil
	})
	require.NoError(t, err)
	require.Len(t, pages, 3)
	for i, p := range pages {
		assert.Equal(t, i+1, p.Page)
		assert.Equal(t, pages[0].ID, p.ID)
	}
}

func TestScanEmptyFeeder(t *testing.T) {
	s := open(t, device.NewMock())
	require.NoError(t, s.SetOption("source", "Automatic Document Feeder"))
	called := false
	err := s.Scan(context.Background(), func(*scan.Result) error {
		called = true
		return nil
	})
	assert.ErrorIs(t, err, scan.ErrNoDocuments)
	assert.False(t, called)
}

func TestScanWaitForButtonStops(t *testing.T) {
	s := open(t, device.NewMock())
	require.NoError(t, s.SetOption("wait-for-button", true))
	require.NoError(t, s.SetOption("br-y", 5.0))
	n := 0
	err := s.Scan(context.Background(), func(*scan.Result) error {
		n++
		if n == 2 {
			return scan.ErrStopBatch
		}
		return nil
	})
	require.NoError(t, err)
	assert.Equal(t, 2, n)
}

func TestScanCallbackError(t *testing.T) {
	s := open(t, device.NewMock())
	require.NoError(t, s.SetOption("br-y", 5.0))
	boom := errors.New("disk full")
	err := s.Scan(context.Background(), func(*scan.Result) error { return boom })
	assert.ErrorIs(t, err, boom)
	assert.False(t, s.Running())
}

func TestScanDeviceError(t *testing.T) {
	m := device.NewMock()
	m.StartErr = device.StatusJammed
	s := open(t, m)
	err := s.Scan(context.Background(), func(*scan.Result) error { return nil })
	require.Error(t, err)
	assert.Equal(t, device.StatusJammed, device.StatusOf(err))
	assert.ErrorIs(t, err, device.ErrDevice)
}

func TestSetOptionWhileRunning(t *testing.T) {
	s := open(t, device.NewMock())
	require.NoError(t, s.SetOption("br-y", 5.0))
	err := s.Scan(context.Background(), func(*scan.Result) error {
		assert.ErrorIs(t, s.SetOption("brightness", 10), scan.ErrBusy)
		_, err := s.Preview(context.Background(), scan.PreviewConfig{})
		assert.ErrorIs(t, err, scan.ErrBusy)
		return nil
	})
	require.NoError(t, err)
	require.NoError(t, s.SetOption("brightness", 10))
	assert.Equal(t, 10, value(t, s, "brightness"))
}

func TestUnknownOption(t *testing.T) {
	s := open(t, device.NewMock())
	assert.ErrorIs(t, s.SetOption("lamp-profile", 1), scan.ErrUnknownOption)
}

// stalled never delivers data; its reads end only when the device is cancelled
type stalled struct {
	*device.Mock
	once sync.Once
	stop chan struct{}
}

func newStalled() *stalled {
	return &stalled{Mock: device.NewMock(), stop: make(chan struct{})}
}

func (h *stalled) Read(p []byte) (int, error) {
	<-h.stop
	return 0, device.StatusCancelled
}

func (h *stalled) Cancel() {
	h.once.Do(func() { close(h.stop) })
	h.Mock.Cancel()
}

func TestCancelDuringScan(t *testing.T) {
	h := newStalled()
	s := open(t, h)
	errc := make(chan error, 1)
	called := false
	go func() {
		errc <- s.Scan(context.Background(), func(*scan.Result) error {
			called = true
			return nil
		})
	}()
	require.Eventually(t, func() bool {
		return s.Running() && s.Engine().StartDone()
	}, time.Second, time.Millisecond)
	s.Cancel()
	require.NoError(t, <-errc)
	assert.False(t, called)
	assert.Equal(t, acquire.StateCancelled, s.Engine().State())
}

func TestContextEndsScan(t *testing.T) {
	h := newStalled()
	s := open(t, h)
	ctx, cancel := context.WithCancel(context.Background())
	errc := make(chan error, 1)
	go func() {
		errc <- s.Scan(ctx, func(*scan.Result) error { return nil })
	}()
	require.Eventually(t, func() bool { return s.Engine().StartDone() }, time.Second, time.Millisecond)
	cancel()
	assert.ErrorIs(t, <-errc, context.Canceled)
	assert.False(t, s.Running())
}

func TestStatusError(t *testing.T) {
	for _, st := range []device.Status{device.StatusGood, device.StatusCancelled, device.StatusEOF} {
		assert.NoError(t, scan.StatusError(st, errors.New("ignored")), st.String())
	}
	assert.ErrorIs(t, scan.StatusError(device.StatusNoDocs, nil), scan.ErrNoDocuments)
	err := scan.StatusError(device.StatusCoverOpen, nil)
	assert.Equal(t, device.StatusCoverOpen, device.StatusOf(err))
}

type recorder struct {
	mu     sync.Mutex
	events []scan.Event
}

func (r *recorder) Publish(ev scan.Event) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, ev)
	return nil
}

func (r *recorder) types() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []string
	for _, ev := range r.events {
		if ev.Type != scan.EventProgress {
			out = append(out, ev.Type)
		}
	}
	return out
}

func TestEventsPublished(t *testing.T) {
	s := open(t, device.NewMock())
	rec := &recorder{}
	s.SetPublisher(rec)
	require.NoError(t, s.SetOption("brightness", 20))
	require.NoError(t, s.SetOption("br-y", 5.0))
	require.NoError(t, s.Scan(context.Background(), func(*scan.Result) error { return nil }))

	types := rec.types()
	require.GreaterOrEqual(t, len(types), 4)
	assert.Equal(t, scan.EventOption, types[0])
	assert.Equal(t, []string{scan.EventStarted, scan.EventFinished}, types[len(types)-2:])

	rec.mu.Lock()
	defer rec.mu.Unlock()
	first := rec.events[0]
	assert.Equal(t, "brightness", first.Option)
	assert.Equal(t, 20, first.Value)
	last := rec.events[len(rec.events)-1]
	assert.Equal(t, "complete", last.State)
	assert.Equal(t, 100, last.Progress)
	assert.NotEqual(t, [16]byte{}, [16]byte(last.Job))
}

func TestPollerSeesButton(t *testing.T) {
	m := device.NewMock()
	s := open(t, m)
	p := s.StartPolling(context.Background(), time.Millisecond)
	defer p.Stop()
	m.SetSensed("button", word.Encode(1))
	require.Eventually(t, func() bool {
		return value(t, s, "button") == true
	}, time.Second, time.Millisecond)
}

func TestPollerStopsWithContext(t *testing.T) {
	s := open(t, device.NewMock())
	ctx, cancel := context.WithCancel(context.Background())
	p := s.StartPolling(ctx, time.Millisecond)
	cancel()
	select {
	case <-p.Done():
	case <-time.After(time.Second):
		t.Fatal("poller did not stop")
	}
}

func TestOverride(t *testing.T) {
	s := open(t, device.NewMock())
	res, _ := s.Option("resolution")
	thr, _ := s.Option("threshold")
	g := scan.NewOverride(res, thr, res)
	// threshold is inactive outside lineart
	assert.Len(t, g.Options(), 1)
	require.NoError(t, res.SetValue(600))
	require.NoError(t, g.Restore())
	assert.Equal(t, 75, res.Value())
	assert.NoError(t, g.Restore())
}
