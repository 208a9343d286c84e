package device_test

import (
	"errors"
	"fmt"
	"testing"

	"github.com/cenkalti/backoff"
	"github.com/nasa-jpl/goscan/device"
	"github.com/nasa-jpl/goscan/word"
)

func ExampleStatus_Error() {
	fmt.Println(device.StatusNoDocs)
	// Output: Document feeder out of documents
}

func TestErrIsNilOnGood(t *testing.T) {
	if err := device.Err(device.StatusGood); err != nil {
		t.Errorf("expected nil got %v", err)
	}
	if err := device.NewError("start", device.StatusGood); err != nil {
		t.Errorf("expected nil got %v", err)
	}
}

func TestErrorClassification(t *testing.T) {
	err := fmt.Errorf("scan: %w", device.NewError("read", device.StatusJammed))
	if !errors.Is(err, device.ErrDevice) {
		t.Error("expected a device error to match ErrDevice")
	}
	if !errors.Is(err, device.StatusJammed) {
		t.Error("expected the status to be reachable with errors.Is")
	}
	if s := device.StatusOf(err); s != device.StatusJammed {
		t.Errorf("expected %v got %v", device.StatusJammed, s)
	}
	if s := device.StatusOf(errors.New("boom")); s != device.StatusIOError {
		t.Errorf("expected %v got %v", device.StatusIOError, s)
	}
	if got := err.Error(); got != "scan: read: Document feeder jammed" {
		t.Errorf("unexpected message %q", got)
	}
}

func TestOpenRetriesBusy(t *testing.T) {
	defer func(old func() backoff.BackOff) { device.RetryPolicy = old }(device.RetryPolicy)
	device.RetryPolicy = func() backoff.BackOff { return &backoff.ZeroBackOff{} }
	calls := 0
	h, err := device.Open(func() (device.Handle, error) {
		calls++
		if calls < 3 {
			return nil, device.StatusDeviceBusy
		}
		return device.NewMock(), nil
	})
	if err != nil {
		t.Fatal(err)
	}
	if h == nil || calls != 3 {
		t.Errorf("expected a handle after 3 calls, got %v after %d", h, calls)
	}
}

func TestOpenDoesNotRetryOtherFailures(t *testing.T) {
	calls := 0
	_, err := device.Open(func() (device.Handle, error) {
		calls++
		return nil, device.StatusAccessDenied
	})
	if !errors.Is(err, device.StatusAccessDenied) {
		t.Errorf("expected access denied, got %v", err)
	}
	if calls != 1 {
		t.Errorf("expected 1 call got %d", calls)
	}
}

func TestOpenBackendMock(t *testing.T) {
	h, err := device.OpenBackend("mock")
	if err != nil {
		t.Fatal(err)
	}
	n, _ := h.NumOptions()
	if n == 0 {
		t.Error("expected the mock to report options")
	}
	if _, err := device.OpenBackend("nope"); err == nil {
		t.Error("expected an unknown backend to fail")
	}
}

func indexOf(t *testing.T, m *device.Mock, name string) int {
	t.Helper()
	n, _ := m.NumOptions()
	for i := 0; i < n; i++ {
		d, _ := m.Descriptor(i)
		if d.Name == name {
			return i
		}
	}
	t.Fatalf("no option %s", name)
	return -1
}

func TestMockQuantizesRange(t *testing.T) {
	m := device.NewMock()
	i := indexOf(t, m, "brightness")
	info, err := m.SetValue(i, word.Encode(500))
	if err != nil {
		t.Fatal(err)
	}
	if !info.Has(device.InfoInexact) {
		t.Error("expected a clamped write to be inexact")
	}
	buf := make([]byte, 4)
	m.GetValue(i, buf)
	if v := word.Decode(buf); v != 100 {
		t.Errorf("expected 100 got %d", v)
	}
}

func TestMockModeTogglesThreshold(t *testing.T) {
	m := device.NewMock()
	mode := indexOf(t, m, "mode")
	thr := indexOf(t, m, "threshold")
	d, _ := m.Descriptor(thr)
	if d.Active() {
		t.Fatal("threshold should start inactive")
	}
	buf := make([]byte, 32)
	copy(buf, "Lineart")
	info, err := m.SetValue(mode, buf)
	if err != nil {
		t.Fatal(err)
	}
	if !info.Has(device.InfoReloadOptions) {
		t.Error("expected a mode change to reload options")
	}
	d, _ = m.Descriptor(thr)
	if !d.Active() {
		t.Error("threshold should be active in lineart")
	}
}

func TestParametersSizes(t *testing.T) {
	p := device.Parameters{Format: device.FrameGray, Lines: 100, BytesPerLine: 300}
	if p.DataSize() != 30000 {
		t.Errorf("expected 30000 got %d", p.DataSize())
	}
	p.Format = device.FrameRGB
	if p.DataSize() != 30000 {
		t.Errorf("expected 30000 got %d", p.DataSize())
	}
	p.Format = device.FrameGreen
	if p.DataSize() != 90000 {
		t.Errorf("expected 90000 got %d", p.DataSize())
	}
}
