package option_test

import (
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"
	"github.com/nasa-jpl/goscan/device"
	"github.com/nasa-jpl/goscan/option"
	"github.com/nasa-jpl/goscan/word"
)

func build(t *testing.T, m *device.Mock) *option.Registry {
	t.Helper()
	r, err := option.Build(m)
	if err != nil {
		t.Fatal(err)
	}
	r.PendingDelay = 0
	return r
}

func lookup(t *testing.T, r *option.Registry, name string) option.Option {
	t.Helper()
	o := r.Lookup(name)
	if o == nil {
		t.Fatalf("no option %s", name)
	}
	return o
}

func TestBuildKeepsDeviceOrder(t *testing.T) {
	r := build(t, device.NewMock())
	var names []string
	for _, o := range r.Options() {
		names = append(names, o.Name())
	}
	exp := []string{"mode", "source", "depth", "resolution", "preview", "tl-x", "tl-y", "br-x", "br-y",
		"brightness", "contrast", "threshold", "gamma-table", "calibration", "calibrate", "wait-for-button",
		"button", "speed"}
	if diff := cmp.Diff(exp, names); diff != "" {
		t.Errorf("option order mismatch (-want +got):\n%s", diff)
	}
	if diff := cmp.Diff([]string{"lamp-profile"}, r.Skipped()); diff != "" {
		t.Errorf("skipped mismatch (-want +got):\n%s", diff)
	}
	if k := lookup(t, r, "gamma-table").Kind(); k != option.KindGamma {
		t.Errorf("expected gamma got %v", k)
	}
}

func TestRoleLookup(t *testing.T) {
	r := build(t, device.NewMock())
	if o := r.Role(option.RoleResolution); o == nil || o.Name() != "resolution" {
		t.Errorf("expected the resolution option, got %v", o)
	}
	if o := r.Role(option.RoleYResolution); o != nil {
		t.Errorf("expected no y resolution, got %v", o.Name())
	}
	if o := r.Role(option.RoleBottomRightX); o == nil || o.Kind() != option.KindDouble {
		t.Error("expected br-x to be a double")
	}
}

func TestResolutionRoleFallsBackToX(t *testing.T) {
	m := &device.Mock{}
	m.AddOption(&device.MockOption{
		Desc: device.Descriptor{Name: "x-resolution", Type: device.TypeInt, Size: 4,
			Cap: device.CapSoftDetect | device.CapSoftSelect}, Value: word.Encode(300)})
	r := build(t, m)
	if o := r.Role(option.RoleResolution); o == nil || o.Name() != "x-resolution" {
		t.Errorf("expected x-resolution to fill the resolution role, got %v", o)
	}
}

func TestStates(t *testing.T) {
	r := build(t, device.NewMock())
	cases := map[string]option.State{
		"mode":      option.StateShown,
		"threshold": option.StateHidden,
		"button":    option.StateDisabled,
		"speed":     option.StateHidden,
		"calibrate": option.StateShown,
	}
	for name, exp := range cases {
		if s := lookup(t, r, name).State(); s != exp {
			t.Errorf("%s: expected %v got %v", name, exp, s)
		}
	}
}

func TestReloadCascadeFullRefreshOnce(t *testing.T) {
	m := device.NewMock()
	r := build(t, m)
	before := m.Stats()
	if err := lookup(t, r, "mode").SetValue("Lineart"); err != nil {
		t.Fatal(err)
	}
	after := m.Stats()
	if got := after.DescriptorReads - before.DescriptorReads; got != len(r.Options()) {
		t.Errorf("expected %d descriptor reads got %d", len(r.Options()), got)
	}
	if r.PendingReload() {
		t.Error("a full refresh should leave no pending value reload")
	}
	if s := lookup(t, r, "threshold").State(); s != option.StateShown {
		t.Errorf("threshold should be shown after the refresh, got %v", s)
	}
	if s := lookup(t, r, "depth").State(); s != option.StateHidden {
		t.Errorf("depth should be hidden in lineart, got %v", s)
	}
}

func TestParamsReloadIsPendingUntilFlushed(t *testing.T) {
	m := device.NewMock()
	r := build(t, m)
	before := m.Stats()
	if err := lookup(t, r, "resolution").SetValue(300); err != nil {
		t.Fatal(err)
	}
	if !r.PendingReload() {
		t.Fatal("expected a pending value reload")
	}
	mid := m.Stats()
	if mid.DescriptorReads != before.DescriptorReads {
		t.Error("a params reload must not refetch descriptors")
	}
	if err := r.FlushPendingReload(); err != nil {
		t.Fatal(err)
	}
	if r.PendingReload() {
		t.Error("expected flush to clear the pending reload")
	}
	if m.Stats().ValueReads <= mid.ValueReads {
		t.Error("expected flush to reread values")
	}
}

func TestPendingReloadFiresOnItsOwn(t *testing.T) {
	r := build(t, device.NewMock())
	r.PendingDelay = time.Millisecond
	if err := lookup(t, r, "depth").SetValue(16); err != nil {
		t.Fatal(err)
	}
	deadline := time.Now().Add(time.Second)
	for r.PendingReload() {
		if time.Now().After(deadline) {
			t.Fatal("pending reload never ran")
		}
		time.Sleep(time.Millisecond)
	}
}

func TestValueListClosest(t *testing.T) {
	m := &device.Mock{}
	m.AddOption(&device.MockOption{
		Desc: device.Descriptor{Name: "steps", Type: device.TypeInt, Size: 4,
			Cap:        device.CapSoftDetect | device.CapSoftSelect,
			Constraint: device.Constraint{Type: device.ConstraintWordList, Words: []int32{10, 20, 30}}},
		Value: word.Encode(10)})
	r := build(t, m)
	o := lookup(t, r, "steps").(*option.ValueList)
	cases := []struct {
		in    interface{}
		exp   int
		exact bool
	}{
		{24, 20, false},
		{21, 20, false},
		{20.5, 20, true},
		{25, 20, false},
		{"30", 30, true},
		{2, 10, false},
	}
	for _, c := range cases {
		err := o.SetValue(c.in)
		if c.exact && err != nil {
			t.Errorf("%v: unexpected error %v", c.in, err)
		}
		if !c.exact && !errors.Is(err, option.ErrNoExactEntry) {
			t.Errorf("%v: expected ErrNoExactEntry got %v", c.in, err)
		}
		if v := o.Value(); v != c.exp {
			t.Errorf("%v: expected %d got %v", c.in, c.exp, v)
		}
	}
	if o.Minimum() != 10 || o.Maximum() != 30 {
		t.Errorf("expected bounds 10..30 got %v..%v", o.Minimum(), o.Maximum())
	}
}

func TestValueListStrings(t *testing.T) {
	r := build(t, device.NewMock())
	r.Localize = strings.ToUpper
	o := lookup(t, r, "mode")
	if err := o.SetValue("GRAY"); err != nil {
		t.Fatal(err)
	}
	if v := o.Value(); v != "Gray" {
		t.Errorf("expected Gray got %v", v)
	}
	if err := o.SetValue("Sepia"); !errors.Is(err, device.ErrConstraintRejected) {
		t.Errorf("expected rejection got %v", err)
	}
}

func TestStringTruncates(t *testing.T) {
	r := build(t, device.NewMock())
	var got []interface{}
	r.Subscribe(func(ev option.Event) {
		if ev.Kind == option.ValueChanged && ev.Option.Name() == "calibration" {
			got = append(got, ev.Value)
		}
	})
	o := lookup(t, r, "calibration")
	if err := o.SetValue("abcdefghijklmnopqrstuvwxyz"); err != nil {
		t.Fatal(err)
	}
	if v := o.Value(); v != "abcdefghijklmno" {
		t.Errorf("expected truncation to 15 bytes, got %q", v)
	}
	if diff := cmp.Diff([]interface{}{"abcdefghijklmno"}, got); diff != "" {
		t.Errorf("notification mismatch (-want +got):\n%s", diff)
	}
}

func TestDoubleSuppressesSubStepChanges(t *testing.T) {
	m := device.NewMock()
	r := build(t, m)
	tlx := lookup(t, r, "tl-x")
	before := m.Stats().Writes
	if err := tlx.SetValue(0.000001); err != nil {
		t.Fatal(err)
	}
	if m.Stats().Writes != before {
		t.Error("a change below one fixed-point step should not be written")
	}
	if err := r.Lookup("mode").SetValue("Lineart"); err != nil {
		t.Fatal(err)
	}
	thr := lookup(t, r, "threshold")
	before = m.Stats().Writes
	if err := thr.SetValue(50.4); err != nil {
		t.Fatal(err)
	}
	if m.Stats().Writes != before {
		t.Error("a change below the quantum should not be written")
	}
	if err := thr.SetValue(52.6); err != nil {
		t.Fatal(err)
	}
	if v := thr.Value(); v != 53.0 {
		t.Errorf("expected the inexact write to be reread as 53, got %v", v)
	}
}

func TestDoubleBoundsFallback(t *testing.T) {
	m := &device.Mock{}
	m.AddOption(&device.MockOption{
		Desc:  device.Descriptor{Name: "gain", Type: device.TypeFixed, Size: 4, Cap: device.CapSoftDetect | device.CapSoftSelect},
		Value: word.Encode(0)})
	r := build(t, m)
	o := lookup(t, r, "gain")
	if o.Minimum() != option.DoubleMin || o.Maximum() != option.DoubleMax || o.Step() != option.DoubleStep {
		t.Errorf("unexpected bounds %v %v %v", o.Minimum(), o.Maximum(), o.Step())
	}
	b := lookup(t, build(t, device.NewMock()), "brightness")
	if b.Minimum() != -100 || b.Maximum() != 100 || b.Step() != 1 {
		t.Errorf("unexpected bounds %v %v %v", b.Minimum(), b.Maximum(), b.Step())
	}
}

func TestRejectedWritesNeverReachDevice(t *testing.T) {
	m := device.NewMock()
	r := build(t, m)
	before := m.Stats().Writes
	if err := lookup(t, r, "threshold").SetValue(10); !errors.Is(err, device.ErrConstraintRejected) {
		t.Errorf("hidden: expected rejection got %v", err)
	}
	if err := lookup(t, r, "button").SetValue(true); !errors.Is(err, device.ErrConstraintRejected) {
		t.Errorf("disabled: expected rejection got %v", err)
	}
	if err := lookup(t, r, "preview").SetValue(struct{}{}); !errors.Is(err, device.ErrConstraintRejected) {
		t.Errorf("coercion: expected rejection got %v", err)
	}
	if m.Stats().Writes != before {
		t.Error("rejected writes reached the device")
	}
}

func TestDeviceErrorResyncs(t *testing.T) {
	m := device.NewMock()
	m.Option("brightness").SetErr = device.StatusIOError
	r := build(t, m)
	o := lookup(t, r, "brightness")
	before := m.Stats().ValueReads
	err := o.SetValue(5)
	if !errors.Is(err, device.ErrDevice) || !errors.Is(err, device.StatusIOError) {
		t.Errorf("expected an I/O device error got %v", err)
	}
	if m.Stats().ValueReads != before+1 {
		t.Error("expected a resynchronizing read")
	}
	if v := o.Value(); v != 0 {
		t.Errorf("expected the cached value to stay 0, got %v", v)
	}
}

func TestStoreRestore(t *testing.T) {
	r := build(t, device.NewMock())
	res := lookup(t, r, "resolution")
	if err := res.RestoreSaved(); !errors.Is(err, option.ErrNothingStored) {
		t.Errorf("expected ErrNothingStored got %v", err)
	}
	if err := res.StoreCurrent(); err != nil {
		t.Fatal(err)
	}
	if err := res.SetValue(600); err != nil {
		t.Fatal(err)
	}
	if err := res.RestoreSaved(); err != nil {
		t.Fatal(err)
	}
	if v := res.Value(); v != 75 {
		t.Errorf("expected 75 got %v", v)
	}
	if err := lookup(t, r, "threshold").StoreCurrent(); !errors.Is(err, device.ErrConstraintRejected) {
		t.Errorf("expected storing a hidden option to fail, got %v", err)
	}
}

func TestPoll(t *testing.T) {
	m := device.NewMock()
	r := build(t, m)
	polled := r.PollOptions()
	if len(polled) != 1 || polled[0].Name() != "button" {
		t.Fatalf("expected only the button to be polled, got %d options", len(polled))
	}
	var got []interface{}
	r.Subscribe(func(ev option.Event) {
		if ev.Kind == option.ValueChanged {
			got = append(got, ev.Value)
		}
	})
	m.SetSensed("button", word.Encode(1))
	if err := r.Poll(); err != nil {
		t.Fatal(err)
	}
	if diff := cmp.Diff([]interface{}{true}, got); diff != "" {
		t.Errorf("poll events mismatch (-want +got):\n%s", diff)
	}
}

func TestGammaAndAction(t *testing.T) {
	m := device.NewMock()
	r := build(t, m)
	g := lookup(t, r, "gamma-table")
	if err := g.SetValue("100:0:100"); err != nil {
		t.Fatal(err)
	}
	table := g.Value().([]int)
	if len(table) != 256 || table[0] != 128 {
		t.Errorf("unexpected table start %v", table[:2])
	}
	if err := g.SetValue([]int{1, 2, 3}); !errors.Is(err, device.ErrConstraintRejected) {
		t.Errorf("expected a short table to be rejected, got %v", err)
	}
	before := m.Stats().Writes
	if err := lookup(t, r, "calibrate").(*option.Action).Press(); err != nil {
		t.Fatal(err)
	}
	if m.Stats().Writes != before+1 {
		t.Error("expected the button press to reach the device")
	}
}

func TestClear(t *testing.T) {
	r := build(t, device.NewMock())
	o := lookup(t, r, "preview")
	r.Clear()
	if err := o.SetValue(true); !errors.Is(err, option.ErrClosed) {
		t.Errorf("expected ErrClosed got %v", err)
	}
	if len(r.Options()) != 0 {
		t.Error("expected no options after Clear")
	}
}
