package option_test

import (
	"errors"
	"testing"

	"github.com/nasa-jpl/goscan/device"
	"github.com/nasa-jpl/goscan/option"
)

func TestClassify(t *testing.T) {
	rng := device.Constraint{Type: device.ConstraintRange, Range: device.Range{Min: 0, Max: 10}}
	words := device.Constraint{Type: device.ConstraintWordList, Words: []int32{1, 2}}
	strs := device.Constraint{Type: device.ConstraintStringList, Strings: []string{"a"}}
	cases := []struct {
		name string
		desc device.Descriptor
		kind option.Kind
	}{
		{"bool", device.Descriptor{Type: device.TypeBool, Size: 4}, option.KindBool},
		{"int", device.Descriptor{Type: device.TypeInt, Size: 4}, option.KindInteger},
		{"fixed", device.Descriptor{Type: device.TypeFixed, Size: 4}, option.KindDouble},
		{"button", device.Descriptor{Type: device.TypeButton}, option.KindAction},
		{"string", device.Descriptor{Type: device.TypeString, Size: 8}, option.KindString},
		{"group", device.Descriptor{Type: device.TypeGroup}, option.KindUnknown},
		{"int array", device.Descriptor{Type: device.TypeInt, Size: 16}, option.KindUnknown},
		{"range bool", device.Descriptor{Type: device.TypeBool, Size: 4, Constraint: rng}, option.KindBool},
		{"range int", device.Descriptor{Type: device.TypeInt, Size: 4, Constraint: rng}, option.KindInteger},
		{"range gamma", device.Descriptor{Name: "red-gamma-table", Type: device.TypeInt, Size: 1024, Constraint: rng}, option.KindGamma},
		{"range int array", device.Descriptor{Name: "shading", Type: device.TypeInt, Size: 1024, Constraint: rng}, option.KindUnknown},
		{"range fixed", device.Descriptor{Type: device.TypeFixed, Size: 4, Constraint: rng}, option.KindDouble},
		{"range fixed array", device.Descriptor{Type: device.TypeFixed, Size: 8, Constraint: rng}, option.KindUnknown},
		{"range button", device.Descriptor{Type: device.TypeButton, Constraint: rng}, option.KindAction},
		{"range string", device.Descriptor{Type: device.TypeString, Size: 8, Constraint: rng}, option.KindUnknown},
		{"range group", device.Descriptor{Type: device.TypeGroup, Constraint: rng}, option.KindUnknown},
		{"word list", device.Descriptor{Type: device.TypeInt, Size: 4, Constraint: words}, option.KindValueList},
		{"fixed list", device.Descriptor{Type: device.TypeFixed, Size: 4, Constraint: words}, option.KindValueList},
		{"string list", device.Descriptor{Type: device.TypeString, Size: 8, Constraint: strs}, option.KindValueList},
	}
	for _, c := range cases {
		t.Run(c.name, func(t *testing.T) {
			k, err := option.Classify(c.desc)
			if k != c.kind {
				t.Errorf("expected %v got %v", c.kind, k)
			}
			if (k == option.KindUnknown) != errors.Is(err, device.ErrDetectionFailure) {
				t.Errorf("unexpected error %v for kind %v", err, k)
			}
		})
	}
}

func TestStateOf(t *testing.T) {
	rw := device.CapSoftSelect | device.CapSoftDetect
	cases := []struct {
		name string
		desc device.Descriptor
		kind option.Kind
		exp  option.State
	}{
		{"no soft detect", device.Descriptor{Type: device.TypeInt, Size: 4, Cap: device.CapSoftSelect}, option.KindInteger, option.StateHidden},
		{"zero size", device.Descriptor{Type: device.TypeInt, Size: 0, Cap: rw}, option.KindInteger, option.StateHidden},
		{"zero size button", device.Descriptor{Type: device.TypeButton, Size: 0, Cap: rw}, option.KindAction, option.StateShown},
		{"inactive", device.Descriptor{Type: device.TypeInt, Size: 4, Cap: rw | device.CapInactive}, option.KindInteger, option.StateHidden},
		{"read only", device.Descriptor{Type: device.TypeInt, Size: 4, Cap: device.CapSoftDetect}, option.KindInteger, option.StateDisabled},
		{"shown", device.Descriptor{Type: device.TypeInt, Size: 4, Cap: rw}, option.KindInteger, option.StateShown},
		{"single entry list", device.Descriptor{Type: device.TypeInt, Size: 4, Cap: rw,
			Constraint: device.Constraint{Type: device.ConstraintWordList, Words: []int32{300}}}, option.KindValueList, option.StateHidden},
		{"two entry list", device.Descriptor{Type: device.TypeInt, Size: 4, Cap: rw,
			Constraint: device.Constraint{Type: device.ConstraintWordList, Words: []int32{300, 600}}}, option.KindValueList, option.StateShown},
	}
	for _, c := range cases {
		if s := option.StateOf(c.desc, c.kind); s != c.exp {
			t.Errorf("%s: expected %v got %v", c.name, c.exp, s)
		}
	}
}

func TestNeedsPolling(t *testing.T) {
	if !option.NeedsPolling(device.Descriptor{Cap: device.CapSoftDetect}) {
		t.Error("a detect-only option should be polled")
	}
	if option.NeedsPolling(device.Descriptor{Cap: device.CapSoftDetect | device.CapSoftSelect}) {
		t.Error("a settable option should not be polled")
	}
}

func TestGammaCurve(t *testing.T) {
	lin := option.GammaCurve(option.GammaParams{Gamma: 1}, 256, 255)
	for i, v := range lin {
		if int(v) != i {
			t.Fatalf("expected identity, entry %d is %d", i, v)
		}
	}
	bright := option.GammaCurve(option.GammaParams{Brightness: 100, Gamma: 1}, 256, 255)
	if bright[0] != 128 || bright[255] != 255 {
		t.Errorf("expected 128..255 got %d..%d", bright[0], bright[255])
	}
	p, err := option.ParseGammaParams("10:-20:180")
	if err != nil {
		t.Fatal(err)
	}
	if p.Brightness != 10 || p.Contrast != -20 || p.Gamma != 1.8 {
		t.Errorf("unexpected params %+v", p)
	}
	if _, err := option.ParseGammaParams("1:2"); err == nil {
		t.Error("expected a malformed string to fail")
	}
}
