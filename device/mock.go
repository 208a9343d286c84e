package device

import (
	"bytes"
	"strings"
	"sync"

	"github.com/nasa-jpl/goscan/word"
)

// MockOption is one option of a Mock.  OnSet runs after a value is stored
// (or the button pressed) and may report extra info flags.  SetErr, when
// set, fails every write.
type MockOption struct {
	Desc   Descriptor
	Value  []byte
	OnSet  func(m *Mock, v []byte) Info
	SetErr Status
}

// MockFrame is one scripted frame.  Short, when positive, ends the frame
// after that many bytes.  ReadErr, when set, is returned instead of EOF once
// the data runs out.  EOFWithData delivers the last chunk together with EOF.
type MockFrame struct {
	Params      Parameters
	Data        []byte
	Short       int
	ReadErr     Status
	EOFWithData bool
}

// MockStats counts calls made on a Mock
type MockStats struct {
	DescriptorReads int
	ValueReads      int
	Writes          int
	Starts          int
	Cancels         int
}

// Mock is a simulated flatbed scanner with an optional document feeder.
// It is safe for concurrent use.
type Mock struct {
	mu   sync.Mutex
	opts []*MockOption

	// Script, when not nil, replaces the frames generated from the option values
	Script []MockFrame

	// ThreePass makes generated color scans deliver red, green and blue frames
	ThreePass bool

	// ADFPages is the number of sheets loaded in the feeder
	ADFPages int

	// StartErr is returned by every Start while set
	StartErr Status

	// ParamsErr is returned by Parameters while set
	ParamsErr Status

	// MaxRead caps the number of bytes returned by one Read
	MaxRead int

	stats  MockStats
	inPage bool
	frames []MockFrame
	frame  int
	offset int
}

// NewMock returns a Mock with a typical flatbed option table
func NewMock() *Mock {
	m := &Mock{}
	rw := CapSoftSelect | CapSoftDetect
	m.opts = []*MockOption{
		{Desc: Descriptor{Name: "", Title: "Scan mode", Type: TypeGroup}},
		{Desc: Descriptor{Name: "mode", Title: "Scan mode", Desc: "Selects the scan mode", Type: TypeString, Size: 32, Cap: rw,
			Constraint: Constraint{Type: ConstraintStringList, Strings: []string{"Color", "Gray", "Lineart"}}},
			Value: str(32, "Color"), OnSet: modeChanged},
		{Desc: Descriptor{Name: "source", Title: "Scan source", Type: TypeString, Size: 32, Cap: rw,
			Constraint: Constraint{Type: ConstraintStringList, Strings: []string{"Flatbed", "Automatic Document Feeder"}}},
			Value: str(32, "Flatbed"), OnSet: reloadAll},
		{Desc: Descriptor{Name: "depth", Title: "Bit depth", Type: TypeInt, Unit: UnitBit, Size: word.Size, Cap: rw,
			Constraint: Constraint{Type: ConstraintWordList, Words: []int32{8, 16}}},
			Value: word.Encode(8), OnSet: reloadParams},
		{Desc: Descriptor{Name: "resolution", Title: "Scan resolution", Type: TypeInt, Unit: UnitDPI, Size: word.Size, Cap: rw,
			Constraint: Constraint{Type: ConstraintWordList, Words: []int32{75, 100, 150, 300, 600, 1200}}},
			Value: word.Encode(75), OnSet: reloadParams},
		{Desc: Descriptor{Name: "preview", Title: "Preview", Type: TypeBool, Size: word.Size, Cap: rw},
			Value: word.Encode(0)},
		{Desc: Descriptor{Name: "", Title: "Geometry", Type: TypeGroup}},
		mm("tl-x", "Top-left x", 0, 215.9, 0),
		mm("tl-y", "Top-left y", 0, 297, 0),
		mm("br-x", "Bottom-right x", 0, 215.9, 215.9),
		mm("br-y", "Bottom-right y", 0, 297, 297),
		{Desc: Descriptor{Name: "", Title: "Enhancement", Type: TypeGroup}},
		{Desc: Descriptor{Name: "brightness", Title: "Brightness", Type: TypeInt, Unit: UnitPercent, Size: word.Size, Cap: rw,
			Constraint: Constraint{Type: ConstraintRange, Range: Range{Min: -100, Max: 100, Quant: 1}}},
			Value: word.Encode(0)},
		{Desc: Descriptor{Name: "contrast", Title: "Contrast", Type: TypeInt, Unit: UnitPercent, Size: word.Size, Cap: rw,
			Constraint: Constraint{Type: ConstraintRange, Range: Range{Min: -100, Max: 100, Quant: 1}}},
			Value: word.Encode(0)},
		{Desc: Descriptor{Name: "threshold", Title: "Threshold", Type: TypeFixed, Unit: UnitPercent, Size: word.Size, Cap: rw | CapInactive,
			Constraint: Constraint{Type: ConstraintRange, Range: Range{Min: 0, Max: word.RealToFixed(100), Quant: word.RealToFixed(1)}}},
			Value: word.Encode(word.RealToFixed(50))},
		{Desc: Descriptor{Name: "gamma-table", Title: "Gamma table", Type: TypeInt, Size: 256 * word.Size, Cap: rw | CapAdvanced,
			Constraint: Constraint{Type: ConstraintRange, Range: Range{Min: 0, Max: 255, Quant: 1}}},
			Value: identityTable(256)},
		{Desc: Descriptor{Name: "calibration", Title: "Calibration profile", Type: TypeString, Size: 16, Cap: rw | CapAdvanced},
			Value: str(16, "default")},
		{Desc: Descriptor{Name: "calibrate", Title: "Calibrate", Type: TypeButton, Cap: rw | CapAdvanced}},
		{Desc: Descriptor{Name: "wait-for-button", Title: "Wait for button", Type: TypeBool, Size: word.Size, Cap: rw | CapAdvanced},
			Value: word.Encode(0)},
		{Desc: Descriptor{Name: "button", Title: "Scan button", Type: TypeBool, Size: word.Size, Cap: CapSoftDetect | CapHardSelect},
			Value: word.Encode(0)},
		{Desc: Descriptor{Name: "lamp-profile", Title: "Lamp profile", Type: TypeInt, Size: 4 * word.Size, Cap: rw | CapAdvanced,
			Constraint: Constraint{Type: ConstraintRange, Range: Range{Min: 0, Max: 1000}}},
			Value: make([]byte, 4*word.Size)},
		{Desc: Descriptor{Name: "speed", Title: "Scan speed", Type: TypeInt, Size: word.Size, Cap: rw,
			Constraint: Constraint{Type: ConstraintWordList, Words: []int32{1}}},
			Value: word.Encode(1)},
	}
	return m
}

func str(size int, s string) []byte {
	b := make([]byte, size)
	copy(b, s)
	return b
}

func mm(name, title string, min, max, val float64) *MockOption {
	return &MockOption{
		Desc: Descriptor{Name: name, Title: title, Type: TypeFixed, Unit: UnitMM, Size: word.Size,
			Cap:        CapSoftSelect | CapSoftDetect,
			Constraint: Constraint{Type: ConstraintRange, Range: Range{Min: word.RealToFixed(min), Max: word.RealToFixed(max)}}},
		Value: word.Encode(word.RealToFixed(val)),
		OnSet: reloadParams,
	}
}

func identityTable(n int) []byte {
	ws := make([]int32, n)
	for i := range ws {
		ws[i] = int32(i)
	}
	return word.EncodeAll(ws)
}

func reloadParams(*Mock, []byte) Info { return InfoReloadParams }

func reloadAll(*Mock, []byte) Info { return InfoReloadOptions | InfoReloadParams }

// modeChanged activates the threshold only for lineart and the 16 bit depth
// only outside of it
func modeChanged(m *Mock, v []byte) Info {
	mode := cstring(v)
	if o := m.lookup("threshold"); o != nil {
		if mode == "Lineart" {
			o.Desc.Cap &^= CapInactive
		} else {
			o.Desc.Cap |= CapInactive
		}
	}
	if o := m.lookup("depth"); o != nil {
		if mode == "Lineart" {
			o.Desc.Cap |= CapInactive
		} else {
			o.Desc.Cap &^= CapInactive
		}
	}
	return InfoReloadOptions | InfoReloadParams
}

func cstring(b []byte) string {
	if i := bytes.IndexByte(b, 0); i >= 0 {
		b = b[:i]
	}
	return string(b)
}

func (m *Mock) lookup(name string) *MockOption {
	for _, o := range m.opts {
		if o.Desc.Name == name && name != "" {
			return o
		}
	}
	return nil
}

// Option returns the named option so tests can inspect or script it.
// Changes must be made before the Mock is shared with another goroutine.
func (m *Mock) Option(name string) *MockOption {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.lookup(name)
}

// AddOption appends an option to the table
func (m *Mock) AddOption(o *MockOption) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.opts = append(m.opts, o)
}

// SetSensed changes a value behind the program's back, like a pressed button
func (m *Mock) SetSensed(name string, v []byte) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if o := m.lookup(name); o != nil {
		copy(o.Value, v)
	}
}

// Stats returns the call counters
func (m *Mock) Stats() MockStats {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.stats
}

// NumOptions implements Handle
func (m *Mock) NumOptions() (int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.opts), nil
}

// Descriptor implements Handle
func (m *Mock) Descriptor(index int) (Descriptor, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if index < 0 || index >= len(m.opts) {
		return Descriptor{}, StatusInval
	}
	m.stats.DescriptorReads++
	d := m.opts[index].Desc
	d.Constraint.Words = append([]int32(nil), d.Constraint.Words...)
	d.Constraint.Strings = append([]string(nil), d.Constraint.Strings...)
	return d, nil
}

// GetValue implements Handle
func (m *Mock) GetValue(index int, buf []byte) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if index < 0 || index >= len(m.opts) {
		return StatusInval
	}
	o := m.opts[index]
	if !o.Desc.Active() || !o.Desc.Cap.Has(CapSoftDetect) {
		return StatusInval
	}
	m.stats.ValueReads++
	copy(buf, o.Value)
	return nil
}

// SetValue implements Handle
func (m *Mock) SetValue(index int, buf []byte) (Info, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if index < 0 || index >= len(m.opts) {
		return 0, StatusInval
	}
	o := m.opts[index]
	d := o.Desc
	if !d.Active() || !d.Settable() {
		return 0, StatusInval
	}
	m.stats.Writes++
	if o.SetErr != StatusGood {
		return 0, o.SetErr
	}
	var info Info
	switch d.Type {
	case TypeGroup:
		return 0, StatusInval
	case TypeButton:
	case TypeString:
		s := cstring(buf)
		if d.Constraint.Type == ConstraintStringList && !contains(d.Constraint.Strings, s) {
			return 0, StatusInval
		}
		if len(s) >= d.Size {
			s = s[:d.Size-1]
			info |= InfoInexact
		}
		o.Value = str(d.Size, s)
	default:
		if len(buf) < d.Size {
			return 0, StatusInval
		}
		ws := word.DecodeAll(buf[:d.Size])
		for i, w := range ws {
			nw, ok := constrain(d, w)
			if !ok {
				return 0, StatusInval
			}
			if nw != w {
				info |= InfoInexact
				ws[i] = nw
			}
		}
		o.Value = word.EncodeAll(ws)
	}
	if o.OnSet != nil {
		info |= o.OnSet(m, o.Value)
	}
	return info, nil
}

func contains(list []string, s string) bool {
	for _, v := range list {
		if v == s {
			return true
		}
	}
	return false
}

// constrain clamps and quantizes w against the descriptor's constraint
func constrain(d Descriptor, w int32) (int32, bool) {
	c := d.Constraint
	switch c.Type {
	case ConstraintRange:
		r := c.Range
		if w < r.Min {
			w = r.Min
		}
		if w > r.Max {
			w = r.Max
		}
		if r.Quant > 0 {
			steps := (int64(w-r.Min) + int64(r.Quant)/2) / int64(r.Quant)
			w = r.Min + int32(steps)*r.Quant
			if w > r.Max {
				w -= r.Quant
			}
		}
	case ConstraintWordList:
		for _, v := range c.Words {
			if v == w {
				return w, true
			}
		}
		return w, false
	}
	if d.Type == TypeBool && w != 0 && w != 1 {
		return w, false
	}
	return w, true
}

func (m *Mock) intValue(name string) int32 {
	o := m.lookup(name)
	if o == nil || len(o.Value) < word.Size {
		return 0
	}
	return word.Decode(o.Value)
}

func (m *Mock) stringValue(name string) string {
	o := m.lookup(name)
	if o == nil {
		return ""
	}
	return cstring(o.Value)
}

func (m *Mock) feeder() bool {
	return strings.Contains(m.stringValue("source"), "Document Feeder")
}

// Start implements Handle.  The first Start of a page begins its first frame,
// later Starts advance to the next frame.
func (m *Mock) Start() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.stats.Starts++
	if m.StartErr != StatusGood {
		return m.StartErr
	}
	if m.inPage {
		if m.frame+1 >= len(m.frames) {
			return StatusInval
		}
		m.frame++
		m.offset = 0
		return nil
	}
	if m.feeder() {
		if m.ADFPages <= 0 {
			return StatusNoDocs
		}
		m.ADFPages--
	}
	m.frames = m.Script
	if m.frames == nil {
		m.frames = m.generate()
	}
	m.inPage = true
	m.frame = 0
	m.offset = 0
	return nil
}

// Parameters implements Handle.  Before Start it describes the upcoming scan.
func (m *Mock) Parameters() (Parameters, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.ParamsErr != StatusGood {
		return Parameters{}, m.ParamsErr
	}
	if !m.inPage {
		frames := m.Script
		if frames == nil {
			frames = m.generate()
		}
		if len(frames) == 0 {
			return Parameters{}, StatusInval
		}
		return frames[0].Params, nil
	}
	return m.frames[m.frame].Params, nil
}

// Read implements Handle
func (m *Mock) Read(p []byte) (int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if !m.inPage {
		return 0, StatusCancelled
	}
	f := m.frames[m.frame]
	end := len(f.Data)
	if f.Short > 0 && f.Short < end {
		end = f.Short
	}
	remaining := end - m.offset
	if remaining <= 0 {
		return 0, m.frameEnd(f)
	}
	n := len(p)
	if m.MaxRead > 0 && n > m.MaxRead {
		n = m.MaxRead
	}
	if n > remaining {
		n = remaining
	}
	copy(p, f.Data[m.offset:m.offset+n])
	m.offset += n
	if f.EOFWithData && m.offset == end {
		return n, m.frameEnd(f)
	}
	return n, nil
}

func (m *Mock) frameEnd(f MockFrame) error {
	if f.ReadErr != StatusGood {
		return f.ReadErr
	}
	if f.Params.LastFrame || m.frame+1 >= len(m.frames) {
		m.inPage = false
	}
	return StatusEOF
}

// Cancel implements Handle
func (m *Mock) Cancel() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.stats.Cancels++
	m.inPage = false
	m.frame = 0
	m.offset = 0
}

// generate builds the frames of one page from the current option values
func (m *Mock) generate() []MockFrame {
	dpi := float64(m.intValue("resolution"))
	w := word.FixedToReal(m.intValue("br-x")) - word.FixedToReal(m.intValue("tl-x"))
	h := word.FixedToReal(m.intValue("br-y")) - word.FixedToReal(m.intValue("tl-y"))
	px := int(w / 25.4 * dpi)
	lines := int(h / 25.4 * dpi)
	if px < 1 {
		px = 1
	}
	if lines < 1 {
		lines = 1
	}
	depth := int(m.intValue("depth"))
	p := Parameters{PixelsPerLine: px, Lines: lines, Depth: depth, LastFrame: true}
	switch m.stringValue("mode") {
	case "Lineart":
		p.Format = FrameGray
		p.Depth = 1
		p.BytesPerLine = (px + 7) / 8
	case "Gray":
		p.Format = FrameGray
		p.BytesPerLine = px * depth / 8
	default:
		if m.ThreePass {
			frames := make([]MockFrame, 3)
			for i, f := range []Frame{FrameRed, FrameGreen, FrameBlue} {
				fp := p
				fp.Format = f
				fp.BytesPerLine = px * depth / 8
				fp.LastFrame = f == FrameBlue
				frames[i] = MockFrame{Params: fp, Data: pattern(fp.FrameSize(), byte(i*64))}
			}
			return frames
		}
		p.Format = FrameRGB
		p.BytesPerLine = 3 * px * depth / 8
	}
	return []MockFrame{{Params: p, Data: pattern(p.FrameSize(), 0)}}
}

func pattern(n int, seed byte) []byte {
	b := make([]byte, n)
	for i := range b {
		b[i] = byte(i) + seed
	}
	return b
}

func init() {
	Register("mock", func() (Handle, error) { return NewMock(), nil })
}
