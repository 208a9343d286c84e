// Package imgrec contains an image recorder used to automatically save scanned pages to disk.
package imgrec

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/snksoft/crc"
	yaml "gopkg.in/yaml.v2"

	"github.com/nasa-jpl/goscan/scan"
)

// ErrFormat is returned for image formats the recorder cannot write
var ErrFormat = errors.New("unknown image format")

// Formats lists the file formats pages can be written in
var Formats = []string{"png", "tiff", "fits"}

var crcTable = crc.NewTable(crc.CRC32)

// Checksum is the CRC-32 of data, as written to sidecar files
func Checksum(data []byte) uint32 {
	c := crcTable.InitCrc()
	c = crcTable.UpdateCrc(c, data)
	return crcTable.CRC32(c)
}

// Sidecar is the metadata written next to every recorded page
type Sidecar struct {
	ID           string    `yaml:"id"`
	Page         int       `yaml:"page"`
	Preview      bool      `yaml:"preview,omitempty"`
	File         string    `yaml:"file"`
	Frame        string    `yaml:"frame"`
	Width        int       `yaml:"width"`
	Height       int       `yaml:"height"`
	Depth        int       `yaml:"depth"`
	BytesPerLine int       `yaml:"bytesPerLine"`
	Bytes        int       `yaml:"bytes"`
	CRC32        string    `yaml:"crc32"`
	Status       string    `yaml:"status"`
	NonCompliant bool      `yaml:"nonCompliant,omitempty"`
	Time         time.Time `yaml:"time"`
}

// NewSidecar describes res as stored in file
func NewSidecar(res *scan.Result, file string) Sidecar {
	lines := res.Params.Lines
	if bpl := res.Params.BytesPerLine; lines <= 0 && bpl > 0 {
		lines = len(res.Data) / bpl
		if res.Params.Format.Plane() {
			lines = len(res.Data) / (3 * bpl)
		}
	}
	return Sidecar{
		ID:           res.ID.String(),
		Page:         res.Page,
		Preview:      res.Preview,
		File:         file,
		Frame:        res.Params.Format.String(),
		Width:        res.Params.PixelsPerLine,
		Height:       lines,
		Depth:        res.Params.Depth,
		BytesPerLine: res.Params.BytesPerLine,
		Bytes:        len(res.Data),
		CRC32:        fmt.Sprintf("%08x", Checksum(res.Data)),
		Status:       res.Status.String(),
		NonCompliant: res.NonCompliant,
		Time:         res.Time,
	}
}

// ReadSidecar loads a sidecar file
func ReadSidecar(fn string) (Sidecar, error) {
	var s Sidecar
	b, err := os.ReadFile(fn)
	if err != nil {
		return s, err
	}
	err = yaml.Unmarshal(b, &s)
	return s, err
}

// Recorder records pages with incrementing filenames in yyyy-mm-dd subfolders.
// The exported fields may be set before the recorder is shared; afterwards use
// the setters.
type Recorder struct {
	mu sync.Mutex

	// counter is the internally incrementing counter
	counter int

	// Root is the root path
	Root string

	// Prefix is the prefix for the filenames
	Prefix string

	// Format is one of Formats, png when empty
	Format string

	// timeFldr is the subfolder with yyyy-mm-dd format.
	timeFldr string

	// Enabled turns Save into a no-op when false
	Enabled bool
}

// updateFolder checks the current time and updates the folder as needed
func (r *Recorder) updateFolder() {
	fldr := time.Now().Format("2006-01-02")
	if fldr != r.timeFldr {
		r.timeFldr = fldr
		r.counter = 0
	}
}

// mkDir makes the folder and returns it
func (r *Recorder) mkDir() (string, error) {
	fldr := filepath.Join(r.Root, r.timeFldr)
	err := os.MkdirAll(fldr, 0777)
	return fldr, err
}

func (r *Recorder) format() string {
	if r.Format == "" {
		return "png"
	}
	return r.Format
}

// Save writes res and its sidecar when the recorder is enabled, returning
// the image path.  A disabled recorder returns "" and no error.
func (r *Recorder) Save(res *scan.Result) (string, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if !r.Enabled || r.Root == "" {
		return "", nil
	}
	r.updateFolder()
	fldr, err := r.mkDir()
	if err != nil {
		return "", err
	}
	if r.counter == 0 {
		r.incr(fldr)
	}
	ext := r.format()
	base := fmt.Sprintf("%s%06d", r.Prefix, r.counter)
	fn := filepath.Join(fldr, base+"."+ext)

	f, err := os.Create(fn)
	if err != nil {
		return "", err
	}
	err = Encode(f, ext, res)
	if cerr := f.Close(); err == nil {
		err = cerr
	}
	if err != nil {
		os.Remove(fn)
		return "", err
	}

	meta, err := yaml.Marshal(NewSidecar(res, base+"."+ext))
	if err != nil {
		return fn, err
	}
	if err := os.WriteFile(filepath.Join(fldr, base+".yaml"), meta, 0666); err != nil {
		return fn, err
	}
	r.counter++
	return fn, nil
}

// Incr updates the filename counter; it scans the folder to do so.  If there is an error, the counter is not changed
func (r *Recorder) Incr() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.updateFolder()
	dn, err := r.mkDir()
	if err != nil {
		return
	}
	r.incr(dn)
}

func (r *Recorder) incr(dn string) {
	files, err := os.ReadDir(dn)
	if err != nil {
		return
	}
	count := 0
	for _, file := range files {
		// skip directories, other formats, and wrong prefix
		if file.IsDir() {
			continue
		}
		fn := file.Name()
		ext := filepath.Ext(fn)
		if ext != ".yaml" || !strings.HasPrefix(fn, r.Prefix) {
			continue
		}
		n, err := strconv.Atoi(strings.TrimSuffix(strings.TrimPrefix(fn, r.Prefix), ext))
		if err != nil {
			continue
		}
		if count < n {
			count = n
		}
	}
	r.counter = count + 1
}

// Counter returns the number the next page will be saved under
func (r *Recorder) Counter() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.counter
}

// SetRoot changes the root folder, creating it
func (r *Recorder) SetRoot(root string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.Root = root
	r.counter = 0
	r.updateFolder()
	_, err := r.mkDir()
	return err
}

// GetRoot returns the root folder
func (r *Recorder) GetRoot() string {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.Root
}

// SetPrefix changes the filename prefix and restarts the counter
func (r *Recorder) SetPrefix(p string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.Prefix = p
	r.counter = 0
}

// GetPrefix returns the filename prefix
func (r *Recorder) GetPrefix() string {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.Prefix
}

// SetFormat changes the file format
func (r *Recorder) SetFormat(f string) error {
	f = strings.ToLower(f)
	for _, ok := range Formats {
		if f == ok {
			r.mu.Lock()
			r.Format = f
			r.mu.Unlock()
			return nil
		}
	}
	return fmt.Errorf("%q: %w", f, ErrFormat)
}

// GetFormat returns the file format
func (r *Recorder) GetFormat() string {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.format()
}

// SetEnabled turns recording on or off
func (r *Recorder) SetEnabled(b bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.Enabled = b
}

// GetEnabled reports whether recording is on
func (r *Recorder) GetEnabled() bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.Enabled
}
