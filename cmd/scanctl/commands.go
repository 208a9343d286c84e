package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"text/tabwriter"

	"github.com/nasa-jpl/goscan/imgrec"
	"github.com/nasa-jpl/goscan/option"
	"github.com/nasa-jpl/goscan/scan"
)

var errUsage = errors.New("usage")

// list prints every shown option, or all of them with "-a"
func list(w io.Writer, s *scan.Session, args []string) error {
	all := len(args) > 0 && args[0] == "-a"
	tw := tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "NAME\tKIND\tSTATE\tVALUE\tCONSTRAINT")
	for _, o := range s.Registry().Options() {
		if !all && o.State() == option.StateHidden {
			continue
		}
		fmt.Fprintf(tw, "%s\t%s\t%s\t%s\t%s\n", o.Name(), o.Kind(), o.State(), display(o), constraint(o))
	}
	return tw.Flush()
}

func display(o option.Option) string {
	v := o.String()
	if u := o.Unit(); u.String() != "" && o.Kind() != option.KindString {
		v += " " + u.String()
	}
	return v
}

func constraint(o option.Option) string {
	switch t := o.(type) {
	case *option.ValueList:
		parts := make([]string, 0, len(t.Entries()))
		for _, e := range t.Entries() {
			parts = append(parts, fmt.Sprint(e))
		}
		return strings.Join(parts, "|")
	case *option.Integer, *option.Double, *option.Gamma:
		if step := o.Step(); step > 0 {
			return fmt.Sprintf("%g..%g (%g)", o.Minimum(), o.Maximum(), step)
		}
		return fmt.Sprintf("%g..%g", o.Minimum(), o.Maximum())
	}
	return ""
}

// get prints the value of each named option
func get(w io.Writer, s *scan.Session, args []string) error {
	if len(args) == 0 {
		return fmt.Errorf("%w: get <option>...", errUsage)
	}
	for _, name := range args {
		o, err := s.Option(name)
		if err != nil {
			return err
		}
		fmt.Fprintf(w, "%s = %s\n", o.Name(), display(o))
	}
	return nil
}

// set writes an option.  The value is parsed by the option itself, so
// "true", "150", "12.5", "Gray" and "10:20:180" are all accepted where they fit.
func set(w io.Writer, s *scan.Session, args []string) error {
	if len(args) < 1 {
		return fmt.Errorf("%w: set <option> [value]", errUsage)
	}
	var v interface{}
	if len(args) > 1 {
		v = strings.Join(args[1:], " ")
	}
	err := s.SetOption(args[0], v)
	if errors.Is(err, option.ErrNoExactEntry) {
		fmt.Fprintln(w, "note:", err)
		err = nil
	}
	if err != nil {
		return err
	}
	return get(w, s, args[:1])
}

// pageWriter saves pages through a recorder and reports where they went
type pageWriter struct {
	w   io.Writer
	rec *imgrec.Recorder
}

func (p pageWriter) save(res *scan.Result) error {
	fn, err := p.rec.Save(res)
	if err != nil {
		return err
	}
	note := ""
	if res.NonCompliant {
		note = " (device ended the frame early)"
	}
	fmt.Fprintf(p.w, "page %d: %dx%d %s -> %s%s\n", res.Page, res.Params.PixelsPerLine, res.Params.Lines, res.Params.Format, fn, note)
	return nil
}

// preview runs a preview and writes it to the named file, preview.png by default
func preview(ctx context.Context, w io.Writer, s *scan.Session, c Config, args []string) error {
	fn := "preview.png"
	if len(args) > 0 {
		fn = args[0]
	}
	format := strings.TrimPrefix(strings.ToLower(filepath.Ext(fn)), ".")
	switch format {
	case "":
		format = "png"
	case "tif":
		format = "tiff"
	}
	res, err := s.Preview(ctx, scan.PreviewConfig{DPI: c.DPI, MinPixels: 300})
	if err != nil {
		return err
	}
	f, err := os.Create(fn)
	if err != nil {
		return err
	}
	err = imgrec.Encode(f, format, res)
	if cerr := f.Close(); err == nil {
		err = cerr
	}
	if err != nil {
		return err
	}
	fmt.Fprintf(w, "preview: %dx%d -> %s\n", res.Params.PixelsPerLine, res.Params.Lines, fn)
	return nil
}

// scanPages runs a final scan, saving every page under c.Dir
func scanPages(ctx context.Context, w io.Writer, s *scan.Session, c Config) error {
	rec := &imgrec.Recorder{Root: c.Dir, Prefix: c.Prefix, Enabled: true}
	if err := rec.SetFormat(c.Format); err != nil {
		return err
	}
	pw := pageWriter{w: w, rec: rec}
	err := s.Scan(ctx, pw.save)
	if errors.Is(err, scan.ErrNoDocuments) {
		fmt.Fprintln(w, err)
		return nil
	}
	return err
}
