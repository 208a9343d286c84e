// Package scanner exposes a scan session over HTTP
package scanner

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"sync"

	"github.com/go-chi/chi"
	"github.com/google/uuid"

	"github.com/nasa-jpl/goscan/device"
	"github.com/nasa-jpl/goscan/generichttp"
	"github.com/nasa-jpl/goscan/imgrec"
	"github.com/nasa-jpl/goscan/option"
	"github.com/nasa-jpl/goscan/scan"
)

func init() {
	generichttp.RegisterStatus(scan.ErrBusy, http.StatusLocked)
	generichttp.RegisterStatus(scan.ErrUnknownOption, http.StatusNotFound)
	generichttp.RegisterStatus(scan.ErrNoDocuments, http.StatusConflict)
	generichttp.RegisterStatus(option.ErrNothingStored, http.StatusConflict)
	generichttp.RegisterStatus(option.ErrClosed, http.StatusGone)
	generichttp.RegisterStatus(device.ErrConstraintRejected, http.StatusBadRequest)
	generichttp.RegisterStatus(imgrec.ErrFormat, http.StatusBadRequest)
	generichttp.RegisterStatus(errNoJob, http.StatusNotFound)
}

// OptionInfo is the JSON form of an option
type OptionInfo struct {
	Name         string        `json:"name"`
	Title        string        `json:"title"`
	Description  string        `json:"description,omitempty"`
	Kind         string        `json:"kind"`
	Unit         string        `json:"unit,omitempty"`
	State        string        `json:"state"`
	Value        interface{}   `json:"value,omitempty"`
	Min          float64       `json:"min"`
	Max          float64       `json:"max"`
	Step         float64       `json:"step"`
	Entries      []interface{} `json:"entries,omitempty"`
	NeedsPolling bool          `json:"needsPolling,omitempty"`
}

// Info describes o
func Info(o option.Option) OptionInfo {
	info := OptionInfo{
		Name:         o.Name(),
		Title:        o.Title(),
		Description:  o.Description(),
		Kind:         o.Kind().String(),
		State:        o.State().String(),
		Value:        o.Value(),
		Min:          o.Minimum(),
		Max:          o.Maximum(),
		Step:         o.Step(),
		NeedsPolling: o.NeedsPolling(),
	}
	if u := o.Unit(); u != device.UnitNone {
		info.Unit = u.String()
	}
	if l, ok := o.(*option.ValueList); ok {
		info.Entries = l.Entries()
	}
	return info
}

// OptionT is the body of an option write.  Exactly one field is used, in
// the order listed; an action takes an empty object.
type OptionT struct {
	Bool *bool    `json:"bool,omitempty"`
	Int  *int     `json:"int,omitempty"`
	F64  *float64 `json:"f64,omitempty"`
	Str  *string  `json:"str,omitempty"`
	Ints []int    `json:"ints,omitempty"`
}

func (t OptionT) value() interface{} {
	switch {
	case t.Bool != nil:
		return *t.Bool
	case t.Int != nil:
		return *t.Int
	case t.F64 != nil:
		return *t.F64
	case t.Str != nil:
		return *t.Str
	case t.Ints != nil:
		return t.Ints
	}
	return nil
}

// HTTPScanner wraps a scan session in an HTTP interface
type HTTPScanner struct {
	s   *scan.Session
	rec *imgrec.Recorder

	// Context bounds background scans
	Context context.Context

	mu      sync.Mutex
	preview scan.PreviewConfig

	jobs *jobs

	RouteTable generichttp.RouteTable
}

// NewHTTPScanner returns a new HTTP wrapper.  rec may be nil.
func NewHTTPScanner(s *scan.Session, rec *imgrec.Recorder, preview scan.PreviewConfig) *HTTPScanner {
	h := &HTTPScanner{s: s, rec: rec, Context: context.Background(), preview: preview, jobs: newJobs(8)}
	rt := generichttp.RouteTable{
		{Method: http.MethodGet, Path: "/options"}:                 h.ListOptions,
		{Method: http.MethodGet, Path: "/option/{name}"}:           h.GetOption,
		{Method: http.MethodPost, Path: "/option/{name}"}:          h.SetOption,
		{Method: http.MethodPost, Path: "/option/{name}/store"}:    h.StoreOption,
		{Method: http.MethodPost, Path: "/option/{name}/restore"}:  h.RestoreOption,
		{Method: http.MethodPost, Path: "/preview"}:                h.Preview,
		{Method: http.MethodGet, Path: "/preview/dpi"}:             generichttp.GetFloat(h.previewDPI),
		{Method: http.MethodPost, Path: "/preview/dpi"}:            generichttp.SetFloat(h.setPreviewDPI),
		{Method: http.MethodGet, Path: "/preview/min-pixels"}:      generichttp.GetInt(h.previewMinPixels),
		{Method: http.MethodPost, Path: "/preview/min-pixels"}:     generichttp.SetInt(h.setPreviewMinPixels),
		{Method: http.MethodPost, Path: "/scan"}:                   h.StartScan,
		{Method: http.MethodGet, Path: "/scan/{id}"}:               h.GetJob,
		{Method: http.MethodGet, Path: "/scan/{id}/page/{n}"}:      h.GetPage,
		{Method: http.MethodPost, Path: "/cancel"}:                 h.Cancel,
		{Method: http.MethodGet, Path: "/progress"}:                generichttp.GetInt(h.progress),
		{Method: http.MethodGet, Path: "/state"}:                   generichttp.GetString(h.state),
		{Method: http.MethodGet, Path: "/running"}:                 generichttp.GetBool(h.running),
		{Method: http.MethodGet, Path: "/batch"}:                   generichttp.GetBool(h.batch),
		{Method: http.MethodGet, Path: "/invert"}:                  generichttp.GetBool(h.invert),
		{Method: http.MethodPost, Path: "/invert"}:                 generichttp.SetBool(h.setInvert),
	}
	h.RouteTable = rt
	if rec != nil {
		imgrec.NewHTTPWrapper(rec).Inject(h)
	}
	return h
}

// RT satisfies generichttp.HTTPer
func (h *HTTPScanner) RT() generichttp.RouteTable {
	return h.RouteTable
}

func (h *HTTPScanner) option(w http.ResponseWriter, r *http.Request) (option.Option, bool) {
	o, err := h.s.Option(chi.URLParam(r, "name"))
	if err != nil {
		generichttp.Error(w, err)
		return nil, false
	}
	return o, true
}

// ListOptions replies with every option that is not hidden, or every option with ?all=true
func (h *HTTPScanner) ListOptions(w http.ResponseWriter, r *http.Request) {
	all := r.URL.Query().Get("all") == "true"
	out := []OptionInfo{}
	for _, o := range h.s.Registry().Options() {
		if !all && o.State() == option.StateHidden {
			continue
		}
		out = append(out, Info(o))
	}
	generichttp.RespondJSON(w, out)
}

// GetOption replies with one option
func (h *HTTPScanner) GetOption(w http.ResponseWriter, r *http.Request) {
	o, ok := h.option(w, r)
	if !ok {
		return
	}
	generichttp.RespondJSON(w, Info(o))
}

// SetOption writes an option from an OptionT body and replies with its new
// state.  A numeric list that had no exact match replies 200 with the
// X-Inexact header set.
func (h *HTTPScanner) SetOption(w http.ResponseWriter, r *http.Request) {
	name := chi.URLParam(r, "name")
	t := OptionT{}
	err := json.NewDecoder(r.Body).Decode(&t)
	defer r.Body.Close()
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	err = h.s.SetOption(name, t.value())
	if errors.Is(err, option.ErrNoExactEntry) {
		w.Header().Set("X-Inexact", "true")
		err = nil
	}
	if err != nil {
		generichttp.Error(w, err)
		return
	}
	o, _ := h.s.Option(name)
	generichttp.RespondJSON(w, Info(o))
}

// StoreOption keeps the current value of an option
func (h *HTTPScanner) StoreOption(w http.ResponseWriter, r *http.Request) {
	o, ok := h.option(w, r)
	if !ok {
		return
	}
	if err := o.StoreCurrent(); err != nil {
		generichttp.Error(w, err)
		return
	}
	w.WriteHeader(http.StatusOK)
}

// RestoreOption writes back the value kept by StoreOption
func (h *HTTPScanner) RestoreOption(w http.ResponseWriter, r *http.Request) {
	o, ok := h.option(w, r)
	if !ok {
		return
	}
	if h.s.Running() {
		generichttp.Error(w, scan.ErrBusy)
		return
	}
	if err := o.RestoreSaved(); err != nil {
		generichttp.Error(w, err)
		return
	}
	generichttp.RespondJSON(w, Info(o))
}

// Preview runs a preview scan and replies with the image, png unless ?fmt= says otherwise
func (h *HTTPScanner) Preview(w http.ResponseWriter, r *http.Request) {
	h.mu.Lock()
	cfg := h.preview
	h.mu.Unlock()
	res, err := h.s.Preview(r.Context(), cfg)
	if err != nil {
		generichttp.Error(w, err)
		return
	}
	writePage(w, r, res)
}

func (h *HTTPScanner) previewDPI() (float64, error) {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.preview.DPI, nil
}

func (h *HTTPScanner) setPreviewDPI(f float64) error {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.preview.DPI = f
	return nil
}

func (h *HTTPScanner) previewMinPixels() (int, error) {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.preview.MinPixels, nil
}

func (h *HTTPScanner) setPreviewMinPixels(i int) error {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.preview.MinPixels = i
	return nil
}

// StartScan starts a final scan in the background and replies 202 with the job
func (h *HTTPScanner) StartScan(w http.ResponseWriter, r *http.Request) {
	if h.s.Running() {
		generichttp.Error(w, scan.ErrBusy)
		return
	}
	j := h.jobs.add(uuid.New())
	go func() {
		err := h.s.ScanAs(h.Context, j.ID, func(res *scan.Result) error {
			if h.rec != nil {
				fn, err := h.rec.Save(res)
				if err != nil {
					return err
				}
				j.addFile(fn)
			}
			j.addPage(res)
			return nil
		})
		j.finish(err)
	}()
	w.Header().Set("Content-Type", "application/json")
	w.Header().Set("Location", "scan/"+j.ID.String())
	w.WriteHeader(http.StatusAccepted)
	_ = json.NewEncoder(w).Encode(j.Info())
}

// GetJob replies with the state of a scan job
func (h *HTTPScanner) GetJob(w http.ResponseWriter, r *http.Request) {
	j, err := h.jobs.get(chi.URLParam(r, "id"))
	if err != nil {
		generichttp.Error(w, err)
		return
	}
	generichttp.RespondJSON(w, j.Info())
}

// GetPage replies with page n of a job, counting from 1
func (h *HTTPScanner) GetPage(w http.ResponseWriter, r *http.Request) {
	j, err := h.jobs.get(chi.URLParam(r, "id"))
	if err != nil {
		generichttp.Error(w, err)
		return
	}
	n, err := strconv.Atoi(chi.URLParam(r, "n"))
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	res := j.page(n)
	if res == nil {
		http.Error(w, "no such page", http.StatusNotFound)
		return
	}
	writePage(w, r, res)
}

func writePage(w http.ResponseWriter, r *http.Request, res *scan.Result) {
	format := r.URL.Query().Get("fmt")
	if format == "" {
		format = "png"
	}
	if format == "raw" {
		w.Header().Set("Content-Type", "application/octet-stream")
		w.Header().Set("X-Frame-Format", res.Params.Format.String())
		w.Header().Set("X-Bytes-Per-Line", strconv.Itoa(res.Params.BytesPerLine))
		w.Header().Set("X-Pixels-Per-Line", strconv.Itoa(res.Params.PixelsPerLine))
		w.Header().Set("X-Depth", strconv.Itoa(res.Params.Depth))
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write(res.Data)
		return
	}
	hdr := w.Header()
	hdr.Set("Content-Type", imgrec.ContentType(format))
	if format == "fits" || format == "tiff" {
		hdr.Set("Content-Disposition", "attachment; filename=page"+strconv.Itoa(res.Page)+"."+format)
	}
	if err := imgrec.Encode(w, format, res); err != nil {
		hdr.Del("Content-Disposition")
		hdr.Set("Content-Type", "text/plain; charset=utf-8")
		generichttp.Error(w, err)
	}
}

// Cancel cancels the running scan, if any
func (h *HTTPScanner) Cancel(w http.ResponseWriter, r *http.Request) {
	h.s.Cancel()
	w.WriteHeader(http.StatusOK)
}

func (h *HTTPScanner) progress() (int, error) {
	return h.s.Engine().Progress(), nil
}

func (h *HTTPScanner) state() (string, error) {
	if !h.s.Running() {
		return "idle", nil
	}
	return h.s.Engine().State().String(), nil
}

func (h *HTTPScanner) running() (bool, error) {
	return h.s.Running(), nil
}

func (h *HTTPScanner) batch() (bool, error) {
	return h.s.Batch(), nil
}

func (h *HTTPScanner) invert() (bool, error) {
	return h.s.Invert(), nil
}

func (h *HTTPScanner) setInvert(b bool) error {
	if h.s.Running() {
		return scan.ErrBusy
	}
	h.s.SetInvert(b)
	return nil
}
