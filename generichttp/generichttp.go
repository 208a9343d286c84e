// Package generichttp defines the route table, payload types and handler
// factories used to put devices behind an HTTP interface
package generichttp

import (
	"encoding/json"
	"errors"
	"go/types"
	"net/http"
	"sort"
	"strconv"
	"strings"
	"sync"

	"github.com/go-chi/chi"
)

// MethodPath is an HTTP method and a chi route pattern
type MethodPath struct {
	Method string
	Path   string
}

// RouteTable maps method/path pairs to handlers
type RouteTable map[MethodPath]http.HandlerFunc

// Endpoints lists the routes in the table as "METHOD /path", sorted by path
func (rt RouteTable) Endpoints() []string {
	out := make([]string, 0, len(rt))
	for k := range rt {
		out = append(out, k.Method+" "+k.Path)
	}
	sort.Slice(out, func(i, j int) bool {
		pi, pj := out[i][strings.IndexByte(out[i], ' ')+1:], out[j][strings.IndexByte(out[j], ' ')+1:]
		if pi != pj {
			return pi < pj
		}
		return out[i] < out[j]
	})
	return out
}

// Bind adds every route to r, plus GET /endpoints listing them
func (rt RouteTable) Bind(r chi.Router) {
	for mp, h := range rt {
		r.MethodFunc(mp.Method, mp.Path, h)
	}
	r.Get("/endpoints", func(w http.ResponseWriter, req *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		if err := json.NewEncoder(w).Encode(rt.Endpoints()); err != nil {
			http.Error(w, err.Error(), http.StatusInternalServerError)
		}
	})
}

// HTTPer is a type that exposes a route table
type HTTPer interface {
	RT() RouteTable
}

// SubMuxSanitize turns a configured endpoint such as "lab/scanner/" into a
// chi mount pattern such as "/lab/scanner"
func SubMuxSanitize(s string) string {
	s = strings.TrimSuffix(s, "*")
	s = strings.Trim(s, "/")
	return "/" + s
}

// FloatT is a JSON {"f64": value}
type FloatT struct {
	F64 float64 `json:"f64"`
}

// IntT is a JSON {"int": value}
type IntT struct {
	Int int `json:"int"`
}

// StrT is a JSON {"str": value}
type StrT struct {
	Str string `json:"str"`
}

// BoolT is a JSON {"bool": value}
type BoolT struct {
	Bool bool `json:"bool"`
}

// HumanPayload holds one value of the kind named by T
type HumanPayload struct {
	T      types.BasicKind
	Bool   bool
	Int    int
	Float  float64
	String string
}

// EncodeAndRespond writes the payload as its typed JSON object, or as plain
// text when the request asks for ?fmt=text
func (hp HumanPayload) EncodeAndRespond(w http.ResponseWriter, r *http.Request) {
	var v interface{}
	var txt string
	switch hp.T {
	case types.Bool:
		v, txt = BoolT{hp.Bool}, strconv.FormatBool(hp.Bool)
	case types.Int:
		v, txt = IntT{hp.Int}, strconv.Itoa(hp.Int)
	case types.Float64:
		v, txt = FloatT{hp.Float}, strconv.FormatFloat(hp.Float, 'g', -1, 64)
	case types.String:
		v, txt = StrT{hp.String}, hp.String
	default:
		http.Error(w, "unsupported payload kind", http.StatusInternalServerError)
		return
	}
	if r != nil && r.URL.Query().Get("fmt") == "text" {
		w.Header().Set("Content-Type", "text/plain; charset=utf-8")
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte(txt))
		return
	}
	RespondJSON(w, v)
}

// RespondJSON writes v as a JSON body with status 200
func RespondJSON(w http.ResponseWriter, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	_ = json.NewEncoder(w).Encode(v)
}

type errStatus struct {
	target error
	code   int
}

var (
	statusMu sync.RWMutex
	statuses []errStatus
)

// RegisterStatus makes Error reply with code for errors matching target.
// Earlier registrations win.
func RegisterStatus(target error, code int) {
	statusMu.Lock()
	defer statusMu.Unlock()
	statuses = append(statuses, errStatus{target, code})
}

// StatusFor is the HTTP status Error uses for err
func StatusFor(err error) int {
	statusMu.RLock()
	defer statusMu.RUnlock()
	for _, s := range statuses {
		if errors.Is(err, s.target) {
			return s.code
		}
	}
	return http.StatusInternalServerError
}

// Error replies with err and the status registered for it, or 500
func Error(w http.ResponseWriter, err error) {
	http.Error(w, err.Error(), StatusFor(err))
}

// ErrBadPayload is returned when a request body does not decode
var ErrBadPayload = errors.New("bad request payload")

func decode(w http.ResponseWriter, r *http.Request, v interface{}) bool {
	defer r.Body.Close()
	if err := json.NewDecoder(r.Body).Decode(v); err != nil {
		http.Error(w, ErrBadPayload.Error()+": "+err.Error(), http.StatusBadRequest)
		return false
	}
	return true
}

// GetFloat calls a float-getting function and returns the response
// as json {'f64': value}
func GetFloat(fcn func() (float64, error)) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		f, err := fcn()
		if err != nil {
			Error(w, err)
			return
		}
		HumanPayload{T: types.Float64, Float: f}.EncodeAndRespond(w, r)
	}
}

// SetFloat parses a JSON input of {'f64': value} and
// calls fcn with it
func SetFloat(fcn func(float64) error) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		f := FloatT{}
		if !decode(w, r, &f) {
			return
		}
		if err := fcn(f.F64); err != nil {
			Error(w, err)
			return
		}
		w.WriteHeader(http.StatusOK)
	}
}

// GetInt calls an int-getting function and returns the response
// as json {'int': value}
func GetInt(fcn func() (int, error)) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		i, err := fcn()
		if err != nil {
			Error(w, err)
			return
		}
		HumanPayload{T: types.Int, Int: i}.EncodeAndRespond(w, r)
	}
}

// SetInt parses a JSON input of {'int': value} and
// calls fcn with it
func SetInt(fcn func(int) error) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		i := IntT{}
		if !decode(w, r, &i) {
			return
		}
		if err := fcn(i.Int); err != nil {
			Error(w, err)
			return
		}
		w.WriteHeader(http.StatusOK)
	}
}

// GetString calls a string-getting function and returns the response
// as json {'str': value}
func GetString(fcn func() (string, error)) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		s, err := fcn()
		if err != nil {
			Error(w, err)
			return
		}
		HumanPayload{T: types.String, String: s}.EncodeAndRespond(w, r)
	}
}

// SetString parses a JSON input of {'str': value} and
// calls fcn with it
func SetString(fcn func(string) error) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		s := StrT{}
		if !decode(w, r, &s) {
			return
		}
		if err := fcn(s.Str); err != nil {
			Error(w, err)
			return
		}
		w.WriteHeader(http.StatusOK)
	}
}

// GetBool calls a bool-getting function and returns the response
// as json {'bool': value}
func GetBool(fcn func() (bool, error)) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		b, err := fcn()
		if err != nil {
			Error(w, err)
			return
		}
		HumanPayload{T: types.Bool, Bool: b}.EncodeAndRespond(w, r)
	}
}

// SetBool parses a JSON input of {'bool': value} and
// calls fcn with it
func SetBool(fcn func(bool) error) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		b := BoolT{}
		if !decode(w, r, &b) {
			return
		}
		if err := fcn(b.Bool); err != nil {
			Error(w, err)
			return
		}
		w.WriteHeader(http.StatusOK)
	}
}
