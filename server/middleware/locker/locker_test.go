package locker

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"

	"github.com/go-chi/chi"

	"github.com/nasa-jpl/goscan/generichttp"
)

type httper struct{ rt generichttp.RouteTable }

func (h httper) RT() generichttp.RouteTable { return h.rt }

func setup(l *Locker) http.Handler {
	h := httper{rt: generichttp.RouteTable{
		{Method: http.MethodGet, Path: "/thing"}: func(w http.ResponseWriter, r *http.Request) {
			w.WriteHeader(http.StatusOK)
		},
		{Method: http.MethodPost, Path: "/thing"}: func(w http.ResponseWriter, r *http.Request) {
			w.WriteHeader(http.StatusOK)
		},
		{Method: http.MethodPost, Path: "/cancel"}: func(w http.ResponseWriter, r *http.Request) {
			w.WriteHeader(http.StatusOK)
		},
	}}
	Inject(h, l)
	r := chi.NewRouter()
	r.Use(l.Check)
	h.RT().Bind(r)
	return r
}

func code(h http.Handler, method, path, body string) int {
	w := httptest.NewRecorder()
	h.ServeHTTP(w, httptest.NewRequest(method, path, strings.NewReader(body)))
	return w.Code
}

func TestLockOverHTTP(t *testing.T) {
	l := New()
	h := setup(l)
	if c := code(h, http.MethodPost, "/lock", `{"bool": true}`); c != http.StatusOK {
		t.Fatalf("expected 200 got %d", c)
	}
	if c := code(h, http.MethodGet, "/thing", ""); c != http.StatusLocked {
		t.Errorf("expected %v got %v", http.StatusLocked, c)
	}
	if c := code(h, http.MethodGet, "/lock", ""); c != http.StatusOK {
		t.Errorf("lock route must stay reachable, got %d", c)
	}
	if c := code(h, http.MethodPost, "/lock", `{"bool": false}`); c != http.StatusOK {
		t.Fatalf("expected 200 got %d", c)
	}
	if c := code(h, http.MethodGet, "/thing", ""); c != http.StatusOK {
		t.Errorf("expected %v got %v", http.StatusOK, c)
	}
}

func TestBusyLocksWrites(t *testing.T) {
	var busy atomic.Bool
	l := New()
	l.DoNotProtect = append(l.DoNotProtect, "cancel")
	l.Busy = busy.Load
	h := setup(l)
	busy.Store(true)
	if c := code(h, http.MethodPost, "/thing", ""); c != http.StatusLocked {
		t.Errorf("expected %v got %v", http.StatusLocked, c)
	}
	if c := code(h, http.MethodGet, "/thing", ""); c != http.StatusOK {
		t.Errorf("reads are allowed while busy, got %d", c)
	}
	if c := code(h, http.MethodPost, "/cancel", ""); c != http.StatusOK {
		t.Errorf("unprotected writes are allowed while busy, got %d", c)
	}
	busy.Store(false)
	if c := code(h, http.MethodPost, "/thing", ""); c != http.StatusOK {
		t.Errorf("expected %v got %v", http.StatusOK, c)
	}
}
