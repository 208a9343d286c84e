package imgrec

import (
	"net/http"

	"github.com/go-chi/chi"

	"github.com/nasa-jpl/goscan/generichttp"
	"github.com/nasa-jpl/goscan/server"
)

// HTTPWrapper is an HTTP wrapper around an image recorder that allows the folder and prefix to be changed on the fly
//
// it does not implement generichttp.HTTPer, offering an Inject method allowing it to be injected
// into another HTTPer
type HTTPWrapper struct {
	*Recorder
}

// NewHTTPWrapper returns an HTTP wrapper around a recorder
func NewHTTPWrapper(r *Recorder) HTTPWrapper {
	return HTTPWrapper{r}
}

// GetFile serves a recorded file, /autowrite/file/{day}/{name}
func (h HTTPWrapper) GetFile(w http.ResponseWriter, r *http.Request) {
	day, name := chi.URLParam(r, "day"), chi.URLParam(r, "name")
	server.ReplyWithFile(w, r, day+"/"+name, h.Recorder.GetRoot())
}

// Inject adds GET and POST routes for /autowrite/{root,prefix,format,enabled}
// to the HTTPer which manipulate this wrapper's recorder, and GET
// /autowrite/file/{day}/{name} to download what it wrote
func (h HTTPWrapper) Inject(other generichttp.HTTPer) {
	rec := h.Recorder
	rt := other.RT()
	rt[generichttp.MethodPath{Method: http.MethodPost, Path: "/autowrite/root"}] = generichttp.SetString(rec.SetRoot)
	rt[generichttp.MethodPath{Method: http.MethodGet, Path: "/autowrite/root"}] = generichttp.GetString(func() (string, error) {
		return rec.GetRoot(), nil
	})
	rt[generichttp.MethodPath{Method: http.MethodPost, Path: "/autowrite/prefix"}] = generichttp.SetString(func(s string) error {
		rec.SetPrefix(s)
		return nil
	})
	rt[generichttp.MethodPath{Method: http.MethodGet, Path: "/autowrite/prefix"}] = generichttp.GetString(func() (string, error) {
		return rec.GetPrefix(), nil
	})
	rt[generichttp.MethodPath{Method: http.MethodPost, Path: "/autowrite/format"}] = generichttp.SetString(rec.SetFormat)
	rt[generichttp.MethodPath{Method: http.MethodGet, Path: "/autowrite/format"}] = generichttp.GetString(func() (string, error) {
		return rec.GetFormat(), nil
	})
	rt[generichttp.MethodPath{Method: http.MethodPost, Path: "/autowrite/enabled"}] = generichttp.SetBool(func(b bool) error {
		rec.SetEnabled(b)
		return nil
	})
	rt[generichttp.MethodPath{Method: http.MethodGet, Path: "/autowrite/enabled"}] = generichttp.GetBool(func() (bool, error) {
		return rec.GetEnabled(), nil
	})
	rt[generichttp.MethodPath{Method: http.MethodGet, Path: "/autowrite/file/{day}/{name}"}] = h.GetFile
}
