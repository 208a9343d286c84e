// Package server contains misc server utilities.
package server

import (
	"errors"
	"fmt"
	"net/http"
	"os"
	"path/filepath"
	"strings"

	"github.com/nasa-jpl/goscan/device"
)

// ErrOutsideRoot is returned for file names that would leave their folder
var ErrOutsideRoot = errors.New("path leaves the served folder")

// SafeJoin joins fldr and the relative name fn, refusing names that climb out of fldr
func SafeJoin(fldr, fn string) (string, error) {
	if fn == "" || filepath.IsAbs(fn) {
		return "", ErrOutsideRoot
	}
	clean := filepath.Clean(filepath.FromSlash(fn))
	if clean == ".." || strings.HasPrefix(clean, ".."+string(filepath.Separator)) {
		return "", ErrOutsideRoot
	}
	return filepath.Join(fldr, clean), nil
}

// ReplyWithFile replies to the client request by serving the given file name
func ReplyWithFile(w http.ResponseWriter, r *http.Request, fn string, fldr string) {
	log := device.Logger("server")
	filePath, err := SafeJoin(fldr, fn)
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	f, err := os.Open(filePath)
	if err != nil {
		fstr := fmt.Sprintf("source file missing %s", fn)
		log.Debug(fstr, "err", err)
		http.Error(w, fstr, http.StatusNotFound)
		return
	}
	defer f.Close()

	stat, err := f.Stat()
	if err != nil || stat.IsDir() {
		fstr := fmt.Sprintf("error retrieving source file stats %s", fn)
		log.Debug(fstr, "err", err)
		http.Error(w, fstr, http.StatusNotFound)
		return
	}
	// read some stuff to set the headers appropriately
	http.ServeContent(w, r, filepath.Base(filePath), stat.ModTime(), f)
}
