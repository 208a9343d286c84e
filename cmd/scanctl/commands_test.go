package main

import (
	"bytes"
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/nasa-jpl/goscan/device"
	"github.com/nasa-jpl/goscan/imgrec"
	"github.com/nasa-jpl/goscan/scan"
)

func session(t *testing.T) *scan.Session {
	t.Helper()
	s, err := scan.Open(device.NewMock())
	require.NoError(t, err)
	s.Registry().PendingDelay = 0
	return s
}

func TestList(t *testing.T) {
	s := session(t)
	var buf bytes.Buffer
	require.NoError(t, list(&buf, s, nil))
	out := buf.String()
	assert.Contains(t, out, "resolution")
	assert.Contains(t, out, "75|100|150|300|600|1200")
	assert.NotContains(t, out, "threshold")

	buf.Reset()
	require.NoError(t, list(&buf, s, []string{"-a"}))
	assert.Contains(t, buf.String(), "threshold")
}

func TestGetSet(t *testing.T) {
	s := session(t)
	var buf bytes.Buffer
	require.NoError(t, set(&buf, s, []string{"resolution", "150"}))
	assert.Equal(t, "resolution = 150 dpi\n", buf.String())

	buf.Reset()
	require.NoError(t, set(&buf, s, []string{"resolution", "160"}))
	assert.True(t, strings.HasPrefix(buf.String(), "note:"))
	assert.Contains(t, buf.String(), "resolution = 150 dpi")

	buf.Reset()
	require.NoError(t, set(&buf, s, []string{"calibration", "two", "words"}))
	assert.Equal(t, "calibration = two words\n", buf.String())

	assert.Error(t, set(&buf, s, []string{"mode", "Sepia"}))
	assert.ErrorIs(t, get(&buf, s, nil), errUsage)
	assert.ErrorIs(t, get(&buf, s, []string{"nope"}), scan.ErrUnknownOption)
}

func TestScanSavesPages(t *testing.T) {
	s := session(t)
	require.NoError(t, s.SetOption("br-x", 20.0))
	require.NoError(t, s.SetOption("br-y", 20.0))
	dir := t.TempDir()
	c := Config{Dir: dir, Prefix: "p", Format: "tiff", Quiet: true}
	var buf bytes.Buffer
	require.NoError(t, dispatch(context.Background(), &buf, s, c, "scan", nil))
	assert.Contains(t, buf.String(), "page 1:")

	day := filepath.Join(dir, time.Now().Format("2006-01-02"))
	_, err := os.Stat(filepath.Join(day, "p000001.tiff"))
	assert.NoError(t, err)
	side, err := imgrec.ReadSidecar(filepath.Join(day, "p000001.yaml"))
	require.NoError(t, err)
	assert.Equal(t, "rgb", side.Frame)
}

func TestPreviewFile(t *testing.T) {
	s := session(t)
	require.NoError(t, s.SetOption("mode", "Gray"))
	fn := filepath.Join(t.TempDir(), "p.fits")
	var buf bytes.Buffer
	require.NoError(t, dispatch(context.Background(), &buf, s, Config{DPI: 75, Quiet: true}, "preview", []string{fn}))
	b, err := os.ReadFile(fn)
	require.NoError(t, err)
	assert.True(t, bytes.HasPrefix(b, []byte("SIMPLE")))
}

func TestEnvKey(t *testing.T) {
	for in, exp := range map[string]string{
		"SCANCTL_DEVICE": "Device",
		"SCANCTL_DPI":    "DPI",
		"SCANCTL_QUIET":  "Quiet",
	} {
		if got := envKey(in); got != exp {
			t.Errorf("expected %v got %v", exp, got)
		}
	}
}
