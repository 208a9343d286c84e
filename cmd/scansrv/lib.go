package main

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/chi"
	"github.com/go-chi/chi/middleware"

	"github.com/nasa-jpl/goscan/device"
	"github.com/nasa-jpl/goscan/events"
	"github.com/nasa-jpl/goscan/generichttp"
	"github.com/nasa-jpl/goscan/generichttp/scanner"
	"github.com/nasa-jpl/goscan/imgrec"
	"github.com/nasa-jpl/goscan/option"
	"github.com/nasa-jpl/goscan/scan"
	"github.com/nasa-jpl/goscan/server/middleware/locker"
)

// RecorderConfig sets up automatic saving of scanned pages
type RecorderConfig struct {
	Root    string `koanf:"Root" yaml:"Root"`
	Prefix  string `koanf:"Prefix" yaml:"Prefix"`
	Format  string `koanf:"Format" yaml:"Format"`
	Enabled bool   `koanf:"Enabled" yaml:"Enabled"`
}

// PreviewConfig holds the preview resolution policy
type PreviewConfig struct {
	// DPI is used as is when 25 or more; otherwise the lowest resolution
	// giving MinPixels in both directions is searched for
	DPI       float64 `koanf:"DPI" yaml:"DPI"`
	MinPixels int     `koanf:"MinPixels" yaml:"MinPixels"`
}

// ScanConfig holds session behavior
type ScanConfig struct {
	Invert       bool          `koanf:"Invert" yaml:"Invert"`
	PollInterval time.Duration `koanf:"PollInterval" yaml:"PollInterval"`
	PendingDelay time.Duration `koanf:"PendingDelay" yaml:"PendingDelay"`

	// Options are written in order after the device is opened
	Options []OptionSetting `koanf:"Options" yaml:"Options"`
}

// OptionSetting is one startup option write
type OptionSetting struct {
	Name  string      `koanf:"Name" yaml:"Name"`
	Value interface{} `koanf:"Value" yaml:"Value"`
}

// MQTTConfig enables publishing of session events
type MQTTConfig struct {
	Enabled       bool `koanf:"Enabled" yaml:"Enabled"`
	events.Config `koanf:",squash,flatten" yaml:",inline"`
}

// MockConfig tunes the simulated scanner
type MockConfig struct {
	ADFPages  int  `koanf:"ADFPages" yaml:"ADFPages"`
	ThreePass bool `koanf:"ThreePass" yaml:"ThreePass"`
}

// Config is a struct that holds the initialization parameters of the server
type Config struct {
	// Addr is the address to listen at
	Addr string `koanf:"Addr" yaml:"Addr"`

	// Endpoint is the path the scanner routes are mounted under
	Endpoint string `koanf:"Endpoint" yaml:"Endpoint"`

	// Device is the backend name, see device.Backends
	Device string `koanf:"Device" yaml:"Device"`

	// LogLevel is debug, info, warn or error
	LogLevel string `koanf:"LogLevel" yaml:"LogLevel"`

	Recorder RecorderConfig `koanf:"Recorder" yaml:"Recorder"`
	Preview  PreviewConfig  `koanf:"Preview" yaml:"Preview"`
	Scan     ScanConfig     `koanf:"Scan" yaml:"Scan"`
	MQTT     MQTTConfig     `koanf:"MQTT" yaml:"MQTT"`
	Mock     MockConfig     `koanf:"Mock" yaml:"Mock"`
}

// DefaultConfig is the configuration used when no file overrides it
func DefaultConfig() Config {
	return Config{
		Addr:     ":8000",
		Endpoint: "scanner",
		Device:   "mock",
		LogLevel: "info",
		Recorder: RecorderConfig{Root: "scans", Prefix: "scan", Format: "png"},
		Preview:  PreviewConfig{MinPixels: 300},
		Scan:     ScanConfig{PollInterval: 500 * time.Millisecond, PendingDelay: option.DefaultPendingDelay},
		MQTT: MQTTConfig{Config: events.Config{
			Broker:   "tcp://localhost:1883",
			ClientID: "scansrv",
			Topic:    "scansrv",
			Timeout:  5 * time.Second,
		}},
		Mock: MockConfig{ADFPages: 3},
	}
}

// setLogLevel applies a level name to every logger
func setLogLevel(name string) error {
	var l slog.Level
	if err := l.UnmarshalText([]byte(name)); err != nil {
		return err
	}
	device.SetLogLevel(l)
	return nil
}

// OpenDevice opens the configured backend
func OpenDevice(c Config) (device.Handle, error) {
	if strings.ToLower(c.Device) == "mock" {
		return device.Open(func() (device.Handle, error) {
			m := device.NewMock()
			m.ADFPages = c.Mock.ADFPages
			m.ThreePass = c.Mock.ThreePass
			return m, nil
		})
	}
	return device.OpenBackend(c.Device)
}

// OpenSession opens the device, builds its options and applies the startup option writes
func OpenSession(c Config) (*scan.Session, error) {
	h, err := OpenDevice(c)
	if err != nil {
		return nil, err
	}
	s, err := scan.Open(h)
	if err != nil {
		return nil, err
	}
	s.Registry().PendingDelay = c.Scan.PendingDelay
	s.SetInvert(c.Scan.Invert)
	for _, o := range c.Scan.Options {
		if err := s.SetOption(o.Name, o.Value); err != nil {
			s.Close()
			return nil, fmt.Errorf("option %s: %w", o.Name, err)
		}
	}
	return s, nil
}

// NewRecorder builds the page recorder described by c
func NewRecorder(c RecorderConfig) (*imgrec.Recorder, error) {
	rec := &imgrec.Recorder{Root: c.Root, Prefix: c.Prefix, Enabled: c.Enabled}
	if c.Format != "" {
		if err := rec.SetFormat(c.Format); err != nil {
			return nil, err
		}
	}
	return rec, nil
}

// BuildMux wraps the session in HTTP routes mounted at c.Endpoint.  The lock
// and cancel routes stay reachable while a scan runs.
func BuildMux(ctx context.Context, c Config, s *scan.Session, rec *imgrec.Recorder) chi.Router {
	root := chi.NewRouter()
	root.Use(middleware.Logger)

	httper := scanner.NewHTTPScanner(s, rec, scan.PreviewConfig{DPI: c.Preview.DPI, MinPixels: c.Preview.MinPixels})
	httper.Context = ctx

	lock := locker.New()
	lock.DoNotProtect = append(lock.DoNotProtect, "cancel")
	lock.Busy = s.Running
	locker.Inject(httper, lock)

	r := chi.NewRouter()
	r.Use(lock.Check)
	httper.RT().Bind(r)
	root.Mount(generichttp.SubMuxSanitize(c.Endpoint), r)
	root.Get("/", func(w http.ResponseWriter, r *http.Request) {
		generichttp.RespondJSON(w, map[string][]string{
			generichttp.SubMuxSanitize(c.Endpoint): httper.RT().Endpoints(),
		})
	})
	return root
}
