package main

import (
	"context"
	"fmt"
	"io"
	"log"
	"log/slog"
	"os"
	"os/signal"
	"strings"

	"github.com/knadh/koanf"
	"github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/env"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/providers/structs"

	yml "gopkg.in/yaml.v2"

	"github.com/nasa-jpl/goscan/device"
	"github.com/nasa-jpl/goscan/scan"
)

var (
	// Version is the version number.  Typically injected via ldflags with git build
	Version = "1"

	// ConfigFileName is what it sounds like
	ConfigFileName = "scanctl.yml"

	// EnvPrefix marks environment variables that override the config file,
	// e.g. SCANCTL_DEVICE=mock
	EnvPrefix = "SCANCTL_"

	k = koanf.New(".")
)

// Config holds the scanctl settings
type Config struct {
	// Device is the backend name, see device.Backends
	Device string `koanf:"Device" yaml:"Device"`

	// Dir is where scanned pages are saved, in yyyy-mm-dd subfolders
	Dir string `koanf:"Dir" yaml:"Dir"`

	// Prefix starts every page filename
	Prefix string `koanf:"Prefix" yaml:"Prefix"`

	// Format is png, tiff or fits
	Format string `koanf:"Format" yaml:"Format"`

	// DPI is the preview resolution; below 25 one is picked for the device
	DPI float64 `koanf:"DPI" yaml:"DPI"`

	// Invert complements every sample of a scan
	Invert bool `koanf:"Invert" yaml:"Invert"`

	// Quiet turns off the progress spinner
	Quiet bool `koanf:"Quiet" yaml:"Quiet"`

	// Verbose logs at debug level
	Verbose bool `koanf:"Verbose" yaml:"Verbose"`
}

// envKey maps SCANCTL_DEVICE to Device
func envKey(s string) string {
	s = strings.ToLower(strings.TrimPrefix(s, EnvPrefix))
	switch s {
	case "dpi":
		return "DPI"
	case "":
		return s
	}
	return strings.ToUpper(s[:1]) + s[1:]
}

func setupconfig() {
	k.Load(structs.Provider(Config{
		Device: "mock",
		Dir:    "scans",
		Prefix: "scan",
		Format: "png",
	}, "koanf"), nil)
	if err := k.Load(file.Provider(ConfigFileName), yaml.Parser()); err != nil {
		errtxt := err.Error()
		if !strings.Contains(errtxt, "no such") { // file missing, who cares
			log.Fatalf("error loading config: %v", err)
		}
	}
	if err := k.Load(env.Provider(EnvPrefix, ".", envKey), nil); err != nil {
		log.Fatalf("error loading environment: %v", err)
	}
}

func root() {
	str := `scanctl operates a document scanner from the command line.

Usage:
	scanctl <command> [args]

Commands:
	list [-a]
	get <option>...
	set <option> [value]
	preview [file]
	scan
	shell
	mkconf
	conf
	version`
	fmt.Println(str)
}

func open(c Config) *scan.Session {
	if c.Verbose {
		device.SetLogLevel(slog.LevelDebug)
	}
	h, err := device.OpenBackend(c.Device)
	if err != nil {
		log.Fatal(err)
	}
	s, err := scan.Open(h)
	if err != nil {
		log.Fatal(err)
	}
	s.SetInvert(c.Invert)
	return s
}

// withProgress runs fn under a spinner on stderr unless c.Quiet
func withProgress(s *scan.Session, c Config, fn func() error) error {
	if c.Quiet {
		return fn()
	}
	sp, err := newSpinner(os.Stderr)
	if err != nil {
		return fn()
	}
	s.SetPublisher(sp)
	defer s.SetPublisher(nil)
	return sp.run(fn)
}

// dispatch runs one command against an open session
func dispatch(ctx context.Context, w io.Writer, s *scan.Session, c Config, cmd string, args []string) error {
	switch cmd {
	case "list", "ls":
		return list(w, s, args)
	case "get":
		return get(w, s, args)
	case "set":
		return set(w, s, args)
	case "preview":
		return withProgress(s, c, func() error { return preview(ctx, w, s, c, args) })
	case "scan":
		return withProgress(s, c, func() error { return scanPages(ctx, w, s, c) })
	case "invert":
		if len(args) > 0 {
			s.SetInvert(args[0] == "on" || args[0] == "true")
		}
		fmt.Fprintln(w, "invert =", s.Invert())
		return nil
	}
	return fmt.Errorf("unknown command %q", cmd)
}

func main() {
	args := os.Args
	if len(args) == 1 {
		root()
		return
	}
	setupconfig()
	c := Config{}
	if err := k.Unmarshal("", &c); err != nil {
		log.Fatal(err)
	}
	cmd := strings.ToLower(args[1])
	switch cmd {
	case "help":
		root()
		return
	case "version":
		fmt.Printf("scanctl version %v\n", Version)
		return
	case "mkconf":
		f, err := os.Create(ConfigFileName)
		if err != nil {
			log.Fatal(err)
		}
		defer f.Close()
		if err := yml.NewEncoder(f).Encode(c); err != nil {
			log.Fatal(err)
		}
		return
	case "conf":
		if err := yml.NewEncoder(os.Stdout).Encode(c); err != nil {
			log.Fatal(err)
		}
		return
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()
	s := open(c)
	defer s.Close()
	go func() {
		<-ctx.Done()
		s.Cancel()
	}()

	if cmd == "shell" {
		sh, err := newShell(s, c)
		if err != nil {
			log.Fatal(err)
		}
		p := s.StartPolling(ctx, pollInterval)
		defer p.Stop()
		sh.Run(ctx)
		return
	}
	if err := dispatch(ctx, os.Stdout, s, c, cmd, args[2:]); err != nil {
		log.Fatal(err)
	}
}
