package main

import (
	"context"
	"errors"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/knadh/koanf"
	"github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/providers/structs"

	yml "gopkg.in/yaml.v2"

	"github.com/nasa-jpl/goscan/device"
	"github.com/nasa-jpl/goscan/events"
)

var (
	// Version is the version number.  Typically injected via ldflags with git build
	Version = "1"

	// ConfigFileName is what it sounds like
	ConfigFileName = "scansrv.yml"
	k              = koanf.New(".")
)

func setupconfig() {
	k.Load(structs.Provider(DefaultConfig(), "koanf"), nil)
	if err := k.Load(file.Provider(ConfigFileName), yaml.Parser()); err != nil {
		errtxt := err.Error()
		if !strings.Contains(errtxt, "no such") { // file missing, who cares
			log.Fatalf("error loading config: %v", err)
		}
	}
}

func root() {
	str := `scansrv drives a document scanner and exposes it over HTTP.
Options can be listed and changed, previews and scans run, and finished
pages downloaded as PNG, TIFF or FITS.

Usage:
	scansrv <command>

Commands:
	run
	help
	mkconf
	conf
	version`
	fmt.Println(str)
}

func help() {
	str := `scansrv is amenable to configuration via its .yaml file.  For a primer on YAML, see
https://yaml.org/start.html

mkconf writes the current configuration (defaults merged with any existing
file) to scansrv.yml.

Device names the backend to open; "mock" is a simulated flatbed scanner with
a document feeder.  Registered backends: ` + strings.Join(device.Backends(), ", ") + `

Routes are served under Endpoint, e.g. Endpoint "lab/scanner" gives
/lab/scanner/options, /lab/scanner/scan, and so on.  GET / lists them all.

While a scan runs, every request that changes state except /cancel and /lock
is refused with 423 Locked.

Pages are written to Recorder.Root/yyyy-mm-dd when Recorder.Enabled is true,
one image and one .yaml sidecar with a CRC-32 of the raw data per page.

Session events (option changes, scan start, progress, finish) are published
as JSON to MQTT.Broker under MQTT.Topic/<event> when MQTT.Enabled is true.`
	fmt.Println(str)
}

func mkconf() {
	c := Config{}
	err := k.Unmarshal("", &c)
	if err != nil {
		log.Fatal(err)
	}
	f, err := os.Create(ConfigFileName)
	if err != nil {
		log.Fatal(err)
	}
	defer f.Close()
	err = yml.NewEncoder(f).Encode(c)
	if err != nil {
		log.Fatal(err)
	}
}

func printconf() {
	c := Config{}
	k.Unmarshal("", &c)
	err := yml.NewEncoder(os.Stdout).Encode(c)
	if err != nil {
		log.Fatal(err)
	}
}

func pversion() {
	fmt.Printf("scansrv version %v\n", Version)
}

func run() {
	c := Config{}
	err := k.Unmarshal("", &c)
	if err != nil {
		log.Fatal(err)
	}
	if err := setLogLevel(c.LogLevel); err != nil {
		log.Fatal(err)
	}
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	s, err := OpenSession(c)
	if err != nil {
		log.Fatal(err)
	}
	defer s.Close()
	logger := device.Logger("scansrv")
	if sk := s.Registry().Skipped(); len(sk) > 0 {
		logger.Warn("options left out", "names", sk)
	}

	if c.MQTT.Enabled {
		pub, client, err := events.Dial(c.MQTT.Config)
		if err != nil {
			log.Fatal(err)
		}
		defer client.Disconnect(250)
		s.SetPublisher(pub)
	}

	if c.Scan.PollInterval > 0 {
		p := s.StartPolling(ctx, c.Scan.PollInterval)
		defer p.Stop()
	}

	rec, err := NewRecorder(c.Recorder)
	if err != nil {
		log.Fatal(err)
	}
	mux := BuildMux(ctx, c, s, rec)
	srv := &http.Server{Addr: c.Addr, Handler: mux}
	go func() {
		<-ctx.Done()
		s.Cancel()
		sctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		srv.Shutdown(sctx)
	}()
	log.Println("now listening for requests at ", c.Addr)
	if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		log.Fatal(err)
	}
}

func main() {
	var cmd string
	args := os.Args
	if len(args) == 1 {
		root()
		return
	}
	setupconfig()
	cmd = args[1]
	cmd = strings.ToLower(cmd)
	switch cmd {
	case "help":
		help()
		return
	case "mkconf":
		mkconf()
		return
	case "conf":
		printconf()
		return
	case "run":
		run()
		return
	case "version":
		pversion()
		return
	default:
		log.Fatal("unknown command")
	}
}
