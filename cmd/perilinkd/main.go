// Command perilinkd is the Perilink board daemon.
//
// It drives one FPGA peripheral board over a USB serial link and serves
// the text command protocol to TCP clients:
//   - CLI argument parsing with YAML configuration file support
//   - Serial or simulated board link
//   - Peripheral auto-load from the board's enumerator ROM
//   - mDNS discovery advertising
//   - CBOR protocol capture
//
// Usage:
//
//	perilinkd [flags]
//
// Flags:
//
//	-config string     Configuration file path
//	-device string     Serial device path (default "/dev/ttyUSB0")
//	-baud int          Serial baud rate (default 115200)
//	-listen string     Session listen address (default ":8870")
//	-driver string     Board driver loaded at boot (default "cmods7")
//	-manifest string   TOML driver manifest path
//	-capture string    CBOR protocol capture path
//	-log-level string  Log level: debug, info, warn, error (default "info")
//	-sim               Drive a simulated board instead of a serial device
//	-version           Print version and exit
//
// Examples:
//
//	# Drive a Cmod S7 on the second USB serial adapter
//	perilinkd -device /dev/ttyUSB1
//
//	# Start from a config file, overriding its listen address
//	perilinkd -config /etc/perilink/bench.yaml -listen :9000
//
//	# Simulated board with protocol capture
//	perilinkd -sim -capture /tmp/bench.plog -log-level debug
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log"
	"log/slog"
	"net"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/perilink/perilink-go/pkg/config"
	"github.com/perilink/perilink-go/pkg/discovery"
	"github.com/perilink/perilink-go/pkg/drivers"
	"github.com/perilink/perilink-go/pkg/engine"
	plog "github.com/perilink/perilink-go/pkg/log"
	"github.com/perilink/perilink-go/pkg/manifest"
	"github.com/perilink/perilink-go/pkg/session"
	"github.com/perilink/perilink-go/pkg/transport"
	"github.com/perilink/perilink-go/pkg/version"
)

// Options holds the command line settings. Flags override the
// configuration file where given.
type Options struct {
	ConfigFile string
	Device     string
	Baud       int
	Listen     string
	Driver     string
	Manifest   string
	Capture    string
	LogLevel   string
	Sim        bool
	Version    bool
}

var (
	opts Options

	cfg config.Config
	man *manifest.Manifest
	eng *engine.Engine
	adv *discovery.Advertiser

	// advPort is the bound session listener port, for mDNS records.
	advPort int
)

func init() {
	flag.StringVar(&opts.ConfigFile, "config", "", "Configuration file path")
	flag.StringVar(&opts.Device, "device", "", "Serial device path")
	flag.IntVar(&opts.Baud, "baud", 0, "Serial baud rate")
	flag.StringVar(&opts.Listen, "listen", "", "Session listen address")
	flag.StringVar(&opts.Driver, "driver", "", "Board driver loaded at boot")
	flag.StringVar(&opts.Manifest, "manifest", "", "TOML driver manifest path")
	flag.StringVar(&opts.Capture, "capture", "", "CBOR protocol capture path")
	flag.StringVar(&opts.LogLevel, "log-level", "", "Log level: debug, info, warn, error")
	flag.BoolVar(&opts.Sim, "sim", false, "Drive a simulated board instead of a serial device")
	flag.BoolVar(&opts.Version, "version", false, "Print version and exit")
}

func main() {
	flag.Parse()

	if opts.Version {
		fmt.Printf("perilinkd %s (protocol %s)\n", version.Daemon, version.Current)
		return
	}

	var err error
	cfg, err = loadConfig()
	if err != nil {
		log.Fatalf("Invalid configuration: %v", err)
	}

	setupLogging(cfg.Log.Level)

	log.Println("Perilink Daemon")
	log.Println("===============")
	log.Printf("Board: %s (driver %s)", cfg.Board.ID, cfg.Board.Driver)
	if opts.Sim {
		log.Println("Link: simulated board")
	} else {
		log.Printf("Link: %s @ %d baud", cfg.Board.Device, cfg.Board.Baud)
	}
	log.Printf("Listen: %s", cfg.Session.Listen)

	man, err = loadManifest()
	if err != nil {
		log.Fatalf("Failed to load driver manifest: %v", err)
	}

	// The packages log through slog; the level comes from the merged
	// config, which Validate has already checked.
	level, _ := cfg.Log.SlogLevel()
	slogger := slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: level}))

	var protocol plog.Logger
	if cfg.Log.Capture != "" {
		capture, err := plog.NewFileLogger(cfg.Log.Capture)
		if err != nil {
			log.Fatalf("Failed to open capture file: %v", err)
		}
		defer capture.Close()
		// First record names the producing daemon version.
		capture.Log(plog.Event{
			Timestamp: time.Now(),
			BoardID:   cfg.Board.ID,
			Layer:     plog.LayerEngine,
			Category:  plog.CategoryState,
			StateChange: &plog.StateChangeEvent{
				Entity:   plog.StateEntityCapture,
				NewState: version.Daemon,
				Reason:   "capture opened",
			},
		})
		protocol = capture
		log.Printf("Capture: %s", cfg.Log.Capture)
	}

	port, err := openPort()
	if err != nil {
		log.Fatalf("Failed to open board link: %v", err)
	}

	engConfig := engine.DefaultConfig()
	engConfig.BoardID = cfg.Board.ID
	engConfig.NewDriver = drivers.New
	engConfig.Logger = slogger
	engConfig.ProtocolLogger = protocol

	eng, err = engine.New(engConfig)
	if err != nil {
		log.Fatalf("Failed to create engine: %v", err)
	}
	eng.OnEvent(handleEvent)

	srvConfig := session.DefaultConfig()
	srvConfig.BoardID = cfg.Board.ID
	srvConfig.ListenAddress = cfg.Session.Listen
	srvConfig.Logger = slogger
	srvConfig.ProtocolLogger = protocol

	srv, err := session.NewServer(srvConfig, eng)
	if err != nil {
		log.Fatalf("Failed to create session server: %v", err)
	}
	eng.OnDeliver(srv.Deliver)
	eng.OnComplete(srv.Complete)

	if err := eng.Start(port); err != nil {
		log.Fatalf("Failed to start engine: %v", err)
	}
	if err := srv.Start(); err != nil {
		log.Fatalf("Failed to start session server: %v", err)
	}
	advPort = listenPort(srv.Addr())
	log.Printf("Serving sessions on %s", srv.Addr())

	if cfg.Discovery.Enabled {
		adv = discovery.NewAdvertiser(discovery.DefaultAdvertiserConfig())
		if err := adv.Advertise(daemonInfo()); err != nil {
			log.Printf("Warning: mDNS advertising failed: %v", err)
			adv = nil
		} else {
			log.Printf("Advertising as %q", instanceName())
		}
	}

	// Install the board driver. Its enumerator read answers with the
	// peripheral list, which triggers auto-load.
	if err := eng.Load("", cfg.Board.Driver, 0); err != nil {
		log.Fatalf("Failed to load board driver %s: %v", cfg.Board.Driver, err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	if opts.Sim {
		go runSimulation(ctx, simBoard)
	}

	// Wait for shutdown signal
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	sig := <-sigCh

	log.Printf("Received signal: %v", sig)
	log.Println("Shutting down...")

	cancel()
	if adv != nil {
		adv.Stop()
	}
	if err := srv.Stop(); err != nil {
		log.Printf("Error stopping session server: %v", err)
	}
	if err := eng.Stop(); err != nil {
		log.Printf("Error stopping engine: %v", err)
	}

	log.Println("Goodbye!")
}

// loadConfig merges defaults, the optional config file, and flag
// overrides, then validates the result.
func loadConfig() (config.Config, error) {
	cfg := config.DefaultConfig()
	if opts.ConfigFile != "" {
		loaded, err := config.Load(opts.ConfigFile)
		if err != nil {
			return config.Config{}, err
		}
		cfg = loaded
	}

	if opts.Device != "" {
		cfg.Board.Device = opts.Device
	}
	if opts.Baud != 0 {
		cfg.Board.Baud = opts.Baud
	}
	if opts.Listen != "" {
		cfg.Session.Listen = opts.Listen
	}
	if opts.Driver != "" {
		cfg.Board.Driver = opts.Driver
	}
	if opts.Manifest != "" {
		cfg.Board.Manifest = opts.Manifest
	}
	if opts.Capture != "" {
		cfg.Log.Capture = opts.Capture
	}
	if opts.LogLevel != "" {
		cfg.Log.Level = opts.LogLevel
	}

	if err := cfg.Validate(); err != nil {
		return config.Config{}, err
	}
	return cfg, nil
}

func setupLogging(level string) {
	log.SetFlags(log.Ltime | log.Lmicroseconds)

	switch level {
	case "debug":
		log.SetFlags(log.Ltime | log.Lmicroseconds | log.Lshortfile)
	case "warn", "error":
		log.SetFlags(log.Ltime)
	}
}

func loadManifest() (*manifest.Manifest, error) {
	if cfg.Board.Manifest == "" {
		return manifest.Default(), nil
	}
	m, err := manifest.Load(cfg.Board.Manifest)
	if err != nil {
		return nil, err
	}
	if m.Name != "" {
		log.Printf("Driver manifest: %s (%s)", cfg.Board.Manifest, m.Name)
	} else {
		log.Printf("Driver manifest: %s", cfg.Board.Manifest)
	}
	return m, nil
}

// openPort opens the board link: a serial device, or a seeded
// simulated board under -sim.
func openPort() (transport.Port, error) {
	if opts.Sim {
		simBoard = newSimBoard()
		return simBoard, nil
	}
	return transport.OpenSerial(cfg.Board.Device, cfg.Board.Baud)
}

func listenPort(addr net.Addr) int {
	if tcp, ok := addr.(*net.TCPAddr); ok {
		return tcp.Port
	}
	return discovery.DefaultPort
}

func instanceName() string {
	if cfg.Discovery.Instance != "" {
		return cfg.Discovery.Instance
	}
	return cfg.Board.ID
}

func daemonInfo() *discovery.DaemonInfo {
	return &discovery.DaemonInfo{
		Instance: cfg.Discovery.Instance,
		Version:  version.Current,
		BoardID:  cfg.Board.ID,
		Slots:    eng.SlotCount(),
		Port:     advPort,
	}
}

func handleEvent(event engine.Event) {
	switch event.Type {
	case engine.EventSlotLoaded:
		log.Printf("[EVENT] Slot %d loaded: %s", event.SlotID, event.Driver)
		refreshAdvertisement()
	case engine.EventSlotFailed:
		// Auto-load retries occupied cores on every enumerator read.
		if errors.Is(event.Error, engine.ErrSlotOccupied) {
			return
		}
		log.Printf("[EVENT] Load of %s failed: %v", event.Driver, event.Error)
	case engine.EventEnumeration:
		log.Printf("[EVENT] Enumerator reports %d peripherals", countIDs(event.DriverIDs))
		autoLoad(event.DriverIDs)
	case engine.EventLinkState:
		log.Printf("[EVENT] Link state: %s", event.LinkState)
	case engine.EventAckTimeout:
		log.Printf("[EVENT] No response from board for resource '%s' (slot %d)",
			event.Resource, event.SlotID)
	case engine.EventProtocolMismatch:
		log.Println("[EVENT] Unmatched packet from board")
	}
}

// autoLoad installs drivers for the peripherals the enumerator
// reports. Entry i is the driver ID on core i; core 0 carries the
// board driver itself and zero marks an empty core.
func autoLoad(ids []uint16) {
	if !cfg.Board.AutoLoad {
		return
	}
	for core, id := range ids {
		if core == 0 || id == 0 {
			continue
		}
		name, ok := man.Driver(id)
		if !ok {
			log.Printf("[EVENT] No driver for peripheral ID 0x%04x on core %d", id, core)
			continue
		}
		if err := eng.Load("", name, core); err != nil {
			log.Printf("Auto-load of %s on core %d failed: %v", name, core, err)
		}
	}
}

func countIDs(ids []uint16) int {
	n := 0
	for _, id := range ids {
		if id != 0 {
			n++
		}
	}
	return n
}

func refreshAdvertisement() {
	if adv == nil {
		return
	}
	if err := adv.Update(daemonInfo()); err != nil {
		log.Printf("Warning: mDNS update failed: %v", err)
	}
}
