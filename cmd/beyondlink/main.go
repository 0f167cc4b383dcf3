package main

import (
	"context"
	"flag"
	"log"
	"net"
	"net/http"
	"os"
	"os/signal"
	"strconv"
	"sync"
	"syscall"
	"time"

	"github.com/banshee-data/beyondlink/internal/db"
	"github.com/banshee-data/beyondlink/internal/laser"
	"github.com/banshee-data/beyondlink/internal/laser/decoder"
	"github.com/banshee-data/beyondlink/internal/laser/monitor"
	"github.com/banshee-data/beyondlink/internal/laser/network"
	"github.com/banshee-data/beyondlink/internal/version"
)

var (
	configFile     = flag.String("config", "", "Path to a JSON tuning config (built-in defaults when empty)")
	listen         = flag.String("listen", ":8082", "HTTP status listen address (empty disables the status server)")
	udpPort        = flag.Int("port", 5568, "UDP port Beyond sends to")
	maxDevices     = flag.Int("max-devices", 9, "Number of Beyond devices (zones/fixtures) to receive")
	rcvBuf         = flag.Int("rcvbuf", 256*1024, "UDP receive buffer size in bytes")
	localIP        = flag.String("local-ip", "", "Local interface address for multicast joins (default: OS choice)")
	viewDevice     = flag.Int("device", 1, "Device number (1-based) highlighted in status reports")
	fallbackDevice = flag.Int("fallback-device", -1, "Device index for packets without destination metadata (-1 drops them)")
	quality        = flag.String("quality", "high", "Downsampling quality: low, medium, high or ultra")
	noSim          = flag.Bool("no-sim", false, "Disable scanner simulation (points pass through unchanged)")
	dbFile         = flag.String("db", "", "Path to a SQLite status history database (empty disables history)")
	retention      = flag.Duration("history-retention", 24*time.Hour, "Age after which status history is pruned (0 keeps everything)")
	pcapFile       = flag.String("pcap", "", "Replay Beyond traffic from a pcap capture instead of joining multicast groups")
	pcapSpeed      = flag.Float64("pcap-speed", 1.0, "PCAP replay speed multiplier (0 replays as fast as possible)")
	forwardAddr    = flag.String("forward-addr", "", "Forward received datagrams to this host (empty disables forwarding)")
	forwardPort    = flag.Int("forward-port", 5569, "Port to forward datagrams to")
)

func main() {
	flag.Parse()
	log.Printf("beyondlink %s", version.String())

	if flag.Arg(0) == "migrate" {
		if err := db.RunMigrateCommand(flag.Args()[1:], *dbFile, os.Stdout); err != nil {
			log.Fatalf("migrate: %v", err)
		}
		return
	}

	set := make(map[string]bool)
	flag.Visit(func(f *flag.Flag) { set[f.Name] = true })
	tuning, err := loadTuning(*configFile, set)
	if err != nil {
		log.Fatalf("Failed to load configuration: %v", err)
	}

	devices := tuning.GetMaxDevices()
	port := tuning.GetNetworkPort()
	viewing := *viewDevice - 1
	if viewing < 0 || viewing >= devices {
		log.Fatalf("-device must be between 1 and %d, got %d", devices, *viewDevice)
	}

	var bindIP net.IP
	if *localIP != "" {
		if bindIP = net.ParseIP(*localIP).To4(); bindIP == nil {
			log.Fatalf("-local-ip %q is not an IPv4 address", *localIP)
		}
	}

	registry := laser.NewRegistry(tuning.ScannerConfig())
	for i := 0; i < devices; i++ {
		registry.Ensure(i)
	}

	stats := network.NewStats()
	ticks := monitor.NewTickTimer(256)
	reporter := monitor.NewReporter(registry, stats, ticks, viewing)

	var store *db.DB
	var session *db.Session
	if *dbFile != "" {
		store, err = db.OpenDB(*dbFile)
		if err != nil {
			log.Fatalf("Failed to open status database: %v", err)
		}
		defer store.Close()
		session, err = store.StartSession(version.Version, devices, port)
		if err != nil {
			log.Fatalf("Failed to start history session: %v", err)
		}
		log.Printf("Recording status history to %s (session %s)", store.Path(), session.ID)
	}

	var forwarder *network.PacketForwarder
	if *forwardAddr != "" {
		forwarder, err = network.NewPacketForwarder(*forwardAddr, *forwardPort, stats, time.Minute)
		if err != nil {
			log.Fatalf("Failed to create packet forwarder: %v", err)
		}
		defer forwarder.Close()
		log.Printf("Forwarding Beyond datagrams to %s:%d", *forwardAddr, *forwardPort)
	}

	var transport network.Transport
	if *pcapFile == "" {
		transport = network.NewMulticastGroupManager(network.ManagerConfig{
			Port:       port,
			MaxDevices: devices,
			RcvBuf:     tuning.GetReceiveBuffer(),
		})
	}

	receiver := network.NewReceiver(network.ReceiverConfig{
		Transport: transport,
		LocalIP:   bindIP,
		Identifier: network.DeviceIdentifier{
			MaxDevices:     devices,
			FallbackDevice: tuning.GetFallbackDevice(),
		},
		Decoder:   decoder.NewFloat32Decoder(),
		Registry:  registry,
		Stats:     stats,
		Forwarder: forwarder,
	})

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := receiver.Start(ctx); err != nil {
		log.Fatalf("Failed to start Beyond receiver: %v", err)
	}
	if transport != nil {
		log.Printf("Listening for Beyond on UDP port %d (239.255.0-%d.0-30)", port, devices)
	}

	var wg sync.WaitGroup

	wg.Add(1)
	go func() {
		defer wg.Done()
		runFrameLoop(ctx, registry, ticks, reporter, tuning.GetTickInterval())
		log.Print("frame loop terminated")
	}()

	var history historyRecorder
	if store != nil {
		history = &dbHistory{store: store, session: session, retention: *retention}
	}
	wg.Add(1)
	go func() {
		defer wg.Done()
		runStatusLoop(ctx, reporter, stats, history, tuning.GetStatusInterval())
		log.Print("status loop terminated")
	}()

	if *pcapFile != "" {
		wg.Add(1)
		go func() {
			defer wg.Done()
			res, err := network.ReplayPCAP(ctx, *pcapFile, network.ReplayConfig{
				Port:            port,
				SpeedMultiplier: *pcapSpeed,
			}, receiver)
			if err != nil && ctx.Err() == nil {
				log.Printf("PCAP replay failed: %v", err)
				return
			}
			log.Printf("PCAP replay finished: %d packets, %d skipped in %v", res.Packets, res.Skipped, res.Elapsed)
		}()
	}

	if *listen != "" {
		cfg := monitor.WebServerConfig{
			Address:  *listen,
			Registry: registry,
			Stats:    stats,
			Reporter: reporter,
			Ticks:    ticks,
			Info: monitor.RunInfo{
				Version:    version.Version,
				Port:       port,
				MaxDevices: devices,
			},
		}
		if forwarder != nil {
			cfg.Info.ForwardAddr = net.JoinHostPort(*forwardAddr, strconv.Itoa(*forwardPort))
		}
		if store != nil {
			cfg.History = store
			cfg.Admin = func(mux *http.ServeMux) error { return store.AttachAdminRoutes(mux) }
		}
		ws, err := monitor.NewWebServer(cfg)
		if err != nil {
			log.Fatalf("Failed to create web server: %v", err)
		}
		wg.Add(1)
		go func() {
			defer wg.Done()
			if err := ws.Start(ctx); err != nil {
				log.Printf("web server error: %v", err)
			}
		}()
	}

	<-ctx.Done()
	log.Printf("Shutting down...")
	if err := receiver.Stop(); err != nil {
		log.Printf("receiver stop: %v", err)
	}

	// Wait for all goroutines to finish
	wg.Wait()
	stats.LogStats()
	log.Printf("Graceful shutdown complete")
}
