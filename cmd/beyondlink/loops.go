package main

import (
	"context"
	"fmt"
	"log"
	"time"

	"github.com/banshee-data/beyondlink/internal/config"
	"github.com/banshee-data/beyondlink/internal/db"
	"github.com/banshee-data/beyondlink/internal/laser"
	"github.com/banshee-data/beyondlink/internal/laser/monitor"
)

// loadTuning reads the tuning file (if any) and applies the command-line
// flags that were explicitly set on top of it.
func loadTuning(path string, set map[string]bool) (*config.TuningConfig, error) {
	cfg := config.EmptyTuningConfig()
	if path != "" {
		var err error
		if cfg, err = config.LoadTuningConfig(path); err != nil {
			return nil, err
		}
	}

	if set["port"] {
		cfg.NetworkPort = udpPort
	}
	if set["max-devices"] {
		cfg.MaxDevices = maxDevices
	}
	if set["rcvbuf"] {
		cfg.ReceiveBuffer = rcvBuf
	}
	if set["fallback-device"] {
		cfg.FallbackDevice = fallbackDevice
	}
	if set["quality"] {
		cfg.Quality = quality
	}
	if set["no-sim"] {
		sim := !*noSim
		cfg.ScannerSimulation = &sim
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid flags: %w", err)
	}
	return cfg, nil
}

// runFrameLoop drives the simulation once per tick until ctx is done.
func runFrameLoop(ctx context.Context, registry *laser.Registry, ticks *monitor.TickTimer, reporter *monitor.Reporter, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			start := time.Now()
			registry.Update()
			ticks.Observe(time.Since(start))
			reporter.Frame()
		}
	}
}

// statsLogger is the part of network.Stats the status loop needs.
type statsLogger interface {
	LogStats()
}

type historyRecorder interface {
	Record(rep monitor.Report) error
}

// runStatusLoop prints a status report every interval and records it.
func runStatusLoop(ctx context.Context, reporter *monitor.Reporter, stats statsLogger, history historyRecorder, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case now := <-ticker.C:
			rep := reporter.Build(now)
			log.Print(rep.String())
			stats.LogStats()
			if history != nil {
				if err := history.Record(rep); err != nil {
					log.Printf("failed to record status snapshot: %v", err)
				}
			}
		}
	}
}

// dbHistory stores reports in the status database.
type dbHistory struct {
	store     *db.DB
	session   *db.Session
	retention time.Duration
}

func (h *dbHistory) Record(rep monitor.Report) error {
	snap := &db.StatusSnapshot{
		SessionID: h.session.ID,
		Taken:     rep.Taken,
		Network:   rep.Network,
		FPS:       rep.FPS,
		Devices:   rep.Devices,
	}
	if err := h.store.RecordSnapshot(snap); err != nil {
		return err
	}
	if h.retention > 0 {
		n, err := h.store.PruneSnapshots(rep.Taken.Add(-h.retention))
		if err != nil {
			return fmt.Errorf("prune: %w", err)
		}
		if n > 0 {
			log.Printf("Pruned %d status snapshots older than %v", n, h.retention)
		}
	}
	return nil
}
