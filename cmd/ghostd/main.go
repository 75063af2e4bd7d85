// Command ghostd boots the ghostcore runtime: it reserves the virtual
// arena, spawns the status and ingest fibers, and enters the cooperative
// scheduling loop. The loop only exits via process termination (SIGINT or
// SIGTERM trigger a clean shutdown first).
package main

import (
	"context"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/dustin/go-humanize"

	"github.com/hupe1980/ghostcore"
)

func main() {
	var (
		reset     = flag.Bool("reset", false, "discard existing vector log records at startup")
		status    = flag.Bool("status", false, "print a telemetry snapshot and exit")
		spool     = flag.String("ingest", "", "document spool to ingest (newline-delimited; zstd/lz4 auto-detected; - for stdin)")
		arenaSize = flag.Uint64("arena-size", 0, "override the reserved arena size in bytes (0 = 1 TiB default)")
		logLevel  = flag.String("log-level", "info", "log level: debug, info, warn, error")
	)
	flag.Parse()

	logger := ghostcore.NewTextLogger(parseLevel(*logLevel))

	opts := []ghostcore.Option{
		ghostcore.WithLogger(logger),
		ghostcore.WithReset(*reset),
	}
	if *arenaSize > 0 {
		opts = append(opts, ghostcore.WithArenaSize(*arenaSize))
	}

	rt, err := ghostcore.New(opts...)
	if err != nil {
		slog.Error("runtime boot failed", "error", err)
		os.Exit(1)
	}

	if *status {
		printStatus(rt.Stats())
		rt.Shutdown()
		return
	}

	if err := rt.Start(context.Background()); err != nil {
		slog.Error("runtime start failed", "error", err)
		os.Exit(1)
	}

	// Graceful exit: the scheduler loop never returns on its own.
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		<-sigCh
		logger.Info("shutting down")
		if err := rt.Shutdown(); err != nil {
			logger.Error("shutdown failed", "error", err)
			os.Exit(1)
		}
		os.Exit(0)
	}()

	sched := rt.Scheduler()

	sched.Spawn("status", func() {
		last := time.Now()
		for {
			if time.Since(last) >= 5*time.Second {
				s := rt.Stats()
				logger.Info("status",
					"docs", s.DocumentsStored,
					"vocab", s.VocabularySize,
					"faults", s.FaultCount,
					"resident", humanize.IBytes(s.ResidentBytes),
					"queue", s.QueueLen,
				)
				last = time.Now()
			}
			sched.Yield()
		}
	})

	if *spool != "" {
		path := *spool
		sched.Spawn("ingest", func() {
			if err := rt.IngestSpool(path); err != nil {
				logger.Error("spool ingest failed", "path", path, "error", err)
			}
		})
	}

	sched.Run()
}

func printStatus(s ghostcore.Stats) {
	fmt.Printf("documents stored : %d\n", s.DocumentsStored)
	fmt.Printf("arena reserved   : %s\n", humanize.IBytes(s.ArenaSize))
	fmt.Printf("resident         : %s (%d pages)\n", humanize.IBytes(s.ResidentBytes), s.ResidentPages)
	fmt.Printf("faults healed    : %d\n", s.FaultCount)
	fmt.Printf("heap in use      : %s\n", humanize.IBytes(s.Heap.InUseBytes))
}

func parseLevel(s string) slog.Level {
	switch s {
	case "debug":
		return slog.LevelDebug
	case "warn":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}
