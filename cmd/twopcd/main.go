package main

import (
	"flag"
	"fmt"
	"io"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/coralbase/twopc/adminview"
	"github.com/coralbase/twopc/cfg"
	"github.com/coralbase/twopc/checkpointidx"
	"github.com/coralbase/twopc/clog"
	"github.com/coralbase/twopc/distribxact"
	"github.com/coralbase/twopc/gxact"
	"github.com/coralbase/twopc/hlc"
	"github.com/coralbase/twopc/id"
	"github.com/coralbase/twopc/procarray"
	"github.com/coralbase/twopc/recovery"
	"github.com/coralbase/twopc/rmgr"
	"github.com/coralbase/twopc/storage"
	"github.com/coralbase/twopc/subxact"
	"github.com/coralbase/twopc/telemetry"
	"github.com/coralbase/twopc/twopc"
	"github.com/coralbase/twopc/txnapi"
	"github.com/coralbase/twopc/wal"

	"github.com/go-chi/chi/v5"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

func main() {
	flag.Parse()

	if err := cfg.Load(*cfg.ConfigPathFlag); err != nil {
		panic(err)
	}
	if err := cfg.Validate(); err != nil {
		panic(fmt.Sprintf("invalid configuration: %v", err))
	}

	var writer io.Writer = zerolog.NewConsoleWriter()
	if cfg.Config.Logging.Format == "json" {
		writer = os.Stdout
	}
	gLog := zerolog.New(writer).With().Timestamp().Uint64("node_id", cfg.Config.NodeID).Logger()
	if cfg.Config.Logging.Verbose {
		log.Logger = gLog.Level(zerolog.DebugLevel)
	} else {
		log.Logger = gLog.Level(zerolog.InfoLevel)
	}

	log.Info().Msg("twopc - two-phase-commit coordination core")
	log.Debug().Msg("initializing telemetry")
	telemetry.InitializeTelemetry()

	clock := hlc.NewClock(cfg.Config.NodeID)

	walDir := filepath.Join(cfg.Config.DataDir, "wal")
	walLog, err := wal.Open(walDir, cfg.Config.WALSegmentCeilingBytes)
	if err != nil {
		log.Fatal().Err(err).Msg("failed to open WAL")
	}
	defer walLog.Close()

	clogLog, err := clog.Open(filepath.Join(cfg.Config.DataDir, "clog"))
	if err != nil {
		log.Fatal().Err(err).Msg("failed to open clog")
	}
	defer clogLog.Close()

	unlinker, err := storage.NewUnlinker(filepath.Join(cfg.Config.DataDir, "relfiles"))
	if err != nil {
		log.Fatal().Err(err).Msg("failed to initialize storage collaborator")
	}

	procs := procarray.NewTable()
	subxacts := subxact.NewMap()
	registry := rmgr.NewRegistry()
	cracker := distribxact.NewCracker(clock)
	checkpoints := checkpointidx.NewIndex()
	table := gxact.NewTable(cfg.Config.MaxPreparedTransactions, 1<<16, procs, cracker)

	log.Info().Int("max_prepared_transactions", cfg.Config.MaxPreparedTransactions).Msg("running recovery")
	driver := recovery.NewDriver(checkpoints, walLog, clogLog, subxacts, registry)
	if _, err := driver.Prescan(); err != nil {
		log.Fatal().Err(err).Msg("recovery prescan failed")
	}
	if err := driver.Recover(table, cracker); err != nil {
		log.Fatal().Err(err).Msg("recovery replay failed")
	}
	log.Info().Int("recovered", table.Occupied()).Msg("recovery complete")

	subsystem := twopc.NewSubsystem(table, checkpoints, walLog, clogLog, unlinker, subxacts, registry, cracker, procs)
	idGen := id.NewHLCGenerator(clock)
	writeAPI := txnapi.NewServer(subsystem, idGen, cfg.Config.WALSegmentCeilingBytes)

	collector := telemetry.NewMetricsCollector(table, checkpoints, 5*time.Second)
	collector.Start()
	defer collector.Stop()

	var adminServer *http.Server
	if cfg.Config.AdminHTTP.Enabled {
		r := chi.NewRouter()
		if cfg.Config.Prometheus.Enabled {
			r.Handle("/metrics", telemetry.GetMetricsHandler())
		}
		adminview.NewServer(table).Routes(r)
		writeAPI.Routes(r)

		addr := fmt.Sprintf("%s:%d", cfg.Config.AdminHTTP.BindAddress, cfg.Config.AdminHTTP.Port)
		adminServer = &http.Server{Addr: addr, Handler: r}
		go func() {
			log.Info().Str("addr", addr).Msg("admin HTTP server listening")
			if err := adminServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
				log.Error().Err(err).Msg("admin HTTP server stopped unexpectedly")
			}
		}()
	}

	log.Info().Msg("twopc started successfully")

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	<-sigCh

	log.Info().Msg("shutting down")
	if adminServer != nil {
		_ = adminServer.Close()
	}
}
