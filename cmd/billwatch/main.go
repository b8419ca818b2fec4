package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/civicsignal/billwatch/internal/bill"
	"github.com/civicsignal/billwatch/internal/brief"
	"github.com/civicsignal/billwatch/internal/change"
	"github.com/civicsignal/billwatch/internal/config"
	"github.com/civicsignal/billwatch/internal/engine"
	"github.com/civicsignal/billwatch/internal/fetch"
	"github.com/civicsignal/billwatch/internal/filter"
	"github.com/civicsignal/billwatch/internal/logging"
	"github.com/civicsignal/billwatch/internal/metrics"
	"github.com/civicsignal/billwatch/internal/normalize"
	"github.com/civicsignal/billwatch/internal/pipeline"
	"github.com/civicsignal/billwatch/internal/store"
	"github.com/civicsignal/billwatch/internal/telemetry"
)

func main() {
	bills := flag.String("bills", "", "Comma-separated candidate bill identifiers (e.g. H1,H2,S45)")
	mode := flag.String("mode", "", "Admission policy: topical or trigger (overrides env)")
	dbPath := flag.String("db", "", "SQLite database path (overrides env)")
	metricsAddr := flag.String("metrics-addr", "", "Optional address to serve /metrics on during the run")
	flag.Parse()

	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("config: %v", err)
	}
	if *mode != "" {
		cfg.Mode = *mode
	}
	if *dbPath != "" {
		cfg.DBPath = *dbPath
	}

	candidates := splitIDs(*bills)
	if len(candidates) == 0 {
		log.Fatal("no candidates: pass -bills H1,H2,...")
	}

	logger := logging.New(cfg.AppEnv)

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	shutdown, err := telemetry.Init(ctx, cfg.OTLPEndpoint)
	if err != nil {
		log.Fatalf("telemetry: %v", err)
	}
	defer shutdown(context.Background())

	metrics.Register(prometheus.DefaultRegisterer)
	if *metricsAddr != "" {
		go func() {
			mux := http.NewServeMux()
			mux.Handle("/metrics", promhttp.Handler())
			if err := http.ListenAndServe(*metricsAddr, mux); err != nil {
				logger.Warn().Err(err).Msg("metrics server stopped")
			}
		}()
	}

	st, err := store.Open(cfg.DBPath)
	if err != nil {
		log.Fatalf("store: %v", err)
	}
	defer st.Close()

	caller, err := engine.NewAnthropicCallerFromEnv()
	if err != nil {
		log.Fatalf("engine: %v", err)
	}
	exec := engine.NewExecutor(caller)

	detector := change.NewDetector(st, change.Config{MarkSeenOnAccept: cfg.MarkSeenOnAccept})
	coordinator := pipeline.NewCoordinator(
		fetch.NewPageFetcher(cfg.BaseURL, cfg.Session, cfg.FetchRPS),
		normalize.NewParser(normalize.DefaultSelectors(), normalize.DefaultRules()),
		detector,
		filter.NewKeywordGate(),
		filter.NewSemanticGate(exec, logger),
		filter.NewTriggerGate(nil),
		brief.NewGenerator(exec),
		st,
		pipeline.Config{
			Mode:      pipeline.Mode(cfg.Mode),
			Session:   cfg.Session,
			BatchSize: cfg.BatchSize,
		},
		logger,
	)

	result, err := coordinator.Run(ctx, candidates, func(stage string, stats bill.RunStats) {
		logger.Info().Str("progress", stage).
			Int("checked", stats.Checked).
			Int("briefs", stats.BriefsCreated).
			Int("errors", stats.Errors).
			Msg("run progress")
	})
	if err != nil {
		log.Fatalf("run: %v", err)
	}

	summary, _ := json.MarshalIndent(result, "", "  ")
	fmt.Println(string(summary))
	if !result.Success {
		os.Exit(1)
	}
}

func splitIDs(s string) []string {
	var out []string
	for _, part := range strings.Split(s, ",") {
		if id := strings.TrimSpace(part); id != "" {
			out = append(out, id)
		}
	}
	return out
}
