package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"strconv"
	"strings"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	"github.com/hive-corporation/actionables/internal/app"
	"github.com/hive-corporation/actionables/internal/core/importer"
	"github.com/hive-corporation/actionables/internal/scheduler"
)

func main() {
	configPath := flag.String("config", "", "Path to the YAML config file")
	from := flag.String("from", "", "Import reports created at or after this RFC3339 time")
	to := flag.String("to", "", "Import reports created before this RFC3339 time (default now)")
	ids := flag.String("ids", "", "Comma separated report revision ids to import")
	schedule := flag.Bool("schedule", false, "Run imports on the configured cron schedule")
	metricsAddr := flag.String("metrics-addr", ":9090", "Metrics listen address in schedule mode")
	flag.Parse()

	cfg, log, err := app.LoadConfig(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "actionables ingester: %v\n", err)
		os.Exit(2)
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	a, err := app.Open(ctx, cfg, log)
	if err != nil {
		log.Fatal("startup failed", zap.Error(err))
	}
	defer a.Close(context.Background())

	if *schedule {
		err = runScheduled(ctx, a, *metricsAddr)
	} else {
		err = runOnce(ctx, a, *from, *to, *ids)
	}
	if err != nil {
		log.Error("ingester failed", zap.Error(err))
		a.Close(context.Background())
		os.Exit(1)
	}
}

func runOnce(ctx context.Context, a *app.App, from, to, ids string) error {
	var (
		sum importer.Summary
		err error
	)
	switch {
	case ids != "":
		reportIDs, perr := parseIDs(ids)
		if perr != nil {
			return perr
		}
		sum, err = a.Importer.ImportIDs(ctx, reportIDs)
	default:
		start, end, perr := parseWindow(from, to, a.Config.Import.Lookback, time.Now())
		if perr != nil {
			return perr
		}
		sum, err = a.Importer.ImportRange(ctx, start, end)
	}
	if err != nil {
		return err
	}

	a.Log.Info("import finished",
		zap.String("run_id", sum.RunID),
		zap.Int("reports", sum.Reports),
		zap.Int("failed", sum.Failed),
		zap.Int("rows", sum.Rows),
		zap.Int("skipped", sum.Skipped),
		zap.Int("indicators_created", sum.IndicatorsCreated),
		zap.Int("sources_created", sum.SourcesCreated),
		zap.Int("status_changes", sum.StatusChanges),
		zap.Int("outdated", sum.Outdated))
	if sum.Failed > 0 {
		return fmt.Errorf("%d of %d reports failed", sum.Failed, sum.Reports)
	}
	return nil
}

func runScheduled(ctx context.Context, a *app.App, metricsAddr string) error {
	s := scheduler.New(a.Importer, a.Sweeper, a.Tx, a.Lock, scheduler.Config{
		Schedule:   a.Config.Import.Schedule,
		Lookback:   a.Config.Import.Lookback,
		LockTTL:    a.Config.Redis.LockTTL,
		SystemUser: a.Config.Import.SystemUser,
		Sweep:      true,
	}, a.Log)
	if err := s.Start(ctx); err != nil {
		return err
	}

	var srv *http.Server
	if a.Config.Metrics.Enabled {
		mux := http.NewServeMux()
		mux.Handle("/metrics", promhttp.Handler())
		srv = &http.Server{Addr: metricsAddr, Handler: mux, ReadHeaderTimeout: 10 * time.Second}
		go func() {
			a.Log.Info("metrics listening", zap.String("addr", metricsAddr))
			if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				a.Log.Error("metrics server failed", zap.Error(err))
			}
		}()
	}

	<-ctx.Done()
	a.Log.Info("shutting down ingester")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), a.Config.API.ShutdownTimeout)
	defer cancel()
	if srv != nil {
		_ = srv.Shutdown(shutdownCtx)
	}
	return s.Stop(shutdownCtx)
}

// parseWindow resolves the -from/-to flags. A missing start means the
// configured lookback before the end.
func parseWindow(from, to string, lookback time.Duration, now time.Time) (time.Time, time.Time, error) {
	end := now
	if to != "" {
		t, err := time.Parse(time.RFC3339, to)
		if err != nil {
			return time.Time{}, time.Time{}, fmt.Errorf("invalid -to: %w", err)
		}
		end = t
	}
	start := end.Add(-lookback)
	if from != "" {
		t, err := time.Parse(time.RFC3339, from)
		if err != nil {
			return time.Time{}, time.Time{}, fmt.Errorf("invalid -from: %w", err)
		}
		start = t
	}
	if !start.Before(end) {
		return time.Time{}, time.Time{}, fmt.Errorf("empty window %s..%s", start.Format(time.RFC3339), end.Format(time.RFC3339))
	}
	return start, end, nil
}

func parseIDs(s string) ([]int64, error) {
	var out []int64
	for _, part := range strings.Split(s, ",") {
		part = strings.TrimSpace(part)
		if part == "" {
			continue
		}
		id, err := strconv.ParseInt(part, 10, 64)
		if err != nil {
			return nil, fmt.Errorf("invalid report id %q", part)
		}
		out = append(out, id)
	}
	if len(out) == 0 {
		return nil, errors.New("no report ids given")
	}
	return out, nil
}
