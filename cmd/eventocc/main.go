package main

import (
	"context"
	"errors"
	"flag"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"
	_ "time/tzdata"

	"eventocc/internal/config"
	"eventocc/internal/ics"
	appLog "eventocc/internal/log"
	"eventocc/internal/scheduler"
	"eventocc/internal/storage"
	"eventocc/internal/web"
)

const version = "0.1.0"

type flagConfig struct {
	configPath string
	listen     string
	once       bool
}

func main() {
	flags := parseFlags()

	conf, err := config.Load(flags.configPath)
	if err != nil {
		appLog.Error("failed to load config", err, "config_path", flags.configPath)
		os.Exit(1)
	}
	appLog.SetLevel(appLog.ParseLevel(conf.LogLevel))

	// CLI --listen overrides config file listen if provided.
	if flags.listen != "" {
		conf.Listen = flags.listen
	}

	appLog.Info("eventocc starting", "version", version)
	appLog.Info("effective config",
		"listen", conf.Listen,
		"timezone", conf.Timezone,
		"database_path", conf.DatabasePath,
		"refresh", conf.RefreshCron,
		"horizon_days", conf.HorizonDays,
		"max_candidates", conf.MaxCandidates,
		"ics_count", len(conf.ICS),
		"once", flags.once,
	)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, conf, flags.once); err != nil {
		appLog.Error("eventocc failed", err)
		os.Exit(1)
	}
	appLog.Info("eventocc exiting")
}

func run(ctx context.Context, conf *config.Config, once bool) error {
	store, err := storage.New(conf.DatabasePath)
	if err != nil {
		return err
	}
	defer store.Close()

	fetcher := ics.NewFetcher(conf.CacheDir, 30*time.Second)
	sched, err := scheduler.New(conf, store, fetcher)
	if err != nil {
		return err
	}

	if once {
		rep, err := sched.RunOnce(ctx)
		if err != nil {
			return err
		}
		appLog.Info("single refresh complete",
			"imported", rep.Imported,
			"expanded", rep.Expanded,
			"skipped", rep.Skipped,
			"fetch_errors", rep.FetchErrs,
		)
		return nil
	}

	srv := &http.Server{
		Addr:              conf.Listen,
		Handler:           web.NewServer(conf, store).Handler(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 2)
	go func() {
		appLog.Info("starting HTTP server", "listen", "http://"+conf.Listen)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
	}()
	go func() {
		if err := sched.Start(ctx); err != nil {
			errCh <- err
		}
	}()

	var runErr error
	select {
	case <-ctx.Done():
		appLog.Info("signal received, shutting down")
	case runErr = <-errCh:
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		appLog.Error("http shutdown failed", err)
	}
	sched.Stop()
	return runErr
}

func parseFlags() flagConfig {
	var cfg flagConfig

	flag.StringVar(&cfg.configPath, "config", "/etc/eventocc/config.yaml", "Path to config file")
	flag.StringVar(&cfg.listen, "listen", "", "HTTP listen address (overrides config if set)")
	flag.BoolVar(&cfg.once, "once", false, "Run one import+expand cycle and exit")

	flag.Parse()

	return cfg
}
