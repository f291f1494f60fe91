package main

import (
	"context"
	"flag"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/robfig/cron/v3"

	"dayplan/internal/config"
	"dayplan/internal/ics"
	appLog "dayplan/internal/log"
	"dayplan/internal/tasks"
	"dayplan/internal/web"
)

// flagConfig holds CLI flag values.
type flagConfig struct {
	configPath string
	listen     string
	logLevel   string
	cacheDir   string
}

func main() {
	appLog.Info("dayplan starting", "version", "0.1.0")

	flags := parseFlags()
	appLog.SetLevel(appLog.ParseLevel(flags.logLevel))

	conf, err := config.Load(flags.configPath)
	if err != nil {
		appLog.Error("failed to load config", err, "config_path", flags.configPath)
		os.Exit(1)
	}

	// CLI --listen overrides config file listen if provided.
	if flags.listen != "" {
		conf.Listen = flags.listen
	}

	appLog.Info("effective config",
		"listen", conf.Listen,
		"timezone", conf.Timezone,
		"refresh", conf.RefreshCron,
		"cushion_minutes", conf.CushionMinutes,
		"default_task_duration_minutes", conf.DefaultTaskDurationMinutes,
		"task_db", conf.TaskDB,
		"calendar_count", len(conf.Calendars),
	)

	store, err := tasks.New(conf.TaskDB)
	if err != nil {
		appLog.Error("failed to open task store", err, "task_db", conf.TaskDB)
		os.Exit(1)
	}
	defer store.Close()

	fetcher := ics.NewFetcher(flags.cacheDir)

	// Root context with cancellation on SIGINT/SIGTERM.
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	go func() {
		sig := <-sigCh
		appLog.Info("signal received, shutting down", "signal", sig.String())
		cancel()
	}()

	server := web.NewServer(conf, store, fetcher)

	// Background prewarm keeps the ICS fetch cache warm so interactive
	// timeline requests rarely wait on upstream calendars.
	c := cron.New()
	if _, err := c.AddFunc(conf.RefreshCron, func() {
		prewarm(ctx, server, fetcher)
	}); err != nil {
		appLog.Error("invalid refresh cron expression", err, "refresh", conf.RefreshCron)
		os.Exit(1)
	}
	c.Start()
	defer c.Stop()

	// Warm once at startup without blocking the listener.
	go prewarm(ctx, server, fetcher)

	httpSrv := &http.Server{
		Addr:    conf.Listen,
		Handler: server.Handler(),
	}

	errCh := make(chan error, 1)
	go func() {
		appLog.Info("starting HTTP server", "listen", "http://"+conf.Listen)
		errCh <- httpSrv.ListenAndServe()
	}()

	select {
	case <-ctx.Done():
		shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer shutdownCancel()
		if err := httpSrv.Shutdown(shutdownCtx); err != nil {
			appLog.Error("HTTP shutdown failed", err)
		}
	case err := <-errCh:
		if err != nil && err != http.ErrServerClosed {
			appLog.Error("HTTP server failed", err)
			os.Exit(1)
		}
	}

	appLog.Info("dayplan exiting")
}

func prewarm(ctx context.Context, server *web.Server, fetcher *ics.Fetcher) {
	sources := server.Sources()
	if len(sources) == 0 {
		return
	}
	_, errs := fetcher.FetchAll(ctx, sources)
	appLog.Info("calendar prewarm completed", "source_count", len(sources), "error_count", len(errs))
}

func parseFlags() flagConfig {
	var cfg flagConfig

	flag.StringVar(&cfg.configPath, "config", "/etc/dayplan/config.yaml", "Path to config file")
	flag.StringVar(&cfg.listen, "listen", "", "HTTP listen address (overrides config if set)")
	flag.StringVar(&cfg.logLevel, "log-level", "info", "Log level: debug, info, error")
	flag.StringVar(&cfg.cacheDir, "cache-dir", "/var/lib/dayplan/ics-cache", "Directory for the ICS fetch cache")

	flag.Parse()

	return cfg
}
