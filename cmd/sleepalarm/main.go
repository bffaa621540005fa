package main

import (
	"context"
	"encoding/json"
	"errors"
	"flag"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"sleepalarm/internal/config"
	appLog "sleepalarm/internal/log"
	"sleepalarm/internal/metrics"
	"sleepalarm/internal/notify"
	"sleepalarm/internal/schedule"
	"sleepalarm/internal/session"
	"sleepalarm/internal/store"
	"sleepalarm/internal/web"
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

	// CLI --listen overrides config file listen if provided.
	if flags.listen != "" {
		conf.Listen = flags.listen
	}

	if err := appLog.Init(conf.Log.Level, conf.Log.Format); err != nil {
		appLog.Error("failed to init logger", err)
		os.Exit(1)
	}
	defer appLog.Sync()

	appLog.Info("sleepalarm starting", "version", version)
	appLog.Info("effective config",
		"listen", conf.Listen,
		"store", conf.Store.Backend,
		"tick", conf.Tick,
		"day_reset", conf.DayReset,
		"mqtt", conf.MQTT.Broker != "",
		"basic_auth", conf.BasicAuth != nil,
		"once", flags.once,
	)

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

	if err := run(ctx, conf, flags.once); err != nil {
		appLog.Error("sleepalarm failed", err)
		appLog.Sync()
		os.Exit(1)
	}
	appLog.Info("sleepalarm exiting")
}

func run(ctx context.Context, conf *config.Config, once bool) error {
	metrics.Init(nil)

	st, err := store.New(ctx, conf.Store, appLog.Logger())
	if err != nil {
		return err
	}
	defer st.Close()

	cal := notify.NewCalendar(nil)
	notifiers := notify.Multi{cal}
	var announcers []notify.Announcer
	if conf.MQTT.Broker != "" {
		mq, err := notify.NewMQTT(conf.MQTT, appLog.Logger())
		if err != nil {
			return err
		}
		defer mq.Close()
		notifiers = append(notifiers, mq)
		announcers = append(announcers, mq)
	}

	sess := session.New(session.Options{
		Store:        st,
		Notifier:     notifiers,
		Announcers:   announcers,
		DefaultSound: conf.DefaultSound,
	})
	missed, err := sess.Start(ctx)
	if err != nil {
		return err
	}
	for _, f := range missed {
		appLog.Info("missed alarm caught up", "alarm", f.Entry.Label())
	}

	if once {
		enc := json.NewEncoder(os.Stdout)
		enc.SetIndent("", "  ")
		return enc.Encode(sess.Status())
	}

	runner, err := schedule.New(sess, conf.Tick, conf.DayReset)
	if err != nil {
		return err
	}
	runner.Start(ctx)

	srv := &http.Server{
		Addr:              conf.Listen,
		Handler:           web.NewServer(conf, sess, cal).Handler(),
		ReadHeaderTimeout: 10 * time.Second,
	}
	errCh := make(chan error, 1)
	go func() {
		appLog.Info("starting HTTP server", "listen", "http://"+conf.Listen)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	var serveErr error
	select {
	case <-ctx.Done():
	case serveErr = <-errCh:
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		appLog.Error("http shutdown failed", err)
	}
	if err := runner.Stop(shutdownCtx); err != nil {
		appLog.Error("scheduler shutdown failed", err)
	}
	return serveErr
}

func parseFlags() flagConfig {
	var cfg flagConfig

	flag.StringVar(&cfg.configPath, "config", "/etc/sleepalarm/config.yaml", "Path to config file")
	flag.StringVar(&cfg.listen, "listen", "", "HTTP listen address (overrides config if set)")
	flag.BoolVar(&cfg.once, "once", false, "Load state, catch up missed alarms, print status and exit")

	flag.Parse()

	return cfg
}
