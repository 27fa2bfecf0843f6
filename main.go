package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"os"
	"os/signal"
	"sync"
	"syscall"

	"github.com/doridoridoriand/ipwatch/internal/api"
	"github.com/doridoridoriand/ipwatch/internal/auth"
	"github.com/doridoridoriand/ipwatch/internal/cli"
	"github.com/doridoridoriand/ipwatch/internal/config"
	"github.com/doridoridoriand/ipwatch/internal/log"
	"github.com/doridoridoriand/ipwatch/internal/metrics"
	"github.com/doridoridoriand/ipwatch/internal/monitor"
	"github.com/doridoridoriand/ipwatch/internal/persist"
	"github.com/doridoridoriand/ipwatch/internal/ping"
	"github.com/doridoridoriand/ipwatch/internal/registry"
	"github.com/doridoridoriand/ipwatch/internal/scheduler"
	"github.com/doridoridoriand/ipwatch/internal/state"
	"github.com/doridoridoriand/ipwatch/internal/ui"
	"golang.org/x/term"
)

const version = "0.1.0"

const defaultTUILogFile = "ipwatch.log"

func main() {
	var (
		flagConfig         cli.OptionalString
		flagEnvFile        string
		flagInterval       cli.OptionalDuration
		flagTimeout        cli.OptionalDuration
		flagMaxConcurrency cli.OptionalInt
		flagListen         cli.OptionalString
		flagDataFile       cli.OptionalString
		flagMetricsMode    cli.OptionalMetricsMode
		flagMetricsListen  cli.OptionalString
		flagNoUI           cli.OptionalBool
		flagUIScale        cli.OptionalInt
		flagLogLevel       cli.OptionalLevel
		flagVersion        bool
		flagVersionShort   bool
	)

	flag.Var(&flagConfig, "config", "YAML config file")
	flag.Var(&flagConfig, "c", "YAML config file")
	flag.StringVar(&flagEnvFile, "env-file", ".env", "dotenv file merged into the environment")
	flag.Var(&flagInterval, "interval", "pause between poll cycles (override config)")
	flag.Var(&flagInterval, "i", "pause between poll cycles (override config)")
	flag.Var(&flagTimeout, "timeout", "probe timeout (override config)")
	flag.Var(&flagTimeout, "t", "probe timeout (override config)")
	flag.Var(&flagMaxConcurrency, "max-concurrency", "max concurrent probes per cycle (override config)")
	flag.Var(&flagListen, "listen", "HTTP listen address (e.g. :3000)")
	flag.Var(&flagListen, "l", "HTTP listen address (e.g. :3000)")
	flag.Var(&flagDataFile, "data-file", "target list file")
	flag.Var(&flagMetricsMode, "metrics-mode", "metrics mode: per-target|aggregated|both")
	flag.Var(&flagMetricsListen, "metrics-listen", "separate metrics listen address (e.g. :9100)")
	flag.Var(&flagNoUI, "no-ui", "disable TUI (log only)")
	flag.Var(&flagUIScale, "ui-scale", "milliseconds per RTT bar cell in the TUI")
	flag.Var(&flagLogLevel, "log-level", "log level: debug|info|warn|error")
	flag.BoolVar(&flagVersion, "version", false, "show version")
	flag.BoolVar(&flagVersionShort, "v", false, "show version")

	flag.Usage = func() {
		fmt.Fprintf(os.Stderr, "usage: %s [options] [config-file]\n\n", os.Args[0])
		fmt.Fprintln(os.Stderr, "Options:")
		flag.PrintDefaults()
	}

	flag.Parse()

	if flagVersion || flagVersionShort {
		fmt.Fprintf(os.Stdout, "ipwatch version %s\n", version)
		return
	}

	configPath, _ := flagConfig.Value()
	if args := flag.Args(); configPath == "" && len(args) > 0 {
		configPath = args[0]
	}

	if err := config.LoadEnvFile(flagEnvFile); err != nil {
		fmt.Fprintf(os.Stderr, "failed to load env file: %v\n", err)
		os.Exit(1)
	}

	overrides := buildOverrides(flagInterval, flagTimeout, flagMaxConcurrency, flagListen, flagDataFile,
		flagMetricsMode, flagMetricsListen, flagNoUI, flagUIScale, flagLogLevel)

	cfg, err := config.Load(configPath, overrides)
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to load config: %v\n", err)
		os.Exit(1)
	}

	if !cfg.Global.UIDisable && !term.IsTerminal(int(os.Stdout.Fd())) {
		cfg.Global.UIDisable = true
	}

	output, closeOutput, err := openLogOutput(cfg.Global)
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to open log file: %v\n", err)
		os.Exit(1)
	}
	defer closeOutput()

	logger := log.NewLogger(log.ParseLevel(cfg.Global.LogLevel))
	logger.SetOutput(output)
	if configPath != "" {
		logger.LogConfigLoad(true, configPath, nil)
	}

	a, err := newApp(cfg, ping.New(), logger)
	if err != nil {
		logger.LogError("main", err, nil)
		fmt.Fprintf(os.Stderr, "failed to start: %v\n", err)
		os.Exit(1)
	}
	a.configPath = configPath
	a.overrides = overrides

	ctx, cancel := signalContext()
	defer cancel()

	reload := make(chan struct{}, 1)
	stopReload := watchReload(reload)
	defer stopReload()

	if err := a.run(ctx, reload); err != nil && !errors.Is(err, context.Canceled) {
		logger.LogError("main", err, nil)
		fmt.Fprintf(os.Stderr, "ipwatch: %v\n", err)
		os.Exit(1)
	}
}

// app wires the monitoring engine to its outer surfaces.
type app struct {
	cfg        *config.Config
	configPath string
	overrides  config.CLIOverrides
	logger     *log.Logger

	store     *state.StoreImpl
	registry  *registry.Registry
	monitor   *monitor.Monitor
	scheduler *scheduler.Impl
	metrics   *metrics.Server
	api       *api.Server
}

func newApp(cfg *config.Config, pinger ping.Pinger, logger *log.Logger) (*app, error) {
	guard, err := auth.NewGuard(cfg.AdminPassword)
	if err != nil {
		return nil, err
	}
	if !guard.Enabled() {
		logger.Warn("ADMIN_PASSWORD not set, target changes are disabled", nil)
	}

	store := state.NewStore()
	reg := registry.Load(persist.NewFileStore(cfg.Global.DataFile), store, logger)
	mon := monitor.New(reg, store, guard)
	sched := scheduler.NewScheduler(cfg.Global, reg, pinger, store, logger)
	exporter := metrics.NewServer(cfg.Global.MetricsMode, mon, sched)

	return &app{
		cfg:       cfg,
		logger:    logger,
		store:     store,
		registry:  reg,
		monitor:   mon,
		scheduler: sched,
		metrics:   exporter,
		api:       api.NewServer(cfg.Global.Listen, mon, exporter.Handler(), cfg.Global.PushInterval, logger),
	}, nil
}

// run blocks until ctx is cancelled or the UI quits.
func (a *app) run(ctx context.Context, reload <-chan struct{}) error {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	if err := a.api.Start(ctx); err != nil {
		return err
	}

	a.logger.Info("ipwatch started", map[string]interface{}{
		"targets":  a.registry.Len(),
		"listen":   a.api.Addr(),
		"interval": a.cfg.Global.Interval.String(),
		"timeout":  a.cfg.Global.Timeout.String(),
	})

	global := a.cfg.Global

	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		if err := a.scheduler.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
			a.logger.LogError("scheduler", err, nil)
		}
	}()

	if addr := global.MetricsListen; addr != "" {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if err := metrics.Serve(ctx, addr, a.metrics.Handler()); err != nil && !errors.Is(err, context.Canceled) {
				a.logger.LogError("metrics", err, map[string]interface{}{"addr": addr})
			}
		}()
	}

	wg.Add(1)
	go func() {
		defer wg.Done()
		for {
			select {
			case <-ctx.Done():
				return
			case <-reload:
				a.reloadConfig()
			}
		}
	}()

	var err error
	if global.UIDisable {
		<-ctx.Done()
		err = ctx.Err()
	} else {
		err = ui.New(global, a.monitor).Run(ctx)
	}

	cancel()
	wg.Wait()
	a.logger.Info("ipwatch stopped", nil)
	return err
}

// reloadConfig re-reads the config file and applies timing and log level.
// Listen address and data file only take effect on restart.
func (a *app) reloadConfig() {
	cfg, err := config.Load(a.configPath, a.overrides)
	if err != nil {
		a.logger.LogConfigLoad(false, a.configPath, err)
		return
	}
	if cfg.Global.Listen != a.cfg.Global.Listen || cfg.Global.DataFile != a.cfg.Global.DataFile {
		a.logger.Warn("listen and data_file changes need a restart", nil)
	}
	cfg.Global.UIDisable = a.cfg.Global.UIDisable
	a.scheduler.UpdateConfig(cfg.Global)
	a.logger.SetLevel(log.ParseLevel(cfg.Global.LogLevel))
	a.cfg.Global.Interval = cfg.Global.Interval
	a.cfg.Global.Timeout = cfg.Global.Timeout
	a.cfg.Global.MaxConcurrency = cfg.Global.MaxConcurrency
	a.logger.LogConfigLoad(true, a.configPath, nil)
}

func signalContext() (context.Context, context.CancelFunc) {
	return signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
}

// watchReload turns SIGHUP into reload requests until the returned stop
// function is called.
func watchReload(ch chan struct{}) func() {
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGHUP)
	done := make(chan struct{})
	go func() {
		for {
			select {
			case <-sigCh:
				requestReload(ch)
			case <-done:
				return
			}
		}
	}()
	return func() {
		signal.Stop(sigCh)
		close(done)
	}
}

func requestReload(ch chan struct{}) {
	select {
	case ch <- struct{}{}:
	default:
	}
}

// openLogOutput keeps logs off the terminal while the TUI owns it. Without
// log_file they go to defaultTUILogFile in that case, stderr otherwise.
func openLogOutput(global config.GlobalOptions) (io.Writer, func(), error) {
	path := global.LogFile
	if path == "" && !global.UIDisable {
		path = defaultTUILogFile
	}
	if path == "" {
		return os.Stderr, func() {}, nil
	}
	f, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
	if err != nil {
		return nil, nil, err
	}
	return f, func() { _ = f.Close() }, nil
}

func buildOverrides(
	interval cli.OptionalDuration,
	timeout cli.OptionalDuration,
	maxConcurrency cli.OptionalInt,
	listen cli.OptionalString,
	dataFile cli.OptionalString,
	metricsMode cli.OptionalMetricsMode,
	metricsListen cli.OptionalString,
	noUI cli.OptionalBool,
	uiScale cli.OptionalInt,
	logLevel cli.OptionalLevel,
) config.CLIOverrides {
	overrides := config.CLIOverrides{
		Interval:       interval.Ptr(),
		Timeout:        timeout.Ptr(),
		MaxConcurrency: maxConcurrency.Ptr(),
		MetricsMode:    metricsMode.Ptr(),
		UIDisable:      noUI.Ptr(),
		UIScale:        uiScale.Ptr(),
		LogLevel:       logLevel.Ptr(),
	}
	if v, ok := listen.Value(); ok && v != "" {
		overrides.Listen = &v
	}
	if v, ok := dataFile.Value(); ok && v != "" {
		overrides.DataFile = &v
	}
	if v, ok := metricsListen.Value(); ok && v != "" {
		overrides.MetricsListen = &v
	}
	return overrides
}
