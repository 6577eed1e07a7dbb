// Package daemon runs a live capture session: it feeds a capture source
// into the call store, prints calls as they appear and reacts to signals.
package daemon

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"strconv"
	"sync"
	"syscall"
	"time"

	"firestige.xyz/sipflow/internal/capture"
	"firestige.xyz/sipflow/internal/config"
	logpkg "firestige.xyz/sipflow/internal/log"
	"firestige.xyz/sipflow/internal/metrics"
	"firestige.xyz/sipflow/internal/options"
	"firestige.xyz/sipflow/internal/sip"
	"firestige.xyz/sipflow/internal/view"
)

const stopGrace = 2 * time.Second

// Daemon manages one live capture session.
type Daemon struct {
	// Configuration
	config     *config.GlobalConfig
	configPath string
	pidFile    string
	interval   time.Duration

	// Core components
	opts          *options.Store
	store         *sip.Store
	source        capture.Source
	sourceName    string
	metricsServer *metrics.Server // nil if metrics disabled

	// Output
	out     io.Writer
	list    *view.CallList
	printed int // calls already considered for printing

	// Lifecycle management
	ctx        context.Context
	cancel     context.CancelFunc
	ingestDone chan error
	ingesting  bool
	sigChan    chan os.Signal
	stopOnce   sync.Once
}

// Options configures a Daemon.
type Options struct {
	ConfigPath string
	PIDFile    string
	Interval   time.Duration // call list refresh period
	Out        io.Writer
}

// New creates a session reading from src.
func New(cfg *config.GlobalConfig, opts *options.Store, src capture.Source, sourceName string, o Options) *Daemon {
	if o.Interval <= 0 {
		o.Interval = time.Second
	}
	if o.Out == nil {
		o.Out = os.Stdout
	}
	d := &Daemon{
		config:     cfg,
		configPath: o.ConfigPath,
		pidFile:    o.PIDFile,
		interval:   o.Interval,
		opts:       opts,
		store:      sip.NewStore(opts),
		source:     src,
		sourceName: sourceName,
		out:        o.Out,
		ingestDone: make(chan error, 1),
	}
	d.ctx, d.cancel = context.WithCancel(context.Background())
	return d
}

// Store returns the session call store.
func (d *Daemon) Store() *sip.Store {
	return d.store
}

// Start writes the PID file, starts metrics and begins ingestion.
func (d *Daemon) Start() error {
	slog.Info("starting capture session", "source", d.sourceName, "config", d.configPath)

	if err := d.writePIDFile(); err != nil {
		return fmt.Errorf("failed to write PID file: %w", err)
	}

	if err := d.startMetrics(); err != nil {
		return fmt.Errorf("failed to start metrics server: %w", err)
	}

	list, err := view.BuildCallList(d.store, d.opts)
	if err != nil {
		return fmt.Errorf("invalid call list layout: %w", err)
	}
	d.list = list
	if err := d.list.WriteHeader(d.out); err != nil {
		return err
	}

	d.ingesting = true
	go func() {
		st, err := capture.Ingest(d.ctx, d.sourceName, d.source, d.store)
		slog.Info("ingestion finished",
			"records", st.Records, "accepted", st.Accepted, "rejected", st.Rejected)
		d.ingestDone <- err
	}()

	return nil
}

// Run blocks until the source is drained, a shutdown signal arrives or the
// session context is cancelled. SIGHUP reloads the configuration.
func (d *Daemon) Run() error {
	d.sigChan = make(chan os.Signal, 1)
	signal.Notify(d.sigChan, syscall.SIGTERM, syscall.SIGINT, syscall.SIGHUP, syscall.SIGUSR1, syscall.SIGUSR2)

	ticker := time.NewTicker(d.interval)
	defer ticker.Stop()

	for {
		select {
		case sig := <-d.sigChan:
			switch sig {
			case syscall.SIGTERM, syscall.SIGINT:
				slog.Info("received shutdown signal", "signal", sig)
				d.Stop()
				return nil

			case syscall.SIGHUP:
				slog.Info("received reload signal")
				if err := d.Reload(); err != nil {
					slog.Error("failed to reload config", "error", err)
				}

			case syscall.SIGUSR1:
				d.ToggleCapture()

			case syscall.SIGUSR2:
				d.ClearCalls()
			}

		case <-ticker.C:
			d.refresh()

		case err := <-d.ingestDone:
			d.ingesting = false
			d.refresh()
			d.Stop()
			if err != nil && !errors.Is(err, context.Canceled) {
				return err
			}
			return nil

		case <-d.ctx.Done():
			slog.Info("context cancelled", "error", d.ctx.Err())
			d.Stop()
			return d.ctx.Err()
		}
	}
}

// Shutdown asks Run to stop.
func (d *Daemon) Shutdown() {
	d.cancel()
}

// Stop ends ingestion and releases every component. Only the first call
// has an effect.
func (d *Daemon) Stop() {
	d.stopOnce.Do(d.stop)
}

func (d *Daemon) stop() {
	d.cancel()

	if d.sigChan != nil {
		signal.Stop(d.sigChan)
	}

	// live reads return within the poll timeout once cancelled
	if d.ingesting {
		select {
		case <-d.ingestDone:
		case <-time.After(stopGrace):
			slog.Warn("capture source did not stop in time", "source", d.sourceName)
		}
	}
	if err := d.source.Close(); err != nil {
		slog.Error("error closing capture source", "error", err)
	}

	if d.metricsServer != nil {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := d.metricsServer.Stop(shutdownCtx); err != nil {
			slog.Error("error stopping metrics server", "error", err)
		}
		d.metricsServer = nil
	}

	if err := d.removePIDFile(); err != nil {
		slog.Error("error removing PID file", "error", err)
	}

	if d.list != nil {
		fmt.Fprintln(d.out, view.Summary{Total: d.store.Count(), Visible: d.store.VisibleCount()})
		d.list = nil
	}
}

// Reload reloads the configuration file.
// Hot-reloadable: log level/format, capture toggles, filters, ignore lists.
// Cold (requires restart): capture source settings, metrics listen address.
// Ignore entries only accumulate; removing one requires a restart.
func (d *Daemon) Reload() error {
	if d.configPath == "" {
		return errors.New("no config file to reload")
	}
	slog.Info("reloading configuration", "path", d.configPath)

	newConfig, err := config.Load(d.configPath)
	if err != nil {
		return fmt.Errorf("failed to load new config: %w", err)
	}

	hotReloaded := []string{}
	if err := logpkg.Init(newConfig.Log); err != nil {
		slog.Error("failed to reinitialize logging", "error", err)
	} else {
		hotReloaded = append(hotReloaded, "log")
	}

	// rc files keep the list the session started with, --rc included
	newConfig.Capture.RCFiles = d.config.Capture.RCFiles
	d.opts.Apply(newConfig)
	if err := d.opts.ReadFiles(newConfig.Capture.RCFiles); err != nil {
		slog.Error("failed to re-read rc files", "error", err)
	}
	hotReloaded = append(hotReloaded, "capture", "filter", "ignore")

	requiresRestart := []string{}
	if newConfig.Capture.BPF != d.config.Capture.BPF || newConfig.Capture.Engine != d.config.Capture.Engine {
		requiresRestart = append(requiresRestart, "capture.source")
	}
	if newConfig.Metrics.Listen != d.config.Metrics.Listen {
		requiresRestart = append(requiresRestart, "metrics.listen")
	}
	d.config = newConfig

	slog.Info("configuration reloaded",
		"hot_reloaded", hotReloaded,
		"requires_restart", requiresRestart,
	)
	return nil
}

// ToggleCapture pauses or resumes message ingestion. Records read while
// paused are rejected with core.ErrCaptureDisabled.
func (d *Daemon) ToggleCapture() {
	d.opts.Toggle(options.KeyCapture)
	slog.Info("capture toggled", "paused", d.opts.IsDisabled(options.KeyCapture))
}

// ClearCalls drops every stored call and restarts the row numbering.
func (d *Daemon) ClearCalls() {
	d.store.Reset()
	d.printed = 0
	if d.list != nil {
		d.list.Rows = nil
	}
	slog.Info("calls cleared")
}

// refresh prints the visible calls created since the last refresh when
// autoscroll is on.
func (d *Daemon) refresh() {
	if d.list == nil {
		return
	}
	calls := d.store.Calls()
	if d.printed > len(calls) {
		d.printed = 0
	}
	if !d.opts.IsEnabled("cl.autoscroll") {
		d.printed = len(calls)
		return
	}
	filter := d.store.Filter()
	for _, c := range calls[d.printed:] {
		if filter.ShouldIgnore(c) {
			continue
		}
		d.list.Rows = append(d.list.Rows, view.NewRow(len(d.list.Rows)+1, c, d.list.Columns))
		if err := d.list.WriteRow(d.out, d.list.Rows[len(d.list.Rows)-1]); err != nil {
			slog.Warn("failed to print call", "callid", c.ID(), "error", err)
		}
	}
	d.printed = len(calls)
}

// startMetrics starts the metrics HTTP server if enabled.
func (d *Daemon) startMetrics() error {
	if !d.config.Metrics.Enabled {
		slog.Debug("metrics server disabled")
		return nil
	}

	d.metricsServer = metrics.NewServer(d.config.Metrics.Listen, d.config.Metrics.Path)
	if err := d.metricsServer.Start(d.ctx); err != nil {
		return fmt.Errorf("failed to start metrics server: %w", err)
	}
	return nil
}

// writePIDFile writes the current process ID to the PID file.
func (d *Daemon) writePIDFile() error {
	if d.pidFile == "" {
		return nil
	}

	pid := os.Getpid()
	data := []byte(strconv.Itoa(pid) + "\n")

	if err := os.WriteFile(d.pidFile, data, 0644); err != nil {
		return fmt.Errorf("failed to write PID file %s: %w", d.pidFile, err)
	}

	slog.Debug("PID file written", "path", d.pidFile, "pid", pid)
	return nil
}

// removePIDFile removes the PID file.
func (d *Daemon) removePIDFile() error {
	if d.pidFile == "" {
		return nil
	}

	if err := os.Remove(d.pidFile); err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("failed to remove PID file %s: %w", d.pidFile, err)
	}
	return nil
}
