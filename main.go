package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/soar/padmouse/internal/actuator"
	"github.com/soar/padmouse/internal/config"
	"github.com/soar/padmouse/internal/engine"
	"github.com/soar/padmouse/internal/gamepad/sdljoy"
	"github.com/soar/padmouse/internal/hub"
	"github.com/soar/padmouse/internal/log"
	"github.com/soar/padmouse/internal/server"
	"github.com/soar/padmouse/internal/supervisor"
	"github.com/soar/padmouse/internal/tray"
)

const (
	virtualMouseName  = "padmouse virtual mouse"
	supervisorPeriod  = 100 * time.Millisecond
	deviceSettleDelay = 300 * time.Millisecond
	shutdownTimeout   = 5 * time.Second
)

// Cross-platform signal handling: use os.Interrupt on all platforms
var shutdownSignals = []os.Signal{os.Interrupt, syscall.SIGTERM}

func main() {
	opts, err := parseOptions(os.Args[1:])
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(2)
	}

	logger, closers, err := log.SetupLogger(opts.logLevel, opts.logFile)
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
	code := run(opts, logger)
	for _, c := range closers {
		c.Close()
	}
	os.Exit(code)
}

func run(opts options, logger *slog.Logger) int {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// Handle shutdown signals
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, shutdownSignals...)

	// SDL runs on its own locked thread and outlives the engines
	backendCtx, stopBackend := context.WithCancel(context.Background())
	defer stopBackend()
	backend := sdljoy.New(logger)
	backendDone := make(chan error, 1)
	go func() {
		backendDone <- backend.Run(backendCtx)
	}()
	if err := backend.Err(); err != nil {
		logger.Error("joystick backend failed", "error", err)
		return 1
	}

	if opts.listDevices {
		time.Sleep(deviceSettleDelay)
		for _, info := range backend.Enumerate() {
			fmt.Printf("%s\t%s\t%s\n", info.ID, info.Name, info.Mapping)
		}
		stopBackend()
		<-backendDone
		return 0
	}

	configPath := opts.configPath
	if configPath == "" {
		p, err := config.DefaultPath()
		if err != nil {
			logger.Error("locating settings", "error", err)
			return 1
		}
		configPath = p
	}
	cfg, err := config.Load(configPath, logger)
	if err != nil {
		logger.Error("loading settings", "error", err)
		return 1
	}

	act, err := newActuator(opts.actuator, logger)
	if err != nil {
		logger.Error("creating mouse backend", "error", err)
		return 1
	}
	defer act.Close()

	factory := supervisor.EngineFactory(actuator.NewExclusive(act),
		engine.WithLogger(logger),
		engine.WithTickRate(opts.tickRate))
	sup := supervisor.New(supervisor.Options{
		Opener:   backend,
		Factory:  factory,
		Config:   cfg,
		DeviceID: opts.device,
		Enabled:  true,
		Logger:   logger,
	})

	save := func(c config.Config) error {
		if err := config.Save(configPath, c); err != nil {
			return err
		}
		logger.Info("settings saved", "path", configPath)
		return nil
	}

	// Status fan-out: the broadcaster and the tray both follow supervisor changes
	toHub := make(chan supervisor.Status, 1)

	var srv *server.Server
	var h *hub.Hub
	var broadcaster *hub.Broadcaster
	if !opts.noServer {
		h = hub.NewHub(logger)
		broadcaster = hub.NewBroadcaster(h, sup.Status(), toHub)
		srv, err = server.New(server.Options{
			Hub:         h,
			Broadcaster: broadcaster,
			Controller:  sup,
			Save:        save,
			Page:        getWebFS(),
			Addr:        opts.listen,
			Logger:      logger,
		})
		if err != nil {
			logger.Error("creating status server", "error", err)
			return 1
		}
	}

	// Channel for tray-triggered shutdown
	shutdownRequested := make(chan struct{})
	var t *tray.Tray
	if opts.tray {
		url := ""
		if srv != nil {
			url = "http://" + opts.listen
		}
		t = tray.New(sup, url, func() { close(shutdownRequested) }, logger)
	}

	supDone := make(chan struct{})
	go func() {
		defer close(supDone)
		superviseLoop(ctx, sup, func(st supervisor.Status) {
			offer(toHub, st)
			if t != nil {
				t.Reflect(st.Enabled)
			}
		})
	}()

	serverErrCh := make(chan error, 1)
	if srv != nil {
		go h.Run(ctx)
		go broadcaster.Run(ctx)
		go func() {
			if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				serverErrCh <- err
			}
		}()
		logger.Info("padmouse started", "url", "http://"+opts.listen)
	} else {
		logger.Info("padmouse started")
	}

	if t != nil {
		go t.Run(tray.GetIcon())
	} else {
		logger.Info("press Ctrl+C to exit")
	}

	code := 0
	select {
	case <-sigCh:
		logger.Info("shutting down")
	case <-shutdownRequested:
		logger.Info("shutdown requested from tray")
	case err := <-serverErrCh:
		logger.Error("HTTP server error", "error", err)
		code = 1
	case err := <-backendDone:
		logger.Error("joystick backend stopped", "error", err)
		backendDone <- err
		code = 1
	}
	cancel()

	// The supervisor loop releases the engine before the backend goes away
	<-supDone
	if t != nil {
		t.Quit()
	}

	if srv != nil {
		shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer shutdownCancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			logger.Warn("HTTP server shutdown error", "error", err)
		}
	}

	stopBackend()
	select {
	case <-backendDone:
	case <-time.After(shutdownTimeout):
		logger.Warn("joystick backend did not stop in time")
	}

	logger.Info("padmouse stopped")
	return code
}

func newActuator(kind string, logger *slog.Logger) (actuator.Actuator, error) {
	if kind == actuatorLog {
		return actuator.NewLog(logger), nil
	}
	return actuator.NewPlatform(virtualMouseName)
}

// superviseLoop drives sup until ctx is done, then releases its engine.
func superviseLoop(ctx context.Context, sup *supervisor.Supervisor, notify func(supervisor.Status)) {
	ticker := time.NewTicker(supervisorPeriod)
	defer ticker.Stop()
	defer sup.Close()

	sup.Update(time.Now())
	for {
		select {
		case <-ctx.Done():
			return
		case now := <-ticker.C:
			sup.Update(now)
		case st := <-sup.Changes():
			notify(st)
		}
	}
}

// offer replaces any unread value in ch with st.
func offer(ch chan supervisor.Status, st supervisor.Status) {
	select {
	case <-ch:
	default:
	}
	select {
	case ch <- st:
	default:
	}
}
