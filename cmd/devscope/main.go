package main

import (
	"context"
	"flag"
	"fmt"
	"io"
	"log"
	"net/http"
	"os"
	"os/signal"
	"strconv"
	"syscall"
	"time"

	tea "github.com/charmbracelet/bubbletea"

	"devscope/internal/api"
	"devscope/internal/config"
	"devscope/internal/engine"
	"devscope/internal/health"
	"devscope/internal/metrics"
	"devscope/internal/netscan"
	"devscope/internal/procmeta"
	"devscope/internal/state"
	"devscope/internal/storage"
	"devscope/internal/tui"
)

func main() {
	configFlag := flag.String("config", "", "Path to config file (default ~/.config/devscope/config.toml)")
	headlessFlag := flag.Bool("headless", false, "Run without the TUI; requires the HTTP API to be enabled")
	flag.Parse()

	var loadResult *config.LoadResult
	var err error
	if *configFlag != "" {
		loadResult, err = config.LoadFrom(*configFlag)
	} else {
		loadResult, err = config.Load()
	}
	if err != nil {
		fmt.Fprintf(os.Stderr, "devscope: config error: %v\n", err)
		os.Exit(1)
	}
	cfg := loadResult.Config

	for _, w := range loadResult.Warnings {
		fmt.Fprintf(os.Stderr, "devscope: config warning: %s\n", w)
	}

	if *headlessFlag && cfg.API.Addr == "" {
		fmt.Fprintln(os.Stderr, "devscope: headless mode needs api.addr set in the config")
		os.Exit(1)
	}

	recorder, persistent := storage.NewRecorder(cfg.Storage)
	if !persistent && cfg.Storage.DBPath != "" {
		fmt.Fprintln(os.Stderr, "devscope: sighting history disabled, continuing without persistence")
	}

	resolver := procmeta.NewResolver()
	sampler := metrics.NewSampler()
	enum := netscan.NewEnumerator()

	cfgFn := func() config.ScanConfig { return cfg.Scanner }
	serverEngine := engine.NewServerEngine(cfgFn, enum, resolver, sampler)
	scriptEngine := engine.NewScriptEngine(cfgFn, nil, resolver, sampler)

	prober := health.NewProber(cfg.Health.Interval())

	// Every server snapshot refreshes the probe target set; lifecycle
	// events feed the sighting history.
	serverEngine.OnEvent(func(ev state.Event) {
		switch ev.Kind {
		case state.EventUpdate:
			targets := make([]health.Target, 0, len(ev.Snapshot))
			for _, ent := range ev.Snapshot {
				targets = append(targets, health.Target{
					Key: ent.Key,
					URL: "http://localhost:" + strconv.Itoa(ent.Port) + "/",
				})
			}
			prober.SetTargets(targets)
		case state.EventNew, state.EventStopped:
			recorder.RecordSighting(sightingFromEvent(ev))
		}
	})

	scriptEngine.OnEvent(func(ev state.Event) {
		switch ev.Kind {
		case state.EventNew, state.EventStopped:
			recorder.RecordSighting(sightingFromEvent(ev))
		}
	})

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	serverEngine.TriggerScan(ctx)
	scriptEngine.TriggerScan(ctx)
	serverEngine.Start(ctx)
	scriptEngine.Start(ctx)
	prober.Start()

	inventory := &inventoryAdapter{servers: serverEngine, scripts: scriptEngine}

	var apiServer *http.Server
	if cfg.API.Addr != "" {
		apiServer = &http.Server{
			Addr:    cfg.API.Addr,
			Handler: api.NewRouter(inventory, prober),
		}
		go func() {
			if err := apiServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
				fmt.Fprintf(os.Stderr, "devscope: api server: %v\n", err)
			}
		}()
	}

	shutdown := func() {
		serverEngine.Stop()
		scriptEngine.Stop()
		prober.Stop()
		if apiServer != nil {
			shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 3*time.Second)
			_ = apiServer.Shutdown(shutdownCtx)
			shutdownCancel()
		}
		_ = recorder.Close()
	}

	if *headlessFlag {
		<-sigCh
		shutdown()
		return
	}

	// Bubbletea owns the terminal; anything writing to stderr through the
	// default logger would corrupt the display.
	log.SetOutput(io.Discard)

	model := tui.NewModel(cfg,
		tui.WithServerProvider(&serverAdapter{eng: serverEngine}),
		tui.WithScriptProvider(&scriptAdapter{eng: scriptEngine}),
		tui.WithHealthProvider(prober),
		tui.WithOnShutdown(shutdown),
	)

	p := tea.NewProgram(model,
		tea.WithAltScreen(),
	)

	go func() {
		select {
		case <-sigCh:
			shutdown()
			p.Quit()
		case <-ctx.Done():
			return
		}
	}()

	if _, err := p.Run(); err != nil {
		fmt.Fprintf(os.Stderr, "devscope: %v\n", err)
		os.Exit(1)
	}
}

func sightingFromEvent(ev state.Event) storage.Sighting {
	kind := "new"
	if ev.Kind == state.EventStopped {
		kind = "stopped"
	}
	return storage.Sighting{
		Key:       ev.Entity.Key,
		Class:     string(ev.Entity.Class),
		Event:     kind,
		PID:       ev.Entity.PID,
		Port:      ev.Entity.Port,
		Name:      ev.Entity.Name,
		Framework: ev.Entity.Framework,
		CWD:       ev.Entity.CWD,
		At:        time.Now(),
	}
}

// inventoryAdapter joins both engines behind the API's provider interface.
type inventoryAdapter struct {
	servers *engine.Engine
	scripts *engine.Engine
}

func (a *inventoryAdapter) Servers() []state.Entity { return a.servers.Snapshot() }
func (a *inventoryAdapter) Scripts() []state.Entity { return a.scripts.Snapshot() }

func (a *inventoryAdapter) TriggerScan(ctx context.Context) {
	a.servers.TriggerScan(ctx)
	a.scripts.TriggerScan(ctx)
}

type serverAdapter struct {
	eng *engine.Engine
}

func (a *serverAdapter) Servers() []state.Entity         { return a.eng.Snapshot() }
func (a *serverAdapter) TriggerScan(ctx context.Context) { a.eng.TriggerScan(ctx) }

type scriptAdapter struct {
	eng *engine.Engine
}

func (a *scriptAdapter) Scripts() []state.Entity         { return a.eng.Snapshot() }
func (a *scriptAdapter) TriggerScan(ctx context.Context) { a.eng.TriggerScan(ctx) }
