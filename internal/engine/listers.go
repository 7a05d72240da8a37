package engine

import (
	"context"
	"time"

	"devscope/internal/classify"
	"devscope/internal/config"
	"devscope/internal/netscan"
	"devscope/internal/procmeta"
	"devscope/internal/state"
)

// SocketEnumerator is the listening-socket source for the server engine.
type SocketEnumerator interface {
	Enumerate(ctx context.Context) ([]netscan.Listener, error)
}

// NewServerEngine builds the engine tracking listening-socket servers.
// Enumeration is followed by the configured port filter before any key
// reaches the entity map.
func NewServerEngine(cfgFn func() config.ScanConfig, enum SocketEnumerator, resolver MetaResolver, sampler MetricSampler) *Engine {
	list := func(ctx context.Context, cfg config.ScanConfig) ([]Observation, error) {
		listeners, err := enum.Enumerate(ctx)
		if err != nil {
			return nil, err
		}
		var obs []Observation
		for _, l := range listeners {
			if !cfg.IncludesPort(l.Port) {
				continue
			}
			obs = append(obs, Observation{
				Key:      state.ServerKey(l.PID, l.Port),
				PID:      l.PID,
				Port:     l.Port,
				Protocol: l.Protocol,
			})
		}
		return obs, nil
	}
	return newEngine(state.ClassServer, cfgFn, config.ScanConfig.Interval, list, resolver, sampler)
}

// ScriptLister is the process source for the script engine.
type ScriptLister func(ctx context.Context) ([]procmeta.Script, error)

// NewScriptEngine builds the engine tracking script-style processes,
// keyed by pid alone. Pass nil lister for the default process-table scan.
func NewScriptEngine(cfgFn func() config.ScanConfig, lister ScriptLister, resolver MetaResolver, sampler MetricSampler) *Engine {
	if lister == nil {
		lister = procmeta.ListScripts
	}
	list := func(ctx context.Context, cfg config.ScanConfig) ([]Observation, error) {
		scripts, err := lister(ctx)
		if err != nil {
			return nil, err
		}
		var obs []Observation
		for _, s := range scripts {
			obs = append(obs, Observation{
				Key:        state.ScriptKey(s.PID),
				PID:        s.PID,
				Name:       s.Name,
				Cmdline:    s.Cmdline,
				Exe:        s.Exe,
				ScriptName: s.ScriptName,
			})
		}
		return obs, nil
	}
	interval := func(cfg config.ScanConfig) time.Duration { return cfg.ScriptInterval() }
	return newEngine(state.ClassScript, cfgFn, interval, list, resolver, sampler)
}

func classifyEntity(ent *state.Entity) (string, bool) {
	return classify.Classify(ent.Cmdline, ent.Name)
}
