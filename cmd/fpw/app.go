package main

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/fpw-project/fpw/internal/authorize"
	"github.com/fpw-project/fpw/internal/config"
	"github.com/fpw-project/fpw/internal/fas"
	"github.com/fpw-project/fpw/internal/gate"
	"github.com/fpw-project/fpw/internal/geoawareness"
	"github.com/fpw-project/fpw/internal/inflight"
	"github.com/fpw-project/fpw/internal/planops"
	"github.com/fpw-project/fpw/internal/poller"
	"github.com/fpw-project/fpw/internal/storage"
	"github.com/fpw-project/fpw/internal/storage/dolt"
	"github.com/fpw-project/fpw/internal/storage/memory"
	"github.com/fpw-project/fpw/internal/telemetry"
	"github.com/fpw-project/fpw/internal/ui"
	"github.com/fpw-project/fpw/internal/volumes"
)

// app is everything a command needs, wired from configuration. All
// components share one in-flight guard.
type app struct {
	store     storage.Storage
	guard     *inflight.Guard
	sync      *poller.Synchronizer
	svc       *planops.Service
	geo       *geoawareness.Dispatcher // nil without geoawareness.url
	confirmer ui.Confirmer
	log       *slog.Logger
}

// openApp opens the configured store and wires the services around it.
func openApp(ctx context.Context, log *slog.Logger) (*app, error) {
	store, err := openStore(ctx)
	if err != nil {
		return nil, err
	}
	a, err := newApp(telemetry.WrapStorage(store), log)
	if err != nil {
		_ = store.Close()
		return nil, err
	}
	return a, nil
}

// openStore opens the backend named by store.mode.
func openStore(ctx context.Context) (storage.Storage, error) {
	mode, err := config.StoreMode()
	if err != nil {
		return nil, err
	}
	if mode == config.StoreMemory {
		return memory.New(), nil
	}
	store, err := dolt.New(ctx, doltConfig(mode))
	if err != nil {
		return nil, fmt.Errorf("failed to open %s store: %w", mode, err)
	}
	return store, nil
}

func doltConfig(mode string) *dolt.Config {
	return &dolt.Config{
		Path:           config.GetString("store.path"),
		Database:       config.GetString("store.database"),
		AutoCommit:     mode == config.StoreDoltEmbedded,
		ServerMode:     mode == config.StoreDoltServer,
		ServerHost:     config.GetString("store.host"),
		ServerPort:     config.GetInt("store.port"),
		ServerUser:     config.GetString("store.user"),
		ServerPassword: config.GetString("store.password"),
		ServerTLS:      config.GetBool("store.tls"),
	}
}

// newApp wires services around store. External services are optional:
// without fas.url there is no authorizer, and without geoawareness.url no
// dispatcher.
func newApp(store storage.Storage, log *slog.Logger) (*app, error) {
	if log == nil {
		log = slog.Default()
	}
	policy, err := config.GatePolicy()
	if err != nil {
		return nil, err
	}
	gates := gate.NewDefaultRegistry()
	gate.ApplyPolicy(gates, policy)

	a := &app{
		store:     store,
		guard:     inflight.New(),
		confirmer: ui.PromptConfirmer{AssumeYes: assumeYes},
		log:       log,
	}

	var cache *poller.Cache
	if path := config.GetString("poll.cache"); path != "" {
		cache = poller.NewCache(path)
	}
	a.sync = poller.New(poller.Config{
		Store:          store,
		ErrorThreshold: config.GetInt("poll.error-threshold"),
		Cache:          cache,
		Log:            log.With("component", "poller"),
	})

	artifacts := volumes.DirSource{Dir: config.GetString("volumes.trajectory-dir")}
	cfg := planops.Config{
		Store:     store,
		Guard:     a.guard,
		Gates:     gates,
		Overlay:   a.sync,
		Artifacts: artifacts,
		Log:       log,
	}
	if orch := newOrchestrator(store, a.guard, a.sync, artifacts, log); orch != nil {
		cfg.Authorizer = orch
	}
	a.svc = planops.New(cfg)

	if url := config.GetString("geoawareness.url"); url != "" {
		var catalog *geoawareness.Catalog
		if path := config.GetString("airspace.catalog"); path != "" {
			if catalog, err = geoawareness.LoadCatalog(path); err != nil {
				return nil, err
			}
		}
		a.geo = geoawareness.NewDispatcher(geoawareness.Config{
			Store:   store,
			Checker: geoawareness.NewClient(url, config.GetString("geoawareness.token")),
			Guard:   a.guard,
			Catalog: catalog,
			Log:     log.With("component", "geoawareness"),
			Timeout: config.GetDuration("geoawareness.timeout"),
		})
	}
	return a, nil
}

// newOrchestrator returns nil when no FAS is configured.
func newOrchestrator(store storage.Storage, guard *inflight.Guard, refresher authorize.Refresher, artifacts volumes.TrajectorySource, log *slog.Logger) *authorize.Orchestrator {
	url := config.GetString("fas.url")
	if url == "" {
		return nil
	}
	client := fas.NewClient(url, config.GetString("fas.token")).WithTimeout(config.GetDuration("fas.timeout"))
	client.CallbackURL = config.GetString("callback.url")
	client.CallbackSecret = []byte(config.GetString("callback.secret"))
	if ttl := config.GetDuration("fas.token-ttl"); ttl > 0 {
		client.TokenTTL = ttl
	}

	var gen volumes.Generator
	if vurl := config.GetString("volumes.url"); vurl != "" {
		hg := volumes.NewHTTPGenerator(vurl, config.GetString("volumes.token"))
		if t := config.GetDuration("volumes.timeout"); t > 0 {
			hg.HTTPClient.Timeout = t
		}
		gen = hg
	} else {
		gen = volumes.NewLocalGenerator(store, artifacts, log.With("component", "volumes"))
	}

	// one stage timeout covers both volume generation and the FAS post
	timeout := max(config.GetDuration("fas.timeout"), config.GetDuration("volumes.timeout"))
	return authorize.New(authorize.Config{
		Store:     store,
		Volumes:   gen,
		FAS:       client,
		Guard:     guard,
		Refresher: refresher,
		Log:       log.With("component", "authorize"),
		Timeout:   timeout,
	})
}

// Close stops polling and closes the store.
func (a *app) Close() error {
	a.sync.Stop()
	return a.store.Close()
}
