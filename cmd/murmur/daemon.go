package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"

	"golang.org/x/sync/errgroup"

	"github.com/chaz8081/murmur/internal/audio"
	"github.com/chaz8081/murmur/internal/config"
	"github.com/chaz8081/murmur/internal/format"
	"github.com/chaz8081/murmur/internal/history"
	"github.com/chaz8081/murmur/internal/hotkey"
	"github.com/chaz8081/murmur/internal/inject"
	"github.com/chaz8081/murmur/internal/ipc"
	"github.com/chaz8081/murmur/internal/observe"
	"github.com/chaz8081/murmur/internal/session"
	"github.com/chaz8081/murmur/internal/sound"
	"github.com/chaz8081/murmur/internal/transcribe"
)

// runDaemon wires every component and blocks until ctx is cancelled.
func runDaemon(ctx context.Context, cfg *config.Config, path string, level *slog.LevelVar) error {
	combo, err := hotkey.ParseCombo(cfg.Hotkey.Combo)
	if err != nil {
		return err
	}
	printBanner(cfg, combo)

	var (
		engineOpts     []transcribe.EngineOption
		dispatcherOpts []format.Option
		metrics        *observe.Metrics
		metricsHandler http.Handler
	)
	if cfg.Metrics.Enabled {
		provider, err := observe.NewPrometheusProvider()
		if err != nil {
			return err
		}
		defer provider.Shutdown(context.Background())
		if metrics, err = observe.NewMetrics(provider.MeterProvider); err != nil {
			return fmt.Errorf("creating metrics: %w", err)
		}
		metricsHandler = provider.Handler()
		engineOpts = append(engineOpts, transcribe.WithObserver(metrics))
		dispatcherOpts = append(dispatcherOpts, format.WithObserver(metrics))
	}

	engine := transcribe.NewEngine(modelsDir(cfg), transcribe.Options{
		Language:      cfg.Transcribe.Language,
		Threads:       cfg.Transcribe.Threads,
		InitialPrompt: cfg.Transcribe.InitialPrompt,
	}, engineOpts...)
	defer engine.Close()
	loadModel(engine, cfg.Transcribe.ModelPath)

	recorder, err := audio.NewRecorder(cfg.Audio.SampleRate, cfg.Audio.Gain)
	if err != nil {
		return fmt.Errorf("initializing audio recorder: %w (check microphone permissions)", err)
	}
	defer recorder.Close()
	slog.Info("audio recorder ready", "rate", cfg.Audio.SampleRate, "gain", cfg.Audio.Gain)

	store := config.NewStore(cfg)
	hub := ipc.NewHub()

	deps := session.Deps{
		Recorder:  recorder,
		Engine:    engine,
		Formatter: format.NewDispatcher(cfg.Formatting.Timeout, dispatcherOpts...),
		Injector:  inject.NewInjector(cfg.Inject.Method),
		Settings:  store,
		Notifier:  hub,
	}
	if metrics != nil {
		deps.Metrics = metrics
	}

	if player, err := sound.NewPlayer(); err != nil {
		slog.Warn("sound cues disabled", "err", err)
	} else {
		defer player.Close()
		deps.Cues = player
	}

	if cfg.History.Path != "" {
		hist, err := history.Open(cfg.History.Path)
		if err != nil {
			slog.Warn("history disabled", "err", err)
		} else {
			defer hist.Close()
			deps.History = hist
		}
	}

	ctrl := session.New(deps, session.Options{
		SampleRate: int(cfg.Audio.SampleRate),
		Logger:     slog.Default(),
	})

	// The listener is left running; main exits the process without
	// tearing down gohook.
	listener, err := hotkey.NewListener(combo, cfg.Hotkey.Mode)
	if err != nil {
		return err
	}
	go listener.Start()

	if path != "" {
		watcher, err := config.NewWatcher(path, store, config.WithOnChange(func(old, new *config.Config) {
			applyReload(engine, listener, level, old, new)
		}))
		if err != nil {
			slog.Warn("config hot reload disabled", "err", err)
		} else {
			defer watcher.Stop()
		}
	}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error { return ctrl.Run(gctx) })
	g.Go(func() error { return forwardHotkeys(gctx, listener.Events(), ctrl) })
	if cfg.IPC.Listen != "" {
		server := ipc.NewServer(hub, ctrl, metricsHandler)
		g.Go(func() error { return server.ListenAndServe(gctx, cfg.IPC.Listen) })
	}

	slog.Info("ready", "hotkey", combo.String(), "mode", cfg.Hotkey.Mode)
	err = g.Wait()
	slog.Info("shutting down")
	return err
}

// forwardHotkeys turns listener events into Controller calls.
func forwardHotkeys(ctx context.Context, events <-chan hotkey.Event, ctrl *session.Controller) error {
	for {
		select {
		case <-ctx.Done():
			return nil
		case ev, ok := <-events:
			if !ok {
				return errors.New("hotkey listener stopped")
			}
			switch ev.Type {
			case hotkey.EventStart:
				ctrl.HotkeyDown()
			case hotkey.EventStop:
				ctrl.HotkeyUp()
			}
		}
	}
}

// loadModel leaves the daemon running without a model; hotkey presses then
// report model_unavailable. Engine.Load logs the success.
func loadModel(engine *transcribe.Engine, path string) {
	if err := engine.Load(path); err != nil {
		slog.Warn("no transcription model loaded; run 'murmur models' to download one",
			"path", path, "err", err)
	}
}

// rebinder is the part of hotkey.Listener a config reload needs.
type rebinder interface {
	Rebind(combo hotkey.Combo, mode string) error
}

// applyReload reacts to a changed config file. Settings read per session
// need nothing here; the hotkey and model are swapped live and the rest of
// the startup-bound settings are reported.
func applyReload(engine *transcribe.Engine, keys rebinder, level *slog.LevelVar, old, new *config.Config) {
	level.Set(config.ParseLogLevel(new.LogLevel))
	slog.Info("config reloaded")

	if new.Hotkey != old.Hotkey {
		combo, err := hotkey.ParseCombo(new.Hotkey.Combo)
		if err == nil {
			err = keys.Rebind(combo, new.Hotkey.Mode)
		}
		if err != nil {
			slog.Warn("keeping previous hotkey", "combo", new.Hotkey.Combo, "err", err)
		} else {
			slog.Info("hotkey rebound", "hotkey", combo.String(), "mode", new.Hotkey.Mode)
		}
	}
	if new.Transcribe.ModelPath != old.Transcribe.ModelPath {
		go loadModel(engine, new.Transcribe.ModelPath)
	}
	if new.Inject != old.Inject || new.IPC != old.IPC ||
		new.Audio.SampleRate != old.Audio.SampleRate || new.Audio.Gain != old.Audio.Gain ||
		new.Formatting.Timeout != old.Formatting.Timeout || new.Metrics != old.Metrics ||
		new.History != old.History || new.Transcribe.Language != old.Transcribe.Language ||
		new.Transcribe.Threads != old.Transcribe.Threads {
		slog.Warn("some changed settings take effect after a restart")
	}
}

// printBanner displays the startup configuration summary.
func printBanner(cfg *config.Config, combo hotkey.Combo) {
	fmt.Println("=== murmur ===")
	fmt.Printf("  Model:      %s\n", cfg.Transcribe.ModelPath)
	fmt.Printf("  Hotkey:     %s (%s mode)\n", combo, cfg.Hotkey.Mode)
	fmt.Printf("  Audio:      %dHz, gain %.1f\n", cfg.Audio.SampleRate, cfg.Audio.Gain)
	fmt.Printf("  Formatting: %s\n", cfg.Formatting.Provider)
	fmt.Printf("  Inject:     %s\n", cfg.Inject.Method)
	if cfg.IPC.Listen != "" {
		fmt.Printf("  IPC:        ws://%s/ws\n", cfg.IPC.Listen)
	}
	fmt.Printf("  Log:        %s\n", cfg.LogLevel)
	fmt.Println("==============")
}
