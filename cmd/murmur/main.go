// Command murmur is a hold-to-talk dictation daemon: hold the hotkey, speak,
// release, and the transcript is typed into the focused application.
//
// Usage:
//
//	murmur [-config path] [run]
//	murmur [-config path] models [name]
//	murmur [-config path] test-sound start|stop
package main

import (
	"context"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"

	"github.com/chaz8081/murmur/internal/config"
	"github.com/chaz8081/murmur/internal/models"
	"github.com/chaz8081/murmur/internal/sound"
)

func main() {
	configPath := flag.String("config", "", "path to config file (default: ~/.config/murmur/config.yaml)")
	flag.Usage = func() {
		fmt.Fprintf(flag.CommandLine.Output(), "Usage: murmur [flags] [run | models [name] | test-sound start|stop]\n\n")
		flag.PrintDefaults()
	}
	flag.Parse()

	cfg, path, err := loadConfig(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "config: %v\n", err)
		os.Exit(1)
	}
	if err := cfg.Validate(); err != nil {
		fmt.Fprintf(os.Stderr, "config validation: %v\n", err)
		os.Exit(1)
	}

	level := new(slog.LevelVar)
	level.Set(config.ParseLogLevel(cfg.LogLevel))
	slog.SetDefault(slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: level})))

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	args := flag.Args()
	cmd := "run"
	if len(args) > 0 {
		cmd, args = args[0], args[1:]
	}

	switch cmd {
	case "run":
		err = runDaemon(ctx, cfg, path, level)
	case "models":
		err = runModels(ctx, cfg, args)
	case "test-sound":
		err = runTestSound(cfg, args)
	default:
		flag.Usage()
		os.Exit(2)
	}
	if err != nil {
		slog.Error(cmd+" failed", "err", err)
		os.Exit(1)
	}
	// Exit directly to avoid gohook's C cleanup crash.
	// The OS reclaims the event hook on process exit.
	os.Exit(0)
}

// loadConfig loads the config from path, or from the default path, writing
// a default file there on first run. It returns the file the config came
// from, or "" when only defaults are in use.
func loadConfig(path string) (*config.Config, string, error) {
	if path != "" {
		cfg, err := config.Load(path)
		return cfg, path, err
	}

	written, err := config.WriteDefault()
	if err != nil {
		fmt.Fprintf(os.Stderr, "could not write default config: %v; using defaults\n", err)
		return config.Default(), "", nil
	}
	if written != "" {
		fmt.Fprintf(os.Stderr, "Wrote default config to %s\n", written)
	}

	path = config.DefaultConfigPath()
	cfg, err := config.Load(path)
	if err != nil {
		return nil, "", fmt.Errorf("loading %s: %w", path, err)
	}
	return cfg, path, nil
}

// modelsDir is where the configured model lives.
func modelsDir(cfg *config.Config) string {
	if cfg.Transcribe.ModelPath == "" {
		return config.DefaultModelsDir()
	}
	return filepath.Dir(cfg.Transcribe.ModelPath)
}

// runModels downloads the named model, or asks which one when no name is
// given.
func runModels(ctx context.Context, cfg *config.Config, args []string) error {
	d := &models.Downloader{Progress: os.Stdout}
	dir := modelsDir(cfg)

	var (
		path string
		err  error
	)
	if len(args) == 0 {
		path, err = d.RunInteractive(ctx, dir, os.Stdin, os.Stdout)
	} else {
		var e models.Entry
		if e, err = models.Resolve(args[0]); err != nil {
			return err
		}
		path, err = d.Download(ctx, e, dir)
	}
	if err != nil {
		return err
	}

	fmt.Printf("Model ready: %s\n", path)
	if path != cfg.Transcribe.ModelPath {
		fmt.Printf("Set transcribe.model_path to %s to use it.\n", path)
	}
	return nil
}

// runTestSound plays one cue with the configured sounds and waits for it.
func runTestSound(cfg *config.Config, args []string) error {
	if len(args) != 1 {
		return fmt.Errorf("usage: murmur test-sound start|stop")
	}
	cue, err := sound.ParseCue(args[0])
	if err != nil {
		return err
	}
	player, err := sound.NewPlayer()
	if err != nil {
		return err
	}
	player.Play(cue, sound.SettingsFrom(cfg.Sounds))
	return player.Close()
}
