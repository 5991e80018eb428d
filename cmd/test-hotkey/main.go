// Command test-hotkey prints what the global hotkey listener sees, so a combo
// can be checked before putting it in the config. Flags default to the
// configured combo and mode.
//
// Usage:
//
//	go run ./cmd/test-hotkey [-config path] [-combo Ctrl+Shift+Space] [-mode hold|toggle]
package main

import (
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/chaz8081/murmur/internal/config"
	"github.com/chaz8081/murmur/internal/hotkey"
)

func main() {
	configPath := flag.String("config", config.DefaultConfigPath(), "path to config.yaml")
	comboFlag := flag.String("combo", "", "hotkey combo, e.g. Ctrl+Alt+D (default from config)")
	mode := flag.String("mode", "", "hold or toggle (default from config)")
	flag.Parse()

	cfg := config.Default()
	if loaded, err := config.Load(*configPath); err == nil {
		cfg = loaded
	}
	if *comboFlag == "" {
		*comboFlag = cfg.Hotkey.Combo
	}
	if *mode == "" {
		*mode = cfg.Hotkey.Mode
	}

	combo, err := hotkey.ParseCombo(*comboFlag)
	if err != nil {
		fmt.Fprintf(os.Stderr, "invalid combo: %v\n", err)
		os.Exit(2)
	}

	fmt.Printf("Listening for %s (gohook keys %v) in %q mode. Ctrl+C exits.\n", combo, combo.Keys(), *mode)

	listener, err := hotkey.NewListener(combo, *mode)
	if err != nil {
		fmt.Fprintf(os.Stderr, "cannot listen: %v\n", err)
		os.Exit(2)
	}

	sig := make(chan os.Signal, 1)
	signal.Notify(sig, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		<-sig
		listener.Stop()
	}()

	go func() {
		var down time.Time
		for ev := range listener.Events() {
			switch ev.Type {
			case hotkey.EventStart:
				down = time.Now()
				fmt.Println("down: a session would start recording")
			case hotkey.EventStop:
				fmt.Printf("up:   held %s, a session would transcribe\n", time.Since(down).Round(time.Millisecond))
			}
		}
	}()

	listener.Start()
	// gohook can crash while tearing down its hook thread.
	os.Exit(0)
}
