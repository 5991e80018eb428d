// Command test-inject checks text injection against the focused window.
// The method defaults to the one in the murmur config. With -clean the text
// first goes through the same filler removal a dictation would.
//
// Usage:
//
//	go run ./cmd/test-inject [-config path] [-method type|paste] [-clean] [-text "..."]
package main

import (
	"errors"
	"flag"
	"fmt"
	"io/fs"
	"os"
	"time"

	"github.com/chaz8081/murmur/internal/config"
	"github.com/chaz8081/murmur/internal/inject"
	"github.com/chaz8081/murmur/internal/postprocess"
)

func main() {
	configPath := flag.String("config", config.DefaultConfigPath(), "path to config.yaml")
	method := flag.String("method", "", "inject method: type or paste (default from config)")
	clean := flag.Bool("clean", false, "remove filler words before injecting")
	text := flag.String("text", "Um, hello from murmur! Ну, привет!", "text to inject")
	delay := flag.Duration("delay", 3*time.Second, "time to focus the target window")
	flag.Parse()

	cfg := config.Default()
	if loaded, err := config.Load(*configPath); err == nil {
		cfg = loaded
	} else if !errors.Is(err, fs.ErrNotExist) {
		fmt.Fprintf(os.Stderr, "warning: %v, using defaults\n", err)
	}
	if *method == "" {
		*method = cfg.Inject.Method
	}

	out := *text
	if *clean {
		out = postprocess.New(cfg.Postprocess.Languages, cfg.Postprocess.ExtraFillers).Clean(out)
		fmt.Printf("cleaned: %q -> %q\n", *text, out)
	}

	fmt.Printf("Injecting %q via %q in %s. Focus a text editor now.\n", out, *method, *delay)
	time.Sleep(*delay)

	if err := inject.NewInjector(*method).Inject(out); err != nil {
		fmt.Fprintf(os.Stderr, "inject failed: %v\n", err)
		os.Exit(1)
	}
	fmt.Println("done")
}
