// Package models manages the whisper model files murmur transcribes with.
package models

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"net/http"
	"os"
	"path/filepath"
	"strconv"
	"strings"
)

// DefaultBaseURL is where ggml whisper models are published.
const DefaultBaseURL = "https://huggingface.co/ggerganov/whisper.cpp/resolve/main/"

// Entry describes one downloadable model.
type Entry struct {
	Name         string // e.g. "base.en"
	SizeMB       int
	Multilingual bool
}

// File returns the model's file name, e.g. "ggml-base.en.bin".
func (e Entry) File() string {
	return "ggml-" + e.Name + ".bin"
}

var catalog = []Entry{
	{Name: "base", SizeMB: 142, Multilingual: true},
	{Name: "base.en", SizeMB: 142},
	{Name: "small", SizeMB: 466, Multilingual: true},
	{Name: "small.en", SizeMB: 466},
	{Name: "medium", SizeMB: 1500, Multilingual: true},
	{Name: "medium.en", SizeMB: 1500},
}

// Catalog returns the known models, smallest first.
func Catalog() []Entry {
	out := make([]Entry, len(catalog))
	copy(out, catalog)
	return out
}

// Resolve finds a catalog entry by name ("base.en") or file name
// ("ggml-base.en.bin").
func Resolve(name string) (Entry, error) {
	name = strings.TrimSuffix(strings.TrimPrefix(name, "ggml-"), ".bin")
	for _, e := range catalog {
		if e.Name == name {
			return e, nil
		}
	}
	return Entry{}, fmt.Errorf("models: unknown model %q", name)
}

// Exists reports whether path is a non-empty regular file.
func Exists(path string) bool {
	info, err := os.Stat(path)
	return err == nil && info.Mode().IsRegular() && info.Size() > 0
}

// Downloader fetches models over HTTP.
type Downloader struct {
	Client   *http.Client
	BaseURL  string
	Progress io.Writer // nil disables progress output
}

// Download fetches e into dir and returns the final path. An existing
// non-empty file is left alone. The file appears atomically: it is written
// to a temp name and renamed on success.
func (d *Downloader) Download(ctx context.Context, e Entry, dir string) (string, error) {
	if err := os.MkdirAll(dir, 0755); err != nil {
		return "", fmt.Errorf("models: creating models dir: %w", err)
	}

	destPath := filepath.Join(dir, e.File())
	if Exists(destPath) {
		d.printf("  Model already exists: %s\n", destPath)
		return destPath, nil
	}

	base := d.BaseURL
	if base == "" {
		base = DefaultBaseURL
	}
	url := strings.TrimSuffix(base, "/") + "/" + e.File()
	d.printf("  Downloading %s\n  URL: %s\n  Destination: %s\n", e.Name, url, destPath)

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return "", fmt.Errorf("models: building request: %w", err)
	}
	client := d.Client
	if client == nil {
		client = http.DefaultClient
	}
	resp, err := client.Do(req)
	if err != nil {
		return "", fmt.Errorf("models: downloading %s: %w", e.Name, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return "", fmt.Errorf("models: download failed: HTTP %d", resp.StatusCode)
	}

	// Write to temp file first, then rename (atomic)
	tmpPath := destPath + ".tmp"
	f, err := os.Create(tmpPath)
	if err != nil {
		return "", fmt.Errorf("models: creating temp file: %w", err)
	}

	var w io.Writer = f
	if d.Progress != nil {
		w = &progressWriter{writer: f, out: d.Progress, total: resp.ContentLength, label: e.File()}
	}

	written, err := io.Copy(w, resp.Body)
	closeErr := f.Close()
	if err == nil {
		err = closeErr
	}
	if err != nil {
		os.Remove(tmpPath)
		return "", fmt.Errorf("models: writing model file: %w", err)
	}

	d.printf("\n  Downloaded %.1f MB\n", float64(written)/(1024*1024))

	if err := os.Rename(tmpPath, destPath); err != nil {
		os.Remove(tmpPath)
		return "", fmt.Errorf("models: moving model file: %w", err)
	}
	return destPath, nil
}

func (d *Downloader) printf(format string, args ...any) {
	if d.Progress != nil {
		fmt.Fprintf(d.Progress, format, args...)
	}
}

// progressWriter wraps an io.Writer and prints download progress.
type progressWriter struct {
	writer  io.Writer
	out     io.Writer
	total   int64
	written int64
	label   string
}

func (pw *progressWriter) Write(p []byte) (int, error) {
	n, err := pw.writer.Write(p)
	pw.written += int64(n)
	if pw.total > 0 {
		pct := float64(pw.written) / float64(pw.total) * 100
		fmt.Fprintf(pw.out, "\r  %s: %.1f MB / %.1f MB (%.0f%%)",
			pw.label,
			float64(pw.written)/(1024*1024),
			float64(pw.total)/(1024*1024),
			pct)
	} else {
		fmt.Fprintf(pw.out, "\r  %s: %.1f MB downloaded",
			pw.label,
			float64(pw.written)/(1024*1024))
	}
	return n, err
}

// RunInteractive lists the catalog on out, reads a choice from in and
// downloads it into dir.
func (d *Downloader) RunInteractive(ctx context.Context, dir string, in io.Reader, out io.Writer) (string, error) {
	entries := Catalog()

	fmt.Fprintln(out, "=== Model Download ===")
	fmt.Fprintln(out)
	fmt.Fprintf(out, "Models will be downloaded to: %s\n", dir)
	fmt.Fprintln(out)
	for i, e := range entries {
		lang := "English only"
		if e.Multilingual {
			lang = "multilingual"
		}
		installed := ""
		if Exists(filepath.Join(dir, e.File())) {
			installed = " [installed]"
		}
		fmt.Fprintf(out, "  [%d] %-10s ~%d MB, %s%s\n", i+1, e.Name, e.SizeMB, lang, installed)
	}
	fmt.Fprintln(out)
	fmt.Fprintf(out, "Choice [1-%d]: ", len(entries))

	line, err := bufio.NewReader(in).ReadString('\n')
	if err != nil && err != io.EOF {
		return "", fmt.Errorf("models: reading choice: %w", err)
	}
	choice, err := strconv.Atoi(strings.TrimSpace(line))
	if err != nil || choice < 1 || choice > len(entries) {
		return "", fmt.Errorf("models: invalid choice %q (expected 1-%d)", strings.TrimSpace(line), len(entries))
	}
	fmt.Fprintln(out)

	return d.Download(ctx, entries[choice-1], dir)
}
