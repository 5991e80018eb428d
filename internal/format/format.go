// Package format rewrites transcripts through an optional LLM provider.
// A failed or slow provider never loses text: the input is returned as is.
package format

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strings"
	"time"
)

var (
	// ErrMissingCredential is returned when a remote provider has no API key.
	ErrMissingCredential = errors.New("format: missing API key")
	// ErrEmptyResponse is returned when the provider answers with no text.
	ErrEmptyResponse = errors.New("format: empty response")
)

// temperature keeps the rewrite close to the dictated text.
const temperature = 0.1

// maxTokens caps the formatted output length.
const maxTokens = 4096

// Request is one formatting attempt.
type Request struct {
	Provider Provider
	Prompt   string
	Text     string
}

// Result carries the text to use. When Formatted is false, Text is the
// unmodified input and Err may explain why.
type Result struct {
	Text      string
	Formatted bool
	Err       error
}

// Completer sends one system prompt and one user message to a model.
type Completer interface {
	Complete(ctx context.Context, system, user string) (string, error)
}

// Factory creates a Completer for a provider.
type Factory func(p Provider) (Completer, error)

// Observer receives formatting outcomes.
type Observer interface {
	ObserveFormatting(ctx context.Context, provider string, d time.Duration, err error)
}

// Dispatcher routes requests to the backend matching their provider.
type Dispatcher struct {
	timeout    time.Duration
	factory    Factory
	observer   Observer
	httpClient *http.Client
	openAIURL  string
	claudeURL  string
	log        *slog.Logger
}

// Option configures a Dispatcher.
type Option func(*Dispatcher)

// WithFactory replaces the built-in backends.
func WithFactory(f Factory) Option {
	return func(d *Dispatcher) { d.factory = f }
}

// WithObserver records formatting outcomes.
func WithObserver(o Observer) Option {
	return func(d *Dispatcher) { d.observer = o }
}

// WithHTTPClient sets the HTTP client used by the OpenAI backend.
func WithHTTPClient(c *http.Client) Option {
	return func(d *Dispatcher) { d.httpClient = c }
}

// WithOpenAIBaseURL points the OpenAI backend at a compatible endpoint.
func WithOpenAIBaseURL(url string) Option {
	return func(d *Dispatcher) { d.openAIURL = url }
}

// WithClaudeBaseURL points the Claude backend at a different endpoint.
func WithClaudeBaseURL(url string) Option {
	return func(d *Dispatcher) { d.claudeURL = url }
}

// NewDispatcher creates a Dispatcher that gives each call at most timeout.
func NewDispatcher(timeout time.Duration, opts ...Option) *Dispatcher {
	d := &Dispatcher{
		timeout: timeout,
		log:     slog.With("component", "format"),
	}
	d.factory = d.newCompleter
	for _, o := range opts {
		o(d)
	}
	return d
}

// Format runs req through its provider once. It never returns an empty
// Text for a non-empty input.
func (d *Dispatcher) Format(ctx context.Context, req Request) Result {
	if req.Provider == nil {
		return Result{Text: req.Text}
	}
	if _, ok := req.Provider.(None); ok || strings.TrimSpace(req.Text) == "" {
		return Result{Text: req.Text}
	}

	name := req.Provider.Name()
	start := time.Now()
	out, err := d.call(ctx, req)
	if d.observer != nil {
		d.observer.ObserveFormatting(ctx, name, time.Since(start), err)
	}
	if err != nil {
		err = redact(err, secret(req.Provider))
		d.log.Warn("formatting failed, using raw text", "provider", name, "err", err)
		return Result{Text: req.Text, Err: err}
	}

	d.log.Debug("formatted", "provider", name, "took", time.Since(start).Round(time.Millisecond))
	return Result{Text: out, Formatted: true}
}

func (d *Dispatcher) call(ctx context.Context, req Request) (string, error) {
	c, err := d.factory(req.Provider)
	if err != nil {
		return "", err
	}

	if d.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, d.timeout)
		defer cancel()
	}

	out, err := c.Complete(ctx, req.Prompt, req.Text)
	if err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil && !errors.Is(err, ctxErr) {
			return "", fmt.Errorf("format: %s: %w", req.Provider.Name(), ctxErr)
		}
		return "", fmt.Errorf("format: %s: %w", req.Provider.Name(), err)
	}
	out = strings.TrimSpace(out)
	if out == "" {
		return "", ErrEmptyResponse
	}
	return out, nil
}

func (d *Dispatcher) newCompleter(p Provider) (Completer, error) {
	switch p := p.(type) {
	case OpenAI:
		if p.APIKey == "" {
			return nil, ErrMissingCredential
		}
		return newOpenAICompleter(p, d.openAIURL, d.httpClient), nil
	case Claude:
		if p.APIKey == "" {
			return nil, ErrMissingCredential
		}
		return newClaudeCompleter(p, d.claudeURL)
	case Local:
		return newLocalCompleter(p)
	default:
		return nil, fmt.Errorf("format: no backend for provider %q", p.Name())
	}
}

// redactedError hides a credential from the message while keeping
// errors.Is classification of the original error.
type redactedError struct {
	msg   string
	cause error
}

func (e *redactedError) Error() string        { return e.msg }
func (e *redactedError) Is(target error) bool { return errors.Is(e.cause, target) }

func redact(err error, secret string) error {
	if secret == "" || !strings.Contains(err.Error(), secret) {
		return err
	}
	return &redactedError{
		msg:   strings.ReplaceAll(err.Error(), secret, "[REDACTED]"),
		cause: err,
	}
}
