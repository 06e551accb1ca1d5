// Package cli implements the spotmatch command-line interface.
//
// The commands generate printable decks from an image folder, re-render
// saved layouts, inspect the underlying designs and serve the HTTP API.
// The CLI is built on cobra; all output goes through lipgloss styles and
// logging through charmbracelet/log.
//
// # Commands
//
//   - generate: build a deck from an image folder and write PDF/SVG/PNG/JSON
//   - render: re-render a saved JSON layout against an image folder
//   - design: print or draw the card design of one order
//   - orders: list supported orders and what an image folder can fill
//   - serve: run the HTTP API
//   - cache: manage the local layout and artifact cache
//
// # Logging
//
// All commands support --verbose (-v) for debug-level logging. The logger
// is attached to the command context and passed to the pipeline through
// its options.
package cli

import (
	"context"
	"io"
	"time"

	"github.com/charmbracelet/log"
)

// newLogger creates a logger writing to w with "HH:MM:SS.ms" timestamps.
func newLogger(w io.Writer, level log.Level) *log.Logger {
	return log.NewWithOptions(w, log.Options{
		ReportTimestamp: true,
		TimeFormat:      "15:04:05.00",
		Level:           level,
	})
}

// progress logs how long an operation took.
type progress struct {
	logger *log.Logger
	start  time.Time
}

func newProgress(l *log.Logger) *progress {
	return &progress{logger: l, start: time.Now()}
}

// done logs msg with the elapsed time, e.g. "Loaded 57 images (312ms)".
func (p *progress) done(msg string) {
	p.logger.Infof("%s (%s)", msg, time.Since(p.start).Round(time.Millisecond))
}

type ctxKey int

const loggerKey ctxKey = 0

func withLogger(ctx context.Context, l *log.Logger) context.Context {
	return context.WithValue(ctx, loggerKey, l)
}

// loggerFromContext returns the logger attached to ctx, or log.Default().
func loggerFromContext(ctx context.Context) *log.Logger {
	if l, ok := ctx.Value(loggerKey).(*log.Logger); ok {
		return l
	}
	return log.Default()
}
