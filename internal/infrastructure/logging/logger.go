// Package logging configures the relay's slog logger. Correlation ids for
// HTTP requests and live websocket connections travel in the context and are
// added to every record logged with that context.
package logging

import (
	"context"
	"io"
	"log/slog"
	"os"
	"strings"
	"time"
)

// Config holds logger configuration
type Config struct {
	Level       string // debug, info, warn, error
	Format      string // json, text
	Output      io.Writer
	AddSource   bool
	ServiceName string
	Environment string
}

// NewLogger creates the process logger. Service metadata is attached once;
// correlation ids are read from the context of each record.
func NewLogger(cfg Config) *slog.Logger {
	opts := &slog.HandlerOptions{
		Level:     parseLevel(cfg.Level),
		AddSource: cfg.AddSource,
		ReplaceAttr: func(groups []string, a slog.Attr) slog.Attr {
			if a.Key == slog.TimeKey && len(groups) == 0 {
				return slog.String(a.Key, a.Value.Time().Format(time.RFC3339Nano))
			}
			return a
		},
	}

	output := cfg.Output
	if output == nil {
		output = os.Stdout
	}

	var handler slog.Handler
	if strings.EqualFold(cfg.Format, "text") {
		handler = slog.NewTextHandler(output, opts)
	} else {
		handler = slog.NewJSONHandler(output, opts)
	}

	handler = handler.WithAttrs([]slog.Attr{
		slog.String("service", cfg.ServiceName),
		slog.String("environment", cfg.Environment),
	})
	return slog.New(fieldsHandler{next: handler})
}

// parseLevel accepts slog level names in any case, including offsets such as
// "warn+2". Anything else means info.
func parseLevel(s string) slog.Level {
	var level slog.Level
	if err := level.UnmarshalText([]byte(s)); err != nil {
		return slog.LevelInfo
	}
	return level
}

// fieldsHandler adds the context's correlation ids to each record.
type fieldsHandler struct {
	next slog.Handler
}

func (h fieldsHandler) Enabled(ctx context.Context, level slog.Level) bool {
	return h.next.Enabled(ctx, level)
}

func (h fieldsHandler) Handle(ctx context.Context, r slog.Record) error {
	r.AddAttrs(FieldsFrom(ctx).attrs()...)
	return h.next.Handle(ctx, r)
}

func (h fieldsHandler) WithAttrs(attrs []slog.Attr) slog.Handler {
	return fieldsHandler{next: h.next.WithAttrs(attrs)}
}

func (h fieldsHandler) WithGroup(name string) slog.Handler {
	return fieldsHandler{next: h.next.WithGroup(name)}
}
