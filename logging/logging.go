// Package logging configures the process-wide structured logger. The rest
// of the tree logs through log/slog, the way the teacher repo does
// everywhere from server/ down to dimse/; this package backs that log/slog
// front end with a zerolog writer so call sites never change.
package logging

import (
	"context"
	"io"
	"log/slog"
	"os"

	"github.com/caio-sobreiro/pacsnet/config"
	"github.com/rs/zerolog"
)

// New builds a *slog.Logger backed by zerolog and installs it as the
// process default, honoring cfg.Level and cfg.Pretty.
func New(cfg config.LoggingConfig) *slog.Logger {
	level, err := zerolog.ParseLevel(cfg.Level)
	if err != nil {
		level = zerolog.InfoLevel
	}

	var out io.Writer = os.Stderr
	if cfg.Pretty {
		out = zerolog.ConsoleWriter{Out: os.Stderr, TimeFormat: "15:04:05.000"}
	}

	zl := zerolog.New(out).Level(level).With().Timestamp().Logger()
	logger := slog.New(&handler{logger: zl})
	slog.SetDefault(logger)
	return logger
}

// handler adapts zerolog.Logger to slog.Handler so existing slog.*Context
// call sites across the tree get zerolog's structured output for free.
type handler struct {
	logger zerolog.Logger
	attrs  []slog.Attr
	group  string
}

func (h *handler) Enabled(_ context.Context, level slog.Level) bool {
	return h.logger.GetLevel() <= toZerologLevel(level)
}

func (h *handler) Handle(_ context.Context, record slog.Record) error {
	event := h.logger.WithLevel(toZerologLevel(record.Level))
	for _, a := range h.attrs {
		addAttr(event, h.group, a)
	}
	record.Attrs(func(a slog.Attr) bool {
		addAttr(event, h.group, a)
		return true
	})
	event.Msg(record.Message)
	return nil
}

func (h *handler) WithAttrs(attrs []slog.Attr) slog.Handler {
	next := *h
	next.attrs = append(append([]slog.Attr{}, h.attrs...), attrs...)
	return &next
}

func (h *handler) WithGroup(name string) slog.Handler {
	next := *h
	if next.group == "" {
		next.group = name
	} else {
		next.group = next.group + "." + name
	}
	return &next
}

func addAttr(event *zerolog.Event, group string, a slog.Attr) {
	key := a.Key
	if group != "" {
		key = group + "." + key
	}
	v := a.Value.Resolve()
	switch v.Kind() {
	case slog.KindString:
		event.Str(key, v.String())
	case slog.KindInt64:
		event.Int64(key, v.Int64())
	case slog.KindUint64:
		event.Uint64(key, v.Uint64())
	case slog.KindFloat64:
		event.Float64(key, v.Float64())
	case slog.KindBool:
		event.Bool(key, v.Bool())
	case slog.KindDuration:
		event.Dur(key, v.Duration())
	case slog.KindTime:
		event.Time(key, v.Time())
	default:
		event.Interface(key, v.Any())
	}
}

func toZerologLevel(level slog.Level) zerolog.Level {
	switch {
	case level >= slog.LevelError:
		return zerolog.ErrorLevel
	case level >= slog.LevelWarn:
		return zerolog.WarnLevel
	case level >= slog.LevelInfo:
		return zerolog.InfoLevel
	default:
		return zerolog.DebugLevel
	}
}
