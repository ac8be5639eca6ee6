package gologger

import (
	"context"
	"io"
	"os"
	"sort"
	"strings"

	glog "github.com/goliatone/go-logger/glog"
	"pkt.systems/pslog"
)

const DefaultEnvPrefix = "SHOPINSTALL_LOG_"

// FromEnv builds a structured pslog logger configured from <prefix>* variables.
func FromEnv(prefix string, writer io.Writer) pslog.Logger {
	if strings.TrimSpace(prefix) == "" {
		prefix = DefaultEnvPrefix
	}
	if writer == nil {
		writer = os.Stderr
	}
	return pslog.LoggerFromEnv(
		pslog.WithEnvPrefix(prefix),
		pslog.WithEnvOptions(pslog.Options{
			Mode:     pslog.ModeStructured,
			MinLevel: pslog.InfoLevel,
		}),
		pslog.WithEnvWriter(writer),
	)
}

// Logger exposes a pslog logger through the glog contracts.
type Logger struct {
	base pslog.Logger
}

func New(base pslog.Logger) *Logger {
	if base == nil {
		base = pslog.NoopLogger()
	}
	return &Logger{base: base}
}

func (l *Logger) Trace(msg string, args ...any) {
	l.base.Trace(msg, args...)
}

func (l *Logger) Debug(msg string, args ...any) {
	l.base.Debug(msg, args...)
}

func (l *Logger) Info(msg string, args ...any) {
	l.base.Info(msg, args...)
}

func (l *Logger) Warn(msg string, args ...any) {
	l.base.Warn(msg, args...)
}

func (l *Logger) Error(msg string, args ...any) {
	l.base.Error(msg, args...)
}

func (l *Logger) Fatal(msg string, args ...any) {
	l.base.Fatal(msg, args...)
}

func (l *Logger) WithContext(context.Context) glog.Logger {
	return l
}

func (l *Logger) WithFields(fields map[string]any) glog.Logger {
	if len(fields) == 0 {
		return l
	}
	keys := make([]string, 0, len(fields))
	for key := range fields {
		keys = append(keys, key)
	}
	sort.Strings(keys)
	args := make([]any, 0, len(keys)*2)
	for _, key := range keys {
		args = append(args, key, fields[key])
	}
	return &Logger{base: l.base.With(args...)}
}

// Provider hands out loggers tagged with their component name.
type Provider struct {
	base pslog.Logger
}

func NewProvider(base pslog.Logger) *Provider {
	if base == nil {
		base = pslog.NoopLogger()
	}
	return &Provider{base: base}
}

func (p *Provider) GetLogger(name string) glog.Logger {
	name = strings.TrimSpace(name)
	if name == "" {
		return New(p.base)
	}
	return New(p.base.With("logger", name))
}

var (
	_ glog.Logger         = (*Logger)(nil)
	_ glog.FieldsLogger   = (*Logger)(nil)
	_ glog.LoggerProvider = (*Provider)(nil)
)
