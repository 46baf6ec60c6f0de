package logging

import (
	"fmt"
	"regexp"
	"strings"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"github.com/fyrsmithlabs/ragd/internal/config"
)

const redactedValue = "[REDACTED]"

// Secret logs a configured credential as its length only.
func Secret(key string, val config.Secret) zap.Field {
	return zap.String(key, val.Summary())
}

// redactor rewrites fields whose key is sensitive and scrubs credential
// patterns out of messages, strings and error text.
type redactor struct {
	keys     map[string]bool
	patterns []*regexp.Regexp
}

// newRedactor compiles cfg. It returns nil when redaction is disabled.
func newRedactor(cfg RedactionConfig) (*redactor, error) {
	if !cfg.Enabled {
		return nil, nil
	}
	r := &redactor{keys: make(map[string]bool, len(cfg.Fields))}
	for _, f := range cfg.Fields {
		r.keys[strings.ToLower(f)] = true
	}
	for _, p := range cfg.Patterns {
		if len(p) > 200 {
			return nil, fmt.Errorf("redaction pattern too long (max 200 chars): %q", p)
		}
		re, err := regexp.Compile(p)
		if err != nil {
			return nil, fmt.Errorf("invalid redaction pattern %q: %w", p, err)
		}
		r.patterns = append(r.patterns, re)
	}
	return r, nil
}

// wrap returns core with redaction applied, or core itself when r is nil.
func (r *redactor) wrap(core zapcore.Core) zapcore.Core {
	if r == nil {
		return core
	}
	return &redactingCore{Core: core, redactor: r}
}

func (r *redactor) scrub(s string) string {
	for _, re := range r.patterns {
		s = re.ReplaceAllString(s, redactedValue)
	}
	return s
}

func (r *redactor) field(f zapcore.Field) zapcore.Field {
	if r.keys[strings.ToLower(f.Key)] {
		// Values built by Secret already carry only a length.
		if f.Type == zapcore.StringType && strings.HasPrefix(f.String, "[REDACTED") {
			return f
		}
		return zap.String(f.Key, redactedValue)
	}

	switch f.Type {
	case zapcore.StringType:
		f.String = r.scrub(f.String)
	case zapcore.ByteStringType:
		if b, ok := f.Interface.([]byte); ok {
			if s := r.scrub(string(b)); s != string(b) {
				return zap.String(f.Key, s)
			}
		}
	case zapcore.ErrorType:
		if err, ok := f.Interface.(error); ok && err != nil {
			msg := err.Error()
			if s := r.scrub(msg); s != msg {
				return zap.String(f.Key, s)
			}
		}
	}
	return f
}

func (r *redactor) fields(fs []zapcore.Field) []zapcore.Field {
	if len(fs) == 0 {
		return fs
	}
	out := make([]zapcore.Field, len(fs))
	for i, f := range fs {
		out[i] = r.field(f)
	}
	return out
}

// redactingCore applies a redactor before entries reach the wrapped core,
// so the console encoder and the OpenTelemetry bridge see the same
// redacted data.
type redactingCore struct {
	zapcore.Core
	redactor *redactor
}

func (c *redactingCore) With(fields []zapcore.Field) zapcore.Core {
	return &redactingCore{Core: c.Core.With(c.redactor.fields(fields)), redactor: c.redactor}
}

func (c *redactingCore) Check(ent zapcore.Entry, ce *zapcore.CheckedEntry) *zapcore.CheckedEntry {
	if c.Enabled(ent.Level) {
		return ce.AddCore(ent, c)
	}
	return ce
}

func (c *redactingCore) Write(ent zapcore.Entry, fields []zapcore.Field) error {
	ent.Message = c.redactor.scrub(ent.Message)
	return c.Core.Write(ent, c.redactor.fields(fields))
}
