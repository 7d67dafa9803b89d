package logger

import (
	"context"
	"io"
	"os"
	"path/filepath"
	"strconv"
	"sync"
	"time"

	"github.com/rs/zerolog"
)

// ZeroLogger wraps zerolog.Logger to implement the Logger interface.
// Sensitive field values are masked before they reach the output stream.
type ZeroLogger struct {
	zlog   *zerolog.Logger
	filter *SensitiveDataFilter
}

// Ensure ZeroLogger implements the interface
var _ Logger = (*ZeroLogger)(nil)

var callerMarshalOnce sync.Once

// New creates a ZeroLogger writing to stdout at the given level. If pretty
// is true, output is formatted for human readability. Unknown levels fall
// back to info; the level "disabled" yields a logger that emits nothing.
func New(level string, pretty bool) *ZeroLogger {
	return NewWithWriter(os.Stdout, level, pretty)
}

// NewWithWriter is New with an explicit output stream. Tests and embedders
// use it to capture or redirect log output.
func NewWithWriter(w io.Writer, level string, pretty bool) *ZeroLogger {
	callerMarshalOnce.Do(func() {
		zerolog.CallerMarshalFunc = func(_ uintptr, file string, line int) string {
			base := filepath.Base(file)
			parent := filepath.Base(filepath.Dir(file))
			if parent != "." && parent != "" {
				return parent + "/" + base + ":" + strconv.Itoa(line)
			}
			return base + ":" + strconv.Itoa(line)
		}
	})

	var l zerolog.Logger

	if pretty {
		l = zerolog.New(zerolog.ConsoleWriter{
			Out:        w,
			TimeFormat: time.RFC3339,
		}).With().Timestamp().CallerWithSkipFrameCount(3).Logger()
	} else {
		l = zerolog.New(w).With().Timestamp().CallerWithSkipFrameCount(3).Logger()
	}

	zLevel, err := zerolog.ParseLevel(level)
	if err != nil {
		zLevel = zerolog.InfoLevel
	}
	l = l.Level(zLevel)

	return &ZeroLogger{zlog: &l, filter: NewSensitiveDataFilter(nil)}
}

// Disabled returns a logger that emits nothing. It is the default for
// clients constructed without an explicit logger.
func Disabled() *ZeroLogger {
	l := zerolog.Nop()
	return &ZeroLogger{zlog: &l, filter: NewSensitiveDataFilter(nil)}
}

// WithContext returns a logger bound to the zerolog logger stored in ctx,
// falling back to the receiver when the context carries none.
func (l *ZeroLogger) WithContext(ctx context.Context) Logger {
	if ctx == nil {
		return l
	}
	zl := zerolog.Ctx(ctx)
	if zl == nil || zl.GetLevel() == zerolog.Disabled {
		return l
	}
	return &ZeroLogger{zlog: zl, filter: l.filter}
}

// WithFields returns a logger with additional fields attached to all log
// entries. Sensitive values are masked before attachment.
func (l *ZeroLogger) WithFields(fields map[string]any) Logger {
	if l.filter != nil {
		fields = l.filter.FilterFields(fields)
	}
	log := l.zlog.With().Fields(fields).Logger()
	return &ZeroLogger{zlog: &log, filter: l.filter}
}
