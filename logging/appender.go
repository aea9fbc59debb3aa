package logging

import (
	"fmt"
	"io"
	"os"
	"path/filepath"

	"github.com/pkg/errors"
	"go.uber.org/zap/zapcore"
)

// DefaultTimeFormatStr is the default time format string for log appenders.
const DefaultTimeFormatStr = "2006-01-02T15:04:05.000Z0700"

// Appender is an output for log entries. This is a subset of the `zapcore.Core` interface.
type Appender interface {
	// Write submits a structured log entry to the appender for logging.
	Write(zapcore.Entry, []zapcore.Field) error
	// Sync is for signaling that any buffered logs to `Write` should be flushed. E.g: at shutdown.
	Sync() error
}

// ConsoleAppender will create human readable lines from log events and write them to the desired
// output sync. E.g: stdout or a file.
type ConsoleAppender struct {
	io.Writer
	encoder zapcore.Encoder
}

// NewStdoutAppender creates a new appender that outputs to stdout.
func NewStdoutAppender() ConsoleAppender {
	return NewWriterAppender(os.Stdout)
}

// NewWriterAppender creates a new appender that outputs to the input writer.
func NewWriterAppender(writer io.Writer) ConsoleAppender {
	return ConsoleAppender{writer, zapcore.NewConsoleEncoder(NewEncoderConfig())}
}

// Write outputs the log entry to the underlying stream.
func (appender ConsoleAppender) Write(entry zapcore.Entry, fields []zapcore.Field) error {
	buf, err := appender.encoder.EncodeEntry(entry, fields)
	if err != nil {
		return err
	}
	defer buf.Free()

	_, err = appender.Writer.Write(buf.Bytes())
	return err
}

// Sync flushes the writer when it supports it.
func (appender ConsoleAppender) Sync() error {
	if syncer, ok := appender.Writer.(interface{ Sync() error }); ok {
		if err := syncer.Sync(); err != nil && !isUnsyncable(err) {
			return err
		}
	}
	return nil
}

// stdout and stderr report EINVAL/ENOTTY on Sync when attached to a terminal or pipe.
func isUnsyncable(err error) bool {
	var pathErr *os.PathError
	if !errors.As(err, &pathErr) {
		return false
	}
	return pathErr.Path == os.Stdout.Name() || pathErr.Path == os.Stderr.Name()
}

// callerToString formats "dir/file.go:line" the way zap's short caller encoder does.
func callerToString(caller *zapcore.EntryCaller) string {
	return fmt.Sprintf("%s:%d", filepath.Join(filepath.Base(filepath.Dir(caller.File)), filepath.Base(caller.File)), caller.Line)
}

// appenderCore adapts an Appender to a zapcore.Core so the sugared zap view of a Logger writes
// through the same outputs.
type appenderCore struct {
	appender Appender
	enabler  zapcore.LevelEnabler
	fields   []zapcore.Field
}

func (core *appenderCore) Enabled(level zapcore.Level) bool {
	return core.enabler.Enabled(level)
}

func (core *appenderCore) With(fields []zapcore.Field) zapcore.Core {
	combined := make([]zapcore.Field, 0, len(core.fields)+len(fields))
	combined = append(combined, core.fields...)
	combined = append(combined, fields...)
	return &appenderCore{core.appender, core.enabler, combined}
}

func (core *appenderCore) Check(entry zapcore.Entry, checked *zapcore.CheckedEntry) *zapcore.CheckedEntry {
	if core.Enabled(entry.Level) {
		return checked.AddCore(entry, core)
	}
	return checked
}

func (core *appenderCore) Write(entry zapcore.Entry, fields []zapcore.Field) error {
	if len(core.fields) == 0 {
		return core.appender.Write(entry, fields)
	}
	all := make([]zapcore.Field, 0, len(core.fields)+len(fields))
	all = append(all, core.fields...)
	all = append(all, fields...)
	return core.appender.Write(entry, all)
}

func (core *appenderCore) Sync() error {
	return core.appender.Sync()
}
