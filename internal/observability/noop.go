package observability

import "context"

// nopLogger is a logger that discards all messages.
type nopLogger struct{}

// NopLogger returns a logger that discards all messages.
func NopLogger() Logger {
	return &nopLogger{}
}

func (l *nopLogger) Debug(msg string, fields ...Field)          {}
func (l *nopLogger) Info(msg string, fields ...Field)           {}
func (l *nopLogger) Warn(msg string, fields ...Field)           {}
func (l *nopLogger) Error(msg string, fields ...Field)          {}
func (l *nopLogger) Fatal(msg string, fields ...Field)          {}
func (l *nopLogger) With(fields ...Field) Logger                { return l }
func (l *nopLogger) WithContext(ctx context.Context) Logger     { return l }
func (l *nopLogger) Sync() error                                { return nil }
