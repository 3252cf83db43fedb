package observability

import (
	"context"
	"time"
)

type Logger interface {
	Debug(msg string, fields ...Field)
	Info(msg string, fields ...Field)
	Warn(msg string, fields ...Field)
	Error(msg string, fields ...Field)
	With(fields ...Field) Logger
}

type Field interface {
	Key() string
	Value() interface{}
}

type field[T any] struct {
	key string
	val T
}

func (f field[T]) Key() string        { return f.key }
func (f field[T]) Value() interface{} { return f.val }

func String(key, value string) Field                 { return field[string]{key, value} }
func Int(key string, value int) Field                { return field[int]{key, value} }
func Int64(key string, value int64) Field            { return field[int64]{key, value} }
func Float64(key string, value float64) Field        { return field[float64]{key, value} }
func Bool(key string, value bool) Field              { return field[bool]{key, value} }
func Duration(key string, value time.Duration) Field { return field[time.Duration]{key, value} }
func Error(key string, err error) Field              { return field[error]{key, err} }

type NopLogger struct{}

func (NopLogger) Debug(string, ...Field) {}
func (NopLogger) Info(string, ...Field)  {}
func (NopLogger) Warn(string, ...Field)  {}
func (NopLogger) Error(string, ...Field) {}
func (NopLogger) With(...Field) Logger   { return NopLogger{} }

// Tracer provides tracing hooks for document opens and render jobs.
type Tracer interface {
	StartSpan(ctx context.Context, name string) (context.Context, Span)
}

// Span represents a tracing span.
type Span interface {
	SetTag(key string, value interface{})
	SetError(err error)
	Finish()
}

type nopTracer struct{}

func (nopTracer) StartSpan(ctx context.Context, _ string) (context.Context, Span) {
	return ctx, nopSpan{}
}

// NopTracer returns a tracer that does nothing.
func NopTracer() Tracer { return nopTracer{} }

type nopSpan struct{}

func (nopSpan) SetTag(string, interface{}) {}
func (nopSpan) SetError(error)             {}
func (nopSpan) Finish()                    {}

// Span names and tags emitted by the library.
const (
	SpanOpen   = "pagekit.document.open"
	SpanRender = "pagekit.page.render"

	TagPages  = "pdf.pages.count"
	TagFormat = "render.format"
	TagPPI    = "render.ppi"
	TagBytes  = "render.bytes"
)
