package logger

import (
	"time"

	"github.com/rs/zerolog"
)

// Field is a typed structured logging attribute.
type Field interface {
	AddTo(event *zerolog.Event)
	KeyValue() (string, interface{})
}

type stringField struct {
	key   string
	value string
}

func (f stringField) AddTo(e *zerolog.Event)          { e.Str(f.key, f.value) }
func (f stringField) KeyValue() (string, interface{}) { return f.key, f.value }

type intField struct {
	key   string
	value int
}

func (f intField) AddTo(e *zerolog.Event)          { e.Int(f.key, f.value) }
func (f intField) KeyValue() (string, interface{}) { return f.key, f.value }

type float64Field struct {
	key   string
	value float64
}

func (f float64Field) AddTo(e *zerolog.Event)          { e.Float64(f.key, f.value) }
func (f float64Field) KeyValue() (string, interface{}) { return f.key, f.value }

type boolField struct {
	key   string
	value bool
}

func (f boolField) AddTo(e *zerolog.Event)          { e.Bool(f.key, f.value) }
func (f boolField) KeyValue() (string, interface{}) { return f.key, f.value }

type errorField struct {
	value error
}

func (f errorField) AddTo(e *zerolog.Event)          { e.Err(f.value) }
func (f errorField) KeyValue() (string, interface{}) { return "error", f.value }

type durationField struct {
	key   string
	value time.Duration
}

func (f durationField) AddTo(e *zerolog.Event)          { e.Dur(f.key, f.value) }
func (f durationField) KeyValue() (string, interface{}) { return f.key, f.value }

type anyField struct {
	key   string
	value interface{}
}

func (f anyField) AddTo(e *zerolog.Event)          { e.Interface(f.key, f.value) }
func (f anyField) KeyValue() (string, interface{}) { return f.key, f.value }

type stringsField struct {
	key   string
	value []string
}

func (f stringsField) AddTo(e *zerolog.Event)          { e.Strs(f.key, f.value) }
func (f stringsField) KeyValue() (string, interface{}) { return f.key, f.value }

func String(key, value string) Field                  { return stringField{key, value} }
func Int(key string, value int) Field                 { return intField{key, value} }
func Float64(key string, value float64) Field         { return float64Field{key, value} }
func Bool(key string, value bool) Field               { return boolField{key, value} }
func Error(err error) Field                           { return errorField{err} }
func Duration(key string, value time.Duration) Field  { return durationField{key, value} }
func Any(key string, value interface{}) Field         { return anyField{key, value} }
func Strings(key string, value []string) Field        { return stringsField{key, value} }
