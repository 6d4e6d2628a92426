// Package validate turns raw API records into typed, normalized values.
package validate

import (
	"errors"
	"fmt"
	"strings"

	"github.com/Sternrassler/fec-ingest/pkg/client"
	"github.com/rs/zerolog"
)

// Validator converts one raw record into T or explains why it cannot.
type Validator[T any] interface {
	Validate(record client.Record) (T, error)
}

// ValidatorFunc adapts a function to Validator.
type ValidatorFunc[T any] func(record client.Record) (T, error)

// Validate calls f(record).
func (f ValidatorFunc[T]) Validate(record client.Record) (T, error) {
	return f(record)
}

// Reject is a record that failed validation.
type Reject struct {
	Index  int
	Key    string
	Reason error
}

// FieldError is a problem with a single field.
type FieldError struct {
	Field  string
	Reason string
}

func (e *FieldError) Error() string {
	return fmt.Sprintf("%s: %s", e.Field, e.Reason)
}

// ValidationError collects every field problem of one record.
type ValidationError struct {
	Fields []*FieldError
}

func (e *ValidationError) Error() string {
	parts := make([]string, 0, len(e.Fields))
	for _, f := range e.Fields {
		parts = append(parts, f.Error())
	}
	return "invalid record: " + strings.Join(parts, "; ")
}

// Has reports whether field is among the failed fields.
func (e *ValidationError) Has(field string) bool {
	for _, f := range e.Fields {
		if f.Field == field {
			return true
		}
	}
	return false
}

// Transform validates records in order, keeping the accepted values and
// skipping the rest. keyField names the record field used to identify
// rejects in logs.
func Transform[T any](records []client.Record, v Validator[T], keyField string, logger zerolog.Logger) ([]T, []Reject) {
	accepted := make([]T, 0, len(records))
	var rejects []Reject

	for i, record := range records {
		value, err := v.Validate(record)
		if err != nil {
			key := fmt.Sprint(record[keyField])
			if record[keyField] == nil {
				key = fmt.Sprintf("#%d", i)
			}
			logger.Warn().
				Err(err).
				Int("index", i).
				Str("key", key).
				Msg("Skipping invalid record")
			rejects = append(rejects, Reject{Index: i, Key: key, Reason: err})
			continue
		}
		accepted = append(accepted, value)
	}

	if len(rejects) > 0 {
		logger.Info().
			Int("accepted", len(accepted)).
			Int("rejected", len(rejects)).
			Msg("Transform complete")
	}

	return accepted, rejects
}

// fieldErrors accumulates FieldErrors for one record.
type fieldErrors []*FieldError

func (fe *fieldErrors) add(field string, err error) {
	if err == nil {
		return
	}
	var f *FieldError
	if errors.As(err, &f) {
		*fe = append(*fe, f)
		return
	}
	*fe = append(*fe, &FieldError{Field: field, Reason: err.Error()})
}

func (fe fieldErrors) err() error {
	if len(fe) == 0 {
		return nil
	}
	return &ValidationError{Fields: fe}
}
