package validate

import (
	"encoding/json"
	"fmt"
	"math"
	"strconv"
	"strings"
	"time"

	"github.com/Sternrassler/fec-ingest/pkg/client"
)

// optString returns the trimmed string value of field, nil when absent or null.
func optString(r client.Record, field string) (*string, error) {
	switch v := r[field].(type) {
	case nil:
		return nil, nil
	case string:
		s := strings.TrimSpace(v)
		return &s, nil
	default:
		return nil, &FieldError{Field: field, Reason: fmt.Sprintf("must be a string, got %T", v)}
	}
}

// requiredString is optString that rejects absent and blank values.
func requiredString(r client.Record, field string) (string, error) {
	s, err := optString(r, field)
	if err != nil {
		return "", err
	}
	if s == nil || *s == "" {
		return "", &FieldError{Field: field, Reason: "is required"}
	}
	return *s, nil
}

func toInt(field string, v any) (int, error) {
	switch n := v.(type) {
	case json.Number:
		i, err := n.Int64()
		if err != nil {
			return 0, &FieldError{Field: field, Reason: fmt.Sprintf("must be an integer, got %q", n)}
		}
		return int(i), nil
	case float64:
		if n != math.Trunc(n) {
			return 0, &FieldError{Field: field, Reason: fmt.Sprintf("must be an integer, got %v", n)}
		}
		return int(n), nil
	case int:
		return n, nil
	case int64:
		return int(n), nil
	case string:
		i, err := strconv.Atoi(strings.TrimSpace(n))
		if err != nil {
			return 0, &FieldError{Field: field, Reason: fmt.Sprintf("must be an integer, got %q", n)}
		}
		return i, nil
	default:
		return 0, &FieldError{Field: field, Reason: fmt.Sprintf("must be an integer, got %T", v)}
	}
}

func optInt(r client.Record, field string) (*int, error) {
	v, ok := r[field]
	if !ok || v == nil {
		return nil, nil
	}
	i, err := toInt(field, v)
	if err != nil {
		return nil, err
	}
	return &i, nil
}

// intList returns an empty, non-nil slice when the field is absent or null.
func intList(r client.Record, field string) ([]int, error) {
	v, ok := r[field]
	if !ok || v == nil {
		return []int{}, nil
	}
	items, ok := v.([]any)
	if !ok {
		return nil, &FieldError{Field: field, Reason: fmt.Sprintf("must be a list, got %T", v)}
	}
	out := make([]int, 0, len(items))
	for _, item := range items {
		i, err := toInt(field, item)
		if err != nil {
			return nil, err
		}
		out = append(out, i)
	}
	return out, nil
}

func optBool(r client.Record, field string) (*bool, error) {
	switch v := r[field].(type) {
	case nil:
		return nil, nil
	case bool:
		return &v, nil
	default:
		return nil, &FieldError{Field: field, Reason: fmt.Sprintf("must be a boolean, got %T", v)}
	}
}

var dateLayouts = []string{
	"2006-01-02",
	"2006-01-02T15:04:05",
	time.RFC3339,
}

var dateTimeLayouts = []string{
	time.RFC3339Nano,
	"2006-01-02T15:04:05.999999999",
	"2006-01-02T15:04:05",
	"2006-01-02 15:04:05",
	"2006-01-02",
}

// optDate parses a calendar date; any time part is dropped.
func optDate(r client.Record, field string) (*time.Time, error) {
	t, err := parseTime(r, field, dateLayouts)
	if err != nil || t == nil {
		return t, err
	}
	d := time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, time.UTC)
	return &d, nil
}

// optDateTime parses a timestamp. Values without a zone are taken as UTC.
func optDateTime(r client.Record, field string) (*time.Time, error) {
	t, err := parseTime(r, field, dateTimeLayouts)
	if err != nil || t == nil {
		return t, err
	}
	utc := t.UTC()
	return &utc, nil
}

func parseTime(r client.Record, field string, layouts []string) (*time.Time, error) {
	s, err := optString(r, field)
	if err != nil || s == nil || *s == "" {
		return nil, err
	}
	for _, layout := range layouts {
		if t, err := time.Parse(layout, *s); err == nil {
			return &t, nil
		}
	}
	return nil, &FieldError{Field: field, Reason: fmt.Sprintf("unrecognized date %q", *s)}
}
