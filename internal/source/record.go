// Package source holds the loosely typed records produced by extraction,
// before any identifier is resolved.
package source

import (
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"strconv"
	"strings"
)

// ErrInvalidField is returned when a field is missing or cannot be read as the
// type a consumer needs.
var ErrInvalidField = errors.New("invalid field")

type Kind string

const (
	KindMatch  Kind = "match"
	KindTeam   Kind = "team_record"
	KindPlayer Kind = "player_record"
	KindShot   Kind = "shot"
)

// Provenance points at where a record was read from.
type Provenance struct {
	Document string `json:"document,omitempty"`
	Table    string `json:"table,omitempty"`
	Row      int    `json:"row,omitempty"`
}

// Record is one heterogeneous record emitted by a feed. Field names follow
// the vocabulary of the source, category fields of player records are dotted
// (ex. `passing.passes_completed`).
type Record struct {
	Kind       Kind           `json:"kind"`
	NativeID   string         `json:"native_id"`
	Fields     map[string]any `json:"fields"`
	Provenance Provenance     `json:"provenance"`
}

// Key is the natural key of the record used in logs.
func (r Record) Key() string {
	return fmt.Sprintf("%s:%s", r.Kind, r.NativeID)
}

func invalid(key string, value any, reason string) error {
	return fmt.Errorf("%s = %v: %s: %w", key, value, reason, ErrInvalidField)
}

func (r Record) raw(key string) (any, bool) {
	v, ok := r.Fields[key]
	if !ok || v == nil {
		return nil, false
	}
	if s, isStr := v.(string); isStr && strings.TrimSpace(s) == "" {
		return nil, false
	}
	return v, true
}

// Has returns true if the field is present and not empty.
func (r Record) Has(key string) bool {
	_, ok := r.raw(key)
	return ok
}

// String returns the field formatted as a string.
func (r Record) String(key string) (string, bool) {
	v, ok := r.raw(key)
	if !ok {
		return "", false
	}
	switch v := v.(type) {
	case string:
		return strings.TrimSpace(v), true
	case json.Number:
		return v.String(), true
	default:
		return fmt.Sprint(v), true
	}
}

// RequireString is String but a missing field is an error.
func (r Record) RequireString(key string) (string, error) {
	s, ok := r.String(key)
	if !ok {
		return "", invalid(key, nil, "required")
	}
	return s, nil
}

func cleanNumber(s string) string {
	s = strings.TrimSpace(s)
	s = strings.TrimSuffix(s, "%")
	s = strings.ReplaceAll(s, ",", "")
	return s
}

// Float returns the field as a float, ok is false when the field is absent.
func (r Record) Float(key string) (value float64, ok bool, err error) {
	v, ok := r.raw(key)
	if !ok {
		return 0, false, nil
	}

	switch v := v.(type) {
	case float64:
		value = v
	case float32:
		value = float64(v)
	case int:
		value = float64(v)
	case int64:
		value = float64(v)
	case json.Number:
		value, err = v.Float64()
	case string:
		value, err = strconv.ParseFloat(cleanNumber(v), 64)
	default:
		return 0, false, invalid(key, v, "not a number")
	}
	if err != nil || math.IsNaN(value) || math.IsInf(value, 0) {
		return 0, false, invalid(key, v, "not a number")
	}
	return value, true, nil
}

// Int returns the field as an integer, ok is false when the field is absent.
func (r Record) Int(key string) (value int64, ok bool, err error) {
	f, ok, err := r.Float(key)
	if err != nil || !ok {
		return 0, ok, err
	}
	if f != math.Trunc(f) {
		return 0, false, invalid(key, f, "not an integer")
	}
	return int64(f), true, nil
}

// RequireInt is Int but a missing field is an error.
func (r Record) RequireInt(key string) (int64, error) {
	v, ok, err := r.Int(key)
	if err != nil {
		return 0, err
	}
	if !ok {
		return 0, invalid(key, nil, "required")
	}
	return v, nil
}

// Bool returns the field as a boolean, ok is false when the field is absent.
func (r Record) Bool(key string) (value bool, ok bool, err error) {
	v, ok := r.raw(key)
	if !ok {
		return false, false, nil
	}
	switch v := v.(type) {
	case bool:
		return v, true, nil
	case string:
		parsed, err := strconv.ParseBool(strings.TrimSpace(v))
		if err != nil {
			return false, false, invalid(key, v, "not a boolean")
		}
		return parsed, true, nil
	}
	n, ok, err := r.Int(key)
	if err != nil || !ok {
		return false, ok, err
	}
	return n != 0, true, nil
}

// Category returns the fields under a dotted prefix with the prefix removed,
// it returns nil if the record carries no field of the category.
func (r Record) Category(prefix string) map[string]any {
	var out map[string]any
	for key, value := range r.Fields {
		name, found := strings.CutPrefix(key, prefix+".")
		if !found {
			continue
		}
		if out == nil {
			out = map[string]any{}
		}
		out[name] = value
	}
	return out
}

// Sub returns a record holding only the fields of a category, so the typed
// accessors can be used on them.
func (r Record) Sub(prefix string) (Record, bool) {
	fields := r.Category(prefix)
	if fields == nil {
		return Record{}, false
	}
	return Record{
		Kind:       r.Kind,
		NativeID:   r.NativeID,
		Fields:     fields,
		Provenance: r.Provenance,
	}, true
}
