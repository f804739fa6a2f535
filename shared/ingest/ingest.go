// Package ingest normalizes uploaded batches into a canonical record list.
//
// Accepted shapes, tried in order:
//   - a JSON array of records
//   - an object wrapping the array under data, items, ads, results or rows
//   - a single record object (has an id-like field or a snapshot)
//   - newline-delimited JSON, one record per line; unparsable lines are dropped
package ingest

import (
	"bufio"
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
)

var (
	// ErrEmptyInput is returned for a batch with no non-blank bytes.
	ErrEmptyInput = errors.New("empty input")
	// ErrUnsupportedShape is returned when no accepted shape matches.
	ErrUnsupportedShape = errors.New("unsupported input shape")
)

// wrapperKeys are checked in this order.
var wrapperKeys = []string{"data", "items", "ads", "results", "rows"}

// idKeys are the field names that identify a creative, in priority order.
var idKeys = []string{"ad_archive_id", "adArchiveID", "adArchiveId", "ad_id", "adId", "id"}

// Record is one opaque creative record. Numbers are kept as json.Number so
// large ids survive untouched.
type Record map[string]any

// ID resolves the external identifier, or "" when the record has none.
func (r Record) ID() string {
	for _, key := range idKeys {
		v, ok := r[key]
		if !ok || v == nil {
			continue
		}
		var s string
		switch t := v.(type) {
		case string:
			s = t
		case json.Number:
			s = t.String()
		case float64:
			s = fmt.Sprintf("%.0f", t)
		default:
			continue
		}
		if s = strings.TrimSpace(s); s != "" {
			return s
		}
	}
	return ""
}

// looksLikeCreative reports whether a bare object should be treated as a
// single record.
func (r Record) looksLikeCreative() bool {
	if _, ok := r["snapshot"]; ok {
		return true
	}
	for _, key := range idKeys {
		if _, ok := r[key]; ok {
			return true
		}
	}
	return false
}

// Normalize parses raw bytes into records. It never mutates its input.
func Normalize(data []byte) ([]Record, error) {
	trimmed := bytes.TrimSpace(bytes.TrimPrefix(data, []byte("\xef\xbb\xbf")))
	if len(trimmed) == 0 {
		return nil, ErrEmptyInput
	}

	var value any
	if err := decode(trimmed, &value); err == nil {
		if records, ok := fromValue(value); ok {
			return records, nil
		}
		// a single valid JSON value that is not a record collection
		return nil, ErrUnsupportedShape
	}

	records := fromLines(trimmed)
	if len(records) == 0 {
		return nil, ErrUnsupportedShape
	}
	return records, nil
}

func fromValue(value any) ([]Record, bool) {
	switch v := value.(type) {
	case []any:
		return fromArray(v), true
	case map[string]any:
		for _, key := range wrapperKeys {
			if arr, ok := v[key].([]any); ok {
				return fromArray(arr), true
			}
		}
		if rec := Record(v); rec.looksLikeCreative() {
			return []Record{rec}, true
		}
	}
	return nil, false
}

// fromArray keeps object elements; scalars inside an array carry no record.
func fromArray(items []any) []Record {
	records := make([]Record, 0, len(items))
	for _, item := range items {
		if obj, ok := item.(map[string]any); ok {
			records = append(records, Record(obj))
		}
	}
	return records
}

func fromLines(data []byte) []Record {
	var records []Record

	scanner := bufio.NewScanner(bytes.NewReader(data))
	scanner.Buffer(make([]byte, 0, 64*1024), 16*1024*1024)
	for scanner.Scan() {
		line := bytes.TrimSpace(scanner.Bytes())
		if len(line) == 0 {
			continue
		}
		var obj map[string]any
		if err := decode(line, &obj); err != nil || obj == nil {
			continue
		}
		records = append(records, Record(obj))
	}
	return records
}

// decode parses exactly one JSON value with UseNumber.
func decode(data []byte, v any) error {
	dec := json.NewDecoder(bytes.NewReader(data))
	dec.UseNumber()
	if err := dec.Decode(v); err != nil {
		return err
	}
	if dec.More() {
		return errors.New("trailing data after JSON value")
	}
	return nil
}
