package events

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"sync"

	"github.com/santhosh-tekuri/jsonschema/v5"
)

// ErrNotEvent marks a line that is not a protocol event.
var ErrNotEvent = errors.New("not a protocol event")

const eventSchema = `{
	"$schema": "https://json-schema.org/draft/2020-12/schema",
	"type": "object",
	"required": ["event"],
	"properties": {
		"event": {"enum": ["started", "count", "progress", "heartbeat", "done"]},
		"job_id": {"type": "string"},
		"pid": {"type": "integer", "minimum": 0},
		"ts": {"type": "string"},
		"status": {"type": "string"},
		"report_path": {"type": "string"},
		"ok": {"type": "integer", "minimum": 0},
		"skipped": {"type": "integer", "minimum": 0},
		"failed": {"type": "integer", "minimum": 0},
		"processed": {"type": "integer", "minimum": 0},
		"total": {"type": "integer", "minimum": 0}
	},
	"allOf": [
		{
			"if": {"properties": {"event": {"const": "count"}}},
			"then": {"required": ["total"]}
		},
		{
			"if": {"properties": {"event": {"enum": ["progress", "heartbeat"]}}},
			"then": {"required": ["ok", "skipped", "failed", "processed", "total"]}
		},
		{
			"if": {"properties": {"event": {"const": "done"}}},
			"then": {
				"required": ["status", "ok", "skipped", "failed", "processed", "total"],
				"properties": {"status": {"enum": ["completed", "stopped"]}}
			}
		}
	]
}`

var (
	compiled     *jsonschema.Schema
	compileErr   error
	compiledOnce sync.Once
)

func schema() (*jsonschema.Schema, error) {
	compiledOnce.Do(func() {
		compiler := jsonschema.NewCompiler()
		if err := compiler.AddResource("event.json", strings.NewReader(eventSchema)); err != nil {
			compileErr = fmt.Errorf("add schema: %w", err)
			return
		}
		compiled, compileErr = compiler.Compile("event.json")
	})
	return compiled, compileErr
}

// Parse decodes and validates one stdout line. It returns the typed event and
// the raw line; any line that fails wraps ErrNotEvent.
func Parse(line []byte) (*Event, json.RawMessage, error) {
	line = bytes.TrimSpace(line)
	if len(line) == 0 || line[0] != '{' {
		return nil, nil, ErrNotEvent
	}

	dec := json.NewDecoder(bytes.NewReader(line))
	dec.UseNumber()
	var doc any
	if err := dec.Decode(&doc); err != nil {
		return nil, nil, fmt.Errorf("%w: %v", ErrNotEvent, err)
	}

	s, err := schema()
	if err != nil {
		return nil, nil, err
	}
	if err := s.Validate(doc); err != nil {
		return nil, nil, fmt.Errorf("%w: %v", ErrNotEvent, err)
	}

	var ev Event
	if err := json.Unmarshal(line, &ev); err != nil {
		return nil, nil, fmt.Errorf("%w: %v", ErrNotEvent, err)
	}
	return &ev, json.RawMessage(append([]byte(nil), line...)), nil
}
