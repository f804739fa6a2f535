package creative

import (
	"bytes"
	"encoding/json"
)

// Text is a string field that scraped payloads encode inconsistently: as a
// plain string, a number, or an object like {"text": "..."}.
type Text string

// UnmarshalJSON accepts a string, a number, null or an object with a text key.
func (t *Text) UnmarshalJSON(data []byte) error {
	data = bytes.TrimSpace(data)
	if len(data) == 0 || bytes.Equal(data, []byte("null")) {
		*t = ""
		return nil
	}

	switch data[0] {
	case '"':
		var s string
		if err := json.Unmarshal(data, &s); err != nil {
			return err
		}
		*t = Text(s)
	case '{':
		var wrapped struct {
			Text Text `json:"text"`
		}
		if err := json.Unmarshal(data, &wrapped); err != nil {
			return err
		}
		*t = wrapped.Text
	case '[':
		// arrays carry nothing we can display
		*t = ""
	default:
		var n json.Number
		if err := json.Unmarshal(data, &n); err != nil {
			*t = Text(data)
			return nil
		}
		*t = Text(n.String())
	}
	return nil
}

// String returns the plain value.
func (t Text) String() string { return string(t) }
