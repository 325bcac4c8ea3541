// Package flight analyses decoded UAV telemetry logs. Records flow in from a
// Source exactly once, are grouped by message type in arrival order, and the
// sealed result answers metadata, anomaly, keyword and time-series questions
// without ever mutating again.
package flight

import (
	"encoding/json"
	"fmt"
	"strconv"
)

// BadRecordType tags records a decoder could not make sense of. Ingest drops
// them without failing the rest of the log.
const BadRecordType = "BAD_DATA"

// TimeField is the microsecond boot-time stamp ArduPilot writes on most
// messages.
const TimeField = "TimeUS"

// Value is one telemetry field, either a number or a short string such as a
// message name or flight mode label. The zero Value is the number 0.
type Value struct {
	num  float64
	str  string
	text bool
}

// Num wraps a numeric field value.
func Num(v float64) Value { return Value{num: v} }

// Text wraps a string field value.
func Text(s string) Value { return Value{str: s, text: true} }

// Float returns the numeric payload. ok is false for string values.
func (v Value) Float() (f float64, ok bool) {
	if v.text {
		return 0, false
	}
	return v.num, true
}

// Str returns the string payload. ok is false for numeric values.
func (v Value) Str() (s string, ok bool) {
	if !v.text {
		return "", false
	}
	return v.str, true
}

// String renders the value for reports and logs.
func (v Value) String() string {
	if v.text {
		return v.str
	}
	return strconv.FormatFloat(v.num, 'g', -1, 64)
}

// MarshalJSON emits the raw number or string.
func (v Value) MarshalJSON() ([]byte, error) {
	if v.text {
		return json.Marshal(v.str)
	}
	return json.Marshal(v.num)
}

// UnmarshalJSON accepts either a JSON number or string.
func (v *Value) UnmarshalJSON(data []byte) error {
	if len(data) > 0 && data[0] == '"' {
		var s string
		if err := json.Unmarshal(data, &s); err != nil {
			return err
		}
		*v = Text(s)
		return nil
	}
	var f float64
	if err := json.Unmarshal(data, &f); err != nil {
		return fmt.Errorf("field value must be a number or string: %w", err)
	}
	*v = Num(f)
	return nil
}

// Record is one decoded telemetry message: its type tag plus the named
// fields the format defines for it.
type Record struct {
	Type   string           `json:"type"`
	Fields map[string]Value `json:"fields"`
}

// Float returns the named field when it is present and numeric.
func (r Record) Float(name string) (float64, bool) {
	v, ok := r.Fields[name]
	if !ok {
		return 0, false
	}
	return v.Float()
}

// FloatOr returns the named numeric field, or def when it is absent or not
// a number.
func (r Record) FloatOr(name string, def float64) float64 {
	if f, ok := r.Float(name); ok {
		return f
	}
	return def
}

// TimeUS returns the record timestamp in microseconds since boot.
func (r Record) TimeUS() (float64, bool) {
	return r.Float(TimeField)
}

// Source yields decoded records one at a time. Implementations surface
// structural stream failures through Err once Next has returned false;
// individually corrupt records are reported as BadRecordType records
// instead.
type Source interface {
	// Next advances to the next record, returning false when the source is
	// exhausted or broken.
	Next() bool

	// Record returns the current record. It is only valid after a true
	// Next.
	Record() Record

	// Err reports the failure that stopped iteration, or nil on clean
	// exhaustion.
	Err() error
}
