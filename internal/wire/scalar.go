package wire

import (
	"bytes"
	"encoding/json"
	"fmt"
	"math"
	"strconv"
	"strings"
)

// Text decodes a JSON string, number or boolean into its string form.
// Controllers are inconsistent about quoting numeric fields.
type Text string

// UnmarshalJSON implements json.Unmarshaler.
func (t *Text) UnmarshalJSON(b []byte) error {
	b = bytes.TrimSpace(b)
	switch {
	case len(b) == 0 || bytes.Equal(b, []byte("null")):
		*t = ""
	case b[0] == '"':
		var s string
		if err := json.Unmarshal(b, &s); err != nil {
			return err
		}
		*t = Text(s)
	case bytes.Equal(b, []byte("true")), bytes.Equal(b, []byte("false")):
		*t = Text(b)
	default:
		var n json.Number
		if err := json.Unmarshal(b, &n); err != nil {
			return fmt.Errorf("wire: text value %s: %w", b, err)
		}
		*t = Text(n.String())
	}
	return nil
}

// String returns the raw text.
func (t Text) String() string { return string(t) }

// Empty reports whether no value was supplied.
func (t Text) Empty() bool { return strings.TrimSpace(string(t)) == "" }

// Float parses the text as a finite number.
func (t Text) Float() (float64, error) {
	f, err := strconv.ParseFloat(strings.TrimSpace(string(t)), 64)
	if err != nil {
		return 0, err
	}
	if math.IsNaN(f) || math.IsInf(f, 0) {
		return 0, fmt.Errorf("wire: non-finite number %q", string(t))
	}
	return f, nil
}

// Int64 parses the text as a number and truncates it.
func (t Text) Int64() (int64, error) {
	f, err := t.Float()
	if err != nil {
		return 0, err
	}
	return int64(f), nil
}

// Flag decodes a boolean that may arrive as a JSON boolean or as the
// strings "true"/"false". Valid is false when the field was absent or null.
type Flag struct {
	Value bool
	Valid bool
}

// NewFlag returns a set Flag.
func NewFlag(v bool) Flag { return Flag{Value: v, Valid: true} }

// UnmarshalJSON implements json.Unmarshaler.
func (f *Flag) UnmarshalJSON(b []byte) error {
	s := strings.ToLower(strings.Trim(string(bytes.TrimSpace(b)), `"`))
	switch s {
	case "null":
		*f = Flag{}
	case "true", "1":
		*f = NewFlag(true)
	case "false", "0", "":
		*f = NewFlag(false)
	default:
		return fmt.Errorf("wire: invalid boolean %s", b)
	}
	return nil
}

// MarshalJSON implements json.Marshaler.
func (f Flag) MarshalJSON() ([]byte, error) {
	if !f.Valid {
		return []byte("null"), nil
	}
	return strconv.AppendBool(nil, f.Value), nil
}

// Or returns the value, or def when unset.
func (f Flag) Or(def bool) bool {
	if !f.Valid {
		return def
	}
	return f.Value
}
