package barrio

import (
	"bytes"
	"encoding/json"
	"fmt"
	"math"
	"strconv"
	"strings"

	"github.com/rotisserie/eris"
)

// ErrMalformedNumber is returned when a string cannot be read as a number.
var ErrMalformedNumber = eris.New("barrio: malformed number")

// unitReplacer strips decorations the backend leaves in numeric strings.
var unitReplacer = strings.NewReplacer("%", "", "€", "", " ", "", "\u00a0", "", "m²", "", "m2", "")

// ParseNumber reads a locale-formatted number. Both decimal comma and
// decimal dot are accepted; when both separators appear the last one is
// the decimal separator and the other is a thousands separator.
func ParseNumber(s string) (float64, error) {
	clean := unitReplacer.Replace(strings.TrimSpace(s))
	if clean == "" {
		return 0, eris.Wrapf(ErrMalformedNumber, "barrio: empty number %q", s)
	}

	lastComma := strings.LastIndex(clean, ",")
	lastDot := strings.LastIndex(clean, ".")
	switch {
	case lastComma >= 0 && lastDot >= 0:
		if lastComma > lastDot {
			clean = strings.ReplaceAll(clean, ".", "")
			clean = strings.Replace(clean, ",", ".", 1)
		} else {
			clean = strings.ReplaceAll(clean, ",", "")
		}
	case lastComma >= 0:
		if strings.Count(clean, ",") > 1 {
			clean = strings.ReplaceAll(clean, ",", "")
		} else {
			clean = strings.Replace(clean, ",", ".", 1)
		}
	case lastDot >= 0:
		if strings.Count(clean, ".") > 1 {
			clean = strings.ReplaceAll(clean, ".", "")
		}
	}

	f, err := strconv.ParseFloat(clean, 64)
	if err != nil || math.IsNaN(f) || math.IsInf(f, 0) {
		return 0, eris.Wrapf(ErrMalformedNumber, "barrio: parse %q", s)
	}
	return f, nil
}

// Number is a numeric record field that tolerates JSON numbers, numeric
// strings and null.
type Number struct {
	Value     float64
	Present   bool
	Malformed bool
	Raw       string
}

// Num returns a present, well-formed Number.
func Num(v float64) Number {
	return Number{Value: v, Present: true}
}

// Valid reports whether the field carried a usable value.
func (n Number) Valid() bool { return n.Present && !n.Malformed }

// UnmarshalJSON implements json.Unmarshaler.
func (n *Number) UnmarshalJSON(data []byte) error {
	*n = Number{}
	data = bytes.TrimSpace(data)
	if len(data) == 0 || bytes.Equal(data, []byte("null")) {
		return nil
	}
	n.Present = true

	if data[0] == '"' {
		var s string
		if err := json.Unmarshal(data, &s); err != nil {
			n.Malformed = true
			n.Raw = string(data)
			return nil
		}
		n.Raw = s
		v, err := ParseNumber(s)
		if err != nil {
			n.Malformed = true
			return nil
		}
		n.Value = v
		return nil
	}

	var f float64
	if err := json.Unmarshal(data, &f); err != nil {
		n.Malformed = true
		n.Raw = string(data)
		return nil
	}
	n.Value = f
	return nil
}

// MarshalJSON implements json.Marshaler. Malformed values keep their raw text.
func (n Number) MarshalJSON() ([]byte, error) {
	switch {
	case !n.Present:
		return []byte("null"), nil
	case n.Malformed:
		return json.Marshal(n.Raw)
	default:
		return json.Marshal(n.Value)
	}
}

// Rate is a derived value that may be unavailable, for example a weighted
// average over zero population.
type Rate struct {
	Value float64
	Valid bool
}

// MarshalJSON encodes unavailable rates as null.
func (r Rate) MarshalJSON() ([]byte, error) {
	if !r.Valid {
		return []byte("null"), nil
	}
	return json.Marshal(r.Value)
}

// UnmarshalJSON implements json.Unmarshaler.
func (r *Rate) UnmarshalJSON(data []byte) error {
	*r = Rate{}
	if bytes.Equal(bytes.TrimSpace(data), []byte("null")) {
		return nil
	}
	if err := json.Unmarshal(data, &r.Value); err != nil {
		return eris.Wrap(err, "barrio: decode rate")
	}
	r.Valid = true
	return nil
}

// String renders the rate for display.
func (r Rate) String() string { return FormatNumber(r) }

// FormatNumber renders a rate with two decimals, or N/A when unavailable.
func FormatNumber(r Rate) string {
	if !r.Valid || math.IsNaN(r.Value) || math.IsInf(r.Value, 0) {
		return "N/A"
	}
	return fmt.Sprintf("%.2f", r.Value)
}
