package types

import (
	"bytes"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"net/netip"
	"strconv"
	"strings"
	"time"

	"github.com/vmihailenco/msgpack/v5"
)

// Wire formats of temporal values and the "not yet set" sentinels that are
// distinct from NULL.
const (
	TimestampLayout = "2006-01-02 15:04:05"
	DateLayout      = "2006-01-02"

	EmptyTimestamp = "0000-00-00 00:00:00"
	EmptyDate      = "0000-00-00"
)

var (
	// ErrInvalidValue is returned when an in-memory value cannot be stored
	// as the requested semantic type.
	ErrInvalidValue = errors.New("types: invalid value")
	// ErrDecode is returned when a stored value is malformed.
	ErrDecode = errors.New("types: malformed stored value")
)

// CoercionError describes a failed conversion.
type CoercionError struct {
	Type  Semantic
	Value any
	Err   error
}

func (e *CoercionError) Error() string {
	return fmt.Sprintf("types: cannot coerce %T to %s: %v", e.Value, e.Type, e.Err)
}

func (e *CoercionError) Unwrap() error { return e.Err }

func invalid(t Semantic, v any, format string, args ...any) error {
	return &CoercionError{Type: t, Value: v, Err: fmt.Errorf("%w: %s", ErrInvalidValue, fmt.Sprintf(format, args...))}
}

func malformed(t Semantic, v any, err error) error {
	return &CoercionError{Type: t, Value: v, Err: fmt.Errorf("%w: %v", ErrDecode, err)}
}

// ToStorage converts an in-memory value to the value bound for a column of
// semantic type t. nil always maps to nil (NULL).
func ToStorage(t Semantic, v any) (any, error) {
	mustValid(t)
	if v == nil {
		return nil, nil
	}
	switch t {
	case ID, Integer:
		return toInt64(t, v)
	case Object:
		n, err := toInt64(t, v)
		if err != nil || n == 0 {
			return nil, err
		}
		return n, nil
	case Double:
		return toFloat64(t, v)
	case Boolean:
		b, err := toBool(t, v)
		if err != nil {
			return nil, err
		}
		if b {
			return int64(1), nil
		}
		return int64(0), nil
	case String, Text:
		return toString(t, v)
	case Date:
		return dateToStorage(v)
	case Time:
		return timeOfDayToStorage(v)
	case Timestamp, Datetime, Created, Modified:
		return timestampToStorage(t, v)
	case Binary:
		switch b := v.(type) {
		case []byte:
			return bytes.Clone(b), nil
		case string:
			return []byte(b), nil
		}
		return nil, invalid(t, v, "want []byte or string")
	case Hex:
		s, ok := v.(string)
		if !ok {
			return nil, invalid(t, v, "want hex string")
		}
		b, err := hex.DecodeString(s)
		if err != nil {
			return nil, invalid(t, v, "%v", err)
		}
		return b, nil
	case IP4:
		return ipToStorage(v)
	case Serialize:
		var buf bytes.Buffer
		enc := msgpack.NewEncoder(&buf)
		enc.SetSortMapKeys(true)
		if err := enc.Encode(v); err != nil {
			return nil, invalid(t, v, "%v", err)
		}
		return buf.Bytes(), nil
	case JSON:
		b, err := json.Marshal(v)
		if err != nil {
			return nil, invalid(t, v, "%v", err)
		}
		return string(b), nil
	}
	panic("types: unhandled semantic type " + string(t))
}

// FromStorage converts a value scanned from a column of semantic type t to
// its in-memory representation. NULL (nil) always maps to nil.
func FromStorage(t Semantic, v any) (any, error) {
	mustValid(t)
	if v == nil {
		return nil, nil
	}
	switch t {
	case ID, Integer, Object:
		n, err := toInt64(t, v)
		if err != nil {
			return nil, malformed(t, v, err)
		}
		return n, nil
	case Double:
		f, err := toFloat64(t, v)
		if err != nil {
			return nil, malformed(t, v, err)
		}
		return f, nil
	case Boolean:
		b, err := toBool(t, v)
		if err != nil {
			return nil, malformed(t, v, err)
		}
		return b, nil
	case String, Text:
		s, err := toString(t, v)
		if err != nil {
			return nil, malformed(t, v, err)
		}
		return s, nil
	case Date:
		return dateFromStorage(v)
	case Time:
		return timeOfDayFromStorage(v)
	case Timestamp, Datetime, Created, Modified:
		return timestampFromStorage(t, v)
	case Binary:
		switch b := v.(type) {
		case []byte:
			return bytes.Clone(b), nil
		case string:
			return []byte(b), nil
		}
		return nil, malformed(t, v, fmt.Errorf("unexpected %T", v))
	case Hex:
		switch b := v.(type) {
		case []byte:
			return hex.EncodeToString(b), nil
		case string:
			return hex.EncodeToString([]byte(b)), nil
		}
		return nil, malformed(t, v, fmt.Errorf("unexpected %T", v))
	case IP4:
		return ipFromStorage(v)
	case Serialize:
		b, err := rawBytes(v)
		if err != nil {
			return nil, malformed(t, v, err)
		}
		if len(b) == 0 {
			return nil, nil
		}
		r := bytes.NewReader(b)
		var out any
		if err := msgpack.NewDecoder(r).Decode(&out); err != nil {
			return nil, malformed(t, v, err)
		}
		if r.Len() != 0 {
			return nil, malformed(t, v, fmt.Errorf("%d trailing bytes", r.Len()))
		}
		return out, nil
	case JSON:
		b, err := rawBytes(v)
		if err != nil {
			return nil, malformed(t, v, err)
		}
		if len(bytes.TrimSpace(b)) == 0 {
			return nil, nil
		}
		var out any
		if err := json.Unmarshal(b, &out); err != nil {
			return nil, malformed(t, v, err)
		}
		return out, nil
	}
	panic("types: unhandled semantic type " + string(t))
}

func rawBytes(v any) ([]byte, error) {
	switch b := v.(type) {
	case []byte:
		return b, nil
	case string:
		return []byte(b), nil
	}
	return nil, fmt.Errorf("unexpected %T", v)
}

func toInt64(t Semantic, v any) (int64, error) {
	switch n := v.(type) {
	case int:
		return int64(n), nil
	case int8:
		return int64(n), nil
	case int16:
		return int64(n), nil
	case int32:
		return int64(n), nil
	case int64:
		return n, nil
	case uint:
		return uintToInt64(t, v, uint64(n))
	case uint8:
		return int64(n), nil
	case uint16:
		return int64(n), nil
	case uint32:
		return int64(n), nil
	case uint64:
		return uintToInt64(t, v, n)
	case float64:
		if n != math.Trunc(n) || math.Abs(n) > math.MaxInt64 {
			return 0, invalid(t, v, "not an integer")
		}
		return int64(n), nil
	case bool:
		if n {
			return 1, nil
		}
		return 0, nil
	case string:
		return parseInt(t, v, n)
	case []byte:
		return parseInt(t, v, string(n))
	}
	return 0, invalid(t, v, "want integer")
}

func uintToInt64(t Semantic, v any, n uint64) (int64, error) {
	if n > math.MaxInt64 {
		return 0, invalid(t, v, "overflows int64")
	}
	return int64(n), nil
}

func parseInt(t Semantic, v any, s string) (int64, error) {
	n, err := strconv.ParseInt(strings.TrimSpace(s), 10, 64)
	if err != nil {
		return 0, invalid(t, v, "%v", err)
	}
	return n, nil
}

func toFloat64(t Semantic, v any) (float64, error) {
	switch n := v.(type) {
	case float64:
		return n, nil
	case float32:
		return float64(n), nil
	case string:
		f, err := strconv.ParseFloat(strings.TrimSpace(n), 64)
		if err != nil {
			return 0, invalid(t, v, "%v", err)
		}
		return f, nil
	case []byte:
		return toFloat64(t, string(n))
	}
	i, err := toInt64(t, v)
	if err != nil {
		return 0, err
	}
	return float64(i), nil
}

func toBool(t Semantic, v any) (bool, error) {
	switch b := v.(type) {
	case bool:
		return b, nil
	case string:
		return parseBool(t, v, b)
	case []byte:
		return parseBool(t, v, string(b))
	}
	n, err := toInt64(t, v)
	if err != nil {
		return false, err
	}
	return n != 0, nil
}

func parseBool(t Semantic, v any, s string) (bool, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "1", "t", "true", "y", "yes", "on":
		return true, nil
	case "", "0", "f", "false", "n", "no", "off":
		return false, nil
	}
	return false, invalid(t, v, "not a boolean")
}

func toString(t Semantic, v any) (string, error) {
	switch s := v.(type) {
	case string:
		return s, nil
	case []byte:
		return string(s), nil
	case fmt.Stringer:
		return s.String(), nil
	}
	return "", invalid(t, v, "want string")
}

func timestampToStorage(t Semantic, v any) (any, error) {
	switch ts := v.(type) {
	case time.Time:
		if ts.IsZero() {
			return EmptyTimestamp, nil
		}
		return ts.UTC().Format(TimestampLayout), nil
	case int64:
		return time.Unix(ts, 0).UTC().Format(TimestampLayout), nil
	case int:
		return time.Unix(int64(ts), 0).UTC().Format(TimestampLayout), nil
	case string:
		parsed, err := parseTimestamp(ts)
		if err != nil {
			return nil, invalid(t, v, "%v", err)
		}
		return timestampToStorage(t, parsed)
	}
	return nil, invalid(t, v, "want time.Time")
}

func timestampFromStorage(t Semantic, v any) (any, error) {
	switch ts := v.(type) {
	case time.Time:
		if ts.IsZero() {
			return time.Time{}, nil
		}
		return ts.UTC(), nil
	case string, []byte:
		s, _ := toString(t, ts)
		parsed, err := parseTimestamp(s)
		if err != nil {
			return nil, malformed(t, v, err)
		}
		return parsed, nil
	}
	return nil, malformed(t, v, fmt.Errorf("unexpected %T", v))
}

var timestampLayouts = []string{TimestampLayout, time.RFC3339Nano, "2006-01-02T15:04:05", DateLayout}

func parseTimestamp(s string) (time.Time, error) {
	s = strings.TrimSpace(s)
	if s == "" || s == EmptyTimestamp || s == EmptyDate {
		return time.Time{}, nil
	}
	for _, layout := range timestampLayouts {
		if ts, err := time.Parse(layout, s); err == nil {
			return ts.UTC(), nil
		}
	}
	return time.Time{}, fmt.Errorf("unrecognized timestamp %q", s)
}

func dateToStorage(v any) (any, error) {
	switch d := v.(type) {
	case time.Time:
		if d.IsZero() {
			return EmptyDate, nil
		}
		return d.UTC().Format(DateLayout), nil
	case string:
		parsed, err := parseTimestamp(d)
		if err != nil {
			return nil, invalid(Date, v, "%v", err)
		}
		return dateToStorage(parsed)
	}
	return nil, invalid(Date, v, "want time.Time")
}

func dateFromStorage(v any) (any, error) {
	switch d := v.(type) {
	case time.Time:
		if d.IsZero() {
			return time.Time{}, nil
		}
		y, m, day := d.UTC().Date()
		return time.Date(y, m, day, 0, 0, 0, 0, time.UTC), nil
	case string, []byte:
		s, _ := toString(Date, d)
		parsed, err := parseTimestamp(s)
		if err != nil {
			return nil, malformed(Date, v, err)
		}
		return dateFromStorage(parsed)
	}
	return nil, malformed(Date, v, fmt.Errorf("unexpected %T", v))
}

func timeOfDayToStorage(v any) (any, error) {
	d, ok := v.(time.Duration)
	if !ok {
		return nil, invalid(Time, v, "want time.Duration")
	}
	neg := d < 0
	if neg {
		d = -d
	}
	secs := int64(d / time.Second)
	s := fmt.Sprintf("%02d:%02d:%02d", secs/3600, secs/60%60, secs%60)
	if neg {
		s = "-" + s
	}
	return s, nil
}

func timeOfDayFromStorage(v any) (any, error) {
	var s string
	switch tv := v.(type) {
	case time.Time:
		h, m, sec := tv.Clock()
		return time.Duration(h)*time.Hour + time.Duration(m)*time.Minute + time.Duration(sec)*time.Second, nil
	case string:
		s = tv
	case []byte:
		s = string(tv)
	default:
		return nil, malformed(Time, v, fmt.Errorf("unexpected %T", v))
	}
	neg := strings.HasPrefix(s, "-")
	parts := strings.Split(strings.TrimPrefix(s, "-"), ":")
	if len(parts) != 3 {
		return nil, malformed(Time, v, fmt.Errorf("want HH:MM:SS"))
	}
	var total time.Duration
	for i, unit := range []time.Duration{time.Hour, time.Minute, time.Second} {
		// fractional seconds are truncated
		p := parts[i]
		if i == 2 {
			p, _, _ = strings.Cut(p, ".")
		}
		n, err := strconv.Atoi(p)
		if err != nil || n < 0 {
			return nil, malformed(Time, v, fmt.Errorf("bad component %q", parts[i]))
		}
		total += time.Duration(n) * unit
	}
	if neg {
		total = -total
	}
	return total, nil
}

func ipToStorage(v any) (any, error) {
	if s, ok := v.(string); ok {
		addr, err := netip.ParseAddr(strings.TrimSpace(s))
		if err != nil || !addr.Is4() {
			return nil, invalid(IP4, v, "not an IPv4 address")
		}
		b := addr.As4()
		return int64(b[0])<<24 | int64(b[1])<<16 | int64(b[2])<<8 | int64(b[3]), nil
	}
	n, err := toInt64(IP4, v)
	if err != nil {
		return nil, err
	}
	if n < 0 || n > math.MaxUint32 {
		return nil, invalid(IP4, v, "out of IPv4 range")
	}
	return n, nil
}

func ipFromStorage(v any) (any, error) {
	n, err := toInt64(IP4, v)
	if err != nil {
		return nil, malformed(IP4, v, err)
	}
	if n < 0 || n > math.MaxUint32 {
		return nil, malformed(IP4, v, fmt.Errorf("%d out of IPv4 range", n))
	}
	addr := netip.AddrFrom4([4]byte{byte(n >> 24), byte(n >> 16), byte(n >> 8), byte(n)})
	return addr.String(), nil
}
