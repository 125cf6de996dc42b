package analysis

import (
	"encoding/json"
	"strconv"
	"strings"
	"time"
)

// Kind is the ordering domain of a range bound.
type Kind int

const (
	KindNone Kind = iota
	KindNumeric
	KindTemporal
)

func (k Kind) String() string {
	switch k {
	case KindNumeric:
		return "numeric"
	case KindTemporal:
		return "temporal"
	}
	return "none"
}

// timeLayouts are tried in order when a string is coerced to a time.
var timeLayouts = []string{
	time.RFC3339Nano,
	time.RFC3339,
	"2006-01-02T15:04:05",
	"2006-01-02 15:04:05",
	"2006-01-02",
}

// numeric coerces Go numeric kinds and json.Number to float64.
func numeric(v interface{}) (float64, bool) {
	switch n := v.(type) {
	case int:
		return float64(n), true
	case int8:
		return float64(n), true
	case int16:
		return float64(n), true
	case int32:
		return float64(n), true
	case int64:
		return float64(n), true
	case uint:
		return float64(n), true
	case uint8:
		return float64(n), true
	case uint16:
		return float64(n), true
	case uint32:
		return float64(n), true
	case uint64:
		return float64(n), true
	case float32:
		return float64(n), true
	case float64:
		return n, true
	case json.Number:
		f, err := n.Float64()
		return f, err == nil
	}
	return 0, false
}

// ToFloat64 coerces numbers and numeric strings to float64.
func ToFloat64(v interface{}) (float64, bool) {
	if f, ok := numeric(v); ok {
		return f, true
	}
	if s, ok := v.(string); ok {
		f, err := strconv.ParseFloat(strings.TrimSpace(s), 64)
		return f, err == nil
	}
	return 0, false
}

// ToTime coerces time.Time and timestamp strings to a UTC time.
func ToTime(v interface{}) (time.Time, bool) {
	switch t := v.(type) {
	case time.Time:
		return t.UTC(), true
	case string:
		s := strings.TrimSpace(t)
		for _, layout := range timeLayouts {
			if ts, err := time.Parse(layout, s); err == nil {
				return ts.UTC(), true
			}
		}
	}
	return time.Time{}, false
}

// KindOf classifies a range bound. Strings are temporal only when they parse
// as a timestamp; numeric strings are not accepted as bounds.
func KindOf(v interface{}) Kind {
	if _, ok := numeric(v); ok {
		return KindNumeric
	}
	if _, ok := ToTime(v); ok {
		return KindTemporal
	}
	return KindNone
}

// Compare orders a and b in domain k. ok is false when either side cannot be
// coerced into k.
func Compare(k Kind, a, b interface{}) (cmp int, ok bool) {
	switch k {
	case KindNumeric:
		x, ok1 := ToFloat64(a)
		y, ok2 := ToFloat64(b)
		if !ok1 || !ok2 {
			return 0, false
		}
		switch {
		case x < y:
			return -1, true
		case x > y:
			return 1, true
		}
		return 0, true
	case KindTemporal:
		x, ok1 := ToTime(a)
		y, ok2 := ToTime(b)
		if !ok1 || !ok2 {
			return 0, false
		}
		return x.Compare(y), true
	}
	return 0, false
}
