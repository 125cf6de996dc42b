// Package analysis reproduces the search backend's field analysis in memory:
// case folding, tokenization and value coercion for range comparisons.
package analysis

import (
	"encoding/json"
	"strconv"
	"strings"
	"time"
	"unicode"
)

// Fold case-folds s the way the standard analyzer's lowercase filter does.
func Fold(s string) string {
	return strings.ToLower(s)
}

// Tokenize splits s into lowercase tokens.
//
// Token runes are letters, digits, combining marks and '_'. A '.' or '\''
// stays inside a token when it sits between two letters or two digits, so
// "example.com", "don't" and "3.14" are single tokens while "a.1" splits.
// Every other rune is a separator.
func Tokenize(s string) []string {
	if s == "" {
		return nil
	}
	rs := []rune(s)
	var (
		tokens []string
		cur    []rune
	)
	flush := func() {
		if len(cur) > 0 {
			tokens = append(tokens, string(cur))
			cur = cur[:0]
		}
	}
	for i, r := range rs {
		switch {
		case isTokenRune(r):
			cur = append(cur, unicode.ToLower(r))
		case isJoiner(r) && len(cur) > 0 && i+1 < len(rs) && joins(rs[i-1], rs[i+1]):
			cur = append(cur, r)
		default:
			flush()
		}
	}
	flush()
	return tokens
}

func isTokenRune(r rune) bool {
	return r == '_' || unicode.IsLetter(r) || unicode.IsDigit(r) || unicode.IsMark(r)
}

func isJoiner(r rune) bool {
	return r == '.' || r == '\''
}

func joins(prev, next rune) bool {
	if unicode.IsLetter(prev) && unicode.IsLetter(next) {
		return true
	}
	return unicode.IsDigit(prev) && unicode.IsDigit(next)
}

// Values flattens a field value into its elements. Lists (of any depth)
// contribute each non-nil element; a scalar is a one-element slice;
// nil yields nothing.
func Values(v interface{}) []interface{} {
	switch t := v.(type) {
	case nil:
		return nil
	case []interface{}:
		var out []interface{}
		for _, x := range t {
			out = append(out, Values(x)...)
		}
		return out
	case []string:
		out := make([]interface{}, len(t))
		for i, s := range t {
			out[i] = s
		}
		return out
	default:
		return []interface{}{v}
	}
}

// Text renders a scalar as the string the backend would analyze.
// Maps and lists are not scalars and report false.
func Text(v interface{}) (string, bool) {
	switch t := v.(type) {
	case string:
		return t, true
	case bool:
		return strconv.FormatBool(t), true
	case json.Number:
		if i, err := t.Int64(); err == nil {
			return strconv.FormatInt(i, 10), true
		}
		if f, err := t.Float64(); err == nil {
			return formatFloat(f), true
		}
		return t.String(), true
	case time.Time:
		return t.UTC().Format(time.RFC3339Nano), true
	case int:
		return strconv.FormatInt(int64(t), 10), true
	case int64:
		return strconv.FormatInt(t, 10), true
	case uint64:
		return strconv.FormatUint(t, 10), true
	}
	if f, ok := numeric(v); ok {
		return formatFloat(f), true
	}
	return "", false
}

// ElementTokens analyzes each element of a field value separately.
func ElementTokens(v interface{}) [][]string {
	var out [][]string
	for _, el := range Values(v) {
		s, ok := Text(el)
		if !ok {
			continue
		}
		out = append(out, Tokenize(s))
	}
	return out
}

func formatFloat(f float64) string {
	return strconv.FormatFloat(f, 'f', -1, 64)
}
