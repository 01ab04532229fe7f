// SPDX-FileCopyrightText: 2025 SAP SE or an SAP affiliate company
// SPDX-License-Identifier: Apache-2.0

package schema

import (
	"errors"
	"fmt"
	"strings"
	"time"
)

// SplitWithEscape splits the value at each unescaped occurrence of sep. The
// escape character may only precede sep or itself.
func SplitWithEscape(value string, sep, escape rune) ([]string, error) {
	var (
		result  []string
		current strings.Builder
		escaped bool
	)
	for _, r := range value {
		switch {
		case escaped:
			if r != sep && r != escape {
				return nil, fmt.Errorf("unknown escape sequence %q", string([]rune{escape, r}))
			}
			current.WriteRune(r)
			escaped = false
		case r == escape:
			escaped = true
		case r == sep:
			result = append(result, current.String())
			current.Reset()
		default:
			current.WriteRune(r)
		}
	}
	if escaped {
		return nil, errors.New("unterminated escape sequence at end of value")
	}
	return append(result, current.String()), nil
}

// FormatTimestamp renders a timestamp in the wire format. Fractional seconds
// are only shown with microsecond precision when present, so that timestamps
// accepted by ParseTimestamp render back in the same format.
func FormatTimestamp(t time.Time) string {
	t = t.UTC()
	if t.Nanosecond()/1000 == 0 {
		return t.Format(TimestampFormat)
	}
	return t.Format("2006-01-02T15:04:05.000000Z")
}

// ToWire converts a resource value into its wire representation. Timestamps
// become strings. Maps and lists are converted recursively.
func ToWire(value any) any {
	switch v := value.(type) {
	case time.Time:
		return FormatTimestamp(v)
	case *time.Time:
		if v == nil {
			return nil
		}
		return FormatTimestamp(*v)
	case map[string]any:
		result := make(map[string]any, len(v))
		for key, val := range v {
			result[key] = ToWire(val)
		}
		return result
	case []any:
		result := make([]any, len(v))
		for idx, val := range v {
			result[idx] = ToWire(val)
		}
		return result
	case []map[string]any:
		result := make([]any, len(v))
		for idx, val := range v {
			result[idx] = ToWire(val)
		}
		return result
	default:
		return value
	}
}
