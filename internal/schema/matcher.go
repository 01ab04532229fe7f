// SPDX-FileCopyrightText: 2025 SAP SE or an SAP affiliate company
// SPDX-License-Identifier: Apache-2.0

package schema

import (
	"cmp"
	"fmt"
	"reflect"
	"strings"
	"time"
)

// Matcher is a predicate that checks a resource value against a pattern from
// a search filter.
//
// A resource value of nil (i.e. a missing or null field) is never seen by the
// predicate function unless the matcher was built with seesNone. Instead,
// Matches returns noneMatches for it.
type Matcher struct {
	fn          func(value, pattern any) bool
	noneMatches bool
	seesNone    bool
}

func newMatcher(fn func(value, pattern any) bool) Matcher {
	return Matcher{fn: fn}
}

// Matches evaluates this matcher for the given resource value and pattern.
func (m Matcher) Matches(value, pattern any) bool {
	if value == nil && !m.seesNone {
		return m.noneMatches
	}
	return m.fn(value, pattern)
}

// IsValid returns false for the zero value of Matcher.
func (m Matcher) IsValid() bool {
	return m.fn != nil
}

func matchEq() Matcher {
	return newMatcher(valuesEqual)
}

func matchIn() Matcher {
	return newMatcher(func(value, pattern any) bool {
		for _, p := range asList(pattern) {
			if valuesEqual(value, p) {
				return true
			}
		}
		return false
	})
}

func matchExists() Matcher {
	return Matcher{
		fn: func(value, pattern any) bool {
			expected, _ := pattern.(bool)
			return (value != nil) == expected
		},
		seesNone: true,
	}
}

func matchStartsWith() Matcher {
	return newMatcher(func(value, pattern any) bool {
		v, ok1 := value.(string)
		p, ok2 := pattern.(string)
		return ok1 && ok2 && strings.HasPrefix(v, p)
	})
}

// Ordered matchers treat nil as smaller than every other value, so `le` and
// `lt` match nil while `ge` and `gt` do not.
func matchOrdered(test func(c int) bool, noneMatches bool) Matcher {
	return Matcher{
		fn: func(value, pattern any) bool {
			return test(Compare(value, pattern))
		},
		noneMatches: noneMatches,
	}
}

func baseMatchers() map[string]Matcher {
	return map[string]Matcher{
		"eq":     matchEq(),
		"in":     matchIn(),
		"exists": matchExists(),
	}
}

func addOrderedMatchers(m map[string]Matcher) {
	m["gt"] = matchOrdered(func(c int) bool { return c > 0 }, false)
	m["ge"] = matchOrdered(func(c int) bool { return c >= 0 }, false)
	m["lt"] = matchOrdered(func(c int) bool { return c < 0 }, true)
	m["le"] = matchOrdered(func(c int) bool { return c <= 0 }, true)
}

////////////////////////////////////////////////////////////////////////////////
// value comparison

// Compare defines a total order on the values that can appear in resources.
// nil is smaller than everything else. Numbers of different Go types compare
// numerically. Values of unrelated types are ordered by type, so that Compare
// never panics.
func Compare(a, b any) int {
	switch {
	case a == nil && b == nil:
		return 0
	case a == nil:
		return -1
	case b == nil:
		return 1
	}

	rankA, rankB := typeRank(a), typeRank(b)
	if rankA != rankB {
		return cmp.Compare(rankA, rankB)
	}

	switch rankA {
	case rankBool:
		return cmp.Compare(boolToInt(a.(bool)), boolToInt(b.(bool)))
	case rankNumber:
		return compareNumbers(a, b)
	case rankString:
		return strings.Compare(a.(string), b.(string))
	case rankTime:
		return a.(time.Time).Compare(b.(time.Time))
	default:
		return strings.Compare(fmt.Sprint(a), fmt.Sprint(b))
	}
}

const (
	rankBool = iota
	rankNumber
	rankString
	rankTime
	rankOther
)

func typeRank(v any) int {
	switch v.(type) {
	case bool:
		return rankBool
	case string:
		return rankString
	case time.Time:
		return rankTime
	}
	if isNumber(v) {
		return rankNumber
	}
	return rankOther
}

func boolToInt(b bool) int {
	if b {
		return 1
	}
	return 0
}

func isNumber(v any) bool {
	switch reflect.ValueOf(v).Kind() {
	case reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64,
		reflect.Uint, reflect.Uint8, reflect.Uint16, reflect.Uint32, reflect.Uint64,
		reflect.Float32, reflect.Float64:
		return true
	default:
		return false
	}
}

func compareNumbers(a, b any) int {
	va, vb := reflect.ValueOf(a), reflect.ValueOf(b)
	if va.CanInt() && vb.CanInt() {
		return cmp.Compare(va.Int(), vb.Int())
	}
	if va.CanUint() && vb.CanUint() {
		return cmp.Compare(va.Uint(), vb.Uint())
	}
	return cmp.Compare(toFloat(va), toFloat(vb))
}

func toFloat(v reflect.Value) float64 {
	switch {
	case v.CanInt():
		return float64(v.Int())
	case v.CanUint():
		return float64(v.Uint())
	default:
		return v.Float()
	}
}

func valuesEqual(a, b any) bool {
	if a == nil || b == nil {
		return a == nil && b == nil
	}
	if isNumber(a) && isNumber(b) {
		return compareNumbers(a, b) == 0
	}
	if ta, ok := a.(time.Time); ok {
		tb, ok := b.(time.Time)
		return ok && ta.Equal(tb)
	}
	return reflect.DeepEqual(a, b)
}

// asList converts any slice into []any. Non-slice values yield nil.
func asList(v any) []any {
	if list, ok := v.([]any); ok {
		return list
	}
	rv := reflect.ValueOf(v)
	if v == nil || (rv.Kind() != reflect.Slice && rv.Kind() != reflect.Array) {
		return nil
	}
	result := make([]any, rv.Len())
	for idx := range result {
		result[idx] = rv.Index(idx).Interface()
	}
	return result
}
