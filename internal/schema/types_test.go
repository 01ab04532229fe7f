// SPDX-FileCopyrightText: 2025 SAP SE or an SAP affiliate company
// SPDX-License-Identifier: Apache-2.0

package schema

import (
	"testing"
	"time"

	"github.com/sapcc/go-bits/assert"

	"github.com/sapcc/altai-api/internal/apierr"
)

func expectArgumentError(t *testing.T, e Element, input string) {
	t.Helper()
	_, err := e.FromArgument(input)
	if !apierr.IsType(err, apierr.ErrInvalidArgumentValue) {
		t.Errorf("expected %s to reject %q with InvalidArgumentValue, but got err = %v", e, input, err)
	}
}

func expectElementError(t *testing.T, e Element, input any) {
	t.Helper()
	_, err := e.FromRequest(input)
	if !apierr.IsType(err, apierr.ErrInvalidElementValue) {
		t.Errorf("expected %s to reject %#v with InvalidElementValue, but got err = %v", e, input, err)
	}
}

func TestStringElement(t *testing.T) {
	e := String("name")
	assert.DeepEqual(t, "typename", e.TypeName(), "string")
	assert.DeepEqual(t, "sortby names", e.SortbyNames(), []string{"name"})

	value, err := e.FromArgument("foo")
	assert.DeepEqual(t, "err", err, nil)
	assert.DeepEqual(t, "value", value, any("foo"))
	expectArgumentError(t, e, "")
	expectElementError(t, e, "")
	expectElementError(t, e, 42.0)
	expectElementError(t, e, nil)

	value, err = String("description", AllowEmpty()).FromArgument("")
	assert.DeepEqual(t, "err", err, nil)
	assert.DeepEqual(t, "value", value, any(""))

	value, err = String("description", Nullable()).FromRequest(nil)
	assert.DeepEqual(t, "err", err, nil)
	assert.DeepEqual(t, "value", value, nil)

	m, err := e.SearchMatcher("startswith")
	assert.DeepEqual(t, "err", err, nil)
	assert.DeepEqual(t, "startswith(foobar, foo)", m.Matches("foobar", "foo"), true)
	assert.DeepEqual(t, "startswith(barfoo, foo)", m.Matches("barfoo", "foo"), false)
	assert.DeepEqual(t, "startswith(nil, foo)", m.Matches(nil, "foo"), false)

	_, err = e.SearchMatcher("gt")
	assert.DeepEqual(t, "gt is an invalid request", apierr.IsType(err, apierr.ErrInvalidRequest), true)
}

func TestBooleanElement(t *testing.T) {
	e := Boolean("enabled")
	for input, expected := range map[string]bool{"True": true, "true": true, "False": false, "false": false} {
		value, err := e.FromArgument(input)
		assert.DeepEqual(t, "err for "+input, err, nil)
		assert.DeepEqual(t, "value for "+input, value, any(expected))
	}
	for _, input := range []string{"TRUE", "yes", "1", "", "tRUE"} {
		expectArgumentError(t, e, input)
	}
	expectElementError(t, e, "true")

	value, err := e.FromRequest(false)
	assert.DeepEqual(t, "err", err, nil)
	assert.DeepEqual(t, "value", value, any(false))
}

func TestIntElement(t *testing.T) {
	e := Int("size", MaxValue(100))
	assert.DeepEqual(t, "typename", e.TypeName(), "uint")

	value, err := e.FromArgument("0")
	assert.DeepEqual(t, "err", err, nil)
	assert.DeepEqual(t, "value", value, any(int64(0)))
	value, err = e.FromArgument("42")
	assert.DeepEqual(t, "err", err, nil)
	assert.DeepEqual(t, "value", value, any(int64(42)))

	for _, input := range []string{"042", "00", "-1", "+1", "1.5", "", "abc", "101"} {
		expectArgumentError(t, e, input)
	}
	expectArgumentError(t, Int("size", MinValue(10)), "9")

	value, err = e.FromRequest(17.0)
	assert.DeepEqual(t, "err", err, nil)
	assert.DeepEqual(t, "value", value, any(int64(17)))
	expectElementError(t, e, 1.5)
	expectElementError(t, e, -1.0)
	expectElementError(t, e, "17")
}

func TestOrderedMatchersWithNone(t *testing.T) {
	e := Int("size")
	expected := map[string]bool{"le": true, "lt": true, "ge": false, "gt": false, "eq": false, "in": false}
	for op, result := range expected {
		m, err := e.SearchMatcher(op)
		assert.DeepEqual(t, "err for "+op, err, nil)
		pattern := any(int64(5))
		if op == "in" {
			pattern = []any{int64(5)}
		}
		assert.DeepEqual(t, op+"(nil, 5)", m.Matches(nil, pattern), result)
	}

	ge, _ := e.SearchMatcher("ge")
	assert.DeepEqual(t, "ge(5, 5)", ge.Matches(5, int64(5)), true)
	assert.DeepEqual(t, "ge(4.0, 5)", ge.Matches(4.0, int64(5)), false)
	lt, _ := e.SearchMatcher("lt")
	assert.DeepEqual(t, "lt(4, 5)", lt.Matches(int64(4), int64(5)), true)
	assert.DeepEqual(t, "lt(5, 5)", lt.Matches(int64(5), int64(5)), false)
}

func TestExistsMatcher(t *testing.T) {
	e := Int("size")
	value, err := e.ParseSearchArgument("exists", "true")
	assert.DeepEqual(t, "err", err, nil)
	m, _ := e.SearchMatcher("exists")
	assert.DeepEqual(t, "exists(nil, true)", m.Matches(nil, value), false)
	assert.DeepEqual(t, "exists(1, true)", m.Matches(1, value), true)
	assert.DeepEqual(t, "exists(nil, false)", m.Matches(nil, false), true)

	_, err = e.ParseSearchArgument("exists", "yes")
	assert.DeepEqual(t, "exists=yes is invalid", apierr.IsType(err, apierr.ErrInvalidArgumentValue), true)
}

func TestTimestampElement(t *testing.T) {
	e := Timestamp("created")
	value, err := e.FromArgument("2012-01-02T03:04:05Z")
	assert.DeepEqual(t, "err", err, nil)
	assert.DeepEqual(t, "value", value, any(time.Date(2012, 1, 2, 3, 4, 5, 0, time.UTC)))

	for _, input := range []string{
		"2012-01-02T03:04:05",
		"2012-01-02 03:04:05Z",
		"2012-01-02T03:04Z",
		"2012-01-02T03:04:05.123Z",
		"2012-01-02T03:04:05+01:00",
		"2012-13-02T03:04:05Z",
	} {
		expectArgumentError(t, e, input)
	}

	// round trip through the wire format
	parsed, err := e.FromRequest("2012-01-02T03:04:05Z")
	assert.DeepEqual(t, "err", err, nil)
	assert.DeepEqual(t, "wire format", ToWire(parsed), any("2012-01-02T03:04:05Z"))
	assert.DeepEqual(t, "wire format with fraction",
		FormatTimestamp(time.Date(2012, 1, 2, 3, 4, 5, 120000000, time.UTC)),
		"2012-01-02T03:04:05.120000Z")
}

func TestIPv4Element(t *testing.T) {
	e := IPv4("ip")
	value, err := e.FromArgument("10.0.255.1")
	assert.DeepEqual(t, "err", err, nil)
	assert.DeepEqual(t, "value", value, any("10.0.255.1"))
	for _, input := range []string{"10.0.0", "10.0.0.0.1", "10.0.0.256", "10.0.0.01", "10..0.1", "a.b.c.d"} {
		expectArgumentError(t, e, input)
	}
}

func TestCIDRElement(t *testing.T) {
	e := CIDR("cidr")
	for _, input := range []string{"192.168.1.0/24", "0.0.0.0/0", "10.0.0.1/32", "10.0.0.0/8"} {
		value, err := e.FromArgument(input)
		assert.DeepEqual(t, "err for "+input, err, nil)
		assert.DeepEqual(t, "value for "+input, value, any(input))
	}
	for _, input := range []string{
		"192.168.1.1/24",  // host bits set
		"192.168.1.0/042", // leading zero in prefix length
		"192.168.1.0/33",
		"192.168.1.0",
		"192.168.1.0/",
		"192.168.01.0/24",
	} {
		expectArgumentError(t, e, input)
	}

	value, err := e.FromRequest("10.1.0.0/16")
	assert.DeepEqual(t, "err", err, nil)
	assert.DeepEqual(t, "round trip", value, any("10.1.0.0/16"))
	expectElementError(t, e, "10.1.0.1/16")
}

func TestLinkObjectElement(t *testing.T) {
	e := LinkObject("project")
	assert.DeepEqual(t, "sortby names", e.SortbyNames(), []string{"project.id", "project.name"})

	link := map[string]any{"id": "42", "name": "foo", "href": "/v1/projects/42"}
	eq, _ := e.SearchMatcher("eq")
	assert.DeepEqual(t, "eq(link, 42)", eq.Matches(link, "42"), true)
	assert.DeepEqual(t, "eq(link, 43)", eq.Matches(link, "43"), false)
	assert.DeepEqual(t, "eq(nil, 42)", eq.Matches(nil, "42"), false)

	pattern, err := e.ParseSearchArgument("in", "41|42")
	assert.DeepEqual(t, "err", err, nil)
	in, _ := e.SearchMatcher("in")
	assert.DeepEqual(t, "in(link, 41|42)", in.Matches(link, pattern), true)

	_, err = e.SearchMatcher("startswith")
	assert.DeepEqual(t, "startswith is an invalid request", apierr.IsType(err, apierr.ErrInvalidRequest), true)
}

func TestListElement(t *testing.T) {
	e := List(LinkObject("projects"))
	assert.DeepEqual(t, "typename", e.TypeName(), "list<link object>")
	assert.DeepEqual(t, "sortby names", len(e.SortbyNames()), 0)

	value := []any{map[string]any{"id": "42"}, map[string]any{"id": "43"}}
	anyM, err := e.SearchMatcher("any")
	assert.DeepEqual(t, "err", err, nil)
	allM, err := e.SearchMatcher("all")
	assert.DeepEqual(t, "err", err, nil)

	assert.DeepEqual(t, "any [43]", anyM.Matches(value, []any{"43"}), true)
	assert.DeepEqual(t, "any [44]", anyM.Matches(value, []any{"44"}), false)
	assert.DeepEqual(t, "all [43, 45]", allM.Matches(value, []any{"43", "45"}), false)
	assert.DeepEqual(t, "all [43]", allM.Matches(value, []any{"43"}), true)

	pattern, err := e.ParseSearchArgument("all", "42|43")
	assert.DeepEqual(t, "err", err, nil)
	assert.DeepEqual(t, "all pattern", pattern, any([]any{"42", "43"}))
	assert.DeepEqual(t, "all [42, 43]", allM.Matches(value, pattern), true)

	_, err = e.SearchMatcher("eq")
	assert.DeepEqual(t, "eq is an invalid request", apierr.IsType(err, apierr.ErrInvalidRequest), true)

	converted, err := e.FromRequest([]any{"42", "43"})
	assert.DeepEqual(t, "err", err, nil)
	assert.DeepEqual(t, "converted", converted, any([]any{"42", "43"}))
	expectElementError(t, e, "42")
	expectElementError(t, e, []any{"42", 43.0})
}

func TestListWithoutEqHasNoMatchers(t *testing.T) {
	e := List(List(String("tags")))
	for _, op := range []string{"any", "all", "eq", "in", "exists"} {
		_, err := e.SearchMatcher(op)
		assert.DeepEqual(t, op+" is an invalid request", apierr.IsType(err, apierr.ErrInvalidRequest), true)
	}
}

func TestSplitWithEscape(t *testing.T) {
	parts, err := SplitWithEscape(`abc|def\|qwe`, '|', '\\')
	assert.DeepEqual(t, "err", err, nil)
	assert.DeepEqual(t, "parts", parts, []string{"abc", "def|qwe"})

	parts, err = SplitWithEscape(`a\\|b`, '|', '\\')
	assert.DeepEqual(t, "err", err, nil)
	assert.DeepEqual(t, "parts", parts, []string{`a\`, "b"})

	_, err = SplitWithEscape(`abc\`, '|', '\\')
	if err == nil {
		t.Error("expected error for dangling escape")
	}
	_, err = SplitWithEscape(`a\bc`, '|', '\\')
	if err == nil {
		t.Error("expected error for unknown escape sequence")
	}

	_, err = String("name").ParseSearchArgument("in", `abc\`)
	assert.DeepEqual(t, "in with dangling escape", apierr.IsType(err, apierr.ErrInvalidArgumentValue), true)
}

func TestCompare(t *testing.T) {
	assert.DeepEqual(t, "nil < 0", Compare(nil, 0), -1)
	assert.DeepEqual(t, "0 > nil", Compare(0, nil), 1)
	assert.DeepEqual(t, "nil == nil", Compare(nil, nil), 0)
	assert.DeepEqual(t, "int64(2) vs 2.5", Compare(int64(2), 2.5), -1)
	assert.DeepEqual(t, "strings", Compare("b", "a"), 1)
	// values of unrelated types must not panic
	assert.DeepEqual(t, "string vs number", Compare("a", 1), 1)
}
