// SPDX-FileCopyrightText: 2025 SAP SE or an SAP affiliate company
// SPDX-License-Identifier: Apache-2.0

package schema

import (
	"fmt"
	"math"
	"regexp"
	"strconv"
	"strings"
	"time"

	"github.com/sapcc/altai-api/internal/apierr"
)

// TimestampFormat is the format accepted for timestamps in query string
// arguments and request bodies.
const TimestampFormat = "2006-01-02T15:04:05Z"

var (
	uintRx      = regexp.MustCompile(`^(?:0|[1-9][0-9]*)$`)
	timestampRx = regexp.MustCompile(`^[0-9]{4}-[0-9]{2}-[0-9]{2}T[0-9]{2}:[0-9]{2}:[0-9]{2}Z$`)
	octetRx     = regexp.MustCompile(`^(?:0|[1-9][0-9]{0,2})$`)
	prefixLenRx = regexp.MustCompile(`^(?:0|[1-9][0-9]?)$`)
)

func newElement(name, typeName string, o elementOptions) *element {
	return &element{
		name:        name,
		typeName:    typeName,
		nullable:    o.Nullable,
		sortbyNames: []string{name},
		matchers:    baseMatchers(),
	}
}

////////////////////////////////////////////////////////////////////////////////
// String

// String is an element containing a string. Empty strings are rejected unless
// the AllowEmpty option is given.
func String(name string, opts ...ElementOption) Element {
	o := collectOptions(opts)
	e := newElement(name, "string", o)
	e.matchers["startswith"] = matchStartsWith()

	check := func(value string) string {
		if value == "" && !o.AllowEmpty {
			return "empty string is not allowed"
		}
		return ""
	}
	e.fromArgument = func(e *element, value string) (any, error) {
		if reason := check(value); reason != "" {
			return nil, e.invalidArgument(value, reason)
		}
		return value, nil
	}
	e.fromRequest = func(e *element, value any) (any, error) {
		s, ok := value.(string)
		if !ok {
			return nil, e.invalidElement(value, "")
		}
		if reason := check(s); reason != "" {
			return nil, e.invalidElement(value, reason)
		}
		return s, nil
	}
	return e
}

////////////////////////////////////////////////////////////////////////////////
// Boolean

// Boolean is an element containing a boolean.
func Boolean(name string, opts ...ElementOption) Element {
	e := newElement(name, "boolean", collectOptions(opts))
	e.fromArgument = func(e *element, value string) (any, error) {
		return parseBoolean(e.name, value)
	}
	e.fromRequest = func(e *element, value any) (any, error) {
		b, ok := value.(bool)
		if !ok {
			return nil, e.invalidElement(value, "")
		}
		return b, nil
	}
	return e
}

func parseBoolean(name, value string) (any, error) {
	switch value {
	case "True", "true":
		return true, nil
	case "False", "false":
		return false, nil
	default:
		return nil, apierr.InvalidArgumentValue(name, "boolean", value, "")
	}
}

////////////////////////////////////////////////////////////////////////////////
// Int

// Int is an element containing a non-negative integer. The accepted range can
// be narrowed with the MinValue and MaxValue options.
func Int(name string, opts ...ElementOption) Element {
	o := collectOptions(opts)
	minVal := o.MinValue.UnwrapOr(0)
	maxVal := o.MaxValue.UnwrapOr(math.MaxInt64)

	e := newElement(name, "uint", o)
	addOrderedMatchers(e.matchers)

	checkRange := func(n int64) string {
		if n < minVal {
			return fmt.Sprintf("value must be at least %d", minVal)
		}
		if n > maxVal {
			return fmt.Sprintf("value must be at most %d", maxVal)
		}
		return ""
	}
	e.fromArgument = func(e *element, value string) (any, error) {
		n, err := ParseUint(value)
		if err != nil {
			return nil, e.invalidArgument(value, err.Error())
		}
		if reason := checkRange(n); reason != "" {
			return nil, e.invalidArgument(value, reason)
		}
		return n, nil
	}
	e.fromRequest = func(e *element, value any) (any, error) {
		n, ok := integerFromJSON(value)
		if !ok {
			return nil, e.invalidElement(value, "")
		}
		if reason := checkRange(n); reason != "" {
			return nil, e.invalidElement(value, reason)
		}
		return n, nil
	}
	return e
}

// ParseUint parses a non-negative integer without leading zeroes or signs.
func ParseUint(value string) (int64, error) {
	if !uintRx.MatchString(value) {
		return 0, fmt.Errorf("%q is not a non-negative integer", value)
	}
	n, err := strconv.ParseInt(value, 10, 64)
	if err != nil {
		return 0, fmt.Errorf("%q is out of range", value)
	}
	return n, nil
}

func integerFromJSON(value any) (int64, bool) {
	switch v := value.(type) {
	case float64:
		if v != math.Trunc(v) || v < math.MinInt64 || v > math.MaxInt64 {
			return 0, false
		}
		return int64(v), true
	case int:
		return int64(v), true
	case int64:
		return v, true
	case interface{ Int64() (int64, error) }: // json.Number
		n, err := v.Int64()
		return n, err == nil
	default:
		return 0, false
	}
}

////////////////////////////////////////////////////////////////////////////////
// Timestamp

// Timestamp is an element containing a point in time. The only accepted
// format is "YYYY-MM-DDTHH:MM:SSZ".
func Timestamp(name string, opts ...ElementOption) Element {
	e := newElement(name, "timestamp", collectOptions(opts))
	addOrderedMatchers(e.matchers)

	e.fromArgument = func(e *element, value string) (any, error) {
		t, err := ParseTimestamp(value)
		if err != nil {
			return nil, e.invalidArgument(value, err.Error())
		}
		return t, nil
	}
	e.fromRequest = func(e *element, value any) (any, error) {
		s, ok := value.(string)
		if !ok {
			return nil, e.invalidElement(value, "")
		}
		t, err := ParseTimestamp(s)
		if err != nil {
			return nil, e.invalidElement(value, err.Error())
		}
		return t, nil
	}
	return e
}

// ParseTimestamp parses a timestamp in TimestampFormat.
func ParseTimestamp(value string) (time.Time, error) {
	// time.Parse would also accept fractional seconds here
	if !timestampRx.MatchString(value) {
		return time.Time{}, fmt.Errorf("expected format %s", "YYYY-MM-DDTHH:MM:SSZ")
	}
	t, err := time.Parse(TimestampFormat, value)
	if err != nil {
		return time.Time{}, fmt.Errorf("invalid timestamp %q", value)
	}
	return t.UTC(), nil
}

////////////////////////////////////////////////////////////////////////////////
// IPv4

// IPv4 is an element containing an IPv4 address in dotted-quad notation.
func IPv4(name string, opts ...ElementOption) Element {
	e := newElement(name, "ipv4", collectOptions(opts))
	e.fromArgument = func(e *element, value string) (any, error) {
		_, err := parseIPv4(value)
		if err != nil {
			return nil, e.invalidArgument(value, err.Error())
		}
		return value, nil
	}
	e.fromRequest = stringFromRequest(func(value string) error {
		_, err := parseIPv4(value)
		return err
	})
	return e
}

func parseIPv4(value string) (uint32, error) {
	parts := strings.Split(value, ".")
	if len(parts) != 4 {
		return 0, fmt.Errorf("%q does not have 4 octets", value)
	}
	var result uint32
	for _, part := range parts {
		if !octetRx.MatchString(part) {
			return 0, fmt.Errorf("invalid octet %q", part)
		}
		octet, err := strconv.ParseUint(part, 10, 32)
		if err != nil || octet > 255 {
			return 0, fmt.Errorf("invalid octet %q", part)
		}
		result = result<<8 | uint32(octet)
	}
	return result, nil
}

////////////////////////////////////////////////////////////////////////////////
// CIDR

// CIDR is an element containing an IPv4 network in "address/prefixlen"
// notation. The address must be the network address, i.e. all bits after the
// prefix must be zero.
func CIDR(name string, opts ...ElementOption) Element {
	e := newElement(name, "cidr", collectOptions(opts))
	e.fromArgument = func(e *element, value string) (any, error) {
		err := checkCIDR(value)
		if err != nil {
			return nil, e.invalidArgument(value, err.Error())
		}
		return value, nil
	}
	e.fromRequest = stringFromRequest(checkCIDR)
	return e
}

func checkCIDR(value string) error {
	addr, prefix, ok := strings.Cut(value, "/")
	if !ok {
		return fmt.Errorf("%q is missing a prefix length", value)
	}
	ip, err := parseIPv4(addr)
	if err != nil {
		return err
	}
	if !prefixLenRx.MatchString(prefix) {
		return fmt.Errorf("invalid prefix length %q", prefix)
	}
	prefixLen, _ := strconv.Atoi(prefix)
	if prefixLen > 32 {
		return fmt.Errorf("invalid prefix length %q", prefix)
	}
	hostMask := uint32(0xFFFFFFFF) >> prefixLen
	if ip&hostMask != 0 {
		return fmt.Errorf("%q is not a network address", value)
	}
	return nil
}

func stringFromRequest(check func(string) error) func(*element, any) (any, error) {
	return func(e *element, value any) (any, error) {
		s, ok := value.(string)
		if !ok {
			return nil, e.invalidElement(value, "")
		}
		err := check(s)
		if err != nil {
			return nil, e.invalidElement(value, err.Error())
		}
		return s, nil
	}
}

////////////////////////////////////////////////////////////////////////////////
// LinkObject

// LinkObject is an element referencing another resource. In resources, its
// value is a map with the keys "id", "name" and "href". In requests and search
// filters, only the ID is given.
func LinkObject(name string, opts ...ElementOption) Element {
	e := newElement(name, "link object", collectOptions(opts))
	e.sortbyNames = []string{name + ".id", name + ".name"}
	e.matchers = map[string]Matcher{
		"eq": newMatcher(func(value, pattern any) bool {
			return linkID(value) == pattern
		}),
		"in": newMatcher(func(value, pattern any) bool {
			id := linkID(value)
			for _, p := range asList(pattern) {
				if id == p {
					return true
				}
			}
			return false
		}),
		"exists": matchExists(),
	}

	e.fromArgument = func(e *element, value string) (any, error) {
		if value == "" {
			return nil, e.invalidArgument(value, "empty string is not allowed")
		}
		return value, nil
	}
	e.fromRequest = stringFromRequest(func(value string) error {
		if value == "" {
			return fmt.Errorf("empty string is not allowed")
		}
		return nil
	})
	return e
}

func linkID(value any) any {
	switch v := value.(type) {
	case map[string]any:
		return v["id"]
	case map[string]string:
		return v["id"]
	default:
		return nil
	}
}

////////////////////////////////////////////////////////////////////////////////
// List

// List is an element containing a list of values of the given element type.
// It supports the search filters "any" and "all" if the inner type supports
// "eq", and no search filters otherwise.
func List(inner Element, opts ...ElementOption) Element {
	e := newElement(inner.Name(), "list<"+inner.TypeName()+">", collectOptions(opts))
	e.sortbyNames = nil
	e.matchers = map[string]Matcher{}

	innerEq, err := inner.SearchMatcher("eq")
	if err == nil {
		e.matchers["any"] = newMatcher(func(value, pattern any) bool {
			for _, p := range asList(pattern) {
				if listContains(value, p, innerEq) {
					return true
				}
			}
			return false
		})
		e.matchers["all"] = newMatcher(func(value, pattern any) bool {
			for _, p := range asList(pattern) {
				if !listContains(value, p, innerEq) {
					return false
				}
			}
			return true
		})
	}

	e.fromArgument = func(_ *element, value string) (any, error) {
		return inner.FromArgument(value)
	}
	e.fromRequest = func(e *element, value any) (any, error) {
		list, ok := value.([]any)
		if !ok {
			return nil, e.invalidElement(value, "")
		}
		result := make([]any, len(list))
		for idx, item := range list {
			converted, err := inner.FromRequest(item)
			if err != nil {
				return nil, err
			}
			result[idx] = converted
		}
		return result, nil
	}
	return e
}

func listContains(list, pattern any, eq Matcher) bool {
	for _, item := range asList(list) {
		if eq.Matches(item, pattern) {
			return true
		}
	}
	return false
}
