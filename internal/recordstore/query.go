package recordstore

import (
	"fmt"
	"strings"
)

// SortNewestFirst orders by creation time, newest first.
const SortNewestFirst = "-created"

// Query selects and orders records of one collection.
type Query struct {
	Filter string
	Sort   string
}

// ForUser returns the standard query of the client: every record owned by
// userID, newest first.
func ForUser(userID string) Query {
	return Query{Filter: UserFilter(userID), Sort: SortNewestFirst}
}

// UserFilter builds the ownership predicate `user_id = "<id>"`.
func UserFilter(userID string) string {
	return fmt.Sprintf(`user_id = "%s"`, quote(userID))
}

func quote(value string) string {
	value = strings.ReplaceAll(value, `\`, `\\`)
	return strings.ReplaceAll(value, `"`, `\"`)
}

// Term is one equality predicate.
type Term struct {
	Field string
	Value string
}

// Condition is a conjunction of terms. The empty condition matches everything.
type Condition []Term

// Match reports whether rec satisfies every term.
func (c Condition) Match(rec Record) bool {
	for _, term := range c {
		if fmt.Sprint(rec[term.Field]) != term.Value {
			return false
		}
	}
	return true
}

// ParseFilter parses the subset of the filter language non-remote backends
// support: `field = "value"` terms joined with &&.
func ParseFilter(expr string) (Condition, error) {
	expr = strings.TrimSpace(expr)
	if expr == "" {
		return nil, nil
	}
	var cond Condition
	for _, part := range strings.Split(expr, "&&") {
		field, raw, ok := strings.Cut(part, "=")
		if !ok {
			return nil, fmt.Errorf("unsupported filter term %q", strings.TrimSpace(part))
		}
		field = strings.TrimSpace(field)
		if field == "" || strings.ContainsAny(field, " !<>~") {
			return nil, fmt.Errorf("unsupported filter field %q", field)
		}
		value, err := unquote(strings.TrimSpace(raw))
		if err != nil {
			return nil, err
		}
		cond = append(cond, Term{Field: field, Value: value})
	}
	return cond, nil
}

func unquote(raw string) (string, error) {
	if len(raw) < 2 || (raw[0] != '"' && raw[0] != '\'') || raw[len(raw)-1] != raw[0] {
		return "", fmt.Errorf("filter value %s must be a quoted string", raw)
	}
	body := raw[1 : len(raw)-1]
	var b strings.Builder
	for i := 0; i < len(body); i++ {
		if body[i] == '\\' && i+1 < len(body) {
			i++
		}
		b.WriteByte(body[i])
	}
	return b.String(), nil
}

// Sort is a parsed sort expression on a single field.
type Sort struct {
	Field string
	Desc  bool
}

// ParseSort parses "field" or "-field". An empty expression yields the zero Sort.
func ParseSort(expr string) (Sort, error) {
	expr = strings.TrimSpace(expr)
	if expr == "" {
		return Sort{}, nil
	}
	if strings.Contains(expr, ",") {
		return Sort{}, fmt.Errorf("multi-field sort %q is not supported", expr)
	}
	s := Sort{Field: strings.TrimPrefix(strings.TrimPrefix(expr, "-"), "+"), Desc: strings.HasPrefix(expr, "-")}
	if s.Field == "" {
		return Sort{}, fmt.Errorf("invalid sort %q", expr)
	}
	return s, nil
}
