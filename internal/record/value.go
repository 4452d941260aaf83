package record

import (
	"fmt"
	"strconv"
	"strings"
)

// Kind discriminates the FieldValue union.
type Kind string

const (
	KindString Kind = "string"
	KindList   Kind = "list"
	KindNumber Kind = "number"
)

// FieldValue is a tagged value for one metadata field. Provider responses
// arrive as loosely typed JSON/XML; tagging the values here keeps the
// per-field strategy dispatch in the reconciliation engine exhaustive
// instead of duck-typed.
type FieldValue struct {
	Kind Kind     `json:"kind"`
	Str  string   `json:"str,omitempty"`
	List []string `json:"list,omitempty"`
	Num  float64  `json:"num,omitempty"`
}

// StringValue wraps a string field value.
func StringValue(s string) FieldValue {
	return FieldValue{Kind: KindString, Str: s}
}

// ListValue wraps a list field value.
func ListValue(items ...string) FieldValue {
	return FieldValue{Kind: KindList, List: items}
}

// NumberValue wraps a numeric field value.
func NumberValue(n float64) FieldValue {
	return FieldValue{Kind: KindNumber, Num: n}
}

// IsEmpty reports whether the value carries no usable content.
func (v FieldValue) IsEmpty() bool {
	switch v.Kind {
	case KindString:
		return strings.TrimSpace(v.Str) == ""
	case KindList:
		return len(v.List) == 0
	case KindNumber:
		return false
	}
	return true
}

// AsNumber interprets the value as a number where possible. String values
// are parsed; list values never convert.
func (v FieldValue) AsNumber() (float64, bool) {
	switch v.Kind {
	case KindNumber:
		return v.Num, true
	case KindString:
		n, err := strconv.ParseFloat(strings.TrimSpace(v.Str), 64)
		if err != nil {
			return 0, false
		}
		return n, true
	}
	return 0, false
}

// Text renders the value for display and for equality grouping in
// most_common resolution.
func (v FieldValue) Text() string {
	switch v.Kind {
	case KindString:
		return v.Str
	case KindList:
		return strings.Join(v.List, ", ")
	case KindNumber:
		if v.Num == float64(int64(v.Num)) {
			return strconv.FormatInt(int64(v.Num), 10)
		}
		return fmt.Sprintf("%g", v.Num)
	}
	return ""
}
