package rules

import (
	"fmt"
	"strconv"
	"strings"
)

type ValueKind int

const (
	KindString ValueKind = iota
	KindNumber
	KindBool
	KindStringList
)

// Value is a closed sum over the kinds a rule condition can compare
// against. Accessors never panic; coercion to string is always defined.
type Value struct {
	kind ValueKind
	str  string
	num  float64
	b    bool
	list []string
}

func StringValue(s string) Value {
	return Value{kind: KindString, str: s}
}

func NumberValue(n float64) Value {
	return Value{kind: KindNumber, num: n}
}

func BoolValue(b bool) Value {
	return Value{kind: KindBool, b: b}
}

func ListValue(items []string) Value {
	list := make([]string, len(items))
	copy(list, items)
	return Value{kind: KindStringList, list: list}
}

func (v Value) Kind() ValueKind {
	return v.kind
}

// AsString coerces any kind to its string form.
func (v Value) AsString() string {
	switch v.kind {
	case KindString:
		return v.str
	case KindNumber:
		return strconv.FormatFloat(v.num, 'f', -1, 64)
	case KindBool:
		return strconv.FormatBool(v.b)
	case KindStringList:
		return strings.Join(v.list, ",")
	default:
		return ""
	}
}

// AsNumber returns the numeric form, parsing strings when possible.
func (v Value) AsNumber() (float64, bool) {
	switch v.kind {
	case KindNumber:
		return v.num, true
	case KindString:
		n, err := strconv.ParseFloat(strings.TrimSpace(v.str), 64)
		return n, err == nil
	default:
		return 0, false
	}
}

func (v Value) AsList() ([]string, bool) {
	if v.kind != KindStringList {
		return nil, false
	}
	list := make([]string, len(v.list))
	copy(list, v.list)
	return list, true
}

// FieldSource is what the engine evaluates conditions against.
// A lookup miss fails the condition, never the evaluation.
type FieldSource interface {
	Field(name string) (Value, bool)
}

// FieldMap is the concrete FieldSource built from an advisory context.
type FieldMap map[string]Value

func (m FieldMap) Field(name string) (Value, bool) {
	v, ok := m[name]
	return v, ok
}

func (m FieldMap) SetString(name, value string) FieldMap {
	m[name] = StringValue(value)
	return m
}

func (m FieldMap) SetNumber(name string, value float64) FieldMap {
	m[name] = NumberValue(value)
	return m
}

func (m FieldMap) SetBool(name string, value bool) FieldMap {
	m[name] = BoolValue(value)
	return m
}

func (m FieldMap) SetList(name string, items []string) FieldMap {
	m[name] = ListValue(items)
	return m
}

// FieldMapFrom converts a loosely typed map (e.g. a simulate request
// body) into the closed value set. Unsupported kinds are stringified.
func FieldMapFrom(raw map[string]interface{}) FieldMap {
	m := make(FieldMap, len(raw))
	for name, v := range raw {
		switch t := v.(type) {
		case string:
			m[name] = StringValue(t)
		case float64:
			m[name] = NumberValue(t)
		case int:
			m[name] = NumberValue(float64(t))
		case bool:
			m[name] = BoolValue(t)
		case []string:
			m[name] = ListValue(t)
		case []interface{}:
			items := make([]string, 0, len(t))
			for _, item := range t {
				items = append(items, fmt.Sprintf("%v", item))
			}
			m[name] = ListValue(items)
		default:
			m[name] = StringValue(fmt.Sprintf("%v", v))
		}
	}
	return m
}
