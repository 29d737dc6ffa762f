package domain

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strconv"
	"strings"
)

// ValueKind identifies which variant a Value carries.
type ValueKind int

const (
	KindNone ValueKind = iota
	KindText
	KindNumber
	KindBoolean
	KindStringList
)

func (k ValueKind) String() string {
	switch k {
	case KindText:
		return "text"
	case KindNumber:
		return "number"
	case KindBoolean:
		return "boolean"
	case KindStringList:
		return "string_list"
	default:
		return "none"
	}
}

// Value is the typed value of an entry attribute or metadata key.
// The zero Value carries no value.
type Value struct {
	kind    ValueKind
	text    string
	number  float64
	boolean bool
	list    []string
}

func TextValue(s string) Value { return Value{kind: KindText, text: s} }
func NumberValue(f float64) Value { return Value{kind: KindNumber, number: f} }
func BooleanValue(b bool) Value { return Value{kind: KindBoolean, boolean: b} }
func StringListValue(items []string) Value {
	return Value{kind: KindStringList, list: append([]string(nil), items...)}
}

// Kind returns the variant carried by the value.
func (v Value) Kind() ValueKind { return v.kind }

// IsSet reports whether the value carries anything.
func (v Value) IsSet() bool { return v.kind != KindNone }

// IsEmpty reports whether the value counts as an empty submission.
func (v Value) IsEmpty() bool {
	switch v.kind {
	case KindNone:
		return true
	case KindText:
		return v.text == ""
	case KindStringList:
		return len(v.list) == 0
	default:
		return false
	}
}

func (v Value) Text() (string, bool) { return v.text, v.kind == KindText }
func (v Value) Number() (float64, bool) { return v.number, v.kind == KindNumber }
func (v Value) Boolean() (bool, bool) { return v.boolean, v.kind == KindBoolean }

func (v Value) StringList() ([]string, bool) {
	if v.kind != KindStringList {
		return nil, false
	}
	return append([]string(nil), v.list...), true
}

// Equal compares kind and payload.
func (v Value) Equal(other Value) bool {
	if v.kind != other.kind {
		return false
	}
	switch v.kind {
	case KindText:
		return v.text == other.text
	case KindNumber:
		return v.number == other.number
	case KindBoolean:
		return v.boolean == other.boolean
	case KindStringList:
		if len(v.list) != len(other.list) {
			return false
		}
		for i := range v.list {
			if v.list[i] != other.list[i] {
				return false
			}
		}
		return true
	default:
		return true
	}
}

// String renders the value for display and export.
func (v Value) String() string {
	switch v.kind {
	case KindText:
		return v.text
	case KindNumber:
		return strconv.FormatFloat(v.number, 'f', -1, 64)
	case KindBoolean:
		return strconv.FormatBool(v.boolean)
	case KindStringList:
		return strings.Join(v.list, ", ")
	default:
		return ""
	}
}

func (v Value) MarshalJSON() ([]byte, error) {
	switch v.kind {
	case KindText:
		return json.Marshal(v.text)
	case KindNumber:
		return json.Marshal(v.number)
	case KindBoolean:
		return json.Marshal(v.boolean)
	case KindStringList:
		if v.list == nil {
			return []byte("[]"), nil
		}
		return json.Marshal(v.list)
	default:
		return []byte("null"), nil
	}
}

// UnmarshalJSON infers the variant from the JSON token. Objects and
// non-string arrays are rejected.
func (v *Value) UnmarshalJSON(data []byte) error {
	trimmed := bytes.TrimSpace(data)
	if len(trimmed) == 0 || bytes.Equal(trimmed, []byte("null")) {
		*v = Value{}
		return nil
	}

	switch trimmed[0] {
	case '"':
		var s string
		if err := json.Unmarshal(trimmed, &s); err != nil {
			return err
		}
		*v = TextValue(s)
	case 't', 'f':
		var b bool
		if err := json.Unmarshal(trimmed, &b); err != nil {
			return err
		}
		*v = BooleanValue(b)
	case '[':
		var items []string
		if err := json.Unmarshal(trimmed, &items); err != nil {
			return fmt.Errorf("list values must contain strings: %w", err)
		}
		*v = StringListValue(items)
	case '{':
		return fmt.Errorf("object values are not supported")
	default:
		var f float64
		if err := json.Unmarshal(trimmed, &f); err != nil {
			return err
		}
		*v = NumberValue(f)
	}
	return nil
}

// Values maps attribute or metadata names to typed values.
type Values map[string]Value

// Clone returns an independent copy.
func (vs Values) Clone() Values {
	if vs == nil {
		return nil
	}
	out := make(Values, len(vs))
	for k, v := range vs {
		if v.kind == KindStringList {
			v.list = append([]string(nil), v.list...)
		}
		out[k] = v
	}
	return out
}
