package domain

import (
	"fmt"
	"strconv"
	"strings"
)

// AttributeType represents the declared type of a logbook attribute.
type AttributeType string

const (
	AttributeTypeText        AttributeType = "text"
	AttributeTypeNumber      AttributeType = "number"
	AttributeTypeBoolean     AttributeType = "boolean"
	AttributeTypeOption      AttributeType = "option"
	AttributeTypeMultiOption AttributeType = "multioption"
)

// Valid reports whether the type is one of the known attribute types.
func (t AttributeType) Valid() bool {
	switch t {
	case AttributeTypeText, AttributeTypeNumber, AttributeTypeBoolean,
		AttributeTypeOption, AttributeTypeMultiOption:
		return true
	}
	return false
}

// AttributeDefinition declares a typed attribute entries of a logbook may carry.
type AttributeDefinition struct {
	Name     string        `json:"name"`
	Type     AttributeType `json:"type"`
	Required bool          `json:"required"`
	Options  []string      `json:"options,omitempty"`
}

// AttributeSchema is the ordered list of attribute definitions of a logbook.
type AttributeSchema []AttributeDefinition

// Lookup finds the definition for name.
func (s AttributeSchema) Lookup(name string) (AttributeDefinition, bool) {
	for _, def := range s {
		if def.Name == name {
			return def, true
		}
	}
	return AttributeDefinition{}, false
}

// Clone returns an independent copy of the schema.
func (s AttributeSchema) Clone() AttributeSchema {
	if s == nil {
		return nil
	}
	out := make(AttributeSchema, len(s))
	for i, def := range s {
		def.Options = append([]string(nil), def.Options...)
		out[i] = def
	}
	return out
}

// Convert turns a raw submitted value into the typed value for the named
// attribute. A zero Value result means "no value".
func (s AttributeSchema) Convert(name string, raw Value) (Value, error) {
	def, ok := s.Lookup(name)
	if !ok {
		return Value{}, &NotFoundError{Resource: "attribute", ID: name}
	}

	if raw.IsEmpty() {
		if def.Required {
			return Value{}, NewValidationError("attributes."+name, "value is required")
		}
		return Value{}, nil
	}

	switch def.Type {
	case AttributeTypeText:
		return convertText(raw), nil
	case AttributeTypeNumber:
		number, err := convertNumber(raw)
		if err != nil {
			return Value{}, NewValidationError("attributes."+name, err.Error())
		}
		return NumberValue(number), nil
	case AttributeTypeBoolean:
		return BooleanValue(truthy(raw)), nil
	case AttributeTypeMultiOption:
		if text, ok := raw.Text(); ok {
			return StringListValue([]string{text}), nil
		}
	}
	return raw, nil
}

// Converted applies Convert to every stored attribute, dropping the ones that
// no longer convert against the schema.
func (s AttributeSchema) Converted(attributes Values) Values {
	out := make(Values, len(attributes))
	for name, raw := range attributes {
		value, err := s.Convert(name, raw)
		if err != nil || !value.IsSet() {
			continue
		}
		out[name] = value
	}
	return out
}

func convertText(raw Value) Value {
	if items, ok := raw.StringList(); ok {
		return TextValue(items[0])
	}
	return TextValue(raw.String())
}

func convertNumber(raw Value) (float64, error) {
	switch raw.Kind() {
	case KindNumber:
		n, _ := raw.Number()
		return n, nil
	case KindText:
		text, _ := raw.Text()
		n, err := strconv.ParseFloat(strings.TrimSpace(text), 64)
		if err != nil {
			return 0, fmt.Errorf("%q is not a number", text)
		}
		return n, nil
	default:
		return 0, fmt.Errorf("%s value is not a number", raw.Kind())
	}
}

// ParseBoolean reads the textual spellings of a boolean accepted from forms,
// imports and search parameters.
func ParseBoolean(raw string) (bool, error) {
	value := strings.ToLower(strings.TrimSpace(raw))
	switch value {
	case "1", "yes", "y":
		return true, nil
	case "0", "no", "n":
		return false, nil
	}
	b, err := strconv.ParseBool(value)
	if err != nil {
		return false, fmt.Errorf("unable to coerce %q to boolean", raw)
	}
	return b, nil
}

func truthy(raw Value) bool {
	switch raw.Kind() {
	case KindBoolean:
		b, _ := raw.Boolean()
		return b
	case KindNumber:
		n, _ := raw.Number()
		return n != 0
	default:
		return !raw.IsEmpty()
	}
}
