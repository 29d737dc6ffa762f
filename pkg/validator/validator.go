// Package validator checks request payloads against their struct tags and
// reports failures as per-field validation errors.
package validator

import (
	"errors"
	"fmt"
	"reflect"
	"strings"

	"github.com/rpattn/logbook/internal/domain"

	playground "github.com/go-playground/validator/v10"
)

// Validator wraps a configured go-playground validator.
type Validator struct {
	validate *playground.Validate
}

// New returns a validator that names fields by their json tag and knows the
// attribute_type and content_type tags.
func New() *Validator {
	v := playground.New(playground.WithRequiredStructEnabled())
	v.RegisterTagNameFunc(func(field reflect.StructField) string {
		name, _, _ := strings.Cut(field.Tag.Get("json"), ",")
		if name == "-" {
			return ""
		}
		if name == "" {
			return field.Name
		}
		return name
	})
	_ = v.RegisterValidation("attribute_type", func(fl playground.FieldLevel) bool {
		return domain.AttributeType(fl.Field().String()).Valid()
	})
	_ = v.RegisterValidation("content_type", func(fl playground.FieldLevel) bool {
		switch fl.Field().String() {
		case "", "text/html", "text/plain", "text/markdown":
			return true
		}
		return false
	})
	return &Validator{validate: v}
}

// Struct validates s. Tag failures come back as domain.ValidationErrors.
func (v *Validator) Struct(s any) error {
	err := v.validate.Struct(s)
	if err == nil {
		return nil
	}

	var fieldErrs playground.ValidationErrors
	if !errors.As(err, &fieldErrs) {
		return fmt.Errorf("failed to validate: %w", err)
	}

	out := make(domain.ValidationErrors, 0, len(fieldErrs))
	for _, fe := range fieldErrs {
		out = append(out, domain.FieldError{Field: fieldPath(fe), Message: message(fe)})
	}
	return out
}

// fieldPath drops the top-level struct name from the namespace.
func fieldPath(fe playground.FieldError) string {
	ns := fe.Namespace()
	if _, rest, ok := strings.Cut(ns, "."); ok {
		return rest
	}
	return ns
}

func message(fe playground.FieldError) string {
	switch fe.Tag() {
	case "required":
		return "value is required"
	case "max":
		return fmt.Sprintf("must be at most %s", fe.Param())
	case "min":
		return fmt.Sprintf("must be at least %s", fe.Param())
	case "gte":
		return fmt.Sprintf("must be greater than or equal to %s", fe.Param())
	case "attribute_type":
		return fmt.Sprintf("unknown attribute type %q", fe.Value())
	case "content_type":
		return fmt.Sprintf("unsupported content type %q", fe.Value())
	default:
		return fmt.Sprintf("failed %s check", fe.Tag())
	}
}
