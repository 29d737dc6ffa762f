package validator

import (
	"fmt"
	"strings"

	"github.com/rpattn/logbook/internal/domain"
)

// ValidateAttributes checks a logbook attribute schema: names must be present
// and unique, types known, and option types must declare distinct options.
func ValidateAttributes(schema domain.AttributeSchema) error {
	var errs domain.ValidationErrors
	seen := make(map[string]struct{}, len(schema))

	for i, def := range schema {
		field := fmt.Sprintf("attributes[%d]", i)
		name := strings.TrimSpace(def.Name)
		if name == "" {
			errs = append(errs, domain.FieldError{Field: field + ".name", Message: "name is required"})
			continue
		}
		if name != def.Name {
			errs = append(errs, domain.FieldError{Field: field + ".name", Message: fmt.Sprintf("attribute %q has surrounding whitespace", def.Name)})
		}
		if _, dup := seen[name]; dup {
			errs = append(errs, domain.FieldError{Field: field + ".name", Message: fmt.Sprintf("attribute %s is declared more than once", name)})
		}
		seen[name] = struct{}{}

		if !def.Type.Valid() {
			errs = append(errs, domain.FieldError{Field: field + ".type", Message: fmt.Sprintf("attribute %s has unknown type %q", name, def.Type)})
			continue
		}

		switch def.Type {
		case domain.AttributeTypeOption, domain.AttributeTypeMultiOption:
			if len(def.Options) == 0 {
				errs = append(errs, domain.FieldError{Field: field + ".options", Message: fmt.Sprintf("attribute %s of type %s needs options", name, def.Type)})
				continue
			}
			options := make(map[string]struct{}, len(def.Options))
			for _, option := range def.Options {
				if _, dup := options[option]; dup {
					errs = append(errs, domain.FieldError{Field: field + ".options", Message: fmt.Sprintf("option %q is repeated", option)})
				}
				options[option] = struct{}{}
			}
		default:
			if len(def.Options) > 0 {
				errs = append(errs, domain.FieldError{Field: field + ".options", Message: fmt.Sprintf("attribute %s of type %s cannot declare options", name, def.Type)})
			}
		}
	}

	if len(errs) > 0 {
		return errs
	}
	return nil
}
