package search

import (
	"regexp"

	"github.com/rpattn/logbook/internal/domain"
)

// candidate is an entry under evaluation together with what the filters need.
type candidate struct {
	entry       domain.Entry
	schema      domain.AttributeSchema
	attachments []domain.Attachment
}

type predicate func(c *candidate) bool

// compileFilters turns the query's filters into predicates that must all
// hold. Invalid patterns are reported per field.
func compileFilters(q domain.EntryQuery) ([]predicate, error) {
	var (
		predicates []predicate
		problems   domain.ValidationErrors
	)

	pattern := func(field, expr string) *regexp.Regexp {
		if expr == "" {
			return nil
		}
		if q.IgnoreCase {
			expr = "(?i)" + expr
		}
		re, err := regexp.Compile(expr)
		if err != nil {
			problems = append(problems, domain.FieldError{Field: field, Message: "invalid pattern: " + err.Error()})
			return nil
		}
		return re
	}

	if re := pattern("content", q.Content); re != nil {
		predicates = append(predicates, func(c *candidate) bool {
			return c.entry.Content != "" && re.MatchString(c.entry.Content)
		})
	}
	if re := pattern("title", q.Title); re != nil {
		predicates = append(predicates, func(c *candidate) bool {
			return c.entry.Title != "" && re.MatchString(c.entry.Title)
		})
	}
	if re := pattern("authors", q.Author); re != nil {
		predicates = append(predicates, func(c *candidate) bool {
			for _, author := range c.entry.Authors {
				if re.MatchString(author.Name) {
					return true
				}
			}
			return false
		})
	}
	if re := pattern("attachments", q.AttachmentPath); re != nil {
		predicates = append(predicates, func(c *candidate) bool {
			for _, attachment := range c.attachments {
				if re.MatchString(attachment.Path) {
					return true
				}
			}
			return false
		})
	}

	for _, filter := range q.Attributes {
		if filter.Name == "" {
			problems = append(problems, domain.FieldError{Field: "attribute", Message: "attribute name is required"})
			continue
		}
		f := filter
		predicates = append(predicates, func(c *candidate) bool {
			return attributeMatches(c, f)
		})
	}

	if len(problems) > 0 {
		return nil, problems
	}
	return predicates, nil
}

// attributeMatches compares the entry's attribute and the filter value after
// converting both through the entry's logbook schema. For multi-valued
// attributes every filter option must be present on the entry.
func attributeMatches(c *candidate, filter domain.AttributeFilter) bool {
	stored, ok := c.entry.Attributes[filter.Name]
	if !ok {
		return false
	}
	have, err := c.schema.Convert(filter.Name, stored)
	if err != nil || !have.IsSet() {
		return false
	}
	want, err := filterValue(c.schema, filter)
	if err != nil || !want.IsSet() {
		return false
	}

	haveItems, haveList := have.StringList()
	wantItems, wantList := want.StringList()
	if haveList && wantList {
		present := make(map[string]bool, len(haveItems))
		for _, item := range haveItems {
			present[item] = true
		}
		for _, item := range wantItems {
			if !present[item] {
				return false
			}
		}
		return true
	}
	return have.Equal(want)
}

// filterValue converts the filter value through schema. Boolean filters given
// as text are parsed rather than judged by truthiness, so "false" selects
// false values.
func filterValue(schema domain.AttributeSchema, filter domain.AttributeFilter) (domain.Value, error) {
	def, ok := schema.Lookup(filter.Name)
	if ok && def.Type == domain.AttributeTypeBoolean {
		if text, isText := filter.Value.Text(); isText {
			b, err := domain.ParseBoolean(text)
			if err != nil {
				return domain.Value{}, err
			}
			return domain.BooleanValue(b), nil
		}
	}
	return schema.Convert(filter.Name, filter.Value)
}

func matchesAll(c *candidate, predicates []predicate) bool {
	for _, p := range predicates {
		if !p(c) {
			return false
		}
	}
	return true
}
