package domain

import (
	"time"
)

// Logbook is a named, hierarchical container of entries.
type Logbook struct {
	ID                  int64           `json:"id"`
	ParentID            *int64          `json:"parentId,omitempty"`
	Name                string          `json:"name"`
	Description         string          `json:"description"`
	Template            string          `json:"template,omitempty"`
	TemplateContentType string          `json:"templateContentType,omitempty"`
	Attributes          AttributeSchema `json:"attributes"`
	Metadata            Values          `json:"metadata,omitempty"`
	Archived            bool            `json:"archived"`
	CreatedAt           time.Time       `json:"createdAt"`
	LastChangedAt       *time.Time      `json:"lastChangedAt,omitempty"`
}

// NewLogbook creates a logbook with the given name.
func NewLogbook(name, description string, parentID *int64) Logbook {
	return Logbook{
		ParentID:            copyID(parentID),
		Name:                name,
		Description:         description,
		TemplateContentType: "text/html",
		Attributes:          AttributeSchema{},
		Metadata:            Values{},
	}
}

// Clone returns a deep copy of the logbook.
func (l Logbook) Clone() Logbook {
	l.ParentID = copyID(l.ParentID)
	l.Attributes = l.Attributes.Clone()
	l.Metadata = l.Metadata.Clone()
	l.LastChangedAt = copyTime(l.LastChangedAt)
	return l
}

// WithAttributes returns a copy with the attribute schema replaced.
func (l Logbook) WithAttributes(attrs AttributeSchema) Logbook {
	out := l.Clone()
	out.Attributes = attrs.Clone()
	return out
}

// Snapshot implements Versioned.
func (l Logbook) Snapshot() (FieldSet, error) {
	return snapshotFields(map[string]any{
		"parent_id":             l.ParentID,
		"name":                  l.Name,
		"description":           l.Description,
		"template":              l.Template,
		"template_content_type": l.TemplateContentType,
		"attributes":            nonNilSchema(l.Attributes),
		"metadata":              nonNilValues(l.Metadata),
		"archived":              l.Archived,
	})
}

// Restore implements Versioned.
func (l Logbook) Restore(fields FieldSet) (Logbook, error) {
	out := l.Clone()
	for name, raw := range fields {
		var err error
		switch name {
		case "parent_id":
			out.ParentID = nil
			err = decodeField(name, raw, &out.ParentID)
		case "name":
			err = decodeField(name, raw, &out.Name)
		case "description":
			err = decodeField(name, raw, &out.Description)
		case "template":
			err = decodeField(name, raw, &out.Template)
		case "template_content_type":
			err = decodeField(name, raw, &out.TemplateContentType)
		case "attributes":
			out.Attributes = nil
			err = decodeField(name, raw, &out.Attributes)
		case "metadata":
			out.Metadata = nil
			err = decodeField(name, raw, &out.Metadata)
		case "archived":
			err = decodeField(name, raw, &out.Archived)
		}
		if err != nil {
			return Logbook{}, err
		}
	}
	return out, nil
}

func nonNilSchema(s AttributeSchema) AttributeSchema {
	if s == nil {
		return AttributeSchema{}
	}
	return s
}

func nonNilValues(v Values) Values {
	if v == nil {
		return Values{}
	}
	return v
}

func copyID(id *int64) *int64 {
	if id == nil {
		return nil
	}
	v := *id
	return &v
}

func copyTime(t *time.Time) *time.Time {
	if t == nil {
		return nil
	}
	v := *t
	return &v
}
