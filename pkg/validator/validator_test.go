package validator

import (
	"errors"
	"testing"

	"github.com/rpattn/logbook/internal/domain"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type sampleInput struct {
	Title       string `json:"title" validate:"required,max=10"`
	ContentType string `json:"content_type" validate:"content_type"`
	Kind        string `json:"kind" validate:"omitempty,attribute_type"`
	Limit       int    `json:"limit" validate:"gte=0"`
}

func TestStructPasses(t *testing.T) {
	v := New()
	assert.NoError(t, v.Struct(sampleInput{Title: "ok", ContentType: "text/html", Kind: "number"}))
}

func TestStructReportsJSONFieldNames(t *testing.T) {
	v := New()
	err := v.Struct(sampleInput{ContentType: "application/pdf", Kind: "date", Limit: -1})
	require.Error(t, err)
	assert.True(t, errors.Is(err, domain.ErrValidation))

	var verrs domain.ValidationErrors
	require.True(t, errors.As(err, &verrs))

	fields := map[string]string{}
	for _, fe := range verrs {
		fields[fe.Field] = fe.Message
	}
	assert.Equal(t, "value is required", fields["title"])
	assert.Contains(t, fields["content_type"], "application/pdf")
	assert.Contains(t, fields["kind"], "date")
	assert.Contains(t, fields, "limit")
}
