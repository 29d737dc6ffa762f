package media

import (
	"context"
	"encoding/base64"
	"errors"
	"fmt"
	"testing"

	"github.com/rpattn/logbook/internal/domain"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type recordingSaver struct {
	saved []string
}

func (r *recordingSaver) save(ctx context.Context, data []byte, filename, contentType string) (domain.Attachment, error) {
	r.saved = append(r.saved, string(data))
	id := int64(len(r.saved))
	return domain.Attachment{ID: id, Filename: filename, ContentType: contentType, Path: fmt.Sprintf("files/%d", id), Embedded: true}, nil
}

func TestExtractEmbeddedRewritesDataImages(t *testing.T) {
	png := base64.StdEncoding.EncodeToString([]byte("png-bytes"))
	content := `<p>before</p><img src="data:image/png;base64,` + png + `" alt="plot"><img src="https://example.org/x.png">`

	saver := &recordingSaver{}
	out, attachments, err := ExtractEmbedded(context.Background(), content, saver.save)
	require.NoError(t, err)

	require.Len(t, attachments, 1)
	assert.Equal(t, []string{"png-bytes"}, saver.saved)
	assert.Equal(t, "image/png", attachments[0].ContentType)
	assert.Equal(t, "embedded-1.png", attachments[0].Filename)
	assert.Contains(t, out, `src="files/1"`)
	assert.Contains(t, out, `alt="plot"`)
	assert.Contains(t, out, `src="https://example.org/x.png"`)
	assert.NotContains(t, out, "base64")
}

func TestExtractEmbeddedLeavesPlainContentUntouched(t *testing.T) {
	content := `<p>no images<br></p>`
	saver := &recordingSaver{}

	out, attachments, err := ExtractEmbedded(context.Background(), content, saver.save)
	require.NoError(t, err)
	assert.Equal(t, content, out)
	assert.Empty(t, attachments)
	assert.Empty(t, saver.saved)
}

func TestExtractEmbeddedRejectsBrokenDataURI(t *testing.T) {
	content := `<img src="data:image/png;base64,@@not-base64@@">`
	saver := &recordingSaver{}

	out, attachments, err := ExtractEmbedded(context.Background(), content, saver.save)
	require.True(t, errors.Is(err, ErrMalformedContent))
	assert.Equal(t, content, out)
	assert.Empty(t, attachments)
	assert.Empty(t, saver.saved)
}

func TestDecodePercentEncodedDataURI(t *testing.T) {
	data, contentType, err := decodeDataURI("data:image/svg+xml,%3Csvg%2F%3E")
	require.NoError(t, err)
	assert.Equal(t, "image/svg+xml", contentType)
	assert.Equal(t, "<svg/>", string(data))
}
