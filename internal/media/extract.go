// Package media pulls inline images out of HTML entry content.
package media

import (
	"bytes"
	"context"
	"encoding/base64"
	"errors"
	"fmt"
	"mime"
	"net/url"
	"strings"

	"github.com/rpattn/logbook/internal/domain"

	"golang.org/x/net/html"
	"golang.org/x/net/html/atom"
)

// ErrMalformedContent is returned when content or one of its inline images
// cannot be decoded. Callers keep the content as submitted.
var ErrMalformedContent = errors.New("malformed content")

// SaveFunc persists one extracted file and returns its attachment record.
type SaveFunc func(ctx context.Context, data []byte, filename, contentType string) (domain.Attachment, error)

type inlineImage struct {
	node        *html.Node
	attr        int
	data        []byte
	contentType string
}

// ExtractEmbedded finds <img> elements whose src is a data URI, stores each
// image through save and points the src at the stored attachment path. It
// returns the rewritten content and the created attachments. Content without
// inline images is returned unchanged.
func ExtractEmbedded(ctx context.Context, content string, save SaveFunc) (string, []domain.Attachment, error) {
	if !strings.Contains(content, "data:") {
		return content, nil, nil
	}

	body := &html.Node{Type: html.ElementNode, Data: "body", DataAtom: atom.Body}
	nodes, err := html.ParseFragment(strings.NewReader(content), body)
	if err != nil {
		return content, nil, fmt.Errorf("%w: %v", ErrMalformedContent, err)
	}

	var images []inlineImage
	var visit func(n *html.Node) error
	visit = func(n *html.Node) error {
		if n.Type == html.ElementNode && n.DataAtom == atom.Img {
			for i, a := range n.Attr {
				if a.Key != "src" || !strings.HasPrefix(strings.TrimSpace(a.Val), "data:") {
					continue
				}
				data, contentType, err := decodeDataURI(strings.TrimSpace(a.Val))
				if err != nil {
					return err
				}
				images = append(images, inlineImage{node: n, attr: i, data: data, contentType: contentType})
			}
		}
		for c := n.FirstChild; c != nil; c = c.NextSibling {
			if err := visit(c); err != nil {
				return err
			}
		}
		return nil
	}
	for _, n := range nodes {
		if err := visit(n); err != nil {
			return content, nil, err
		}
	}
	if len(images) == 0 {
		return content, nil, nil
	}

	attachments := make([]domain.Attachment, 0, len(images))
	for i, img := range images {
		attachment, err := save(ctx, img.data, imageFilename(i, img.contentType), img.contentType)
		if err != nil {
			return content, attachments, fmt.Errorf("failed to save embedded image: %w", err)
		}
		img.node.Attr[img.attr].Val = attachment.Path
		attachments = append(attachments, attachment)
	}

	var buf bytes.Buffer
	for _, n := range nodes {
		if err := html.Render(&buf, n); err != nil {
			return content, attachments, fmt.Errorf("failed to render content: %w", err)
		}
	}
	return buf.String(), attachments, nil
}

// decodeDataURI parses "data:[<mediatype>][;base64],<data>".
func decodeDataURI(uri string) ([]byte, string, error) {
	header, payload, ok := strings.Cut(strings.TrimPrefix(uri, "data:"), ",")
	if !ok {
		return nil, "", fmt.Errorf("%w: data uri without payload", ErrMalformedContent)
	}

	isBase64 := strings.HasSuffix(header, ";base64")
	mediaType := strings.TrimSuffix(header, ";base64")
	if mediaType == "" {
		mediaType = "text/plain;charset=US-ASCII"
	}
	contentType, _, err := mime.ParseMediaType(mediaType)
	if err != nil {
		return nil, "", fmt.Errorf("%w: %v", ErrMalformedContent, err)
	}

	if isBase64 {
		data, err := base64.StdEncoding.DecodeString(strings.Join(strings.Fields(payload), ""))
		if err != nil {
			return nil, "", fmt.Errorf("%w: %v", ErrMalformedContent, err)
		}
		return data, contentType, nil
	}

	decoded, err := url.PathUnescape(payload)
	if err != nil {
		return nil, "", fmt.Errorf("%w: %v", ErrMalformedContent, err)
	}
	return []byte(decoded), contentType, nil
}

func imageFilename(i int, contentType string) string {
	ext := ".bin"
	if exts, err := mime.ExtensionsByType(contentType); err == nil && len(exts) > 0 {
		ext = exts[0]
	}
	return fmt.Sprintf("embedded-%d%s", i+1, ext)
}
