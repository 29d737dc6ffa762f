package search

import (
	"strings"
	"unicode/utf8"

	"golang.org/x/net/html"
)

// PreviewLength is the number of characters kept in content previews.
const PreviewLength = 200

// Preview returns the leading text of content. Markup is reduced to its text
// when contentType is HTML.
func Preview(content, contentType string) string {
	text := content
	if strings.HasPrefix(contentType, "text/html") {
		text = htmlText(content)
	}
	text = strings.Join(strings.Fields(text), " ")
	if utf8.RuneCountInString(text) <= PreviewLength {
		return text
	}
	return string([]rune(text)[:PreviewLength])
}

func htmlText(content string) string {
	var b strings.Builder
	z := html.NewTokenizer(strings.NewReader(content))
	skip := 0
	for {
		switch z.Next() {
		case html.ErrorToken:
			return b.String()
		case html.StartTagToken:
			if name, _ := z.TagName(); isHiddenTag(name) {
				skip++
			}
		case html.EndTagToken:
			if name, _ := z.TagName(); isHiddenTag(name) && skip > 0 {
				skip--
			}
		case html.TextToken:
			if skip == 0 {
				b.Write(z.Text())
				b.WriteByte(' ')
			}
		}
	}
}

func isHiddenTag(name []byte) bool {
	switch string(name) {
	case "script", "style":
		return true
	}
	return false
}
