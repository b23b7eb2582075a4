package textutil

import (
	"bytes"

	"github.com/yuin/goldmark"
)

// MarkdownHTML renders markdown source to an HTML fragment. Raw HTML in the
// source is omitted.
func MarkdownHTML(src string) (string, error) {
	var buf bytes.Buffer
	if err := goldmark.Convert([]byte(src), &buf); err != nil {
		return "", err
	}
	return buf.String(), nil
}
