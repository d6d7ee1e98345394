package utils

import (
	"html"
	"strings"

	"github.com/microcosm-cc/bluemonday"
)

var (
	sanitizer = bluemonday.UGCPolicy()
	stripper  = bluemonday.StrictPolicy()
)

// Sanitize cleans HTML content to prevent XSS attacks.
func Sanitize(input string) string {
	return sanitizer.Sanitize(input)
}

// PlainText strips every tag, for places such as email bodies that cannot render HTML.
func PlainText(input string) string {
	return strings.TrimSpace(html.UnescapeString(stripper.Sanitize(input)))
}
