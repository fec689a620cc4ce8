package util

import (
	"html"
	"regexp"
	"strings"
)

var (
	invisibleBlocks = regexp.MustCompile(`(?is)<(script|style|head)\b.*?</(script|style|head)\s*>`)
	blockBreaks     = regexp.MustCompile(`(?i)<br\s*/?>|</(p|div|tr|li|h[1-6]|table|blockquote)\s*>`)
)

// HTMLToText turns an HTML body into readable plain text for emails that
// carry no text part.
func HTMLToText(s string) string {
	s = invisibleBlocks.ReplaceAllString(s, "")
	s = blockBreaks.ReplaceAllString(s, "\n")

	var b strings.Builder
	inTag := false
	for _, r := range s {
		switch {
		case r == '<':
			inTag = true
		case r == '>':
			inTag = false
		case !inTag:
			b.WriteRune(r)
		}
	}
	result := strings.ReplaceAll(html.UnescapeString(b.String()), "\u00a0", " ")

	lines := strings.Split(result, "\n")
	for i, l := range lines {
		lines[i] = strings.TrimRight(l, " \t\r")
	}
	result = strings.Join(lines, "\n")
	for strings.Contains(result, "\n\n\n") {
		result = strings.ReplaceAll(result, "\n\n\n", "\n\n")
	}
	return strings.TrimSpace(result)
}

// BodyText picks the text to show for an email body.
func BodyText(text string, htmlBody *string) string {
	if strings.TrimSpace(text) != "" {
		return text
	}
	if htmlBody != nil {
		return HTMLToText(*htmlBody)
	}
	return ""
}
