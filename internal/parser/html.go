package parser

import (
	"fmt"
	"regexp"
	"strings"

	"github.com/PuerkitoBio/goquery"
)

var (
	horizontalSpace = regexp.MustCompile(`[ \t\f\v\r\x{00A0}]+`)
	blankLines      = regexp.MustCompile(`\n\s*\n+`)
	spaceAroundLine = regexp.MustCompile(` ?\n ?`)
)

// blockElements get a line break appended so adjacent blocks do not run together
const blockElements = "p, div, br, tr, li, h1, h2, h3, h4, h5, h6, section, article, header, footer, table"

// HTMLToText converts an HTML document or fragment into readable plain text
func HTMLToText(html string) (string, error) {
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(html))
	if err != nil {
		return "", fmt.Errorf("failed to parse HTML: %w", err)
	}

	doc.Find("script, style, noscript, template, head").Remove()
	doc.Find(blockElements).Each(func(_ int, s *goquery.Selection) {
		s.AppendHtml("\n")
	})
	doc.Find("td, th").Each(func(_ int, s *goquery.Selection) {
		s.AppendHtml(" ")
	})

	root := doc.Find("body")
	if root.Length() == 0 {
		root = doc.Selection
	}

	return NormalizeWhitespace(root.Text()), nil
}

// NormalizeWhitespace collapses runs of spaces and blank lines while keeping line breaks
func NormalizeWhitespace(text string) string {
	text = strings.ReplaceAll(text, "\r\n", "\n")
	text = horizontalSpace.ReplaceAllString(text, " ")
	text = spaceAroundLine.ReplaceAllString(text, "\n")
	text = blankLines.ReplaceAllString(text, "\n")
	return strings.TrimSpace(text)
}

// LooksLikeHTML reports whether content appears to be markup rather than plain text
func LooksLikeHTML(content string) bool {
	trimmed := strings.TrimSpace(strings.ToLower(content))
	if strings.HasPrefix(trimmed, "<!doctype html") || strings.HasPrefix(trimmed, "<html") {
		return true
	}
	return strings.Contains(trimmed, "<body") || strings.Contains(trimmed, "<div") || strings.Contains(trimmed, "<p>") || strings.Contains(trimmed, "<br")
}
