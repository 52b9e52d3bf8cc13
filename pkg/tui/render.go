package tui

import (
	"html"
	"regexp"
	"strings"

	"github.com/microcosm-cc/bluemonday"

	"github.com/stefanpenner/syllabus/pkg/course"
)

var (
	htmlTagPattern = regexp.MustCompile(`(?i)<(html|body|p|div|br|h[1-6]|ul|ol|li|section|article|span|a|em|strong|pre|code)\b`)
	blankLines     = regexp.MustCompile(`\n{3,}`)

	// block-level tags become markdown structure before sanitising
	htmlBlockRules = []struct {
		pattern *regexp.Regexp
		repl    string
	}{
		{regexp.MustCompile(`(?i)<h1[^>]*>`), "\n\n# "},
		{regexp.MustCompile(`(?i)<h2[^>]*>`), "\n\n## "},
		{regexp.MustCompile(`(?i)<h[3-6][^>]*>`), "\n\n### "},
		{regexp.MustCompile(`(?i)<li\b[^>]*>`), "\n- "},
		{regexp.MustCompile(`(?i)<br\s*/?>`), "\n"},
		{regexp.MustCompile(`(?i)</(p|div|h[1-6]|ul|ol|section|article|pre)>`), "\n\n"},
		{regexp.MustCompile(`(?i)<(strong|b)>`), "**"},
		{regexp.MustCompile(`(?i)</(strong|b)>`), "**"},
		{regexp.MustCompile(`(?i)<(em|i)>`), "_"},
		{regexp.MustCompile(`(?i)</(em|i)>`), "_"},
	}

	strictPolicy = bluemonday.StrictPolicy()
)

// LessonMarkdown turns a fetched lesson body into markdown for display. Any
// YAML header is dropped and HTML bodies are reduced to text.
func LessonMarkdown(body string) string {
	body = course.StripFrontmatter(body)
	if !looksLikeHTML(body) {
		return body
	}
	return htmlToMarkdown(body)
}

func looksLikeHTML(s string) bool {
	return htmlTagPattern.MatchString(s)
}

func htmlToMarkdown(s string) string {
	for _, rule := range htmlBlockRules {
		s = rule.pattern.ReplaceAllString(s, rule.repl)
	}
	s = strictPolicy.Sanitize(s)
	s = html.UnescapeString(s)

	lines := strings.Split(s, "\n")
	for i, line := range lines {
		lines[i] = strings.TrimSpace(line)
	}
	s = strings.Join(lines, "\n")
	s = blankLines.ReplaceAllString(s, "\n\n")
	return strings.TrimSpace(s) + "\n"
}
