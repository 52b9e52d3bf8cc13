package course

import (
	"fmt"
	"strings"

	"gopkg.in/yaml.v3"
)

const frontmatterDelimiter = "---"

// Frontmatter is the optional YAML header of a lesson file.
type Frontmatter struct {
	ID       string `yaml:"id,omitempty"`
	Title    string `yaml:"title,omitempty"`
	Timecode string `yaml:"timecode,omitempty"`
	Order    int    `yaml:"order,omitempty"`
}

// ParseFrontmatter splits a lesson file into its YAML header and body.
// Content without a header is returned whole as the body.
func ParseFrontmatter(content string) (Frontmatter, string, error) {
	var fm Frontmatter
	trimmed := strings.TrimLeft(content, "\ufeff \t\r\n")

	if !strings.HasPrefix(trimmed, frontmatterDelimiter) {
		return fm, content, nil
	}

	rest := trimmed[len(frontmatterDelimiter):]
	idx := strings.Index(rest, "\n"+frontmatterDelimiter)
	if idx == -1 {
		return fm, "", fmt.Errorf("unclosed frontmatter delimiter")
	}

	yamlContent := rest[:idx]
	body := rest[idx+len("\n"+frontmatterDelimiter):]
	body = strings.TrimLeft(body, "\r\n")

	if err := yaml.Unmarshal([]byte(yamlContent), &fm); err != nil {
		return fm, "", fmt.Errorf("parsing frontmatter YAML: %w", err)
	}
	return fm, body, nil
}

// StripFrontmatter returns content without its YAML header. Content whose
// header cannot be parsed is returned unchanged.
func StripFrontmatter(content string) string {
	_, body, err := ParseFrontmatter(content)
	if err != nil {
		return content
	}
	return body
}

// SerializeFrontmatter renders a lesson file with a YAML header.
func SerializeFrontmatter(fm Frontmatter, body string) (string, error) {
	yamlBytes, err := yaml.Marshal(fm)
	if err != nil {
		return "", fmt.Errorf("serializing frontmatter YAML: %w", err)
	}

	var b strings.Builder
	b.WriteString(frontmatterDelimiter)
	b.WriteString("\n")
	b.WriteString(strings.TrimRight(string(yamlBytes), "\n"))
	b.WriteString("\n")
	b.WriteString(frontmatterDelimiter)
	b.WriteString("\n")
	if body != "" {
		b.WriteString("\n")
		b.WriteString(body)
		if !strings.HasSuffix(body, "\n") {
			b.WriteString("\n")
		}
	}
	return b.String(), nil
}
