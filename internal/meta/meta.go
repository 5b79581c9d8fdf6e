// Package meta extracts structured metadata from raw Markdown documents:
// a leading YAML frontmatter block and inline #tags. Extraction is
// best-effort; malformed frontmatter never aborts ingestion.
package meta

import (
	"fmt"
	"log/slog"
	"regexp"
	"sort"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// DocumentMeta is the typed metadata record for one document.
type DocumentMeta struct {
	// Title from frontmatter "title" key, if present.
	Title string

	// Frontmatter holds parsed key/value pairs with values flattened
	// to strings. List values are joined with commas.
	Frontmatter map[string]string

	// Tags is the union of frontmatter tags and inline #tags,
	// lowercased, deduplicated, sorted.
	Tags []string

	// Modified is the document's last-modified timestamp, filled in by
	// the caller from source file statistics.
	Modified time.Time
}

var (
	// frontmatterPattern matches a leading --- delimited YAML block.
	frontmatterPattern = regexp.MustCompile(`(?s)^---\r?\n(.*?)\r?\n---\r?\n?`)

	// inlineTagPattern matches #tag tokens at a line start or after
	// whitespace/parens. A '#' inside a URL is preceded by non-space
	// characters and never matches.
	inlineTagPattern = regexp.MustCompile(`(?m)(?:^|[\s(])#([A-Za-z][\w/-]*)`)
)

// Extract parses frontmatter and inline tags from raw document text.
// It returns the content with the frontmatter block removed and the
// metadata record. Malformed frontmatter degrades to an empty record
// with the original content returned unmodified.
func Extract(path, raw string) (string, DocumentMeta) {
	m := DocumentMeta{Frontmatter: map[string]string{}}
	content := raw

	if loc := frontmatterPattern.FindStringSubmatchIndex(raw); loc != nil {
		block := raw[loc[2]:loc[3]]

		var parsed map[string]any
		if err := yaml.Unmarshal([]byte(block), &parsed); err != nil {
			slog.Warn("malformed frontmatter, ingesting document without metadata",
				slog.String("path", path),
				slog.String("error", err.Error()))
		} else {
			content = raw[loc[1]:]
			flattenFrontmatter(parsed, &m)
		}
	}

	tags := map[string]struct{}{}
	for _, t := range m.Tags {
		tags[t] = struct{}{}
	}
	for _, match := range inlineTagPattern.FindAllStringSubmatch(content, -1) {
		tags[strings.ToLower(match[1])] = struct{}{}
	}

	m.Tags = make([]string, 0, len(tags))
	for t := range tags {
		m.Tags = append(m.Tags, t)
	}
	sort.Strings(m.Tags)

	return content, m
}

// flattenFrontmatter converts parsed YAML values into the typed record.
// The "tags" key feeds the tag set; everything else becomes a string pair.
func flattenFrontmatter(parsed map[string]any, m *DocumentMeta) {
	for key, value := range parsed {
		lower := strings.ToLower(key)
		switch lower {
		case "tags":
			for _, t := range stringList(value) {
				m.Tags = append(m.Tags, strings.ToLower(strings.TrimPrefix(t, "#")))
			}
			m.Frontmatter[lower] = strings.Join(stringList(value), ",")
		case "title":
			m.Title = fmt.Sprint(value)
			m.Frontmatter[lower] = m.Title
		default:
			m.Frontmatter[lower] = flattenValue(value)
		}
	}
}

// stringList coerces a YAML scalar or sequence into a string slice.
func stringList(value any) []string {
	switch v := value.(type) {
	case []any:
		out := make([]string, 0, len(v))
		for _, item := range v {
			s := strings.TrimSpace(fmt.Sprint(item))
			if s != "" {
				out = append(out, s)
			}
		}
		return out
	case string:
		// Support comma-separated scalar form: "tags: a, b"
		parts := strings.Split(v, ",")
		out := make([]string, 0, len(parts))
		for _, p := range parts {
			if s := strings.TrimSpace(p); s != "" {
				out = append(out, s)
			}
		}
		return out
	case nil:
		return nil
	default:
		return []string{fmt.Sprint(v)}
	}
}

// flattenValue renders a YAML value as a single string.
func flattenValue(value any) string {
	switch v := value.(type) {
	case []any:
		return strings.Join(stringList(v), ",")
	case nil:
		return ""
	default:
		return fmt.Sprint(v)
	}
}
