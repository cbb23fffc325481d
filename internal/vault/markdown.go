package vault

import (
	"regexp"
	"strings"

	"gopkg.in/yaml.v3"
)

var (
	headingRe  = regexp.MustCompile(`(?m)^#{1,6}\s+(.+)$`)
	tagRe      = regexp.MustCompile(`(^|\s)#([\p{L}\p{N}_/-]+)`)
	wikiLinkRe = regexp.MustCompile(`\[\[([^\]|#]+)(?:#[^\]|]*)?(?:\|[^\]]*)?\]\]`)
	mdLinkRe   = regexp.MustCompile(`\[[^\]]*\]\(([^)\s]+)\)`)
)

// noteMeta is the structured metadata pulled out of one markdown note.
type noteMeta struct {
	Title       string
	Headings    []string
	Tags        []string
	Aliases     []string
	Links       []string
	Frontmatter map[string]string
}

// parseMarkdown extracts frontmatter, headings, inline tags and links from
// a note body. Frontmatter keys "title", "aliases" and "tags" feed the
// corresponding fields; all scalar keys are kept in the Frontmatter map.
func parseMarkdown(content string) noteMeta {
	var meta noteMeta
	body := content

	if fm, rest, ok := splitFrontmatter(content); ok {
		body = rest
		meta.Frontmatter = make(map[string]string)
		var raw map[string]any
		if err := yaml.Unmarshal([]byte(fm), &raw); err == nil {
			for key, val := range raw {
				switch v := val.(type) {
				case string:
					meta.Frontmatter[key] = v
				case int, int64, float64, bool:
					meta.Frontmatter[key] = strings.TrimSpace(scalarString(v))
				case []any:
					items := make([]string, 0, len(v))
					for _, item := range v {
						if s, ok := item.(string); ok && s != "" {
							items = append(items, s)
						}
					}
					switch strings.ToLower(key) {
					case "aliases":
						meta.Aliases = items
					case "tags":
						meta.Tags = append(meta.Tags, items...)
					}
				}
			}
		}
		if t, ok := meta.Frontmatter["title"]; ok {
			meta.Title = t
		}
		if a, ok := meta.Frontmatter["aliases"]; ok && len(meta.Aliases) == 0 {
			meta.Aliases = splitCSV(a)
		}
		if t, ok := meta.Frontmatter["tags"]; ok {
			meta.Tags = append(meta.Tags, splitCSV(t)...)
		}
	}

	for _, m := range headingRe.FindAllStringSubmatch(body, -1) {
		h := strings.TrimSpace(m[1])
		if h != "" {
			meta.Headings = append(meta.Headings, h)
		}
	}
	for _, m := range tagRe.FindAllStringSubmatch(body, -1) {
		meta.Tags = append(meta.Tags, m[2])
	}
	for _, m := range wikiLinkRe.FindAllStringSubmatch(body, -1) {
		l := strings.TrimSpace(m[1])
		if l != "" {
			meta.Links = append(meta.Links, l)
		}
	}
	for _, m := range mdLinkRe.FindAllStringSubmatch(body, -1) {
		l := m[1]
		if strings.Contains(l, "://") {
			continue
		}
		meta.Links = append(meta.Links, l)
	}
	meta.Tags = dedupe(meta.Tags)
	meta.Links = dedupe(meta.Links)
	return meta
}

// splitFrontmatter splits off a leading YAML frontmatter block delimited by
// "---" lines. Returns ok=false when no well-formed block opens the file.
func splitFrontmatter(content string) (fm, rest string, ok bool) {
	if !strings.HasPrefix(content, "---\n") && !strings.HasPrefix(content, "---\r\n") {
		return "", content, false
	}
	after := content[strings.Index(content, "\n")+1:]
	end := strings.Index(after, "\n---")
	if end < 0 {
		return "", content, false
	}
	fm = after[:end]
	rest = after[end+len("\n---"):]
	if i := strings.Index(rest, "\n"); i >= 0 {
		rest = rest[i+1:]
	} else {
		rest = ""
	}
	return fm, rest, true
}

func scalarString(v any) string {
	data, err := yaml.Marshal(v)
	if err != nil {
		return ""
	}
	return string(data)
}

func splitCSV(s string) []string {
	parts := strings.Split(s, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		p = strings.TrimSpace(p)
		if p != "" {
			out = append(out, p)
		}
	}
	return out
}

func dedupe(items []string) []string {
	if len(items) < 2 {
		return items
	}
	seen := make(map[string]struct{}, len(items))
	out := items[:0]
	for _, item := range items {
		key := strings.ToLower(item)
		if _, ok := seen[key]; ok {
			continue
		}
		seen[key] = struct{}{}
		out = append(out, item)
	}
	return out
}
