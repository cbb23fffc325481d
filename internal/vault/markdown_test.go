package vault

import (
	"reflect"
	"testing"
)

func TestParseMarkdownFrontmatter(t *testing.T) {
	content := `---
title: My Note
aliases:
  - alt name
  - second alias
tags:
  - project
rating: 5
draft: true
---
Body text here.`

	meta := parseMarkdown(content)
	if meta.Title != "My Note" {
		t.Errorf("Title = %q", meta.Title)
	}
	if !reflect.DeepEqual(meta.Aliases, []string{"alt name", "second alias"}) {
		t.Errorf("Aliases = %v", meta.Aliases)
	}
	if !reflect.DeepEqual(meta.Tags, []string{"project"}) {
		t.Errorf("Tags = %v", meta.Tags)
	}
	if meta.Frontmatter["title"] != "My Note" {
		t.Errorf("Frontmatter = %v", meta.Frontmatter)
	}
}

func TestParseMarkdownScalarLists(t *testing.T) {
	content := `---
title: Inline
aliases: "one, two"
tags: "red, blue"
---
body`
	meta := parseMarkdown(content)
	if !reflect.DeepEqual(meta.Aliases, []string{"one", "two"}) {
		t.Errorf("Aliases = %v", meta.Aliases)
	}
	if !reflect.DeepEqual(meta.Tags, []string{"red", "blue"}) {
		t.Errorf("Tags = %v", meta.Tags)
	}
}

func TestParseMarkdownHeadings(t *testing.T) {
	content := "# Top\n\nSome text\n\n## Nested Section\n\n###### Deep\nnot # a heading"
	meta := parseMarkdown(content)
	want := []string{"Top", "Nested Section", "Deep"}
	if !reflect.DeepEqual(meta.Headings, want) {
		t.Errorf("Headings = %v, want %v", meta.Headings, want)
	}
}

func TestParseMarkdownInlineTags(t *testing.T) {
	content := "Working on #project-alpha today, also #review.\nNot a tag: e#mbedded"
	meta := parseMarkdown(content)
	want := []string{"project-alpha", "review"}
	if !reflect.DeepEqual(meta.Tags, want) {
		t.Errorf("Tags = %v, want %v", meta.Tags, want)
	}
}

func TestParseMarkdownLinks(t *testing.T) {
	content := `See [[Other Note]] and [[folder/deep|displayed]] and [[Section Target#Heading]].
Also [a doc](local/file.md) and [external](https://example.com/page).`
	meta := parseMarkdown(content)
	want := []string{"Other Note", "folder/deep", "Section Target", "local/file.md"}
	if !reflect.DeepEqual(meta.Links, want) {
		t.Errorf("Links = %v, want %v", meta.Links, want)
	}
}

func TestParseMarkdownDedupes(t *testing.T) {
	content := "#tag and #tag and #TAG\n[[same]] [[same]]"
	meta := parseMarkdown(content)
	if len(meta.Tags) != 1 {
		t.Errorf("Tags = %v, want one entry", meta.Tags)
	}
	if len(meta.Links) != 1 {
		t.Errorf("Links = %v, want one entry", meta.Links)
	}
}

func TestParseMarkdownNoFrontmatter(t *testing.T) {
	meta := parseMarkdown("# Just a heading\nplain body")
	if meta.Title != "" || meta.Frontmatter != nil {
		t.Errorf("unexpected frontmatter: %+v", meta)
	}
	if len(meta.Headings) != 1 {
		t.Errorf("Headings = %v", meta.Headings)
	}
}

func TestParseMarkdownUnterminatedFrontmatter(t *testing.T) {
	content := "---\ntitle: broken\nno closing delimiter"
	meta := parseMarkdown(content)
	if meta.Title != "" {
		t.Errorf("unterminated frontmatter parsed: %q", meta.Title)
	}
}

func TestSplitFrontmatter(t *testing.T) {
	fm, rest, ok := splitFrontmatter("---\nkey: value\n---\nbody line")
	if !ok || fm != "key: value" || rest != "body line" {
		t.Errorf("splitFrontmatter = %q, %q, %v", fm, rest, ok)
	}
	if _, _, ok := splitFrontmatter("no frontmatter here"); ok {
		t.Error("detected frontmatter where none exists")
	}
}
