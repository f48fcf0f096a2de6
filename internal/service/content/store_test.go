package content

import (
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"log/slog"

	"github.com/shipkit/platform/internal/domain"
)

type discardWriter struct{}

func (discardWriter) Write(p []byte) (int, error) { return len(p), nil }

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(discardWriter{}, nil))
}

func writePost(t *testing.T, dir, name, body string) {
	t.Helper()
	if err := os.WriteFile(filepath.Join(dir, name), []byte(body), 0o644); err != nil {
		t.Fatal(err)
	}
}

func TestLoadParsesFrontMatterAndRendersMarkdown(t *testing.T) {
	dir := t.TempDir()
	writePost(t, dir, "hello.md", `---
title: Hello World
description: First post
publishedAt: 2026-01-15T00:00:00Z
author: Jo
---
# Heading

Some **bold** text.
`)

	store := NewStore(dir, testLogger())
	if err := store.Load(); err != nil {
		t.Fatalf("Load: %v", err)
	}

	post, err := store.Get("hello")
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	if post.Title != "Hello World" || post.Author != "Jo" {
		t.Fatalf("post = %+v", post)
	}
	if post.PublishedAt != time.Date(2026, 1, 15, 0, 0, 0, 0, time.UTC) {
		t.Fatalf("publishedAt = %v", post.PublishedAt)
	}
	if !strings.Contains(post.HTML, "<strong>bold</strong>") {
		t.Fatalf("markdown not rendered: %s", post.HTML)
	}
}

func TestLoadUsesSlugOverFilename(t *testing.T) {
	dir := t.TempDir()
	writePost(t, dir, "2026-01-draft-name.md", `---
title: Custom
slug: custom-slug
publishedAt: 2026-01-01T00:00:00Z
---
body
`)
	store := NewStore(dir, testLogger())
	if err := store.Load(); err != nil {
		t.Fatal(err)
	}
	if _, err := store.Get("custom-slug"); err != nil {
		t.Fatalf("slug from front matter not used: %v", err)
	}
	if _, err := store.Get("2026-01-draft-name"); !errors.Is(err, ErrPostNotFound) {
		t.Fatal("filename slug should not resolve when front matter sets one")
	}
}

func TestPublishedSortsDescendingAndExcludesDrafts(t *testing.T) {
	dir := t.TempDir()
	writePost(t, dir, "old.md", "---\ntitle: Old\npublishedAt: 2025-06-01T00:00:00Z\n---\nx\n")
	writePost(t, dir, "new.md", "---\ntitle: New\npublishedAt: 2026-02-01T00:00:00Z\n---\nx\n")
	writePost(t, dir, "wip.md", "---\ntitle: WIP\npublishedAt: 2026-03-01T00:00:00Z\ndraft: true\n---\nx\n")

	store := NewStore(dir, testLogger())
	if err := store.Load(); err != nil {
		t.Fatal(err)
	}
	posts := store.Published()
	if len(posts) != 2 {
		t.Fatalf("got %d published posts, want 2", len(posts))
	}
	if posts[0].Title != "New" || posts[1].Title != "Old" {
		t.Fatalf("not sorted newest first: %v, %v", posts[0].Title, posts[1].Title)
	}
}

func TestLoadMissingDirectoryIsEmpty(t *testing.T) {
	store := NewStore(filepath.Join(t.TempDir(), "nope"), testLogger())
	if err := store.Load(); err != nil {
		t.Fatalf("missing directory should not error: %v", err)
	}
	if len(store.All()) != 0 {
		t.Fatal("index should be empty")
	}
}

func TestLoadSkipsMalformedFiles(t *testing.T) {
	dir := t.TempDir()
	writePost(t, dir, "bad.md", "---\ntitle: Broken\n")
	writePost(t, dir, "good.md", "---\ntitle: Good\npublishedAt: 2026-01-01T00:00:00Z\n---\nx\n")

	store := NewStore(dir, testLogger())
	if err := store.Load(); err != nil {
		t.Fatal(err)
	}
	if len(store.All()) != 1 {
		t.Fatalf("got %d posts, want 1", len(store.All()))
	}
}

func TestRenderRSS(t *testing.T) {
	posts := []domain.Post{
		{Slug: "second", Title: "Second", Description: "About ]]> escaping", PublishedAt: time.Date(2026, 2, 1, 0, 0, 0, 0, time.UTC)},
		{Slug: "first", Title: "First", Description: "plain", PublishedAt: time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)},
		{Slug: "hidden", Title: "Hidden", Draft: true, PublishedAt: time.Date(2026, 3, 1, 0, 0, 0, 0, time.UTC)},
	}
	out, err := RenderRSS(Feed{Title: "Shipkit Blog", SiteURL: "https://shipkit.io", Description: "Updates"}, posts)
	if err != nil {
		t.Fatalf("RenderRSS: %v", err)
	}
	feed := string(out)

	if strings.Contains(feed, "Hidden") {
		t.Fatal("draft post leaked into the feed")
	}
	if strings.Index(feed, "Second") > strings.Index(feed, "First") {
		t.Fatal("items not ordered newest first")
	}
	if !strings.Contains(feed, "<![CDATA[About ]]&gt; escaping]]>") {
		t.Fatalf("CDATA terminator not escaped:\n%s", feed)
	}
	if !strings.Contains(feed, "https://shipkit.io/blog/second") {
		t.Fatal("item link missing")
	}
}

func TestSitemapIndexGatesBlogSections(t *testing.T) {
	now := time.Date(2026, 2, 1, 0, 0, 0, 0, time.UTC)

	withBlog, err := RenderSitemapIndex("https://shipkit.io", true, now)
	if err != nil {
		t.Fatal(err)
	}
	for _, want := range []string{"/sitemap/static.xml", "/sitemap/blog.xml", "/sitemap/docs.xml"} {
		if !strings.Contains(string(withBlog), want) {
			t.Fatalf("index missing %s:\n%s", want, withBlog)
		}
	}

	withoutBlog, err := RenderSitemapIndex("https://shipkit.io", false, now)
	if err != nil {
		t.Fatal(err)
	}
	if strings.Contains(string(withoutBlog), "blog.xml") || strings.Contains(string(withoutBlog), "docs.xml") {
		t.Fatalf("blogless site should expose static only:\n%s", withoutBlog)
	}
}

func TestSitemapSections(t *testing.T) {
	posts := []domain.Post{
		{Slug: "live", PublishedAt: time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)},
		{Slug: "wip", Draft: true},
	}

	out, ok, err := RenderSitemapSection("https://shipkit.io", SectionBlog, true, posts)
	if err != nil || !ok {
		t.Fatalf("blog section: ok=%v err=%v", ok, err)
	}
	if !strings.Contains(string(out), "/blog/live") {
		t.Fatal("published post missing from blog sitemap")
	}
	if strings.Contains(string(out), "/blog/wip") {
		t.Fatal("draft leaked into blog sitemap")
	}

	if _, ok, _ := RenderSitemapSection("https://shipkit.io", SectionBlog, false, nil); ok {
		t.Fatal("blog section should not render without a blog")
	}
	if _, ok, _ := RenderSitemapSection("https://shipkit.io", "unknown", true, nil); ok {
		t.Fatal("unknown section should not render")
	}

	out, ok, err = RenderSitemapSection("https://shipkit.io", SectionStatic, false, nil)
	if err != nil || !ok {
		t.Fatalf("static section: ok=%v err=%v", ok, err)
	}
	if !strings.Contains(string(out), "https://shipkit.io/pricing") {
		t.Fatal("static route missing")
	}
}
