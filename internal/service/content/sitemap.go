package content

import (
	"encoding/xml"
	"fmt"
	"strings"
	"time"

	"github.com/shipkit/platform/internal/domain"
)

// Sitemap section identifiers.
const (
	SectionStatic = "static"
	SectionBlog   = "blog"
	SectionDocs   = "docs"
)

var staticRoutes = []string{"/", "/pricing", "/about", "/contact", "/privacy", "/terms"}

type sitemapIndex struct {
	XMLName  xml.Name       `xml:"sitemapindex"`
	XMLNS    string         `xml:"xmlns,attr"`
	Sitemaps []sitemapEntry `xml:"sitemap"`
}

type sitemapEntry struct {
	Loc     string `xml:"loc"`
	LastMod string `xml:"lastmod,omitempty"`
}

type urlSet struct {
	XMLName xml.Name   `xml:"urlset"`
	XMLNS   string     `xml:"xmlns,attr"`
	URLs    []urlEntry `xml:"url"`
}

type urlEntry struct {
	Loc     string `xml:"loc"`
	LastMod string `xml:"lastmod,omitempty"`
}

const sitemapNS = "http://www.sitemaps.org/schemas/sitemap/0.9"

// SitemapSections lists the section IDs available for a site. Blog and docs
// sections exist only when the site ships a blog.
func SitemapSections(hasBlog bool) []string {
	sections := []string{SectionStatic}
	if hasBlog {
		sections = append(sections, SectionBlog, SectionDocs)
	}
	return sections
}

// RenderSitemapIndex produces the /sitemap.xml index pointing at each section.
func RenderSitemapIndex(siteURL string, hasBlog bool, now time.Time) ([]byte, error) {
	base := strings.TrimSuffix(siteURL, "/")
	index := sitemapIndex{XMLNS: sitemapNS}
	for _, section := range SitemapSections(hasBlog) {
		index.Sitemaps = append(index.Sitemaps, sitemapEntry{
			Loc:     fmt.Sprintf("%s/sitemap/%s.xml", base, section),
			LastMod: now.UTC().Format("2006-01-02"),
		})
	}
	return marshalXML(index)
}

// RenderSitemapSection produces one section's urlset. Unknown sections and
// blog sections on blogless sites return false.
func RenderSitemapSection(siteURL, section string, hasBlog bool, posts []domain.Post) ([]byte, bool, error) {
	base := strings.TrimSuffix(siteURL, "/")
	set := urlSet{XMLNS: sitemapNS}

	switch section {
	case SectionStatic:
		for _, route := range staticRoutes {
			set.URLs = append(set.URLs, urlEntry{Loc: base + route})
		}
	case SectionBlog:
		if !hasBlog {
			return nil, false, nil
		}
		set.URLs = append(set.URLs, urlEntry{Loc: base + "/blog"})
		for _, post := range posts {
			if post.Draft {
				continue
			}
			set.URLs = append(set.URLs, urlEntry{
				Loc:     fmt.Sprintf("%s/blog/%s", base, post.Slug),
				LastMod: post.PublishedAt.UTC().Format("2006-01-02"),
			})
		}
	case SectionDocs:
		if !hasBlog {
			return nil, false, nil
		}
		set.URLs = append(set.URLs, urlEntry{Loc: base + "/docs"})
	default:
		return nil, false, nil
	}

	out, err := marshalXML(set)
	return out, err == nil, err
}

func marshalXML(v any) ([]byte, error) {
	out, err := xml.MarshalIndent(v, "", "  ")
	if err != nil {
		return nil, err
	}
	return append([]byte(xml.Header), out...), nil
}
