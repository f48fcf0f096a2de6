package content

import (
	"encoding/xml"
	"fmt"
	"strings"
	"time"

	"github.com/shipkit/platform/internal/domain"
)

type rssFeed struct {
	XMLName xml.Name   `xml:"rss"`
	Version string     `xml:"version,attr"`
	Channel rssChannel `xml:"channel"`
}

type rssChannel struct {
	Title         string    `xml:"title"`
	Link          string    `xml:"link"`
	Description   string    `xml:"description"`
	Language      string    `xml:"language"`
	LastBuildDate string    `xml:"lastBuildDate,omitempty"`
	Items         []rssItem `xml:"item"`
}

type rssItem struct {
	Title       string `xml:"title"`
	Link        string `xml:"link"`
	GUID        string `xml:"guid"`
	PubDate     string `xml:"pubDate"`
	Description cdata  `xml:"description"`
}

// cdata wraps pre-escaped content in a CDATA section. Marshal writes the
// inner XML verbatim.
type cdata struct {
	Raw string `xml:",innerxml"`
}

// escapeCDATA makes arbitrary text safe inside a CDATA section by rewriting
// the terminator sequence.
func escapeCDATA(text string) string {
	return strings.ReplaceAll(text, "]]>", "]]&gt;")
}

func newCDATA(text string) cdata {
	return cdata{Raw: "<![CDATA[" + escapeCDATA(text) + "]]>"}
}

// Feed describes the RSS channel.
type Feed struct {
	Title       string
	SiteURL     string
	Description string
}

// RenderRSS produces the RSS 2.0 document for the published posts, newest
// first. Drafts never appear.
func RenderRSS(feed Feed, posts []domain.Post) ([]byte, error) {
	items := make([]rssItem, 0, len(posts))
	var newest time.Time
	for _, post := range posts {
		if post.Draft {
			continue
		}
		if post.PublishedAt.After(newest) {
			newest = post.PublishedAt
		}
		link := fmt.Sprintf("%s/blog/%s", strings.TrimSuffix(feed.SiteURL, "/"), post.Slug)
		items = append(items, rssItem{
			Title:       post.Title,
			Link:        link,
			GUID:        link,
			PubDate:     post.PublishedAt.UTC().Format(time.RFC1123Z),
			Description: newCDATA(post.Description),
		})
	}

	doc := rssFeed{
		Version: "2.0",
		Channel: rssChannel{
			Title:       feed.Title,
			Link:        feed.SiteURL,
			Description: feed.Description,
			Language:    "en",
			Items:       items,
		},
	}
	if !newest.IsZero() {
		doc.Channel.LastBuildDate = newest.UTC().Format(time.RFC1123Z)
	}

	out, err := xml.MarshalIndent(doc, "", "  ")
	if err != nil {
		return nil, err
	}
	return append([]byte(xml.Header), out...), nil
}
