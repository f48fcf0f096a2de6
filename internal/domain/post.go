package domain

import "time"

// Post is a blog entry parsed from a markdown file with YAML front matter.
// Body holds the raw markdown, HTML the rendered form.
type Post struct {
	Slug        string
	Title       string
	Description string
	Author      string
	PublishedAt time.Time
	Draft       bool
	Body        string
	HTML        string
}
