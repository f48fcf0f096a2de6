package domain

import "time"

// Project describes a deployable starter-kit instance owned by a team.
type Project struct {
	ID           string
	TeamID       string
	Name         string
	Slug         string
	TemplateRepo string
	CreatedAt    time.Time
}
