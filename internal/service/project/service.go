package project

import (
	"context"
	"errors"
	"regexp"
	"strings"
	"time"

	"log/slog"

	"github.com/google/uuid"

	"github.com/shipkit/platform/internal/domain"
	"github.com/shipkit/platform/internal/repository"
)

const (
	nameMinLength = 3
	nameMaxLength = 100
)

var (
	ErrNameRequired  = errors.New("project: name is required")
	ErrNameTooShort  = errors.New("project: name must be at least 3 characters")
	ErrNameTooLong   = errors.New("project: name must be at most 100 characters")
	ErrNameFormat    = errors.New("project: name may only contain lowercase letters, digits and hyphens, and cannot start or end with a hyphen")
	ErrProjectQuota  = errors.New("project: team project quota exceeded")
	ErrMissingTeamID = errors.New("project: team id required")
	ErrMissingID     = errors.New("project: project id required")
	ErrSlugTaken     = errors.New("project: a project with this name already exists in the team")
)

var namePattern = regexp.MustCompile(`^[a-z0-9]([a-z0-9-]*[a-z0-9])?$`)

// ValidateName checks project-name rules. The dashboard calls this through a
// debounced endpoint before the deployment action runs, so the rules here
// are the single source of truth.
func ValidateName(name string) error {
	name = strings.TrimSpace(name)
	if name == "" {
		return ErrNameRequired
	}
	if len(name) < nameMinLength {
		return ErrNameTooShort
	}
	if len(name) > nameMaxLength {
		return ErrNameTooLong
	}
	if !namePattern.MatchString(name) {
		return ErrNameFormat
	}
	return nil
}

// Slugify lowercases a display name into a URL- and repo-safe slug.
func Slugify(name string) string {
	slug := strings.ToLower(strings.TrimSpace(name))
	slug = strings.Map(func(r rune) rune {
		switch {
		case r >= 'a' && r <= 'z', r >= '0' && r <= '9':
			return r
		case r == ' ', r == '_', r == '-', r == '.':
			return '-'
		default:
			return -1
		}
	}, slug)
	for strings.Contains(slug, "--") {
		slug = strings.ReplaceAll(slug, "--", "-")
	}
	return strings.Trim(slug, "-")
}

// CreateInput encapsulates project creation attributes.
type CreateInput struct {
	TeamID       string `json:"team_id"`
	Name         string `json:"name"`
	TemplateRepo string `json:"template_repo"`
}

// Service orchestrates project management.
type Service struct {
	projects repository.ProjectRepository
	teams    repository.TeamRepository
	logger   *slog.Logger
}

// New returns a project service.
func New(projects repository.ProjectRepository, teams repository.TeamRepository, logger *slog.Logger) Service {
	return Service{projects: projects, teams: teams, logger: logger}
}

// Create registers a new project respecting team quotas.
func (s Service) Create(ctx context.Context, input CreateInput) (*domain.Project, error) {
	if strings.TrimSpace(input.TeamID) == "" {
		return nil, ErrMissingTeamID
	}
	name := strings.TrimSpace(input.Name)
	if err := ValidateName(name); err != nil {
		return nil, err
	}
	team, err := s.teams.GetTeamByID(ctx, input.TeamID)
	if err != nil {
		return nil, err
	}
	count, err := s.teams.CountProjects(ctx, input.TeamID)
	if err != nil {
		return nil, err
	}
	if count >= team.MaxProjects {
		return nil, ErrProjectQuota
	}
	project := &domain.Project{
		ID:           uuid.NewString(),
		TeamID:       input.TeamID,
		Name:         name,
		Slug:         Slugify(name),
		TemplateRepo: strings.TrimSpace(input.TemplateRepo),
		CreatedAt:    time.Now().UTC(),
	}
	if err := s.projects.CreateProject(ctx, project); err != nil {
		if errors.Is(err, repository.ErrConflict) {
			return nil, ErrSlugTaken
		}
		return nil, err
	}
	s.logger.Info("project created", "project_id", project.ID, "team_id", project.TeamID)
	return project, nil
}

// ListByTeam returns projects owned by the team.
func (s Service) ListByTeam(ctx context.Context, teamID string) ([]domain.Project, error) {
	teamID = strings.TrimSpace(teamID)
	if teamID == "" {
		return nil, ErrMissingTeamID
	}
	return s.projects.ListProjectsByTeam(ctx, teamID)
}

// Get returns project details by identifier.
func (s Service) Get(ctx context.Context, projectID string) (*domain.Project, error) {
	projectID = strings.TrimSpace(projectID)
	if projectID == "" {
		return nil, ErrMissingID
	}
	return s.projects.GetProjectByID(ctx, projectID)
}
