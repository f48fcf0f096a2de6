package project

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"strings"
	"testing"

	"github.com/shipkit/platform/internal/domain"
	"github.com/shipkit/platform/internal/repository"
)

type stubProjectRepository struct {
	created []*domain.Project
	byTeam  map[string][]domain.Project
	err     error
}

func (s *stubProjectRepository) CreateProject(_ context.Context, project *domain.Project) error {
	if s.err != nil {
		return s.err
	}
	s.created = append(s.created, project)
	return nil
}

func (s *stubProjectRepository) GetProjectByID(_ context.Context, projectID string) (*domain.Project, error) {
	for _, p := range s.created {
		if p.ID == projectID {
			return p, nil
		}
	}
	return nil, repository.ErrNotFound
}

func (s *stubProjectRepository) GetProjectBySlug(_ context.Context, teamID, slug string) (*domain.Project, error) {
	return nil, repository.ErrNotFound
}

func (s *stubProjectRepository) ListProjectsByTeam(_ context.Context, teamID string) ([]domain.Project, error) {
	return append([]domain.Project(nil), s.byTeam[teamID]...), nil
}

type fixedTeamRepository struct {
	maxProjects int
	count       int
}

func (f fixedTeamRepository) CreateTeam(context.Context, *domain.Team) error       { return nil }
func (f fixedTeamRepository) UpsertMember(context.Context, *domain.TeamMember) error { return nil }
func (f fixedTeamRepository) CountProjects(context.Context, string) (int, error) {
	return f.count, nil
}
func (f fixedTeamRepository) CountMembers(context.Context, string) (int, error) { return 0, nil }
func (f fixedTeamRepository) GetTeamByID(_ context.Context, teamID string) (*domain.Team, error) {
	return &domain.Team{ID: teamID, MaxProjects: f.maxProjects}, nil
}
func (f fixedTeamRepository) ListTeamsByUser(context.Context, string) ([]domain.Team, error) {
	return nil, nil
}

func newService(repo *stubProjectRepository, teams fixedTeamRepository) Service {
	return New(repo, teams, slog.New(slog.NewTextHandler(io.Discard, nil)))
}

func TestValidateName(t *testing.T) {
	cases := []struct {
		name    string
		input   string
		wantErr error
	}{
		{"valid simple", "my-app", nil},
		{"valid digits", "app123", nil},
		{"empty", "", ErrNameRequired},
		{"whitespace only", "   ", ErrNameRequired},
		{"too short", "ab", ErrNameTooShort},
		{"too long", strings.Repeat("a", 101), ErrNameTooLong},
		{"uppercase", "MyApp", ErrNameFormat},
		{"leading hyphen", "-app", ErrNameFormat},
		{"trailing hyphen", "app-", ErrNameFormat},
		{"spaces inside", "my app", ErrNameFormat},
		{"exactly min", "abc", nil},
		{"exactly max", strings.Repeat("a", 100), nil},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			err := ValidateName(tc.input)
			if !errors.Is(err, tc.wantErr) {
				t.Fatalf("ValidateName(%q) = %v, want %v", tc.input, err, tc.wantErr)
			}
		})
	}
}

func TestSlugify(t *testing.T) {
	cases := map[string]string{
		"My App":       "my-app",
		"  spaced  ":   "spaced",
		"dots.and_bar": "dots-and-bar",
		"--edge--":     "edge",
		"a__b":         "a-b",
	}
	for input, want := range cases {
		if got := Slugify(input); got != want {
			t.Fatalf("Slugify(%q) = %q, want %q", input, got, want)
		}
	}
}

func TestCreateEnforcesQuota(t *testing.T) {
	svc := newService(&stubProjectRepository{}, fixedTeamRepository{maxProjects: 2, count: 2})
	_, err := svc.Create(context.Background(), CreateInput{TeamID: "team-1", Name: "my-app"})
	if !errors.Is(err, ErrProjectQuota) {
		t.Fatalf("expected ErrProjectQuota, got %v", err)
	}
}

func TestCreateSetsSlug(t *testing.T) {
	repo := &stubProjectRepository{}
	svc := newService(repo, fixedTeamRepository{maxProjects: 10})
	project, err := svc.Create(context.Background(), CreateInput{TeamID: "team-1", Name: "my-app"})
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	if project.Slug != "my-app" {
		t.Fatalf("unexpected slug %q", project.Slug)
	}
	if len(repo.created) != 1 {
		t.Fatalf("expected persisted project")
	}
}

func TestCreateMapsConflictToSlugTaken(t *testing.T) {
	repo := &stubProjectRepository{err: repository.ErrConflict}
	svc := newService(repo, fixedTeamRepository{maxProjects: 10})
	if _, err := svc.Create(context.Background(), CreateInput{TeamID: "team-1", Name: "my-app"}); !errors.Is(err, ErrSlugTaken) {
		t.Fatalf("expected ErrSlugTaken, got %v", err)
	}
}
