package team

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"testing"

	"github.com/shipkit/platform/internal/domain"
	"github.com/shipkit/platform/internal/repository"
)

type stubTeamRepository struct {
	teams    map[string]*domain.Team
	members  map[string][]domain.TeamMember
	byUser   map[string][]domain.Team
	listHits int
}

func newStubTeamRepository() *stubTeamRepository {
	return &stubTeamRepository{
		teams:   make(map[string]*domain.Team),
		members: make(map[string][]domain.TeamMember),
		byUser:  make(map[string][]domain.Team),
	}
}

func (s *stubTeamRepository) CreateTeam(_ context.Context, team *domain.Team) error {
	s.teams[team.ID] = team
	return nil
}

func (s *stubTeamRepository) UpsertMember(_ context.Context, member *domain.TeamMember) error {
	s.members[member.TeamID] = append(s.members[member.TeamID], *member)
	if team, ok := s.teams[member.TeamID]; ok {
		s.byUser[member.UserID] = append(s.byUser[member.UserID], *team)
	}
	return nil
}

func (s *stubTeamRepository) CountProjects(_ context.Context, teamID string) (int, error) {
	return 0, nil
}

func (s *stubTeamRepository) CountMembers(_ context.Context, teamID string) (int, error) {
	return len(s.members[teamID]), nil
}

func (s *stubTeamRepository) GetTeamByID(_ context.Context, teamID string) (*domain.Team, error) {
	if team, ok := s.teams[teamID]; ok {
		return team, nil
	}
	return nil, repository.ErrNotFound
}

func (s *stubTeamRepository) ListTeamsByUser(_ context.Context, userID string) ([]domain.Team, error) {
	s.listHits++
	return append([]domain.Team(nil), s.byUser[userID]...), nil
}

func newService(repo *stubTeamRepository) Service {
	return New(repo, nil, slog.New(slog.NewTextHandler(io.Discard, nil)))
}

func TestCreateEnrollsOwner(t *testing.T) {
	repo := newStubTeamRepository()
	svc := newService(repo)

	team, err := svc.Create(context.Background(), "user-1", "Acme", Limits{})
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	if team.MaxProjects != defaultMaxProjects || team.MaxMembers != defaultMaxMembers {
		t.Fatalf("defaults not applied: %+v", team)
	}
	members := repo.members[team.ID]
	if len(members) != 1 || members[0].Role != domain.RoleOwner {
		t.Fatalf("owner not enrolled: %+v", members)
	}
}

func TestCreateRequiresName(t *testing.T) {
	svc := newService(newStubTeamRepository())
	if _, err := svc.Create(context.Background(), "user-1", "  ", Limits{}); !errors.Is(err, ErrNameRequired) {
		t.Fatalf("expected ErrNameRequired, got %v", err)
	}
}

func TestAddMemberEnforcesQuota(t *testing.T) {
	repo := newStubTeamRepository()
	svc := newService(repo)
	team, err := svc.Create(context.Background(), "user-1", "Acme", Limits{MaxMembers: 1})
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	if err := svc.AddMember(context.Background(), team.ID, "user-2", ""); !errors.Is(err, ErrMemberQuota) {
		t.Fatalf("expected ErrMemberQuota, got %v", err)
	}
}

func TestAddMemberRejectsUnknownRole(t *testing.T) {
	repo := newStubTeamRepository()
	svc := newService(repo)
	team, err := svc.Create(context.Background(), "user-1", "Acme", Limits{})
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	if err := svc.AddMember(context.Background(), team.ID, "user-2", "superadmin"); !errors.Is(err, ErrInvalidRole) {
		t.Fatalf("expected ErrInvalidRole, got %v", err)
	}
}

func TestListByUserFallsThroughWithoutCache(t *testing.T) {
	repo := newStubTeamRepository()
	svc := newService(repo)
	if _, err := svc.Create(context.Background(), "user-1", "Acme", Limits{}); err != nil {
		t.Fatalf("create: %v", err)
	}
	teams, err := svc.ListByUser(context.Background(), "user-1")
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if len(teams) != 1 {
		t.Fatalf("expected 1 team, got %d", len(teams))
	}
	if repo.listHits != 1 {
		t.Fatalf("expected repository hit, got %d", repo.listHits)
	}
}
