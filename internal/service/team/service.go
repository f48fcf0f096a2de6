package team

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"log/slog"

	"github.com/google/uuid"

	"github.com/shipkit/platform/internal/cache"
	"github.com/shipkit/platform/internal/domain"
	"github.com/shipkit/platform/internal/repository"
)

const (
	defaultMaxProjects = 10
	defaultMaxMembers  = 25
	listCacheTTL       = 5 * time.Minute

	// tagAllTeams is invalidated on any team mutation, alongside the
	// per-user tag user-teams-{id}.
	tagAllTeams = "teams"
)

var (
	ErrNameRequired  = errors.New("team: name is required")
	ErrMemberQuota   = errors.New("team: member quota exceeded")
	ErrInvalidRole   = errors.New("team: role must be owner or member")
	ErrMissingUserID = errors.New("team: user id required")
)

// Limits configures optional team quotas at creation.
type Limits struct {
	MaxProjects int `json:"max_projects"`
	MaxMembers  int `json:"max_members"`
}

// Service orchestrates team management with cache-tag invalidation: any
// mutation drops the "teams" tag and the affected users' "user-teams-{id}"
// tags.
type Service struct {
	teams  repository.TeamRepository
	cache  *cache.Cache
	logger *slog.Logger
}

// New returns a team service.
func New(teams repository.TeamRepository, teamCache *cache.Cache, logger *slog.Logger) Service {
	return Service{teams: teams, cache: teamCache, logger: logger}
}

func userTeamsTag(userID string) string { return "user-teams-" + userID }
func userTeamsKey(userID string) string { return "user-teams:" + userID }

// Create registers a team and enrolls the creator as owner.
func (s Service) Create(ctx context.Context, ownerID, name string, limits Limits) (*domain.Team, error) {
	name = strings.TrimSpace(name)
	if name == "" {
		return nil, ErrNameRequired
	}
	if limits.MaxProjects <= 0 {
		limits.MaxProjects = defaultMaxProjects
	}
	if limits.MaxMembers <= 0 {
		limits.MaxMembers = defaultMaxMembers
	}
	now := time.Now().UTC()
	team := &domain.Team{
		ID:          uuid.NewString(),
		Name:        name,
		OwnerID:     ownerID,
		MaxProjects: limits.MaxProjects,
		MaxMembers:  limits.MaxMembers,
		CreatedAt:   now,
	}
	if err := s.teams.CreateTeam(ctx, team); err != nil {
		return nil, err
	}
	member := &domain.TeamMember{TeamID: team.ID, UserID: ownerID, Role: domain.RoleOwner, CreatedAt: now}
	if err := s.teams.UpsertMember(ctx, member); err != nil {
		return nil, fmt.Errorf("enroll owner: %w", err)
	}
	s.invalidate(ctx, ownerID)
	s.logger.Info("team created", "team_id", team.ID, "owner_id", ownerID)
	return team, nil
}

// AddMember enrolls a user respecting the member quota.
func (s Service) AddMember(ctx context.Context, teamID, userID, role string) error {
	if strings.TrimSpace(userID) == "" {
		return ErrMissingUserID
	}
	role = strings.ToLower(strings.TrimSpace(role))
	if role == "" {
		role = domain.RoleMember
	}
	if role != domain.RoleOwner && role != domain.RoleMember {
		return ErrInvalidRole
	}
	team, err := s.teams.GetTeamByID(ctx, teamID)
	if err != nil {
		return err
	}
	count, err := s.teams.CountMembers(ctx, teamID)
	if err != nil {
		return err
	}
	if count >= team.MaxMembers {
		return ErrMemberQuota
	}
	member := &domain.TeamMember{TeamID: teamID, UserID: userID, Role: role, CreatedAt: time.Now().UTC()}
	if err := s.teams.UpsertMember(ctx, member); err != nil {
		return err
	}
	s.invalidate(ctx, userID)
	s.logger.Info("team member added", "team_id", teamID, "user_id", userID, "role", role)
	return nil
}

// ListByUser returns teams the user belongs to, served from cache when warm.
func (s Service) ListByUser(ctx context.Context, userID string) ([]domain.Team, error) {
	if strings.TrimSpace(userID) == "" {
		return nil, ErrMissingUserID
	}
	var cached []domain.Team
	if hit, err := s.cache.Get(ctx, userTeamsKey(userID), &cached); err == nil && hit {
		return cached, nil
	}
	teams, err := s.teams.ListTeamsByUser(ctx, userID)
	if err != nil {
		return nil, err
	}
	_ = s.cache.Set(ctx, userTeamsKey(userID), teams, listCacheTTL, tagAllTeams, userTeamsTag(userID))
	return teams, nil
}

// Get returns a team by identifier.
func (s Service) Get(ctx context.Context, teamID string) (*domain.Team, error) {
	return s.teams.GetTeamByID(ctx, teamID)
}

func (s Service) invalidate(ctx context.Context, userID string) {
	s.cache.InvalidateTags(ctx, tagAllTeams, userTeamsTag(userID))
}
