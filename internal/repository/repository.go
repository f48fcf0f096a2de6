package repository

import (
	"context"
	"time"

	"github.com/shipkit/platform/internal/domain"
)

// UserRepository persists users.
type UserRepository interface {
	CreateUser(ctx context.Context, user *domain.User) error
	GetUserByEmail(ctx context.Context, email string) (*domain.User, error)
	GetUserByID(ctx context.Context, id string) (*domain.User, error)
	MarkEmailVerified(ctx context.Context, id string, at time.Time) error
	SoftDeleteUser(ctx context.Context, id string, at time.Time) error
}

// TeamRepository manages teams and memberships.
type TeamRepository interface {
	CreateTeam(ctx context.Context, team *domain.Team) error
	UpsertMember(ctx context.Context, member *domain.TeamMember) error
	CountProjects(ctx context.Context, teamID string) (int, error)
	CountMembers(ctx context.Context, teamID string) (int, error)
	GetTeamByID(ctx context.Context, teamID string) (*domain.Team, error)
	ListTeamsByUser(ctx context.Context, userID string) ([]domain.Team, error)
}

// ProjectRepository persists project configuration.
type ProjectRepository interface {
	CreateProject(ctx context.Context, project *domain.Project) error
	GetProjectByID(ctx context.Context, projectID string) (*domain.Project, error)
	GetProjectBySlug(ctx context.Context, teamID, slug string) (*domain.Project, error)
	ListProjectsByTeam(ctx context.Context, teamID string) ([]domain.Project, error)
}

// APIKeyRepository stores hashed programmatic credentials.
type APIKeyRepository interface {
	CreateAPIKey(ctx context.Context, key *domain.APIKey) error
	GetAPIKeyByHash(ctx context.Context, hash string) (*domain.APIKey, error)
	ListAPIKeysByUser(ctx context.Context, userID string) ([]domain.APIKey, error)
	TouchAPIKey(ctx context.Context, id string, usedAt time.Time) error
	RevokeAPIKey(ctx context.Context, id string, revokedAt time.Time) error
}

// DeploymentRepository stores deployment history.
type DeploymentRepository interface {
	CreateDeployment(ctx context.Context, deployment *domain.Deployment) error
	UpdateDeploymentStatus(ctx context.Context, update domain.DeploymentStatusUpdate) error
	GetDeploymentByID(ctx context.Context, deploymentID string) (*domain.Deployment, error)
	ListDeploymentsByProject(ctx context.Context, projectID string, limit int) ([]domain.Deployment, error)
	ListDeploymentsWithStatusCreatedBefore(ctx context.Context, status string, createdBefore time.Time) ([]domain.Deployment, error)
}

// PaymentRepository stores billing events. InsertPayment must return
// ErrConflict for duplicate provider event IDs.
type PaymentRepository interface {
	InsertPayment(ctx context.Context, payment *domain.Payment) error
	GetPaymentByEventID(ctx context.Context, provider, eventID string) (*domain.Payment, error)
	ListPaymentsByEmail(ctx context.Context, email string, limit int) ([]domain.Payment, error)
}

// FeedbackRepository stores user feedback.
type FeedbackRepository interface {
	CreateFeedback(ctx context.Context, entry *domain.Feedback) error
	ListFeedback(ctx context.Context, status string, limit, offset int) ([]domain.Feedback, error)
	UpdateFeedbackStatus(ctx context.Context, id, status string) error
}

// WaitlistRepository stores waitlist entries keyed by unique email.
type WaitlistRepository interface {
	InsertWaitlistEntry(ctx context.Context, entry *domain.WaitlistEntry) error
	GetWaitlistEntryByEmail(ctx context.Context, email string) (*domain.WaitlistEntry, error)
	CountWaitlist(ctx context.Context) (int, error)
	ListWaitlist(ctx context.Context, limit, offset int) ([]domain.WaitlistEntry, error)
	MarkWaitlistNotified(ctx context.Context, id string, at time.Time) error
}
