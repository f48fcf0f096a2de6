package postgres

import (
	"context"
	"errors"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/shipkit/platform/internal/domain"
	"github.com/shipkit/platform/internal/repository"
)

// Repository implements persistence interfaces on PostgreSQL.
type Repository struct {
	pool *pgxpool.Pool
}

// New constructs a Repository.
func New(pool *pgxpool.Pool) *Repository {
	return &Repository{pool: pool}
}

// ensure Repository satisfies interfaces.
var (
	_ repository.UserRepository       = (*Repository)(nil)
	_ repository.TeamRepository       = (*Repository)(nil)
	_ repository.ProjectRepository    = (*Repository)(nil)
	_ repository.APIKeyRepository     = (*Repository)(nil)
	_ repository.DeploymentRepository = (*Repository)(nil)
	_ repository.PaymentRepository    = (*Repository)(nil)
	_ repository.FeedbackRepository   = (*Repository)(nil)
	_ repository.WaitlistRepository   = (*Repository)(nil)
)

const uniqueViolation = "23505"

func mapWriteErr(err error) error {
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) && pgErr.Code == uniqueViolation {
		return repository.ErrConflict
	}
	return err
}

// CreateUser inserts a user.
func (r *Repository) CreateUser(ctx context.Context, user *domain.User) error {
	const query = `INSERT INTO users (id, email, name, password_hash, guest, email_verified_at, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7)`
	_, err := r.pool.Exec(ctx, query, user.ID, user.Email, user.Name, user.PasswordHash, user.Guest, user.EmailVerifiedAt, user.CreatedAt)
	return mapWriteErr(err)
}

func scanUser(row pgx.Row) (*domain.User, error) {
	var u domain.User
	if err := row.Scan(&u.ID, &u.Email, &u.Name, &u.PasswordHash, &u.Guest, &u.EmailVerifiedAt, &u.CreatedAt, &u.DeletedAt); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, repository.ErrNotFound
		}
		return nil, err
	}
	return &u, nil
}

// GetUserByEmail fetches a non-deleted user by email.
func (r *Repository) GetUserByEmail(ctx context.Context, email string) (*domain.User, error) {
	const query = `SELECT id, email, name, password_hash, guest, email_verified_at, created_at, deleted_at
		FROM users WHERE email = $1 AND deleted_at IS NULL`
	return scanUser(r.pool.QueryRow(ctx, query, email))
}

// GetUserByID retrieves a user by identifier.
func (r *Repository) GetUserByID(ctx context.Context, id string) (*domain.User, error) {
	const query = `SELECT id, email, name, password_hash, guest, email_verified_at, created_at, deleted_at
		FROM users WHERE id = $1 AND deleted_at IS NULL`
	return scanUser(r.pool.QueryRow(ctx, query, id))
}

// MarkEmailVerified records the email verification time.
func (r *Repository) MarkEmailVerified(ctx context.Context, id string, at time.Time) error {
	const query = `UPDATE users SET email_verified_at = $2 WHERE id = $1 AND deleted_at IS NULL`
	tag, err := r.pool.Exec(ctx, query, id, at)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return repository.ErrNotFound
	}
	return nil
}

// SoftDeleteUser marks the account deleted without removing the row.
func (r *Repository) SoftDeleteUser(ctx context.Context, id string, at time.Time) error {
	const query = `UPDATE users SET deleted_at = $2 WHERE id = $1 AND deleted_at IS NULL`
	tag, err := r.pool.Exec(ctx, query, id, at)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return repository.ErrNotFound
	}
	return nil
}

// CreateTeam creates a team record.
func (r *Repository) CreateTeam(ctx context.Context, team *domain.Team) error {
	const query = `INSERT INTO teams (id, name, owner_id, max_projects, max_members, created_at)
		VALUES ($1, $2, $3, $4, $5, $6)`
	_, err := r.pool.Exec(ctx, query, team.ID, team.Name, team.OwnerID, team.MaxProjects, team.MaxMembers, team.CreatedAt)
	return mapWriteErr(err)
}

// UpsertMember adds a member to a team.
func (r *Repository) UpsertMember(ctx context.Context, member *domain.TeamMember) error {
	const query = `INSERT INTO team_members (team_id, user_id, role, created_at)
		VALUES ($1, $2, $3, $4)
		ON CONFLICT (team_id, user_id) DO UPDATE SET role = EXCLUDED.role`
	_, err := r.pool.Exec(ctx, query, member.TeamID, member.UserID, member.Role, member.CreatedAt)
	return err
}

// CountProjects counts projects assigned to a team.
func (r *Repository) CountProjects(ctx context.Context, teamID string) (int, error) {
	const query = `SELECT COUNT(1) FROM projects WHERE team_id = $1`
	var count int
	if err := r.pool.QueryRow(ctx, query, teamID).Scan(&count); err != nil {
		return 0, err
	}
	return count, nil
}

// CountMembers counts team memberships.
func (r *Repository) CountMembers(ctx context.Context, teamID string) (int, error) {
	const query = `SELECT COUNT(1) FROM team_members WHERE team_id = $1`
	var count int
	if err := r.pool.QueryRow(ctx, query, teamID).Scan(&count); err != nil {
		return 0, err
	}
	return count, nil
}

// GetTeamByID returns a team by identifier.
func (r *Repository) GetTeamByID(ctx context.Context, teamID string) (*domain.Team, error) {
	const query = `SELECT id, name, owner_id, max_projects, max_members, created_at FROM teams WHERE id = $1`
	var team domain.Team
	if err := r.pool.QueryRow(ctx, query, teamID).Scan(&team.ID, &team.Name, &team.OwnerID, &team.MaxProjects, &team.MaxMembers, &team.CreatedAt); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, repository.ErrNotFound
		}
		return nil, err
	}
	return &team, nil
}

// ListTeamsByUser returns teams the user belongs to.
func (r *Repository) ListTeamsByUser(ctx context.Context, userID string) ([]domain.Team, error) {
	const query = `SELECT t.id, t.name, t.owner_id, t.max_projects, t.max_members, t.created_at
		FROM teams t
		INNER JOIN team_members tm ON tm.team_id = t.id
		WHERE tm.user_id = $1
		ORDER BY t.created_at DESC`
	rows, err := r.pool.Query(ctx, query, userID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	teams := make([]domain.Team, 0)
	for rows.Next() {
		var team domain.Team
		if err := rows.Scan(&team.ID, &team.Name, &team.OwnerID, &team.MaxProjects, &team.MaxMembers, &team.CreatedAt); err != nil {
			return nil, err
		}
		teams = append(teams, team)
	}
	return teams, rows.Err()
}

// CreateProject inserts a project.
func (r *Repository) CreateProject(ctx context.Context, project *domain.Project) error {
	const query = `INSERT INTO projects (id, team_id, name, slug, template_repo, created_at)
		VALUES ($1, $2, $3, $4, $5, $6)`
	_, err := r.pool.Exec(ctx, query, project.ID, project.TeamID, project.Name, project.Slug, project.TemplateRepo, project.CreatedAt)
	return mapWriteErr(err)
}

func scanProject(row pgx.Row) (*domain.Project, error) {
	var project domain.Project
	if err := row.Scan(&project.ID, &project.TeamID, &project.Name, &project.Slug, &project.TemplateRepo, &project.CreatedAt); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, repository.ErrNotFound
		}
		return nil, err
	}
	return &project, nil
}

// GetProjectByID fetches project details.
func (r *Repository) GetProjectByID(ctx context.Context, projectID string) (*domain.Project, error) {
	const query = `SELECT id, team_id, name, slug, template_repo, created_at FROM projects WHERE id = $1`
	return scanProject(r.pool.QueryRow(ctx, query, projectID))
}

// GetProjectBySlug fetches a project within a team by slug.
func (r *Repository) GetProjectBySlug(ctx context.Context, teamID, slug string) (*domain.Project, error) {
	const query = `SELECT id, team_id, name, slug, template_repo, created_at FROM projects WHERE team_id = $1 AND slug = $2`
	return scanProject(r.pool.QueryRow(ctx, query, teamID, slug))
}

// ListProjectsByTeam returns projects for the provided team.
func (r *Repository) ListProjectsByTeam(ctx context.Context, teamID string) ([]domain.Project, error) {
	const query = `SELECT id, team_id, name, slug, template_repo, created_at
		FROM projects WHERE team_id = $1 ORDER BY created_at DESC`
	rows, err := r.pool.Query(ctx, query, teamID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	projects := make([]domain.Project, 0)
	for rows.Next() {
		var project domain.Project
		if err := rows.Scan(&project.ID, &project.TeamID, &project.Name, &project.Slug, &project.TemplateRepo, &project.CreatedAt); err != nil {
			return nil, err
		}
		projects = append(projects, project)
	}
	return projects, rows.Err()
}
