package postgres

import (
	"context"
	"errors"
	"time"

	"github.com/jackc/pgx/v5"

	"github.com/shipkit/platform/internal/domain"
	"github.com/shipkit/platform/internal/repository"
)

// CreateDeployment inserts a deployment record.
func (r *Repository) CreateDeployment(ctx context.Context, deployment *domain.Deployment) error {
	const query = `INSERT INTO deployments (id, project_id, repo_owner, repo_name, vercel_project_id, status, url, error, metadata, created_at, completed_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12)`
	_, err := r.pool.Exec(ctx, query,
		deployment.ID, deployment.ProjectID, deployment.RepoOwner, deployment.RepoName,
		deployment.VercelProjectID, deployment.Status, deployment.URL, deployment.Error,
		deployment.Metadata, deployment.CreatedAt, deployment.CompletedAt, deployment.UpdatedAt)
	return mapWriteErr(err)
}

// UpdateDeploymentStatus applies a mutation while the record is non-terminal.
// Terminal rows are left untouched and reported as not found so races between
// the watcher and callbacks cannot resurrect a finished deployment.
func (r *Repository) UpdateDeploymentStatus(ctx context.Context, update domain.DeploymentStatusUpdate) error {
	const query = `UPDATE deployments SET
			status = $2,
			repo_owner = COALESCE(NULLIF($3, ''), repo_owner),
			vercel_project_id = COALESCE(NULLIF($4, ''), vercel_project_id),
			url = COALESCE(NULLIF($5, ''), url),
			error = COALESCE(NULLIF($6, ''), error),
			metadata = COALESCE($7, metadata),
			completed_at = COALESCE($8, completed_at),
			updated_at = NOW()
		WHERE id = $1 AND status = 'deploying'`
	tag, err := r.pool.Exec(ctx, query, update.DeploymentID, update.Status, update.RepoOwner, update.VercelProjectID,
		update.URL, update.Error, update.Metadata, update.CompletedAt)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return repository.ErrNotFound
	}
	return nil
}

func scanDeployment(row pgx.Row) (*domain.Deployment, error) {
	var d domain.Deployment
	err := row.Scan(&d.ID, &d.ProjectID, &d.RepoOwner, &d.RepoName, &d.VercelProjectID,
		&d.Status, &d.URL, &d.Error, &d.Metadata, &d.CreatedAt, &d.CompletedAt, &d.UpdatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, repository.ErrNotFound
		}
		return nil, err
	}
	return &d, nil
}

const deploymentColumns = `id, project_id, repo_owner, repo_name, vercel_project_id, status, url, error, metadata, created_at, completed_at, updated_at`

// GetDeploymentByID fetches one deployment.
func (r *Repository) GetDeploymentByID(ctx context.Context, deploymentID string) (*domain.Deployment, error) {
	query := `SELECT ` + deploymentColumns + ` FROM deployments WHERE id = $1`
	return scanDeployment(r.pool.QueryRow(ctx, query, deploymentID))
}

// ListDeploymentsByProject returns recent deployments, newest first.
func (r *Repository) ListDeploymentsByProject(ctx context.Context, projectID string, limit int) ([]domain.Deployment, error) {
	if limit <= 0 || limit > 100 {
		limit = 20
	}
	query := `SELECT ` + deploymentColumns + ` FROM deployments WHERE project_id = $1 ORDER BY created_at DESC LIMIT $2`
	rows, err := r.pool.Query(ctx, query, projectID, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return collectDeployments(rows)
}

// ListDeploymentsWithStatusCreatedBefore finds deployments stuck in a status
// past a cutoff. The staleness watcher uses this to time out old records.
func (r *Repository) ListDeploymentsWithStatusCreatedBefore(ctx context.Context, status string, createdBefore time.Time) ([]domain.Deployment, error) {
	query := `SELECT ` + deploymentColumns + ` FROM deployments WHERE status = $1 AND created_at < $2 ORDER BY created_at`
	rows, err := r.pool.Query(ctx, query, status, createdBefore)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return collectDeployments(rows)
}

func collectDeployments(rows pgx.Rows) ([]domain.Deployment, error) {
	deployments := make([]domain.Deployment, 0)
	for rows.Next() {
		var d domain.Deployment
		if err := rows.Scan(&d.ID, &d.ProjectID, &d.RepoOwner, &d.RepoName, &d.VercelProjectID,
			&d.Status, &d.URL, &d.Error, &d.Metadata, &d.CreatedAt, &d.CompletedAt, &d.UpdatedAt); err != nil {
			return nil, err
		}
		deployments = append(deployments, d)
	}
	return deployments, rows.Err()
}
