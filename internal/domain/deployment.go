package domain

import (
	"encoding/json"
	"time"
)

// Deployment statuses. Deploying is the only non-terminal state.
const (
	DeploymentStatusDeploying = "deploying"
	DeploymentStatusCompleted = "completed"
	DeploymentStatusFailed    = "failed"
	DeploymentStatusTimeout   = "timeout"
	DeploymentStatusCancelled = "cancelled"
)

// Deployment captures a single provisioning attempt: a repository created
// from the template plus a hosting project bound to it.
type Deployment struct {
	ID              string
	ProjectID       string
	RepoOwner       string
	RepoName        string
	VercelProjectID string
	Status          string
	URL             string
	Error           string
	Metadata        json.RawMessage
	CreatedAt       time.Time
	CompletedAt     *time.Time
	UpdatedAt       time.Time
}

// Terminal reports whether the deployment can no longer change status.
func (d Deployment) Terminal() bool {
	return d.Status != DeploymentStatusDeploying
}

// Stale reports whether a still-deploying record has outlived the staleness
// window and should no longer be polled.
func (d Deployment) Stale(now time.Time, window time.Duration) bool {
	return d.Status == DeploymentStatusDeploying && now.Sub(d.CreatedAt) > window
}

// DeploymentStatusUpdate captures mutable fields for a deployment. Empty
// strings and nil values leave the stored column unchanged.
type DeploymentStatusUpdate struct {
	DeploymentID    string
	Status          string
	RepoOwner       string
	VercelProjectID string
	URL             string
	Error           string
	Metadata        json.RawMessage
	CompletedAt     *time.Time
}
