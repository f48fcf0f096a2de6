package deploy

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"log/slog"

	"github.com/google/uuid"

	"github.com/shipkit/platform/internal/domain"
	"github.com/shipkit/platform/internal/github"
	"github.com/shipkit/platform/internal/repository"
	"github.com/shipkit/platform/internal/service/project"
	"github.com/shipkit/platform/internal/vercel"
	"github.com/shipkit/platform/internal/ws"
	"github.com/shipkit/platform/pkg/config"
	"github.com/shipkit/platform/pkg/retry"
)

var (
	ErrAlreadyTerminal = errors.New("deploy: deployment already finished")
	ErrMissingID       = errors.New("deploy: deployment id required")
)

// provisionTimeout bounds the background GitHub/Vercel work; the watcher
// handles anything that outlives it.
const provisionTimeout = 9 * time.Minute

// terminalWriteTimeout bounds the status write that ends a provisioning run.
// It is detached from the provisioning context so an expired run can still be
// recorded as failed rather than waiting for the watcher.
const terminalWriteTimeout = 15 * time.Second

// RepoCreator creates repositories from the configured template.
type RepoCreator interface {
	CreateFromTemplate(ctx context.Context, templateOwner, templateRepo, owner, name string, private bool) (*github.Repo, error)
}

// Hosting provisions and tears down hosting projects.
type Hosting interface {
	CreateProject(ctx context.Context, name, repoFullName, framework string) (*vercel.Project, error)
	DeleteProject(ctx context.Context, idOrName string) error
}

// Service implements the deployment action: create a repository from the
// template, bind a hosting project to it, and track the attempt through the
// deploying → completed|failed|timeout|cancelled lifecycle the dashboard
// polls every few seconds.
type Service struct {
	projects    repository.ProjectRepository
	deployments repository.DeploymentRepository
	repos       RepoCreator
	hosting     Hosting
	hub         *ws.Hub
	logger      *slog.Logger
	cfg         config.APIConfig

	now             func() time.Time
	provisionWindow time.Duration
}

// New returns a deployment service.
func New(projects repository.ProjectRepository, deployments repository.DeploymentRepository, repos RepoCreator, hosting Hosting, hub *ws.Hub, logger *slog.Logger, cfg config.APIConfig) *Service {
	return &Service{
		projects:    projects,
		deployments: deployments,
		repos:       repos,
		hosting:     hosting,
		hub:         hub,
		logger:      logger,
		cfg:         cfg,
		now:         time.Now,

		provisionWindow: provisionTimeout,
	}
}

// StatusView is the poll response for one deployment. Stale tells clients to
// stop polling: the record has outlived the staleness window and the watcher
// will time it out.
type StatusView struct {
	Deployment   domain.Deployment `json:"deployment"`
	Stale        bool              `json:"stale"`
	PollAfterSec int               `json:"poll_after_sec"`
}

// Initiate validates the requested name, records a deploying row and starts
// provisioning in the background. The caller gets the pending record back
// immediately and polls for the outcome.
func (s *Service) Initiate(ctx context.Context, projectID, name string) (*domain.Deployment, error) {
	name = strings.TrimSpace(name)
	if err := project.ValidateName(name); err != nil {
		return nil, err
	}
	proj, err := s.projects.GetProjectByID(ctx, projectID)
	if err != nil {
		return nil, err
	}
	now := s.now().UTC()
	deployment := &domain.Deployment{
		ID:        uuid.NewString(),
		ProjectID: proj.ID,
		RepoName:  name,
		Status:    domain.DeploymentStatusDeploying,
		CreatedAt: now,
		UpdatedAt: now,
	}
	if err := s.deployments.CreateDeployment(ctx, deployment); err != nil {
		return nil, err
	}
	s.logger.Info("deployment initiated", "deployment_id", deployment.ID, "project_id", proj.ID, "name", name)

	go s.provision(deployment.ID, proj.ID, name)
	return deployment, nil
}

// provision runs detached from the request context so a closed connection
// does not abandon a half-created repo.
func (s *Service) provision(deploymentID, projectID, name string) {
	ctx, cancel := context.WithTimeout(context.Background(), s.provisionWindow)
	defer cancel()

	var repo *github.Repo
	err := retry.Do(ctx, s.cfg.RetryAttempts, s.cfg.RetryDelay, func(ctx context.Context) error {
		var err error
		repo, err = s.repos.CreateFromTemplate(ctx, s.cfg.GitHubTemplateOwner, s.cfg.GitHubTemplateRepo, s.cfg.GitHubOrg, name, true)
		return err
	})
	if err != nil {
		s.fail(deploymentID, projectID, fmt.Errorf("create repository: %w", err))
		return
	}
	s.logger.Info("template repository created", "deployment_id", deploymentID, "repo", repo.FullName)

	var hosted *vercel.Project
	err = retry.Do(ctx, s.cfg.RetryAttempts, s.cfg.RetryDelay, func(ctx context.Context) error {
		var err error
		hosted, err = s.hosting.CreateProject(ctx, name, repo.FullName, "nextjs")
		return err
	})
	if err != nil {
		s.fail(deploymentID, projectID, fmt.Errorf("create hosting project: %w", err))
		return
	}

	completedAt := s.now().UTC()
	metadata, _ := json.Marshal(map[string]string{
		"repo_full_name":    repo.FullName,
		"vercel_project_id": hosted.ID,
	})
	update := domain.DeploymentStatusUpdate{
		DeploymentID:    deploymentID,
		Status:          domain.DeploymentStatusCompleted,
		RepoOwner:       repo.Owner.Login,
		VercelProjectID: hosted.ID,
		URL:             vercel.ProjectURL(hosted.Name),
		Metadata:        metadata,
		CompletedAt:     &completedAt,
	}
	writeCtx, cancelWrite := context.WithTimeout(context.Background(), terminalWriteTimeout)
	defer cancelWrite()
	if err := s.deployments.UpdateDeploymentStatus(writeCtx, update); err != nil {
		// A cancel or timeout won the race; leave the terminal state alone.
		s.logger.Warn("deployment finished after terminal state", "deployment_id", deploymentID, "error", err)
		return
	}
	s.logger.Info("deployment completed", "deployment_id", deploymentID, "url", update.URL)
	s.broadcast(projectID, deploymentID, domain.DeploymentStatusCompleted, update.URL, "")
}

// fail runs on its own context: the provisioning context may already be
// expired when it is the reason the run failed.
func (s *Service) fail(deploymentID, projectID string, cause error) {
	ctx, cancel := context.WithTimeout(context.Background(), terminalWriteTimeout)
	defer cancel()

	s.logger.Error("deployment failed", "deployment_id", deploymentID, "error", cause)
	completedAt := s.now().UTC()
	update := domain.DeploymentStatusUpdate{
		DeploymentID: deploymentID,
		Status:       domain.DeploymentStatusFailed,
		Error:        cause.Error(),
		CompletedAt:  &completedAt,
	}
	if err := s.deployments.UpdateDeploymentStatus(ctx, update); err != nil {
		s.logger.Warn("failed to record deployment failure", "deployment_id", deploymentID, "error", err)
		return
	}
	s.broadcast(projectID, deploymentID, domain.DeploymentStatusFailed, "", cause.Error())
}

// Cancel aborts a still-deploying deployment and best-effort deletes the
// hosting project. The repository is left in place for the user.
func (s *Service) Cancel(ctx context.Context, deploymentID string) (*domain.Deployment, error) {
	deploymentID = strings.TrimSpace(deploymentID)
	if deploymentID == "" {
		return nil, ErrMissingID
	}
	deployment, err := s.deployments.GetDeploymentByID(ctx, deploymentID)
	if err != nil {
		return nil, err
	}
	if deployment.Terminal() {
		return nil, ErrAlreadyTerminal
	}
	completedAt := s.now().UTC()
	update := domain.DeploymentStatusUpdate{
		DeploymentID: deploymentID,
		Status:       domain.DeploymentStatusCancelled,
		CompletedAt:  &completedAt,
	}
	if err := s.deployments.UpdateDeploymentStatus(ctx, update); err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return nil, ErrAlreadyTerminal
		}
		return nil, err
	}
	if deployment.VercelProjectID != "" {
		if err := s.hosting.DeleteProject(ctx, deployment.VercelProjectID); err != nil {
			s.logger.Warn("failed to delete hosting project on cancel", "deployment_id", deploymentID, "error", err)
		}
	}
	s.logger.Info("deployment cancelled", "deployment_id", deploymentID)
	s.broadcast(deployment.ProjectID, deploymentID, domain.DeploymentStatusCancelled, "", "")
	deployment.Status = domain.DeploymentStatusCancelled
	deployment.CompletedAt = &completedAt
	return deployment, nil
}

// Get returns the poll view for one deployment.
func (s *Service) Get(ctx context.Context, deploymentID string) (*StatusView, error) {
	deploymentID = strings.TrimSpace(deploymentID)
	if deploymentID == "" {
		return nil, ErrMissingID
	}
	deployment, err := s.deployments.GetDeploymentByID(ctx, deploymentID)
	if err != nil {
		return nil, err
	}
	return s.view(*deployment), nil
}

// ListByProject returns recent deployments with staleness annotated.
func (s *Service) ListByProject(ctx context.Context, projectID string, limit int) ([]StatusView, error) {
	deployments, err := s.deployments.ListDeploymentsByProject(ctx, projectID, limit)
	if err != nil {
		return nil, err
	}
	views := make([]StatusView, 0, len(deployments))
	for _, d := range deployments {
		views = append(views, *s.view(d))
	}
	return views, nil
}

func (s *Service) view(d domain.Deployment) *StatusView {
	view := &StatusView{Deployment: d}
	if d.Status == domain.DeploymentStatusDeploying {
		if d.Stale(s.now().UTC(), s.cfg.DeployStaleAfter) {
			view.Stale = true
		} else {
			view.PollAfterSec = int(s.cfg.DeployPollInterval / time.Second)
		}
	}
	return view
}

type statusEvent struct {
	DeploymentID string `json:"deployment_id"`
	ProjectID    string `json:"project_id"`
	Status       string `json:"status"`
	URL          string `json:"url,omitempty"`
	Error        string `json:"error,omitempty"`
	At           string `json:"at"`
}

func statusEventPayload(projectID, deploymentID, status, url, errMsg string, at time.Time) ([]byte, error) {
	return json.Marshal(statusEvent{
		DeploymentID: deploymentID,
		ProjectID:    projectID,
		Status:       status,
		URL:          url,
		Error:        errMsg,
		At:           at.Format(time.RFC3339Nano),
	})
}

func (s *Service) broadcast(projectID, deploymentID, status, url, errMsg string) {
	if s.hub == nil {
		return
	}
	payload, err := statusEventPayload(projectID, deploymentID, status, url, errMsg, s.now().UTC())
	if err != nil {
		return
	}
	s.hub.Broadcast(projectID, payload)
}
