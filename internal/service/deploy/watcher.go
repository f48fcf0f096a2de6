package deploy

import (
	"context"
	"time"

	"log/slog"

	"github.com/shipkit/platform/internal/domain"
	"github.com/shipkit/platform/internal/repository"
	"github.com/shipkit/platform/internal/ws"
	"github.com/shipkit/platform/pkg/config"
)

const (
	defaultWatchInterval = 30 * time.Second
	sweepTimeout         = 15 * time.Second
)

// Watcher sweeps deployments stuck in deploying past the staleness window and
// forces them into the terminal timeout state.
type Watcher struct {
	deployments repository.DeploymentRepository
	hub         *ws.Hub
	logger      *slog.Logger

	interval   time.Duration
	staleAfter time.Duration

	now func() time.Time
}

// NewWatcher constructs the staleness watcher. It returns nil when the
// staleness window is disabled.
func NewWatcher(deployments repository.DeploymentRepository, hub *ws.Hub, logger *slog.Logger, cfg config.APIConfig) *Watcher {
	if deployments == nil || cfg.DeployStaleAfter <= 0 {
		return nil
	}
	interval := cfg.DeployWatchEvery
	if interval <= 0 {
		interval = defaultWatchInterval
	}
	w := &Watcher{
		deployments: deployments,
		hub:         hub,
		logger:      logger,
		interval:    interval,
		staleAfter:  cfg.DeployStaleAfter,
		now:         time.Now,
	}
	if w.logger != nil {
		w.logger = w.logger.With("component", "deploy_watcher")
	}
	return w
}

// Run executes the sweep loop until the context is cancelled.
func (w *Watcher) Run(ctx context.Context) {
	if w == nil {
		return
	}
	ticker := time.NewTicker(w.interval)
	defer ticker.Stop()

	w.logger.Info("deployment watcher started", "interval", w.interval, "stale_after", w.staleAfter)
	w.sweep(ctx)

	for {
		select {
		case <-ctx.Done():
			w.logger.Info("deployment watcher stopped")
			return
		case <-ticker.C:
			w.sweep(ctx)
		}
	}
}

func (w *Watcher) sweep(parent context.Context) {
	timeout := sweepTimeout
	if w.interval > 0 && w.interval < timeout {
		timeout = w.interval
	}
	ctx, cancel := context.WithTimeout(parent, timeout)
	defer cancel()

	now := w.now().UTC()
	cutoff := now.Add(-w.staleAfter)
	stuck, err := w.deployments.ListDeploymentsWithStatusCreatedBefore(ctx, domain.DeploymentStatusDeploying, cutoff)
	if err != nil {
		w.logger.Warn("failed to list stale deployments", "error", err)
		return
	}
	for _, deployment := range stuck {
		w.timeOut(ctx, deployment, now)
	}
}

func (w *Watcher) timeOut(ctx context.Context, deployment domain.Deployment, now time.Time) {
	update := domain.DeploymentStatusUpdate{
		DeploymentID: deployment.ID,
		Status:       domain.DeploymentStatusTimeout,
		Error:        "deployment did not finish within the staleness window",
		CompletedAt:  &now,
	}
	if err := w.deployments.UpdateDeploymentStatus(ctx, update); err != nil {
		// The deployment finished between listing and the update.
		return
	}
	w.logger.Warn("deployment timed out", "deployment_id", deployment.ID, "project_id", deployment.ProjectID, "age", now.Sub(deployment.CreatedAt))
	if w.hub != nil {
		payload, err := statusEventPayload(deployment.ProjectID, deployment.ID, domain.DeploymentStatusTimeout, "", update.Error, now)
		if err == nil {
			w.hub.Broadcast(deployment.ProjectID, payload)
		}
	}
}
