package httpx

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/shipkit/platform/internal/repository"
	"github.com/shipkit/platform/internal/service/deploy"
	"github.com/shipkit/platform/internal/service/installer"
	"github.com/shipkit/platform/internal/service/project"
	"github.com/shipkit/platform/internal/service/team"
	"github.com/shipkit/platform/internal/ws"
)

func (r *Router) handleTeams(w http.ResponseWriter, req *http.Request) {
	info, ok := authInfoFromContext(req.Context())
	if !ok {
		r.logger.Error("auth context missing for teams route", "path", req.URL.Path)
		writeError(w, http.StatusInternalServerError, "authorization context missing")
		return
	}
	switch req.Method {
	case http.MethodPost:
		var payload struct {
			Name   string      `json:"name"`
			Limits team.Limits `json:"limits"`
		}
		if err := json.NewDecoder(req.Body).Decode(&payload); err != nil {
			writeError(w, http.StatusBadRequest, "invalid JSON body")
			return
		}
		created, err := r.team.Create(req.Context(), info.UserID, payload.Name, payload.Limits)
		if err != nil {
			writeError(w, http.StatusBadRequest, err.Error())
			return
		}
		writeJSON(w, http.StatusCreated, created)
	case http.MethodGet:
		teams, err := r.team.ListByUser(req.Context(), info.UserID)
		if err != nil {
			writeError(w, http.StatusInternalServerError, err.Error())
			return
		}
		writeJSON(w, http.StatusOK, teams)
	default:
		r.methodNotAllowed(w)
	}
}

func (r *Router) handleTeamSubroutes(w http.ResponseWriter, req *http.Request) {
	trimmed := strings.TrimPrefix(req.URL.Path, "/teams/")
	parts := strings.Split(trimmed, "/")
	teamID := parts[0]
	if teamID == "" {
		r.notFound(w)
		return
	}
	switch {
	case len(parts) == 1:
		r.handleTeamGet(w, req, teamID)
	case len(parts) == 2 && parts[1] == "members":
		r.handleTeamMembers(w, req, teamID)
	case len(parts) == 2 && parts[1] == "projects":
		r.handleTeamProjects(w, req, teamID)
	default:
		r.notFound(w)
	}
}

func (r *Router) handleTeamGet(w http.ResponseWriter, req *http.Request, teamID string) {
	if req.Method != http.MethodGet {
		r.methodNotAllowed(w)
		return
	}
	found, err := r.team.Get(req.Context(), teamID)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			r.notFound(w)
			return
		}
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, found)
}

func (r *Router) handleTeamMembers(w http.ResponseWriter, req *http.Request, teamID string) {
	if req.Method != http.MethodPost {
		r.methodNotAllowed(w)
		return
	}
	var payload struct {
		UserID string `json:"user_id"`
		Role   string `json:"role"`
	}
	if err := json.NewDecoder(req.Body).Decode(&payload); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON body")
		return
	}
	if err := r.team.AddMember(req.Context(), teamID, payload.UserID, payload.Role); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	writeResult(w, http.StatusCreated, true, "member added")
}

func (r *Router) handleTeamProjects(w http.ResponseWriter, req *http.Request, teamID string) {
	if req.Method != http.MethodGet {
		r.methodNotAllowed(w)
		return
	}
	projects, err := r.project.ListByTeam(req.Context(), teamID)
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, projects)
}

func (r *Router) handleProjects(w http.ResponseWriter, req *http.Request) {
	if req.Method != http.MethodPost {
		r.methodNotAllowed(w)
		return
	}
	var payload project.CreateInput
	if err := json.NewDecoder(req.Body).Decode(&payload); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON body")
		return
	}
	if _, ok := authInfoFromContext(req.Context()); !ok {
		r.logger.Error("auth context missing for project creation", "path", req.URL.Path)
		writeError(w, http.StatusInternalServerError, "authorization context missing")
		return
	}
	proj, err := r.project.Create(req.Context(), payload)
	if err != nil {
		status := http.StatusBadRequest
		if errors.Is(err, project.ErrSlugTaken) {
			status = http.StatusConflict
		}
		writeError(w, status, err.Error())
		return
	}
	writeJSON(w, http.StatusCreated, proj)
}

// handleValidateName backs the dashboard's debounced availability check.
func (r *Router) handleValidateName(w http.ResponseWriter, req *http.Request) {
	if req.Method != http.MethodPost {
		r.methodNotAllowed(w)
		return
	}
	var payload struct {
		Name string `json:"name"`
	}
	if err := json.NewDecoder(req.Body).Decode(&payload); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON body")
		return
	}
	if err := project.ValidateName(strings.TrimSpace(payload.Name)); err != nil {
		writeJSON(w, http.StatusOK, map[string]any{"valid": false, "reason": err.Error()})
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"valid": true, "slug": project.Slugify(payload.Name)})
}

func (r *Router) handleProjectSubroutes(w http.ResponseWriter, req *http.Request) {
	trimmed := strings.TrimPrefix(req.URL.Path, "/projects/")
	parts := strings.Split(trimmed, "/")
	projectID := parts[0]
	if projectID == "" {
		r.notFound(w)
		return
	}
	switch {
	case len(parts) == 1:
		r.handleProjectGet(w, req, projectID)
	case len(parts) == 2 && parts[1] == "deployments":
		r.handleProjectDeployments(w, req, projectID)
	default:
		r.notFound(w)
	}
}

func (r *Router) handleProjectGet(w http.ResponseWriter, req *http.Request, projectID string) {
	if req.Method != http.MethodGet {
		r.methodNotAllowed(w)
		return
	}
	proj, err := r.project.Get(req.Context(), projectID)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			r.notFound(w)
			return
		}
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, proj)
}

func (r *Router) handleProjectDeployments(w http.ResponseWriter, req *http.Request, projectID string) {
	switch req.Method {
	case http.MethodPost:
		var payload struct {
			Name string `json:"name"`
		}
		if err := json.NewDecoder(req.Body).Decode(&payload); err != nil {
			writeError(w, http.StatusBadRequest, "invalid JSON body")
			return
		}
		deployment, err := r.deploy.Initiate(req.Context(), projectID, payload.Name)
		if err != nil {
			status := http.StatusBadRequest
			if errors.Is(err, repository.ErrNotFound) {
				status = http.StatusNotFound
			}
			writeError(w, status, err.Error())
			return
		}
		writeJSON(w, http.StatusAccepted, deployment)
	case http.MethodGet:
		limit, _ := strconv.Atoi(req.URL.Query().Get("limit"))
		views, err := r.deploy.ListByProject(req.Context(), projectID, limit)
		if err != nil {
			writeError(w, http.StatusInternalServerError, err.Error())
			return
		}
		writeJSON(w, http.StatusOK, views)
	default:
		r.methodNotAllowed(w)
	}
}

func (r *Router) handleDeploymentSubroutes(w http.ResponseWriter, req *http.Request) {
	trimmed := strings.TrimPrefix(req.URL.Path, "/deployments/")
	parts := strings.Split(trimmed, "/")
	deploymentID := parts[0]
	if deploymentID == "" {
		r.notFound(w)
		return
	}
	switch {
	case len(parts) == 1:
		r.handleDeploymentGet(w, req, deploymentID)
	case len(parts) == 2 && parts[1] == "cancel":
		r.handleDeploymentCancel(w, req, deploymentID)
	default:
		r.notFound(w)
	}
}

func (r *Router) handleDeploymentGet(w http.ResponseWriter, req *http.Request, deploymentID string) {
	if req.Method != http.MethodGet {
		r.methodNotAllowed(w)
		return
	}
	view, err := r.deploy.Get(req.Context(), deploymentID)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			r.notFound(w)
			return
		}
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	if view.PollAfterSec > 0 {
		w.Header().Set("Retry-After", strconv.Itoa(view.PollAfterSec))
	}
	writeJSON(w, http.StatusOK, view)
}

func (r *Router) handleDeploymentCancel(w http.ResponseWriter, req *http.Request, deploymentID string) {
	if req.Method != http.MethodPost {
		r.methodNotAllowed(w)
		return
	}
	deployment, err := r.deploy.Cancel(req.Context(), deploymentID)
	if err != nil {
		switch {
		case errors.Is(err, repository.ErrNotFound):
			r.notFound(w)
		case errors.Is(err, deploy.ErrAlreadyTerminal):
			writeError(w, http.StatusConflict, err.Error())
		default:
			writeError(w, http.StatusInternalServerError, err.Error())
		}
		return
	}
	writeJSON(w, http.StatusOK, deployment)
}

func (r *Router) handleDeploymentsWS(w http.ResponseWriter, req *http.Request) {
	if _, ok := authInfoFromContext(req.Context()); !ok {
		r.logger.Error("auth context missing for deployments websocket", "path", req.URL.Path)
		writeError(w, http.StatusInternalServerError, "authorization context missing")
		return
	}
	projectID := req.URL.Query().Get("project_id")
	if projectID == "" {
		writeError(w, http.StatusBadRequest, "project_id query parameter required")
		return
	}
	conn, err := r.upgrader.Upgrade(w, req, nil)
	if err != nil {
		r.logger.Error("websocket upgrade failed", "error", err)
		return
	}
	client := ws.NewClient(conn, r.logger)
	r.hub.Register(projectID, client)
	go func() {
		defer func() {
			r.hub.Unregister(projectID, client)
			client.Close()
		}()
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				break
			}
		}
	}()
}

func (r *Router) handleAPIKeys(w http.ResponseWriter, req *http.Request) {
	info, ok := authInfoFromContext(req.Context())
	if !ok {
		r.logger.Error("auth context missing for api keys route", "path", req.URL.Path)
		writeError(w, http.StatusInternalServerError, "authorization context missing")
		return
	}
	switch req.Method {
	case http.MethodPost:
		if info.APIKey {
			writeError(w, http.StatusForbidden, "api keys cannot mint api keys")
			return
		}
		var payload struct {
			Name    string `json:"name"`
			TTLDays int    `json:"ttl_days"`
		}
		if err := json.NewDecoder(req.Body).Decode(&payload); err != nil {
			writeError(w, http.StatusBadRequest, "invalid JSON body")
			return
		}
		created, err := r.apikeys.Create(req.Context(), info.UserID, payload.Name, time.Duration(payload.TTLDays)*24*time.Hour)
		if err != nil {
			writeError(w, http.StatusBadRequest, err.Error())
			return
		}
		writeJSON(w, http.StatusCreated, map[string]any{
			"key":       created.Key,
			"plaintext": created.Plaintext,
		})
	case http.MethodGet:
		keys, err := r.apikeys.List(req.Context(), info.UserID)
		if err != nil {
			writeError(w, http.StatusInternalServerError, err.Error())
			return
		}
		writeJSON(w, http.StatusOK, keys)
	default:
		r.methodNotAllowed(w)
	}
}

func (r *Router) handleAPIKeySubroutes(w http.ResponseWriter, req *http.Request) {
	keyID := strings.TrimPrefix(req.URL.Path, "/apikeys/")
	if keyID == "" || strings.Contains(keyID, "/") {
		r.notFound(w)
		return
	}
	if req.Method != http.MethodDelete {
		r.methodNotAllowed(w)
		return
	}
	info, ok := authInfoFromContext(req.Context())
	if !ok {
		r.logger.Error("auth context missing for api key revocation", "path", req.URL.Path)
		writeError(w, http.StatusInternalServerError, "authorization context missing")
		return
	}
	if err := r.apikeys.Revoke(req.Context(), info.UserID, keyID); err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			r.notFound(w)
			return
		}
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	writeResult(w, http.StatusOK, true, "key revoked")
}

func (r *Router) handleInstallerComponents(w http.ResponseWriter, req *http.Request) {
	if req.Method != http.MethodGet {
		r.methodNotAllowed(w)
		return
	}
	manifests, err := r.install.Registry(req.Context())
	if err != nil {
		writeError(w, http.StatusBadGateway, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, manifests)
}

func (r *Router) handleInstallerPlan(w http.ResponseWriter, req *http.Request) {
	if req.Method != http.MethodPost {
		r.methodNotAllowed(w)
		return
	}
	var payload struct {
		Component string `json:"component"`
		Owner     string `json:"owner"`
		Repo      string `json:"repo"`
	}
	if err := json.NewDecoder(req.Body).Decode(&payload); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON body")
		return
	}
	plan, err := r.install.Plan(req.Context(), payload.Component, payload.Owner, payload.Repo)
	if err != nil {
		if errors.Is(err, installer.ErrUnknownComponent) {
			r.notFound(w)
			return
		}
		writeError(w, http.StatusBadGateway, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, plan)
}

func (r *Router) handleInstallerApply(w http.ResponseWriter, req *http.Request) {
	if req.Method != http.MethodPost {
		r.methodNotAllowed(w)
		return
	}
	var payload struct {
		Component string `json:"component"`
		Owner     string `json:"owner"`
		Repo      string `json:"repo"`
	}
	if err := json.NewDecoder(req.Body).Decode(&payload); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON body")
		return
	}
	plan, err := r.install.Plan(req.Context(), payload.Component, payload.Owner, payload.Repo)
	if err != nil {
		if errors.Is(err, installer.ErrUnknownComponent) {
			r.notFound(w)
			return
		}
		writeError(w, http.StatusBadGateway, err.Error())
		return
	}
	pull, err := r.install.Apply(req.Context(), plan)
	if err != nil {
		if errors.Is(err, installer.ErrEmptyPlan) {
			writeResult(w, http.StatusOK, true, "component already installed")
			return
		}
		writeError(w, http.StatusBadGateway, err.Error())
		return
	}
	writeJSON(w, http.StatusCreated, pull)
}
