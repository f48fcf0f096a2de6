package client

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"
)

// Client provides typed access to the platform API for interactive tools.
type Client struct {
	baseURL    string
	httpClient *http.Client
}

// Option customises client instantiation.
type Option func(*Client)

// WithHTTPClient overrides the default HTTP client.
func WithHTTPClient(h *http.Client) Option {
	return func(c *Client) {
		if h != nil {
			c.httpClient = h
		}
	}
}

// New constructs a Client pointing at the provided API base URL.
func New(base string, opts ...Option) (*Client, error) {
	trimmed := strings.TrimSpace(base)
	if trimmed == "" {
		trimmed = "http://localhost:4000"
	}
	if !strings.HasPrefix(trimmed, "http://") && !strings.HasPrefix(trimmed, "https://") {
		trimmed = "http://" + trimmed
	}
	if _, err := url.Parse(trimmed); err != nil {
		return nil, fmt.Errorf("invalid api base url: %w", err)
	}
	cli := &Client{
		baseURL:    strings.TrimRight(trimmed, "/"),
		httpClient: &http.Client{Timeout: 15 * time.Second},
	}
	for _, opt := range opts {
		opt(cli)
	}
	return cli, nil
}

// APIError represents an error response from the API.
type APIError struct {
	Status  int
	Message string
}

func (e APIError) Error() string {
	if e.Message == "" {
		return fmt.Sprintf("api request failed with status %d", e.Status)
	}
	return fmt.Sprintf("api request failed (%d): %s", e.Status, e.Message)
}

func (c *Client) do(ctx context.Context, method, path string, body any, token string, v any) error {
	if c == nil {
		return fmt.Errorf("client is nil")
	}
	if ctx == nil {
		ctx = context.Background()
	}
	endpoint := c.baseURL + path
	var reader io.Reader
	if body != nil {
		payload, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("encode request body: %w", err)
		}
		reader = bytes.NewReader(payload)
	}
	req, err := http.NewRequestWithContext(ctx, method, endpoint, reader)
	if err != nil {
		return fmt.Errorf("create request: %w", err)
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if strings.TrimSpace(token) != "" {
		req.Header.Set("Authorization", "Bearer "+strings.TrimSpace(token))
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("perform request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= http.StatusBadRequest {
		msg := extractError(resp.Body)
		return APIError{Status: resp.StatusCode, Message: msg}
	}

	if v == nil {
		return nil
	}
	decoder := json.NewDecoder(resp.Body)
	if err := decoder.Decode(v); err != nil {
		return fmt.Errorf("decode response: %w", err)
	}
	return nil
}

func extractError(body io.Reader) string {
	if body == nil {
		return ""
	}
	var payload struct {
		Error string `json:"error"`
	}
	data, err := io.ReadAll(body)
	if err != nil || len(data) == 0 {
		return ""
	}
	if err := json.Unmarshal(data, &payload); err != nil {
		return strings.TrimSpace(string(data))
	}
	return strings.TrimSpace(payload.Error)
}

// TokenPair includes access and refresh tokens.
type TokenPair struct {
	AccessToken  string        `json:"access_token"`
	RefreshToken string        `json:"refresh_token"`
	ExpiresIn    time.Duration `json:"expires_in"`
}

// User reflects API user payloads.
type User struct {
	ID    string `json:"id"`
	Email string `json:"email"`
	Guest bool   `json:"guest"`
}

// SessionResponse captures the user and token payload emitted by the API.
type SessionResponse struct {
	User   User      `json:"user"`
	Tokens TokenPair `json:"tokens"`
}

// Login exchanges credentials for a token pair.
func (c *Client) Login(ctx context.Context, email, password string) (SessionResponse, error) {
	body := map[string]string{
		"email":    email,
		"password": password,
	}
	var resp SessionResponse
	if err := c.do(ctx, http.MethodPost, "/auth/login", body, "", &resp); err != nil {
		return SessionResponse{}, err
	}
	return resp, nil
}

// Signup registers a new account.
func (c *Client) Signup(ctx context.Context, email, password string) (SessionResponse, error) {
	body := map[string]string{
		"email":    email,
		"password": password,
	}
	var resp SessionResponse
	if err := c.do(ctx, http.MethodPost, "/auth/signup", body, "", &resp); err != nil {
		return SessionResponse{}, err
	}
	return resp, nil
}

// GuestSession requests an anonymous session. Only available when the API
// runs without external auth providers.
func (c *Client) GuestSession(ctx context.Context) (SessionResponse, error) {
	var resp SessionResponse
	if err := c.do(ctx, http.MethodPost, "/auth/guest", nil, "", &resp); err != nil {
		return SessionResponse{}, err
	}
	return resp, nil
}

// Team represents a collaborative workspace.
type Team struct {
	ID          string
	Name        string
	OwnerID     string
	MaxProjects int
	MaxMembers  int
	CreatedAt   time.Time
}

// ListTeams returns all teams for the authenticated user.
func (c *Client) ListTeams(ctx context.Context, token string) ([]Team, error) {
	var teams []Team
	if err := c.do(ctx, http.MethodGet, "/teams", nil, token, &teams); err != nil {
		return nil, err
	}
	return teams, nil
}

// Project describes a provisioned site.
type Project struct {
	ID           string
	TeamID       string
	Name         string
	Slug         string
	TemplateRepo string
	CreatedAt    time.Time
}

// ListProjects returns projects for the specified team.
func (c *Client) ListProjects(ctx context.Context, token, teamID string) ([]Project, error) {
	path := fmt.Sprintf("/teams/%s/projects", url.PathEscape(teamID))
	var projects []Project
	if err := c.do(ctx, http.MethodGet, path, nil, token, &projects); err != nil {
		return nil, err
	}
	return projects, nil
}

// CreateProjectInput captures the payload for project creation.
type CreateProjectInput struct {
	TeamID       string `json:"team_id"`
	Name         string `json:"name"`
	TemplateRepo string `json:"template_repo"`
}

// CreateProject registers a new project.
func (c *Client) CreateProject(ctx context.Context, token string, input CreateProjectInput) (Project, error) {
	var project Project
	if err := c.do(ctx, http.MethodPost, "/projects", input, token, &project); err != nil {
		return Project{}, err
	}
	return project, nil
}

// NameCheck reports whether a deployment name is acceptable.
type NameCheck struct {
	Valid  bool   `json:"valid"`
	Slug   string `json:"slug"`
	Reason string `json:"reason"`
}

// ValidateName asks the API whether a name can be used for a deployment.
func (c *Client) ValidateName(ctx context.Context, token, name string) (NameCheck, error) {
	body := map[string]string{"name": name}
	var check NameCheck
	if err := c.do(ctx, http.MethodPost, "/projects/validate-name", body, token, &check); err != nil {
		return NameCheck{}, err
	}
	return check, nil
}

// Deployment records one provisioning run.
type Deployment struct {
	ID              string
	ProjectID       string
	RepoOwner       string
	RepoName        string
	VercelProjectID string
	Status          string
	URL             string
	Error           string
	CreatedAt       time.Time
	CompletedAt     *time.Time
	UpdatedAt       time.Time
}

// DeploymentStatus is a deployment plus polling guidance.
type DeploymentStatus struct {
	Deployment   Deployment `json:"deployment"`
	Stale        bool       `json:"stale"`
	PollAfterSec int        `json:"poll_after_sec"`
}

// InitiateDeployment starts provisioning and returns the pending record.
func (c *Client) InitiateDeployment(ctx context.Context, token, projectID, name string) (Deployment, error) {
	path := fmt.Sprintf("/projects/%s/deployments", url.PathEscape(projectID))
	body := map[string]string{"name": name}
	var dep Deployment
	if err := c.do(ctx, http.MethodPost, path, body, token, &dep); err != nil {
		return Deployment{}, err
	}
	return dep, nil
}

// GetDeployment fetches the current status of a deployment.
func (c *Client) GetDeployment(ctx context.Context, token, deploymentID string) (DeploymentStatus, error) {
	path := fmt.Sprintf("/deployments/%s", url.PathEscape(deploymentID))
	var status DeploymentStatus
	if err := c.do(ctx, http.MethodGet, path, nil, token, &status); err != nil {
		return DeploymentStatus{}, err
	}
	return status, nil
}

// ListDeployments returns recent deployments for a project.
func (c *Client) ListDeployments(ctx context.Context, token, projectID string, limit int) ([]DeploymentStatus, error) {
	path := fmt.Sprintf("/projects/%s/deployments", url.PathEscape(projectID))
	if limit > 0 {
		path += fmt.Sprintf("?limit=%d", limit)
	}
	var statuses []DeploymentStatus
	if err := c.do(ctx, http.MethodGet, path, nil, token, &statuses); err != nil {
		return nil, err
	}
	return statuses, nil
}

// CancelDeployment abandons an in-flight deployment.
func (c *Client) CancelDeployment(ctx context.Context, token, deploymentID string) (Deployment, error) {
	path := fmt.Sprintf("/deployments/%s/cancel", url.PathEscape(deploymentID))
	var dep Deployment
	if err := c.do(ctx, http.MethodPost, path, nil, token, &dep); err != nil {
		return Deployment{}, err
	}
	return dep, nil
}

// Component describes an installable template component.
type Component struct {
	Name         string   `json:"name"`
	Description  string   `json:"description"`
	Files        []string `json:"files"`
	Dependencies []string `json:"dependencies,omitempty"`
}

// ListComponents returns the component registry.
func (c *Client) ListComponents(ctx context.Context, token string) ([]Component, error) {
	var components []Component
	if err := c.do(ctx, http.MethodGet, "/installer/components", nil, token, &components); err != nil {
		return nil, err
	}
	return components, nil
}

// PlanAction is one file-level step of an install plan.
type PlanAction struct {
	Path string `json:"path"`
	Kind string `json:"kind"`
}

// InstallPlan previews what applying a component would change.
type InstallPlan struct {
	Component  string       `json:"component"`
	Owner      string       `json:"owner"`
	Repo       string       `json:"repo"`
	BaseBranch string       `json:"base_branch"`
	Layout     string       `json:"layout"`
	Actions    []PlanAction `json:"actions"`
}

// PlanInstall computes the changes a component install would make.
func (c *Client) PlanInstall(ctx context.Context, token, component, owner, repo string) (InstallPlan, error) {
	body := map[string]string{
		"component": component,
		"owner":     owner,
		"repo":      repo,
	}
	var plan InstallPlan
	if err := c.do(ctx, http.MethodPost, "/installer/plan", body, token, &plan); err != nil {
		return InstallPlan{}, err
	}
	return plan, nil
}

// PullRequest references the PR opened by an install.
type PullRequest struct {
	Number  int    `json:"number"`
	HTMLURL string `json:"html_url"`
	Title   string `json:"title"`
}

// ApplyInstall installs a component into the target repository via a PR. The
// second return value is false when the component was already installed and
// no PR was needed.
func (c *Client) ApplyInstall(ctx context.Context, token, component, owner, repo string) (PullRequest, bool, error) {
	body := map[string]string{
		"component": component,
		"owner":     owner,
		"repo":      repo,
	}
	var pull PullRequest
	if err := c.do(ctx, http.MethodPost, "/installer/apply", body, token, &pull); err != nil {
		return PullRequest{}, false, err
	}
	if pull.Number == 0 {
		return PullRequest{}, false, nil
	}
	return pull, true, nil
}
