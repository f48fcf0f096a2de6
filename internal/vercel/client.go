package vercel

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

// APIError carries the status and error code Vercel returned.
type APIError struct {
	StatusCode int
	Code       string
	Message    string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("vercel: %d %s: %s", e.StatusCode, e.Code, e.Message)
}

// Client is a minimal typed client for the Vercel REST API.
type Client struct {
	baseURL string
	token   string
	teamID  string
	http    *http.Client
}

// NewClient constructs a Client scoped to an optional team.
func NewClient(baseURL, token, teamID string) *Client {
	return &Client{
		baseURL: strings.TrimRight(baseURL, "/"),
		token:   token,
		teamID:  teamID,
		http:    &http.Client{Timeout: 30 * time.Second},
	}
}

func (c *Client) do(ctx context.Context, method, path string, body any, out any) error {
	target := c.baseURL + path
	if c.teamID != "" {
		sep := "?"
		if strings.Contains(path, "?") {
			sep = "&"
		}
		target += sep + "teamId=" + url.QueryEscape(c.teamID)
	}
	var reader io.Reader
	if body != nil {
		payload, err := json.Marshal(body)
		if err != nil {
			return err
		}
		reader = bytes.NewReader(payload)
	}
	req, err := http.NewRequestWithContext(ctx, method, target, reader)
	if err != nil {
		return err
	}
	req.Header.Set("Authorization", "Bearer "+c.token)
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	resp, err := c.http.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 400 {
		var wrapper struct {
			Error struct {
				Code    string `json:"code"`
				Message string `json:"message"`
			} `json:"error"`
		}
		data, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		_ = json.Unmarshal(data, &wrapper)
		if wrapper.Error.Message == "" {
			wrapper.Error.Message = resp.Status
		}
		return &APIError{StatusCode: resp.StatusCode, Code: wrapper.Error.Code, Message: wrapper.Error.Message}
	}
	if out == nil {
		return nil
	}
	return json.NewDecoder(resp.Body).Decode(out)
}

// Project is a Vercel hosting project.
type Project struct {
	ID        string `json:"id"`
	Name      string `json:"name"`
	Framework string `json:"framework"`
	Link      *struct {
		Type string `json:"type"`
		Repo string `json:"repo"`
		Org  string `json:"org"`
	} `json:"link"`
}

// ProjectURL returns the default production URL for a project name.
func ProjectURL(name string) string {
	return "https://" + name + ".vercel.app"
}

// CreateProject creates a hosting project linked to a GitHub repository.
func (c *Client) CreateProject(ctx context.Context, name, repoFullName, framework string) (*Project, error) {
	body := map[string]any{
		"name":      name,
		"framework": framework,
	}
	if repoFullName != "" {
		body["gitRepository"] = map[string]string{
			"type": "github",
			"repo": repoFullName,
		}
	}
	var project Project
	if err := c.do(ctx, http.MethodPost, "/v11/projects", body, &project); err != nil {
		return nil, err
	}
	return &project, nil
}

// GetProject fetches a project by ID or name.
func (c *Client) GetProject(ctx context.Context, idOrName string) (*Project, error) {
	var project Project
	if err := c.do(ctx, http.MethodGet, "/v9/projects/"+url.PathEscape(idOrName), nil, &project); err != nil {
		return nil, err
	}
	return &project, nil
}

// DeleteProject removes a hosting project. Used by best-effort cancellation.
func (c *Client) DeleteProject(ctx context.Context, idOrName string) error {
	return c.do(ctx, http.MethodDelete, "/v9/projects/"+url.PathEscape(idOrName), nil, nil)
}
