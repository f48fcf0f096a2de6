package github

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"golang.org/x/time/rate"
)

// APIError carries the status and message GitHub returned.
type APIError struct {
	StatusCode int
	Message    string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("github: %d %s", e.StatusCode, e.Message)
}

// IsNotFound reports whether err is a GitHub 404.
func IsNotFound(err error) bool {
	apiErr, ok := err.(*APIError)
	return ok && apiErr.StatusCode == http.StatusNotFound
}

// Client is a minimal typed GitHub REST client covering the platform's
// needs: template repo creation, contents, git data and pull requests.
type Client struct {
	baseURL string
	token   string
	http    *http.Client
	limiter *rate.Limiter
}

// NewClient constructs a Client. GitHub allows 5000 authenticated requests
// per hour; the limiter keeps bursts of installer traffic under that.
func NewClient(baseURL, token string) *Client {
	return &Client{
		baseURL: strings.TrimRight(baseURL, "/"),
		token:   token,
		http:    &http.Client{Timeout: 30 * time.Second},
		limiter: rate.NewLimiter(rate.Limit(1.2), 10),
	}
}

func (c *Client) do(ctx context.Context, method, path string, body any, out any) error {
	if err := c.limiter.Wait(ctx); err != nil {
		return err
	}
	var reader io.Reader
	if body != nil {
		payload, err := json.Marshal(body)
		if err != nil {
			return err
		}
		reader = bytes.NewReader(payload)
	}
	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, reader)
	if err != nil {
		return err
	}
	req.Header.Set("Accept", "application/vnd.github+json")
	if c.token != "" {
		req.Header.Set("Authorization", "Bearer "+c.token)
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	resp, err := c.http.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 400 {
		var gh struct {
			Message string `json:"message"`
		}
		data, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		_ = json.Unmarshal(data, &gh)
		if gh.Message == "" {
			gh.Message = resp.Status
		}
		return &APIError{StatusCode: resp.StatusCode, Message: gh.Message}
	}
	if out == nil {
		return nil
	}
	return json.NewDecoder(resp.Body).Decode(out)
}

// Repo describes a repository.
type Repo struct {
	ID            int64  `json:"id"`
	Name          string `json:"name"`
	FullName      string `json:"full_name"`
	Private       bool   `json:"private"`
	HTMLURL       string `json:"html_url"`
	DefaultBranch string `json:"default_branch"`
	Owner         struct {
		Login string `json:"login"`
	} `json:"owner"`
}

// CreateFromTemplate generates a repository from a template repo.
func (c *Client) CreateFromTemplate(ctx context.Context, templateOwner, templateRepo, owner, name string, private bool) (*Repo, error) {
	body := map[string]any{
		"name":    name,
		"private": private,
	}
	if owner != "" {
		body["owner"] = owner
	}
	var repo Repo
	path := fmt.Sprintf("/repos/%s/%s/generate", templateOwner, templateRepo)
	if err := c.do(ctx, http.MethodPost, path, body, &repo); err != nil {
		return nil, err
	}
	return &repo, nil
}

// GetRepo fetches repository metadata.
func (c *Client) GetRepo(ctx context.Context, owner, name string) (*Repo, error) {
	var repo Repo
	if err := c.do(ctx, http.MethodGet, fmt.Sprintf("/repos/%s/%s", owner, name), nil, &repo); err != nil {
		return nil, err
	}
	return &repo, nil
}

// Content is one entry of a repository contents listing.
type Content struct {
	Type    string `json:"type"`
	Path    string `json:"path"`
	SHA     string `json:"sha"`
	Size    int    `json:"size"`
	Content string `json:"content"`
	RawEnc  string `json:"encoding"`
}

// Decoded returns the file body for base64-encoded content responses.
func (c Content) Decoded() ([]byte, error) {
	if c.RawEnc != "base64" {
		return []byte(c.Content), nil
	}
	return base64.StdEncoding.DecodeString(strings.ReplaceAll(c.Content, "\n", ""))
}

// ListContents lists a directory in the repository.
func (c *Client) ListContents(ctx context.Context, owner, repo, path, ref string) ([]Content, error) {
	url := fmt.Sprintf("/repos/%s/%s/contents/%s", owner, repo, strings.TrimPrefix(path, "/"))
	if ref != "" {
		url += "?ref=" + ref
	}
	var entries []Content
	if err := c.do(ctx, http.MethodGet, url, nil, &entries); err != nil {
		return nil, err
	}
	return entries, nil
}

// GetContent fetches a single file with its body.
func (c *Client) GetContent(ctx context.Context, owner, repo, path, ref string) (*Content, error) {
	url := fmt.Sprintf("/repos/%s/%s/contents/%s", owner, repo, strings.TrimPrefix(path, "/"))
	if ref != "" {
		url += "?ref=" + ref
	}
	var entry Content
	if err := c.do(ctx, http.MethodGet, url, nil, &entry); err != nil {
		return nil, err
	}
	return &entry, nil
}

// Ref is a git reference.
type Ref struct {
	Ref    string `json:"ref"`
	Object struct {
		SHA  string `json:"sha"`
		Type string `json:"type"`
	} `json:"object"`
}

// GetRef resolves a branch reference (e.g. "heads/main").
func (c *Client) GetRef(ctx context.Context, owner, repo, ref string) (*Ref, error) {
	var out Ref
	if err := c.do(ctx, http.MethodGet, fmt.Sprintf("/repos/%s/%s/git/ref/%s", owner, repo, ref), nil, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// CreateRef creates a branch pointing at sha.
func (c *Client) CreateRef(ctx context.Context, owner, repo, ref, sha string) (*Ref, error) {
	body := map[string]string{"ref": "refs/" + ref, "sha": sha}
	var out Ref
	if err := c.do(ctx, http.MethodPost, fmt.Sprintf("/repos/%s/%s/git/refs", owner, repo), body, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// CreateBlob uploads file content and returns its SHA.
func (c *Client) CreateBlob(ctx context.Context, owner, repo string, content []byte) (string, error) {
	body := map[string]string{
		"content":  base64.StdEncoding.EncodeToString(content),
		"encoding": "base64",
	}
	var out struct {
		SHA string `json:"sha"`
	}
	if err := c.do(ctx, http.MethodPost, fmt.Sprintf("/repos/%s/%s/git/blobs", owner, repo), body, &out); err != nil {
		return "", err
	}
	return out.SHA, nil
}

// TreeEntry is one path in a tree creation request.
type TreeEntry struct {
	Path string `json:"path"`
	Mode string `json:"mode"`
	Type string `json:"type"`
	SHA  string `json:"sha"`
}

// CreateTree creates a tree on top of a base tree.
func (c *Client) CreateTree(ctx context.Context, owner, repo, baseTree string, entries []TreeEntry) (string, error) {
	body := map[string]any{"base_tree": baseTree, "tree": entries}
	var out struct {
		SHA string `json:"sha"`
	}
	if err := c.do(ctx, http.MethodPost, fmt.Sprintf("/repos/%s/%s/git/trees", owner, repo), body, &out); err != nil {
		return "", err
	}
	return out.SHA, nil
}

// GetCommit returns the tree SHA behind a commit.
func (c *Client) GetCommit(ctx context.Context, owner, repo, sha string) (string, error) {
	var out struct {
		Tree struct {
			SHA string `json:"sha"`
		} `json:"tree"`
	}
	if err := c.do(ctx, http.MethodGet, fmt.Sprintf("/repos/%s/%s/git/commits/%s", owner, repo, sha), nil, &out); err != nil {
		return "", err
	}
	return out.Tree.SHA, nil
}

// CreateCommit records a commit for the tree.
func (c *Client) CreateCommit(ctx context.Context, owner, repo, message, tree string, parents []string) (string, error) {
	body := map[string]any{"message": message, "tree": tree, "parents": parents}
	var out struct {
		SHA string `json:"sha"`
	}
	if err := c.do(ctx, http.MethodPost, fmt.Sprintf("/repos/%s/%s/git/commits", owner, repo), body, &out); err != nil {
		return "", err
	}
	return out.SHA, nil
}

// UpdateRef moves a branch to a commit.
func (c *Client) UpdateRef(ctx context.Context, owner, repo, ref, sha string) error {
	body := map[string]any{"sha": sha, "force": false}
	return c.do(ctx, http.MethodPatch, fmt.Sprintf("/repos/%s/%s/git/refs/%s", owner, repo, ref), body, nil)
}

// Pull is a created pull request.
type Pull struct {
	Number  int    `json:"number"`
	HTMLURL string `json:"html_url"`
	Title   string `json:"title"`
}

// CreatePull opens a pull request from head into base.
func (c *Client) CreatePull(ctx context.Context, owner, repo, title, head, base, body string) (*Pull, error) {
	payload := map[string]string{"title": title, "head": head, "base": base, "body": body}
	var out Pull
	if err := c.do(ctx, http.MethodPost, fmt.Sprintf("/repos/%s/%s/pulls", owner, repo), payload, &out); err != nil {
		return nil, err
	}
	return &out, nil
}
