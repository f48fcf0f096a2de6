package installer

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"

	"log/slog"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"

	"github.com/shipkit/platform/internal/cache"
	"github.com/shipkit/platform/internal/github"
	"github.com/shipkit/platform/pkg/config"
)

var (
	ErrUnknownComponent = errors.New("installer: unknown component")
	ErrEmptyPlan        = errors.New("installer: nothing to install")
)

const (
	registryPath     = "registry.json"
	registryCacheKey = "installer:registry"
	fetchConcurrency = 8
)

// Manifest describes one installable component in the template repo.
type Manifest struct {
	Name         string   `json:"name"`
	Description  string   `json:"description"`
	Files        []string `json:"files"`
	Dependencies []string `json:"dependencies,omitempty"`
}

// Action is a single file operation in a plan.
type Action struct {
	Path    string `json:"path"`
	Kind    string `json:"kind"` // create, update or skip
	Content []byte `json:"-"`
}

// Plan is a computed set of file actions against a target repository.
type Plan struct {
	Component  string   `json:"component"`
	Owner      string   `json:"owner"`
	Repo       string   `json:"repo"`
	BaseBranch string   `json:"base_branch"`
	BaseSHA    string   `json:"-"`
	Layout     Layout   `json:"layout"`
	Actions    []Action `json:"actions"`
}

// Changed counts actions that would modify the target.
func (p Plan) Changed() int {
	n := 0
	for _, action := range p.Actions {
		if action.Kind != "skip" {
			n++
		}
	}
	return n
}

// TemplateSource reads files out of the template and target repositories.
type TemplateSource interface {
	GetRepo(ctx context.Context, owner, name string) (*github.Repo, error)
	ListContents(ctx context.Context, owner, repo, path, ref string) ([]github.Content, error)
	GetContent(ctx context.Context, owner, repo, path, ref string) (*github.Content, error)
}

// PullOpener performs the git plumbing to land a plan as a pull request.
type PullOpener interface {
	GetRef(ctx context.Context, owner, repo, ref string) (*github.Ref, error)
	CreateRef(ctx context.Context, owner, repo, ref, sha string) (*github.Ref, error)
	GetCommit(ctx context.Context, owner, repo, sha string) (string, error)
	CreateBlob(ctx context.Context, owner, repo string, content []byte) (string, error)
	CreateTree(ctx context.Context, owner, repo, baseTree string, entries []github.TreeEntry) (string, error)
	CreateCommit(ctx context.Context, owner, repo, message, tree string, parents []string) (string, error)
	UpdateRef(ctx context.Context, owner, repo, ref, sha string) error
	CreatePull(ctx context.Context, owner, repo, title, head, base, body string) (*github.Pull, error)
}

// Service installs template components into user repositories by opening a
// pull request with the component's files adapted to the target layout.
type Service struct {
	source TemplateSource
	pulls  PullOpener
	cache  *cache.Cache
	logger *slog.Logger

	templateOwner string
	templateRepo  string
	cacheTTL      time.Duration
}

// New returns an installer backed by the configured template repository.
func New(source TemplateSource, pulls PullOpener, c *cache.Cache, logger *slog.Logger, cfg config.APIConfig) *Service {
	return &Service{
		source:        source,
		pulls:         pulls,
		cache:         c,
		logger:        logger,
		templateOwner: cfg.GitHubTemplateOwner,
		templateRepo:  cfg.GitHubTemplateRepo,
		cacheTTL:      cfg.InstallerCacheTTL,
	}
}

// Registry returns the component manifests from the template repo, cached
// for the configured TTL.
func (s *Service) Registry(ctx context.Context) ([]Manifest, error) {
	var manifests []Manifest
	if hit, err := s.cache.Get(ctx, registryCacheKey, &manifests); err == nil && hit {
		return manifests, nil
	}
	content, err := s.source.GetContent(ctx, s.templateOwner, s.templateRepo, registryPath, "")
	if err != nil {
		return nil, fmt.Errorf("fetch registry: %w", err)
	}
	raw, err := content.Decoded()
	if err != nil {
		return nil, fmt.Errorf("decode registry: %w", err)
	}
	if err := json.Unmarshal(raw, &manifests); err != nil {
		return nil, fmt.Errorf("parse registry: %w", err)
	}
	sort.Slice(manifests, func(i, j int) bool { return manifests[i].Name < manifests[j].Name })
	_ = s.cache.Set(ctx, registryCacheKey, manifests, s.cacheTTL)
	return manifests, nil
}

func (s *Service) manifest(ctx context.Context, component string) (*Manifest, error) {
	manifests, err := s.Registry(ctx)
	if err != nil {
		return nil, err
	}
	for i := range manifests {
		if manifests[i].Name == component {
			return &manifests[i], nil
		}
	}
	return nil, ErrUnknownComponent
}

// Plan computes the file actions needed to install a component into the
// target repository. Component files are fetched concurrently, filtered,
// rewritten for the target's layout and diffed against the target's current
// contents.
func (s *Service) Plan(ctx context.Context, component, targetOwner, targetRepo string) (*Plan, error) {
	manifest, err := s.manifest(ctx, component)
	if err != nil {
		return nil, err
	}
	target, err := s.source.GetRepo(ctx, targetOwner, targetRepo)
	if err != nil {
		return nil, fmt.Errorf("resolve target: %w", err)
	}
	branch := target.DefaultBranch
	if branch == "" {
		branch = "main"
	}
	baseRef, err := s.pulls.GetRef(ctx, targetOwner, targetRepo, "heads/"+branch)
	if err != nil {
		return nil, fmt.Errorf("resolve base branch: %w", err)
	}

	layout, err := s.detectTargetLayout(ctx, targetOwner, targetRepo, branch)
	if err != nil {
		return nil, err
	}

	files := make([]string, 0, len(manifest.Files))
	for _, file := range manifest.Files {
		if Installable(file) {
			files = append(files, file)
		}
	}

	actions := make([]Action, len(files))
	group, groupCtx := errgroup.WithContext(ctx)
	group.SetLimit(fetchConcurrency)
	var mu sync.Mutex
	for i, file := range files {
		i, file := i, file
		group.Go(func() error {
			content, err := s.source.GetContent(groupCtx, s.templateOwner, s.templateRepo, file, "")
			if err != nil {
				return fmt.Errorf("fetch %s: %w", file, err)
			}
			raw, err := content.Decoded()
			if err != nil {
				return fmt.Errorf("decode %s: %w", file, err)
			}
			action, err := s.diff(groupCtx, targetOwner, targetRepo, branch, file, raw, layout)
			if err != nil {
				return err
			}
			mu.Lock()
			actions[i] = *action
			mu.Unlock()
			return nil
		})
	}
	if err := group.Wait(); err != nil {
		return nil, err
	}

	plan := &Plan{
		Component:  component,
		Owner:      targetOwner,
		Repo:       targetRepo,
		BaseBranch: branch,
		BaseSHA:    baseRef.Object.SHA,
		Layout:     layout,
		Actions:    actions,
	}
	s.logger.Info("install plan computed", "component", component, "target", targetOwner+"/"+targetRepo, "layout", layout, "changes", plan.Changed())
	return plan, nil
}

func (s *Service) detectTargetLayout(ctx context.Context, owner, repo, branch string) (Layout, error) {
	entries, err := s.source.ListContents(ctx, owner, repo, "", branch)
	if err != nil {
		return "", fmt.Errorf("list target root: %w", err)
	}
	names := make([]string, 0, len(entries))
	for _, entry := range entries {
		names = append(names, entry.Path)
	}
	return DetectLayout(names), nil
}

func (s *Service) diff(ctx context.Context, owner, repo, branch, file string, raw []byte, layout Layout) (*Action, error) {
	targetPath := RewritePath(file, layout)
	rewritten := RewriteImports(raw, layout)

	existing, err := s.source.GetContent(ctx, owner, repo, targetPath, branch)
	if err != nil {
		if github.IsNotFound(err) {
			return &Action{Path: targetPath, Kind: "create", Content: rewritten}, nil
		}
		return nil, fmt.Errorf("read target %s: %w", targetPath, err)
	}
	current, err := existing.Decoded()
	if err != nil {
		return nil, fmt.Errorf("decode target %s: %w", targetPath, err)
	}
	if bytes.Equal(current, rewritten) {
		return &Action{Path: targetPath, Kind: "skip"}, nil
	}
	return &Action{Path: targetPath, Kind: "update", Content: rewritten}, nil
}

// Apply lands a plan as a pull request. Plans with no create or update
// actions open nothing and return ErrEmptyPlan.
func (s *Service) Apply(ctx context.Context, plan *Plan) (*github.Pull, error) {
	if plan == nil || plan.Changed() == 0 {
		return nil, ErrEmptyPlan
	}

	branch := fmt.Sprintf("shipkit/add-%s-%s", plan.Component, uuid.NewString()[:8])
	if _, err := s.pulls.CreateRef(ctx, plan.Owner, plan.Repo, "refs/heads/"+branch, plan.BaseSHA); err != nil {
		return nil, fmt.Errorf("create branch: %w", err)
	}

	entries := make([]github.TreeEntry, 0, plan.Changed())
	for _, action := range plan.Actions {
		if action.Kind == "skip" {
			continue
		}
		blobSHA, err := s.pulls.CreateBlob(ctx, plan.Owner, plan.Repo, action.Content)
		if err != nil {
			return nil, fmt.Errorf("create blob %s: %w", action.Path, err)
		}
		entries = append(entries, github.TreeEntry{Path: action.Path, Mode: "100644", Type: "blob", SHA: blobSHA})
	}

	baseTree, err := s.pulls.GetCommit(ctx, plan.Owner, plan.Repo, plan.BaseSHA)
	if err != nil {
		return nil, fmt.Errorf("resolve base tree: %w", err)
	}
	treeSHA, err := s.pulls.CreateTree(ctx, plan.Owner, plan.Repo, baseTree, entries)
	if err != nil {
		return nil, fmt.Errorf("create tree: %w", err)
	}
	message := fmt.Sprintf("Add %s component", plan.Component)
	commitSHA, err := s.pulls.CreateCommit(ctx, plan.Owner, plan.Repo, message, treeSHA, []string{plan.BaseSHA})
	if err != nil {
		return nil, fmt.Errorf("create commit: %w", err)
	}
	if err := s.pulls.UpdateRef(ctx, plan.Owner, plan.Repo, "heads/"+branch, commitSHA); err != nil {
		return nil, fmt.Errorf("update branch: %w", err)
	}

	title := fmt.Sprintf("Add %s", plan.Component)
	body := s.pullBody(plan)
	pull, err := s.pulls.CreatePull(ctx, plan.Owner, plan.Repo, title, branch, plan.BaseBranch, body)
	if err != nil {
		return nil, fmt.Errorf("open pull request: %w", err)
	}
	s.logger.Info("install pull request opened", "component", plan.Component, "target", plan.Owner+"/"+plan.Repo, "pr", pull.Number)
	return pull, nil
}

func (s *Service) pullBody(plan *Plan) string {
	var b strings.Builder
	fmt.Fprintf(&b, "Installs the `%s` component.\n\n", plan.Component)
	for _, action := range plan.Actions {
		if action.Kind == "skip" {
			continue
		}
		fmt.Fprintf(&b, "- %s `%s`\n", action.Kind, action.Path)
	}
	return b.String()
}
