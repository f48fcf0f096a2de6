package content

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"time"

	"log/slog"

	"github.com/fsnotify/fsnotify"
	"github.com/yuin/goldmark"
	"github.com/yuin/goldmark/extension"
	"gopkg.in/yaml.v3"

	"github.com/shipkit/platform/internal/domain"
)

var ErrPostNotFound = errors.New("content: post not found")

const frontMatterDelim = "---"

// frontMatter is the YAML header on a markdown post.
type frontMatter struct {
	Title       string    `yaml:"title"`
	Description string    `yaml:"description"`
	Author      string    `yaml:"author"`
	PublishedAt time.Time `yaml:"publishedAt"`
	Draft       bool      `yaml:"draft"`
	Slug        string    `yaml:"slug"`
}

// Store loads markdown posts from a directory and keeps an in-memory index,
// reloading when the directory changes.
type Store struct {
	dir    string
	logger *slog.Logger
	md     goldmark.Markdown

	mu     sync.RWMutex
	posts  []domain.Post // publishedAt descending
	bySlug map[string]int
}

// NewStore builds a post store rooted at dir. Call Load before serving.
func NewStore(dir string, logger *slog.Logger) *Store {
	return &Store{
		dir:    dir,
		logger: logger,
		md: goldmark.New(
			goldmark.WithExtensions(extension.GFM),
		),
		bySlug: make(map[string]int),
	}
}

// Load reads every markdown file in the directory and rebuilds the index.
// A missing directory yields an empty index, not an error.
func (s *Store) Load() error {
	entries, err := os.ReadDir(s.dir)
	if err != nil {
		if os.IsNotExist(err) {
			s.swap(nil)
			return nil
		}
		return fmt.Errorf("read content dir: %w", err)
	}

	posts := make([]domain.Post, 0, len(entries))
	for _, entry := range entries {
		if entry.IsDir() || !strings.HasSuffix(entry.Name(), ".md") {
			continue
		}
		post, err := s.loadFile(filepath.Join(s.dir, entry.Name()))
		if err != nil {
			s.logger.Warn("skipping unreadable post", "file", entry.Name(), "error", err)
			continue
		}
		posts = append(posts, *post)
	}
	sort.Slice(posts, func(i, j int) bool { return posts[i].PublishedAt.After(posts[j].PublishedAt) })
	s.swap(posts)
	s.logger.Info("content index loaded", "dir", s.dir, "posts", len(posts))
	return nil
}

func (s *Store) loadFile(path string) (*domain.Post, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	matter, body, err := splitFrontMatter(raw)
	if err != nil {
		return nil, err
	}

	var fm frontMatter
	if err := yaml.Unmarshal(matter, &fm); err != nil {
		return nil, fmt.Errorf("front matter: %w", err)
	}
	slug := fm.Slug
	if slug == "" {
		slug = strings.TrimSuffix(filepath.Base(path), ".md")
	}

	var rendered bytes.Buffer
	if err := s.md.Convert(body, &rendered); err != nil {
		return nil, fmt.Errorf("render markdown: %w", err)
	}

	return &domain.Post{
		Slug:        slug,
		Title:       fm.Title,
		Description: fm.Description,
		Author:      fm.Author,
		PublishedAt: fm.PublishedAt,
		Draft:       fm.Draft,
		Body:        string(body),
		HTML:        rendered.String(),
	}, nil
}

func splitFrontMatter(raw []byte) (matter, body []byte, err error) {
	text := string(raw)
	if !strings.HasPrefix(text, frontMatterDelim+"\n") && !strings.HasPrefix(text, frontMatterDelim+"\r\n") {
		return nil, raw, nil
	}
	rest := text[len(frontMatterDelim):]
	rest = strings.TrimPrefix(rest, "\r\n")
	rest = strings.TrimPrefix(rest, "\n")
	end := strings.Index(rest, "\n"+frontMatterDelim)
	if end < 0 {
		return nil, nil, errors.New("unterminated front matter")
	}
	matter = []byte(rest[:end])
	after := rest[end+1+len(frontMatterDelim):]
	after = strings.TrimPrefix(after, "\r\n")
	after = strings.TrimPrefix(after, "\n")
	return matter, []byte(after), nil
}

func (s *Store) swap(posts []domain.Post) {
	bySlug := make(map[string]int, len(posts))
	for i, post := range posts {
		bySlug[post.Slug] = i
	}
	s.mu.Lock()
	s.posts = posts
	s.bySlug = bySlug
	s.mu.Unlock()
}

// Published returns non-draft posts, newest first.
func (s *Store) Published() []domain.Post {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]domain.Post, 0, len(s.posts))
	for _, post := range s.posts {
		if !post.Draft {
			out = append(out, post)
		}
	}
	return out
}

// All returns every indexed post including drafts, newest first.
func (s *Store) All() []domain.Post {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]domain.Post, len(s.posts))
	copy(out, s.posts)
	return out
}

// Get returns one post by slug. Drafts resolve too; callers gate visibility.
func (s *Store) Get(slug string) (*domain.Post, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	i, ok := s.bySlug[slug]
	if !ok {
		return nil, ErrPostNotFound
	}
	post := s.posts[i]
	return &post, nil
}

// Watch reloads the index whenever the content directory changes, until the
// context is cancelled.
func (s *Store) Watch(ctx context.Context) error {
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("content watcher: %w", err)
	}
	defer watcher.Close()

	if err := watcher.Add(s.dir); err != nil {
		s.logger.Warn("content directory not watchable", "dir", s.dir, "error", err)
		<-ctx.Done()
		return nil
	}
	s.logger.Info("content watcher started", "dir", s.dir)

	// Editors fire bursts of events per save; coalesce them.
	var pending <-chan time.Time
	for {
		select {
		case <-ctx.Done():
			return nil
		case event, ok := <-watcher.Events:
			if !ok {
				return nil
			}
			if event.Op&(fsnotify.Create|fsnotify.Write|fsnotify.Remove|fsnotify.Rename) == 0 {
				continue
			}
			pending = time.After(200 * time.Millisecond)
		case err, ok := <-watcher.Errors:
			if !ok {
				return nil
			}
			s.logger.Warn("content watcher error", "error", err)
		case <-pending:
			pending = nil
			if err := s.Load(); err != nil {
				s.logger.Warn("content reload failed", "error", err)
			}
		}
	}
}
