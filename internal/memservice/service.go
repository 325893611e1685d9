// Package memservice applies the write policy of the CLI and the MCP server
// on top of a single store.
package memservice

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"github.com/starford/mem/internal/apperr"
	"github.com/starford/mem/internal/checksum"
	"github.com/starford/mem/internal/models"
	"github.com/starford/mem/internal/storage"
)

// AddRequest describes a new mem. An empty Title is derived from the path.
type AddRequest struct {
	Path    string
	Title   string
	Content string
	Tags    []string
	Force   bool
}

// EditRequest selects the fields to overwrite. Nil fields are kept.
// A non-empty IfMatch must equal the checksum of the stored mem.
type EditRequest struct {
	Path    string
	Title   *string
	Content *string
	Tags    *[]string
	IfMatch string
}

// Service coordinates writes to one store.
type Service struct {
	store  storage.Provider
	logger *slog.Logger
}

// NewService creates a new mem service.
func NewService(store storage.Provider, logger *slog.Logger) *Service {
	if logger == nil {
		logger = slog.Default()
	}
	return &Service{store: store, logger: logger}
}

// Add creates a mem. An existing mem at the same path is replaced only when
// Force is set.
func (s *Service) Add(_ context.Context, req AddRequest) (models.Mem, error) {
	if err := storage.ValidatePath(req.Path); err != nil {
		return models.Mem{}, err
	}
	if s.store.Exists(req.Path) && !req.Force {
		return models.Mem{}, fmt.Errorf("%w: %s (use --force to overwrite)", apperr.ErrAlreadyExists, req.Path)
	}
	title := req.Title
	if title == "" {
		title = TitleFromPath(req.Path)
	}
	m := models.New(req.Path, title, req.Content, req.Tags...)
	if err := s.store.Write(m); err != nil {
		return models.Mem{}, err
	}
	s.logger.Debug("mem created", slog.String("path", m.Path))
	return m, nil
}

// Show reads a mem.
func (s *Service) Show(_ context.Context, path string) (models.Mem, error) {
	if err := storage.ValidatePath(path); err != nil {
		return models.Mem{}, err
	}
	return s.store.Read(path)
}

// Edit overwrites the selected fields and refreshes UpdatedAt.
func (s *Service) Edit(_ context.Context, req EditRequest) (models.Mem, error) {
	if err := storage.ValidatePath(req.Path); err != nil {
		return models.Mem{}, err
	}
	m, err := s.store.Read(req.Path)
	if err != nil {
		return models.Mem{}, err
	}
	if req.IfMatch != "" && req.IfMatch != checksum.Of(m) {
		return models.Mem{}, fmt.Errorf("%w: %s changed since it was read", apperr.ErrConflict, req.Path)
	}
	if req.Content != nil {
		m.Content = *req.Content
	}
	if req.Title != nil {
		m.Title = *req.Title
	}
	if req.Tags != nil {
		m.Tags = *req.Tags
	}
	m.Touch()
	if err := s.store.Write(m); err != nil {
		return models.Mem{}, err
	}
	s.logger.Debug("mem updated", slog.String("path", m.Path))
	return m, nil
}

// Remove deletes a mem.
func (s *Service) Remove(_ context.Context, path string) error {
	if err := storage.ValidatePath(path); err != nil {
		return err
	}
	if err := s.store.Delete(path); err != nil {
		return err
	}
	s.logger.Debug("mem deleted", slog.String("path", path))
	return nil
}

// Archive moves a mem into the archive. force replaces an archived mem at the
// same path.
func (s *Service) Archive(_ context.Context, path string, force bool) error {
	if err := storage.ValidatePath(path); err != nil {
		return err
	}
	if err := s.store.Archive(path, force); err != nil {
		return err
	}
	s.logger.Debug("mem archived", slog.String("path", path))
	return nil
}

// TitleFromPath derives a title from the last path segment, with dashes and
// underscores read as spaces.
func TitleFromPath(path string) string {
	name := path[strings.LastIndexByte(path, '/')+1:]
	return strings.NewReplacer("-", " ", "_", " ").Replace(name)
}

// ParseTags splits a comma-separated list, trimming each tag and dropping
// empty ones.
func ParseTags(csv string) []string {
	var tags []string
	for _, t := range strings.Split(csv, ",") {
		if t = strings.TrimSpace(t); t != "" {
			tags = append(tags, t)
		}
	}
	return tags
}
