// Package repository implements backend access for resume and
// cover-letter rows through the resilient executor.
package repository

import (
	"context"
	"time"

	"github.com/google/uuid"
	supabase "github.com/supabase-community/supabase-go"
	"go.uber.org/zap"

	"resumeforge-backend/internal/config"
	"resumeforge-backend/internal/domain/document"
	"resumeforge-backend/internal/infrastructure/persistence"
	apperrors "resumeforge-backend/pkg/errors"
)

// ResumeStore performs PostgREST operations against the resumes table.
// Every call goes through the resilient executor, so callers get retry,
// backoff and circuit breaking for free.
type ResumeStore struct {
	exec   *persistence.Executor
	table  string
	logger *zap.Logger
}

// NewResumeStore creates a store over the configured resumes table.
func NewResumeStore(exec *persistence.Executor, cfg *config.Config, logger *zap.Logger) *ResumeStore {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &ResumeStore{
		exec:   exec,
		table:  cfg.ResumesTable,
		logger: logger.Named("resume_store"),
	}
}

// ListByUser fetches every document owned by userID.
func (s *ResumeStore) ListByUser(ctx context.Context, userID string) ([]document.Resume, error) {
	var rows []document.Resume
	err := s.exec.ExecuteWithRetry(ctx, "resumes.list", func(c *supabase.Client) error {
		_, err := c.From(s.table).
			Select("*", "", false).
			Eq("user_id", userID).
			ExecuteTo(&rows)
		return err
	})
	if err != nil {
		return nil, err
	}
	return rows, nil
}

// GetByIDs fetches the given documents for userID in one round trip.
// Unknown ids are simply absent from the result; the caller decides
// whether that is an error.
func (s *ResumeStore) GetByIDs(ctx context.Context, userID string, ids []string) ([]document.Resume, error) {
	if len(ids) == 0 {
		return nil, nil
	}

	var rows []document.Resume
	err := s.exec.ExecuteWithRetry(ctx, "resumes.get_by_ids", func(c *supabase.Client) error {
		_, err := c.From(s.table).
			Select("*", "", false).
			Eq("user_id", userID).
			In("id", ids).
			ExecuteTo(&rows)
		return err
	})
	if err != nil {
		return nil, err
	}
	return rows, nil
}

// Insert creates a new document row and returns it as stored.
func (s *ResumeStore) Insert(ctx context.Context, input document.CreateInput) (document.Resume, error) {
	now := time.Now().UTC()
	row := document.Resume{
		ID:        uuid.NewString(),
		UserID:    input.UserID,
		Kind:      input.Kind,
		Title:     input.Title,
		Template:  input.Template,
		Sections:  input.Sections,
		CreatedAt: now,
		UpdatedAt: now,
	}

	var inserted []document.Resume
	err := s.exec.ExecuteWithRetry(ctx, "resumes.insert", func(c *supabase.Client) error {
		_, err := c.From(s.table).
			Insert(row, false, "", "representation", "").
			ExecuteTo(&inserted)
		return err
	})
	if err != nil {
		return document.Resume{}, err
	}
	if len(inserted) == 0 {
		return document.Resume{}, apperrors.NewInternal("insert returned no rows", nil)
	}
	return inserted[0], nil
}

// Update applies a partial update and returns the stored row.
func (s *ResumeStore) Update(ctx context.Context, userID, resumeID string, input document.UpdateInput) (document.Resume, error) {
	patch := map[string]any{
		"updated_at": time.Now().UTC(),
	}
	if input.Title != nil {
		patch["title"] = *input.Title
	}
	if input.Template != nil {
		patch["template"] = *input.Template
	}
	if input.Sections != nil {
		patch["sections"] = *input.Sections
	}

	var updated []document.Resume
	err := s.exec.ExecuteWithRetry(ctx, "resumes.update", func(c *supabase.Client) error {
		_, err := c.From(s.table).
			Update(patch, "representation", "").
			Eq("user_id", userID).
			Eq("id", resumeID).
			ExecuteTo(&updated)
		return err
	})
	if err != nil {
		return document.Resume{}, err
	}
	if len(updated) == 0 {
		return document.Resume{}, apperrors.NewNotFound("resume " + resumeID + " not found")
	}
	return updated[0], nil
}

// GetTemplate fetches one layout template row by name.
func (s *ResumeStore) GetTemplate(ctx context.Context, name string) (document.Template, error) {
	var rows []document.Template
	err := s.exec.ExecuteWithRetry(ctx, "templates.get", func(c *supabase.Client) error {
		_, err := c.From("templates").
			Select("*", "", false).
			Eq("name", name).
			ExecuteTo(&rows)
		return err
	})
	if err != nil {
		return document.Template{}, err
	}
	if len(rows) == 0 {
		return document.Template{}, apperrors.NewNotFound("template " + name + " not found")
	}
	return rows[0], nil
}

// Delete removes a document row. Deleting an absent row is NotFound.
func (s *ResumeStore) Delete(ctx context.Context, userID, resumeID string) error {
	var deleted []document.Resume
	err := s.exec.ExecuteWithRetry(ctx, "resumes.delete", func(c *supabase.Client) error {
		_, err := c.From(s.table).
			Delete("representation", "").
			Eq("user_id", userID).
			Eq("id", resumeID).
			ExecuteTo(&deleted)
		return err
	})
	if err != nil {
		return err
	}
	if len(deleted) == 0 {
		return apperrors.NewNotFound("resume " + resumeID + " not found")
	}
	return nil
}
