// Package services exposes the cached data-access contract the rest of
// the application consumes. Reads probe the cache registry before
// touching the backend; writes go to the backend first and invalidate
// on confirmed success.
package services

import (
	"context"
	"time"

	"github.com/go-playground/validator/v10"
	"go.uber.org/zap"
	"golang.org/x/sync/singleflight"

	"resumeforge-backend/internal/application/loaders"
	"resumeforge-backend/internal/domain/document"
	"resumeforge-backend/internal/infrastructure/cache"
	apperrors "resumeforge-backend/pkg/errors"
)

// DocumentStore is the backend contract the service composes with the
// cache registry. Implemented by repository.ResumeStore.
type DocumentStore interface {
	ListByUser(ctx context.Context, userID string) ([]document.Resume, error)
	GetByIDs(ctx context.Context, userID string, ids []string) ([]document.Resume, error)
	Insert(ctx context.Context, input document.CreateInput) (document.Resume, error)
	Update(ctx context.Context, userID, resumeID string, input document.UpdateInput) (document.Resume, error)
	Delete(ctx context.Context, userID, resumeID string) error
	GetTemplate(ctx context.Context, name string) (document.Template, error)
}

// documentKey identifies one document inside a batch window.
type documentKey struct {
	UserID   string
	ResumeID string
}

// ResumeService is the public read/write/invalidate surface over the
// caches, the batcher and the backend store. Cache misses are never
// errors, backend errors are never masked by stale cache values, and
// mutations invalidate rather than update the affected keys.
type ResumeService struct {
	store    DocumentStore
	caches   *cache.Registry
	batcher  *loaders.Batcher[documentKey, document.Resume]
	group    singleflight.Group
	validate *validator.Validate
	logger   *zap.Logger
}

// NewResumeService wires the service. batchWindow controls how long
// single-document misses wait to be coalesced into one backend call.
func NewResumeService(store DocumentStore, caches *cache.Registry, batchWindow time.Duration, logger *zap.Logger) *ResumeService {
	if logger == nil {
		logger = zap.NewNop()
	}

	s := &ResumeService{
		store:    store,
		caches:   caches,
		validate: validator.New(),
		logger:   logger.Named("resume_service"),
	}
	s.batcher = loaders.NewBatcher(s.fetchBatch, batchWindow, 25, logger)

	return s
}

// fetchBatch resolves one batch window's keys, grouped per user so each
// user costs one backend round trip. Missing documents map to a zero
// value; GetOne translates that into NotFound.
func (s *ResumeService) fetchBatch(ctx context.Context, keys []documentKey) (map[documentKey]document.Resume, error) {
	byUser := make(map[string][]string)
	for _, key := range keys {
		byUser[key.UserID] = append(byUser[key.UserID], key.ResumeID)
	}

	results := make(map[documentKey]document.Resume, len(keys))
	for userID, ids := range byUser {
		rows, err := s.store.GetByIDs(ctx, userID, ids)
		if err != nil {
			return nil, err
		}
		found := make(map[string]document.Resume, len(rows))
		for _, row := range rows {
			found[row.ID] = row
		}
		for _, id := range ids {
			results[documentKey{UserID: userID, ResumeID: id}] = found[id]
		}
	}

	return results, nil
}

// GetList returns every document for userID, serving from the list
// cache when possible. Concurrent misses on the same user share one
// backend fetch.
func (s *ResumeService) GetList(ctx context.Context, userID string) ([]document.Resume, error) {
	key := cache.ResumeListKey(userID)
	if list, ok := s.caches.ResumeLists.Get(key); ok {
		return list, nil
	}

	v, err, _ := s.group.Do(key, func() (any, error) {
		rows, err := s.store.ListByUser(ctx, userID)
		if err != nil {
			return nil, err
		}
		s.caches.ResumeLists.Set(key, rows, 0)
		return rows, nil
	})
	if err != nil {
		return nil, err
	}
	return v.([]document.Resume), nil
}

// GetOne returns a single document, serving from the document cache
// when possible. Misses are coalesced through the batcher and
// deduplicated per key.
func (s *ResumeService) GetOne(ctx context.Context, userID, resumeID string) (document.Resume, error) {
	key := cache.ResumeKey(userID, resumeID)
	if doc, ok := s.caches.Resumes.Get(key); ok {
		return doc, nil
	}

	v, err, _ := s.group.Do(key, func() (any, error) {
		doc, err := s.batcher.Load(ctx, documentKey{UserID: userID, ResumeID: resumeID})
		if err != nil {
			return nil, err
		}
		if doc.ID == "" {
			return nil, apperrors.NewNotFound("resume " + resumeID + " not found")
		}
		s.caches.Resumes.Set(key, doc, 0)
		return doc, nil
	})
	if err != nil {
		return document.Resume{}, err
	}
	return v.(document.Resume), nil
}

// GetMultiple returns the requested documents. Uncached ids go through
// the batcher, so they share a window and a backend round trip with any
// concurrent single-document misses. Ids the backend does not know are
// omitted from the result.
func (s *ResumeService) GetMultiple(ctx context.Context, userID string, ids []string) ([]document.Resume, error) {
	cached := make(map[string]document.Resume, len(ids))
	uncached := make([]documentKey, 0, len(ids))
	for _, id := range ids {
		if doc, ok := s.caches.Resumes.Get(cache.ResumeKey(userID, id)); ok {
			cached[id] = doc
		} else {
			uncached = append(uncached, documentKey{UserID: userID, ResumeID: id})
		}
	}

	if len(uncached) > 0 {
		fetched, err := s.batcher.LoadMany(ctx, uncached)
		if err != nil {
			return nil, err
		}
		for key, doc := range fetched {
			if doc.ID == "" {
				// Zero value marks an id the backend does not know.
				continue
			}
			s.caches.Resumes.Set(cache.ResumeKey(userID, doc.ID), doc, 0)
			cached[key.ResumeID] = doc
		}
	}

	results := make([]document.Resume, 0, len(ids))
	for _, id := range ids {
		if doc, ok := cached[id]; ok {
			results = append(results, doc)
		}
	}
	return results, nil
}

// Create inserts a new document. Only a confirmed insert invalidates
// the user's list cache; a failed mutation leaves last-known-good cache
// state untouched.
func (s *ResumeService) Create(ctx context.Context, input document.CreateInput) (document.Resume, error) {
	if err := s.validate.Struct(input); err != nil {
		return document.Resume{}, apperrors.NewValidation(err.Error())
	}

	doc, err := s.store.Insert(ctx, input)
	if err != nil {
		return document.Resume{}, err
	}

	s.caches.ResumeLists.Delete(cache.ResumeListKey(input.UserID))
	return doc, nil
}

// Update applies a partial update, then invalidates the document and
// list keys. Invalidation over write-through: the next read pays one
// miss instead of risking a stale write.
func (s *ResumeService) Update(ctx context.Context, userID, resumeID string, input document.UpdateInput) (document.Resume, error) {
	if err := s.validate.Struct(input); err != nil {
		return document.Resume{}, apperrors.NewValidation(err.Error())
	}

	doc, err := s.store.Update(ctx, userID, resumeID, input)
	if err != nil {
		return document.Resume{}, err
	}

	s.caches.Resumes.Delete(cache.ResumeKey(userID, resumeID))
	s.caches.ResumeLists.Delete(cache.ResumeListKey(userID))
	return doc, nil
}

// Delete removes a document, then invalidates the document and list keys.
func (s *ResumeService) Delete(ctx context.Context, userID, resumeID string) error {
	if err := s.store.Delete(ctx, userID, resumeID); err != nil {
		return err
	}

	s.caches.Resumes.Delete(cache.ResumeKey(userID, resumeID))
	s.caches.ResumeLists.Delete(cache.ResumeListKey(userID))
	return nil
}

// InvalidateUser removes every cached entry for userID. Used after
// operations that touch many documents at once, such as account
// deletion. Returns the number of entries removed.
func (s *ResumeService) InvalidateUser(userID string) int {
	return s.caches.InvalidateUser(userID)
}

// BatcherMetrics exposes batching counters for the stats endpoint.
func (s *ResumeService) BatcherMetrics() loaders.BatcherMetrics {
	return s.batcher.GetMetrics()
}

// GetTemplate returns layout reference data through the template cache.
func (s *ResumeService) GetTemplate(ctx context.Context, name string) (document.Template, error) {
	return s.caches.Templates.GetOrSet(ctx, cache.TemplateKey(name), func(ctx context.Context) (document.Template, error) {
		return s.store.GetTemplate(ctx, name)
	}, 0)
}

// CachedAIResult returns the cached output of an expensive AI call, or
// runs produce and caches its result. The AI call itself lives outside
// this layer; promptHash identifies the prompt that produced the text.
func (s *ResumeService) CachedAIResult(ctx context.Context, userID, promptHash string, produce func(context.Context) (string, error)) (string, error) {
	return s.caches.AIResults.GetOrSet(ctx, cache.AIResultKey(userID, promptHash), produce, 0)
}
