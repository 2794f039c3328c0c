package cache

import (
	"time"

	"go.uber.org/zap"

	"resumeforge-backend/internal/domain/document"
)

// Per-cache tuning. One-size-fits-all tuning does not survive contact
// with workloads whose staleness tolerance and object sizes differ this
// much, so each class of cached object gets its own instance.
const (
	resumeListTTL        = 10 * time.Minute
	resumeListMaxBytes   = 16 << 20
	resumeListMaxEntries = 1024

	resumeTTL        = 5 * time.Minute
	resumeMaxBytes   = 32 << 20
	resumeMaxEntries = 4096

	aiResultTTL        = 2 * time.Minute
	aiResultMaxBytes   = 8 << 20
	aiResultMaxEntries = 512

	templateTTL        = time.Hour
	templateMaxBytes   = 4 << 20
	templateMaxEntries = 256
)

// Registry holds the process-scoped cache instances, one per class of
// cached object. It is constructed once at startup and injected into
// the data-access layer; nothing in this package is a package-level
// singleton.
type Registry struct {
	// ResumeLists caches per-user document lists: read-heavy, largest
	// budget, long TTL.
	ResumeLists *Cache[[]document.Resume]
	// Resumes caches single documents at a medium TTL.
	Resumes *Cache[document.Resume]
	// AIResults caches generated summaries and cover-letter drafts:
	// expensive to produce but quickest to go stale, so short TTL and a
	// small budget.
	AIResults *Cache[string]
	// Templates caches rarely-changing layout reference data.
	Templates *Cache[document.Template]
}

// NewRegistry constructs the four tuned cache instances.
func NewRegistry(logger *zap.Logger) *Registry {
	return &Registry{
		ResumeLists: New[[]document.Resume]("resume_lists", Options[[]document.Resume]{
			DefaultTTL: resumeListTTL,
			MaxBytes:   resumeListMaxBytes,
			MaxEntries: resumeListMaxEntries,
			Clone:      cloneResumeList,
		}, logger),
		Resumes: New[document.Resume]("resumes", Options[document.Resume]{
			DefaultTTL: resumeTTL,
			MaxBytes:   resumeMaxBytes,
			MaxEntries: resumeMaxEntries,
			Clone:      document.Resume.Clone,
		}, logger),
		AIResults: New[string]("ai_results", Options[string]{
			DefaultTTL: aiResultTTL,
			MaxBytes:   aiResultMaxBytes,
			MaxEntries: aiResultMaxEntries,
		}, logger),
		Templates: New[document.Template]("templates", Options[document.Template]{
			DefaultTTL: templateTTL,
			MaxBytes:   templateMaxBytes,
			MaxEntries: templateMaxEntries,
		}, logger),
	}
}

// cloneResumeList deep-copies a cached list. Documents and lists are
// reference-typed, so callers and the cache must never share storage;
// the AI-result and template caches hold value types and need no clone.
func cloneResumeList(in []document.Resume) []document.Resume {
	if in == nil {
		return nil
	}
	out := make([]document.Resume, len(in))
	for i := range in {
		out[i] = in[i].Clone()
	}
	return out
}

// InvalidateUser removes every user-scoped entry for userID across the
// resume, resume-list and AI caches. Returns the number of entries
// removed.
func (r *Registry) InvalidateUser(userID string) int {
	pattern := UserPattern(userID)
	count := r.ResumeLists.InvalidatePattern(pattern)
	count += r.Resumes.InvalidatePattern(pattern)
	count += r.AIResults.InvalidatePattern(pattern)
	return count
}

// Stats returns a snapshot of every cache instance, keyed by name.
func (r *Registry) Stats() map[string]Stats {
	return map[string]Stats{
		"resume_lists": r.ResumeLists.Stats(),
		"resumes":      r.Resumes.Stats(),
		"ai_results":   r.AIResults.Stats(),
		"templates":    r.Templates.Stats(),
	}
}

// Destroy stops every cache's background reaper.
func (r *Registry) Destroy() {
	r.ResumeLists.Destroy()
	r.Resumes.Destroy()
	r.AIResults.Destroy()
	r.Templates.Destroy()
}
