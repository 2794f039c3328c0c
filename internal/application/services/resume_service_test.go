package services

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"resumeforge-backend/internal/domain/document"
	"resumeforge-backend/internal/infrastructure/cache"
	apperrors "resumeforge-backend/pkg/errors"
)

// fakeStore is an in-memory DocumentStore that records every backend
// call so tests can assert what the cache layer actually fetched.
type fakeStore struct {
	mu        sync.Mutex
	docs      map[string]map[string]document.Resume
	templates map[string]document.Template

	listCalls     int
	getByIDsCalls [][]string
	insertCalls   int
	updateCalls   int
	deleteCalls   int
	templateCalls int
	nextID        int

	listDelay time.Duration
	listErr   error
	getErr    error
	insertErr error
	updateErr error
	deleteErr error
}

func newFakeStore() *fakeStore {
	return &fakeStore{
		docs:      make(map[string]map[string]document.Resume),
		templates: make(map[string]document.Template),
	}
}

func (f *fakeStore) seed(doc document.Resume) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.docs[doc.UserID] == nil {
		f.docs[doc.UserID] = make(map[string]document.Resume)
	}
	f.docs[doc.UserID][doc.ID] = doc
}

func (f *fakeStore) ListByUser(_ context.Context, userID string) ([]document.Resume, error) {
	f.mu.Lock()
	f.listCalls++
	delay, err := f.listDelay, f.listErr
	f.mu.Unlock()

	if delay > 0 {
		time.Sleep(delay)
	}
	if err != nil {
		return nil, err
	}

	f.mu.Lock()
	defer f.mu.Unlock()
	var rows []document.Resume
	for _, doc := range f.docs[userID] {
		// Freshly decoded rows each call, as PostgREST returns them.
		rows = append(rows, doc.Clone())
	}
	return rows, nil
}

func (f *fakeStore) GetByIDs(_ context.Context, userID string, ids []string) ([]document.Resume, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	f.getByIDsCalls = append(f.getByIDsCalls, append([]string(nil), ids...))
	if f.getErr != nil {
		return nil, f.getErr
	}

	var rows []document.Resume
	for _, id := range ids {
		if doc, ok := f.docs[userID][id]; ok {
			rows = append(rows, doc.Clone())
		}
	}
	return rows, nil
}

func (f *fakeStore) Insert(_ context.Context, input document.CreateInput) (document.Resume, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	f.insertCalls++
	if f.insertErr != nil {
		return document.Resume{}, f.insertErr
	}

	f.nextID++
	doc := document.Resume{
		ID:       fmt.Sprintf("gen-%d", f.nextID),
		UserID:   input.UserID,
		Kind:     input.Kind,
		Title:    input.Title,
		Template: input.Template,
		Sections: input.Sections,
	}
	if f.docs[doc.UserID] == nil {
		f.docs[doc.UserID] = make(map[string]document.Resume)
	}
	f.docs[doc.UserID][doc.ID] = doc
	return doc, nil
}

func (f *fakeStore) Update(_ context.Context, userID, resumeID string, input document.UpdateInput) (document.Resume, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	f.updateCalls++
	if f.updateErr != nil {
		return document.Resume{}, f.updateErr
	}

	doc, ok := f.docs[userID][resumeID]
	if !ok {
		return document.Resume{}, apperrors.NewNotFound("resume " + resumeID + " not found")
	}
	if input.Title != nil {
		doc.Title = *input.Title
	}
	if input.Template != nil {
		doc.Template = *input.Template
	}
	if input.Sections != nil {
		doc.Sections = *input.Sections
	}
	f.docs[userID][resumeID] = doc
	return doc, nil
}

func (f *fakeStore) Delete(_ context.Context, userID, resumeID string) error {
	f.mu.Lock()
	defer f.mu.Unlock()

	f.deleteCalls++
	if f.deleteErr != nil {
		return f.deleteErr
	}
	if _, ok := f.docs[userID][resumeID]; !ok {
		return apperrors.NewNotFound("resume " + resumeID + " not found")
	}
	delete(f.docs[userID], resumeID)
	return nil
}

func (f *fakeStore) GetTemplate(_ context.Context, name string) (document.Template, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	f.templateCalls++
	tpl, ok := f.templates[name]
	if !ok {
		return document.Template{}, apperrors.NewNotFound("template " + name + " not found")
	}
	return tpl, nil
}

func (f *fakeStore) counts() (list, insert, update, del, tpl int, getByIDs [][]string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.listCalls, f.insertCalls, f.updateCalls, f.deleteCalls, f.templateCalls,
		append([][]string(nil), f.getByIDsCalls...)
}

func newServiceFixture(t *testing.T) (*ResumeService, *fakeStore) {
	t.Helper()

	store := newFakeStore()
	caches := cache.NewRegistry(zap.NewNop())
	t.Cleanup(caches.Destroy)

	svc := NewResumeService(store, caches, 10*time.Millisecond, zap.NewNop())
	return svc, store
}

func TestResumeService_GetList_CachesResult(t *testing.T) {
	svc, store := newServiceFixture(t)
	store.seed(document.Resume{ID: "r1", UserID: "u1", Kind: document.KindResume, Title: "Backend Engineer"})

	first, err := svc.GetList(context.Background(), "u1")
	require.NoError(t, err)
	require.Len(t, first, 1)

	second, err := svc.GetList(context.Background(), "u1")
	require.NoError(t, err)
	assert.Equal(t, first, second)

	listCalls, _, _, _, _, _ := store.counts()
	assert.Equal(t, 1, listCalls, "second read must be served from cache")
}

func TestResumeService_GetList_ConcurrentMissesShareOneFetch(t *testing.T) {
	svc, store := newServiceFixture(t)
	store.seed(document.Resume{ID: "r1", UserID: "u1", Kind: document.KindResume, Title: "Backend Engineer"})
	store.listDelay = 30 * time.Millisecond

	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			rows, err := svc.GetList(context.Background(), "u1")
			assert.NoError(t, err)
			assert.Len(t, rows, 1)
		}()
	}
	wg.Wait()

	listCalls, _, _, _, _, _ := store.counts()
	assert.Equal(t, 1, listCalls)
}

func TestResumeService_GetList_ErrorIsNotCached(t *testing.T) {
	svc, store := newServiceFixture(t)
	store.listErr = errors.New("connection reset by peer")

	_, err := svc.GetList(context.Background(), "u1")
	require.Error(t, err)

	store.mu.Lock()
	store.listErr = nil
	store.mu.Unlock()
	store.seed(document.Resume{ID: "r1", UserID: "u1", Kind: document.KindResume, Title: "Backend Engineer"})

	rows, err := svc.GetList(context.Background(), "u1")
	require.NoError(t, err)
	assert.Len(t, rows, 1)
}

func TestResumeService_GetOne_CachesResult(t *testing.T) {
	svc, store := newServiceFixture(t)
	store.seed(document.Resume{ID: "r1", UserID: "u1", Kind: document.KindResume, Title: "Backend Engineer"})

	doc, err := svc.GetOne(context.Background(), "u1", "r1")
	require.NoError(t, err)
	assert.Equal(t, "Backend Engineer", doc.Title)

	_, err = svc.GetOne(context.Background(), "u1", "r1")
	require.NoError(t, err)

	_, _, _, _, _, getByIDs := store.counts()
	assert.Len(t, getByIDs, 1, "second read must be served from cache")
}

func TestResumeService_GetOne_NotFound(t *testing.T) {
	svc, _ := newServiceFixture(t)

	_, err := svc.GetOne(context.Background(), "u1", "missing")
	assert.True(t, apperrors.IsNotFound(err))
}

func TestResumeService_GetOne_MissesShareABatch(t *testing.T) {
	svc, store := newServiceFixture(t)
	store.seed(document.Resume{ID: "r1", UserID: "u1", Kind: document.KindResume, Title: "One"})
	store.seed(document.Resume{ID: "r2", UserID: "u1", Kind: document.KindResume, Title: "Two"})

	var wg sync.WaitGroup
	for _, id := range []string{"r1", "r2"} {
		wg.Add(1)
		go func(id string) {
			defer wg.Done()
			_, err := svc.GetOne(context.Background(), "u1", id)
			assert.NoError(t, err)
		}(id)
	}
	wg.Wait()

	_, _, _, _, _, getByIDs := store.counts()
	require.Len(t, getByIDs, 1, "misses inside one window must share a backend call")
	assert.ElementsMatch(t, []string{"r1", "r2"}, getByIDs[0])
}

func TestResumeService_MutatedResultsDoNotCorruptCache(t *testing.T) {
	svc, store := newServiceFixture(t)
	store.seed(document.Resume{
		ID: "r1", UserID: "u1", Kind: document.KindResume, Title: "Original",
		Sections: map[string]any{"summary": "Original"},
	})

	first, err := svc.GetList(context.Background(), "u1")
	require.NoError(t, err)
	require.Len(t, first, 1)

	first[0].Title = "Corrupted"
	first[0].Sections["summary"] = "Corrupted"

	second, err := svc.GetList(context.Background(), "u1")
	require.NoError(t, err)
	require.Len(t, second, 1)
	assert.Equal(t, "Original", second[0].Title)
	assert.Equal(t, "Original", second[0].Sections["summary"])

	listCalls, _, _, _, _, _ := store.counts()
	assert.Equal(t, 1, listCalls, "the intact entry must still be served from cache")

	// Single-document reads are isolated the same way.
	doc, err := svc.GetOne(context.Background(), "u1", "r1")
	require.NoError(t, err)
	doc.Sections["summary"] = "Corrupted"

	again, err := svc.GetOne(context.Background(), "u1", "r1")
	require.NoError(t, err)
	assert.Equal(t, "Original", again.Sections["summary"])
}

func TestResumeService_GetMultiple_FetchesOnlyUncached(t *testing.T) {
	svc, store := newServiceFixture(t)
	store.seed(document.Resume{ID: "r1", UserID: "u1", Kind: document.KindResume, Title: "One"})
	store.seed(document.Resume{ID: "r2", UserID: "u1", Kind: document.KindResume, Title: "Two"})

	// Warm r1 through the single-document path.
	_, err := svc.GetOne(context.Background(), "u1", "r1")
	require.NoError(t, err)

	rows, err := svc.GetMultiple(context.Background(), "u1", []string{"r1", "r2", "ghost"})
	require.NoError(t, err)

	// Input order, unknown ids omitted.
	require.Len(t, rows, 2)
	assert.Equal(t, "r1", rows[0].ID)
	assert.Equal(t, "r2", rows[1].ID)

	_, _, _, _, _, getByIDs := store.counts()
	require.Len(t, getByIDs, 2)
	assert.ElementsMatch(t, []string{"r2", "ghost"}, getByIDs[1], "cached ids must not be refetched")
}

func TestResumeService_GetMultiple_AllCachedSkipsBackend(t *testing.T) {
	svc, store := newServiceFixture(t)
	store.seed(document.Resume{ID: "r1", UserID: "u1", Kind: document.KindResume, Title: "One"})

	_, err := svc.GetOne(context.Background(), "u1", "r1")
	require.NoError(t, err)

	rows, err := svc.GetMultiple(context.Background(), "u1", []string{"r1"})
	require.NoError(t, err)
	assert.Len(t, rows, 1)

	_, _, _, _, _, getByIDs := store.counts()
	assert.Len(t, getByIDs, 1)
}

func TestResumeService_Create_ValidatesInput(t *testing.T) {
	svc, store := newServiceFixture(t)

	_, err := svc.Create(context.Background(), document.CreateInput{
		UserID: "u1",
		Kind:   "novel",
		Title:  "Bad Kind",
	})
	assert.True(t, apperrors.IsValidation(err))

	_, insertCalls, _, _, _, _ := store.counts()
	assert.Equal(t, 0, insertCalls, "invalid input must not reach the backend")
}

func TestResumeService_Create_InvalidatesListCache(t *testing.T) {
	svc, store := newServiceFixture(t)
	store.seed(document.Resume{ID: "r1", UserID: "u1", Kind: document.KindResume, Title: "One"})

	_, err := svc.GetList(context.Background(), "u1")
	require.NoError(t, err)

	doc, err := svc.Create(context.Background(), document.CreateInput{
		UserID: "u1",
		Kind:   document.KindResume,
		Title:  "Two",
	})
	require.NoError(t, err)
	require.NotEmpty(t, doc.ID)

	rows, err := svc.GetList(context.Background(), "u1")
	require.NoError(t, err)
	assert.Len(t, rows, 2, "list read after create must see the new document")

	listCalls, _, _, _, _, _ := store.counts()
	assert.Equal(t, 2, listCalls)
}

func TestResumeService_Update_InvalidatesDocumentAndList(t *testing.T) {
	svc, store := newServiceFixture(t)
	store.seed(document.Resume{ID: "r1", UserID: "u1", Kind: document.KindResume, Title: "Old"})

	// Warm both caches.
	_, err := svc.GetOne(context.Background(), "u1", "r1")
	require.NoError(t, err)
	_, err = svc.GetList(context.Background(), "u1")
	require.NoError(t, err)

	title := "New"
	_, err = svc.Update(context.Background(), "u1", "r1", document.UpdateInput{Title: &title})
	require.NoError(t, err)

	doc, err := svc.GetOne(context.Background(), "u1", "r1")
	require.NoError(t, err)
	assert.Equal(t, "New", doc.Title, "read after update must not see the stale value")

	rows, err := svc.GetList(context.Background(), "u1")
	require.NoError(t, err)
	require.Len(t, rows, 1)
	assert.Equal(t, "New", rows[0].Title)
}

func TestResumeService_Update_FailureLeavesCacheIntact(t *testing.T) {
	svc, store := newServiceFixture(t)
	store.seed(document.Resume{ID: "r1", UserID: "u1", Kind: document.KindResume, Title: "Old"})

	_, err := svc.GetOne(context.Background(), "u1", "r1")
	require.NoError(t, err)

	store.mu.Lock()
	store.updateErr = errors.New("connection reset by peer")
	store.mu.Unlock()

	title := "New"
	_, err = svc.Update(context.Background(), "u1", "r1", document.UpdateInput{Title: &title})
	require.Error(t, err)

	// Last-known-good value still served, no backend round trip.
	doc, err := svc.GetOne(context.Background(), "u1", "r1")
	require.NoError(t, err)
	assert.Equal(t, "Old", doc.Title)

	_, _, _, _, _, getByIDs := store.counts()
	assert.Len(t, getByIDs, 1)
}

func TestResumeService_Delete_InvalidatesDocumentAndList(t *testing.T) {
	svc, store := newServiceFixture(t)
	store.seed(document.Resume{ID: "r1", UserID: "u1", Kind: document.KindResume, Title: "One"})

	_, err := svc.GetOne(context.Background(), "u1", "r1")
	require.NoError(t, err)
	_, err = svc.GetList(context.Background(), "u1")
	require.NoError(t, err)

	require.NoError(t, svc.Delete(context.Background(), "u1", "r1"))

	_, err = svc.GetOne(context.Background(), "u1", "r1")
	assert.True(t, apperrors.IsNotFound(err))

	rows, err := svc.GetList(context.Background(), "u1")
	require.NoError(t, err)
	assert.Empty(t, rows)
}

func TestResumeService_InvalidateUser_IsScoped(t *testing.T) {
	svc, store := newServiceFixture(t)
	store.seed(document.Resume{ID: "r1", UserID: "u1", Kind: document.KindResume, Title: "One"})
	store.seed(document.Resume{ID: "r2", UserID: "u2", Kind: document.KindResume, Title: "Two"})

	for _, u := range []string{"u1", "u2"} {
		_, err := svc.GetList(context.Background(), u)
		require.NoError(t, err)
	}
	_, err := svc.GetOne(context.Background(), "u1", "r1")
	require.NoError(t, err)

	removed := svc.InvalidateUser("u1")
	assert.Equal(t, 2, removed)

	// u2's cache entry survives.
	_, err = svc.GetList(context.Background(), "u2")
	require.NoError(t, err)
	listCalls, _, _, _, _, _ := store.counts()
	assert.Equal(t, 2, listCalls)
}

func TestResumeService_GetTemplate_Caches(t *testing.T) {
	svc, store := newServiceFixture(t)
	store.templates["modern"] = document.Template{Name: "modern", DisplayName: "Modern", PageSize: "A4"}

	for i := 0; i < 3; i++ {
		tpl, err := svc.GetTemplate(context.Background(), "modern")
		require.NoError(t, err)
		assert.Equal(t, "Modern", tpl.DisplayName)
	}

	_, _, _, _, tplCalls, _ := store.counts()
	assert.Equal(t, 1, tplCalls)
}

func TestResumeService_CachedAIResult(t *testing.T) {
	svc, _ := newServiceFixture(t)

	produced := 0
	produce := func(context.Context) (string, error) {
		produced++
		return "generated summary", nil
	}

	for i := 0; i < 3; i++ {
		text, err := svc.CachedAIResult(context.Background(), "u1", "hash1", produce)
		require.NoError(t, err)
		assert.Equal(t, "generated summary", text)
	}
	assert.Equal(t, 1, produced)

	// A different prompt hash is a different key.
	_, err := svc.CachedAIResult(context.Background(), "u1", "hash2", produce)
	require.NoError(t, err)
	assert.Equal(t, 2, produced)
}

func TestResumeService_BatcherMetrics(t *testing.T) {
	svc, store := newServiceFixture(t)
	store.seed(document.Resume{ID: "r1", UserID: "u1", Kind: document.KindResume, Title: "One"})

	_, err := svc.GetOne(context.Background(), "u1", "r1")
	require.NoError(t, err)

	metrics := svc.BatcherMetrics()
	assert.Equal(t, int64(1), metrics.TotalBatches)
	assert.Equal(t, int64(1), metrics.TotalRequests)
}
