package service

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"docrelay/internal/document/repository"
	"docrelay/store"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// slowStore widens the window between "not found" and "create" so unguarded
// callers would both create.
type slowStore struct {
	*repository.MemoryRepository
	delay   time.Duration
	creates atomic.Int32
	failGet error
}

func (s *slowStore) GetDocumentByRoom(ctx context.Context, roomID string) (*store.Document, error) {
	if s.failGet != nil {
		return nil, s.failGet
	}
	time.Sleep(s.delay)
	return s.MemoryRepository.GetDocumentByRoom(ctx, roomID)
}

func (s *slowStore) CreateDocument(ctx context.Context, roomID string) (*store.Document, error) {
	s.creates.Add(1)
	return s.MemoryRepository.CreateDocument(ctx, roomID)
}

func newSlowStore(delay time.Duration) *slowStore {
	return &slowStore{MemoryRepository: repository.NewMemoryRepository(), delay: delay}
}

func TestLoadOrCreateCreatesOnce(t *testing.T) {
	repo := newSlowStore(20 * time.Millisecond)
	svc := NewDocumentService(repo, NewLocalLocker(), time.Second)

	doc, created, err := svc.LoadOrCreate(context.Background(), "r1")
	require.NoError(t, err)
	assert.True(t, created)
	assert.Equal(t, store.DefaultTitle, doc.Title)

	again, created, err := svc.LoadOrCreate(context.Background(), "r1")
	require.NoError(t, err)
	assert.False(t, created)
	assert.Equal(t, doc.ID, again.ID)
	assert.EqualValues(t, 1, repo.creates.Load())
}

func TestLoadOrCreateConcurrentJoins(t *testing.T) {
	repo := newSlowStore(20 * time.Millisecond)
	svc := NewDocumentService(repo, NewLocalLocker(), time.Second)

	const joiners = 8
	var (
		wg      sync.WaitGroup
		created atomic.Int32
	)
	for i := 0; i < joiners; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, c, err := svc.LoadOrCreate(context.Background(), "r1")
			assert.NoError(t, err)
			if c {
				created.Add(1)
			}
		}()
	}
	wg.Wait()

	assert.EqualValues(t, 1, created.Load())
	assert.Equal(t, 1, repo.Count("r1"))
}

func TestLoadOrCreateValidation(t *testing.T) {
	svc := NewDocumentService(newSlowStore(0), nil, 0)

	_, _, err := svc.LoadOrCreate(context.Background(), "")
	assert.ErrorIs(t, err, store.ErrValidation)
}

func TestLoadOrCreateStoreFailureDoesNotCreate(t *testing.T) {
	repo := newSlowStore(0)
	repo.failGet = &store.StoreError{Op: "get", RoomID: "r1", Err: errors.New("conn reset")}
	svc := NewDocumentService(repo, nil, time.Second)

	_, created, err := svc.LoadOrCreate(context.Background(), "r1")
	assert.False(t, created)
	assert.Equal(t, "store_error", store.Outcome(err))
	assert.EqualValues(t, 0, repo.creates.Load())
}

func TestSaveContentAndTitle(t *testing.T) {
	repo := newSlowStore(0)
	svc := NewDocumentService(repo, nil, time.Second)
	ctx := context.Background()

	_, err := svc.SaveContent(ctx, "r1", "T", "C")
	assert.ErrorIs(t, err, store.ErrNotFound)

	_, _, err = svc.LoadOrCreate(ctx, "r1")
	require.NoError(t, err)

	doc, err := svc.SaveContent(ctx, "r1", "T", "C")
	require.NoError(t, err)
	assert.Equal(t, "T", doc.Title)
	assert.Equal(t, "C", doc.Content.String)

	doc, err = svc.UpdateTitle(ctx, "r1", "New Title")
	require.NoError(t, err)
	assert.Equal(t, "New Title", doc.Title)
	assert.Equal(t, "C", doc.Content.String)
}

func TestStoreCallsAreBounded(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	mock.ExpectQuery("UPDATE documents SET title").
		WillDelayFor(time.Second).
		WillReturnRows(sqlmock.NewRows([]string{"id"}))

	svc := NewDocumentService(repository.NewDocumentRepository(db), nil, 20*time.Millisecond)

	start := time.Now()
	_, err = svc.UpdateTitle(context.Background(), "r1", "x")
	assert.Error(t, err)
	assert.Less(t, time.Since(start), 500*time.Millisecond)
	assert.Equal(t, "store_error", store.Outcome(err))
}
