package repository

import (
	"context"
	"testing"
	"time"

	"docrelay/store"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMemoryRepositoryLifecycle(t *testing.T) {
	repo := NewMemoryRepository()
	clock := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	repo.now = func() time.Time { return clock }
	ctx := context.Background()

	_, err := repo.GetDocumentByRoom(ctx, "r1")
	assert.ErrorIs(t, err, store.ErrNotFound)

	created, err := repo.CreateDocument(ctx, "r1")
	require.NoError(t, err)
	assert.Equal(t, store.DefaultTitle, created.Title)
	assert.False(t, created.HasContent())

	clock = clock.Add(time.Minute)
	saved, err := repo.UpdateContent(ctx, "r1", "T", "C")
	require.NoError(t, err)
	assert.Equal(t, "T", saved.Title)
	assert.Equal(t, "C", saved.Content.String)
	assert.Equal(t, clock, saved.UpdatedAt)
	assert.Equal(t, created.CreatedAt, saved.CreatedAt)

	titled, err := repo.UpdateTitle(ctx, "r1", "New Title")
	require.NoError(t, err)
	assert.Equal(t, "New Title", titled.Title)
	assert.Equal(t, "C", titled.Content.String)

	got, err := repo.GetDocumentByRoom(ctx, "r1")
	require.NoError(t, err)
	assert.Equal(t, created.ID, got.ID)
	assert.Equal(t, 1, repo.Count("r1"))
}

func TestMemoryRepositoryNotFoundWrites(t *testing.T) {
	repo := NewMemoryRepository()
	ctx := context.Background()

	_, err := repo.UpdateContent(ctx, "nope", "T", "C")
	assert.ErrorIs(t, err, store.ErrNotFound)
	_, err = repo.UpdateTitle(ctx, "nope", "T")
	assert.ErrorIs(t, err, store.ErrNotFound)
	assert.Equal(t, 0, repo.Count("nope"))
}

func TestMemoryRepositoryValidation(t *testing.T) {
	_, err := NewMemoryRepository().CreateDocument(context.Background(), "")
	assert.ErrorIs(t, err, store.ErrValidation)
}

func TestMemoryRepositoryReturnsCopies(t *testing.T) {
	repo := NewMemoryRepository()
	ctx := context.Background()
	doc, err := repo.CreateDocument(ctx, "r1")
	require.NoError(t, err)

	doc.Title = "mutated by caller"
	got, err := repo.GetDocumentByRoom(ctx, "r1")
	require.NoError(t, err)
	assert.Equal(t, store.DefaultTitle, got.Title)
}

func TestMemoryRepositoryCanceledContext(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := NewMemoryRepository().GetDocumentByRoom(ctx, "r1")
	assert.ErrorIs(t, err, context.Canceled)
	assert.Equal(t, "store_error", store.Outcome(err))
}
