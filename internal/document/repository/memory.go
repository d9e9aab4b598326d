package repository

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	"docrelay/store"

	"github.com/google/uuid"
)

// MemoryRepository keeps documents in process memory. It is meant for local
// development and tests; nothing survives a restart.
type MemoryRepository struct {
	mu   sync.Mutex
	docs []*store.Document // creation order
	now  func() time.Time
}

func NewMemoryRepository() *MemoryRepository {
	return &MemoryRepository{now: time.Now}
}

func (r *MemoryRepository) CreateDocument(ctx context.Context, roomID string) (*store.Document, error) {
	if strings.TrimSpace(roomID) == "" {
		return nil, fmt.Errorf("create document: roomId is required: %w", store.ErrValidation)
	}
	if err := ctx.Err(); err != nil {
		return nil, &store.StoreError{Op: "create", RoomID: roomID, Err: err}
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	now := r.now()
	doc := &store.Document{
		ID:        uuid.NewString(),
		Title:     store.DefaultTitle,
		RoomID:    roomID,
		CreatedAt: now,
		UpdatedAt: now,
	}
	r.docs = append(r.docs, doc)
	cp := *doc
	return &cp, nil
}

func (r *MemoryRepository) GetDocumentByRoom(ctx context.Context, roomID string) (*store.Document, error) {
	return r.mutate(ctx, "get", roomID, nil)
}

func (r *MemoryRepository) UpdateContent(ctx context.Context, roomID, title, content string) (*store.Document, error) {
	return r.mutate(ctx, "update_content", roomID, func(d *store.Document) {
		d.Title = title
		d.Content.String, d.Content.Valid = content, true
	})
}

func (r *MemoryRepository) UpdateTitle(ctx context.Context, roomID, title string) (*store.Document, error) {
	return r.mutate(ctx, "update_title", roomID, func(d *store.Document) {
		d.Title = title
	})
}

// Count returns how many documents exist for roomID.
func (r *MemoryRepository) Count(roomID string) int {
	r.mu.Lock()
	defer r.mu.Unlock()
	n := 0
	for _, d := range r.docs {
		if d.RoomID == roomID {
			n++
		}
	}
	return n
}

func (r *MemoryRepository) Ping(ctx context.Context) error {
	return ctx.Err()
}

// mutate applies fn to the oldest document of the room and returns a copy.
// A nil fn is a read.
func (r *MemoryRepository) mutate(ctx context.Context, op, roomID string, fn func(*store.Document)) (*store.Document, error) {
	if err := ctx.Err(); err != nil {
		return nil, &store.StoreError{Op: op, RoomID: roomID, Err: err}
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	for _, d := range r.docs {
		if d.RoomID != roomID {
			continue
		}
		if fn != nil {
			fn(d)
			d.UpdatedAt = r.now()
		}
		cp := *d
		return &cp, nil
	}
	return nil, fmt.Errorf("room %s: %w", roomID, store.ErrNotFound)
}
