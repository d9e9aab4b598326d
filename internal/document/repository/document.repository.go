package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"

	"docrelay/pkg/logger"
	"docrelay/store"

	"github.com/google/uuid"
)

const documentColumns = `id, title, content, room_id, created_at, updated_at`

// liveDocument picks the document a room reads and writes. room_id is not
// unique, so the oldest row wins.
const liveDocument = `SELECT id FROM documents WHERE room_id = $1 ORDER BY created_at ASC, id ASC LIMIT 1`

type DocumentRepository struct {
	DB *sql.DB
}

func NewDocumentRepository(db *sql.DB) *DocumentRepository {
	return &DocumentRepository{DB: db}
}

func (r *DocumentRepository) CreateDocument(ctx context.Context, roomID string) (*store.Document, error) {
	if strings.TrimSpace(roomID) == "" {
		return nil, fmt.Errorf("create document: roomId is required: %w", store.ErrValidation)
	}

	doc := &store.Document{
		ID:     uuid.NewString(),
		Title:  store.DefaultTitle,
		RoomID: roomID,
	}
	err := r.DB.QueryRowContext(ctx,
		`INSERT INTO documents (id, title, room_id, created_at, updated_at) VALUES ($1, $2, $3, NOW(), NOW())
		RETURNING created_at, updated_at`,
		doc.ID, doc.Title, doc.RoomID,
	).Scan(&doc.CreatedAt, &doc.UpdatedAt)
	if err != nil {
		logger.Sugar.Errorf("Failed to create document for room %s: %v", roomID, err)
		return nil, &store.StoreError{Op: "create", RoomID: roomID, Err: err}
	}
	return doc, nil
}

func (r *DocumentRepository) GetDocumentByRoom(ctx context.Context, roomID string) (*store.Document, error) {
	row := r.DB.QueryRowContext(ctx,
		`SELECT `+documentColumns+` FROM documents WHERE room_id = $1 ORDER BY created_at ASC, id ASC LIMIT 1`,
		roomID)
	return scanDocument(row, "get", roomID)
}

func (r *DocumentRepository) UpdateContent(ctx context.Context, roomID, title, content string) (*store.Document, error) {
	row := r.DB.QueryRowContext(ctx,
		`UPDATE documents SET title = $2, content = $3, updated_at = NOW()
		WHERE id = (`+liveDocument+`)
		RETURNING `+documentColumns,
		roomID, title, content)
	return scanDocument(row, "update_content", roomID)
}

func (r *DocumentRepository) UpdateTitle(ctx context.Context, roomID, title string) (*store.Document, error) {
	row := r.DB.QueryRowContext(ctx,
		`UPDATE documents SET title = $2, updated_at = NOW()
		WHERE id = (`+liveDocument+`)
		RETURNING `+documentColumns,
		roomID, title)
	return scanDocument(row, "update_title", roomID)
}

// Ping reports whether the database is reachable.
func (r *DocumentRepository) Ping(ctx context.Context) error {
	return r.DB.PingContext(ctx)
}

func scanDocument(row *sql.Row, op, roomID string) (*store.Document, error) {
	var doc store.Document
	err := row.Scan(&doc.ID, &doc.Title, &doc.Content, &doc.RoomID, &doc.CreatedAt, &doc.UpdatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("room %s: %w", roomID, store.ErrNotFound)
	}
	if err != nil {
		logger.Sugar.Errorf("Failed to %s document for room %s: %v", op, roomID, err)
		return nil, &store.StoreError{Op: op, RoomID: roomID, Err: err}
	}
	return &doc, nil
}
