package service

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"docrelay/pkg/logger"
	"docrelay/pkg/metrics"
	"docrelay/store"
)

// DefaultTimeout bounds a single store call when none is configured.
const DefaultTimeout = 5 * time.Second

// DocumentStore is the persistence boundary the relay depends on.
type DocumentStore interface {
	CreateDocument(ctx context.Context, roomID string) (*store.Document, error)
	GetDocumentByRoom(ctx context.Context, roomID string) (*store.Document, error)
	UpdateContent(ctx context.Context, roomID, title, content string) (*store.Document, error)
	UpdateTitle(ctx context.Context, roomID, title string) (*store.Document, error)
}

type DocumentService struct {
	Repo    DocumentStore
	Locker  RoomLocker
	Timeout time.Duration
}

func NewDocumentService(repo DocumentStore, locker RoomLocker, timeout time.Duration) *DocumentService {
	if locker == nil {
		locker = NewLocalLocker()
	}
	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	return &DocumentService{Repo: repo, Locker: locker, Timeout: timeout}
}

// LoadOrCreate returns the room's document, creating it when none exists.
// created is true when this call inserted the document. Concurrent callers for
// the same room are serialized so only one of them creates.
func (s *DocumentService) LoadOrCreate(ctx context.Context, roomID string) (doc *store.Document, created bool, err error) {
	if strings.TrimSpace(roomID) == "" {
		return nil, false, fmt.Errorf("load document: roomId is required: %w", store.ErrValidation)
	}

	lockCtx, cancel := context.WithTimeout(ctx, s.Timeout)
	unlock, err := s.Locker.Lock(lockCtx, roomID)
	cancel()
	if err != nil {
		return nil, false, &store.StoreError{Op: "lock", RoomID: roomID, Err: err}
	}
	defer unlock()

	doc, err = s.get(ctx, roomID)
	if err == nil {
		return doc, false, nil
	}
	if !errors.Is(err, store.ErrNotFound) {
		return nil, false, err
	}

	logger.Sugar.Infof("No document for room %s, creating one", roomID)
	doc, err = s.create(ctx, roomID)
	if err != nil {
		return nil, false, err
	}
	metrics.DocumentsCreated.Inc()
	return doc, true, nil
}

// SaveContent overwrites title and content of the room's document.
func (s *DocumentService) SaveContent(ctx context.Context, roomID, title, content string) (*store.Document, error) {
	ctx, cancel := context.WithTimeout(ctx, s.Timeout)
	defer cancel()

	start := time.Now()
	doc, err := s.Repo.UpdateContent(ctx, roomID, title, content)
	metrics.ObserveStore("update_content", store.Outcome(err), start)
	s.logMutation("save", roomID, err)
	return doc, err
}

// UpdateTitle overwrites only the title of the room's document.
func (s *DocumentService) UpdateTitle(ctx context.Context, roomID, title string) (*store.Document, error) {
	ctx, cancel := context.WithTimeout(ctx, s.Timeout)
	defer cancel()

	start := time.Now()
	doc, err := s.Repo.UpdateTitle(ctx, roomID, title)
	metrics.ObserveStore("update_title", store.Outcome(err), start)
	s.logMutation("title update", roomID, err)
	return doc, err
}

func (s *DocumentService) get(ctx context.Context, roomID string) (*store.Document, error) {
	ctx, cancel := context.WithTimeout(ctx, s.Timeout)
	defer cancel()

	start := time.Now()
	doc, err := s.Repo.GetDocumentByRoom(ctx, roomID)
	metrics.ObserveStore("get", store.Outcome(err), start)
	return doc, err
}

func (s *DocumentService) create(ctx context.Context, roomID string) (*store.Document, error) {
	ctx, cancel := context.WithTimeout(ctx, s.Timeout)
	defer cancel()

	start := time.Now()
	doc, err := s.Repo.CreateDocument(ctx, roomID)
	metrics.ObserveStore("create", store.Outcome(err), start)
	return doc, err
}

func (s *DocumentService) logMutation(what, roomID string, err error) {
	switch {
	case err == nil:
		logger.Sugar.Debugf("Document %s for room %s persisted", what, roomID)
	case errors.Is(err, store.ErrNotFound):
		logger.Sugar.Warnf("Document not found while applying %s for room %s", what, roomID)
	default:
		logger.Sugar.Errorf("Failed to apply %s for room %s: %v", what, roomID, err)
	}
}
