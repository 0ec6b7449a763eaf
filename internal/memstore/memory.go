package memstore

import (
	"context"
	"errors"
	"sort"
	"sync"

	"github.com/google/uuid"

	"github.com/DeafMist/headline-radar/internal/models"
)

// Store is an in-memory headline collection with the same paging order as
// the Elasticsearch index (ascending id).
type Store struct {
	mu   sync.RWMutex
	docs map[string]models.Headline
	ids  []string // sorted
}

// New creates an empty store.
func New() *Store {
	return &Store{docs: make(map[string]models.Headline)}
}

// InsertMany stores each document under a fresh UUID.
func (s *Store) InsertMany(ctx context.Context, docs []models.Headline) (int, error) {
	if err := ctx.Err(); err != nil {
		return 0, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	for _, doc := range docs {
		doc.ID = uuid.NewString()
		s.docs[doc.ID] = copyHeadline(doc)
		s.insertID(doc.ID)
	}
	return len(docs), nil
}

// UpdateMany replaces documents by id. Unknown ids are created, like an
// index action, but only replacements of existing records are counted.
func (s *Store) UpdateMany(ctx context.Context, docs []models.Headline) (int, error) {
	if err := ctx.Err(); err != nil {
		return 0, err
	}
	for _, doc := range docs {
		if doc.ID == "" {
			return 0, errors.New("update headline: empty id")
		}
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	updated := 0
	for _, doc := range docs {
		if _, ok := s.docs[doc.ID]; ok {
			updated++
		} else {
			s.insertID(doc.ID)
		}
		s.docs[doc.ID] = copyHeadline(doc)
	}
	return updated, nil
}

// Find returns one page ordered by id.
func (s *Store) Find(ctx context.Context, page models.PageRequest) ([]models.Headline, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if page.Limit <= 0 {
		return nil, errors.New("find headlines: limit must be positive")
	}

	s.mu.RLock()
	defer s.mu.RUnlock()

	start := page.Skip
	if page.After != "" {
		start = sort.SearchStrings(s.ids, page.After)
		if start < len(s.ids) && s.ids[start] == page.After {
			start++
		}
	}
	if start >= len(s.ids) {
		return nil, nil
	}

	end := min(start+page.Limit, len(s.ids))
	out := make([]models.Headline, 0, end-start)
	for _, id := range s.ids[start:end] {
		out = append(out, copyHeadline(s.docs[id]))
	}
	return out, nil
}

// All returns every headline ordered by id.
func (s *Store) All() []models.Headline {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]models.Headline, 0, len(s.ids))
	for _, id := range s.ids {
		out = append(out, copyHeadline(s.docs[id]))
	}
	return out
}

// Len reports the number of stored headlines.
func (s *Store) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.ids)
}

func (s *Store) insertID(id string) {
	i := sort.SearchStrings(s.ids, id)
	s.ids = append(s.ids, "")
	copy(s.ids[i+1:], s.ids[i:])
	s.ids[i] = id
}

func copyHeadline(h models.Headline) models.Headline {
	if h.Entities != nil {
		h.Entities = append([]string{}, h.Entities...)
	}
	if h.EntityTypes != nil {
		h.EntityTypes = append([]string{}, h.EntityTypes...)
	}
	return h
}
