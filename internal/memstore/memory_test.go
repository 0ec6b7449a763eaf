package memstore_test

import (
	"context"
	"fmt"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/DeafMist/headline-radar/internal/memstore"
	"github.com/DeafMist/headline-radar/internal/models"
)

func seed(t *testing.T, s *memstore.Store, n int) {
	t.Helper()
	docs := make([]models.Headline, n)
	for i := range docs {
		docs[i] = models.Headline{Text: fmt.Sprintf("headline %d", i)}
	}
	inserted, err := s.InsertMany(context.Background(), docs)
	require.NoError(t, err)
	require.Equal(t, n, inserted)
}

func TestInsertManyAssignsUniqueIDs(t *testing.T) {
	s := memstore.New()
	seed(t, s, 50)

	seen := map[string]bool{}
	for _, h := range s.All() {
		require.NotEmpty(t, h.ID)
		require.False(t, seen[h.ID])
		seen[h.ID] = true
		require.False(t, h.Annotated())
	}
	require.Len(t, seen, 50)
}

func TestFindCursorVisitsEveryRecordOnce(t *testing.T) {
	s := memstore.New()
	seed(t, s, 23)
	ctx := context.Background()

	var visited []string
	after := ""
	for pages := 0; ; pages++ {
		page, err := s.Find(ctx, models.PageRequest{After: after, Limit: 5})
		require.NoError(t, err)
		if len(page) == 0 {
			break
		}
		for _, h := range page {
			visited = append(visited, h.ID)
		}
		after = page[len(page)-1].ID

		// inserts behind or ahead of the cursor never cause revisits
		if pages < 3 {
			seed(t, s, 1)
		}
	}

	seen := map[string]bool{}
	for _, id := range visited {
		require.False(t, seen[id], "visited twice: %s", id)
		seen[id] = true
	}
	require.GreaterOrEqual(t, len(visited), 23)
}

func TestFindOffset(t *testing.T) {
	s := memstore.New()
	seed(t, s, 7)
	ctx := context.Background()

	all := s.All()
	page, err := s.Find(ctx, models.PageRequest{Skip: 5, Limit: 5})
	require.NoError(t, err)
	require.Equal(t, all[5:], page)

	page, err = s.Find(ctx, models.PageRequest{Skip: 10, Limit: 5})
	require.NoError(t, err)
	require.Empty(t, page)

	_, err = s.Find(ctx, models.PageRequest{})
	require.Error(t, err)
}

func TestUpdateManyReplacesWholeDocument(t *testing.T) {
	s := memstore.New()
	seed(t, s, 2)
	ctx := context.Background()

	all := s.All()
	first := all[0]
	first.Entities = []string{"headline", "0"}
	first.EntityTypes = []string{"person", "person"}
	first.Sentiment = models.SentimentNeutral

	n, err := s.UpdateMany(ctx, []models.Headline{first})
	require.NoError(t, err)
	require.Equal(t, 1, n)

	require.Equal(t, first, s.All()[0])

	// caller mutations do not leak into the store
	first.Entities[0] = "changed"
	require.Equal(t, "headline", s.All()[0].Entities[0])

	_, err = s.UpdateMany(ctx, []models.Headline{{Text: "no id"}})
	require.Error(t, err)
}

func TestCanceledContext(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := memstore.New().InsertMany(ctx, []models.Headline{{Text: "x"}})
	require.ErrorIs(t, err, context.Canceled)
}
