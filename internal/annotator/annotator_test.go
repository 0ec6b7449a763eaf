package annotator_test

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/DeafMist/headline-radar/internal/analysis"
	"github.com/DeafMist/headline-radar/internal/annotator"
	"github.com/DeafMist/headline-radar/internal/importer"
	"github.com/DeafMist/headline-radar/internal/memstore"
	"github.com/DeafMist/headline-radar/internal/models"
)

// countingStore wraps memstore and records every call.
type countingStore struct {
	*memstore.Store
	finds     []models.PageRequest
	updates   []int
	failFind  int
	failWrite int
}

func newCountingStore() *countingStore {
	return &countingStore{Store: memstore.New()}
}

func (s *countingStore) Find(ctx context.Context, page models.PageRequest) ([]models.Headline, error) {
	s.finds = append(s.finds, page)
	if s.failFind == len(s.finds) {
		return nil, errors.New("connection reset")
	}
	return s.Store.Find(ctx, page)
}

func (s *countingStore) UpdateMany(ctx context.Context, docs []models.Headline) (int, error) {
	s.updates = append(s.updates, len(docs))
	if s.failWrite == len(s.updates) {
		return 0, errors.New("bulk rejected")
	}
	return s.Store.UpdateMany(ctx, docs)
}

func seed(t *testing.T, s *countingStore, texts ...string) {
	t.Helper()
	docs := make([]models.Headline, len(texts))
	for i, text := range texts {
		docs[i] = models.Headline{Text: text}
	}
	_, err := s.InsertMany(context.Background(), docs)
	require.NoError(t, err)
}

func numbered(n int) []string {
	out := make([]string, n)
	for i := range out {
		out[i] = fmt.Sprintf("headline %d", i)
	}
	return out
}

func newAnnotator(t *testing.T, store annotator.Store, opts annotator.Options) *annotator.Annotator {
	t.Helper()
	a, err := annotator.New(store, analysis.NewLexicon(), opts, nil)
	require.NoError(t, err)
	return a
}

func TestRunEmptyStoreReadsOnce(t *testing.T) {
	store := newCountingStore()

	stats, err := newAnnotator(t, store, annotator.Options{}).Run(context.Background())
	require.NoError(t, err)

	require.Len(t, store.finds, 1)
	require.Equal(t, models.PageRequest{Limit: 5000}, store.finds[0])
	require.Empty(t, store.updates)
	require.Equal(t, annotator.Stats{}, stats)
}

func TestRunCursorPagination(t *testing.T) {
	store := newCountingStore()
	seed(t, store, numbered(12)...)

	stats, err := newAnnotator(t, store, annotator.Options{PageSize: 5}).Run(context.Background())
	require.NoError(t, err)

	require.Equal(t, 3, stats.Pages)
	require.Equal(t, 12, stats.Processed)
	require.Equal(t, 12, stats.Modified)
	require.Equal(t, []int{5, 5, 2}, store.updates)

	require.Len(t, store.finds, 4)
	require.Empty(t, store.finds[0].After)
	all := store.All()
	require.Equal(t, all[4].ID, store.finds[1].After)
	require.Equal(t, all[9].ID, store.finds[2].After)
	require.Equal(t, all[11].ID, store.finds[3].After)

	for _, h := range all {
		require.True(t, h.Annotated())
		require.Len(t, h.EntityTypes, len(h.Entities))
	}
}

func TestRunOffsetPagination(t *testing.T) {
	store := newCountingStore()
	seed(t, store, numbered(12)...)

	stats, err := newAnnotator(t, store, annotator.Options{PageSize: 5, Pagination: annotator.Offset}).Run(context.Background())
	require.NoError(t, err)

	require.Equal(t, 3, stats.Pages)
	require.Equal(t, 12, stats.Processed)

	skips := make([]int, 0, len(store.finds))
	for _, p := range store.finds {
		require.Empty(t, p.After)
		skips = append(skips, p.Skip)
	}
	require.Equal(t, []int{0, 5, 10, 15}, skips)

	for _, h := range store.All() {
		require.True(t, h.Annotated())
	}
}

func TestRunDerivedFields(t *testing.T) {
	store := newCountingStore()
	seed(t, store, "Markets rally today", "Crisis deepens further", "Council meets on Tuesday")

	_, err := newAnnotator(t, store, annotator.Options{}).Run(context.Background())
	require.NoError(t, err)

	byText := map[string]models.Headline{}
	for _, h := range store.All() {
		byText[h.Text] = h
	}

	rally := byText["Markets rally today"]
	require.Equal(t, []string{"Markets", "rally", "today"}, rally.Entities)
	require.Equal(t, []string{"person", "person", "person"}, rally.EntityTypes)
	require.Equal(t, models.SentimentPositive, rally.Sentiment)

	require.Equal(t, models.SentimentNegative, byText["Crisis deepens further"].Sentiment)
	require.Equal(t, models.SentimentNeutral, byText["Council meets on Tuesday"].Sentiment)
}

func TestRunIsIdempotent(t *testing.T) {
	store := newCountingStore()
	seed(t, store, "Markets rally today", "Crisis deepens further", "!!!")

	a := newAnnotator(t, store, annotator.Options{PageSize: 2})
	_, err := a.Run(context.Background())
	require.NoError(t, err)
	first := store.All()

	_, err = newAnnotator(t, store, annotator.Options{PageSize: 2}).Run(context.Background())
	require.NoError(t, err)
	require.Equal(t, first, store.All())
}

func TestRunOverwritesStaleAnnotations(t *testing.T) {
	store := newCountingStore()
	seed(t, store, "Crisis deepens further")

	stale := store.All()[0]
	stale.Entities = []string{"old", "tokens", "here", "too"}
	stale.EntityTypes = []string{"person", "person", "person", "person"}
	stale.Sentiment = models.SentimentPositive
	_, err := store.Store.UpdateMany(context.Background(), []models.Headline{stale})
	require.NoError(t, err)

	_, err = newAnnotator(t, store, annotator.Options{}).Run(context.Background())
	require.NoError(t, err)

	got := store.All()[0]
	require.Equal(t, []string{"Crisis", "deepens", "further"}, got.Entities)
	require.Equal(t, models.SentimentNegative, got.Sentiment)
}

func TestRunWriteFailureKeepsEarlierPages(t *testing.T) {
	store := newCountingStore()
	store.failWrite = 2
	seed(t, store, numbered(6)...)

	stats, err := newAnnotator(t, store, annotator.Options{PageSize: 2}).Run(context.Background())
	require.Error(t, err)
	require.Contains(t, err.Error(), "write page 2")
	require.Equal(t, 2, stats.Processed)

	annotated := 0
	for _, h := range store.All() {
		if h.Annotated() {
			annotated++
		}
	}
	require.Equal(t, 2, annotated)
}

func TestRunReadFailureAborts(t *testing.T) {
	store := newCountingStore()
	store.failFind = 1
	seed(t, store, numbered(3)...)

	_, err := newAnnotator(t, store, annotator.Options{}).Run(context.Background())
	require.Error(t, err)
	require.Contains(t, err.Error(), "read page 1")
	require.Empty(t, store.updates)
}

type brokenAnalyzer struct{ analysis.Analyzer }

func (brokenAnalyzer) Score(text string) (float64, error) {
	if strings.Contains(text, "3") {
		return 0, errors.New("scorer crashed")
	}
	return 0, nil
}

func TestRunAnalyzerFailureAbortsPage(t *testing.T) {
	store := newCountingStore()
	seed(t, store, numbered(5)...)

	a, err := annotator.New(store, brokenAnalyzer{analysis.NewLexicon()}, annotator.Options{PageSize: 10}, nil)
	require.NoError(t, err)

	_, err = a.Run(context.Background())
	require.Error(t, err)
	require.Contains(t, err.Error(), "scorer crashed")
	require.Empty(t, store.updates)
}

type countingAnalyzer struct {
	analysis.Analyzer
	scores int
}

func (c *countingAnalyzer) Score(text string) (float64, error) {
	c.scores++
	return c.Analyzer.Score(text)
}

func TestRunCacheReusesAnalysis(t *testing.T) {
	store := newCountingStore()
	seed(t, store, "Same headline", "Same headline", "Same headline", "Other headline")

	counter := &countingAnalyzer{Analyzer: analysis.NewLexicon()}
	a, err := annotator.New(store, counter, annotator.Options{CacheCapacity: 10}, nil)
	require.NoError(t, err)

	stats, err := a.Run(context.Background())
	require.NoError(t, err)
	require.Equal(t, 2, counter.scores)
	require.Equal(t, 2, stats.CacheHits)

	for _, h := range store.All() {
		require.True(t, h.Annotated())
	}
}

type recordingPublisher struct {
	batches [][]models.Headline
	err     error
}

func (p *recordingPublisher) Publish(_ context.Context, docs []models.Headline) error {
	p.batches = append(p.batches, docs)
	return p.err
}

func (p *recordingPublisher) Close() error { return nil }

func TestRunPublishesEachPage(t *testing.T) {
	store := newCountingStore()
	seed(t, store, numbered(3)...)

	pub := &recordingPublisher{}
	_, err := newAnnotator(t, store, annotator.Options{PageSize: 2, Publisher: pub}).Run(context.Background())
	require.NoError(t, err)

	require.Len(t, pub.batches, 2)
	require.Len(t, pub.batches[0], 2)
	require.Len(t, pub.batches[1], 1)
	for _, batch := range pub.batches {
		for _, h := range batch {
			require.True(t, h.Annotated())
		}
	}
}

func TestRunPublishFailureAborts(t *testing.T) {
	store := newCountingStore()
	seed(t, store, numbered(3)...)

	pub := &recordingPublisher{err: errors.New("broker down")}
	_, err := newAnnotator(t, store, annotator.Options{PageSize: 2, Publisher: pub}).Run(context.Background())
	require.Error(t, err)
	require.Contains(t, err.Error(), "broker down")
	require.Len(t, store.updates, 1)
}

func TestRunCanceledContext(t *testing.T) {
	store := newCountingStore()
	seed(t, store, numbered(3)...)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := newAnnotator(t, store, annotator.Options{}).Run(ctx)
	require.ErrorIs(t, err, context.Canceled)
	require.Empty(t, store.finds)
}

func TestNewRejectsUnknownPagination(t *testing.T) {
	_, err := annotator.New(newCountingStore(), analysis.NewLexicon(), annotator.Options{Pagination: "random"}, nil)
	require.Error(t, err)
}

func TestImportThenAnnotate(t *testing.T) {
	store := newCountingStore()
	ctx := context.Background()

	csv := "publish_date,headline_text\n20240101,Markets rally today\n20240101,Crisis deepens further\n"
	res, err := importer.New(store, importer.Options{}, nil).Import(ctx, strings.NewReader(csv))
	require.NoError(t, err)
	require.Equal(t, 2, res.Rows)

	imported := store.All()
	require.Len(t, imported, 2)
	texts := []string{imported[0].Text, imported[1].Text}
	require.ElementsMatch(t, []string{"Markets rally today", "Crisis deepens further"}, texts)
	for _, h := range imported {
		require.NotEmpty(t, h.ID)
		require.Nil(t, h.Entities)
		require.Nil(t, h.EntityTypes)
		require.Empty(t, h.Sentiment)
	}

	_, err = newAnnotator(t, store, annotator.Options{}).Run(ctx)
	require.NoError(t, err)

	lex := analysis.NewLexicon()
	for _, h := range store.All() {
		require.NotEmpty(t, h.Entities)
		require.Len(t, h.EntityTypes, len(h.Entities))
		for _, label := range h.EntityTypes {
			require.Equal(t, analysis.PlaceholderEntityType, label)
		}
		score, err := lex.Score(h.Text)
		require.NoError(t, err)
		require.Equal(t, models.SentimentFromScore(score), h.Sentiment)
		if h.Text == "Markets rally today" {
			require.Equal(t, models.SentimentPositive, h.Sentiment)
		}
	}
}
