package annotator

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/DeafMist/headline-radar/internal/analysis"
	"github.com/DeafMist/headline-radar/internal/events"
	"github.com/DeafMist/headline-radar/internal/logger"
	"github.com/DeafMist/headline-radar/internal/memo"
	"github.com/DeafMist/headline-radar/internal/models"
)

// Pagination selects how the annotator walks the store.
type Pagination string

const (
	// Cursor resumes each page after the last id of the previous one, so
	// every record present for the whole run is visited exactly once.
	Cursor Pagination = "cursor"
	// Offset advances a skip counter by the page size. Concurrent inserts or
	// deletes by another writer can make it skip or revisit records.
	Offset Pagination = "offset"
)

// Store is the part of the record store the annotator reads and writes.
type Store interface {
	Find(ctx context.Context, page models.PageRequest) ([]models.Headline, error)
	UpdateMany(ctx context.Context, docs []models.Headline) (int, error)
}

// Options tune a run. CacheCapacity 0 disables the analysis cache and a nil
// Publisher disables events.
type Options struct {
	PageSize      int
	Pagination    Pagination
	CacheCapacity int
	CacheTTL      time.Duration
	Publisher     events.Publisher
}

// Stats summarises a run.
type Stats struct {
	Pages     int
	Processed int
	Modified  int
	CacheHits int
}

// Annotator pages through every stored headline, derives entities and
// sentiment and writes them back one page at a time.
type Annotator struct {
	store     Store
	analyzer  analysis.Analyzer
	publisher events.Publisher
	opts      Options
	cache     *memo.Cache[analysis.Annotation]
	log       *slog.Logger
}

// New creates an annotator. A zero PageSize means 5000 and an empty
// Pagination means Cursor.
func New(store Store, analyzer analysis.Analyzer, opts Options, log *slog.Logger) (*Annotator, error) {
	if opts.PageSize <= 0 {
		opts.PageSize = 5000
	}
	switch opts.Pagination {
	case "":
		opts.Pagination = Cursor
	case Cursor, Offset:
	default:
		return nil, fmt.Errorf("unknown pagination %q", opts.Pagination)
	}

	a := &Annotator{
		store:     store,
		analyzer:  analyzer,
		publisher: opts.Publisher,
		opts:      opts,
		log:       logger.OrDiscard(log),
	}
	if a.publisher == nil {
		a.publisher = events.Nop{}
	}
	if opts.CacheCapacity > 0 {
		a.cache = memo.New[analysis.Annotation](opts.CacheCapacity, opts.CacheTTL)
	}
	return a, nil
}

// Run annotates until a page comes back empty. Any error aborts the run;
// pages written before it keep their annotations.
func (a *Annotator) Run(ctx context.Context) (Stats, error) {
	var stats Stats
	page := models.PageRequest{Limit: a.opts.PageSize}

	for {
		if err := ctx.Err(); err != nil {
			return stats, err
		}

		docs, err := a.store.Find(ctx, page)
		if err != nil {
			return stats, fmt.Errorf("read page %d: %w", stats.Pages+1, err)
		}
		if len(docs) == 0 {
			a.log.Info("no more headlines to process")
			break
		}
		stats.Pages++

		updates := make([]models.Headline, 0, len(docs))
		for _, doc := range docs {
			ann, err := a.annotate(doc.Text, &stats)
			if err != nil {
				return stats, fmt.Errorf("annotate headline %s: %w", doc.ID, err)
			}
			updated := ann.Apply(doc)
			a.log.Debug("headline annotated",
				slog.String("id", updated.ID),
				slog.Int("entities", len(updated.Entities)),
				slog.String("sentiment", string(updated.Sentiment)),
			)
			updates = append(updates, updated)
		}

		modified, err := a.store.UpdateMany(ctx, updates)
		if err != nil {
			return stats, fmt.Errorf("write page %d: %w", stats.Pages, err)
		}
		stats.Processed += len(docs)
		stats.Modified += modified
		if modified > 0 {
			a.log.Info("updated headlines", slog.Int("page", stats.Pages), slog.Int("modified", modified))
		}

		if err := a.publisher.Publish(ctx, updates); err != nil {
			return stats, fmt.Errorf("page %d: %w", stats.Pages, err)
		}

		switch a.opts.Pagination {
		case Offset:
			page.Skip += a.opts.PageSize
		default:
			page.After = docs[len(docs)-1].ID
		}
	}

	a.log.Info("annotation complete",
		slog.Int("pages", stats.Pages),
		slog.Int("processed", stats.Processed),
		slog.Int("modified", stats.Modified),
		slog.Int("cache_hits", stats.CacheHits),
	)
	return stats, nil
}

func (a *Annotator) annotate(text string, stats *Stats) (analysis.Annotation, error) {
	if a.cache != nil {
		if ann, ok := a.cache.Get(text); ok {
			stats.CacheHits++
			return cloneAnnotation(ann), nil
		}
	}

	ann, err := analysis.Annotate(a.analyzer, text)
	if err != nil {
		return analysis.Annotation{}, err
	}
	if a.cache != nil {
		a.cache.Put(text, ann)
	}
	return cloneAnnotation(ann), nil
}

func cloneAnnotation(ann analysis.Annotation) analysis.Annotation {
	ann.Entities = append([]string{}, ann.Entities...)
	ann.EntityTypes = append([]string{}, ann.EntityTypes...)
	return ann
}
