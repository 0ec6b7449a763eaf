package importer

import (
	"context"
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"strings"
	"time"

	"github.com/DeafMist/headline-radar/internal/logger"
	"github.com/DeafMist/headline-radar/internal/models"
)

// ErrMissingColumn is returned when the CSV header lacks the text column.
var ErrMissingColumn = errors.New("text column not found in csv header")

// Sink receives batches of new headlines.
type Sink interface {
	InsertMany(ctx context.Context, docs []models.Headline) (int, error)
}

// Options tune the import.
type Options struct {
	BatchSize  int
	TextColumn string
}

// Result summarises an import run. Rows counts non-empty rows read; Inserted
// is what the sink reported as created.
type Result struct {
	Rows     int
	Inserted int
	Batches  int
	Elapsed  time.Duration
}

// Importer streams CSV rows into the sink in fixed-size batches.
type Importer struct {
	sink Sink
	opts Options
	log  *slog.Logger
}

// New creates an importer. Zero options fall back to 1000 rows per batch and
// the headline_text column.
func New(sink Sink, opts Options, log *slog.Logger) *Importer {
	if opts.BatchSize <= 0 {
		opts.BatchSize = 1000
	}
	if strings.TrimSpace(opts.TextColumn) == "" {
		opts.TextColumn = "headline_text"
	}
	return &Importer{sink: sink, opts: opts, log: logger.OrDiscard(log)}
}

// ImportFile opens path and imports it.
func (im *Importer) ImportFile(ctx context.Context, path string) (Result, error) {
	f, err := os.Open(path)
	if err != nil {
		return Result{}, fmt.Errorf("open csv: %w", err)
	}
	defer f.Close()

	return im.Import(ctx, f)
}

// Import reads src row by row and writes one InsertMany call per full batch,
// plus one for the trailing partial batch. The first error aborts the run;
// batches written before it stay written.
func (im *Importer) Import(ctx context.Context, src io.Reader) (Result, error) {
	started := time.Now()
	var res Result

	r := csv.NewReader(src)
	header, err := r.Read()
	if errors.Is(err, io.EOF) {
		return res, fmt.Errorf("%w: %q (empty input)", ErrMissingColumn, im.opts.TextColumn)
	}
	if err != nil {
		return res, fmt.Errorf("read csv header: %w", err)
	}

	col := columnIndex(header, im.opts.TextColumn)
	if col < 0 {
		return res, fmt.Errorf("%w: %q", ErrMissingColumn, im.opts.TextColumn)
	}

	batch := make([]models.Headline, 0, im.opts.BatchSize)
	flush := func() error {
		if len(batch) == 0 {
			return nil
		}
		if err := ctx.Err(); err != nil {
			return err
		}

		im.log.Info("inserting batch", slog.Int("batch", res.Batches+1), slog.Int("size", len(batch)))
		n, err := im.sink.InsertMany(ctx, batch)
		res.Batches++
		if err != nil {
			return fmt.Errorf("insert batch %d: %w", res.Batches, err)
		}
		res.Inserted += n
		im.log.Info("batch inserted", slog.Int("batch", res.Batches), slog.Int("inserted", n))

		batch = make([]models.Headline, 0, im.opts.BatchSize)
		return nil
	}

	for {
		record, err := r.Read()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return res, fmt.Errorf("read csv row: %w", err)
		}

		text := strings.TrimSpace(record[col])
		if text == "" {
			line, _ := r.FieldPos(col)
			im.log.Debug("skipping empty headline", slog.Int("line", line))
			continue
		}

		batch = append(batch, models.Headline{Text: text})
		res.Rows++

		if len(batch) == im.opts.BatchSize {
			if err := flush(); err != nil {
				return res, err
			}
		}
	}

	if err := flush(); err != nil {
		return res, err
	}

	res.Elapsed = time.Since(started)
	im.log.Info("import complete",
		slog.Int("rows", res.Rows),
		slog.Int("inserted", res.Inserted),
		slog.Int("batches", res.Batches),
		slog.Duration("elapsed", res.Elapsed),
	)
	return res, nil
}

func columnIndex(header []string, name string) int {
	for i, h := range header {
		h = strings.TrimSpace(strings.TrimPrefix(h, "\ufeff"))
		if strings.EqualFold(h, strings.TrimSpace(name)) {
			return i
		}
	}
	return -1
}
