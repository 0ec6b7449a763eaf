package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/DeafMist/headline-radar/internal/analysis"
	"github.com/DeafMist/headline-radar/internal/annotator"
	"github.com/DeafMist/headline-radar/internal/config"
	"github.com/DeafMist/headline-radar/internal/elasticsearch"
	"github.com/DeafMist/headline-radar/internal/events"
	"github.com/DeafMist/headline-radar/internal/importer"
	"github.com/DeafMist/headline-radar/internal/logger"
	"github.com/DeafMist/headline-radar/internal/models"
)

type importStore interface {
	EnsureIndex(ctx context.Context) error
	InsertMany(ctx context.Context, docs []models.Headline) (int, error)
	Refresh(ctx context.Context) error
}

type annotateStore interface {
	EnsureIndex(ctx context.Context) error
	annotator.Store
}

var (
	esAddr  string
	esIndex string
)

func main() {
	log := logger.New("headlines")

	rootCmd := &cobra.Command{
		Use:           "headlines",
		Short:         "Import news headlines and annotate them with entities and sentiment",
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	rootCmd.PersistentFlags().StringVar(&esAddr, "es-addr", "", "Elasticsearch address (overrides ELASTICSEARCH_ADDR)")
	rootCmd.PersistentFlags().StringVar(&esIndex, "index", "", "headline index (overrides ELASTICSEARCH_INDEX)")

	rootCmd.AddCommand(importCmd(log))
	rootCmd.AddCommand(extractCmd(log))

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGTERM, syscall.SIGINT)
	defer stop()

	if err := rootCmd.ExecuteContext(ctx); err != nil {
		log.Error("command failed", slog.Any("err", err))
		stop()
		os.Exit(1)
	}
}

func applyCommon(c *config.Common) {
	if esAddr != "" {
		c.ElasticsearchAddr = esAddr
	}
	if esIndex != "" {
		c.ElasticsearchIndex = esIndex
	}
}

// openStore connects to Elasticsearch for the lifetime of one command.
func openStore(ctx context.Context, log *slog.Logger, c config.Common) (*elasticsearch.Client, error) {
	client, err := elasticsearch.New(c.ElasticsearchAddr, c.ElasticsearchIndex, log)
	if err != nil {
		return nil, err
	}
	if err := client.Ping(ctx); err != nil {
		return nil, err
	}
	log.Info("connected to elasticsearch",
		slog.String("addr", c.ElasticsearchAddr),
		slog.String("index", c.ElasticsearchIndex),
	)
	return client, nil
}

func closeStore(log *slog.Logger, client *elasticsearch.Client) {
	if err := client.Close(); err != nil {
		log.Warn("close elasticsearch client", slog.Any("err", err))
		return
	}
	log.Info("disconnected from elasticsearch")
}

func importCmd(log *slog.Logger) *cobra.Command {
	var (
		batchSize int
		column    string
	)

	cmd := &cobra.Command{
		Use:   "import-headlines <path>",
		Short: "Import a CSV file of headlines into the system",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.LoadImporter()
			if err != nil {
				return err
			}
			applyCommon(&cfg.Common)
			if cmd.Flags().Changed("batch-size") {
				cfg.BatchSize = batchSize
			}
			if cmd.Flags().Changed("column") {
				cfg.TextColumn = column
			}
			if err := cfg.Validate(); err != nil {
				return err
			}

			log := log.With("command", "import-headlines")
			store, err := openStore(cmd.Context(), log, cfg.Common)
			if err != nil {
				return err
			}
			defer closeStore(log, store)

			return runImport(cmd.Context(), log, store, cfg, args[0])
		},
	}

	cmd.Flags().IntVar(&batchSize, "batch-size", 1000, "rows per bulk insert")
	cmd.Flags().StringVar(&column, "column", "headline_text", "CSV column holding the headline text")
	return cmd
}

func extractCmd(log *slog.Logger) *cobra.Command {
	var (
		pageSize   int
		pagination string
	)

	cmd := &cobra.Command{
		Use:   "extract-entities",
		Short: "Process headlines to identify entities and analyze sentiment",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.LoadAnnotator()
			if err != nil {
				return err
			}
			applyCommon(&cfg.Common)
			if cmd.Flags().Changed("page-size") {
				cfg.PageSize = pageSize
			}
			if cmd.Flags().Changed("pagination") {
				cfg.Pagination = pagination
			}
			if err := cfg.Validate(); err != nil {
				return err
			}

			log := log.With("command", "extract-entities")
			store, err := openStore(cmd.Context(), log, cfg.Common)
			if err != nil {
				return err
			}
			defer closeStore(log, store)

			var pub events.Publisher = events.Nop{}
			if cfg.KafkaTopic != "" {
				pub = events.NewKafka(cfg.KafkaBrokers, cfg.KafkaTopic)
				log.Info("publishing annotation events", slog.String("topic", cfg.KafkaTopic))
			}
			defer func() {
				if err := pub.Close(); err != nil {
					log.Warn("close publisher", slog.Any("err", err))
				}
			}()

			return runExtract(cmd.Context(), log, store, analysis.NewLexicon(), pub, cfg)
		},
	}

	cmd.Flags().IntVar(&pageSize, "page-size", 5000, "headlines read and written per page")
	cmd.Flags().StringVar(&pagination, "pagination", config.PaginationCursor, "page walk: cursor or offset")
	return cmd
}

func runImport(ctx context.Context, log *slog.Logger, store importStore, cfg *config.Importer, path string) error {
	if err := store.EnsureIndex(ctx); err != nil {
		return err
	}

	im := importer.New(store, importer.Options{
		BatchSize:  cfg.BatchSize,
		TextColumn: cfg.TextColumn,
	}, log)

	res, err := im.ImportFile(ctx, path)
	if err != nil {
		return fmt.Errorf("import headlines: %w", err)
	}

	if err := store.Refresh(ctx); err != nil {
		return err
	}

	log.Info("imported headlines from csv",
		slog.String("path", path),
		slog.Int("imported", res.Rows),
		slog.Int("inserted", res.Inserted),
		slog.Duration("elapsed", res.Elapsed),
	)
	return nil
}

func runExtract(ctx context.Context, log *slog.Logger, store annotateStore, analyzer analysis.Analyzer, pub events.Publisher, cfg *config.Annotator) error {
	if err := store.EnsureIndex(ctx); err != nil {
		return err
	}

	a, err := annotator.New(store, analyzer, annotator.Options{
		PageSize:      cfg.PageSize,
		Pagination:    annotator.Pagination(cfg.Pagination),
		CacheCapacity: cfg.CacheCapacity,
		CacheTTL:      cfg.CacheTTL,
		Publisher:     pub,
	}, log)
	if err != nil {
		return err
	}

	stats, err := a.Run(ctx)
	if err != nil {
		return fmt.Errorf("process headlines: %w", err)
	}

	log.Info("nlp processing complete",
		slog.Int("processed", stats.Processed),
		slog.Int("modified", stats.Modified),
	)
	return nil
}
