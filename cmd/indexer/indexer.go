package main

import (
	"fmt"
	"log/slog"
	"os"
	"sort"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"lextransition/internal/app"
	"lextransition/internal/config"
	"lextransition/internal/database"
	"lextransition/internal/embedding"
	"lextransition/internal/index"
	"lextransition/internal/ingest"
	"lextransition/internal/models"
	"lextransition/internal/processor"
)

// indexRetries applies to batch embedding only; interactive requests never retry
const indexRetries = 2

var configPath string

func main() {
	if err := newRootCmd().Execute(); err != nil {
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:          "indexer",
		Short:        "Build and manage corpus index snapshots",
		SilenceUsage: true,
	}
	root.PersistentFlags().StringVarP(&configPath, "config", "c", "", "Config file (default lextransition.yaml if present)")

	root.AddCommand(
		buildCmd(),
		statsCmd(),
		pruneCmd(),
		exportCmd(),
		rebuildCmd(),
		actsCmd(),
		sectionCmd(),
		searchCmd(),
	)
	return root
}

func loadConfig() (config.Config, *slog.Logger, error) {
	cfg, err := config.Load(configPath)
	if err != nil {
		return cfg, nil, err
	}
	return cfg, config.NewLogger(cfg.Logging, os.Stderr), nil
}

func buildCmd() *cobra.Command {
	var (
		concurrency  int
		chunkSize    int
		chunkOverlap int
		acts         map[string]string
	)
	cmd := &cobra.Command{
		Use:   "build [dir]",
		Short: "Ingest PDF and text files into a new snapshot",
		Long: `Extracts, chunks and embeds every .pdf and .txt file in dir and publishes
the result as the current snapshot. Files unchanged since the previous
build reuse their embeddings.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, logger, err := loadConfig()
			if err != nil {
				return err
			}
			if cmd.Flags().Changed("concurrency") {
				cfg.Corpus.Concurrency = concurrency
			}
			if cmd.Flags().Changed("chunk-size") {
				cfg.Corpus.ChunkSize = chunkSize
			}
			if cmd.Flags().Changed("chunk-overlap") {
				cfg.Corpus.Overlap = chunkOverlap
			}

			store, err := index.NewStore(cfg.Corpus.SnapshotDir, logger)
			if err != nil {
				return err
			}
			embedder, err := app.NewEmbedder(cfg)
			if err != nil {
				return err
			}
			if o, ok := embedder.(*embedding.OllamaEmbedder); ok {
				o.MaxRetries = indexRetries
			}

			logger.Info("Processing corpus", "dir", args[0], "embedder", app.EmbedderName(cfg),
				"concurrency", cfg.Corpus.Concurrency, "chunk_size", cfg.Corpus.ChunkSize, "chunk_overlap", cfg.Corpus.Overlap)

			embeddingStart := time.Now()
			in := &ingest.Ingester{
				Store:        store,
				Processor:    processor.NewPDFProcessor(cfg.Corpus.ChunkSize, cfg.Corpus.Overlap),
				Embedder:     embedder,
				EmbedderName: app.EmbedderName(cfg),
				Concurrency:  cfg.Corpus.Concurrency,
				Acts:         acts,
				Logger:       logger,
				Progress: func(processed, total int) {
					elapsed := time.Since(embeddingStart)
					remaining := elapsed*time.Duration(total)/time.Duration(processed) - elapsed
					logger.Info("Progress",
						"processed", processed,
						"total", total,
						"percent", fmt.Sprintf("%.1f", float64(processed)/float64(total)*100),
						"remaining", remaining.Round(time.Second))
				},
			}

			snap, stats, err := in.Run(cmd.Context(), args[0])
			if err != nil {
				return err
			}
			logger.Info("Completed processing",
				"version", stats.Version,
				"processed", stats.Processed,
				"reused", stats.Reused,
				"deleted", stats.Deleted,
				"chunks", stats.Total,
				"duration", stats.Duration.Round(time.Millisecond))

			if cfg.Corpus.Keep > 0 {
				removed, err := store.Prune(cfg.Corpus.Keep)
				if err != nil {
					logger.Warn("Failed to prune old snapshots", "error", err)
				} else if removed > 0 {
					logger.Info("Pruned old snapshots", "removed", removed)
				}
			}

			printChunkStatistics(cmd, snap.Chunks())
			return nil
		},
	}
	cmd.Flags().IntVar(&concurrency, "concurrency", 0, "Maximum concurrent embedding requests")
	cmd.Flags().IntVar(&chunkSize, "chunk-size", processor.DefaultChunkSize, "Character size for text chunks")
	cmd.Flags().IntVar(&chunkOverlap, "chunk-overlap", processor.DefaultChunkOverlap, "Character overlap between chunks")
	cmd.Flags().StringToStringVar(&acts, "act", nil, "Override act detection, e.g. --act bns.pdf=\"Bharatiya Nyaya Sanhita, 2023\"")
	return cmd
}

// printChunkStatistics prints per-act and per-family counts for a snapshot
func printChunkStatistics(cmd *cobra.Command, chunks []models.Chunk) {
	out := cmd.OutOrStdout()
	if len(chunks) == 0 {
		fmt.Fprintln(out, "No chunks indexed")
		return
	}

	var totalLength, tagged int
	byAct := make(map[string]int)
	byFamily := make(map[models.CodeFamily]int)
	sections := make(map[string]struct{})
	for _, c := range chunks {
		totalLength += len(c.Text)
		byAct[c.Provenance.Act]++
		if f := c.Provenance.Family(); f != "" {
			byFamily[f]++
		}
		if c.Provenance.Section != nil {
			tagged++
			sections[c.Provenance.Section.Parent().Key()] = struct{}{}
		}
	}

	fmt.Fprintln(out, "\nChunk Statistics:")
	fmt.Fprintf(out, "  Total chunks: %d\n", len(chunks))
	fmt.Fprintf(out, "  Average chunk length: %.1f characters\n", float64(totalLength)/float64(len(chunks)))
	fmt.Fprintf(out, "  Section-tagged chunks: %d (%.1f%%)\n", tagged, float64(tagged)/float64(len(chunks))*100)
	fmt.Fprintf(out, "  Distinct sections: %d\n", len(sections))

	fmt.Fprintln(out, "\n  Chunks by act:")
	for _, act := range sortedKeys(byAct) {
		fmt.Fprintf(out, "    %s: %d\n", act, byAct[act])
	}
	fmt.Fprintln(out, "\n  Chunks by code:")
	for _, f := range models.Families {
		if n := byFamily[f]; n > 0 {
			fmt.Fprintf(out, "    %s: %d\n", f, n)
		}
	}
}

func sortedKeys(m map[string]int) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

func statsCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "stats",
		Short: "Show the current snapshot and retained versions",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, logger, err := loadConfig()
			if err != nil {
				return err
			}
			store, err := index.NewStore(cfg.Corpus.SnapshotDir, logger)
			if err != nil {
				return err
			}
			snap, err := store.LoadCurrent()
			if err != nil {
				return err
			}
			versions, err := store.Versions()
			if err != nil {
				return err
			}

			out := cmd.OutOrStdout()
			st := snap.Stats()
			fmt.Fprintf(out, "Current snapshot: %s (created %s)\n", st.Version, st.Created.Format(time.RFC3339))
			fmt.Fprintf(out, "  Chunks: %d, sections: %d, dimensions: %d\n", st.Chunks, st.Sections, st.Dimensions)
			for _, act := range sortedKeys(st.ByAct) {
				fmt.Fprintf(out, "    %s: %d\n", act, st.ByAct[act])
			}
			fmt.Fprintf(out, "Retained versions: %s\n", strings.Join(versions, ", "))
			return nil
		},
	}
}

func pruneCmd() *cobra.Command {
	var keep int
	cmd := &cobra.Command{
		Use:   "prune",
		Short: "Delete old snapshots, keeping the newest ones",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, logger, err := loadConfig()
			if err != nil {
				return err
			}
			if !cmd.Flags().Changed("keep") {
				keep = cfg.Corpus.Keep
			}
			if keep < 1 {
				return fmt.Errorf("--keep must be at least 1")
			}
			store, err := index.NewStore(cfg.Corpus.SnapshotDir, logger)
			if err != nil {
				return err
			}
			removed, err := store.Prune(keep)
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Removed %d snapshot(s)\n", removed)
			return nil
		},
	}
	cmd.Flags().IntVar(&keep, "keep", 3, "Number of snapshots to keep")
	return cmd
}

// openDB connects to PostgreSQL using the configured DATABASE_URL
func openDB(cmd *cobra.Command, cfg config.Config) (*database.DB, error) {
	if cfg.Database.URL == "" {
		return nil, fmt.Errorf("database url is not configured; set DATABASE_URL")
	}
	return database.NewDB(cmd.Context(), cfg.Database.URL)
}

func exportCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "export",
		Short: "Copy the current snapshot into PostgreSQL (pgvector)",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, logger, err := loadConfig()
			if err != nil {
				return err
			}
			store, err := index.NewStore(cfg.Corpus.SnapshotDir, logger)
			if err != nil {
				return err
			}
			snap, err := store.LoadCurrent()
			if err != nil {
				return err
			}
			db, err := openDB(cmd, cfg)
			if err != nil {
				return err
			}
			defer db.Close()

			dim := snap.Dimensions()
			if dim == 0 {
				dim = cfg.Embedding.Dimensions
			}
			if err := db.Initialize(cmd.Context(), dim); err != nil {
				return err
			}
			logger.Info("Database initialized successfully", "dimensions", dim)

			start := time.Now()
			if err := db.ReplaceChunks(cmd.Context(), snap.Chunks()); err != nil {
				return err
			}
			logger.Info("Exported snapshot", "version", snap.Version(), "chunks", snap.Len(), "duration", time.Since(start))
			return nil
		},
	}
}

func rebuildCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "rebuild",
		Short: "Publish a new snapshot from the chunks stored in PostgreSQL",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, logger, err := loadConfig()
			if err != nil {
				return err
			}
			db, err := openDB(cmd, cfg)
			if err != nil {
				return err
			}
			defer db.Close()

			chunks, err := db.LoadChunks(cmd.Context())
			if err != nil {
				return err
			}
			b := index.NewBuilder()
			for _, c := range chunks {
				if err := b.Add(c); err != nil {
					return err
				}
			}
			store, err := index.NewStore(cfg.Corpus.SnapshotDir, logger)
			if err != nil {
				return err
			}
			snap := b.Build()
			if err := store.Save(snap); err != nil {
				return err
			}
			logger.Info("Published snapshot from database", "version", snap.Version(), "chunks", snap.Len())
			return nil
		},
	}
}

func actsCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "acts",
		Short: "List the acts stored in PostgreSQL",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, _, err := loadConfig()
			if err != nil {
				return err
			}
			db, err := openDB(cmd, cfg)
			if err != nil {
				return err
			}
			defer db.Close()

			acts, err := db.ListActs(cmd.Context())
			if err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), "Available Acts:")
			for _, a := range acts {
				fmt.Fprintf(cmd.OutOrStdout(), "  %s (%d chunks)\n", a.Act, a.Chunks)
			}
			return nil
		},
	}
}

func sectionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "section [section]",
		Short: "Print the stored text of a section, e.g. \"BNS 103\"",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			id, err := models.ParseSectionID(strings.Join(args, " "))
			if err != nil {
				return err
			}
			cfg, _, err := loadConfig()
			if err != nil {
				return err
			}
			db, err := openDB(cmd, cfg)
			if err != nil {
				return err
			}
			defer db.Close()

			chunks, err := db.QueryBySection(cmd.Context(), id)
			if err != nil {
				return err
			}
			if len(chunks) == 0 {
				return fmt.Errorf("%s: %w", id, models.ErrNotFound)
			}
			printChunks(cmd, chunks)
			return nil
		},
	}
}

func searchCmd() *cobra.Command {
	var (
		family string
		limit  int
	)
	cmd := &cobra.Command{
		Use:   "search [text]",
		Short: "Run a similarity search against PostgreSQL",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			var fam models.CodeFamily
			if family != "" {
				f, ok := models.ParseCodeFamily(family)
				if !ok {
					return fmt.Errorf("unknown code family %q", family)
				}
				fam = f
			}
			cfg, _, err := loadConfig()
			if err != nil {
				return err
			}
			embedder, err := app.NewEmbedder(cfg)
			if err != nil {
				return err
			}
			vec, err := embedder.Embed(cmd.Context(), strings.Join(args, " "))
			if err != nil {
				return fmt.Errorf("failed to create query embedding: %w", err)
			}
			db, err := openDB(cmd, cfg)
			if err != nil {
				return err
			}
			defer db.Close()

			chunks, err := db.QuerySimilar(cmd.Context(), vec, limit, fam)
			if err != nil {
				return err
			}
			printChunks(cmd, chunks)
			return nil
		},
	}
	cmd.Flags().StringVar(&family, "family", "", "Restrict results to one code, e.g. BNS")
	cmd.Flags().IntVar(&limit, "limit", 5, "Number of results")
	return cmd
}

func printChunks(cmd *cobra.Command, chunks []models.Chunk) {
	out := cmd.OutOrStdout()
	for i, c := range chunks {
		section := "N/A"
		if c.Provenance.Section != nil {
			section = c.Provenance.Section.String()
		}
		fmt.Fprintf(out, "%d. [Section: %s - %s, Page: %d]\n%s\n\n", i+1, section, c.Provenance.Act, c.Provenance.Page, c.Text)
	}
}
