package database

import (
	"context"
	"fmt"
	"strconv"
	"strings"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"lextransition/internal/models"
)

// DB mirrors corpus chunks into PostgreSQL with pgvector, so snapshots can
// be exported, inspected with SQL and rebuilt elsewhere
type DB struct {
	Pool *pgxpool.Pool
}

// NewDB creates a new database connection
func NewDB(ctx context.Context, connStr string) (*DB, error) {
	pool, err := pgxpool.New(ctx, connStr)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to database: %w", err)
	}

	// Test connection
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	return &DB{Pool: pool}, nil
}

// Initialize sets up the extension, table and indices for the given
// embedding dimension
func (db *DB) Initialize(ctx context.Context, dim int) error {
	if dim <= 0 {
		return fmt.Errorf("invalid embedding dimension %d", dim)
	}
	if _, err := db.Pool.Exec(ctx, `CREATE EXTENSION IF NOT EXISTS vector`); err != nil {
		return fmt.Errorf("failed to enable pgvector: %w", err)
	}

	_, err := db.Pool.Exec(ctx, fmt.Sprintf(`
        CREATE TABLE IF NOT EXISTS law_chunks (
            seq BIGSERIAL PRIMARY KEY,
            id TEXT NOT NULL UNIQUE,
            content TEXT NOT NULL,
            act TEXT NOT NULL,
            family TEXT NOT NULL DEFAULT '',
            section TEXT NOT NULL DEFAULT '',
            section_key TEXT NOT NULL DEFAULT '',
            parent_key TEXT NOT NULL DEFAULT '',
            chapter TEXT NOT NULL DEFAULT '',
            page_number INTEGER NOT NULL DEFAULT 0,
            source TEXT NOT NULL DEFAULT '',
            embedding vector(%d) NOT NULL
        )
    `, dim))
	if err != nil {
		return fmt.Errorf("failed to create law_chunks table: %w", err)
	}

	_, err = db.Pool.Exec(ctx, `
		CREATE INDEX IF NOT EXISTS law_chunks_embedding_idx ON law_chunks
		USING ivfflat (embedding vector_cosine_ops) WITH (lists = 100)
	`)
	if err != nil {
		return fmt.Errorf("failed to create vector index: %w", err)
	}

	_, err = db.Pool.Exec(ctx, `
		CREATE INDEX IF NOT EXISTS law_chunks_section_idx ON law_chunks (section_key);
		CREATE INDEX IF NOT EXISTS law_chunks_parent_idx ON law_chunks (parent_key);
	`)
	if err != nil {
		return fmt.Errorf("failed to create additional indices: %w", err)
	}

	return nil
}

const insertChunk = `
    INSERT INTO law_chunks (
        id, content, act, family, section, section_key, parent_key,
        chapter, page_number, source, embedding
    )
    VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11::vector)
    ON CONFLICT (id) DO UPDATE SET
        content = EXCLUDED.content, act = EXCLUDED.act, family = EXCLUDED.family,
        section = EXCLUDED.section, section_key = EXCLUDED.section_key,
        parent_key = EXCLUDED.parent_key, chapter = EXCLUDED.chapter,
        page_number = EXCLUDED.page_number, source = EXCLUDED.source,
        embedding = EXCLUDED.embedding
`

// chunkArgs flattens a chunk into insertChunk parameters
func chunkArgs(c models.Chunk) []any {
	var section, key, parent string
	if s := c.Provenance.Section; s != nil {
		section, key, parent = s.String(), s.Key(), s.Parent().Key()
	}
	return []any{
		c.ID,
		c.Text,
		c.Provenance.Act,
		string(c.Provenance.Family()),
		section,
		key,
		parent,
		c.Provenance.Chapter,
		c.Provenance.Page,
		c.Provenance.Source,
		formatVector(c.Embedding),
	}
}

// StoreChunk upserts a single chunk
func (db *DB) StoreChunk(ctx context.Context, c models.Chunk) error {
	if _, err := db.Pool.Exec(ctx, insertChunk, chunkArgs(c)...); err != nil {
		return fmt.Errorf("failed to store chunk %s: %w", c.ID, err)
	}
	return nil
}

// ReplaceChunks swaps the table contents for chunks in one transaction
func (db *DB) ReplaceChunks(ctx context.Context, chunks []models.Chunk) error {
	tx, err := db.Pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback(ctx)

	if _, err := tx.Exec(ctx, `TRUNCATE law_chunks RESTART IDENTITY`); err != nil {
		return fmt.Errorf("failed to clear law_chunks: %w", err)
	}

	batch := &pgx.Batch{}
	for _, c := range chunks {
		batch.Queue(insertChunk, chunkArgs(c)...)
	}
	br := tx.SendBatch(ctx, batch)
	for _, c := range chunks {
		if _, err := br.Exec(); err != nil {
			br.Close()
			return fmt.Errorf("failed to store chunk %s: %w", c.ID, err)
		}
	}
	if err := br.Close(); err != nil {
		return fmt.Errorf("failed to close batch: %w", err)
	}

	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("failed to commit chunks: %w", err)
	}
	return nil
}

const selectChunk = `
    SELECT id, content, act, section, chapter, page_number, source, embedding::text
    FROM law_chunks
`

// LoadChunks returns every chunk in insertion order
func (db *DB) LoadChunks(ctx context.Context) ([]models.Chunk, error) {
	rows, err := db.Pool.Query(ctx, selectChunk+` ORDER BY seq`)
	if err != nil {
		return nil, fmt.Errorf("failed to query chunks: %w", err)
	}
	return processRows(rows)
}

// QueryBySection finds the chunks of a section, including its subsections
// when id names a whole section
func (db *DB) QueryBySection(ctx context.Context, id models.SectionID) ([]models.Chunk, error) {
	column := "parent_key"
	if id.Normalized().Subsection != "" {
		column = "section_key"
	}
	rows, err := db.Pool.Query(ctx, selectChunk+` WHERE `+column+` = $1 ORDER BY seq`, id.Key())
	if err != nil {
		return nil, fmt.Errorf("failed to query section chunks: %w", err)
	}
	return processRows(rows)
}

// QuerySimilar finds the chunks nearest to the query embedding, optionally
// restricted to one code family
func (db *DB) QuerySimilar(ctx context.Context, embedding []float64, limit int, family models.CodeFamily) ([]models.Chunk, error) {
	var (
		rows pgx.Rows
		err  error
	)
	if family != "" {
		rows, err = db.Pool.Query(ctx, selectChunk+`
            WHERE family = $2
            ORDER BY embedding <=> $1::vector
            LIMIT $3
        `, formatVector(embedding), string(family), limit)
	} else {
		rows, err = db.Pool.Query(ctx, selectChunk+`
            ORDER BY embedding <=> $1::vector
            LIMIT $2
        `, formatVector(embedding), limit)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to query similar chunks: %w", err)
	}
	return processRows(rows)
}

func processRows(rows pgx.Rows) ([]models.Chunk, error) {
	defer rows.Close()

	var chunks []models.Chunk
	for rows.Next() {
		var (
			chunk     models.Chunk
			section   string
			vectorCol string
		)
		if err := rows.Scan(
			&chunk.ID,
			&chunk.Text,
			&chunk.Provenance.Act,
			&section,
			&chunk.Provenance.Chapter,
			&chunk.Provenance.Page,
			&chunk.Provenance.Source,
			&vectorCol); err != nil {
			return nil, fmt.Errorf("failed to scan row: %w", err)
		}

		if section != "" {
			id, err := models.ParseSectionID(section)
			if err != nil {
				return nil, fmt.Errorf("chunk %s: %w", chunk.ID, err)
			}
			chunk.Provenance.Section = &id
		}
		emb, err := parseVector(vectorCol)
		if err != nil {
			return nil, fmt.Errorf("chunk %s: %w", chunk.ID, err)
		}
		chunk.Embedding = emb

		chunks = append(chunks, chunk)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating rows: %w", err)
	}

	return chunks, nil
}

// ActCount is the number of stored chunks of one act
type ActCount struct {
	Act    string
	Chunks int
}

// ListActs retrieves the stored acts with their chunk counts
func (db *DB) ListActs(ctx context.Context) ([]ActCount, error) {
	rows, err := db.Pool.Query(ctx, `
		SELECT act, COUNT(*) FROM law_chunks GROUP BY act ORDER BY act
	`)
	if err != nil {
		return nil, fmt.Errorf("failed to query acts: %w", err)
	}
	defer rows.Close()

	var acts []ActCount
	for rows.Next() {
		var a ActCount
		if err := rows.Scan(&a.Act, &a.Chunks); err != nil {
			return nil, fmt.Errorf("failed to scan act: %w", err)
		}
		acts = append(acts, a)
	}

	return acts, rows.Err()
}

// Close closes the database connection
func (db *DB) Close() {
	db.Pool.Close()
}

// formatVector renders an embedding in pgvector's text form
func formatVector(embedding []float64) string {
	if len(embedding) == 0 {
		return "[]"
	}
	parts := make([]string, len(embedding))
	for i, v := range embedding {
		parts[i] = strconv.FormatFloat(v, 'g', -1, 64)
	}
	return "[" + strings.Join(parts, ",") + "]"
}

// parseVector parses pgvector's text form
func parseVector(s string) ([]float64, error) {
	s = strings.TrimSpace(s)
	if !strings.HasPrefix(s, "[") || !strings.HasSuffix(s, "]") {
		return nil, fmt.Errorf("invalid vector literal %q", s)
	}
	body := strings.TrimSpace(s[1 : len(s)-1])
	if body == "" {
		return nil, nil
	}
	parts := strings.Split(body, ",")
	vec := make([]float64, len(parts))
	for i, p := range parts {
		v, err := strconv.ParseFloat(strings.TrimSpace(p), 64)
		if err != nil {
			return nil, fmt.Errorf("invalid vector component %q: %w", p, err)
		}
		vec[i] = v
	}
	return vec, nil
}
