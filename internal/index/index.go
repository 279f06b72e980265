package index

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"math"
	"sort"
	"strings"
	"unicode"

	"github.com/google/uuid"
	_ "modernc.org/sqlite" // Pure-Go SQLite driver

	"github.com/haasonsaas/ragmark/internal/config"
)

// Document is a source text registered in the index. SourceID is the
// identifier retrieval quality is judged against.
type Document struct {
	SourceID string
	Title    string
	Content  string
}

// Result is one retrieved document with its fused relevance score.
type Result struct {
	SourceID string
	Title    string
	Content  string
	Score    float64
}

// Embedder produces embedding vectors for texts. Satisfied by llm.Client.
type Embedder interface {
	Embed(ctx context.Context, texts []string) ([][]float32, error)
}

// Index stores documents with their embeddings and serves hybrid search:
// dense cosine similarity fused with lexical token overlap.
type Index struct {
	db            *sql.DB
	embedder      Embedder
	weightDense   float64
	weightLexical float64
}

// Open opens (and if needed initializes) the index at cfg.Path. The
// embedder is used both at build time and per query.
func Open(cfg config.IndexConfig, embedder Embedder) (*Index, error) {
	if strings.TrimSpace(cfg.Path) == "" {
		return nil, fmt.Errorf("index: path is required")
	}
	if embedder == nil {
		return nil, fmt.Errorf("index: embedder is required")
	}
	db, err := sql.Open("sqlite", cfg.Path)
	if err != nil {
		return nil, fmt.Errorf("index: open: %w", err)
	}
	idx := &Index{
		db:            db,
		embedder:      embedder,
		weightDense:   cfg.WeightDense,
		weightLexical: cfg.WeightLexical,
	}
	if idx.weightDense == 0 && idx.weightLexical == 0 {
		idx.weightDense = 0.7
		idx.weightLexical = 0.3
	}
	if err := idx.init(); err != nil {
		db.Close()
		return nil, err
	}
	return idx, nil
}

func (x *Index) init() error {
	_, err := x.db.Exec(`
		CREATE TABLE IF NOT EXISTS documents (
			id TEXT PRIMARY KEY,
			source_id TEXT NOT NULL UNIQUE,
			title TEXT,
			content TEXT NOT NULL,
			embedding BLOB,
			created_at DATETIME DEFAULT CURRENT_TIMESTAMP
		)
	`)
	if err != nil {
		return fmt.Errorf("index: init schema: %w", err)
	}
	return nil
}

// Close releases the underlying database handle.
func (x *Index) Close() error { return x.db.Close() }

// Add embeds and stores documents. An existing source_id is replaced so
// rebuilds are idempotent.
func (x *Index) Add(ctx context.Context, docs []Document) error {
	if len(docs) == 0 {
		return nil
	}
	for i, doc := range docs {
		if strings.TrimSpace(doc.SourceID) == "" {
			return fmt.Errorf("index: document %d has empty source id", i)
		}
		if strings.TrimSpace(doc.Content) == "" {
			return fmt.Errorf("index: document %s has empty content", doc.SourceID)
		}
	}

	texts := make([]string, len(docs))
	for i, doc := range docs {
		texts[i] = doc.Content
	}
	embeddings, err := x.embedder.Embed(ctx, texts)
	if err != nil {
		return fmt.Errorf("index: embed documents: %w", err)
	}
	if len(embeddings) != len(docs) {
		return fmt.Errorf("index: embedder returned %d vectors for %d documents", len(embeddings), len(docs))
	}

	tx, err := x.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("index: begin add: %w", err)
	}
	defer func() {
		if err := tx.Rollback(); err != nil && !errors.Is(err, sql.ErrTxDone) {
			_ = err
		}
	}()

	stmt, err := tx.PrepareContext(ctx, `
		INSERT OR REPLACE INTO documents (id, source_id, title, content, embedding)
		VALUES (?, ?, ?, ?, ?)
	`)
	if err != nil {
		return fmt.Errorf("index: prepare insert: %w", err)
	}
	defer stmt.Close()

	for i, doc := range docs {
		if _, err := stmt.ExecContext(ctx,
			uuid.New().String(), doc.SourceID, doc.Title, doc.Content,
			encodeEmbedding(embeddings[i])); err != nil {
			return fmt.Errorf("index: insert %s: %w", doc.SourceID, err)
		}
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("index: commit add: %w", err)
	}
	return nil
}

// Count returns the number of indexed documents.
func (x *Index) Count(ctx context.Context) (int, error) {
	var n int
	err := x.db.QueryRowContext(ctx, `SELECT COUNT(1) FROM documents`).Scan(&n)
	if err != nil {
		return 0, fmt.Errorf("index: count: %w", err)
	}
	return n, nil
}

// Search returns up to k documents ranked by the fused score, highest
// first. Fewer than k results means the index holds fewer documents, not
// that anything was filtered.
func (x *Index) Search(ctx context.Context, query string, k int) ([]Result, error) {
	if k <= 0 {
		return nil, fmt.Errorf("index: k must be positive, got %d", k)
	}
	vectors, err := x.embedder.Embed(ctx, []string{query})
	if err != nil {
		return nil, fmt.Errorf("index: embed query: %w", err)
	}
	if len(vectors) != 1 {
		return nil, fmt.Errorf("index: embedder returned %d vectors for one query", len(vectors))
	}
	queryVec := vectors[0]
	queryTokens := tokenize(query)

	rows, err := x.db.QueryContext(ctx, `SELECT source_id, title, content, embedding FROM documents`)
	if err != nil {
		return nil, fmt.Errorf("index: query documents: %w", err)
	}
	defer rows.Close()

	var results []Result
	for rows.Next() {
		var r Result
		var blob []byte
		if err := rows.Scan(&r.SourceID, &r.Title, &r.Content, &blob); err != nil {
			return nil, fmt.Errorf("index: scan document: %w", err)
		}
		dense := float64(cosineSimilarity(queryVec, decodeEmbedding(blob)))
		lexical := tokenOverlap(queryTokens, tokenize(r.Content))
		r.Score = x.weightDense*dense + x.weightLexical*lexical
		results = append(results, r)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("index: query documents: %w", err)
	}

	sort.SliceStable(results, func(i, j int) bool { return results[i].Score > results[j].Score })
	if len(results) > k {
		results = results[:k]
	}
	return results, nil
}

// tokenize lowercases and splits on non-letter, non-digit runes.
func tokenize(text string) map[string]struct{} {
	tokens := make(map[string]struct{})
	for _, tok := range strings.FieldsFunc(strings.ToLower(text), func(r rune) bool {
		return !unicode.IsLetter(r) && !unicode.IsDigit(r)
	}) {
		tokens[tok] = struct{}{}
	}
	return tokens
}

// tokenOverlap scores how much of the query vocabulary a document covers.
func tokenOverlap(query, doc map[string]struct{}) float64 {
	if len(query) == 0 {
		return 0
	}
	var hits int
	for tok := range query {
		if _, ok := doc[tok]; ok {
			hits++
		}
	}
	return float64(hits) / float64(len(query))
}

// encodeEmbedding packs a vector as little-endian IEEE 754 bits.
func encodeEmbedding(embedding []float32) []byte {
	if len(embedding) == 0 {
		return nil
	}
	data := make([]byte, len(embedding)*4)
	for i, f := range embedding {
		bits := math.Float32bits(f)
		data[i*4] = byte(bits)
		data[i*4+1] = byte(bits >> 8)
		data[i*4+2] = byte(bits >> 16)
		data[i*4+3] = byte(bits >> 24)
	}
	return data
}

func decodeEmbedding(data []byte) []float32 {
	if len(data) == 0 || len(data)%4 != 0 {
		return nil
	}
	embedding := make([]float32, len(data)/4)
	for i := range embedding {
		bits := uint32(data[i*4]) |
			uint32(data[i*4+1])<<8 |
			uint32(data[i*4+2])<<16 |
			uint32(data[i*4+3])<<24
		embedding[i] = math.Float32frombits(bits)
	}
	return embedding
}

func cosineSimilarity(a, b []float32) float32 {
	if len(a) != len(b) || len(a) == 0 {
		return 0
	}
	var dot, normA, normB float32
	for i := range a {
		dot += a[i] * b[i]
		normA += a[i] * a[i]
		normB += b[i] * b[i]
	}
	if normA == 0 || normB == 0 {
		return 0
	}
	return dot / (float32(math.Sqrt(float64(normA))) * float32(math.Sqrt(float64(normB))))
}
