package sqlite

import (
	"context"
	"database/sql"
	"encoding/binary"
	"fmt"
	"math"
	"sort"
	"strings"
	"time"

	_ "modernc.org/sqlite"

	"github.com/tjfontaine/rag-chat-proxy/internal/storage"
)

// Store is a SQLite implementation of DocumentStore and InteractionStore
type Store struct {
	db *sql.DB
}

var _ storage.Store = (*Store)(nil)

// New creates a new SQLite store
func New(dbPath string) (*Store, error) {
	db, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	if _, err := db.Exec("PRAGMA journal_mode=WAL; PRAGMA synchronous=NORMAL; PRAGMA busy_timeout=5000;"); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to enable WAL mode: %w", err)
	}

	store := &Store{db: db}

	if err := store.initSchema(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to initialize schema: %w", err)
	}

	return store, nil
}

func (s *Store) initSchema() error {
	statements := []string{
		`CREATE TABLE IF NOT EXISTS chunks (
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			study_id TEXT NOT NULL,
			source TEXT NOT NULL,
			chunk_index INTEGER NOT NULL,
			text TEXT NOT NULL,
			embedding BLOB,
			created_at TIMESTAMP NOT NULL
		)`,
		`CREATE INDEX IF NOT EXISTS idx_chunks_document ON chunks(study_id, source)`,
		`CREATE VIRTUAL TABLE IF NOT EXISTS chunks_fts USING fts5(
			text,
			content='chunks',
			content_rowid='id',
			tokenize='porter unicode61'
		)`,
		`CREATE TRIGGER IF NOT EXISTS chunks_ai AFTER INSERT ON chunks BEGIN
			INSERT INTO chunks_fts(rowid, text) VALUES (new.id, new.text);
		END`,
		`CREATE TRIGGER IF NOT EXISTS chunks_ad AFTER DELETE ON chunks BEGIN
			INSERT INTO chunks_fts(chunks_fts, rowid, text) VALUES ('delete', old.id, old.text);
		END`,
		`CREATE TRIGGER IF NOT EXISTS chunks_au AFTER UPDATE ON chunks BEGIN
			INSERT INTO chunks_fts(chunks_fts, rowid, text) VALUES ('delete', old.id, old.text);
			INSERT INTO chunks_fts(rowid, text) VALUES (new.id, new.text);
		END`,
		`CREATE TABLE IF NOT EXISTS interactions (
			id TEXT PRIMARY KEY,
			request_id TEXT,
			model TEXT NOT NULL,
			message_count INTEGER NOT NULL,
			streaming INTEGER NOT NULL DEFAULT 0,
			rag_enabled INTEGER NOT NULL DEFAULT 0,
			rag_context_length INTEGER NOT NULL DEFAULT 0,
			finish_reason TEXT,
			status TEXT NOT NULL,
			error_type TEXT,
			error_message TEXT,
			duration_ns INTEGER,
			created_at TIMESTAMP NOT NULL
		)`,
		`CREATE INDEX IF NOT EXISTS idx_interactions_created ON interactions(created_at)`,
		`CREATE INDEX IF NOT EXISTS idx_interactions_status ON interactions(status)`,
	}

	for _, stmt := range statements {
		if _, err := s.db.Exec(stmt); err != nil {
			return fmt.Errorf("failed to execute schema statement: %w", err)
		}
	}

	return nil
}

// ReplaceDocument deletes the previous chunks of source and inserts chunks in
// one transaction.
func (s *Store) ReplaceDocument(ctx context.Context, studyID, source string, chunks []storage.Chunk) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	if _, err := tx.ExecContext(ctx,
		`DELETE FROM chunks WHERE study_id = ? AND source = ?`, studyID, source); err != nil {
		return fmt.Errorf("failed to delete previous chunks: %w", err)
	}

	stmt, err := tx.PrepareContext(ctx, `INSERT INTO chunks (study_id, source, chunk_index, text, embedding, created_at)
	          VALUES (?, ?, ?, ?, ?, ?)`)
	if err != nil {
		return fmt.Errorf("failed to prepare insert: %w", err)
	}
	defer stmt.Close()

	now := time.Now().UTC()
	for _, c := range chunks {
		if _, err := stmt.ExecContext(ctx, studyID, source, c.Index, c.Text, encodeVector(c.Embedding), now); err != nil {
			return fmt.Errorf("failed to insert chunk %d: %w", c.Index, err)
		}
	}

	return tx.Commit()
}

func (s *Store) DeleteDocument(ctx context.Context, studyID, source string) error {
	result, err := s.db.ExecContext(ctx,
		`DELETE FROM chunks WHERE study_id = ? AND source = ?`, studyID, source)
	if err != nil {
		return fmt.Errorf("failed to delete document: %w", err)
	}

	rows, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to get rows affected: %w", err)
	}
	if rows == 0 {
		return fmt.Errorf("document %s: %w", source, storage.ErrNotFound)
	}

	return nil
}

func (s *Store) ListDocuments(ctx context.Context, studyID string) ([]storage.Document, error) {
	query := `SELECT study_id, source, COUNT(*), MAX(created_at)
	          FROM chunks`
	var args []any
	if studyID != "" {
		query += ` WHERE study_id = ?`
		args = append(args, studyID)
	}
	query += ` GROUP BY study_id, source ORDER BY source ASC`

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query documents: %w", err)
	}
	defer rows.Close()

	var docs []storage.Document
	for rows.Next() {
		var doc storage.Document
		var indexedAt sql.NullString
		if err := rows.Scan(&doc.StudyID, &doc.Source, &doc.Chunks, &indexedAt); err != nil {
			return nil, fmt.Errorf("failed to scan document: %w", err)
		}
		doc.IndexedAt = parseTime(indexedAt.String)
		docs = append(docs, doc)
	}

	return docs, rows.Err()
}

// Search runs a full text query. Any query term may match; bm25 orders the
// hits.
func (s *Store) Search(ctx context.Context, query string, opts storage.SearchOptions) ([]storage.ScoredChunk, error) {
	match := ftsQuery(query)
	if match == "" {
		return nil, nil
	}

	sqlQuery := `SELECT c.id, c.study_id, c.source, c.chunk_index, c.text, c.created_at, fts.rank
	          FROM chunks_fts fts
	          JOIN chunks c ON c.id = fts.rowid
	          WHERE chunks_fts MATCH ?`
	args := []any{match}
	if opts.StudyID != "" {
		sqlQuery += ` AND c.study_id = ?`
		args = append(args, opts.StudyID)
	}
	sqlQuery += ` ORDER BY fts.rank ASC, c.id ASC`
	if opts.Limit > 0 {
		sqlQuery += ` LIMIT ?`
		args = append(args, opts.Limit)
	}

	rows, err := s.db.QueryContext(ctx, sqlQuery, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to search chunks: %w", err)
	}
	defer rows.Close()

	var hits []storage.ScoredChunk
	for rows.Next() {
		var hit storage.ScoredChunk
		var rank float64
		if err := rows.Scan(&hit.ID, &hit.StudyID, &hit.Source, &hit.Index, &hit.Text, &hit.CreatedAt, &rank); err != nil {
			return nil, fmt.Errorf("failed to scan chunk: %w", err)
		}
		// bm25 ranks are negative with the best match lowest.
		hit.Score = -rank
		hits = append(hits, hit)
	}

	return hits, rows.Err()
}

// SearchVectors ranks every embedded chunk in scope by cosine similarity.
func (s *Store) SearchVectors(ctx context.Context, vector []float32, opts storage.SearchOptions) ([]storage.ScoredChunk, error) {
	sqlQuery := `SELECT id, study_id, source, chunk_index, text, embedding, created_at
	          FROM chunks WHERE embedding IS NOT NULL`
	var args []any
	if opts.StudyID != "" {
		sqlQuery += ` AND study_id = ?`
		args = append(args, opts.StudyID)
	}

	rows, err := s.db.QueryContext(ctx, sqlQuery, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query embeddings: %w", err)
	}
	defer rows.Close()

	var hits []storage.ScoredChunk
	for rows.Next() {
		var hit storage.ScoredChunk
		var blob []byte
		if err := rows.Scan(&hit.ID, &hit.StudyID, &hit.Source, &hit.Index, &hit.Text, &blob, &hit.CreatedAt); err != nil {
			return nil, fmt.Errorf("failed to scan chunk: %w", err)
		}
		hit.Embedding = decodeVector(blob)
		hit.Score = storage.CosineSimilarity(vector, hit.Embedding)
		if hit.Score <= 0 {
			continue
		}
		hits = append(hits, hit)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	sort.SliceStable(hits, func(i, j int) bool {
		if hits[i].Score != hits[j].Score {
			return hits[i].Score > hits[j].Score
		}
		return hits[i].ID < hits[j].ID
	})
	if opts.Limit > 0 && len(hits) > opts.Limit {
		hits = hits[:opts.Limit]
	}
	return hits, nil
}

func (s *Store) Close() error {
	return s.db.Close()
}

// ftsQuery quotes each term so user text cannot inject FTS5 syntax.
func ftsQuery(query string) string {
	terms := storage.QueryTerms(query)
	if len(terms) == 0 {
		return ""
	}
	quoted := make([]string, len(terms))
	for i, t := range terms {
		quoted[i] = `"` + strings.ReplaceAll(t, `"`, `""`) + `"`
	}
	return strings.Join(quoted, " OR ")
}

func encodeVector(v []float32) []byte {
	if len(v) == 0 {
		return nil
	}
	buf := make([]byte, 4*len(v))
	for i, f := range v {
		binary.LittleEndian.PutUint32(buf[i*4:], math.Float32bits(f))
	}
	return buf
}

func decodeVector(b []byte) []float32 {
	if len(b) < 4 {
		return nil
	}
	v := make([]float32, len(b)/4)
	for i := range v {
		v[i] = math.Float32frombits(binary.LittleEndian.Uint32(b[i*4:]))
	}
	return v
}

// parseTime reads aggregate timestamps, which the driver returns as text in
// time.Time's String form. Rows written before times were bound in UTC may
// still carry a monotonic clock suffix.
func parseTime(s string) time.Time {
	if i := strings.Index(s, " m="); i >= 0 {
		s = s[:i]
	}
	for _, layout := range []string{
		"2006-01-02 15:04:05.999999999 -0700 MST",
		"2006-01-02 15:04:05.999999999-07:00",
		time.RFC3339Nano,
		"2006-01-02 15:04:05",
	} {
		if t, err := time.Parse(layout, s); err == nil {
			return t
		}
	}
	return time.Time{}
}
