package index

import (
	"context"
	"database/sql"
	"encoding/binary"
	"hash/fnv"
	"math"
	"strings"

	_ "github.com/mattn/go-sqlite3"
	"github.com/rotisserie/eris"

	"github.com/sells-group/finloom/internal/model"
)

// VectorIndex stores chunk embeddings in SQLite and answers cosine
// similarity queries through the sqlite-vec extension.
type VectorIndex struct {
	db         *sql.DB
	dimensions int
}

const vectorSchema = `
CREATE TABLE IF NOT EXISTS chunk_vectors (
	point_id         INTEGER PRIMARY KEY,
	chunk_id         TEXT NOT NULL,
	accession_number TEXT NOT NULL,
	ticker           TEXT NOT NULL DEFAULT '',
	company_name     TEXT NOT NULL DEFAULT '',
	filing_date      TEXT NOT NULL DEFAULT '',
	form_type        TEXT NOT NULL DEFAULT '',
	fiscal_year      INTEGER NOT NULL DEFAULT 0,
	section_item     TEXT NOT NULL,
	section_title    TEXT NOT NULL DEFAULT '',
	chunk_index      INTEGER NOT NULL,
	token_count      INTEGER NOT NULL,
	contains_tables  INTEGER NOT NULL DEFAULT 0,
	contains_lists   INTEGER NOT NULL DEFAULT 0,
	contains_numbers INTEGER NOT NULL DEFAULT 0,
	context_prefix   TEXT NOT NULL DEFAULT '',
	content          TEXT NOT NULL,
	embedding        BLOB NOT NULL
);
CREATE UNIQUE INDEX IF NOT EXISTS idx_chunk_vectors_chunk_id ON chunk_vectors (chunk_id);
CREATE INDEX IF NOT EXISTS idx_chunk_vectors_ticker ON chunk_vectors (ticker);
`

// OpenVectorIndex opens (creating if needed) the vector index at path.
func OpenVectorIndex(ctx context.Context, path string, dimensions int) (*VectorIndex, error) {
	db, err := sql.Open("sqlite3", path)
	if err != nil {
		return nil, eris.Wrap(err, "index: open vector db")
	}
	if _, err := db.ExecContext(ctx, "PRAGMA journal_mode = WAL"); err != nil {
		_ = db.Close()
		return nil, eris.Wrap(err, "index: set journal mode")
	}
	if _, err := db.ExecContext(ctx, vectorSchema); err != nil {
		_ = db.Close()
		return nil, eris.Wrap(err, "index: create vector schema")
	}
	if dimensions <= 0 {
		dimensions = 768
	}
	return &VectorIndex{db: db, dimensions: dimensions}, nil
}

// Close releases the underlying database.
func (v *VectorIndex) Close() error {
	return v.db.Close()
}

// PointID derives the stable integer point id from a chunk id.
func PointID(chunkID string) int64 {
	h := fnv.New64a()
	_, _ = h.Write([]byte(chunkID))
	return int64(h.Sum64())
}

// Upsert writes chunks with their embeddings. Re-upserting the same
// chunk_id overwrites the existing point.
func (v *VectorIndex) Upsert(ctx context.Context, chunks []*model.Chunk) error {
	tx, err := v.db.BeginTx(ctx, nil)
	if err != nil {
		return eris.Wrap(err, "index: begin upsert tx")
	}
	defer func() { _ = tx.Rollback() }()

	stmt, err := tx.PrepareContext(ctx, `
		INSERT OR REPLACE INTO chunk_vectors (
			point_id, chunk_id, accession_number, ticker, company_name,
			filing_date, form_type, fiscal_year, section_item, section_title,
			chunk_index, token_count, contains_tables, contains_lists,
			contains_numbers, context_prefix, content, embedding
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`)
	if err != nil {
		return eris.Wrap(err, "index: prepare upsert")
	}
	defer stmt.Close()

	for _, c := range chunks {
		if len(c.Embedding) != v.dimensions {
			return eris.Errorf("index: chunk %s has %d dimensions, want %d", c.ChunkID, len(c.Embedding), v.dimensions)
		}
		_, err := stmt.ExecContext(ctx,
			PointID(c.ChunkID), c.ChunkID, c.AccessionNumber, c.Ticker, c.CompanyName,
			c.FilingDate, c.FormType, c.FiscalYear, c.SectionItem, c.SectionTitle,
			c.ChunkIndex, c.TokenCount, boolInt(c.ContainsTables), boolInt(c.ContainsLists),
			boolInt(c.ContainsNumbers), contextPrefix(c), c.Text, encodeVector(c.Embedding),
		)
		if err != nil {
			return eris.Wrapf(err, "index: upsert chunk %s", c.ChunkID)
		}
	}
	return eris.Wrap(tx.Commit(), "index: commit upsert")
}

// Search returns the topK most similar chunks to the query vector, after
// applying the filter. Scores are cosine similarity in [−1, 1].
func (v *VectorIndex) Search(ctx context.Context, vector []float32, topK int, filter Filter) ([]Hit, error) {
	if len(vector) != v.dimensions {
		return nil, eris.Errorf("index: query vector has %d dimensions, want %d", len(vector), v.dimensions)
	}

	where, args := filterClause(filter)
	args = append([]any{encodeVector(vector)}, args...)
	args = append(args, topK)

	query := `
		SELECT chunk_id, content, vec_distance_cosine(embedding, ?) AS distance, ` + payloadColumns + `
		FROM chunk_vectors` + where + `
		ORDER BY distance ASC
		LIMIT ?`

	rows, err := v.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, eris.Wrap(err, "index: vector search")
	}
	defer rows.Close()

	var hits []Hit
	for rows.Next() {
		hit, distance, err := scanHit(rows)
		if err != nil {
			return nil, err
		}
		hit.Score = 1 - distance
		hits = append(hits, hit)
	}
	return hits, eris.Wrap(rows.Err(), "index: iterate vector hits")
}

// FetchByChunkIDs returns full payloads for the given chunk ids, keyed by
// chunk_id. Missing ids are absent from the result.
func (v *VectorIndex) FetchByChunkIDs(ctx context.Context, chunkIDs []string) (map[string]Hit, error) {
	if len(chunkIDs) == 0 {
		return map[string]Hit{}, nil
	}

	placeholders := strings.TrimSuffix(strings.Repeat("?, ", len(chunkIDs)), ", ")
	args := make([]any, len(chunkIDs))
	for i, id := range chunkIDs {
		args[i] = id
	}

	rows, err := v.db.QueryContext(ctx, `
		SELECT chunk_id, content, 0.0 AS distance, `+payloadColumns+`
		FROM chunk_vectors
		WHERE chunk_id IN (`+placeholders+`)`, args...)
	if err != nil {
		return nil, eris.Wrap(err, "index: fetch by chunk ids")
	}
	defer rows.Close()

	out := make(map[string]Hit, len(chunkIDs))
	for rows.Next() {
		hit, _, err := scanHit(rows)
		if err != nil {
			return nil, err
		}
		out[hit.ChunkID] = hit
	}
	return out, eris.Wrap(rows.Err(), "index: iterate fetched chunks")
}

// Count reports the number of indexed points.
func (v *VectorIndex) Count(ctx context.Context) (int, error) {
	var n int
	err := v.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM chunk_vectors`).Scan(&n)
	return n, eris.Wrap(err, "index: count points")
}

const payloadColumns = `accession_number, ticker, company_name, filing_date,
	form_type, fiscal_year, section_item, section_title, chunk_index,
	token_count, contains_tables, contains_lists, contains_numbers`

func scanHit(rows *sql.Rows) (Hit, float64, error) {
	var (
		hit      Hit
		distance float64
		m        Metadata
		tables   int
		lists    int
		numbers  int
	)
	err := rows.Scan(&hit.ChunkID, &hit.Content, &distance,
		&m.AccessionNumber, &m.Ticker, &m.CompanyName, &m.FilingDate,
		&m.FormType, &m.FiscalYear, &m.SectionItem, &m.SectionTitle,
		&m.ChunkIndex, &m.TokenCount, &tables, &lists, &numbers)
	if err != nil {
		return Hit{}, 0, eris.Wrap(err, "index: scan hit")
	}
	m.ContainsTables = tables != 0
	m.ContainsLists = lists != 0
	m.ContainsNumbers = numbers != 0
	hit.Metadata = m
	return hit, distance, nil
}

func filterClause(f Filter) (string, []any) {
	var conds []string
	var args []any
	if f.Ticker != "" {
		conds = append(conds, "ticker = ?")
		args = append(args, f.Ticker)
	}
	if f.SectionItem != "" {
		conds = append(conds, "section_item = ?")
		args = append(args, f.SectionItem)
	}
	if f.FilingDateFrom != "" {
		conds = append(conds, "filing_date >= ?")
		args = append(args, f.FilingDateFrom)
	}
	if f.FilingDateTo != "" {
		conds = append(conds, "filing_date <= ?")
		args = append(args, f.FilingDateTo)
	}
	if len(conds) == 0 {
		return "", nil
	}
	return " WHERE " + strings.Join(conds, " AND "), args
}

// encodeVector packs a float32 slice little-endian, the layout sqlite-vec
// expects for float[] blobs.
func encodeVector(vec []float32) []byte {
	buf := make([]byte, len(vec)*4)
	for i, f := range vec {
		binary.LittleEndian.PutUint32(buf[i*4:], math.Float32bits(f))
	}
	return buf
}

func boolInt(b bool) int {
	if b {
		return 1
	}
	return 0
}
