package retrieval

import (
	"container/heap"
	"context"
	"database/sql"
	"encoding/binary"
	"encoding/json"
	"fmt"
	"math"
	"slices"
	"sort"
	"strings"
	"time"
)

var _ VectorStore = (*SQLiteStore)(nil)

const storeTimeFormat = "2006-01-02T15:04:05.000000Z"

// SQLiteStore provides namespaced vector storage and brute-force cosine
// similarity search over the knowledge_vectors table created by the storage
// migrations.
type SQLiteStore struct {
	db *sql.DB
}

// NewSQLiteStore wraps an existing *sql.DB for vector operations.
func NewSQLiteStore(db *sql.DB) *SQLiteStore {
	return &SQLiteStore{db: db}
}

// Insert adds records in one transaction. Every record needs a namespace.
func (s *SQLiteStore) Insert(ctx context.Context, records []Record) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("beginning insert transaction: %w", err)
	}
	defer tx.Rollback()

	stmt, err := tx.PrepareContext(ctx, `
		INSERT INTO knowledge_vectors (id, namespace, source_id, metadata_json, embedding, created_at)
		VALUES (?, ?, ?, ?, ?, ?)`)
	if err != nil {
		return fmt.Errorf("preparing insert statement: %w", err)
	}
	defer stmt.Close()

	for _, r := range records {
		if r.Namespace == "" {
			return fmt.Errorf("record %s has no namespace", r.ID)
		}
		md, err := json.Marshal(r.Metadata)
		if err != nil {
			return fmt.Errorf("encoding metadata for %s: %w", r.ID, err)
		}
		createdAt := r.CreatedAt
		if createdAt.IsZero() {
			createdAt = time.Now()
		}
		if _, err := stmt.ExecContext(ctx, r.ID, r.Namespace, r.SourceID, string(md),
			encodeFloat32s(r.Embedding), createdAt.UTC().Format(storeTimeFormat)); err != nil {
			return fmt.Errorf("inserting record %s: %w", r.ID, err)
		}
	}

	return tx.Commit()
}

// idScore holds only the ID and score during the scan phase of Search.
type idScore struct {
	ID    string
	Score float32
}

// Search performs brute-force cosine similarity over the namespace. With a
// filter, metadata is decoded during the scan so only matching rows compete
// for the top-K slots.
func (s *SQLiteStore) Search(ctx context.Context, namespace string, vector []float32, topK int, filter Filter) ([]ScoredRecord, error) {
	if topK <= 0 {
		return nil, nil
	}
	queryNorm := norm(vector)
	if queryNorm == 0 {
		return nil, nil
	}

	cols := `id, embedding`
	if len(filter) > 0 {
		cols += `, metadata_json`
	}
	rows, err := s.db.QueryContext(ctx, `SELECT `+cols+` FROM knowledge_vectors WHERE namespace = ?`, namespace)
	if err != nil {
		return nil, fmt.Errorf("querying vectors: %w", err)
	}
	defer rows.Close()

	h := &idScoreHeap{}
	var buf []float32

	for rows.Next() {
		var id string
		var blob []byte
		if len(filter) > 0 {
			var mdJSON string
			if err := rows.Scan(&id, &blob, &mdJSON); err != nil {
				return nil, fmt.Errorf("scanning row: %w", err)
			}
			var md Metadata
			if err := json.Unmarshal([]byte(mdJSON), &md); err != nil {
				return nil, fmt.Errorf("decoding metadata for %s: %w", id, err)
			}
			if !filter.Matches(md) {
				continue
			}
		} else if err := rows.Scan(&id, &blob); err != nil {
			return nil, fmt.Errorf("scanning row: %w", err)
		}

		buf, err = decodeFloat32sInto(buf, blob)
		if err != nil {
			return nil, fmt.Errorf("decoding embedding for %s: %w", id, err)
		}

		score := cosine(vector, buf, queryNorm)
		if h.Len() < topK {
			heap.Push(h, idScore{ID: id, Score: score})
		} else if score > (*h)[0].Score {
			(*h)[0] = idScore{ID: id, Score: score}
			heap.Fix(h, 0)
		}
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating rows: %w", err)
	}
	rows.Close()

	if h.Len() == 0 {
		return nil, nil
	}

	// Phase 2: fetch full records only for the top-K IDs.
	topIDs := make([]string, h.Len())
	scores := make(map[string]float32, h.Len())
	for i := len(topIDs) - 1; i >= 0; i-- {
		item := heap.Pop(h).(idScore)
		topIDs[i] = item.ID
		scores[item.ID] = item.Score
	}

	records, err := s.getByIDs(ctx, topIDs)
	if err != nil {
		return nil, fmt.Errorf("fetching top-K records: %w", err)
	}

	results := make([]ScoredRecord, 0, len(records))
	for _, r := range records {
		results = append(results, ScoredRecord{Record: r, Score: scores[r.ID]})
	}
	// IN does not preserve order; ties break on ID so results are stable.
	sort.Slice(results, func(i, j int) bool {
		if results[i].Score != results[j].Score {
			return results[i].Score > results[j].Score
		}
		return results[i].ID < results[j].ID
	})
	return results, nil
}

func (s *SQLiteStore) getByIDs(ctx context.Context, ids []string) ([]Record, error) {
	args := make([]any, len(ids))
	for i, id := range ids {
		args[i] = id
	}
	query := `SELECT id, namespace, source_id, metadata_json, embedding, created_at
		FROM knowledge_vectors WHERE id IN (?` + strings.Repeat(",?", len(ids)-1) + `)`

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var records []Record
	for rows.Next() {
		var r Record
		var mdJSON, createdAt string
		var blob []byte
		if err := rows.Scan(&r.ID, &r.Namespace, &r.SourceID, &mdJSON, &blob, &createdAt); err != nil {
			return nil, fmt.Errorf("scanning record: %w", err)
		}
		if err := json.Unmarshal([]byte(mdJSON), &r.Metadata); err != nil {
			return nil, fmt.Errorf("decoding metadata for %s: %w", r.ID, err)
		}
		if r.Embedding, err = decodeFloat32s(blob); err != nil {
			return nil, fmt.Errorf("decoding embedding for %s: %w", r.ID, err)
		}
		if r.CreatedAt, err = time.Parse(storeTimeFormat, createdAt); err != nil {
			return nil, fmt.Errorf("parsing created_at for %s: %w", r.ID, err)
		}
		records = append(records, r)
	}
	return records, rows.Err()
}

// DeleteBySource removes every record derived from sourceID and returns how
// many were removed.
func (s *SQLiteStore) DeleteBySource(ctx context.Context, sourceID string) (int, error) {
	if sourceID == "" {
		return 0, fmt.Errorf("source id is required")
	}
	res, err := s.db.ExecContext(ctx, "DELETE FROM knowledge_vectors WHERE source_id = ?", sourceID)
	if err != nil {
		return 0, fmt.Errorf("deleting records of %s: %w", sourceID, err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return 0, err
	}
	return int(n), nil
}

// Count returns the number of records in a namespace; empty counts all.
func (s *SQLiteStore) Count(ctx context.Context, namespace string) (int, error) {
	var count int
	var err error
	if namespace == "" {
		err = s.db.QueryRowContext(ctx, "SELECT COUNT(*) FROM knowledge_vectors").Scan(&count)
	} else {
		err = s.db.QueryRowContext(ctx, "SELECT COUNT(*) FROM knowledge_vectors WHERE namespace = ?", namespace).Scan(&count)
	}
	return count, err
}

// Namespaces returns the record count of every non-empty namespace.
func (s *SQLiteStore) Namespaces(ctx context.Context) (map[string]int, error) {
	rows, err := s.db.QueryContext(ctx, "SELECT namespace, COUNT(*) FROM knowledge_vectors GROUP BY namespace")
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	out := make(map[string]int)
	for rows.Next() {
		var ns string
		var n int
		if err := rows.Scan(&ns, &n); err != nil {
			return nil, err
		}
		out[ns] = n
	}
	return out, rows.Err()
}

// encodeFloat32s packs v as little-endian IEEE 754 values.
func encodeFloat32s(v []float32) []byte {
	out := make([]byte, 0, len(v)*4)
	for _, f := range v {
		out = binary.LittleEndian.AppendUint32(out, math.Float32bits(f))
	}
	return out
}

func decodeFloat32s(b []byte) ([]float32, error) {
	return decodeFloat32sInto(nil, b)
}

// decodeFloat32sInto unpacks b into buf, growing it only when needed. Search
// reuses one buffer across every scanned row.
func decodeFloat32sInto(buf []float32, b []byte) ([]float32, error) {
	if len(b)%4 != 0 {
		return nil, fmt.Errorf("embedding blob of %d bytes is not a whole number of float32s", len(b))
	}
	buf = slices.Grow(buf[:0], len(b)/4)
	for off := 0; off < len(b); off += 4 {
		buf = append(buf, math.Float32frombits(binary.LittleEndian.Uint32(b[off:])))
	}
	return buf, nil
}

// norm returns the L2 norm of a vector.
func norm(v []float32) float32 {
	var sum float64
	for _, f := range v {
		sum += float64(f) * float64(f)
	}
	return float32(math.Sqrt(sum))
}

// cosine computes dot(a,b) / (aNorm * |b|). Mismatched dimensions score 0.
func cosine(a, b []float32, aNorm float32) float32 {
	if len(a) != len(b) {
		return 0
	}
	var dot, bNormSq float64
	for i := range a {
		dot += float64(a[i]) * float64(b[i])
		bNormSq += float64(b[i]) * float64(b[i])
	}
	if bNormSq == 0 {
		return 0
	}
	return float32(dot / (float64(aNorm) * math.Sqrt(bNormSq)))
}

// idScoreHeap is a min-heap of idScore ordered by Score.
type idScoreHeap []idScore

func (h idScoreHeap) Len() int           { return len(h) }
func (h idScoreHeap) Less(i, j int) bool { return h[i].Score < h[j].Score }
func (h idScoreHeap) Swap(i, j int)      { h[i], h[j] = h[j], h[i] }
func (h *idScoreHeap) Push(x any)        { *h = append(*h, x.(idScore)) }
func (h *idScoreHeap) Pop() any {
	old := *h
	n := len(old)
	item := old[n-1]
	*h = old[:n-1]
	return item
}
