package ragquiz

import (
	"context"
	"database/sql"
	"encoding/binary"
	"encoding/json"
	"fmt"
	"math"
	"os"
	"sort"
	"strings"

	vec "github.com/asg017/sqlite-vec-go-bindings/cgo"
	_ "github.com/mattn/go-sqlite3"
)

func init() {
	// Register the sqlite-vec extension with the go-sqlite3 driver so
	// vec_distance_cosine is available on every connection.
	vec.Auto()
}

// tagSlots is the bounded number of numbered metadata keys (tags_0..tags_3)
// a theme filter fans out across. Stores shard list-valued tags over these
// slots, so an exact-match filter must OR across all of them.
const tagSlots = 4

// SQLiteVecStore is a VectorStore over a sqlite-vec database with one table:
//
//	vec_blocks(embedding BLOB, content TEXT, metadata TEXT)
//
// where metadata is a JSON object carrying source, section_heading, the
// aggregate comma-joined tags key, and the numbered tags_N slots.
type SQLiteVecStore struct {
	db *sql.DB
}

// OpenVecStore opens the store read-only. A missing file is an error the
// caller resolves at the fail-soft boundary (run continues without
// retrieval).
func OpenVecStore(path string) (*SQLiteVecStore, error) {
	if _, err := os.Stat(path); err != nil {
		return nil, &RetrievalError{Op: "open", Err: err}
	}
	db, err := sql.Open("sqlite3", fmt.Sprintf("%s?mode=ro", path))
	if err != nil {
		return nil, &RetrievalError{Op: "open", Err: err}
	}
	if err := db.Ping(); err != nil {
		db.Close()
		return nil, &RetrievalError{Op: "open", Err: err}
	}
	return &SQLiteVecStore{db: db}, nil
}

// Close closes the underlying database.
func (s *SQLiteVecStore) Close() error {
	return s.db.Close()
}

// Themes returns the distinct tag values across the numbered slots. The
// aggregate JSON-encoded "tags" key is excluded; it duplicates the slots and
// would leak comma-joined composites into the pool.
func (s *SQLiteVecStore) Themes(ctx context.Context) ([]string, error) {
	rows, err := s.db.QueryContext(ctx, "SELECT metadata FROM vec_blocks")
	if err != nil {
		return nil, &RetrievalError{Op: "themes", Err: err}
	}
	defer rows.Close()

	uniq := make(map[string]struct{})
	for rows.Next() {
		var metaJSON string
		if err := rows.Scan(&metaJSON); err != nil {
			continue
		}
		var meta map[string]any
		if err := json.Unmarshal([]byte(metaJSON), &meta); err != nil {
			continue
		}
		for key, val := range meta {
			if key == "tags" || !strings.HasPrefix(key, "tags_") {
				continue
			}
			t := strings.ToLower(strings.TrimSpace(fmt.Sprint(val)))
			if t != "" {
				uniq[t] = struct{}{}
			}
		}
	}
	if err := rows.Err(); err != nil {
		return nil, &RetrievalError{Op: "themes", Err: err}
	}

	themes := make([]string, 0, len(uniq))
	for t := range uniq {
		themes = append(themes, t)
	}
	sort.Strings(themes)
	return themes, nil
}

// Query ranks blocks by cosine distance to the vector. A non-empty theme
// requires an exact match on one of the numbered tag slots (logical OR).
func (s *SQLiteVecStore) Query(ctx context.Context, vector []float32, topK int, theme string) ([]Document, error) {
	if topK <= 0 {
		topK = DefaultRAGTopK
	}
	blob := encodeFloat32Blob(vector)

	query := `
		SELECT content, metadata, vec_distance_cosine(embedding, ?) AS distance
		FROM vec_blocks`
	args := []any{blob}
	if theme != "" {
		var clauses []string
		for i := 0; i < tagSlots; i++ {
			clauses = append(clauses, fmt.Sprintf("lower(json_extract(metadata, '$.tags_%d')) = ?", i))
			args = append(args, strings.ToLower(theme))
		}
		query += "\n\t\tWHERE " + strings.Join(clauses, " OR ")
	}
	query += "\n\t\tORDER BY distance ASC\n\t\tLIMIT ?"
	args = append(args, topK)

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, &RetrievalError{Op: "query", Err: err}
	}
	defer rows.Close()

	var docs []Document
	for rows.Next() {
		var content, metaJSON string
		var distance float64
		if err := rows.Scan(&content, &metaJSON, &distance); err != nil {
			Warnf("Failed to scan retrieval row: %v", err)
			continue
		}
		docs = append(docs, Document{Content: content, Meta: decodeMeta(metaJSON)})
	}
	if err := rows.Err(); err != nil {
		return nil, &RetrievalError{Op: "query", Err: err}
	}
	return docs, nil
}

func decodeMeta(metaJSON string) map[string]string {
	var raw map[string]any
	if err := json.Unmarshal([]byte(metaJSON), &raw); err != nil {
		return map[string]string{}
	}
	meta := make(map[string]string, len(raw))
	for k, v := range raw {
		meta[k] = fmt.Sprint(v)
	}
	return meta
}

// encodeFloat32Blob packs the vector into the little-endian float32 blob
// layout sqlite-vec expects.
func encodeFloat32Blob(v []float32) []byte {
	out := make([]byte, len(v)*4)
	for i, f := range v {
		binary.LittleEndian.PutUint32(out[i*4:], math.Float32bits(f))
	}
	return out
}
