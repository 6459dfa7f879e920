package store

import (
	"cmp"
	"context"
	"database/sql"
	"encoding/binary"
	"encoding/json"
	"fmt"
	"math"
	"path/filepath"
	"slices"
	"time"

	"github.com/DreamCats/mailtriage/internal/embedding"
)

// Metric selects how vector distance is turned into a similarity score.
type Metric string

const (
	// MetricL2 uses squared Euclidean distance d and score 1 - d/2, clamped
	// to [0, 1]. For unit-length vectors this equals cosine similarity.
	MetricL2 Metric = "l2"

	// MetricCosine uses distance 1 - cos and score (1 + cos) / 2.
	MetricCosine Metric = "cosine"
)

// ParseMetric validates a metric name from configuration.
func ParseMetric(name string) (Metric, error) {
	switch Metric(name) {
	case MetricL2, "":
		return MetricL2, nil
	case MetricCosine:
		return MetricCosine, nil
	default:
		return "", fmt.Errorf("unsupported metric: %s", name)
	}
}

// Index is a persistent nearest-neighbour store over message vectors.
// Search is an exact scan over every stored vector, which is fine for the
// few thousand items a mailbox run accumulates.
type Index struct {
	db         *DB
	collection string
	metric     Metric
}

// OpenIndex opens (creating if needed) the collection stored under dir.
func OpenIndex(dir, collection string, metric Metric) (*Index, error) {
	if collection == "" {
		return nil, fmt.Errorf("collection name is required")
	}
	db, err := Open(filepath.Join(dir, collection+".db"))
	if err != nil {
		return nil, indexErr("open", err)
	}
	return NewIndex(db, collection, metric), nil
}

// NewIndex creates an index over an already opened database
func NewIndex(db *DB, collection string, metric Metric) *Index {
	if metric == "" {
		metric = MetricL2
	}
	return &Index{db: db, collection: collection, metric: metric}
}

// Collection returns the collection name
func (ix *Index) Collection() string {
	return ix.collection
}

// Metric returns the distance metric in use
func (ix *Index) Metric() Metric {
	return ix.metric
}

// Close releases the database handle
func (ix *Index) Close() error {
	return ix.db.Close()
}

// Insert adds item or replaces the item with the same id. The replacement
// overwrites vector, text and metadata; nothing is merged.
func (ix *Index) Insert(ctx context.Context, item Item, model string) error {
	if item.ID == "" {
		return indexErr("insert", fmt.Errorf("item id is required"))
	}
	if len(item.Vector) == 0 {
		return indexErr("insert", ErrEmptyVector)
	}

	dimension, err := ix.dimension(ctx, item.ID)
	if err != nil {
		return indexErr("insert", err)
	}
	if dimension != 0 && dimension != len(item.Vector) {
		return indexErr("insert", fmt.Errorf("%w: index has %d, got %d", ErrDimensionMismatch, dimension, len(item.Vector)))
	}

	metadata := item.Metadata
	if metadata == nil {
		metadata = map[string]string{}
	}
	metaJSON, err := json.Marshal(metadata)
	if err != nil {
		return indexErr("insert", fmt.Errorf("failed to encode metadata: %w", err))
	}

	now := time.Now().UTC().Format(time.RFC3339Nano)

	query := `
		INSERT INTO items (id, vector, dimension, text, metadata, model, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			vector = excluded.vector,
			dimension = excluded.dimension,
			text = excluded.text,
			metadata = excluded.metadata,
			model = excluded.model,
			updated_at = excluded.updated_at
	`

	_, err = ix.db.sqlDB.ExecContext(ctx, query,
		item.ID, vectorToBlob(item.Vector), len(item.Vector), item.Text, string(metaJSON), model, now, now)
	if err != nil {
		return indexErr("insert", fmt.Errorf("failed to insert item: %w", err))
	}

	return nil
}

// Get retrieves a stored item
func (ix *Index) Get(ctx context.Context, id string) (*Item, error) {
	query := `
		SELECT id, vector, dimension, text, metadata, model, created_at, updated_at
		FROM items WHERE id = ?
	`
	item, err := scanItem(ix.db.sqlDB.QueryRowContext(ctx, query, id))
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, ErrNotFound
		}
		return nil, indexErr("get", err)
	}
	return item, nil
}

// Query returns up to limit stored items nearest to vector, nearest first.
// excludeID is never part of the result. Equal distances are ordered by id.
func (ix *Index) Query(ctx context.Context, vector []float32, limit int, excludeID string) ([]Match, error) {
	if len(vector) == 0 {
		return nil, indexErr("query", ErrEmptyVector)
	}
	if limit <= 0 {
		return []Match{}, nil
	}

	rows, err := ix.db.sqlDB.QueryContext(ctx, "SELECT id, vector, dimension FROM items")
	if err != nil {
		return nil, indexErr("query", fmt.Errorf("failed to query vectors: %w", err))
	}
	defer rows.Close()

	results := make([]Match, 0, limit)

	for rows.Next() {
		var id string
		var blob []byte
		var dimension int

		if err := rows.Scan(&id, &blob, &dimension); err != nil {
			return nil, indexErr("query", fmt.Errorf("failed to scan row: %w", err))
		}
		if id == excludeID {
			continue
		}

		stored, err := blobToVector(blob)
		if err != nil {
			return nil, indexErr("query", fmt.Errorf("item %s: %w", id, err))
		}
		if len(stored) != len(vector) {
			return nil, indexErr("query", fmt.Errorf("%w: index has %d, got %d", ErrDimensionMismatch, len(stored), len(vector)))
		}

		results = append(results, ix.score(id, vector, stored))
	}

	if err := rows.Err(); err != nil {
		return nil, indexErr("query", fmt.Errorf("error iterating rows: %w", err))
	}

	slices.SortFunc(results, func(a, b Match) int {
		if c := cmp.Compare(a.Distance, b.Distance); c != 0 {
			return c
		}
		return cmp.Compare(a.ID, b.ID)
	})

	if len(results) > limit {
		results = results[:limit]
	}

	return results, nil
}

func (ix *Index) score(id string, query, stored []float32) Match {
	switch ix.metric {
	case MetricCosine:
		cos := float64(embedding.Similarity(query, stored))
		return Match{ID: id, Distance: 1 - cos, Score: clamp01((1 + cos) / 2)}
	default:
		d := float64(embedding.SquaredL2Distance(query, stored))
		return Match{ID: id, Distance: d, Score: clamp01(1 - d/2)}
	}
}

// Count returns the number of stored items, or 0 if the store cannot be read.
func (ix *Index) Count(ctx context.Context) int {
	var count int
	if err := ix.db.sqlDB.QueryRowContext(ctx, "SELECT COUNT(*) FROM items").Scan(&count); err != nil {
		return 0
	}
	return count
}

// Clear deletes every item. There is no undo.
func (ix *Index) Clear(ctx context.Context) error {
	return indexErr("clear", ix.db.Clear(ctx))
}

// Stats reports size and model information for the collection
func (ix *Index) Stats(ctx context.Context) (*DBStats, error) {
	stats, err := ix.db.Stats(ctx)
	if err != nil {
		return nil, indexErr("stats", err)
	}
	return stats, nil
}

// dimension returns the dimensionality of the stored vectors, ignoring the
// item excludeID, or 0 when there are none.
func (ix *Index) dimension(ctx context.Context, excludeID string) (int, error) {
	var dimension int
	err := ix.db.sqlDB.QueryRowContext(ctx, "SELECT dimension FROM items WHERE id <> ? LIMIT 1", excludeID).Scan(&dimension)
	if err == sql.ErrNoRows {
		return 0, nil
	}
	if err != nil {
		return 0, fmt.Errorf("failed to read dimension: %w", err)
	}
	return dimension, nil
}

func scanItem(row rowScanner) (*Item, error) {
	var item Item
	var blob []byte
	var dimension int
	var metaJSON string
	var createdAtValue any
	var updatedAtValue any

	if err := row.Scan(&item.ID, &blob, &dimension, &item.Text, &metaJSON, &item.Model, &createdAtValue, &updatedAtValue); err != nil {
		return nil, err
	}

	vector, err := blobToVector(blob)
	if err != nil {
		return nil, fmt.Errorf("failed to convert blob to vector: %w", err)
	}
	if len(vector) != dimension {
		return nil, fmt.Errorf("vector dimension mismatch: expected %d, got %d", dimension, len(vector))
	}
	item.Vector = vector

	if err := json.Unmarshal([]byte(metaJSON), &item.Metadata); err != nil {
		return nil, fmt.Errorf("failed to decode metadata: %w", err)
	}

	if item.CreatedAt, err = parseTimeValue(createdAtValue); err != nil {
		return nil, fmt.Errorf("failed to parse created_at: %w", err)
	}
	if item.UpdatedAt, err = parseTimeValue(updatedAtValue); err != nil {
		return nil, fmt.Errorf("failed to parse updated_at: %w", err)
	}

	return &item, nil
}

func clamp01(v float64) float64 {
	return math.Max(0, math.Min(1, v))
}

// vectorToBlob converts a float32 slice to a binary blob
func vectorToBlob(vector []float32) []byte {
	blob := make([]byte, len(vector)*4)
	for i, v := range vector {
		binary.LittleEndian.PutUint32(blob[i*4:i*4+4], math.Float32bits(v))
	}
	return blob
}

// blobToVector converts a binary blob to a float32 slice
func blobToVector(blob []byte) ([]float32, error) {
	if len(blob)%4 != 0 {
		return nil, fmt.Errorf("blob size %d is not a multiple of 4", len(blob))
	}

	vector := make([]float32, len(blob)/4)
	for i := range vector {
		vector[i] = math.Float32frombits(binary.LittleEndian.Uint32(blob[i*4 : i*4+4]))
	}

	return vector, nil
}
