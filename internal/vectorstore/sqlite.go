package vectorstore

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/google/uuid"
	_ "github.com/mattn/go-sqlite3"
	"go.uber.org/zap"

	"github.com/thesandybridge/kb-index/pkg/utils"
)

// SQLiteStore keeps a collection in a local SQLite file and answers queries by brute-force
// cosine distance (1 - cosine similarity).
type SQLiteStore struct {
	db         *sql.DB
	collection string
	logger     *zap.Logger
}

// NewSQLiteStore opens or creates a SQLite database at dbPath and initializes the schema.
// Parent directories are created if they do not exist.
func NewSQLiteStore(dbPath, collection string, opts ...Option) (*SQLiteStore, error) {
	if dir := filepath.Dir(dbPath); dir != "." {
		if err := os.MkdirAll(dir, 0755); err != nil {
			return nil, fmt.Errorf("failed to create database directory: %w", err)
		}
	}
	db, err := sql.Open("sqlite3", dbPath)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	if _, err := db.Exec("PRAGMA journal_mode=WAL"); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("failed to enable WAL: %w", err)
	}

	if err := initSchema(db); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("failed to initialize schema: %w", err)
	}

	if collection == "" {
		collection = DefaultCollection
	}
	o := buildOptions(opts)
	return &SQLiteStore{db: db, collection: collection, logger: o.logger}, nil
}

func initSchema(db *sql.DB) error {
	schema := `
	CREATE TABLE IF NOT EXISTS collections (
		id TEXT PRIMARY KEY,
		name TEXT NOT NULL UNIQUE,
		created_at TIMESTAMP DEFAULT CURRENT_TIMESTAMP
	);

	CREATE TABLE IF NOT EXISTS items (
		id TEXT PRIMARY KEY,
		collection_id TEXT NOT NULL,
		document TEXT NOT NULL,
		metadata TEXT,
		embedding BLOB NOT NULL,
		created_at TIMESTAMP DEFAULT CURRENT_TIMESTAMP,
		FOREIGN KEY (collection_id) REFERENCES collections(id) ON DELETE CASCADE
	);

	CREATE INDEX IF NOT EXISTS idx_items_collection ON items(collection_id);
	`
	_, err := db.Exec(schema)
	return err
}

// EnsureCollection creates the collection if it does not exist.
func (s *SQLiteStore) EnsureCollection(ctx context.Context) error {
	_, err := s.db.ExecContext(ctx,
		`INSERT OR IGNORE INTO collections (id, name) VALUES (?, ?)`, uuid.NewString(), s.collection)
	if err != nil {
		return fmt.Errorf("failed to create collection: %w", err)
	}
	return nil
}

// CollectionID returns the id of the configured collection.
func (s *SQLiteStore) CollectionID(ctx context.Context) (string, error) {
	var id string
	err := s.db.QueryRowContext(ctx, `SELECT id FROM collections WHERE name = ?`, s.collection).Scan(&id)
	if errors.Is(err, sql.ErrNoRows) {
		return "", fmt.Errorf("%w: %q", ErrCollectionNotFound, s.collection)
	}
	if err != nil {
		return "", fmt.Errorf("failed to look up collection: %w", err)
	}
	return id, nil
}

// Add inserts or replaces one item.
func (s *SQLiteStore) Add(ctx context.Context, item Item) error {
	colID, err := s.CollectionID(ctx)
	if err != nil {
		return err
	}
	metadataJSON, err := json.Marshal(item.Metadata)
	if err != nil {
		return fmt.Errorf("failed to marshal metadata: %w", err)
	}
	_, err = s.db.ExecContext(ctx,
		`INSERT OR REPLACE INTO items (id, collection_id, document, metadata, embedding) VALUES (?, ?, ?, ?, ?)`,
		item.ID, colID, item.Document, string(metadataJSON), utils.EncodeEmbedding(item.Embedding))
	if err != nil {
		return fmt.Errorf("failed to insert item: %w", err)
	}
	return nil
}

// Query scans the collection and returns the topK items with the smallest cosine distance.
// Items whose dimensionality differs from embedding are skipped.
func (s *SQLiteStore) Query(ctx context.Context, embedding []float32, topK int) ([]Match, error) {
	colID, err := s.CollectionID(ctx)
	if err != nil {
		return nil, err
	}
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, document, metadata, embedding FROM items WHERE collection_id = ? ORDER BY rowid`, colID)
	if err != nil {
		return nil, fmt.Errorf("failed to query items: %w", err)
	}
	defer rows.Close()

	var matches []Match
	for rows.Next() {
		var (
			m        Match
			metadata sql.NullString
			blob     []byte
		)
		if err := rows.Scan(&m.ID, &m.Document, &metadata, &blob); err != nil {
			return nil, fmt.Errorf("failed to scan item: %w", err)
		}
		vec, err := utils.DecodeEmbedding(blob)
		if err != nil {
			return nil, fmt.Errorf("item %s: %w", m.ID, err)
		}
		if len(vec) != len(embedding) {
			continue
		}
		if metadata.Valid && metadata.String != "" && metadata.String != "null" {
			if err := json.Unmarshal([]byte(metadata.String), &m.Metadata); err != nil {
				return nil, fmt.Errorf("item %s: failed to unmarshal metadata: %w", m.ID, err)
			}
		}
		m.Distance = 1 - utils.CosineSimilarity(embedding, vec)
		matches = append(matches, m)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	sort.SliceStable(matches, func(i, j int) bool { return matches[i].Distance < matches[j].Distance })
	if topK > 0 && len(matches) > topK {
		matches = matches[:topK]
	}
	s.logger.Debug("sqlite query", zap.Int("results", len(matches)))
	return matches, nil
}

// Delete removes ids in one transaction.
func (s *SQLiteStore) Delete(ctx context.Context, ids []string) error {
	if len(ids) == 0 {
		return nil
	}
	colID, err := s.CollectionID(ctx)
	if err != nil {
		return err
	}
	args := make([]any, 0, len(ids)+1)
	args = append(args, colID)
	for _, id := range ids {
		args = append(args, id)
	}
	placeholders := strings.TrimSuffix(strings.Repeat("?,", len(ids)), ",")
	query := `DELETE FROM items WHERE collection_id = ? AND id IN (` + placeholders + `)`
	if _, err := s.db.ExecContext(ctx, query, args...); err != nil {
		return fmt.Errorf("failed to delete items: %w", err)
	}
	return nil
}

// Count returns the number of items in the collection.
func (s *SQLiteStore) Count(ctx context.Context) (int, error) {
	var n int
	err := s.db.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM items i JOIN collections c ON c.id = i.collection_id WHERE c.name = ?`, s.collection).Scan(&n)
	return n, err
}

// Close closes the database.
func (s *SQLiteStore) Close() error {
	return s.db.Close()
}
