package cache

import (
	"context"
	"crypto/sha256"
	"database/sql"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/google/uuid"
	_ "github.com/marcboeker/go-duckdb"
)

// Client handles DuckDB-based caching of aggregate query results. Aggregation
// queries over closed date windows are deterministic reads, so serving them
// from cache cannot change the report.
type Client struct {
	db        *sql.DB
	cachePath string
}

// DefaultPath returns ~/.vcfunnel/cache.db.
func DefaultPath() (string, error) {
	homeDir, err := os.UserHomeDir()
	if err != nil {
		return "", fmt.Errorf("failed to get user home directory: %w", err)
	}
	return filepath.Join(homeDir, ".vcfunnel", "cache.db"), nil
}

// NewClient opens (creating if needed) the cache database at path.
func NewClient(path string) (*Client, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return nil, fmt.Errorf("failed to create cache directory: %w", err)
	}

	db, err := sql.Open("duckdb", path)
	if err != nil {
		return nil, fmt.Errorf("failed to open DuckDB connection: %w", err)
	}

	client := &Client{db: db, cachePath: path}
	if err := client.initializeTables(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to initialize cache tables: %w", err)
	}
	return client, nil
}

// Close closes the database connection.
func (c *Client) Close() error {
	if c.db != nil {
		return c.db.Close()
	}
	return nil
}

// Path returns the cache database location.
func (c *Client) Path() string {
	return c.cachePath
}

func (c *Client) initializeTables() error {
	queries := []string{
		`CREATE TABLE IF NOT EXISTS query_cache (
			entry_id VARCHAR PRIMARY KEY,
			query_hash VARCHAR NOT NULL UNIQUE,
			result_data TEXT NOT NULL,      -- JSON-encoded result payload
			created_at TIMESTAMP DEFAULT NOW(),
			expires_at TIMESTAMP NOT NULL,
			last_accessed TIMESTAMP DEFAULT NOW()
		)`,

		`CREATE TABLE IF NOT EXISTS cache_stats (
			id INTEGER PRIMARY KEY,
			total_hits INTEGER DEFAULT 0,
			total_misses INTEGER DEFAULT 0,
			last_cleanup TIMESTAMP,
			updated_at TIMESTAMP DEFAULT NOW()
		)`,
	}

	for _, q := range queries {
		if _, err := c.db.Exec(q); err != nil {
			return fmt.Errorf("failed to create table: %w", err)
		}
	}

	_, err := c.db.Exec(`INSERT OR IGNORE INTO cache_stats (id) VALUES (1)`)
	return err
}

// Get unmarshals the cached payload for a query hash into result when a
// non-expired entry exists.
func (c *Client) Get(ctx context.Context, queryHash string, result any) (bool, error) {
	var data string
	var expiresAt time.Time

	err := c.db.QueryRowContext(ctx, `
		SELECT result_data, expires_at
		FROM query_cache
		WHERE query_hash = ?
	`, queryHash).Scan(&data, &expiresAt)

	if err != nil {
		if err == sql.ErrNoRows {
			c.incrementMisses()
			return false, nil
		}
		return false, fmt.Errorf("failed to query cache: %w", err)
	}

	if time.Now().After(expiresAt) {
		c.incrementMisses()
		c.db.ExecContext(ctx, `DELETE FROM query_cache WHERE query_hash = ?`, queryHash)
		return false, nil
	}

	c.db.ExecContext(ctx, `
		UPDATE query_cache SET last_accessed = NOW() WHERE query_hash = ?
	`, queryHash)

	if err := json.Unmarshal([]byte(data), result); err != nil {
		return false, fmt.Errorf("failed to unmarshal cached data: %w", err)
	}

	c.incrementHits()
	return true, nil
}

// Put stores a result payload under a query hash with the given TTL.
func (c *Client) Put(ctx context.Context, queryHash string, payload any, ttl time.Duration) error {
	data, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("failed to marshal cache payload: %w", err)
	}

	_, err = c.db.ExecContext(ctx, `
		INSERT OR REPLACE INTO query_cache
		(entry_id, query_hash, result_data, expires_at)
		VALUES (?, ?, ?, ?)
	`, uuid.NewString(), queryHash, string(data), time.Now().Add(ttl))
	return err
}

// Stats holds cache performance counters.
type Stats struct {
	TotalHits    int        `json:"total_hits"`
	TotalMisses  int        `json:"total_misses"`
	HitRate      float64    `json:"hit_rate"`
	EntriesCount int        `json:"entries_count"`
	LastCleanup  *time.Time `json:"last_cleanup"`
}

// GetStats returns cache performance statistics.
func (c *Client) GetStats(ctx context.Context) (*Stats, error) {
	var stats Stats
	err := c.db.QueryRowContext(ctx, `
		SELECT total_hits, total_misses, last_cleanup
		FROM cache_stats WHERE id = 1
	`).Scan(&stats.TotalHits, &stats.TotalMisses, &stats.LastCleanup)
	if err != nil {
		return nil, err
	}

	if total := stats.TotalHits + stats.TotalMisses; total > 0 {
		stats.HitRate = float64(stats.TotalHits) / float64(total) * 100
	}

	var entries int
	if err := c.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM query_cache`).Scan(&entries); err != nil {
		return nil, err
	}
	stats.EntriesCount = entries

	return &stats, nil
}

// Cleanup removes expired cache entries and returns how many were deleted.
func (c *Client) Cleanup(ctx context.Context) (int, error) {
	result, err := c.db.ExecContext(ctx, `DELETE FROM query_cache WHERE expires_at < NOW()`)
	if err != nil {
		return 0, err
	}
	deleted, _ := result.RowsAffected()

	_, err = c.db.ExecContext(ctx, `
		UPDATE cache_stats SET last_cleanup = NOW(), updated_at = NOW() WHERE id = 1
	`)
	return int(deleted), err
}

// Clear drops every cache entry.
func (c *Client) Clear(ctx context.Context) (int, error) {
	result, err := c.db.ExecContext(ctx, `DELETE FROM query_cache`)
	if err != nil {
		return 0, err
	}
	deleted, _ := result.RowsAffected()
	return int(deleted), nil
}

func (c *Client) incrementHits() {
	c.db.Exec(`UPDATE cache_stats SET total_hits = total_hits + 1, updated_at = NOW() WHERE id = 1`)
}

func (c *Client) incrementMisses() {
	c.db.Exec(`UPDATE cache_stats SET total_misses = total_misses + 1, updated_at = NOW() WHERE id = 1`)
}

// hashKey builds a deterministic cache key from a method tag and its
// JSON-encodable arguments.
func hashKey(method string, args any) (string, error) {
	payload, err := json.Marshal(struct {
		Method string `json:"method"`
		Args   any    `json:"args"`
	}{Method: method, Args: args})
	if err != nil {
		return "", fmt.Errorf("failed to hash cache key: %w", err)
	}
	sum := sha256.Sum256(payload)
	return fmt.Sprintf("%x", sum), nil
}
