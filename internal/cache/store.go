package cache

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"go.uber.org/zap"
	_ "modernc.org/sqlite"

	"onetwotranscript/internal/transcript"
)

// Entry is a cached transcription result
type Entry struct {
	Key        string
	Backend    string
	Model      string
	Language   string
	Segments   []transcript.Segment
	AudioBytes int64
	CreatedAt  time.Time
	LastUsedAt time.Time
	Hits       int64
}

// Stats summarises the cache contents
type Stats struct {
	Entries  int64 `json:"entries"`
	Hits     int64 `json:"hits"`
	Segments int64 `json:"segments"`
}

// timeLayout is fixed width so stored timestamps compare correctly as text
const timeLayout = "2006-01-02T15:04:05.000000000Z"

// Store persists transcription results in SQLite keyed by audio content hash
type Store struct {
	db     *sql.DB
	path   string
	logger *zap.Logger
	now    func() time.Time
}

// Open initializes or connects to the cache database and applies migrations
func Open(ctx context.Context, path string, logger *zap.Logger) (*Store, error) {
	if dir := filepath.Dir(path); dir != "" {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("ensure cache directory: %w", err)
		}
	}

	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("open sqlite db: %w", err)
	}

	pragmas := []string{
		"PRAGMA journal_mode=WAL",
		"PRAGMA busy_timeout = 5000",
	}
	for _, pragma := range pragmas {
		if _, execErr := db.ExecContext(ctx, pragma); execErr != nil {
			_ = db.Close()
			return nil, fmt.Errorf("apply pragma %q: %w", pragma, execErr)
		}
	}

	store := &Store{db: db, path: path, logger: logger, now: time.Now}
	if err := store.applyMigrations(ctx); err != nil {
		_ = db.Close()
		return nil, err
	}

	logger.Info("transcript cache opened", zap.String("path", path))
	return store, nil
}

// Path returns the database file location
func (s *Store) Path() string {
	return s.path
}

// Close closes the underlying database connection
func (s *Store) Close() error {
	if s == nil || s.db == nil {
		return nil
	}
	return s.db.Close()
}

// Lookup returns the entry for key. A row whose segments no longer validate is
// treated as a miss and removed.
func (s *Store) Lookup(ctx context.Context, key string) (*Entry, bool, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT cache_key, backend, model, language, segments_json, audio_bytes, created_at, last_used_at, hits
         FROM transcripts WHERE cache_key = ?`, key)

	var (
		entry               Entry
		segmentsJSON        string
		createdAt, lastUsed string
	)
	err := row.Scan(&entry.Key, &entry.Backend, &entry.Model, &entry.Language, &segmentsJSON,
		&entry.AudioBytes, &createdAt, &lastUsed, &entry.Hits)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, fmt.Errorf("query cache entry: %w", err)
	}

	segments, err := transcript.DecodeSegments([]byte(segmentsJSON))
	if err != nil {
		s.logger.Warn("discarding corrupt cache entry", zap.String("key", key), zap.Error(err))
		if _, delErr := s.db.ExecContext(ctx, "DELETE FROM transcripts WHERE cache_key = ?", key); delErr != nil {
			return nil, false, fmt.Errorf("delete corrupt cache entry: %w", delErr)
		}
		return nil, false, nil
	}
	entry.Segments = segments
	entry.CreatedAt = parseTime(createdAt)

	now := s.now().UTC()
	if _, err := s.db.ExecContext(ctx,
		"UPDATE transcripts SET hits = hits + 1, last_used_at = ? WHERE cache_key = ?",
		formatTime(now), key); err != nil {
		return nil, false, fmt.Errorf("touch cache entry: %w", err)
	}
	entry.Hits++
	entry.LastUsedAt = now

	return &entry, true, nil
}

// Put inserts or replaces the entry for entry.Key
func (s *Store) Put(ctx context.Context, entry Entry) error {
	if entry.Key == "" {
		return fmt.Errorf("cache entry requires a key")
	}
	if err := transcript.ValidateSegments(entry.Segments); err != nil {
		return fmt.Errorf("refusing to cache invalid segments: %w", err)
	}

	segments := entry.Segments
	if segments == nil {
		segments = []transcript.Segment{}
	}
	segmentsJSON, err := json.Marshal(segments)
	if err != nil {
		return fmt.Errorf("marshal segments: %w", err)
	}

	timestamp := formatTime(s.now())
	_, err = s.db.ExecContext(ctx,
		`INSERT INTO transcripts (
            cache_key, backend, model, language, segments_json, segment_count, audio_bytes, created_at, last_used_at, hits
        ) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, 0)
        ON CONFLICT(cache_key) DO UPDATE SET
            backend = excluded.backend,
            model = excluded.model,
            language = excluded.language,
            segments_json = excluded.segments_json,
            segment_count = excluded.segment_count,
            audio_bytes = excluded.audio_bytes,
            last_used_at = excluded.last_used_at`,
		entry.Key, entry.Backend, entry.Model, entry.Language, string(segmentsJSON),
		len(segments), entry.AudioBytes, timestamp, timestamp)
	if err != nil {
		return fmt.Errorf("store cache entry: %w", err)
	}
	return nil
}

// Prune removes entries not used since before cutoff and returns how many went
func (s *Store) Prune(ctx context.Context, olderThan time.Duration) (int64, error) {
	cutoff := formatTime(s.now().Add(-olderThan))
	res, err := s.db.ExecContext(ctx, "DELETE FROM transcripts WHERE last_used_at < ?", cutoff)
	if err != nil {
		return 0, fmt.Errorf("prune cache: %w", err)
	}
	removed, err := res.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("prune rows affected: %w", err)
	}
	if removed > 0 {
		s.logger.Info("pruned transcript cache", zap.Int64("removed", removed))
	}
	return removed, nil
}

// Stats reports entry, hit and segment totals
func (s *Store) Stats(ctx context.Context) (Stats, error) {
	var stats Stats
	err := s.db.QueryRowContext(ctx,
		"SELECT COUNT(1), COALESCE(SUM(hits), 0), COALESCE(SUM(segment_count), 0) FROM transcripts").
		Scan(&stats.Entries, &stats.Hits, &stats.Segments)
	if err != nil {
		return Stats{}, fmt.Errorf("query cache stats: %w", err)
	}
	return stats, nil
}

func formatTime(t time.Time) string {
	return t.UTC().Format(timeLayout)
}

func parseTime(value string) time.Time {
	t, err := time.Parse(time.RFC3339Nano, value)
	if err != nil {
		return time.Time{}
	}
	return t
}
