// Package state persists which videos have been summarized and the
// backlog of videos waiting for a batch run. Both live in one SQLite
// database so that finishing a video and leaving the queue happen in a
// single transaction.
package state

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	_ "github.com/mattn/go-sqlite3"
)

// ErrEmptyQueue is returned by Next when nothing is queued.
var ErrEmptyQueue = errors.New("backlog queue is empty")

// Backlog item statuses.
const (
	StatusQueued = "queued"
	StatusFailed = "failed"
)

// Item is a backlog entry.
type Item struct {
	VideoID     string
	Title       string
	Channel     string
	PublishedAt string
	Lang        string
	AddedAt     time.Time
	Error       string // last failure, for failed items
}

// Processed is a summarized video.
type Processed struct {
	VideoID     string
	Title       string
	Channel     string
	ProcessedAt time.Time
	SummaryPath string
	Status      string // summary status: success, degraded, failed
}

// Store is the SQLite state database. All methods are safe for
// concurrent use.
type Store struct {
	db *sql.DB
}

// Open opens or creates the state database at path.
func Open(path string) (*Store, error) {
	db, err := sql.Open("sqlite3", path+"?_journal_mode=WAL&_busy_timeout=5000")
	if err != nil {
		return nil, fmt.Errorf("open state database: %w", err)
	}
	s := &Store{db: db}
	if err := s.migrate(); err != nil {
		db.Close()
		return nil, fmt.Errorf("migrate: %w", err)
	}
	return s, nil
}

// Close closes the database connection.
func (s *Store) Close() error {
	return s.db.Close()
}

func (s *Store) migrate() error {
	schema := `
	CREATE TABLE IF NOT EXISTS processed_videos (
		video_id     TEXT PRIMARY KEY,
		title        TEXT NOT NULL DEFAULT '',
		channel      TEXT NOT NULL DEFAULT '',
		processed_at TEXT NOT NULL,
		summary_path TEXT NOT NULL DEFAULT '',
		status       TEXT NOT NULL DEFAULT ''
	);

	CREATE TABLE IF NOT EXISTS backlog (
		video_id     TEXT PRIMARY KEY,
		seq          INTEGER NOT NULL,
		status       TEXT NOT NULL,
		title        TEXT NOT NULL DEFAULT '',
		channel      TEXT NOT NULL DEFAULT '',
		published_at TEXT NOT NULL DEFAULT '',
		lang         TEXT NOT NULL DEFAULT '',
		added_at     TEXT NOT NULL,
		error        TEXT NOT NULL DEFAULT ''
	);

	CREATE INDEX IF NOT EXISTS idx_backlog_status_seq ON backlog(status, seq);

	CREATE TABLE IF NOT EXISTS meta (
		key        TEXT PRIMARY KEY,
		value      TEXT NOT NULL,
		updated_at TEXT NOT NULL
	);
	`
	_, err := s.db.Exec(schema)
	return err
}

// IsProcessed reports whether id has been summarized.
func (s *Store) IsProcessed(ctx context.Context, id string) (bool, error) {
	var n int
	err := s.db.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM processed_videos WHERE video_id = ?`, id,
	).Scan(&n)
	if err != nil {
		return false, fmt.Errorf("check processed %s: %w", id, err)
	}
	return n > 0, nil
}

// MarkProcessed records p and removes the video from the backlog.
func (s *Store) MarkProcessed(ctx context.Context, p Processed) error {
	if p.ProcessedAt.IsZero() {
		p.ProcessedAt = time.Now()
	}
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback() //nolint:errcheck // no-op after commit

	_, err = tx.ExecContext(ctx,
		`INSERT INTO processed_videos (video_id, title, channel, processed_at, summary_path, status)
		 VALUES (?, ?, ?, ?, ?, ?)
		 ON CONFLICT (video_id) DO UPDATE
		 SET title = excluded.title, channel = excluded.channel, processed_at = excluded.processed_at,
		     summary_path = excluded.summary_path, status = excluded.status`,
		p.VideoID, p.Title, p.Channel, p.ProcessedAt.UTC().Format(time.RFC3339), p.SummaryPath, p.Status,
	)
	if err != nil {
		return fmt.Errorf("mark processed %s: %w", p.VideoID, err)
	}
	if _, err := tx.ExecContext(ctx, `DELETE FROM backlog WHERE video_id = ?`, p.VideoID); err != nil {
		return fmt.Errorf("dequeue %s: %w", p.VideoID, err)
	}
	return tx.Commit()
}

// ProcessedVideos returns processed videos, most recent first. A limit
// of zero returns all of them.
func (s *Store) ProcessedVideos(ctx context.Context, limit int) ([]Processed, error) {
	q := `SELECT video_id, title, channel, processed_at, summary_path, status
	      FROM processed_videos ORDER BY processed_at DESC, video_id`
	args := []any{}
	if limit > 0 {
		q += ` LIMIT ?`
		args = append(args, limit)
	}
	rows, err := s.db.QueryContext(ctx, q, args...)
	if err != nil {
		return nil, fmt.Errorf("list processed: %w", err)
	}
	defer rows.Close()

	var out []Processed
	for rows.Next() {
		var p Processed
		var at string
		if err := rows.Scan(&p.VideoID, &p.Title, &p.Channel, &at, &p.SummaryPath, &p.Status); err != nil {
			return nil, err
		}
		p.ProcessedAt, _ = time.Parse(time.RFC3339, at)
		out = append(out, p)
	}
	return out, rows.Err()
}

// Enqueue appends item to the queue. It returns false without error when
// the video is already processed, queued or failed.
func (s *Store) Enqueue(ctx context.Context, item Item) (bool, error) {
	if item.AddedAt.IsZero() {
		item.AddedAt = time.Now()
	}
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return false, err
	}
	defer tx.Rollback() //nolint:errcheck // no-op after commit

	var n int
	err = tx.QueryRowContext(ctx,
		`SELECT (SELECT COUNT(*) FROM processed_videos WHERE video_id = ?)
		      + (SELECT COUNT(*) FROM backlog WHERE video_id = ?)`,
		item.VideoID, item.VideoID,
	).Scan(&n)
	if err != nil {
		return false, fmt.Errorf("check %s: %w", item.VideoID, err)
	}
	if n > 0 {
		return false, nil
	}

	seq, err := nextSeq(ctx, tx)
	if err != nil {
		return false, err
	}
	_, err = tx.ExecContext(ctx,
		`INSERT INTO backlog (video_id, seq, status, title, channel, published_at, lang, added_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		item.VideoID, seq, StatusQueued, item.Title, item.Channel, item.PublishedAt, item.Lang,
		item.AddedAt.UTC().Format(time.RFC3339),
	)
	if err != nil {
		return false, fmt.Errorf("enqueue %s: %w", item.VideoID, err)
	}
	return true, tx.Commit()
}

func nextSeq(ctx context.Context, tx *sql.Tx) (int64, error) {
	var seq int64
	if err := tx.QueryRowContext(ctx, `SELECT COALESCE(MAX(seq), 0) + 1 FROM backlog`).Scan(&seq); err != nil {
		return 0, fmt.Errorf("next sequence: %w", err)
	}
	return seq, nil
}

// Next returns the head of the queue without removing it.
func (s *Store) Next(ctx context.Context) (Item, error) {
	items, err := s.list(ctx, StatusQueued, 1)
	if err != nil {
		return Item{}, err
	}
	if len(items) == 0 {
		return Item{}, ErrEmptyQueue
	}
	return items[0], nil
}

// Queue returns queued items in processing order.
func (s *Store) Queue(ctx context.Context) ([]Item, error) {
	return s.list(ctx, StatusQueued, 0)
}

// Failed returns failed items in the order they failed.
func (s *Store) Failed(ctx context.Context) ([]Item, error) {
	return s.list(ctx, StatusFailed, 0)
}

func (s *Store) list(ctx context.Context, status string, limit int) ([]Item, error) {
	q := `SELECT video_id, title, channel, published_at, lang, added_at, error
	      FROM backlog WHERE status = ? ORDER BY seq`
	args := []any{status}
	if limit > 0 {
		q += ` LIMIT ?`
		args = append(args, limit)
	}
	rows, err := s.db.QueryContext(ctx, q, args...)
	if err != nil {
		return nil, fmt.Errorf("list %s: %w", status, err)
	}
	defer rows.Close()

	var out []Item
	for rows.Next() {
		var it Item
		var added string
		if err := rows.Scan(&it.VideoID, &it.Title, &it.Channel, &it.PublishedAt, &it.Lang, &added, &it.Error); err != nil {
			return nil, err
		}
		it.AddedAt, _ = time.Parse(time.RFC3339, added)
		out = append(out, it)
	}
	return out, rows.Err()
}

// Remove drops a video from the backlog without marking it processed.
func (s *Store) Remove(ctx context.Context, id string) error {
	if _, err := s.db.ExecContext(ctx, `DELETE FROM backlog WHERE video_id = ?`, id); err != nil {
		return fmt.Errorf("remove %s: %w", id, err)
	}
	return nil
}

// Fail moves a queued video to the failed list.
func (s *Store) Fail(ctx context.Context, id, reason string) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback() //nolint:errcheck // no-op after commit

	seq, err := nextSeq(ctx, tx)
	if err != nil {
		return err
	}
	res, err := tx.ExecContext(ctx,
		`UPDATE backlog SET status = ?, seq = ?, error = ? WHERE video_id = ?`,
		StatusFailed, seq, reason, id,
	)
	if err != nil {
		return fmt.Errorf("fail %s: %w", id, err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return fmt.Errorf("fail %s: not in backlog", id)
	}
	return tx.Commit()
}

// RetryFailed moves every failed video to the back of the queue, keeping
// their order, and returns how many moved.
func (s *Store) RetryFailed(ctx context.Context) (int, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return 0, err
	}
	defer tx.Rollback() //nolint:errcheck // no-op after commit

	rows, err := tx.QueryContext(ctx, `SELECT video_id FROM backlog WHERE status = ? ORDER BY seq`, StatusFailed)
	if err != nil {
		return 0, fmt.Errorf("list failed: %w", err)
	}
	var ids []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			rows.Close()
			return 0, err
		}
		ids = append(ids, id)
	}
	rows.Close()
	if err := rows.Err(); err != nil {
		return 0, err
	}

	for _, id := range ids {
		seq, err := nextSeq(ctx, tx)
		if err != nil {
			return 0, err
		}
		if _, err := tx.ExecContext(ctx,
			`UPDATE backlog SET status = ?, seq = ?, error = '' WHERE video_id = ?`,
			StatusQueued, seq, id,
		); err != nil {
			return 0, fmt.Errorf("requeue %s: %w", id, err)
		}
	}
	return len(ids), tx.Commit()
}

// Meta keys.
const lastProcessedKey = "last_processed_at"

// SetLastProcessed records when the last batch run finished.
func (s *Store) SetLastProcessed(ctx context.Context, t time.Time) error {
	return s.setMeta(ctx, lastProcessedKey, t.UTC().Format(time.RFC3339))
}

// LastProcessed returns when the last batch run finished, or the zero
// time if none has.
func (s *Store) LastProcessed(ctx context.Context) (time.Time, error) {
	v, err := s.meta(ctx, lastProcessedKey)
	if err != nil || v == "" {
		return time.Time{}, err
	}
	return time.Parse(time.RFC3339, v)
}

func (s *Store) meta(ctx context.Context, key string) (string, error) {
	var value string
	err := s.db.QueryRowContext(ctx, `SELECT value FROM meta WHERE key = ?`, key).Scan(&value)
	if errors.Is(err, sql.ErrNoRows) {
		return "", nil
	}
	if err != nil {
		return "", fmt.Errorf("get %s: %w", key, err)
	}
	return value, nil
}

func (s *Store) setMeta(ctx context.Context, key, value string) error {
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO meta (key, value, updated_at) VALUES (?, ?, ?)
		 ON CONFLICT (key) DO UPDATE SET value = excluded.value, updated_at = excluded.updated_at`,
		key, value, time.Now().UTC().Format(time.RFC3339),
	)
	if err != nil {
		return fmt.Errorf("set %s: %w", key, err)
	}
	return nil
}
