// Package sqlite implements store.Store on an embedded SQLite database.
// It serves single-node deployments and tests.
package sqlite

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	_ "github.com/mattn/go-sqlite3"

	"github.com/spiffcs/repopulse/internal/constants"
	"github.com/spiffcs/repopulse/internal/log"
	"github.com/spiffcs/repopulse/internal/model"
	"github.com/spiffcs/repopulse/internal/store"
)

const schema = `
CREATE TABLE IF NOT EXISTS subscribers (
	id INTEGER PRIMARY KEY AUTOINCREMENT,
	chat_id INTEGER NOT NULL UNIQUE,
	token_ciphertext TEXT,
	token_nonce TEXT,
	github_username TEXT,
	repo_limit INTEGER NOT NULL,
	connected BOOLEAN NOT NULL DEFAULT 0,
	created_at TIMESTAMP NOT NULL
);

CREATE TABLE IF NOT EXISTS repositories (
	id INTEGER PRIMARY KEY AUTOINCREMENT,
	full_name TEXT NOT NULL UNIQUE
);

CREATE TABLE IF NOT EXISTS subscriptions (
	id INTEGER PRIMARY KEY AUTOINCREMENT,
	subscriber_id INTEGER NOT NULL REFERENCES subscribers(id) ON DELETE CASCADE,
	repo_id INTEGER NOT NULL REFERENCES repositories(id) ON DELETE CASCADE,
	filters TEXT NOT NULL DEFAULT '{}',
	created_at TIMESTAMP NOT NULL,
	UNIQUE (subscriber_id, repo_id)
);

CREATE TABLE IF NOT EXISTS repo_check_state (
	subscriber_id INTEGER NOT NULL REFERENCES subscribers(id) ON DELETE CASCADE,
	repo_id INTEGER NOT NULL REFERENCES repositories(id) ON DELETE CASCADE,
	last_issue_check TIMESTAMP NOT NULL,
	last_pr_check TIMESTAMP NOT NULL,
	PRIMARY KEY (subscriber_id, repo_id)
);

CREATE TABLE IF NOT EXISTS processed_events (
	id TEXT PRIMARY KEY,
	processed_at TIMESTAMP NOT NULL
);
`

// DB is a SQLite backed store.
type DB struct {
	db  *sql.DB
	now func() time.Time
}

var _ store.Store = (*DB)(nil)

// Open opens (creating if needed) the database at path and applies the schema.
func Open(path string) (*DB, error) {
	if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, 0700); err != nil {
			return nil, fmt.Errorf("failed to create database directory: %w", err)
		}
	}

	dsn := fmt.Sprintf("file:%s?_foreign_keys=on&_busy_timeout=5000&_journal_mode=WAL", path)
	db, err := sql.Open("sqlite3", dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	// SQLite allows a single writer; serializing through one connection
	// avoids SQLITE_BUSY under the poller's concurrent workers.
	db.SetMaxOpenConns(1)

	if _, err := db.Exec(schema); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("failed to create schema: %w", err)
	}

	log.Debug("sqlite store opened", "path", path)
	return &DB{db: db, now: time.Now}, nil
}

// Close closes the database connection.
func (d *DB) Close() error {
	return d.db.Close()
}

// Ping verifies the database is reachable.
func (d *DB) Ping(ctx context.Context) error {
	return d.db.PingContext(ctx)
}

const subscriberColumns = `id, chat_id, COALESCE(token_ciphertext, ''), COALESCE(token_nonce, ''),
	COALESCE(github_username, ''), repo_limit, connected, created_at`

type scanner interface {
	Scan(dest ...any) error
}

func scanSubscriber(row scanner) (model.Subscriber, error) {
	var s model.Subscriber
	err := row.Scan(&s.ID, &s.ChatID, &s.TokenCiphertext, &s.TokenNonce,
		&s.GitHubUsername, &s.RepoLimit, &s.Connected, &s.CreatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return s, store.ErrNotFound
	}
	return s, err
}

// UpsertSubscriber creates the subscriber if needed and returns it.
func (d *DB) UpsertSubscriber(ctx context.Context, chatID int64) (model.Subscriber, error) {
	_, err := d.db.ExecContext(ctx, `
		INSERT INTO subscribers (chat_id, repo_limit, connected, created_at)
		VALUES (?, ?, 0, ?)
		ON CONFLICT (chat_id) DO NOTHING`,
		chatID, constants.DefaultRepoLimit, d.now().UTC())
	if err != nil {
		return model.Subscriber{}, fmt.Errorf("failed to upsert subscriber: %w", err)
	}
	return d.GetSubscriber(ctx, chatID)
}

// GetSubscriber returns the subscriber for a chat id.
func (d *DB) GetSubscriber(ctx context.Context, chatID int64) (model.Subscriber, error) {
	row := d.db.QueryRowContext(ctx, `SELECT `+subscriberColumns+` FROM subscribers WHERE chat_id = ?`, chatID)
	s, err := scanSubscriber(row)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return s, err
		}
		return s, fmt.Errorf("failed to get subscriber: %w", err)
	}
	return s, nil
}

// ListSubscribers returns all subscribers ordered by id.
func (d *DB) ListSubscribers(ctx context.Context) ([]model.Subscriber, error) {
	rows, err := d.db.QueryContext(ctx, `SELECT `+subscriberColumns+` FROM subscribers ORDER BY id`)
	if err != nil {
		return nil, fmt.Errorf("failed to list subscribers: %w", err)
	}
	defer rows.Close()

	var subs []model.Subscriber
	for rows.Next() {
		s, err := scanSubscriber(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan subscriber: %w", err)
		}
		subs = append(subs, s)
	}
	return subs, rows.Err()
}

// SetCredential stores an encrypted credential and marks the subscriber connected.
func (d *DB) SetCredential(ctx context.Context, chatID int64, ciphertext, nonce, username string) error {
	res, err := d.db.ExecContext(ctx, `
		UPDATE subscribers
		SET token_ciphertext = ?, token_nonce = ?, github_username = ?, connected = 1, repo_limit = ?
		WHERE chat_id = ?`,
		ciphertext, nonce, username, constants.UnlimitedRepos, chatID)
	if err != nil {
		return fmt.Errorf("failed to set credential: %w", err)
	}
	return requireAffected(res)
}

// ClearCredential removes the credential and restores the default limit.
func (d *DB) ClearCredential(ctx context.Context, chatID int64) error {
	res, err := d.db.ExecContext(ctx, `
		UPDATE subscribers
		SET token_ciphertext = NULL, token_nonce = NULL, github_username = NULL, connected = 0, repo_limit = ?
		WHERE chat_id = ?`,
		constants.DefaultRepoLimit, chatID)
	if err != nil {
		return fmt.Errorf("failed to clear credential: %w", err)
	}
	return requireAffected(res)
}

// UpsertRepository returns the repository, creating it if needed.
func (d *DB) UpsertRepository(ctx context.Context, fullName string) (model.Repository, error) {
	var r model.Repository
	err := d.db.QueryRowContext(ctx, `
		INSERT INTO repositories (full_name) VALUES (?)
		ON CONFLICT (full_name) DO UPDATE SET full_name = excluded.full_name
		RETURNING id, full_name`, fullName).Scan(&r.ID, &r.FullName)
	if err != nil {
		return r, fmt.Errorf("failed to upsert repository: %w", err)
	}
	return r, nil
}

// SaveSubscription inserts a subscription or replaces its filter.
func (d *DB) SaveSubscription(ctx context.Context, subscriberID, repoID int64, filter model.Filter) (model.Subscription, error) {
	data, err := json.Marshal(filter)
	if err != nil {
		return model.Subscription{}, fmt.Errorf("failed to marshal filter: %w", err)
	}

	var id int64
	err = d.db.QueryRowContext(ctx, `
		INSERT INTO subscriptions (subscriber_id, repo_id, filters, created_at)
		VALUES (?, ?, ?, ?)
		ON CONFLICT (subscriber_id, repo_id) DO UPDATE SET filters = excluded.filters
		RETURNING id`, subscriberID, repoID, string(data), d.now().UTC()).Scan(&id)
	if err != nil {
		return model.Subscription{}, fmt.Errorf("failed to save subscription: %w", err)
	}

	return d.getSubscriptionByID(ctx, id)
}

const subscriptionSelect = `
	SELECT s.id, s.subscriber_id, u.chat_id, s.repo_id, r.full_name, s.filters, s.created_at
	FROM subscriptions s
	JOIN repositories r ON r.id = s.repo_id
	JOIN subscribers u ON u.id = s.subscriber_id`

func scanSubscription(row scanner) (model.Subscription, error) {
	var (
		s       model.Subscription
		filters string
	)
	err := row.Scan(&s.ID, &s.SubscriberID, &s.ChatID, &s.RepoID, &s.RepoFullName, &filters, &s.CreatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return s, store.ErrNotFound
	}
	if err != nil {
		return s, err
	}
	if err := json.Unmarshal([]byte(filters), &s.Filter); err != nil {
		return s, fmt.Errorf("failed to decode filters for subscription %d: %w", s.ID, err)
	}
	return s, nil
}

func (d *DB) getSubscriptionByID(ctx context.Context, id int64) (model.Subscription, error) {
	s, err := scanSubscription(d.db.QueryRowContext(ctx, subscriptionSelect+` WHERE s.id = ?`, id))
	if err != nil && !errors.Is(err, store.ErrNotFound) {
		return s, fmt.Errorf("failed to get subscription: %w", err)
	}
	return s, err
}

// GetSubscription returns the subscription of a subscriber to a repository.
func (d *DB) GetSubscription(ctx context.Context, subscriberID int64, fullName string) (model.Subscription, error) {
	row := d.db.QueryRowContext(ctx, subscriptionSelect+` WHERE s.subscriber_id = ? AND r.full_name = ?`,
		subscriberID, fullName)
	s, err := scanSubscription(row)
	if err != nil && !errors.Is(err, store.ErrNotFound) {
		return s, fmt.Errorf("failed to get subscription: %w", err)
	}
	return s, err
}

// DeleteSubscription removes a subscription together with its repo-check state.
func (d *DB) DeleteSubscription(ctx context.Context, subscriberID, repoID int64) error {
	tx, err := d.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	res, err := tx.ExecContext(ctx, `DELETE FROM subscriptions WHERE subscriber_id = ? AND repo_id = ?`, subscriberID, repoID)
	if err != nil {
		return fmt.Errorf("failed to delete subscription: %w", err)
	}
	if err := requireAffected(res); err != nil {
		return err
	}

	if _, err := tx.ExecContext(ctx, `DELETE FROM repo_check_state WHERE subscriber_id = ? AND repo_id = ?`, subscriberID, repoID); err != nil {
		return fmt.Errorf("failed to delete repo state: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit unsubscribe: %w", err)
	}
	return nil
}

// ListSubscriptions returns a subscriber's subscriptions ordered by repository name.
func (d *DB) ListSubscriptions(ctx context.Context, subscriberID int64) ([]model.Subscription, error) {
	return d.querySubscriptions(ctx, subscriptionSelect+` WHERE s.subscriber_id = ? ORDER BY r.full_name`, subscriberID)
}

// ListSubscriptionsByRepo returns every subscription to a repository.
func (d *DB) ListSubscriptionsByRepo(ctx context.Context, fullName string) ([]model.Subscription, error) {
	return d.querySubscriptions(ctx, subscriptionSelect+` WHERE r.full_name = ? ORDER BY s.id`, fullName)
}

func (d *DB) querySubscriptions(ctx context.Context, query string, args ...any) ([]model.Subscription, error) {
	rows, err := d.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to list subscriptions: %w", err)
	}
	defer rows.Close()

	var subs []model.Subscription
	for rows.Next() {
		s, err := scanSubscription(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan subscription: %w", err)
		}
		subs = append(subs, s)
	}
	return subs, rows.Err()
}

// CountSubscriptions returns how many repositories a subscriber tracks.
func (d *DB) CountSubscriptions(ctx context.Context, subscriberID int64) (int, error) {
	var n int
	err := d.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM subscriptions WHERE subscriber_id = ?`, subscriberID).Scan(&n)
	if err != nil {
		return 0, fmt.Errorf("failed to count subscriptions: %w", err)
	}
	return n, nil
}

// GetRepoState returns the watermarks for a subscriber and repository.
func (d *DB) GetRepoState(ctx context.Context, subscriberID, repoID int64) (model.RepoCheckState, error) {
	st := model.RepoCheckState{SubscriberID: subscriberID, RepoID: repoID}
	err := d.db.QueryRowContext(ctx, `
		SELECT last_issue_check, last_pr_check FROM repo_check_state
		WHERE subscriber_id = ? AND repo_id = ?`, subscriberID, repoID).
		Scan(&st.LastIssueCheck, &st.LastPullRequestCheck)
	if errors.Is(err, sql.ErrNoRows) {
		return st, store.ErrNotFound
	}
	if err != nil {
		return st, fmt.Errorf("failed to get repo state: %w", err)
	}
	return st, nil
}

// InitRepoState inserts watermarks only when none exist yet.
func (d *DB) InitRepoState(ctx context.Context, subscriberID, repoID int64, issueCheck, prCheck time.Time) error {
	_, err := d.db.ExecContext(ctx, `
		INSERT INTO repo_check_state (subscriber_id, repo_id, last_issue_check, last_pr_check)
		VALUES (?, ?, ?, ?)
		ON CONFLICT (subscriber_id, repo_id) DO NOTHING`,
		subscriberID, repoID, issueCheck.UTC(), prCheck.UTC())
	if err != nil {
		return fmt.Errorf("failed to init repo state: %w", err)
	}
	return nil
}

// AdvanceRepoState overwrites both watermarks. It writes nothing and
// returns store.ErrNotFound when the subscription no longer exists.
func (d *DB) AdvanceRepoState(ctx context.Context, subscriberID, repoID int64, issueCheck, prCheck time.Time) error {
	res, err := d.db.ExecContext(ctx, `
		INSERT INTO repo_check_state (subscriber_id, repo_id, last_issue_check, last_pr_check)
		SELECT s.subscriber_id, s.repo_id, ?, ? FROM subscriptions s
		WHERE s.subscriber_id = ? AND s.repo_id = ?
		ON CONFLICT (subscriber_id, repo_id) DO UPDATE SET
			last_issue_check = excluded.last_issue_check,
			last_pr_check = excluded.last_pr_check`,
		issueCheck.UTC(), prCheck.UTC(), subscriberID, repoID)
	if err != nil {
		return fmt.Errorf("failed to advance repo state: %w", err)
	}
	return requireAffected(res)
}

// IsEventProcessed reports whether a webhook delivery was already handled.
func (d *DB) IsEventProcessed(ctx context.Context, id string) (bool, error) {
	var one int
	err := d.db.QueryRowContext(ctx, `SELECT 1 FROM processed_events WHERE id = ?`, id).Scan(&one)
	if errors.Is(err, sql.ErrNoRows) {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("failed to check processed event: %w", err)
	}
	return true, nil
}

// MarkEventProcessed records a webhook delivery.
func (d *DB) MarkEventProcessed(ctx context.Context, id string, at time.Time) error {
	_, err := d.db.ExecContext(ctx, `INSERT INTO processed_events (id, processed_at) VALUES (?, ?) ON CONFLICT DO NOTHING`,
		id, at.UTC())
	if err != nil {
		return fmt.Errorf("failed to mark event processed: %w", err)
	}
	return nil
}

func requireAffected(res sql.Result) error {
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to read affected rows: %w", err)
	}
	if n == 0 {
		return store.ErrNotFound
	}
	return nil
}
