// Package postgres implements store.Store on PostgreSQL using pgx.
package postgres

import (
	"context"
	"embed"
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"net/url"
	"strings"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/jackc/tern/v2/migrate"

	"github.com/spiffcs/repopulse/internal/constants"
	"github.com/spiffcs/repopulse/internal/log"
	"github.com/spiffcs/repopulse/internal/model"
	"github.com/spiffcs/repopulse/internal/store"
)

//go:embed migrations/*.sql
var migrationFiles embed.FS

const (
	// migrationLockID is a PostgreSQL advisory lock ID for coordinating
	// migrations between replicas. Value: "repops" in ASCII hex.
	migrationLockID             = 0x7265706f7073
	migrationLockReleaseTimeout = 5 * time.Second
	versionTable                = "public.schema_version"
)

// DB is a PostgreSQL backed store.
type DB struct {
	pool *pgxpool.Pool
}

var _ store.Store = (*DB)(nil)

// Connect opens a connection pool and verifies it with a ping.
func Connect(ctx context.Context, databaseURL string) (*DB, error) {
	poolCfg, err := pgxpool.ParseConfig(databaseURL)
	if err != nil {
		return nil, fmt.Errorf("failed to parse database URL: %w", err)
	}

	log.Debug("database ssl mode", "sslmode", extractSSLMode(databaseURL))

	pool, err := pgxpool.NewWithConfig(ctx, poolCfg)
	if err != nil {
		return nil, fmt.Errorf("failed to create connection pool: %w", err)
	}

	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	log.Info("database connected", "max_conns", poolCfg.MaxConns)
	return &DB{pool: pool}, nil
}

func extractSSLMode(databaseURL string) string {
	u, err := url.Parse(databaseURL)
	if err != nil {
		return "unknown"
	}
	mode := strings.ToLower(u.Query().Get("sslmode"))
	if mode == "" {
		return "prefer (default)"
	}
	return mode
}

// Migrate applies pending schema migrations while holding an advisory lock
// so concurrently starting processes do not race.
func (d *DB) Migrate(ctx context.Context) error {
	conn, err := d.pool.Acquire(ctx)
	if err != nil {
		return fmt.Errorf("failed to acquire connection for migration: %w", err)
	}
	defer conn.Release()

	unlock, err := migrationLock(ctx, conn.Conn())
	if err != nil {
		return err
	}
	defer unlock()

	migrator, err := newMigrator(ctx, conn.Conn())
	if err != nil {
		return err
	}

	current, err := migrator.GetCurrentVersion(ctx)
	if err != nil {
		log.Debug("could not get current schema version (likely fresh database)", "error", err)
	} else {
		log.Info("current schema version", "version", current)
	}

	if err := migrator.Migrate(ctx); err != nil {
		return fmt.Errorf("failed to migrate database: %w", err)
	}
	return nil
}

// SchemaVersion reports the applied and the latest available migration.
func (d *DB) SchemaVersion(ctx context.Context) (current, latest int32, err error) {
	conn, err := d.pool.Acquire(ctx)
	if err != nil {
		return 0, 0, fmt.Errorf("failed to acquire connection: %w", err)
	}
	defer conn.Release()

	migrator, err := newMigrator(ctx, conn.Conn())
	if err != nil {
		return 0, 0, err
	}
	current, err = migrator.GetCurrentVersion(ctx)
	if err != nil {
		return 0, 0, fmt.Errorf("failed to read schema version: %w", err)
	}
	return current, int32(len(migrator.Migrations)), nil
}

func newMigrator(ctx context.Context, conn *pgx.Conn) (*migrate.Migrator, error) {
	migrationFS, err := fs.Sub(migrationFiles, "migrations")
	if err != nil {
		return nil, fmt.Errorf("failed to read migrations: %w", err)
	}

	migrator, err := migrate.NewMigrator(ctx, conn, versionTable)
	if err != nil {
		return nil, fmt.Errorf("failed to create migrator: %w", err)
	}

	if err := migrator.LoadMigrations(migrationFS); err != nil {
		return nil, fmt.Errorf("failed to load migrations: %w", err)
	}
	return migrator, nil
}

func migrationLock(ctx context.Context, conn *pgx.Conn) (func(), error) {
	if _, err := conn.Exec(ctx, "SELECT pg_advisory_lock($1)", migrationLockID); err != nil {
		return func() {}, fmt.Errorf("failed to acquire migration lock: %w", err)
	}

	return func() {
		ctx, cancel := context.WithTimeout(context.Background(), migrationLockReleaseTimeout)
		defer cancel()

		if _, err := conn.Exec(ctx, "SELECT pg_advisory_unlock($1)", migrationLockID); err != nil {
			log.Error("failed to release migration lock", "error", err)
		}
	}, nil
}

// Close closes the pool.
func (d *DB) Close() error {
	d.pool.Close()
	return nil
}

// Ping verifies the database is reachable.
func (d *DB) Ping(ctx context.Context) error {
	return d.pool.Ping(ctx)
}

const subscriberColumns = `id, chat_id, COALESCE(token_ciphertext, ''), COALESCE(token_nonce, ''),
	COALESCE(github_username, ''), repo_limit, connected, created_at`

func scanSubscriber(row pgx.Row) (model.Subscriber, error) {
	var s model.Subscriber
	err := row.Scan(&s.ID, &s.ChatID, &s.TokenCiphertext, &s.TokenNonce,
		&s.GitHubUsername, &s.RepoLimit, &s.Connected, &s.CreatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return s, store.ErrNotFound
	}
	return s, err
}

// UpsertSubscriber creates the subscriber if needed and returns it.
func (d *DB) UpsertSubscriber(ctx context.Context, chatID int64) (model.Subscriber, error) {
	// The no-op update makes RETURNING yield the existing row on conflict.
	row := d.pool.QueryRow(ctx, `
		INSERT INTO subscribers (chat_id, repo_limit)
		VALUES ($1, $2)
		ON CONFLICT (chat_id) DO UPDATE SET chat_id = EXCLUDED.chat_id
		RETURNING `+subscriberColumns, chatID, constants.DefaultRepoLimit)
	s, err := scanSubscriber(row)
	if err != nil {
		return s, fmt.Errorf("failed to upsert subscriber: %w", err)
	}
	return s, nil
}

// GetSubscriber returns the subscriber for a chat id.
func (d *DB) GetSubscriber(ctx context.Context, chatID int64) (model.Subscriber, error) {
	s, err := scanSubscriber(d.pool.QueryRow(ctx, `SELECT `+subscriberColumns+` FROM subscribers WHERE chat_id = $1`, chatID))
	if err != nil && !errors.Is(err, store.ErrNotFound) {
		return s, fmt.Errorf("failed to get subscriber: %w", err)
	}
	return s, err
}

// ListSubscribers returns all subscribers ordered by id.
func (d *DB) ListSubscribers(ctx context.Context) ([]model.Subscriber, error) {
	rows, err := d.pool.Query(ctx, `SELECT `+subscriberColumns+` FROM subscribers ORDER BY id`)
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
	tag, err := d.pool.Exec(ctx, `
		UPDATE subscribers
		SET token_ciphertext = $1, token_nonce = $2, github_username = $3, connected = TRUE, repo_limit = $4
		WHERE chat_id = $5`,
		ciphertext, nonce, username, constants.UnlimitedRepos, chatID)
	if err != nil {
		return fmt.Errorf("failed to set credential: %w", err)
	}
	return requireAffected(tag)
}

// ClearCredential removes the credential and restores the default limit.
func (d *DB) ClearCredential(ctx context.Context, chatID int64) error {
	tag, err := d.pool.Exec(ctx, `
		UPDATE subscribers
		SET token_ciphertext = NULL, token_nonce = NULL, github_username = NULL, connected = FALSE, repo_limit = $1
		WHERE chat_id = $2`,
		constants.DefaultRepoLimit, chatID)
	if err != nil {
		return fmt.Errorf("failed to clear credential: %w", err)
	}
	return requireAffected(tag)
}

// UpsertRepository returns the repository, creating it if needed.
func (d *DB) UpsertRepository(ctx context.Context, fullName string) (model.Repository, error) {
	var r model.Repository
	err := d.pool.QueryRow(ctx, `
		INSERT INTO repositories (full_name) VALUES ($1)
		ON CONFLICT (full_name) DO UPDATE SET full_name = EXCLUDED.full_name
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
	err = d.pool.QueryRow(ctx, `
		INSERT INTO subscriptions (subscriber_id, repo_id, filters)
		VALUES ($1, $2, $3::jsonb)
		ON CONFLICT (subscriber_id, repo_id) DO UPDATE SET filters = EXCLUDED.filters
		RETURNING id`, subscriberID, repoID, string(data)).Scan(&id)
	if err != nil {
		return model.Subscription{}, fmt.Errorf("failed to save subscription: %w", err)
	}

	s, err := scanSubscription(d.pool.QueryRow(ctx, subscriptionSelect+` WHERE s.id = $1`, id))
	if err != nil {
		return s, fmt.Errorf("failed to reload subscription: %w", err)
	}
	return s, nil
}

const subscriptionSelect = `
	SELECT s.id, s.subscriber_id, u.chat_id, s.repo_id, r.full_name, s.filters, s.created_at
	FROM subscriptions s
	JOIN repositories r ON r.id = s.repo_id
	JOIN subscribers u ON u.id = s.subscriber_id`

func scanSubscription(row pgx.Row) (model.Subscription, error) {
	var (
		s       model.Subscription
		filters []byte
	)
	err := row.Scan(&s.ID, &s.SubscriberID, &s.ChatID, &s.RepoID, &s.RepoFullName, &filters, &s.CreatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return s, store.ErrNotFound
	}
	if err != nil {
		return s, err
	}
	if err := json.Unmarshal(filters, &s.Filter); err != nil {
		return s, fmt.Errorf("failed to decode filters for subscription %d: %w", s.ID, err)
	}
	return s, nil
}

// GetSubscription returns the subscription of a subscriber to a repository.
func (d *DB) GetSubscription(ctx context.Context, subscriberID int64, fullName string) (model.Subscription, error) {
	s, err := scanSubscription(d.pool.QueryRow(ctx,
		subscriptionSelect+` WHERE s.subscriber_id = $1 AND r.full_name = $2`, subscriberID, fullName))
	if err != nil && !errors.Is(err, store.ErrNotFound) {
		return s, fmt.Errorf("failed to get subscription: %w", err)
	}
	return s, err
}

// DeleteSubscription removes a subscription together with its repo-check state.
func (d *DB) DeleteSubscription(ctx context.Context, subscriberID, repoID int64) error {
	tx, err := d.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer func() { _ = tx.Rollback(ctx) }()

	tag, err := tx.Exec(ctx, `DELETE FROM subscriptions WHERE subscriber_id = $1 AND repo_id = $2`, subscriberID, repoID)
	if err != nil {
		return fmt.Errorf("failed to delete subscription: %w", err)
	}
	if err := requireAffected(tag); err != nil {
		return err
	}

	if _, err := tx.Exec(ctx, `DELETE FROM repo_check_state WHERE subscriber_id = $1 AND repo_id = $2`, subscriberID, repoID); err != nil {
		return fmt.Errorf("failed to delete repo state: %w", err)
	}

	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("failed to commit unsubscribe: %w", err)
	}
	return nil
}

// ListSubscriptions returns a subscriber's subscriptions ordered by repository name.
func (d *DB) ListSubscriptions(ctx context.Context, subscriberID int64) ([]model.Subscription, error) {
	return d.querySubscriptions(ctx, subscriptionSelect+` WHERE s.subscriber_id = $1 ORDER BY r.full_name`, subscriberID)
}

// ListSubscriptionsByRepo returns every subscription to a repository.
func (d *DB) ListSubscriptionsByRepo(ctx context.Context, fullName string) ([]model.Subscription, error) {
	return d.querySubscriptions(ctx, subscriptionSelect+` WHERE r.full_name = $1 ORDER BY s.id`, fullName)
}

func (d *DB) querySubscriptions(ctx context.Context, query string, args ...any) ([]model.Subscription, error) {
	rows, err := d.pool.Query(ctx, query, args...)
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
	if err := d.pool.QueryRow(ctx, `SELECT COUNT(*) FROM subscriptions WHERE subscriber_id = $1`, subscriberID).Scan(&n); err != nil {
		return 0, fmt.Errorf("failed to count subscriptions: %w", err)
	}
	return n, nil
}

// GetRepoState returns the watermarks for a subscriber and repository.
func (d *DB) GetRepoState(ctx context.Context, subscriberID, repoID int64) (model.RepoCheckState, error) {
	st := model.RepoCheckState{SubscriberID: subscriberID, RepoID: repoID}
	err := d.pool.QueryRow(ctx, `
		SELECT last_issue_check, last_pr_check FROM repo_check_state
		WHERE subscriber_id = $1 AND repo_id = $2`, subscriberID, repoID).
		Scan(&st.LastIssueCheck, &st.LastPullRequestCheck)
	if errors.Is(err, pgx.ErrNoRows) {
		return st, store.ErrNotFound
	}
	if err != nil {
		return st, fmt.Errorf("failed to get repo state: %w", err)
	}
	return st, nil
}

// InitRepoState inserts watermarks only when none exist yet.
func (d *DB) InitRepoState(ctx context.Context, subscriberID, repoID int64, issueCheck, prCheck time.Time) error {
	_, err := d.pool.Exec(ctx, `
		INSERT INTO repo_check_state (subscriber_id, repo_id, last_issue_check, last_pr_check)
		VALUES ($1, $2, $3, $4)
		ON CONFLICT (subscriber_id, repo_id) DO NOTHING`,
		subscriberID, repoID, issueCheck, prCheck)
	if err != nil {
		return fmt.Errorf("failed to init repo state: %w", err)
	}
	return nil
}

// AdvanceRepoState overwrites both watermarks. The subscription row is
// share-locked so a concurrent unsubscribe either waits for the write or
// wins, in which case nothing is written and store.ErrNotFound is returned.
func (d *DB) AdvanceRepoState(ctx context.Context, subscriberID, repoID int64, issueCheck, prCheck time.Time) error {
	tag, err := d.pool.Exec(ctx, `
		WITH sub AS (
			SELECT subscriber_id, repo_id FROM subscriptions
			WHERE subscriber_id = $1 AND repo_id = $2
			FOR SHARE
		)
		INSERT INTO repo_check_state (subscriber_id, repo_id, last_issue_check, last_pr_check)
		SELECT subscriber_id, repo_id, $3::timestamptz, $4::timestamptz FROM sub
		ON CONFLICT (subscriber_id, repo_id) DO UPDATE SET
			last_issue_check = EXCLUDED.last_issue_check,
			last_pr_check = EXCLUDED.last_pr_check`,
		subscriberID, repoID, issueCheck, prCheck)
	if err != nil {
		return fmt.Errorf("failed to advance repo state: %w", err)
	}
	return requireAffected(tag)
}

// IsEventProcessed reports whether a webhook delivery was already handled.
func (d *DB) IsEventProcessed(ctx context.Context, id string) (bool, error) {
	var exists bool
	err := d.pool.QueryRow(ctx, `SELECT EXISTS (SELECT 1 FROM processed_events WHERE id = $1)`, id).Scan(&exists)
	if err != nil {
		return false, fmt.Errorf("failed to check processed event: %w", err)
	}
	return exists, nil
}

// MarkEventProcessed records a webhook delivery.
func (d *DB) MarkEventProcessed(ctx context.Context, id string, at time.Time) error {
	_, err := d.pool.Exec(ctx, `INSERT INTO processed_events (id, processed_at) VALUES ($1, $2) ON CONFLICT DO NOTHING`, id, at)
	if err != nil {
		return fmt.Errorf("failed to mark event processed: %w", err)
	}
	return nil
}

func requireAffected(tag pgconn.CommandTag) error {
	if tag.RowsAffected() == 0 {
		return store.ErrNotFound
	}
	return nil
}
