package db

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log"
	"net/url"
	"time"

	"github.com/google/uuid"
	"github.com/lib/pq"

	"github.com/inklet/newsletter-backend/models"
)

// SQLDatabase is a Store backed by postgresql.
type SQLDatabase struct {
	cfg  Config
	conn *sql.DB
}

func getConnectionString(cfg Config) string {
	return fmt.Sprintf("postgres://%s:%s@%s:%s/%s?sslmode=disable",
		url.PathEscape(cfg.DbUsername),
		url.PathEscape(cfg.DbPass),
		url.PathEscape(cfg.DbHost),
		url.PathEscape(cfg.DbPort),
		url.PathEscape(cfg.DbName))
}

// InitSQLDatabase creates a DB connection based on information in a Config,
// and returns a pointer to the resulting SQLDatabase object. If connection
// fails, returns an error.
func InitSQLDatabase(cfg Config) (*SQLDatabase, error) {
	connectionString := getConnectionString(cfg)
	log.Printf("Connecting to Postgres DB at %s ...\n", cfg.DbHost)
	conn, err := sql.Open("postgres", connectionString)
	if err != nil {
		return nil, err
	}
	conn.SetMaxOpenConns(cfg.MaxOpenConns)
	conn.SetConnMaxIdleTime(5 * time.Minute)
	return &SQLDatabase{cfg: cfg, conn: conn}, nil
}

// Ping verifies the database is reachable.
func (db *SQLDatabase) Ping(ctx context.Context) error {
	return db.conn.PingContext(ctx)
}

// Begin acquires a pooled connection and opens a transaction on it. When the
// pool cannot service the request before the context deadline, reports
// ErrPoolExhausted.
func (db *SQLDatabase) Begin(ctx context.Context) (Txn, error) {
	tx, err := db.conn.BeginTx(ctx, nil)
	if err != nil {
		if errors.Is(err, context.DeadlineExceeded) || errors.Is(err, context.Canceled) {
			return nil, fmt.Errorf("%w: %v", ErrPoolExhausted, err)
		}
		return nil, err
	}
	return &sqlTxn{tx: tx}, nil
}

type sqlTxn struct {
	tx *sql.Tx
}

// InsertSubscriber inserts a pending subscriber row. A duplicate email
// trips the unique constraint and reports ErrDuplicateEmail.
func (t *sqlTxn) InsertSubscriber(ctx context.Context, sub models.NewSubscriber) (uuid.UUID, error) {
	id := uuid.New()
	_, err := t.tx.ExecContext(ctx,
		`INSERT INTO subscriptions (id, email, name, subscribed_at, status)
		 VALUES ($1, $2, $3, $4, $5)`,
		id, sub.Email.String(), sub.Name.String(), time.Now().UTC(), models.StatusPendingConfirmation)
	if err != nil {
		var pqErr *pq.Error
		if errors.As(err, &pqErr) && pqErr.Code.Name() == "unique_violation" {
			return uuid.Nil, fmt.Errorf("%w: %s", ErrDuplicateEmail, sub.Email)
		}
		return uuid.Nil, err
	}
	return id, nil
}

func (t *sqlTxn) InsertToken(ctx context.Context, subscriberID uuid.UUID, token string) error {
	_, err := t.tx.ExecContext(ctx,
		`INSERT INTO subscription_tokens (subscription_token, subscriber_id)
		 VALUES ($1, $2)`,
		token, subscriberID)
	return err
}

func (t *sqlTxn) Commit() error { return t.tx.Commit() }

// Rollback after Commit returns sql.ErrTxDone; treat that as a no-op so
// callers can defer Rollback on every path.
func (t *sqlTxn) Rollback() error {
	if err := t.tx.Rollback(); err != nil && !errors.Is(err, sql.ErrTxDone) {
		return err
	}
	return nil
}

// SubscriberIDForToken is a point lookup for the confirm flow. No
// transaction is required.
func (db *SQLDatabase) SubscriberIDForToken(ctx context.Context, token string) (uuid.UUID, bool, error) {
	var id uuid.UUID
	err := db.conn.QueryRowContext(ctx,
		`SELECT subscriber_id FROM subscription_tokens WHERE subscription_token = $1`,
		token).Scan(&id)
	if errors.Is(err, sql.ErrNoRows) {
		return uuid.Nil, false, nil
	}
	if err != nil {
		return uuid.Nil, false, err
	}
	return id, true, nil
}

// MarkConfirmed flips a subscriber to confirmed. The update is idempotent:
// re-confirming an already-confirmed row succeeds and changes nothing.
func (db *SQLDatabase) MarkConfirmed(ctx context.Context, id uuid.UUID) error {
	_, err := db.conn.ExecContext(ctx,
		`UPDATE subscriptions SET status = $1 WHERE id = $2`,
		models.StatusConfirmed, id)
	return err
}

// ConfirmedSubscribers retrieves the recipients for a newsletter broadcast.
func (db *SQLDatabase) ConfirmedSubscribers(ctx context.Context) ([]ConfirmedSubscriber, error) {
	rows, err := db.conn.QueryContext(ctx,
		`SELECT id, email FROM subscriptions WHERE status = $1`,
		models.StatusConfirmed)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	subscribers := []ConfirmedSubscriber{}
	for rows.Next() {
		var sub ConfirmedSubscriber
		if err := rows.Scan(&sub.ID, &sub.Email); err != nil {
			return nil, err
		}
		subscribers = append(subscribers, sub)
	}
	return subscribers, rows.Err()
}

// GetSubscriber retrieves a single subscriber row.
func (db *SQLDatabase) GetSubscriber(ctx context.Context, id uuid.UUID) (models.Subscriber, error) {
	var sub models.Subscriber
	err := db.conn.QueryRowContext(ctx,
		`SELECT id, email, name, subscribed_at, status FROM subscriptions WHERE id = $1`,
		id).Scan(&sub.ID, &sub.Email, &sub.Name, &sub.SubscribedAt, &sub.Status)
	return sub, err
}

func tryExec(database *SQLDatabase, commands []string) error {
	for _, command := range commands {
		if _, err := database.conn.Exec(command); err != nil {
			return fmt.Errorf("command failed: %s\nwith error: %v",
				command, err.Error())
		}
	}
	return nil
}

// ClearTables nukes all the tables. ** Should only be used during testing **
func (db *SQLDatabase) ClearTables() error {
	return tryExec(db, []string{
		"DELETE FROM subscription_tokens",
		"DELETE FROM subscriptions",
	})
}
