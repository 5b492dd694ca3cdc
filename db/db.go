package db

import (
	"context"
	"errors"
	"flag"
	"os"

	"github.com/google/uuid"

	"github.com/inklet/newsletter-backend/models"
)

// ConfirmedSubscriber is the projection of a subscriber used by the
// newsletter broadcast.
type ConfirmedSubscriber struct {
	ID    uuid.UUID
	Email string
}

// Errors the store distinguishes for its callers. Everything else is an
// opaque storage failure.
var (
	ErrDuplicateEmail = errors.New("email is already subscribed")
	ErrPoolExhausted  = errors.New("no database connection available")
)

// Store is what the subscription workflow needs from the database.
type Store interface {
	// Begin opens a transaction, blocking until a pooled connection is
	// available or the context deadline expires (ErrPoolExhausted).
	Begin(ctx context.Context) (Txn, error)
	// SubscriberIDForToken resolves a confirmation token. A token that was
	// never issued reports found=false, not an error.
	SubscriberIDForToken(ctx context.Context, token string) (id uuid.UUID, found bool, err error)
	// MarkConfirmed transitions a subscriber to confirmed. Confirming an
	// already-confirmed subscriber is a successful no-op.
	MarkConfirmed(ctx context.Context, id uuid.UUID) error
	// ConfirmedSubscribers lists every confirmed subscriber.
	ConfirmedSubscribers(ctx context.Context) ([]ConfirmedSubscriber, error)
}

// Txn scopes the writes of a single subscribe call. Either both the
// subscriber and its token become visible (Commit) or neither does
// (Rollback). Rollback after a successful Commit is a no-op, so it is safe
// to defer unconditionally.
type Txn interface {
	InsertSubscriber(ctx context.Context, sub models.NewSubscriber) (uuid.UUID, error)
	InsertToken(ctx context.Context, subscriberID uuid.UUID, token string) error
	Commit() error
	Rollback() error
}

// Config is a configuration struct for a Database.
type Config struct {
	DbHost       string
	DbPort       string
	DbName       string
	DbUsername   string
	DbPass       string
	MaxOpenConns int
}

// Default configuration values. Can be overwritten by env vars of the same name.
var configDefaults = map[string]string{
	"DB_HOST":      "localhost",
	"DB_PORT":      "5432",
	"DB_NAME":      "newsletter",
	"DB_USERNAME":  "postgres",
	"DB_PASSWORD":  "postgres",
	"TEST_DB_NAME": "newsletter_test",
}

func getEnvOrDefault(varName string) string {
	envVar := os.Getenv(varName)
	if len(envVar) == 0 {
		envVar = configDefaults[varName]
	}
	return envVar
}

// LoadEnvironmentVariables loads relevant environment variables into a
// Config object.
func LoadEnvironmentVariables() (Config, error) {
	config := Config{
		DbHost:       getEnvOrDefault("DB_HOST"),
		DbPort:       getEnvOrDefault("DB_PORT"),
		DbName:       getEnvOrDefault("DB_NAME"),
		DbUsername:   getEnvOrDefault("DB_USERNAME"),
		DbPass:       getEnvOrDefault("DB_PASSWORD"),
		MaxOpenConns: 10,
	}
	if flag.Lookup("test.v") != nil {
		// Avoid accidentally wiping the default db during tests.
		config.DbName = getEnvOrDefault("TEST_DB_NAME")
	}
	return config, nil
}
