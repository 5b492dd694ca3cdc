package db

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/inklet/newsletter-backend/models"
)

// MemDatabase is a straw-man in-memory Store (for testing!). Transactions
// stage their writes and apply them on Commit under a single lock, which
// gives the same all-or-nothing visibility as the real database.
type MemDatabase struct {
	mu          sync.Mutex
	subscribers map[uuid.UUID]models.Subscriber
	tokens      map[string]uuid.UUID

	// Failure hooks for exercising error paths in tests.
	BeginErr       error
	TokenInsertErr error
}

// InitMemDatabase returns an empty in-memory store.
func InitMemDatabase() *MemDatabase {
	return &MemDatabase{
		subscribers: make(map[uuid.UUID]models.Subscriber),
		tokens:      make(map[string]uuid.UUID),
	}
}

func (db *MemDatabase) Begin(ctx context.Context) (Txn, error) {
	if db.BeginErr != nil {
		return nil, db.BeginErr
	}
	if err := ctx.Err(); err != nil {
		return nil, ErrPoolExhausted
	}
	return &memTxn{db: db}, nil
}

type memTxn struct {
	db          *MemDatabase
	subscribers []models.Subscriber
	tokens      map[string]uuid.UUID
	done        bool
}

func (t *memTxn) InsertSubscriber(ctx context.Context, sub models.NewSubscriber) (uuid.UUID, error) {
	t.db.mu.Lock()
	defer t.db.mu.Unlock()
	for _, existing := range t.db.subscribers {
		if existing.Email == sub.Email.String() {
			return uuid.Nil, ErrDuplicateEmail
		}
	}
	row := models.Subscriber{
		ID:           uuid.New(),
		Email:        sub.Email.String(),
		Name:         sub.Name.String(),
		SubscribedAt: time.Now().UTC(),
		Status:       models.StatusPendingConfirmation,
	}
	t.subscribers = append(t.subscribers, row)
	return row.ID, nil
}

func (t *memTxn) InsertToken(ctx context.Context, subscriberID uuid.UUID, token string) error {
	if t.db.TokenInsertErr != nil {
		return t.db.TokenInsertErr
	}
	if t.tokens == nil {
		t.tokens = make(map[string]uuid.UUID)
	}
	t.tokens[token] = subscriberID
	return nil
}

func (t *memTxn) Commit() error {
	t.db.mu.Lock()
	defer t.db.mu.Unlock()
	if t.done {
		return nil
	}
	for _, sub := range t.subscribers {
		t.db.subscribers[sub.ID] = sub
	}
	for token, id := range t.tokens {
		t.db.tokens[token] = id
	}
	t.done = true
	return nil
}

func (t *memTxn) Rollback() error {
	// Staged writes are simply dropped.
	t.done = true
	return nil
}

func (db *MemDatabase) SubscriberIDForToken(ctx context.Context, token string) (uuid.UUID, bool, error) {
	db.mu.Lock()
	defer db.mu.Unlock()
	id, ok := db.tokens[token]
	return id, ok, nil
}

func (db *MemDatabase) MarkConfirmed(ctx context.Context, id uuid.UUID) error {
	db.mu.Lock()
	defer db.mu.Unlock()
	sub, ok := db.subscribers[id]
	if !ok {
		return nil
	}
	sub.Status = models.StatusConfirmed
	db.subscribers[id] = sub
	return nil
}

func (db *MemDatabase) ConfirmedSubscribers(ctx context.Context) ([]ConfirmedSubscriber, error) {
	db.mu.Lock()
	defer db.mu.Unlock()
	confirmed := []ConfirmedSubscriber{}
	for _, sub := range db.subscribers {
		if sub.Status == models.StatusConfirmed {
			confirmed = append(confirmed, ConfirmedSubscriber{ID: sub.ID, Email: sub.Email})
		}
	}
	return confirmed, nil
}

// Subscribers returns every stored row, for assertions in tests.
func (db *MemDatabase) Subscribers() []models.Subscriber {
	db.mu.Lock()
	defer db.mu.Unlock()
	subs := make([]models.Subscriber, 0, len(db.subscribers))
	for _, sub := range db.subscribers {
		subs = append(subs, sub)
	}
	return subs
}

// TokensFor returns the tokens currently associated with a subscriber.
func (db *MemDatabase) TokensFor(id uuid.UUID) []string {
	db.mu.Lock()
	defer db.mu.Unlock()
	tokens := []string{}
	for token, owner := range db.tokens {
		if owner == id {
			tokens = append(tokens, token)
		}
	}
	return tokens
}

// ClearTables resets the store to empty.
func (db *MemDatabase) ClearTables() error {
	db.mu.Lock()
	defer db.mu.Unlock()
	db.subscribers = make(map[uuid.UUID]models.Subscriber)
	db.tokens = make(map[string]uuid.UUID)
	db.TokenInsertErr = nil
	db.BeginErr = nil
	return nil
}
