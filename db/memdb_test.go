package db

import (
	"context"
	"errors"
	"testing"

	"github.com/inklet/newsletter-backend/models"
)

func mustNewSubscriber(t *testing.T, name, email string) models.NewSubscriber {
	t.Helper()
	sub, err := models.ParseNewSubscriber(name, email)
	if err != nil {
		t.Fatalf("ParseNewSubscriber(%q, %q): %v", name, email, err)
	}
	return sub
}

func TestCommitMakesSubscriberAndTokenVisibleTogether(t *testing.T) {
	memdb := InitMemDatabase()
	ctx := context.Background()

	tx, err := memdb.Begin(ctx)
	if err != nil {
		t.Fatalf("Begin: %v", err)
	}
	id, err := tx.InsertSubscriber(ctx, mustNewSubscriber(t, "Ursula", "ursula@gmail.com"))
	if err != nil {
		t.Fatalf("InsertSubscriber: %v", err)
	}
	if err := tx.InsertToken(ctx, id, "sometoken"); err != nil {
		t.Fatalf("InsertToken: %v", err)
	}

	// Nothing is visible before commit.
	if got := len(memdb.Subscribers()); got != 0 {
		t.Errorf("expected 0 subscribers before commit, got %d", got)
	}
	if _, found, _ := memdb.SubscriberIDForToken(ctx, "sometoken"); found {
		t.Errorf("token should not resolve before commit")
	}

	if err := tx.Commit(); err != nil {
		t.Fatalf("Commit: %v", err)
	}
	if got := len(memdb.Subscribers()); got != 1 {
		t.Errorf("expected 1 subscriber after commit, got %d", got)
	}
	gotID, found, _ := memdb.SubscriberIDForToken(ctx, "sometoken")
	if !found || gotID != id {
		t.Errorf("token should resolve to %s after commit, got (%s, %v)", id, gotID, found)
	}
}

func TestRollbackDiscardsStagedWrites(t *testing.T) {
	memdb := InitMemDatabase()
	ctx := context.Background()

	tx, _ := memdb.Begin(ctx)
	if _, err := tx.InsertSubscriber(ctx, mustNewSubscriber(t, "Ursula", "ursula@gmail.com")); err != nil {
		t.Fatalf("InsertSubscriber: %v", err)
	}
	if err := tx.Rollback(); err != nil {
		t.Fatalf("Rollback: %v", err)
	}
	if got := len(memdb.Subscribers()); got != 0 {
		t.Errorf("expected 0 subscribers after rollback, got %d", got)
	}
}

func TestDuplicateEmailIsRejected(t *testing.T) {
	memdb := InitMemDatabase()
	ctx := context.Background()

	tx, _ := memdb.Begin(ctx)
	id, _ := tx.InsertSubscriber(ctx, mustNewSubscriber(t, "Ursula", "ursula@gmail.com"))
	tx.InsertToken(ctx, id, "token-one")
	tx.Commit()

	tx, _ = memdb.Begin(ctx)
	_, err := tx.InsertSubscriber(ctx, mustNewSubscriber(t, "Another Ursula", "ursula@gmail.com"))
	if !errors.Is(err, ErrDuplicateEmail) {
		t.Errorf("expected ErrDuplicateEmail, got %v", err)
	}
	tx.Rollback()
}

func TestMarkConfirmedIsIdempotent(t *testing.T) {
	memdb := InitMemDatabase()
	ctx := context.Background()

	tx, _ := memdb.Begin(ctx)
	id, _ := tx.InsertSubscriber(ctx, mustNewSubscriber(t, "Ursula", "ursula@gmail.com"))
	tx.InsertToken(ctx, id, "token")
	tx.Commit()

	if err := memdb.MarkConfirmed(ctx, id); err != nil {
		t.Fatalf("MarkConfirmed: %v", err)
	}
	if err := memdb.MarkConfirmed(ctx, id); err != nil {
		t.Fatalf("second MarkConfirmed should succeed: %v", err)
	}
	confirmed, _ := memdb.ConfirmedSubscribers(ctx)
	if len(confirmed) != 1 {
		t.Errorf("expected exactly 1 confirmed subscriber, got %d", len(confirmed))
	}
}

func TestConfirmedSubscribersExcludesPending(t *testing.T) {
	memdb := InitMemDatabase()
	ctx := context.Background()

	tx, _ := memdb.Begin(ctx)
	pendingID, _ := tx.InsertSubscriber(ctx, mustNewSubscriber(t, "Pending", "pending@gmail.com"))
	tx.InsertToken(ctx, pendingID, "pending-token")
	tx.Commit()

	tx, _ = memdb.Begin(ctx)
	confirmedID, _ := tx.InsertSubscriber(ctx, mustNewSubscriber(t, "Confirmed", "confirmed@gmail.com"))
	tx.InsertToken(ctx, confirmedID, "confirmed-token")
	tx.Commit()
	memdb.MarkConfirmed(ctx, confirmedID)

	confirmed, err := memdb.ConfirmedSubscribers(ctx)
	if err != nil {
		t.Fatalf("ConfirmedSubscribers: %v", err)
	}
	if len(confirmed) != 1 || confirmed[0].Email != "confirmed@gmail.com" {
		t.Errorf("expected only the confirmed subscriber, got %+v", confirmed)
	}
}
