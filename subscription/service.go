package subscription

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/sirupsen/logrus"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"github.com/inklet/newsletter-backend/db"
	"github.com/inklet/newsletter-backend/email"
	"github.com/inklet/newsletter-backend/models"
)

// Service is the subscription workflow: the state machine that takes a
// subscriber from non-existent through pending to confirmed, and fans a
// newsletter issue out to everyone confirmed.
type Service struct {
	store   db.Store
	sender  email.Sender
	baseURL string
	log     *logrus.Logger
	metrics *Metrics
	tracer  trace.Tracer
}

// NewService wires the workflow. baseURL is the public address used to
// build confirmation links. metrics may be nil.
func NewService(store db.Store, sender email.Sender, baseURL string, logger *logrus.Logger, metrics *Metrics) *Service {
	if logger == nil {
		logger = logrus.New()
	}
	return &Service{
		store:   store,
		sender:  sender,
		baseURL: strings.TrimRight(baseURL, "/"),
		log:     logger,
		metrics: metrics,
		tracer:  otel.Tracer("subscription"),
	}
}

// Subscribe registers a new pending subscriber and emails them a
// confirmation link. The subscriber row and its token are committed before
// the email goes out: a provider failure leaves the registration durable
// and reports ErrNotificationFailed, never a rollback.
func (s *Service) Subscribe(ctx context.Context, rawName string, rawEmail string) error {
	ctx, span := s.tracer.Start(ctx, "subscription.subscribe",
		trace.WithAttributes(attribute.String("subscriber.email", rawEmail)))
	defer span.End()

	sub, err := models.ParseNewSubscriber(rawName, rawEmail)
	if err != nil {
		s.metrics.subscribeOutcome("invalid_input")
		return fmt.Errorf("%w: %v", ErrInvalidInput, err)
	}

	token, err := models.GenerateToken()
	if err != nil {
		s.metrics.subscribeOutcome("persistence_failed")
		return fmt.Errorf("%w: %v", ErrPersistenceFailed, err)
	}

	tx, err := s.store.Begin(ctx)
	if err != nil {
		s.log.WithError(err).Error("Failed to acquire a store transaction")
		s.metrics.subscribeOutcome("store_unavailable")
		return fmt.Errorf("%w: %v", ErrStoreUnavailable, err)
	}
	// Rollback is a no-op once the transaction has committed.
	defer tx.Rollback()

	id, err := tx.InsertSubscriber(ctx, sub)
	if err != nil {
		if errors.Is(err, db.ErrDuplicateEmail) {
			s.metrics.subscribeOutcome("duplicate_email")
			return fmt.Errorf("%w: %v", ErrInvalidInput, err)
		}
		s.log.WithError(err).Error("Failed to insert subscriber")
		s.metrics.subscribeOutcome("persistence_failed")
		return fmt.Errorf("%w: inserting subscriber: %v", ErrPersistenceFailed, err)
	}
	span.SetAttributes(attribute.String("subscriber.id", id.String()))

	if err := tx.InsertToken(ctx, id, token); err != nil {
		s.log.WithError(err).Error("Failed to store confirmation token")
		s.metrics.subscribeOutcome("persistence_failed")
		return fmt.Errorf("%w: storing confirmation token: %v", ErrPersistenceFailed, err)
	}
	if err := tx.Commit(); err != nil {
		s.log.WithError(err).Error("Failed to commit subscription transaction")
		s.metrics.subscribeOutcome("persistence_failed")
		return fmt.Errorf("%w: committing transaction: %v", ErrPersistenceFailed, err)
	}

	// The registration is durable from here on. A failed notification must
	// not unwind it; the token stays valid for an out-of-band resend.
	msg := email.ConfirmationMessage(sub.Email.String(), s.confirmationLink(token))
	if err := s.sender.Send(ctx, msg); err != nil {
		s.log.WithError(err).WithField("subscriber_id", id).
			Error("Failed to send confirmation email")
		s.metrics.subscribeOutcome("notification_failed")
		return fmt.Errorf("%w: %v", ErrNotificationFailed, err)
	}

	s.log.WithFields(logrus.Fields{
		"subscriber_id": id,
	}).Info("New subscriber registered and notified")
	s.metrics.subscribeOutcome("ok")
	return nil
}

func (s *Service) confirmationLink(token string) string {
	return fmt.Sprintf("%s/subscriptions/confirm?subscription_token=%s", s.baseURL, token)
}

// Confirm redeems a confirmation token. Confirming twice is fine: the
// status update is idempotent and a confirmed subscriber never reverts.
func (s *Service) Confirm(ctx context.Context, token string) error {
	ctx, span := s.tracer.Start(ctx, "subscription.confirm")
	defer span.End()

	id, found, err := s.store.SubscriberIDForToken(ctx, token)
	if err != nil {
		s.log.WithError(err).Error("Failed to look up subscription token")
		s.metrics.confirmOutcome("persistence_failed")
		return fmt.Errorf("%w: %v", ErrPersistenceFailed, err)
	}
	if !found {
		s.metrics.confirmOutcome("unknown_token")
		return ErrUnknownToken
	}
	if err := s.store.MarkConfirmed(ctx, id); err != nil {
		s.log.WithError(err).Error("Failed to mark subscriber confirmed")
		s.metrics.confirmOutcome("persistence_failed")
		return fmt.Errorf("%w: %v", ErrPersistenceFailed, err)
	}
	s.log.WithField("subscriber_id", id).Info("Subscriber confirmed")
	s.metrics.confirmOutcome("ok")
	return nil
}

// RecipientFailure records one failed newsletter delivery.
type RecipientFailure struct {
	Email string
	Err   error
}

// BroadcastReport summarizes a newsletter fan-out.
type BroadcastReport struct {
	Attempted int
	Delivered int
	Failures  []RecipientFailure
}

// Broadcast sends an issue to every confirmed subscriber. Deliveries are
// independent: one recipient's failure never aborts the rest of the batch.
func (s *Service) Broadcast(ctx context.Context, issue models.Newsletter) (BroadcastReport, error) {
	ctx, span := s.tracer.Start(ctx, "subscription.broadcast")
	defer span.End()

	report := BroadcastReport{}
	if err := issue.Validate(); err != nil {
		return report, fmt.Errorf("%w: %v", ErrInvalidInput, err)
	}
	recipients, err := s.store.ConfirmedSubscribers(ctx)
	if err != nil {
		s.log.WithError(err).Error("Failed to list confirmed subscribers")
		return report, fmt.Errorf("%w: %v", ErrStoreUnavailable, err)
	}
	span.SetAttributes(attribute.Int("newsletter.recipients", len(recipients)))

	for _, recipient := range recipients {
		report.Attempted++
		msg := email.NewsletterMessage(recipient.Email, issue)
		if err := s.sender.Send(ctx, msg); err != nil {
			s.log.WithError(err).WithField("subscriber_id", recipient.ID).
				Warn("Skipping failed newsletter delivery")
			s.metrics.newsletterDelivery("failed")
			report.Failures = append(report.Failures, RecipientFailure{Email: recipient.Email, Err: err})
			continue
		}
		s.metrics.newsletterDelivery("delivered")
		report.Delivered++
	}
	s.log.WithFields(logrus.Fields{
		"title":     issue.Title,
		"attempted": report.Attempted,
		"delivered": report.Delivered,
		"failed":    len(report.Failures),
	}).Info("Newsletter broadcast finished")
	return report, nil
}
