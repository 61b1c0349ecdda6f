package store

import (
	"database/sql"
	"fmt"
	"strings"
	"time"

	"github.com/creatorhub/creatorhub/internal/model"
)

// SubscriptionStore is the persistence boundary for subscription records.
// Email is the unique key; writes are idempotent upserts so redelivered
// webhook events converge instead of duplicating rows.
type SubscriptionStore struct {
	db *sql.DB
}

func NewSubscriptionStore(db *sql.DB) *SubscriptionStore {
	return &SubscriptionStore{db: db}
}

// UpsertParams carries the normalized fields written on every webhook event.
// UserID is deliberately absent: the webhook path never touches the
// identity link, only the session path does (see LinkUserID).
type UpsertParams struct {
	Email            string
	Status           string
	Plan             *string
	CurrentPeriodEnd *time.Time
	LastEvent        *string
	Raw              string
}

func scanSubscription(scanner interface{ Scan(...any) error }) (*model.Subscription, error) {
	var sub model.Subscription
	var plan, lastEvent, userID sql.NullString
	var periodEnd sql.NullTime
	err := scanner.Scan(
		&sub.Email, &sub.Status, &plan, &periodEnd, &lastEvent,
		&sub.Raw, &userID, &sub.CreatedAt, &sub.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	if plan.Valid {
		sub.Plan = &plan.String
	}
	if periodEnd.Valid {
		sub.CurrentPeriodEnd = &periodEnd.Time
	}
	if lastEvent.Valid {
		sub.LastEvent = &lastEvent.String
	}
	if userID.Valid {
		sub.UserID = &userID.String
	}
	return &sub, nil
}

const subscriptionCols = `email, status, plan, current_period_end, last_event, raw, user_id, created_at, updated_at`

// Upsert inserts or replaces the record for the email in one atomic
// statement. A conflicting row keeps its user_id and created_at; everything
// else is overwritten by the newer event (last write wins).
func (s *SubscriptionStore) Upsert(p UpsertParams) (*model.Subscription, error) {
	email := normalizeEmail(p.Email)
	now := time.Now().UTC()

	_, err := s.db.Exec(
		`INSERT INTO subscriptions (email, status, plan, current_period_end, last_event, raw, updated_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?)
		 ON CONFLICT(email) DO UPDATE SET
		   status = excluded.status,
		   plan = excluded.plan,
		   current_period_end = excluded.current_period_end,
		   last_event = excluded.last_event,
		   raw = excluded.raw,
		   updated_at = excluded.updated_at`,
		email, p.Status, nullString(p.Plan), nullTime(p.CurrentPeriodEnd),
		nullString(p.LastEvent), p.Raw, now,
	)
	if err != nil {
		return nil, fmt.Errorf("upsert subscription: %w", err)
	}
	return s.GetByEmail(email)
}

// GetByEmail returns the record for the email, or (nil, nil) when absent.
func (s *SubscriptionStore) GetByEmail(email string) (*model.Subscription, error) {
	row := s.db.QueryRow(
		`SELECT `+subscriptionCols+` FROM subscriptions WHERE email = ?`,
		normalizeEmail(email),
	)
	sub, err := scanSubscription(row)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get subscription by email: %w", err)
	}
	return sub, nil
}

// LinkUserID sets the identity-provider account reference, but only when
// the record doesn't already carry one. Once set it is never overwritten.
func (s *SubscriptionStore) LinkUserID(email, userID string) error {
	_, err := s.db.Exec(
		`UPDATE subscriptions SET user_id = ?, updated_at = ?
		 WHERE email = ? AND user_id IS NULL`,
		userID, time.Now().UTC(), normalizeEmail(email),
	)
	if err != nil {
		return fmt.Errorf("link user id: %w", err)
	}
	return nil
}

func normalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}

func nullString(s *string) sql.NullString {
	if s == nil {
		return sql.NullString{}
	}
	return sql.NullString{String: *s, Valid: true}
}

func nullTime(t *time.Time) sql.NullTime {
	if t == nil {
		return sql.NullTime{}
	}
	return sql.NullTime{Time: *t, Valid: true}
}
