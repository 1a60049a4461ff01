package billing

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"

	"github.com/dmitrymomot/saasdash/pkg/pg"
)

// DBTX is the subset of pgx used by PostgresStore.
// *pgxpool.Pool, *pgx.Conn and pgx.Tx satisfy it.
type DBTX interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

// PostgresStore persists records in the user_subscriptions table.
type PostgresStore struct {
	db DBTX
}

// NewPostgresStore creates a Store backed by PostgreSQL.
func NewPostgresStore(db DBTX) *PostgresStore {
	if db == nil {
		panic("billing: database handle is required")
	}
	return &PostgresStore{db: db}
}

const recordColumns = `id, user_id, customer_id, subscription_id, price_id, plan_id, status,
	trial_started_at, trial_ends_at, current_period_start, current_period_end,
	canceled_at, cancel_at_period_end, last_event_at, created_at, updated_at`

func (s *PostgresStore) GetByUserID(ctx context.Context, userID string) (*Record, error) {
	row := s.db.QueryRow(ctx, `SELECT `+recordColumns+` FROM user_subscriptions WHERE user_id = $1`, userID)
	return scanRecord(row)
}

func (s *PostgresStore) GetByCustomerID(ctx context.Context, customerID string) (*Record, error) {
	row := s.db.QueryRow(ctx, `SELECT `+recordColumns+` FROM user_subscriptions WHERE customer_id = $1`, customerID)
	return scanRecord(row)
}

// UpsertCustomer relies on the unique user_id constraint so concurrent calls
// for one user converge on a single row.
func (s *PostgresStore) UpsertCustomer(ctx context.Context, userID, customerID string) (*Record, error) {
	if userID == "" {
		return nil, ErrMissingUserID
	}
	if customerID == "" {
		return nil, ErrMissingCustomerID
	}

	row := s.db.QueryRow(ctx, `
		INSERT INTO user_subscriptions (id, user_id, customer_id, plan_id, status)
		VALUES ($1, $2, $3, $4, $5)
		ON CONFLICT (user_id) DO UPDATE
		SET customer_id = COALESCE(user_subscriptions.customer_id, EXCLUDED.customer_id),
		    updated_at = CASE
		        WHEN user_subscriptions.customer_id IS NULL THEN now()
		        ELSE user_subscriptions.updated_at
		    END
		RETURNING `+recordColumns,
		uuid.New(), userID, customerID, PlanFree, StatusInactive,
	)
	rec, err := scanRecord(row)
	if err != nil {
		if pg.IsDuplicateKeyError(err) {
			return nil, errors.Join(ErrFailedToPersistRecord, ErrCustomerConflict)
		}
		return nil, errors.Join(ErrFailedToPersistRecord, err)
	}
	return rec, nil
}

func (s *PostgresStore) Update(ctx context.Context, rec *Record) error {
	if rec == nil || rec.ProviderCustomerID == "" {
		return ErrMissingCustomerID
	}

	row := s.db.QueryRow(ctx, `
		UPDATE user_subscriptions SET
			subscription_id = $2,
			price_id = $3,
			plan_id = $4,
			status = $5,
			trial_started_at = $6,
			trial_ends_at = $7,
			current_period_start = $8,
			current_period_end = $9,
			canceled_at = $10,
			cancel_at_period_end = $11,
			last_event_at = $12,
			updated_at = now()
		WHERE customer_id = $1
		  AND (last_event_at IS NULL OR ($12::timestamptz IS NOT NULL AND last_event_at <= $12::timestamptz))
		RETURNING updated_at`,
		rec.ProviderCustomerID,
		nullString(rec.ProviderSubID),
		nullString(rec.ProviderPriceID),
		rec.PlanID,
		rec.Status,
		rec.TrialStartedAt,
		rec.TrialEndsAt,
		rec.CurrentPeriodStart,
		rec.CurrentPeriodEnd,
		rec.CanceledAt,
		rec.CancelAtPeriodEnd,
		rec.LastEventAt,
	)

	var updatedAt time.Time
	if err := row.Scan(&updatedAt); err != nil {
		if pg.IsDuplicateKeyError(err) {
			return errors.Join(ErrFailedToPersistRecord, ErrSubscriptionConflict)
		}
		if !pg.IsNotFoundError(err) {
			return errors.Join(ErrFailedToPersistRecord, err)
		}
		// No row matched: either the customer is unknown or the guard rejected the write.
		if _, getErr := s.GetByCustomerID(ctx, rec.ProviderCustomerID); getErr != nil {
			return getErr
		}
		return ErrStaleEvent
	}
	rec.UpdatedAt = updatedAt
	return nil
}

func scanRecord(row pgx.Row) (*Record, error) {
	var (
		rec                        Record
		customerID, subID, priceID *string
		planID, status             string
	)
	err := row.Scan(
		&rec.ID,
		&rec.UserID,
		&customerID,
		&subID,
		&priceID,
		&planID,
		&status,
		&rec.TrialStartedAt,
		&rec.TrialEndsAt,
		&rec.CurrentPeriodStart,
		&rec.CurrentPeriodEnd,
		&rec.CanceledAt,
		&rec.CancelAtPeriodEnd,
		&rec.LastEventAt,
		&rec.CreatedAt,
		&rec.UpdatedAt,
	)
	if err != nil {
		if pg.IsNotFoundError(err) {
			return nil, ErrRecordNotFound
		}
		return nil, fmt.Errorf("scan subscription record: %w", err)
	}

	rec.ProviderCustomerID = deref(customerID)
	rec.ProviderSubID = deref(subID)
	rec.ProviderPriceID = deref(priceID)
	rec.PlanID = PlanID(planID)
	rec.Status = Status(status)
	return &rec, nil
}

func nullString(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}

func deref(s *string) string {
	if s == nil {
		return ""
	}
	return *s
}
