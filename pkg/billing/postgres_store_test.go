package billing_test

import (
	"context"
	"log/slog"
	"os"
	"sync"
	"testing"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dmitrymomot/saasdash/db"
	"github.com/dmitrymomot/saasdash/pkg/billing"
	"github.com/dmitrymomot/saasdash/pkg/pg"
)

var (
	pgOnce sync.Once
	pgPool *pgxpool.Pool
	pgErr  error
)

// testPool connects to PG_CONN_URL and applies migrations once per test binary.
func testPool(t *testing.T) *pgxpool.Pool {
	t.Helper()
	connURL := os.Getenv("PG_CONN_URL")
	if connURL == "" {
		t.Skip("PG_CONN_URL is not set")
	}

	pgOnce.Do(func() {
		ctx := context.Background()
		cfg := pg.Config{
			ConnectionString: connURL,
			MaxOpenConns:     5,
			RetryAttempts:    1,
			MigrationsPath:   db.MigrationsDir,
			MigrationsTable:  "schema_migrations",
		}
		pgPool, pgErr = pg.Connect(ctx, cfg)
		if pgErr != nil {
			return
		}
		pgErr = pg.Migrate(ctx, pgPool, cfg, db.Migrations, slog.Default())
	})
	require.NoError(t, pgErr)
	return pgPool
}

func TestPostgresStore(t *testing.T) {
	t.Parallel()
	store := billing.NewPostgresStore(testPool(t))
	ctx := context.Background()

	uniq := func(prefix string) string { return prefix + "_" + uuid.NewString() }

	t.Run("upsert customer is first writer wins", func(t *testing.T) {
		t.Parallel()
		userID, cus1, cus2 := uniq("user"), uniq("cus"), uniq("cus")

		rec, err := store.UpsertCustomer(ctx, userID, cus1)
		require.NoError(t, err)
		assert.Equal(t, billing.PlanFree, rec.PlanID)
		assert.Equal(t, billing.StatusInactive, rec.Status)
		assert.Empty(t, rec.ProviderSubID)

		again, err := store.UpsertCustomer(ctx, userID, cus2)
		require.NoError(t, err)
		assert.Equal(t, rec.ID, again.ID)
		assert.Equal(t, cus1, again.ProviderCustomerID)

		_, err = store.UpsertCustomer(ctx, uniq("user"), cus1)
		assert.ErrorIs(t, err, billing.ErrCustomerConflict)
	})

	t.Run("update round trip and ordering guard", func(t *testing.T) {
		t.Parallel()
		userID, customerID := uniq("user"), uniq("cus")
		created, err := store.UpsertCustomer(ctx, userID, customerID)
		require.NoError(t, err)

		next := *created
		next.ProviderSubID = uniq("sub")
		next.ProviderPriceID = "price_plus_month"
		next.PlanID = billing.PlanPlus
		next.Status = billing.StatusTrialing
		next.TrialEndsAt = ptr(t0.AddDate(0, 0, 14))
		next.LastEventAt = ptr(t1)
		require.NoError(t, store.Update(ctx, &next))

		stored, err := store.GetByCustomerID(ctx, customerID)
		require.NoError(t, err)
		assert.Equal(t, billing.PlanPlus, stored.PlanID)
		assert.Equal(t, billing.StatusTrialing, stored.Status)
		require.NotNil(t, stored.TrialEndsAt)
		assert.True(t, stored.TrialEndsAt.Equal(t0.AddDate(0, 0, 14)))
		assert.Nil(t, stored.CanceledAt)

		stale := next
		stale.Status = billing.StatusActive
		stale.LastEventAt = ptr(t0)
		assert.ErrorIs(t, store.Update(ctx, &stale), billing.ErrStaleEvent)

		cleared := next
		cleared.ProviderSubID = ""
		cleared.LastEventAt = ptr(t2)
		require.NoError(t, store.Update(ctx, &cleared))
		stored, err = store.GetByUserID(ctx, userID)
		require.NoError(t, err)
		assert.Empty(t, stored.ProviderSubID)
	})

	t.Run("subscription bound to another customer", func(t *testing.T) {
		t.Parallel()
		subID := uniq("sub")
		first, err := store.UpsertCustomer(ctx, uniq("user"), uniq("cus"))
		require.NoError(t, err)
		second, err := store.UpsertCustomer(ctx, uniq("user"), uniq("cus"))
		require.NoError(t, err)

		rec := *first
		rec.ProviderSubID = subID
		rec.Status = billing.StatusActive
		rec.LastEventAt = ptr(t1)
		require.NoError(t, store.Update(ctx, &rec))

		other := *second
		other.ProviderSubID = subID
		other.Status = billing.StatusActive
		other.LastEventAt = ptr(t1)
		err = store.Update(ctx, &other)
		assert.ErrorIs(t, err, billing.ErrSubscriptionConflict)
		assert.ErrorIs(t, err, billing.ErrFailedToPersistRecord)
	})

	t.Run("not found", func(t *testing.T) {
		t.Parallel()
		_, err := store.GetByUserID(ctx, uniq("user"))
		assert.ErrorIs(t, err, billing.ErrRecordNotFound)
		err = store.Update(ctx, &billing.Record{ProviderCustomerID: uniq("cus")})
		assert.ErrorIs(t, err, billing.ErrRecordNotFound)
	})
}
