package sqlite_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	commerce "github.com/warp/course-commerce"
	"github.com/warp/course-commerce/access"
	"github.com/warp/course-commerce/catalog"
	"github.com/warp/course-commerce/enroll"
	"github.com/warp/course-commerce/ledger"
	"github.com/warp/course-commerce/money"
	"github.com/warp/course-commerce/purchase"
	"github.com/warp/course-commerce/store/sqlite"
)

// =============================================================================
// TEST SETUP
// =============================================================================

func newTestStore(t *testing.T) *sqlite.Store {
	store, err := sqlite.New(":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { store.Close() })

	require.NoError(t, store.SeedKinds(context.Background()))
	return store
}

func seedCourse(t *testing.T, s *sqlite.Store) {
	t.Helper()
	require.NoError(t, s.SaveCourse(context.Background(), catalog.Course{
		ID:        "go-basics",
		AuthorID:  "author-1",
		Title:     "Go Basics",
		StartDate: time.Date(2026, time.May, 1, 0, 0, 0, 0, time.UTC),
		Gated:     true,
	}))
}

// =============================================================================
// LEDGER PERSISTENCE
// =============================================================================

func TestStore_Entries_RoundTrip(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	recorded := time.Date(2026, time.April, 1, 10, 0, 0, 0, time.UTC)
	require.NoError(t, store.AppendEntry(ctx, ledger.Entry{
		ID:                "e1",
		UserID:            "u1",
		Kind:              ledger.KindNonCashPayment,
		Amount:            money.MustParse("149.90"),
		Description:       "Card payment",
		ExternalPaymentID: "ext-1",
		RecordedAt:        recorded,
	}))

	entries, err := store.EntriesByUser(ctx, "u1", recorded.Add(time.Hour))
	require.NoError(t, err)
	require.Len(t, entries, 1)

	e := entries[0]
	assert.Equal(t, ledger.EntryID("e1"), e.ID)
	assert.True(t, e.Amount.Equal(money.MustParse("149.90")))
	assert.Equal(t, "Card payment", e.Description)
	assert.Equal(t, "ext-1", e.ExternalPaymentID)
	assert.True(t, e.RecordedAt.Equal(recorded))
}

func TestStore_Entries_AsOfFilter(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	base := time.Date(2026, time.April, 1, 0, 0, 0, 0, time.UTC)
	for i, id := range []string{"e1", "e2", "e3"} {
		require.NoError(t, store.AppendEntry(ctx, ledger.Entry{
			ID:         ledger.EntryID(id),
			UserID:     "u1",
			Kind:       ledger.KindCashPayment,
			Amount:     money.FromInt(10),
			RecordedAt: base.AddDate(0, 0, i),
		}))
	}

	entries, err := store.EntriesByUser(ctx, "u1", base.AddDate(0, 0, 1))
	require.NoError(t, err)
	assert.Len(t, entries, 2)
}

func TestStore_Kinds_SeededAndUpsertable(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	kind, err := store.KindByCode(ctx, ledger.KindCourseWriteOff)
	require.NoError(t, err)
	require.NotNil(t, kind)
	assert.Equal(t, ledger.FlowDebit, kind.Flow)

	// Missing codes come back nil, not an error.
	missing, err := store.KindByCode(ctx, ledger.KindCode(42))
	require.NoError(t, err)
	assert.Nil(t, missing)

	// SaveKind is an upsert.
	require.NoError(t, store.SaveKind(ctx, ledger.Kind{
		Code: ledger.KindCourseWriteOff, Name: "Renamed", Flow: ledger.FlowDebit,
	}))
	kind, err = store.KindByCode(ctx, ledger.KindCourseWriteOff)
	require.NoError(t, err)
	assert.Equal(t, "Renamed", kind.Name)
}

// =============================================================================
// CATALOG PERSISTENCE
// =============================================================================

func TestStore_Prices_OrderedByEffectiveFrom(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()
	seedCourse(t, store)
	require.NoError(t, store.SaveTier(ctx, catalog.PriceTier{ID: "retail", Name: "Retail"}))

	may := func(d int) time.Time { return time.Date(2026, time.May, d, 0, 0, 0, 0, time.UTC) }

	// Inserted out of order on purpose.
	for _, p := range []catalog.PriceEntry{
		{ID: "p2", CourseID: "go-basics", TierID: "retail", EffectiveFrom: may(10), Price: money.FromInt(150)},
		{ID: "p1", CourseID: "go-basics", TierID: "retail", EffectiveFrom: may(1), Price: money.FromInt(100)},
	} {
		require.NoError(t, store.SavePrice(ctx, p))
	}

	prices, err := store.PricesFor(ctx, "go-basics", "retail")
	require.NoError(t, err)
	require.Len(t, prices, 2)
	assert.Equal(t, "p1", prices[0].ID)
	assert.Equal(t, "p2", prices[1].ID)
}

func TestStore_Lessons_CountAndList(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()
	seedCourse(t, store)

	for _, id := range []string{"l1", "l2"} {
		require.NoError(t, store.SaveLesson(ctx, catalog.Lesson{
			ID: id, CourseID: "go-basics", Title: "Lesson " + id, Link: "https://example.com/" + id,
		}))
	}

	count, err := store.CountLessons(ctx, "go-basics")
	require.NoError(t, err)
	assert.Equal(t, 2, count)

	lessons, err := store.LessonsByCourse(ctx, "go-basics")
	require.NoError(t, err)
	require.Len(t, lessons, 2)
	assert.Equal(t, "l1", lessons[0].ID)
}

// =============================================================================
// GRANT PERSISTENCE
// =============================================================================

func TestStore_Grants_NilDatesSurviveRoundTrip(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()
	seedCourse(t, store)

	now := time.Date(2026, time.April, 1, 0, 0, 0, 0, time.UTC)
	require.NoError(t, store.SaveGrant(ctx, access.Grant{
		ID: "g1", CourseID: "go-basics", UserID: "u1",
		ReadOpen: true, CreatedAt: now, UpdatedAt: now,
	}))

	grant, err := store.GetGrant(ctx, "go-basics", "u1")
	require.NoError(t, err)
	require.NotNil(t, grant)
	assert.Nil(t, grant.StartDate)
	assert.Nil(t, grant.EndDate)
	assert.True(t, grant.ReadOpen)
}

func TestStore_Grants_DuplicatePairRejected(t *testing.T) {
	// The unique index on (course_id, user_id) refuses a second grant
	// row for the same pair even under a different ID.
	store := newTestStore(t)
	ctx := context.Background()
	seedCourse(t, store)

	now := time.Date(2026, time.April, 1, 0, 0, 0, 0, time.UTC)
	require.NoError(t, store.SaveGrant(ctx, access.Grant{
		ID: "g1", CourseID: "go-basics", UserID: "u1", CreatedAt: now, UpdatedAt: now,
	}))

	err := store.SaveGrant(ctx, access.Grant{
		ID: "g2", CourseID: "go-basics", UserID: "u1", CreatedAt: now, UpdatedAt: now,
	})
	assert.Error(t, err)
}

// =============================================================================
// GROUP PERSISTENCE
// =============================================================================

func TestStore_Groups_CreationOrderPreserved(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()
	seedCourse(t, store)

	for i, name := range []string{"C", "A", "B"} {
		require.NoError(t, store.SaveGroup(ctx, enroll.Group{
			ID: commerce.GroupID(name), CourseID: "go-basics", Name: name, Number: i + 1,
		}))
	}

	groups, err := store.GroupsByCourse(ctx, "go-basics")
	require.NoError(t, err)
	require.Len(t, groups, 3)
	// Insertion order, not name order.
	assert.Equal(t, commerce.GroupID("C"), groups[0].ID)
	assert.Equal(t, commerce.GroupID("A"), groups[1].ID)
	assert.Equal(t, commerce.GroupID("B"), groups[2].ID)
}

func TestStore_Memberships_DuplicateRejected(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()
	seedCourse(t, store)
	require.NoError(t, store.SaveGroup(ctx, enroll.Group{ID: "g1", CourseID: "go-basics", Name: "A"}))

	require.NoError(t, store.AddMember(ctx, enroll.Membership{ID: "m1", UserID: "u1", GroupID: "g1"}))
	err := store.AddMember(ctx, enroll.Membership{ID: "m2", UserID: "u1", GroupID: "g1"})
	assert.Error(t, err)
}

// =============================================================================
// TRANSACTIONS
// =============================================================================

func TestStore_WithTx_RollsBackOnError(t *testing.T) {
	// GIVEN: A transaction that writes an entry then fails
	// WHEN: WithTx returns
	// THEN: The entry is gone and the original error surfaces

	store := newTestStore(t)
	ctx := context.Background()
	boom := errors.New("boom")

	err := store.WithTx(ctx, func(s purchase.Store) error {
		if err := s.AppendEntry(ctx, ledger.Entry{
			ID: "e1", UserID: "u1", Kind: ledger.KindCashPayment,
			Amount: money.FromInt(10), RecordedAt: time.Now().UTC(),
		}); err != nil {
			return err
		}
		return boom
	})
	require.ErrorIs(t, err, boom)

	entries, err := store.EntriesByUser(ctx, "u1", time.Now().UTC().Add(time.Hour))
	require.NoError(t, err)
	assert.Empty(t, entries)
}

func TestStore_WithTx_ReadsSeeOwnWrites(t *testing.T) {
	// A settlement reads balances it just wrote; the transactional view
	// must not serve stale pre-transaction data.
	store := newTestStore(t)
	ctx := context.Background()

	err := store.WithTx(ctx, func(s purchase.Store) error {
		if err := s.AppendEntry(ctx, ledger.Entry{
			ID: "e1", UserID: "u1", Kind: ledger.KindCashPayment,
			Amount: money.FromInt(10), RecordedAt: time.Now().UTC(),
		}); err != nil {
			return err
		}
		entries, err := s.EntriesByUser(ctx, "u1", time.Now().UTC().Add(time.Hour))
		if err != nil {
			return err
		}
		require.Len(t, entries, 1)
		return nil
	})
	require.NoError(t, err)
}

func TestStore_WithTx_CommitsOnSuccess(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	err := store.WithTx(ctx, func(s purchase.Store) error {
		return s.AppendEntry(ctx, ledger.Entry{
			ID: "e1", UserID: "u1", Kind: ledger.KindCashPayment,
			Amount: money.FromInt(10), RecordedAt: time.Now().UTC(),
		})
	})
	require.NoError(t, err)

	entries, err := store.EntriesByUser(ctx, "u1", time.Now().UTC().Add(time.Hour))
	require.NoError(t, err)
	assert.Len(t, entries, 1)
}
