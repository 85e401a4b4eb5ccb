/*
Package ledger is the append-only money ledger.

PURPOSE:
  Every movement of a user's balance is an immutable Entry: payments in,
  purchase write-offs out, manual adjustments. A balance is never stored;
  it is always the sum of entries up to a point in time. Bonus (promotional)
  credits are tracked on the same ledger, distinguished by a flag, so the
  usable and bonus portions of a balance can be read separately.

CRITICAL INVARIANTS:
  1. APPEND-ONLY: entries are never updated or deleted.
  2. TYPED: every entry references a Kind from the reference catalog; an
     entry with an unknown kind code is rejected.
  3. ADDITIVE: Balance(All) == Balance(BonusOnly) + Balance(CashOnly)
     for any entry history.

SEE ALSO:
  - writeoff.go: the bonus-first course purchase write-off
  - store/sqlite, store/memory: Store implementations
*/
package ledger

import (
	"context"
	"time"

	"github.com/google/uuid"
	commerce "github.com/warp/course-commerce"
	"github.com/warp/course-commerce/money"
)

// =============================================================================
// KINDS - Reference catalog of transaction categories
// =============================================================================

// KindCode is the stable numeric code a Kind is looked up by. Codes are
// fixed across environments; external systems reference them directly.
type KindCode int

// Flow is the direction a kind of entry moves money.
type Flow string

const (
	FlowCredit Flow = "+"
	FlowDebit  Flow = "-"
)

// Kind is a catalog row describing a category of ledger entry.
// Immutable reference data, seeded at startup.
type Kind struct {
	Code        KindCode
	Name        string
	Flow        Flow
	Bonus       bool
	Description string
}

// Well-known kind codes. The numbering is load-bearing: payment
// processors send these codes on payment events.
const (
	KindNonCashPayment KindCode = 0
	KindCashPayment    KindCode = 1
	KindOtherPayment   KindCode = 2
	KindCourseWriteOff KindCode = 3
)

// DefaultKinds returns the catalog rows every deployment needs.
func DefaultKinds() []Kind {
	return []Kind{
		{Code: KindNonCashPayment, Name: "Non-cash payment", Flow: FlowCredit},
		{Code: KindCashPayment, Name: "Cash payment", Flow: FlowCredit},
		{Code: KindOtherPayment, Name: "Other payment", Flow: FlowCredit},
		{Code: KindCourseWriteOff, Name: "Course purchase write-off", Flow: FlowDebit},
	}
}

// =============================================================================
// ENTRIES
// =============================================================================

type EntryID string

// Entry is one immutable ledger row. Amount is signed: positive entries
// credit the balance, negative entries debit it.
type Entry struct {
	ID                EntryID
	UserID            commerce.UserID
	Kind              KindCode
	Amount            money.Money
	Description       string
	Bonus             bool
	ExternalPaymentID string
	RecordedAt        time.Time
}

// Category selects which slice of a user's ledger a balance covers.
type Category int

const (
	CategoryAll Category = iota
	CategoryBonusOnly
	CategoryCashOnly
)

// Matches reports whether an entry belongs to the category.
func (c Category) Matches(e Entry) bool {
	switch c {
	case CategoryBonusOnly:
		return e.Bonus
	case CategoryCashOnly:
		return !e.Bonus
	default:
		return true
	}
}

// =============================================================================
// STORE - Persistence interface
// =============================================================================

// Store persists ledger entries and the kind catalog.
// Entries are APPEND-ONLY: no update, no delete.
type Store interface {
	// AppendEntry persists an entry. The only write on entries.
	AppendEntry(ctx context.Context, e Entry) error

	// EntriesByUser returns a user's entries with RecordedAt <= asOf,
	// ordered chronologically.
	EntriesByUser(ctx context.Context, userID commerce.UserID, asOf time.Time) ([]Entry, error)

	// KindByCode returns the kind with the given code, or nil when the
	// catalog has no such row.
	KindByCode(ctx context.Context, code KindCode) (*Kind, error)

	// SaveKind inserts or updates a catalog row. Used for seeding.
	SaveKind(ctx context.Context, k Kind) error
}

// =============================================================================
// LEDGER - Service over a Store
// =============================================================================

// Ledger records entries and computes balances. It is a thin, stateless
// wrapper; construct one over whatever Store view is at hand, including
// a transactional view inside store.WithTx.
type Ledger struct {
	store Store
}

func New(store Store) *Ledger {
	return &Ledger{store: store}
}

// Record validates and appends an entry. ID and RecordedAt are filled in
// when blank. The entry's kind must exist in the catalog.
func (l *Ledger) Record(ctx context.Context, e Entry) (Entry, error) {
	kind, err := l.store.KindByCode(ctx, e.Kind)
	if err != nil {
		return Entry{}, err
	}
	if kind == nil {
		return Entry{}, &KindNotConfiguredError{Code: e.Kind}
	}

	if e.ID == "" {
		e.ID = EntryID(uuid.NewString())
	}
	if e.RecordedAt.IsZero() {
		e.RecordedAt = time.Now().UTC()
	}

	if err := l.store.AppendEntry(ctx, e); err != nil {
		return Entry{}, err
	}
	return e, nil
}

// Balance sums the user's entries in the category as of the given time.
// A user with no entries has a zero balance.
func (l *Ledger) Balance(ctx context.Context, userID commerce.UserID, category Category, asOf time.Time) (money.Money, error) {
	entries, err := l.store.EntriesByUser(ctx, userID, asOf)
	if err != nil {
		return money.Money{}, err
	}

	balance := money.Zero()
	for _, e := range entries {
		if category.Matches(e) {
			balance = balance.Add(e.Amount)
		}
	}
	return balance, nil
}
