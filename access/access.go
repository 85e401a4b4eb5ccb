/*
Package access tracks who may view which course, and why.

A Grant is the single record of a (course, user) pair's access: created on
first purchase, reopened or extended on repeat purchase. At most one grant
exists per pair — Upsert looks up before it creates, and the storage layer
backs that with a uniqueness constraint so concurrent purchases by the
same user cannot slip a duplicate through.

A Reason is the audit link between money and access: one per ledger debit
a purchase produced, pointing at both the debit entry and the grant it
paid for. Reasons are append-only.
*/
package access

import (
	"context"
	"time"

	"github.com/google/uuid"
	commerce "github.com/warp/course-commerce"
	"github.com/warp/course-commerce/ledger"
)

type GrantID string
type ReasonID string

// Grant authorizes a user to access a course, optionally time-bounded.
type Grant struct {
	ID        GrantID
	CourseID  commerce.CourseID
	UserID    commerce.UserID
	ReadOpen  bool
	WriteOpen bool
	StartDate *time.Time
	EndDate   *time.Time
	CreatedAt time.Time
	UpdatedAt time.Time
}

// OpenAt reports whether the grant gives read access at the given time.
// A nil EndDate never expires.
func (g Grant) OpenAt(asOf time.Time) bool {
	if !g.ReadOpen {
		return false
	}
	return g.EndDate == nil || g.EndDate.After(asOf)
}

// Reason ties one ledger debit to the grant it paid for.
type Reason struct {
	ID          ReasonID
	EntryID     ledger.EntryID
	Name        string
	Description string
	GrantID     GrantID
}

// Store persists grants and reasons.
type Store interface {
	// GetGrant returns the grant for (course, user), or nil.
	GetGrant(ctx context.Context, courseID commerce.CourseID, userID commerce.UserID) (*Grant, error)

	// SaveGrant inserts or updates a grant by ID.
	SaveGrant(ctx context.Context, g Grant) error

	// GrantsByUser returns all grants held by a user.
	GrantsByUser(ctx context.Context, userID commerce.UserID) ([]Grant, error)

	// AppendReason persists an audit reason. Append-only.
	AppendReason(ctx context.Context, r Reason) error

	// ReasonsByGrant returns the audit trail of a grant.
	ReasonsByGrant(ctx context.Context, grantID GrantID) ([]Reason, error)
}

// Upsert opens (or re-opens) read access for (course, user). An existing
// grant is mutated in place; otherwise one is created. Callers in the
// purchase flow invoke this inside the settlement transaction so the
// lookup and the write are one atomic step.
func Upsert(ctx context.Context, s Store, courseID commerce.CourseID, userID commerce.UserID, readOpen bool, start, end *time.Time) (Grant, error) {
	now := time.Now().UTC()

	existing, err := s.GetGrant(ctx, courseID, userID)
	if err != nil {
		return Grant{}, err
	}

	if existing != nil {
		existing.ReadOpen = readOpen
		existing.StartDate = start
		existing.EndDate = end
		existing.UpdatedAt = now
		if err := s.SaveGrant(ctx, *existing); err != nil {
			return Grant{}, err
		}
		return *existing, nil
	}

	grant := Grant{
		ID:        GrantID(uuid.NewString()),
		CourseID:  courseID,
		UserID:    userID,
		ReadOpen:  readOpen,
		StartDate: start,
		EndDate:   end,
		CreatedAt: now,
		UpdatedAt: now,
	}
	if err := s.SaveGrant(ctx, grant); err != nil {
		return Grant{}, err
	}
	return grant, nil
}
