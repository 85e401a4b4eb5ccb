/*
Package purchase is the settlement orchestrator — the one place where
money, pricing, access, audit, and enrollment meet.

SETTLEMENT FLOW (one purchase):

  Received
    -> PaymentRecorded   incoming payment credited to the ledger (pre-tx)
    -> PriceResolved     effective price for (course, tier) as of now
    -> FundsVerified     payment amount covers the price
    -> AccessGranted     grant created or reopened for (course, user)
    -> LedgerSettled     bonus-first write-off, one audit Reason per debit
    -> GroupAssigned     buyer joins the least-loaded course group
    -> Completed

Everything from PriceResolved through GroupAssigned runs in a single
storage transaction: a failure anywhere rolls all of it back. The
PaymentRecorded credit is deliberately outside the transaction — the
payment has already happened in the outside world, so the credit stays on
the ledger even when the purchase fails, and reconciliation of failed
purchases is an explicit back-office task rather than silent data loss.

KNOWN QUIRK (kept from the system this replaces): funds verification
compares the incoming payment amount against the price. The buyer's
pre-existing balance is read but not consulted in the comparison. See
DESIGN.md before "fixing" this — it changes approval behavior.
*/
package purchase

import (
	"context"
	"errors"
	"fmt"
	"time"

	commerce "github.com/warp/course-commerce"
	"github.com/warp/course-commerce/access"
	"github.com/warp/course-commerce/catalog"
	"github.com/warp/course-commerce/enroll"
	"github.com/warp/course-commerce/ledger"
	"github.com/warp/course-commerce/money"
)

// =============================================================================
// STORE - Combined persistence surface for settlement
// =============================================================================

// Store is the union of every store the settlement flow touches. A single
// implementation backs all of them so one transaction can span them.
type Store interface {
	ledger.Store
	catalog.Store
	access.Store
	enroll.Store
}

// TxStore adds atomic execution. WithTx runs fn against a transactional
// view of the store: if fn returns an error, nothing fn wrote survives.
type TxStore interface {
	Store

	WithTx(ctx context.Context, fn func(Store) error) error
}

// =============================================================================
// PAYMENT TYPES AND KIND MAPPING
// =============================================================================

// PaymentType is the payment method code delivered on a payment event.
type PaymentType string

const (
	PaymentCash    PaymentType = "CA"
	PaymentNonCash PaymentType = "NC"
	PaymentOther   PaymentType = "OT"
)

// KindMap maps payment types to ledger kind codes. It is configuration
// handed to the orchestrator, not a runtime lookup against mutable data.
type KindMap struct {
	Cash    ledger.KindCode
	NonCash ledger.KindCode
	Other   ledger.KindCode
}

func DefaultKindMap() KindMap {
	return KindMap{
		Cash:    ledger.KindCashPayment,
		NonCash: ledger.KindNonCashPayment,
		Other:   ledger.KindOtherPayment,
	}
}

// ForPaymentType resolves the kind code for a payment type. Unknown
// types fall through to the generic "other" kind.
func (m KindMap) ForPaymentType(t PaymentType) ledger.KindCode {
	switch t {
	case PaymentCash:
		return m.Cash
	case PaymentNonCash:
		return m.NonCash
	default:
		return m.Other
	}
}

// =============================================================================
// REQUEST / RESULT
// =============================================================================

// Request is the validated purchase tuple handed in by the API layer.
type Request struct {
	UserID             commerce.UserID
	CourseID           commerce.CourseID
	TierID             commerce.TierID
	Amount             money.Money
	ExternalPaymentID  string
	PaymentType        PaymentType
	PaymentDescription string
	Bonus              bool
}

// Settlement is the result of a completed purchase.
type Settlement struct {
	Message string
	Grant   access.Grant
	Debits  []ledger.Entry
	Reasons []access.Reason
	Group   enroll.Group
}

// =============================================================================
// ORCHESTRATOR
// =============================================================================

// Orchestrator runs the settlement flow.
type Orchestrator struct {
	store TxStore
	kinds KindMap

	// Now is the clock; overridable in tests.
	Now func() time.Time
}

func New(store TxStore, kinds KindMap) *Orchestrator {
	return &Orchestrator{
		store: store,
		kinds: kinds,
		Now:   func() time.Time { return time.Now().UTC() },
	}
}

// Purchase settles a course purchase. On failure after the payment was
// recorded, the payment credit remains on the ledger; everything else is
// rolled back.
func (o *Orchestrator) Purchase(ctx context.Context, req Request) (*Settlement, error) {
	now := o.Now()

	// Step 1: record the incoming payment. Outside the transaction, and
	// unguarded: a failure here (unconfigured kind) is fatal to the
	// request, not a domain failure.
	_, err := ledger.New(o.store).Record(ctx, ledger.Entry{
		UserID:            req.UserID,
		Kind:              o.kinds.ForPaymentType(req.PaymentType),
		Amount:            req.Amount,
		Description:       req.PaymentDescription,
		Bonus:             req.Bonus,
		ExternalPaymentID: req.ExternalPaymentID,
		RecordedAt:        now,
	})
	if err != nil {
		return nil, err
	}

	var result Settlement
	err = o.store.WithTx(ctx, func(s Store) error {
		return o.settle(ctx, s, req, now, &result)
	})
	if err != nil {
		if isDomainFailure(err) {
			return nil, err
		}
		return nil, &SettlementError{Cause: err}
	}

	return &result, nil
}

// settle runs steps 2-6 against the transactional store view.
func (o *Orchestrator) settle(ctx context.Context, s Store, req Request, now time.Time, result *Settlement) error {
	course, err := s.GetCourse(ctx, req.CourseID)
	if err != nil {
		return err
	}
	if course == nil {
		return fmt.Errorf("%w: %s", catalog.ErrCourseNotFound, req.CourseID)
	}

	led := ledger.New(s)

	price, err := catalog.EffectivePrice(ctx, s, req.CourseID, req.TierID, now)
	if err != nil {
		return err
	}

	balance, err := led.Balance(ctx, req.UserID, ledger.CategoryAll, now)
	if err != nil {
		return err
	}

	// The comparison is payment amount vs price, not balance vs price.
	// Kept as-is; the balance still goes into the error for diagnostics.
	if req.Amount.LessThan(price) {
		return &InsufficientFundsError{
			UserID:    req.UserID,
			CourseID:  req.CourseID,
			Price:     price,
			Paid:      req.Amount,
			Balance:   balance,
			Shortfall: price.Sub(req.Amount),
		}
	}

	// No date-limited access in this version: dates stay nil.
	grant, err := access.Upsert(ctx, s, req.CourseID, req.UserID, true, nil, nil)
	if err != nil {
		return err
	}

	debits, err := led.WriteOffForCourse(ctx, req.UserID, req.Amount, course.Title, true, now)
	if err != nil {
		return err
	}

	reasons := make([]access.Reason, 0, len(debits))
	for _, d := range debits {
		r := access.Reason{
			ID:      access.ReasonID(fmt.Sprintf("%s-reason", d.ID)),
			EntryID: d.ID,
			Name:    d.Description,
			GrantID: grant.ID,
		}
		if err := s.AppendReason(ctx, r); err != nil {
			return err
		}
		reasons = append(reasons, r)
	}

	group, err := enroll.AssignLeastLoaded(ctx, s, req.CourseID, req.UserID)
	if err != nil {
		return err
	}

	*result = Settlement{
		Message: fmt.Sprintf("You have been granted access to course %q", course.Title),
		Grant:   grant,
		Debits:  debits,
		Reasons: reasons,
		Group:   group,
	}
	return nil
}

// PurchasableCourses returns the gated courses the user does not
// currently hold open, non-expired read access to. A grant with a past
// EndDate has lapsed, so its course shows up again.
func (o *Orchestrator) PurchasableCourses(ctx context.Context, userID commerce.UserID) ([]catalog.CourseSummary, error) {
	asOf := o.Now()

	grants, err := o.store.GrantsByUser(ctx, userID)
	if err != nil {
		return nil, err
	}
	owned := make(map[commerce.CourseID]bool)
	for _, g := range grants {
		if g.OpenAt(asOf) {
			owned[g.CourseID] = true
		}
	}

	courses, err := o.store.ListCourses(ctx)
	if err != nil {
		return nil, err
	}

	summaries := make([]catalog.CourseSummary, 0, len(courses))
	for _, c := range courses {
		if !c.Gated || owned[c.ID] {
			continue
		}
		summary, err := catalog.Summarize(ctx, o.store, c)
		if err != nil {
			return nil, err
		}
		summaries = append(summaries, summary)
	}
	return summaries, nil
}

// isDomainFailure reports whether err is one of the typed settlement
// failures, as opposed to an unexpected fault.
func isDomainFailure(err error) bool {
	return errors.Is(err, ErrInsufficientFunds) ||
		errors.Is(err, catalog.ErrPriceNotFound) ||
		errors.Is(err, catalog.ErrPriceNotEffectiveYet) ||
		errors.Is(err, catalog.ErrCourseNotFound) ||
		errors.Is(err, enroll.ErrNoGroupsConfigured) ||
		errors.Is(err, ledger.ErrKindNotConfigured)
}
