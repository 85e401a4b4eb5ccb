/*
writeoff.go - Bonus-first write-off for a course purchase

The charge for a course is settled in up to two debit entries:

 1. If the buyer holds a positive bonus balance (and bonusFirst is set),
    the entire bonus balance is written off first as a bonus-tagged debit,
    and the remaining charge shrinks by that amount.
 2. The remainder is written off as a single non-bonus debit.

Both entries use the course write-off kind. Callers run this inside the
purchase transaction so the balance read and the debits are atomic.
*/
package ledger

import (
	"context"
	"fmt"
	"time"

	commerce "github.com/warp/course-commerce"
	"github.com/warp/course-commerce/money"
)

// WriteOffForCourse debits amount from the user's ledger for the named
// course and returns the emitted entries in order. The bonus portion, if
// any, always comes first.
func (l *Ledger) WriteOffForCourse(ctx context.Context, userID commerce.UserID, amount money.Money, courseTitle string, bonusFirst bool, asOf time.Time) ([]Entry, error) {
	var debits []Entry

	remaining := amount
	if bonusFirst {
		bonus, err := l.Balance(ctx, userID, CategoryBonusOnly, asOf)
		if err != nil {
			return nil, err
		}
		if bonus.IsPositive() {
			entry, err := l.Record(ctx, Entry{
				UserID:      userID,
				Kind:        KindCourseWriteOff,
				Amount:      bonus.Neg(),
				Description: fmt.Sprintf("Bonus payment for course %q from %s", courseTitle, userID),
				Bonus:       true,
				RecordedAt:  asOf,
			})
			if err != nil {
				return nil, err
			}
			debits = append(debits, entry)
			remaining = remaining.Sub(bonus)
		}
	}

	entry, err := l.Record(ctx, Entry{
		UserID:      userID,
		Kind:        KindCourseWriteOff,
		Amount:      remaining.Neg(),
		Description: fmt.Sprintf("Payment for course %q from %s", courseTitle, userID),
		Bonus:       false,
		RecordedAt:  asOf,
	})
	if err != nil {
		return nil, err
	}
	debits = append(debits, entry)

	return debits, nil
}
