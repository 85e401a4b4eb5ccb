package purchase

import (
	"errors"
	"fmt"

	commerce "github.com/warp/course-commerce"
	"github.com/warp/course-commerce/money"
)

var (
	// ErrInsufficientFunds is returned when the payment doesn't cover
	// the course price.
	ErrInsufficientFunds = errors.New("insufficient funds")

	// ErrSettlementFailed wraps unexpected faults inside the settlement
	// transaction. Everything was rolled back except the payment credit.
	ErrSettlementFailed = errors.New("settlement failed")
)

// InsufficientFundsError names the shortfall context.
type InsufficientFundsError struct {
	UserID    commerce.UserID
	CourseID  commerce.CourseID
	Price     money.Money
	Paid      money.Money
	Balance   money.Money
	Shortfall money.Money
}

func (e *InsufficientFundsError) Error() string {
	return fmt.Sprintf("insufficient funds for course %q: price %s, paid %s, short %s (current balance %s)",
		e.CourseID, e.Price, e.Paid, e.Shortfall, e.Balance)
}

func (e *InsufficientFundsError) Unwrap() error { return ErrInsufficientFunds }

// SettlementError is the opaque failure variant for faults with no
// domain meaning. Callers get a message, not a structured code.
type SettlementError struct {
	Cause error
}

func (e *SettlementError) Error() string {
	return fmt.Sprintf("settlement failed: %v", e.Cause)
}

func (e *SettlementError) Unwrap() error { return ErrSettlementFailed }
