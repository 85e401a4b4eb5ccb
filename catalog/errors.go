package catalog

import (
	"errors"
	"fmt"
	"time"

	commerce "github.com/warp/course-commerce"
)

var (
	// ErrPriceNotFound means no price history exists for (course, tier).
	ErrPriceNotFound = errors.New("price not found")

	// ErrPriceNotEffectiveYet means a history exists but every entry's
	// EffectiveFrom is after the query time.
	ErrPriceNotEffectiveYet = errors.New("price not effective yet")

	// ErrCourseNotFound is returned when a referenced course doesn't exist.
	ErrCourseNotFound = errors.New("course not found")
)

// PriceLookupError reports a failed price resolution with its inputs.
type PriceLookupError struct {
	CourseID commerce.CourseID
	TierID   commerce.TierID
	AsOf     time.Time

	missing bool // true: no rows at all; false: rows exist, none effective
}

func (e *PriceLookupError) Error() string {
	if e.missing {
		return fmt.Sprintf("no price configured for course %q under tier %q", e.CourseID, e.TierID)
	}
	return fmt.Sprintf("price for course %q under tier %q is not effective as of %s", e.CourseID, e.TierID, e.AsOf.Format(time.RFC3339))
}

func (e *PriceLookupError) Unwrap() error {
	if e.missing {
		return ErrPriceNotFound
	}
	return ErrPriceNotEffectiveYet
}
