/*
Package catalog holds the course catalog: courses, their lessons, price
tiers, and the dated price list.

PRICING MODEL:
  A course has a price history per tier. Each PriceEntry carries an
  EffectiveFrom date; the effective price at any instant is the entry with
  the latest EffectiveFrom that is not in the future. Price changes are
  therefore scheduled by appending new entries, never by editing old ones.

Courses and lessons themselves are administered externally; the engine
reads them and only the purchase flow depends on their semantics (the
Gated flag and the lesson count shown on the storefront).
*/
package catalog

import (
	"context"
	"time"

	commerce "github.com/warp/course-commerce"
	"github.com/warp/course-commerce/money"
)

// Course is a sellable product.
type Course struct {
	ID        commerce.CourseID
	AuthorID  commerce.UserID
	Title     string
	StartDate time.Time
	Gated     bool // must be purchased before lessons open
	CreatedAt time.Time
}

// Lesson is a single unit of course content.
type Lesson struct {
	ID       string
	CourseID commerce.CourseID
	Title    string
	Link     string
}

// PriceTier is a named pricing category (retail, wholesale, special).
// Immutable reference data.
type PriceTier struct {
	ID          commerce.TierID
	Name        string
	Description string
}

// PriceEntry is one row of a course's price history for a tier.
type PriceEntry struct {
	ID            string
	CourseID      commerce.CourseID
	TierID        commerce.TierID
	EffectiveFrom time.Time
	Price         money.Money
}

// CourseSummary is the storefront view of a course.
type CourseSummary struct {
	Name        string
	StartDate   time.Time
	LessonCount int
}

// Store persists the catalog.
type Store interface {
	SaveCourse(ctx context.Context, c Course) error
	GetCourse(ctx context.Context, id commerce.CourseID) (*Course, error)
	ListCourses(ctx context.Context) ([]Course, error)

	SaveLesson(ctx context.Context, l Lesson) error
	LessonsByCourse(ctx context.Context, courseID commerce.CourseID) ([]Lesson, error)
	CountLessons(ctx context.Context, courseID commerce.CourseID) (int, error)

	SaveTier(ctx context.Context, t PriceTier) error
	GetTier(ctx context.Context, id commerce.TierID) (*PriceTier, error)
	ListTiers(ctx context.Context) ([]PriceTier, error)

	SavePrice(ctx context.Context, p PriceEntry) error
	// PricesFor returns the full price history for (course, tier),
	// ordered by EffectiveFrom ascending.
	PricesFor(ctx context.Context, courseID commerce.CourseID, tierID commerce.TierID) ([]PriceEntry, error)
}

// EffectivePrice resolves the price of a course under a tier as of the
// given time: among entries with EffectiveFrom <= asOf, the latest wins.
//
// An empty history fails with ErrPriceNotFound; a history whose entries
// are all still in the future fails with ErrPriceNotEffectiveYet. The two
// are distinct on purpose: the first is a catalog gap, the second a
// scheduling question.
func EffectivePrice(ctx context.Context, s Store, courseID commerce.CourseID, tierID commerce.TierID, asOf time.Time) (money.Money, error) {
	prices, err := s.PricesFor(ctx, courseID, tierID)
	if err != nil {
		return money.Money{}, err
	}
	if len(prices) == 0 {
		return money.Money{}, &PriceLookupError{CourseID: courseID, TierID: tierID, AsOf: asOf, missing: true}
	}

	var (
		found   bool
		current PriceEntry
	)
	for _, p := range prices {
		if p.EffectiveFrom.After(asOf) {
			continue
		}
		if !found || p.EffectiveFrom.After(current.EffectiveFrom) {
			current = p
			found = true
		}
	}
	if !found {
		return money.Money{}, &PriceLookupError{CourseID: courseID, TierID: tierID, AsOf: asOf}
	}
	return current.Price, nil
}

// Summarize builds the storefront summary for a course.
func Summarize(ctx context.Context, s Store, c Course) (CourseSummary, error) {
	count, err := s.CountLessons(ctx, c.ID)
	if err != nil {
		return CourseSummary{}, err
	}
	return CourseSummary{Name: c.Title, StartDate: c.StartDate, LessonCount: count}, nil
}
