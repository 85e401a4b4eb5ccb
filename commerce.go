// Package commerce defines the identifiers shared across the course
// commerce engine. Domain packages (ledger, catalog, access, enroll,
// purchase) own their own types; the IDs that cross package boundaries
// live here so they stay strongly typed without import cycles.
package commerce

// UserID identifies a buyer. User identity itself is managed by an
// external system; the engine only ever treats it as an opaque key.
type UserID string

// CourseID identifies a course.
type CourseID string

// TierID identifies a price tier (retail, wholesale, ...).
type TierID string

// GroupID identifies a study group within a course.
type GroupID string
