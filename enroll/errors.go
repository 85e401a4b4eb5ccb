package enroll

import (
	"errors"
	"fmt"

	commerce "github.com/warp/course-commerce"
)

// ErrNoGroupsConfigured means a course has zero groups, so nobody can be
// enrolled into it.
var ErrNoGroupsConfigured = errors.New("no groups configured for course")

// NoGroupsError carries the course the assignment failed for.
type NoGroupsError struct {
	CourseID commerce.CourseID
}

func (e *NoGroupsError) Error() string {
	return fmt.Sprintf("course %q has no groups configured", e.CourseID)
}

func (e *NoGroupsError) Unwrap() error { return ErrNoGroupsConfigured }
