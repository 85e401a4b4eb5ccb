/*
Package enroll assigns buyers to study groups.

Every course runs zero or more groups. When a purchase completes, the
buyer joins the group with the fewest members at that moment; on ties the
first group in enumeration order wins, which keeps assignment
deterministic. A course with no groups configured fails the assignment —
and, by the orchestrator's choice, the whole purchase — rather than
silently enrolling the buyer nowhere.

Assignment runs inside the settlement transaction, so two concurrent
purchases cannot both observe the same minimum and pile onto one group.
*/
package enroll

import (
	"context"

	"github.com/google/uuid"
	commerce "github.com/warp/course-commerce"
)

// Group is a study group within a course. Created by course
// administration, not by the purchase flow.
type Group struct {
	ID       commerce.GroupID
	CourseID commerce.CourseID
	Name     string
	Number   int
}

// Membership places a user in a group.
type Membership struct {
	ID      string
	UserID  commerce.UserID
	GroupID commerce.GroupID
}

// GroupLoad pairs a group with its current member count.
type GroupLoad struct {
	Group   Group
	Members int
}

// Store persists groups and memberships.
type Store interface {
	SaveGroup(ctx context.Context, g Group) error

	// GroupsByCourse returns a course's groups in stable enumeration
	// order (creation order).
	GroupsByCourse(ctx context.Context, courseID commerce.CourseID) ([]Group, error)

	// CountMembers returns the current membership count of a group.
	CountMembers(ctx context.Context, groupID commerce.GroupID) (int, error)

	// AddMember persists a membership.
	AddMember(ctx context.Context, m Membership) error
}

// AssignLeastLoaded enrolls the user into the least-populated group of
// the course and returns the chosen group. Linear scan with a running
// minimum; the first group at the minimum wins ties.
func AssignLeastLoaded(ctx context.Context, s Store, courseID commerce.CourseID, userID commerce.UserID) (Group, error) {
	groups, err := s.GroupsByCourse(ctx, courseID)
	if err != nil {
		return Group{}, err
	}
	if len(groups) == 0 {
		return Group{}, &NoGroupsError{CourseID: courseID}
	}

	var (
		chosen   Group
		minCount = -1
	)
	for _, g := range groups {
		count, err := s.CountMembers(ctx, g.ID)
		if err != nil {
			return Group{}, err
		}
		if minCount < 0 || count < minCount {
			chosen = g
			minCount = count
		}
	}

	err = s.AddMember(ctx, Membership{
		ID:      uuid.NewString(),
		UserID:  userID,
		GroupID: chosen.ID,
	})
	if err != nil {
		return Group{}, err
	}
	return chosen, nil
}

// Loads returns the member count of every group in a course. Diagnostics
// for the admin surface.
func Loads(ctx context.Context, s Store, courseID commerce.CourseID) ([]GroupLoad, error) {
	groups, err := s.GroupsByCourse(ctx, courseID)
	if err != nil {
		return nil, err
	}

	loads := make([]GroupLoad, 0, len(groups))
	for _, g := range groups {
		count, err := s.CountMembers(ctx, g.ID)
		if err != nil {
			return nil, err
		}
		loads = append(loads, GroupLoad{Group: g, Members: count})
	}
	return loads, nil
}
