package enroll_test

import (
	"context"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	commerce "github.com/warp/course-commerce"
	"github.com/warp/course-commerce/enroll"
	"github.com/warp/course-commerce/store/memory"
)

// =============================================================================
// TEST SETUP
// =============================================================================

func seedGroups(t *testing.T, s *memory.Memory, names ...string) []enroll.Group {
	t.Helper()
	ctx := context.Background()
	groups := make([]enroll.Group, len(names))
	for i, name := range names {
		g := enroll.Group{
			ID:       commerce.GroupID(name),
			CourseID: "go-basics",
			Name:     name,
			Number:   i + 1,
		}
		require.NoError(t, s.SaveGroup(ctx, g))
		groups[i] = g
	}
	return groups
}

func fill(t *testing.T, s *memory.Memory, groupID commerce.GroupID, n int) {
	t.Helper()
	for i := 0; i < n; i++ {
		require.NoError(t, s.AddMember(context.Background(), enroll.Membership{
			ID:      fmt.Sprintf("%s-m%d", groupID, i),
			UserID:  commerce.UserID(fmt.Sprintf("filler-%s-%d", groupID, i)),
			GroupID: groupID,
		}))
	}
}

// =============================================================================
// ASSIGNMENT
// =============================================================================

func TestAssignLeastLoaded_PicksEmptiestGroup(t *testing.T) {
	// GIVEN: Groups A (2 members), B (0), C (3)
	// WHEN: Assigning a new user
	// THEN: The user lands in B

	s := memory.New()
	seedGroups(t, s, "A", "B", "C")
	fill(t, s, "A", 2)
	fill(t, s, "C", 3)

	group, err := enroll.AssignLeastLoaded(context.Background(), s, "go-basics", "u1")
	require.NoError(t, err)
	assert.Equal(t, commerce.GroupID("B"), group.ID)

	count, err := s.CountMembers(context.Background(), "B")
	require.NoError(t, err)
	assert.Equal(t, 1, count)
}

func TestAssignLeastLoaded_TieBreaksToFirstGroup(t *testing.T) {
	// GIVEN: Groups A (2), B (2), C (3) — A and B tied at the minimum
	// WHEN: Assigning a new user
	// THEN: The first group in creation order (A) wins the tie

	s := memory.New()
	seedGroups(t, s, "A", "B", "C")
	fill(t, s, "A", 2)
	fill(t, s, "B", 2)
	fill(t, s, "C", 3)

	group, err := enroll.AssignLeastLoaded(context.Background(), s, "go-basics", "u1")
	require.NoError(t, err)
	assert.Equal(t, commerce.GroupID("A"), group.ID)
}

func TestAssignLeastLoaded_SpreadsSequentialUsers(t *testing.T) {
	// Three empty groups, three users: each group ends up with one.
	s := memory.New()
	seedGroups(t, s, "A", "B", "C")
	ctx := context.Background()

	got := make(map[commerce.GroupID]int)
	for _, u := range []string{"u1", "u2", "u3"} {
		g, err := enroll.AssignLeastLoaded(ctx, s, "go-basics", commerce.UserID(u))
		require.NoError(t, err)
		got[g.ID]++
	}
	assert.Equal(t, map[commerce.GroupID]int{"A": 1, "B": 1, "C": 1}, got)
}

func TestAssignLeastLoaded_NoGroups_TypedError(t *testing.T) {
	s := memory.New()

	_, err := enroll.AssignLeastLoaded(context.Background(), s, "go-basics", "u1")
	require.Error(t, err)
	assert.ErrorIs(t, err, enroll.ErrNoGroupsConfigured)

	var noGroups *enroll.NoGroupsError
	require.ErrorAs(t, err, &noGroups)
	assert.Equal(t, commerce.CourseID("go-basics"), noGroups.CourseID)
}

// =============================================================================
// LOADS
// =============================================================================

func TestLoads_ReportsMemberCounts(t *testing.T) {
	s := memory.New()
	seedGroups(t, s, "A", "B")
	fill(t, s, "A", 2)

	loads, err := enroll.Loads(context.Background(), s, "go-basics")
	require.NoError(t, err)
	require.Len(t, loads, 2)
	assert.Equal(t, commerce.GroupID("A"), loads[0].Group.ID)
	assert.Equal(t, 2, loads[0].Members)
	assert.Equal(t, commerce.GroupID("B"), loads[1].Group.ID)
	assert.Equal(t, 0, loads[1].Members)
}
