// Package memory provides an in-memory purchase.TxStore for tests and
// local development. WithTx is simulated with snapshot + rollback.
package memory

import (
	"context"
	"sort"
	"sync"
	"time"

	commerce "github.com/warp/course-commerce"
	"github.com/warp/course-commerce/access"
	"github.com/warp/course-commerce/catalog"
	"github.com/warp/course-commerce/enroll"
	"github.com/warp/course-commerce/ledger"
	"github.com/warp/course-commerce/purchase"
)

type priceKey struct {
	CourseID commerce.CourseID
	TierID   commerce.TierID
}

type grantKey struct {
	CourseID commerce.CourseID
	UserID   commerce.UserID
}

// state holds all data. Methods on *state implement purchase.Store
// without locking; Memory adds the lock, WithTx holds it for the whole
// transaction.
type state struct {
	kinds       map[ledger.KindCode]ledger.Kind
	entries     map[commerce.UserID][]ledger.Entry
	courses     map[commerce.CourseID]catalog.Course
	courseOrder []commerce.CourseID
	lessons     map[commerce.CourseID][]catalog.Lesson
	tiers       map[commerce.TierID]catalog.PriceTier
	tierOrder   []commerce.TierID
	prices      map[priceKey][]catalog.PriceEntry
	grants      map[grantKey]access.Grant
	reasons     map[access.GrantID][]access.Reason
	groups      map[commerce.CourseID][]enroll.Group
	members     map[commerce.GroupID][]enroll.Membership
}

func newState() *state {
	return &state{
		kinds:   make(map[ledger.KindCode]ledger.Kind),
		entries: make(map[commerce.UserID][]ledger.Entry),
		courses: make(map[commerce.CourseID]catalog.Course),
		lessons: make(map[commerce.CourseID][]catalog.Lesson),
		tiers:   make(map[commerce.TierID]catalog.PriceTier),
		prices:  make(map[priceKey][]catalog.PriceEntry),
		grants:  make(map[grantKey]access.Grant),
		reasons: make(map[access.GrantID][]access.Reason),
		groups:  make(map[commerce.CourseID][]enroll.Group),
		members: make(map[commerce.GroupID][]enroll.Membership),
	}
}

func (s *state) clone() *state {
	c := newState()
	for k, v := range s.kinds {
		c.kinds[k] = v
	}
	for k, v := range s.entries {
		c.entries[k] = append([]ledger.Entry(nil), v...)
	}
	for k, v := range s.courses {
		c.courses[k] = v
	}
	c.courseOrder = append([]commerce.CourseID(nil), s.courseOrder...)
	for k, v := range s.lessons {
		c.lessons[k] = append([]catalog.Lesson(nil), v...)
	}
	for k, v := range s.tiers {
		c.tiers[k] = v
	}
	c.tierOrder = append([]commerce.TierID(nil), s.tierOrder...)
	for k, v := range s.prices {
		c.prices[k] = append([]catalog.PriceEntry(nil), v...)
	}
	for k, v := range s.grants {
		c.grants[k] = v
	}
	for k, v := range s.reasons {
		c.reasons[k] = append([]access.Reason(nil), v...)
	}
	for k, v := range s.groups {
		c.groups[k] = append([]enroll.Group(nil), v...)
	}
	for k, v := range s.members {
		c.members[k] = append([]enroll.Membership(nil), v...)
	}
	return c
}

// =============================================================================
// LEDGER
// =============================================================================

func (s *state) AppendEntry(_ context.Context, e ledger.Entry) error {
	s.entries[e.UserID] = append(s.entries[e.UserID], e)
	return nil
}

func (s *state) EntriesByUser(_ context.Context, userID commerce.UserID, asOf time.Time) ([]ledger.Entry, error) {
	var out []ledger.Entry
	for _, e := range s.entries[userID] {
		if !e.RecordedAt.After(asOf) {
			out = append(out, e)
		}
	}
	return out, nil
}

func (s *state) KindByCode(_ context.Context, code ledger.KindCode) (*ledger.Kind, error) {
	k, ok := s.kinds[code]
	if !ok {
		return nil, nil
	}
	return &k, nil
}

func (s *state) SaveKind(_ context.Context, k ledger.Kind) error {
	s.kinds[k.Code] = k
	return nil
}

// =============================================================================
// CATALOG
// =============================================================================

func (s *state) SaveCourse(_ context.Context, c catalog.Course) error {
	if _, ok := s.courses[c.ID]; !ok {
		s.courseOrder = append(s.courseOrder, c.ID)
	}
	s.courses[c.ID] = c
	return nil
}

func (s *state) GetCourse(_ context.Context, id commerce.CourseID) (*catalog.Course, error) {
	c, ok := s.courses[id]
	if !ok {
		return nil, nil
	}
	return &c, nil
}

func (s *state) ListCourses(_ context.Context) ([]catalog.Course, error) {
	out := make([]catalog.Course, 0, len(s.courseOrder))
	for _, id := range s.courseOrder {
		out = append(out, s.courses[id])
	}
	return out, nil
}

func (s *state) SaveLesson(_ context.Context, l catalog.Lesson) error {
	s.lessons[l.CourseID] = append(s.lessons[l.CourseID], l)
	return nil
}

func (s *state) LessonsByCourse(_ context.Context, courseID commerce.CourseID) ([]catalog.Lesson, error) {
	return append([]catalog.Lesson(nil), s.lessons[courseID]...), nil
}

func (s *state) CountLessons(_ context.Context, courseID commerce.CourseID) (int, error) {
	return len(s.lessons[courseID]), nil
}

func (s *state) SaveTier(_ context.Context, t catalog.PriceTier) error {
	if _, ok := s.tiers[t.ID]; !ok {
		s.tierOrder = append(s.tierOrder, t.ID)
	}
	s.tiers[t.ID] = t
	return nil
}

func (s *state) GetTier(_ context.Context, id commerce.TierID) (*catalog.PriceTier, error) {
	t, ok := s.tiers[id]
	if !ok {
		return nil, nil
	}
	return &t, nil
}

func (s *state) ListTiers(_ context.Context) ([]catalog.PriceTier, error) {
	out := make([]catalog.PriceTier, 0, len(s.tierOrder))
	for _, id := range s.tierOrder {
		out = append(out, s.tiers[id])
	}
	return out, nil
}

func (s *state) SavePrice(_ context.Context, p catalog.PriceEntry) error {
	k := priceKey{CourseID: p.CourseID, TierID: p.TierID}
	s.prices[k] = append(s.prices[k], p)
	return nil
}

func (s *state) PricesFor(_ context.Context, courseID commerce.CourseID, tierID commerce.TierID) ([]catalog.PriceEntry, error) {
	k := priceKey{CourseID: courseID, TierID: tierID}
	out := append([]catalog.PriceEntry(nil), s.prices[k]...)
	sort.Slice(out, func(i, j int) bool { return out[i].EffectiveFrom.Before(out[j].EffectiveFrom) })
	return out, nil
}

// =============================================================================
// ACCESS
// =============================================================================

func (s *state) GetGrant(_ context.Context, courseID commerce.CourseID, userID commerce.UserID) (*access.Grant, error) {
	g, ok := s.grants[grantKey{CourseID: courseID, UserID: userID}]
	if !ok {
		return nil, nil
	}
	return &g, nil
}

func (s *state) SaveGrant(_ context.Context, g access.Grant) error {
	s.grants[grantKey{CourseID: g.CourseID, UserID: g.UserID}] = g
	return nil
}

func (s *state) GrantsByUser(_ context.Context, userID commerce.UserID) ([]access.Grant, error) {
	var out []access.Grant
	for k, g := range s.grants {
		if k.UserID == userID {
			out = append(out, g)
		}
	}
	return out, nil
}

func (s *state) AppendReason(_ context.Context, r access.Reason) error {
	s.reasons[r.GrantID] = append(s.reasons[r.GrantID], r)
	return nil
}

func (s *state) ReasonsByGrant(_ context.Context, grantID access.GrantID) ([]access.Reason, error) {
	return append([]access.Reason(nil), s.reasons[grantID]...), nil
}

// =============================================================================
// ENROLL
// =============================================================================

func (s *state) SaveGroup(_ context.Context, g enroll.Group) error {
	s.groups[g.CourseID] = append(s.groups[g.CourseID], g)
	return nil
}

func (s *state) GroupsByCourse(_ context.Context, courseID commerce.CourseID) ([]enroll.Group, error) {
	return append([]enroll.Group(nil), s.groups[courseID]...), nil
}

func (s *state) CountMembers(_ context.Context, groupID commerce.GroupID) (int, error) {
	return len(s.members[groupID]), nil
}

func (s *state) AddMember(_ context.Context, m enroll.Membership) error {
	s.members[m.GroupID] = append(s.members[m.GroupID], m)
	return nil
}

// =============================================================================
// MEMORY - Locked wrapper implementing purchase.TxStore
// =============================================================================

type Memory struct {
	mu sync.RWMutex
	st *state
}

func New() *Memory {
	return &Memory{st: newState()}
}

// WithTx locks the store, snapshots, and restores on error.
func (m *Memory) WithTx(_ context.Context, fn func(purchase.Store) error) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	snapshot := m.st.clone()
	if err := fn(m.st); err != nil {
		m.st = snapshot
		return err
	}
	return nil
}

func (m *Memory) AppendEntry(ctx context.Context, e ledger.Entry) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.st.AppendEntry(ctx, e)
}

func (m *Memory) EntriesByUser(ctx context.Context, userID commerce.UserID, asOf time.Time) ([]ledger.Entry, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.st.EntriesByUser(ctx, userID, asOf)
}

func (m *Memory) KindByCode(ctx context.Context, code ledger.KindCode) (*ledger.Kind, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.st.KindByCode(ctx, code)
}

func (m *Memory) SaveKind(ctx context.Context, k ledger.Kind) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.st.SaveKind(ctx, k)
}

func (m *Memory) SaveCourse(ctx context.Context, c catalog.Course) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.st.SaveCourse(ctx, c)
}

func (m *Memory) GetCourse(ctx context.Context, id commerce.CourseID) (*catalog.Course, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.st.GetCourse(ctx, id)
}

func (m *Memory) ListCourses(ctx context.Context) ([]catalog.Course, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.st.ListCourses(ctx)
}

func (m *Memory) SaveLesson(ctx context.Context, l catalog.Lesson) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.st.SaveLesson(ctx, l)
}

func (m *Memory) LessonsByCourse(ctx context.Context, courseID commerce.CourseID) ([]catalog.Lesson, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.st.LessonsByCourse(ctx, courseID)
}

func (m *Memory) CountLessons(ctx context.Context, courseID commerce.CourseID) (int, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.st.CountLessons(ctx, courseID)
}

func (m *Memory) SaveTier(ctx context.Context, t catalog.PriceTier) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.st.SaveTier(ctx, t)
}

func (m *Memory) GetTier(ctx context.Context, id commerce.TierID) (*catalog.PriceTier, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.st.GetTier(ctx, id)
}

func (m *Memory) ListTiers(ctx context.Context) ([]catalog.PriceTier, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.st.ListTiers(ctx)
}

func (m *Memory) SavePrice(ctx context.Context, p catalog.PriceEntry) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.st.SavePrice(ctx, p)
}

func (m *Memory) PricesFor(ctx context.Context, courseID commerce.CourseID, tierID commerce.TierID) ([]catalog.PriceEntry, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.st.PricesFor(ctx, courseID, tierID)
}

func (m *Memory) GetGrant(ctx context.Context, courseID commerce.CourseID, userID commerce.UserID) (*access.Grant, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.st.GetGrant(ctx, courseID, userID)
}

func (m *Memory) SaveGrant(ctx context.Context, g access.Grant) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.st.SaveGrant(ctx, g)
}

func (m *Memory) GrantsByUser(ctx context.Context, userID commerce.UserID) ([]access.Grant, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.st.GrantsByUser(ctx, userID)
}

func (m *Memory) AppendReason(ctx context.Context, r access.Reason) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.st.AppendReason(ctx, r)
}

func (m *Memory) ReasonsByGrant(ctx context.Context, grantID access.GrantID) ([]access.Reason, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.st.ReasonsByGrant(ctx, grantID)
}

func (m *Memory) SaveGroup(ctx context.Context, g enroll.Group) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.st.SaveGroup(ctx, g)
}

func (m *Memory) GroupsByCourse(ctx context.Context, courseID commerce.CourseID) ([]enroll.Group, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.st.GroupsByCourse(ctx, courseID)
}

func (m *Memory) CountMembers(ctx context.Context, groupID commerce.GroupID) (int, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.st.CountMembers(ctx, groupID)
}

func (m *Memory) AddMember(ctx context.Context, mem enroll.Membership) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.st.AddMember(ctx, mem)
}
