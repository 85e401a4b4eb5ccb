/*
handlers.go - HTTP API handlers for the course commerce engine

PURPOSE:
  Exposes the commerce engine via REST API. Handles HTTP
  request/response, JSON serialization, and delegates to domain logic.

ENDPOINTS:
  Courses:
    GET    /api/courses                   List all courses
    POST   /api/courses                   Create course
    GET    /api/courses/{id}              Get course details
    GET    /api/courses/{id}/lessons      List lessons
    POST   /api/courses/{id}/lessons      Add lesson
    GET    /api/courses/{id}/prices       Price history per tier
    POST   /api/courses/{id}/prices       Schedule a price
    GET    /api/courses/{id}/groups       List study groups with load
    POST   /api/courses/{id}/groups       Create study group
    POST   /api/courses/{id}/pay          Purchase the course
    GET    /api/courses/available         Purchasable courses for a user

  Tiers:
    GET    /api/tiers                     List price tiers
    POST   /api/tiers                     Create price tier

  Users:
    GET    /api/users/{id}/balance        Balance breakdown
    GET    /api/users/{id}/ledger         Ledger history
    POST   /api/users/{id}/deposits       Credit the ledger directly

REQUEST FLOW:
  1. Parse HTTP request
  2. Validate input
  3. Call domain logic (orchestrator, ledger, catalog)
  4. Serialize response
  5. Handle errors

ERROR HANDLING:
  Errors are returned as JSON with appropriate HTTP status:
  - 400: Validation errors, invalid input
  - 402: Payment amount below the effective price
  - 404: Course, tier, or price not found
  - 409: Price not effective yet, no groups configured
  - 500: Settlement faults, internal errors

SECURITY NOTE:
  Currently NO authentication or authorization. All endpoints are public.

SEE ALSO:
  - dto.go: Request/response data structures
  - server.go: Router setup and middleware
*/
package api

import (
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	commerce "github.com/warp/course-commerce"
	"github.com/warp/course-commerce/access"
	"github.com/warp/course-commerce/catalog"
	"github.com/warp/course-commerce/enroll"
	"github.com/warp/course-commerce/ledger"
	"github.com/warp/course-commerce/money"
	"github.com/warp/course-commerce/purchase"
)

// =============================================================================
// HANDLER CONTEXT
// =============================================================================

// Handler holds all dependencies for HTTP handlers.
type Handler struct {
	Store purchase.TxStore
	Orc   *purchase.Orchestrator

	kinds purchase.KindMap
}

// NewHandler creates a new handler backed by the given store.
func NewHandler(store purchase.TxStore, kinds purchase.KindMap) *Handler {
	return &Handler{
		Store: store,
		Orc:   purchase.New(store, kinds),
		kinds: kinds,
	}
}

// =============================================================================
// COURSE HANDLERS
// =============================================================================

// ListCourses returns all courses.
func (h *Handler) ListCourses(w http.ResponseWriter, r *http.Request) {
	courses, err := h.Store.ListCourses(r.Context())
	if err != nil {
		writeError(w, http.StatusInternalServerError, "Failed to list courses", err)
		return
	}

	dtos := make([]CourseDTO, len(courses))
	for i, c := range courses {
		dtos[i] = toCourseDTO(c)
	}
	writeJSON(w, http.StatusOK, dtos)
}

// GetCourse returns a single course.
func (h *Handler) GetCourse(w http.ResponseWriter, r *http.Request) {
	id := commerce.CourseID(chi.URLParam(r, "id"))

	course, err := h.Store.GetCourse(r.Context(), id)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "Failed to get course", err)
		return
	}
	if course == nil {
		writeError(w, http.StatusNotFound, "Course not found", nil)
		return
	}
	writeJSON(w, http.StatusOK, toCourseDTO(*course))
}

// CreateCourse creates a new course.
func (h *Handler) CreateCourse(w http.ResponseWriter, r *http.Request) {
	var req CreateCourseRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request body", err)
		return
	}
	if req.ID == "" || req.Title == "" {
		writeError(w, http.StatusBadRequest, "id and title are required", nil)
		return
	}

	startDate, err := time.Parse("2006-01-02", req.StartDate)
	if err != nil {
		writeError(w, http.StatusBadRequest, "Invalid start_date (want YYYY-MM-DD)", err)
		return
	}

	gated := true
	if req.Gated != nil {
		gated = *req.Gated
	}

	course := catalog.Course{
		ID:        commerce.CourseID(req.ID),
		AuthorID:  commerce.UserID(req.AuthorID),
		Title:     req.Title,
		StartDate: startDate,
		Gated:     gated,
		CreatedAt: time.Now().UTC(),
	}
	if err := h.Store.SaveCourse(r.Context(), course); err != nil {
		writeError(w, http.StatusInternalServerError, "Failed to create course", err)
		return
	}
	writeJSON(w, http.StatusCreated, toCourseDTO(course))
}

// ListLessons returns a course's lessons.
func (h *Handler) ListLessons(w http.ResponseWriter, r *http.Request) {
	courseID := commerce.CourseID(chi.URLParam(r, "id"))

	lessons, err := h.Store.LessonsByCourse(r.Context(), courseID)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "Failed to list lessons", err)
		return
	}

	dtos := make([]LessonDTO, len(lessons))
	for i, l := range lessons {
		dtos[i] = LessonDTO{ID: l.ID, CourseID: string(l.CourseID), Title: l.Title, Link: l.Link}
	}
	writeJSON(w, http.StatusOK, dtos)
}

// CreateLesson adds a lesson to a course.
func (h *Handler) CreateLesson(w http.ResponseWriter, r *http.Request) {
	courseID := commerce.CourseID(chi.URLParam(r, "id"))

	var req CreateLessonRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request body", err)
		return
	}
	if req.ID == "" || req.Title == "" {
		writeError(w, http.StatusBadRequest, "id and title are required", nil)
		return
	}

	if h.requireCourse(w, r, courseID) {
		return
	}

	lesson := catalog.Lesson{ID: req.ID, CourseID: courseID, Title: req.Title, Link: req.Link}
	if err := h.Store.SaveLesson(r.Context(), lesson); err != nil {
		writeError(w, http.StatusInternalServerError, "Failed to create lesson", err)
		return
	}
	writeJSON(w, http.StatusCreated, LessonDTO{ID: lesson.ID, CourseID: string(courseID), Title: lesson.Title, Link: lesson.Link})
}

// =============================================================================
// PRICING HANDLERS
// =============================================================================

// ListTiers returns all price tiers.
func (h *Handler) ListTiers(w http.ResponseWriter, r *http.Request) {
	tiers, err := h.Store.ListTiers(r.Context())
	if err != nil {
		writeError(w, http.StatusInternalServerError, "Failed to list tiers", err)
		return
	}

	dtos := make([]TierDTO, len(tiers))
	for i, t := range tiers {
		dtos[i] = TierDTO{ID: string(t.ID), Name: t.Name, Description: t.Description}
	}
	writeJSON(w, http.StatusOK, dtos)
}

// CreateTier creates a price tier.
func (h *Handler) CreateTier(w http.ResponseWriter, r *http.Request) {
	var req CreateTierRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request body", err)
		return
	}
	if req.ID == "" || req.Name == "" {
		writeError(w, http.StatusBadRequest, "id and name are required", nil)
		return
	}

	tier := catalog.PriceTier{ID: commerce.TierID(req.ID), Name: req.Name, Description: req.Description}
	if err := h.Store.SaveTier(r.Context(), tier); err != nil {
		writeError(w, http.StatusInternalServerError, "Failed to create tier", err)
		return
	}
	writeJSON(w, http.StatusCreated, TierDTO{ID: req.ID, Name: req.Name, Description: req.Description})
}

// ListPrices returns a course's price history for a tier.
// GET /api/courses/{id}/prices?tier=retail
func (h *Handler) ListPrices(w http.ResponseWriter, r *http.Request) {
	courseID := commerce.CourseID(chi.URLParam(r, "id"))
	tierID := commerce.TierID(r.URL.Query().Get("tier"))
	if tierID == "" {
		writeError(w, http.StatusBadRequest, "tier query parameter is required", nil)
		return
	}

	prices, err := h.Store.PricesFor(r.Context(), courseID, tierID)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "Failed to list prices", err)
		return
	}

	dtos := make([]PriceDTO, len(prices))
	for i, p := range prices {
		dtos[i] = PriceDTO{
			ID:            p.ID,
			CourseID:      string(p.CourseID),
			TierID:        string(p.TierID),
			EffectiveFrom: p.EffectiveFrom.Format("2006-01-02"),
			Price:         p.Price.String(),
		}
	}
	writeJSON(w, http.StatusOK, dtos)
}

// CreatePrice schedules a price for a course and tier.
func (h *Handler) CreatePrice(w http.ResponseWriter, r *http.Request) {
	courseID := commerce.CourseID(chi.URLParam(r, "id"))

	var req CreatePriceRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request body", err)
		return
	}

	effectiveFrom, err := time.Parse("2006-01-02", req.EffectiveFrom)
	if err != nil {
		writeError(w, http.StatusBadRequest, "Invalid effective_from (want YYYY-MM-DD)", err)
		return
	}
	price, err := money.Parse(req.Price)
	if err != nil {
		writeError(w, http.StatusBadRequest, "Invalid price", err)
		return
	}
	if price.IsNegative() {
		writeError(w, http.StatusBadRequest, "Price must not be negative", nil)
		return
	}

	if h.requireCourse(w, r, courseID) {
		return
	}

	tier, err := h.Store.GetTier(r.Context(), commerce.TierID(req.TierID))
	if err != nil {
		writeError(w, http.StatusInternalServerError, "Failed to get tier", err)
		return
	}
	if tier == nil {
		writeError(w, http.StatusNotFound, "Tier not found", nil)
		return
	}

	entry := catalog.PriceEntry{
		ID:            newID(),
		CourseID:      courseID,
		TierID:        tier.ID,
		EffectiveFrom: effectiveFrom,
		Price:         price,
	}
	if err := h.Store.SavePrice(r.Context(), entry); err != nil {
		writeError(w, http.StatusInternalServerError, "Failed to save price", err)
		return
	}
	writeJSON(w, http.StatusCreated, PriceDTO{
		ID:            entry.ID,
		CourseID:      string(entry.CourseID),
		TierID:        string(entry.TierID),
		EffectiveFrom: entry.EffectiveFrom.Format("2006-01-02"),
		Price:         entry.Price.String(),
	})
}

// =============================================================================
// GROUP HANDLERS
// =============================================================================

// ListGroups returns a course's groups.
func (h *Handler) ListGroups(w http.ResponseWriter, r *http.Request) {
	courseID := commerce.CourseID(chi.URLParam(r, "id"))

	groups, err := h.Store.GroupsByCourse(r.Context(), courseID)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "Failed to list groups", err)
		return
	}

	dtos := make([]GroupDTO, len(groups))
	for i, g := range groups {
		dtos[i] = toGroupDTO(g)
	}
	writeJSON(w, http.StatusOK, dtos)
}

// GroupLoads returns a course's groups with member counts.
func (h *Handler) GroupLoads(w http.ResponseWriter, r *http.Request) {
	courseID := commerce.CourseID(chi.URLParam(r, "id"))

	loads, err := enroll.Loads(r.Context(), h.Store, courseID)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "Failed to load group counts", err)
		return
	}

	dtos := make([]GroupLoadDTO, len(loads))
	for i, l := range loads {
		dtos[i] = GroupLoadDTO{Group: toGroupDTO(l.Group), Members: l.Members}
	}
	writeJSON(w, http.StatusOK, dtos)
}

// CreateGroup creates a study group for a course.
func (h *Handler) CreateGroup(w http.ResponseWriter, r *http.Request) {
	courseID := commerce.CourseID(chi.URLParam(r, "id"))

	var req CreateGroupRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request body", err)
		return
	}
	if req.ID == "" || req.Name == "" {
		writeError(w, http.StatusBadRequest, "id and name are required", nil)
		return
	}

	if h.requireCourse(w, r, courseID) {
		return
	}

	group := enroll.Group{
		ID:       commerce.GroupID(req.ID),
		CourseID: courseID,
		Name:     req.Name,
		Number:   req.Number,
	}
	if err := h.Store.SaveGroup(r.Context(), group); err != nil {
		writeError(w, http.StatusInternalServerError, "Failed to create group", err)
		return
	}
	writeJSON(w, http.StatusCreated, toGroupDTO(group))
}

// =============================================================================
// PURCHASE HANDLERS
// =============================================================================

// Purchase settles a course purchase.
// POST /api/courses/{id}/pay
func (h *Handler) Purchase(w http.ResponseWriter, r *http.Request) {
	courseID := commerce.CourseID(chi.URLParam(r, "id"))

	var req PurchaseRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request body", err)
		return
	}
	if req.UserID == "" || req.TierID == "" {
		writeError(w, http.StatusBadRequest, "user_id and tier_id are required", nil)
		return
	}
	amount, err := money.Parse(req.Amount)
	if err != nil {
		writeError(w, http.StatusBadRequest, "Invalid amount", err)
		return
	}
	if !amount.IsPositive() {
		writeError(w, http.StatusBadRequest, "Amount must be positive", nil)
		return
	}

	settlement, err := h.Orc.Purchase(r.Context(), purchase.Request{
		UserID:             commerce.UserID(req.UserID),
		CourseID:           courseID,
		TierID:             commerce.TierID(req.TierID),
		Amount:             amount,
		ExternalPaymentID:  req.ExternalPaymentID,
		PaymentType:        purchase.PaymentType(req.PaymentType),
		PaymentDescription: req.Description,
		Bonus:              req.Bonus,
	})
	if err != nil {
		writePurchaseError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, toPurchaseResponse(settlement))
}

// AvailableCourses lists the courses a user can still buy.
// GET /api/courses/available?user=u1
func (h *Handler) AvailableCourses(w http.ResponseWriter, r *http.Request) {
	userID := commerce.UserID(r.URL.Query().Get("user"))
	if userID == "" {
		writeError(w, http.StatusBadRequest, "user query parameter is required", nil)
		return
	}

	summaries, err := h.Orc.PurchasableCourses(r.Context(), userID)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "Failed to list available courses", err)
		return
	}

	dtos := make([]AvailableCourseDTO, len(summaries))
	for i, s := range summaries {
		dtos[i] = AvailableCourseDTO{
			Name:        s.Name,
			StartDate:   s.StartDate.Format("2006-01-02"),
			LessonCount: s.LessonCount,
		}
	}
	writeJSON(w, http.StatusOK, dtos)
}

// writePurchaseError maps settlement failures to HTTP statuses. The
// original behavior of reporting every failure the same way hid real
// faults; each typed failure gets its own status here.
func writePurchaseError(w http.ResponseWriter, err error) {
	var insufficient *purchase.InsufficientFundsError
	switch {
	case errors.As(err, &insufficient):
		writeError(w, http.StatusPaymentRequired, "Insufficient payment", err)
	case errors.Is(err, catalog.ErrCourseNotFound):
		writeError(w, http.StatusNotFound, "Course not found", err)
	case errors.Is(err, catalog.ErrPriceNotFound):
		writeError(w, http.StatusNotFound, "No price configured for course and tier", err)
	case errors.Is(err, catalog.ErrPriceNotEffectiveYet):
		writeError(w, http.StatusConflict, "Price not effective yet", err)
	case errors.Is(err, enroll.ErrNoGroupsConfigured):
		writeError(w, http.StatusConflict, "No study groups configured for course", err)
	case errors.Is(err, ledger.ErrKindNotConfigured):
		writeError(w, http.StatusInternalServerError, "Ledger kind not configured", err)
	default:
		writeError(w, http.StatusInternalServerError, "Settlement failed", err)
	}
}

// =============================================================================
// USER / LEDGER HANDLERS
// =============================================================================

// GetBalance returns a user's balance breakdown.
func (h *Handler) GetBalance(w http.ResponseWriter, r *http.Request) {
	userID := commerce.UserID(chi.URLParam(r, "id"))
	now := time.Now().UTC()

	led := ledger.New(h.Store)
	total, err := led.Balance(r.Context(), userID, ledger.CategoryAll, now)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "Failed to compute balance", err)
		return
	}
	bonus, err := led.Balance(r.Context(), userID, ledger.CategoryBonusOnly, now)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "Failed to compute balance", err)
		return
	}
	cash, err := led.Balance(r.Context(), userID, ledger.CategoryCashOnly, now)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "Failed to compute balance", err)
		return
	}

	writeJSON(w, http.StatusOK, BalanceDTO{
		UserID: string(userID),
		Total:  total.String(),
		Bonus:  bonus.String(),
		Cash:   cash.String(),
	})
}

// GetLedger returns a user's ledger history.
func (h *Handler) GetLedger(w http.ResponseWriter, r *http.Request) {
	userID := commerce.UserID(chi.URLParam(r, "id"))

	entries, err := h.Store.EntriesByUser(r.Context(), userID, time.Now().UTC())
	if err != nil {
		writeError(w, http.StatusInternalServerError, "Failed to list ledger entries", err)
		return
	}

	dtos := make([]EntryDTO, len(entries))
	for i, e := range entries {
		dtos[i] = toEntryDTO(e)
	}
	writeJSON(w, http.StatusOK, dtos)
}

// Deposit credits a user's ledger outside of a purchase.
func (h *Handler) Deposit(w http.ResponseWriter, r *http.Request) {
	userID := commerce.UserID(chi.URLParam(r, "id"))

	var req DepositRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request body", err)
		return
	}
	amount, err := money.Parse(req.Amount)
	if err != nil {
		writeError(w, http.StatusBadRequest, "Invalid amount", err)
		return
	}
	if !amount.IsPositive() {
		writeError(w, http.StatusBadRequest, "Amount must be positive", nil)
		return
	}

	kind := h.kinds.ForPaymentType(purchase.PaymentType(req.PaymentType))
	entry, err := ledger.New(h.Store).Record(r.Context(), ledger.Entry{
		UserID:            userID,
		Kind:              kind,
		Amount:            amount,
		Description:       req.Description,
		Bonus:             req.Bonus,
		ExternalPaymentID: req.ExternalPaymentID,
		RecordedAt:        time.Now().UTC(),
	})
	if err != nil {
		if errors.Is(err, ledger.ErrKindNotConfigured) {
			writeError(w, http.StatusInternalServerError, "Ledger kind not configured", err)
			return
		}
		writeError(w, http.StatusInternalServerError, "Failed to record deposit", err)
		return
	}
	writeJSON(w, http.StatusCreated, toEntryDTO(entry))
}

// =============================================================================
// ACCESS HANDLERS
// =============================================================================

// ListGrants returns a user's access grants.
func (h *Handler) ListGrants(w http.ResponseWriter, r *http.Request) {
	userID := commerce.UserID(chi.URLParam(r, "id"))

	grants, err := h.Store.GrantsByUser(r.Context(), userID)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "Failed to list grants", err)
		return
	}

	dtos := make([]GrantDTO, len(grants))
	for i, g := range grants {
		dtos[i] = toGrantDTO(g)
	}
	writeJSON(w, http.StatusOK, dtos)
}

// ListReasons returns the audit trail of a grant.
// GET /api/grants/{id}/reasons
func (h *Handler) ListReasons(w http.ResponseWriter, r *http.Request) {
	grantID := access.GrantID(chi.URLParam(r, "id"))

	reasons, err := h.Store.ReasonsByGrant(r.Context(), grantID)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "Failed to list reasons", err)
		return
	}

	dtos := make([]ReasonDTO, len(reasons))
	for i, re := range reasons {
		dtos[i] = ReasonDTO{
			ID:      string(re.ID),
			EntryID: string(re.EntryID),
			Name:    re.Name,
			GrantID: string(re.GrantID),
		}
	}
	writeJSON(w, http.StatusOK, dtos)
}

// =============================================================================
// HELPERS
// =============================================================================

// requireCourse writes a 404/500 and reports true when the course is
// unavailable.
func (h *Handler) requireCourse(w http.ResponseWriter, r *http.Request, id commerce.CourseID) bool {
	course, err := h.Store.GetCourse(r.Context(), id)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "Failed to get course", err)
		return true
	}
	if course == nil {
		writeError(w, http.StatusNotFound, "Course not found", nil)
		return true
	}
	return false
}

func newID() string {
	return uuid.NewString()
}

func writeJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(data)
}

func writeError(w http.ResponseWriter, status int, message string, err error) {
	resp := ErrorResponse{Error: message}
	if err != nil {
		resp.Details = err.Error()
	}
	writeJSON(w, status, resp)
}
