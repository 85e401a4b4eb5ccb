/*
dto.go - Data Transfer Objects for API requests and responses

PURPOSE:
  Defines the JSON structures for API communication. These types decouple
  the internal domain model from the external API contract, allowing:
  - Field renaming without breaking clients
  - API-specific validation
  - Version evolution

NAMING CONVENTION:
  - *DTO: Response types returned to clients
  - *Request: Request body types from clients
  - *Response: Complex response wrappers

VALIDATION:
  Validation is done in handlers, not in DTOs. DTOs are pure data carriers.

SEE ALSO:
  - handlers.go: Uses these types
*/
package api

import (
	"time"

	"github.com/warp/course-commerce/access"
	"github.com/warp/course-commerce/catalog"
	"github.com/warp/course-commerce/enroll"
	"github.com/warp/course-commerce/ledger"
	"github.com/warp/course-commerce/purchase"
)

// =============================================================================
// COURSES
// =============================================================================

// CourseDTO represents a course in API responses.
type CourseDTO struct {
	ID        string `json:"id"`
	AuthorID  string `json:"author_id"`
	Title     string `json:"title"`
	StartDate string `json:"start_date"`
	Gated     bool   `json:"gated"`
	CreatedAt string `json:"created_at,omitempty"`
}

// CreateCourseRequest is the request to create a course.
type CreateCourseRequest struct {
	ID        string `json:"id"`
	AuthorID  string `json:"author_id"`
	Title     string `json:"title"`
	StartDate string `json:"start_date"`
	Gated     *bool  `json:"gated,omitempty"`
}

// LessonDTO represents a lesson in API responses.
type LessonDTO struct {
	ID       string `json:"id"`
	CourseID string `json:"course_id"`
	Title    string `json:"title"`
	Link     string `json:"link,omitempty"`
}

// CreateLessonRequest is the request to add a lesson to a course.
type CreateLessonRequest struct {
	ID    string `json:"id"`
	Title string `json:"title"`
	Link  string `json:"link,omitempty"`
}

// AvailableCourseDTO is the storefront view of a purchasable course.
type AvailableCourseDTO struct {
	Name        string `json:"name"`
	StartDate   string `json:"start_date"`
	LessonCount int    `json:"lesson_count"`
}

// =============================================================================
// PRICING
// =============================================================================

// TierDTO represents a price tier.
type TierDTO struct {
	ID          string `json:"id"`
	Name        string `json:"name"`
	Description string `json:"description,omitempty"`
}

// CreateTierRequest is the request to create a price tier.
type CreateTierRequest struct {
	ID          string `json:"id"`
	Name        string `json:"name"`
	Description string `json:"description,omitempty"`
}

// PriceDTO represents one price history row.
type PriceDTO struct {
	ID            string `json:"id"`
	CourseID      string `json:"course_id"`
	TierID        string `json:"tier_id"`
	EffectiveFrom string `json:"effective_from"`
	Price         string `json:"price"`
}

// CreatePriceRequest schedules a price for a course and tier.
type CreatePriceRequest struct {
	TierID        string `json:"tier_id"`
	EffectiveFrom string `json:"effective_from"`
	Price         string `json:"price"`
}

// =============================================================================
// LEDGER
// =============================================================================

// EntryDTO represents a ledger entry.
type EntryDTO struct {
	ID                string `json:"id"`
	UserID            string `json:"user_id"`
	KindCode          int    `json:"kind_code"`
	Amount            string `json:"amount"`
	Description       string `json:"description,omitempty"`
	Bonus             bool   `json:"bonus"`
	ExternalPaymentID string `json:"external_payment_id,omitempty"`
	RecordedAt        string `json:"recorded_at"`
}

// BalanceDTO is a user's balance breakdown.
type BalanceDTO struct {
	UserID string `json:"user_id"`
	Total  string `json:"total"`
	Bonus  string `json:"bonus"`
	Cash   string `json:"cash"`
}

// DepositRequest credits a user's ledger outside of a purchase.
type DepositRequest struct {
	Amount            string `json:"amount"`
	PaymentType       string `json:"payment_type"`
	Description       string `json:"description,omitempty"`
	Bonus             bool   `json:"bonus"`
	ExternalPaymentID string `json:"external_payment_id,omitempty"`
}

// =============================================================================
// PURCHASE
// =============================================================================

// PurchaseRequest is the request body for buying a course.
type PurchaseRequest struct {
	UserID            string `json:"user_id"`
	TierID            string `json:"tier_id"`
	Amount            string `json:"amount"`
	PaymentType       string `json:"payment_type"`
	Description       string `json:"description,omitempty"`
	Bonus             bool   `json:"bonus"`
	ExternalPaymentID string `json:"external_payment_id,omitempty"`
}

// PurchaseResponse is the settlement result returned to the client.
type PurchaseResponse struct {
	Message string      `json:"message"`
	Grant   GrantDTO    `json:"grant"`
	Debits  []EntryDTO  `json:"debits"`
	Reasons []ReasonDTO `json:"reasons"`
	Group   GroupDTO    `json:"group"`
}

// GrantDTO represents an access grant.
type GrantDTO struct {
	ID        string  `json:"id"`
	CourseID  string  `json:"course_id"`
	UserID    string  `json:"user_id"`
	ReadOpen  bool    `json:"read_open"`
	WriteOpen bool    `json:"write_open"`
	StartDate *string `json:"start_date,omitempty"`
	EndDate   *string `json:"end_date,omitempty"`
}

// ReasonDTO links a ledger debit to the grant it paid for.
type ReasonDTO struct {
	ID      string `json:"id"`
	EntryID string `json:"entry_id"`
	Name    string `json:"name"`
	GrantID string `json:"grant_id"`
}

// =============================================================================
// GROUPS
// =============================================================================

// GroupDTO represents a study group.
type GroupDTO struct {
	ID       string `json:"id"`
	CourseID string `json:"course_id"`
	Name     string `json:"name"`
	Number   int    `json:"number"`
}

// CreateGroupRequest is the request to create a study group.
type CreateGroupRequest struct {
	ID     string `json:"id"`
	Name   string `json:"name"`
	Number int    `json:"number"`
}

// GroupLoadDTO is a group with its current member count.
type GroupLoadDTO struct {
	Group   GroupDTO `json:"group"`
	Members int      `json:"members"`
}

// ErrorResponse is the standard error body.
type ErrorResponse struct {
	Error   string `json:"error"`
	Details string `json:"details,omitempty"`
}

// =============================================================================
// CONVERSIONS
// =============================================================================

func toCourseDTO(c catalog.Course) CourseDTO {
	return CourseDTO{
		ID:        string(c.ID),
		AuthorID:  string(c.AuthorID),
		Title:     c.Title,
		StartDate: c.StartDate.Format("2006-01-02"),
		Gated:     c.Gated,
		CreatedAt: c.CreatedAt.Format(time.RFC3339),
	}
}

func toEntryDTO(e ledger.Entry) EntryDTO {
	return EntryDTO{
		ID:                string(e.ID),
		UserID:            string(e.UserID),
		KindCode:          int(e.Kind),
		Amount:            e.Amount.String(),
		Description:       e.Description,
		Bonus:             e.Bonus,
		ExternalPaymentID: e.ExternalPaymentID,
		RecordedAt:        e.RecordedAt.Format(time.RFC3339),
	}
}

func toGrantDTO(g access.Grant) GrantDTO {
	dto := GrantDTO{
		ID:        string(g.ID),
		CourseID:  string(g.CourseID),
		UserID:    string(g.UserID),
		ReadOpen:  g.ReadOpen,
		WriteOpen: g.WriteOpen,
	}
	if g.StartDate != nil {
		s := g.StartDate.Format("2006-01-02")
		dto.StartDate = &s
	}
	if g.EndDate != nil {
		s := g.EndDate.Format("2006-01-02")
		dto.EndDate = &s
	}
	return dto
}

func toGroupDTO(g enroll.Group) GroupDTO {
	return GroupDTO{
		ID:       string(g.ID),
		CourseID: string(g.CourseID),
		Name:     g.Name,
		Number:   g.Number,
	}
}

func toPurchaseResponse(s *purchase.Settlement) PurchaseResponse {
	debits := make([]EntryDTO, len(s.Debits))
	for i, d := range s.Debits {
		debits[i] = toEntryDTO(d)
	}
	reasons := make([]ReasonDTO, len(s.Reasons))
	for i, r := range s.Reasons {
		reasons[i] = ReasonDTO{
			ID:      string(r.ID),
			EntryID: string(r.EntryID),
			Name:    r.Name,
			GrantID: string(r.GrantID),
		}
	}
	return PurchaseResponse{
		Message: s.Message,
		Grant:   toGrantDTO(s.Grant),
		Debits:  debits,
		Reasons: reasons,
		Group:   toGroupDTO(s.Group),
	}
}
