/*
handlers_test.go - HTTP-level tests for the purchase flow

Tests for:
- Purchase endpoint status mapping (402/404/409)
- Available-course listing
- Deposit and balance endpoints
*/
package api_test

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/warp/course-commerce/api"
	"github.com/warp/course-commerce/catalog"
	"github.com/warp/course-commerce/enroll"
	"github.com/warp/course-commerce/ledger"
	"github.com/warp/course-commerce/money"
	"github.com/warp/course-commerce/purchase"
	"github.com/warp/course-commerce/store/memory"
)

// =============================================================================
// TEST SETUP
// =============================================================================

func newTestRouter(t *testing.T) (*memory.Memory, http.Handler) {
	t.Helper()
	store := memory.New()
	ctx := context.Background()
	for _, k := range ledger.DefaultKinds() {
		require.NoError(t, store.SaveKind(ctx, k))
	}
	handler := api.NewHandler(store, purchase.DefaultKindMap())
	return store, api.NewRouter(handler)
}

func seedSellableCourse(t *testing.T, store *memory.Memory) {
	t.Helper()
	ctx := context.Background()
	now := time.Now().UTC()

	require.NoError(t, store.SaveCourse(ctx, catalog.Course{
		ID: "go-basics", AuthorID: "author-1", Title: "Go Basics",
		StartDate: now.AddDate(0, 1, 0), Gated: true, CreatedAt: now,
	}))
	require.NoError(t, store.SaveTier(ctx, catalog.PriceTier{ID: "retail", Name: "Retail"}))
	require.NoError(t, store.SavePrice(ctx, catalog.PriceEntry{
		ID: "p1", CourseID: "go-basics", TierID: "retail",
		EffectiveFrom: now.AddDate(0, -1, 0), Price: money.FromInt(100),
	}))
	require.NoError(t, store.SaveGroup(ctx, enroll.Group{
		ID: "g1", CourseID: "go-basics", Name: "Group A", Number: 1,
	}))
}

func payBody(amount string) *bytes.Buffer {
	body, _ := json.Marshal(map[string]any{
		"user_id":      "u1",
		"tier_id":      "retail",
		"amount":       amount,
		"payment_type": "NC",
		"description":  "Card payment",
	})
	return bytes.NewBuffer(body)
}

func doRequest(router http.Handler, method, path string, body *bytes.Buffer) *httptest.ResponseRecorder {
	if body == nil {
		body = bytes.NewBuffer(nil)
	}
	req := httptest.NewRequest(method, path, body)
	req.Header.Set("Content-Type", "application/json")
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)
	return rec
}

// =============================================================================
// PURCHASE STATUS MAPPING
// =============================================================================

func TestPurchaseEndpoint_Success(t *testing.T) {
	store, router := newTestRouter(t)
	seedSellableCourse(t, store)

	rec := doRequest(router, "POST", "/api/courses/go-basics/pay", payBody("100"))
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	var resp api.PurchaseResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.Contains(t, resp.Message, "Go Basics")
	assert.Equal(t, "g1", resp.Group.ID)
	assert.NotEmpty(t, resp.Grant.ID)
	require.Len(t, resp.Debits, 1)
	assert.Equal(t, "-100", resp.Debits[0].Amount)
}

func TestPurchaseEndpoint_InsufficientPayment_402(t *testing.T) {
	store, router := newTestRouter(t)
	seedSellableCourse(t, store)

	rec := doRequest(router, "POST", "/api/courses/go-basics/pay", payBody("40"))
	assert.Equal(t, http.StatusPaymentRequired, rec.Code, rec.Body.String())
}

func TestPurchaseEndpoint_UnknownCourse_404(t *testing.T) {
	store, router := newTestRouter(t)
	seedSellableCourse(t, store)

	rec := doRequest(router, "POST", "/api/courses/nope/pay", payBody("100"))
	assert.Equal(t, http.StatusNotFound, rec.Code, rec.Body.String())
}

func TestPurchaseEndpoint_NoPriceConfigured_404(t *testing.T) {
	store, router := newTestRouter(t)
	seedSellableCourse(t, store)
	require.NoError(t, store.SaveTier(context.Background(), catalog.PriceTier{ID: "wholesale", Name: "Wholesale"}))

	body, _ := json.Marshal(map[string]any{
		"user_id": "u1", "tier_id": "wholesale", "amount": "100", "payment_type": "NC",
	})
	rec := doRequest(router, "POST", "/api/courses/go-basics/pay", bytes.NewBuffer(body))
	assert.Equal(t, http.StatusNotFound, rec.Code, rec.Body.String())
}

func TestPurchaseEndpoint_PriceNotEffectiveYet_409(t *testing.T) {
	store, router := newTestRouter(t)
	ctx := context.Background()
	now := time.Now().UTC()

	require.NoError(t, store.SaveCourse(ctx, catalog.Course{
		ID: "go-advanced", AuthorID: "author-1", Title: "Go Advanced",
		StartDate: now.AddDate(0, 2, 0), Gated: true, CreatedAt: now,
	}))
	require.NoError(t, store.SaveTier(ctx, catalog.PriceTier{ID: "retail", Name: "Retail"}))
	require.NoError(t, store.SavePrice(ctx, catalog.PriceEntry{
		ID: "p1", CourseID: "go-advanced", TierID: "retail",
		EffectiveFrom: now.AddDate(0, 0, 7), Price: money.FromInt(100),
	}))

	rec := doRequest(router, "POST", "/api/courses/go-advanced/pay", payBody("100"))
	assert.Equal(t, http.StatusConflict, rec.Code, rec.Body.String())
}

func TestPurchaseEndpoint_NoGroups_409(t *testing.T) {
	store, router := newTestRouter(t)
	ctx := context.Background()
	now := time.Now().UTC()

	require.NoError(t, store.SaveCourse(ctx, catalog.Course{
		ID: "go-basics", AuthorID: "author-1", Title: "Go Basics",
		StartDate: now.AddDate(0, 1, 0), Gated: true, CreatedAt: now,
	}))
	require.NoError(t, store.SaveTier(ctx, catalog.PriceTier{ID: "retail", Name: "Retail"}))
	require.NoError(t, store.SavePrice(ctx, catalog.PriceEntry{
		ID: "p1", CourseID: "go-basics", TierID: "retail",
		EffectiveFrom: now.AddDate(0, -1, 0), Price: money.FromInt(100),
	}))

	rec := doRequest(router, "POST", "/api/courses/go-basics/pay", payBody("100"))
	assert.Equal(t, http.StatusConflict, rec.Code, rec.Body.String())
}

func TestPurchaseEndpoint_BadAmount_400(t *testing.T) {
	store, router := newTestRouter(t)
	seedSellableCourse(t, store)

	body, _ := json.Marshal(map[string]any{
		"user_id": "u1", "tier_id": "retail", "amount": "not-money", "payment_type": "NC",
	})
	rec := doRequest(router, "POST", "/api/courses/go-basics/pay", bytes.NewBuffer(body))
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

// =============================================================================
// AVAILABLE COURSES
// =============================================================================

func TestAvailableCourses_DropsAfterPurchase(t *testing.T) {
	// GIVEN: One sellable course
	// WHEN: The user buys it
	// THEN: The available list goes from one entry to empty

	store, router := newTestRouter(t)
	seedSellableCourse(t, store)

	rec := doRequest(router, "GET", "/api/courses/available?user=u1", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	var before []api.AvailableCourseDTO
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &before))
	require.Len(t, before, 1)
	assert.Equal(t, "Go Basics", before[0].Name)

	rec = doRequest(router, "POST", "/api/courses/go-basics/pay", payBody("100"))
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	rec = doRequest(router, "GET", "/api/courses/available?user=u1", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	var after []api.AvailableCourseDTO
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &after))
	assert.Empty(t, after)
}

func TestAvailableCourses_RequiresUserParam(t *testing.T) {
	_, router := newTestRouter(t)

	rec := doRequest(router, "GET", "/api/courses/available", nil)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

// =============================================================================
// DEPOSITS AND BALANCES
// =============================================================================

func TestDepositAndBalance(t *testing.T) {
	_, router := newTestRouter(t)

	deposit := func(amount string, bonus bool) {
		body, _ := json.Marshal(map[string]any{
			"amount": amount, "payment_type": "CA", "bonus": bonus,
		})
		rec := doRequest(router, "POST", "/api/users/u1/deposits", bytes.NewBuffer(body))
		require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	}
	deposit("100", false)
	deposit("30", true)

	rec := doRequest(router, "GET", "/api/users/u1/balance", nil)
	require.Equal(t, http.StatusOK, rec.Code)

	var balance api.BalanceDTO
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &balance))
	assert.Equal(t, "130", balance.Total)
	assert.Equal(t, "30", balance.Bonus)
	assert.Equal(t, "100", balance.Cash)
}

func TestLedgerHistory_CreditSurvivesFailedPurchase(t *testing.T) {
	// The payment credit recorded before settlement stays on the ledger
	// even when settlement fails.
	store, router := newTestRouter(t)
	seedSellableCourse(t, store)

	rec := doRequest(router, "POST", "/api/courses/go-basics/pay", payBody("40"))
	require.Equal(t, http.StatusPaymentRequired, rec.Code)

	rec = doRequest(router, "GET", "/api/users/u1/ledger", nil)
	require.Equal(t, http.StatusOK, rec.Code)

	var entries []api.EntryDTO
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &entries))
	require.Len(t, entries, 1)
	assert.Equal(t, "40", entries[0].Amount)
}

// =============================================================================
// CATALOG ADMIN ENDPOINTS
// =============================================================================

func TestCreateCourseAndTierAndPrice(t *testing.T) {
	_, router := newTestRouter(t)

	body, _ := json.Marshal(map[string]any{
		"id": "go-basics", "author_id": "author-1",
		"title": "Go Basics", "start_date": "2026-06-01",
	})
	rec := doRequest(router, "POST", "/api/courses", bytes.NewBuffer(body))
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())

	body, _ = json.Marshal(map[string]any{"id": "retail", "name": "Retail"})
	rec = doRequest(router, "POST", "/api/tiers", bytes.NewBuffer(body))
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())

	body, _ = json.Marshal(map[string]any{
		"tier_id": "retail", "effective_from": "2026-05-01", "price": "149.90",
	})
	rec = doRequest(router, "POST", "/api/courses/go-basics/prices", bytes.NewBuffer(body))
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())

	rec = doRequest(router, "GET", "/api/courses/go-basics/prices?tier=retail", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	var prices []api.PriceDTO
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &prices))
	require.Len(t, prices, 1)
	assert.Equal(t, "149.9", prices[0].Price)
}

func TestGroupLoadEndpoint(t *testing.T) {
	store, router := newTestRouter(t)
	seedSellableCourse(t, store)

	// Two buyers land in the single group.
	for i := 1; i <= 2; i++ {
		body, _ := json.Marshal(map[string]any{
			"user_id": fmt.Sprintf("u%d", i), "tier_id": "retail",
			"amount": "100", "payment_type": "NC",
		})
		rec := doRequest(router, "POST", "/api/courses/go-basics/pay", bytes.NewBuffer(body))
		require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	}

	rec := doRequest(router, "GET", "/api/courses/go-basics/groups/load", nil)
	require.Equal(t, http.StatusOK, rec.Code)

	var loads []api.GroupLoadDTO
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &loads))
	require.Len(t, loads, 1)
	assert.Equal(t, 2, loads[0].Members)
}
