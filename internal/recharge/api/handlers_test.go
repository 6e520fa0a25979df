package api_test

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"paydesk/internal/account"
	"paydesk/internal/common/events"
	"paydesk/internal/common/middleware"
	"paydesk/internal/recharge"
	"paydesk/internal/recharge/api"
	"paydesk/internal/redeem"
)

func newTestServer(t *testing.T) *httptest.Server {
	t.Helper()
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))

	accounts := account.NewMemoryStore()
	redeems := redeem.NewService(redeem.NewMemoryStore(), events.NopPublisher(), logger)
	service := recharge.NewService(recharge.NewMemoryStore(), accounts, redeems, events.NopPublisher(), logger)

	idempotency := middleware.Idempotency(middleware.NewMemoryIdempotencyStore(), time.Minute)
	handler := api.NewHandler(service, redeems, accounts, idempotency)

	r := chi.NewRouter()
	r.Use(middleware.ActorExtractor)
	r.Use(middleware.RequireActor)
	r.Mount("/", handler.Routes())

	srv := httptest.NewServer(r)
	t.Cleanup(srv.Close)
	return srv
}

func do(t *testing.T, srv *httptest.Server, method, path, role string, body any, headers map[string]string) (*http.Response, map[string]any) {
	t.Helper()

	var buf bytes.Buffer
	if body != nil {
		require.NoError(t, json.NewEncoder(&buf).Encode(body))
	}

	req, err := http.NewRequest(method, srv.URL+path, &buf)
	require.NoError(t, err)
	req.Header.Set("Content-Type", "application/json")
	if role != "" {
		req.Header.Set("X-Actor-ID", "actor-"+role)
		req.Header.Set("X-Actor-Role", role)
	}
	for k, v := range headers {
		req.Header.Set(k, v)
	}

	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	t.Cleanup(func() { resp.Body.Close() })

	var decoded map[string]any
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&decoded))
	return resp, decoded
}

func createRecharge(t *testing.T, srv *httptest.Server) string {
	t.Helper()
	resp, body := do(t, srv, http.MethodPost, "/recharges", "support", map[string]any{
		"entity_id":         "entity-1",
		"player_id":         "player-1",
		"payment_method_id": "method-1",
		"amount_minor":      100_00,
		"currency":          "USD",
	}, nil)
	require.Equal(t, http.StatusCreated, resp.StatusCode)
	data := body["data"].(map[string]any)
	return data["id"].(string)
}

func createAccount(t *testing.T, srv *httptest.Server) string {
	t.Helper()
	resp, body := do(t, srv, http.MethodPost, "/accounts", "finance", map[string]any{
		"payment_method_id": "method-1",
		"holder_name":       "PayDesk Holdings",
		"account_number":    "111-222-333",
	}, nil)
	require.Equal(t, http.StatusCreated, resp.StatusCode)
	return body["data"].(map[string]any)["id"].(string)
}

func TestHTTP_RequiresActor(t *testing.T) {
	srv := newTestServer(t)

	resp, body := do(t, srv, http.MethodPost, "/recharges", "", map[string]any{}, nil)
	assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)
	assert.NotNil(t, body["error"])
}

func TestHTTP_RoleEnforcement(t *testing.T) {
	srv := newTestServer(t)
	id := createRecharge(t, srv)

	// Support cannot approve at finance
	resp, body := do(t, srv, http.MethodPost, "/finance/recharges/"+id+"/approve", "support", map[string]any{
		"tag_type":   "CT",
		"account_id": "acct-1",
	}, nil)
	assert.Equal(t, http.StatusForbidden, resp.StatusCode)
	errObj := body["error"].(map[string]any)
	assert.Equal(t, "FORBIDDEN", errObj["code"])
}

func TestHTTP_CTLifecycle(t *testing.T) {
	srv := newTestServer(t)
	acctID := createAccount(t, srv)
	id := createRecharge(t, srv)

	resp, body := do(t, srv, http.MethodPost, "/finance/recharges/"+id+"/approve", "finance", map[string]any{
		"tag_type":   "CT",
		"account_id": acctID,
	}, nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	data := body["data"].(map[string]any)
	assert.Equal(t, "CT", data["tag_type"])
	assert.Equal(t, "approved", data["finance_status"])

	resp, _ = do(t, srv, http.MethodPost, "/recharges/"+id+"/proof", "support", map[string]any{
		"proof_ref": "proof-1",
	}, nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)

	resp, _ = do(t, srv, http.MethodPost, "/finance/recharges/"+id+"/verify", "finance", nil, nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)

	resp, body = do(t, srv, http.MethodPost, "/operations/recharges/"+id+"/complete", "operations", nil, nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	data = body["data"].(map[string]any)
	assert.Equal(t, "completed", data["operations_status"])
	assert.Equal(t, "completed", data["entity_status"])
}

func TestHTTP_ErrorTaxonomy(t *testing.T) {
	srv := newTestServer(t)
	id := createRecharge(t, srv)

	// Unknown account
	resp, body := do(t, srv, http.MethodPost, "/finance/recharges/"+id+"/approve", "finance", map[string]any{
		"tag_type":   "CT",
		"account_id": "acct-missing",
	}, nil)
	assert.Equal(t, http.StatusUnprocessableEntity, resp.StatusCode)
	errObj := body["error"].(map[string]any)
	assert.Equal(t, "INVALID_ACCOUNT_SELECTION", errObj["code"])

	// Completing before approval is an out-of-order call
	resp, body = do(t, srv, http.MethodPost, "/operations/recharges/"+id+"/complete", "operations", nil, nil)
	assert.Equal(t, http.StatusUnprocessableEntity, resp.StatusCode)
	errObj = body["error"].(map[string]any)
	assert.Equal(t, "ILLEGAL_TRANSITION", errObj["code"])

	// Rejecting, then acting again fails with a conflict
	resp, _ = do(t, srv, http.MethodPost, "/finance/recharges/"+id+"/reject", "finance", map[string]any{
		"reason": "duplicate",
	}, nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)

	resp, body = do(t, srv, http.MethodPost, "/finance/recharges/"+id+"/reject", "finance", map[string]any{
		"reason": "again",
	}, nil)
	assert.Equal(t, http.StatusConflict, resp.StatusCode)
	errObj = body["error"].(map[string]any)
	assert.Equal(t, "PRECONDITION_FAILED", errObj["code"])

	// Unknown request id
	resp, _ = do(t, srv, http.MethodGet, "/recharges/nope", "support", nil, nil)
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
}

func TestHTTP_RedeemPaymentIdempotency(t *testing.T) {
	srv := newTestServer(t)

	resp, body := do(t, srv, http.MethodPost, "/redeems", "support", map[string]any{
		"entity_id":    "entity-1",
		"player_id":    "player-2",
		"amount_minor": 100_00,
		"currency":     "USD",
	}, nil)
	require.Equal(t, http.StatusCreated, resp.StatusCode)
	redeemID := body["data"].(map[string]any)["id"].(string)

	payment := map[string]any{"amount_minor": 60_00, "currency": "USD"}
	key := map[string]string{"Idempotency-Key": "pay-1"}

	resp, _ = do(t, srv, http.MethodPost, "/redeems/"+redeemID+"/payments", "finance", payment, key)
	require.Equal(t, http.StatusOK, resp.StatusCode)

	// The retry replays the cached response instead of double-paying
	resp, _ = do(t, srv, http.MethodPost, "/redeems/"+redeemID+"/payments", "finance", payment, key)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "true", resp.Header.Get("X-Idempotency-Replayed"))

	resp, body = do(t, srv, http.MethodGet, "/redeems/"+redeemID, "finance", nil, nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	data := body["data"].(map[string]any)
	assert.Equal(t, float64(60_00), data["paid_amount"].(map[string]any)["amount_minor"])
	assert.Equal(t, float64(40_00), data["remaining_amount"].(map[string]any)["amount_minor"])
}

func TestHTTP_EligibleRedeems(t *testing.T) {
	srv := newTestServer(t)

	for _, minor := range []int64{40_00, 200_00} {
		resp, _ := do(t, srv, http.MethodPost, "/redeems", "support", map[string]any{
			"entity_id":    "entity-1",
			"player_id":    "player-2",
			"amount_minor": minor,
			"currency":     "USD",
		}, nil)
		require.Equal(t, http.StatusCreated, resp.StatusCode)
	}

	path := fmt.Sprintf("/redeems/eligible?entity_id=entity-1&amount_minor=%d&currency=USD", 50_00)
	resp, body := do(t, srv, http.MethodGet, path, "finance", nil, nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, float64(1), body["count"])
}
