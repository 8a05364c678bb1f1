package httpapi

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"salesdesk/backend/internal/backend/memory"
	"salesdesk/backend/internal/cache"
	"salesdesk/backend/internal/ggsales"
	"salesdesk/backend/internal/service"
)

// newTestAPI builds a full API with an in-memory store, real AuthManager and
// real Service so handler tests exercise the complete request path. The
// upstream sales endpoint is a local test server answering two rows.
func newTestAPI(t *testing.T) *API {
	t.Helper()
	return newTestAPIWithUpstream(t, func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`[
			{"id":"g1","transdate":"2026-08-02 10:00:00"},
			{"id":"g2","transdate":"2026-08-15 09:00:00"}
		]`))
	})
}

func newTestAPIWithUpstream(t *testing.T, upstream http.HandlerFunc) *API {
	t.Helper()

	server := httptest.NewServer(upstream)
	t.Cleanup(server.Close)

	store := memory.NewSeeded()
	gg, err := ggsales.New(server.URL, "tester", "")
	if err != nil {
		t.Fatalf("gg client: %v", err)
	}
	svc := service.New(store, gg, cache.NoopReportCache{}, time.Minute)
	auth := NewAuthManager("0123456789abcdef0123456789abcdef", time.Hour, store)

	return New(svc, auth, "*")
}

func doJSON(t *testing.T, handler http.Handler, method, target string, payload any, headers map[string]string) *httptest.ResponseRecorder {
	t.Helper()

	var body *bytes.Reader
	if payload != nil {
		raw, err := json.Marshal(payload)
		if err != nil {
			t.Fatalf("marshal payload: %v", err)
		}
		body = bytes.NewReader(raw)
	} else {
		body = bytes.NewReader(nil)
	}

	req := httptest.NewRequest(method, target, body)
	if payload != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	for key, value := range headers {
		req.Header.Set(key, value)
	}
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)
	return rec
}

func decodeBody(t *testing.T, rec *httptest.ResponseRecorder) map[string]any {
	t.Helper()
	var body map[string]any
	if err := json.NewDecoder(rec.Body).Decode(&body); err != nil {
		t.Fatalf("decode body: %v (raw: %s)", err, rec.Body.String())
	}
	return body
}

func loginToken(t *testing.T, handler http.Handler, username, password string) string {
	t.Helper()
	rec := doJSON(t, handler, http.MethodPost, "/api/auth/login", map[string]string{
		"username": username,
		"password": password,
	}, nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("login %s: expected 200, got %d (body: %s)", username, rec.Code, rec.Body.String())
	}
	body := decodeBody(t, rec)
	data, _ := body["data"].(map[string]any)
	token, _ := data["access_token"].(string)
	if token == "" {
		t.Fatalf("expected access_token, got %v", body)
	}
	return token
}

func TestHandleHealth(t *testing.T) {
	handler := newTestAPI(t).Handler()

	rec := doJSON(t, handler, http.MethodGet, "/healthz", nil, nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}
	body := decodeBody(t, rec)
	if body["ok"] != true {
		t.Fatalf("expected ok:true, got %v", body)
	}
}

func TestHandleLogin_Success(t *testing.T) {
	handler := newTestAPI(t).Handler()

	rec := doJSON(t, handler, http.MethodPost, "/api/auth/login", map[string]string{
		"username": "admin",
		"password": "admin123",
	}, nil)

	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d (body: %s)", rec.Code, rec.Body.String())
	}
	body := decodeBody(t, rec)
	if body["success"] != true {
		t.Fatalf("expected success envelope, got %v", body)
	}
	data, _ := body["data"].(map[string]any)
	if data["access_token"] == "" || data["access_token"] == nil {
		t.Fatalf("expected access_token, got %v", body)
	}
	if data["role"] != "admin" {
		t.Fatalf("expected admin role, got %v", data["role"])
	}
}

func TestHandleLogin_InvalidCredentials(t *testing.T) {
	handler := newTestAPI(t).Handler()

	rec := doJSON(t, handler, http.MethodPost, "/api/auth/login", map[string]string{
		"username": "admin",
		"password": "wrongpassword",
	}, nil)

	if rec.Code != http.StatusUnauthorized {
		t.Fatalf("expected 401, got %d (body: %s)", rec.Code, rec.Body.String())
	}
	body := decodeBody(t, rec)
	if body["success"] != false {
		t.Fatalf("expected failure envelope, got %v", body)
	}
}

func TestHandleLogin_RateLimit(t *testing.T) {
	handler := newTestAPI(t).Handler()

	// The loginLimiter allows 5 attempts per minute.
	// Fire 6 requests from the same "IP" (httptest uses RemoteAddr "192.0.2.1:1234").
	payload, _ := json.Marshal(map[string]string{
		"username": "admin",
		"password": "badpass",
	})

	var lastCode int
	for i := 0; i < 6; i++ {
		req := httptest.NewRequest(http.MethodPost, "/api/auth/login", bytes.NewReader(payload))
		req.Header.Set("Content-Type", "application/json")
		req.RemoteAddr = "192.0.2.1:1234"
		rec := httptest.NewRecorder()
		handler.ServeHTTP(rec, req)
		lastCode = rec.Code
	}

	if lastCode != http.StatusTooManyRequests {
		t.Fatalf("expected 429 after 6 attempts, got %d", lastCode)
	}
}

func TestHandleAddDailySale_Success(t *testing.T) {
	handler := newTestAPI(t).Handler()

	rec := doJSON(t, handler, http.MethodPost, "/api/daily-sales/add", map[string]any{
		"date":              "2026-08-31",
		"pof_number":        "POF-9001",
		"member_name":       "A. Cruz",
		"username":          "acruz",
		"member_type":       "DISTRIBUTOR",
		"package_type":      "SILVER",
		"is_to_blister":     true,
		"quantity":          1,
		"primary_payment":   map[string]any{"mode": "CASH", "type": "N/A"},
		"secondary_payment": map[string]any{"mode": "N/A", "type": "N/A"},
	}, nil)

	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d (body: %s)", rec.Code, rec.Body.String())
	}
	body := decodeBody(t, rec)
	if body["success"] != true {
		t.Fatalf("expected success envelope, got %v", body)
	}
}

func TestHandleAddDailySale_InvalidInput(t *testing.T) {
	handler := newTestAPI(t).Handler()

	rec := doJSON(t, handler, http.MethodPost, "/api/daily-sales/add", map[string]any{
		"date":              "2026-08-31",
		"pof_number":        "POF-9002",
		"member_name":       "A. Cruz",
		"member_type":       "DISTRIBUTOR",
		"package_type":      "SILVER",
		"quantity":          1,
		"primary_payment":   map[string]any{"mode": "CASH", "type": "N/A"},
		"secondary_payment": map[string]any{"mode": "CASH", "type": "N/A"},
	}, nil)

	if rec.Code != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d (body: %s)", rec.Code, rec.Body.String())
	}
	body := decodeBody(t, rec)
	message, _ := body["message"].(string)
	if message == "" {
		t.Fatalf("expected a message, got %v", body)
	}
}

func TestHandleAddDailySale_UnknownField(t *testing.T) {
	handler := newTestAPI(t).Handler()

	rec := doJSON(t, handler, http.MethodPost, "/api/daily-sales/add", map[string]any{
		"pof_number": "POF-9003",
		"surprise":   true,
	}, nil)

	if rec.Code != http.StatusBadRequest {
		t.Fatalf("expected 400 for unknown field, got %d", rec.Code)
	}
}

func TestHandleRemovePOF_MissingNumber(t *testing.T) {
	handler := newTestAPI(t).Handler()

	rec := doJSON(t, handler, http.MethodPost, "/api/daily-sales/remove-pof", map[string]any{
		"pof_number": "",
	}, nil)

	if rec.Code != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d (body: %s)", rec.Code, rec.Body.String())
	}
}

func TestHandleDailySales_Report(t *testing.T) {
	handler := newTestAPI(t).Handler()

	rec := doJSON(t, handler, http.MethodGet, "/api/daily-sales/today?dateFrom=2026-01-01&dateTo=2026-12-31", nil, nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d (body: %s)", rec.Code, rec.Body.String())
	}
	body := decodeBody(t, rec)
	data, _ := body["data"].(map[string]any)
	if _, ok := data["rows"]; !ok {
		t.Fatalf("expected rows in report, got %v", data)
	}
	totals, _ := data["totals"].(map[string]any)
	if totals["totalTransactions"] == nil {
		t.Fatalf("expected totals, got %v", data)
	}
}

func TestHandleDailySales_BadMode(t *testing.T) {
	handler := newTestAPI(t).Handler()

	rec := doJSON(t, handler, http.MethodGet, "/api/daily-sales/today?modeOfPayment=BARTER", nil, nil)
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d", rec.Code)
	}
}

func TestHandlePerformance(t *testing.T) {
	handler := newTestAPI(t).Handler()

	rec := doJSON(t, handler, http.MethodGet, "/api/sales/performance?dateFrom=2026-08-01&dateTo=2026-08-31", nil, nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d (body: %s)", rec.Code, rec.Body.String())
	}
	body := decodeBody(t, rec)
	data, _ := body["data"].(map[string]any)
	if _, ok := data["agents"]; !ok {
		t.Fatalf("expected normalized dataset under data, got %v", body)
	}
	if _, ok := body["rawData"]; !ok {
		t.Fatalf("expected top-level rawData, got %v", body)
	}
}

func TestHandleSync_Success(t *testing.T) {
	handler := newTestAPI(t).Handler()

	rec := doJSON(t, handler, http.MethodPost, "/api/sales/sync", map[string]string{
		"dateFrom": "2026-08-01",
		"dateTo":   "2026-08-31",
	}, nil)

	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d (body: %s)", rec.Code, rec.Body.String())
	}
	body := decodeBody(t, rec)
	if body["success"] != true {
		t.Fatalf("expected success, got %v", body)
	}
	if body["message"] != "Sync complete" {
		t.Fatalf("expected sync message, got %v", body)
	}
	if body["ggFetched"] != float64(2) {
		t.Fatalf("expected ggFetched 2, got %v", body)
	}
	if body["upsertRangeCount"] != float64(2) {
		t.Fatalf("expected upsertRangeCount 2, got %v", body)
	}
}

func TestHandleSync_EmptyBodyDefaultsWindow(t *testing.T) {
	handler := newTestAPI(t).Handler()

	req := httptest.NewRequest(http.MethodPost, "/api/sales/sync", nil)
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200 for body-less sync, got %d (body: %s)", rec.Code, rec.Body.String())
	}
	body := decodeBody(t, rec)
	if body["success"] != true {
		t.Fatalf("expected success, got %v", body)
	}
	if body["dateFrom"] == "" || body["dateTo"] == "" {
		t.Fatalf("expected defaulted window, got %v", body)
	}
}

func TestHandleSync_MalformedBodyDefaultsWindow(t *testing.T) {
	handler := newTestAPI(t).Handler()

	req := httptest.NewRequest(http.MethodPost, "/api/sales/sync", bytes.NewReader([]byte("{not json")))
	req.Header.Set("Content-Type", "application/json")
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200 for malformed sync body, got %d (body: %s)", rec.Code, rec.Body.String())
	}
}

func TestHandleRemovePOF_CamelCaseKey(t *testing.T) {
	handler := newTestAPI(t).Handler()

	rec := doJSON(t, handler, http.MethodPost, "/api/daily-sales/remove-pof", map[string]any{
		"pofNumber": "POF-1001",
	}, nil)

	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d (body: %s)", rec.Code, rec.Body.String())
	}
}

func TestHandleSync_InvertedRange(t *testing.T) {
	handler := newTestAPI(t).Handler()

	rec := doJSON(t, handler, http.MethodPost, "/api/sales/sync", map[string]string{
		"dateFrom": "2026-08-31",
		"dateTo":   "2026-08-01",
	}, nil)

	if rec.Code != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d (body: %s)", rec.Code, rec.Body.String())
	}
}

func TestHandleSync_UpstreamFailure(t *testing.T) {
	handler := newTestAPIWithUpstream(t, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusForbidden)
		_, _ = w.Write([]byte("apikey expired"))
	}).Handler()

	rec := doJSON(t, handler, http.MethodPost, "/api/sales/sync", map[string]string{
		"dateFrom": "2026-08-01",
		"dateTo":   "2026-08-31",
	}, nil)

	if rec.Code != http.StatusBadGateway {
		t.Fatalf("expected 502, got %d (body: %s)", rec.Code, rec.Body.String())
	}
	body := decodeBody(t, rec)
	detail, _ := body["error"].(map[string]any)
	if detail["status"] != float64(http.StatusForbidden) {
		t.Fatalf("expected upstream status in detail, got %v", body)
	}
}

func TestHandlePaymentTypeOptions(t *testing.T) {
	handler := newTestAPI(t).Handler()

	rec := doJSON(t, handler, http.MethodGet, "/api/payments/type-options?mode=BANK", nil, nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d (body: %s)", rec.Code, rec.Body.String())
	}
	body := decodeBody(t, rec)
	data, _ := body["data"].(map[string]any)
	options, _ := data["options"].([]any)
	if len(options) != 4 {
		t.Fatalf("expected 4 bank options, got %v", data)
	}
}

func TestHandleEncoders_RequiresAuth(t *testing.T) {
	handler := newTestAPI(t).Handler()

	rec := doJSON(t, handler, http.MethodGet, "/api/users/encoders", nil, nil)
	if rec.Code != http.StatusUnauthorized {
		t.Fatalf("expected 401 without token, got %d", rec.Code)
	}
}

func TestHandleEncoders_ForbiddenForEncoderRole(t *testing.T) {
	handler := newTestAPI(t).Handler()
	token := loginToken(t, handler, "encoder", "encoder123")

	rec := doJSON(t, handler, http.MethodGet, "/api/users/encoders", nil, map[string]string{
		"Authorization": "Bearer " + token,
	})
	if rec.Code != http.StatusForbidden {
		t.Fatalf("expected 403 for encoder role, got %d", rec.Code)
	}
}

func TestHandleEncoders_AdminCreateAndList(t *testing.T) {
	handler := newTestAPI(t).Handler()
	token := loginToken(t, handler, "admin", "admin123")
	auth := map[string]string{"Authorization": "Bearer " + token}

	rec := doJSON(t, handler, http.MethodPost, "/api/users/encoders", map[string]string{
		"username": "newencoder",
		"password": "secret99",
	}, auth)
	if rec.Code != http.StatusCreated {
		t.Fatalf("expected 201, got %d (body: %s)", rec.Code, rec.Body.String())
	}

	rec = doJSON(t, handler, http.MethodGet, "/api/users/encoders", nil, auth)
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}
	body := decodeBody(t, rec)
	data, _ := body["data"].(map[string]any)
	encoders, _ := data["encoders"].([]any)
	found := false
	for _, item := range encoders {
		encoder, _ := item.(map[string]any)
		if encoder["username"] == "newencoder" {
			found = true
		}
	}
	if !found {
		t.Fatalf("expected newencoder in list, got %v", data)
	}

	// The fresh encoder can log in right away.
	loginToken(t, handler, "newencoder", "secret99")
}

func TestMethodNotAllowed(t *testing.T) {
	handler := newTestAPI(t).Handler()

	rec := doJSON(t, handler, http.MethodGet, "/api/daily-sales/add", nil, nil)
	if rec.Code != http.StatusMethodNotAllowed {
		t.Fatalf("expected 405, got %d", rec.Code)
	}
}

func TestOptionsPreflight(t *testing.T) {
	handler := newTestAPI(t).Handler()

	req := httptest.NewRequest(http.MethodOptions, "/api/daily-sales/add", nil)
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)

	if rec.Code != http.StatusNoContent {
		t.Fatalf("expected 204, got %d", rec.Code)
	}
	if rec.Header().Get("Access-Control-Allow-Origin") != "*" {
		t.Fatalf("expected CORS origin header, got %q", rec.Header().Get("Access-Control-Allow-Origin"))
	}
	if rec.Header().Get("X-Content-Type-Options") != "nosniff" {
		t.Fatalf("expected security headers on preflight")
	}
}
