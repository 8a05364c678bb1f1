package httpapi

import (
	"encoding/json"
	"errors"
	"log"
	"net/http"
	"net/netip"
	"strings"
	"sync"
	"time"

	"salesdesk/backend/internal/domain"
	"salesdesk/backend/internal/ggsales"
	"salesdesk/backend/internal/rpc"
	"salesdesk/backend/internal/service"
)

type API struct {
	service       *service.Service
	auth          *AuthManager
	allowedOrigin string
	loginLimiter  *attemptLimiter
}

func New(svc *service.Service, auth *AuthManager, allowedOrigin string) *API {
	return &API{
		service:       svc,
		auth:          auth,
		allowedOrigin: allowedOrigin,
		loginLimiter:  newAttemptLimiter(5, time.Minute),
	}
}

type attemptLimiter struct {
	mu      sync.Mutex
	max     int
	window  time.Duration
	entries map[string][]time.Time
}

func newAttemptLimiter(max int, window time.Duration) *attemptLimiter {
	if max < 1 {
		max = 1
	}
	if window <= 0 {
		window = time.Minute
	}
	return &attemptLimiter{max: max, window: window, entries: make(map[string][]time.Time)}
}

func (l *attemptLimiter) Allow(key string) bool {
	if l == nil {
		return true
	}
	now := time.Now()
	cutoff := now.Add(-l.window)

	l.mu.Lock()
	defer l.mu.Unlock()

	history := l.entries[key]
	kept := make([]time.Time, 0, len(history)+1)
	for _, ts := range history {
		if ts.After(cutoff) {
			kept = append(kept, ts)
		}
	}
	if len(kept) >= l.max {
		l.entries[key] = kept
		return false
	}
	kept = append(kept, now)
	l.entries[key] = kept
	return true
}

func clientKey(r *http.Request) string {
	host := strings.TrimSpace(r.RemoteAddr)
	if host == "" {
		return "unknown"
	}
	if addr, err := netip.ParseAddrPort(host); err == nil {
		return addr.Addr().String()
	}
	if idx := strings.LastIndex(host, ":"); idx > 0 {
		return host[:idx]
	}
	return host
}

func (a *API) Handler() http.Handler {
	mux := http.NewServeMux()

	mux.HandleFunc("/healthz", a.handleHealth)
	mux.HandleFunc("/api/auth/login", a.handleLogin)

	mux.HandleFunc("/api/daily-sales/add", a.handleAddDailySale)
	mux.HandleFunc("/api/daily-sales/modify", a.handleModifyDailySale)
	mux.HandleFunc("/api/daily-sales/remove-pof", a.handleRemovePOF)
	mux.HandleFunc("/api/daily-sales/today", a.handleDailySales)
	mux.HandleFunc("/api/sales/performance", a.handlePerformance)
	mux.HandleFunc("/api/sales/sync", a.handleSync)
	mux.HandleFunc("/api/payments/type-options", a.handlePaymentTypeOptions)

	mux.HandleFunc("/api/users/encoders", a.requireAuth(a.handleEncoders, "admin"))

	return a.withMiddleware(mux)
}

func (a *API) requireAuth(next http.HandlerFunc, roles ...string) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		authorization := strings.TrimSpace(r.Header.Get("Authorization"))
		if !strings.HasPrefix(strings.ToLower(authorization), "bearer ") {
			writeFail(w, http.StatusUnauthorized, "missing bearer token", nil)
			return
		}

		token := strings.TrimSpace(authorization[len("Bearer "):])
		actor, err := a.auth.ParseToken(token)
		if err != nil {
			writeFail(w, http.StatusUnauthorized, err.Error(), nil)
			return
		}

		if len(roles) > 0 && !isRoleAllowed(actor.Role, roles) {
			writeFail(w, http.StatusForbidden, "forbidden role", nil)
			return
		}

		next(w, r.WithContext(service.WithActor(r.Context(), actor)))
	}
}

func isRoleAllowed(role string, allowed []string) bool {
	for _, allow := range allowed {
		if role == allow {
			return true
		}
	}
	return false
}

func (a *API) handleHealth(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		writeMethodNotAllowed(w)
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"ok": true,
		"at": time.Now().UTC().Format(time.RFC3339),
	})
}

func (a *API) handleLogin(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		writeMethodNotAllowed(w)
		return
	}
	if !a.loginLimiter.Allow(clientKey(r)) {
		writeFail(w, http.StatusTooManyRequests, "too many login attempts", nil)
		return
	}

	var req domain.LoginRequest
	if err := decodeJSON(r, &req); err != nil {
		writeFail(w, http.StatusBadRequest, err.Error(), nil)
		return
	}

	resp, err := a.auth.Login(req)
	if err != nil {
		writeFail(w, http.StatusUnauthorized, err.Error(), nil)
		return
	}

	writeSuccess(w, http.StatusOK, resp)
}

func (a *API) handleAddDailySale(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		writeMethodNotAllowed(w)
		return
	}

	var entry domain.SaleEntry
	if err := decodeJSON(r, &entry); err != nil {
		writeFail(w, http.StatusBadRequest, err.Error(), nil)
		return
	}

	data, err := a.service.AddDailySale(r.Context(), entry)
	if err != nil {
		writeServiceError(w, err)
		return
	}
	writeSuccess(w, http.StatusOK, data)
}

func (a *API) handleModifyDailySale(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		writeMethodNotAllowed(w)
		return
	}

	var entry domain.SaleEntry
	if err := decodeJSON(r, &entry); err != nil {
		writeFail(w, http.StatusBadRequest, err.Error(), nil)
		return
	}

	data, err := a.service.ModifyDailySale(r.Context(), entry)
	if err != nil {
		writeServiceError(w, err)
		return
	}
	writeSuccess(w, http.StatusOK, data)
}

func (a *API) handleRemovePOF(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		writeMethodNotAllowed(w)
		return
	}

	// The field has been submitted under both spellings.
	var req struct {
		POFNumber      string `json:"pof_number"`
		POFNumberCamel string `json:"pofNumber"`
	}
	if err := decodeJSON(r, &req); err != nil {
		writeFail(w, http.StatusBadRequest, err.Error(), nil)
		return
	}
	pofNumber := req.POFNumber
	if pofNumber == "" {
		pofNumber = req.POFNumberCamel
	}

	data, err := a.service.RemovePOF(r.Context(), pofNumber)
	if err != nil {
		writeServiceError(w, err)
		return
	}
	writeSuccess(w, http.StatusOK, data)
}

func (a *API) handleDailySales(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		writeMethodNotAllowed(w)
		return
	}

	query := r.URL.Query()
	report, err := a.service.DailySales(r.Context(), query.Get("dateFrom"), query.Get("dateTo"), query.Get("modeOfPayment"))
	if err != nil {
		writeServiceError(w, err)
		return
	}
	writeSuccess(w, http.StatusOK, report)
}

func (a *API) handlePerformance(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		writeMethodNotAllowed(w)
		return
	}

	query := r.URL.Query()
	dataset, raw, err := a.service.Performance(r.Context(), query.Get("dateFrom"), query.Get("dateTo"))
	if err != nil {
		writeServiceError(w, err)
		return
	}

	// The raw procedure payload rides alongside the normalized dataset.
	writeJSON(w, http.StatusOK, map[string]any{
		"success": true,
		"data":    dataset,
		"rawData": raw,
	})
}

func (a *API) handleSync(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		writeMethodNotAllowed(w)
		return
	}

	// The body is optional. A missing or malformed body means a sync over
	// the default date window, so decode failures leave both fields blank.
	var req struct {
		DateFrom string `json:"dateFrom"`
		DateTo   string `json:"dateTo"`
	}
	if err := decodeJSON(r, &req); err != nil {
		req.DateFrom, req.DateTo = "", ""
	}

	result, err := a.service.Sync(r.Context(), req.DateFrom, req.DateTo)
	if err != nil {
		writeServiceError(w, err)
		return
	}

	// Sync keeps its historical flat response shape.
	writeJSON(w, http.StatusOK, map[string]any{
		"success":          true,
		"message":          "Sync complete",
		"ggFetched":        result.GGFetched,
		"dateFrom":         result.DateFrom,
		"dateTo":           result.DateTo,
		"upsertRangeCount": result.UpsertRangeCount,
	})
}

func (a *API) handlePaymentTypeOptions(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		writeMethodNotAllowed(w)
		return
	}

	options, err := a.service.PaymentTypeOptions(r.URL.Query().Get("mode"))
	if err != nil {
		writeServiceError(w, err)
		return
	}

	payload := make([]map[string]string, 0, len(options))
	for _, option := range options {
		payload = append(payload, map[string]string{"label": option.Label, "value": option.Value})
	}
	writeSuccess(w, http.StatusOK, map[string]any{"options": payload})
}

func (a *API) handleEncoders(w http.ResponseWriter, r *http.Request) {
	switch r.Method {
	case http.MethodGet:
		writeSuccess(w, http.StatusOK, map[string]any{"encoders": a.auth.ListEncoders()})
	case http.MethodPost:
		var req domain.EncoderCreateRequest
		if err := decodeJSON(r, &req); err != nil {
			writeFail(w, http.StatusBadRequest, err.Error(), nil)
			return
		}

		encoder, err := a.auth.CreateEncoder(req)
		if err != nil {
			writeFail(w, http.StatusBadRequest, err.Error(), nil)
			return
		}

		writeSuccess(w, http.StatusCreated, map[string]any{"encoder": encoder})
	default:
		writeMethodNotAllowed(w)
	}
}

func (a *API) withMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("X-Content-Type-Options", "nosniff")
		w.Header().Set("X-Frame-Options", "DENY")
		w.Header().Set("Referrer-Policy", "strict-origin-when-cross-origin")
		w.Header().Set("Cross-Origin-Opener-Policy", "same-origin")
		w.Header().Set("Access-Control-Allow-Origin", a.allowedOrigin)
		w.Header().Set("Access-Control-Allow-Headers", "Content-Type, Authorization")
		w.Header().Set("Access-Control-Allow-Methods", "GET,POST,OPTIONS")
		w.Header().Set("Vary", "Origin")

		if (r.Method == http.MethodPost || r.Method == http.MethodPatch || r.Method == http.MethodPut) && strings.Contains(strings.ToLower(r.Header.Get("Content-Type")), "application/json") {
			r.Body = http.MaxBytesReader(w, r.Body, 1<<20)
		}

		if r.Method == http.MethodOptions {
			w.WriteHeader(http.StatusNoContent)
			return
		}

		startedAt := time.Now()
		next.ServeHTTP(w, r)
		log.Printf("%s %s %s", r.Method, r.URL.Path, time.Since(startedAt))
	})
}

func decodeJSON(r *http.Request, dest any) error {
	decoder := json.NewDecoder(r.Body)
	decoder.DisallowUnknownFields()
	if err := decoder.Decode(dest); err != nil {
		return err
	}
	return nil
}

func writeMethodNotAllowed(w http.ResponseWriter) {
	writeFail(w, http.StatusMethodNotAllowed, "method not allowed", nil)
}

// writeServiceError maps service failures to the error envelope. Caller
// mistakes go out as 400 with the original message; upstream failures as 502
// with the diagnostic snippet; backend procedure errors as 500 carrying the
// backend's own code. Everything else is a generic 500.
func writeServiceError(w http.ResponseWriter, err error) {
	if errors.Is(err, service.ErrInvalidInput) {
		writeFail(w, http.StatusBadRequest, err.Error(), nil)
		return
	}

	var upstream *ggsales.UpstreamError
	if errors.As(err, &upstream) {
		detail := map[string]any{"status": upstream.Status}
		if upstream.BodySnippet != "" {
			detail["bodySnippet"] = upstream.BodySnippet
		}
		if len(upstream.TopLevelKeys) > 0 {
			detail["topLevelKeys"] = upstream.TopLevelKeys
		}
		writeFail(w, http.StatusBadGateway, upstream.Message, detail)
		return
	}

	var procErr *rpc.Error
	if errors.As(err, &procErr) {
		log.Printf("backend procedure error: %v", procErr)
		writeFail(w, http.StatusInternalServerError, "backend procedure failed", map[string]any{
			"code":    procErr.Code,
			"details": procErr.Details,
		})
		return
	}

	log.Printf("internal error: %v", err)
	writeFail(w, http.StatusInternalServerError, "internal server error", nil)
}

func writeFail(w http.ResponseWriter, status int, message string, detail map[string]any) {
	body := map[string]any{
		"success": false,
		"message": message,
	}
	if detail != nil {
		body["error"] = detail
	}
	writeJSON(w, status, body)
}

func writeSuccess(w http.ResponseWriter, status int, data any) {
	writeJSON(w, status, map[string]any{
		"success": true,
		"data":    data,
	})
}

func writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(payload)
}
