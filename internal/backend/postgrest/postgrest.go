// Package postgrest talks to the managed backend over its REST surface:
// procedures via POST /rest/v1/rpc/<name>, tables via filtered selects.
// Error bodies are decoded into rpc.Error so the shape prober can see the
// backend's own code (PGRST202 on signature mismatch).
package postgrest

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"salesdesk/backend/internal/backend"
	"salesdesk/backend/internal/domain"
	"salesdesk/backend/internal/rpc"
)

type Client struct {
	baseURL    string
	serviceKey string
	http       *http.Client
}

func New(baseURL string, serviceKey string) *Client {
	return &Client{
		baseURL:    strings.TrimRight(baseURL, "/"),
		serviceKey: serviceKey,
		http:       &http.Client{Timeout: 15 * time.Second},
	}
}

func (c *Client) CallProc(ctx context.Context, procedure string, args rpc.Args) (json.RawMessage, *rpc.Error) {
	body, err := json.Marshal(args)
	if err != nil {
		return nil, &rpc.Error{Code: "RPC_ENCODE_ERROR", Message: err.Error()}
	}

	endpoint := fmt.Sprintf("%s/rest/v1/rpc/%s", c.baseURL, url.PathEscape(procedure))
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, bytes.NewReader(body))
	if err != nil {
		return nil, &rpc.Error{Code: "RPC_REQUEST_ERROR", Message: err.Error()}
	}
	c.setHeaders(req)
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, &rpc.Error{Code: "RPC_NETWORK_ERROR", Message: err.Error()}
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return nil, &rpc.Error{Code: "RPC_READ_ERROR", Message: err.Error()}
	}

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return nil, decodeError(resp.StatusCode, raw)
	}
	if len(raw) == 0 {
		return json.RawMessage("null"), nil
	}
	return json.RawMessage(raw), nil
}

// decodeError maps a REST error body {code, message, details, hint} onto
// rpc.Error, falling back to the HTTP status when the body is not JSON.
func decodeError(status int, raw []byte) *rpc.Error {
	var body struct {
		Code    string `json:"code"`
		Message string `json:"message"`
		Details string `json:"details"`
	}
	if err := json.Unmarshal(raw, &body); err == nil && body.Code != "" {
		return &rpc.Error{Code: body.Code, Message: body.Message, Details: body.Details}
	}

	snippet := string(raw)
	if len(snippet) > 500 {
		snippet = snippet[:500]
	}
	return &rpc.Error{
		Code:    "RPC_HTTP_" + strconv.Itoa(status),
		Message: fmt.Sprintf("backend returned HTTP %d", status),
		Details: snippet,
	}
}

func (c *Client) ListDailySales(ctx context.Context, dateFrom, dateTo, modeOfPayment string) ([]domain.DailySalesRow, error) {
	query := url.Values{}
	query.Set("select", strings.Join([]string{
		"daily_sales_id", "trans_date", "pof_number", "member_name", "username",
		"package_type", "bottle_count", "blister_count", "sales",
		"mode_of_payment", "payment_type", "is_new_member",
	}, ","))
	query.Add("trans_date", "gte."+dateFrom)
	query.Add("trans_date", "lte."+dateTo)
	query.Set("order", "trans_date.desc,daily_sales_id.desc")
	if modeOfPayment != "" && modeOfPayment != "ALL" {
		query.Set("mode_of_payment", "eq."+modeOfPayment)
	}

	raw, err := c.get(ctx, "/rest/v1/daily_sales?"+query.Encode())
	if err != nil {
		return nil, err
	}

	var rows []map[string]any
	if err := json.Unmarshal(raw, &rows); err != nil {
		return nil, fmt.Errorf("decode daily_sales rows: %w", err)
	}

	normalized := make([]domain.DailySalesRow, 0, len(rows))
	for _, row := range rows {
		normalized = append(normalized, domain.NormalizeDailySalesRow(row))
	}
	return normalized, nil
}

// CountSalesAPIRange issues a head request with an exact count preference and
// reads the total off the Content-Range header ("0-24/137" or "*/137").
func (c *Client) CountSalesAPIRange(ctx context.Context, dateFrom, dateTo string) (int64, error) {
	query := url.Values{}
	query.Set("select", "id")
	query.Add("transdate", "gte."+dateFrom+" 00:00:00")
	query.Add("transdate", "lte."+dateTo+" 23:59:59")

	endpoint := c.baseURL + "/rest/v1/sales_api?" + query.Encode()
	req, err := http.NewRequestWithContext(ctx, http.MethodHead, endpoint, nil)
	if err != nil {
		return 0, err
	}
	c.setHeaders(req)
	req.Header.Set("Prefer", "count=exact")

	resp, err := c.http.Do(req)
	if err != nil {
		return 0, err
	}
	defer resp.Body.Close()
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return 0, fmt.Errorf("count query returned HTTP %d", resp.StatusCode)
	}

	contentRange := resp.Header.Get("Content-Range")
	idx := strings.LastIndex(contentRange, "/")
	if idx < 0 {
		return 0, fmt.Errorf("count query returned no Content-Range total")
	}
	total, err := strconv.ParseInt(contentRange[idx+1:], 10, 64)
	if err != nil {
		return 0, fmt.Errorf("parse Content-Range total %q: %w", contentRange, err)
	}
	return total, nil
}

func (c *Client) CreateUser(ctx context.Context, user domain.UserAccount) error {
	body, err := json.Marshal(map[string]any{
		"username":   user.Username,
		"password":   user.Password,
		"role":       user.Role,
		"active":     user.Active,
		"created_at": user.CreatedAt.UTC().Format(time.RFC3339),
	})
	if err != nil {
		return err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/rest/v1/app_users", bytes.NewReader(body))
	if err != nil {
		return err
	}
	c.setHeaders(req)
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Prefer", "return=minimal")

	resp, err := c.http.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return fmt.Errorf("create user returned HTTP %d", resp.StatusCode)
	}
	return nil
}

func (c *Client) ListUsers(ctx context.Context) ([]domain.UserAccount, error) {
	raw, err := c.get(ctx, "/rest/v1/app_users?select=username,password,role,active,created_at")
	if err != nil {
		return nil, err
	}

	var rows []struct {
		Username  string    `json:"username"`
		Password  string    `json:"password"`
		Role      string    `json:"role"`
		Active    bool      `json:"active"`
		CreatedAt time.Time `json:"created_at"`
	}
	if err := json.Unmarshal(raw, &rows); err != nil {
		return nil, fmt.Errorf("decode app_users rows: %w", err)
	}

	users := make([]domain.UserAccount, 0, len(rows))
	for _, row := range rows {
		users = append(users, domain.UserAccount{
			Username:  row.Username,
			Password:  row.Password,
			Role:      row.Role,
			Active:    row.Active,
			CreatedAt: row.CreatedAt,
		})
	}
	return users, nil
}

func (c *Client) UpdateUserPassword(ctx context.Context, username string, password string) error {
	body, err := json.Marshal(map[string]any{"password": password})
	if err != nil {
		return err
	}

	endpoint := c.baseURL + "/rest/v1/app_users?username=eq." + url.QueryEscape(username)
	req, err := http.NewRequestWithContext(ctx, http.MethodPatch, endpoint, bytes.NewReader(body))
	if err != nil {
		return err
	}
	c.setHeaders(req)
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Prefer", "return=minimal")

	resp, err := c.http.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	if resp.StatusCode == http.StatusNotFound {
		return backend.ErrNotFound
	}
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return fmt.Errorf("update user password returned HTTP %d", resp.StatusCode)
	}
	return nil
}

func (c *Client) get(ctx context.Context, path string) (json.RawMessage, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+path, nil)
	if err != nil {
		return nil, err
	}
	c.setHeaders(req)

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(io.LimitReader(resp.Body, 4<<20))
	if err != nil {
		return nil, err
	}
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return nil, decodeError(resp.StatusCode, raw)
	}
	return json.RawMessage(raw), nil
}

func (c *Client) setHeaders(req *http.Request) {
	req.Header.Set("apikey", c.serviceKey)
	req.Header.Set("Authorization", "Bearer "+c.serviceKey)
}
