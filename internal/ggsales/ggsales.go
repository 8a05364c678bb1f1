// Package ggsales fetches raw sales rows from the external GG endpoint.
// All date math runs on a fixed reference wall clock, Manila by default,
// because the upstream keys both its data and its API key on that timezone.
package ggsales

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"regexp"
	"strings"
	"time"
)

const manilaZone = "Asia/Manila"

var isoDatePattern = regexp.MustCompile(`^\d{4}-\d{2}-\d{2}$`)

// UpstreamError carries enough of a failed upstream exchange to diagnose
// it from a log line: the HTTP status and a bounded body snippet, or the
// top-level keys of a JSON body that did not contain a usable row list.
type UpstreamError struct {
	Status       int
	Message      string
	BodySnippet  string
	TopLevelKeys []string
}

func (e *UpstreamError) Error() string {
	if len(e.TopLevelKeys) > 0 {
		return fmt.Sprintf("%s (top-level keys: %s)", e.Message, strings.Join(e.TopLevelKeys, ","))
	}
	if e.Status > 0 {
		return fmt.Sprintf("%s (HTTP %d)", e.Message, e.Status)
	}
	return e.Message
}

type Client struct {
	baseURL string
	user    string
	http    *http.Client
	loc     *time.Location
	now     func() time.Time
}

// New builds a client for the endpoint. An empty timezone selects the
// Manila default.
func New(baseURL string, user string, timezone string) (*Client, error) {
	if timezone == "" {
		timezone = manilaZone
	}
	loc, err := time.LoadLocation(timezone)
	if err != nil {
		return nil, fmt.Errorf("load %s timezone: %w", timezone, err)
	}
	return &Client{
		baseURL: strings.TrimRight(baseURL, "/"),
		user:    user,
		http:    &http.Client{Timeout: 30 * time.Second},
		loc:     loc,
		now:     time.Now,
	}, nil
}

// SetNow overrides the clock. Tests only.
func (c *Client) SetNow(now func() time.Time) {
	c.now = now
}

// APIKey derives the upstream key from the current Manila wall clock:
// two-digit hour concatenated with the compact date, e.g. "0920260831".
// The key is valid for the hour it was minted in.
func (c *Client) APIKey() string {
	now := c.now().In(c.loc)
	return now.Format("15") + now.Format("20060102")
}

// DefaultRange returns the first day of the current Manila month through
// today, both as ISO dates.
func (c *Client) DefaultRange() (string, string) {
	now := c.now().In(c.loc)
	first := time.Date(now.Year(), now.Month(), 1, 0, 0, 0, 0, c.loc)
	return first.Format("2006-01-02"), now.Format("2006-01-02")
}

// ValidateDate checks that the value is a real calendar date in ISO form.
func ValidateDate(value string) error {
	if !isoDatePattern.MatchString(value) {
		return fmt.Errorf("date %q is not in YYYY-MM-DD form", value)
	}
	if _, err := time.Parse("2006-01-02", value); err != nil {
		return fmt.Errorf("date %q is not a valid calendar date", value)
	}
	return nil
}

// CompactDate strips the dashes from an ISO date for the upstream df/dt
// query parameters.
func CompactDate(value string) string {
	return strings.ReplaceAll(value, "-", "")
}

// Fetch pulls the raw sales rows for [dateFrom, dateTo]. Both bounds are
// ISO dates already validated by the caller. Non-2xx responses and bodies
// without a recognizable row list surface as *UpstreamError.
func (c *Client) Fetch(ctx context.Context, dateFrom string, dateTo string) ([]map[string]any, error) {
	query := url.Values{}
	query.Set("user", c.user)
	query.Set("apikey", c.APIKey())
	query.Set("df", CompactDate(dateFrom))
	query.Set("dt", CompactDate(dateTo))

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+"?"+query.Encode(), nil)
	if err != nil {
		return nil, err
	}
	req.Header.Set("Accept", "application/json")

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, &UpstreamError{Message: fmt.Sprintf("sales endpoint unreachable: %v", err)}
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(io.LimitReader(resp.Body, 16<<20))
	if err != nil {
		return nil, &UpstreamError{Status: resp.StatusCode, Message: fmt.Sprintf("read sales response: %v", err)}
	}

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return nil, &UpstreamError{
			Status:      resp.StatusCode,
			Message:     fmt.Sprintf("sales endpoint returned HTTP %d", resp.StatusCode),
			BodySnippet: snippet(raw),
		}
	}

	return decodeRows(raw)
}

// decodeRows accepts either a bare JSON array or an object wrapping the
// array under a conventional key (data, rows, result, records, sales).
func decodeRows(raw []byte) ([]map[string]any, error) {
	var direct []map[string]any
	if err := json.Unmarshal(raw, &direct); err == nil {
		return direct, nil
	}

	var wrapped map[string]json.RawMessage
	if err := json.Unmarshal(raw, &wrapped); err != nil {
		return nil, &UpstreamError{
			Message:     "sales endpoint returned a non-JSON body",
			BodySnippet: snippet(raw),
		}
	}

	for _, key := range []string{"data", "rows", "result", "records", "sales"} {
		inner, ok := wrapped[key]
		if !ok {
			continue
		}
		var rows []map[string]any
		if err := json.Unmarshal(inner, &rows); err == nil {
			return rows, nil
		}
	}

	keys := make([]string, 0, len(wrapped))
	for key := range wrapped {
		keys = append(keys, key)
	}
	return nil, &UpstreamError{
		Message:      "sales endpoint response has no row list",
		TopLevelKeys: keys,
	}
}

func snippet(raw []byte) string {
	if len(raw) > 500 {
		raw = raw[:500]
	}
	return string(raw)
}
