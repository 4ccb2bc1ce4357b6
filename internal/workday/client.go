// Package workday talks to the Workday REST API and runs the OAuth
// authorization-code flow used to obtain access credentials.
package workday

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptrace"
	"net/url"
	"strings"
	"sync/atomic"
	"time"
)

// submitActionID is the business-process action Workday expects on
// requestTimeOff ("Submit").
const submitActionID = "d9e4223e446c11de98360015c5e6daf6"

const maxErrorBody = 4 << 10

// APIError is a non-2xx answer from Workday.
type APIError struct {
	Method     string
	URL        string
	StatusCode int
	Body       string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("workday %s %s: status %d: %s", e.Method, e.URL, e.StatusCode, e.Body)
}

// IsAuthError reports whether err is a 401 or 403 from Workday.
func IsAuthError(err error) bool {
	var apiErr *APIError
	if !errors.As(err, &apiErr) {
		return false
	}
	return apiErr.StatusCode == http.StatusUnauthorized || apiErr.StatusCode == http.StatusForbidden
}

// TransportError is a request that got no HTTP answer. Sent is true when the
// request was fully written before the failure, so Workday may have acted on it.
type TransportError struct {
	Method string
	URL    string
	Sent   bool
	Err    error
}

func (e *TransportError) Error() string {
	state := "before send"
	if e.Sent {
		state = "after send"
	}
	return fmt.Sprintf("workday %s %s failed %s: %v", e.Method, e.URL, state, e.Err)
}

func (e *TransportError) Unwrap() error { return e.Err }

// ResponseError is a 2xx answer whose body could not be read or decoded.
// Workday accepted the request; what it recorded is unknown.
type ResponseError struct {
	Method     string
	URL        string
	StatusCode int
	Err        error
}

func (e *ResponseError) Error() string {
	return fmt.Sprintf("workday %s %s: status %d: unreadable response: %v", e.Method, e.URL, e.StatusCode, e.Err)
}

func (e *ResponseError) Unwrap() error { return e.Err }

// IsUncertain reports whether err leaves the outcome of a write unknown: the
// request was sent but no answer came back, the answer was a 2xx that could
// not be decoded, or a gateway in front of Workday gave up waiting.
func IsUncertain(err error) bool {
	var te *TransportError
	if errors.As(err, &te) {
		return te.Sent
	}
	var re *ResponseError
	if errors.As(err, &re) {
		return true
	}
	var apiErr *APIError
	if errors.As(err, &apiErr) {
		return apiErr.StatusCode == http.StatusBadGateway || apiErr.StatusCode == http.StatusGatewayTimeout
	}
	return false
}

// Client is a thin Workday REST client. Every call takes the bearer token
// explicitly so the caller decides when to refresh it.
type Client struct {
	baseURL string
	tenant  string
	http    *http.Client
	logger  *slog.Logger
}

// NewClient creates a client for baseURL (for example https://wd2-impl-services1.workday.com)
// and tenant. A nil httpClient gets a 30 second timeout.
func NewClient(baseURL, tenant string, httpClient *http.Client, logger *slog.Logger) *Client {
	if httpClient == nil {
		httpClient = &http.Client{Timeout: 30 * time.Second}
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Client{
		baseURL: strings.TrimRight(baseURL, "/"),
		tenant:  tenant,
		http:    httpClient,
		logger:  logger,
	}
}

func (c *Client) staffing(path string) string {
	return fmt.Sprintf("%s/api/staffing/v7/%s/%s", c.baseURL, c.tenant, path)
}

func (c *Client) person(path string) string {
	return fmt.Sprintf("%s/api/person/v4/%s/%s", c.baseURL, c.tenant, path)
}

func (c *Client) absence(path string) string {
	return fmt.Sprintf("%s/api/absenceManagement/v3/%s/%s", c.baseURL, c.tenant, path)
}

// ValidTimeOffDates asks Workday which of dates can be booked as typeID.
func (c *Client) ValidTimeOffDates(ctx context.Context, token, workerID, typeID string, dates []string) (map[string]any, error) {
	q := url.Values{}
	q.Set("timeOff", typeID)
	for _, d := range dates {
		q.Add("date", d)
	}
	endpoint := c.absence("workers/"+url.PathEscape(workerID)+"/validTimeOffDates") + "?" + q.Encode()

	var out map[string]any
	if err := c.getJSON(ctx, token, endpoint, &out); err != nil {
		return nil, err
	}
	return out, nil
}

// TimeOffRequest describes a contiguous leave request.
type TimeOffRequest struct {
	TypeID      string
	StartDate   string
	EndDate     string
	HoursPerDay float64
	Comment     string
}

type timeOffDay struct {
	TimeOffType   idRef   `json:"timeOffType"`
	Date          string  `json:"date"`
	DailyQuantity float64 `json:"dailyQuantity"`
	Comment       string  `json:"comment,omitempty"`
}

type idRef struct {
	ID string `json:"id"`
}

type timeOffPayload struct {
	Days                      []timeOffDay `json:"days"`
	BusinessProcessParameters struct {
		Action idRef `json:"action"`
	} `json:"businessProcessParameters"`
}

// Days expands the request into one entry per calendar day.
func (r TimeOffRequest) Days() ([]string, error) {
	start, err := time.Parse(time.DateOnly, r.StartDate)
	if err != nil {
		return nil, fmt.Errorf("invalid start_date %q: %w", r.StartDate, err)
	}
	end, err := time.Parse(time.DateOnly, r.EndDate)
	if err != nil {
		return nil, fmt.Errorf("invalid end_date %q: %w", r.EndDate, err)
	}
	if end.Before(start) {
		return nil, fmt.Errorf("end_date %s is before start_date %s", r.EndDate, r.StartDate)
	}
	var days []string
	for d := start; !d.After(end); d = d.AddDate(0, 0, 1) {
		days = append(days, d.Format(time.DateOnly))
	}
	return days, nil
}

// RequestTimeOff submits the request and returns Workday's response body.
// A *TransportError with Sent set means the request may have been recorded.
func (c *Client) RequestTimeOff(ctx context.Context, token, workerID string, req TimeOffRequest) (map[string]any, error) {
	days, err := req.Days()
	if err != nil {
		return nil, err
	}
	var payload timeOffPayload
	for _, d := range days {
		payload.Days = append(payload.Days, timeOffDay{
			TimeOffType:   idRef{ID: req.TypeID},
			Date:          d,
			DailyQuantity: req.HoursPerDay,
			Comment:       req.Comment,
		})
	}
	payload.BusinessProcessParameters.Action.ID = submitActionID

	body, err := json.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("encode time off payload: %w", err)
	}

	endpoint := c.absence("workers/" + url.PathEscape(workerID) + "/requestTimeOff")
	var out map[string]any
	if err := c.do(ctx, http.MethodPost, token, endpoint, body, &out); err != nil {
		return nil, err
	}
	return out, nil
}

func (c *Client) getJSON(ctx context.Context, token, endpoint string, out any) error {
	return c.do(ctx, http.MethodGet, token, endpoint, nil, out)
}

func (c *Client) do(ctx context.Context, method, token, endpoint string, body []byte, out any) error {
	// WroteRequest fires on a transport goroutine.
	var sent atomic.Bool
	trace := &httptrace.ClientTrace{
		WroteRequest: func(info httptrace.WroteRequestInfo) {
			if info.Err == nil {
				sent.Store(true)
			}
		},
	}
	ctx = httptrace.WithClientTrace(ctx, trace)

	var reader io.Reader
	if body != nil {
		reader = bytes.NewReader(body)
	}
	req, err := http.NewRequestWithContext(ctx, method, endpoint, reader)
	if err != nil {
		return fmt.Errorf("build workday request: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+token)
	req.Header.Set("Accept", "application/json")
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	start := time.Now()
	resp, err := c.http.Do(req)
	if err != nil {
		return &TransportError{Method: method, URL: redactQuery(endpoint), Sent: sent.Load(), Err: err}
	}
	defer func() { _ = resp.Body.Close() }()

	c.logger.Debug("Workday request", "method", method, "url", redactQuery(endpoint), "status", resp.StatusCode, "duration", time.Since(start))

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		msg, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorBody))
		return &APIError{Method: method, URL: redactQuery(endpoint), StatusCode: resp.StatusCode, Body: strings.TrimSpace(string(msg))}
	}
	if out == nil {
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil && !errors.Is(err, io.EOF) {
		return &ResponseError{Method: method, URL: redactQuery(endpoint), StatusCode: resp.StatusCode, Err: err}
	}
	return nil
}

func redactQuery(endpoint string) string {
	if i := strings.IndexByte(endpoint, '?'); i >= 0 {
		return endpoint[:i]
	}
	return endpoint
}
