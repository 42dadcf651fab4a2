// Package transport implements the authenticated HTTP client for the shop
// API: cursor-paginated entity streams, batch ticket patching, and the
// sealed registration listings. Request signing, token refresh and
// certificate handling are out of scope; the client carries a bearer token
// and classifies failures so callers can tell "server said no" apart from
// "server unreachable".
package transport

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

	"github.com/venuekit/turnstile/internal/types"
)

// DefaultPageLimit is the page size requested when the caller passes 0.
const DefaultPageLimit = 100

// Client is the shop API client. Safe for concurrent use.
type Client struct {
	baseURL string
	token   string
	http    *http.Client
}

// New creates a client for the API at baseURL authenticating with token.
// httpClient may be nil, in which case a 30s-timeout client is used.
func New(baseURL, token string, httpClient *http.Client) *Client {
	baseURL = strings.TrimRight(strings.TrimSpace(baseURL), "/")
	if httpClient == nil {
		httpClient = &http.Client{Timeout: 30 * time.Second}
	}
	return &Client{
		baseURL: baseURL,
		token:   strings.TrimSpace(token),
		http:    httpClient,
	}
}

// FetchOrders requests one page of the orders stream after the filter
// position. A zero filter requests the stream from its origin.
func (c *Client) FetchOrders(ctx context.Context, shop string, filter types.CursorFilter, limit int) (types.OrdersPage, error) {
	var page types.OrdersPage
	path := fmt.Sprintf("/api/shops/%s/orders", url.PathEscape(shop))
	if err := c.doJSON(ctx, http.MethodGet, path, pageQuery(filter, limit), nil, nil, &page); err != nil {
		return types.OrdersPage{}, fmt.Errorf("fetch orders page: %w", err)
	}
	return page, nil
}

// FetchTickets requests one page of the tickets stream after the filter
// position.
func (c *Client) FetchTickets(ctx context.Context, shop string, filter types.CursorFilter, limit int) (types.TicketsPage, error) {
	var page types.TicketsPage
	path := fmt.Sprintf("/api/shops/%s/tickets", url.PathEscape(shop))
	if err := c.doJSON(ctx, http.MethodGet, path, pageQuery(filter, limit), nil, nil, &page); err != nil {
		return types.TicketsPage{}, fmt.Errorf("fetch tickets page: %w", err)
	}
	return page, nil
}

// SubmitTicketPatches submits a batch of ticket patches. The response holds
// the full authoritative ticket for every patch the server applied. The
// idempotency key lets the server replay a previous answer if the same batch
// arrives twice.
func (c *Client) SubmitTicketPatches(ctx context.Context, shop string, patches []types.TicketPatch, idempotencyKey string) (types.PatchResponse, error) {
	var resp types.PatchResponse
	path := fmt.Sprintf("/api/shops/%s/tickets", url.PathEscape(shop))
	headers := map[string]string{}
	if idempotencyKey != "" {
		headers["Idempotency-Key"] = idempotencyKey
	}
	body := types.PatchRequest{Patches: patches}
	if err := c.doJSON(ctx, http.MethodPatch, path, nil, headers, body, &resp); err != nil {
		return types.PatchResponse{}, fmt.Errorf("submit ticket patches: %w", err)
	}
	return resp, nil
}

// FetchRegistrations lists the organization's sealed attendee registrations.
func (c *Client) FetchRegistrations(ctx context.Context, org string) ([]types.SealedRegistration, error) {
	var list types.RegistrationList
	path := fmt.Sprintf("/api/orgs/%s/registrations", url.PathEscape(org))
	if err := c.doJSON(ctx, http.MethodGet, path, nil, nil, nil, &list); err != nil {
		return nil, fmt.Errorf("fetch registrations: %w", err)
	}
	return list.Results, nil
}

// FetchGroups lists the organization's ticket groups.
func (c *Client) FetchGroups(ctx context.Context, org string) ([]types.Group, error) {
	var list types.GroupList
	path := fmt.Sprintf("/api/orgs/%s/groups", url.PathEscape(org))
	if err := c.doJSON(ctx, http.MethodGet, path, nil, nil, nil, &list); err != nil {
		return nil, fmt.Errorf("fetch groups: %w", err)
	}
	return list.Results, nil
}

// pageQuery builds the pagination query for a cursor filter.
func pageQuery(filter types.CursorFilter, limit int) url.Values {
	q := url.Values{}
	if filter.UpdatedSince != nil {
		q.Set("updatedSince", filter.UpdatedSince.UTC().Format(time.RFC3339Nano))
	}
	if filter.TieBreak != "" {
		q.Set("tieBreak", filter.TieBreak)
	}
	if limit <= 0 {
		limit = DefaultPageLimit
	}
	q.Set("limit", strconv.Itoa(limit))
	return q
}

// doJSON performs one authenticated request and decodes a JSON response
// into out. Non-2xx statuses become *HTTPError with the problem detail when
// the server sent one; transport-level failures pass through unwrapped so
// IsConnectivity can classify them.
func (c *Client) doJSON(ctx context.Context, method, path string, query url.Values, headers map[string]string, body, out any) error {
	var reqBody io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("encode request body: %w", err)
		}
		reqBody = bytes.NewReader(data)
	}

	endpoint := c.baseURL + path
	if len(query) > 0 {
		endpoint += "?" + query.Encode()
	}

	req, err := http.NewRequestWithContext(ctx, method, endpoint, reqBody)
	if err != nil {
		return fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+c.token)
	req.Header.Set("Accept", "application/json")
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	for k, v := range headers {
		req.Header.Set(k, v)
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	payload, err := io.ReadAll(io.LimitReader(resp.Body, 10<<20))
	if err != nil {
		return fmt.Errorf("read response: %w", err)
	}

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		var problem struct {
			Detail string `json:"detail"`
		}
		_ = json.Unmarshal(payload, &problem)
		return &HTTPError{StatusCode: resp.StatusCode, Detail: problem.Detail}
	}

	if out == nil || len(payload) == 0 {
		return nil
	}
	if err := json.Unmarshal(payload, out); err != nil {
		return fmt.Errorf("decode response: %w", err)
	}
	return nil
}
