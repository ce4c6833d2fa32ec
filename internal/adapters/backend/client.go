// internal/adapters/backend/client.go
package backend

import (
	"bytes"
	"context"
	crand "crypto/rand"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"strings"
	"time"

	"golang.org/x/time/rate"

	"github.com/ArshadYameen/flex-living-dashboard/internal/adapters/observability"
	"github.com/ArshadYameen/flex-living-dashboard/internal/domain"
)

const service = "backend"

// Client talks to the review backend's JSON API rooted at base (e.g.
// http://localhost:8000/api).
type Client struct {
	base   string
	hc     *http.Client
	syncHC *http.Client // sync is long-running; it gets its own timeout
	rl     *rate.Limiter
}

func New(base string, rps int, timeout, syncTimeout time.Duration) (*Client, error) {
	if base == "" {
		return nil, fmt.Errorf("backend base URL is required")
	}
	if rps <= 0 {
		rps = 10
	}
	if timeout <= 0 {
		timeout = 20 * time.Second
	}
	if syncTimeout < timeout {
		syncTimeout = timeout
	}
	return &Client{
		base:   strings.TrimRight(base, "/"),
		hc:     &http.Client{Timeout: timeout},
		syncHC: &http.Client{Timeout: syncTimeout},
		rl:     rate.NewLimiter(rate.Limit(rps), rps),
	}, nil
}

var _ domain.Backend = (*Client)(nil)

// ---- Reads ----

func (c *Client) ListListings(ctx context.Context) ([]domain.Listing, error) {
	var out []domain.Listing
	if err := c.get(ctx, "listings", c.base+"/listings", &out); err != nil {
		return nil, err
	}
	return out, nil
}

func (c *Client) GetListing(ctx context.Context, id int64) (domain.Listing, error) {
	var out domain.Listing
	if err := c.get(ctx, "listing", fmt.Sprintf("%s/listings/%d", c.base, id), &out); err != nil {
		return domain.Listing{}, err
	}
	return out, nil
}

// ListReviews returns reviews matching f. Dimensions set to "all" are left
// out of the query string entirely.
func (c *Client) ListReviews(ctx context.Context, f domain.FilterState) ([]domain.Review, error) {
	u := c.base + "/reviews"
	if q := f.Query().Encode(); q != "" {
		u += "?" + q
	}
	var out []domain.Review
	if err := c.get(ctx, "reviews", u, &out); err != nil {
		return nil, err
	}
	return out, nil
}

func (c *Client) ListPublicReviews(ctx context.Context, listingID int64) ([]domain.Review, error) {
	var out []domain.Review
	if err := c.get(ctx, "public_reviews", fmt.Sprintf("%s/reviews/public/%d", c.base, listingID), &out); err != nil {
		return nil, err
	}
	return out, nil
}

// ---- Mutations (never retried) ----

func (c *Client) SetReviewApproval(ctx context.Context, reviewID int64, approved bool) (domain.Review, error) {
	u := fmt.Sprintf("%s/reviews/%d/approve?is_approved=%s", c.base, reviewID, strconv.FormatBool(approved))
	var out domain.Review
	if err := c.send(ctx, c.hc, http.MethodPatch, "approve", u, &out); err != nil {
		return domain.Review{}, err
	}
	return out, nil
}

func (c *Client) SyncListingReviews(ctx context.Context, listingID int64) (domain.SyncResult, error) {
	var out domain.SyncResult
	if err := c.send(ctx, c.syncHC, http.MethodPost, "sync", fmt.Sprintf("%s/google/sync/%d", c.base, listingID), &out); err != nil {
		return domain.SyncResult{}, err
	}
	return out, nil
}

// ---- Internals ----

// get performs a GET with client-side rate limiting, retries, and JSON decode into out.
// Retries on 429 and transient 5xx, honoring Retry-After when provided.
func (c *Client) get(ctx context.Context, endpoint, url string, out any) error {
	if err := c.rl.Wait(ctx); err != nil {
		return &domain.NetworkError{Op: endpoint, Err: err}
	}

	var lastErr error
	for i := 0; i < 4; i++ {
		req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
		if err != nil {
			return &domain.NetworkError{Op: endpoint, Err: err}
		}
		setHeaders(req)

		start := time.Now()
		resp, err := c.hc.Do(req)
		if err != nil {
			observability.ObserveExternal(service, endpoint, 0, time.Since(start))
			if ctx.Err() != nil {
				return &domain.NetworkError{Op: endpoint, Err: ctx.Err()}
			}
			lastErr = &domain.NetworkError{Op: endpoint, Err: err}
			if i < 3 && sleepCtx(ctx, backoff(i)) {
				continue
			}
			return lastErr
		}
		observability.ObserveExternal(service, endpoint, resp.StatusCode, time.Since(start))

		switch resp.StatusCode {
		case http.StatusOK:
			err := json.NewDecoder(resp.Body).Decode(out)
			resp.Body.Close()
			if err != nil {
				return &domain.NetworkError{Op: endpoint, Status: resp.StatusCode, Err: fmt.Errorf("decode: %w", err)}
			}
			return nil

		case http.StatusNotFound:
			drain(resp)
			return &domain.NetworkError{Op: endpoint, Status: resp.StatusCode, Err: domain.ErrNotFound}

		case http.StatusTooManyRequests, http.StatusInternalServerError,
			http.StatusBadGateway, http.StatusServiceUnavailable, http.StatusGatewayTimeout:
			wait := retryAfter(resp)
			drain(resp)
			if wait == 0 {
				wait = backoff(i)
			}
			lastErr = &domain.NetworkError{Op: endpoint, Status: resp.StatusCode}
			if i < 3 && sleepCtx(ctx, wait) {
				continue
			}
			return lastErr

		default:
			detail := readDetail(resp)
			resp.Body.Close()
			var cause error
			if detail != "" {
				cause = errors.New(detail)
			}
			return &domain.NetworkError{Op: endpoint, Status: resp.StatusCode, Err: cause}
		}
	}
	return lastErr
}

// send issues a single mutating request. A non-2xx answer that carries a
// detail message is a BackendRejection; anything else is a NetworkError.
func (c *Client) send(ctx context.Context, hc *http.Client, method, endpoint, url string, out any) error {
	if err := c.rl.Wait(ctx); err != nil {
		return &domain.NetworkError{Op: endpoint, Err: err}
	}
	req, err := http.NewRequestWithContext(ctx, method, url, nil)
	if err != nil {
		return &domain.NetworkError{Op: endpoint, Err: err}
	}
	setHeaders(req)

	start := time.Now()
	resp, err := hc.Do(req)
	if err != nil {
		observability.ObserveExternal(service, endpoint, 0, time.Since(start))
		return &domain.NetworkError{Op: endpoint, Err: err}
	}
	defer resp.Body.Close()
	observability.ObserveExternal(service, endpoint, resp.StatusCode, time.Since(start))

	if resp.StatusCode >= 200 && resp.StatusCode < 300 {
		if resp.StatusCode == http.StatusNoContent {
			return nil
		}
		if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
			return &domain.NetworkError{Op: endpoint, Status: resp.StatusCode, Err: fmt.Errorf("decode: %w", err)}
		}
		return nil
	}
	if detail := readDetail(resp); detail != "" {
		return &domain.BackendRejection{Op: endpoint, Status: resp.StatusCode, Detail: detail}
	}
	return &domain.NetworkError{Op: endpoint, Status: resp.StatusCode}
}

func setHeaders(req *http.Request) {
	req.Header.Set("Accept", "application/json")
	req.Header.Set("User-Agent", "flex-living-dashboard/1.0")
}

// readDetail extracts the FastAPI-style {"detail": "..."} message. Validation
// errors send a list instead of a string; those yield "".
func readDetail(resp *http.Response) string {
	b, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
	var payload struct {
		Detail json.RawMessage `json:"detail"`
	}
	if err := json.Unmarshal(bytes.TrimSpace(b), &payload); err != nil || len(payload.Detail) == 0 {
		return ""
	}
	var s string
	if err := json.Unmarshal(payload.Detail, &s); err != nil {
		return ""
	}
	return strings.TrimSpace(s)
}

func drain(resp *http.Response) {
	_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, 64<<10))
	resp.Body.Close()
}

// sleepCtx waits for d or returns early if ctx is done.
func sleepCtx(ctx context.Context, d time.Duration) bool {
	if d <= 0 {
		return true
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return false
	case <-t.C:
		return true
	}
}

// retryAfter parses Retry-After header (seconds or HTTP-date). Returns 0 if absent/invalid.
func retryAfter(resp *http.Response) time.Duration {
	h := resp.Header.Get("Retry-After")
	if h == "" {
		return 0
	}
	if secs, err := strconv.Atoi(strings.TrimSpace(h)); err == nil && secs >= 0 {
		return time.Duration(secs) * time.Second
	}
	if t, err := http.ParseTime(h); err == nil {
		if d := time.Until(t); d > 0 {
			return d
		}
	}
	return 0
}

// backoff returns 100ms, 200ms, 400ms... plus up to 50% jitter.
func backoff(i int) time.Duration {
	base := time.Duration(1<<i) * 100 * time.Millisecond
	var b [1]byte
	if _, err := crand.Read(b[:]); err != nil {
		return base
	}
	f := float64(b[0]) / 255.0
	return base + time.Duration(0.5*f*float64(base))
}
