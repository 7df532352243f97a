// Package upstream talks to the time-series source the cache fronts: one
// taglist endpoint and one samples-by-range endpoint.
package upstream

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"dataexplorer/internal/model"
)

const defaultTimeout = 15 * time.Second

// TimeoutError wraps a fetch that did not complete within the wall-clock
// deadline. Callers treat it as non-fatal: the gap stays uncovered and will
// be retried on the next overlapping request.
type TimeoutError struct {
	Tag string
	Err error
}

func (e *TimeoutError) Error() string {
	return fmt.Sprintf("upstream: fetch %s timed out: %v", e.Tag, e.Err)
}

func (e *TimeoutError) Unwrap() error { return e.Err }

// Client fetches taglists and samples from the upstream source.
type Client struct {
	baseURL string
	http    *http.Client
}

// NewClient builds a Client with the given base URL and a bounded-timeout
// HTTP client, shared and safe for concurrent use across fetch workers.
func NewClient(baseURL string, timeout time.Duration) *Client {
	if timeout <= 0 {
		timeout = defaultTimeout
	}
	return &Client{
		baseURL: strings.TrimRight(baseURL, "/"),
		http:    &http.Client{Timeout: timeout},
	}
}

// Taglist fetches the full tag catalog from upstream.
func (c *Client) Taglist(ctx context.Context) ([]model.TagInfo, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+"/taglist", nil)
	if err != nil {
		return nil, err
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, fmt.Errorf("upstream: taglist request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return nil, fmt.Errorf("upstream: taglist status %s", resp.Status)
	}

	var tags []model.TagInfo
	if err := json.NewDecoder(resp.Body).Decode(&tags); err != nil {
		return nil, fmt.Errorf("upstream: decode taglist: %w", err)
	}
	return tags, nil
}

type rawValue struct {
	Date  string          `json:"Date"`
	Value json.RawMessage `json:"Value"`
}

// FetchSamples fetches samples for tag over [startSec, endSec]. On timeout
// or transport failure it returns an empty slice and a *TimeoutError or
// wrapped error for the caller to log; it never panics and never returns a
// partial slice mixed with an error.
func (c *Client) FetchSamples(ctx context.Context, tag string, startSec, endSec int64) ([]model.Sample, error) {
	q := url.Values{}
	q.Set("tag", tag)
	q.Set("startDateUnixSeconds", strconv.FormatInt(startSec, 10))
	q.Set("endDateUnixSeconds", strconv.FormatInt(endSec, 10))

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+"/values?"+q.Encode(), nil)
	if err != nil {
		return nil, err
	}

	resp, err := c.http.Do(req)
	if err != nil {
		if ue, ok := err.(*url.Error); (ok && ue.Timeout()) || ctx.Err() != nil {
			return nil, &TimeoutError{Tag: tag, Err: err}
		}
		return nil, fmt.Errorf("upstream: fetch %s: %w", tag, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return nil, fmt.Errorf("upstream: fetch %s status %s", tag, resp.Status)
	}

	var raw []rawValue
	if err := json.NewDecoder(resp.Body).Decode(&raw); err != nil {
		return nil, fmt.Errorf("upstream: decode %s: %w", tag, err)
	}

	samples := make([]model.Sample, 0, len(raw))
	for _, rv := range raw {
		ms, ok := parseDate(rv.Date)
		if !ok {
			continue
		}
		samples = append(samples, model.Sample{
			TimestampMs: ms,
			Value:       parseValue(rv.Value),
			Valid:       isValid(rv.Value),
		})
	}
	return samples, nil
}

// dateLayouts are tried in order: ISO-8601 first, then the upstream's legacy
// dd:mm:yyyy:HH:MM:SS mode. An unparseable date drops the sample entirely
// per the fetch contract.
var dateLayouts = []string{
	time.RFC3339Nano,
	time.RFC3339,
	"2006-01-02T15:04:05.999",
	"2006-01-02T15:04:05",
	"02:01:2006:15:04:05",
}

func parseDate(s string) (int64, bool) {
	s = strings.TrimSpace(s)
	if s == "" {
		return 0, false
	}
	for _, layout := range dateLayouts {
		if t, err := time.Parse(layout, s); err == nil {
			return t.UTC().UnixMilli(), true
		}
	}
	return 0, false
}

func isValid(raw json.RawMessage) bool {
	if len(raw) == 0 {
		return false
	}
	var f float64
	if err := json.Unmarshal(raw, &f); err == nil {
		return true
	}
	var s string
	if err := json.Unmarshal(raw, &s); err == nil {
		_, err := strconv.ParseFloat(strings.TrimSpace(s), 64)
		return err == nil
	}
	return false
}

func parseValue(raw json.RawMessage) float64 {
	if len(raw) == 0 {
		return 0
	}
	var f float64
	if err := json.Unmarshal(raw, &f); err == nil {
		return f
	}
	var s string
	if err := json.Unmarshal(raw, &s); err == nil {
		if v, err := strconv.ParseFloat(strings.TrimSpace(s), 64); err == nil {
			return v
		}
	}
	return 0
}
