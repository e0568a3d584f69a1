// Package catalog reads cards from the content catalog service.
package catalog

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"time"

	"github.com/rs/zerolog"

	"adloader/internal/content"
	"adloader/pkg/logger"
)

// ErrUpstream wraps transport failures and non-success statuses.
var ErrUpstream = errors.New("content catalog request failed")

type Client struct {
	base string
	http *http.Client
}

// NewClient targets envRoot+cardEndpoint, e.g.
// http://localhost + /api/public/content/cards/.
func NewClient(envRoot, cardEndpoint string, timeout time.Duration) *Client {
	return NewClientWithHTTP(envRoot, cardEndpoint, &http.Client{Timeout: timeout})
}

func NewClientWithHTTP(envRoot, cardEndpoint string, hc *http.Client) *Client {
	return &Client{base: envRoot + cardEndpoint, http: hc}
}

// GetCard fetches one card. A card the catalog does not know is (nil, nil).
func (c *Client) GetCard(ctx context.Context, id string, params content.Query) (*content.Card, error) {
	var card content.Card
	found, err := c.getJSON(ctx, c.base+url.PathEscape(id), params, &card)
	if err != nil || !found {
		return nil, err
	}
	return &card, nil
}

// FindCards runs a card search. No match is an empty slice.
func (c *Client) FindCards(ctx context.Context, params content.Query) ([]*content.Card, error) {
	var cards []*content.Card
	found, err := c.getJSON(ctx, c.base, params, &cards)
	if err != nil {
		return nil, err
	}
	if !found || cards == nil {
		return []*content.Card{}, nil
	}
	return cards, nil
}

func (c *Client) getJSON(ctx context.Context, rawURL string, params content.Query, out any) (bool, error) {
	u := rawURL
	if len(params) > 0 {
		u += "?" + params.Values().Encode()
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u, nil)
	if err != nil {
		return false, err
	}
	req.Header.Set("Accept", "application/json")
	if id := logger.TraceID(ctx); id != "" {
		req.Header.Set("X-Request-ID", id)
	}

	start := time.Now()
	resp, err := c.http.Do(req)
	if err != nil {
		return false, fmt.Errorf("%w: GET %s: %v", ErrUpstream, rawURL, err)
	}
	defer resp.Body.Close()

	zerolog.Ctx(ctx).Debug().
		Str("url", u).
		Int("status", resp.StatusCode).
		Dur("took", time.Since(start)).
		Msg("catalog request")

	if resp.StatusCode == http.StatusNotFound {
		_, _ = io.Copy(io.Discard, resp.Body)
		return false, nil
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return false, fmt.Errorf("%w: GET %s: status %d: %s", ErrUpstream, rawURL, resp.StatusCode, body)
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return false, fmt.Errorf("%w: GET %s: decode: %v", ErrUpstream, rawURL, err)
	}
	return true, nil
}
