// Package portal speaks the upstream service's wire formats: the
// embedded-state search endpoint, the GraphQL entity query, and the
// server-rendered detail page used as fallback and credential source.
package portal

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"sync/atomic"

	"github.com/PuerkitoBio/goquery"
	"go.uber.org/zap"

	"github.com/reinetwork/actor-zillow-api-scraper/internal/engine/extract"
	"github.com/reinetwork/actor-zillow-api-scraper/internal/engine/session"
	"github.com/reinetwork/actor-zillow-api-scraper/internal/model"
)

const (
	// DefaultBaseURL is the production upstream.
	DefaultBaseURL = "https://www.zillow.com"

	searchPath  = "/search/GetSearchPageState.htm"
	graphqlPath = "/graphql/"

	operationName = "ForSaleShopperPlatformFullRenderQuery"
	clientID      = "for-sale-sub-app-browser"

	searchWants = `{"cat1":["listResults","mapResults"],"cat2":["listResults","mapResults"]}`
)

// Client issues upstream requests through caller-supplied sessions. It
// is safe for concurrent use.
type Client struct {
	base     *url.URL
	creds    *CredStore
	log      *zap.Logger
	requests atomic.Int64
}

// NewClient parses baseURL and binds the credential store.
func NewClient(baseURL string, creds *CredStore, log *zap.Logger) (*Client, error) {
	if baseURL == "" {
		baseURL = DefaultBaseURL
	}
	base, err := url.Parse(baseURL)
	if err != nil {
		return nil, fmt.Errorf("parsing base url: %w", err)
	}
	return &Client{base: base, creds: creds, log: log}, nil
}

// FetchSearchPage requests one results page for st and returns the
// decoded embedded search document.
func (c *Client) FetchSearchPage(ctx context.Context, sess *session.Session, st model.QueryState) (map[string]any, error) {
	qs, err := EncodeQueryState(st)
	if err != nil {
		return nil, err
	}

	params := url.Values{}
	params.Set("searchQueryState", qs)
	params.Set("wants", searchWants)
	params.Set("requestId", strconv.FormatInt(c.requests.Add(1), 10))

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.abs(searchPath)+"?"+params.Encode(), nil)
	if err != nil {
		return nil, fmt.Errorf("building search request: %w", err)
	}
	req.Header.Set("Accept", "*/*")
	req.Header.Set("Accept-Language", "en-US,en;q=0.9")
	req.Header.Set("Referer", c.abs("/"))

	body, err := c.do(sess, req)
	if err != nil {
		return nil, err
	}
	return decodeJSONBody(body)
}

// QueryEntity fetches one entity through the GraphQL endpoint using the
// run's discovered credentials. The returned map is the property
// payload itself.
func (c *Client) QueryEntity(ctx context.Context, sess *session.Session, zpid string) (map[string]any, error) {
	creds := c.creds.Get()
	if !creds.Valid() {
		return nil, ErrNoCredentials
	}
	zpidNum, err := strconv.ParseInt(zpid, 10, 64)
	if err != nil {
		return nil, fmt.Errorf("non-numeric entity id %q", zpid)
	}

	payload := map[string]any{
		"operationName": operationName,
		"variables": map[string]any{
			"zpid": zpidNum,
			"contactFormRenderParameter": map[string]any{
				"zpid":           zpidNum,
				"platform":       "desktop",
				"isDoubleScroll": true,
			},
		},
		"queryId": creds.QueryID,
	}
	buf, err := json.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("encoding entity query: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.abs(graphqlPath), bytes.NewReader(buf))
	if err != nil {
		return nil, fmt.Errorf("building entity query: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "*/*")
	req.Header.Set("Client-Id", clientID)
	if creds.ClientVersion != "" {
		req.Header.Set("Client-Version", creds.ClientVersion)
	}
	req.Header.Set("Referer", c.abs("/"))

	body, err := c.do(sess, req)
	if err != nil {
		return nil, err
	}
	doc, err := decodeJSONBody(body)
	if err != nil {
		return nil, err
	}
	prop := extract.SafeMap(extract.SafePath(doc, "data", "property"))
	if prop == nil {
		return nil, fmt.Errorf("entity %s: property payload missing from response", zpid)
	}
	return prop, nil
}

// FetchDetail loads the entity's own rendered page and pulls the
// property payload out of its embedded state. A seed URL whose address
// slug has gone stale redirects instead of rendering; those are
// re-issued once against the canonical id-only URL rather than retried
// as-is. Credentials found in the markup are harvested as a side
// effect, so a run that starts without any heals itself on the first
// fallback.
func (c *Client) FetchDetail(ctx context.Context, sess *session.Session, zpid, detailURL string) (map[string]any, error) {
	canonical := fmt.Sprintf("/homedetails/%s_zpid/", zpid)
	if detailURL == "" {
		detailURL = canonical
	}

	body, err := c.fetchDetailBody(ctx, sess, detailURL)
	if err != nil && detailURL != canonical {
		var be *BlockedError
		if errors.As(err, &be) && be.Redirected() {
			c.log.Debug("detail url redirected, using canonical form",
				zap.String("zpid", zpid),
				zap.Int("status", be.StatusCode),
			)
			body, err = c.fetchDetailBody(ctx, sess, canonical)
		}
	}
	if err != nil {
		return nil, err
	}

	html := string(body)
	if harvested := HarvestCredentials(html); harvested.Valid() {
		c.creds.Set(harvested)
		c.log.Debug("query credentials harvested", zap.String("source", "detail page"))
	}

	return parseDetailHTML(html, zpid)
}

func (c *Client) fetchDetailBody(ctx context.Context, sess *session.Session, ref string) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.abs(ref), nil)
	if err != nil {
		return nil, fmt.Errorf("building detail request: %w", err)
	}
	req.Header.Set("Accept", "text/html,application/xhtml+xml,application/xml;q=0.9,*/*;q=0.8")
	req.Header.Set("Accept-Language", "en-US,en;q=0.9")
	req.Header.Set("Referer", c.abs("/"))
	return c.do(sess, req)
}

// Credentials exposes the current credential snapshot.
func (c *Client) Credentials() Credentials {
	return c.creds.Get()
}

// abs resolves a path or absolute URL against the client's base.
func (c *Client) abs(ref string) string {
	u, err := url.Parse(ref)
	if err != nil {
		return ref
	}
	return c.base.ResolveReference(u).String()
}

// do executes the request on the session and classifies the status.
// Challenge statuses map to ErrBlocked so callers can burn the session.
func (c *Client) do(sess *session.Session, req *http.Request) ([]byte, error) {
	resp, err := sess.Do(req)
	if err != nil {
		return nil, fmt.Errorf("executing request: %w", err)
	}
	defer resp.Body.Close()

	switch {
	case resp.StatusCode == http.StatusTooManyRequests,
		resp.StatusCode == http.StatusForbidden,
		resp.StatusCode == http.StatusFound,
		resp.StatusCode == http.StatusMovedPermanently,
		resp.StatusCode == http.StatusTemporaryRedirect:
		io.Copy(io.Discard, resp.Body)
		return nil, &BlockedError{StatusCode: resp.StatusCode}
	case resp.StatusCode != http.StatusOK:
		io.Copy(io.Discard, resp.Body)
		return nil, &StatusError{StatusCode: resp.StatusCode, URL: req.URL.String()}
	}

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("reading body: %w", err)
	}
	return body, nil
}

// decodeJSONBody tolerates an anti-XSS prefix and sniffs challenge
// pages served with status 200.
func decodeJSONBody(body []byte) (map[string]any, error) {
	trimmed := bytes.TrimSpace(body)
	if idx := bytes.IndexByte(trimmed, '\n'); idx >= 0 && idx < 10 && bytes.HasPrefix(trimmed, []byte(")]}'")) {
		trimmed = trimmed[idx+1:]
	}
	if len(trimmed) > 0 && trimmed[0] == '<' {
		return nil, fmt.Errorf("%w (challenge page)", ErrBlocked)
	}
	var doc map[string]any
	if err := json.Unmarshal(trimmed, &doc); err != nil {
		return nil, fmt.Errorf("decoding response: %w", err)
	}
	return doc, nil
}

// parseDetailHTML digs the property payload out of the page's embedded
// client cache.
func parseDetailHTML(html, zpid string) (map[string]any, error) {
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(html))
	if err != nil {
		return nil, fmt.Errorf("parsing detail page: %w", err)
	}
	raw := doc.Find("script#__NEXT_DATA__").Text()
	if raw == "" {
		return nil, fmt.Errorf("entity %s: detail page has no embedded state", zpid)
	}

	var next map[string]any
	if err := json.Unmarshal([]byte(raw), &next); err != nil {
		return nil, fmt.Errorf("decoding embedded state: %w", err)
	}

	cacheRaw := extract.SafeString(extract.SafePath(next, "props", "pageProps", "componentProps", "gdpClientCache"))
	if cacheRaw == "" {
		return nil, fmt.Errorf("entity %s: embedded state has no client cache", zpid)
	}
	var cache map[string]any
	if err := json.Unmarshal([]byte(cacheRaw), &cache); err != nil {
		return nil, fmt.Errorf("decoding client cache: %w", err)
	}
	for _, v := range cache {
		if prop := extract.SafeMap(extract.SafePath(v, "property")); prop != nil {
			return prop, nil
		}
	}
	return nil, fmt.Errorf("entity %s: property payload missing from client cache", zpid)
}
