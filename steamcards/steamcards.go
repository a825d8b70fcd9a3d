// Package steamcards is the concrete webclient.Client implementation:
// it fetches badge and per-game card pages from steamcommunity.com over an
// authenticated HTTP session and hands back parsed HTML trees, the way
// steamcommunity.Community fetches and decodes its JSON endpoints.
package steamcards

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/url"

	"golang.org/x/net/html"

	"github.com/k64z/cardfarmer/webclient"
)

var errSessionMissing = errors.New("steamcards: sessionid cookie is missing; log in before use")

type config struct {
	httpClient *http.Client
	apiKey     string
}

// Option configures a Client.
type Option func(*config) error

// WithHTTPClient supplies an http.Client whose Jar already carries Steam's
// session cookies (sessionid, steamLoginSecure). Required: steamcards has
// no login flow of its own.
func WithHTTPClient(c *http.Client) Option {
	return func(cfg *config) error {
		if c == nil {
			return errors.New("httpClient should be non-nil")
		}
		cfg.httpClient = c
		return nil
	}
}

// WithAPIKey attaches a Steam Web API key (spec.md §6 SteamApiKey) to every
// request this Client issues. The badge/card community pages don't gate on
// it today, but Valve's community endpoints honor a `key` query parameter
// when present, so an operator-provisioned key rides along for parity with
// any future WebAPI-backed endpoint added to this Client.
func WithAPIKey(key string) Option {
	return func(cfg *config) error {
		cfg.apiKey = key
		return nil
	}
}

// Client is the steamcommunity.com-backed webclient.Client implementation.
type Client struct {
	httpClient *http.Client
	apiKey     string
}

// New constructs a Client, verifying the supplied http.Client's cookie jar
// already carries an authenticated Steam session.
func New(opts ...Option) (*Client, error) {
	var cfg config
	for _, opt := range opts {
		if err := opt(&cfg); err != nil {
			return nil, err
		}
	}

	c := &Client{httpClient: cfg.httpClient, apiKey: cfg.apiKey}
	if c.httpClient == nil {
		c.httpClient = http.DefaultClient
	}

	if _, err := sessionID(c.httpClient.Jar); err != nil {
		return nil, err
	}

	return c, nil
}

func sessionID(jar http.CookieJar) (string, error) {
	if jar == nil {
		return "", errSessionMissing
	}
	u, _ := url.Parse("https://steamcommunity.com")
	for _, cookie := range jar.Cookies(u) {
		if cookie.Name == "sessionid" {
			return cookie.Value, nil
		}
	}
	return "", errSessionMissing
}

// GetBadgePage fetches page N (1-indexed) of the logged-in user's badge
// listing.
func (c *Client) GetBadgePage(ctx context.Context, page int) (*html.Node, error) {
	reqURL := fmt.Sprintf("https://steamcommunity.com/my/badges/?p=%d", page)
	return c.fetch(ctx, reqURL)
}

// GetCardPage fetches the per-game card-drop page for appID.
func (c *Client) GetCardPage(ctx context.Context, appID uint32) (*html.Node, error) {
	reqURL := fmt.Sprintf("https://steamcommunity.com/my/gamecards/%d", appID)
	return c.fetch(ctx, reqURL)
}

func (c *Client) fetch(ctx context.Context, reqURL string) (*html.Node, error) {
	if c.apiKey != "" && c.apiKey != "null" {
		u, err := url.Parse(reqURL)
		if err != nil {
			return nil, fmt.Errorf("parse request url: %w", err)
		}
		q := u.Query()
		q.Set("key", c.apiKey)
		u.RawQuery = q.Encode()
		reqURL = u.String()
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, reqURL, nil)
	if err != nil {
		return nil, fmt.Errorf("new request: %w", err)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("do: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusTooManyRequests {
		return nil, fmt.Errorf("rate limited fetching %s", reqURL)
	}
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("HTTP %d fetching %s", resp.StatusCode, reqURL)
	}

	doc, err := html.Parse(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("parse html: %w", err)
	}
	return doc, nil
}

var _ webclient.Client = (*Client)(nil)
