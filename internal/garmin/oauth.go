package garmin

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/dghubble/oauth1"
)

// consumerURL serves the shared Garmin Connect Mobile OAuth1 consumer
// credentials. Package variable so tests can point it at a local server.
var consumerURL = "https://thegarth.s3.amazonaws.com/oauth_consumer.json"

// consumerCredentials is the payload published at consumerURL.
type consumerCredentials struct {
	Key    string `json:"consumer_key"`
	Secret string `json:"consumer_secret"`
}

// loadConsumer returns the OAuth1 consumer key pair, fetching it once if it
// was not pinned in Options.
func (c *Client) loadConsumer(ctx context.Context) (string, string, error) {
	c.consumerMu.Lock()
	defer c.consumerMu.Unlock()

	if c.consumerKey != "" && c.consumerSecret != "" {
		return c.consumerKey, c.consumerSecret, nil
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, consumerURL, nil)
	if err != nil {
		return "", "", fmt.Errorf("building consumer request: %w", err)
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return "", "", fmt.Errorf("%w: fetching oauth consumer: %w", ErrConnection, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return "", "", fmt.Errorf("%w: oauth consumer status %d", ErrConnection, resp.StatusCode)
	}

	var creds consumerCredentials
	if err := json.NewDecoder(resp.Body).Decode(&creds); err != nil {
		return "", "", fmt.Errorf("decoding oauth consumer: %w", err)
	}
	if creds.Key == "" || creds.Secret == "" {
		return "", "", fmt.Errorf("%w: empty oauth consumer credentials", ErrConnection)
	}

	c.consumerKey = creds.Key
	c.consumerSecret = creds.Secret
	return c.consumerKey, c.consumerSecret, nil
}

// signedClient builds an HTTP client that OAuth1-signs every request.
// An empty token signs two-legged (consumer only), which is what the
// preauthorized ticket exchange expects.
func (c *Client) signedClient(ctx context.Context, key, secret string, token *oauth1.Token) *http.Client {
	config := oauth1.NewConfig(key, secret)
	if token == nil {
		token = oauth1.NewToken("", "")
	}
	signed := config.Client(ctx, token)
	signed.Timeout = c.http.Timeout
	return signed
}

// fetchOAuth1 trades an SSO service ticket for a long-lived OAuth1 token.
func (c *Client) fetchOAuth1(ctx context.Context, ticket string) (*OAuth1Token, error) {
	key, secret, err := c.loadConsumer(ctx)
	if err != nil {
		return nil, err
	}

	loginURL := c.ssoBase + "/embed"
	q := url.Values{
		"ticket":             {ticket},
		"login-url":          {loginURL},
		"accepts-mfa-tokens": {"true"},
	}
	u := c.apiBase + "/oauth-service/oauth/preauthorized?" + q.Encode()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u, nil)
	if err != nil {
		return nil, fmt.Errorf("building preauthorized request: %w", err)
	}
	req.Header.Set("User-Agent", mobileUserAgent)

	resp, err := c.signedClient(ctx, key, secret, nil).Do(req)
	if err != nil {
		return nil, fmt.Errorf("%w: oauth preauthorized: %w", ErrConnection, err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("%w: reading preauthorized response: %w", ErrConnection, err)
	}
	if err := statusError(resp.StatusCode); err != nil {
		return nil, fmt.Errorf("%w: oauth preauthorized", err)
	}

	// Response is form-encoded: oauth_token=...&oauth_token_secret=...
	values, err := url.ParseQuery(strings.TrimSpace(string(body)))
	if err != nil {
		return nil, fmt.Errorf("parsing preauthorized response: %w", err)
	}

	token := &OAuth1Token{
		Token:    values.Get("oauth_token"),
		Secret:   values.Get("oauth_token_secret"),
		MFAToken: values.Get("mfa_token"),
		Domain:   c.domain,
	}
	if token.Token == "" || token.Secret == "" {
		return nil, fmt.Errorf("%w: preauthorized response missing token", ErrAuthentication)
	}
	return token, nil
}

// exchangeOAuth2 mints a fresh OAuth2 bearer from the OAuth1 token.
// Also used for refresh: the OAuth1 token stays valid for about a year,
// so "refresh" is simply a re-exchange.
func (c *Client) exchangeOAuth2(ctx context.Context, o1 *OAuth1Token) (*OAuth2Token, error) {
	if o1 == nil || o1.Token == "" {
		return nil, ErrNotLoggedIn
	}

	key, secret, err := c.loadConsumer(ctx)
	if err != nil {
		return nil, err
	}

	form := url.Values{}
	if o1.MFAToken != "" {
		form.Set("mfa_token", o1.MFAToken)
	}

	u := c.apiBase + "/oauth-service/oauth/exchange/user/2.0"
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, u, strings.NewReader(form.Encode()))
	if err != nil {
		return nil, fmt.Errorf("building exchange request: %w", err)
	}
	req.Header.Set("User-Agent", mobileUserAgent)
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")

	signed := c.signedClient(ctx, key, secret, oauth1.NewToken(o1.Token, o1.Secret))
	resp, err := signed.Do(req)
	if err != nil {
		return nil, fmt.Errorf("%w: oauth exchange: %w", ErrConnection, err)
	}
	defer resp.Body.Close()

	if err := statusError(resp.StatusCode); err != nil {
		return nil, fmt.Errorf("%w: oauth exchange", err)
	}

	var token OAuth2Token
	if err := json.NewDecoder(resp.Body).Decode(&token); err != nil {
		return nil, fmt.Errorf("decoding exchange response: %w", err)
	}
	if token.AccessToken == "" {
		return nil, fmt.Errorf("%w: exchange response missing access token", ErrAuthentication)
	}

	now := time.Now().Unix()
	token.ExpiresAt = now + token.ExpiresIn
	if token.RefreshTokenExpiresIn > 0 {
		token.RefreshTokenExpiresAt = now + token.RefreshTokenExpiresIn
	}
	return &token, nil
}
