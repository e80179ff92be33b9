package garmin

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/http/cookiejar"
	"net/url"
	"strings"
	"sync"
	"time"
)

// defaultUserAgent mimics the Garmin Connect mobile app; the SSO endpoints
// reject unknown agents.
const defaultUserAgent = "GCM-iOS-5.7.2.1"

// mobileUserAgent is sent on OAuth endpoints, which expect the Android agent.
const mobileUserAgent = "com.garmin.android.apps.connectmobile"

// Options configures a Client.
type Options struct {
	// Domain is "garmin.com" or "garmin.cn". Empty means garmin.com.
	Domain string

	// UserAgent overrides the default Connect mobile agent.
	UserAgent string

	// Timeout is the per-request timeout. Zero means 30 seconds.
	Timeout time.Duration

	// ConsumerKey/ConsumerSecret pin the OAuth1 consumer credentials.
	// When empty they are fetched once from the published consumer URL.
	ConsumerKey    string
	ConsumerSecret string

	// ReturnOnMFA makes Login return ErrMFARequired with a resumable state
	// instead of failing outright when the account needs a second factor.
	ReturnOnMFA bool

	// SSOBase and APIBase override the upstream hosts. Intended for tests;
	// when empty they derive from Domain.
	SSOBase string
	APIBase string
}

// Client is a Garmin Connect session.
//
// Thread Safety:
//   - All exported methods are safe for concurrent use. Token refresh is
//     serialised internally.
type Client struct {
	http      *http.Client
	domain    string
	userAgent string
	ssoBase   string
	apiBase   string

	returnOnMFA bool

	consumerKey    string
	consumerSecret string
	consumerMu     sync.Mutex

	mu          sync.RWMutex
	oauth1      *OAuth1Token
	oauth2      *OAuth2Token
	displayName string
}

// NewClient creates a Garmin Connect client. No network traffic happens
// until Login, ResumeLogin, or LoginFromStore is called.
func NewClient(opts Options) (*Client, error) {
	domain := opts.Domain
	if domain == "" {
		domain = "garmin.com"
	}
	if domain != "garmin.com" && domain != "garmin.cn" {
		return nil, fmt.Errorf("unsupported garmin domain %q", domain)
	}

	userAgent := opts.UserAgent
	if userAgent == "" {
		userAgent = defaultUserAgent
	}

	timeout := opts.Timeout
	if timeout <= 0 {
		timeout = 30 * time.Second
	}

	jar, err := cookiejar.New(nil)
	if err != nil {
		return nil, fmt.Errorf("creating cookie jar: %w", err)
	}

	ssoBase := opts.SSOBase
	if ssoBase == "" {
		ssoBase = fmt.Sprintf("https://sso.%s/sso", domain)
	}
	apiBase := opts.APIBase
	if apiBase == "" {
		apiBase = fmt.Sprintf("https://connectapi.%s", domain)
	}

	return &Client{
		http: &http.Client{
			Timeout: timeout,
			Jar:     jar,
		},
		domain:         domain,
		userAgent:      userAgent,
		ssoBase:        ssoBase,
		apiBase:        apiBase,
		returnOnMFA:    opts.ReturnOnMFA,
		consumerKey:    opts.ConsumerKey,
		consumerSecret: opts.ConsumerSecret,
	}, nil
}

// Domain returns the Garmin domain this session talks to.
func (c *Client) Domain() string {
	return c.domain
}

// LoggedIn reports whether the client holds a usable OAuth1 token.
func (c *Client) LoggedIn() bool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.oauth1 != nil && c.oauth1.Token != ""
}

// Tokens returns a copy of the current session tokens for persistence.
func (c *Client) Tokens() (*OAuth1Token, *OAuth2Token) {
	c.mu.RLock()
	defer c.mu.RUnlock()

	var o1 *OAuth1Token
	var o2 *OAuth2Token
	if c.oauth1 != nil {
		cp := *c.oauth1
		o1 = &cp
	}
	if c.oauth2 != nil {
		cp := *c.oauth2
		o2 = &cp
	}
	return o1, o2
}

// LoginFromStore resumes a session from persisted tokens.
//
// Parameters:
//   - ctx: Context for cancellation and timeout
//   - store: Token store to read from
//
// Returns:
//   - error: ErrTokenStoreEmpty when nothing is stored, ErrAuthentication
//     when the stored OAuth1 token can no longer mint a bearer
func (c *Client) LoginFromStore(ctx context.Context, store TokenStore) error {
	o1, o2, err := store.Load()
	if err != nil {
		return fmt.Errorf("%w: %w", ErrTokenStoreEmpty, err)
	}
	if o1 == nil || o1.Token == "" {
		return ErrTokenStoreEmpty
	}

	c.mu.Lock()
	c.oauth1 = o1
	c.oauth2 = o2
	c.mu.Unlock()

	// Prove the session works; refreshes the bearer if it is stale.
	if _, err := c.ensureBearer(ctx); err != nil {
		return err
	}
	return nil
}

// SaveTokens writes the current session tokens to the store.
func (c *Client) SaveTokens(store TokenStore) error {
	o1, o2 := c.Tokens()
	if o1 == nil {
		return ErrNotLoggedIn
	}
	if err := store.Save(o1, o2); err != nil {
		return fmt.Errorf("saving tokens: %w", err)
	}
	return nil
}

// ensureBearer returns a valid OAuth2 access token, refreshing it from the
// OAuth1 token when expired.
func (c *Client) ensureBearer(ctx context.Context) (string, error) {
	c.mu.RLock()
	o1 := c.oauth1
	o2 := c.oauth2
	c.mu.RUnlock()

	if o1 == nil || o1.Token == "" {
		return "", ErrNotLoggedIn
	}

	if !o2.Expired() {
		return o2.AccessToken, nil
	}

	refreshed, err := c.exchangeOAuth2(ctx, o1)
	if err != nil {
		return "", err
	}

	c.mu.Lock()
	c.oauth2 = refreshed
	c.mu.Unlock()

	return refreshed.AccessToken, nil
}

// apiGet performs an authenticated GET against the Connect API gateway and
// returns the raw response body.
func (c *Client) apiGet(ctx context.Context, path string, query url.Values) ([]byte, error) {
	bearer, err := c.ensureBearer(ctx)
	if err != nil {
		return nil, err
	}

	u := c.apiBase + path
	if len(query) > 0 {
		u += "?" + query.Encode()
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u, nil)
	if err != nil {
		return nil, fmt.Errorf("building request: %w", err)
	}
	req.Header.Set("User-Agent", c.userAgent)
	req.Header.Set("Authorization", "Bearer "+bearer)

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrConnection, err)
	}
	defer resp.Body.Close()

	if err := statusError(resp.StatusCode); err != nil {
		return nil, fmt.Errorf("%w: GET %s", err, path)
	}

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("%w: reading response: %w", ErrConnection, err)
	}
	return body, nil
}

// apiGetJSON performs an authenticated GET and decodes the JSON response.
func (c *Client) apiGetJSON(ctx context.Context, path string, query url.Values, v any) error {
	body, err := c.apiGet(ctx, path, query)
	if err != nil {
		return err
	}
	if err := json.Unmarshal(body, v); err != nil {
		return fmt.Errorf("decoding %s response: %w", path, err)
	}
	return nil
}

// statusError maps an upstream HTTP status onto a sentinel error.
func statusError(status int) error {
	switch {
	case status >= 200 && status < 300:
		return nil
	case status == http.StatusUnauthorized || status == http.StatusForbidden:
		return ErrAuthentication
	case status == http.StatusTooManyRequests:
		return ErrTooManyRequests
	case status >= 500:
		return fmt.Errorf("%w: upstream status %d", ErrConnection, status)
	default:
		return fmt.Errorf("unexpected upstream status %d", status)
	}
}

// postForm posts form values with SSO-friendly headers and returns the body.
func (c *Client) postForm(ctx context.Context, u, referer string, form url.Values) (string, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, u, strings.NewReader(form.Encode()))
	if err != nil {
		return "", fmt.Errorf("building request: %w", err)
	}
	req.Header.Set("User-Agent", c.userAgent)
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	if referer != "" {
		req.Header.Set("Referer", referer)
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return "", fmt.Errorf("%w: %w", ErrConnection, err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return "", fmt.Errorf("%w: reading response: %w", ErrConnection, err)
	}

	// SSO returns 200 with an error page for bad credentials and 429 for
	// lockouts; only the latter surfaces at transport level.
	if resp.StatusCode == http.StatusTooManyRequests {
		return "", ErrTooManyRequests
	}
	if resp.StatusCode >= 500 {
		return "", fmt.Errorf("%w: sso status %d", ErrConnection, resp.StatusCode)
	}

	return string(body), nil
}

// get fetches a URL with the client's cookie jar and returns the body.
func (c *Client) get(ctx context.Context, u string) (string, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u, nil)
	if err != nil {
		return "", fmt.Errorf("building request: %w", err)
	}
	req.Header.Set("User-Agent", c.userAgent)

	resp, err := c.http.Do(req)
	if err != nil {
		return "", fmt.Errorf("%w: %w", ErrConnection, err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return "", fmt.Errorf("%w: reading response: %w", ErrConnection, err)
	}
	if resp.StatusCode >= 500 {
		return "", fmt.Errorf("%w: sso status %d", ErrConnection, resp.StatusCode)
	}
	return string(body), nil
}
