package garmin

import (
	"context"
	"fmt"
	"net/http"
	"net/url"
	"regexp"
	"strings"
)

// SSO response parsing. Garmin's login pages are HTML; the interesting bits
// are the page title, the CSRF hidden field, and the embedded service ticket.
var (
	csrfRe   = regexp.MustCompile(`name="_csrf"\s+value="([^"]+)"`)
	titleRe  = regexp.MustCompile(`<title>([^<]*)</title>`)
	ticketRe = regexp.MustCompile(`embed\?ticket=([^"]+)"`)
)

// Login performs the Garmin SSO flow with email and password.
//
// On success the client holds fresh OAuth1 and OAuth2 tokens. If the account
// requires MFA and the client was built with ReturnOnMFA, it returns
// ErrMFARequired together with a state that ResumeLogin accepts; callers
// surface that state to the user, collect the code, and resume.
//
// Parameters:
//   - ctx: Context for cancellation and timeout
//   - email: Garmin account email
//   - password: Garmin account password
//
// Returns:
//   - *MFAState: non-nil only when err is ErrMFARequired
//   - error: ErrAuthentication on bad credentials, ErrTooManyRequests on
//     lockout, ErrConnection on transport failure
func (c *Client) Login(ctx context.Context, email, password string) (*MFAState, error) {
	embedURL := c.ssoBase + "/embed"

	// Prime the session cookies.
	embedParams := url.Values{
		"id":          {"gauth-widget"},
		"embedWidget": {"true"},
		"gauthHost":   {c.ssoBase},
	}
	if _, err := c.get(ctx, embedURL+"?"+embedParams.Encode()); err != nil {
		return nil, err
	}

	// Fetch the signin page for the CSRF token.
	signinURL := c.ssoBase + "/signin"
	signinParams := url.Values{
		"id":                              {"gauth-widget"},
		"embedWidget":                     {"true"},
		"gauthHost":                       {embedURL},
		"service":                         {embedURL},
		"source":                          {embedURL},
		"redirectAfterAccountLoginUrl":    {embedURL},
		"redirectAfterAccountCreationUrl": {embedURL},
	}
	signinFull := signinURL + "?" + signinParams.Encode()

	page, err := c.get(ctx, signinFull)
	if err != nil {
		return nil, err
	}
	csrf, err := extractCSRF(page)
	if err != nil {
		return nil, err
	}

	// Submit credentials.
	form := url.Values{
		"username": {email},
		"password": {password},
		"embed":    {"true"},
		"_csrf":    {csrf},
	}
	body, err := c.postForm(ctx, signinFull, signinFull, form)
	if err != nil {
		return nil, err
	}

	title := extractTitle(body)
	switch {
	case strings.Contains(title, "Success"):
		ticket, err := extractTicket(body)
		if err != nil {
			return nil, err
		}
		return nil, c.exchangeTicket(ctx, ticket)

	case isMFATitle(title):
		csrf, err := extractCSRF(body)
		if err != nil {
			return nil, err
		}
		state := &MFAState{
			Domain:  c.domain,
			CSRF:    csrf,
			Cookies: c.sessionCookies(),
		}
		if c.returnOnMFA {
			return state, ErrMFARequired
		}
		return nil, fmt.Errorf("%w: client not configured to resume (set return_on_mfa)", ErrMFARequired)

	default:
		return nil, fmt.Errorf("%w: sso responded %q", ErrAuthentication, title)
	}
}

// ResumeLogin completes a login that stopped at an MFA challenge.
//
// Parameters:
//   - ctx: Context for cancellation and timeout
//   - state: The state returned alongside ErrMFARequired
//   - code: The one-time code from the user's second factor
//
// Returns:
//   - error: ErrAuthentication when the code is rejected
func (c *Client) ResumeLogin(ctx context.Context, state *MFAState, code string) error {
	if state == nil || state.CSRF == "" {
		return fmt.Errorf("%w: missing mfa state", ErrAuthentication)
	}
	c.restoreSessionCookies(state.Cookies)

	embedURL := c.ssoBase + "/embed"
	mfaURL := c.ssoBase + "/verifyMFA/loginEnterMfaCode"
	mfaParams := url.Values{
		"id":          {"gauth-widget"},
		"embedWidget": {"true"},
		"gauthHost":   {embedURL},
		"service":     {embedURL},
		"source":      {embedURL},
	}
	mfaFull := mfaURL + "?" + mfaParams.Encode()

	form := url.Values{
		"mfa-code": {code},
		"embed":    {"true"},
		"_csrf":    {state.CSRF},
		"fromPage": {"setupEnterMfaCode"},
	}
	body, err := c.postForm(ctx, mfaFull, mfaFull, form)
	if err != nil {
		return err
	}

	title := extractTitle(body)
	if !strings.Contains(title, "Success") {
		return fmt.Errorf("%w: mfa verification responded %q", ErrAuthentication, title)
	}

	ticket, err := extractTicket(body)
	if err != nil {
		return err
	}
	return c.exchangeTicket(ctx, ticket)
}

// exchangeTicket trades an SSO service ticket for OAuth1 + OAuth2 tokens.
func (c *Client) exchangeTicket(ctx context.Context, ticket string) error {
	o1, err := c.fetchOAuth1(ctx, ticket)
	if err != nil {
		return err
	}

	o2, err := c.exchangeOAuth2(ctx, o1)
	if err != nil {
		return err
	}

	c.mu.Lock()
	c.oauth1 = o1
	c.oauth2 = o2
	c.displayName = "" // new session, refetch lazily
	c.mu.Unlock()
	return nil
}

// sessionCookies snapshots the SSO cookies for MFA state serialisation.
func (c *Client) sessionCookies() []SessionCookie {
	u, err := url.Parse(c.ssoBase)
	if err != nil {
		return nil
	}
	var out []SessionCookie
	for _, ck := range c.http.Jar.Cookies(u) {
		out = append(out, SessionCookie{Name: ck.Name, Value: ck.Value})
	}
	return out
}

// restoreSessionCookies loads serialised SSO cookies into the jar.
func (c *Client) restoreSessionCookies(cookies []SessionCookie) {
	u, err := url.Parse(c.ssoBase)
	if err != nil {
		return
	}
	restored := make([]*http.Cookie, 0, len(cookies))
	for _, ck := range cookies {
		restored = append(restored, &http.Cookie{Name: ck.Name, Value: ck.Value})
	}
	c.http.Jar.SetCookies(u, restored)
}

// extractCSRF pulls the hidden CSRF field out of an SSO page.
func extractCSRF(page string) (string, error) {
	m := csrfRe.FindStringSubmatch(page)
	if m == nil {
		return "", fmt.Errorf("%w: csrf token not found in sso response", ErrConnection)
	}
	return m[1], nil
}

// extractTitle returns the page title, empty if absent.
func extractTitle(page string) string {
	m := titleRe.FindStringSubmatch(page)
	if m == nil {
		return ""
	}
	return strings.TrimSpace(m[1])
}

// extractTicket pulls the embedded service ticket out of a success page.
func extractTicket(page string) (string, error) {
	m := ticketRe.FindStringSubmatch(page)
	if m == nil {
		return "", fmt.Errorf("%w: service ticket not found in sso response", ErrAuthentication)
	}
	return m[1], nil
}

// isMFATitle matches the page titles Garmin uses for second-factor prompts.
func isMFATitle(title string) bool {
	return strings.Contains(title, "MFA") || strings.Contains(title, "Phone Verification")
}
