package garmin

import (
	"context"
	"fmt"
	"net/url"
	"strconv"
)

// UserSummary returns the daily wellness summary for a calendar date
// (steps, heart rate, stress, sleep and so on). The payload is passed
// through as Garmin sends it.
//
// Parameters:
//   - ctx: Context for cancellation and timeout
//   - date: Calendar date in YYYY-MM-DD form
//
// Returns:
//   - map[string]any: Raw summary document
//   - error: Sentinel-wrapped upstream error
func (c *Client) UserSummary(ctx context.Context, date string) (map[string]any, error) {
	displayName, err := c.ensureDisplayName(ctx)
	if err != nil {
		return nil, err
	}

	q := url.Values{"calendarDate": {date}}
	var summary map[string]any
	path := "/usersummary-service/usersummary/daily/" + url.PathEscape(displayName)
	if err := c.apiGetJSON(ctx, path, q, &summary); err != nil {
		return nil, err
	}
	return summary, nil
}

// Activities returns a page of the user's activity list, newest first.
//
// Parameters:
//   - ctx: Context for cancellation and timeout
//   - start: Zero-based offset into the list
//   - limit: Page size
//   - activityType: Optional type filter (running, cycling, ...); empty for all
//
// Returns:
//   - []map[string]any: Raw activity documents
//   - error: Sentinel-wrapped upstream error
func (c *Client) Activities(ctx context.Context, start, limit int, activityType string) ([]map[string]any, error) {
	q := url.Values{
		"start": {strconv.Itoa(start)},
		"limit": {strconv.Itoa(limit)},
	}
	if activityType != "" {
		q.Set("activityType", activityType)
	}

	var activities []map[string]any
	if err := c.apiGetJSON(ctx, "/activitylist-service/activities/search/activities", q, &activities); err != nil {
		return nil, err
	}
	return activities, nil
}

// DownloadActivity exports an activity in the requested format and returns
// the raw bytes. FormatOriginal yields a zip archive containing the FIT file
// as uploaded by the device; the other formats are conversions.
//
// Parameters:
//   - ctx: Context for cancellation and timeout
//   - activityID: Garmin activity identifier
//   - format: One of the DownloadFormat constants
//
// Returns:
//   - []byte: Export payload
//   - error: Sentinel-wrapped upstream error
func (c *Client) DownloadActivity(ctx context.Context, activityID string, format DownloadFormat) ([]byte, error) {
	id := url.PathEscape(activityID)

	var path string
	switch format {
	case FormatOriginal:
		path = "/download-service/files/activity/" + id
	case FormatTCX:
		path = "/download-service/export/tcx/activity/" + id
	case FormatGPX:
		path = "/download-service/export/gpx/activity/" + id
	case FormatKML:
		path = "/download-service/export/kml/activity/" + id
	case FormatCSV:
		path = "/download-service/export/csv/activity/" + id
	default:
		return nil, fmt.Errorf("unsupported download format %q", format)
	}

	return c.apiGet(ctx, path, nil)
}

// FullName returns the account holder's display name from the social profile.
func (c *Client) FullName(ctx context.Context) (string, error) {
	profile, err := c.socialProfile(ctx)
	if err != nil {
		return "", err
	}
	return profile.FullName, nil
}

// UnitSystem returns the user's configured measurement system
// (metric or statute_us).
func (c *Client) UnitSystem(ctx context.Context) (string, error) {
	var settings struct {
		UserData struct {
			MeasurementSystem string `json:"measurementSystem"`
		} `json:"userData"`
	}
	if err := c.apiGetJSON(ctx, "/userprofile-service/userprofile/user-settings", nil, &settings); err != nil {
		return "", err
	}
	return settings.UserData.MeasurementSystem, nil
}

// socialProfile fetches the profile document and caches the display name,
// which the summary endpoint needs as a path segment.
func (c *Client) socialProfile(ctx context.Context) (*Profile, error) {
	var profile Profile
	if err := c.apiGetJSON(ctx, "/userprofile-service/socialProfile", nil, &profile); err != nil {
		return nil, err
	}

	c.mu.Lock()
	c.displayName = profile.DisplayName
	c.mu.Unlock()

	return &profile, nil
}

// ensureDisplayName returns the cached display name, fetching the profile
// on first use.
func (c *Client) ensureDisplayName(ctx context.Context) (string, error) {
	c.mu.RLock()
	name := c.displayName
	c.mu.RUnlock()
	if name != "" {
		return name, nil
	}

	profile, err := c.socialProfile(ctx)
	if err != nil {
		return "", err
	}
	if profile.DisplayName == "" {
		return "", fmt.Errorf("%w: profile has no display name", ErrAuthentication)
	}
	return profile.DisplayName, nil
}
