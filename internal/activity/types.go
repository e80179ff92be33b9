package activity

import "time"

// Activity is a cached Garmin activity row. Payload carries the raw
// document exactly as Garmin sent it; the remaining fields are extracted
// copies used for indexing and event publishing.
type Activity struct {
	ID        int64          `json:"activityId"`
	Name      string         `json:"activityName"`
	Type      string         `json:"activityType"`
	StartTime string         `json:"startTimeLocal"`
	DistanceM float64        `json:"distance"`
	DurationS float64        `json:"duration"`
	Calories  float64        `json:"calories"`
	Payload   map[string]any `json:"payload,omitempty"`
	FetchedAt time.Time      `json:"fetchedAt"`
}

// DailySummary is a cached wellness summary for one calendar date.
type DailySummary struct {
	CalendarDate string         `json:"calendarDate"`
	Payload      map[string]any `json:"payload"`
	FetchedAt    time.Time      `json:"fetchedAt"`
}

// SyncRun records one pass of the background syncer.
type SyncRun struct {
	ID             string     `json:"id"`
	StartedAt      time.Time  `json:"startedAt"`
	FinishedAt     *time.Time `json:"finishedAt,omitempty"`
	Reason         string     `json:"reason"`
	ActivitiesNew  int        `json:"activitiesNew"`
	ActivitiesSeen int        `json:"activitiesSeen"`
	Error          string     `json:"error,omitempty"`
}

// Sync run reasons.
const (
	ReasonInterval = "interval"
	ReasonManual   = "manual"
	ReasonStartup  = "startup"
)

// TrackPoint is one GPS sample from a FIT recording.
type TrackPoint struct {
	Lat       float64   `json:"lat"`
	Lon       float64   `json:"lon"`
	Elevation float64   `json:"ele"`
	Time      time.Time `json:"time"`
	DistanceM float64   `json:"distance"`
}

// Track is the decoded GPS trace of an activity together with the
// session-level totals the FIT file reports.
type Track struct {
	Sport        string       `json:"sport"`
	StartTime    time.Time    `json:"startTime"`
	TotalDistM   float64      `json:"totalDistance"`
	TotalTimeS   float64      `json:"totalTime"`
	Calories     uint16       `json:"calories"`
	Points       []TrackPoint `json:"points"`
}

// ListFilter controls cached-activity queries.
type ListFilter struct {
	ActivityType string
	Start        int
	Limit        int
}
