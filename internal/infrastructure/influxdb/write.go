package influxdb

import (
	"time"

	influxdb2 "github.com/influxdata/influxdb-client-go/v2"
)

// wellnessFieldKeys maps Garmin daily-summary document keys to the field
// names written to InfluxDB. Only numeric values present in the document
// are written; Garmin omits or nulls fields the device did not record.
var wellnessFieldKeys = map[string]string{
	"totalSteps":                 "steps",
	"totalDistanceMeters":        "distance_m",
	"totalKilocalories":          "calories",
	"activeKilocalories":         "active_calories",
	"restingHeartRate":           "resting_heart_rate",
	"minHeartRate":               "min_heart_rate",
	"maxHeartRate":               "max_heart_rate",
	"averageStressLevel":         "avg_stress",
	"sleepingSeconds":            "sleep_s",
	"bodyBatteryMostRecentValue": "body_battery",
	"floorsAscended":             "floors_ascended",
	"moderateIntensityMinutes":   "moderate_intensity_min",
	"vigorousIntensityMinutes":   "vigorous_intensity_min",
}

// WriteWellnessMetrics records one day's wellness summary.
//
// The point is tagged with the calendar date and timestamped at local
// midnight of that date so daily values line up in dashboards. Writes are
// batched and asynchronous.
//
// Parameters:
//   - date: Calendar date in YYYY-MM-DD form
//   - summary: Raw daily summary document from Garmin
func (c *Client) WriteWellnessMetrics(date string, summary map[string]any) {
	if !c.IsConnected() {
		return
	}

	fields := extractWellnessFields(summary)
	if len(fields) == 0 {
		return
	}

	ts, err := time.Parse("2006-01-02", date)
	if err != nil {
		ts = time.Now().UTC()
	}

	point := influxdb2.NewPoint("wellness",
		map[string]string{"calendar_date": date},
		fields,
		ts,
	)
	c.writeAPI.WritePoint(point)
}

// WriteActivityMetrics records the totals of one activity.
//
// Parameters:
//   - activityID: Garmin activity identifier (tag)
//   - activityType: Type key such as "running" (tag)
//   - startTime: Activity start; zero means now
//   - distanceM, durationS, calories: Session totals
func (c *Client) WriteActivityMetrics(activityID, activityType string, startTime time.Time, distanceM, durationS, calories float64) {
	if !c.IsConnected() {
		return
	}

	if startTime.IsZero() {
		startTime = time.Now().UTC()
	}

	point := influxdb2.NewPoint("activity",
		map[string]string{
			"activity_id":   activityID,
			"activity_type": activityType,
		},
		map[string]any{
			"distance_m": distanceM,
			"duration_s": durationS,
			"calories":   calories,
		},
		startTime,
	)
	c.writeAPI.WritePoint(point)
}

// extractWellnessFields pulls the known numeric fields out of a raw summary
// document. JSON numbers arrive as float64.
func extractWellnessFields(summary map[string]any) map[string]any {
	fields := make(map[string]any, len(wellnessFieldKeys))
	for docKey, fieldName := range wellnessFieldKeys {
		if v, ok := summary[docKey].(float64); ok {
			fields[fieldName] = v
		}
	}
	return fields
}
