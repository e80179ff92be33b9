package activity

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
)

// ErrNotFound is returned when a requested row does not exist.
var ErrNotFound = errors.New("activity: not found")

// Repository defines the cache operations the API and syncer need.
type Repository interface {
	UpsertActivity(ctx context.Context, raw map[string]any) (isNew bool, err error)
	GetActivity(ctx context.Context, id int64) (*Activity, error)
	ListActivities(ctx context.Context, filter ListFilter) ([]Activity, error)
	CountActivities(ctx context.Context) (int, error)
	UpsertDailySummary(ctx context.Context, date string, payload map[string]any) error
	GetDailySummary(ctx context.Context, date string) (*DailySummary, error)
	StartSyncRun(ctx context.Context, reason string) (*SyncRun, error)
	FinishSyncRun(ctx context.Context, run *SyncRun, runErr error) error
	LatestSyncRun(ctx context.Context) (*SyncRun, error)
}

// SQLiteRepository backs Repository with the service's SQLite database.
type SQLiteRepository struct {
	db *sql.DB
}

// NewSQLiteRepository creates a repository over an open database handle.
func NewSQLiteRepository(db *sql.DB) *SQLiteRepository {
	return &SQLiteRepository{db: db}
}

// UpsertActivity stores one raw activity document from the Garmin activity
// list. Indexed columns are extracted from the document; the full payload is
// kept verbatim. Returns whether the activity was new to the cache.
func (r *SQLiteRepository) UpsertActivity(ctx context.Context, raw map[string]any) (bool, error) {
	id, ok := rawActivityID(raw)
	if !ok {
		return false, fmt.Errorf("activity document has no activityId")
	}

	payload, err := json.Marshal(raw)
	if err != nil {
		return false, fmt.Errorf("marshalling activity payload: %w", err)
	}

	var exists int
	err = r.db.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM activities WHERE activity_id = ?`, id).Scan(&exists)
	if err != nil {
		return false, fmt.Errorf("checking activity %d: %w", id, err)
	}

	_, err = r.db.ExecContext(ctx,
		`INSERT INTO activities
		   (activity_id, activity_name, activity_type, start_time,
		    distance_m, duration_s, calories, payload, fetched_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
		 ON CONFLICT(activity_id) DO UPDATE SET
		   activity_name = excluded.activity_name,
		   activity_type = excluded.activity_type,
		   start_time    = excluded.start_time,
		   distance_m    = excluded.distance_m,
		   duration_s    = excluded.duration_s,
		   calories      = excluded.calories,
		   payload       = excluded.payload,
		   fetched_at    = excluded.fetched_at`,
		id,
		rawString(raw, "activityName"),
		rawActivityType(raw),
		rawString(raw, "startTimeLocal"),
		rawFloat(raw, "distance"),
		rawFloat(raw, "duration"),
		rawFloat(raw, "calories"),
		string(payload),
		time.Now().UTC().Format(time.RFC3339),
	)
	if err != nil {
		return false, fmt.Errorf("upserting activity %d: %w", id, err)
	}

	return exists == 0, nil
}

// GetActivity returns one cached activity including its raw payload.
func (r *SQLiteRepository) GetActivity(ctx context.Context, id int64) (*Activity, error) {
	row := r.db.QueryRowContext(ctx,
		`SELECT activity_id, activity_name, activity_type, start_time,
		        distance_m, duration_s, calories, payload, fetched_at
		 FROM activities WHERE activity_id = ?`, id)

	a, err := scanActivity(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("%w: activity %d", ErrNotFound, id)
	}
	return a, err
}

// ListActivities returns cached activities newest first.
func (r *SQLiteRepository) ListActivities(ctx context.Context, filter ListFilter) ([]Activity, error) {
	if filter.Limit <= 0 {
		filter.Limit = 20
	}
	if filter.Start < 0 {
		filter.Start = 0
	}

	query := `SELECT activity_id, activity_name, activity_type, start_time,
	                 distance_m, duration_s, calories, payload, fetched_at
	          FROM activities`
	var args []any
	if filter.ActivityType != "" {
		query += ` WHERE activity_type = ?`
		args = append(args, strings.ToLower(filter.ActivityType))
	}
	query += ` ORDER BY start_time DESC LIMIT ? OFFSET ?`
	args = append(args, filter.Limit, filter.Start)

	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("listing activities: %w", err)
	}
	defer rows.Close()

	var activities []Activity
	for rows.Next() {
		a, err := scanActivity(rows)
		if err != nil {
			return nil, err
		}
		activities = append(activities, *a)
	}
	return activities, rows.Err()
}

// CountActivities returns the total number of cached activities.
func (r *SQLiteRepository) CountActivities(ctx context.Context) (int, error) {
	var count int
	if err := r.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM activities`).Scan(&count); err != nil {
		return 0, fmt.Errorf("counting activities: %w", err)
	}
	return count, nil
}

// UpsertDailySummary stores the wellness summary for a calendar date.
func (r *SQLiteRepository) UpsertDailySummary(ctx context.Context, date string, payload map[string]any) error {
	data, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("marshalling summary payload: %w", err)
	}

	_, err = r.db.ExecContext(ctx,
		`INSERT INTO daily_summaries (calendar_date, payload, fetched_at)
		 VALUES (?, ?, ?)
		 ON CONFLICT(calendar_date) DO UPDATE SET
		   payload = excluded.payload, fetched_at = excluded.fetched_at`,
		date, string(data), time.Now().UTC().Format(time.RFC3339))
	if err != nil {
		return fmt.Errorf("upserting summary for %s: %w", date, err)
	}
	return nil
}

// GetDailySummary returns the cached summary for a calendar date.
func (r *SQLiteRepository) GetDailySummary(ctx context.Context, date string) (*DailySummary, error) {
	var (
		payload   string
		fetchedAt string
	)
	err := r.db.QueryRowContext(ctx,
		`SELECT payload, fetched_at FROM daily_summaries WHERE calendar_date = ?`,
		date).Scan(&payload, &fetchedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("%w: summary for %s", ErrNotFound, date)
	}
	if err != nil {
		return nil, fmt.Errorf("reading summary for %s: %w", date, err)
	}

	summary := &DailySummary{CalendarDate: date}
	if err := json.Unmarshal([]byte(payload), &summary.Payload); err != nil {
		return nil, fmt.Errorf("parsing summary payload: %w", err)
	}
	summary.FetchedAt, _ = time.Parse(time.RFC3339, fetchedAt)
	return summary, nil
}

// StartSyncRun opens a sync_runs row and returns it for later completion.
func (r *SQLiteRepository) StartSyncRun(ctx context.Context, reason string) (*SyncRun, error) {
	run := &SyncRun{
		ID:        "syn-" + uuid.NewString()[:8],
		StartedAt: time.Now().UTC(),
		Reason:    reason,
	}

	_, err := r.db.ExecContext(ctx,
		`INSERT INTO sync_runs (id, started_at, reason) VALUES (?, ?, ?)`,
		run.ID, run.StartedAt.Format(time.RFC3339), run.Reason)
	if err != nil {
		return nil, fmt.Errorf("recording sync run: %w", err)
	}
	return run, nil
}

// FinishSyncRun closes a sync_runs row with counters and the outcome.
func (r *SQLiteRepository) FinishSyncRun(ctx context.Context, run *SyncRun, runErr error) error {
	finished := time.Now().UTC()
	run.FinishedAt = &finished

	var errText any
	if runErr != nil {
		run.Error = runErr.Error()
		errText = run.Error
	}

	_, err := r.db.ExecContext(ctx,
		`UPDATE sync_runs
		 SET finished_at = ?, activities_new = ?, activities_seen = ?, error = ?
		 WHERE id = ?`,
		finished.Format(time.RFC3339), run.ActivitiesNew, run.ActivitiesSeen,
		errText, run.ID)
	if err != nil {
		return fmt.Errorf("finishing sync run %s: %w", run.ID, err)
	}
	return nil
}

// LatestSyncRun returns the most recently started run, or ErrNotFound when
// the syncer has never run. started_at has second precision, so rowid breaks
// ties between runs started within the same second.
func (r *SQLiteRepository) LatestSyncRun(ctx context.Context) (*SyncRun, error) {
	var (
		run        SyncRun
		startedAt  string
		finishedAt sql.NullString
		errText    sql.NullString
	)
	err := r.db.QueryRowContext(ctx,
		`SELECT id, started_at, finished_at, reason, activities_new, activities_seen, error
		 FROM sync_runs ORDER BY started_at DESC, rowid DESC LIMIT 1`).Scan(
		&run.ID, &startedAt, &finishedAt, &run.Reason,
		&run.ActivitiesNew, &run.ActivitiesSeen, &errText)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("%w: no sync runs", ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("reading latest sync run: %w", err)
	}

	run.StartedAt, _ = time.Parse(time.RFC3339, startedAt)
	if finishedAt.Valid {
		t, _ := time.Parse(time.RFC3339, finishedAt.String)
		run.FinishedAt = &t
	}
	if errText.Valid {
		run.Error = errText.String
	}
	return &run, nil
}

// rowScanner covers *sql.Row and *sql.Rows.
type rowScanner interface {
	Scan(dest ...any) error
}

func scanActivity(row rowScanner) (*Activity, error) {
	var (
		a         Activity
		payload   string
		fetchedAt string
	)
	err := row.Scan(&a.ID, &a.Name, &a.Type, &a.StartTime,
		&a.DistanceM, &a.DurationS, &a.Calories, &payload, &fetchedAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, err
		}
		return nil, fmt.Errorf("scanning activity row: %w", err)
	}

	if err := json.Unmarshal([]byte(payload), &a.Payload); err != nil {
		return nil, fmt.Errorf("parsing activity payload: %w", err)
	}
	a.FetchedAt, _ = time.Parse(time.RFC3339, fetchedAt)
	return &a, nil
}

// rawActivityID pulls the numeric activity ID out of a raw document.
// JSON numbers decode as float64.
func rawActivityID(raw map[string]any) (int64, bool) {
	switch v := raw["activityId"].(type) {
	case float64:
		return int64(v), true
	case int64:
		return v, true
	case json.Number:
		id, err := v.Int64()
		return id, err == nil
	default:
		return 0, false
	}
}

// rawActivityType extracts the type key from the nested activityType object,
// matching the shape of Garmin's activity list documents.
func rawActivityType(raw map[string]any) string {
	if nested, ok := raw["activityType"].(map[string]any); ok {
		if key, ok := nested["typeKey"].(string); ok {
			return strings.ToLower(key)
		}
	}
	if s, ok := raw["activityType"].(string); ok {
		return strings.ToLower(s)
	}
	return ""
}

func rawString(raw map[string]any, key string) string {
	s, _ := raw[key].(string)
	return s
}

func rawFloat(raw map[string]any, key string) float64 {
	f, _ := raw[key].(float64)
	return f
}
