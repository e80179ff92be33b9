package syncer

import (
	"context"
	"errors"
	"path/filepath"
	"testing"

	"github.com/jjbrunton/garminconnect-webapi/internal/activity"
	"github.com/jjbrunton/garminconnect-webapi/internal/infrastructure/config"
	"github.com/jjbrunton/garminconnect-webapi/internal/infrastructure/database"
	"github.com/jjbrunton/garminconnect-webapi/internal/infrastructure/logging"
	_ "github.com/jjbrunton/garminconnect-webapi/migrations"
)

// fakeSource is a canned GarminSource.
type fakeSource struct {
	loggedIn     bool
	activities   []map[string]any
	activityErr  error
	summaries    map[string]map[string]any
	summaryErr   error
	summaryCalls []string
}

func (f *fakeSource) LoggedIn() bool { return f.loggedIn }

func (f *fakeSource) Activities(_ context.Context, _, limit int, _ string) ([]map[string]any, error) {
	if f.activityErr != nil {
		return nil, f.activityErr
	}
	if len(f.activities) > limit {
		return f.activities[:limit], nil
	}
	return f.activities, nil
}

func (f *fakeSource) UserSummary(_ context.Context, date string) (map[string]any, error) {
	f.summaryCalls = append(f.summaryCalls, date)
	if f.summaryErr != nil {
		return nil, f.summaryErr
	}
	if s, ok := f.summaries[date]; ok {
		return s, nil
	}
	return map[string]any{"calendarDate": date}, nil
}

func testDoc(id int64, name string) map[string]any {
	return map[string]any{
		"activityId":     float64(id),
		"activityName":   name,
		"activityType":   map[string]any{"typeKey": "running"},
		"startTimeLocal": "2026-08-20 07:00:00",
		"distance":       5000.0,
		"duration":       1800.0,
		"calories":       300.0,
	}
}

func newTestSyncer(t *testing.T, source *fakeSource) (*Syncer, activity.Repository) {
	t.Helper()

	db, err := database.Open(database.Config{
		Path:        filepath.Join(t.TempDir(), "sync.db"),
		WALMode:     true,
		BusyTimeout: 5,
	})
	if err != nil {
		t.Fatalf("opening test database: %v", err)
	}
	t.Cleanup(func() { db.Close() })
	if err := db.Migrate(context.Background()); err != nil {
		t.Fatalf("migrating: %v", err)
	}

	repo := activity.NewSQLiteRepository(db.DB)
	logger := logging.New(config.LoggingConfig{Level: "error", Format: "text"}, "test")

	return New(config.SyncConfig{Enabled: true, Interval: 60, Lookback: 10},
		source, repo, nil, nil, logger), repo
}

func TestRunSkippedWhenLoggedOut(t *testing.T) {
	source := &fakeSource{loggedIn: false}
	s, repo := newTestSyncer(t, source)

	s.runOnce(context.Background(), activity.ReasonManual)

	_, err := repo.LatestSyncRun(context.Background())
	if !errors.Is(err, activity.ErrNotFound) {
		t.Errorf("logged-out run should leave no record, got %v", err)
	}
}

func TestRunCachesActivitiesAndSummaries(t *testing.T) {
	source := &fakeSource{
		loggedIn: true,
		activities: []map[string]any{
			testDoc(1, "Run A"),
			testDoc(2, "Run B"),
		},
	}
	s, repo := newTestSyncer(t, source)
	ctx := context.Background()

	s.runOnce(ctx, activity.ReasonManual)

	run, err := repo.LatestSyncRun(ctx)
	if err != nil {
		t.Fatalf("LatestSyncRun: %v", err)
	}
	if run.Reason != activity.ReasonManual {
		t.Errorf("Reason = %q", run.Reason)
	}
	if run.ActivitiesNew != 2 || run.ActivitiesSeen != 2 {
		t.Errorf("counters = %d/%d, want 2/2", run.ActivitiesNew, run.ActivitiesSeen)
	}
	if run.Error != "" {
		t.Errorf("Error = %q, want empty", run.Error)
	}
	if run.FinishedAt == nil {
		t.Error("run not finished")
	}

	cached, err := repo.ListActivities(ctx, activity.ListFilter{Limit: 10})
	if err != nil {
		t.Fatalf("ListActivities: %v", err)
	}
	if len(cached) != 2 {
		t.Errorf("cached = %d activities, want 2", len(cached))
	}

	// Yesterday's and today's summaries are refreshed.
	if len(source.summaryCalls) != 2 {
		t.Errorf("summary calls = %v, want 2 dates", source.summaryCalls)
	}

	// Second run sees the same activities but finds nothing new.
	s.runOnce(ctx, activity.ReasonInterval)
	run, err = repo.LatestSyncRun(ctx)
	if err != nil {
		t.Fatalf("LatestSyncRun after rerun: %v", err)
	}
	if run.ActivitiesNew != 0 || run.ActivitiesSeen != 2 {
		t.Errorf("rerun counters = %d/%d, want 0/2", run.ActivitiesNew, run.ActivitiesSeen)
	}
}

func TestRunRecordsFailure(t *testing.T) {
	source := &fakeSource{
		loggedIn:    true,
		activityErr: errors.New("garmin unreachable"),
	}
	s, repo := newTestSyncer(t, source)
	ctx := context.Background()

	// Must not panic or propagate; the failure lands on the run record.
	s.runOnce(ctx, activity.ReasonInterval)

	run, err := repo.LatestSyncRun(ctx)
	if err != nil {
		t.Fatalf("LatestSyncRun: %v", err)
	}
	if run.Error == "" {
		t.Error("run error not recorded")
	}
	if run.FinishedAt == nil {
		t.Error("failed run should still be finished")
	}
}

func TestTriggerSyncBackpressure(t *testing.T) {
	s, _ := newTestSyncer(t, &fakeSource{})

	// Worker not started, so the first trigger fills the buffer.
	if err := s.TriggerSync(""); err != nil {
		t.Fatalf("first trigger: %v", err)
	}
	if err := s.TriggerSync(activity.ReasonManual); !errors.Is(err, ErrSyncInProgress) {
		t.Errorf("second trigger = %v, want ErrSyncInProgress", err)
	}
}

func TestNotifierReceivesEvents(t *testing.T) {
	source := &fakeSource{
		loggedIn:   true,
		activities: []map[string]any{testDoc(7, "Evening Ride")},
	}
	s, _ := newTestSyncer(t, source)

	var channels []string
	s.SetNotifier(func(channel string, _ any) {
		channels = append(channels, channel)
	})

	s.runOnce(context.Background(), activity.ReasonManual)

	var gotActivity, gotSync bool
	for _, ch := range channels {
		switch ch {
		case "activity":
			gotActivity = true
		case "sync":
			gotSync = true
		}
	}
	if !gotActivity || !gotSync {
		t.Errorf("channels = %v, want activity and sync events", channels)
	}
}

func TestStartAndClose(t *testing.T) {
	source := &fakeSource{loggedIn: false}
	s, _ := newTestSyncer(t, source)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	s.Start(ctx)
	s.Start(ctx) // idempotent

	if err := s.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}
	// Close again is safe.
	if err := s.Close(); err != nil {
		t.Fatalf("second Close: %v", err)
	}
}
