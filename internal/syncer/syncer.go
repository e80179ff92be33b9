package syncer

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/jjbrunton/garminconnect-webapi/internal/activity"
	"github.com/jjbrunton/garminconnect-webapi/internal/garmin"
	"github.com/jjbrunton/garminconnect-webapi/internal/infrastructure/config"
	"github.com/jjbrunton/garminconnect-webapi/internal/infrastructure/influxdb"
	"github.com/jjbrunton/garminconnect-webapi/internal/infrastructure/logging"
	"github.com/jjbrunton/garminconnect-webapi/internal/infrastructure/mqtt"
)

const (
	// defaultIntervalMinutes is the run interval when the config does not
	// say otherwise.
	defaultIntervalMinutes = 60

	// defaultLookback is how many recent activities a run pages through
	// when the config does not say otherwise.
	defaultLookback = 20

	// maxPageSize caps a single activity list request.
	maxPageSize = 100

	// runTimeout bounds one complete sync run.
	runTimeout = 5 * time.Minute
)

// ErrSyncInProgress is returned by TriggerSync when a run is already queued.
var ErrSyncInProgress = errors.New("syncer: sync already in progress")

// GarminSource is the slice of the Garmin client the worker uses.
type GarminSource interface {
	LoggedIn() bool
	Activities(ctx context.Context, start, limit int, activityType string) ([]map[string]any, error)
	UserSummary(ctx context.Context, date string) (map[string]any, error)
}

// Syncer periodically refreshes the activity cache from Garmin Connect.
//
// Thread Safety: Start, TriggerSync, Close and LastRun are safe for
// concurrent use. Only one run executes at a time.
type Syncer struct {
	cfg    config.SyncConfig
	source GarminSource
	repo   activity.Repository
	logger *logging.Logger

	// Optional integrations; nil when disabled.
	mqtt   *mqtt.Client
	influx *influxdb.Client

	// notify fans events out to in-process listeners (the WebSocket hub).
	// Optional; set before Start.
	notify func(channel string, payload any)

	trigger chan string
	done    chan struct{}
	wg      sync.WaitGroup

	startOnce sync.Once
	closeOnce sync.Once
}

// New creates a Syncer. mqttClient and influxClient may be nil.
func New(cfg config.SyncConfig, source GarminSource, repo activity.Repository,
	mqttClient *mqtt.Client, influxClient *influxdb.Client, logger *logging.Logger) *Syncer {
	if cfg.Interval <= 0 {
		cfg.Interval = defaultIntervalMinutes
	}
	if cfg.Lookback <= 0 {
		cfg.Lookback = defaultLookback
	}
	if cfg.Lookback > maxPageSize {
		cfg.Lookback = maxPageSize
	}

	return &Syncer{
		cfg:     cfg,
		source:  source,
		repo:    repo,
		logger:  logger,
		mqtt:    mqttClient,
		influx:  influxClient,
		trigger: make(chan string, 1),
		done:    make(chan struct{}),
	}
}

// Start launches the worker loop. The loop runs until ctx is cancelled or
// Close is called. Calling Start more than once is a no-op.
func (s *Syncer) Start(ctx context.Context) {
	s.startOnce.Do(func() {
		s.wg.Add(1)
		go s.loop(ctx)
	})
}

// SetNotifier registers a callback invoked with "activity" and "sync"
// channel events as they happen. Must be called before Start.
func (s *Syncer) SetNotifier(notify func(channel string, payload any)) {
	s.notify = notify
}

// TriggerSync queues a manual run. Returns ErrSyncInProgress when a run is
// already queued or executing; the caller can treat that as success.
func (s *Syncer) TriggerSync(reason string) error {
	if reason == "" {
		reason = activity.ReasonManual
	}
	select {
	case s.trigger <- reason:
		return nil
	default:
		return ErrSyncInProgress
	}
}

// Close stops the worker and waits for any in-flight run to finish.
func (s *Syncer) Close() error {
	s.closeOnce.Do(func() { close(s.done) })
	s.wg.Wait()
	return nil
}

// loop drives interval and manual runs.
func (s *Syncer) loop(ctx context.Context) {
	defer s.wg.Done()

	interval := time.Duration(s.cfg.Interval) * time.Minute
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	// Prime the cache shortly after boot rather than waiting a full
	// interval. Skipped silently when not logged in yet.
	s.runOnce(ctx, activity.ReasonStartup)

	for {
		select {
		case <-ctx.Done():
			return
		case <-s.done:
			return
		case <-ticker.C:
			s.runOnce(ctx, activity.ReasonInterval)
		case reason := <-s.trigger:
			s.runOnce(ctx, reason)
		}
	}
}

// runOnce executes a single sync run. Errors are recorded and logged, never
// propagated; a broken run must not stop the loop.
func (s *Syncer) runOnce(ctx context.Context, reason string) {
	if !s.source.LoggedIn() {
		s.logger.Debug("sync skipped: no garmin session", "reason", reason)
		return
	}

	runCtx, cancel := context.WithTimeout(ctx, runTimeout)
	defer cancel()

	run, err := s.repo.StartSyncRun(runCtx, reason)
	if err != nil {
		s.logger.Error("failed to record sync run", "error", err)
		return
	}

	s.logger.Info("sync run started", "run_id", run.ID, "reason", reason)

	runErr := s.refresh(runCtx, run)
	if err := s.repo.FinishSyncRun(runCtx, run, runErr); err != nil {
		s.logger.Error("failed to finish sync run", "run_id", run.ID, "error", err)
	}

	if runErr != nil {
		s.logger.Warn("sync run failed", "run_id", run.ID, "error", runErr)
	} else {
		s.logger.Info("sync run finished",
			"run_id", run.ID,
			"new", run.ActivitiesNew,
			"seen", run.ActivitiesSeen,
		)
	}

	s.publishSyncEvent(run)
}

// refresh fetches activities and wellness summaries concurrently and feeds
// them into the cache and the metric exporters.
func (s *Syncer) refresh(ctx context.Context, run *activity.SyncRun) error {
	g, gctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		return s.refreshActivities(gctx, run)
	})
	g.Go(func() error {
		return s.refreshSummaries(gctx)
	})

	return g.Wait()
}

// refreshActivities pages recent activities into the cache and announces
// the ones not seen before.
func (s *Syncer) refreshActivities(ctx context.Context, run *activity.SyncRun) error {
	docs, err := s.source.Activities(ctx, 0, s.cfg.Lookback, "")
	if err != nil {
		return fmt.Errorf("fetching activities: %w", err)
	}

	for _, doc := range docs {
		isNew, err := s.repo.UpsertActivity(ctx, doc)
		if err != nil {
			return fmt.Errorf("caching activity: %w", err)
		}
		run.ActivitiesSeen++
		if !isNew {
			continue
		}
		run.ActivitiesNew++
		s.announceActivity(ctx, doc)
	}
	return nil
}

// refreshSummaries caches yesterday's and today's wellness summaries and
// exports their metrics. Yesterday is included because overnight data
// (sleep, final step count) lands on the previous calendar date.
func (s *Syncer) refreshSummaries(ctx context.Context) error {
	now := time.Now()
	dates := []string{
		now.AddDate(0, 0, -1).Format("2006-01-02"),
		now.Format("2006-01-02"),
	}

	for _, date := range dates {
		summary, err := s.source.UserSummary(ctx, date)
		if err != nil {
			return fmt.Errorf("fetching summary for %s: %w", date, err)
		}
		if err := s.repo.UpsertDailySummary(ctx, date, summary); err != nil {
			return fmt.Errorf("caching summary for %s: %w", date, err)
		}
		if s.influx != nil {
			s.influx.WriteWellnessMetrics(date, summary)
		}
	}
	return nil
}

// announceActivity publishes the MQTT event and InfluxDB point for a newly
// discovered activity. Failures are logged, not returned; integrations must
// not fail a sync run.
func (s *Syncer) announceActivity(_ context.Context, doc map[string]any) {
	meta := activityMeta(doc)

	event := mqtt.ActivityEvent{
		ActivityID: meta.id,
		Name:       meta.name,
		Type:       meta.typeKey,
		StartTime:  meta.startTime,
		DistanceM:  meta.distanceM,
		DurationS:  meta.durationS,
		Calories:   meta.calories,
	}

	if s.notify != nil {
		s.notify("activity", event)
	}

	if s.mqtt != nil {
		if err := s.mqtt.PublishActivityEvent(event); err != nil {
			s.logger.Warn("failed to publish activity event", "activity_id", meta.id, "error", err)
		}
	}

	if s.influx != nil {
		start, _ := time.Parse("2006-01-02 15:04:05", meta.startTime)
		s.influx.WriteActivityMetrics(strconv.FormatInt(meta.id, 10), meta.typeKey,
			start, meta.distanceM, meta.durationS, meta.calories)
	}
}

// publishSyncEvent announces a completed run to listeners and MQTT.
func (s *Syncer) publishSyncEvent(run *activity.SyncRun) {
	event := mqtt.SyncEvent{
		RunID:          run.ID,
		Reason:         run.Reason,
		ActivitiesNew:  run.ActivitiesNew,
		ActivitiesSeen: run.ActivitiesSeen,
		Error:          run.Error,
	}

	if s.notify != nil {
		s.notify("sync", event)
	}

	if s.mqtt == nil {
		return
	}
	if err := s.mqtt.PublishSyncEvent(event); err != nil {
		s.logger.Warn("failed to publish sync event", "run_id", run.ID, "error", err)
	}
}

// meta is the handful of fields pulled out of a raw activity document for
// event publishing.
type meta struct {
	id        int64
	name      string
	typeKey   string
	startTime string
	distanceM float64
	durationS float64
	calories  float64
}

func activityMeta(doc map[string]any) meta {
	m := meta{
		name:      stringField(doc, "activityName"),
		startTime: stringField(doc, "startTimeLocal"),
		distanceM: floatField(doc, "distance"),
		durationS: floatField(doc, "duration"),
		calories:  floatField(doc, "calories"),
	}
	if id, ok := doc["activityId"].(float64); ok {
		m.id = int64(id)
	}
	if nested, ok := doc["activityType"].(map[string]any); ok {
		m.typeKey, _ = nested["typeKey"].(string)
	}
	return m
}

func stringField(doc map[string]any, key string) string {
	s, _ := doc[key].(string)
	return s
}

func floatField(doc map[string]any, key string) float64 {
	f, _ := doc[key].(float64)
	return f
}

var _ GarminSource = (*garmin.Client)(nil)
