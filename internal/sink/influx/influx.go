package influx

import (
	"compress/gzip"
	"context"
	"errors"
	"fmt"
	"os"
	"strings"
	"sync"
	"time"

	influxdb2 "github.com/influxdata/influxdb-client-go/v2"
	influxdb2_api "github.com/influxdata/influxdb-client-go/v2/api"
	influxdb2_write "github.com/influxdata/influxdb-client-go/v2/api/write"
	"github.com/influxdata/influxdb-client-go/v2/domain"
	"github.com/rs/zerolog"

	"github.com/poppop/racer/internal/config"
	"github.com/poppop/racer/pkg/core"
)

// Measurement names written by the sink.
const (
	MeasurementCompetitor = "competitor"
	MeasurementResult     = "race_result"
)

// retentionSeconds is the bucket retention applied when the sink creates it.
const retentionSeconds = 60 * 60 * 24 * 90

// Backend writes race telemetry to InfluxDB, or to a gzip line-protocol
// backup file when the server cannot be reached at Init.
type Backend struct {
	cfg        config.InfluxConfig
	logger     zerolog.Logger
	backupPath string

	client influxdb2.Client
	writer influxdb2_api.WriteAPI
	valid  bool

	backupFile   *os.File
	backupWriter *gzip.Writer

	mu   sync.Mutex
	race *core.RaceInfo
	now  func() time.Time
}

// New creates an InfluxDB sink. backupPath is used only when the server is
// unreachable.
func New(cfg config.InfluxConfig, log zerolog.Logger, backupPath string) *Backend {
	return &Backend{
		cfg:        cfg,
		logger:     log.With().Str("sink", "influx").Logger(),
		backupPath: backupPath,
		now:        time.Now,
	}
}

func (b *Backend) Name() string { return "influx" }

// Valid reports whether points go to the server rather than the backup file.
func (b *Backend) Valid() bool {
	return b.valid
}

// Init connects to InfluxDB, making sure the org and bucket exist. When the
// server does not answer a ping the backup file is opened instead.
func (b *Backend) Init() error {
	if !b.cfg.Enabled {
		return errors.New("influx sink is disabled")
	}

	b.client = influxdb2.NewClientWithOptions(
		b.cfg.URL(),
		b.cfg.Token,
		influxdb2.DefaultOptions().
			SetBatchSize(500).
			SetFlushInterval(1000),
	)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	running, err := b.client.Ping(ctx)
	if err != nil || !running {
		b.logger.Info().Err(err).Str("backupPath", b.backupPath).
			Msg("Failed to reach InfluxDB, writing to backup file")
		return b.openBackup()
	}

	if err := b.setupOrganizationAndBucket(ctx); err != nil {
		return err
	}

	b.writer = b.client.WriteAPI(b.cfg.Org, b.cfg.Bucket)
	go func(errorsCh <-chan error) {
		for writeErr := range errorsCh {
			b.logger.Error().Err(writeErr).Str("bucket", b.cfg.Bucket).
				Msg("Error sending data to InfluxDB")
		}
	}(b.writer.Errors())

	b.valid = true
	b.logger.Info().Str("url", b.cfg.URL()).Str("bucket", b.cfg.Bucket).Msg("InfluxDB client initialized")
	return nil
}

func (b *Backend) openBackup() error {
	file, err := os.OpenFile(b.backupPath, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0644)
	if err != nil {
		return fmt.Errorf("error creating backup file: %w", err)
	}
	b.backupFile = file
	b.backupWriter = gzip.NewWriter(file)
	b.valid = false
	return nil
}

func (b *Backend) setupOrganizationAndBucket(ctx context.Context) error {
	orgs := b.client.OrganizationsAPI()

	org, err := orgs.FindOrganizationByName(ctx, b.cfg.Org)
	if err != nil {
		b.logger.Info().Str("org", b.cfg.Org).Msg("Organization not found, creating")
		org, err = orgs.CreateOrganizationWithName(ctx, b.cfg.Org)
		if err != nil {
			return fmt.Errorf("error creating organization %s: %w", b.cfg.Org, err)
		}
	}

	if _, err := b.client.BucketsAPI().FindBucketByName(ctx, b.cfg.Bucket); err != nil {
		b.logger.Info().Str("bucket", b.cfg.Bucket).Msg("Bucket not found, creating")

		rule := domain.RetentionRuleTypeExpire
		_, err = b.client.BucketsAPI().CreateBucketWithName(ctx, org, b.cfg.Bucket, domain.RetentionRule{
			Type:         &rule,
			EverySeconds: retentionSeconds,
		})
		if err != nil {
			return fmt.Errorf("error creating bucket %s: %w", b.cfg.Bucket, err)
		}
	}

	return nil
}

// Close flushes pending points and releases the client or backup file.
func (b *Backend) Close() error {
	b.mu.Lock()
	defer b.mu.Unlock()

	var errs []error
	if b.writer != nil {
		b.writer.Flush()
	}
	if b.client != nil {
		b.client.Close()
	}
	if b.backupWriter != nil {
		errs = append(errs, b.backupWriter.Close())
		b.backupWriter = nil
	}
	if b.backupFile != nil {
		errs = append(errs, b.backupFile.Close())
		b.backupFile = nil
	}
	return errors.Join(errs...)
}

// StartRace remembers the race so snapshots can be tagged with names.
func (b *Backend) StartRace(info *core.RaceInfo) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	race := *info
	b.race = &race
	return nil
}

// RecordSnapshot writes one point per competitor.
func (b *Backend) RecordSnapshot(s *core.Snapshot) error {
	b.mu.Lock()
	defer b.mu.Unlock()

	for _, p := range SnapshotPoints(b.race, s, b.now()) {
		if err := b.writePoint(p); err != nil {
			return err
		}
	}
	return nil
}

// EndRace writes the race_result point and flushes.
func (b *Backend) EndRace(r *core.RaceResult) error {
	b.mu.Lock()
	defer b.mu.Unlock()

	if err := b.writePoint(ResultPoint(r, b.now())); err != nil {
		return err
	}
	b.race = nil
	return b.flush()
}

// ResetRace drops the remembered race.
func (b *Backend) ResetRace() error {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.race = nil
	return nil
}

func (b *Backend) flush() error {
	if b.valid {
		b.writer.Flush()
		return nil
	}
	if b.backupWriter != nil {
		if err := b.backupWriter.Flush(); err != nil {
			return fmt.Errorf("error flushing InfluxDB backup file: %w", err)
		}
	}
	return nil
}

// writePoint writes to InfluxDB or the backup file. Caller holds mu.
func (b *Backend) writePoint(point *influxdb2_write.Point) error {
	if b.valid {
		b.writer.WritePoint(point)
		return nil
	}

	if b.backupWriter == nil {
		return errors.New("influxDB client not initialized and backup writer not available")
	}

	line := influxdb2_write.PointToLineProtocol(point, time.Nanosecond)
	if !strings.HasSuffix(line, "\n") {
		line += "\n"
	}
	if _, err := b.backupWriter.Write([]byte(line)); err != nil {
		return fmt.Errorf("error writing to InfluxDB backup file: %w", err)
	}
	return nil
}

// SnapshotPoints builds the competitor points for one snapshot. info may be
// nil, in which case only the competitor slot is tagged.
func SnapshotPoints(info *core.RaceInfo, s *core.Snapshot, ts time.Time) []*influxdb2_write.Point {
	points := make([]*influxdb2_write.Point, 0, len(s.Competitors))
	for i, c := range s.Competitors {
		p := influxdb2_write.NewPointWithMeasurement(MeasurementCompetitor).
			AddTag("race_id", s.RaceID).
			AddTag("slot", fmt.Sprintf("%d", i)).
			AddField("distance", c.Distance).
			AddField("velocity", c.Velocity).
			AddField("stamina", c.Stamina).
			AddField("lap", c.Lap).
			AddField("phase", c.Phase).
			AddField("tick", s.Tick).
			AddField("timestamp_ms", s.TimestampMs).
			SetTime(ts)
		if info != nil {
			p.AddTag("competitor_id", info.Competitors[i].ID).
				AddTag("competitor_name", info.Competitors[i].Label())
		}
		points = append(points, p)
	}
	return points
}

// ResultPoint builds the race_result point.
func ResultPoint(r *core.RaceResult, ts time.Time) *influxdb2_write.Point {
	return influxdb2_write.NewPointWithMeasurement(MeasurementResult).
		AddTag("race_id", r.RaceID).
		AddTag("winner_id", r.WinnerID).
		AddTag("winner_name", r.WinnerName).
		AddField("winner_index", r.WinnerIndex).
		AddField("ticks", r.Ticks).
		AddField("race_time", r.RaceTime).
		AddField("contacts", r.Contacts).
		SetTime(ts)
}
