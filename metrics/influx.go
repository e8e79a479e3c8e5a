// Package metrics writes engine events to InfluxDB as time-series points.
package metrics

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strconv"
	"time"

	influxdb2 "github.com/influxdata/influxdb-client-go/v2"
	"github.com/influxdata/influxdb-client-go/v2/api"
	"github.com/influxdata/influxdb-client-go/v2/api/write"

	"github.com/falcon-onpurpose/NRC-Tournamet-Brackets/events"
	"github.com/falcon-onpurpose/NRC-Tournamet-Brackets/models"
)

const (
	measurementEvents  = "tournament_events"
	measurementMatches = "match_results"

	defaultConnectTimeout = 10 * time.Second
	batchSize             = 100
	flushIntervalMillis   = 5000
)

var ErrConnectionFailed = errors.New("influxdb connection failed")

type Config struct {
	URL    string
	Token  string
	Org    string
	Bucket string
}

// PointWriter is the part of the InfluxDB write API the sink uses.
type PointWriter interface {
	WritePoint(point *write.Point)
}

// Sink turns events into points. Writes are non-blocking and batched by the client.
type Sink struct {
	writer PointWriter
	client influxdb2.Client
	logger *slog.Logger
}

func NewSink(writer PointWriter, logger *slog.Logger) *Sink {
	if logger == nil {
		logger = slog.Default()
	}
	return &Sink{writer: writer, logger: logger}
}

// Connect pings the server and returns a sink backed by its batching write API.
func Connect(ctx context.Context, cfg Config, logger *slog.Logger) (*Sink, error) {
	if logger == nil {
		logger = slog.Default()
	}
	client := influxdb2.NewClientWithOptions(cfg.URL, cfg.Token,
		influxdb2.DefaultOptions().
			SetBatchSize(batchSize).
			SetFlushInterval(flushIntervalMillis))

	pingCtx, cancel := context.WithTimeout(ctx, defaultConnectTimeout)
	defer cancel()
	healthy, err := client.Ping(pingCtx)
	if err != nil {
		client.Close()
		return nil, fmt.Errorf("%w: ping failed: %w", ErrConnectionFailed, err)
	}
	if !healthy {
		client.Close()
		return nil, fmt.Errorf("%w: server not healthy", ErrConnectionFailed)
	}

	writeAPI := client.WriteAPI(cfg.Org, cfg.Bucket)
	go drainErrors(writeAPI, logger)

	s := NewSink(writeAPI, logger)
	s.client = client
	return s, nil
}

func drainErrors(writeAPI api.WriteAPI, logger *slog.Logger) {
	for err := range writeAPI.Errors() {
		logger.Warn("influxdb write failed", "error", err)
	}
}

func (s *Sink) Publish(_ context.Context, e events.Event) {
	for _, p := range Points(e) {
		s.writer.WritePoint(p)
	}
}

// Close flushes pending points and closes the client.
func (s *Sink) Close() {
	if s.client == nil {
		return
	}
	s.client.Close()
}

// Points maps one event to its points: always a count point, plus a result
// point when the event carries a finished match.
func Points(e events.Event) []*write.Point {
	tags := map[string]string{
		"type":          string(e.Type),
		"tournament_id": strconv.Itoa(e.TournamentID),
	}
	if e.ClassID != 0 {
		tags["class_id"] = strconv.Itoa(e.ClassID)
	}
	fields := map[string]interface{}{
		"count":    1,
		"warnings": len(e.Warnings),
	}
	if e.MatchID != 0 {
		fields["match_id"] = e.MatchID
	}
	points := []*write.Point{influxdb2.NewPoint(measurementEvents, tags, fields, e.OccurredAt)}

	m, ok := e.Payload.(*models.Match)
	if !ok || !m.Status.Terminal() {
		return points
	}
	resultTags := map[string]string{
		"tournament_id": strconv.Itoa(m.TournamentID),
		"class_id":      strconv.Itoa(m.ClassID),
		"kind":          string(m.Kind),
		"completion":    string(m.Completion),
	}
	resultFields := map[string]interface{}{
		"match_id": m.ID,
		"delays":   len(m.DelayReasons),
	}
	if m.StartedAt != nil && m.CompletedAt != nil {
		resultFields["duration_seconds"] = m.CompletedAt.Sub(*m.StartedAt).Seconds()
	}
	return append(points, influxdb2.NewPoint(measurementMatches, resultTags, resultFields, e.OccurredAt))
}
