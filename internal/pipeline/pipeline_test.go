package pipeline_test

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	json "github.com/goccy/go-json"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/couchcryptid/quake-search-service/internal/domain"
	"github.com/couchcryptid/quake-search-service/internal/observability"
	"github.com/couchcryptid/quake-search-service/internal/pipeline"
)

// --- mocks ---

// mockExtractor hands out its events in batches, then either blocks until
// the context is cancelled or reports io.EOF when finite is set.
type mockExtractor struct {
	events []domain.RawEvent
	finite bool
	index  atomic.Int64
}

func (m *mockExtractor) ExtractBatch(ctx context.Context, batchSize int) ([]domain.RawEvent, error) {
	start := int(m.index.Load())
	if start >= len(m.events) {
		if m.finite {
			return nil, io.EOF
		}
		<-ctx.Done()
		return nil, ctx.Err()
	}
	end := min(start+batchSize, len(m.events))
	m.index.Store(int64(end))
	return m.events[start:end], nil
}

type mockTransformer struct {
	err error
}

func (m *mockTransformer) Transform(_ context.Context, raw domain.RawEvent) (domain.SeismicEvent, error) {
	if m.err != nil {
		return domain.SeismicEvent{}, m.err
	}
	return domain.ParseRawEvent(raw)
}

type mockLoader struct {
	mu       sync.Mutex
	loaded   []domain.SeismicEvent
	failures int // fail this many calls before succeeding
	calls    int
}

func (m *mockLoader) LoadBatch(_ context.Context, events []domain.SeismicEvent) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.calls++
	if m.failures > 0 {
		m.failures--
		return errors.New("database is locked")
	}
	m.loaded = append(m.loaded, events...)
	return nil
}

type mockDeadLetters struct {
	raws   []domain.RawEvent
	causes []error
}

func (m *mockDeadLetters) DeadLetter(_ context.Context, raw domain.RawEvent, cause error) error {
	m.raws = append(m.raws, raw)
	m.causes = append(m.causes, cause)
	return nil
}

func newTestMetrics() *observability.Metrics {
	// Use a fresh registry to avoid "already registered" panics in tests.
	return observability.NewUnregisteredMetrics()
}

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

// --- tests ---

func TestPipeline_Run_HappyPath(t *testing.T) {
	raw := makeRawEvent(t, "ci1", "5.1", "12 km SE of Ridgecrest, CA")

	ext := &mockExtractor{events: []domain.RawEvent{raw}}
	ldr := &mockLoader{}
	metrics := newTestMetrics()

	p := pipeline.New(ext, &mockTransformer{}, ldr, discardLogger(), metrics, 10)
	require.Error(t, p.CheckReadiness(context.Background()))

	ctx, cancel := context.WithTimeout(context.Background(), 500*time.Millisecond)
	defer cancel()

	err := p.Run(ctx)
	require.NoError(t, err)
	require.Len(t, ldr.loaded, 1)
	assert.InDelta(t, 5.1, ldr.loaded[0].Magnitude, 1e-9)
	assert.NoError(t, p.CheckReadiness(context.Background()))
	assert.Equal(t, 1.0, testutil.ToFloat64(metrics.EventsLoaded))
	assert.Equal(t, 1.0, testutil.ToFloat64(metrics.MessagesConsumed))
}

func TestPipeline_Run_ContextCancellation(t *testing.T) {
	ext := &mockExtractor{} // no events: will block
	ldr := &mockLoader{}

	p := pipeline.New(ext, &mockTransformer{}, ldr, discardLogger(), newTestMetrics(), 10)

	ctx, cancel := context.WithCancel(context.Background())
	cancel() // cancel immediately

	err := p.Run(ctx)
	require.NoError(t, err)
	assert.Empty(t, ldr.loaded)
}

func TestPipeline_Run_StopsWhenSourceDrained(t *testing.T) {
	events := make([]domain.RawEvent, 0, 25)
	for i := range 25 {
		events = append(events, makeRawEvent(t, "id", "3.0", time.Duration(i).String()))
	}
	ext := &mockExtractor{events: events, finite: true}
	ldr := &mockLoader{}
	metrics := newTestMetrics()

	p := pipeline.New(ext, &mockTransformer{}, ldr, discardLogger(), metrics, 10)

	// No deadline: Run must return on its own.
	require.NoError(t, p.Run(context.Background()))
	assert.Len(t, ldr.loaded, 25)
	assert.Equal(t, 3, ldr.calls, "batches of 10, 10 and 5")
	assert.Equal(t, 0.0, testutil.ToFloat64(metrics.PipelineRunning))
}

func TestPipeline_Run_TransformErrorIsDeadLettered(t *testing.T) {
	good := makeRawEvent(t, "ci2", "4.4", "Fiji region")
	good.Offset = 8
	bad := domain.RawEvent{Key: []byte("bad"), Value: []byte("not-json{{{"), Topic: "quakes.raw", Offset: 7}

	var committed []int64
	for _, r := range []*domain.RawEvent{&bad, &good} {
		offset := r.Offset
		r.Commit = func(context.Context) error {
			committed = append(committed, offset)
			return nil
		}
	}

	ext := &mockExtractor{events: []domain.RawEvent{bad, good}, finite: true}
	ldr := &mockLoader{}
	dlq := &mockDeadLetters{}
	metrics := newTestMetrics()

	p := pipeline.New(ext, pipeline.NewTransformer(nil, discardLogger()), ldr, discardLogger(), metrics, 10,
		pipeline.WithDeadLetters(dlq))

	require.NoError(t, p.Run(context.Background()))
	assert.Len(t, ldr.loaded, 1)
	require.Len(t, dlq.raws, 1)
	assert.Equal(t, []byte("bad"), dlq.raws[0].Key)
	assert.Equal(t, []int64{7, 8}, committed, "both the poison pill and the loaded message are committed")
	assert.Equal(t, 1.0, testutil.ToFloat64(metrics.TransformErrors))
	assert.Equal(t, 1.0, testutil.ToFloat64(metrics.DeadLettered))
}

func TestPipeline_Run_AllTransformsFail(t *testing.T) {
	raw := makeRawEvent(t, "ci3", "4.0", "somewhere")

	ext := &mockExtractor{events: []domain.RawEvent{raw}}
	ldr := &mockLoader{}

	p := pipeline.New(ext, &mockTransformer{err: errors.New("bad data")}, ldr, discardLogger(), newTestMetrics(), 10)

	ctx, cancel := context.WithTimeout(context.Background(), 300*time.Millisecond)
	defer cancel()

	require.NoError(t, p.Run(ctx))
	assert.Empty(t, ldr.loaded)
	assert.Error(t, p.CheckReadiness(context.Background()))
}

func TestPipeline_Run_LoadRetriedBeforeCommit(t *testing.T) {
	commitCalls := 0
	raw := makeRawEvent(t, "ci4", "6.0", "Kermadec Islands, New Zealand")
	raw.Commit = func(context.Context) error {
		commitCalls++
		return nil
	}

	ext := &mockExtractor{events: []domain.RawEvent{raw}, finite: true}
	ldr := &mockLoader{failures: 2}

	p := pipeline.New(ext, &mockTransformer{}, ldr, discardLogger(), newTestMetrics(), 10)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	require.NoError(t, p.Run(ctx))
	assert.Equal(t, 3, ldr.calls)
	assert.Len(t, ldr.loaded, 1)
	assert.Equal(t, 1, commitCalls, "offset is committed once, after the successful load")
}

func TestQuakeTransformer_Transform(t *testing.T) {
	raw := makeRawEvent(t, "ci5", "5.5", "12 km SE of Ridgecrest, CA")

	tfm := pipeline.NewTransformer(nil, discardLogger())
	event, err := tfm.Transform(context.Background(), raw)
	require.NoError(t, err)

	assert.Equal(t, "Ridgecrest, CA", event.Location.Name)
	require.NotNil(t, event.Location.Direction)
	assert.Equal(t, "SE", *event.Location.Direction)
	assert.Equal(t, "original", event.PlaceSource)
	assert.False(t, event.ProcessedAt.IsZero())
}

func TestQuakeTransformer_GeocodesMissingPlace(t *testing.T) {
	raw := makeRawEvent(t, "ci6", "4.1", "")

	tfm := pipeline.NewTransformer(stubGeocoder{}, discardLogger())
	event, err := tfm.Transform(context.Background(), raw)
	require.NoError(t, err)

	assert.Equal(t, "Ridgecrest, California, United States", event.Place)
	assert.Equal(t, "reverse", event.PlaceSource)
}

// --- helpers ---

type stubGeocoder struct{}

func (stubGeocoder) ReverseGeocode(context.Context, float64, float64) (domain.GeocodingResult, error) {
	return domain.GeocodingResult{FormattedAddress: "Ridgecrest, California, United States", PlaceName: "Ridgecrest"}, nil
}

func makeRawEvent(t *testing.T, id, mag, place string) domain.RawEvent {
	t.Helper()
	data, err := json.Marshal(domain.RawQuakeRecord{
		Time:      "2020-06-04T01:32:11.110Z",
		Latitude:  "35.615",
		Longitude: "-117.428",
		Depth:     "4.6",
		Mag:       mag,
		MagType:   "mw",
		Place:     place,
	})
	require.NoError(t, err)
	return domain.RawEvent{
		Key:   []byte(id),
		Value: data,
	}
}
