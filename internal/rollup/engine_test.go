package rollup

import (
	"context"
	"errors"
	"testing"
	"time"

	"go.uber.org/zap"

	"fleet-tracker/internal/config"
	"fleet-tracker/internal/metrics"
)

type fakeMaterializer struct {
	err   error
	calls []struct{ from, to time.Time }
}

func (f *fakeMaterializer) MaterializeHourly(_ context.Context, from, to time.Time) (int64, error) {
	f.calls = append(f.calls, struct{ from, to time.Time }{from, to})
	if f.err != nil {
		return 0, f.err
	}
	return 3, nil
}

type fakeCompressor struct {
	err   error
	calls []time.Duration
	n     int
}

func (f *fakeCompressor) CompressChunks(_ context.Context, olderThan time.Duration) (int, error) {
	f.calls = append(f.calls, olderThan)
	return f.n, f.err
}

func testRollupConfig() config.RollupConfig {
	return config.RollupConfig{
		Interval:      time.Hour,
		WindowLag:     time.Hour,
		WindowSpan:    2 * time.Hour,
		CompressAfter: 7 * 24 * time.Hour,
	}
}

func TestWindowIsHourAlignedAndLagging(t *testing.T) {
	engine := NewEngine(&fakeMaterializer{}, nil, metrics.New(), testRollupConfig(), zap.NewNop())

	now := time.Date(2026, 2, 17, 14, 37, 12, 0, time.UTC)
	from, to := engine.window(now)

	wantTo := time.Date(2026, 2, 17, 13, 0, 0, 0, time.UTC)
	wantFrom := time.Date(2026, 2, 17, 11, 0, 0, 0, time.UTC)
	if !to.Equal(wantTo) {
		t.Errorf("to = %v, want %v", to, wantTo)
	}
	if !from.Equal(wantFrom) {
		t.Errorf("from = %v, want %v", from, wantFrom)
	}
}

func TestWindowOnTheHour(t *testing.T) {
	engine := NewEngine(&fakeMaterializer{}, nil, metrics.New(), testRollupConfig(), zap.NewNop())

	now := time.Date(2026, 2, 17, 14, 0, 0, 0, time.UTC)
	from, to := engine.window(now)

	if !to.Equal(time.Date(2026, 2, 17, 13, 0, 0, 0, time.UTC)) {
		t.Errorf("to = %v", to)
	}
	if !from.Equal(time.Date(2026, 2, 17, 11, 0, 0, 0, time.UTC)) {
		t.Errorf("from = %v", from)
	}
}

func TestRunOncePassesWindowToStore(t *testing.T) {
	store := &fakeMaterializer{}
	compressor := &fakeCompressor{n: 2}
	engine := NewEngine(store, compressor, metrics.New(), testRollupConfig(), zap.NewNop())
	engine.now = func() time.Time {
		return time.Date(2026, 2, 17, 9, 30, 0, 0, time.UTC)
	}

	if err := engine.RunOnce(context.Background()); err != nil {
		t.Fatalf("RunOnce: %v", err)
	}

	if len(store.calls) != 1 {
		t.Fatalf("expected 1 materialize call, got %d", len(store.calls))
	}
	call := store.calls[0]
	if !call.to.Equal(time.Date(2026, 2, 17, 8, 0, 0, 0, time.UTC)) {
		t.Errorf("to = %v", call.to)
	}
	if !call.from.Equal(time.Date(2026, 2, 17, 6, 0, 0, 0, time.UTC)) {
		t.Errorf("from = %v", call.from)
	}
	if len(compressor.calls) != 1 {
		t.Fatalf("expected compression pass, got %d", len(compressor.calls))
	}
}

func TestRunOnceStoreFailure(t *testing.T) {
	wantErr := errors.New("db down")
	store := &fakeMaterializer{err: wantErr}
	compressor := &fakeCompressor{}
	engine := NewEngine(store, compressor, metrics.New(), testRollupConfig(), zap.NewNop())

	if err := engine.RunOnce(context.Background()); !errors.Is(err, wantErr) {
		t.Fatalf("expected store error, got %v", err)
	}
	if len(compressor.calls) != 0 {
		t.Fatalf("compression must not run after a failed rollup")
	}
}

func TestRunOnceCompressionFailureIsContained(t *testing.T) {
	store := &fakeMaterializer{}
	compressor := &fakeCompressor{err: errors.New("lock timeout")}
	engine := NewEngine(store, compressor, metrics.New(), testRollupConfig(), zap.NewNop())

	if err := engine.RunOnce(context.Background()); err != nil {
		t.Fatalf("compression failure must not fail the pass, got %v", err)
	}
}
